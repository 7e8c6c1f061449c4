package events

import "testing"

func TestBus_PublishSubscribe(t *testing.T) {
	b := NewBus()
	ch1, unsub1 := b.Subscribe(4)
	ch2, unsub2 := b.Subscribe(4)
	defer unsub2()

	if n := b.Publish(Event{Type: TypeClips}); n != 2 {
		t.Fatalf("delivered to %d, want 2", n)
	}
	for _, ch := range []<-chan Event{ch1, ch2} {
		e := <-ch
		if e.Type != TypeClips || e.Timestamp == 0 {
			t.Errorf("event = %+v", e)
		}
	}

	unsub1()
	unsub1()
	if _, ok := <-ch1; ok {
		t.Error("unsubscribed channel still open")
	}
	if b.SubscriberCount() != 1 {
		t.Errorf("SubscriberCount() = %d, want 1", b.SubscriberCount())
	}
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Message("one")
	if n := b.Publish(Event{Type: TypeMessage, Message: "two"}); n != 0 {
		t.Fatalf("delivered to full subscriber")
	}
	if e := <-ch; e.Message != "one" {
		t.Errorf("message = %q, want one", e.Message)
	}
}

func TestBus_Close(t *testing.T) {
	b := NewBus()
	ch, _ := b.Subscribe(1)
	b.Close()
	if _, ok := <-ch; ok {
		t.Error("channel open after Close")
	}
	late, _ := b.Subscribe(1)
	if _, ok := <-late; ok {
		t.Error("subscription after Close is open")
	}
}
