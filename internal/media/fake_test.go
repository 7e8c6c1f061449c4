package media

import (
	"errors"
	"fmt"
	"time"
)

// journal records backend calls in order across every fake in a test.
type journal struct {
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

type fakeHandle struct {
	id         string
	locator    string
	log        *journal
	onReady    func(Metadata)
	destroyed  int
	destroyErr error
	plays      int
	pauses     int
	seeks      []float64
}

func (h *fakeHandle) OnMetadataReady(fn func(Metadata)) { h.onReady = fn }
func (h *fakeHandle) Play() error                        { h.plays++; h.log.add("play %s", h.id); return nil }
func (h *fakeHandle) Pause() error                       { h.pauses++; h.log.add("pause %s", h.id); return nil }
func (h *fakeHandle) Seek(pos float64) error {
	h.seeks = append(h.seeks, pos)
	h.log.add("seek %s %g", h.id, pos)
	return nil
}
func (h *fakeHandle) Destroy() error {
	h.destroyed++
	h.log.add("destroy %s", h.id)
	return h.destroyErr
}

// ready simulates the backend reporting metadata.
func (h *fakeHandle) ready(m Metadata) {
	if h.onReady != nil {
		h.onReady(m)
	}
}

type fakeBackend struct {
	name      string
	available bool
	log       *journal
	attachErr error
	partial   bool
	handles   []*fakeHandle
}

func (b *fakeBackend) Name() string    { return b.name }
func (b *fakeBackend) Available() bool { return b.available }

func (b *fakeBackend) Attach(locator string, size int64) (Handle, error) {
	h := &fakeHandle{id: fmt.Sprintf("%s#%d", b.name, len(b.handles)+1), locator: locator, log: b.log}
	if b.attachErr != nil {
		b.log.add("attach-failed %s", h.id)
		if b.partial {
			b.handles = append(b.handles, h)
			return h, b.attachErr
		}
		return nil, b.attachErr
	}
	b.handles = append(b.handles, h)
	b.log.add("attach %s %s", h.id, locator)
	return h, nil
}

func (b *fakeBackend) last() *fakeHandle {
	if len(b.handles) == 0 {
		return nil
	}
	return b.handles[len(b.handles)-1]
}

type fakeLocators struct {
	log    *journal
	next   int
	issued map[string]bool
}

func newFakeLocators(log *journal) *fakeLocators {
	return &fakeLocators{log: log, issued: map[string]bool{}}
}

func (l *fakeLocators) Issue(src Source) string {
	l.next++
	loc := fmt.Sprintf("loc-%d", l.next)
	l.issued[loc] = true
	l.log.add("issue %s %s", loc, src.Name)
	return loc
}

func (l *fakeLocators) Revoke(loc string) {
	delete(l.issued, loc)
	l.log.add("revoke %s", loc)
}

func (l *fakeLocators) live() int { return len(l.issued) }

var errBoom = errors.New("boom")

func testSource(name string, size int64) Source {
	return NewSource("/media/"+name, size, time.Date(2024, 3, 9, 10, 0, 0, 0, time.Local))
}
