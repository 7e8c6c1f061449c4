package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qiaofuyo/video-slice/internal/events"
	"github.com/qiaofuyo/video-slice/internal/player"
)

type wireEvent struct {
	Type events.Type     `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialWS(t *testing.T, server *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

// readUntil reads events until match returns true or the deadline passes.
func readUntil(t *testing.T, conn *websocket.Conn, match func(wireEvent) bool) wireEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var e wireEvent
		if err := conn.ReadJSON(&e); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if match(e) {
			return e
		}
	}
}

func playerOp(op player.Op, cmd *player.Command) func(wireEvent) bool {
	return func(e wireEvent) bool {
		if e.Type != events.TypePlayer {
			return false
		}
		if err := json.Unmarshal(e.Data, cmd); err != nil {
			return false
		}
		return cmd.Op == op
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWS_RejectsBadToken(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	_, resp, err := dialWS(t, server, "nope")
	if err == nil {
		t.Fatal("Dial() error = nil, want handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("response = %v, want 401", resp)
	}
}

func TestWS_ConnectedSnapshot(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	conn, _, err := dialWS(t, server, testToken)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	e := readUntil(t, conn, func(wireEvent) bool { return true })
	if e.Type != events.TypeConnected {
		t.Fatalf("first event = %q, want %q", e.Type, events.TypeConnected)
	}
	var snap struct {
		Session struct {
			State string `json:"state"`
		} `json:"session"`
	}
	if err := json.Unmarshal(e.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Session.State != "empty" {
		t.Errorf("session state = %q, want empty", snap.Session.State)
	}
}

func TestWS_PlayerPage(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	conn, _, err := dialWS(t, server, testToken)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	if err := conn.WriteJSON(map[string]any{"type": "hello", "streaming": true}); err != nil {
		t.Fatalf("WriteJSON(hello) error = %v", err)
	}
	waitFor(t, "player hello", func() bool { return env.cfg.Hub.Players() == 1 && env.cfg.Presence.Streaming() })

	path := env.file("bob_show.flv", make([]byte, 256))
	env.expect(env.request(http.MethodPost, "/sources", AddSourcesRequest{Paths: []string{path}}), http.StatusCreated)
	env.expect(env.request(http.MethodPost, "/sources/0/play", nil), http.StatusAccepted)

	var attach player.Command
	readUntil(t, conn, playerOp(player.OpAttach, &attach))
	if attach.Backend != player.StreamingName || attach.Type != "flv" || attach.Stream == nil {
		t.Errorf("attach = %+v", attach)
	}
	if !strings.HasPrefix(attach.Locator, BaseURL(8787)+"/playback/") || !strings.HasSuffix(attach.Locator, ".flv") {
		t.Errorf("locator = %q", attach.Locator)
	}

	if err := conn.WriteJSON(map[string]any{
		"type": "metadata", "handle": attach.Handle, "duration": 100.0, "width": 1280, "height": 720,
	}); err != nil {
		t.Fatalf("WriteJSON(metadata) error = %v", err)
	}
	var play player.Command
	readUntil(t, conn, playerOp(player.OpPlay, &play))
	if play.Handle != attach.Handle {
		t.Errorf("play handle = %q, want %q", play.Handle, attach.Handle)
	}

	conn.Close()
	waitFor(t, "player gone", func() bool { return env.cfg.Hub.Clients() == 0 && !env.cfg.Presence.Connected() })
}

func TestHub_SendSkipsNonPlayers(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	conn, _, err := dialWS(t, server, testToken)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	waitFor(t, "client registered", func() bool { return env.cfg.Hub.Clients() == 1 })

	if n := env.cfg.Hub.Send(player.Command{Op: player.OpPause, Handle: "h"}); n != 0 {
		t.Errorf("Send() = %d, want 0 without a player page", n)
	}
}
