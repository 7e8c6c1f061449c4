package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/qiaofuyo/video-slice/internal/clips"
	"github.com/qiaofuyo/video-slice/internal/events"
	"github.com/qiaofuyo/video-slice/internal/playback"
	"github.com/qiaofuyo/video-slice/internal/player"
	"github.com/qiaofuyo/video-slice/internal/state"
	"github.com/qiaofuyo/video-slice/internal/window"
	"github.com/qiaofuyo/video-slice/internal/workspace"
)

const testToken = "test-token"

var testFileDate = time.Date(2024, 3, 9, 12, 0, 0, 0, time.Local)

type fakeRepo struct {
	token string
	err   error
}

func (f *fakeRepo) GetConfig(ctx context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if key == state.KeyAuthToken {
		return f.token, nil
	}
	return "", nil
}

func (f *fakeRepo) SetConfig(ctx context.Context, key, value string) error {
	return nil
}

type testEnv struct {
	t        *testing.T
	cfg      ServerConfig
	router   http.Handler
	ws       *workspace.Workspace
	locators *playback.Registry
	dir      string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := events.NewBus()
	hub := NewHub(bus, logger)
	reg := player.NewRegistry()
	presence := &player.Presence{}
	locators := playback.NewRegistry(BaseURL(8787))

	ws := workspace.New(workspace.Options{
		Native:              player.NewNative(hub, reg),
		Streaming:           player.NewStreaming(hub, reg, presence),
		Locators:            locators,
		StreamingExtensions: []string{"flv", "ts", "m2ts"},
		Players:             reg,
		Presence:            presence,
		Bus:                 bus,
		Viewport:            window.Viewport{Width: 1920, Height: 1080},
		Logger:              logger,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go ws.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-ws.Stopped()
	})

	cfg := ServerConfig{
		Port:           8787,
		Workspace:      ws,
		Hub:            hub,
		Locators:       locators,
		PlaybackServer: playback.NewServer(logger),
		Presence:       presence,
		Repository:     &fakeRepo{token: testToken},
		Logger:         logger,
		StartTime:      time.Now().Add(-10 * time.Second),
		Version:        "test",
	}
	return &testEnv{t: t, cfg: cfg, router: NewRouter(cfg), ws: ws, locators: locators, dir: t.TempDir()}
}

// file creates a source file with a fixed modification date.
func (e *testEnv) file(name string, content []byte) string {
	e.t.Helper()
	p := filepath.Join(e.dir, name)
	if err := os.WriteFile(p, content, 0o644); err != nil {
		e.t.Fatalf("write %s: %v", name, err)
	}
	if err := os.Chtimes(p, testFileDate, testFileDate); err != nil {
		e.t.Fatalf("chtimes %s: %v", name, err)
	}
	return p
}

func (e *testEnv) request(method, path string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("json.Marshal error: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) expect(rr *httptest.ResponseRecorder, status int) {
	e.t.Helper()
	if rr.Code != status {
		e.t.Fatalf("status = %d, want %d, body = %s", rr.Code, status, rr.Body.String())
	}
}

// playFirst selects name, plays it and reports its metadata and position.
func (e *testEnv) playFirst(name string, position float64) workspace.SessionView {
	e.t.Helper()
	e.expect(e.request(http.MethodPost, "/sources", AddSourcesRequest{Paths: []string{e.file(name, make([]byte, 512))}}), http.StatusCreated)

	rr := e.request(http.MethodPost, "/sources/0/play", nil)
	e.expect(rr, http.StatusAccepted)
	var view workspace.SessionView
	decodeInto(e.t, rr, &view)

	e.expect(e.request(http.MethodPost, "/player/metadata", map[string]any{
		"handle": view.Handle, "duration": 3600.0, "width": 1280, "height": 720,
	}), http.StatusOK)
	e.expect(e.request(http.MethodPost, "/player/progress", workspace.ProgressReport{Handle: view.Handle, Position: position}), http.StatusOK)
	return view
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}

	return body
}

func decodeInto(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	env.expect(rr, http.StatusOK)
	body := decodeJSONBody(t, rr)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
	if uptime, ok := body["uptime_s"].(float64); !ok || uptime < 10 {
		t.Errorf("uptime_s = %v, want >= 10", body["uptime_s"])
	}
}

func TestStatusHandler_Idle(t *testing.T) {
	env := newTestEnv(t)

	rr := env.request(http.MethodGet, "/status", nil)
	env.expect(rr, http.StatusOK)

	var status StatusResponse
	decodeInto(t, rr, &status)
	if status.State != "empty" || status.Preview != "idle" {
		t.Errorf("state/preview = %q %q", status.State, status.Preview)
	}
	if status.PlayerConnected || status.StreamingAvailable {
		t.Error("no player page has connected")
	}
	if status.SourcesCount != 0 || status.ClipsCount != 0 || status.LiveLocators != 0 {
		t.Errorf("counts = %+v", status)
	}
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic " + testToken, http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + testToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/clips", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			env.router.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestAuth_TokenNotConfigured(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Repository = &fakeRepo{}
	router := NewRouter(env.cfg)

	req := httptest.NewRequest(http.MethodGet, "/clips", nil)
	req.Header.Set("Authorization", "Bearer ")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestSources_AddListRemove(t *testing.T) {
	env := newTestEnv(t)
	a := env.file("alice_live.mp4", []byte("a"))
	b := env.file("bob_show.flv", []byte("bb"))

	rr := env.request(http.MethodPost, "/sources", AddSourcesRequest{Paths: []string{a, b}})
	env.expect(rr, http.StatusCreated)
	var added AddSourcesResponse
	decodeInto(t, rr, &added)
	if len(added.Added) != 2 || added.Added[1].Name != "bob_show.flv" {
		t.Fatalf("added = %+v", added.Added)
	}

	// Re-adding the same files is not an error.
	env.expect(env.request(http.MethodPost, "/sources", AddSourcesRequest{Paths: []string{a}}), http.StatusOK)

	rr = env.request(http.MethodGet, "/sources", nil)
	env.expect(rr, http.StatusOK)
	var list workspace.SelectionView
	decodeInto(t, rr, &list)
	if len(list.Sources) != 2 || list.Playing != -1 {
		t.Fatalf("selection = %+v", list)
	}

	rr = env.request(http.MethodDelete, "/sources/0", nil)
	env.expect(rr, http.StatusOK)
	var removed RemoveSourceResponse
	decodeInto(t, rr, &removed)
	if removed.Removed.Name != "alice_live.mp4" {
		t.Errorf("removed = %q", removed.Removed.Name)
	}
}

func TestFaultMapping(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"bad index", http.MethodDelete, "/sources/x", nil, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown source", http.MethodPost, "/sources/3/play", nil, http.StatusNotFound, "NOT_FOUND"},
		{"mark without binding", http.MethodPost, "/session/mark/start", nil, http.StatusUnprocessableEntity, "VALIDATION"},
		{"unknown edge", http.MethodPost, "/session/mark/middle", nil, http.StatusBadRequest, "BAD_REQUEST"},
		{"add clip without binding", http.MethodPost, "/clips", nil, http.StatusUnprocessableEntity, "VALIDATION"},
		{"remove missing clip", http.MethodDelete, "/clips/0", nil, http.StatusUnprocessableEntity, "VALIDATION"},
		{"seek without step", http.MethodPost, "/session/seek", SeekRequest{}, http.StatusBadRequest, "BAD_REQUEST"},
		{"bad window", http.MethodPut, "/window", window.Geometry{Width: "wide"}, http.StatusUnprocessableEntity, "VALIDATION"},
		{"edl without clips", http.MethodPost, "/export/edl", map[string]string{"output_dir": "/tmp"}, http.StatusUnprocessableEntity, "VALIDATION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.request(tt.method, tt.path, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d, body = %s", rr.Code, tt.status, rr.Body.String())
			}
			body := decodeJSONBody(t, rr)
			if body["code"] != tt.code {
				t.Errorf("code = %v, want %s", body["code"], tt.code)
			}
			if msg, _ := body["error"].(string); msg == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestWriteFault_Kinds(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{workspace.ErrStopped, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{context.Canceled, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		WriteFault(rr, tt.err)
		if rr.Code != tt.status {
			t.Errorf("WriteFault(%v) status = %d, want %d", tt.err, rr.Code, tt.status)
		}
		if body := decodeJSONBody(t, rr); body["code"] != tt.code {
			t.Errorf("WriteFault(%v) code = %v, want %s", tt.err, body["code"], tt.code)
		}
	}
}

func TestSessionFlow_MarkAddPreview(t *testing.T) {
	env := newTestEnv(t)
	view := env.playFirst("alice_live.mp4", 65)
	if view.State != "bound" || view.Backend != "native" {
		t.Fatalf("session = %+v", view)
	}

	rr := env.request(http.MethodPost, "/session/mark/start", nil)
	env.expect(rr, http.StatusOK)
	var mark MarkResponse
	decodeInto(t, rr, &mark)
	if mark.Value != "000105" {
		t.Errorf("start mark = %q, want 000105", mark.Value)
	}

	env.expect(env.request(http.MethodPost, "/player/progress", workspace.ProgressReport{Handle: view.Handle, Position: 130}), http.StatusOK)
	env.expect(env.request(http.MethodPost, "/session/mark/end", nil), http.StatusOK)

	rr = env.request(http.MethodPost, "/clips", nil)
	env.expect(rr, http.StatusCreated)
	var rec clips.Record
	decodeInto(t, rr, &rec)
	if rec.Start != "00:01:05" || rec.End != "00:02:10" || rec.OutputFileName() != "alice_20240309_1.mp4" {
		t.Errorf("clip = %+v", rec)
	}

	rr = env.request(http.MethodGet, "/clips", nil)
	env.expect(rr, http.StatusOK)
	var list ClipsResponse
	decodeInto(t, rr, &list)
	if len(list.Clips) != 1 {
		t.Fatalf("clips = %d, want 1", len(list.Clips))
	}

	rr = env.request(http.MethodPost, "/clips/0/preview", nil)
	env.expect(rr, http.StatusAccepted)
	var session workspace.SessionView
	decodeInto(t, rr, &session)
	if session.Preview != "clip_preview" {
		// Rebound: the preview begins once the new handle reports.
		env.expect(env.request(http.MethodPost, "/player/metadata", map[string]any{
			"handle": session.Handle, "duration": 3600.0, "width": 1280, "height": 720,
		}), http.StatusOK)
		rr = env.request(http.MethodGet, "/session", nil)
		env.expect(rr, http.StatusOK)
		decodeInto(t, rr, &session)
	}
	if session.Preview != "clip_preview" || session.PreviewOf != "alice_20240309_1.mp4" {
		t.Errorf("preview = %q of %q", session.Preview, session.PreviewOf)
	}
}

func TestSessionFlow_SeekToggleStop(t *testing.T) {
	env := newTestEnv(t)
	env.playFirst("alice_live.mp4", 20)

	rr := env.request(http.MethodPost, "/session/seek", SeekRequest{Step: "forward"})
	env.expect(rr, http.StatusOK)
	var seek SeekResponse
	decodeInto(t, rr, &seek)
	if seek.Position != 35 {
		t.Errorf("position = %v, want 35", seek.Position)
	}

	delta := -100.0
	rr = env.request(http.MethodPost, "/session/seek", SeekRequest{Delta: &delta})
	env.expect(rr, http.StatusOK)
	decodeInto(t, rr, &seek)
	if seek.Position != 0 {
		t.Errorf("position = %v, want clamped to 0", seek.Position)
	}

	rr = env.request(http.MethodPost, "/session/toggle", nil)
	env.expect(rr, http.StatusOK)
	var toggle ToggleResponse
	decodeInto(t, rr, &toggle)
	if toggle.Playing {
		t.Error("toggle of a playing session should pause")
	}

	rr = env.request(http.MethodDelete, "/session", nil)
	env.expect(rr, http.StatusOK)
	var session workspace.SessionView
	decodeInto(t, rr, &session)
	if session.State != "empty" {
		t.Errorf("state after stop = %q", session.State)
	}
}

func TestClips_RenameClear(t *testing.T) {
	env := newTestEnv(t)
	env.playFirst("alice_live.mp4", 0)

	start, end := "000010", "000020"
	env.expect(env.request(http.MethodPost, "/clips", workspace.AddClipRequest{Start: &start, End: &end}), http.StatusCreated)

	stem := "opening"
	rr := env.request(http.MethodPatch, "/clips/0", RenameClipRequest{Stem: &stem})
	env.expect(rr, http.StatusOK)
	var rec clips.Record
	decodeInto(t, rr, &rec)
	if rec.OutputFileName() != "opening.mp4" || !rec.StemEdited {
		t.Errorf("renamed = %+v", rec)
	}

	rr = env.request(http.MethodDelete, "/clips", nil)
	env.expect(rr, http.StatusOK)
	var cleared ClearClipsResponse
	decodeInto(t, rr, &cleared)
	if cleared.Removed != 1 {
		t.Errorf("removed = %d, want 1", cleared.Removed)
	}
}

func TestWindow_PutGet(t *testing.T) {
	env := newTestEnv(t)
	g := window.Geometry{Width: "640px", Height: "360px", Left: "10px", Top: "20px"}

	env.expect(env.request(http.MethodPut, "/window", WindowRequest{Geometry: g}), http.StatusOK)

	rr := env.request(http.MethodGet, "/window", nil)
	env.expect(rr, http.StatusOK)
	var got window.Geometry
	decodeInto(t, rr, &got)
	if got != g {
		t.Errorf("window = %+v, want %+v", got, g)
	}
}

func TestPlayerHello_MarksPresence(t *testing.T) {
	env := newTestEnv(t)

	env.expect(env.request(http.MethodPost, "/player/hello", HelloRequest{Streaming: true}), http.StatusOK)

	rr := env.request(http.MethodGet, "/status", nil)
	var status StatusResponse
	decodeInto(t, rr, &status)
	if !status.PlayerConnected || !status.StreamingAvailable {
		t.Errorf("status = %+v", status)
	}
}

func TestPlayerReports_StaleHandle(t *testing.T) {
	env := newTestEnv(t)
	env.playFirst("alice_live.mp4", 5)

	rr := env.request(http.MethodPost, "/player/progress", workspace.ProgressReport{Handle: "gone", Position: 99})
	env.expect(rr, http.StatusOK)
	var resp AcceptedResponse
	decodeInto(t, rr, &resp)
	if resp.Accepted {
		t.Error("progress for an unknown handle was accepted")
	}
}
