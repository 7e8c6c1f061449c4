// Package player implements media backends that drive a connected browser
// page. The page owns the actual <video> element or streaming demuxer and
// reports metadata and progress back by handle ID.
package player

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/qiaofuyo/video-slice/internal/media"
)

const (
	NativeName    = "native"
	StreamingName = "mpegts"
)

// Op is a player command.
type Op string

const (
	OpAttach  Op = "attach"
	OpPlay    Op = "play"
	OpPause   Op = "pause"
	OpSeek    Op = "seek"
	OpDestroy Op = "destroy"
)

// Command is sent to the page for one handle.
type Command struct {
	Op       Op      `json:"op"`
	Handle   string  `json:"handle"`
	Backend  string  `json:"backend,omitempty"`
	Locator  string  `json:"locator,omitempty"`
	Type     string  `json:"type,omitempty"`
	SizeHint int64   `json:"size_hint,omitempty"`
	Position float64 `json:"position,omitempty"`

	Stream *StreamConfig `json:"stream,omitempty"`
}

// StreamConfig tunes the page's demuxer for large local recordings. Field
// names follow the demuxer's own option names.
type StreamConfig struct {
	EnableWorker                   bool `json:"enableWorker"`
	EnableStashBuffer              bool `json:"enableStashBuffer"`
	StashInitialSize               int  `json:"stashInitialSize"`
	LazyLoad                       bool `json:"lazyLoad"`
	LazyLoadMaxDuration            int  `json:"lazyLoadMaxDuration"`
	LazyLoadRecoverDuration        int  `json:"lazyLoadRecoverDuration"`
	AutoCleanupSourceBuffer        bool `json:"autoCleanupSourceBuffer"`
	AutoCleanupMinBackwardDuration int  `json:"autoCleanupMinBackwardDuration"`
	AutoCleanupMaxBackwardDuration int  `json:"autoCleanupMaxBackwardDuration"`
}

// DefaultStreamConfig keeps ten minutes ahead and two to five minutes behind
// the playhead buffered.
var DefaultStreamConfig = StreamConfig{
	EnableWorker:                   true,
	EnableStashBuffer:              true,
	StashInitialSize:               384 * 1024 * 10,
	LazyLoad:                       true,
	LazyLoadMaxDuration:            10 * 60,
	LazyLoadRecoverDuration:        3 * 60,
	AutoCleanupSourceBuffer:        true,
	AutoCleanupMinBackwardDuration: 2 * 60,
	AutoCleanupMaxBackwardDuration: 5 * 60,
}

// Sender delivers commands to connected pages and reports how many received
// them.
type Sender interface {
	Send(cmd Command) int
}

// ErrNoPlayer is returned by the streaming backend when no page is connected
// to construct the demuxer.
var ErrNoPlayer = errors.New("no player page connected")

// Presence tracks what the connected page reported it can do.
type Presence struct {
	streaming atomic.Bool
	connected atomic.Bool
}

// Hello records a page announcement.
func (p *Presence) Hello(streaming bool) {
	p.connected.Store(true)
	p.streaming.Store(streaming)
}

// Gone records that the last page disconnected.
func (p *Presence) Gone() {
	p.connected.Store(false)
	p.streaming.Store(false)
}

func (p *Presence) Connected() bool { return p.connected.Load() }
func (p *Presence) Streaming() bool { return p.streaming.Load() }

// Registry indexes live handles of every remote backend by ID so reports
// from the page can be routed back.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

func (r *Registry) add(h *Handle) {
	r.mu.Lock()
	r.handles[h.id] = h
	r.mu.Unlock()
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.handles, id)
	r.mu.Unlock()
}

// Lookup returns the live handle with id.
func (r *Registry) Lookup(id string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	return h, ok
}

// DeliverMetadata fires the metadata callback of handle id. Reports for
// destroyed or unknown handles are dropped.
func (r *Registry) DeliverMetadata(id string, m media.Metadata) bool {
	h, ok := r.Lookup(id)
	if !ok {
		return false
	}
	return h.fire(m)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Backend is a media.Backend whose handles live in the browser page.
type Backend struct {
	name     string
	sender   Sender
	presence *Presence
	registry *Registry
}

// NewNative returns the backend for the page's native <video> element.
func NewNative(sender Sender, registry *Registry) *Backend {
	return &Backend{name: NativeName, sender: sender, registry: registry}
}

// NewStreaming returns the backend for the page's streaming demuxer. It is
// available only while a connected page reports demuxer support.
func NewStreaming(sender Sender, registry *Registry, presence *Presence) *Backend {
	return &Backend{name: StreamingName, sender: sender, registry: registry, presence: presence}
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Available() bool {
	if b.presence == nil {
		return true
	}
	return b.presence.Streaming()
}

// Attach asks the page to load locator. The native backend always returns a
// handle; a page that connects later replays the attach. The streaming
// backend fails when no page took the command, returning the partial handle
// so the caller can tear it down.
func (b *Backend) Attach(locator string, sizeHint int64) (media.Handle, error) {
	h := &Handle{
		id:       uuid.NewString(),
		backend:  b,
		locator:  locator,
		sizeHint: sizeHint,
	}
	b.registry.add(h)

	delivered := b.sender.Send(h.attachCommand())
	if delivered == 0 && b.name == StreamingName {
		return h, fmt.Errorf("%s attach: %w", b.name, ErrNoPlayer)
	}
	return h, nil
}

// StreamType maps a locator's container to the demuxer type name.
func StreamType(locator string) string {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(locator), ".")) {
	case "flv":
		return "flv"
	case "m2ts":
		return "m2ts"
	case "ts":
		return "mpegts"
	case "mp4":
		return "mp4"
	default:
		return ""
	}
}

// Handle is one remote binding.
type Handle struct {
	id       string
	backend  *Backend
	locator  string
	sizeHint int64

	mu        sync.Mutex
	onReady   func(media.Metadata)
	fired     bool
	destroyed bool
}

func (h *Handle) ID() string      { return h.id }
func (h *Handle) Locator() string { return h.locator }
func (h *Handle) Backend() string { return h.backend.name }

func (h *Handle) attachCommand() Command {
	cmd := Command{
		Op:       OpAttach,
		Handle:   h.id,
		Backend:  h.backend.name,
		Locator:  h.locator,
		SizeHint: h.sizeHint,
	}
	if h.backend.name == StreamingName {
		cmd.Type = StreamType(h.locator)
		cfg := DefaultStreamConfig
		cmd.Stream = &cfg
	}
	return cmd
}

// Replay resends the attach command, for pages that connect after the bind.
func (h *Handle) Replay() {
	if h.isDestroyed() {
		return
	}
	h.backend.sender.Send(h.attachCommand())
}

func (h *Handle) OnMetadataReady(fn func(media.Metadata)) {
	h.mu.Lock()
	h.onReady = fn
	h.mu.Unlock()
}

func (h *Handle) fire(m media.Metadata) bool {
	h.mu.Lock()
	if h.fired || h.destroyed || h.onReady == nil {
		h.mu.Unlock()
		return false
	}
	h.fired = true
	fn := h.onReady
	h.mu.Unlock()

	fn(m)
	return true
}

func (h *Handle) send(cmd Command) error {
	if h.isDestroyed() {
		return fmt.Errorf("handle %s is destroyed", h.id)
	}
	cmd.Handle = h.id
	cmd.Backend = h.backend.name
	h.backend.sender.Send(cmd)
	return nil
}

func (h *Handle) Play() error  { return h.send(Command{Op: OpPlay}) }
func (h *Handle) Pause() error { return h.send(Command{Op: OpPause}) }

func (h *Handle) Seek(position float64) error {
	return h.send(Command{Op: OpSeek, Position: position})
}

// Destroy tells the page to drop the element or demuxer. Repeated calls are
// no-ops.
func (h *Handle) Destroy() error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return nil
	}
	h.destroyed = true
	h.onReady = nil
	h.mu.Unlock()

	h.backend.registry.remove(h.id)
	h.backend.sender.Send(Command{Op: OpDestroy, Handle: h.id, Backend: h.backend.name})
	return nil
}

func (h *Handle) isDestroyed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.destroyed
}
