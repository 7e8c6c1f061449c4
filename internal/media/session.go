package media

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/qiaofuyo/video-slice/internal/faults"
)

// State of a Session.
type State int

const (
	StateEmpty State = iota
	StateBound
)

func (s State) String() string {
	if s == StateBound {
		return "bound"
	}
	return "empty"
}

// EventKind names a session transition.
type EventKind string

const (
	EventBound    EventKind = "bound"
	EventReleased EventKind = "released"
	EventMetadata EventKind = "metadata"
)

// Event is published to subscribers after every transition.
type Event struct {
	Kind       EventKind
	Source     Source
	Backend    string
	Generation uint64
	Metadata   Metadata
}

// DefaultStreamingExtensions are the containers routed to the streaming
// backend when it is available.
var DefaultStreamingExtensions = []string{"flv", "ts", "m2ts"}

type SessionConfig struct {
	Native              Backend
	Streaming           Backend
	Locators            Locators
	StreamingExtensions []string
	Logger              *slog.Logger
}

// Session owns at most one live Handle. Binding a new source always tears
// the previous handle down first.
//
// Session has no locks. It must only be driven from one goroutine.
type Session struct {
	native    Backend
	streaming Backend
	locators  Locators
	streamExt map[string]bool
	logger    *slog.Logger

	state    State
	source   Source
	handle   Handle
	backend  string
	locator  string
	gen      uint64
	pending  *Pending
	meta     Metadata
	hasMeta  bool
	position float64

	subscribers []func(Event)
}

func NewSession(cfg SessionConfig) *Session {
	exts := cfg.StreamingExtensions
	if exts == nil {
		exts = DefaultStreamingExtensions
	}
	streamExt := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			streamExt[ext] = true
		}
	}

	locators := cfg.Locators
	if locators == nil {
		locators = pathLocators{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Session{
		native:    cfg.Native,
		streaming: cfg.Streaming,
		locators:  locators,
		streamExt: streamExt,
		logger:    logger,
	}
}

// Subscribe registers fn to run after every bind, release and metadata
// arrival.
func (s *Session) Subscribe(fn func(Event)) {
	s.subscribers = append(s.subscribers, fn)
}

// Bind releases whatever is bound, then attaches src. The returned Pending
// resolves when the backend reports metadata for this bind.
func (s *Session) Bind(src Source) (*Pending, error) {
	s.Release()

	s.gen++
	gen := s.gen

	handle, backend, locator, err := s.attach(src)
	if err != nil {
		s.logger.Error("playback failed", "source", src.Name, "error", err)
		return nil, faults.Wrap(faults.ErrFatalPlayback, "bind",
			fmt.Sprintf("cannot play %s", src.Name), err)
	}

	s.state = StateBound
	s.source = src
	s.handle = handle
	s.backend = backend
	s.locator = locator
	s.meta = Metadata{}
	s.hasMeta = false
	s.position = 0
	s.pending = newPending(gen)
	pending := s.pending

	s.logger.Info("source bound", "source", src.Name, "backend", backend, "generation", gen)
	s.publish(Event{Kind: EventBound, Source: src, Backend: backend, Generation: gen})

	handle.OnMetadataReady(func(m Metadata) {
		s.metadataReady(gen, m)
	})
	return pending, nil
}

func (s *Session) attach(src Source) (Handle, string, string, error) {
	if s.useStreaming(src) {
		locator := s.locators.Issue(src)
		handle, err := s.streaming.Attach(locator, src.Size)
		if err == nil {
			return handle, s.streaming.Name(), locator, nil
		}
		s.logger.Warn("streaming backend failed, falling back to native",
			"source", src.Name,
			"error", faults.Wrap(faults.ErrBind, "attach", s.streaming.Name(), err),
		)
		if handle != nil {
			s.destroy(handle)
		}
		s.locators.Revoke(locator)
	}

	if s.native == nil {
		return nil, "", "", fmt.Errorf("no native backend configured")
	}
	locator := s.locators.Issue(src)
	handle, err := s.native.Attach(locator, src.Size)
	if err != nil {
		if handle != nil {
			s.destroy(handle)
		}
		s.locators.Revoke(locator)
		return nil, "", "", err
	}
	return handle, s.native.Name(), locator, nil
}

func (s *Session) useStreaming(src Source) bool {
	return s.streaming != nil && s.streaming.Available() && s.streamExt[src.Ext()]
}

// Release tears down the live handle and revokes its locator. It is safe to
// call when nothing is bound. Teardown errors are logged, never returned.
func (s *Session) Release() {
	if s.state == StateEmpty {
		return
	}

	handle, locator, src := s.handle, s.locator, s.source
	s.gen++
	if s.pending != nil {
		s.pending.abandon()
	}

	s.state = StateEmpty
	s.source = Source{}
	s.handle = nil
	s.backend = ""
	s.locator = ""
	s.pending = nil
	s.meta = Metadata{}
	s.hasMeta = false
	s.position = 0

	if handle != nil {
		s.destroy(handle)
	}
	if locator != "" {
		s.locators.Revoke(locator)
	}

	s.logger.Info("source released", "source", src.Name, "generation", s.gen)
	s.publish(Event{Kind: EventReleased, Source: src, Generation: s.gen})
}

func (s *Session) destroy(h Handle) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("handle teardown panicked", "error", faults.Wrap(faults.ErrRelease, "destroy", "", fmt.Errorf("%v", r)))
		}
	}()
	if err := h.Destroy(); err != nil {
		s.logger.Warn("handle teardown failed", "error", faults.Wrap(faults.ErrRelease, "destroy", "", err))
	}
}

func (s *Session) metadataReady(gen uint64, m Metadata) {
	if gen != s.gen || s.state != StateBound {
		s.logger.Debug("ignoring stale metadata", "generation", gen, "current", s.gen)
		return
	}
	if s.hasMeta {
		return
	}
	s.meta = m
	s.hasMeta = true
	pending := s.pending

	s.publish(Event{Kind: EventMetadata, Source: s.source, Backend: s.backend, Generation: gen, Metadata: m})
	if pending != nil {
		pending.resolve(m)
	}
}

func (s *Session) publish(e Event) {
	for _, fn := range s.subscribers {
		fn(e)
	}
}

func (s *Session) Play() error {
	if s.handle == nil {
		return faults.Validation("play", "no video is loaded")
	}
	return s.handle.Play()
}

func (s *Session) Pause() error {
	if s.handle == nil {
		return faults.Validation("pause", "no video is loaded")
	}
	return s.handle.Pause()
}

// Seek moves playback to position and records it as the current position.
func (s *Session) Seek(position float64) error {
	if s.handle == nil {
		return faults.Validation("seek", "no video is loaded")
	}
	if position < 0 {
		position = 0
	}
	if err := s.handle.Seek(position); err != nil {
		return err
	}
	s.position = position
	return nil
}

// SeekBy moves relative to the last known position, clamped to
// [0, duration] once the duration is known.
func (s *Session) SeekBy(delta float64) (float64, error) {
	target := s.position + delta
	if target < 0 {
		target = 0
	}
	if s.hasMeta && s.meta.Duration > 0 && target > s.meta.Duration {
		target = s.meta.Duration
	}
	if err := s.Seek(target); err != nil {
		return s.position, err
	}
	return target, nil
}

// ReportProgress records a playback position reported by the backend for
// generation gen. Reports for any other generation are dropped.
func (s *Session) ReportProgress(gen uint64, position float64) bool {
	if gen != s.gen || s.state != StateBound {
		return false
	}
	s.position = position
	return true
}

func (s *Session) State() State       { return s.state }
func (s *Session) Generation() uint64 { return s.gen }
func (s *Session) Position() float64  { return s.position }
func (s *Session) Backend() string    { return s.backend }
func (s *Session) Locator() string    { return s.locator }
func (s *Session) Handle() Handle     { return s.handle }

// Pending returns the metadata future of the current bind, or nil.
func (s *Session) Pending() *Pending { return s.pending }

func (s *Session) Source() (Source, bool) {
	return s.source, s.state == StateBound
}

func (s *Session) Metadata() (Metadata, bool) {
	return s.meta, s.hasMeta
}

// IsBoundTo reports whether the session currently plays the source with key.
func (s *Session) IsBoundTo(key Key) bool {
	return s.state == StateBound && s.source.Key() == key
}
