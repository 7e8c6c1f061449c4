// Package workspace owns the operator's selection, the media session, the
// clip ledger and the preview controller, and serializes every operation on
// them through a single Loop.
package workspace

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/qiaofuyo/video-slice/internal/clips"
	"github.com/qiaofuyo/video-slice/internal/events"
	"github.com/qiaofuyo/video-slice/internal/export"
	"github.com/qiaofuyo/video-slice/internal/faults"
	"github.com/qiaofuyo/video-slice/internal/media"
	"github.com/qiaofuyo/video-slice/internal/player"
	"github.com/qiaofuyo/video-slice/internal/preview"
	"github.com/qiaofuyo/video-slice/internal/timecode"
	"github.com/qiaofuyo/video-slice/internal/window"
)

const DefaultProjectName = "videoslice_export"

// SeekSteps are the jump sizes in seconds.
type SeekSteps struct {
	Forward     float64 `json:"forward"`
	Back        float64 `json:"back"`
	LongForward float64 `json:"long_forward"`
	LongBack    float64 `json:"long_back"`
}

var DefaultSeekSteps = SeekSteps{Forward: 15, Back: 5, LongForward: 120, LongBack: 120}

// Step names one of the configured jumps.
type Step string

const (
	StepForward     Step = "forward"
	StepBack        Step = "back"
	StepLongForward Step = "long-forward"
	StepLongBack    Step = "long-back"
)

// Edge selects which mark to capture.
type Edge string

const (
	EdgeStart Edge = "start"
	EdgeEnd   Edge = "end"
)

// Players routes page reports to live remote handles.
type Players interface {
	DeliverMetadata(id string, m media.Metadata) bool
}

type Options struct {
	Native              media.Backend
	Streaming           media.Backend
	Locators            media.Locators
	StreamingExtensions []string
	Players             Players
	Presence            *player.Presence
	Geometry            window.Store
	Bus                 *events.Bus
	Clips               clips.Options
	Steps               SeekSteps
	Viewport            window.Viewport
	Program             string
	Logger              *slog.Logger
}

// Workspace is the application state. Every exported method submits its
// work to the loop and waits for it.
type Workspace struct {
	loop       *Loop
	session    *media.Session
	ledger     *clips.Ledger
	selection  *media.Selection
	controller *preview.Controller
	players    Players
	presence   *player.Presence
	geometry   window.Store
	bus        *events.Bus
	logger     *slog.Logger

	steps    SeekSteps
	program  string
	viewport window.Viewport
	win      window.Geometry

	startInput string
	endInput   string
	playing    bool
	commands   string
}

func New(opts Options) *Workspace {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.NewBus()
	}
	geometry := opts.Geometry
	if geometry == nil {
		geometry = &memoryGeometry{}
	}
	steps := opts.Steps
	if steps == (SeekSteps{}) {
		steps = DefaultSeekSteps
	}

	w := &Workspace{
		loop:      NewLoop(logger.With("component", "loop")),
		ledger:    clips.NewLedger(opts.Clips),
		selection: media.NewSelection(),
		players:   opts.Players,
		presence:  opts.Presence,
		geometry:  geometry,
		bus:       bus,
		logger:    logger,
		steps:     steps,
		program:   opts.Program,
		viewport:  opts.Viewport,
	}
	w.session = media.NewSession(media.SessionConfig{
		Native:              opts.Native,
		Streaming:           opts.Streaming,
		Locators:            opts.Locators,
		StreamingExtensions: opts.StreamingExtensions,
		Logger:              logger.With("component", "session"),
	})
	w.controller = preview.NewController(w.session, w.notify, logger.With("component", "preview"))
	w.controller.OnStart(func(clips.Record) {
		w.playing = true
		w.publishSession()
	})
	w.session.Subscribe(w.onSessionEvent)
	w.ledger.Subscribe(w.onLedgerChange)
	return w
}

// Run drives the loop until ctx is cancelled.
func (w *Workspace) Run(ctx context.Context) {
	w.loop.Run(ctx)
}

// Stopped is closed once Run has returned.
func (w *Workspace) Stopped() <-chan struct{} {
	return w.loop.Stopped()
}

func (w *Workspace) Bus() *events.Bus { return w.bus }

func (w *Workspace) notify(text string) {
	w.bus.Message(text)
}

// fail publishes err's operator message once and returns err.
func (w *Workspace) fail(err error) error {
	if err != nil {
		w.notify(faults.Message(err))
	}
	return err
}

// do runs fn on the loop and surfaces its error.
func (w *Workspace) do(ctx context.Context, fn func() error) error {
	var opErr error
	if err := w.loop.Do(ctx, func() { opErr = fn() }); err != nil {
		return err
	}
	return opErr
}

func (w *Workspace) onSessionEvent(e media.Event) {
	w.logger.Debug("session event", "kind", e.Kind, "source", e.Source.Name, "generation", e.Generation)
	w.publishSession()
	if e.Kind != media.EventMetadata {
		w.playing = false
		w.publishSelection()
	}
}

func (w *Workspace) onLedgerChange(c clips.Change) {
	w.commands = ""
	w.bus.Publish(events.Event{Type: events.TypeClips, Data: ClipsView{Change: c.Kind, Records: w.ledger.Records()}})
}

func (w *Workspace) publishSelection() {
	w.bus.Publish(events.Event{Type: events.TypeSelection, Data: w.selectionView()})
}

func (w *Workspace) publishWindow() {
	w.bus.Publish(events.Event{Type: events.TypeWindow, Data: w.win})
}

// AddSources stats each path and appends the files not already selected.
func (w *Workspace) AddSources(ctx context.Context, paths []string) ([]media.Source, error) {
	found := make([]media.Source, 0, len(paths))
	for _, p := range paths {
		src, err := media.Stat(p)
		if err != nil {
			err = faults.Wrap(faults.ErrValidation, "add sources", "cannot read "+p, err)
			_ = w.loop.Do(ctx, func() { w.fail(err) })
			return nil, err
		}
		found = append(found, src)
	}

	var added []media.Source
	err := w.do(ctx, func() error {
		added = w.selection.Add(found...)
		if len(added) == 0 {
			w.notify("no new files added.")
			return nil
		}
		w.publishSelection()
		w.notify(fmt.Sprintf("added %d files.", len(added)))
		return nil
	})
	return added, err
}

// RemoveSource deselects the source at index. If it is playing the player
// is stopped. Its clips are kept.
func (w *Workspace) RemoveSource(ctx context.Context, index int) (media.Source, error) {
	var removed media.Source
	err := w.do(ctx, func() error {
		src, err := w.selection.Remove(index)
		if err != nil {
			return w.fail(err)
		}
		removed = src
		w.afterDeselect(src)
		return nil
	})
	return removed, err
}

// RemoveSourcePath deselects the source at path, reporting whether it was
// selected.
func (w *Workspace) RemoveSourcePath(ctx context.Context, path string) (bool, error) {
	var ok bool
	err := w.do(ctx, func() error {
		idx := w.selection.IndexOfPath(path)
		if idx < 0 {
			return nil
		}
		src, err := w.selection.Remove(idx)
		if err != nil {
			return err
		}
		ok = true
		w.afterDeselect(src)
		return nil
	})
	return ok, err
}

func (w *Workspace) afterDeselect(src media.Source) {
	if w.session.IsBoundTo(src.Key()) {
		w.stop()
	}
	w.publishSelection()
	w.notify(fmt.Sprintf("removed file: %s (its clips are kept)", src.Name))
}

// PlaySource binds the source at index and starts playback once its
// metadata arrives.
func (w *Workspace) PlaySource(ctx context.Context, index int) error {
	return w.do(ctx, func() error {
		src, ok := w.selection.Get(index)
		if !ok {
			return w.fail(faults.Wrap(faults.ErrLookup, "play source", fmt.Sprintf("no selected file at position %d", index), nil))
		}
		return w.fail(w.playSource(ctx, src))
	})
}

func (w *Workspace) playSource(ctx context.Context, src media.Source) error {
	stored, hasStored, err := w.geometry.LoadGeometry(ctx)
	if err != nil {
		w.logger.Warn("failed to load window geometry", "error", err)
		hasStored = false
	}
	if hasStored {
		w.win = stored
		w.publishWindow()
	}

	pending, err := w.session.Bind(src)
	if err != nil {
		return err
	}
	pending.Then(func(m media.Metadata) {
		if !hasStored {
			if g, ok := window.Initial(m.Width, m.Height, w.viewport); ok {
				w.win = g
				w.saveWindow(context.Background())
				w.publishWindow()
			}
		}
		if err := w.session.Play(); err != nil {
			w.logger.Warn("play failed", "source", src.Name, "error", err)
			return
		}
		w.playing = true
		w.notify("now playing: " + src.Name)
	})
	return nil
}

// Stop pauses, rewinds, remembers the window and releases the binding.
func (w *Workspace) Stop(ctx context.Context) error {
	return w.do(ctx, func() error {
		w.stop()
		return nil
	})
}

func (w *Workspace) stop() {
	if w.session.State() != media.StateBound {
		return
	}
	w.controller.Stop()
	if err := w.session.Pause(); err != nil {
		w.logger.Debug("pause on stop failed", "error", err)
	}
	if err := w.session.Seek(0); err != nil {
		w.logger.Debug("rewind on stop failed", "error", err)
	}
	w.saveWindow(context.Background())
	w.session.Release()
	w.playing = false
}

// Mark captures the current playback position into the start or end input
// and returns the stored text.
func (w *Workspace) Mark(ctx context.Context, edge Edge) (string, error) {
	var text string
	err := w.do(ctx, func() error {
		if w.session.State() != media.StateBound {
			return w.fail(faults.Validation("mark", "select and play a video first"))
		}
		text = timecode.Compact(w.session.Position())
		switch edge {
		case EdgeStart:
			w.startInput = text
			w.notify("start time marked")
		case EdgeEnd:
			w.endInput = text
			w.notify("end time marked")
		default:
			return w.fail(faults.Validation("mark", "unknown mark "+string(edge)))
		}
		w.publishSession()
		return nil
	})
	return text, err
}

// AddClipRequest overrides the marked inputs when Start or End is set.
type AddClipRequest struct {
	Start *string `json:"start,omitempty"`
	End   *string `json:"end,omitempty"`
	Host  string  `json:"host,omitempty"`
}

// AddClip appends the marked range of the playing source to the ledger and
// clears the marks.
func (w *Workspace) AddClip(ctx context.Context, req AddClipRequest) (clips.Record, error) {
	var rec clips.Record
	err := w.do(ctx, func() error {
		src, ok := w.session.Source()
		if !ok {
			return w.fail(faults.Validation("add clip", "select a video file first"))
		}
		if req.Start != nil {
			w.startInput = *req.Start
		}
		if req.End != nil {
			w.endInput = *req.End
		}
		start, okStart := timecode.Parse(w.startInput)
		end, okEnd := timecode.Parse(w.endInput)
		if !okStart || !okEnd {
			return w.fail(faults.Validation("add clip", "mark or enter start and end times first"))
		}

		r, err := w.ledger.Append(src, start, end, req.Host)
		if err != nil {
			return w.fail(err)
		}
		rec = r
		w.startInput, w.endInput = "", ""
		w.publishSession()
		w.notify(fmt.Sprintf("added clip: %s (%s - %s)", src.Name, r.Start, r.End))
		return nil
	})
	return rec, err
}

func (w *Workspace) RemoveClip(ctx context.Context, pos int) (clips.Record, error) {
	var rec clips.Record
	err := w.do(ctx, func() error {
		r, err := w.ledger.Remove(pos)
		if err != nil {
			return w.fail(err)
		}
		rec = r
		w.notify("clip removed")
		return nil
	})
	return rec, err
}

// RenameClip edits the stem and/or extension of the clip at pos.
func (w *Workspace) RenameClip(ctx context.Context, pos int, stem, ext *string) (clips.Record, error) {
	var rec clips.Record
	err := w.do(ctx, func() error {
		r, err := w.ledger.Rename(pos, stem, ext)
		if err != nil {
			return w.fail(err)
		}
		rec = r
		return nil
	})
	return rec, err
}

func (w *Workspace) ClearClips(ctx context.Context) (int, error) {
	var n int
	err := w.do(ctx, func() error {
		n = w.ledger.Clear()
		w.notify("all clips cleared")
		return nil
	})
	return n, err
}

// PreviewClip plays the clip at pos from its start and stops at its end,
// rebinding to its source first if needed.
func (w *Workspace) PreviewClip(ctx context.Context, pos int) error {
	return w.do(ctx, func() error {
		rec, err := w.ledger.Get(pos)
		if err != nil {
			return w.fail(err)
		}
		if err := w.controller.Preview(rec, w.selection.List()); err != nil {
			return w.fail(err)
		}
		return nil
	})
}

// MetadataReport is sent by the page once a handle can be decoded.
type MetadataReport struct {
	Handle string `json:"handle"`
	media.Metadata
}

// MetadataReady routes a page's metadata report to its handle. Reports for
// handles that are no longer live are dropped.
func (w *Workspace) MetadataReady(ctx context.Context, r MetadataReport) (bool, error) {
	var delivered bool
	err := w.do(ctx, func() error {
		if w.players == nil {
			return nil
		}
		delivered = w.players.DeliverMetadata(r.Handle, r.Metadata)
		return nil
	})
	return delivered, err
}

// ProgressReport is sent by the page while a handle plays.
type ProgressReport struct {
	Handle   string  `json:"handle"`
	Position float64 `json:"position"`
	Paused   bool    `json:"paused"`
}

// Progress records the playback position of the live handle and runs the
// preview auto-stop. Reports from other handles are dropped.
func (w *Workspace) Progress(ctx context.Context, r ProgressReport) (bool, error) {
	var accepted bool
	err := w.do(ctx, func() error {
		if r.Handle == "" || handleID(w.session.Handle()) != r.Handle {
			return nil
		}
		if !w.session.ReportProgress(w.session.Generation(), r.Position) {
			return nil
		}
		accepted = true
		w.playing = !r.Paused
		if w.controller.OnProgress(r.Position) {
			w.playing = false
			w.publishSession()
		}
		return nil
	})
	return accepted, err
}

// PlayerHello records a page announcement and replays the live attach to
// it.
func (w *Workspace) PlayerHello(ctx context.Context, streaming bool) error {
	return w.do(ctx, func() error {
		if w.presence != nil {
			w.presence.Hello(streaming)
		}
		if h, ok := w.session.Handle().(interface{ Replay() }); ok {
			h.Replay()
		}
		return nil
	})
}

// PlayerGone records that no player page is connected.
func (w *Workspace) PlayerGone(ctx context.Context) error {
	return w.do(ctx, func() error {
		if w.presence != nil {
			w.presence.Gone()
		}
		return nil
	})
}

// StepSeek jumps by one of the configured steps.
func (w *Workspace) StepSeek(ctx context.Context, step Step) (float64, error) {
	var delta float64
	switch step {
	case StepForward:
		delta = w.steps.Forward
	case StepBack:
		delta = -w.steps.Back
	case StepLongForward:
		delta = w.steps.LongForward
	case StepLongBack:
		delta = -w.steps.LongBack
	default:
		err := faults.Validation("seek", "unknown step "+string(step))
		_ = w.loop.Do(ctx, func() { w.fail(err) })
		return 0, err
	}
	return w.SeekBy(ctx, delta)
}

// SeekBy moves the playhead by delta seconds, clamped to the duration.
func (w *Workspace) SeekBy(ctx context.Context, delta float64) (float64, error) {
	var pos float64
	err := w.do(ctx, func() error {
		meta, ok := w.session.Metadata()
		if w.session.State() != media.StateBound || !ok || meta.Duration <= 0 {
			return w.fail(faults.Validation("seek", "play a video first"))
		}
		p, err := w.session.SeekBy(delta)
		if err != nil {
			return w.fail(err)
		}
		pos = p
		w.notify(seekMessage(delta))
		return nil
	})
	return pos, err
}

func seekMessage(delta float64) string {
	direction := "forward"
	if delta < 0 {
		direction = "back"
	}
	amount, unit := math.Abs(delta), "seconds"
	if amount >= 60 {
		amount, unit = amount/60, "minutes"
	}
	return fmt.Sprintf("%s %s %s", direction, strconv.FormatFloat(amount, 'f', -1, 64), unit)
}

// TogglePlay pauses a playing session or resumes a paused one.
func (w *Workspace) TogglePlay(ctx context.Context) (bool, error) {
	var playing bool
	err := w.do(ctx, func() error {
		if w.session.State() != media.StateBound {
			return w.fail(faults.Validation("toggle", "play a video first"))
		}
		if w.playing {
			if err := w.session.Pause(); err != nil {
				return w.fail(err)
			}
			w.playing = false
			w.notify("pause")
		} else {
			if err := w.session.Play(); err != nil {
				return w.fail(err)
			}
			w.playing = true
			w.notify("play")
		}
		playing = w.playing
		return nil
	})
	return playing, err
}

// GenerateCommands renders the ledger as transcode command lines. On a
// validation failure the placeholder text is returned with the error.
func (w *Workspace) GenerateCommands(ctx context.Context, req export.CommandRequest) (export.CommandsResponse, error) {
	var resp export.CommandsResponse
	err := w.do(ctx, func() error {
		if strings.TrimSpace(req.Program) == "" {
			req.Program = w.program
		}
		records := w.ledger.Records()
		text, err := export.BuildCommands(records, req)
		w.commands = text
		resp.Commands = text
		if err != nil {
			return w.fail(err)
		}
		resp.Count = len(records)
		return nil
	})
	return resp, err
}

// ExportEDL writes the ledger as an EDL file. Clips whose source is no
// longer selected are skipped and reported.
func (w *Workspace) ExportEDL(ctx context.Context, req export.EDLRequest) (export.EDLResponse, error) {
	var (
		records []clips.Record
		sources []media.Source
	)
	if err := w.loop.Do(ctx, func() {
		records = w.ledger.Records()
		sources = w.selection.List()
	}); err != nil {
		return export.EDLResponse{}, err
	}

	resp, err := buildEDL(records, sources, req)
	if err != nil {
		_ = w.loop.Do(ctx, func() { w.fail(err) })
		return export.EDLResponse{}, err
	}
	_ = w.loop.Do(ctx, func() {
		w.notify(fmt.Sprintf("exported %d clips to %s", resp.ClipCount, resp.OutputPath))
	})
	return resp, nil
}

func buildEDL(records []clips.Record, sources []media.Source, req export.EDLRequest) (export.EDLResponse, error) {
	if len(records) == 0 {
		return export.EDLResponse{}, faults.Validation("export edl", "add a clip first")
	}
	if err := export.ValidateOutputDir(req.OutputDir); err != nil {
		return export.EDLResponse{}, err
	}

	projectName := export.SanitizeName(req.ProjectName, 120)
	if projectName == "" {
		projectName = DefaultProjectName
	}
	frameRate := req.FrameRate
	if frameRate <= 0 {
		frameRate = export.DefaultFrameRate
	}

	resolved, unresolved := export.ResolveLedger(records, sources)
	if len(resolved) == 0 {
		return export.EDLResponse{}, faults.Wrap(faults.ErrLookup, "export edl", "none of the clips' source files are selected", nil)
	}

	edl := export.GenerateEDL(resolved, projectName, frameRate)
	outputPath, err := export.WriteEDL(req.OutputDir, projectName, edl)
	if err != nil {
		return export.EDLResponse{}, err
	}
	return export.EDLResponse{
		Status:          "ok",
		Format:          "edl",
		OutputPath:      outputPath,
		ClipCount:       len(resolved),
		UnresolvedClips: unresolved,
	}, nil
}

// Window returns the current preview window geometry.
func (w *Workspace) Window(ctx context.Context) (window.Geometry, error) {
	var g window.Geometry
	err := w.do(ctx, func() error {
		g = w.win
		return nil
	})
	return g, err
}

// SaveWindow records geometry reported by the page after a move, resize or
// rotate and persists it.
func (w *Workspace) SaveWindow(ctx context.Context, g window.Geometry) error {
	if !g.Validate() {
		err := faults.Validation("save window", "geometry values must be pixel lengths")
		_ = w.loop.Do(ctx, func() { w.fail(err) })
		return err
	}
	return w.do(ctx, func() error {
		w.win = g
		if err := w.geometry.SaveGeometry(ctx, g); err != nil {
			return fmt.Errorf("failed to save window geometry: %w", err)
		}
		return nil
	})
}

// SetViewport records the page's inner size used to fit new windows.
func (w *Workspace) SetViewport(ctx context.Context, vp window.Viewport) error {
	return w.do(ctx, func() error {
		w.viewport = vp
		return nil
	})
}

func (w *Workspace) saveWindow(ctx context.Context) {
	if w.win.IsZero() {
		return
	}
	if err := w.geometry.SaveGeometry(ctx, w.win); err != nil {
		w.logger.Warn("failed to save window geometry", "error", err)
	}
}

func handleID(h media.Handle) string {
	if x, ok := h.(interface{ ID() string }); ok {
		return x.ID()
	}
	return ""
}

type memoryGeometry struct {
	g  window.Geometry
	ok bool
}

func (m *memoryGeometry) LoadGeometry(context.Context) (window.Geometry, bool, error) {
	return m.g, m.ok, nil
}

func (m *memoryGeometry) SaveGeometry(_ context.Context, g window.Geometry) error {
	m.g, m.ok = g, true
	return nil
}
