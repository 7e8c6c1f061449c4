package workspace

import (
	"context"

	"github.com/qiaofuyo/video-slice/internal/clips"
	"github.com/qiaofuyo/video-slice/internal/events"
	"github.com/qiaofuyo/video-slice/internal/media"
	"github.com/qiaofuyo/video-slice/internal/window"
)

// SessionView is the JSON form of the session and the marking inputs.
type SessionView struct {
	State      string          `json:"state"`
	Source     *media.Source   `json:"source,omitempty"`
	Backend    string          `json:"backend,omitempty"`
	Locator    string          `json:"locator,omitempty"`
	Handle     string          `json:"handle,omitempty"`
	Generation uint64          `json:"generation"`
	Position   float64         `json:"position"`
	Playing    bool            `json:"playing"`
	Metadata   *media.Metadata `json:"metadata,omitempty"`
	StartInput string          `json:"start_input"`
	EndInput   string          `json:"end_input"`
	Preview    string          `json:"preview"`
	PreviewOf  string          `json:"preview_of,omitempty"`
}

// SelectionView lists the selected sources, flagging the playing one.
type SelectionView struct {
	Sources []media.Source `json:"sources"`
	Playing int            `json:"playing"`
}

// ClipsView is published after every ledger change.
type ClipsView struct {
	Change  clips.ChangeKind `json:"change,omitempty"`
	Records []clips.Record   `json:"records"`
}

// Snapshot is the whole workspace state.
type Snapshot struct {
	Selection SelectionView   `json:"selection"`
	Session   SessionView     `json:"session"`
	Clips     []clips.Record  `json:"clips"`
	Commands  string          `json:"commands"`
	Window    window.Geometry `json:"window"`
	Steps     SeekSteps       `json:"steps"`
}

func (w *Workspace) sessionView() SessionView {
	v := SessionView{
		State:      w.session.State().String(),
		Backend:    w.session.Backend(),
		Locator:    w.session.Locator(),
		Handle:     handleID(w.session.Handle()),
		Generation: w.session.Generation(),
		Position:   w.session.Position(),
		Playing:    w.playing,
		StartInput: w.startInput,
		EndInput:   w.endInput,
		Preview:    w.controller.State().String(),
	}
	if src, ok := w.session.Source(); ok {
		v.Source = &src
	}
	if m, ok := w.session.Metadata(); ok {
		v.Metadata = &m
	}
	if rec, _, ok := w.controller.Armed(); ok {
		v.PreviewOf = rec.OutputFileName()
	}
	return v
}

func (w *Workspace) selectionView() SelectionView {
	v := SelectionView{Sources: w.selection.List(), Playing: -1}
	if src, ok := w.session.Source(); ok {
		if idx := w.selection.IndexOfPath(src.Path); idx >= 0 {
			v.Playing = idx
		}
	}
	return v
}

func (w *Workspace) publishSession() {
	w.bus.Publish(events.Event{Type: events.TypeSession, Data: w.sessionView()})
}

// Snapshot captures the current state.
func (w *Workspace) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := w.do(ctx, func() error {
		s = Snapshot{
			Selection: w.selectionView(),
			Session:   w.sessionView(),
			Clips:     w.ledger.Records(),
			Commands:  w.commands,
			Window:    w.win,
			Steps:     w.steps,
		}
		return nil
	})
	return s, err
}

// Sources lists the selected sources.
func (w *Workspace) Sources(ctx context.Context) (SelectionView, error) {
	var v SelectionView
	err := w.do(ctx, func() error {
		v = w.selectionView()
		return nil
	})
	return v, err
}

// Session describes the media session.
func (w *Workspace) Session(ctx context.Context) (SessionView, error) {
	var v SessionView
	err := w.do(ctx, func() error {
		v = w.sessionView()
		return nil
	})
	return v, err
}

// Clips lists the ledger in order.
func (w *Workspace) Clips(ctx context.Context) ([]clips.Record, error) {
	var recs []clips.Record
	err := w.do(ctx, func() error {
		recs = w.ledger.Records()
		return nil
	})
	return recs, err
}
