// Package preview plays a single clip's range and stops it at the clip's end.
package preview

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/qiaofuyo/video-slice/internal/clips"
	"github.com/qiaofuyo/video-slice/internal/faults"
	"github.com/qiaofuyo/video-slice/internal/media"
	"github.com/qiaofuyo/video-slice/internal/timecode"
)

// EndOfClipMessage is sent once when an armed preview reaches its end.
const EndOfClipMessage = "end of clip"

type State int

const (
	StateIdle State = iota
	StateClipPreview
)

func (s State) String() string {
	if s == StateClipPreview {
		return "clip_preview"
	}
	return "idle"
}

// Controller runs clip previews on top of a media.Session. It disarms
// whenever the session binds or releases.
//
// Controller has no locks. It must be driven from the session's goroutine.
type Controller struct {
	session *media.Session
	notify  func(string)
	onStart func(clips.Record)
	logger  *slog.Logger

	state  State
	stopAt float64
	clip   clips.Record
}

func NewController(session *media.Session, notify func(string), logger *slog.Logger) *Controller {
	if notify == nil {
		notify = func(string) {}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Controller{session: session, notify: notify, logger: logger}
	session.Subscribe(c.onSessionEvent)
	return c
}

// OnStart registers fn to run each time a preview has issued play.
func (c *Controller) OnStart(fn func(clips.Record)) {
	c.onStart = fn
}

// Preview plays rec from its start and arms a stop at its end. If the
// session is not bound to the clip's source it is rebound first and playback
// begins once metadata arrives.
func (c *Controller) Preview(rec clips.Record, sources []media.Source) error {
	src, err := clips.ResolveSource(rec, sources)
	if err != nil {
		return err
	}
	start, okStart := timecode.Parse(rec.Start)
	end, okEnd := timecode.Parse(rec.End)
	if !okStart || !okEnd || start >= end {
		return faults.Validation("preview clip", "clip has an invalid time range")
	}

	begin := func(media.Metadata) {
		c.begin(rec, float64(start), float64(end))
	}

	if c.session.IsBoundTo(src.Key()) {
		if p := c.session.Pending(); p != nil {
			p.Then(begin)
			return nil
		}
	}

	pending, err := c.session.Bind(src)
	if err != nil {
		return err
	}
	pending.Then(begin)
	return nil
}

func (c *Controller) begin(rec clips.Record, start, end float64) {
	if err := c.session.Seek(start); err != nil {
		c.logger.Warn("preview seek failed", "clip", rec.OutputFileName(), "error", err)
		return
	}
	c.state = StateClipPreview
	c.stopAt = end
	c.clip = rec
	if err := c.session.Play(); err != nil {
		c.logger.Warn("preview play failed", "clip", rec.OutputFileName(), "error", err)
	} else if c.onStart != nil {
		c.onStart(rec)
	}
	c.notify(fmt.Sprintf("playing clip: %s (%s - %s)", rec.SourceName, rec.Start, rec.End))
}

// OnProgress checks a playback position against the armed stop. It reports
// whether the stop fired.
func (c *Controller) OnProgress(position float64) bool {
	if c.state != StateClipPreview || position < c.stopAt {
		return false
	}
	stopAt := c.stopAt
	c.disarm()

	if err := c.session.Pause(); err != nil {
		c.logger.Warn("auto-stop pause failed", "error", err)
	}
	if err := c.session.Seek(stopAt); err != nil {
		c.logger.Warn("auto-stop seek failed", "error", err)
	}
	c.notify(EndOfClipMessage)
	return true
}

// Stop disarms any active preview without touching playback.
func (c *Controller) Stop() {
	c.disarm()
}

func (c *Controller) State() State { return c.state }

// Armed returns the clip being previewed and its stop position.
func (c *Controller) Armed() (clips.Record, float64, bool) {
	return c.clip, c.stopAt, c.state == StateClipPreview
}

func (c *Controller) disarm() {
	c.state = StateIdle
	c.stopAt = 0
	c.clip = clips.Record{}
}

func (c *Controller) onSessionEvent(e media.Event) {
	switch e.Kind {
	case media.EventBound, media.EventReleased:
		c.disarm()
	}
}
