package ui

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/getlantern/systray"

	"github.com/qiaofuyo/video-slice/internal/events"
	"github.com/qiaofuyo/video-slice/internal/workspace"
)

//go:embed icon.png
var iconBytes []byte

// Controls is what the tray menu can drive.
type Controls interface {
	TogglePlay(ctx context.Context) (bool, error)
	Stop(ctx context.Context) error
	ClearClips(ctx context.Context) (int, error)
}

type Tray struct {
	controls Controls
	bus      *events.Bus
	logger   *slog.Logger

	statusItem *systray.MenuItem
	clipsItem  *systray.MenuItem

	mu sync.Mutex

	onQuit func()
}

type TrayConfig struct {
	Controls Controls
	Bus      *events.Bus
	Logger   *slog.Logger
	OnQuit   func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		controls: cfg.Controls,
		bus:      cfg.Bus,
		logger:   cfg.Logger,
		onQuit:   cfg.OnQuit,
	}
}

// Run blocks on the platform event loop. It must be called from the main
// goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Video Slice")
	systray.SetTooltip("Video Slice agent")

	t.statusItem = systray.AddMenuItem(statusTitle(workspace.SessionView{State: "empty"}), "Current playback")
	t.statusItem.Disable()

	t.clipsItem = systray.AddMenuItem(clipsTitle(0), "Clips in the ledger")
	t.clipsItem.Disable()

	systray.AddSeparator()

	clicks := make(chan menuAction)
	for _, action := range menuActions() {
		item := systray.AddMenuItem(action.title, action.tooltip)
		go func() {
			for range item.ClickedCh {
				clicks <- action
			}
		}()
	}

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Video Slice")

	ctx, cancel := context.WithCancel(context.Background())
	if t.bus != nil {
		go t.follow(ctx)
	}

	go func() {
		defer cancel()
		for {
			select {
			case action := <-clicks:
				if err := action.run(ctx, t.controls); err != nil {
					t.logger.Debug("tray action failed", "action", action.title, "error", err)
				}
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

// menuAction is one clickable entry between the status lines and Quit.
type menuAction struct {
	title   string
	tooltip string
	run     func(ctx context.Context, c Controls) error
}

func menuActions() []menuAction {
	return []menuAction{
		{"Play / Pause", "Toggle playback", func(ctx context.Context, c Controls) error {
			_, err := c.TogglePlay(ctx)
			return err
		}},
		{"Stop", "Stop playback and release the file", func(ctx context.Context, c Controls) error {
			return c.Stop(ctx)
		}},
		{"Clear Clips", "Remove every clip from the ledger", func(ctx context.Context, c Controls) error {
			_, err := c.ClearClips(ctx)
			return err
		}},
	}
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

// follow mirrors session and ledger changes into the menu.
func (t *Tray) follow(ctx context.Context) {
	ch, unsubscribe := t.bus.Subscribe(32)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			switch data := e.Data.(type) {
			case workspace.SessionView:
				t.UpdateStatus(data)
			case workspace.ClipsView:
				t.UpdateClipsCount(len(data.Records))
			}
		}
	}
}

func (t *Tray) UpdateStatus(v workspace.SessionView) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.statusItem != nil {
		t.statusItem.SetTitle(statusTitle(v))
	}
}

func (t *Tray) UpdateClipsCount(count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.clipsItem != nil {
		t.clipsItem.SetTitle(clipsTitle(count))
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}

func statusTitle(v workspace.SessionView) string {
	if v.Source == nil {
		return "Status: Idle"
	}
	verb := "Paused"
	switch {
	case v.Preview == "clip_preview":
		verb = "Previewing"
	case v.Playing:
		verb = "Playing"
	case v.Metadata == nil:
		verb = "Loading"
	}
	return fmt.Sprintf("%s: %s (%s)", verb, v.Source.Name, humanize.Bytes(uint64(v.Source.Size)))
}

func clipsTitle(count int) string {
	return fmt.Sprintf("Clips: %s", humanize.Comma(int64(count)))
}
