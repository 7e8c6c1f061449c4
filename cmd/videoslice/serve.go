package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/qiaofuyo/video-slice/internal/api"
	"github.com/qiaofuyo/video-slice/internal/clips"
	"github.com/qiaofuyo/video-slice/internal/config"
	"github.com/qiaofuyo/video-slice/internal/db"
	"github.com/qiaofuyo/video-slice/internal/doctor"
	"github.com/qiaofuyo/video-slice/internal/events"
	"github.com/qiaofuyo/video-slice/internal/logging"
	"github.com/qiaofuyo/video-slice/internal/playback"
	"github.com/qiaofuyo/video-slice/internal/player"
	"github.com/qiaofuyo/video-slice/internal/state"
	"github.com/qiaofuyo/video-slice/internal/ui"
	"github.com/qiaofuyo/video-slice/internal/watcher"
	"github.com/qiaofuyo/video-slice/internal/window"
	"github.com/qiaofuyo/video-slice/internal/workspace"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var headless bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent: API, playback server and system tray",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, headless || cfg.Headless())
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "Run without the system tray")
	return cmd
}

func serve(parent context.Context, cfg *config.EnvConfig, headless bool) error {
	startTime := time.Now()

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel(), cfg.LogFormat())
	logger.Info("starting video slice agent",
		"version", config.Version,
		"data_dir", logging.SanitizePath(cfg.DataDir()),
		"config_file_loaded", cfg.FileLoaded(),
	)

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return errors.New("another video slice agent is already running for this data directory")
	}
	defer lock.Unlock()

	database, err := db.Open(parent, cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := state.NewRepository(database.SQL())
	authToken, err := state.EnsureAuthToken(parent, repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Video Slice agent %s\n", config.Version)
	fmt.Printf("  API URL:    %s\n", api.BaseURL(cfg.Port()))
	fmt.Printf("  Auth Token: %s\n", authToken)
	fmt.Println()

	bus := events.NewBus()
	hub := api.NewHub(bus, logging.WithComponent(logger, "ws"))
	players := player.NewRegistry()
	presence := &player.Presence{}
	locators := playback.NewRegistry(api.BaseURL(cfg.Port()))

	ws := workspace.New(workspace.Options{
		Native:              player.NewNative(hub, players),
		Streaming:           player.NewStreaming(hub, players, presence),
		Locators:            locators,
		StreamingExtensions: cfg.StreamingExtensions(),
		Players:             players,
		Presence:            presence,
		Geometry:            state.NewGeometryStore(repo),
		Bus:                 bus,
		Clips:               clips.Options{DefaultExt: cfg.DefaultExtension()},
		Steps: workspace.SeekSteps{
			Forward:     cfg.SeekForward(),
			Back:        cfg.SeekBack(),
			LongForward: cfg.SeekLongForward(),
			LongBack:    cfg.SeekLongBack(),
		},
		Viewport: window.Viewport{Width: cfg.ViewportWidth(), Height: cfg.ViewportHeight()},
		Program:  cfg.Program(),
		Logger:   logging.WithComponent(logger, "workspace"),
	})

	runCtx, cancel := context.WithCancel(parent)
	defer cancel()
	go ws.Run(runCtx)

	srcWatcher, err := watcher.New(logging.WithComponent(logger, "watcher"))
	if err != nil {
		logger.Warn("source watcher unavailable", "error", err)
	} else {
		srcWatcher.OnChange(func(path string, event watcher.EventType) {
			if event != watcher.EventDelete {
				return
			}
			if _, err := ws.RemoveSourcePath(runCtx, path); err != nil {
				logger.Warn("failed to deselect vanished file", "path", logging.SanitizePath(path), "error", err)
			}
		})
		go srcWatcher.Run(runCtx)
		go followSelection(runCtx, bus, srcWatcher, logger)
		defer srcWatcher.Stop()
	}

	doctorLogger := logging.WithComponent(logger, "doctor")
	transcoder := doctor.NewCached(doctor.NewExecProber(doctorLogger), cfg.Program(), doctorLogger)
	go func() {
		if _, err := transcoder.Refresh(runCtx); err != nil {
			logger.Warn("transcoder check failed", "error", err)
		}
	}()

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		Workspace:      ws,
		Hub:            hub,
		Locators:       locators,
		PlaybackServer: playback.NewServer(logging.WithComponent(logger, "playback")),
		Presence:       presence,
		Repository:     repo,
		Doctor:         transcoder,
		Logger:         logger,
		StartTime:      startTime,
		Version:        config.Version,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	quitCh := make(chan struct{})
	var quitOnce sync.Once
	quit := func() { quitOnce.Do(func() { close(quitCh) }) }
	var tray *ui.Tray
	if !headless {
		tray = ui.NewTray(ui.TrayConfig{
			Controls: ws,
			Bus:      bus,
			Logger:   logging.WithComponent(logger, "tray"),
			OnQuit: quit,
		})
	}

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
		case err := <-serverErr:
			logger.Error("stopping after server failure", "error", err)
		case <-quitCh:
			return
		}
		quit()
		if tray != nil {
			tray.Quit()
		}
	}()

	if tray == nil {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray.Run()
	}
	<-quitCh

	logger.Info("initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := ws.Stop(shutdownCtx); err != nil {
		logger.Debug("stop on shutdown", "error", err)
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	cancel()
	<-ws.Stopped()
	bus.Close()

	logger.Info("shutdown complete")
	return nil
}

// followSelection keeps the watcher on the currently selected files.
func followSelection(ctx context.Context, bus *events.Bus, w *watcher.FSWatcher, logger *slog.Logger) {
	ch, unsubscribe := bus.Subscribe(64)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			view, ok := e.Data.(workspace.SelectionView)
			if !ok {
				continue
			}
			paths := make([]string, 0, len(view.Sources))
			for _, src := range view.Sources {
				paths = append(paths, src.Path)
			}
			if err := w.Sync(paths); err != nil {
				logger.Warn("failed to watch selected files", "error", err)
			}
		}
	}
}
