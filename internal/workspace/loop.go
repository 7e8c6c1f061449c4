package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("workspace loop stopped")

type task struct {
	fn     func()
	result chan error
}

// Loop runs submitted closures one at a time on a single goroutine. Every
// state transition of the workspace happens inside a closure, so the
// session, ledger and controller never see concurrent access.
type Loop struct {
	tasks   chan task
	done    chan struct{}
	running atomic.Bool
	logger  *slog.Logger
}

func NewLoop(logger *slog.Logger) *Loop {
	return &Loop{
		tasks:  make(chan task),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Run processes closures until ctx is cancelled. A second call while the
// loop is running returns immediately.
func (l *Loop) Run(ctx context.Context) {
	if l.running.Swap(true) {
		return
	}
	defer close(l.done)

	l.logger.Info("workspace loop started")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("workspace loop stopping")
			return
		case t := <-l.tasks:
			t.result <- l.run(t.fn)
		}
	}
}

func (l *Loop) run(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("workspace task panicked", "panic", r)
			err = fmt.Errorf("workspace task panicked: %v", r)
		}
	}()
	fn()
	return nil
}

// Do runs fn on the loop and waits for it to finish. It must not be called
// from inside another closure.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	t := task{fn: fn, result: make(chan error, 1)}
	select {
	case l.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}

	select {
	case err := <-t.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stopped is closed once Run has returned.
func (l *Loop) Stopped() <-chan struct{} {
	return l.done
}
