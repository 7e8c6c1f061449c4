// Package doctor checks that the transcoder named in generated commands is
// installed on this machine. The agent never runs the transcoder itself; the
// probe only tells the operator whether the commands will work when pasted.
package doctor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	maxStderrBytes = 4 * 1024
	defaultTimeout = 10 * time.Second
)

// Report is the outcome of one probe.
type Report struct {
	Program   string    `json:"program"`
	Path      string    `json:"path,omitempty"`
	Available bool      `json:"available"`
	Version   string    `json:"version,omitempty"`
	Error     string    `json:"error,omitempty"`
	ProbedAt  time.Time `json:"probed_at"`
}

// Prober inspects a program on PATH.
type Prober interface {
	Probe(ctx context.Context, program string) (*Report, error)
}

// ExecProber resolves the program with exec.LookPath and runs it with a
// version flag.
type ExecProber struct {
	VersionArgs []string
	Timeout     time.Duration
	Logger      *slog.Logger

	lookPath func(string) (string, error)
}

func NewExecProber(logger *slog.Logger) *ExecProber {
	return &ExecProber{
		VersionArgs: []string{"-version"},
		Timeout:     defaultTimeout,
		Logger:      logger,
		lookPath:    exec.LookPath,
	}
}

// Probe never fails for a missing program; that is reported as unavailable.
// An error is returned only for an empty program name.
func (p *ExecProber) Probe(ctx context.Context, program string) (*Report, error) {
	program = strings.TrimSpace(program)
	if program == "" {
		return nil, errors.New("no transcoder program configured")
	}
	report := &Report{Program: program, ProbedAt: time.Now()}

	path, err := p.lookPath(program)
	if err != nil {
		report.Error = fmt.Sprintf("%s not found on PATH", program)
		p.Logger.Warn("transcoder not found", "program", program)
		return report, nil
	}
	report.Path = path
	report.Available = true

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, p.VersionArgs...)
	cmd.Stdout = &stdout
	cmd.Stderr = &limitedWriter{w: &stderr, limit: maxStderrBytes}

	if err := cmd.Run(); err != nil {
		report.Error = versionError(err, stderr.String())
		p.Logger.Warn("transcoder version check failed", "program", program, "error", report.Error)
		return report, nil
	}

	report.Version = firstLine(&stdout)
	if report.Version == "" {
		report.Version = firstLine(&stderr)
	}
	p.Logger.Info("transcoder probe complete", "program", program, "version", report.Version)
	return report, nil
}

func versionError(err error, stderrTail string) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Sprintf("version check exited %d: %s", exitErr.ExitCode(), truncate(strings.TrimSpace(stderrTail), 256))
	}
	return err.Error()
}

func firstLine(r io.Reader) string {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return line
		}
	}
	return ""
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter keeps only the last limit bytes written to it.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
