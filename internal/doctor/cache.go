package doctor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultCacheTTL = 5 * time.Minute

// Cached remembers the last probe of one program for a TTL.
type Cached struct {
	prober  Prober
	program string
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.RWMutex
	cached *Report
}

func NewCached(prober Prober, program string, logger *slog.Logger) *Cached {
	return &Cached{
		prober:  prober,
		program: program,
		ttl:     defaultCacheTTL,
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the cached report if fresh, otherwise re-probes.
func (c *Cached) Get(ctx context.Context) (*Report, error) {
	c.mu.RLock()
	if c.cached != nil && c.now().Sub(c.cached.ProbedAt) < c.ttl {
		r := c.cached
		c.mu.RUnlock()
		return r, nil
	}
	c.mu.RUnlock()

	return c.Refresh(ctx)
}

// Peek returns the last report without probing. It may be nil.
func (c *Cached) Peek() *Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cached
}

// Refresh probes regardless of freshness. A failed probe falls back to the
// stale report when there is one.
func (c *Cached) Refresh(ctx context.Context) (*Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, err := c.prober.Probe(ctx, c.program)
	if err != nil {
		c.logger.Warn("transcoder probe failed", "error", err)
		if c.cached != nil {
			return c.cached, nil
		}
		return nil, err
	}
	c.cached = r
	return r, nil
}

func (c *Cached) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}
