package repository

import (
	"context"
	"sync"
	"time"

	"techcare/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverGuard routes calls to the primary guard and switches to the fallback when
// the primary errors, retrying the primary once per recovery interval.
type FailoverGuard struct {
	primary  domain.Guard
	fallback domain.Guard
	logger   *zerolog.Logger

	mu        sync.Mutex
	down      bool
	lastCheck time.Time
}

func NewFailoverGuard(primary, fallback domain.Guard, logger *zerolog.Logger) *FailoverGuard {
	return &FailoverGuard{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the primary should be tried for this call.
func (g *FailoverGuard) usePrimary() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.down {
		return true
	}
	if time.Since(g.lastCheck) > recoveryInterval {
		g.lastCheck = time.Now()
		return true
	}
	return false
}

func (g *FailoverGuard) markDown(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.down {
		g.logger.Error().Err(err).Msg("Primary guard failed, falling back to memory")
	}
	g.down = true
	g.lastCheck = time.Now()
}

func (g *FailoverGuard) markUp() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		g.logger.Info().Msg("Primary guard recovered")
	}
	g.down = false
}

// IsDown reports whether calls currently go to the fallback.
func (g *FailoverGuard) IsDown() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.down
}

func (g *FailoverGuard) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if g.usePrimary() {
		allowed, err := g.primary.Allow(ctx, key, limit, window)
		if err == nil {
			g.markUp()
			return allowed, nil
		}
		g.markDown(err)
	}
	return g.fallback.Allow(ctx, key, limit, window)
}

func (g *FailoverGuard) FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if g.usePrimary() {
		first, err := g.primary.FirstSeen(ctx, key, ttl)
		if err == nil {
			g.markUp()
			return first, nil
		}
		g.markDown(err)
	}
	return g.fallback.FirstSeen(ctx, key, ttl)
}

// Forget releases key on both guards since it may have been recorded on either.
func (g *FailoverGuard) Forget(ctx context.Context, key string) error {
	if err := g.fallback.Forget(ctx, key); err != nil {
		return err
	}
	if g.usePrimary() {
		if err := g.primary.Forget(ctx, key); err != nil {
			g.markDown(err)
			return err
		}
		g.markUp()
	}
	return nil
}
