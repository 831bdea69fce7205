package worker

import (
	"PanShare/internal/repo"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cleaner deactivates expired shares.
type Cleaner interface {
	CleanupExpiredShares(ctx context.Context) (int64, error)
}

// Locker serializes sweeps across processes.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

const sweepLockKey = "lock:share:sweep"

// Sweeper runs the expired-share cleanup on a ticker.
type Sweeper struct {
	cleaner  Cleaner
	lock     Locker
	interval time.Duration

	// running serializes passes within this process.
	running sync.Mutex
}

// NewSweeper builds a sweeper. lock may be nil for a single process.
func NewSweeper(cleaner Cleaner, lock Locker, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{cleaner: cleaner, lock: lock, interval: interval}
}

// NewRedisSweeper guards sweeps with a Redis lock held for at most one interval.
func NewRedisSweeper(cleaner Cleaner, rdb *redis.Client, interval time.Duration) *Sweeper {
	s := NewSweeper(cleaner, nil, interval)
	s.lock = repo.NewRedisLock(rdb, sweepLockKey, s.interval)
	return s
}

// Run sweeps once immediately, then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	slog.Info("share sweeper started", "interval", s.interval)
	s.SweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("share sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs one cleanup pass, skipping it when a pass is already
// running here or another process holds the lock. It returns how many
// shares it deactivated.
func (s *Sweeper) SweepOnce(ctx context.Context) int64 {
	if !s.running.TryLock() {
		return 0
	}
	defer s.running.Unlock()

	if s.lock != nil {
		if err := s.lock.Lock(ctx); err != nil {
			if !errors.Is(err, repo.ErrLockBusy) {
				slog.Warn("sweep lock failed", "error", err)
			}
			return 0
		}
		defer func() {
			if err := s.lock.Unlock(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("sweep unlock failed", "error", err)
			}
		}()
	}
	n, err := s.cleaner.CleanupExpiredShares(ctx)
	if err != nil {
		slog.Error("share sweep failed", "error", err)
		return 0
	}
	return n
}

// ExpiryHandler reacts to an expired share:expire:<id> key with a sweep.
// Other keys are ignored.
func ExpiryHandler(s *Sweeper) func(ctx context.Context, key string) {
	return func(ctx context.Context, key string) {
		id, ok := repo.ParseShareExpireKey(key)
		if !ok {
			return
		}
		slog.Debug("share expiry notification", "share_id", id)
		s.SweepOnce(ctx)
	}
}

// RunExpiryListener subscribes to Redis expiry events and sweeps when a
// share's expiry key fires. The periodic sweeper still covers missed events.
func RunExpiryListener(ctx context.Context, rdb *redis.Client, s *Sweeper) error {
	if err := repo.EnableKeyspaceNotifications(ctx, rdb); err != nil {
		slog.Warn("enable keyspace notifications failed", "error", err)
	}
	return repo.ListenRedisExpired(ctx, rdb, nil, ExpiryHandler(s))
}
