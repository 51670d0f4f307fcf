package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flowattr-lab/internal/config"
	"flowattr-lab/internal/domain/models"
	"flowattr-lab/internal/domain/services"
	"flowattr-lab/internal/infrastructure/cache"
	"flowattr-lab/pkg/logger"
)

const lockName = "attributor:worker"

// runner performs one attribution run
type runner interface {
	Run(ctx context.Context, window models.Timeframe) (*models.RunSummary, error)
}

type heldLock interface {
	KeepAlive(ctx context.Context, interval time.Duration) error
	Release(ctx context.Context) error
}

// locker hands out the worker lock; a nil lock means another instance holds it
type locker interface {
	acquire(ctx context.Context) (heldLock, error)
}

type redisLocker struct {
	cache *cache.RedisCache
	ttl   time.Duration
}

func (r redisLocker) acquire(ctx context.Context) (heldLock, error) {
	lock, err := r.cache.AcquireLock(ctx, lockName, r.ttl)
	if err != nil || lock == nil {
		return nil, err
	}
	return lock, nil
}

// AttributorWorker runs attribution periodically over a trailing window
type AttributorWorker struct {
	runner   runner
	locks    locker
	cfg      config.WorkerConfig
	window   time.Duration
	interval time.Duration
	logger   *logger.Logger
	now      func() time.Time
}

// NewAttributorWorker creates a worker. locks may be nil, in which case
// runs are not coordinated across instances.
func NewAttributorWorker(r runner, locks locker, cfg config.WorkerConfig, attr config.AttributionConfig, log *logger.Logger) *AttributorWorker {
	return &AttributorWorker{
		runner:   r,
		locks:    locks,
		cfg:      cfg,
		window:   attr.Window,
		interval: attr.Interval,
		logger:   log.WithComponent("attributor"),
		now:      time.Now,
	}
}

// Run executes once immediately, then on every interval until ctx ends
func (w *AttributorWorker) Run(ctx context.Context) {
	w.logger.Info().
		Dur("interval", w.interval).
		Dur("window", w.window).
		Bool("locking", w.locks != nil).
		Msg("attributor worker started")

	w.runWithLockAndRetry(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("attributor worker stopped")
			return
		case <-ticker.C:
			w.runWithLockAndRetry(ctx)
		}
	}
}

// RunOnce executes a single locked run and returns its error
func (w *AttributorWorker) RunOnce(ctx context.Context) error {
	return w.runWithLockAndRetry(ctx)
}

func (w *AttributorWorker) runWithLockAndRetry(ctx context.Context) error {
	if w.locks == nil {
		return w.runWithRetry(ctx)
	}

	lock, err := w.locks.acquire(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to acquire lock")
		return err
	}
	if lock == nil {
		w.logger.Info().Msg("another instance is running attribution, skipping")
		return nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			w.logger.Warn().Err(err).Msg("failed to release lock")
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := lock.KeepAlive(runCtx, w.cfg.LockRefresh); err != nil {
			w.logger.Error().Err(err).Msg("lost worker lock, aborting run")
			cancel()
		}
	}()

	return w.runWithRetry(runCtx)
}

func (w *AttributorWorker) runWithRetry(ctx context.Context) error {
	var lastErr error

	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(attempt, w.cfg.BaseRetryDelay, w.cfg.MaxRetryDelay)
			w.logger.Info().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("retrying attribution after backoff")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = w.runAttribution(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, services.ErrRunInProgress) || ctx.Err() != nil {
			return lastErr
		}

		w.logger.Warn().
			Err(lastErr).
			Int("attempt", attempt+1).
			Int("max_attempts", w.cfg.MaxRetries+1).
			Msg("attribution run failed")
	}

	w.logger.Error().
		Err(lastErr).
		Int("attempts", w.cfg.MaxRetries+1).
		Msg("attribution failed after all retries")
	return fmt.Errorf("attribution failed after %d attempts: %w", w.cfg.MaxRetries+1, lastErr)
}

func (w *AttributorWorker) runAttribution(ctx context.Context) error {
	window := w.currentWindow()
	summary, err := w.runner.Run(ctx, window)
	if err != nil {
		return err
	}

	w.logger.Info().
		Str("run_id", summary.ID.String()).
		Int("records", summary.Records).
		Int("hosts", summary.Hosts).
		Int("edges", summary.Edges).
		Int("labeled", summary.Labeled).
		Int64("duration_ms", summary.DurationMS).
		Msg("attribution run completed")
	return nil
}

// currentWindow is [now-window, now)
func (w *AttributorWorker) currentWindow() models.Timeframe {
	end := w.now().UTC()
	return models.NewTimeframe(end.Add(-w.window), end)
}

// calculateBackoff doubles base per attempt, capped at max
func calculateBackoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay >= maxDelay {
			break
		}
		delay *= 2
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
