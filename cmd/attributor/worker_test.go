package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowattr-lab/internal/config"
	"flowattr-lab/internal/domain/models"
	"flowattr-lab/internal/domain/services"
	"flowattr-lab/pkg/logger"
)

type fakeRunner struct {
	mu      sync.Mutex
	fails   int
	err     error
	windows []models.Timeframe
}

func (f *fakeRunner) Run(_ context.Context, window models.Timeframe) (*models.RunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = append(f.windows, window)
	if len(f.windows) <= f.fails {
		return nil, f.err
	}
	return &models.RunSummary{Window: window, Status: models.RunStatusCompleted}, nil
}

func (f *fakeRunner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.windows)
}

type fakeLock struct {
	released bool
}

func (l *fakeLock) KeepAlive(ctx context.Context, _ time.Duration) error {
	<-ctx.Done()
	return nil
}

func (l *fakeLock) Release(context.Context) error {
	l.released = true
	return nil
}

type fakeLocker struct {
	lock *fakeLock
	err  error
}

func (f *fakeLocker) acquire(context.Context) (heldLock, error) {
	if f.err != nil || f.lock == nil {
		return nil, f.err
	}
	return f.lock, nil
}

func testWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		LockTTL:        time.Minute,
		LockRefresh:    time.Second,
		MaxRetries:     2,
		BaseRetryDelay: time.Millisecond,
		MaxRetryDelay:  2 * time.Millisecond,
	}
}

func newTestWorker(r runner, locks locker) *AttributorWorker {
	attr := config.AttributionConfig{Window: time.Hour, Interval: time.Minute}
	return NewAttributorWorker(r, locks, testWorkerConfig(), attr, logger.NewNop())
}

func TestCalculateBackoff(t *testing.T) {
	base, maxDelay := 30*time.Second, 5*time.Minute

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{5, 5 * time.Minute},
		{40, 5 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, calculateBackoff(tt.attempt, base, maxDelay), "attempt %d", tt.attempt)
	}
}

func TestWorker_CurrentWindow(t *testing.T) {
	w := newTestWorker(&fakeRunner{}, nil)
	now := time.Date(2022, 10, 4, 13, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	window := w.currentWindow()
	assert.Equal(t, now.Add(-time.Hour), window.Start)
	assert.Equal(t, now, window.End)
}

func TestWorker_RetriesUntilSuccess(t *testing.T) {
	r := &fakeRunner{fails: 2, err: errors.New("store unavailable")}
	w := newTestWorker(r, nil)

	require.NoError(t, w.RunOnce(context.Background()))
	assert.Equal(t, 3, r.calls())
}

func TestWorker_GivesUpAfterMaxRetries(t *testing.T) {
	storeErr := errors.New("store unavailable")
	r := &fakeRunner{fails: 10, err: storeErr}
	w := newTestWorker(r, nil)

	err := w.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
	assert.Equal(t, 3, r.calls())
}

func TestWorker_RunInProgressIsNotRetried(t *testing.T) {
	r := &fakeRunner{fails: 10, err: services.ErrRunInProgress}
	w := newTestWorker(r, nil)

	assert.ErrorIs(t, w.RunOnce(context.Background()), services.ErrRunInProgress)
	assert.Equal(t, 1, r.calls())
}

func TestWorker_Locking(t *testing.T) {
	t.Run("held elsewhere", func(t *testing.T) {
		r := &fakeRunner{}
		w := newTestWorker(r, &fakeLocker{})

		require.NoError(t, w.RunOnce(context.Background()))
		assert.Zero(t, r.calls())
	})

	t.Run("acquire error", func(t *testing.T) {
		r := &fakeRunner{}
		w := newTestWorker(r, &fakeLocker{err: errors.New("redis down")})

		assert.Error(t, w.RunOnce(context.Background()))
		assert.Zero(t, r.calls())
	})

	t.Run("acquired", func(t *testing.T) {
		r := &fakeRunner{}
		lock := &fakeLock{}
		w := newTestWorker(r, &fakeLocker{lock: lock})

		require.NoError(t, w.RunOnce(context.Background()))
		assert.Equal(t, 1, r.calls())
		assert.True(t, lock.released)
	})
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	r := &fakeRunner{}
	w := newTestWorker(r, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return r.calls() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
