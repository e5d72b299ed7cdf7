package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auction_scout/internal/domain"
)

type fakeRunner struct {
	mu       sync.Mutex
	runs     int
	sweeps   int
	err      error
	deadline bool
	onRun    func(n int)
}

func (f *fakeRunner) Run(ctx context.Context) (*domain.RunStats, error) {
	f.mu.Lock()
	f.runs++
	n := f.runs
	_, f.deadline = ctx.Deadline()
	err := f.err
	f.mu.Unlock()

	if f.onRun != nil {
		f.onRun(n)
	}
	if err != nil {
		return &domain.RunStats{Status: domain.SessionFailed}, err
	}
	return &domain.RunStats{Status: domain.SessionCompleted}, nil
}

func (f *fakeRunner) Sweep(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return 0, nil
}

type fakeUrgent struct {
	mu      sync.Mutex
	checks  int
	onCheck func(n int)
}

func (f *fakeUrgent) Check(ctx context.Context) ([]domain.RankedItem, error) {
	f.mu.Lock()
	f.checks++
	n := f.checks
	f.mu.Unlock()

	if f.onCheck != nil {
		f.onCheck(n)
	}
	return nil, nil
}

var testLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

func TestScheduler_RunsImmediatelyAndOnTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &fakeRunner{}
	runner.onRun = func(n int) {
		if n == 3 {
			cancel()
		}
	}

	err := NewScheduler(runner, 5*time.Millisecond, time.Minute, testLogger).Start(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, runner.runs)
	assert.True(t, runner.deadline)
	assert.Zero(t, runner.sweeps)
}

func TestScheduler_SweepsAfterFailedRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &fakeRunner{err: errors.New("store unavailable")}
	runner.onRun = func(n int) {
		if n == 2 {
			cancel()
		}
	}

	err := NewScheduler(runner, 5*time.Millisecond, time.Minute, testLogger).Start(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, runner.runs)
	// the second run fails after cancellation and is not swept
	assert.Equal(t, 1, runner.sweeps)
}

func TestScheduler_StopsWhenCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &fakeRunner{}
	err := NewScheduler(runner, time.Hour, time.Minute, testLogger).Start(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, runner.runs)
}

func TestScheduler_ChecksUrgentAfterEachRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &fakeRunner{}
	runner.onRun = func(n int) {
		if n == 3 {
			cancel()
		}
	}
	urgent := &fakeUrgent{}

	err := NewScheduler(runner, 5*time.Millisecond, time.Minute, testLogger).
		WithUrgentCheck(urgent, time.Hour).
		Start(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, runner.runs)
	// the third run ends with ctx cancelled and is not followed by a check
	assert.Equal(t, 2, urgent.checks)
}

func TestScheduler_ChecksUrgentOnOwnTicker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &fakeRunner{}
	urgent := &fakeUrgent{}
	urgent.onCheck = func(n int) {
		if n == 3 {
			cancel()
		}
	}

	err := NewScheduler(runner, time.Hour, time.Minute, testLogger).
		WithUrgentCheck(urgent, 5*time.Millisecond).
		Start(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, runner.runs)
	assert.Equal(t, 3, urgent.checks)
}

func TestScheduler_NoUrgentCheckAfterFailedRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &fakeRunner{err: errors.New("store unavailable")}
	runner.onRun = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	urgent := &fakeUrgent{}

	err := NewScheduler(runner, 5*time.Millisecond, time.Minute, testLogger).
		WithUrgentCheck(urgent, time.Hour).
		Start(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, urgent.checks)
	assert.Equal(t, 1, runner.sweeps)
}
