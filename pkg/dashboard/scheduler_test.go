package dashboard

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	calls   int32
	started chan struct{}
	release chan struct{}
}

func newFakeRefresher() *fakeRefresher {
	return &fakeRefresher{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (f *fakeRefresher) Refresh(ctx context.Context) (RefreshResult, error) {
	atomic.AddInt32(&f.calls, 1)
	f.started <- struct{}{}
	select {
	case <-f.release:
	case <-ctx.Done():
	}
	return RefreshResult{}, nil
}

func (f *fakeRefresher) count() int32 { return atomic.LoadInt32(&f.calls) }

func waitStarted(t *testing.T, f *fakeRefresher) {
	t.Helper()
	select {
	case <-f.started:
	case <-time.After(time.Second):
		t.Fatal("refresh did not start")
	}
}

func TestSchedulerRefreshesAtStartAndOnTrigger(t *testing.T) {
	t.Parallel()

	f := newFakeRefresher()
	close(f.release)
	s := NewScheduler(f, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitStarted(t, f)
	assert.True(t, s.Trigger())
	waitStarted(t, f)
	assert.Equal(t, int32(2), f.count())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestSchedulerCoalescesTriggers(t *testing.T) {
	t.Parallel()

	f := newFakeRefresher()
	s := NewScheduler(f, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitStarted(t, f)
	require.True(t, s.Trigger())
	assert.False(t, s.Trigger())
	assert.False(t, s.Trigger())
	close(f.release)

	waitStarted(t, f)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), f.count())
}

func TestSchedulerTicks(t *testing.T) {
	t.Parallel()

	f := newFakeRefresher()
	close(f.release)
	s := NewScheduler(f, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitStarted(t, f)
	waitStarted(t, f)
	waitStarted(t, f)
	assert.GreaterOrEqual(t, f.count(), int32(3))
}

func TestSchedulerManualRefreshRestartsInterval(t *testing.T) {
	t.Parallel()

	const interval = 200 * time.Millisecond
	f := newFakeRefresher()
	close(f.release)
	s := NewScheduler(f, interval)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitStarted(t, f)
	time.Sleep(interval * 3 / 4)
	require.True(t, s.Trigger())
	waitStarted(t, f)
	manual := time.Now()

	// The tick that was due a quarter interval from now must not come.
	select {
	case <-f.started:
		t.Fatalf("timer refresh %s after the manual one", time.Since(manual))
	case <-time.After(interval / 2):
	}

	waitStarted(t, f)
	assert.GreaterOrEqual(t, time.Since(manual), interval*3/4)
	assert.Equal(t, int32(3), f.count())
}

func TestNewSchedulerDefaultInterval(t *testing.T) {
	t.Parallel()

	s := NewScheduler(newFakeRefresher(), 0)
	assert.Equal(t, DefaultInterval, s.interval)
}
