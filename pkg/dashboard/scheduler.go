package dashboard

import (
	"context"
	"time"
)

// DefaultInterval is the time between automatic refreshes.
const DefaultInterval = 30 * time.Second

// Refresher runs one refresh cycle.
type Refresher interface {
	Refresh(ctx context.Context) (RefreshResult, error)
}

// Scheduler refreshes once at start, then on a fixed interval and whenever
// Trigger is called. A manual refresh restarts the interval. Cycles never
// overlap: triggers arriving while one runs collapse into a single follow-up.
type Scheduler struct {
	refresher Refresher
	interval  time.Duration
	trigger   chan struct{}
}

func NewScheduler(r Refresher, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		refresher: r,
		interval:  interval,
		trigger:   make(chan struct{}, 1),
	}
}

// Trigger asks for a refresh. It reports false when one is already pending.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cycle(ctx, "startup")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.cycle(ctx, "timer")
		case <-s.trigger:
			ticker.Reset(s.interval)
			s.cycle(ctx, "manual")
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context, reason string) {
	res, err := s.refresher.Refresh(ctx)
	entry := log.WithField("trigger", reason).WithField("cycle", res.CycleID)
	if err != nil {
		entry.Debugf("refresh failed: %v", err)
		return
	}
	entry.Debugf("refresh done: %d markers", res.Markers)
}
