package api

import (
	"context"
	"errors"
	"time"
)

var errLimiterStopped = errors.New("rate limiter stopped")

// RateLimiter spaces out manual refreshes per client IP. One goroutine owns
// the table of granted slots; a client is forgotten once its cooldown has
// passed, so the table only holds recently active clients.
type RateLimiter struct {
	cooldown time.Duration
	now      func() time.Time

	reserve chan slotRequest
	cancel  chan slotRequest
	size    chan chan int
	quit    chan struct{}
}

type slotRequest struct {
	ip    string
	slot  time.Time
	reply chan time.Time
}

// NewRateLimiter returns nil when cooldown is not positive; a nil limiter
// lets every refresh through.
func NewRateLimiter(cooldown time.Duration) *RateLimiter {
	if cooldown <= 0 {
		return nil
	}
	l := &RateLimiter{
		cooldown: cooldown,
		now:      time.Now,
		reserve:  make(chan slotRequest),
		cancel:   make(chan slotRequest),
		size:     make(chan chan int),
		quit:     make(chan struct{}),
	}
	go l.loop()
	return l
}

// Close stops the limiter goroutine. Safe to call more than once.
func (l *RateLimiter) Close() {
	if l == nil {
		return
	}
	select {
	case <-l.quit:
	default:
		close(l.quit)
	}
}

// Acquire blocks until ip may refresh again and returns how long it waited.
// A client that gives up hands its slot back.
func (l *RateLimiter) Acquire(ctx context.Context, ip string) (time.Duration, error) {
	if l == nil {
		return 0, nil
	}

	req := slotRequest{ip: ip, reply: make(chan time.Time, 1)}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-l.quit:
		return 0, errLimiterStopped
	case l.reserve <- req:
	}
	slot := <-req.reply

	wait := slot.Sub(l.now())
	if wait <= 0 {
		return 0, nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return wait, nil
	case <-ctx.Done():
		select {
		case l.cancel <- slotRequest{ip: ip, slot: slot}:
		case <-l.quit:
		}
		return 0, ctx.Err()
	}
}

// clients reports how many IPs the limiter currently remembers.
func (l *RateLimiter) clients() int {
	if l == nil {
		return 0
	}
	reply := make(chan int, 1)
	select {
	case l.size <- reply:
		return <-reply
	case <-l.quit:
		return 0
	}
}

func (l *RateLimiter) loop() {
	slots := make(map[string]time.Time)

	sweep := time.NewTicker(l.cooldown)
	defer sweep.Stop()

	for {
		select {
		case <-l.quit:
			return
		case req := <-l.reserve:
			now := l.now()
			slot := now
			if last, ok := slots[req.ip]; ok && last.Add(l.cooldown).After(now) {
				slot = last.Add(l.cooldown)
			}
			slots[req.ip] = slot
			req.reply <- slot
		case req := <-l.cancel:
			// Only the newest slot can be handed back; the next caller then
			// waits for the previous one's cooldown, which ends at req.slot.
			if last, ok := slots[req.ip]; ok && last.Equal(req.slot) {
				slots[req.ip] = req.slot.Add(-l.cooldown)
			}
		case <-sweep.C:
			now := l.now()
			for ip, last := range slots {
				if !last.Add(l.cooldown).After(now) {
					delete(slots, ip)
				}
			}
		case reply := <-l.size:
			reply <- len(slots)
		}
	}
}
