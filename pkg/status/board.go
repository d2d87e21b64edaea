package status

import (
	"context"
	"errors"
	"time"
)

var errBoardClosed = errors.New("status board closed")

// DefaultDismiss is how long a success message stays up.
const DefaultDismiss = 3 * time.Second

type snapshot struct {
	current Status
	visible bool
}

// Board owns the current status in a single goroutine. A success status is
// hidden after the dismiss delay unless a loading status is showing by then.
type Board struct {
	dismiss time.Duration
	stream  *Stream
	now     func() time.Time

	publish chan Status
	expire  chan struct{}
	query   chan chan snapshot
	quit    chan struct{}
}

// NewBoard starts the board goroutine. stream may be nil.
func NewBoard(dismiss time.Duration, stream *Stream) *Board {
	if dismiss <= 0 {
		dismiss = DefaultDismiss
	}
	b := &Board{
		dismiss: dismiss,
		stream:  stream,
		now:     time.Now,
		publish: make(chan Status),
		expire:  make(chan struct{}),
		query:   make(chan chan snapshot),
		quit:    make(chan struct{}),
	}
	go b.loop()
	return b
}

// Publish replaces the current status. It is a no-op once the board is closed.
func (b *Board) Publish(s Status) {
	select {
	case b.publish <- s:
	case <-b.quit:
	}
}

// Current returns the latest status and whether it is still on screen.
func (b *Board) Current(ctx context.Context) (Status, bool, error) {
	reply := make(chan snapshot, 1)
	select {
	case b.query <- reply:
	case <-ctx.Done():
		return Status{}, false, ctx.Err()
	case <-b.quit:
		return Status{}, false, errBoardClosed
	}
	select {
	case snap := <-reply:
		return snap.current, snap.visible, nil
	case <-ctx.Done():
		return Status{}, false, ctx.Err()
	}
}

// Close stops the board goroutine. Safe to call more than once.
func (b *Board) Close() {
	select {
	case <-b.quit:
	default:
		close(b.quit)
	}
}

func (b *Board) loop() {
	var (
		seq  uint64
		snap snapshot
	)
	for {
		select {
		case <-b.quit:
			return
		case s := <-b.publish:
			seq++
			s.Seq = seq
			if s.At.IsZero() {
				s.At = b.now()
			}
			snap = snapshot{current: s, visible: true}
			if s.Kind == Success {
				b.scheduleDismiss()
			}
			if b.stream != nil {
				b.stream.Publish(s)
			}
		case <-b.expire:
			if snap.current.Kind != Loading {
				snap.visible = false
			}
		case reply := <-b.query:
			reply <- snap
		}
	}
}

func (b *Board) scheduleDismiss() {
	time.AfterFunc(b.dismiss, func() {
		select {
		case b.expire <- struct{}{}:
		case <-b.quit:
		}
	})
}
