package status

import "context"

// Stream fans status updates out to live listeners (the SSE endpoint) without
// locks: one goroutine owns the listener set.
type Stream struct {
	publish     chan Status
	subscribe   chan chan Status
	unsubscribe chan chan Status
}

// NewStream starts the fan-out goroutine. It lives as long as the process;
// subscribers are pruned when their context ends.
func NewStream(buffer int) *Stream {
	s := &Stream{
		publish:     make(chan Status, buffer),
		subscribe:   make(chan chan Status),
		unsubscribe: make(chan chan Status),
	}
	go s.run()
	return s
}

// Publish forwards a status to every listener. Slow listeners miss updates
// rather than stalling the dashboard.
func (s *Stream) Publish(st Status) {
	select {
	case s.publish <- st:
	default:
	}
}

// Subscribe returns a channel of updates that closes when ctx ends.
func (s *Stream) Subscribe(ctx context.Context, buffer int) <-chan Status {
	ch := make(chan Status, buffer)
	s.subscribe <- ch

	go func() {
		<-ctx.Done()
		s.unsubscribe <- ch
		close(ch)
	}()

	return ch
}

func (s *Stream) run() {
	listeners := make(map[chan Status]struct{})

	for {
		select {
		case ch := <-s.subscribe:
			listeners[ch] = struct{}{}
		case ch := <-s.unsubscribe:
			delete(listeners, ch)
		case st := <-s.publish:
			for ch := range listeners {
				select {
				case ch <- st:
				default:
				}
			}
		}
	}
}
