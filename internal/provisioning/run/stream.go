package run

import (
	"sync"

	"github.com/imamik/nexus/internal/provisioning"
)

// stream is an unbounded FIFO between the run goroutine and one consumer.
// push never blocks; the consumer reads from out until it is closed.
type stream struct {
	mu     sync.Mutex
	items  []provisioning.Snapshot
	closed bool
	notify chan struct{}
	out    chan provisioning.Snapshot
}

func newStream() *stream {
	s := &stream{
		notify: make(chan struct{}, 1),
		out:    make(chan provisioning.Snapshot),
	}
	go s.pump()
	return s
}

func (s *stream) push(snap provisioning.Snapshot) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.items = append(s.items, snap)
	s.mu.Unlock()
	s.wake()
}

// close lets the consumer drain what is queued, then closes out.
func (s *stream) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
}

func (s *stream) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *stream) pump() {
	for {
		s.mu.Lock()
		if len(s.items) == 0 {
			closed := s.closed
			s.mu.Unlock()
			if closed {
				close(s.out)
				return
			}
			<-s.notify
			continue
		}
		next := s.items[0]
		s.items = s.items[1:]
		s.mu.Unlock()

		s.out <- next
	}
}
