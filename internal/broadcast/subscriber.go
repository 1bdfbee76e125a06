package broadcast

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// Subscriber is one live listener. Messages arrive on C until Done is closed.
// C itself is never closed, so a late send cannot panic.
type Subscriber struct {
	ID string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	rooms     mapset.Set[string]
}

func newSubscriber(id string, buffer int) *Subscriber {
	return &Subscriber{
		ID:    id,
		send:  make(chan []byte, buffer),
		done:  make(chan struct{}),
		rooms: mapset.NewSet[string](),
	}
}

func (s *Subscriber) C() <-chan []byte { return s.send }

func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Rooms lists the rooms the subscriber is in.
func (s *Subscriber) Rooms() []string { return s.rooms.ToSlice() }

// offer is a non-blocking send.
func (s *Subscriber) offer(data []byte) bool {
	if s.closed() {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

func (s *Subscriber) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}
