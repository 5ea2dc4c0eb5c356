package clock

import "sync"

// Connectivity reports whether the remote store is reachable and notifies
// subscribers on every transition.
type Connectivity interface {
	// Online reports the current connectivity state.
	Online() bool

	// Subscribe returns a channel receiving the new state after each
	// transition, and a function that ends the subscription.
	Subscribe() (<-chan bool, func())
}

// Switch is a Connectivity whose state is set explicitly, either by tests or
// by a probe that periodically checks the remote store.
type Switch struct {
	mu     sync.Mutex
	online bool
	subs   map[int]chan bool
	nextID int
}

// NewSwitch creates a Switch in the given initial state.
func NewSwitch(online bool) *Switch {
	return &Switch{
		online: online,
		subs:   make(map[int]chan bool),
	}
}

// Online implements Connectivity.
func (s *Switch) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Set changes the state. Subscribers are only notified on an actual
// transition; a slow subscriber misses intermediate states but always
// observes the latest one.
func (s *Switch) Set(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.online == online {
		return
	}
	s.online = online
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- online
	}
}

// Subscribe implements Connectivity.
func (s *Switch) Subscribe() (<-chan bool, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan bool, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}
