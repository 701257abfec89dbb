package dispatcher

import "sync"

// Slot holds the current dispatcher instance. Drains of a superseded
// instance see they are stale and return without side effects.
type Slot struct {
	mu      sync.Mutex
	current *Dispatcher
}

// Install makes d current and returns the previous instance.
func (s *Slot) Install(d *Dispatcher) *Dispatcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.current
	s.current = d
	return prev
}

func (s *Slot) Current() *Dispatcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Slot) IsCurrent(d *Dispatcher) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current == d
}

var defaultSlot = &Slot{}

// Default is the process-wide slot used by the server.
func Default() *Slot {
	return defaultSlot
}
