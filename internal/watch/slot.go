package watch

import "sync"

// Slot holds the most recent Update. Publishing replaces the previous value;
// there is no backlog. Changed is signalled at most once between reads, so a
// slow subscriber sees only the latest result.
type Slot struct {
	mu      sync.Mutex
	latest  Update
	set     bool
	changed chan struct{}
}

// NewSlot returns an empty Slot.
func NewSlot() *Slot {
	return &Slot{changed: make(chan struct{}, 1)}
}

// Publish stores u and wakes a waiting subscriber.
func (s *Slot) Publish(u Update) {
	s.mu.Lock()
	s.latest = u
	s.set = true
	s.mu.Unlock()
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Latest returns the current value and whether anything was published yet.
func (s *Slot) Latest() (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.set
}

// Changed fires after Publish. Read Latest after receiving.
func (s *Slot) Changed() <-chan struct{} { return s.changed }
