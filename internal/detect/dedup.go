package detect

import (
	"sync"
)

// ProcessedSet is the bounded dedup tracker for request identifiers already
// handled by this process. Admission is atomic across producers: the live
// subscription and the backup scanner may report the same request at the
// same instant, and only one caller gets true.
//
// The set lives only as long as the process; a restart rebuilds it empty
// and relies on the on-chain program rejecting duplicate fulfillments.
type ProcessedSet struct {
	mu    sync.Mutex
	cap   int
	seen  map[string]struct{}
	order []string
}

// NewProcessedSet creates a tracker holding at most capacity identifiers.
// When the cap is exceeded the oldest half is evicted (approximate LRU:
// insertion order, no touch-on-read).
func NewProcessedSet(capacity int) *ProcessedSet {
	if capacity <= 0 {
		capacity = 10_000
	}
	return &ProcessedSet{
		cap:  capacity,
		seen: make(map[string]struct{}, capacity),
	}
}

// Admit records id and returns true the first time it is seen; every later
// call returns false until the id is evicted or forgotten.
func (s *ProcessedSet) Admit(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)

	if len(s.order) > s.cap {
		half := len(s.order) / 2
		for _, old := range s.order[:half] {
			delete(s.seen, old)
		}
		s.order = append(s.order[:0:0], s.order[half:]...)
	}
	return true
}

// Forget drops id so a later scan may re-admit it. Used when a fulfillment
// attempt failed before anything reached the chain (proof failure).
// The insertion-order entry goes too, so a re-admission ages from its new
// position instead of inheriting a stale eviction slot.
func (s *ProcessedSet) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[id]; !ok {
		return
	}
	delete(s.seen, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of currently tracked identifiers.
func (s *ProcessedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
