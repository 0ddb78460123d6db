package alert

import "sync"

// activeStore holds ACTIVE/PENDING alerts in memory, indexed by ID and by
// dedup key (name, labels), guarded by one mutex as spec'd.
type activeStore struct {
	mu     sync.Mutex
	byID   map[string]*Alert
	byDKey map[string]string // dedupKey -> id
}

func newActiveStore() *activeStore {
	return &activeStore{
		byID:   make(map[string]*Alert),
		byDKey: make(map[string]string),
	}
}

// findByDedupKey returns the active alert already matching (name, labels),
// if any.
func (s *activeStore) findByDedupKey(name string, labels map[string]string) *Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byDKey[dedupKey(name, labels)]
	if !ok {
		return nil
	}
	return s.byID[id]
}

// put inserts or replaces a as active.
func (s *activeStore) put(a *Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[a.ID] = a
	s.byDKey[dedupKey(a.Name, a.Labels)] = a.ID
}

// remove drops an alert from the active store (terminal transition).
func (s *activeStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	delete(s.byDKey, dedupKey(a.Name, a.Labels))
}

// get returns the active alert with id, if present.
func (s *activeStore) get(id string) (*Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	return a, ok
}

// list returns a snapshot of every active alert.
func (s *activeStore) list() []*Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Alert, 0, len(s.byID))
	for _, a := range s.byID {
		out = append(out, a)
	}
	return out
}
