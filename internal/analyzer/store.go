package analyzer

import (
	"sort"
	"sync"
)

// Store holds the active ruleset, sorted by descending priority. Ties keep
// insertion order.
type Store struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewStore returns an empty rule store.
func NewStore() *Store {
	return &Store{}
}

// AddRule appends a rule and re-sorts by priority.
func (s *Store) AddRule(r Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, r)
	sort.SliceStable(s.rules, func(i, j int) bool {
		return s.rules[i].Config().Priority > s.rules[j].Config().Priority
	})
}

// ClearRules removes every rule.
func (s *Store) ClearRules() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = nil
}

// Snapshot returns a priority-ordered copy of the active rules, safe to
// range over without holding the store's lock.
func (s *Store) Snapshot() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// EnableGroup enables every rule whose Config().Group equals group.
func (s *Store) EnableGroup(group string) {
	s.setGroupEnabled(group, true)
}

// DisableGroup disables every rule whose Config().Group equals group.
func (s *Store) DisableGroup(group string) {
	s.setGroupEnabled(group, false)
}

func (s *Store) setGroupEnabled(group string, enabled bool) {
	for _, r := range s.Snapshot() {
		if r.Config().Group == group {
			r.SetEnabled(enabled)
		}
	}
}
