package collector

import (
	"strings"

	"logflow/pkg/logmodel"
)

// Filter decides whether an entry should be dropped before it ever reaches
// the queue. An entry is dropped iff any registered filter says to drop it.
type Filter interface {
	ShouldDrop(entry *logmodel.LogEntry) bool
}

// LevelFilter drops entries whose level ordinal is below Min.
type LevelFilter struct {
	Min logmodel.Level
}

// ShouldDrop reports whether entry is below the configured minimum level.
func (f LevelFilter) ShouldDrop(entry *logmodel.LogEntry) bool {
	return entry.Level < f.Min
}

// KeywordFilter drops entries based on keyword presence in Content.
// In inclusive mode it drops an entry if any keyword is present (a
// denylist); in exclusive mode it drops an entry if none of the keywords
// are present (an allowlist).
type KeywordFilter struct {
	Keywords  []string
	Inclusive bool
}

// ShouldDrop applies the inclusive/exclusive keyword rule.
func (f KeywordFilter) ShouldDrop(entry *logmodel.LogEntry) bool {
	content := strings.ToLower(string(entry.Content))

	anyPresent := false
	for _, kw := range f.Keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(content, strings.ToLower(kw)) {
			anyPresent = true
			break
		}
	}

	if f.Inclusive {
		return anyPresent
	}
	return !anyPresent
}
