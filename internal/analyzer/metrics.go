package analyzer

import (
	"sync"
	"sync/atomic"
	"time"
)

// RuleMetrics accumulates per-rule evaluation statistics.
type RuleMetrics struct {
	MatchCount    int64
	ErrorCount    int64
	ProcessTimeUs int64
	LastMatchTime time.Time
}

// MetricsSnapshot is a point-in-time copy of the analyzer's counters,
// returned by GetMetrics.
type MetricsSnapshot struct {
	TotalRecords       int64
	PendingRecords     int64
	ErrorRecords       int64
	TotalProcessTimeUs int64
	PeakMemoryBytes    uint64
	PerRule            map[string]RuleMetrics
}

// ruleMetrics is the internal, mutable counterpart guarded by a single
// mutex — evaluation counts don't need per-rule locks since the analyzer's
// worker pool updates one rule's entry at a time per record.
type ruleMetrics struct {
	mu      sync.Mutex
	byRule  map[string]*RuleMetrics
	total   atomic.Int64
	errors  atomic.Int64
	procUs  atomic.Int64
	peakMem atomic.Uint64
}

func newRuleMetrics() *ruleMetrics {
	return &ruleMetrics{byRule: make(map[string]*RuleMetrics)}
}

// recordRecord counts one evaluated record, and one error record if any
// rule failed on it.
func (m *ruleMetrics) recordRecord(errored bool) {
	m.total.Add(1)
	if errored {
		m.errors.Add(1)
	}
}

func (m *ruleMetrics) recordEvaluation(rule string, matched bool, errored bool, d time.Duration) {
	m.procUs.Add(d.Microseconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	rm, ok := m.byRule[rule]
	if !ok {
		rm = &RuleMetrics{}
		m.byRule[rule] = rm
	}
	rm.ProcessTimeUs += d.Microseconds()
	if errored {
		rm.ErrorCount++
	}
	if matched {
		rm.MatchCount++
		rm.LastMatchTime = time.Now()
	}
}

func (m *ruleMetrics) sampleMemory(bytes uint64) {
	for {
		cur := m.peakMem.Load()
		if bytes <= cur {
			return
		}
		if m.peakMem.CompareAndSwap(cur, bytes) {
			return
		}
	}
}

func (m *ruleMetrics) snapshot(pending int64) MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	perRule := make(map[string]RuleMetrics, len(m.byRule))
	for name, rm := range m.byRule {
		perRule[name] = *rm
	}

	return MetricsSnapshot{
		TotalRecords:       m.total.Load(),
		PendingRecords:     pending,
		ErrorRecords:       m.errors.Load(),
		TotalProcessTimeUs: m.procUs.Load(),
		PeakMemoryBytes:    m.peakMem.Load(),
		PerRule:            perRule,
	}
}
