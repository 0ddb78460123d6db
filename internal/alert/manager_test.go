package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"logflow/internal/store"
	"logflow/pkg/logmodel"
)

// fakeStore is a minimal in-memory store.RecordStore for alert manager tests.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*logmodel.LogRecord
	order   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*logmodel.LogRecord)}
}

func (s *fakeStore) Save(_ context.Context, rec *logmodel.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return store.ErrRecordNotFound
	}
	s.records[rec.ID] = rec
	s.order = append([]string{rec.ID}, s.order...)
	return nil
}

func (s *fakeStore) Upsert(_ context.Context, rec *logmodel.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; !ok {
		s.order = append([]string{rec.ID}, s.order...)
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*logmodel.LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	return rec, nil
}

func (s *fakeStore) Search(_ context.Context, _ store.SearchFilter, limit int) ([]*logmodel.LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*logmodel.LogRecord
	for _, id := range s.order {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, s.records[id])
	}
	return out, nil
}

func (s *fakeStore) CountByLevel(_ context.Context, _, _ *time.Time) (map[logmodel.Level]int64, error) {
	return nil, nil
}

// fakeChannel records every alert it's asked to send.
type fakeChannel struct {
	name string
	mu   sync.Mutex
	sent []*Alert
}

func (c *fakeChannel) Name() string { return c.name }
func (c *fakeChannel) Type() string { return "fake" }
func (c *fakeChannel) Send(_ context.Context, a *Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, a)
	return nil
}

func (c *fakeChannel) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func newTestManager(opts Options) *Manager {
	return New(opts, nil, nil, nil)
}

func TestManager_CheckAlerts_TriggersNewAlert(t *testing.T) {
	mgr := newTestManager(Options{SuppressDuplicates: true})
	mgr.AddRule(NewKeywordRule(RuleConfig{Name: "crash"}, "message", []string{"panic"}, false))

	rec := &logmodel.LogRecord{ID: "log-1", Source: "host-1", Message: "goroutine panic"}
	ids := mgr.CheckAlerts(context.Background(), rec, nil)
	if len(ids) != 1 {
		t.Fatalf("CheckAlerts() returned %d ids, want 1", len(ids))
	}

	active := mgr.GetActiveAlerts()
	if len(active) != 1 {
		t.Fatalf("GetActiveAlerts() returned %d, want 1", len(active))
	}
	if active[0].Count != 1 {
		t.Errorf("Count = %d, want 1", active[0].Count)
	}
	if active[0].Status != StatusActive {
		t.Errorf("Status = %q, want ACTIVE", active[0].Status)
	}
}

func TestManager_CheckAlerts_DedupesAndIncrementsCount(t *testing.T) {
	mgr := newTestManager(Options{SuppressDuplicates: true})
	mgr.AddRule(NewKeywordRule(RuleConfig{Name: "crash"}, "message", []string{"panic"}, false))

	first := mgr.CheckAlerts(context.Background(), &logmodel.LogRecord{ID: "log-1", Message: "panic 1"}, nil)
	second := mgr.CheckAlerts(context.Background(), &logmodel.LogRecord{ID: "log-2", Message: "panic 2"}, nil)

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("CheckAlerts() ids = %v, %v", first, second)
	}
	if first[0] != second[0] {
		t.Fatalf("dedup should return the same alert id, got %q and %q", first[0], second[0])
	}

	a, ok := mgr.GetAlert(first[0])
	if !ok {
		t.Fatalf("GetAlert(%q) not found", first[0])
	}
	if a.Count != 2 {
		t.Errorf("Count = %d, want 2", a.Count)
	}
	if len(a.RelatedLogIDs) != 2 {
		t.Errorf("RelatedLogIDs = %v, want 2 entries", a.RelatedLogIDs)
	}
}

func TestManager_CheckAlerts_NoSuppression_AlwaysTriggersNew(t *testing.T) {
	mgr := newTestManager(Options{SuppressDuplicates: false})
	mgr.AddRule(NewKeywordRule(RuleConfig{Name: "crash"}, "message", []string{"panic"}, false))

	first := mgr.CheckAlerts(context.Background(), &logmodel.LogRecord{ID: "log-1", Message: "panic 1"}, nil)
	second := mgr.CheckAlerts(context.Background(), &logmodel.LogRecord{ID: "log-2", Message: "panic 2"}, nil)

	if first[0] == second[0] {
		t.Fatalf("without suppression, expected distinct alert ids, got the same %q", first[0])
	}
	if len(mgr.GetActiveAlerts()) != 2 {
		t.Fatalf("GetActiveAlerts() = %d, want 2", len(mgr.GetActiveAlerts()))
	}
}

func TestManager_ResolveAlert_IsIdempotent(t *testing.T) {
	mgr := newTestManager(Options{})
	mgr.AddRule(NewKeywordRule(RuleConfig{Name: "crash"}, "message", []string{"panic"}, false))
	ids := mgr.CheckAlerts(context.Background(), &logmodel.LogRecord{ID: "log-1", Message: "panic"}, nil)

	if ok := mgr.ResolveAlert(context.Background(), ids[0], "fixed"); !ok {
		t.Fatalf("ResolveAlert() first call = false, want true")
	}
	if ok := mgr.ResolveAlert(context.Background(), ids[0], "fixed again"); ok {
		t.Fatalf("ResolveAlert() second call = true, want false (already resolved)")
	}
	if _, ok := mgr.GetAlert(ids[0]); ok {
		t.Errorf("resolved alert should no longer be active")
	}
}

func TestManager_AlertCallback_FiresOnTriggerAndResolve(t *testing.T) {
	mgr := newTestManager(Options{})
	mgr.AddRule(NewKeywordRule(RuleConfig{Name: "crash"}, "message", []string{"panic"}, false))

	var mu sync.Mutex
	var statuses []Status
	mgr.SetAlertCallback(func(_ string, status Status) {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, status)
	})

	ids := mgr.CheckAlerts(context.Background(), &logmodel.LogRecord{ID: "log-1", Message: "panic"}, nil)
	mgr.ResolveAlert(context.Background(), ids[0], "")

	mu.Lock()
	defer mu.Unlock()
	if len(statuses) != 2 || statuses[0] != StatusActive || statuses[1] != StatusResolved {
		t.Fatalf("statuses = %v, want [ACTIVE RESOLVED]", statuses)
	}
}

func TestManager_Dispatch_SendsToEveryChannel(t *testing.T) {
	mgr := newTestManager(Options{BatchSize: 10})
	mgr.AddRule(NewKeywordRule(RuleConfig{Name: "crash"}, "message", []string{"panic"}, false))

	ch1 := &fakeChannel{name: "email"}
	ch2 := &fakeChannel{name: "webhook"}
	mgr.AddChannel(ch1)
	mgr.AddChannel(ch2)

	mgr.CheckAlerts(context.Background(), &logmodel.LogRecord{ID: "log-1", Message: "panic"}, nil)
	mgr.drainAndNotify(context.Background())

	if ch1.sentCount() != 1 || ch2.sentCount() != 1 {
		t.Fatalf("channel sent counts = %d, %d, want 1, 1", ch1.sentCount(), ch2.sentCount())
	}
}

func TestManager_GetAlertHistory_ReadsFromStore(t *testing.T) {
	fs := newFakeStore()
	mgr := New(Options{}, nil, fs, nil)

	a := &Alert{ID: "alert-1", Name: "disk-full", Status: StatusResolved, Timestamp: nowTimestamp(), UpdateTime: nowTimestamp()}
	rec, err := a.toLogRecord()
	if err != nil {
		t.Fatalf("toLogRecord() error = %v", err)
	}
	if err := fs.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)
	history, err := mgr.GetAlertHistory(context.Background(), start, end, 10, 0)
	if err != nil {
		t.Fatalf("GetAlertHistory() error = %v", err)
	}
	if len(history) != 1 || history[0].ID != "alert-1" {
		t.Fatalf("GetAlertHistory() = %+v, want one alert-1", history)
	}
}

func TestManager_GroupThrottling_SuppressesRepeatDispatch(t *testing.T) {
	mgr := newTestManager(Options{BatchSize: 10, GroupInterval: time.Hour})
	mgr.AddRule(NewKeywordRule(RuleConfig{Name: "crash", Group: "infra"}, "message", []string{"panic"}, false))

	ch := &fakeChannel{name: "webhook"}
	mgr.AddChannel(ch)

	mgr.CheckAlerts(context.Background(), &logmodel.LogRecord{ID: "log-1", Message: "panic"}, nil)
	mgr.drainAndNotify(context.Background())

	ids := mgr.CheckAlerts(context.Background(), &logmodel.LogRecord{ID: "log-2", Message: "panic again"}, nil)
	_ = ids
	mgr.enqueueNotify(mgr.GetActiveAlerts()[0])
	mgr.drainAndNotify(context.Background())

	if ch.sentCount() != 1 {
		t.Fatalf("sentCount = %d, want 1 (second dispatch should be throttled within GroupInterval)", ch.sentCount())
	}
}
