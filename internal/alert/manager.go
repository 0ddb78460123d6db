package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"logflow/internal/store"
	"logflow/pkg/audit"
	"logflow/pkg/cache"
	"logflow/pkg/logger"
	"logflow/pkg/logmodel"
	"logflow/pkg/metrics"
)

const (
	cacheAlertTTL = 7 * 24 * time.Hour
)

// AlertCallback is invoked once per status transition: new alert, resolve,
// or ignore. A duplicate folded into an existing alert does not invoke it.
type AlertCallback func(id string, status Status)

// Options configures the Alert Manager's worker pool and cadence.
type Options struct {
	WorkerCount        int
	BatchSize          int
	CheckInterval      time.Duration
	ResendInterval     time.Duration
	GroupInterval      time.Duration
	SuppressDuplicates bool
}

// Manager is the Alert Manager: rule evaluation, dedup, the active-alert
// state machine, and notification fan-out.
type Manager struct {
	opts  Options
	cache cache.Cache
	store store.RecordStore
	m     *metrics.Metrics
	audit audit.Logger

	rulesMu sync.RWMutex
	rules   []AlertRule

	channelsMu sync.RWMutex
	channels   []Channel

	active *activeStore

	pendingMu sync.Mutex
	pending   []*Alert

	groupMu       sync.Mutex
	lastNotified  map[string]time.Time // group -> last notify time

	callbackMu sync.RWMutex
	callback   AlertCallback

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a Manager. cache and store may be nil, in which case
// persistence is skipped (useful in tests).
func New(opts Options, c cache.Cache, s store.RecordStore, m *metrics.Metrics) *Manager {
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 30 * time.Second
	}
	if opts.ResendInterval <= 0 {
		opts.ResendInterval = 10 * time.Minute
	}
	return &Manager{
		opts:         opts,
		cache:        c,
		store:        s,
		m:            m,
		audit:        &audit.NoopLogger{},
		active:       newActiveStore(),
		lastNotified: make(map[string]time.Time),
	}
}

// SetAuditLogger replaces the Manager's audit trail sink. The default is a
// no-op logger; pass one from audit.New to record rule/channel/lifecycle
// changes.
func (mgr *Manager) SetAuditLogger(l audit.Logger) {
	mgr.audit = l
}

func (mgr *Manager) record(ctx context.Context, action audit.Action, resourceID string, meta map[string]any) {
	entry := audit.NewEntry().Service("alert-manager").Action(action).Outcome(audit.OutcomeSuccess).
		Resource("alert", resourceID).Build()
	for k, v := range meta {
		entry.Metadata[k] = v
	}
	if err := mgr.audit.Log(ctx, entry); err != nil {
		logger.Log.Warn("failed to record audit entry", "action", action, "error", err)
	}
}

// AddRule appends an alert rule.
func (mgr *Manager) AddRule(r AlertRule) {
	mgr.rulesMu.Lock()
	mgr.rules = append(mgr.rules, r)
	mgr.rulesMu.Unlock()
	mgr.record(context.Background(), audit.ActionRuleAdded, r.Name(), map[string]any{"group": r.Group()})
}

// RemoveRule drops the rule named name.
func (mgr *Manager) RemoveRule(name string) {
	mgr.rulesMu.Lock()
	out := mgr.rules[:0]
	for _, r := range mgr.rules {
		if r.Name() != name {
			out = append(out, r)
		}
	}
	mgr.rules = out
	mgr.rulesMu.Unlock()
	mgr.record(context.Background(), audit.ActionRuleRemoved, name, nil)
}

// ClearRules removes every rule.
func (mgr *Manager) ClearRules() {
	mgr.rulesMu.Lock()
	defer mgr.rulesMu.Unlock()
	mgr.rules = nil
}

func (mgr *Manager) ruleSnapshot() []AlertRule {
	mgr.rulesMu.RLock()
	defer mgr.rulesMu.RUnlock()
	out := make([]AlertRule, len(mgr.rules))
	copy(out, mgr.rules)
	return out
}

// AddChannel registers a notification channel.
func (mgr *Manager) AddChannel(ch Channel) {
	mgr.channelsMu.Lock()
	mgr.channels = append(mgr.channels, ch)
	mgr.channelsMu.Unlock()
	mgr.record(context.Background(), audit.ActionChannelAdded, ch.Name(), map[string]any{"type": ch.Type()})
}

// RemoveChannel drops the channel named name.
func (mgr *Manager) RemoveChannel(name string) {
	mgr.channelsMu.Lock()
	out := mgr.channels[:0]
	for _, c := range mgr.channels {
		if c.Name() != name {
			out = append(out, c)
		}
	}
	mgr.channels = out
	mgr.channelsMu.Unlock()
	mgr.record(context.Background(), audit.ActionChannelRemoved, name, nil)
}

// ClearChannels removes every channel.
func (mgr *Manager) ClearChannels() {
	mgr.channelsMu.Lock()
	defer mgr.channelsMu.Unlock()
	mgr.channels = nil
}

func (mgr *Manager) channelSnapshot() []Channel {
	mgr.channelsMu.RLock()
	defer mgr.channelsMu.RUnlock()
	out := make([]Channel, len(mgr.channels))
	copy(out, mgr.channels)
	return out
}

// SetAlertCallback registers the function invoked on every status
// transition.
func (mgr *Manager) SetAlertCallback(fn AlertCallback) {
	mgr.callbackMu.Lock()
	defer mgr.callbackMu.Unlock()
	mgr.callback = fn
}

func (mgr *Manager) notify(id string, status Status) {
	mgr.callbackMu.RLock()
	cb := mgr.callback
	mgr.callbackMu.RUnlock()
	if cb != nil {
		cb(id, status)
	}
}

// CheckAlerts evaluates every rule against rec/results. For each rule whose
// Check returns true, GenerateAlert produces a candidate Alert; duplicate
// suppression folds it into an existing active alert when enabled,
// otherwise TriggerAlert mints a new one. Returns the ids touched.
func (mgr *Manager) CheckAlerts(ctx context.Context, rec *logmodel.LogRecord, results map[string]logmodel.AnalysisResult) []string {
	var ids []string
	for _, rule := range mgr.ruleSnapshot() {
		if !rule.Check(rec, results) {
			continue
		}
		candidate := rule.GenerateAlert(rec, results)
		if g := rule.Group(); g != "" {
			if candidate.Labels == nil {
				candidate.Labels = map[string]string{}
			}
			candidate.Labels["group"] = g
		}

		if mgr.opts.SuppressDuplicates {
			if existing := mgr.active.findByDedupKey(candidate.Name, candidate.Labels); existing != nil {
				mgr.dedupeInto(ctx, existing, rec)
				ids = append(ids, existing.ID)
				continue
			}
		}

		id, err := mgr.TriggerAlert(ctx, candidate)
		if err != nil {
			logger.Log.Error("failed to trigger alert", "rule", rule.Name(), "error", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (mgr *Manager) dedupeInto(ctx context.Context, existing *Alert, rec *logmodel.LogRecord) {
	existing.Count++
	existing.UpdateTime = nowTimestamp()
	existing.RelatedLogIDs = append(existing.RelatedLogIDs, rec.ID)
	mgr.active.put(existing)
	mgr.persist(ctx, existing)
}

// TriggerAlert assigns an id, marks the alert ACTIVE, stores it, and
// enqueues it for notification.
func (mgr *Manager) TriggerAlert(ctx context.Context, a *Alert) (string, error) {
	a.ID = "alert-" + uuid.NewString()
	a.Status = StatusActive
	a.Count = 1
	a.Timestamp = nowTimestamp()
	a.UpdateTime = a.Timestamp

	mgr.active.put(a)
	mgr.persist(ctx, a)
	mgr.enqueueNotify(a)

	if mgr.m != nil {
		mgr.m.RecordAlertTriggered(a.Name)
	}
	mgr.record(ctx, audit.ActionAlertTriggered, a.ID, map[string]any{"rule": a.Name, "level": a.Level.String()})
	mgr.notify(a.ID, a.Status)

	return a.ID, nil
}

// ResolveAlert transitions id to RESOLVED. Returns false if id is not
// currently active (idempotent: a second ResolveAlert call is a no-op).
func (mgr *Manager) ResolveAlert(ctx context.Context, id, comment string) bool {
	return mgr.terminate(ctx, id, StatusResolved, comment)
}

// IgnoreAlert transitions id to IGNORED. Returns false if id is not
// currently active.
func (mgr *Manager) IgnoreAlert(ctx context.Context, id, comment string) bool {
	return mgr.terminate(ctx, id, StatusIgnored, comment)
}

func (mgr *Manager) terminate(ctx context.Context, id string, status Status, comment string) bool {
	a, ok := mgr.active.get(id)
	if !ok {
		return false
	}

	a.Status = status
	a.UpdateTime = nowTimestamp()
	if comment != "" {
		if a.Annotations == nil {
			a.Annotations = map[string]string{}
		}
		a.Annotations["comment"] = comment
	}

	mgr.active.remove(id)
	mgr.persist(ctx, a)

	action := audit.ActionAlertResolved
	if status == StatusIgnored {
		action = audit.ActionAlertIgnored
	}
	mgr.record(ctx, action, id, map[string]any{"comment": comment})

	mgr.notify(id, status)
	return true
}

// GetAlert returns the active alert with id, if any is currently active.
// Resolved/ignored alerts are retrieved through GetAlertHistory instead.
func (mgr *Manager) GetAlert(id string) (*Alert, bool) {
	return mgr.active.get(id)
}

// GetActiveAlerts returns a snapshot of every ACTIVE alert.
func (mgr *Manager) GetActiveAlerts() []*Alert {
	return mgr.active.list()
}

// GetAlertHistory queries the relational store for alerts in [start, end],
// applying limit/offset after the store's own ordering (most recent
// first).
func (mgr *Manager) GetAlertHistory(ctx context.Context, start, end time.Time, limit, offset int) ([]*Alert, error) {
	if mgr.store == nil {
		return nil, fmt.Errorf("alert history store not configured")
	}

	recs, err := mgr.store.Search(ctx, store.SearchFilter{StartTime: &start, EndTime: &end}, limit+offset)
	if err != nil {
		return nil, err
	}

	var alerts []*Alert
	for _, rec := range recs {
		a, err := fromLogRecord(rec)
		if err != nil || a == nil {
			continue
		}
		alerts = append(alerts, a)
	}

	if offset >= len(alerts) {
		return nil, nil
	}
	end2 := offset + limit
	if end2 > len(alerts) || limit <= 0 {
		end2 = len(alerts)
	}
	return alerts[offset:end2], nil
}

func (mgr *Manager) persist(ctx context.Context, a *Alert) {
	if mgr.cache != nil {
		if data, err := a.MarshalJSON(); err == nil {
			if err := mgr.cache.Set(ctx, "alert:"+a.ID, data, cacheAlertTTL); err != nil {
				logger.Log.Warn("failed to cache alert", "alert_id", a.ID, "error", err)
			}
		}
		mgr.updateStatusSets(ctx, a)
	}

	if mgr.store != nil {
		rec, err := a.toLogRecord()
		if err != nil {
			logger.Log.Error("failed to encode alert for storage", "alert_id", a.ID, "error", err)
			return
		}
		if err := mgr.store.Upsert(ctx, rec); err != nil {
			logger.Log.Error("failed to persist alert", "alert_id", a.ID, "error", err)
		}
	}
}

func (mgr *Manager) updateStatusSets(ctx context.Context, a *Alert) {
	for _, status := range []Status{StatusPending, StatusActive, StatusResolved, StatusIgnored} {
		key := "alerts:" + string(status)
		if status == a.Status {
			_ = mgr.cache.SAdd(ctx, key, a.ID)
		} else {
			_ = mgr.cache.SRem(ctx, key, a.ID)
		}
	}
	if a.Status == StatusActive {
		_ = mgr.cache.SAdd(ctx, "alerts:active", a.ID)
	} else {
		_ = mgr.cache.SRem(ctx, "alerts:active", a.ID)
	}
}

func (mgr *Manager) enqueueNotify(a *Alert) {
	mgr.pendingMu.Lock()
	defer mgr.pendingMu.Unlock()
	mgr.pending = append(mgr.pending, a)
}

// Start launches the notifier and resend driver tasks.
func (mgr *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	mgr.cancel = cancel

	mgr.wg.Add(2)
	go mgr.notifyLoop(ctx)
	go mgr.resendLoop(ctx)
}

// Stop cancels both driver tasks and waits for them to finish or ctx to
// expire.
func (mgr *Manager) Stop(ctx context.Context) error {
	if mgr.cancel != nil {
		mgr.cancel()
	}
	done := make(chan struct{})
	go func() {
		mgr.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (mgr *Manager) notifyLoop(ctx context.Context) {
	defer mgr.wg.Done()

	ticker := time.NewTicker(mgr.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mgr.drainAndNotify(ctx)
		}
	}
}

func (mgr *Manager) drainAndNotify(ctx context.Context) {
	mgr.pendingMu.Lock()
	n := mgr.opts.BatchSize
	if n > len(mgr.pending) {
		n = len(mgr.pending)
	}
	batch := mgr.pending[:n]
	mgr.pending = mgr.pending[n:]
	mgr.pendingMu.Unlock()

	for _, a := range batch {
		mgr.dispatch(ctx, a)
	}
}

// dispatch fans a out to every channel, serialized (one dispatch per alert
// per notifier tick), honoring per-group throttling.
func (mgr *Manager) dispatch(ctx context.Context, a *Alert) {
	if mgr.throttledByGroup(a) {
		return
	}

	for _, ch := range mgr.channelSnapshot() {
		start := time.Now()
		err := ch.Send(ctx, a)
		if mgr.m != nil {
			mgr.m.RecordAlertNotify(ch.Name(), err == nil, time.Since(start))
		}
		if err != nil {
			logger.Log.Warn("alert channel delivery failed", "channel", ch.Name(), "alert_id", a.ID, "error", err)
		}
	}
}

// throttledByGroup reports whether a's group was notified within the last
// GroupInterval, recording this notification's time if not.
func (mgr *Manager) throttledByGroup(a *Alert) bool {
	if mgr.opts.GroupInterval <= 0 {
		return false
	}
	group := a.Labels["group"]
	if group == "" {
		group = a.Name
	}

	mgr.groupMu.Lock()
	defer mgr.groupMu.Unlock()

	last, ok := mgr.lastNotified[group]
	now := time.Now()
	if ok && now.Sub(last) < mgr.opts.GroupInterval {
		return true
	}
	mgr.lastNotified[group] = now
	return false
}

func (mgr *Manager) resendLoop(ctx context.Context) {
	defer mgr.wg.Done()

	ticker := time.NewTicker(mgr.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mgr.resendStale()
		}
	}
}

func (mgr *Manager) resendStale() {
	now := time.Now()
	for _, a := range mgr.active.list() {
		updated, err := logmodel.ParseTimestamp(a.UpdateTime)
		if err != nil {
			continue
		}
		if now.Sub(updated) > mgr.opts.ResendInterval {
			a.UpdateTime = nowTimestamp()
			mgr.active.put(a)
			mgr.enqueueNotify(a)
		}
	}
}
