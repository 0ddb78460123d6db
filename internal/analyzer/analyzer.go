package analyzer

import (
	"context"
	"runtime"
	"sync"
	"time"

	"logflow/pkg/config"
	"logflow/pkg/logger"
	"logflow/pkg/logmodel"
	"logflow/pkg/metrics"
	"logflow/pkg/retry"
)

// ResultCallback receives the per-rule result map produced for one record.
type ResultCallback func(recordID string, results map[string]logmodel.AnalysisResult)

// Options configures the analyzer's worker pool and retry budget.
type Options struct {
	WorkerCount int
	// QueueCapacity bounds the number of records awaiting evaluation.
	// Unlike the collector's soft bound, this is hard: SubmitRecord rejects
	// once the queue is full.
	QueueCapacity int
	// RuleMaxRetries bounds retry attempts per rule evaluation, used when a
	// rule's own Config().MaxRetries is zero.
	RuleMaxRetries int
	// RetryBackoff supplies the backoff shape (initial/max interval,
	// multiplier) shared by every rule's retry budget; only MaxAttempts
	// varies per rule.
	RetryBackoff config.RetryConfig
}

// Analyzer evaluates incoming records against a prioritized Store of rules
// and fans the combined result set out to a callback.
type Analyzer struct {
	opts  Options
	store *Store
	m     *metrics.Metrics

	queue   chan *logmodel.LogRecord
	metrics *ruleMetrics

	mu       sync.RWMutex
	callback ResultCallback

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds an Analyzer backed by store.
func New(opts Options, store *Store, m *metrics.Metrics) *Analyzer {
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = 1
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 1000
	}
	return &Analyzer{
		opts:    opts,
		store:   store,
		m:       m,
		queue:   make(chan *logmodel.LogRecord, opts.QueueCapacity),
		metrics: newRuleMetrics(),
	}
}

// SetCallback registers the function invoked once per evaluated record with
// its combined per-rule results.
func (a *Analyzer) SetCallback(cb ResultCallback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callback = cb
}

// Start launches the worker pool and the memory sampler. They run until ctx
// is cancelled or Stop is called.
func (a *Analyzer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	for i := 0; i < a.opts.WorkerCount; i++ {
		a.wg.Add(1)
		go a.worker(ctx)
	}

	a.wg.Add(1)
	go a.sampleMemoryLoop(ctx)
}

func (a *Analyzer) sampleMemoryLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			a.metrics.sampleMemory(ms.HeapAlloc)
		}
	}
}

func (a *Analyzer) worker(ctx context.Context) {
	defer a.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-a.queue:
			if !ok {
				return
			}
			a.evaluate(ctx, rec)
		}
	}
}

// SubmitRecord enqueues rec for evaluation. It returns false if the queue is
// full, signaling the caller to drop or retry the record.
func (a *Analyzer) SubmitRecord(rec *logmodel.LogRecord) bool {
	select {
	case a.queue <- rec:
		return true
	default:
		return false
	}
}

func (a *Analyzer) evaluate(ctx context.Context, rec *logmodel.LogRecord) {
	results := make(map[string]logmodel.AnalysisResult)
	errored := false

	for _, rule := range a.store.Snapshot() {
		cfg := rule.Config()
		if !cfg.Enabled {
			continue
		}

		maxRetries := cfg.MaxRetries
		if maxRetries <= 0 {
			maxRetries = a.opts.RuleMaxRetries
		}

		start := time.Now()
		result, err := evaluateWithRetry(ctx, rule, rec, maxRetries, a.opts.RetryBackoff)
		d := time.Since(start)

		if a.m != nil {
			a.m.RecordRuleEvaluation(rule.Name(), result.Matched(), err != nil, d)
		}
		a.metrics.recordEvaluation(rule.Name(), result.Matched(), err != nil, d)

		if err != nil {
			logger.Log.Warn("rule evaluation failed", "rule", rule.Name(), "record_id", rec.ID, "error", err)
			errored = true
			results[rule.Name()] = logmodel.AnalysisResult{
				"rule":    rule.Name(),
				"group":   cfg.Group,
				"matched": "false",
				"error":   err.Error(),
			}
			continue
		}
		results[rule.Name()] = result
	}
	a.metrics.recordRecord(errored)

	a.mu.RLock()
	cb := a.callback
	a.mu.RUnlock()
	if cb != nil {
		cb(rec.ID, results)
	}
}

// evaluateWithRetry runs rule.Evaluate, retrying up to maxRetries times
// using backoffCfg's shape. maxRetries <= 0 means a single attempt, no
// retry policy involved.
func evaluateWithRetry(ctx context.Context, rule Rule, rec *logmodel.LogRecord, maxRetries int, backoffCfg config.RetryConfig) (logmodel.AnalysisResult, error) {
	if maxRetries <= 0 {
		return rule.Evaluate(rec)
	}

	backoffCfg.MaxAttempts = maxRetries + 1
	policy := retry.NewPolicy(backoffCfg)

	var result logmodel.AnalysisResult
	err := policy.Do(ctx, func() error {
		var evalErr error
		result, evalErr = rule.Evaluate(rec)
		return evalErr
	})
	return result, err
}

// GetMetrics returns a snapshot of the analyzer's evaluation counters.
func (a *Analyzer) GetMetrics() MetricsSnapshot {
	return a.metrics.snapshot(int64(len(a.queue)))
}

// Stop cancels the worker pool and waits for in-flight evaluations to
// finish or ctx to expire.
func (a *Analyzer) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
