// Package collector ingests raw log lines, filters and batches them, and
// forwards the batches to a user-supplied sink over the transport client.
package collector

import (
	"bytes"
	"compress/zlib"
	"context"
	"io"
	"sync"
	"time"

	"logflow/pkg/logger"
	"logflow/pkg/logmodel"
	"logflow/pkg/metrics"
	"logflow/pkg/retry"
)

// SubmitResult reports the outcome of one Submit call.
type SubmitResult int

const (
	Accepted SubmitResult = iota
	Filtered
)

// Sink pushes one batch downstream (typically a transport.Client.Send per
// entry, or one framed call per batch). A non-nil error triggers the retry
// policy; after the policy is exhausted ErrorCallback is invoked.
type Sink func(ctx context.Context, batch []logmodel.LogEntry) error

// Options configures batching, retry, and compression thresholds.
type Options struct {
	QueueCapacity       int
	WorkerCount         int
	BatchSize           int
	BatchInterval       time.Duration
	CompressionMinBytes int // 0 disables compression
	Retry               retry.Policy
}

// Collector filters, batches, optionally compresses, and forwards log
// entries to Sink. The queue bound is soft: Submit always accepts an entry,
// scheduling a background Flush when the queue grows past QueueCapacity,
// rather than rejecting the caller outright.
type Collector struct {
	opts Options
	sink Sink
	m    *metrics.Metrics

	errorCallback func(error)

	filtersMu sync.RWMutex
	filters   []Filter

	queue *queue

	workers chan struct{} // counting semaphore bounding concurrent sink calls

	wg        sync.WaitGroup
	cancel    context.CancelFunc
	tailersMu sync.Mutex
	tailers   []*Tailer
}

// New builds a Collector. sink is called from a worker goroutine, never
// from Flush's caller.
func New(opts Options, sink Sink, m *metrics.Metrics) *Collector {
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.BatchInterval <= 0 {
		opts.BatchInterval = time.Second
	}
	return &Collector{
		opts:    opts,
		sink:    sink,
		m:       m,
		queue:   newQueue(),
		workers: make(chan struct{}, opts.WorkerCount),
	}
}

// SetErrorCallback registers the terminal-failure callback invoked once a
// batch exhausts its retry budget.
func (c *Collector) SetErrorCallback(fn func(error)) {
	c.errorCallback = fn
}

// Start begins the periodic flusher, which runs until ctx is cancelled or
// Shutdown is called.
func (c *Collector) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.flushLoop(ctx)
}

func (c *Collector) flushLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.BatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Flush(ctx)
		}
	}
}

// AddFilter appends a filter to the active set.
func (c *Collector) AddFilter(f Filter) {
	c.filtersMu.Lock()
	defer c.filtersMu.Unlock()
	c.filters = append(c.filters, f)
}

// ClearFilters removes every registered filter.
func (c *Collector) ClearFilters() {
	c.filtersMu.Lock()
	defer c.filtersMu.Unlock()
	c.filters = nil
}

func (c *Collector) shouldDrop(entry *logmodel.LogEntry) bool {
	c.filtersMu.RLock()
	filters := make([]Filter, len(c.filters))
	copy(filters, c.filters)
	c.filtersMu.RUnlock()

	for _, f := range filters {
		if f.ShouldDrop(entry) {
			return true
		}
	}
	return false
}

// Submit applies all filters and, if the entry survives, enqueues it. When
// CompressionMinBytes is nonzero and content is at least that long, content is
// replaced by its zlib form; a compression failure falls back to the
// original bytes rather than dropping the entry.
func (c *Collector) Submit(ctx context.Context, content []byte, level logmodel.Level) SubmitResult {
	entry := logmodel.LogEntry{Content: content, Level: level, Timestamp: time.Now()}

	if c.shouldDrop(&entry) {
		if c.m != nil {
			c.m.RecordCollectorDrop("filtered")
		}
		return Filtered
	}

	if c.opts.CompressionMinBytes > 0 && len(content) >= c.opts.CompressionMinBytes {
		if compressed, ok := compress(content); ok {
			entry.Content = compressed
			entry.Compressed = true
		}
	}

	size := c.queue.Push(entry)
	if c.m != nil {
		c.m.RecordCollectorSubmit("collector")
		c.m.CollectorQueueDepth.Set(float64(size))
	}

	if c.opts.QueueCapacity > 0 && size > c.opts.QueueCapacity {
		go c.Flush(ctx)
	}

	return Accepted
}

// SubmitBatch submits each of contents at level and returns the number
// accepted (not filtered).
func (c *Collector) SubmitBatch(ctx context.Context, contents [][]byte, level logmodel.Level) int {
	accepted := 0
	for _, content := range contents {
		if c.Submit(ctx, content, level) == Accepted {
			accepted++
		}
	}
	return accepted
}

// Flush drains up to BatchSize entries from the head of the queue and hands
// them to a worker goroutine, which owns the sink call and its retries.
// Flush itself never blocks on the sink.
func (c *Collector) Flush(ctx context.Context) {
	batch := c.queue.PopUpTo(c.opts.BatchSize)
	if len(batch) == 0 {
		return
	}
	if c.m != nil {
		c.m.CollectorQueueDepth.Set(float64(c.queue.Size()))
	}

	c.wg.Add(1)
	go c.runSink(ctx, batch)
}

func (c *Collector) runSink(ctx context.Context, batch []logmodel.LogEntry) {
	defer c.wg.Done()

	c.workers <- struct{}{}
	defer func() { <-c.workers }()

	start := time.Now()
	err := c.opts.Retry.Do(ctx, func() error {
		return c.sink(ctx, batch)
	})
	if c.m != nil {
		c.m.CollectorFlushDuration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		logger.Log.Error("collector batch sink failed permanently", "batch_size", len(batch), "error", err)
		if c.errorCallback != nil {
			c.errorCallback(err)
		}
	}
}

// compress returns content's zlib-compressed form. ok is false if
// compression failed, in which case the caller should keep the original.
func compress(content []byte) (out []byte, ok bool) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(content); err != nil {
		return nil, false
	}
	if err := w.Close(); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

// Decompress reverses compress, for callers (archival, test fixtures) that
// need the original bytes back.
func Decompress(content []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// CollectFromFile spawns a Tailer reading path at level, polling every
// pollInterval and consuming up to maxLinesPerRound lines per round. The
// tailer is tracked so Shutdown stops it along with everything else.
func (c *Collector) CollectFromFile(ctx context.Context, path string, level logmodel.Level, pollInterval time.Duration, maxLinesPerRound int) (*Tailer, error) {
	t := NewTailer(TailerOptions{
		Path:             path,
		Level:            level,
		PollInterval:     pollInterval,
		MaxLinesPerRound: maxLinesPerRound,
	}, c.Submit)

	if err := t.Start(ctx); err != nil {
		return nil, err
	}

	c.tailersMu.Lock()
	c.tailers = append(c.tailers, t)
	c.tailersMu.Unlock()

	return t, nil
}

// Shutdown stops the flusher and all tailers, performs a final Flush, and
// waits for in-flight sink calls to finish or ctx to expire.
func (c *Collector) Shutdown(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}

	c.tailersMu.Lock()
	for _, t := range c.tailers {
		t.Stop()
	}
	c.tailersMu.Unlock()

	c.Flush(ctx)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
