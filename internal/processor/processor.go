// Package processor accepts framed log payloads over TCP, parses them,
// archives the raw and structured forms, and forwards records to the
// analyzer.
package processor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"logflow/internal/parser"
	"logflow/internal/store"
	"logflow/pkg/cache"
	"logflow/pkg/logger"
	"logflow/pkg/logmodel"
	"logflow/pkg/metrics"
	"logflow/pkg/ratelimit"
)

const archiveTTL = 7 * 24 * time.Hour

// ForwardFunc hands a parsed record to the analyzer. It returns false if
// the analyzer's queue is full; the processor logs this but does not
// retry — the record has already been archived by the time Forward runs.
type ForwardFunc func(rec *logmodel.LogRecord) bool

// ProcessCallback is invoked once per drained frame with its assigned id
// and whether parsing succeeded. Archive failures and a rejected forward are
// logged and do not change the reported success.
type ProcessCallback func(id string, success bool)

// Options configures the processor's queue, drain cadence, and archival.
type Options struct {
	QueueCapacity   int
	WorkerCount     int
	ProcessInterval time.Duration
	BatchSize       int
	CompressArchive bool
}

// Processor drains queued LogData on a timer, parses each via its parser
// Registry, archives raw+structured forms, and forwards records onward.
type Processor struct {
	opts    Options
	queue   *queue
	forward ForwardFunc
	cache   cache.Cache
	store   store.RecordStore
	m       *metrics.Metrics

	registryMu sync.RWMutex
	registry   *parser.Registry

	limiter ratelimit.Limiter

	callbackMu sync.RWMutex
	callback   ProcessCallback

	seq atomic.Uint64

	connsMu sync.Mutex
	conns   map[string]string // connId -> remote addr

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a Processor. cache/recordStore may be nil (archival skipped,
// useful in tests); limiter may be nil (no rate limiting).
func New(opts Options, forward ForwardFunc, c cache.Cache, s store.RecordStore, limiter ratelimit.Limiter, m *metrics.Metrics) *Processor {
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = 1
	}
	if opts.ProcessInterval <= 0 {
		opts.ProcessInterval = time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Processor{
		opts:     opts,
		queue:    newQueue(opts.QueueCapacity),
		forward:  forward,
		cache:    c,
		store:    s,
		m:        m,
		registry: parser.NewRegistry(),
		limiter:  limiter,
		conns:    make(map[string]string),
	}
}

// AddParser registers p with the processor's parser registry.
func (p *Processor) AddParser(parserImpl parser.Parser) {
	p.registryMu.Lock()
	defer p.registryMu.Unlock()
	p.registry.Add(parserImpl)
}

// ClearParsers removes every registered parser.
func (p *Processor) ClearParsers() {
	p.registryMu.Lock()
	defer p.registryMu.Unlock()
	p.registry.Clear()
}

// SetProcessCallback registers the function invoked once per drained frame.
func (p *Processor) SetProcessCallback(fn ProcessCallback) {
	p.callbackMu.Lock()
	defer p.callbackMu.Unlock()
	p.callback = fn
}

// SubmitLogData enqueues data for processing. It returns false if the
// queue is already at capacity — callers must treat this as "rejected",
// not retry internally.
func (p *Processor) SubmitLogData(data logmodel.LogData) bool {
	if data.ID == "" {
		data.ID = uuid.NewString()
	}
	ok := p.queue.Push(data)
	if p.m != nil {
		p.m.ProcessorQueueDepth.Set(float64(p.queue.Size()))
	}
	return ok
}

// HandleFrame adapts a transport.Handler to the processor: it records the
// connection's remote address, rate-limits by it if a Limiter is
// configured, and submits the frame as LogData.
func (p *Processor) HandleFrame(ctx context.Context, connID, remoteAddr string, frame []byte) {
	p.connsMu.Lock()
	p.conns[connID] = remoteAddr
	p.connsMu.Unlock()

	if p.limiter != nil {
		allowed, err := p.limiter.Allow(ctx, remoteAddr)
		if err != nil {
			logger.Log.Warn("rate limiter error, allowing frame", "remote_addr", remoteAddr, "error", err)
		} else if !allowed {
			if p.m != nil {
				p.m.RecordProcessorRecord(false)
			}
			return
		}
	}

	payload := make([]byte, len(frame))
	copy(payload, frame)

	ok := p.SubmitLogData(logmodel.LogData{
		Payload:   payload,
		Source:    remoteAddr,
		Timestamp: time.Now(),
		Metadata:  map[string]string{"conn_id": connID},
	})
	if !ok {
		logger.Log.Warn("processor queue full, dropping frame", "remote_addr", remoteAddr)
		if p.m != nil {
			p.m.RecordProcessorRecord(false)
		}
	}
}

// HandleDisconnect removes connID from the tracked connection map. Wire it
// to the transport server's disconnect notification, if any; it is also
// safe to never call, since it only affects the diagnostic Connections
// view.
func (p *Processor) HandleDisconnect(connID string) {
	p.connsMu.Lock()
	delete(p.conns, connID)
	p.connsMu.Unlock()
}

// ConnectionInfo is a read-only snapshot of one tracked connection.
type ConnectionInfo struct {
	ConnID     string
	RemoteAddr string
}

// Connections returns a snapshot of the connId->addr map, maintained
// independently of transport.Server's own bookkeeping so the processor can
// report on frames already attributed to a client even if the transport
// layer in front of it changes.
func (p *Processor) Connections() []ConnectionInfo {
	p.connsMu.Lock()
	defer p.connsMu.Unlock()

	out := make([]ConnectionInfo, 0, len(p.conns))
	for id, addr := range p.conns {
		out = append(out, ConnectionInfo{ConnID: id, RemoteAddr: addr})
	}
	return out
}

// Start launches the drainer task. Cancel the returned context (via Stop)
// to stop it.
func (p *Processor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.drainLoop(ctx)
}

func (p *Processor) drainLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.opts.ProcessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

func (p *Processor) drain(ctx context.Context) {
	batch := p.queue.PopUpTo(p.opts.BatchSize)
	if len(batch) == 0 {
		return
	}
	if p.m != nil {
		p.m.ProcessorQueueDepth.Set(float64(p.queue.Size()))
	}

	sem := make(chan struct{}, p.opts.WorkerCount)
	var wg sync.WaitGroup
	for _, data := range batch {
		data := data
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			p.processOne(ctx, data)
		}()
	}
	wg.Wait()
}

func (p *Processor) processOne(ctx context.Context, data logmodel.LogData) {
	p.registryMu.RLock()
	registry := p.registry
	p.registryMu.RUnlock()

	rec, err := registry.Parse(&data)
	success := err == nil

	if err != nil {
		logger.Log.Warn("failed to parse frame", "id", data.ID, "source", data.Source, "error", err)
		if p.m != nil {
			p.m.ProcessorParseErrorsTotal.WithLabelValues("registry").Inc()
		}
	} else {
		p.archive(ctx, &data, rec)
		if p.forward != nil && !p.forward(rec) {
			logger.Log.Warn("analyzer queue full, record not forwarded", "id", rec.ID)
		}
	}

	if p.m != nil {
		p.m.RecordProcessorRecord(success)
	}

	p.callbackMu.RLock()
	cb := p.callback
	p.callbackMu.RUnlock()
	if cb != nil {
		cb(data.ID, success)
	}
}

// archive writes the raw payload and its metadata to the cache, and the
// structured record to the relational store. Archival failures are logged,
// not propagated — an unarchived record still reaches the analyzer.
func (p *Processor) archive(ctx context.Context, data *logmodel.LogData, rec *logmodel.LogRecord) {
	if p.cache != nil {
		raw := data.Payload
		compressed := data.Compressed
		if p.opts.CompressArchive && !compressed {
			if zipped, ok := compress(raw); ok {
				raw = zipped
				compressed = true
			}
		}

		if err := p.cache.Set(ctx, "raw_log:"+rec.ID, raw, archiveTTL); err != nil {
			logger.Log.Warn("failed to cache raw log", "id", rec.ID, "error", err)
		}

		info := map[string]string{
			"timestamp":  rec.Timestamp,
			"source":     rec.Source,
			"compressed": fmt.Sprintf("%t", compressed),
		}
		for k, v := range data.Metadata {
			info[k] = v
		}
		if err := p.cache.HSet(ctx, "raw_log:"+rec.ID+":info", info); err != nil {
			logger.Log.Warn("failed to cache raw log info", "id", rec.ID, "error", err)
		}
		_ = p.cache.Expire(ctx, "raw_log:"+rec.ID+":info", archiveTTL)
	}

	if p.store != nil {
		if err := p.store.Save(ctx, rec); err != nil {
			logger.Log.Error("failed to archive record", "id", rec.ID, "error", err)
		}
	}
}

// Stop cancels the drainer and waits for in-flight drains to finish or ctx
// to expire.
func (p *Processor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
