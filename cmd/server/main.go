// Command server runs the central log pipeline service: the TCP frame
// listener, and the Processor, Analyzer, and Alert Manager composed in one
// process, per the deployable split described alongside the collector agent.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"logflow/internal/alert"
	"logflow/internal/analyzer"
	"logflow/internal/processor"
	"logflow/internal/store"
	"logflow/migrations"
	"logflow/pkg/audit"
	"logflow/pkg/cache"
	"logflow/pkg/config"
	"logflow/pkg/database"
	"logflow/pkg/logger"
	"logflow/pkg/logmodel"
	"logflow/pkg/metrics"
	"logflow/pkg/ratelimit"
	"logflow/pkg/telemetry"
)

func main() {
	cfg, err := config.LoadWithServiceDefaults("logflow-server", ":7000")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		tp, err := telemetry.Init(ctx, telemetry.Config{
			Enabled:     cfg.Tracing.Enabled,
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.App.Name,
			Version:     cfg.App.Version,
			Environment: cfg.App.Environment,
			SampleRate:  cfg.Tracing.SampleRate,
		})
		if err != nil {
			logger.Log.Warn("failed to init telemetry", "error", err)
		} else {
			defer func() {
				if err := tp.Shutdown(context.Background()); err != nil {
					logger.Log.Warn("failed to shutdown telemetry", "error", err)
				}
			}()
		}
	}

	m := metrics.InitMetrics(cfg.Metrics.Namespace, "server")
	m.SetServiceInfo(cfg.App.Version, cfg.App.Environment)
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartMetricsServer(cfg.Metrics.Port); err != nil {
				logger.Log.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	var recordStore store.RecordStore
	if cfg.Database.Driver != "" {
		db, err := database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			logger.Fatal("failed to connect to database", "error", err)
		}
		defer db.Close()

		if cfg.Database.AutoMigrate {
			if err := database.RunMigrations(ctx, db.Pool(), &cfg.Database, migrations.PostgresMigrations, "postgres"); err != nil {
				logger.Fatal("failed to run migrations", "error", err)
			}
		}
		recordStore = store.NewPostgresRecordStore(db)
	}

	var recordCache cache.Cache
	if cfg.Cache.Enabled {
		opts := cache.DefaultOptions()
		if cfg.Cache.Driver == "redis" {
			opts.Backend = cache.BackendRedis
			opts.RedisAddr = cfg.Cache.Address()
			opts.RedisPassword = cfg.Cache.Password
			opts.RedisDB = cfg.Cache.DB
		}
		opts.DefaultTTL = cfg.Cache.DefaultTTL
		if cfg.Cache.MaxEntries > 0 {
			opts.MaxEntries = cfg.Cache.MaxEntries
		}
		recordCache, err = cache.New(opts)
		if err != nil {
			logger.Fatal("failed to init cache", "error", err)
		}
		defer recordCache.Close()
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter, err = ratelimit.New(&ratelimit.Config{
			Requests:        cfg.RateLimit.RequestsPerSec,
			Window:          time.Second,
			Strategy:        "token_bucket",
			Backend:         "memory",
			BurstSize:       cfg.RateLimit.Burst,
			CleanupInterval: cfg.RateLimit.CleanupInterval,
		})
		if err != nil {
			logger.Fatal("failed to init rate limiter", "error", err)
		}
		defer limiter.Close()
	}

	alertMgr := alert.New(alert.Options{
		WorkerCount:        cfg.AlertManager.WorkerCount,
		BatchSize:          cfg.AlertManager.BatchSize,
		CheckInterval:      cfg.AlertManager.CheckInterval,
		ResendInterval:     cfg.AlertManager.ResendInterval,
		GroupInterval:      cfg.AlertManager.GroupInterval,
		SuppressDuplicates: cfg.AlertManager.SuppressDuplicates,
	}, recordCache, recordStore, m)
	if cfg.Audit.Enabled {
		auditLogger, err := audit.New(&audit.Config{
			Enabled:     cfg.Audit.Enabled,
			Backend:     cfg.Audit.Backend,
			FilePath:    cfg.Audit.FilePath,
			BufferSize:  cfg.Audit.BufferSize,
			FlushPeriod: cfg.Audit.FlushPeriod,
		})
		if err != nil {
			logger.Log.Warn("failed to init audit logger, using noop", "error", err)
		} else {
			alertMgr.SetAuditLogger(auditLogger)
		}
	}
	registerDefaultAlertRules(alertMgr)
	for _, chCfg := range cfg.AlertManager.Channels {
		if !chCfg.Enabled {
			continue
		}
		ch, err := alert.NewChannel(chCfg)
		if err != nil {
			logger.Log.Warn("skipping unconfigurable alert channel", "name", chCfg.Name, "error", err)
			continue
		}
		alertMgr.AddChannel(ch)
	}
	alertMgr.Start(ctx)
	defer func() {
		if err := alertMgr.Stop(context.Background()); err != nil {
			logger.Log.Warn("alert manager shutdown error", "error", err)
		}
	}()

	ruleStore := analyzer.NewStore()
	registerDefaultAnalysisRules(ruleStore)

	bridge := newRecordBridge()

	az := analyzer.New(analyzer.Options{
		WorkerCount:    cfg.Analyzer.WorkerCount,
		QueueCapacity:  cfg.Analyzer.QueueCapacity,
		RuleMaxRetries: cfg.Analyzer.RuleMaxRetries,
		RetryBackoff:   cfg.Retry,
	}, ruleStore, m)
	az.SetCallback(func(recordID string, results map[string]logmodel.AnalysisResult) {
		rec, ok := bridge.take(recordID)
		if !ok {
			return
		}
		alertMgr.CheckAlerts(ctx, rec, results)
	})
	az.Start(ctx)
	defer func() {
		if err := az.Stop(context.Background()); err != nil {
			logger.Log.Warn("analyzer shutdown error", "error", err)
		}
	}()

	proc := processor.New(processor.Options{
		QueueCapacity:   cfg.Processor.QueueCapacity,
		WorkerCount:     cfg.Processor.WorkerCount,
		ProcessInterval: cfg.Processor.ProcessInterval,
		BatchSize:       cfg.Processor.BatchSize,
		CompressArchive: cfg.Processor.CompressArchive,
	}, func(rec *logmodel.LogRecord) bool {
		bridge.put(rec)
		ok := az.SubmitRecord(rec)
		if !ok {
			bridge.take(rec.ID)
		}
		return ok
	}, recordCache, recordStore, limiter, m)
	registerDefaultParsers(proc)
	proc.Start(ctx)
	defer func() {
		if err := proc.Stop(context.Background()); err != nil {
			logger.Log.Warn("processor shutdown error", "error", err)
		}
	}()

	srv, err := proc.ListenAndServe(ctx, cfg.Processor.ListenAddr, cfg.Processor.ReadTimeout)
	if err != nil {
		logger.Fatal("failed to start TCP listener", "error", err)
	}
	defer func() {
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Log.Warn("listener shutdown error", "error", err)
		}
	}()

	logger.Info("logflow server started",
		"listen_addr", cfg.Processor.ListenAddr,
		"environment", cfg.App.Environment,
		"version", cfg.App.Version,
	)

	<-ctx.Done()
	logger.Info("shutting down")
}

// recordBridge hands a *logmodel.LogRecord from the Processor's forward
// callback to the Analyzer's result callback, keyed by record ID. The
// Analyzer's ResultCallback only carries the ID, not the record itself, so
// the Alert Manager's CheckAlerts (which needs both) requires this lookup.
type recordBridge struct {
	mu      sync.Mutex
	pending map[string]*logmodel.LogRecord
}

func newRecordBridge() *recordBridge {
	return &recordBridge{pending: make(map[string]*logmodel.LogRecord)}
}

func (b *recordBridge) put(rec *logmodel.LogRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[rec.ID] = rec
}

func (b *recordBridge) take(id string) (*logmodel.LogRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	return rec, ok
}
