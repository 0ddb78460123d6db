// Command collector runs the collector agent: it tails configured files,
// batches the entries, and forwards them as framed JSON to a server's TCP
// listener.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"logflow/internal/collector"
	"logflow/internal/transport"
	"logflow/pkg/config"
	"logflow/pkg/logger"
	"logflow/pkg/logmodel"
	"logflow/pkg/metrics"
	"logflow/pkg/retry"
	"logflow/pkg/telemetry"
)

func main() {
	cfg, err := config.LoadWithServiceDefaults("logflow-collector", ":7000")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
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

	m := metrics.InitMetrics(cfg.Metrics.Namespace, "collector")
	m.SetServiceInfo(cfg.App.Version, cfg.App.Environment)
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartMetricsServer(cfg.Metrics.Port); err != nil {
				logger.Log.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	client := transport.NewClient(cfg.Collector.ServerAddr, retry.NewPolicy(config.RetryConfig{
		MaxAttempts:       cfg.Collector.MaxRetries,
		InitialBackoff:    cfg.Collector.RetryBackoff,
		MaxBackoff:        cfg.Collector.RetryBackoff * 10,
		BackoffMultiplier: 2,
	}))
	defer client.Close()

	col := collector.New(collector.Options{
		QueueCapacity:       cfg.Collector.QueueCapacity,
		WorkerCount:         cfg.Collector.WorkerCount,
		BatchSize:           cfg.Collector.BatchSize,
		BatchInterval:       cfg.Collector.BatchInterval,
		CompressionMinBytes: cfg.Collector.CompressionMinBytes,
		Retry:               retry.NewPolicy(cfg.Retry),
	}, sinkToServer(client), m)

	col.SetErrorCallback(func(err error) {
		logger.Log.Error("collector sink failed", "error", err)
	})

	col.Start(ctx)

	for _, tf := range cfg.Collector.TailFiles {
		if _, err := col.CollectFromFile(ctx, tf.Path, logmodel.INFO, tf.PollInterval, cfg.Collector.BatchSize); err != nil {
			logger.Log.Error("failed to tail file", "path", tf.Path, "error", err)
		}
	}

	logger.Info("logflow collector started",
		"server_addr", cfg.Collector.ServerAddr,
		"tail_files", len(cfg.Collector.TailFiles),
		"environment", cfg.App.Environment,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Collector.BatchInterval*5)
	defer cancel()
	if err := col.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warn("collector shutdown error", "error", err)
	}
}

// wireEntry is the JSON frame shape the collector emits on the wire, read
// back by the server's JSON parser.
type wireEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// sinkToServer builds a collector.Sink that frames each entry as JSON and
// sends it over client, one frame per entry.
func sinkToServer(client *transport.Client) collector.Sink {
	return func(ctx context.Context, batch []logmodel.LogEntry) error {
		for _, entry := range batch {
			content := entry.Content
			if entry.Compressed {
				decompressed, err := collector.Decompress(content)
				if err != nil {
					return err
				}
				content = decompressed
			}

			payload, err := json.Marshal(wireEntry{
				Timestamp: entry.Timestamp.Format("2006-01-02 15:04:05"),
				Level:     entry.Level.String(),
				Message:   string(content),
			})
			if err != nil {
				return err
			}

			if err := client.Send(ctx, payload); err != nil {
				return err
			}
		}
		return nil
	}
}
