// Command loadgen is a synthetic load generator: it dials a server's TCP
// frame listener and emits JSON or bracketed-text frames at a configurable
// rate, for exercising the pipeline end to end without a real producer.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"logflow/internal/transport"
	"logflow/pkg/config"
	"logflow/pkg/logmodel"
	"logflow/pkg/retry"

	"github.com/google/uuid"
)

var levelWeights = []struct {
	level  logmodel.Level
	weight int
}{
	{logmodel.DEBUG, 20},
	{logmodel.INFO, 40},
	{logmodel.WARNING, 25},
	{logmodel.ERROR, 10},
	{logmodel.CRITICAL, 5},
}

var components = []string{"auth-api", "billing-worker", "ingest-gateway", "search-index", "scheduler"}

var messages = []string{
	"request completed",
	"connection pool exhausted, retrying",
	"cpu_usage=%.1f memory_usage=%.1f",
	"cache miss for key",
	"panic recovered in handler",
	"fatal: unable to reach upstream",
	"slow query detected, duration_ms=%d",
}

func main() {
	addr := flag.String("addr", ":7000", "server address to dial")
	rate := flag.Float64("rate", 10, "frames per second")
	duration := flag.Duration("duration", 30*time.Second, "how long to run (0 = until interrupted)")
	format := flag.String("format", "json", "frame format: json or text")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	client := transport.NewClient(*addr, retry.NewPolicy(config.RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2,
	}))
	defer client.Close()

	interval := time.Duration(float64(time.Second) / *rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var sent, failed uint64
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(os.Stdout, "loadgen stopped: sent=%d failed=%d\n", sent, failed)
			return
		case <-ticker.C:
			payload := buildFrame(rng, *format)
			if err := client.Send(ctx, payload); err != nil {
				failed++
				continue
			}
			sent++
		}
	}
}

func buildFrame(rng *rand.Rand, format string) []byte {
	level := randomLevel(rng)
	component := components[rng.Intn(len(components))]
	msgTemplate := messages[rng.Intn(len(messages))]
	message := renderMessage(rng, msgTemplate)
	ts := time.Now().Format("2006-01-02 15:04:05")

	if format == "text" {
		return []byte(fmt.Sprintf("[%s] [%s] %s", ts, level.String(), message))
	}

	frame := map[string]string{
		"id":        uuid.NewString(),
		"timestamp": ts,
		"level":     level.String(),
		"source":    component,
		"message":   message,
	}
	b, _ := json.Marshal(frame)
	return b
}

func renderMessage(rng *rand.Rand, template string) string {
	switch {
	case strings.Contains(template, "cpu_usage"):
		return fmt.Sprintf(template, rng.Float64()*100, rng.Float64()*100)
	case strings.Contains(template, "duration_ms"):
		return fmt.Sprintf(template, rng.Intn(5000))
	default:
		return template
	}
}

func randomLevel(rng *rand.Rand) logmodel.Level {
	total := 0
	for _, lw := range levelWeights {
		total += lw.weight
	}
	pick := rng.Intn(total)
	for _, lw := range levelWeights {
		if pick < lw.weight {
			return lw.level
		}
		pick -= lw.weight
	}
	return logmodel.INFO
}
