package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the global metrics container, one gauge/counter/histogram per
// pipeline subsystem (collector, processor, analyzer, alert manager).
type Metrics struct {
	// Collector
	CollectorSubmittedTotal *prometheus.CounterVec
	CollectorQueueDepth     prometheus.Gauge
	CollectorDropsTotal     *prometheus.CounterVec
	CollectorFlushDuration  prometheus.Histogram

	// Processor
	ProcessorConnectionsActive prometheus.Gauge
	ProcessorRecordsTotal      *prometheus.CounterVec
	ProcessorQueueDepth        prometheus.Gauge
	ProcessorParseErrorsTotal  *prometheus.CounterVec

	// Analyzer
	AnalyzerRecordsTotal   *prometheus.CounterVec
	AnalyzerQueueDepth     prometheus.Gauge
	AnalyzerRuleDuration   *prometheus.HistogramVec
	AnalyzerRuleMatches    *prometheus.CounterVec
	AnalyzerRuleErrors     *prometheus.CounterVec
	AnalyzerProcessTimeUs  prometheus.Counter

	// Alert Manager
	AlertsTriggeredTotal  *prometheus.CounterVec
	AlertsActive          prometheus.Gauge
	AlertNotifyDuration   *prometheus.HistogramVec
	AlertNotifyFailures   *prometheus.CounterVec

	// System
	MemoryUsage *prometheus.GaugeVec
	Goroutines  prometheus.Gauge
	ServiceInfo *prometheus.GaugeVec
}

var defaultMetrics *Metrics

// InitMetrics creates and registers all metrics under namespace/subsystem.
func InitMetrics(namespace, subsystem string) *Metrics {
	m := &Metrics{
		CollectorSubmittedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "collector_submitted_total",
				Help:      "Total number of log entries submitted to the collector",
			},
			[]string{"source"},
		),

		CollectorQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "collector_queue_depth",
				Help:      "Current depth of the collector's outgoing queue",
			},
		),

		CollectorDropsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "collector_drops_total",
				Help:      "Total number of entries dropped by a full collector queue",
			},
			[]string{"reason"},
		),

		CollectorFlushDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "collector_flush_duration_seconds",
				Help:      "Duration of batch flush-to-sink operations",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),

		ProcessorConnectionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "processor_connections_active",
				Help:      "Current number of open TCP connections to the processor",
			},
		),

		ProcessorRecordsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "processor_records_total",
				Help:      "Total number of records handled by the processor",
			},
			[]string{"status"},
		),

		ProcessorQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "processor_queue_depth",
				Help:      "Current depth of the processor's incoming queue",
			},
		),

		ProcessorParseErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "processor_parse_errors_total",
				Help:      "Total number of frames that failed to parse",
			},
			[]string{"parser"},
		),

		AnalyzerRecordsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "analyzer_records_total",
				Help:      "Total number of records analyzed",
			},
			[]string{"status"},
		),

		AnalyzerQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "analyzer_queue_depth",
				Help:      "Current depth of the analyzer's pending-record queue",
			},
		),

		AnalyzerRuleDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "analyzer_rule_duration_seconds",
				Help:      "Duration of a single rule evaluation",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
			[]string{"rule"},
		),

		AnalyzerRuleMatches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "analyzer_rule_matches_total",
				Help:      "Total number of matches per rule",
			},
			[]string{"rule"},
		),

		AnalyzerRuleErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "analyzer_rule_errors_total",
				Help:      "Total number of rule evaluation errors per rule",
			},
			[]string{"rule"},
		),

		AnalyzerProcessTimeUs: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "analyzer_process_time_microseconds_total",
				Help:      "Cumulative rule-evaluation time across all records, in microseconds",
			},
		),

		AlertsTriggeredTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "alerts_triggered_total",
				Help:      "Total number of alerts triggered",
			},
			[]string{"name"},
		),

		AlertsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "alerts_active",
				Help:      "Current number of active alerts",
			},
		),

		AlertNotifyDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "alert_notify_duration_seconds",
				Help:      "Duration of a single channel notification attempt",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"channel"},
		),

		AlertNotifyFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "alert_notify_failures_total",
				Help:      "Total number of failed channel notification attempts",
			},
			[]string{"channel"},
		),

		MemoryUsage: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage",
			},
			[]string{"type"},
		),

		Goroutines: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "goroutines",
				Help:      "Current number of goroutines",
			},
		),

		ServiceInfo: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service information",
			},
			[]string{"version", "environment"},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics container, initializing a default one if
// InitMetrics was never called.
func Get() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics("logpipe", "")
	}
	return defaultMetrics
}

// RecordCollectorSubmit records one entry accepted by the collector.
func (m *Metrics) RecordCollectorSubmit(source string) {
	m.CollectorSubmittedTotal.WithLabelValues(source).Inc()
}

// RecordCollectorDrop records one entry dropped by a full queue.
func (m *Metrics) RecordCollectorDrop(reason string) {
	m.CollectorDropsTotal.WithLabelValues(reason).Inc()
}

// RecordProcessorRecord records one record handled by the processor.
func (m *Metrics) RecordProcessorRecord(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ProcessorRecordsTotal.WithLabelValues(status).Inc()
}

// RecordRuleEvaluation records the outcome and duration of one rule
// evaluation against a single record.
func (m *Metrics) RecordRuleEvaluation(rule string, matched bool, errored bool, duration time.Duration) {
	m.AnalyzerRuleDuration.WithLabelValues(rule).Observe(duration.Seconds())
	m.AnalyzerProcessTimeUs.Add(float64(duration.Microseconds()))
	if matched {
		m.AnalyzerRuleMatches.WithLabelValues(rule).Inc()
	}
	if errored {
		m.AnalyzerRuleErrors.WithLabelValues(rule).Inc()
	}
}

// RecordAlertTriggered records one alert being triggered.
func (m *Metrics) RecordAlertTriggered(name string) {
	m.AlertsTriggeredTotal.WithLabelValues(name).Inc()
}

// RecordAlertNotify records the outcome and duration of one channel send.
func (m *Metrics) RecordAlertNotify(channel string, success bool, duration time.Duration) {
	m.AlertNotifyDuration.WithLabelValues(channel).Observe(duration.Seconds())
	if !success {
		m.AlertNotifyFailures.WithLabelValues(channel).Inc()
	}
}

// SetServiceInfo sets the service_info gauge to 1 for the given labels.
func (m *Metrics) SetServiceInfo(version, environment string) {
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

// Handler returns the HTTP handler serving /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer starts the HTTP server exposing /metrics and /health.
func StartMetricsServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK")) //nolint:errcheck // health endpoint, write failure isn't actionable
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
