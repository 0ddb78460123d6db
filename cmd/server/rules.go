package main

import (
	"logflow/internal/alert"
	"logflow/internal/analyzer"
	"logflow/internal/parser"
	"logflow/internal/processor"
	"logflow/pkg/logger"
	"logflow/pkg/logmodel"
)

// registerDefaultParsers wires up the frame parsers tried, in order, against
// every incoming payload: JSON first (the preferred producer format), then
// plain bracketed text as the catch-all.
func registerDefaultParsers(p *processor.Processor) {
	p.AddParser(parser.NewJSONParser(nil))
	p.AddParser(parser.NewTextParser([]string{"panic", "fatal", "timeout"}))
}

// registerDefaultAnalysisRules wires a small starter ruleset: a keyword
// scan for crash-adjacent language, and a regex extractor that turns an
// inline "cpu_usage=NN.N" token into a numeric result field a threshold
// alert rule can read.
func registerDefaultAnalysisRules(store *analyzer.Store) {
	crashKeywords := analyzer.NewKeywordRule(
		"error-keywords", "", []string{"panic", "fatal", "error", "crash"}, true,
		analyzer.RuleConfig{Priority: 10, Group: "reliability", Enabled: true},
	)
	store.AddRule(crashKeywords)

	cpuUsage, err := analyzer.NewRegexRule(
		"cpu-usage-extract", `cpu_usage[=: ]+([0-9.]+)`, map[int]string{1: "cpu_usage"},
		analyzer.RuleConfig{Priority: 20, Group: "resource", Enabled: true},
	)
	if err != nil {
		logger.Log.Warn("failed to compile default cpu-usage rule", "error", err)
	} else {
		store.AddRule(cpuUsage)
	}
}

// registerDefaultAlertRules wires the alert rules that read the analyzer's
// default result set: a high-CPU threshold and a critical-keyword match.
func registerDefaultAlertRules(mgr *alert.Manager) {
	mgr.AddRule(alert.NewThresholdRule(
		alert.RuleConfig{Name: "HighCpuUsage", Level: logmodel.WARNING, Group: "resource", Description: "cpu usage exceeds threshold"},
		"cpu-usage-extract", "cpu_usage", alert.OpGTE, 80,
	))
	mgr.AddRule(alert.NewKeywordRule(
		alert.RuleConfig{Name: "CriticalKeyword", Level: logmodel.CRITICAL, Group: "reliability", Description: "record message contains a critical keyword"},
		"", []string{"panic", "fatal"}, false,
	))
}
