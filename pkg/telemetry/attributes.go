package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Standard attribute keys shared across spans.
const (
	// Log record
	AttrLogID     = "log.id"
	AttrLogLevel  = "log.level"
	AttrLogSource = "log.source"

	// Analysis
	AttrRuleName    = "analysis.rule_name"
	AttrRuleMatched = "analysis.matched"
	AttrGroup       = "analysis.group"

	// Alerting
	AttrAlertName  = "alert.name"
	AttrAlertState = "alert.state"
)

// LogAttributes returns the attributes describing a log record.
func LogAttributes(id, level, source string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrLogID, id),
		attribute.String(AttrLogLevel, level),
		attribute.String(AttrLogSource, source),
	}
}

// RuleAttributes returns the attributes describing a rule evaluation.
func RuleAttributes(name string, matched bool, group string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRuleName, name),
		attribute.Bool(AttrRuleMatched, matched),
		attribute.String(AttrGroup, group),
	}
}

// AlertAttributes returns the attributes describing an alert state change.
func AlertAttributes(name, state string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrAlertName, name),
		attribute.String(AttrAlertState, state),
	}
}
