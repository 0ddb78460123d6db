// Package alert evaluates analyzed records against alert rules, maintains
// the active-alert state machine, deduplicates, and dispatches
// notifications through pluggable channels.
package alert

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"logflow/pkg/logmodel"
)

// Status is an alert's position in its PENDING→ACTIVE→(RESOLVED|IGNORED)
// lifecycle.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusActive   Status = "ACTIVE"
	StatusResolved Status = "RESOLVED"
	StatusIgnored  Status = "IGNORED"
)

// Alert is the canonical alert representation, serialized verbatim as the
// webhook body and the cache value at alert:<id>.
type Alert struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Level         logmodel.Level    `json:"level"`
	Status        Status            `json:"status"`
	Source        string            `json:"source"`
	Timestamp     string            `json:"timestamp"`
	UpdateTime    string            `json:"updateTime"`
	Count         int               `json:"count"`
	Labels        map[string]string `json:"labels"`
	Annotations   map[string]string `json:"annotations"`
	RelatedLogIDs []string          `json:"relatedLogIds"`
}

// dedupKey identifies an alert by rule name plus its label set, the tuple
// duplicate suppression scans for.
func dedupKey(name string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('\x1f')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	return b.String()
}

// MarshalJSON is the canonical Alert-JSON used for the webhook body and the
// cache value. Defined explicitly (rather than relying on struct tags
// alone) so zero-value label/annotation maps marshal as "{}" rather than
// "null", which the canonical shape requires.
func (a *Alert) MarshalJSON() ([]byte, error) {
	type alias Alert
	cp := *a
	if cp.Labels == nil {
		cp.Labels = map[string]string{}
	}
	if cp.Annotations == nil {
		cp.Annotations = map[string]string{}
	}
	if cp.RelatedLogIDs == nil {
		cp.RelatedLogIDs = []string{}
	}
	return json.Marshal((*alias)(&cp))
}

// toLogRecord encodes a as a LogRecord for relational persistence: alerts
// reuse log_entries/log_fields, with fields.alert_data carrying the
// canonical JSON and fields.alert_status/fields.alert_name indexable.
func (a *Alert) toLogRecord() (*logmodel.LogRecord, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return &logmodel.LogRecord{
		ID:        a.ID,
		Timestamp: a.Timestamp,
		Level:     a.Level,
		Source:    a.Source,
		Message:   a.Description,
		Fields: map[string]string{
			"alert_data":   string(data),
			"alert_status": string(a.Status),
			"alert_name":   a.Name,
		},
	}, nil
}

func fromLogRecord(rec *logmodel.LogRecord) (*Alert, error) {
	raw, ok := rec.Fields["alert_data"]
	if !ok {
		return nil, nil
	}
	var a Alert
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func nowTimestamp() string {
	return logmodel.FormatTimestamp(time.Now())
}
