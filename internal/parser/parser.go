// Package parser turns raw processor payloads into structured log records.
package parser

import (
	"logflow/pkg/logmodel"
)

// Parser turns one LogData frame into a LogRecord. CanParse must be cheap
// and side-effect free; it is called on every registered parser, in order,
// until one returns true.
type Parser interface {
	Name() string
	CanParse(data *logmodel.LogData) bool
	Parse(data *logmodel.LogData) (*logmodel.LogRecord, error)
}

// Registry holds an ordered set of parsers. Parse tries CanParse on each in
// insertion order; the first match wins. If none match, the first
// registered parser runs unconditionally. If the registry is empty, Parse
// synthesizes a minimal record instead of failing.
type Registry struct {
	parsers []Parser
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends a parser to the end of the selection order.
func (r *Registry) Add(p Parser) {
	r.parsers = append(r.parsers, p)
}

// Clear removes all registered parsers.
func (r *Registry) Clear() {
	r.parsers = nil
}

// Parse selects a parser for data and runs it. Parser-level errors never
// reach the caller: a parser that fails to make sense of its input returns
// a degraded record instead (level ERROR, message carrying the parse
// error and raw content), per each parser's own Parse implementation.
func (r *Registry) Parse(data *logmodel.LogData) (*logmodel.LogRecord, error) {
	if len(r.parsers) == 0 {
		return synthesize(data), nil
	}

	for _, p := range r.parsers {
		if p.CanParse(data) {
			return p.Parse(data)
		}
	}
	return r.parsers[0].Parse(data)
}

// synthesize builds the fallback record used when no parser is registered
// at all: the payload becomes the message verbatim, and metadata is copied
// into fields under a "metadata." prefix.
func synthesize(data *logmodel.LogData) *logmodel.LogRecord {
	fields := make(map[string]string, len(data.Metadata))
	for k, v := range data.Metadata {
		fields["metadata."+k] = v
	}

	return &logmodel.LogRecord{
		ID:        data.ID,
		Timestamp: logmodel.FormatTimestamp(data.Timestamp),
		Level:     logmodel.INFO,
		Source:    data.Source,
		Message:   string(data.Payload),
		Fields:    fields,
	}
}
