package logmodel

import "time"

// TimestampLayout is the canonical fixed-width timestamp used at every
// storage and wire boundary ("YYYY-MM-DD hh:mm:ss"). Machine epoch integers
// are never persisted.
const TimestampLayout = "2006-01-02 15:04:05"

// FormatTimestamp renders t in the canonical storage format, always in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses the canonical storage format. Callers that receive a
// malformed timestamp fall back rather than fail the whole record: the
// parsers keep the frame's arrival time, and the relational store
// substitutes the current time.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}

// LogEntry is the collector-internal representation of one submitted line.
// Content may be replaced by its zlib-compressed form, in which case
// Compressed is set and the original bytes are discarded.
type LogEntry struct {
	Content    []byte
	Level      Level
	Timestamp  time.Time
	Compressed bool
}

// LogData is what the processor receives per frame: a raw payload plus the
// metadata needed to parse and archive it. ID is assigned on arrival if the
// producer didn't supply one (a random UUID).
type LogData struct {
	ID         string
	Payload    []byte
	Source     string
	Timestamp  time.Time
	Compressed bool
	Metadata   map[string]string
}

// LogRecord is the parsed, immutable record forwarded to the analyzer and
// archived to the relational store. Timestamp is always the canonical
// fixed-width string, never a machine epoch.
type LogRecord struct {
	ID        string
	Timestamp string
	Level     Level
	Source    string
	Message   string
	Fields    map[string]string
}

// AnalysisResult is the key→value map a single rule produces for a single
// record. Well-known keys are "matched", "rule", "group"; everything else is
// rule-specific (capture groups, match_count, score, matched_keywords, ...).
type AnalysisResult map[string]string

// Matched reports whether the well-known "matched" key is "true".
func (r AnalysisResult) Matched() bool {
	return r["matched"] == "true"
}
