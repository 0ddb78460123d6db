package parser

import (
	"regexp"
	"strings"

	"logflow/pkg/logmodel"
)

// textLinePattern matches "[time] [level] message", where time may itself
// contain spaces (e.g. "2024-01-02 15:04:05").
var textLinePattern = regexp.MustCompile(`^\[([^\]]+)\]\s*\[([^\]]+)\]\s*(.*)$`)

var ipPattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)

// TextParser is the catch-all for producers that emit plain bracketed text
// instead of JSON. It also extracts a client IP and flags configured
// keywords, matching the original line-oriented log format this pipeline
// replaced.
type TextParser struct {
	Keywords []string
}

// NewTextParser returns a TextParser that flags the presence of each of
// keywords (case-insensitive) via "text.contains.<kw>" fields.
func NewTextParser(keywords []string) *TextParser {
	return &TextParser{Keywords: keywords}
}

// Name identifies this parser in logs and metrics.
func (p *TextParser) Name() string { return "text" }

// CanParse is true for any payload; TextParser is the catch-all and is
// normally registered last so more specific parsers get first refusal.
func (p *TextParser) CanParse(_ *logmodel.LogData) bool {
	return true
}

// Parse extracts time/level/message from the bracketed format when present,
// otherwise falls back to treating the whole payload as the message.
func (p *TextParser) Parse(data *logmodel.LogData) (*logmodel.LogRecord, error) {
	line := string(data.Payload)

	rec := &logmodel.LogRecord{
		ID:        data.ID,
		Timestamp: logmodel.FormatTimestamp(data.Timestamp),
		Level:     logmodel.INFO,
		Source:    data.Source,
		Message:   line,
		Fields:    make(map[string]string),
	}

	if m := textLinePattern.FindStringSubmatch(line); m != nil {
		if t, err := logmodel.ParseTimestamp(m[1]); err == nil {
			rec.Timestamp = logmodel.FormatTimestamp(t)
		}
		rec.Level = logmodel.ParseLevel(m[2])
		rec.Message = m[3]
	}

	if ip := ipPattern.FindString(line); ip != "" {
		rec.Fields["text.client_ip"] = ip
	}

	lower := strings.ToLower(line)
	for _, kw := range p.Keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			rec.Fields["text.contains."+kw] = "true"
		}
	}

	return rec, nil
}
