package parser

import (
	"errors"
	"regexp"

	"logflow/pkg/logmodel"
)

var errNoMatch = errors.New("pattern did not match payload")

// RegexParser extracts record fields from numbered capture groups in a
// compiled pattern. Pattern is cached on the parser; build a new RegexParser
// to change it rather than mutating Pattern in place.
type RegexParser struct {
	Pattern       *regexp.Regexp
	CaptureFields map[int]string // capture group index -> record field name
}

// NewRegexParser compiles pattern and returns a RegexParser using
// captureFields to name extracted groups.
func NewRegexParser(pattern string, captureFields map[int]string) (*RegexParser, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &RegexParser{Pattern: re, CaptureFields: captureFields}, nil
}

// Name identifies this parser in logs and metrics.
func (p *RegexParser) Name() string { return "regex" }

// CanParse reports whether the pattern matches the payload.
func (p *RegexParser) CanParse(data *logmodel.LogData) bool {
	return p.Pattern.Match(data.Payload)
}

// Parse runs the pattern against payload and maps captures to fields.
// Capture group 0 (the whole match) becomes Message if the field mapping
// didn't already set one.
func (p *RegexParser) Parse(data *logmodel.LogData) (*logmodel.LogRecord, error) {
	matches := p.Pattern.FindSubmatch(data.Payload)
	if matches == nil {
		return degradedRecord(data, p.Name(), errNoMatch), nil
	}

	rec := &logmodel.LogRecord{
		ID:        data.ID,
		Timestamp: logmodel.FormatTimestamp(data.Timestamp),
		Level:     logmodel.INFO,
		Source:    data.Source,
		Fields:    make(map[string]string),
	}

	for idx, value := range matches {
		name, ok := p.CaptureFields[idx]
		if !ok {
			continue
		}
		switch name {
		case "message":
			rec.Message = string(value)
		case "level":
			rec.Level = logmodel.ParseLevel(string(value))
		case "source":
			rec.Source = string(value)
		case "timestamp":
			if t, err := logmodel.ParseTimestamp(string(value)); err == nil {
				rec.Timestamp = logmodel.FormatTimestamp(t)
			}
		default:
			rec.Fields[name] = string(value)
		}
	}

	if rec.Message == "" && len(matches) > 0 {
		rec.Message = string(matches[0])
	}

	return rec, nil
}
