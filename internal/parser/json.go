package parser

import (
	"encoding/json"
	"fmt"

	"logflow/pkg/logmodel"
)

// JSONParser decodes a frame as a single JSON object. FieldMap renames
// JSON keys to record field names (e.g. "msg" -> "message"). A key that
// lands, after renaming, on id, timestamp, level, source or message fills
// that record field; every other key is kept as a record field prefixed
// "json.", holding the decoded string for string values and the JSON text
// otherwise.
type JSONParser struct {
	FieldMap map[string]string
}

// NewJSONParser returns a JSONParser using fieldMap for JSON-key-to-record-field
// renames. A nil map means no renames: the well-known keys fill the record
// directly and every other top-level key is stored under "json.<key>".
func NewJSONParser(fieldMap map[string]string) *JSONParser {
	return &JSONParser{FieldMap: fieldMap}
}

// Name identifies this parser in logs and metrics.
func (p *JSONParser) Name() string { return "json" }

// CanParse reports whether payload looks like a single JSON object.
func (p *JSONParser) CanParse(data *logmodel.LogData) bool {
	return json.Valid(data.Payload) && looksLikeObject(data.Payload)
}

func looksLikeObject(b []byte) bool {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}

var wellKnownRecordFields = map[string]bool{
	"id": true, "timestamp": true, "level": true, "source": true, "message": true,
}

// Parse decodes payload into a LogRecord. A decode failure produces a
// degraded ERROR record carrying the decode error and raw payload rather
// than failing the caller.
func (p *JSONParser) Parse(data *logmodel.LogData) (*logmodel.LogRecord, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data.Payload, &raw); err != nil {
		return degradedRecord(data, p.Name(), err), nil
	}

	rec := &logmodel.LogRecord{
		ID:     data.ID,
		Source: data.Source,
		Fields: make(map[string]string),
	}

	mapped := make(map[string]string, len(raw))
	for jsonKey, rawVal := range raw {
		target := jsonKey
		if p.FieldMap != nil {
			if renamed, ok := p.FieldMap[jsonKey]; ok {
				target = renamed
			}
		}
		if str, ok := decodeJSONString(rawVal); ok {
			mapped[target] = str
		} else {
			mapped[target] = string(rawVal)
		}
	}

	if v, ok := mapped["id"]; ok && v != "" {
		rec.ID = v
	}
	if v, ok := mapped["timestamp"]; ok && v != "" {
		if t, err := logmodel.ParseTimestamp(v); err == nil {
			rec.Timestamp = logmodel.FormatTimestamp(t)
		} else {
			rec.Timestamp = logmodel.FormatTimestamp(data.Timestamp)
		}
	} else {
		rec.Timestamp = logmodel.FormatTimestamp(data.Timestamp)
	}
	if v, ok := mapped["level"]; ok && v != "" {
		rec.Level = logmodel.ParseLevel(v)
	} else {
		rec.Level = logmodel.INFO
	}
	if v, ok := mapped["source"]; ok && v != "" {
		rec.Source = v
	}
	if v, ok := mapped["message"]; ok {
		rec.Message = v
	} else {
		rec.Message = string(data.Payload)
	}

	for target, val := range mapped {
		if wellKnownRecordFields[target] {
			continue
		}
		rec.Fields["json."+target] = val
	}

	return rec, nil
}

func decodeJSONString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func degradedRecord(data *logmodel.LogData, parserName string, cause error) *logmodel.LogRecord {
	return &logmodel.LogRecord{
		ID:        data.ID,
		Timestamp: logmodel.FormatTimestamp(data.Timestamp),
		Level:     logmodel.ERROR,
		Source:    data.Source,
		Message:   fmt.Sprintf("%s parse error: %v; raw=%s", parserName, cause, data.Payload),
		Fields:    map[string]string{},
	}
}
