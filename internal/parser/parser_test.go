package parser

import (
	"testing"
	"time"

	"logflow/pkg/logmodel"
)

func TestRegistry_FirstMatchWins(t *testing.T) {
	reg := NewRegistry()
	reg.Add(NewJSONParser(nil))
	reg.Add(NewTextParser(nil))

	data := &logmodel.LogData{ID: "1", Payload: []byte(`{"message":"hi"}`), Timestamp: time.Now()}
	rec, err := reg.Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if rec.Message != "hi" {
		t.Errorf("Message = %q, want %q", rec.Message, "hi")
	}
}

func TestRegistry_FallsBackToFirstParser(t *testing.T) {
	reg := NewRegistry()
	reg.Add(NewTextParser(nil))

	data := &logmodel.LogData{ID: "1", Payload: []byte("plain line"), Timestamp: time.Now()}
	rec, err := reg.Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if rec.Message != "plain line" {
		t.Errorf("Message = %q, want %q", rec.Message, "plain line")
	}
}

func TestRegistry_SynthesizesWhenEmpty(t *testing.T) {
	reg := NewRegistry()

	data := &logmodel.LogData{
		ID:       "1",
		Payload:  []byte("raw payload"),
		Metadata: map[string]string{"host": "a1"},
		Timestamp: time.Now(),
	}
	rec, err := reg.Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if rec.Level != logmodel.INFO {
		t.Errorf("Level = %v, want INFO", rec.Level)
	}
	if rec.Message != "raw payload" {
		t.Errorf("Message = %q, want %q", rec.Message, "raw payload")
	}
	if rec.Fields["metadata.host"] != "a1" {
		t.Errorf("Fields[metadata.host] = %q, want %q", rec.Fields["metadata.host"], "a1")
	}
}

func TestJSONParser_RoundTrip(t *testing.T) {
	p := NewJSONParser(nil)
	payload := `{"id":"x1","timestamp":"2024-01-02 15:04:05","level":"WARNING","source":"svc","message":"hello"}`
	data := &logmodel.LogData{ID: "fallback-id", Payload: []byte(payload), Timestamp: time.Now()}

	rec, err := p.Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if rec.ID != "x1" || rec.Level != logmodel.WARNING || rec.Source != "svc" || rec.Message != "hello" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Timestamp != "2024-01-02 15:04:05" {
		t.Errorf("Timestamp = %q, want canonical reformat", rec.Timestamp)
	}
	if len(rec.Fields) != 0 {
		t.Errorf("expected no extra fields, got %v", rec.Fields)
	}
}

func TestJSONParser_FieldRemapAndExtra(t *testing.T) {
	p := NewJSONParser(map[string]string{"msg": "message", "lvl": "level"})
	data := &logmodel.LogData{ID: "1", Payload: []byte(`{"msg":"hi","lvl":"WARNING","extra":42}`), Timestamp: time.Now()}

	rec, err := p.Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if rec.Level != logmodel.WARNING {
		t.Errorf("Level = %v, want WARNING", rec.Level)
	}
	if rec.Message != "hi" {
		t.Errorf("Message = %q, want %q", rec.Message, "hi")
	}
	if rec.Fields["json.extra"] != "42" {
		t.Errorf("Fields[json.extra] = %q, want %q", rec.Fields["json.extra"], "42")
	}
}

func TestJSONParser_MalformedProducesDegradedRecord(t *testing.T) {
	p := NewJSONParser(nil)
	data := &logmodel.LogData{ID: "1", Payload: []byte(`not json`), Timestamp: time.Now()}

	rec, err := p.Parse(data)
	if err != nil {
		t.Fatalf("Parse() should not return an error, got %v", err)
	}
	if rec.Level != logmodel.ERROR {
		t.Errorf("Level = %v, want ERROR", rec.Level)
	}
}

func TestRegexParser_Extraction(t *testing.T) {
	p, err := NewRegexParser(`error: (\w+): (.*)`, map[int]string{1: "error_type", 2: "error_message"})
	if err != nil {
		t.Fatalf("NewRegexParser() error = %v", err)
	}

	data := &logmodel.LogData{ID: "1", Payload: []byte("error: DatabaseError: Connection failed"), Timestamp: time.Now()}
	rec, err := p.Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if rec.Fields["error_type"] != "DatabaseError" {
		t.Errorf("error_type = %q, want %q", rec.Fields["error_type"], "DatabaseError")
	}
	if rec.Fields["error_message"] != "Connection failed" {
		t.Errorf("error_message = %q, want %q", rec.Fields["error_message"], "Connection failed")
	}
}

func TestTextParser_BracketedFormat(t *testing.T) {
	p := NewTextParser([]string{"timeout"})
	line := "[2024-01-02 15:04:05] [ERROR] request to 10.0.0.5 timeout"
	data := &logmodel.LogData{ID: "1", Payload: []byte(line), Timestamp: time.Now()}

	rec, err := p.Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if rec.Level != logmodel.ERROR {
		t.Errorf("Level = %v, want ERROR", rec.Level)
	}
	if rec.Fields["text.client_ip"] != "10.0.0.5" {
		t.Errorf("text.client_ip = %q, want %q", rec.Fields["text.client_ip"], "10.0.0.5")
	}
	if rec.Fields["text.contains.timeout"] != "true" {
		t.Errorf("expected text.contains.timeout = true, got %v", rec.Fields)
	}
}

func TestTextParser_UnbracketedFallsBackToRawMessage(t *testing.T) {
	p := NewTextParser(nil)
	data := &logmodel.LogData{ID: "1", Payload: []byte("just a line"), Timestamp: time.Now()}

	rec, err := p.Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if rec.Message != "just a line" {
		t.Errorf("Message = %q, want %q", rec.Message, "just a line")
	}
}
