package analyzer

import (
	"testing"

	"logflow/pkg/logmodel"
)

func TestRegexRule_MatchExtractsCaptures(t *testing.T) {
	r, err := NewRegexRule("conn-refused", `connection refused from (\d+\.\d+\.\d+\.\d+)`, map[int]string{1: "client_ip"}, RuleConfig{Priority: 10, Enabled: true})
	if err != nil {
		t.Fatalf("NewRegexRule() error = %v", err)
	}

	rec := &logmodel.LogRecord{ID: "1", Message: "connection refused from 10.0.0.5"}
	result, err := r.Evaluate(rec)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.Matched() {
		t.Fatal("expected matched=true")
	}
	if result["client_ip"] != "10.0.0.5" {
		t.Errorf("client_ip = %q, want 10.0.0.5", result["client_ip"])
	}
	if result["rule"] != "conn-refused" {
		t.Errorf("rule = %q, want conn-refused", result["rule"])
	}
}

func TestRegexRule_NoMatch(t *testing.T) {
	r, err := NewRegexRule("conn-refused", `connection refused`, nil, RuleConfig{Enabled: true})
	if err != nil {
		t.Fatalf("NewRegexRule() error = %v", err)
	}

	result, err := r.Evaluate(&logmodel.LogRecord{Message: "all is well"})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.Matched() {
		t.Error("expected matched=false")
	}
}

func TestKeywordRule_MatchAndScore(t *testing.T) {
	r := NewKeywordRule("panic-words", "message", []string{"panic", "fatal", "oom"}, true, RuleConfig{Enabled: true})

	result, err := r.Evaluate(&logmodel.LogRecord{Message: "worker hit a fatal error, not a panic"})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.Matched() {
		t.Fatal("expected matched=true")
	}
	if result["score"] != "66" {
		t.Errorf("score = %q, want 66", result["score"])
	}
}

func TestKeywordRule_UnknownFieldDoesNotFallBackToMessage(t *testing.T) {
	r := NewKeywordRule("generic", "unknown_field", []string{"boom"}, false, RuleConfig{Enabled: true})
	result, err := r.Evaluate(&logmodel.LogRecord{Message: "boom", Fields: map[string]string{}})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.Matched() {
		t.Error("unknown_field isn't Fields[unknown_field] or message — should not match via raw field lookup")
	}
}

func TestKeywordRule_CustomField(t *testing.T) {
	r := NewKeywordRule("status-check", "http.status", []string{"500"}, false, RuleConfig{Enabled: true})
	rec := &logmodel.LogRecord{Message: "request completed", Fields: map[string]string{"http.status": "500"}}
	result, err := r.Evaluate(rec)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.Matched() {
		t.Error("expected matched=true from custom field lookup")
	}
}
