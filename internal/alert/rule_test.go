package alert

import (
	"testing"

	"logflow/pkg/logmodel"
)

func TestThresholdRule_Check(t *testing.T) {
	rule := NewThresholdRule(RuleConfig{Name: "error-rate-high", Level: logmodel.WARNING}, "error-rate", "rate", OpGTE, 0.5)

	cases := []struct {
		name    string
		results map[string]logmodel.AnalysisResult
		want    bool
	}{
		{"above threshold", map[string]logmodel.AnalysisResult{"error-rate": {"rate": "0.8"}}, true},
		{"at threshold", map[string]logmodel.AnalysisResult{"error-rate": {"rate": "0.5"}}, true},
		{"below threshold", map[string]logmodel.AnalysisResult{"error-rate": {"rate": "0.1"}}, false},
		{"missing rule result", map[string]logmodel.AnalysisResult{}, false},
		{"unparseable value", map[string]logmodel.AnalysisResult{"error-rate": {"rate": "nope"}}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := rule.Check(&logmodel.LogRecord{}, tc.results); got != tc.want {
				t.Errorf("Check() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestThresholdRule_GenerateAlert(t *testing.T) {
	rule := NewThresholdRule(RuleConfig{Name: "error-rate-high", Description: "error rate too high", Level: logmodel.WARNING}, "error-rate", "rate", OpGTE, 0.5)
	rec := &logmodel.LogRecord{ID: "log-1", Source: "host-1"}
	results := map[string]logmodel.AnalysisResult{"error-rate": {"rate": "0.9"}}

	a := rule.GenerateAlert(rec, results)
	if a.Name != "error-rate-high" {
		t.Errorf("Name = %q", a.Name)
	}
	if a.Status != StatusPending {
		t.Errorf("Status = %q, want PENDING", a.Status)
	}
	if len(a.RelatedLogIDs) != 1 || a.RelatedLogIDs[0] != "log-1" {
		t.Errorf("RelatedLogIDs = %v", a.RelatedLogIDs)
	}
	if a.Annotations["value"] != "0.9" {
		t.Errorf("Annotations[value] = %q", a.Annotations["value"])
	}
}

func TestKeywordRule_Check(t *testing.T) {
	anyRule := NewKeywordRule(RuleConfig{Name: "crash"}, "message", []string{"panic", "fatal"}, false)
	all := NewKeywordRule(RuleConfig{Name: "crash-all"}, "message", []string{"panic", "fatal"}, true)

	matching := &logmodel.LogRecord{Message: "goroutine panic: fatal error"}
	partial := &logmodel.LogRecord{Message: "goroutine panic"}
	none := &logmodel.LogRecord{Message: "all good here"}

	if !anyRule.Check(matching, nil) {
		t.Errorf("anyRule.Check(matching) = false, want true")
	}
	if !anyRule.Check(partial, nil) {
		t.Errorf("anyRule.Check(partial) = false, want true")
	}
	if anyRule.Check(none, nil) {
		t.Errorf("anyRule.Check(none) = true, want false")
	}

	if !all.Check(matching, nil) {
		t.Errorf("all.Check(matching) = false, want true")
	}
	if all.Check(partial, nil) {
		t.Errorf("all.Check(partial) = true, want false")
	}
}

func TestKeywordRule_CustomField(t *testing.T) {
	rule := NewKeywordRule(RuleConfig{Name: "status-5xx"}, "status", []string{"500", "502"}, false)
	rec := &logmodel.LogRecord{Message: "irrelevant", Fields: map[string]string{"status": "502 bad gateway"}}
	if !rule.Check(rec, nil) {
		t.Errorf("Check() = false, want true for matching custom field")
	}
}

func TestKeywordRule_GenerateAlert(t *testing.T) {
	rule := NewKeywordRule(RuleConfig{Name: "crash", Description: "crash keyword detected"}, "message", []string{"panic"}, false)
	rec := &logmodel.LogRecord{ID: "log-2", Source: "host-2", Message: "goroutine panic: nil pointer"}

	a := rule.GenerateAlert(rec, nil)
	if a.Annotations["keywords"] != "panic" {
		t.Errorf("Annotations[keywords] = %q, want %q", a.Annotations["keywords"], "panic")
	}
	if a.Source != "host-2" {
		t.Errorf("Source = %q", a.Source)
	}
}
