package alert

import (
	"strconv"
	"strings"

	"logflow/pkg/logmodel"
)

// RuleConfig is shared by every AlertRule variant.
type RuleConfig struct {
	Name        string
	Level       logmodel.Level
	Group       string
	Description string
}

// AlertRule inspects a record plus its per-rule analysis results and
// decides whether to raise an alert.
type AlertRule interface {
	Name() string
	Group() string
	// Check reports whether rec/results trip this rule. When true,
	// GenerateAlert is called to build the candidate Alert.
	Check(rec *logmodel.LogRecord, results map[string]logmodel.AnalysisResult) bool
	GenerateAlert(rec *logmodel.LogRecord, results map[string]logmodel.AnalysisResult) *Alert
}

// CompareOp is a threshold comparison operator.
type CompareOp string

const (
	OpGTE CompareOp = ">="
	OpGT  CompareOp = ">"
	OpLTE CompareOp = "<="
	OpLT  CompareOp = "<"
	OpEQ  CompareOp = "=="
)

// ThresholdRule fires when a named result field, parsed as a float,
// satisfies Op against Threshold.
type ThresholdRule struct {
	cfg       RuleConfig
	ruleName  string // the AnalysisResult key this threshold reads from
	Field     string
	Op        CompareOp
	Threshold float64
}

// NewThresholdRule returns a ThresholdRule reading Field from the
// AnalysisResult produced under key sourceRule.
func NewThresholdRule(cfg RuleConfig, sourceRule, field string, op CompareOp, threshold float64) *ThresholdRule {
	return &ThresholdRule{cfg: cfg, ruleName: sourceRule, Field: field, Op: op, Threshold: threshold}
}

func (r *ThresholdRule) Name() string  { return r.cfg.Name }
func (r *ThresholdRule) Group() string { return r.cfg.Group }

func (r *ThresholdRule) Check(_ *logmodel.LogRecord, results map[string]logmodel.AnalysisResult) bool {
	value, ok := r.fieldValue(results)
	if !ok {
		return false
	}
	return compare(value, r.Op, r.Threshold)
}

func (r *ThresholdRule) fieldValue(results map[string]logmodel.AnalysisResult) (float64, bool) {
	result, ok := results[r.ruleName]
	if !ok {
		return 0, false
	}
	raw, ok := result[r.Field]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func compare(value float64, op CompareOp, threshold float64) bool {
	switch op {
	case OpGTE:
		return value >= threshold
	case OpGT:
		return value > threshold
	case OpLTE:
		return value <= threshold
	case OpLT:
		return value < threshold
	case OpEQ:
		return value == threshold
	default:
		return false
	}
}

func (r *ThresholdRule) GenerateAlert(rec *logmodel.LogRecord, results map[string]logmodel.AnalysisResult) *Alert {
	value, _ := r.fieldValue(results)
	return &Alert{
		Name:        r.cfg.Name,
		Description: r.cfg.Description,
		Level:       r.cfg.Level,
		Status:      StatusPending,
		Source:      rec.Source,
		Labels: map[string]string{
			"rule":   r.cfg.Name,
			"source": rec.Source,
		},
		Annotations: map[string]string{
			"field":     r.Field,
			"value":     strconv.FormatFloat(value, 'f', -1, 64),
			"threshold": strconv.FormatFloat(r.Threshold, 'f', -1, 64),
		},
		RelatedLogIDs: []string{rec.ID},
	}
}

// KeywordRule fires when Field (a record field, falling back to Message)
// contains any (or, with MatchAll, every) configured keyword.
type KeywordRule struct {
	cfg      RuleConfig
	Field    string
	Keywords []string
	MatchAll bool
}

// NewKeywordRule returns a KeywordRule.
func NewKeywordRule(cfg RuleConfig, field string, keywords []string, matchAll bool) *KeywordRule {
	return &KeywordRule{cfg: cfg, Field: field, Keywords: keywords, MatchAll: matchAll}
}

func (r *KeywordRule) Name() string  { return r.cfg.Name }
func (r *KeywordRule) Group() string { return r.cfg.Group }

func (r *KeywordRule) fieldValue(rec *logmodel.LogRecord) string {
	switch r.Field {
	case "", "message":
		return rec.Message
	default:
		if v, ok := rec.Fields[r.Field]; ok {
			return v
		}
		return rec.Message
	}
}

func (r *KeywordRule) matchedKeywords(rec *logmodel.LogRecord) []string {
	value := strings.ToLower(r.fieldValue(rec))
	var matched []string
	for _, kw := range r.Keywords {
		if strings.Contains(value, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	return matched
}

func (r *KeywordRule) Check(rec *logmodel.LogRecord, _ map[string]logmodel.AnalysisResult) bool {
	matched := r.matchedKeywords(rec)
	if r.MatchAll {
		return len(matched) == len(r.Keywords) && len(r.Keywords) > 0
	}
	return len(matched) > 0
}

func (r *KeywordRule) GenerateAlert(rec *logmodel.LogRecord, _ map[string]logmodel.AnalysisResult) *Alert {
	matched := r.matchedKeywords(rec)
	return &Alert{
		Name:        r.cfg.Name,
		Description: r.cfg.Description,
		Level:       r.cfg.Level,
		Status:      StatusPending,
		Source:      rec.Source,
		Labels: map[string]string{
			"rule":   r.cfg.Name,
			"source": rec.Source,
		},
		Annotations: map[string]string{
			"keywords": strings.Join(matched, ", "),
		},
		RelatedLogIDs: []string{rec.ID},
	}
}
