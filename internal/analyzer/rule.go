// Package analyzer applies a prioritized, grouped ruleset to parsed log
// records and produces per-rule analysis results.
package analyzer

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"logflow/pkg/logmodel"
)

// RuleConfig is the configuration shared by every rule variant.
type RuleConfig struct {
	Priority   int
	Group      string
	Enabled    bool
	MaxRetries int
	Timeout    time.Duration
}

// Rule evaluates one record and produces an AnalysisResult. Implementations
// must be safe for concurrent Evaluate calls; Config/SetEnabled are used by
// the Store under its own lock and must be independently safe too.
type Rule interface {
	Name() string
	Config() RuleConfig
	SetEnabled(enabled bool)
	Evaluate(rec *logmodel.LogRecord) (logmodel.AnalysisResult, error)
}

func defaultGroup(g string) string {
	if g == "" {
		return "default"
	}
	return g
}

// RegexRule matches a record's Message against a compiled pattern and maps
// numbered capture groups to result fields.
type RegexRule struct {
	name          string
	pattern       *regexp.Regexp
	captureFields map[int]string

	mu  sync.RWMutex
	cfg RuleConfig
}

// NewRegexRule compiles pattern and returns a RegexRule. captureFields maps
// capture group index to the result key it populates on a match.
func NewRegexRule(name, pattern string, captureFields map[int]string, cfg RuleConfig) (*RegexRule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	cfg.Group = defaultGroup(cfg.Group)
	return &RegexRule{name: name, pattern: re, captureFields: captureFields, cfg: cfg}, nil
}

// Name returns the rule's name.
func (r *RegexRule) Name() string { return r.name }

// Config returns a copy of the rule's current configuration.
func (r *RegexRule) Config() RuleConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// SetEnabled flips the rule's enabled flag.
func (r *RegexRule) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.Enabled = enabled
}

// Evaluate matches pattern against rec.Message.
func (r *RegexRule) Evaluate(rec *logmodel.LogRecord) (logmodel.AnalysisResult, error) {
	cfg := r.Config()
	result := logmodel.AnalysisResult{
		"rule":  r.name,
		"group": cfg.Group,
	}

	matches := r.pattern.FindStringSubmatch(rec.Message)
	if matches == nil {
		result["matched"] = "false"
		return result, nil
	}

	result["matched"] = "true"
	for idx, name := range r.captureFields {
		if idx < len(matches) {
			result[name] = matches[idx]
		}
	}
	return result, nil
}

// KeywordRule checks a record field for the presence of configured
// keywords, case-insensitively.
type KeywordRule struct {
	name     string
	field    string
	keywords []string
	scoring  bool

	mu  sync.RWMutex
	cfg RuleConfig
}

// NewKeywordRule returns a KeywordRule checking field against keywords.
// When scoring is true, the result additionally carries
// score = 100*matched/len(keywords).
func NewKeywordRule(name, field string, keywords []string, scoring bool, cfg RuleConfig) *KeywordRule {
	cfg.Group = defaultGroup(cfg.Group)
	return &KeywordRule{name: name, field: field, keywords: keywords, scoring: scoring, cfg: cfg}
}

// Name returns the rule's name.
func (r *KeywordRule) Name() string { return r.name }

// Config returns a copy of the rule's current configuration.
func (r *KeywordRule) Config() RuleConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// SetEnabled flips the rule's enabled flag.
func (r *KeywordRule) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.Enabled = enabled
}

// Evaluate checks the value fieldValue reads for r.field for keyword
// presence. A field name absent from the record matches nothing.
func (r *KeywordRule) Evaluate(rec *logmodel.LogRecord) (logmodel.AnalysisResult, error) {
	cfg := r.Config()
	result := logmodel.AnalysisResult{
		"rule":  r.name,
		"group": cfg.Group,
	}

	value := fieldValue(rec, r.field)
	lower := strings.ToLower(value)

	var matchedKeywords []string
	for _, kw := range r.keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			matchedKeywords = append(matchedKeywords, kw)
		}
	}

	matched := len(matchedKeywords) > 0
	result["matched"] = strconv.FormatBool(matched)
	if matched {
		result["matched_keywords"] = strings.Join(matchedKeywords, ", ")
	}
	if r.scoring && len(r.keywords) > 0 {
		score := 100 * len(matchedKeywords) / len(r.keywords)
		result["score"] = strconv.Itoa(score)
	}
	return result, nil
}

// fieldValue reads a record field by name: an empty name or "message" reads
// Message, "source" and "level" read those record fields, and any other name
// reads Fields[name], yielding "" when that key is absent.
func fieldValue(rec *logmodel.LogRecord, field string) string {
	switch field {
	case "", "message":
		return rec.Message
	case "source":
		return rec.Source
	case "level":
		return rec.Level.String()
	default:
		if v, ok := rec.Fields[field]; ok {
			return v
		}
		return ""
	}
}

