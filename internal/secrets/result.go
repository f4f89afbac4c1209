package secrets

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Severity ranks how damaging a leaked secret would be.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Finding locates one redacted secret. The secret itself is never kept.
type Finding struct {
	RuleID      string   `json:"rule_id"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`

	// Start and End are byte offsets into the original content.
	Start int `json:"start"`
	End   int `json:"end"`
	Line  int `json:"line,omitempty"`
}

// Result is the outcome of scrubbing one string.
type Result struct {
	Original string         `json:"-"`
	Scrubbed string         `json:"scrubbed"`
	Findings []Finding      `json:"findings,omitempty"`
	ByRule   map[string]int `json:"by_rule,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// Count is the number of redacted secrets.
func (r *Result) Count() int {
	return len(r.Findings)
}

// HasFindings reports whether anything was redacted.
func (r *Result) HasFindings() bool {
	return len(r.Findings) > 0
}

// MaxSeverity is the highest severity among the findings, or "" when clean.
func (r *Result) MaxSeverity() Severity {
	var top Severity
	for _, f := range r.Findings {
		if f.Severity.rank() > top.rank() {
			top = f.Severity
		}
	}
	return top
}

// RuleIDs returns the matched rule IDs, sorted.
func (r *Result) RuleIDs() []string {
	ids := make([]string, 0, len(r.ByRule))
	for id := range r.ByRule {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Result) String() string {
	switch n := r.Count(); n {
	case 0:
		return "no secrets detected"
	case 1:
		return fmt.Sprintf("1 secret redacted (%s)", strings.Join(r.RuleIDs(), ", "))
	default:
		return fmt.Sprintf("%d secrets redacted (%s)", n, strings.Join(r.RuleIDs(), ", "))
	}
}

// Fields describes the result for the diagnostic logger.
func (r *Result) Fields() []zap.Field {
	fields := []zap.Field{
		zap.Int("findings", r.Count()),
		zap.Duration("duration", r.Duration),
	}
	if r.HasFindings() {
		fields = append(fields,
			zap.Strings("rules", r.RuleIDs()),
			zap.String("severity", string(r.MaxSeverity())))
	}
	return fields
}
