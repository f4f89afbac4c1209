package secrets

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/tracelog/pkg/sensitivity"
)

// Scrubber detects and redacts secrets in free text.
type Scrubber interface {
	Scrub(content string) *Result

	// ScrubString returns content with secrets redacted. It satisfies
	// render.Scrubber.
	ScrubString(content string) string

	// Check reports secrets without redacting them.
	Check(content string) *Result

	IsEnabled() bool
}

// finder locates secrets in content.
type finder interface {
	find(content string) []Finding
}

// scrubber runs its finders, drops allowlisted matches and replaces the
// rest. It is immutable after New and safe for concurrent use.
type scrubber struct {
	replacement string
	finders     []finder
	allow       []*regexp.Regexp
}

// New builds a Scrubber from cfg, or from DefaultConfig when cfg is nil. A
// disabled config yields a NoopScrubber.
func New(cfg *Config) (Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if !cfg.Enabled {
		return &NoopScrubber{}, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	allowExprs := cfg.Allow
	var file *Allowlist
	if cfg.AllowlistFile != "" {
		var err error
		if file, err = LoadAllowlist(cfg.AllowlistFile); err != nil {
			return nil, err
		}
		allowExprs = append(append([]string(nil), cfg.Allow...), file.Regexes...)
	}
	allow, err := compilePatterns("allow", allowExprs)
	if err != nil {
		return nil, err
	}
	rules, err := compileRules(cfg.Rules)
	if err != nil {
		return nil, err
	}

	s := &scrubber{replacement: cfg.Replacement, allow: allow}
	if s.replacement == "" {
		s.replacement = sensitivity.DefaultRedaction
	}
	for _, r := range rules {
		s.finders = append(s.finders, r)
	}
	if cfg.Engine == EngineGitleaks {
		g, err := newGitleaksFinder(file)
		if err != nil {
			return nil, err
		}
		s.finders = append(s.finders, g)
	}
	return s, nil
}

// MustNew is New for configs known to be valid.
func MustNew(cfg *Config) Scrubber {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *scrubber) Scrub(content string) *Result {
	start := time.Now()
	result := newResult(content)
	if content != "" {
		for _, f := range s.findings(content) {
			result.Findings = append(result.Findings, f)
			result.ByRule[f.RuleID]++
		}
		if result.HasFindings() {
			result.Scrubbed = s.redact(content, result.Findings)
		}
	}
	result.Duration = time.Since(start)
	return result
}

func (s *scrubber) findings(content string) []Finding {
	var out []Finding
	for _, f := range s.finders {
		for _, found := range f.find(content) {
			if !s.allowed(content[found.Start:found.End]) {
				out = append(out, found)
			}
		}
	}
	return out
}

func (s *scrubber) allowed(secret string) bool {
	for _, re := range s.allow {
		if re.MatchString(secret) {
			return true
		}
	}
	return false
}

// redact replaces the union of the finding spans, so overlapping matches
// from different rules produce a single replacement.
func (s *scrubber) redact(content string, findings []Finding) string {
	spans := make([][2]int, 0, len(findings))
	for _, f := range findings {
		spans = append(spans, [2]int{f.Start, f.End})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })

	var b strings.Builder
	b.Grow(len(content))
	prev := 0
	for i := 0; i < len(spans); {
		start, end := spans[i][0], spans[i][1]
		for i++; i < len(spans) && spans[i][0] <= end; i++ {
			if spans[i][1] > end {
				end = spans[i][1]
			}
		}
		b.WriteString(content[prev:start])
		b.WriteString(s.replacement)
		prev = end
	}
	b.WriteString(content[prev:])
	return b.String()
}

func (s *scrubber) ScrubString(content string) string {
	return s.Scrub(content).Scrubbed
}

func (s *scrubber) Check(content string) *Result {
	result := s.Scrub(content)
	result.Scrubbed = result.Original
	return result
}

func (s *scrubber) IsEnabled() bool { return true }

func newResult(content string) *Result {
	return &Result{
		Original: content,
		Scrubbed: content,
		Findings: []Finding{},
		ByRule:   map[string]int{},
	}
}

func newFinding(content, ruleID, desc string, sev Severity, start, end int) Finding {
	return Finding{
		RuleID:      ruleID,
		Description: desc,
		Severity:    sev,
		Start:       start,
		End:         end,
		Line:        strings.Count(content[:start], "\n") + 1,
	}
}

// NoopScrubber leaves content untouched.
type NoopScrubber struct{}

func (n *NoopScrubber) Scrub(content string) *Result      { return newResult(content) }
func (n *NoopScrubber) ScrubString(content string) string { return content }
func (n *NoopScrubber) Check(content string) *Result      { return newResult(content) }
func (n *NoopScrubber) IsEnabled() bool                   { return false }

var (
	_ Scrubber = (*scrubber)(nil)
	_ Scrubber = (*NoopScrubber)(nil)
)
