package secrets

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// DefaultRules returns the rules applied to rendered strings. They favour
// self-identifying token formats and key=value assignments; bare
// high-entropy strings are left alone since identifiers and hashes are
// routine in records.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "aws-access-key-id",
			Description: "AWS Access Key ID",
			Pattern:     `\b(?:A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}\b`,
			Severity:    SeverityHigh,
		},
		{
			ID:          "aws-secret-access-key",
			Description: "AWS Secret Access Key",
			Pattern:     `(?i)(?:aws_secret_access_key|aws_secret_key|secret_access_key)\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}['"]?`,
			Keywords:    []string{"secret"},
			Severity:    SeverityHigh,
		},
		{
			ID:          "generic-api-key",
			Description: "API key assignment",
			Pattern:     `(?i)(?:api[_-]?key|apikey)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,64}['"]?`,
			Keywords:    []string{"key"},
			Severity:    SeverityHigh,
		},
		{
			ID:          "generic-secret",
			Description: "Password or secret assignment",
			Pattern:     `(?i)(?:secret|password|passwd|pwd)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`,
			Keywords:    []string{"secret", "password", "passwd", "pwd"},
			Severity:    SeverityHigh,
		},
		{
			ID:          "private-key",
			Description: "PEM private key header",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----`,
			Severity:    SeverityHigh,
		},
		{
			ID:          "github-token",
			Description: "GitHub token",
			Pattern:     `\b(?:ghp|gho|ghu|ghs)_[A-Za-z0-9]{36}\b|\bgithub_pat_[A-Za-z0-9_]{22,}`,
			Severity:    SeverityHigh,
		},
		{
			ID:          "gitlab-token",
			Description: "GitLab Personal Access Token",
			Pattern:     `glpat-[A-Za-z0-9\-]{20,}`,
			Severity:    SeverityHigh,
		},
		{
			ID:          "slack-token",
			Description: "Slack Token",
			Pattern:     `xox[baprs]-[A-Za-z0-9\-]{10,}`,
			Severity:    SeverityHigh,
		},
		{
			ID:          "stripe-key",
			Description: "Stripe API Key",
			Pattern:     `(?:sk|pk|rk)_(?:live|test)_[A-Za-z0-9]{24,}`,
			Severity:    SeverityHigh,
		},
		{
			ID:          "database-url",
			Description: "Connection URL with embedded credentials",
			Pattern:     `(?i)\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqps?)://[^:/\s]+:[^@\s]+@[^\s]+`,
			Severity:    SeverityHigh,
		},
		{
			ID:          "jwt",
			Description: "JSON Web Token",
			Pattern:     `\beyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`,
			Severity:    SeverityMedium,
		},
		{
			ID:          "bearer-token",
			Description: "Bearer credential",
			Pattern:     `(?i)\bbearer\s+[A-Za-z0-9_\-\.=]{20,}`,
			Keywords:    []string{"bearer"},
			Entropy:     3.0,
			Severity:    SeverityMedium,
		},
		{
			ID:          "credit-card",
			Description: "Payment card number",
			Pattern:     `\b(?:\d[ -]?){12,18}\d\b`,
			Validator:   ValidatorLuhn,
			Severity:    SeverityHigh,
		},
		{
			ID:          "env-credential",
			Description: "Environment variable with credential",
			Pattern:     `(?i)(?:^|[^A-Za-z0-9_])(?:DB_PASSWORD|DATABASE_PASSWORD|API_SECRET|APP_SECRET|SECRET_KEY|ENCRYPTION_KEY|PRIVATE_KEY|AUTH_TOKEN|ACCESS_TOKEN|REFRESH_TOKEN)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`,
			Severity:    SeverityHigh,
		},
	}
}

// compiledRule is a Rule ready to run.
type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []string // lower-cased
	validate func(string) bool
}

func compileRules(rules []Rule) ([]*compiledRule, error) {
	out := make([]*compiledRule, 0, len(rules))
	for i, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule %d: ID is required", i)
		}
		if r.Pattern == "" {
			return nil, fmt.Errorf("rule %s: pattern is required", r.ID)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: invalid pattern: %w", r.ID, err)
		}
		cr := &compiledRule{Rule: r, pattern: re}
		for _, kw := range r.Keywords {
			cr.keywords = append(cr.keywords, strings.ToLower(kw))
		}
		switch r.Validator {
		case "":
		case ValidatorLuhn:
			cr.validate = luhnValid
		default:
			return nil, fmt.Errorf("rule %s: unknown validator %q", r.ID, r.Validator)
		}
		out = append(out, cr)
	}
	return out, nil
}

func compilePatterns(what string, exprs []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for i, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("%s %d: invalid pattern: %w", what, i, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func (r *compiledRule) find(content string) []Finding {
	if !r.gated(content) {
		return nil
	}
	var out []Finding
	for _, loc := range r.pattern.FindAllStringIndex(content, -1) {
		m := content[loc[0]:loc[1]]
		if r.Entropy > 0 && shannonEntropy(m) < r.Entropy {
			continue
		}
		if r.validate != nil && !r.validate(m) {
			continue
		}
		out = append(out, newFinding(content, r.ID, r.Description, r.Severity, loc[0], loc[1]))
	}
	return out
}

// gated reports whether one of the keywords occurs in content. Rules
// without keywords always run.
func (r *compiledRule) gated(content string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	lower := strings.ToLower(content)
	for _, kw := range r.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// luhnValid reports whether the digits in s pass the Luhn checksum.
// Separators are ignored.
func luhnValid(s string) bool {
	sum, n := 0, 0
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		d := int(c - '0')
		if n%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		n++
	}
	return n >= 13 && sum%10 == 0
}

// shannonEntropy returns the entropy of s in bits per rune.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := make(map[rune]int)
	total := 0
	for _, r := range s {
		counts[r]++
		total++
	}
	var h float64
	for _, c := range counts {
		p := float64(c) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}
