package sensitivity

import (
	"strings"
	"unicode"
)

// DefaultFieldNames lists the field names redacted when no directive applies.
var DefaultFieldNames = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"apikey",
	"privatekey",
	"credential",
	"authorization",
	"ssn",
	"creditcard",
	"cardnumber",
	"cvv",
}

// Policy redacts values whose field or parameter name looks sensitive. Names
// are compared case-insensitively with separators removed, so "api_key",
// "apiKey" and "API-Key" are all matched by "apikey". A name matches when it
// contains a configured name.
//
// A Policy is immutable once built and safe for concurrent use.
type Policy struct {
	names       []string
	replacement string
}

// NewPolicy returns a policy matching the given names.
func NewPolicy(names ...string) *Policy {
	p := &Policy{replacement: DefaultRedaction}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = normalize(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		p.names = append(p.names, n)
	}
	return p
}

// DefaultPolicy returns a policy matching DefaultFieldNames.
func DefaultPolicy() *Policy {
	return NewPolicy(DefaultFieldNames...)
}

// WithReplacement returns a copy of p that redacts with text.
func (p *Policy) WithReplacement(text string) *Policy {
	cp := *p
	cp.names = append([]string(nil), p.names...)
	if text == "" {
		text = DefaultRedaction
	}
	cp.replacement = text
	return &cp
}

// Replacement is the text matched members are redacted with.
func (p *Policy) Replacement() string {
	return p.replacement
}

// Names returns the normalized names the policy matches.
func (p *Policy) Names() []string {
	return append([]string(nil), p.names...)
}

// Matches reports whether name looks sensitive.
func (p *Policy) Matches(name string) bool {
	if p == nil || name == "" {
		return false
	}
	n := normalize(name)
	for _, s := range p.names {
		if strings.Contains(n, s) {
			return true
		}
	}
	return false
}

// Directive returns a redact directive for sensitive names and None
// otherwise.
func (p *Policy) Directive(name string) Directive {
	if p.Matches(name) {
		return Redact(p.replacement)
	}
	return None()
}

func normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r == '_' || r == '-' || r == '.' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
