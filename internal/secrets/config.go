package secrets

import (
	"fmt"

	"github.com/fyrsmithlabs/tracelog/internal/config"
	"github.com/fyrsmithlabs/tracelog/pkg/sensitivity"
)

// Detection engines.
const (
	EngineRegex    = "regex"
	EngineGitleaks = "gitleaks" // Rules plus the gitleaks default rule set
)

// ValidatorLuhn accepts only matches passing the card-number checksum.
const ValidatorLuhn = "luhn"

// Config configures a Scrubber.
type Config struct {
	Enabled bool
	Rules   []Rule

	// Replacement is written in place of every detected secret.
	Replacement string

	// Allow holds regexes; a detected secret matching any of them is kept.
	Allow []string

	Engine string

	// AllowlistFile names a gitleaks-style TOML allowlist whose regexes are
	// added to Allow. A missing file is ignored.
	AllowlistFile string
}

// Rule detects one kind of secret.
type Rule struct {
	ID          string
	Description string
	Pattern     string
	Severity    Severity

	// Keywords gate the rule: it only runs on content containing one of
	// them, case-insensitively.
	Keywords []string

	// Entropy is the minimum Shannon entropy in bits per rune a match
	// needs. Zero disables the check.
	Entropy float64

	Validator string
}

// DefaultConfig enables the built-in rules with the standard redaction text.
func DefaultConfig() *Config {
	return &Config{
		Enabled:     true,
		Rules:       DefaultRules(),
		Replacement: sensitivity.DefaultRedaction,
	}
}

// FromConfig builds a scrubber config from the redaction section: the
// built-in rules plus one "custom-N" rule per configured pattern.
func FromConfig(red config.RedactionConfig) *Config {
	cfg := DefaultConfig()
	cfg.Enabled = red.Scrub
	cfg.Engine = red.Engine
	cfg.AllowlistFile = red.AllowlistFile
	if red.Replacement != "" {
		cfg.Replacement = red.Replacement
	}
	for i, p := range red.Patterns {
		cfg.Rules = append(cfg.Rules, Rule{
			ID:          fmt.Sprintf("custom-%d", i+1),
			Description: "Configured redaction pattern",
			Pattern:     p,
			Severity:    SeverityHigh,
		})
	}
	return cfg
}

// Validate compiles every rule and allow pattern without building a
// Scrubber.
func (c *Config) Validate() error {
	if _, err := compileRules(c.Rules); err != nil {
		return err
	}
	if _, err := compilePatterns("allow", c.Allow); err != nil {
		return err
	}
	switch c.Engine {
	case "", EngineRegex, EngineGitleaks:
		return nil
	default:
		return fmt.Errorf("unknown engine %q", c.Engine)
	}
}
