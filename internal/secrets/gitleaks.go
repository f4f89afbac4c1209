package secrets

import (
	"fmt"
	"regexp"
	"strings"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// gitleaksFinder runs the gitleaks default rule set. The detector is shared
// across calls; gitleaks scans fragments concurrently itself.
type gitleaksFinder struct {
	detector *detect.Detector
}

func newGitleaksFinder(allow *Allowlist) (*gitleaksFinder, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	if allow != nil {
		d.Config.Allowlists = append(d.Config.Allowlists, gitleaksAllowlist(allow))
	}
	return &gitleaksFinder{detector: d}, nil
}

// find reports every occurrence of each secret gitleaks detects. Gitleaks
// gives line and column per fragment only, so offsets come from searching
// content for the secret text.
func (g *gitleaksFinder) find(content string) []Finding {
	var out []Finding
	seen := make(map[string]bool)
	for _, f := range g.detector.DetectString(content) {
		if f.Secret == "" || seen[f.Secret] {
			continue
		}
		seen[f.Secret] = true
		for from := 0; ; {
			i := strings.Index(content[from:], f.Secret)
			if i < 0 {
				break
			}
			start := from + i
			from = start + len(f.Secret)
			out = append(out, newFinding(content, f.RuleID, f.Description, SeverityHigh, start, from))
		}
	}
	return out
}

// gitleaksAllowlist converts allow into a global gitleaks allowlist.
// LoadAllowlist has already checked that every pattern compiles.
func gitleaksAllowlist(allow *Allowlist) *gitleaksConfig.Allowlist {
	global := &gitleaksConfig.Allowlist{Description: "tracelog allowlist"}
	for _, p := range allow.Paths {
		global.Paths = append(global.Paths, (*gitleaksRegexp.Regexp)(regexp.MustCompile(p)))
	}
	for _, p := range allow.Regexes {
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(regexp.MustCompile(p)))
	}
	return global
}
