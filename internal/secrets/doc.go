// Package secrets detects and redacts credentials embedded in free text.
//
// Field-level sensitivity rules only see names. A token pasted into a
// comment field, or a connection string inside an error message, slips past
// them; the scrubber catches those by content. The renderer calls
// ScrubString on every string scalar it produces, so parameters, return
// values and change records are all covered.
//
// Two engines are available. EngineRegex runs the built-in rules and any
// configured patterns. EngineGitleaks runs the same rules plus the gitleaks
// default rule set, at a noticeably higher cost per string. Both honour a
// gitleaks-style TOML allowlist.
package secrets
