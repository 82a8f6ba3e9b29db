package rules

import (
	"github.com/gatescan/gatescan/pkg/risk"
)

// AllowlistMissSentinel is recorded in a hit's matched field when an
// allowlist rule fires because nothing matched. Callers can rely on this
// exact value to distinguish violations from real pattern matches.
const AllowlistMissSentinel = "<no allowlist pattern match>"

// Override patches a rule's severity or description at evaluation time
// without touching the catalog. A nil Description leaves the rule's own
// text in place; an unrecognized severity string is ignored.
type Override struct {
	Severity    string  `yaml:"severity" json:"severity,omitempty"`
	Description *string `yaml:"description" json:"description,omitempty"`
}

// Overrides maps rule names to their patches.
type Overrides map[string]Override

// resolve applies an override to a rule's severity and description.
// Invalid values are discarded field by field, never reported.
func (o Overrides) resolve(r Rule) (risk.Severity, string) {
	severity, description := r.Severity, r.Description
	ov, ok := o[r.Name]
	if !ok {
		return severity, description
	}
	if s, valid := risk.ParseSeverity(ov.Severity); valid {
		severity = s
	}
	if ov.Description != nil {
		description = *ov.Description
	}
	return severity, description
}

// firstMatch tries patterns in declaration order and returns the source of
// the first one that matches. The short-circuit is part of the contract:
// it fixes which pattern string a hit reports.
func firstMatch(text string, patterns []compiledPattern) (string, bool) {
	for _, p := range patterns {
		if p.re.MatchString(text) {
			return p.source, true
		}
	}
	return "", false
}

// Evaluate runs the catalog against normalized text and returns hits in
// deterministic order: catalog rules first, then the supplemental
// heuristics. The heuristics only run on an unrestricted scan (active ==
// nil); passing an explicit subset, even an empty one, disables them.
func (c *Catalog) Evaluate(text string, weights risk.Weights, overrides Overrides, active []string) []risk.Hit {
	hits := []risk.Hit{}
	for _, cr := range c.selectRules(active) {
		if len(cr.patterns) == 0 {
			continue
		}
		severity, description := overrides.resolve(cr.Rule)
		pattern, matched := firstMatch(text, cr.patterns)
		switch {
		case cr.Mode == ModeDetect && matched:
			hits = append(hits, risk.NewHit(cr.Name, severity, description, pattern, weights, cr.Tags))
		case cr.Mode == ModeAllowlist && !matched:
			hits = append(hits, risk.NewHit(cr.Name, severity, description, AllowlistMissSentinel, weights, cr.Tags))
		}
	}
	if active == nil {
		hits = append(hits, lengthCharsetHits(text, weights)...)
		hits = append(hits, repetitionHits(text, weights)...)
	}
	return hits
}
