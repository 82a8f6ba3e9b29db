// Package rules holds the detection catalog and the evaluator that turns
// normalized text into hits. All regex patterns are compiled once at catalog
// construction and shared across every scan; the catalog is never mutated
// afterwards, so it needs no locking under concurrent use.
package rules

import (
	"regexp"
	"strings"

	"github.com/gatescan/gatescan/pkg/risk"
)

// Mode selects how a rule's patterns are interpreted.
type Mode string

const (
	// ModeDetect fires a hit when any pattern matches (blacklist semantics).
	ModeDetect Mode = "detect"
	// ModeAllowlist fires a violation hit when no pattern matches
	// (whitelist semantics).
	ModeAllowlist Mode = "allowlist"
)

// ParseMode normalizes a mode string. Empty input defaults to detect.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return ModeDetect, true
	case ModeDetect:
		return ModeDetect, true
	case ModeAllowlist:
		return ModeAllowlist, true
	}
	return "", false
}

// Rule is one immutable catalog entry. Patterns are tried in declaration
// order and matched case-insensitively against normalized text.
type Rule struct {
	Name        string        `yaml:"name" json:"name"`
	Severity    risk.Severity `yaml:"severity" json:"severity"`
	Description string        `yaml:"description" json:"description"`
	Patterns    []string      `yaml:"patterns" json:"patterns"`
	Tags        []string      `yaml:"tags" json:"tags"`
	Mode        Mode          `yaml:"mode" json:"mode"`
}

// compiledPattern pairs a compiled regex with its source text, because the
// hit's matched field must report the pattern exactly as declared.
type compiledPattern struct {
	source string
	re     *regexp.Regexp
}

type compiledRule struct {
	Rule
	patterns []compiledPattern
}

// Catalog is an immutable, pre-compiled rule set. Build one with NewCatalog
// or use Builtin for the stock rules.
type Catalog struct {
	rules  []compiledRule
	byName map[string]int
}

// NewCatalog compiles a rule list into a catalog. Patterns that fail to
// compile are dropped; a rule left with zero usable patterns stays in the
// catalog but can never produce a hit. Rules with an unrecognized mode or
// severity are dropped entirely, as are later duplicates of a name.
func NewCatalog(list []Rule) *Catalog {
	c := &Catalog{byName: make(map[string]int, len(list))}
	for _, r := range list {
		if r.Name == "" {
			continue
		}
		if _, seen := c.byName[r.Name]; seen {
			continue
		}
		mode, ok := ParseMode(string(r.Mode))
		if !ok {
			continue
		}
		r.Mode = mode
		severity, ok := risk.ParseSeverity(string(r.Severity))
		if !ok {
			continue
		}
		r.Severity = severity

		cr := compiledRule{Rule: r}
		for _, p := range r.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				continue
			}
			cr.patterns = append(cr.patterns, compiledPattern{source: p, re: re})
		}
		c.byName[r.Name] = len(c.rules)
		c.rules = append(c.rules, cr)
	}
	return c
}

// Len returns the number of rules in the catalog.
func (c *Catalog) Len() int {
	return len(c.rules)
}

// Get returns the rule definition for a name.
func (c *Catalog) Get(name string) (Rule, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Rule{}, false
	}
	return c.rules[i].Rule, true
}

// Rules returns the rule definitions in catalog order.
func (c *Catalog) Rules() []Rule {
	out := make([]Rule, 0, len(c.rules))
	for _, cr := range c.rules {
		out = append(out, cr.Rule)
	}
	return out
}

// selectRules resolves the active rule set for one evaluation. With no
// subset named, every detect-mode rule runs; allowlist rules only run when
// asked for explicitly, since free text would otherwise always violate
// them. Unknown names are ignored.
func (c *Catalog) selectRules(active []string) []compiledRule {
	if len(active) == 0 {
		var selected []compiledRule
		for _, cr := range c.rules {
			if cr.Mode == ModeDetect {
				selected = append(selected, cr)
			}
		}
		return selected
	}
	var selected []compiledRule
	for _, name := range active {
		if i, ok := c.byName[name]; ok {
			selected = append(selected, c.rules[i])
		}
	}
	return selected
}
