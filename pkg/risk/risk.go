// Package risk holds the scoring and decision primitives of the gateway:
// severity tiers, per-tier weights, rule hits, the score reduction, and the
// threshold-based allow/warn/block decision.
//
// Hits and thresholds arrive from configuration files and journal replay
// as well as our own code; NaN, Inf, and negative values clamp to safe
// defaults instead of failing.
package risk

import (
	"math"
	"strings"
)

// Severity classifies how dangerous a rule hit is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity maps a free-form string onto a Severity, case-insensitively.
// Returns false for anything outside the three valid tiers.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow, true
	case SeverityMedium:
		return SeverityMedium, true
	case SeverityHigh:
		return SeverityHigh, true
	}
	return "", false
}

// Weights is the severity→score lookup table. Values come from the
// configuration record and are expected to be non-negative.
type Weights struct {
	Low    float64 `yaml:"low" json:"low"`
	Medium float64 `yaml:"medium" json:"medium"`
	High   float64 `yaml:"high" json:"high"`
}

// DefaultWeights returns the stock weight table.
func DefaultWeights() Weights {
	return Weights{Low: 0.33, Medium: 0.55, High: 1.75}
}

// For returns the weight for a severity tier, 0 for anything unknown.
func (w Weights) For(s Severity) float64 {
	switch s {
	case SeverityLow:
		return w.Low
	case SeverityMedium:
		return w.Medium
	case SeverityHigh:
		return w.High
	}
	return 0
}

// Hit records a single rule match (or allowlist violation) found during
// evaluation. Matched holds the pattern string that triggered, or a sentinel
// when an allowlist rule fired by absence of any match.
type Hit struct {
	Rule           string   `json:"rule"`
	Severity       Severity `json:"severity"`
	SeverityWeight float64  `json:"severity_weight"`
	Score          float64  `json:"score"`
	Reason         string   `json:"reason"`
	Matched        string   `json:"matched"`
	Tags           []string `json:"tags"`
}

// NewHit builds a hit with its score seeded from the weight table.
func NewHit(rule string, severity Severity, reason, matched string, weights Weights, tags []string) Hit {
	w := weights.For(severity)
	return Hit{
		Rule:           rule,
		Severity:       severity,
		SeverityWeight: w,
		Score:          w,
		Reason:         reason,
		Matched:        matched,
		Tags:           tags,
	}
}

// validScore reports whether v can contribute to a total: finite and not
// negative.
func validScore(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// contribution picks the hit's own score when valid, falls back to the
// severity weight, and bottoms out at zero. Hits decoded from external data
// can carry NaN/Inf/negative values; those never reach the total.
func contribution(h Hit) float64 {
	if validScore(h.Score) {
		return h.Score
	}
	if validScore(h.SeverityWeight) {
		return h.SeverityWeight
	}
	return 0
}

// Score reduces a hit list to a single non-negative, finite risk score,
// rounded to 4 decimal places. A nil or empty list scores 0.
func Score(hits []Hit) float64 {
	total := 0.0
	for _, h := range hits {
		total += contribution(h)
	}
	return math.Round(total*1e4) / 1e4
}

// Decision is the ternary scan outcome, totally ordered allow < warn < block.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionWarn  Decision = "warn"
	DecisionBlock Decision = "block"
)

// ParseDecision maps a free-form string onto a Decision, case-insensitively.
func ParseDecision(s string) (Decision, bool) {
	switch Decision(strings.ToLower(strings.TrimSpace(s))) {
	case DecisionAllow:
		return DecisionAllow, true
	case DecisionWarn:
		return DecisionWarn, true
	case DecisionBlock:
		return DecisionBlock, true
	}
	return "", false
}

// Rank places a decision on the allow(0) < warn(1) < block(2) order.
// Unknown values rank lowest so a malformed input can never mask a real
// escalation.
func (d Decision) Rank() int {
	switch d {
	case DecisionWarn:
		return 1
	case DecisionBlock:
		return 2
	}
	return 0
}

// MaxDecision returns the more severe of two decisions.
func MaxDecision(a, b Decision) Decision {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Default decision thresholds, used whenever configured values are missing
// or unusable.
const (
	DefaultWarnThreshold  = 0.55
	DefaultBlockThreshold = 1.75
)

// Thresholds are the two ordered cut points of the decision engine.
type Thresholds struct {
	Warn  float64 `yaml:"warn" json:"warn"`
	Block float64 `yaml:"block" json:"block"`
}

// DefaultThresholds returns the stock cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{Warn: DefaultWarnThreshold, Block: DefaultBlockThreshold}
}

// Normalized repairs a threshold pair: non-finite or negative values fall
// back to the defaults, and warn ≤ block is enforced by raising block.
func (t Thresholds) Normalized() Thresholds {
	warn := t.Warn
	if math.IsNaN(warn) || math.IsInf(warn, 0) || warn < 0 {
		warn = DefaultWarnThreshold
	}
	block := t.Block
	if math.IsNaN(block) || math.IsInf(block, 0) || block < 0 {
		block = DefaultBlockThreshold
	}
	if warn > block {
		block = warn
	}
	return Thresholds{Warn: warn, Block: block}
}

// Decide maps a score onto a decision. A score that is not a finite number
// fails safe to block regardless of thresholds.
func Decide(score float64, t Thresholds) Decision {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return DecisionBlock
	}
	n := t.Normalized()
	switch {
	case score >= n.Block:
		return DecisionBlock
	case score >= n.Warn:
		return DecisionWarn
	}
	return DecisionAllow
}
