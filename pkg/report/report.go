// Package report assembles the output record of a scan: input digest, hit
// list, score, decision, and the human-readable explanation. Reports are
// built once per scan and treated as immutable after advisory escalation;
// persistence code only ever reads them.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/gatescan/gatescan/pkg/risk"
)

// FailSafeScore is the sentinel score carried by error reports.
const FailSafeScore = 999.0

// Status is the lifecycle outcome of an advisory assessment.
type Status string

const (
	StatusDisabled        Status = "disabled"
	StatusSkipped         Status = "skipped"
	StatusInvalidResponse Status = "invalid_response"
	StatusError           Status = "error"
	StatusOK              Status = "ok"
)

// Advisory is the outcome of the remote advisory assessment attached to a
// report. RecommendedDecision, Confidence, and Explanation are only
// meaningful when Status is ok.
type Advisory struct {
	Enabled             bool          `json:"enabled"`
	Status              Status        `json:"status"`
	Reason              string        `json:"reason,omitempty"`
	RecommendedDecision risk.Decision `json:"recommended_decision,omitempty"`
	Confidence          float64       `json:"confidence,omitempty"`
	Explanation         string        `json:"explanation,omitempty"`
}

// InputDigest identifies the raw input without retaining it.
type InputDigest struct {
	SHA256 string `json:"sha256"`
	Length int    `json:"length"`
}

// NormalizedInfo describes the canonicalized form of the input.
type NormalizedInfo struct {
	Length int `json:"length"`
}

// Explanation is the human-readable side of a report.
type Explanation struct {
	Summary string   `json:"summary"`
	Reasons []string `json:"reasons,omitempty"`
}

// ErrorDetail carries the failure message of a fail-safe report.
type ErrorDetail struct {
	Message string `json:"message"`
}

// MLAnnotation is the optional local-classifier verdict. Informational
// unless the deployment opts in to classifier escalation.
type MLAnnotation struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Threat     bool    `json:"threat"`
}

// Report is the finished record of one scan invocation.
type Report struct {
	ID          string          `json:"id"`
	Timestamp   string          `json:"timestamp"`
	Input       *InputDigest    `json:"input,omitempty"`
	Normalized  *NormalizedInfo `json:"normalized,omitempty"`
	Hits        []risk.Hit      `json:"hits"`
	Score       float64         `json:"score"`
	Decision    risk.Decision   `json:"decision"`
	Explanation Explanation     `json:"explanation"`
	ML          *MLAnnotation   `json:"ml,omitempty"`
	Advisory    *Advisory       `json:"ai_assessment,omitempty"`
	Error       *ErrorDetail    `json:"error,omitempty"`
}

// Digest returns the hex SHA-256 of the raw input text.
func Digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Summary renders the one-line explanation for a decision, score, and hit
// count. Called again after escalation so the text always names the final
// decision.
func Summary(decision risk.Decision, score float64, hitCount int) string {
	return fmt.Sprintf("Decision '%s' from score %g based on %d hit(s).", decision, score, hitCount)
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// clampScore keeps persisted scores non-negative and finite.
func clampScore(score float64) float64 {
	if math.IsNaN(score) || math.IsInf(score, 0) || score < 0 {
		return 0
	}
	return score
}

// Build assembles a report from the scan pipeline's intermediate products.
// Inputs are clamped rather than trusted: a non-finite or negative score
// falls to 0 and an unrecognized decision falls to block, so a report can
// never carry values the decision engine could not have produced.
func Build(raw, normalized string, hits []risk.Hit, score float64, decision risk.Decision) *Report {
	if _, ok := risk.ParseDecision(string(decision)); !ok {
		decision = risk.DecisionBlock
	}
	score = clampScore(score)

	kept := make([]risk.Hit, len(hits))
	copy(kept, hits)
	reasons := make([]string, 0, len(kept))
	for _, h := range kept {
		reasons = append(reasons, h.Reason)
	}

	return &Report{
		ID:        uuid.NewString(),
		Timestamp: nowISO(),
		Input: &InputDigest{
			SHA256: Digest(raw),
			Length: utf8.RuneCountInString(raw),
		},
		Normalized: &NormalizedInfo{
			Length: utf8.RuneCountInString(normalized),
		},
		Hits:     kept,
		Score:    score,
		Decision: decision,
		Explanation: Explanation{
			Summary: Summary(decision, score, len(kept)),
			Reasons: reasons,
		},
	}
}

// BuildError produces the fail-safe report used when any pipeline stage
// fails: decision block, sentinel score, and the failure message.
func BuildError(message string) *Report {
	return &Report{
		ID:        uuid.NewString(),
		Timestamp: nowISO(),
		Hits:      []risk.Hit{},
		Score:     FailSafeScore,
		Decision:  risk.DecisionBlock,
		Error:     &ErrorDetail{Message: message},
		Explanation: Explanation{
			Summary: "Fail-safe block due to input/runtime error.",
		},
	}
}
