package report

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/gatescan/gatescan/pkg/risk"
)

func TestBuild(t *testing.T) {
	hits := []risk.Hit{
		risk.NewHit("SQLI_KEYWORD", risk.SeverityHigh, "Potential SQL keywords/operators.", `\bselect\b`, risk.DefaultWeights(), []string{"injection", "sqli"}),
	}
	r := Build("SELECT 1", "select 1", hits, 1.75, risk.DecisionBlock)

	if r.Input == nil || r.Input.Length != 8 {
		t.Fatalf("input length = %+v, want 8", r.Input)
	}
	if r.Input.SHA256 != Digest("SELECT 1") {
		t.Errorf("input digest mismatch")
	}
	if len(r.Input.SHA256) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(r.Input.SHA256))
	}
	if r.Normalized == nil || r.Normalized.Length != 8 {
		t.Fatalf("normalized length = %+v, want 8", r.Normalized)
	}
	if r.Score != 1.75 {
		t.Errorf("score = %v, want 1.75", r.Score)
	}
	if r.Decision != risk.DecisionBlock {
		t.Errorf("decision = %q, want block", r.Decision)
	}
	if len(r.Hits) != 1 || r.Hits[0].Rule != "SQLI_KEYWORD" {
		t.Errorf("hits = %+v, want one SQLI_KEYWORD hit", r.Hits)
	}
	wantSummary := "Decision 'block' from score 1.75 based on 1 hit(s)."
	if r.Explanation.Summary != wantSummary {
		t.Errorf("summary = %q, want %q", r.Explanation.Summary, wantSummary)
	}
	if len(r.Explanation.Reasons) != 1 || r.Explanation.Reasons[0] != "Potential SQL keywords/operators." {
		t.Errorf("reasons = %v", r.Explanation.Reasons)
	}
	if r.Timestamp == "" {
		t.Error("timestamp is empty")
	}
	if r.ID == "" {
		t.Error("id is empty")
	}
	if r.Advisory != nil {
		t.Error("advisory should be unset before escalation")
	}
}

func TestBuildRuneLengths(t *testing.T) {
	r := Build("héllo　wörld", "héllo wörld", nil, 0, risk.DecisionAllow)
	if r.Input.Length != 11 {
		t.Errorf("input length = %d, want 11 runes", r.Input.Length)
	}
	if r.Normalized.Length != 11 {
		t.Errorf("normalized length = %d, want 11 runes", r.Normalized.Length)
	}
}

func TestBuildClamps(t *testing.T) {
	tests := []struct {
		name         string
		score        float64
		decision     risk.Decision
		wantScore    float64
		wantDecision risk.Decision
	}{
		{"nan score", math.NaN(), risk.DecisionAllow, 0, risk.DecisionAllow},
		{"inf score", math.Inf(1), risk.DecisionWarn, 0, risk.DecisionWarn},
		{"negative score", -4, risk.DecisionAllow, 0, risk.DecisionAllow},
		{"bogus decision", 0.5, risk.Decision("permit"), 0.5, risk.DecisionBlock},
		{"empty decision", 0, risk.Decision(""), 0, risk.DecisionBlock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Build("x", "x", nil, tt.score, tt.decision)
			if r.Score != tt.wantScore {
				t.Errorf("score = %v, want %v", r.Score, tt.wantScore)
			}
			if r.Decision != tt.wantDecision {
				t.Errorf("decision = %q, want %q", r.Decision, tt.wantDecision)
			}
		})
	}
}

func TestBuildError(t *testing.T) {
	r := BuildError("input exceeds max_input_chars=100000")
	if r.Decision != risk.DecisionBlock {
		t.Errorf("decision = %q, want block", r.Decision)
	}
	if r.Score != FailSafeScore {
		t.Errorf("score = %v, want %v", r.Score, FailSafeScore)
	}
	if r.Error == nil || r.Error.Message != "input exceeds max_input_chars=100000" {
		t.Errorf("error detail = %+v", r.Error)
	}
	if r.Explanation.Summary != "Fail-safe block due to input/runtime error." {
		t.Errorf("summary = %q", r.Explanation.Summary)
	}
	if r.Input != nil {
		t.Error("error report should carry no input digest")
	}
}

func TestSummaryFormatting(t *testing.T) {
	got := Summary(risk.DecisionWarn, 0.88, 2)
	if got != "Decision 'warn' from score 0.88 based on 2 hit(s)." {
		t.Errorf("Summary() = %q", got)
	}
	if got := Summary(risk.DecisionAllow, 0, 0); got != "Decision 'allow' from score 0 based on 0 hit(s)." {
		t.Errorf("Summary() = %q", got)
	}
}

func TestReportJSONShape(t *testing.T) {
	r := Build("SELECT 1", "select 1", nil, 0, risk.DecisionAllow)
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	for _, key := range []string{`"id"`, `"timestamp"`, `"input"`, `"sha256"`, `"normalized"`, `"hits"`, `"score"`, `"decision"`, `"explanation"`, `"summary"`} {
		if !strings.Contains(s, key) {
			t.Errorf("marshaled report missing %s: %s", key, s)
		}
	}
	if strings.Contains(s, `"ai_assessment"`) {
		t.Errorf("ai_assessment present without advisory step: %s", s)
	}
	if strings.Contains(s, `"error"`) {
		t.Errorf("error detail present on success report: %s", s)
	}
}

func TestAdvisoryJSONOmitsEmpty(t *testing.T) {
	r := Build("x", "x", nil, 0, risk.DecisionAllow)
	r.Advisory = &Advisory{Enabled: false, Status: StatusDisabled}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"status":"disabled"`) {
		t.Errorf("missing disabled status: %s", s)
	}
	if strings.Contains(s, `"recommended_decision"`) {
		t.Errorf("disabled advisory should omit recommendation: %s", s)
	}
}
