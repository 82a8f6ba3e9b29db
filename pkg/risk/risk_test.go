package risk

import (
	"math"
	"testing"
)

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want Severity
		ok   bool
	}{
		{"low", SeverityLow, true},
		{"MEDIUM", SeverityMedium, true},
		{"  High ", SeverityHigh, true},
		{"critical", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseSeverity(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseSeverity(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestWeightsFor(t *testing.T) {
	w := DefaultWeights()
	if got := w.For(SeverityLow); got != 0.33 {
		t.Errorf("low weight = %v, want 0.33", got)
	}
	if got := w.For(SeverityMedium); got != 0.55 {
		t.Errorf("medium weight = %v, want 0.55", got)
	}
	if got := w.For(SeverityHigh); got != 1.75 {
		t.Errorf("high weight = %v, want 1.75", got)
	}
	if got := w.For(Severity("bogus")); got != 0 {
		t.Errorf("unknown severity weight = %v, want 0", got)
	}
}

func TestScore(t *testing.T) {
	w := DefaultWeights()
	tests := []struct {
		name string
		hits []Hit
		want float64
	}{
		{"empty", nil, 0},
		{
			"single high",
			[]Hit{NewHit("SQLI_KEYWORD", SeverityHigh, "r", "m", w, nil)},
			1.75,
		},
		{
			"mixed tiers sum",
			[]Hit{
				NewHit("A", SeverityHigh, "r", "m", w, nil),
				NewHit("B", SeverityMedium, "r", "m", w, nil),
				NewHit("C", SeverityLow, "r", "m", w, nil),
			},
			2.63,
		},
		{
			"negative score falls back to weight",
			[]Hit{{Rule: "X", Severity: SeverityHigh, SeverityWeight: 1.75, Score: -3}},
			1.75,
		},
		{
			"nan score falls back to weight",
			[]Hit{{Rule: "X", Severity: SeverityMedium, SeverityWeight: 0.55, Score: math.NaN()}},
			0.55,
		},
		{
			"both invalid clamps to zero",
			[]Hit{{Rule: "X", SeverityWeight: math.Inf(1), Score: math.NaN()}},
			0,
		},
		{
			"rounded to 4 decimal places",
			[]Hit{{Score: 0.11111, SeverityWeight: 0}, {Score: 0.22222, SeverityWeight: 0}},
			0.3333,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.hits); got != tt.want {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreMonotonic(t *testing.T) {
	w := DefaultWeights()
	hits := []Hit{}
	prev := Score(hits)
	for i := 0; i < 5; i++ {
		hits = append(hits, NewHit("R", SeverityLow, "r", "m", w, nil))
		cur := Score(hits)
		if cur < prev {
			t.Fatalf("score decreased after adding a hit: %v -> %v", prev, cur)
		}
		prev = cur
	}
}

func TestThresholdsNormalized(t *testing.T) {
	tests := []struct {
		name string
		in   Thresholds
		want Thresholds
	}{
		{"valid passthrough", Thresholds{Warn: 0.5, Block: 2}, Thresholds{Warn: 0.5, Block: 2}},
		{"negative warn repaired", Thresholds{Warn: -1, Block: 2}, Thresholds{Warn: 0.55, Block: 2}},
		{"negative block repaired", Thresholds{Warn: 0.5, Block: -2}, Thresholds{Warn: 0.5, Block: 1.75}},
		{"nan both repaired", Thresholds{Warn: math.NaN(), Block: math.NaN()}, DefaultThresholds()},
		{"inverted pair raises block", Thresholds{Warn: 3, Block: 1}, Thresholds{Warn: 3, Block: 3}},
		{"zero warn is valid", Thresholds{Warn: 0, Block: 1}, Thresholds{Warn: 0, Block: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Normalized(); got != tt.want {
				t.Errorf("Normalized() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecide(t *testing.T) {
	def := DefaultThresholds()
	tests := []struct {
		name  string
		score float64
		th    Thresholds
		want  Decision
	}{
		{"zero allows", 0, def, DecisionAllow},
		{"below warn allows", 0.54, def, DecisionAllow},
		{"at warn warns", 0.55, def, DecisionWarn},
		{"between warns", 1.74, def, DecisionWarn},
		{"at block blocks", 1.75, def, DecisionBlock},
		{"above block blocks", 999, def, DecisionBlock},
		{"nan blocks", math.NaN(), def, DecisionBlock},
		{"positive inf blocks", math.Inf(1), def, DecisionBlock},
		{"negative inf blocks", math.Inf(-1), def, DecisionBlock},
		{"inverted thresholds use warn as block", 1.5, Thresholds{Warn: 1.0, Block: 0.5}, DecisionBlock},
		{"inverted thresholds allow below warn", 0.9, Thresholds{Warn: 1.0, Block: 0.5}, DecisionAllow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.score, tt.th); got != tt.want {
				t.Errorf("Decide(%v, %+v) = %q, want %q", tt.score, tt.th, got, tt.want)
			}
		})
	}
}

func TestDecisionOrder(t *testing.T) {
	if DecisionAllow.Rank() >= DecisionWarn.Rank() || DecisionWarn.Rank() >= DecisionBlock.Rank() {
		t.Fatal("decision ranks are not strictly ordered allow < warn < block")
	}
	if got := MaxDecision(DecisionWarn, DecisionAllow); got != DecisionWarn {
		t.Errorf("MaxDecision(warn, allow) = %q, want warn", got)
	}
	if got := MaxDecision(DecisionWarn, DecisionBlock); got != DecisionBlock {
		t.Errorf("MaxDecision(warn, block) = %q, want block", got)
	}
	if got := MaxDecision(DecisionBlock, Decision("mystery")); got != DecisionBlock {
		t.Errorf("MaxDecision(block, unknown) = %q, want block", got)
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		in   string
		want Decision
		ok   bool
	}{
		{"allow", DecisionAllow, true},
		{"WARN", DecisionWarn, true},
		{" Block ", DecisionBlock, true},
		{"deny", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseDecision(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseDecision(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
