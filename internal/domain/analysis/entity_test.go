package analysis

import (
	"errors"
	"math"
	"testing"
)

func TestParseRiskLevel(t *testing.T) {
	cases := map[string]RiskLevel{
		"baixo":  RiskLow,
		"médio":  RiskMedium,
		"medio":  RiskMedium,
		"alto":   RiskHigh,
		"low":    RiskLow,
		"Medium": RiskMedium,
		"HIGH":   RiskHigh,
		" alto ": RiskHigh,
	}
	for in, want := range cases {
		got, err := ParseRiskLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseRiskLevel(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseRiskLevel("unknown"); !errors.Is(err, ErrUnknownRiskLevel) {
		t.Errorf("got %v, want ErrUnknownRiskLevel", err)
	}
	if _, err := ParseRiskLevel(""); err == nil {
		t.Error("empty input should not parse")
	}
}

func TestScoreResultValidate(t *testing.T) {
	ok := ScoreResult{RiskLevel: RiskLow, Score: 0.12}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (ScoreResult{RiskLevel: "severe", Score: 1}).Validate(); err == nil {
		t.Error("unrecognized level should fail")
	}
	if err := (ScoreResult{RiskLevel: RiskHigh, Score: math.NaN()}).Validate(); err == nil {
		t.Error("NaN score should fail")
	}
	if err := (ScoreResult{RiskLevel: RiskHigh, Score: math.Inf(1)}).Validate(); err == nil {
		t.Error("infinite score should fail")
	}
}
