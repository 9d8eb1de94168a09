package quality_test

import (
	"testing"

	"github.com/corelearn/ale/internal/quality"
)

func ratio(v float64) *float64 { return &v }

func TestMap_HighScoreNoModifiers(t *testing.T) {
	if got := quality.Map(0.95, false, nil); got != 5 {
		t.Errorf("expected 5, got %d", got)
	}
}

func TestMap_HintPenalty(t *testing.T) {
	if got := quality.Map(0.90, true, nil); got != 3 {
		t.Errorf("expected 3 (4-1), got %d", got)
	}
}

func TestMap_HintAndSlowPenaltyFloorsAtZero(t *testing.T) {
	if got := quality.Map(0.50, true, ratio(3.0)); got != 0 {
		t.Errorf("expected max(0, 2-2)=0, got %d", got)
	}
}

func TestMap_NeverBelowZero(t *testing.T) {
	if got := quality.Map(0.10, true, ratio(5.0)); got != 0 {
		t.Errorf("expected floor of 0, got %d", got)
	}
}

func TestMap_Bands(t *testing.T) {
	cases := []struct {
		score float64
		want  int
	}{
		{1.0, 5}, {0.95, 5}, {0.94, 4}, {0.85, 4}, {0.84, 3},
		{0.70, 3}, {0.69, 2}, {0.50, 2}, {0.49, 1}, {0.20, 1}, {0.19, 0}, {0.0, 0},
	}
	for _, c := range cases {
		if got := quality.Map(c.score, false, nil); got != c.want {
			t.Errorf("score=%v: expected %d, got %d", c.score, c.want, got)
		}
	}
}
