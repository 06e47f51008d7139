package scoring

import (
	"math/rand/v2"
	"testing"

	"github.com/xela07ax/a11y-auditor/internal/domain"
	"github.com/xela07ax/a11y-auditor/internal/infra"
)

func TestScoreCleanPageCapsBonus(t *testing.T) {
	if got := Score(domain.SeverityCounts{}, 50, 0); got != 100 {
		t.Errorf("Score(clean, 50 passes) = %d, want 100", got)
	}
	b := DefaultWeights().Explain(domain.SeverityCounts{}, 1000, 0)
	if b.CoverageBonus != 15 {
		t.Errorf("coverage bonus = %v, want capped at 15", b.CoverageBonus)
	}
}

func TestScoreAppliesSeverityWeights(t *testing.T) {
	b := DefaultWeights().Explain(domain.SeverityCounts{Critical: 1}, 0, 0)
	if b.BeforeRatio() != 75 {
		t.Errorf("before ratio = %v, want 75", b.BeforeRatio())
	}
	// единственное нарушение без passes/incomplete, доля 1.0, штраф 20
	if b.RatioPenalty != 20 || b.Score != 55 {
		t.Errorf("ratio = %v score = %d, want 20 and 55", b.RatioPenalty, b.Score)
	}

	w := DefaultWeights()
	cases := []struct {
		counts domain.SeverityCounts
		want   float64
	}{
		{domain.SeverityCounts{Serious: 1}, 85},
		{domain.SeverityCounts{Moderate: 1}, 92},
		{domain.SeverityCounts{Minor: 1}, 97},
		{domain.SeverityCounts{Critical: 1, Serious: 1, Moderate: 1, Minor: 1}, 49},
	}
	for _, tc := range cases {
		if got := w.Explain(tc.counts, 0, 0).BeforeRatio(); got != tc.want {
			t.Errorf("before ratio for %+v = %v, want %v", tc.counts, got, tc.want)
		}
	}
}

func TestScoreMixedPage(t *testing.T) {
	// 100 - (25 + 2*8) + 20*0.3 - 0 - 3/23*20 = 62.39 -> 62
	got := Score(domain.SeverityCounts{Critical: 1, Moderate: 2}, 20, 0)
	if got != 62 {
		t.Errorf("Score = %d, want 62", got)
	}
}

func TestScoreAmbiguityPenaltyCapped(t *testing.T) {
	b := DefaultWeights().Explain(domain.SeverityCounts{}, 0, 40)
	if b.AmbiguityPenalty != 10 {
		t.Errorf("ambiguity penalty = %v, want 10", b.AmbiguityPenalty)
	}
	if b.Score != 90 {
		t.Errorf("score = %d, want 90", b.Score)
	}
}

func TestScoreZeroDenominatorSkipsRatio(t *testing.T) {
	b := DefaultWeights().Explain(domain.SeverityCounts{}, 0, 0)
	if b.RatioPenalty != 0 || b.Score != 100 {
		t.Errorf("empty scan: ratio = %v score = %d", b.RatioPenalty, b.Score)
	}
}

func TestScoreClampsAndIsDeterministic(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	w := DefaultWeights()
	for i := 0; i < 2000; i++ {
		c := domain.SeverityCounts{
			Critical: r.IntN(20),
			Serious:  r.IntN(20),
			Moderate: r.IntN(30),
			Minor:    r.IntN(30),
		}
		p, inc := r.IntN(200), r.IntN(30)
		s1 := w.Score(c, p, inc)
		s2 := w.Score(c, p, inc)
		if s1 != s2 {
			t.Fatalf("non-deterministic score for %+v/%d/%d: %d vs %d", c, p, inc, s1, s2)
		}
		if s1 < 0 || s1 > 100 {
			t.Fatalf("score %d out of range for %+v/%d/%d", s1, c, p, inc)
		}
	}
	if got := Score(domain.SeverityCounts{Critical: 10}, 0, 0); got != 0 {
		t.Errorf("heavy page score = %d, want 0", got)
	}
}

func TestWeightsFromConfigMatchesDefaults(t *testing.T) {
	w := WeightsFromConfig(infra.ScoringConfig{
		CriticalWeight: 25, SeriousWeight: 15, ModerateWeight: 8, MinorWeight: 3,
		PassBonus: 0.3, PassBonusCap: 15, IncompletePenalty: 2, IncompletePenaltyCap: 10, RatioPenalty: 20,
	})
	if w != DefaultWeights() {
		t.Errorf("config weights %+v differ from defaults %+v", w, DefaultWeights())
	}
}
