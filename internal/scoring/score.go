// Package scoring переводит статистику скана в оценку 0..100. Без I/O.
package scoring

import (
	"math"

	"github.com/xela07ax/a11y-auditor/internal/domain"
	"github.com/xela07ax/a11y-auditor/internal/infra"
)

// Weights: веса и потолки формулы.
type Weights struct {
	Critical float64
	Serious  float64
	Moderate float64
	Minor    float64

	PassBonus    float64 // за каждую пройденную проверку
	PassBonusCap float64

	IncompletePenalty    float64 // за каждый неоднозначный результат
	IncompletePenaltyCap float64

	RatioPenalty float64 // максимум штрафа за долю нарушений
}

// DefaultWeights: исходная политика оценки.
func DefaultWeights() Weights {
	return Weights{
		Critical:             25,
		Serious:              15,
		Moderate:             8,
		Minor:                3,
		PassBonus:            0.3,
		PassBonusCap:         15,
		IncompletePenalty:    2,
		IncompletePenaltyCap: 10,
		RatioPenalty:         20,
	}
}

// WeightsFromConfig переносит значения из конфигурации.
func WeightsFromConfig(c infra.ScoringConfig) Weights {
	return Weights{
		Critical:             c.CriticalWeight,
		Serious:              c.SeriousWeight,
		Moderate:             c.ModerateWeight,
		Minor:                c.MinorWeight,
		PassBonus:            c.PassBonus,
		PassBonusCap:         c.PassBonusCap,
		IncompletePenalty:    c.IncompletePenalty,
		IncompletePenaltyCap: c.IncompletePenaltyCap,
		RatioPenalty:         c.RatioPenalty,
	}
}

// Breakdown: слагаемые формулы, чтобы оценку можно было объяснить и проверить по шагам.
type Breakdown struct {
	Base             float64
	SeverityPenalty  float64
	CoverageBonus    float64
	AmbiguityPenalty float64
	RatioPenalty     float64
	Score            int
}

// BeforeRatio: промежуточное значение до пропорционального штрафа.
func (b Breakdown) BeforeRatio() float64 {
	return b.Base - b.SeverityPenalty + b.CoverageBonus - b.AmbiguityPenalty
}

// Explain считает оценку и возвращает все слагаемые.
func (w Weights) Explain(counts domain.SeverityCounts, passes, incomplete int) Breakdown {
	passes = max(passes, 0)
	incomplete = max(incomplete, 0)

	b := Breakdown{Base: 100}

	b.SeverityPenalty = float64(counts.Critical)*w.Critical +
		float64(counts.Serious)*w.Serious +
		float64(counts.Moderate)*w.Moderate +
		float64(counts.Minor)*w.Minor

	b.CoverageBonus = math.Min(float64(passes)*w.PassBonus, w.PassBonusCap)
	b.AmbiguityPenalty = math.Min(float64(incomplete)*w.IncompletePenalty, w.IncompletePenaltyCap)

	violations := counts.Total()
	if denom := violations + passes + incomplete; denom > 0 {
		b.RatioPenalty = float64(violations) / float64(denom) * w.RatioPenalty
	}

	raw := b.BeforeRatio() - b.RatioPenalty
	b.Score = int(math.Round(math.Max(0, math.Min(100, raw))))
	return b
}

// Score: оценка 0..100 для статистики скана.
func (w Weights) Score(counts domain.SeverityCounts, passes, incomplete int) int {
	return w.Explain(counts, passes, incomplete).Score
}

// Score считает оценку с весами по умолчанию.
func Score(counts domain.SeverityCounts, passes, incomplete int) int {
	return DefaultWeights().Score(counts, passes, incomplete)
}
