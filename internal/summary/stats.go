// Package summary строит итоговую сводку аудита и ранжированные рекомендации.
package summary

import (
	"sort"

	"github.com/xela07ax/a11y-auditor/internal/domain"
	"github.com/xela07ax/a11y-auditor/internal/scanner"
)

// TopViolation: одно нарушение из топ-K для запроса сводки.
type TopViolation struct {
	RuleID string
	Impact domain.Severity
	Help   string
	Nodes  int
}

// LevelCount и CategoryCount: упорядоченные срезы вместо map, чтобы запрос был детерминированным.
type LevelCount struct {
	Level domain.ComplianceLevel
	Count int
}

type CategoryCount struct {
	Category string
	Count    int
}

// Stats: агрегаты прогона, из которых строится запрос сводки.
type Stats struct {
	URL          string
	Title        string
	Score        int
	Violations   int
	Passes       int
	Incomplete   int
	Inapplicable int
	Counts       domain.SeverityCounts
	Top          []TopViolation
	ByLevel      []LevelCount
	ByCategory   []CategoryCount
}

// Collect считает агрегаты по полному результату скана (не только по первым N нарушениям).
func Collect(url, title string, score int, res *domain.ScanResult, topK int) Stats {
	st := Stats{
		URL:          url,
		Title:        title,
		Score:        score,
		Violations:   len(res.Violations),
		Passes:       len(res.Passes),
		Incomplete:   len(res.Incomplete),
		Inapplicable: len(res.Inapplicable),
		Counts:       scanner.CountBySeverity(res.Violations),
	}

	sorted := scanner.SortBySeverity(res.Violations)
	if topK >= 0 && len(sorted) > topK {
		sorted = sorted[:topK]
	}
	for _, r := range sorted {
		help := r.Help
		if help == "" {
			help = r.Description
		}
		st.Top = append(st.Top, TopViolation{
			RuleID: r.ID,
			Impact: scanner.EffectiveImpact(r),
			Help:   help,
			Nodes:  len(r.Nodes),
		})
	}

	levels := make(map[domain.ComplianceLevel]int)
	categories := make(map[string]int)
	for _, r := range res.Violations {
		levels[domain.LevelFromTags(r.Tags)]++
		categories[scanner.Category(r.Tags)]++
	}

	for l, n := range levels {
		st.ByLevel = append(st.ByLevel, LevelCount{Level: l, Count: n})
	}
	sort.Slice(st.ByLevel, func(i, j int) bool {
		return st.ByLevel[i].Level.Rank() > st.ByLevel[j].Level.Rank()
	})

	for c, n := range categories {
		st.ByCategory = append(st.ByCategory, CategoryCount{Category: c, Count: n})
	}
	sort.Slice(st.ByCategory, func(i, j int) bool {
		a, b := st.ByCategory[i], st.ByCategory[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Category < b.Category
	})
	return st
}
