package scanner

import (
	"sort"
	"strings"

	"github.com/xela07ax/a11y-auditor/internal/domain"
)

// SortBySeverity возвращает копию, упорядоченную по критичности.
// Стабильная сортировка: при равной критичности сохраняется порядок обнаружения.
func SortBySeverity(rules []domain.RuleResult) []domain.RuleResult {
	out := append([]domain.RuleResult(nil), rules...)
	sort.SliceStable(out, func(i, j int) bool {
		return EffectiveImpact(out[i]).Rank() > EffectiveImpact(out[j]).Rank()
	})
	return out
}

// PrepareOptions: лимиты подготовки нарушений.
type PrepareOptions struct {
	MaxViolations int
	MaxHTMLLength int
}

// PrepareViolations сортирует нарушения по критичности, оставляет первые MaxViolations
// и переводит их в строки для записи. Поля генерации заполняет обогащение.
func PrepareViolations(auditID string, rules []domain.RuleResult, opts PrepareOptions) []domain.Violation {
	sorted := SortBySeverity(rules)
	if opts.MaxViolations > 0 && len(sorted) > opts.MaxViolations {
		sorted = sorted[:opts.MaxViolations]
	}

	out := make([]domain.Violation, 0, len(sorted))
	for _, r := range sorted {
		v := domain.Violation{
			AuditID:      auditID,
			ViolationID:  r.ID,
			Description:  r.Description,
			Impact:       EffectiveImpact(r),
			HelpURL:      r.HelpURL,
			WCAGCriteria: ComplianceTags(r.Tags),
			WCAGLevel:    domain.LevelFromTags(r.Tags),
			Target:       make([]string, 0, len(r.Nodes)),
			DetectedBy:   []string{DetectedBy},
		}
		if v.Description == "" {
			v.Description = r.Help
		}
		for i, n := range r.Nodes {
			sel := strings.Join(n.Target, " ")
			if i == 0 {
				v.Selector = sel
				v.HTML = Snippet(n.HTML, opts.MaxHTMLLength)
			}
			if sel != "" {
				v.Target = append(v.Target, sel)
			}
		}
		out = append(out, v)
	}
	return out
}

// EffectiveImpact: impact правила, иначе наихудший impact узла, иначе minor.
// Так каждое нарушение попадает ровно в один из четырех счетчиков.
func EffectiveImpact(r domain.RuleResult) domain.Severity {
	if r.Impact.Rank() > 0 {
		return r.Impact
	}
	best := domain.SeverityUnknown
	for _, n := range r.Nodes {
		if n.Impact.Rank() > best.Rank() {
			best = n.Impact
		}
	}
	if best == domain.SeverityUnknown {
		return domain.SeverityMinor
	}
	return best
}

// CountBySeverity считает нарушения по критичности с тем же правилом нормализации,
// что и PrepareViolations.
func CountBySeverity(rules []domain.RuleResult) domain.SeverityCounts {
	var c domain.SeverityCounts
	for _, r := range rules {
		c.Add(EffectiveImpact(r))
	}
	return c
}

// ComplianceTags оставляет теги, относящиеся к стандартам (WCAG, Section 508).
func ComplianceTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		lt := strings.ToLower(t)
		if strings.HasPrefix(lt, "wcag") || strings.HasPrefix(lt, "section508") {
			out = append(out, t)
		}
	}
	return out
}

// Category: категория правила из тега вида "cat.color".
func Category(tags []string) string {
	for _, t := range tags {
		if c, ok := strings.CutPrefix(t, "cat."); ok && c != "" {
			return c
		}
	}
	return "other"
}
