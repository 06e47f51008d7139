package summary

import (
	"fmt"
	"strings"
)

const SystemPrompt = `You are a web accessibility consultant writing for a non-technical site owner.
Answer with a single JSON object and nothing else:
{"summary": "<executive summary, one paragraph>", "recommendations": [{"title": "...", "description": "...", "impact": "critical|serious|moderate|minor", "effort": "low|medium|high"}]}
Order recommendations by priority, most important first.`

// BuildPrompt: чистая функция: агрегаты -> текст запроса.
func BuildPrompt(st Stats, maxRecommendations int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Accessibility audit of %s", st.URL)
	if st.Title != "" {
		fmt.Fprintf(&b, " (%q)", st.Title)
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Score: %d/100\n", st.Score)
	fmt.Fprintf(&b, "Results: %d violations, %d passes, %d need manual review, %d not applicable\n",
		st.Violations, st.Passes, st.Incomplete, st.Inapplicable)
	fmt.Fprintf(&b, "Severity: %d critical, %d serious, %d moderate, %d minor\n",
		st.Counts.Critical, st.Counts.Serious, st.Counts.Moderate, st.Counts.Minor)

	if len(st.ByLevel) > 0 {
		b.WriteString("\nViolations by WCAG level:\n")
		for _, l := range st.ByLevel {
			fmt.Fprintf(&b, "- %s: %d\n", l.Level, l.Count)
		}
	}
	if len(st.ByCategory) > 0 {
		b.WriteString("\nViolations by category:\n")
		for _, c := range st.ByCategory {
			fmt.Fprintf(&b, "- %s: %d\n", c.Category, c.Count)
		}
	}
	if len(st.Top) > 0 {
		b.WriteString("\nMost severe violations:\n")
		for i, v := range st.Top {
			fmt.Fprintf(&b, "%d. [%s] %s: %s (elements: %d)\n", i+1, v.Impact, v.RuleID, v.Help, v.Nodes)
		}
	}

	fmt.Fprintf(&b, "\nWrite the summary and at most %d recommendations.", maxRecommendations)
	return b.String()
}
