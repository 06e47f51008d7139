// Package enrich превращает сырые нарушения в понятные объяснения и варианты исправления
// через сервис генерации текста.
package enrich

import (
	"fmt"
	"strings"

	"github.com/xela07ax/a11y-auditor/internal/domain"
)

// SystemPrompt задает роль модели и формат ответа.
const SystemPrompt = `You are a web accessibility expert helping developers fix WCAG issues.
Answer with a single JSON object and nothing else:
{"explanation": "<who is affected and why, 2-3 sentences>", "fixSuggestion": "<concrete steps>", "codeExample": "<corrected HTML or null>"}`

const promptTemplate = `Explain the following accessibility violation and how to fix it.

Rule: %s
Description: %s
Impact: %s
Compliance criteria: %s
Compliance level: %s
Help: %s
Selector: %s
HTML:
%s

Keep the explanation short and practical. Use null for codeExample when no markup change applies.`

// BuildPrompt: чистая функция: нарушение -> текст запроса.
func BuildPrompt(v domain.Violation) string {
	criteria := "none"
	if len(v.WCAGCriteria) > 0 {
		criteria = strings.Join(v.WCAGCriteria, ", ")
	}
	html := v.HTML
	if html == "" {
		html = "(not available)"
	}
	return fmt.Sprintf(promptTemplate,
		v.ViolationID,
		v.Description,
		v.Impact,
		criteria,
		v.WCAGLevel,
		v.HelpURL,
		v.Selector,
		html,
	)
}
