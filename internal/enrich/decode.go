package enrich

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xela07ax/a11y-auditor/internal/generation"
)

const (
	FallbackExplanation = "AI analysis temporarily unavailable"
	FallbackFix         = "Please refer to the help URL for guidance"
)

// Enrichment: сгенерированная тройка для одного нарушения.
type Enrichment struct {
	Explanation   string
	FixSuggestion string
	CodeExample   *string
}

// Fallback: заглушка при сбое или таймауте вызова.
func Fallback() Enrichment {
	return Enrichment{Explanation: FallbackExplanation, FixSuggestion: FallbackFix}
}

// Модели отвечают то camelCase, то snake_case.
type enrichmentJSON struct {
	Explanation      string  `json:"explanation"`
	FixSuggestion    string  `json:"fixSuggestion"`
	FixSuggestionAlt string  `json:"fix_suggestion"`
	Fix              string  `json:"fix"`
	CodeExample      *string `json:"codeExample"`
	CodeExampleAlt   *string `json:"code_example"`
}

var errIncomplete = errors.New("enrich: response lacks explanation or fix suggestion")

// Decode: строгий разбор: JSON-объект с непустыми explanation и fixSuggestion.
func Decode(raw string) (Enrichment, error) {
	var r enrichmentJSON
	if err := json.Unmarshal([]byte(generation.ExtractJSON(raw)), &r); err != nil {
		return Enrichment{}, fmt.Errorf("enrich: decode response: %w", err)
	}

	fix := firstNonEmpty(r.FixSuggestion, r.FixSuggestionAlt, r.Fix)
	if strings.TrimSpace(r.Explanation) == "" || fix == "" {
		return Enrichment{}, errIncomplete
	}

	code := r.CodeExample
	if code == nil {
		code = r.CodeExampleAlt
	}
	if code != nil {
		c := strings.TrimSpace(*code)
		if c == "" || strings.EqualFold(c, "null") {
			code = nil
		} else {
			code = &c
		}
	}
	return Enrichment{
		Explanation:   strings.TrimSpace(r.Explanation),
		FixSuggestion: fix,
		CodeExample:   code,
	}, nil
}

// Parse никогда не возвращает ошибку: неразобранный текст становится объяснением.
func Parse(raw string) (Enrichment, generation.Outcome) {
	e, err := Decode(raw)
	if err == nil {
		return e, generation.OutcomeOK
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		return Fallback(), generation.OutcomeFallback
	}
	return Enrichment{Explanation: text, FixSuggestion: FallbackFix}, generation.OutcomeRaw
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
