package summary

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xela07ax/a11y-auditor/internal/domain"
	"github.com/xela07ax/a11y-auditor/internal/generation"
)

const FallbackSummary = "Accessibility audit completed. Review the detected violations for details."

// Result: сводка и рекомендации, записываемые в AuditRecord.
type Result struct {
	Summary         string
	Recommendations []domain.Recommendation
}

func Fallback() Result {
	return Result{Summary: FallbackSummary, Recommendations: []domain.Recommendation{}}
}

type recommendationJSON struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Impact      string `json:"impact"`
	Effort      string `json:"effort"`
}

type resultJSON struct {
	Summary         string               `json:"summary"`
	Recommendations []recommendationJSON `json:"recommendations"`
}

// Decode разбирает ответ модели. Рекомендации без заголовка отбрасываются,
// неизвестная критичность считается moderate, неизвестные трудозатраты, medium.
func Decode(raw string, maxRecommendations int) (Result, error) {
	var r resultJSON
	if err := json.Unmarshal([]byte(generation.ExtractJSON(raw)), &r); err != nil {
		return Result{}, fmt.Errorf("summary: decode response: %w", err)
	}
	summary := strings.TrimSpace(r.Summary)
	if summary == "" {
		return Result{}, errors.New("summary: response has no summary")
	}

	recs := make([]domain.Recommendation, 0, len(r.Recommendations))
	for _, rec := range r.Recommendations {
		if maxRecommendations > 0 && len(recs) == maxRecommendations {
			break
		}
		title := strings.TrimSpace(rec.Title)
		if title == "" {
			continue
		}
		impact := domain.ParseSeverity(rec.Impact)
		if impact == domain.SeverityUnknown {
			impact = domain.SeverityModerate
		}
		recs = append(recs, domain.Recommendation{
			Title:       title,
			Description: strings.TrimSpace(rec.Description),
			Impact:      impact,
			Effort:      parseEffort(rec.Effort),
		})
	}
	return Result{Summary: summary, Recommendations: recs}, nil
}

func parseEffort(raw string) domain.Effort {
	switch e := domain.Effort(strings.ToLower(strings.TrimSpace(raw))); e {
	case domain.EffortLow, domain.EffortMedium, domain.EffortHigh:
		return e
	}
	return domain.EffortMedium
}
