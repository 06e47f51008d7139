package generation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Ответы для локального запуска без внешнего сервиса.
var cannedResponses = map[string]string{
	KindEnrichment: `{"explanation": "This element cannot be perceived or operated by users of assistive technology.", "fixSuggestion": "Follow the linked rule guidance and add the missing accessible name, label or attribute.", "codeExample": null}`,
	KindSummary:    `{"summary": "Automated scan completed. Review the listed violations, starting with the most severe.", "recommendations": [{"title": "Fix critical and serious issues first", "description": "Blocking issues prevent some users from completing tasks on the page.", "impact": "critical", "effort": "medium"}]}`,
}

// CannedGenerator отвечает заготовками с небольшой случайной задержкой.
type CannedGenerator struct {
	MaxLatency time.Duration
}

func (g *CannedGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	if g.MaxLatency > 0 {
		latency := time.Duration(rand.Int64N(int64(g.MaxLatency)))
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	resp, ok := cannedResponses[p.Kind]
	if !ok {
		return "", fmt.Errorf("generation: no canned response for kind %q", p.Kind)
	}
	return resp, nil
}
