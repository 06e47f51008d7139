package summary

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/a11y-auditor/internal/domain"
	"github.com/xela07ax/a11y-auditor/internal/generation"
	"github.com/xela07ax/a11y-auditor/internal/infra"
)

// Summarizer делает один вызов генерации на аудит. Никогда не возвращает ошибку:
// при любом сбое отдает Fallback.
type Summarizer struct {
	gen                generation.Generator
	timeout            time.Duration
	maxTokens          int
	topK               int
	maxRecommendations int
	observe            generation.Observer
	logger             *zap.Logger
}

func NewSummarizer(gen generation.Generator, cfg infra.PipelineConfig, logger *zap.Logger, observe generation.Observer) *Summarizer {
	return &Summarizer{
		gen:                gen,
		timeout:            cfg.SummaryTimeout,
		maxTokens:          cfg.SummaryMaxTokens,
		topK:               cfg.SummaryTopK,
		maxRecommendations: cfg.MaxRecommendations,
		observe:            observe,
		logger:             logger.Named("summary"),
	}
}

// TopK: сколько нарушений попадает в запрос.
func (s *Summarizer) TopK() int {
	return s.topK
}

func (s *Summarizer) Summarize(ctx context.Context, auditID string, st Stats) Result {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	raw, err := s.gen.Generate(ctx, generation.Prompt{
		Kind:      generation.KindSummary,
		System:    SystemPrompt,
		User:      BuildPrompt(st, s.maxRecommendations),
		MaxTokens: s.maxTokens,
	})
	if err == nil {
		var res Result
		if res, err = Decode(raw, s.maxRecommendations); err == nil {
			s.report(generation.OutcomeOK)
			return res
		}
	}

	s.logger.Warn("summary fallback",
		zap.String("audit_id", auditID),
		zap.Error(&domain.EnrichmentError{Err: err}),
	)
	s.report(generation.OutcomeFallback)
	return Fallback()
}

func (s *Summarizer) report(o generation.Outcome) {
	if s.observe != nil {
		s.observe(generation.KindSummary, o)
	}
}
