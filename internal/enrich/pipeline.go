package enrich

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xela07ax/a11y-auditor/internal/domain"
	"github.com/xela07ax/a11y-auditor/internal/generation"
	"github.com/xela07ax/a11y-auditor/internal/infra"
)

// Pipeline: ограниченный fan-out вызовов генерации, по одному на нарушение.
type Pipeline struct {
	gen         generation.Generator
	timeout     time.Duration
	concurrency int
	maxTokens   int
	observe     generation.Observer
	logger      *zap.Logger
}

func NewPipeline(gen generation.Generator, cfg infra.PipelineConfig, logger *zap.Logger, observe generation.Observer) *Pipeline {
	return &Pipeline{
		gen:         gen,
		timeout:     cfg.EnrichmentTimeout,
		concurrency: cfg.EnrichmentConcurrency,
		maxTokens:   cfg.EnrichmentMaxTokens,
		observe:     observe,
		logger:      logger.Named("enrich"),
	}
}

// Enrich возвращает копию входного среза с заполненными полями генерации.
// out[i] всегда соответствует in[i]; сбой одного вызова не влияет на остальные.
func (p *Pipeline) Enrich(ctx context.Context, in []domain.Violation) []domain.Violation {
	out := make([]domain.Violation, len(in))
	copy(out, in)

	// Group без WithContext: ждем завершения всех, ошибок наружу не бывает
	var g errgroup.Group
	if p.concurrency > 0 {
		g.SetLimit(p.concurrency)
	}
	for i := range out {
		g.Go(func() error {
			e := p.enrichOne(ctx, out[i])
			out[i].AIExplanation = e.Explanation
			out[i].FixSuggestion = e.FixSuggestion
			out[i].CodeExample = e.CodeExample
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *Pipeline) enrichOne(ctx context.Context, v domain.Violation) Enrichment {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	raw, err := p.gen.Generate(ctx, generation.Prompt{
		Kind:      generation.KindEnrichment,
		System:    SystemPrompt,
		User:      BuildPrompt(v),
		MaxTokens: p.maxTokens,
	})
	if err != nil {
		p.logger.Warn("enrichment fallback",
			zap.String("audit_id", v.AuditID),
			zap.Error(&domain.EnrichmentError{RuleID: v.ViolationID, Err: err}),
		)
		p.report(generation.OutcomeFallback)
		return Fallback()
	}

	e, outcome := Parse(raw)
	if outcome != generation.OutcomeOK {
		p.logger.Warn("enrichment response not structured",
			zap.String("audit_id", v.AuditID),
			zap.String("rule", v.ViolationID),
			zap.String("outcome", string(outcome)),
		)
	}
	p.report(outcome)
	return e
}

func (p *Pipeline) report(o generation.Outcome) {
	if p.observe != nil {
		p.observe(generation.KindEnrichment, o)
	}
}
