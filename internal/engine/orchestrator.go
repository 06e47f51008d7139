package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xela07ax/a11y-auditor/internal/browser"
	"github.com/xela07ax/a11y-auditor/internal/domain"
	"github.com/xela07ax/a11y-auditor/internal/journal"
	"github.com/xela07ax/a11y-auditor/internal/scanner"
	"github.com/xela07ax/a11y-auditor/internal/scoring"
	"github.com/xela07ax/a11y-auditor/internal/summary"
)

// Запись терминального статуса не должна зависеть от отмены контекста прогона.
const persistTimeout = 10 * time.Second

// Store: то, что оркестратору нужно от хранилища.
type Store interface {
	GetAudit(ctx context.Context, id string) (*domain.AuditRecord, error)
	MarkProcessing(ctx context.Context, id string, startedAt time.Time) error
	Complete(ctx context.Context, id string, out domain.AuditOutcome, violations []domain.Violation) error
	Fail(ctx context.Context, id, message string, at time.Time) error
}

type URLValidator interface {
	Validate(ctx context.Context, raw string) (*url.URL, error)
}

type Enricher interface {
	Enrich(ctx context.Context, in []domain.Violation) []domain.Violation
}

type Summarizer interface {
	Summarize(ctx context.Context, auditID string, st summary.Stats) summary.Result
	TopK() int
}

// Deps: все коллабораторы оркестратора.
type Deps struct {
	Store      Store
	Validator  URLValidator
	Launcher   browser.Launcher
	Scanner    *scanner.Scanner
	Rules      scanner.RuleConfig
	Weights    scoring.Weights
	Enricher   Enricher
	Summarizer Summarizer
	Journal    journal.Recorder
	Metrics    *Metrics

	Navigate browser.NavigateOptions
	Prepare  scanner.PrepareOptions
}

// Orchestrator ведет аудит по автомату Pending -> Processing -> {Completed, Failed}.
// Запись аудита мутирует только он.
type Orchestrator struct {
	Deps
	logger *zap.Logger
	now    func() time.Time
}

func NewOrchestrator(d Deps, logger *zap.Logger) *Orchestrator {
	if d.Journal == nil {
		d.Journal = journal.Nop{}
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics(nil)
	}
	return &Orchestrator{Deps: d, logger: logger.Named("orchestrator"), now: time.Now}
}

// Run проводит один аудит. Для записи не в статусе Pending возвращает domain.ErrNotPending
// и ничего не меняет. Если аудит завершился Failed, возвращается причина (типизированная ошибка).
func (o *Orchestrator) Run(ctx context.Context, auditID string) error {
	logger := o.logger.With(zap.String("audit_id", auditID), zap.String("trace_id", TraceIDFrom(ctx)))

	// 1. Читаем запись: работаем только с Pending
	rec, err := o.Store.GetAudit(ctx, auditID)
	if err != nil {
		return err
	}
	if err := rec.Status.CanTransitionTo(domain.AuditProcessing); err != nil {
		return fmt.Errorf("engine: audit %s is %s: %w: %w", auditID, rec.Status, domain.ErrNotPending, err)
	}

	// 2. Pending -> Processing
	start := o.now()
	if err := o.Store.MarkProcessing(ctx, auditID, start); err != nil {
		return err
	}
	o.Metrics.InFlight.Inc()
	defer o.Metrics.InFlight.Dec()

	o.record(ctx, auditID, journal.StageStarted, start, map[string]any{"url": rec.URL}, nil)
	logger.Info("audit started", zap.String("url", rec.URL))

	// 3. Пайплайн
	out, violations, err := o.execute(ctx, rec, logger)
	if err != nil {
		return o.fail(ctx, rec.ID, err, start, logger)
	}

	// 4. Processing -> Completed (агрегаты + нарушения одной транзакцией)
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := o.Store.Complete(wctx, rec.ID, out, violations); err != nil {
		return o.fail(ctx, rec.ID, &domain.PersistenceError{Op: "complete audit", Err: err}, start, logger)
	}

	elapsed := time.Since(start)
	o.Metrics.AuditsTotal.WithLabelValues(string(domain.AuditCompleted), "").Inc()
	o.Metrics.AuditDuration.WithLabelValues(string(domain.AuditCompleted)).Observe(elapsed.Seconds())
	o.record(ctx, rec.ID, journal.StageCompleted, start, map[string]any{
		"score":      out.Score,
		"violations": out.TotalViolations,
		"persisted":  len(violations),
	}, nil)
	logger.Info("audit completed",
		zap.Int("score", out.Score),
		zap.Int("total_violations", out.TotalViolations),
		zap.Int("persisted_violations", len(violations)),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, rec *domain.AuditRecord, logger *zap.Logger) (domain.AuditOutcome, []domain.Violation, error) {
	// 3.1 SSRF-проверка до любого сетевого I/O браузера
	stageStart := o.now()
	target, err := o.Validator.Validate(ctx, rec.URL)
	if err != nil {
		return domain.AuditOutcome{}, nil, err
	}
	o.stageDone(ctx, rec.ID, journal.StageValidated, stageStart, map[string]any{"host": target.Hostname()})

	// 3.2 Браузер: навигация и скан. Сессия закрыта при выходе из scan.
	title, res, err := o.scan(ctx, rec.ID, target.String(), logger)
	if err != nil {
		return domain.AuditOutcome{}, nil, err
	}

	// 3.3 Оценка
	stageStart = o.now()
	counts := scanner.CountBySeverity(res.Violations)
	score := o.Weights.Score(counts, len(res.Passes), len(res.Incomplete))
	o.stageDone(ctx, rec.ID, journal.StageScored, stageStart, map[string]any{
		"score":      score,
		"critical":   counts.Critical,
		"serious":    counts.Serious,
		"moderate":   counts.Moderate,
		"minor":      counts.Minor,
		"passes":     len(res.Passes),
		"incomplete": len(res.Incomplete),
	})

	// 3.4 Первые N по критичности, затем обогащение и сводка параллельно.
	// Оба шага не падают: сбои заменяются заглушками внутри.
	prepared := scanner.PrepareViolations(rec.ID, res.Violations, o.Prepare)
	stats := summary.Collect(rec.URL, title, score, res, o.Summarizer.TopK())

	var (
		enriched []domain.Violation
		sum      summary.Result
		g        errgroup.Group
	)
	g.Go(func() error {
		s := o.now()
		enriched = o.Enricher.Enrich(ctx, prepared)
		o.stageDone(ctx, rec.ID, journal.StageEnriched, s, map[string]any{"violations": len(enriched)})
		return nil
	})
	g.Go(func() error {
		s := o.now()
		sum = o.Summarizer.Summarize(ctx, rec.ID, stats)
		o.stageDone(ctx, rec.ID, journal.StageSummarized, s, map[string]any{"recommendations": len(sum.Recommendations)})
		return nil
	})
	_ = g.Wait()

	// После отмены обогащение и сводка отдали заглушки: такой аудит не Completed
	if ctx.Err() != nil {
		return domain.AuditOutcome{}, nil, &domain.InterruptedError{Err: context.Cause(ctx)}
	}

	return domain.AuditOutcome{
		Title:           title,
		TotalViolations: len(res.Violations),
		Counts:          counts,
		Score:           score,
		Summary:         sum.Summary,
		Recommendations: sum.Recommendations,
		CompletedAt:     o.now(),
	}, enriched, nil
}

// scan: область жизни браузера: запуск, навигация, скан. Close вызывается ровно один раз
// на любом пути выхода после успешного запуска.
func (o *Orchestrator) scan(ctx context.Context, auditID, target string, logger *zap.Logger) (string, *domain.ScanResult, error) {
	stageStart := o.now()
	session, err := o.Launcher.Launch(ctx)
	if err != nil {
		return "", nil, &domain.NavigationError{Err: fmt.Errorf("launch browser: %w", err)}
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("browser close failed", zap.Error(err))
		}
	}()

	page, err := browser.Open(ctx, session, target, o.Navigate)
	if err != nil {
		return "", nil, err
	}
	title, err := page.Title(ctx)
	if err != nil {
		// заголовок: справочное поле, аудит без него продолжается
		logger.Warn("page title unavailable", zap.Error(err))
	}
	o.stageDone(ctx, auditID, journal.StageNavigated, stageStart, map[string]any{"title": title})

	stageStart = o.now()
	res, err := o.Scanner.Scan(ctx, page, o.Rules)

	blocked := page.BlockedRequests()
	o.Metrics.BlockedResources.Add(float64(blocked))
	if err != nil {
		return "", nil, err
	}
	o.stageDone(ctx, auditID, journal.StageScanned, stageStart, map[string]any{
		"violations":       len(res.Violations),
		"passes":           len(res.Passes),
		"incomplete":       len(res.Incomplete),
		"inapplicable":     len(res.Inapplicable),
		"blocked_requests": blocked,
	})
	return title, res, nil
}

// fail переводит аудит в Failed. Нарушений у Failed-записи нет: Complete транзакционен,
// а Fail дополнительно чистит строки нарушений.
func (o *Orchestrator) fail(ctx context.Context, auditID string, cause error, start time.Time, logger *zap.Logger) error {
	reason := failureReason(cause)

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := o.Store.Fail(wctx, auditID, cause.Error(), o.now()); err != nil {
		perr := &domain.PersistenceError{Op: "fail audit", Err: err}
		logger.Error("could not persist failed status", zap.NamedError("cause", cause), zap.Error(perr))
		o.Metrics.AuditsTotal.WithLabelValues(string(domain.AuditFailed), "persistence").Inc()
		return errors.Join(cause, perr)
	}

	o.Metrics.AuditsTotal.WithLabelValues(string(domain.AuditFailed), reason).Inc()
	o.Metrics.AuditDuration.WithLabelValues(string(domain.AuditFailed)).Observe(time.Since(start).Seconds())
	o.record(ctx, auditID, journal.StageFailed, start, map[string]any{"reason": reason}, cause)
	logger.Warn("audit failed", zap.String("reason", reason), zap.Error(cause))
	return cause
}

func failureReason(err error) string {
	var (
		vErr *domain.ValidationError
		nErr *domain.NavigationError
		sErr *domain.ScanError
		pErr *domain.PersistenceError
		iErr *domain.InterruptedError
	)
	switch {
	case errors.As(err, &vErr):
		return "validation"
	case errors.As(err, &nErr):
		return "navigation"
	case errors.As(err, &sErr):
		return "scan"
	case errors.As(err, &pErr):
		return "persistence"
	case errors.As(err, &iErr):
		return "interrupted"
	}
	return "internal"
}

func (o *Orchestrator) stageDone(ctx context.Context, auditID string, stage journal.Stage, start time.Time, detail map[string]any) {
	o.Metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	o.record(ctx, auditID, stage, start, detail, nil)
}

func (o *Orchestrator) record(ctx context.Context, auditID string, stage journal.Stage, start time.Time, detail map[string]any, err error) {
	e := journal.Event{
		AuditID:    auditID,
		TraceID:    TraceIDFrom(ctx),
		Stage:      stage,
		Detail:     detail,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	o.Journal.Record(e)
}
