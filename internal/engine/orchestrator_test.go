package engine

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/a11y-auditor/internal/browser"
	"github.com/xela07ax/a11y-auditor/internal/domain"
	"github.com/xela07ax/a11y-auditor/internal/enrich"
	"github.com/xela07ax/a11y-auditor/internal/generation"
	"github.com/xela07ax/a11y-auditor/internal/infra"
	"github.com/xela07ax/a11y-auditor/internal/journal"
	"github.com/xela07ax/a11y-auditor/internal/scanner"
	"github.com/xela07ax/a11y-auditor/internal/scoring"
	"github.com/xela07ax/a11y-auditor/internal/summary"
	"github.com/xela07ax/a11y-auditor/internal/validator"
)

// --- Fakes ---

type memStore struct {
	mu          sync.Mutex
	audits      map[string]*domain.AuditRecord
	violations  map[string][]domain.Violation
	completeErr error
	failCalls   int
}

func newMemStore(recs ...domain.AuditRecord) *memStore {
	s := &memStore{audits: map[string]*domain.AuditRecord{}, violations: map[string][]domain.Violation{}}
	for _, r := range recs {
		r := r
		s.audits[r.ID] = &r
	}
	return s
}

func (s *memStore) GetAudit(_ context.Context, id string) (*domain.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.audits[id]
	if !ok {
		return nil, fmt.Errorf("audit %s: %w", id, domain.ErrAuditNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (s *memStore) MarkProcessing(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.audits[id]
	if rec.Status != domain.AuditPending {
		return domain.ErrNotPending
	}
	rec.Status = domain.AuditProcessing
	rec.ProcessingStartedAt = &at
	return nil
}

func (s *memStore) Complete(_ context.Context, id string, out domain.AuditOutcome, vs []domain.Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completeErr != nil {
		return s.completeErr
	}
	rec := s.audits[id]
	if err := rec.Status.CanTransitionTo(domain.AuditCompleted); err != nil {
		return err
	}
	score := out.Score
	rec.Status = domain.AuditCompleted
	rec.Title = out.Title
	rec.TotalViolations = out.TotalViolations
	rec.SeverityCounts = out.Counts
	rec.OverallScore = &score
	rec.AISummary = out.Summary
	rec.PriorityRecommendations = out.Recommendations
	rec.ProcessingCompletedAt = &out.CompletedAt
	s.violations[id] = vs
	return nil
}

func (s *memStore) Fail(_ context.Context, id, message string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCalls++
	rec := s.audits[id]
	if err := rec.Status.CanTransitionTo(domain.AuditFailed); err != nil {
		return err
	}
	rec.Status = domain.AuditFailed
	rec.ErrorMessage = message
	rec.ProcessingCompletedAt = &at
	delete(s.violations, id)
	return nil
}

func (s *memStore) ListPending(_ context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, rec := range s.audits {
		if rec.Status == domain.AuditPending && len(ids) < limit {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memStore) record(id string) domain.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.audits[id]
}

type fakePage struct {
	status int
}

func (p *fakePage) SetRequestInterception(browser.RequestPolicy) error { return nil }

func (p *fakePage) Navigate(context.Context, string) (int, error) { return p.status, nil }

func (p *fakePage) WaitNetworkIdle(context.Context, int, time.Duration) error { return nil }

func (p *fakePage) Title(context.Context) (string, error) { return "Example Domain", nil }

func (p *fakePage) Evaluate(context.Context, string, any) error { return nil }

func (p *fakePage) BlockedRequests() int { return 2 }

type fakeSession struct {
	page   *fakePage
	mu     sync.Mutex
	closes int
}

func (s *fakeSession) NewPage(context.Context) (browser.Page, error) { return s.page, nil }

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

type fakeLauncher struct {
	session  *fakeSession
	launches int
}

func (l *fakeLauncher) Launch(context.Context) (browser.Session, error) {
	l.launches++
	return l.session, nil
}

type fakeEngine struct {
	res *domain.ScanResult
	err error
}

func (e *fakeEngine) Analyze(context.Context, browser.Page, scanner.RuleConfig) (*domain.ScanResult, error) {
	return e.res, e.err
}

type publicResolver struct{}

func (publicResolver) LookupNetIP(context.Context, string, string) ([]netip.Addr, error) {
	return []netip.Addr{netip.MustParseAddr("93.184.216.34")}, nil
}

type stageRecorder struct {
	mu     sync.Mutex
	stages []journal.Stage
}

func (r *stageRecorder) Record(e journal.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, e.Stage)
}

func (r *stageRecorder) has(s journal.Stage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.stages {
		if got == s {
			return true
		}
	}
	return false
}

func rule(id string, impact domain.Severity, nodes int) domain.RuleResult {
	r := domain.RuleResult{
		ID:          id,
		Description: "Rule " + id,
		Help:        "Fix " + id,
		HelpURL:     "https://dequeuniversity.com/rules/axe/4.8/" + id,
		Impact:      impact,
		Tags:        []string{"wcag2a", "wcag111"},
	}
	for i := 0; i < nodes; i++ {
		r.Nodes = append(r.Nodes, domain.NodeResult{
			HTML:   `<img src="/a.png">`,
			Target: []string{fmt.Sprintf("#%s-%d", id, i)},
			Impact: impact,
		})
	}
	return r
}

type harness struct {
	store    *memStore
	launcher *fakeLauncher
	session  *fakeSession
	engine   *fakeEngine
	journal  *stageRecorder
	orch     *Orchestrator
}

func newHarness(t *testing.T, rec domain.AuditRecord, status int, res *domain.ScanResult) *harness {
	t.Helper()
	h := &harness{
		store:   newMemStore(rec),
		session: &fakeSession{page: &fakePage{status: status}},
		engine:  &fakeEngine{res: res},
		journal: &stageRecorder{},
	}
	h.launcher = &fakeLauncher{session: h.session}

	cfg := infra.PipelineConfig{
		EnrichmentTimeout:     time.Second,
		EnrichmentConcurrency: 25,
		SummaryTimeout:        time.Second,
		SummaryTopK:           10,
		MaxRecommendations:    5,
	}
	gen := &generation.CannedGenerator{}
	logger := zap.NewNop()

	h.orch = NewOrchestrator(Deps{
		Store:      h.store,
		Validator:  validator.New(publicResolver{}, nil),
		Launcher:   h.launcher,
		Scanner:    scanner.New(h.engine, time.Second),
		Rules:      scanner.DefaultRuleConfig(),
		Weights:    scoring.DefaultWeights(),
		Enricher:   enrich.NewPipeline(gen, cfg, logger, nil),
		Summarizer: summary.NewSummarizer(gen, cfg, logger, nil),
		Journal:    h.journal,
		Navigate:   browser.NavigateOptions{Timeout: time.Second},
		Prepare:    scanner.PrepareOptions{MaxViolations: 25, MaxHTMLLength: 500},
	}, logger)
	return h
}

func pending(id, url string) domain.AuditRecord {
	return domain.AuditRecord{ID: id, URL: url, Status: domain.AuditPending}
}

// --- Tests ---

func TestRunCompletesAudit(t *testing.T) {
	res := &domain.ScanResult{
		Violations: []domain.RuleResult{
			rule("heading-order", domain.SeverityModerate, 1),
			rule("image-alt", domain.SeverityCritical, 2),
			rule("region", domain.SeverityModerate, 3),
		},
	}
	for i := 0; i < 20; i++ {
		res.Passes = append(res.Passes, rule(fmt.Sprintf("pass-%d", i), "", 1))
	}
	h := newHarness(t, pending("a1", "https://example.com/"), 200, res)

	if err := h.orch.Run(context.Background(), "a1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rec := h.store.record("a1")
	if rec.Status != domain.AuditCompleted {
		t.Fatalf("status = %s, want completed", rec.Status)
	}
	if rec.OverallScore == nil || *rec.OverallScore != 62 {
		t.Errorf("score = %v, want 62", rec.OverallScore)
	}
	want := domain.SeverityCounts{Critical: 1, Moderate: 2}
	if rec.SeverityCounts != want || rec.TotalViolations != 3 {
		t.Errorf("counts = %+v total=%d, want %+v total=3", rec.SeverityCounts, rec.TotalViolations, want)
	}
	if rec.Title != "Example Domain" {
		t.Errorf("title = %q", rec.Title)
	}
	if rec.AISummary == "" || rec.PriorityRecommendations == nil {
		t.Error("summary fields must be filled")
	}

	vs := h.store.violations["a1"]
	if len(vs) != 3 {
		t.Fatalf("persisted %d violations, want 3", len(vs))
	}
	if vs[0].ViolationID != "image-alt" {
		t.Errorf("first violation = %s, want the critical one", vs[0].ViolationID)
	}
	for _, v := range vs {
		if v.AIExplanation == "" || v.FixSuggestion == "" {
			t.Errorf("%s not enriched: %+v", v.ViolationID, v)
		}
	}
	if h.session.closes != 1 {
		t.Errorf("Close called %d times, want 1", h.session.closes)
	}
	for _, s := range []journal.Stage{journal.StageStarted, journal.StageScanned, journal.StageEnriched, journal.StageCompleted} {
		if !h.journal.has(s) {
			t.Errorf("stage %s not journaled", s)
		}
	}
}

func TestRunFailsOnHTTPError(t *testing.T) {
	h := newHarness(t, pending("a2", "https://example.com/missing"), 404, &domain.ScanResult{})

	err := h.orch.Run(context.Background(), "a2")
	var nErr *domain.NavigationError
	if !errors.As(err, &nErr) || nErr.Status != 404 {
		t.Fatalf("err = %v, want NavigationError 404", err)
	}

	rec := h.store.record("a2")
	if rec.Status != domain.AuditFailed {
		t.Fatalf("status = %s, want failed", rec.Status)
	}
	if !strings.Contains(rec.ErrorMessage, "Failed to load page") {
		t.Errorf("error message = %q", rec.ErrorMessage)
	}
	if len(h.store.violations["a2"]) != 0 {
		t.Error("failed audit must not have violations")
	}
	if h.session.closes != 1 {
		t.Errorf("Close called %d times, want 1", h.session.closes)
	}
	if !h.journal.has(journal.StageFailed) {
		t.Error("failure not journaled")
	}
}

func TestRunRejectsLoopbackBeforeLaunch(t *testing.T) {
	h := newHarness(t, pending("a3", "http://127.0.0.1/"), 200, &domain.ScanResult{})

	err := h.orch.Run(context.Background(), "a3")
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if h.launcher.launches != 0 {
		t.Error("browser must not be launched for blocked targets")
	}
	if rec := h.store.record("a3"); rec.Status != domain.AuditFailed {
		t.Errorf("status = %s, want failed", rec.Status)
	}
}

func TestRunClosesBrowserOnScanError(t *testing.T) {
	h := newHarness(t, pending("a4", "https://example.com/"), 200, nil)
	h.engine.err = errors.New("page crashed")

	err := h.orch.Run(context.Background(), "a4")
	var sErr *domain.ScanError
	if !errors.As(err, &sErr) {
		t.Fatalf("err = %v, want ScanError", err)
	}
	if h.session.closes != 1 {
		t.Errorf("Close called %d times, want 1", h.session.closes)
	}
	if rec := h.store.record("a4"); rec.Status != domain.AuditFailed {
		t.Errorf("status = %s, want failed", rec.Status)
	}
}

func TestRunFailsWhenCompletionIsNotPersisted(t *testing.T) {
	h := newHarness(t, pending("a5", "https://example.com/"), 200, &domain.ScanResult{
		Violations: []domain.RuleResult{rule("image-alt", domain.SeverityCritical, 1)},
	})
	h.store.completeErr = errors.New("connection reset")

	err := h.orch.Run(context.Background(), "a5")
	var pErr *domain.PersistenceError
	if !errors.As(err, &pErr) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}
	if h.store.failCalls != 1 {
		t.Errorf("Fail called %d times, want 1", h.store.failCalls)
	}
	if rec := h.store.record("a5"); rec.Status != domain.AuditFailed {
		t.Errorf("status = %s, want failed", rec.Status)
	}
}

func TestRunIgnoresNonPendingAudit(t *testing.T) {
	rec := pending("a6", "https://example.com/")
	rec.Status = domain.AuditCompleted
	h := newHarness(t, rec, 200, &domain.ScanResult{})

	err := h.orch.Run(context.Background(), "a6")
	if !errors.Is(err, domain.ErrNotPending) || !errors.Is(err, domain.ErrAlreadyFinished) {
		t.Fatalf("err = %v, want ErrNotPending and ErrAlreadyFinished", err)
	}
	if h.launcher.launches != 0 || h.store.failCalls != 0 {
		t.Error("non-pending audit must not be touched")
	}
}

func TestRunRejectsAuditAlreadyProcessing(t *testing.T) {
	rec := pending("a9", "https://example.com/")
	rec.Status = domain.AuditProcessing
	h := newHarness(t, rec, 200, &domain.ScanResult{})

	err := h.orch.Run(context.Background(), "a9")
	if !errors.Is(err, domain.ErrNotPending) || !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrNotPending and ErrInvalidTransition", err)
	}
	if h.launcher.launches != 0 {
		t.Error("browser launched for an audit owned by another run")
	}
}

// stallingEnricher держит обогащение до отмены контекста, как долгий вызов модели.
type stallingEnricher struct {
	started chan struct{}
}

func (e *stallingEnricher) Enrich(ctx context.Context, in []domain.Violation) []domain.Violation {
	close(e.started)
	<-ctx.Done()
	out := make([]domain.Violation, len(in))
	copy(out, in)
	return out
}

func TestRunCancelledDuringEnrichmentFails(t *testing.T) {
	res := &domain.ScanResult{Violations: []domain.RuleResult{rule("image-alt", domain.SeverityCritical, 2)}}
	h := newHarness(t, pending("a8", "https://example.com/"), 200, res)
	enricher := &stallingEnricher{started: make(chan struct{})}
	h.orch.Enricher = enricher

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-enricher.started
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	err := h.orch.Run(ctx, "a8")
	var iErr *domain.InterruptedError
	if !errors.As(err, &iErr) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want InterruptedError wrapping context.Canceled", err)
	}
	rec := h.store.record("a8")
	if rec.Status != domain.AuditFailed {
		t.Fatalf("status = %s, want failed", rec.Status)
	}
	if rec.OverallScore != nil || len(h.store.violations["a8"]) != 0 {
		t.Errorf("interrupted audit persisted results: score=%v violations=%d", rec.OverallScore, len(h.store.violations["a8"]))
	}
	if failureReason(err) != "interrupted" {
		t.Errorf("reason = %q", failureReason(err))
	}
}

func TestRunUnknownAudit(t *testing.T) {
	h := newHarness(t, pending("a7", "https://example.com/"), 200, &domain.ScanResult{})

	if err := h.orch.Run(context.Background(), "missing"); !errors.Is(err, domain.ErrAuditNotFound) {
		t.Fatalf("err = %v, want ErrAuditNotFound", err)
	}
}

func TestFailureReason(t *testing.T) {
	cases := map[string]error{
		"validation":  &domain.ValidationError{Reason: "x"},
		"navigation":  fmt.Errorf("wrap: %w", &domain.NavigationError{Status: 500}),
		"scan":        &domain.ScanError{Err: errors.New("x")},
		"persistence": &domain.PersistenceError{Op: "x", Err: errors.New("x")},
		"internal":    errors.New("boom"),
	}
	for want, err := range cases {
		if got := failureReason(err); got != want {
			t.Errorf("failureReason(%v) = %s, want %s", err, got, want)
		}
	}
}
