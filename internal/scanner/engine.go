// Package scanner прогоняет движок правил доступности по загруженной странице
// и превращает сырой результат в нарушения для записи в БД.
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/xela07ax/a11y-auditor/internal/browser"
	"github.com/xela07ax/a11y-auditor/internal/domain"
)

// DetectedBy: метка источника, которой помечается каждое нарушение.
const DetectedBy = "axe-core"

// RuleEngine: attach(page).configure(rules).withTags(tags).analyze().
type RuleEngine interface {
	Analyze(ctx context.Context, page browser.Page, rules RuleConfig) (*domain.ScanResult, error)
}

// AxeEngine внедряет axe-core в страницу и вызывает axe.run.
type AxeEngine struct {
	source string
}

func NewAxeEngine(source string) *AxeEngine {
	return &AxeEngine{source: source}
}

// LoadAxeEngine читает axe.min.js с диска.
func LoadAxeEngine(path string) (*AxeEngine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scanner: read axe script: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("scanner: axe script %s is empty", path)
	}
	return NewAxeEngine(string(data)), nil
}

const axeRunScript = `axe.run(document, %s).then(function (r) {
	return JSON.stringify({
		violations: r.violations,
		passes: r.passes,
		incomplete: r.incomplete,
		inapplicable: r.inapplicable
	});
})`

func (e *AxeEngine) Analyze(ctx context.Context, page browser.Page, rules RuleConfig) (*domain.ScanResult, error) {
	var loaded bool
	if err := page.Evaluate(ctx, `typeof window.axe !== "undefined"`, &loaded); err != nil {
		return nil, fmt.Errorf("probe axe: %w", err)
	}
	if !loaded {
		if err := page.Evaluate(ctx, e.source, nil); err != nil {
			return nil, fmt.Errorf("inject axe: %w", err)
		}
	}

	opts, err := rules.AxeOptions()
	if err != nil {
		return nil, fmt.Errorf("encode axe options: %w", err)
	}

	var raw string
	if err := page.Evaluate(ctx, fmt.Sprintf(axeRunScript, opts), &raw); err != nil {
		return nil, fmt.Errorf("axe.run: %w", err)
	}
	return DecodeResult([]byte(raw))
}

// DecodeResult разбирает JSON результата axe.run в четыре корзины.
func DecodeResult(raw []byte) (*domain.ScanResult, error) {
	var res domain.ScanResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode axe result: %w", err)
	}
	return &res, nil
}

// Scanner: обертка над движком с таймаутом и единым типом ошибки.
type Scanner struct {
	engine  RuleEngine
	timeout time.Duration
}

func New(engine RuleEngine, timeout time.Duration) *Scanner {
	return &Scanner{engine: engine, timeout: timeout}
}

// Scan прогоняет набор правил по странице. Любой сбой, *domain.ScanError.
// Общего состояния между аудитами нет: результат выводится только из page.
func (s *Scanner) Scan(ctx context.Context, page browser.Page, rules RuleConfig) (*domain.ScanResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := s.engine.Analyze(ctx, page, rules)
	if err != nil {
		return nil, &domain.ScanError{Err: err}
	}
	return res, nil
}
