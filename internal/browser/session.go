// Package browser владеет одним одноразовым процессом headless-браузера на аудит.
// Всё, что ниже по пайплайну, зависит только от интерфейсов Session и Page.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xela07ax/a11y-auditor/internal/domain"
	"github.com/xela07ax/a11y-auditor/internal/infra"
)

// Launcher: единственная точка, знающая, какой бинарник и как запускать.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Session: процесс браузера. Close обязан быть идемпотентным.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page: загруженная вкладка. Одну вкладку никогда не ведут две операции одновременно.
type Page interface {
	SetRequestInterception(policy RequestPolicy) error
	Navigate(ctx context.Context, url string) (status int, err error)
	// WaitNetworkIdle ждет, пока в полете не более maxInflight запросов в течение window.
	WaitNetworkIdle(ctx context.Context, maxInflight int, window time.Duration) error
	Title(ctx context.Context) (string, error)
	// Evaluate выполняет JS (с ожиданием Promise) и декодирует результат в out. out может быть nil.
	Evaluate(ctx context.Context, expression string, out any) error
	BlockedRequests() int
}

// NavigateOptions: таймауты и политика загрузки страницы.
type NavigateOptions struct {
	Timeout         time.Duration
	SettleDelay     time.Duration
	IdleConnections int
	IdleWindow      time.Duration
	Policy          RequestPolicy
}

// OptionsFromConfig переносит таймауты навигации из конфигурации. Политика, DefaultPolicy.
func OptionsFromConfig(cfg infra.BrowserConfig) NavigateOptions {
	return NavigateOptions{
		Timeout:         cfg.NavigationTimeout,
		SettleDelay:     cfg.SettleDelay,
		IdleConnections: cfg.IdleConnections,
		IdleWindow:      cfg.IdleWindow,
		Policy:          DefaultPolicy,
	}
}

// Open открывает вкладку, ставит перехват ресурсов, переходит по URL и ждет,
// пока клиентский рендеринг успокоится. Ошибки, всегда *domain.NavigationError.
func Open(ctx context.Context, s Session, url string, opts NavigateOptions) (Page, error) {
	page, err := s.NewPage(ctx)
	if err != nil {
		return nil, &domain.NavigationError{Err: fmt.Errorf("open tab: %w", err)}
	}

	policy := opts.Policy
	if policy == nil {
		policy = DefaultPolicy
	}
	if err := page.SetRequestInterception(policy); err != nil {
		return nil, &domain.NavigationError{Err: fmt.Errorf("request interception: %w", err)}
	}

	nctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	status, err := page.Navigate(nctx, url)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(nctx.Err(), context.DeadlineExceeded) {
			return nil, &domain.NavigationError{Err: fmt.Errorf("navigation timeout after %s", opts.Timeout)}
		}
		return nil, &domain.NavigationError{Err: err}
	}
	if status == 0 {
		return nil, &domain.NavigationError{Err: errors.New("no response received")}
	}
	if status < 200 || status > 299 {
		return nil, &domain.NavigationError{Status: status}
	}

	// "Почти network-idle": если тишины не дождались до дедлайна навигации, сканируем как есть
	if err := page.WaitNetworkIdle(nctx, opts.IdleConnections, opts.IdleWindow); err != nil &&
		!errors.Is(err, context.DeadlineExceeded) {
		return nil, &domain.NavigationError{Err: fmt.Errorf("wait for network idle: %w", err)}
	}

	if opts.SettleDelay > 0 {
		t := time.NewTimer(opts.SettleDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, &domain.NavigationError{Err: ctx.Err()}
		}
	}
	return page, nil
}
