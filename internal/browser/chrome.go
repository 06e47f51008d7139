package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xela07ax/a11y-auditor/internal/infra"
)

// ChromeLauncher поднимает Chrome через chromedp. Выбор бинарника (exec_path)
// или подключение к внешнему браузеру (remote_url) зависят от окружения и спрятаны здесь.
type ChromeLauncher struct {
	cfg    infra.BrowserConfig
	logger *zap.Logger
}

func NewChromeLauncher(cfg infra.BrowserConfig, logger *zap.Logger) *ChromeLauncher {
	return &ChromeLauncher{cfg: cfg, logger: logger.Named("browser")}
}

func (l *ChromeLauncher) allocator(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.cfg.RemoteURL != "" {
		return chromedp.NewRemoteAllocator(ctx, l.cfg.RemoteURL)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.DisableGPU,
	)
	if l.cfg.Width > 0 && l.cfg.Height > 0 {
		opts = append(opts, chromedp.WindowSize(l.cfg.Width, l.cfg.Height))
	}
	if l.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	if l.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.cfg.UserAgent))
	}
	return chromedp.NewExecAllocator(ctx, opts...)
}

// Launch запускает процесс браузера. Процесс живет до Session.Close.
func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	// Жизнь процесса не привязана к ctx вызывающего: гасит его только Close
	allocCtx, allocCancel := l.allocator(context.WithoutCancel(ctx))
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Первый Run на контексте поднимает сам процесс
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("browser: launch: %w", err)
	}

	l.logger.Debug("browser launched", zap.Bool("remote", l.cfg.RemoteURL != ""))
	return &chromeSession{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		logger:        l.logger,
	}, nil
}

type chromeSession struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	logger        *zap.Logger

	mu    sync.Mutex
	pages []*chromePage

	closeOnce sync.Once
	closeErr  error
}

func (s *chromeSession) NewPage(ctx context.Context) (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx)
	p := &chromePage{
		ctx:      tabCtx,
		cancel:   tabCancel,
		inflight: make(map[network.RequestID]struct{}),
		logger:   s.logger,
	}
	chromedp.ListenTarget(tabCtx, p.onEvent)

	// Создаем вкладку сразу, чтобы ошибки всплыли здесь, а не при навигации
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, err
	}

	s.mu.Lock()
	s.pages = append(s.pages, p)
	s.mu.Unlock()
	return p, nil
}

// Close закрывает вкладки и процесс. Повторные вызовы возвращают результат первого.
func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		for _, p := range s.pages {
			p.cancel()
		}
		s.mu.Unlock()

		s.closeErr = chromedp.Cancel(s.browserCtx)
		s.browserCancel()
		s.allocCancel()
		s.logger.Debug("browser closed", zap.Error(s.closeErr))
	})
	return s.closeErr
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	policy  atomic.Pointer[RequestPolicy]
	blocked atomic.Int64

	mu         sync.Mutex
	inflight   map[network.RequestID]struct{}
	lastChange time.Time
}

func (p *chromePage) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *fetch.EventRequestPaused:
		// Ответ в CDP нельзя слать из обработчика событий, он заблокирует очередь
		go p.decide(e)
	case *network.EventRequestWillBeSent:
		p.track(e.RequestID, true)
	case *network.EventLoadingFinished:
		p.track(e.RequestID, false)
	case *network.EventLoadingFailed:
		p.track(e.RequestID, false)
	}
}

func (p *chromePage) track(id network.RequestID, started bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if started {
		p.inflight[id] = struct{}{}
	} else {
		delete(p.inflight, id)
	}
	p.lastChange = time.Now()
}

func (p *chromePage) decide(e *fetch.EventRequestPaused) {
	ctx := cdp.WithExecutor(p.ctx, chromedp.FromContext(p.ctx).Target)

	allow := true
	if policy := p.policy.Load(); policy != nil {
		allow = (*policy)(ResourceType(e.ResourceType), e.Request.URL)
	}

	var err error
	if allow {
		err = fetch.ContinueRequest(e.RequestID).Do(ctx)
	} else {
		p.blocked.Add(1)
		err = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(ctx)
	}
	if err != nil && p.ctx.Err() == nil {
		p.logger.Debug("request interception reply failed", zap.String("url", e.Request.URL), zap.Error(err))
	}
}

// bind переносит дедлайн и отмену ctx вызывающего на контекст вкладки chromedp.
func (p *chromePage) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	tctx, cancel := context.WithCancel(p.ctx)
	if dl, ok := ctx.Deadline(); ok {
		var dlCancel context.CancelFunc
		tctx, dlCancel = context.WithDeadline(tctx, dl)
		prev := cancel
		cancel = func() { dlCancel(); prev() }
	}
	stop := context.AfterFunc(ctx, cancel)
	return tctx, func() {
		stop()
		cancel()
	}
}

func (p *chromePage) SetRequestInterception(policy RequestPolicy) error {
	p.policy.Store(&policy)
	return chromedp.Run(p.ctx, fetch.Enable())
}

func (p *chromePage) Navigate(ctx context.Context, url string) (int, error) {
	tctx, cancel := p.bind(ctx)
	defer cancel()

	resp, err := chromedp.RunResponse(tctx, chromedp.Navigate(url))
	if err != nil {
		return 0, err
	}
	if resp == nil {
		return 0, nil
	}
	return int(resp.Status), nil
}

func (p *chromePage) WaitNetworkIdle(ctx context.Context, maxInflight int, window time.Duration) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		p.mu.Lock()
		idle := len(p.inflight) <= maxInflight && time.Since(p.lastChange) >= window
		p.mu.Unlock()
		if idle {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.ctx.Done():
			return p.ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *chromePage) Title(ctx context.Context) (string, error) {
	tctx, cancel := p.bind(ctx)
	defer cancel()

	var title string
	if err := chromedp.Run(tctx, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

func (p *chromePage) Evaluate(ctx context.Context, expression string, out any) error {
	tctx, cancel := p.bind(ctx)
	defer cancel()

	return chromedp.Run(tctx, chromedp.Evaluate(expression, out, func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
		return params.WithAwaitPromise(true)
	}))
}

func (p *chromePage) BlockedRequests() int {
	return int(p.blocked.Load())
}
