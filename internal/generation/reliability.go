package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/a11y-auditor/internal/infra"
)

// BreakerObserver получает переходы предохранителя (для метрик).
type BreakerObserver func(name string, to gobreaker.State)

// ReliabilityWrapper: лимитер -> предохранитель -> повторы. Общий на все аудиты процесса,
// поэтому лимит запросов к сервису глобальный.
type ReliabilityWrapper struct {
	next     Generator
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	attempts uint
	logger   *zap.Logger
}

func NewReliabilityWrapper(next Generator, cfg infra.GenerationConfig, logger *zap.Logger, observe BreakerObserver) *ReliabilityWrapper {
	logger = logger.Named("reliability")

	failures := cfg.CBFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "text-generation",
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // через сколько предохранитель попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > failures
		},
		// отмена вызывающим: не отказ сервиса
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if observe != nil {
				observe(name, to)
			}
		},
	})

	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = 1
	}

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}

	return &ReliabilityWrapper{
		next:     next,
		cb:       cb,
		limiter:  rate.NewLimiter(limit, cfg.RateBurst),
		attempts: attempts,
		logger:   logger,
	}
}

func (w *ReliabilityWrapper) Generate(ctx context.Context, p Prompt) (string, error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("generation: rate limit wait: %w", err)
	}

	// 2. Circuit Breaker
	res, err := w.cb.Execute(func() (interface{}, error) {
		var out string
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.attempts),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// 429: ждем столько, сколько попросил сервис
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		// 3. Retry
		retryErr := r.Do(func() error {
			var callErr error
			out, callErr = w.next.Generate(ctx, p)
			return callErr
		})
		return out, retryErr
	})
	if err != nil {
		return "", fmt.Errorf("generation: %w", err)
	}
	return res.(string), nil
}
