// Package generation: клиент сервиса генерации текста и обвязка надежности вокруг него.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Виды запросов. Используются как метка метрик и ключ заготовленных ответов.
const (
	KindEnrichment = "enrichment"
	KindSummary    = "summary"
)

// Prompt: один запрос к модели.
type Prompt struct {
	Kind      string
	System    string
	User      string
	MaxTokens int
}

// Generator: сервис генерации текста. Реализации обязаны уважать дедлайн ctx.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

var ErrEmptyCompletion = errors.New("generation: empty completion")

// ThrottleError: сервис попросил подождать (HTTP 429).
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error {
	return e.Cause
}
