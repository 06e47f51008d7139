package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAuditNotFound     = errors.New("audit not found")
	ErrNotPending        = errors.New("audit is not pending")
	ErrInvalidTransition = errors.New("invalid audit status transition")
	ErrAlreadyFinished   = errors.New("audit already reached a terminal state")
)

// ValidationError: небезопасный или некорректный URL. Фатальна, возникает до любого I/O браузера.
type ValidationError struct {
	URL    string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid url: %s: %v", e.Reason, e.Err)
	}
	return "invalid url: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NavigationError: страница не загрузилась (не-2xx ответ или таймаут).
type NavigationError struct {
	Status int
	Err    error
}

func (e *NavigationError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("Failed to load page: %d", e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("Failed to load page: %v", e.Err)
	}
	return "Failed to load page: unknown error"
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ScanError: сбой движка правил или отключение страницы.
type ScanError struct {
	Err error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("accessibility scan failed: %v", e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// EnrichmentError: сбой генерации по одному нарушению или сводке. Не фатальна:
// вызывающий код подставляет fallback.
type EnrichmentError struct {
	RuleID string // пусто для сводки
	Err    error
}

func (e *EnrichmentError) Error() string {
	if e.RuleID == "" {
		return fmt.Sprintf("summary generation failed: %v", e.Err)
	}
	return fmt.Sprintf("enrichment failed for %s: %v", e.RuleID, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

// InterruptedError: прогон прерван отменой контекста (останов воркера) до записи результата.
// Частичный результат не сохраняется, аудит уходит в Failed.
type InterruptedError struct {
	Err error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("audit interrupted: %v", e.Err)
}

func (e *InterruptedError) Unwrap() error { return e.Err }

// PersistenceError: не удалось записать терминальное состояние.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
