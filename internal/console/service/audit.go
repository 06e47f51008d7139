package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/xela07ax/a11y-auditor/internal/domain"
	"github.com/xela07ax/a11y-auditor/internal/engine"
	"github.com/xela07ax/a11y-auditor/internal/journal"
)

// AuditReader описывает контракт для чтения аудитов и их нарушений.
type AuditReader interface {
	GetAudit(ctx context.Context, id string) (*domain.AuditRecord, error)
	ListViolations(ctx context.Context, auditID string) ([]domain.Violation, error)
}

// EventReader: журнал этапов.
type EventReader interface {
	ListEvents(ctx context.Context, auditID string) ([]journal.Event, error)
}

// AuditView: запись аудита вместе с сохраненными нарушениями.
type AuditView struct {
	*domain.AuditRecord
	Violations []domain.Violation `json:"violations"`
}

type AuditService struct {
	repo   AuditReader
	events EventReader
	rdb    *redis.Client
}

func NewAuditService(repo AuditReader, events EventReader, rdb *redis.Client) *AuditService {
	return &AuditService{
		repo:   repo,
		events: events,
		rdb:    rdb,
	}
}

// Get возвращает аудит. Нарушения подгружаются только для Completed:
// у остальных статусов их нет по построению.
func (s *AuditService) Get(ctx context.Context, id string) (*AuditView, error) {
	rec, err := s.repo.GetAudit(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &AuditView{AuditRecord: rec, Violations: []domain.Violation{}}
	if rec.Status != domain.AuditCompleted {
		return view, nil
	}

	view.Violations, err = s.repo.ListViolations(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch violations: %w", err)
	}
	return view, nil
}

// Events возвращает журнал этапов аудита.
func (s *AuditService) Events(ctx context.Context, id string) ([]journal.Event, error) {
	if _, err := s.repo.GetAudit(ctx, id); err != nil {
		return nil, err
	}
	events, err := s.events.ListEvents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch events: %w", err)
	}
	return events, nil
}

// Trigger публикует запуск аудита. Повторно запустить завершенный аудит нельзя:
// повторный аудит: это новая запись.
func (s *AuditService) Trigger(ctx context.Context, id string) error {
	rec, err := s.repo.GetAudit(ctx, id)
	if err != nil {
		return err
	}
	if err := rec.Status.CanTransitionTo(domain.AuditProcessing); err != nil {
		return fmt.Errorf("audit_service: audit %s is %s: %w: %w", id, rec.Status, domain.ErrNotPending, err)
	}

	// Trace-ID запроса уходит вместе с триггером, чтобы связать журнал с HTTP-вызовом
	return engine.Publish(ctx, s.rdb, engine.TriggerMessage{AuditID: id, TraceID: engine.TraceIDFrom(ctx)})
}

// IsNotFound: помощник для слоя HTTP.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrAuditNotFound)
}
