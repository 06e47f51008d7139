package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xela07ax/a11y-auditor/internal/journal"
)

// JournalRepo: хранилище журнала этапов (audit_events).
type JournalRepo struct {
	pool *pgxpool.Pool
}

func NewJournalRepo(pool *pgxpool.Pool) *JournalRepo {
	return &JournalRepo{pool: pool}
}

func (r *JournalRepo) WriteBatch(ctx context.Context, events []journal.Event) error {
	if len(events) == 0 {
		return nil
	}
	query, args, err := buildEventInsert(events)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres: failed to write journal batch: %w", err)
	}
	return nil
}

// ListEvents возвращает журнал этапов аудита в хронологическом порядке.
func (r *JournalRepo) ListEvents(ctx context.Context, auditID string) ([]journal.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, audit_id, trace_id, stage, detail, error, duration_ms, timestamp
		FROM audit_events
		WHERE audit_id = $1
		ORDER BY timestamp, id`, auditID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query journal: %w", err)
	}
	defer rows.Close()

	events := make([]journal.Event, 0)
	for rows.Next() {
		var (
			e      journal.Event
			stage  string
			detail []byte
		)
		if err := rows.Scan(&e.ID, &e.AuditID, &e.TraceID, &stage, &detail, &e.Error, &e.DurationMs, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan event: %w", err)
		}
		e.Stage = journal.Stage(stage)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: decode event detail: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return events, nil
}

// Количество колонок в таблице audit_events
const eventFields = 8

func buildEventInsert(events []journal.Event) (string, []any, error) {
	placeholders := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*eventFields)

	for i, e := range events {
		p := i * eventFields
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8))

		var detail []byte
		if len(e.Detail) > 0 {
			var err error
			if detail, err = json.Marshal(e.Detail); err != nil {
				return "", nil, fmt.Errorf("postgres: encode event detail: %w", err)
			}
		}
		args = append(args,
			e.ID, e.AuditID, e.TraceID, string(e.Stage), detail, e.Error, e.DurationMs, e.Timestamp,
		)
	}

	query := fmt.Sprintf(
		"INSERT INTO audit_events (id, audit_id, trace_id, stage, detail, error, duration_ms, timestamp) VALUES %s",
		strings.Join(placeholders, ", "),
	)
	return query, args, nil
}
