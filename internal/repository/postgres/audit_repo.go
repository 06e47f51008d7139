package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xela07ax/a11y-auditor/internal/domain"
)

// AuditRepo: записи аудитов и их нарушения. Переходы статуса выполняются условным
// UPDATE (WHERE status = ...), поэтому два воркера не могут провести один аудит дважды.
type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

const auditColumns = `id, url, title, status, total_violations,
	critical_count, serious_count, moderate_count, minor_count,
	overall_score, ai_summary, priority_recommendations, error_message,
	processing_started_at, processing_completed_at`

func (r *AuditRepo) GetAudit(ctx context.Context, id string) (*domain.AuditRecord, error) {
	var (
		rec    domain.AuditRecord
		status string
		recs   []byte
	)
	err := r.pool.QueryRow(ctx, `SELECT `+auditColumns+` FROM audits WHERE id = $1`, id).Scan(
		&rec.ID,
		&rec.URL,
		&rec.Title,
		&status,
		&rec.TotalViolations,
		&rec.Critical,
		&rec.Serious,
		&rec.Moderate,
		&rec.Minor,
		&rec.OverallScore,
		&rec.AISummary,
		&recs,
		&rec.ErrorMessage,
		&rec.ProcessingStartedAt,
		&rec.ProcessingCompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: audit %s: %w", id, domain.ErrAuditNotFound)
		}
		return nil, fmt.Errorf("postgres: failed to get audit: %w", err)
	}
	rec.Status = domain.AuditStatus(status)

	rec.PriorityRecommendations = make([]domain.Recommendation, 0)
	if len(recs) > 0 {
		if err := json.Unmarshal(recs, &rec.PriorityRecommendations); err != nil {
			return nil, fmt.Errorf("postgres: decode recommendations: %w", err)
		}
	}
	return &rec, nil
}

// MarkProcessing: переход Pending -> Processing с отметкой времени старта.
func (r *AuditRepo) MarkProcessing(ctx context.Context, id string, startedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE audits
		SET status = 'processing', processing_started_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id, startedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to mark processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return statusConflict(ctx, r.pool, id, domain.AuditProcessing)
	}
	return nil
}

// Complete: переход Processing -> Completed. Нарушения и агрегаты фиксируются одной транзакцией:
// при любой ошибке в БД не остается ни строк нарушений, ни статуса Completed.
func (r *AuditRepo) Complete(ctx context.Context, id string, out domain.AuditOutcome, violations []domain.Violation) error {
	recs := out.Recommendations
	if recs == nil {
		recs = []domain.Recommendation{}
	}
	recsJSON, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("postgres: encode recommendations: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx) // после Commit: no-op

	// 1. Нарушения (пачкой)
	if len(violations) > 0 {
		query, args := buildViolationInsert(id, violations)
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("postgres: failed to insert violations: %w", err)
		}
	}

	// 2. Агрегаты и статус
	tag, err := tx.Exec(ctx, `
		UPDATE audits
		SET status = 'completed',
		    title = $2,
		    total_violations = $3,
		    critical_count = $4,
		    serious_count = $5,
		    moderate_count = $6,
		    minor_count = $7,
		    overall_score = $8,
		    ai_summary = $9,
		    priority_recommendations = $10,
		    error_message = '',
		    processing_completed_at = $11,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`,
		id, out.Title, out.TotalViolations,
		out.Counts.Critical, out.Counts.Serious, out.Counts.Moderate, out.Counts.Minor,
		out.Score, out.Summary, recsJSON, out.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to complete audit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return statusConflict(ctx, tx, id, domain.AuditCompleted)
	}

	// 3. Фиксация
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// Fail: переход Processing -> Failed. Заодно удаляет нарушения аудита, если они как-то появились.
func (r *AuditRepo) Fail(ctx context.Context, id, message string, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM violations WHERE audit_id = $1`, id); err != nil {
		return fmt.Errorf("postgres: failed to clear violations: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE audits
		SET status = 'failed', error_message = $2, processing_completed_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`, id, message, at)
	if err != nil {
		return fmt.Errorf("postgres: failed to fail audit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return statusConflict(ctx, tx, id, domain.AuditFailed)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// statusConflict объясняет, почему условный UPDATE не затронул ни одной строки:
// записи нет, либо текущий статус не допускает переход в next.
func statusConflict(ctx context.Context, q rowQuerier, id string, next domain.AuditStatus) error {
	var status string
	err := q.QueryRow(ctx, `SELECT status FROM audits WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("postgres: audit %s: %w", id, domain.ErrAuditNotFound)
	}
	if err != nil {
		return fmt.Errorf("postgres: audit %s: %w", id, domain.ErrInvalidTransition)
	}
	return transitionConflict(id, domain.AuditStatus(status), next)
}

func transitionConflict(id string, current, next domain.AuditStatus) error {
	err := current.CanTransitionTo(next)
	if err == nil {
		// статус сменился между UPDATE и чтением
		err = domain.ErrInvalidTransition
	}
	if next == domain.AuditProcessing {
		return fmt.Errorf("postgres: audit %s is %s: %w: %w", id, current, domain.ErrNotPending, err)
	}
	return fmt.Errorf("postgres: audit %s is %s: %w", id, current, err)
}

// ListPending возвращает ID аудитов в статусе Pending, старые первыми.
// Используется для досылки триггеров, пропущенных пока воркер был недоступен.
func (r *AuditRepo) ListPending(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM audits WHERE status = 'pending' ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list pending audits: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan audit id error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return ids, nil
}

// ListViolations возвращает нарушения аудита в порядке записи (по критичности).
func (r *AuditRepo) ListViolations(ctx context.Context, auditID string) ([]domain.Violation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT audit_id, violation_id, description, impact, help_url, wcag_criteria, wcag_level,
		       selector, html, target, ai_explanation, fix_suggestion, code_example, detected_by
		FROM violations
		WHERE audit_id = $1
		ORDER BY position`, auditID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query violations: %w", err)
	}
	defer rows.Close()

	// пустой слайс, чтобы в JSON был [] вместо null
	results := make([]domain.Violation, 0)
	for rows.Next() {
		var (
			v             domain.Violation
			impact, level string
		)
		err := rows.Scan(
			&v.AuditID, &v.ViolationID, &v.Description, &impact, &v.HelpURL, &v.WCAGCriteria, &level,
			&v.Selector, &v.HTML, &v.Target, &v.AIExplanation, &v.FixSuggestion, &v.CodeExample, &v.DetectedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan violation: %w", err)
		}
		v.Impact = domain.Severity(impact)
		v.WCAGLevel = domain.ComplianceLevel(level)
		results = append(results, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

const violationFields = 15

// buildViolationInsert строит один INSERT ... VALUES (...), (...) на все нарушения.
// position сохраняет порядок, в котором нарушения пришли из пайплайна.
func buildViolationInsert(auditID string, violations []domain.Violation) (string, []any) {
	var sb strings.Builder
	args := make([]any, 0, len(violations)*violationFields)

	for i, v := range violations {
		if i > 0 {
			sb.WriteString(", ")
		}
		p := i * violationFields
		sb.WriteByte('(')
		for f := 1; f <= violationFields; f++ {
			if f > 1 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", p+f)
		}
		sb.WriteByte(')')

		args = append(args,
			auditID, i, v.ViolationID, v.Description, string(v.Impact), v.HelpURL,
			nonNil(v.WCAGCriteria), string(v.WCAGLevel), v.Selector, v.HTML, nonNil(v.Target),
			v.AIExplanation, v.FixSuggestion, v.CodeExample, nonNil(v.DetectedBy),
		)
	}

	query := `INSERT INTO violations (audit_id, position, violation_id, description, impact, help_url,
		wcag_criteria, wcag_level, selector, html, target, ai_explanation, fix_suggestion, code_example, detected_by)
		VALUES ` + sb.String()
	return query, args
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
