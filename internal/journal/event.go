package journal

import "time"

// Stage: этап пайплайна, попадающий в журнал.
type Stage string

const (
	StageStarted    Stage = "started"
	StageValidated  Stage = "validated"
	StageNavigated  Stage = "navigated"
	StageScanned    Stage = "scanned"
	StageScored     Stage = "scored"
	StageEnriched   Stage = "enriched"
	StageSummarized Stage = "summarized"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

type Event struct {
	ID      string `json:"id"`       // UUID события
	AuditID string `json:"audit_id"` // к какому аудиту относится
	TraceID string `json:"trace_id"` // сквозной ID триггера
	Stage   Stage  `json:"stage"`

	// Результат этапа
	Detail     map[string]any `json:"detail"`
	Error      string         `json:"error"`
	DurationMs int64          `json:"duration_ms"` // длительность этапа
	Timestamp  time.Time      `json:"timestamp"`
}
