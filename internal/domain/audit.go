package domain

import "time"

// AuditStatus: состояния конечного автомата аудита.
type AuditStatus string

const (
	AuditPending    AuditStatus = "pending"
	AuditProcessing AuditStatus = "processing"
	AuditCompleted  AuditStatus = "completed"
	AuditFailed     AuditStatus = "failed"
)

// IsTerminal сообщает, что из статуса нет переходов (повторный аудит = новая запись).
func (s AuditStatus) IsTerminal() bool {
	return s == AuditCompleted || s == AuditFailed
}

// CanTransitionTo проверяет правила конечного автомата Pending -> Processing -> {Completed, Failed}
func (s AuditStatus) CanTransitionTo(next AuditStatus) error {
	switch s {
	case AuditPending:
		if next == AuditProcessing {
			return nil
		}
	case AuditProcessing:
		if next == AuditCompleted || next == AuditFailed {
			return nil
		}
	}
	if s.IsTerminal() {
		return ErrAlreadyFinished
	}
	return ErrInvalidTransition
}

// SeverityCounts: разбивка нарушений по критичности.
type SeverityCounts struct {
	Critical int `json:"critical"`
	Serious  int `json:"serious"`
	Moderate int `json:"moderate"`
	Minor    int `json:"minor"`
}

// Total возвращает сумму по всем уровням.
func (c SeverityCounts) Total() int {
	return c.Critical + c.Serious + c.Moderate + c.Minor
}

// Add учитывает одно нарушение с заданной критичностью. Неизвестная критичность не считается.
func (c *SeverityCounts) Add(s Severity) {
	switch s {
	case SeverityCritical:
		c.Critical++
	case SeveritySerious:
		c.Serious++
	case SeverityModerate:
		c.Moderate++
	case SeverityMinor:
		c.Minor++
	}
}

// Effort: оценка трудозатрат на рекомендацию.
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// Recommendation: пункт ранжированного списка рекомендаций.
type Recommendation struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Impact      Severity `json:"impact"`
	Effort      Effort   `json:"effort"`
}

// AuditRecord: одна запись аудита. Создается внешним слоем в статусе Pending,
// мутируется исключительно оркестратором.
type AuditRecord struct {
	ID     string      `json:"id"`
	URL    string      `json:"url"`
	Title  string      `json:"title"`
	Status AuditStatus `json:"status"`

	TotalViolations int `json:"total_violations"`
	SeverityCounts

	OverallScore            *int             `json:"overall_score,omitempty"`
	AISummary               string           `json:"ai_summary,omitempty"`
	PriorityRecommendations []Recommendation `json:"priority_recommendations"`
	ErrorMessage            string           `json:"error_message,omitempty"`

	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`
}

// AuditOutcome: все агрегаты успешного прогона, записываемые одной транзакцией вместе с нарушениями.
type AuditOutcome struct {
	Title           string
	TotalViolations int
	Counts          SeverityCounts
	Score           int
	Summary         string
	Recommendations []Recommendation
	CompletedAt     time.Time
}

// Violation: одно сохраненное нарушение правила. Неизменяемо после вставки.
type Violation struct {
	AuditID      string          `json:"audit_id"`
	ViolationID  string          `json:"violation_id"` // идентификатор правила, напр. "color-contrast"
	Description  string          `json:"description"`
	Impact       Severity        `json:"impact"`
	HelpURL      string          `json:"help_url"`
	WCAGCriteria []string        `json:"wcag_criteria"`
	WCAGLevel    ComplianceLevel `json:"wcag_level"`
	Selector     string          `json:"selector"`
	HTML         string          `json:"html"`
	Target       []string        `json:"target"`

	AIExplanation string   `json:"ai_explanation"`
	FixSuggestion string   `json:"fix_suggestion"`
	CodeExample   *string  `json:"code_example,omitempty"`
	DetectedBy    []string `json:"detected_by"`
}
