package postgres

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xela07ax/a11y-auditor/internal/domain"
	"github.com/xela07ax/a11y-auditor/internal/journal"
)

func TestBuildViolationInsert(t *testing.T) {
	code := "<img alt=\"x\">"
	vs := []domain.Violation{
		{ViolationID: "image-alt", Impact: domain.SeverityCritical, WCAGLevel: domain.LevelA, AIExplanation: "e", FixSuggestion: "f", CodeExample: &code},
		{ViolationID: "region", Impact: domain.SeverityModerate, WCAGLevel: domain.LevelUnknown, AIExplanation: "e", FixSuggestion: "f"},
	}

	query, args := buildViolationInsert("audit-1", vs)
	if len(args) != 2*violationFields {
		t.Fatalf("got %d args, want %d", len(args), 2*violationFields)
	}
	if !strings.Contains(query, "($16, $17, $18") || !strings.HasSuffix(query, "$30)") {
		t.Fatalf("unexpected placeholders: %s", query)
	}
	// position
	if args[1] != 0 || args[violationFields+1] != 1 {
		t.Fatalf("positions = %v, %v", args[1], args[violationFields+1])
	}
	// nil-срезы уходят в БД как пустые массивы
	if target, ok := args[violationFields+10].([]string); !ok || target == nil {
		t.Fatalf("target arg = %#v", args[violationFields+10])
	}
	if impact := args[4]; impact != "critical" {
		t.Fatalf("impact arg = %#v", impact)
	}
}

func TestBuildEventInsert(t *testing.T) {
	events := []journal.Event{
		{ID: "1", AuditID: "a", Stage: journal.StageStarted, Timestamp: time.Unix(0, 0)},
		{ID: "2", AuditID: "a", Stage: journal.StageScored, Detail: map[string]any{"score": 62}, Timestamp: time.Unix(1, 0)},
	}
	query, args, err := buildEventInsert(events)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(args) != 2*eventFields || !strings.HasSuffix(query, "$16)") {
		t.Fatalf("query=%s args=%d", query, len(args))
	}
	if detail, _ := args[eventFields+4].([]byte); string(detail) != `{"score":62}` {
		t.Fatalf("detail = %q", detail)
	}
	if detail, _ := args[4].([]byte); detail != nil {
		t.Fatalf("empty detail should be NULL, got %q", detail)
	}
}

func TestSchemaEmbedded(t *testing.T) {
	for _, table := range []string{"audits", "violations", "audit_events"} {
		if !strings.Contains(schemaSQL, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("schema lacks table %s", table)
		}
	}
}

func TestTransitionConflict(t *testing.T) {
	cases := []struct {
		current, next domain.AuditStatus
		want          []error
	}{
		{domain.AuditProcessing, domain.AuditProcessing, []error{domain.ErrNotPending, domain.ErrInvalidTransition}},
		{domain.AuditCompleted, domain.AuditProcessing, []error{domain.ErrNotPending, domain.ErrAlreadyFinished}},
		{domain.AuditFailed, domain.AuditCompleted, []error{domain.ErrAlreadyFinished}},
		{domain.AuditCompleted, domain.AuditFailed, []error{domain.ErrAlreadyFinished}},
		{domain.AuditPending, domain.AuditCompleted, []error{domain.ErrInvalidTransition}},
		// гонка: к моменту чтения переход снова допустим
		{domain.AuditProcessing, domain.AuditFailed, []error{domain.ErrInvalidTransition}},
	}
	for _, tc := range cases {
		err := transitionConflict("a1", tc.current, tc.next)
		for _, want := range tc.want {
			if !errors.Is(err, want) {
				t.Errorf("%s -> %s: %v, want %v", tc.current, tc.next, err, want)
			}
		}
		if !strings.Contains(err.Error(), string(tc.current)) {
			t.Errorf("%s -> %s: message %q lacks current status", tc.current, tc.next, err)
		}
	}
}
