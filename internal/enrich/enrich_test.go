package enrich

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/a11y-auditor/internal/domain"
	"github.com/xela07ax/a11y-auditor/internal/generation"
	"github.com/xela07ax/a11y-auditor/internal/infra"
)

var update = flag.Bool("update", false, "rewrite golden files")

func TestBuildPromptGolden(t *testing.T) {
	v := domain.Violation{
		ViolationID:  "image-alt",
		Description:  "Ensures <img> elements have alternate text or a role of none or presentation",
		Impact:       domain.SeverityCritical,
		HelpURL:      "https://dequeuniversity.com/rules/axe/4.10/image-alt",
		WCAGCriteria: []string{"wcag2a", "wcag111", "section508"},
		WCAGLevel:    domain.LevelA,
		Selector:     "#hero > img",
		HTML:         `<img src="/hero.jpg">`,
	}
	got := BuildPrompt(v)

	path := filepath.Join("testdata", "image_alt.golden")
	if *update {
		if err := os.WriteFile(path, []byte(got+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	want, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read golden: %v", err)
	}
	if got != strings.TrimSuffix(string(want), "\n") {
		t.Fatalf("prompt mismatch:\n--- got ---\n%s\n--- want ---\n%s", got, want)
	}
}

func TestBuildPromptPlaceholders(t *testing.T) {
	got := BuildPrompt(domain.Violation{ViolationID: "region"})
	if !strings.Contains(got, "Compliance criteria: none") || !strings.Contains(got, "(not available)") {
		t.Fatalf("missing placeholders:\n%s", got)
	}
}

func TestParse(t *testing.T) {
	code := "<img alt=\"Team photo\">"
	cases := []struct {
		name    string
		raw     string
		want    Enrichment
		outcome generation.Outcome
	}{
		{
			name:    "camel case",
			raw:     `{"explanation": "Screen readers skip it.", "fixSuggestion": "Add alt.", "codeExample": "<img alt=\"Team photo\">"}`,
			want:    Enrichment{Explanation: "Screen readers skip it.", FixSuggestion: "Add alt.", CodeExample: &code},
			outcome: generation.OutcomeOK,
		},
		{
			name:    "fenced snake case",
			raw:     "```json\n{\"explanation\": \"E\", \"fix_suggestion\": \"F\", \"code_example\": null}\n```",
			want:    Enrichment{Explanation: "E", FixSuggestion: "F"},
			outcome: generation.OutcomeOK,
		},
		{
			name:    "null string code",
			raw:     `{"explanation": "E", "fixSuggestion": "F", "codeExample": "null"}`,
			want:    Enrichment{Explanation: "E", FixSuggestion: "F"},
			outcome: generation.OutcomeOK,
		},
		{
			name:    "free text",
			raw:     "  The image has no alternative text.  ",
			want:    Enrichment{Explanation: "The image has no alternative text.", FixSuggestion: FallbackFix},
			outcome: generation.OutcomeRaw,
		},
		{
			name:    "missing fix",
			raw:     `{"explanation": "E"}`,
			want:    Enrichment{Explanation: `{"explanation": "E"}`, FixSuggestion: FallbackFix},
			outcome: generation.OutcomeRaw,
		},
		{
			name:    "empty",
			raw:     "   ",
			want:    Fallback(),
			outcome: generation.OutcomeFallback,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, outcome := Parse(tc.raw)
			if outcome != tc.outcome {
				t.Fatalf("outcome = %s, want %s", outcome, tc.outcome)
			}
			if got.Explanation != tc.want.Explanation || got.FixSuggestion != tc.want.FixSuggestion {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
			if (got.CodeExample == nil) != (tc.want.CodeExample == nil) {
				t.Fatalf("code example = %v, want %v", got.CodeExample, tc.want.CodeExample)
			}
			if got.CodeExample != nil && *got.CodeExample != *tc.want.CodeExample {
				t.Fatalf("code example = %q, want %q", *got.CodeExample, *tc.want.CodeExample)
			}
		})
	}
}

// ruleEchoGenerator отвечает с задержкой, зависящей от правила, и возвращает id правила в объяснении.
type ruleEchoGenerator struct {
	delays   map[string]time.Duration
	failRule string
}

func ruleOf(prompt string) string {
	_, rest, _ := strings.Cut(prompt, "Rule: ")
	rule, _, _ := strings.Cut(rest, "\n")
	return rule
}

func (g *ruleEchoGenerator) Generate(ctx context.Context, p generation.Prompt) (string, error) {
	rule := ruleOf(p.User)
	if rule == g.failRule {
		return "", errors.New("upstream exploded")
	}
	select {
	case <-time.After(g.delays[rule]):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return fmt.Sprintf(`{"explanation": "about %s", "fixSuggestion": "fix %s"}`, rule, rule), nil
}

func testPipelineConfig() infra.PipelineConfig {
	return infra.PipelineConfig{
		EnrichmentTimeout:     time.Second,
		EnrichmentConcurrency: 25,
		EnrichmentMaxTokens:   200,
	}
}

func violations(n int) []domain.Violation {
	out := make([]domain.Violation, n)
	for i := range out {
		out[i] = domain.Violation{AuditID: "a", ViolationID: fmt.Sprintf("rule-%02d", i)}
	}
	return out
}

func TestEnrichPreservesOrder(t *testing.T) {
	in := violations(25)
	rng := rand.New(rand.NewPCG(7, 11))
	gen := &ruleEchoGenerator{delays: make(map[string]time.Duration)}
	for _, v := range in {
		gen.delays[v.ViolationID] = time.Duration(rng.IntN(40)) * time.Millisecond
	}

	out := NewPipeline(gen, testPipelineConfig(), zap.NewNop(), nil).Enrich(context.Background(), in)
	if len(out) != len(in) {
		t.Fatalf("got %d results, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i].ViolationID != in[i].ViolationID {
			t.Fatalf("position %d holds %s, want %s", i, out[i].ViolationID, in[i].ViolationID)
		}
		if want := "about " + in[i].ViolationID; out[i].AIExplanation != want {
			t.Fatalf("position %d explanation %q, want %q", i, out[i].AIExplanation, want)
		}
	}
	if in[0].AIExplanation != "" {
		t.Fatal("input slice was mutated")
	}
}

func TestEnrichIsolatesFailure(t *testing.T) {
	in := violations(10)
	gen := &ruleEchoGenerator{delays: make(map[string]time.Duration), failRule: "rule-04"}
	for _, v := range in {
		gen.delays[v.ViolationID] = 20 * time.Millisecond
	}

	var mu sync.Mutex
	outcomes := map[generation.Outcome]int{}
	observe := func(kind string, o generation.Outcome) {
		mu.Lock()
		outcomes[o]++
		mu.Unlock()
	}

	start := time.Now()
	out := NewPipeline(gen, testPipelineConfig(), zap.NewNop(), observe).Enrich(context.Background(), in)
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("enrichment took %s, calls were not concurrent", elapsed)
	}

	for i, v := range out {
		if i == 4 {
			if v.AIExplanation != FallbackExplanation || v.FixSuggestion != FallbackFix || v.CodeExample != nil {
				t.Fatalf("failed item not replaced by fallback: %+v", v)
			}
			continue
		}
		if v.AIExplanation != "about "+v.ViolationID {
			t.Fatalf("item %d affected by sibling failure: %q", i, v.AIExplanation)
		}
	}
	if outcomes[generation.OutcomeOK] != 9 || outcomes[generation.OutcomeFallback] != 1 {
		t.Fatalf("unexpected outcomes %v", outcomes)
	}
}

func TestEnrichPerCallTimeout(t *testing.T) {
	in := violations(3)
	gen := &ruleEchoGenerator{delays: map[string]time.Duration{"rule-01": time.Hour}}
	cfg := testPipelineConfig()
	cfg.EnrichmentTimeout = 50 * time.Millisecond

	out := NewPipeline(gen, cfg, zap.NewNop(), nil).Enrich(context.Background(), in)
	if out[1].AIExplanation != FallbackExplanation {
		t.Fatalf("slow item not replaced by fallback: %q", out[1].AIExplanation)
	}
	if out[0].AIExplanation != "about rule-00" || out[2].AIExplanation != "about rule-02" {
		t.Fatalf("fast items lost: %q / %q", out[0].AIExplanation, out[2].AIExplanation)
	}
}
