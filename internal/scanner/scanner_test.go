package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xela07ax/a11y-auditor/internal/browser"
	"github.com/xela07ax/a11y-auditor/internal/domain"
)

type evalPage struct {
	loaded   bool
	injected int
	result   string
	scripts  []string
	err      error
}

func (p *evalPage) SetRequestInterception(browser.RequestPolicy) error { return nil }

func (p *evalPage) Navigate(context.Context, string) (int, error) { return 200, nil }

func (p *evalPage) WaitNetworkIdle(context.Context, int, time.Duration) error { return nil }

func (p *evalPage) Title(context.Context) (string, error) { return "", nil }

func (p *evalPage) BlockedRequests() int { return 0 }

func (p *evalPage) Evaluate(_ context.Context, expr string, out any) error {
	p.scripts = append(p.scripts, expr)
	if p.err != nil {
		return p.err
	}
	switch v := out.(type) {
	case *bool:
		*v = p.loaded
	case *string:
		*v = p.result
	case nil:
		p.injected++
		p.loaded = true
	}
	return nil
}

func readFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return string(data)
}

func TestAxeEngineInjectsOnceAndDecodes(t *testing.T) {
	page := &evalPage{result: readFixture(t, "axe_result.json")}
	s := New(NewAxeEngine("window.axe = {};"), time.Second)

	res, err := s.Scan(context.Background(), page, DefaultRuleConfig())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(res.Violations) != 3 || len(res.Passes) != 2 || len(res.Incomplete) != 1 || len(res.Inapplicable) != 1 {
		t.Fatalf("unexpected buckets: %d/%d/%d/%d", len(res.Violations), len(res.Passes), len(res.Incomplete), len(res.Inapplicable))
	}
	if page.injected != 1 {
		t.Fatalf("axe injected %d times, want 1", page.injected)
	}

	// повторный скан на той же странице не внедряет скрипт заново
	if _, err := s.Scan(context.Background(), page, DefaultRuleConfig()); err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if page.injected != 1 {
		t.Fatalf("axe injected %d times after rescan, want 1", page.injected)
	}

	last := page.scripts[len(page.scripts)-1]
	if !strings.Contains(last, `"color-contrast":{"enabled":true}`) || !strings.Contains(last, `"wcag22aa"`) {
		t.Fatalf("run script does not carry explicit rule config: %s", last)
	}
}

func TestScanWrapsEngineFailures(t *testing.T) {
	page := &evalPage{err: errors.New("target closed")}
	_, err := New(NewAxeEngine("x"), time.Second).Scan(context.Background(), page, DefaultRuleConfig())

	var scanErr *domain.ScanError
	if !errors.As(err, &scanErr) {
		t.Fatalf("expected ScanError, got %v", err)
	}
}

func TestScanWrapsMalformedResult(t *testing.T) {
	page := &evalPage{loaded: true, result: "{not json"}
	_, err := New(NewAxeEngine("x"), time.Second).Scan(context.Background(), page, DefaultRuleConfig())

	var scanErr *domain.ScanError
	if !errors.As(err, &scanErr) {
		t.Fatalf("expected ScanError, got %v", err)
	}
}

func TestRuleConfigIsImmutable(t *testing.T) {
	cfg := DefaultRuleConfig()
	rules := cfg.Rules()
	rules[0] = "mutated"
	if cfg.Rules()[0] == "mutated" {
		t.Fatal("RuleConfig exposes its internal slice")
	}

	src := []string{"image-alt"}
	reduced, err := NewRuleConfig(src, nil)
	if err != nil {
		t.Fatalf("new rule config: %v", err)
	}
	src[0] = "mutated"
	if reduced.Rules()[0] != "image-alt" {
		t.Fatal("RuleConfig aliases caller slice")
	}

	if _, err := NewRuleConfig(nil, nil); err == nil {
		t.Fatal("expected error for empty rule config")
	}
}

func TestAxeOptions(t *testing.T) {
	cfg, err := NewRuleConfig([]string{"image-alt"}, []string{"wcag2a"})
	if err != nil {
		t.Fatalf("new rule config: %v", err)
	}
	raw, err := cfg.AxeOptions()
	if err != nil {
		t.Fatalf("axe options: %v", err)
	}
	var opts struct {
		RunOnly struct {
			Type   string   `json:"type"`
			Values []string `json:"values"`
		} `json:"runOnly"`
		Rules map[string]struct {
			Enabled bool `json:"enabled"`
		} `json:"rules"`
	}
	if err := json.Unmarshal(raw, &opts); err != nil {
		t.Fatalf("decode options: %v", err)
	}
	if opts.RunOnly.Type != "tag" || len(opts.RunOnly.Values) != 1 || opts.RunOnly.Values[0] != "wcag2a" {
		t.Fatalf("unexpected runOnly %+v", opts.RunOnly)
	}
	if !opts.Rules["image-alt"].Enabled {
		t.Fatalf("image-alt not enabled: %s", raw)
	}
}

func TestLoadRuleConfig(t *testing.T) {
	cfg, err := LoadRuleConfig(filepath.Join("testdata", "rules.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.Rules(); len(got) != 2 || got[0] != "image-alt" || got[1] != "color-contrast" {
		t.Fatalf("unexpected rules %v", got)
	}
	if got := cfg.Tags(); len(got) != 1 || got[0] != "wcag2a" {
		t.Fatalf("unexpected tags %v", got)
	}
	if _, err := LoadRuleConfig(filepath.Join("testdata", "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefaultRuleConfigCoversTagFamilies(t *testing.T) {
	tags := DefaultRuleConfig().Tags()
	want := []string{"wcag2a", "wcag2aa", "wcag21a", "wcag21aa", "wcag22aa", "section508", "best-practice"}
	if len(tags) != len(want) {
		t.Fatalf("tags = %v, want %v", tags, want)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Fatalf("tags = %v, want %v", tags, want)
		}
	}
}
