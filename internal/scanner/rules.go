package scanner

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Явно включаемые правила. Не полагаемся на дефолты движка, чтобы покрытие
// не менялось при обновлении axe-core.
var defaultRules = []string{
	// контраст
	"color-contrast",
	"link-in-text-block",
	// формы
	"label",
	"form-field-multiple-labels",
	"select-name",
	"input-button-name",
	"input-image-alt",
	"autocomplete-valid",
	// изображения
	"image-alt",
	"image-redundant-alt",
	"object-alt",
	"svg-img-alt",
	"role-img-alt",
	"area-alt",
	// заголовки
	"heading-order",
	"empty-heading",
	"page-has-heading-one",
	// ссылки и кнопки
	"link-name",
	"button-name",
	"identical-links-same-purpose",
	// таблицы
	"td-headers-attr",
	"th-has-data-cells",
	"table-duplicate-name",
	"td-has-header",
	// ARIA: name / role / state
	"aria-allowed-attr",
	"aria-allowed-role",
	"aria-command-name",
	"aria-hidden-body",
	"aria-hidden-focus",
	"aria-input-field-name",
	"aria-required-attr",
	"aria-required-children",
	"aria-required-parent",
	"aria-roles",
	"aria-toggle-field-name",
	"aria-valid-attr",
	"aria-valid-attr-value",
	// клавиатура
	"tabindex",
	"focus-order-semantics",
	"scrollable-region-focusable",
	"accesskeys",
	"nested-interactive",
	// язык
	"html-has-lang",
	"html-lang-valid",
	"html-xml-lang-mismatch",
	"valid-lang",
	// дублирующиеся id
	"duplicate-id",
	"duplicate-id-active",
	"duplicate-id-aria",
	// обход блоков и структура
	"bypass",
	"skip-link",
	"region",
	"landmark-one-main",
	"document-title",
	"frame-title",
	"list",
	"listitem",
	// медиа
	"video-caption",
	"audio-caption",
	"no-autoplay-audio",
	// meta
	"meta-refresh",
	"meta-viewport",
	"meta-viewport-large",
}

// WCAG 2.0 A/AA, WCAG 2.1 A/AA, WCAG 2.2 AA, Section 508, best practices.
var defaultTags = []string{
	"wcag2a",
	"wcag2aa",
	"wcag21a",
	"wcag21aa",
	"wcag22aa",
	"section508",
	"best-practice",
}

// RuleConfig: неизменяемый набор правил и тегов. Строится один раз и передается
// в сканер явно, поэтому тесты могут подставить урезанный набор.
type RuleConfig struct {
	rules []string
	tags  []string
}

// NewRuleConfig копирует входные срезы и убирает дубли.
func NewRuleConfig(rules, tags []string) (RuleConfig, error) {
	r, t := dedup(rules), dedup(tags)
	if len(r) == 0 && len(t) == 0 {
		return RuleConfig{}, errors.New("scanner: rule config must enable at least one rule or tag")
	}
	return RuleConfig{rules: r, tags: t}, nil
}

// DefaultRuleConfig: полный набор правил и тегов.
func DefaultRuleConfig() RuleConfig {
	cfg, _ := NewRuleConfig(defaultRules, defaultTags)
	return cfg
}

type ruleFile struct {
	Rules []string `yaml:"rules"`
	Tags  []string `yaml:"tags"`
}

// LoadRuleConfig читает YAML вида {rules: [...], tags: [...]}. Пустые tags, дефолтные теги.
func LoadRuleConfig(path string) (RuleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleConfig{}, fmt.Errorf("scanner: read rules file: %w", err)
	}
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return RuleConfig{}, fmt.Errorf("scanner: parse rules file: %w", err)
	}
	if len(f.Tags) == 0 {
		f.Tags = defaultTags
	}
	return NewRuleConfig(f.Rules, f.Tags)
}

func (c RuleConfig) Rules() []string { return append([]string(nil), c.rules...) }

func (c RuleConfig) Tags() []string { return append([]string(nil), c.tags...) }

type ruleToggle struct {
	Enabled bool `json:"enabled"`
}

type runOnly struct {
	Type   string   `json:"type"`
	Values []string `json:"values"`
}

type axeOptions struct {
	RunOnly     *runOnly              `json:"runOnly,omitempty"`
	Rules       map[string]ruleToggle `json:"rules,omitempty"`
	ResultTypes []string              `json:"resultTypes"`
}

// AxeOptions сериализует набор в options для axe.run.
func (c RuleConfig) AxeOptions() ([]byte, error) {
	opts := axeOptions{
		Rules:       make(map[string]ruleToggle, len(c.rules)),
		ResultTypes: []string{"violations", "passes", "incomplete", "inapplicable"},
	}
	if len(c.tags) > 0 {
		opts.RunOnly = &runOnly{Type: "tag", Values: c.tags}
	}
	for _, id := range c.rules {
		opts.Rules[id] = ruleToggle{Enabled: true}
	}
	return json.Marshal(opts)
}

func dedup(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
