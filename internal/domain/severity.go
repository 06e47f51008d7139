package domain

import "strings"

// Severity: критичность нарушения (impact в терминах движка правил).
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeveritySerious  Severity = "serious"
	SeverityModerate Severity = "moderate"
	SeverityMinor    Severity = "minor"
	SeverityUnknown  Severity = ""
)

// Rank задает полный порядок critical > serious > moderate > minor > unknown.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeveritySerious:
		return 3
	case SeverityModerate:
		return 2
	case SeverityMinor:
		return 1
	}
	return 0
}

// ParseSeverity нормализует строку из движка или из ответа генерации.
func ParseSeverity(raw string) Severity {
	s := Severity(strings.ToLower(strings.TrimSpace(raw)))
	if s.Rank() == 0 {
		return SeverityUnknown
	}
	return s
}

// ComplianceLevel: уровень соответствия WCAG.
type ComplianceLevel string

const (
	LevelA       ComplianceLevel = "A"
	LevelAA      ComplianceLevel = "AA"
	LevelAAA     ComplianceLevel = "AAA"
	LevelUnknown ComplianceLevel = "Unknown"
)

// Rank задает порядок AAA > AA > A > Unknown.
func (l ComplianceLevel) Rank() int {
	switch l {
	case LevelAAA:
		return 3
	case LevelAA:
		return 2
	case LevelA:
		return 1
	}
	return 0
}

// LevelFromTags выводит наивысший уровень по тегам вида wcag2a, wcag21aa, wcag22aaa.
func LevelFromTags(tags []string) ComplianceLevel {
	best := LevelUnknown
	for _, t := range tags {
		if l := levelFromTag(t); l.Rank() > best.Rank() {
			best = l
		}
	}
	return best
}

func levelFromTag(tag string) ComplianceLevel {
	rest, ok := strings.CutPrefix(strings.ToLower(tag), "wcag2")
	if !ok {
		return LevelUnknown
	}
	// необязательная минорная версия: wcag21aa, wcag22aa
	if rest != "" && rest[0] >= '0' && rest[0] <= '9' {
		rest = rest[1:]
	}
	switch rest {
	case "a":
		return LevelA
	case "aa":
		return LevelAA
	case "aaa":
		return LevelAAA
	}
	return LevelUnknown
}
