package scanner

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const ellipsis = "..."

// Snippet ограничивает HTML элемента maxLen символами. Если элемент не помещается,
// сначала пробуем оставить только открывающий тег, он несет атрибуты, важные для исправления.
func Snippet(raw string, maxLen int) string {
	raw = strings.TrimSpace(raw)
	if maxLen <= 0 || utf8.RuneCountInString(raw) <= maxLen {
		return raw
	}
	// Многоточие само не влезает в лимит: просто режем
	if maxLen <= len(ellipsis) {
		return truncateRunes(raw, maxLen)
	}
	if tag := startTag(raw); tag != "" && utf8.RuneCountInString(tag)+len(ellipsis) <= maxLen {
		return tag + ellipsis
	}
	return truncateRunes(raw, maxLen-len(ellipsis)) + ellipsis
}

func startTag(raw string) string {
	z := html.NewTokenizer(strings.NewReader(raw))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			return string(z.Raw())
		}
	}
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
