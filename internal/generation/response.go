package generation

import "strings"

// Outcome: чем закончился один запрос генерации после разбора ответа.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"       // структурированный ответ
	OutcomeRaw      Outcome = "raw"      // ответ не разобран, сырой текст пошел в поле объяснения
	OutcomeFallback Outcome = "fallback" // сбой или таймаут, подставлена заглушка
)

// Observer получает исход каждого запроса (для метрик).
type Observer func(kind string, o Outcome)

// ExtractJSON снимает типичную обертку ответа модели (```json ... ```, текст до и после)
// и возвращает фрагмент от первой '{' до последней '}'. Если скобок нет, очищенный текст.
func ExtractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(s, "```"); ok {
		// язык после открывающего забора: ```json
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			rest = rest[i+1:]
		} else {
			rest = strings.TrimPrefix(rest, "json")
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), "```"))
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
