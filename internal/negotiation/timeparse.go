package negotiation

import (
	"regexp"
	"strconv"
	"strings"
)

/*
Файл timeparse.go — чистая функция разбора длительности из свободного текста
пользователя. Никаких исключений: «не нашли число» — это нормальный результат,
который ведет на повторный промпт, а не ошибка.
*/

// numericMention ловит «10 minutes», «5 min», «90 seconds», «2 hours» и голое «15».
// Знак захватываем, чтобы отличить «-5 minutes» (отказ) от отсутствия числа.
var numericMention = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*(hours?|hrs?|hr|h|minutes?|mins?|min|m|seconds?|secs?|sec|s)?\b`)

// colloquialDefaults — разговорные обороты с фиксированными значениями.
// Порядок важен: более длинные фразы проверяем раньше («a couple of minutes»
// не должна матчиться как «a couple minutes» + хвост).
var colloquialDefaults = []struct {
	phrase  string
	seconds float64
}{
	{"half an hour", 1800},
	{"a couple of minutes", 120},
	{"a couple minutes", 120},
	{"a few minutes", 180},
	{"a little", 120},
	{"a bit", 120},
	{"quick", 60},
}

// rejectionPhrases — явный отказ от торга. Парсер возвращает «нет значения»:
// вызывающий обязан трактовать это как «пользователь хочет остановиться».
var rejectionPhrases = []string{
	"i don't know",
	"i dont know",
	"stop now",
	"no more",
	"no",
}

// ParseDuration извлекает длительность в секундах из реплики пользователя.
// Контракт:
//   - регистронезависимо;
//   - при нескольких упоминаниях времени побеждает первое по позиции в тексте;
//   - ноль и отрицательные числа — «нет значения» (договор из отказа не создается);
//   - фразы отказа — «нет значения».
func ParseDuration(text string) (float64, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return 0, false
	}

	for _, rej := range rejectionPhrases {
		if containsPhrase(lower, rej) {
			return 0, false
		}
	}

	// Ищем самое раннее упоминание: числовое ИЛИ разговорное.
	bestIdx := -1
	bestSeconds := 0.0
	found := false

	if loc := numericMention.FindStringSubmatchIndex(lower); loc != nil {
		numStr := lower[loc[2]:loc[3]]
		unit := ""
		if loc[4] != -1 {
			unit = lower[loc[4]:loc[5]]
		}
		if val, err := strconv.ParseFloat(numStr, 64); err == nil {
			if secs, ok := applyUnit(val, unit); ok {
				bestIdx = loc[0]
				bestSeconds = secs
				found = true
			}
		}
	}

	for _, c := range colloquialDefaults {
		idx := strings.Index(lower, c.phrase)
		if idx == -1 {
			continue
		}
		if !found || idx < bestIdx {
			bestIdx = idx
			bestSeconds = c.seconds
			found = true
		}
	}

	if !found || bestSeconds <= 0 {
		return 0, false
	}
	return bestSeconds, true
}

// applyUnit переводит число в секунды. Голое число трактуем как минуты —
// «дай мне 15» в контексте торга всегда про минуты.
func applyUnit(val float64, unit string) (float64, bool) {
	if val <= 0 {
		return 0, false
	}
	switch {
	case unit == "":
		return val * 60, true
	case strings.HasPrefix(unit, "h"):
		return val * 3600, true
	case strings.HasPrefix(unit, "m"):
		return val * 60, true
	case strings.HasPrefix(unit, "s"):
		return val, true
	}
	return 0, false
}

// containsPhrase ищет фразу по границам слов, чтобы «no» не матчилось в «now».
func containsPhrase(text, phrase string) bool {
	idx := 0
	for {
		pos := strings.Index(text[idx:], phrase)
		if pos == -1 {
			return false
		}
		pos += idx
		end := pos + len(phrase)
		beforeOK := pos == 0 || !isWordChar(text[pos-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = pos + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '\''
}
