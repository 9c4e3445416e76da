package negotiation

import (
	"fmt"
	"strings"
)

/*
Промпты детерминированы: текст зависит только от типа события, наблюдаемой
длительности и вычисленного оффера. Внутренние ошибки парсера наружу не
просачиваются — пользователя просим назвать конкретное число.
*/

// openingPrompt — первая реплика компаньона по событию детектора.
func openingPrompt(eventType string, observedSeconds float64) string {
	observed := humanSeconds(observedSeconds)
	switch eventType {
	case "distraction_site":
		return fmt.Sprintf("You've been on this site for %s already. How much longer do you need?", observed)
	case "doomscrolling":
		return fmt.Sprintf("That's %s of scrolling. How many more minutes before we wrap up?", observed)
	default:
		return fmt.Sprintf("I've noticed %s of %s. How much more time do you want?", observed, strings.ReplaceAll(eventType, "_", " "))
	}
}

// repromptConcrete просит конкретное число, не раскрывая деталей парсера.
func repromptConcrete() string {
	return "I didn't catch a number. Give me a concrete amount — like \"10 minutes\"."
}

// counterPrompt — встречное предложение при слишком жадном запросе.
func counterPrompt(offerSeconds float64) string {
	return fmt.Sprintf("That's a lot. How about %s instead?", humanSeconds(offerSeconds))
}

// imposedPrompt — финальный оффер, навязанный после исчерпания раундов.
func imposedPrompt(offerSeconds float64) string {
	return fmt.Sprintf("Final offer: %s. Starting the timer now.", humanSeconds(offerSeconds))
}

// acceptedPrompt подтверждает договоренность.
func acceptedPrompt(agreedSeconds float64) string {
	return fmt.Sprintf("Deal: %s. I'll hold you to it.", humanSeconds(agreedSeconds))
}

// humanSeconds печатает длительность так, как ее сказал бы человек.
func humanSeconds(s float64) string {
	switch {
	case s >= 3600 && int(s)%3600 == 0:
		h := int(s) / 3600
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	case s >= 60:
		m := int(s+30) / 60 // Округляем до минуты
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	default:
		return fmt.Sprintf("%d seconds", int(s))
	}
}
