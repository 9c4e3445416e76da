package domain

import "time"

// Severity — насколько серьезно поведение, зафиксированное детектором.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high" // Мгновенная блокировка без переговоров
)

// BehavioralEvent — входной сигнал от поведенческого детектора.
// Мы его только читаем, никогда не мутируем (immutable value).
type BehavioralEvent struct {
	EventType       string                 `json:"event_type"` // e.g. "distraction_site", "doomscrolling"
	Severity        Severity               `json:"severity"`
	SubjectKey      string                 `json:"subject_key,omitempty"` // "" = общесистемное событие
	DurationSeconds float64                `json:"duration_seconds"`      // Сколько поведение уже длится
	DetectedAt      time.Time              `json:"detected_at"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// ActivitySignal — «что пользователь делает прямо сейчас», приходит на каждый
// тик цикла мониторинга. nil-сигнал означает «релевантной активности нет».
type ActivitySignal struct {
	SubjectKey string    `json:"subject_key"`
	ObservedAt time.Time `json:"observed_at"`
}

// Validate проверяет обязательные поля. Битый сигнал = пропуск тика,
// прежнее состояние сохраняется (см. MalformedActivitySignal в error taxonomy).
func (s *ActivitySignal) Validate() error {
	if s == nil {
		return nil // Отсутствие сигнала — легальное состояние
	}
	if s.ObservedAt.IsZero() {
		return ErrMalformedActivitySignal
	}
	return nil
}
