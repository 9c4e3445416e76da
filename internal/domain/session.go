package domain

// Статусы State Machine переговоров
type SessionState string

const (
	SessionAwaitingResponse SessionState = "AWAITING_RESPONSE"
	SessionAgreed           SessionState = "AGREED"
	SessionAbandoned        SessionState = "ABANDONED"
)

// NegotiationSession — транзиентное состояние одного торга. Не персистится:
// живет от первого промпта до Agreement (или до abandon без побочных эффектов).
type NegotiationSession struct {
	ID    string          `json:"id"`
	Event BehavioralEvent `json:"event"`

	State       SessionState `json:"state"`
	RoundNumber int          `json:"round_number"` // Начинается с 0
	MaxRounds   int          `json:"max_rounds"`

	// Последний контроффер движка, в секундах. nil — оффер еще не вычислялся.
	LastOfferSeconds *float64 `json:"last_offer_seconds,omitempty"`

	Transcript []TranscriptTurn `json:"transcript"`
}

// CanTransitionTo проверяет правила конечного автомата: из терминальных
// состояний выходов нет. Нарушение — ошибка программиста, не ретраится.
func (s *NegotiationSession) CanTransitionTo(next SessionState) error {
	if s.State != SessionAwaitingResponse {
		return ErrInvalidNegotiationState
	}
	return nil
}

// Say дописывает реплику в транскрипт.
func (s *NegotiationSession) Say(actor, text string) {
	s.Transcript = append(s.Transcript, TranscriptTurn{Actor: actor, Text: text})
}
