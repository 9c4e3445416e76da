package domain

import (
	"time"

	"github.com/google/uuid"
)

// TranscriptTurn — одна реплика переговоров (кто сказал и что).
type TranscriptTurn struct {
	Actor string `json:"actor"` // "companion" или "user"
	Text  string `json:"text"`
}

// Agreement — договоренность о времени: «еще 10 минут на этот сайт».
// Идентичность неизменна, состояние мутирует строго через методы ниже.
// Запись никогда не удаляется — только деактивируется (Audit Trail).
type Agreement struct {
	ID         string `json:"id"`          // UUID, присваивается при создании
	SubjectKey string `json:"subject_key"` // URL или имя процесса; "" = вся система
	EventType  string `json:"event_type"`  // Какое поведение спровоцировало договор

	AgreedDurationSeconds float64   `json:"agreed_duration_seconds"`
	CreatedAt             time.Time `json:"created_at"`
	ExpiresAt             time.Time `json:"expires_at"`

	NegotiationTranscript []TranscriptTurn `json:"negotiation_transcript"`

	IsActive       bool `json:"is_active"`
	IsViolated     bool `json:"is_violated"`
	ViolationCount int  `json:"violation_count"`
}

// NewAgreement создает активный договор. expiresAt вычисляется здесь и
// больше нигде — единственный путь сдвига срока это Extend.
func NewAgreement(subjectKey, eventType string, durationSeconds float64, transcript []TranscriptTurn, now time.Time) *Agreement {
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	return &Agreement{
		ID:                    uuid.New().String(),
		SubjectKey:            subjectKey,
		EventType:             eventType,
		AgreedDurationSeconds: durationSeconds,
		CreatedAt:             now,
		ExpiresAt:             now.Add(secondsToDuration(durationSeconds)),
		NegotiationTranscript: transcript,
		IsActive:              true,
	}
}

// Extend добавляет время к договору. Вызывается ТОЛЬКО из пути, одобренного
// пользователем (Console API → Redis signal). Срок монотонно растет.
func (a *Agreement) Extend(bySeconds float64) error {
	if !a.IsActive {
		return ErrAgreementInactive
	}
	if bySeconds <= 0 {
		return ErrInvalidExtension
	}
	a.AgreedDurationSeconds += bySeconds
	a.ExpiresAt = a.ExpiresAt.Add(secondsToDuration(bySeconds))
	return nil
}

// MarkViolated фиксирует нарушение. Инвариант: IsViolated => ViolationCount >= 1.
func (a *Agreement) MarkViolated() {
	a.ViolationCount++
	a.IsViolated = true
}

// Deactivate — терминальный переход. Обратного пути нет: вместо реактивации
// создается новый договор.
func (a *Agreement) Deactivate() {
	a.IsActive = false
}

// Remaining возвращает сколько осталось до истечения (может быть < 0).
func (a *Agreement) Remaining(now time.Time) time.Duration {
	return a.ExpiresAt.Sub(now)
}

// Governs проверяет, относится ли наблюдаемая активность к этому договору.
// Пустой SubjectKey означает договор на всё устройство: любая активность считается.
func (a *Agreement) Governs(subjectKey string) bool {
	return a.SubjectKey == "" || a.SubjectKey == subjectKey
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
