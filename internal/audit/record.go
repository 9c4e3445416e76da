package audit

import "time"

// RecordKind — тип события жизненного цикла договора.
type RecordKind string

const (
	KindCreated           RecordKind = "created"
	KindWarning           RecordKind = "warning"
	KindExpired           RecordKind = "expired"
	KindViolated          RecordKind = "violated"
	KindEnforced          RecordKind = "enforced"
	KindEnforcementFailed RecordKind = "enforcement_failed"
	KindCompleted         RecordKind = "completed"
	KindExtended          RecordKind = "extended"
	KindRevoked           RecordKind = "revoked"
)

// JournalRecord — одна строка истории договора в Postgres.
type JournalRecord struct {
	ID          string                 `json:"id"`           // UUID записи
	AgreementID string                 `json:"agreement_id"` // Чей жизненный цикл
	SubjectKey  string                 `json:"subject_key"`
	EventType   string                 `json:"event_type"`
	Kind        RecordKind             `json:"kind"`
	Details     map[string]interface{} `json:"details,omitempty"` // Контекст: секунды, попытки, кто продлил
	Timestamp   time.Time              `json:"timestamp"`
}
