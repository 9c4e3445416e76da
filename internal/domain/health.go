package domain

import "time"

// HealthStatus — явное состояние сервиса вместо duck-typed проверок.
type HealthStatus string

const (
	HealthAvailable   HealthStatus = "available"
	HealthDegraded    HealthStatus = "degraded"
	HealthUnavailable HealthStatus = "unavailable"
)

// ServiceHealth кэшируется резолвером и обновляется pull-based по интервалу.
type ServiceHealth struct {
	Status      HealthStatus `json:"status"`
	LastChecked time.Time    `json:"last_checked"`
}

// Usable — можно ли отдавать хендл вызывающему. Degraded считается рабочим:
// лучше медленный голос, чем молчание.
func (h ServiceHealth) Usable() bool {
	return h.Status != HealthUnavailable
}
