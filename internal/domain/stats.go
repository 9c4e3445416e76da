package domain

// GlobalStats — агрегаты для дашборда Console API.
type GlobalStats struct {
	TotalAgreements  int64            `json:"total_agreements"`
	ActiveAgreements int64            `json:"active_agreements"`
	Violations       int64            `json:"violations"`
	Completions      int64            `json:"completions"` // Пользователь остановился сам
	ComplianceRatio  float64          `json:"compliance_ratio"`
	TopSubjects      map[string]int64 `json:"top_subjects"` // subjectKey -> кол-во договоров
	HourlyActivity   []ActivityPoint  `json:"hourly_activity"`
}

type ActivityPoint struct {
	Hour  string `json:"hour"`
	Count int64  `json:"count"`
}
