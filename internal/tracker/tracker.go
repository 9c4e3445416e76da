package tracker

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/domain"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/infra"
)

// Hooks — edge-triggered колбэки переходов состояния. Реализуются слоем
// презентации/принуждения; ядро конкретный UI не вызывает никогда.
// Каждый колбэк для данного договора стреляет не более одного раза.
type Hooks interface {
	OnWarning(ag *domain.Agreement, secondsRemaining float64)
	OnExpired(ag *domain.Agreement)
	OnViolation(ag *domain.Agreement)
}

// ComplianceTracker держит рабочее множество активных договоров и на каждом
// тике классифицирует их против текущей активности пользователя.
//
// Конкурентность: поля договора мутируются только под мьютексом трекера, и
// только из тик-цикла — внешние сигналы (Extend/Revoke из Redis) монитор
// воронит в тик через канал, у мутаций один потребитель. HTTP-ручки читают
// рабочее множество копиями через Snapshot и живых указателей не видят —
// два движка никогда не гоняются за полями одного договора.
type ComplianceTracker struct {
	mu         sync.Mutex
	agreements map[string]*domain.Agreement

	// Tracker-local флаги «колбэк уже отправлен». Не в Agreement, чтобы
	// персистентная запись не тащила в себе состояние доставки.
	warned       map[string]bool
	expiredFired map[string]bool
	violated     map[string]bool

	cfg    infra.TrackerConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewComplianceTracker(cfg infra.TrackerConfig, logger *zap.Logger) *ComplianceTracker {
	return &ComplianceTracker{
		agreements:   make(map[string]*domain.Agreement),
		warned:       make(map[string]bool),
		expiredFired: make(map[string]bool),
		violated:     make(map[string]bool),
		cfg:          cfg,
		logger:       logger.Named("tracker"),
		now:          time.Now,
	}
}

// Add регистрирует договор. При теплом старте (договор восстановлен из БД)
// флаги доставки восстанавливаем консервативно из персистентного состояния:
// уже нарушенный договор не должен стрелять OnViolation второй раз.
func (t *ComplianceTracker) Add(ag *domain.Agreement) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.agreements[ag.ID] = ag
	if ag.IsViolated {
		t.warned[ag.ID] = true
		t.expiredFired[ag.ID] = true
		t.violated[ag.ID] = true
	}
}

// Remove убирает договор из рабочего множества (durable-хранилище не трогаем).
func (t *ComplianceTracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forget(id)
}

func (t *ComplianceTracker) forget(id string) {
	delete(t.agreements, id)
	delete(t.warned, id)
	delete(t.expiredFired, id)
	delete(t.violated, id)
}

// Get возвращает договор по ID (или nil).
func (t *ComplianceTracker) Get(id string) *domain.Agreement {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.agreements[id]
}

// GetActive возвращает срез активных договоров в детерминированном порядке.
func (t *ComplianceTracker) GetActive() []*domain.Agreement {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*domain.Agreement, 0, len(t.agreements))
	for _, id := range t.sortedIDs() {
		if ag := t.agreements[id]; ag.IsActive {
			out = append(out, ag)
		}
	}
	return out
}

// Snapshot возвращает копии активных договоров для отдачи наружу (HTTP).
// Копии под мьютексом: читатель никогда не держит живой указатель, который
// тик-цикл мутирует.
func (t *ComplianceTracker) Snapshot() []domain.Agreement {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.Agreement, 0, len(t.agreements))
	for _, id := range t.sortedIDs() {
		ag := t.agreements[id]
		if !ag.IsActive {
			continue
		}
		cp := *ag
		cp.NegotiationTranscript = append([]domain.TranscriptTurn(nil), ag.NegotiationTranscript...)
		out = append(out, cp)
	}
	return out
}

// Deactivate — терминальный переход под мьютексом трекера. false, если
// договора нет в рабочем множестве.
func (t *ComplianceTracker) Deactivate(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	ag, ok := t.agreements[id]
	if !ok {
		return false
	}
	ag.Deactivate()
	return true
}

// GetExpired возвращает активные договоры, чей срок уже вышел.
func (t *ComplianceTracker) GetExpired() []*domain.Agreement {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	out := make([]*domain.Agreement, 0)
	for _, id := range t.sortedIDs() {
		ag := t.agreements[id]
		if ag.IsActive && !now.Before(ag.ExpiresAt) {
			out = append(out, ag)
		}
	}
	return out
}

// Extend — путь, одобренный пользователем (Console API → Redis signal).
// Если новый срок вернул договор в SAFE, предупреждение перевзводится.
func (t *ComplianceTracker) Extend(id string, bySeconds float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ag, ok := t.agreements[id]
	if !ok {
		return domain.ErrAgreementInactive
	}
	if err := ag.Extend(bySeconds); err != nil {
		return err
	}

	now := t.now()
	if now.Before(ag.ExpiresAt.Add(-t.cfg.WarningWindow)) {
		delete(t.warned, id) // Снова SAFE — warning перевзводим
	}
	if now.Before(ag.ExpiresAt) {
		delete(t.expiredFired, id)
	}
	return nil
}

// Revoke досрочно деактивирует договор без нарушения. Возвращает договор,
// чтобы вызывающий мог зажурналировать отзыв.
func (t *ComplianceTracker) Revoke(id string) (*domain.Agreement, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ag, ok := t.agreements[id]
	if !ok {
		return nil, domain.ErrAgreementInactive
	}
	ag.Deactivate()
	return ag, nil
}

// CheckCompliance — один вызов на тик поллинга. Классифицирует каждый активный
// договор и стреляет колбэками строго по порядку SAFE→WARNING→EXPIRED→
// (VIOLATED|COMPLETED), каждый не более одного раза.
//
// Битый сигнал — пропуск всего тика: прежнее состояние сохраняется.
// Паника в обработке одного договора не мешает оценке остальных.
func (t *ComplianceTracker) CheckCompliance(signal *domain.ActivitySignal, hooks Hooks) error {
	if err := signal.Validate(); err != nil {
		t.logger.Error("activity signal rejected, tick skipped", zap.Error(err))
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.supersede()

	now := t.now()
	for _, id := range t.sortedIDs() {
		ag := t.agreements[id]
		if !ag.IsActive {
			continue
		}
		t.checkOne(now, ag, signal, hooks)
	}
	return nil
}

// checkOne изолирует обработку одного договора: паника колбэка логируется,
// тик продолжается.
func (t *ComplianceTracker) checkOne(now time.Time, ag *domain.Agreement, signal *domain.ActivitySignal, hooks Hooks) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("agreement check panicked",
				zap.String("agreement_id", ag.ID),
				zap.Any("panic", r))
		}
	}()

	warningAt := ag.ExpiresAt.Add(-t.cfg.WarningWindow)

	// SAFE: до окна предупреждения ничего не происходит.
	if now.Before(warningAt) {
		return
	}

	// WARNING: ровно одно предупреждение на договор.
	if now.Before(ag.ExpiresAt) {
		if !t.warned[ag.ID] {
			t.warned[ag.ID] = true
			hooks.OnWarning(ag, ag.Remaining(now).Seconds())
		}
		return
	}

	// EXPIRED: срок вышел, договор еще не деактивирован.
	if !t.expiredFired[ag.ID] {
		// Порядок колбэков гарантирован: warning не может прийти после expiry.
		t.warned[ag.ID] = true
		t.expiredFired[ag.ID] = true
		hooks.OnExpired(ag)
	}

	matching := signal != nil && ag.Governs(signal.SubjectKey)

	if !matching {
		// COMPLETED: пользователь остановился сам. Терминал, без нарушения.
		ag.Deactivate()
		t.logger.Info("agreement completed voluntarily",
			zap.String("agreement_id", ag.ID),
			zap.String("subject", ag.SubjectKey))
		return
	}

	// VIOLATED: активность продолжается после границы grace-периода.
	graceBoundary := ag.ExpiresAt.Add(t.cfg.GracePeriod)
	if !now.Before(graceBoundary) && !t.violated[ag.ID] {
		t.violated[ag.ID] = true
		ag.MarkViolated()
		hooks.OnViolation(ag)
	}
}

// supersede применяет tie-break: из договоров с одним subjectKey авторитетен
// тот, что истекает позже; более ранние завершаются как COMPLETED, чтобы
// не было двусмысленного двойного нарушения.
func (t *ComplianceTracker) supersede() {
	latest := make(map[string]*domain.Agreement)
	for _, id := range t.sortedIDs() {
		ag := t.agreements[id]
		if !ag.IsActive || ag.SubjectKey == "" {
			continue
		}
		cur, ok := latest[ag.SubjectKey]
		if !ok {
			latest[ag.SubjectKey] = ag
			continue
		}
		// Более поздний expiresAt побеждает; при равенстве — меньший ID
		// (детерминизм между запусками).
		if ag.ExpiresAt.After(cur.ExpiresAt) {
			cur.Deactivate()
			t.logger.Info("agreement superseded", zap.String("agreement_id", cur.ID))
			latest[ag.SubjectKey] = ag
		} else {
			ag.Deactivate()
			t.logger.Info("agreement superseded", zap.String("agreement_id", ag.ID))
		}
	}
}

// CleanupInactive выселяет деактивированные договоры из рабочего множества.
// Durable-хранилище не трогаем: история остается для аудита.
func (t *ComplianceTracker) CleanupInactive() []*domain.Agreement {
	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := make([]*domain.Agreement, 0)
	for _, id := range t.sortedIDs() {
		if ag := t.agreements[id]; !ag.IsActive {
			evicted = append(evicted, ag)
			t.forget(id)
		}
	}
	return evicted
}

func (t *ComplianceTracker) sortedIDs() []string {
	ids := make([]string, 0, len(t.agreements))
	for id := range t.agreements {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
