package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/audit"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/capability"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/domain"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/enforcement"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/infra"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/tracker"
)

// ActivitySource отдает последний сигнал «что пользователь делает сейчас».
// nil — релевантной активности нет.
type ActivitySource interface {
	Current() *domain.ActivitySignal
}

// AgreementStore — durable-хранилище договоров (Postgres).
type AgreementStore interface {
	SaveAgreement(ctx context.Context, ag *domain.Agreement) error
	GetActive(ctx context.Context) ([]*domain.Agreement, error)
}

// Resolver — доступ к capability-слою из цикла мониторинга.
type Resolver interface {
	Resolve(ctx context.Context, capName string) (capability.Service, error)
}

// Сигнал Console API, снятый листенером с Redis. Листенеры только кладут
// сигнал в очередь — применяет его тик-цикл, так что у мутаций договора
// ровно один потребитель.
type controlSignal struct {
	kind    string // signalExtend | signalRevoke
	id      string
	seconds float64
}

const (
	signalExtend = "extend"
	signalRevoke = "revoke"
)

// Monitor — единственные «часы» системы: один периодический цикл гонит
// CheckCompliance по всем договорам. Никаких таймеров на договор — одна
// ведущая частота исключает дрейф и межтаймерную синхронизацию.
//
// Тот же цикл — единственный, кто мутирует поля договоров: сигналы консоли
// воронятся в него через signals, HTTP-ручки видят только копии.
type Monitor struct {
	tracker  *tracker.ComplianceTracker
	enforcer *enforcement.Controller
	resolver Resolver
	journal  audit.Recorder
	store    AgreementStore
	rdb      *redis.Client
	metrics  *Metrics

	source ActivitySource
	cfg    infra.TrackerConfig
	logger *zap.Logger

	// Очередь сигналов консоли (extend/revoke), вычитывается в начале тика
	signals chan controlSignal

	// Договоры, по которым идет эскалация (grace → enforcement)
	mu      sync.Mutex
	pending map[string]*domain.Agreement
}

func NewMonitor(
	trk *tracker.ComplianceTracker,
	enf *enforcement.Controller,
	resolver Resolver,
	journal audit.Recorder,
	store AgreementStore,
	rdb *redis.Client,
	metrics *Metrics,
	source ActivitySource,
	cfg infra.TrackerConfig,
	logger *zap.Logger,
) *Monitor {
	return &Monitor{
		tracker:  trk,
		enforcer: enf,
		resolver: resolver,
		journal:  journal,
		store:    store,
		rdb:      rdb,
		metrics:  metrics,
		source:   source,
		cfg:      cfg,
		logger:   logger.Named("monitor"),
		signals:  make(chan controlSignal, 64),
		pending:  make(map[string]*domain.Agreement),
	}
}

// Init — теплый старт: поднимаем еще активные договоры из Postgres в трекер
// и прогреваем Redis-set (чтобы соседние инстансы/консоль видели рабочее
// множество без похода в БД).
func (m *Monitor) Init(ctx context.Context) error {
	active, err := m.store.GetActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active agreements: %w", err)
	}

	ids := make([]string, 0, len(active))
	for _, ag := range active {
		ids = append(ids, ag.ID)
	}

	return WarmupState(ctx, m.rdb, m.logger, ids,
		infra.RedisKeyActiveAgreements, infra.GetWarmupLockKey("agreements"),
		func([]string) {
			for _, ag := range active {
				m.tracker.Add(ag)
			}
		})
}

// StartListeners подписывается на сигналы Console API в реальном времени.
// Листенеры сигнал только ставят в очередь: применяет его ближайший тик.
func (m *Monitor) StartListeners(ctx context.Context) {
	go ListenStateResilient(ctx, m.rdb, m.logger, infra.RedisChanExtend,
		func() error { return nil }, // Состояние уже в трекере, ресинк не нужен
		m.handleExtendSignal,
	)
	go ListenStateResilient(ctx, m.rdb, m.logger, infra.RedisChanRevoke,
		func() error { return nil },
		m.handleRevokeSignal,
	)
}

// Run — главный цикл. Одна ошибка договора не останавливает поллинг никогда.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	m.logger.Info("compliance polling loop started",
		zap.Duration("tick", m.cfg.TickInterval))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("compliance polling loop stopped")
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		m.metrics.TickDuration.Observe(time.Since(start).Seconds())
		m.metrics.ActiveAgreements.Set(float64(len(m.tracker.GetActive())))
	}()

	m.drainSignals(ctx)

	signal := m.source.Current()

	// Битый сигнал = пропуск тика, прежнее состояние сохранено
	if err := m.tracker.CheckCompliance(signal, m); err != nil {
		return
	}

	m.stepEnforcements(ctx)
	m.evictInactive(ctx)
}

// drainSignals применяет накопившиеся сигналы консоли. Вызывается только из
// тика: продление и принуждение по одному договору никогда не конкурируют.
func (m *Monitor) drainSignals(ctx context.Context) {
	for {
		select {
		case sig := <-m.signals:
			switch sig.kind {
			case signalExtend:
				m.applyExtend(ctx, sig.id, sig.seconds)
			case signalRevoke:
				m.applyRevoke(ctx, sig.id)
			}
		default:
			return
		}
	}
}

// stepEnforcements продвигает эскалацию по каждому договору за сроком.
func (m *Monitor) stepEnforcements(ctx context.Context) {
	m.mu.Lock()
	batch := make([]*domain.Agreement, 0, len(m.pending))
	for _, ag := range m.pending {
		batch = append(batch, ag)
	}
	m.mu.Unlock()

	for _, ag := range batch {
		if !ag.IsActive {
			// Завершился сам (COMPLETED) — эскалация больше не нужна
			m.dropPending(ag.ID)
			continue
		}

		terminal, err := m.enforcer.Enforce(ctx, ag, false)
		if err != nil && terminal {
			// Все попытки исчерпаны: критическая нотификация уже ушла наружу
			m.metrics.EnforcementFailures.Inc()
			m.journal.Record(audit.JournalRecord{
				ID:          uuid.New().String(),
				AgreementID: ag.ID,
				SubjectKey:  ag.SubjectKey,
				EventType:   ag.EventType,
				Kind:        audit.KindEnforcementFailed,
				Details:     map[string]interface{}{"error": err.Error()},
			})
		}
		if terminal {
			// Деактивация под мьютексом трекера. Нулевые блоки в рабочее
			// множество не попадают — их закрываем напрямую, указатель
			// разделен только с этим циклом.
			if !m.tracker.Deactivate(ag.ID) {
				ag.Deactivate()
				m.enforcer.Forget(ag.ID)
			}
			if err == nil {
				m.journal.Record(audit.JournalRecord{
					ID:          uuid.New().String(),
					AgreementID: ag.ID,
					SubjectKey:  ag.SubjectKey,
					EventType:   ag.EventType,
					Kind:        audit.KindEnforced,
				})
			}
			m.persist(ctx, ag)
			m.dropPending(ag.ID)
		}
	}
}

// evictInactive выселяет деактивированные договоры и фиксирует финал в БД.
func (m *Monitor) evictInactive(ctx context.Context) {
	for _, ag := range m.tracker.CleanupInactive() {
		if !ag.IsViolated && !m.enforcer.Enforced(ag.ID) {
			// Добровольное завершение (или supersede). Нарушенные и
			// принудительно закрытые уже зажурналированы на переходах
			// violated/enforced.
			m.metrics.CompletionsTotal.Inc()
			m.journal.Record(audit.JournalRecord{
				ID:          uuid.New().String(),
				AgreementID: ag.ID,
				SubjectKey:  ag.SubjectKey,
				EventType:   ag.EventType,
				Kind:        audit.KindCompleted,
			})
		}
		m.persist(ctx, ag)
		m.enforcer.Forget(ag.ID)
		m.dropPending(ag.ID)
		m.rdb.SRem(ctx, infra.RedisKeyActiveAgreements, ag.ID)
	}
}

// --- tracker.Hooks ---

// OnWarning: голос + пассивная нотификация. Каждая деградирует независимо.
func (m *Monitor) OnWarning(ag *domain.Agreement, secondsRemaining float64) {
	text := fmt.Sprintf("Heads up — %d seconds left on our deal.", int(secondsRemaining))
	m.speak(context.Background(), text)
	m.notify(context.Background(), text, "passive")

	m.journal.Record(audit.JournalRecord{
		ID:          uuid.New().String(),
		AgreementID: ag.ID,
		SubjectKey:  ag.SubjectKey,
		EventType:   ag.EventType,
		Kind:        audit.KindWarning,
		Details:     map[string]interface{}{"seconds_remaining": secondsRemaining},
	})
}

// OnExpired: договор за сроком — начинаем эскалацию (grace-период).
func (m *Monitor) OnExpired(ag *domain.Agreement) {
	m.journal.Record(audit.JournalRecord{
		ID:          uuid.New().String(),
		AgreementID: ag.ID,
		SubjectKey:  ag.SubjectKey,
		EventType:   ag.EventType,
		Kind:        audit.KindExpired,
	})

	m.mu.Lock()
	m.pending[ag.ID] = ag
	m.mu.Unlock()
}

// OnViolation: активность продолжилась за границей grace-периода.
func (m *Monitor) OnViolation(ag *domain.Agreement) {
	m.metrics.ViolationsTotal.Inc()
	m.logger.Warn("agreement violated",
		zap.String("agreement_id", ag.ID),
		zap.String("subject", ag.SubjectKey),
		zap.Int("violation_count", ag.ViolationCount))

	m.journal.Record(audit.JournalRecord{
		ID:          uuid.New().String(),
		AgreementID: ag.ID,
		SubjectKey:  ag.SubjectKey,
		EventType:   ag.EventType,
		Kind:        audit.KindViolated,
	})

	m.mu.Lock()
	m.pending[ag.ID] = ag
	m.mu.Unlock()
}

// --- Регистрация договоров ---

// RegisterAgreement ставит новый договор под наблюдение: БД + журнал +
// Redis-set + трекер. Передача трекеру — последним шагом: после Add указатель
// принадлежит тик-циклу, вызывающий его полей больше не читает.
func (m *Monitor) RegisterAgreement(ctx context.Context, ag *domain.Agreement, outcome string) {
	m.persist(ctx, ag)
	m.metrics.AgreementsTotal.WithLabelValues(outcome).Inc()
	m.journal.Record(audit.JournalRecord{
		ID:          uuid.New().String(),
		AgreementID: ag.ID,
		SubjectKey:  ag.SubjectKey,
		EventType:   ag.EventType,
		Kind:        audit.KindCreated,
		Details: map[string]interface{}{
			"agreed_seconds": ag.AgreedDurationSeconds,
			"outcome":        outcome,
		},
	})

	m.rdb.SAdd(ctx, infra.RedisKeyActiveAgreements, ag.ID)
	m.tracker.Add(ag)
}

// RegisterBlocked — нулевой блок-договор high severity: журнал + немедленное
// принуждение, торг и grace не положены. Принуждаем до того, как указатель
// станет виден тик-циклу, наружу возвращается копия финального состояния.
// В рабочее множество трекера блок не попадает: активности по нему нет и
// добровольно «завершиться» он не может.
func (m *Monitor) RegisterBlocked(ctx context.Context, ag *domain.Agreement) domain.Agreement {
	m.persist(ctx, ag)
	m.metrics.AgreementsTotal.WithLabelValues("blocked").Inc()
	m.journal.Record(audit.JournalRecord{
		ID:          uuid.New().String(),
		AgreementID: ag.ID,
		SubjectKey:  ag.SubjectKey,
		EventType:   ag.EventType,
		Kind:        audit.KindCreated,
		Details: map[string]interface{}{
			"agreed_seconds": ag.AgreedDurationSeconds,
			"outcome":        "blocked",
		},
	})

	terminal, err := m.enforcer.Enforce(ctx, ag, true)
	if err != nil {
		m.metrics.EnforcementFailures.Inc()
		m.logger.Warn("forced enforcement failed", zap.String("agreement_id", ag.ID), zap.Error(err))
	}
	if terminal {
		ag.Deactivate()
		m.enforcer.Forget(ag.ID)
		m.journal.Record(audit.JournalRecord{
			ID:          uuid.New().String(),
			AgreementID: ag.ID,
			SubjectKey:  ag.SubjectKey,
			EventType:   ag.EventType,
			Kind:        audit.KindEnforced,
			Details:     map[string]interface{}{"forced": true},
		})
		m.persist(ctx, ag)
		return *ag
	}

	// Не дожали с первого раза — доберем на тиках. Копию снимаем до того,
	// как pending разделит указатель с тик-циклом.
	snap := *ag
	m.mu.Lock()
	m.pending[ag.ID] = ag
	m.mu.Unlock()
	return snap
}

// ActiveSnapshot — копии активных договоров для HTTP-отдачи.
func (m *Monitor) ActiveSnapshot() []domain.Agreement {
	return m.tracker.Snapshot()
}

// --- Сигналы Console API ---

// handleExtendSignal принимает одобренное пользователем продление
// ("id:seconds") и ставит его в очередь тик-цикла.
func (m *Monitor) handleExtendSignal(id, arg string) {
	seconds, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		m.logger.Error("invalid extend signal", zap.String("id", id), zap.String("arg", arg))
		return
	}
	m.enqueue(controlSignal{kind: signalExtend, id: id, seconds: seconds})
}

// handleRevokeSignal — досрочный отзыв договора ("id:off").
func (m *Monitor) handleRevokeSignal(id, _ string) {
	m.enqueue(controlSignal{kind: signalRevoke, id: id})
}

func (m *Monitor) enqueue(sig controlSignal) {
	select {
	case m.signals <- sig:
	default:
		// Очередь забита — тик-цикл стоит, сигнал терять честнее молча-в-лог
		m.logger.Error("control signal queue full, signal dropped",
			zap.String("kind", sig.kind), zap.String("agreement_id", sig.id))
	}
}

// applyExtend продлевает договор. Только из тика: см. drainSignals.
func (m *Monitor) applyExtend(ctx context.Context, id string, seconds float64) {
	if err := m.tracker.Extend(id, seconds); err != nil {
		m.logger.Warn("extend rejected", zap.String("agreement_id", id), zap.Error(err))
		return
	}

	ag := m.tracker.Get(id)
	m.persist(ctx, ag)
	m.journal.Record(audit.JournalRecord{
		ID:          uuid.New().String(),
		AgreementID: id,
		SubjectKey:  ag.SubjectKey,
		EventType:   ag.EventType,
		Kind:        audit.KindExtended,
		Details:     map[string]interface{}{"by_seconds": seconds},
	})
	m.logger.Info("agreement extended", zap.String("agreement_id", id), zap.Float64("by_seconds", seconds))
}

// applyRevoke — досрочный отзыв без нарушения. Только из тика.
func (m *Monitor) applyRevoke(ctx context.Context, id string) {
	ag, err := m.tracker.Revoke(id)
	if err != nil {
		m.logger.Warn("revoke rejected", zap.String("agreement_id", id), zap.Error(err))
		return
	}

	m.persist(ctx, ag)
	m.journal.Record(audit.JournalRecord{
		ID:          uuid.New().String(),
		AgreementID: id,
		SubjectKey:  ag.SubjectKey,
		EventType:   ag.EventType,
		Kind:        audit.KindRevoked,
	})
	m.logger.Info("agreement revoked", zap.String("agreement_id", id))
	// Деактивирован — выселение и SRem сделает evictInactive в этом же тике
}

// --- Вспомогательные ---

func (m *Monitor) dropPending(id string) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

func (m *Monitor) persist(ctx context.Context, ag *domain.Agreement) {
	if err := m.store.SaveAgreement(ctx, ag); err != nil {
		m.logger.Error("failed to persist agreement",
			zap.String("agreement_id", ag.ID), zap.Error(err))
	}
}

// speak деградирует в лог при недоступном голосе (NoCapabilityAvailable —
// локально восстановимая ошибка).
func (m *Monitor) speak(ctx context.Context, text string) {
	svc, err := m.resolver.Resolve(ctx, capability.CapSynthesizeSpeech)
	if err != nil {
		m.logger.Info("speech unavailable, skipping voice", zap.String("text", text))
		return
	}
	payload, _ := json.Marshal(capability.SpeechPayload{Text: text})
	if _, err := svc.Invoke(ctx, payload); err != nil {
		m.logger.Warn("speech synthesis failed", zap.Error(err))
	}
}

func (m *Monitor) notify(ctx context.Context, message, urgency string) {
	svc, err := m.resolver.Resolve(ctx, capability.CapNotify)
	if err != nil {
		m.logger.Warn("notify capability unavailable", zap.String("message", message))
		return
	}
	payload, _ := json.Marshal(capability.NotifyPayload{Message: message, Urgency: urgency})
	if _, err := svc.Invoke(ctx, payload); err != nil {
		m.logger.Warn("notification delivery failed", zap.Error(err))
	}
}
