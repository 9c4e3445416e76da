package enforcement

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/capability"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/domain"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/infra"
)

// Resolver — то, что контроллеру нужно от слоя capability.
type Resolver interface {
	Resolve(ctx context.Context, capName string) (capability.Service, error)
}

// Состояние принуждения по одному договору.
type phase int

const (
	phaseNotStarted phase = iota
	phaseGraceActive
	phaseEnforced
)

type inflight struct {
	phase        phase
	graceStarted time.Time
	lastNotified time.Time
	attempts     int // Сколько раз терминальное действие уже падало
}

// Controller на onViolation выполняет ровно одно принудительное действие на
// договор. Идемпотентен: повторные Enforce в grace-окне только шлют
// (троттлированные) предупреждения, терминальное действие не дублируется
// никогда.
//
// Поля договора контроллер не мутирует: деактивацию на terminal=true делает
// вызывающий через трекер, чтобы все записи шли под одним мьютексом.
//
// Принуждение best-effort: правда о состоянии соблюдения от успеха физического
// действия не зависит.
type Controller struct {
	mu       sync.Mutex
	inFlight map[string]*inflight

	resolver Resolver
	cfg      infra.EnforcementConfig
	grace    time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewController(resolver Resolver, cfg infra.EnforcementConfig, grace time.Duration, logger *zap.Logger) *Controller {
	return &Controller{
		inFlight: make(map[string]*inflight),
		resolver: resolver,
		cfg:      cfg,
		grace:    grace,
		logger:   logger.Named("enforcement"),
		now:      time.Now,
	}
}

// Enforce — один шаг эскалации для договора за сроком. Вызывается циклом
// мониторинга на каждом тике, пока не вернет terminal=true.
//
// force=true пропускает grace-период целиком (high-severity блокировки
// с нулевой длительностью).
func (c *Controller) Enforce(ctx context.Context, ag *domain.Agreement, force bool) (terminal bool, err error) {
	c.mu.Lock()
	st, ok := c.inFlight[ag.ID]
	if !ok {
		st = &inflight{}
		c.inFlight[ag.ID] = st
	}
	c.mu.Unlock()

	if st.phase == phaseEnforced {
		return true, nil
	}

	now := c.now()
	graceBoundary := ag.ExpiresAt.Add(c.grace)

	if !force && now.Before(graceBoundary) {
		c.graceStep(ctx, ag, st, now, graceBoundary)
		return false, nil
	}

	return c.terminalStep(ctx, ag, st)
}

// Forget очищает состояние по договору (после выселения из трекера).
func (c *Controller) Forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, id)
}

// Enforced сообщает, было ли по договору выполнено терминальное действие.
// Монитор так отличает принудительно закрытый договор от добровольно
// завершенного при выселении.
func (c *Controller) Enforced(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.inFlight[id]
	return ok && st.phase == phaseEnforced
}

// graceStep — предупреждение о остатке grace-окна, с троттлингом повторов.
func (c *Controller) graceStep(ctx context.Context, ag *domain.Agreement, st *inflight, now time.Time, boundary time.Time) {
	if st.phase == phaseNotStarted {
		st.phase = phaseGraceActive
		st.graceStarted = now
	} else if now.Sub(st.lastNotified) < c.cfg.RenotifyInterval {
		return // Не спамим: повтор не чаще renotify_interval
	}
	st.lastNotified = now

	left := int(boundary.Sub(now).Seconds())
	msg := fmt.Sprintf("Time's up. %d seconds to wrap up before I close it.", left)
	c.notify(ctx, msg, "interactive")
}

// terminalStep — одно терминальное действие close_resource с учетом лимита
// попыток между тиками. Исчерпали попытки — сдаемся, но фаза все равно
// терминальна: вызывающий деактивирует договор в обоих исходах.
func (c *Controller) terminalStep(ctx context.Context, ag *domain.Agreement, st *inflight) (bool, error) {
	closeErr := c.closeResource(ctx, ag.SubjectKey)
	if closeErr == nil {
		st.phase = phaseEnforced
		c.logger.Info("enforcement action completed",
			zap.String("agreement_id", ag.ID),
			zap.String("subject", ag.SubjectKey),
			zap.Int("failed_attempts", st.attempts))
		return true, nil
	}

	st.attempts++
	c.logger.Warn("enforcement attempt failed",
		zap.String("agreement_id", ag.ID),
		zap.Int("attempt", st.attempts),
		zap.Int("max_attempts", c.cfg.MaxAttempts),
		zap.Error(closeErr))

	if st.attempts < c.cfg.MaxAttempts {
		// Ретрай на следующем тике поллинга
		return false, closeErr
	}

	// Попытки исчерпаны: сдаемся громко, не молча.
	st.phase = phaseEnforced
	c.notify(ctx, fmt.Sprintf("I couldn't close %s — please close it yourself.", ag.SubjectKey), "critical")
	return true, fmt.Errorf("%w: %s", domain.ErrEnforcementFailed, closeErr)
}

func (c *Controller) closeResource(ctx context.Context, subjectKey string) error {
	svc, err := c.resolver.Resolve(ctx, capability.CapCloseResource)
	if err != nil {
		// Для close_resource отсутствие capability — это EnforcementFailed,
		// деградировать некуда.
		return err
	}

	payload, _ := json.Marshal(capability.ClosePayload{SubjectKey: subjectKey})
	resp, err := svc.Invoke(ctx, payload)
	if err != nil {
		return err
	}

	var res capability.CloseResult
	if err := json.Unmarshal(resp, &res); err != nil {
		return fmt.Errorf("close_resource response: %w", err)
	}
	if !res.Closed {
		return fmt.Errorf("close_resource reported failure for %s", subjectKey)
	}
	return nil
}

// notify деградирует молча в лог, если capability недоступна: предупреждение
// не критично для правды о состоянии.
func (c *Controller) notify(ctx context.Context, message, urgency string) {
	svc, err := c.resolver.Resolve(ctx, capability.CapNotify)
	if err != nil {
		c.logger.Warn("notify capability unavailable, degrading to log",
			zap.String("message", message))
		return
	}
	payload, _ := json.Marshal(capability.NotifyPayload{Message: message, Urgency: urgency})
	if _, err := svc.Invoke(ctx, payload); err != nil {
		c.logger.Warn("notification delivery failed", zap.Error(err))
	}
}
