package capability

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/domain"
)

// registration — один зарегистрированный инстанс сервиса с кэшем здоровья.
type registration struct {
	instance string
	svc      Service
	health   domain.ServiceHealth
}

// Registry резолвит capability по имени: primary первым, дальше фоллбэки
// в порядке регистрации. Здоровье кэшируется и обновляется pull-based по
// интервалу — никакого duck-typing и рефлексии, только явный Ping.
type Registry struct {
	mu       sync.Mutex
	services map[string][]*registration

	refreshInterval time.Duration
	pingTimeout     time.Duration
	logger          *zap.Logger
	now             func() time.Time
}

func NewRegistry(refreshInterval time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		services:        make(map[string][]*registration),
		refreshInterval: refreshInterval,
		pingTimeout:     2 * time.Second,
		logger:          logger.Named("capability"),
		now:             time.Now,
	}
}

// Register добавляет инстанс в конец цепочки фоллбэков capability.
// Первый зарегистрированный — primary.
func (r *Registry) Register(capName, instance string, svc Service) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.services[capName] = append(r.services[capName], &registration{
		instance: instance,
		svc:      svc,
		// До первой проверки считаем сервис живым, иначе холодный старт
		// зарежет все вызовы до первого refresh. LastChecked ставим сейчас,
		// чтобы первый Resolve не пинговал раньше интервала.
		health: domain.ServiceHealth{Status: domain.HealthAvailable, LastChecked: r.now()},
	})
	r.logger.Info("capability registered",
		zap.String("capability", capName),
		zap.String("instance", instance))
}

// Resolve возвращает первый живой хендл цепочки primary → fallbacks.
// Мертвый хендл наружу не отдается никогда: либо рабочий Service, либо
// ErrNoCapabilityAvailable.
func (r *Registry) Resolve(ctx context.Context, capName string) (Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs := r.services[capName]
	if len(regs) == 0 {
		return nil, domain.ErrNoCapabilityAvailable
	}

	for _, reg := range regs {
		r.refreshHealth(ctx, capName, reg)
		if reg.health.Usable() {
			return reg.svc, nil
		}
	}

	r.logger.Warn("all services unavailable for capability", zap.String("capability", capName))
	return nil, domain.ErrNoCapabilityAvailable
}

// ResolveWithFallback пробует несколько capability по очереди: primary,
// затем запасные (например, notify → synthesize_speech, когда UI-канал лег).
func (r *Registry) ResolveWithFallback(ctx context.Context, primary string, fallbacks ...string) (Service, error) {
	names := append([]string{primary}, fallbacks...)
	for _, name := range names {
		svc, err := r.Resolve(ctx, name)
		if err == nil {
			return svc, nil
		}
	}
	return nil, domain.ErrNoCapabilityAvailable
}

// Health возвращает кэшированное здоровье инстансов capability (для дашборда).
func (r *Registry) Health(capName string) map[string]domain.ServiceHealth {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]domain.ServiceHealth)
	for _, reg := range r.services[capName] {
		out[reg.instance] = reg.health
	}
	return out
}

// refreshHealth обновляет кэш, только если записи больше refreshInterval.
func (r *Registry) refreshHealth(ctx context.Context, capName string, reg *registration) {
	now := r.now()
	if now.Sub(reg.health.LastChecked) < r.refreshInterval {
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx, r.pingTimeout)
	defer cancel()

	status := domain.HealthAvailable
	if err := reg.svc.Ping(pingCtx); err != nil {
		status = domain.HealthUnavailable
		r.logger.Warn("capability instance failed health check",
			zap.String("capability", capName),
			zap.String("instance", reg.instance),
			zap.Error(err))
	}
	reg.health = domain.ServiceHealth{Status: status, LastChecked: now}
}
