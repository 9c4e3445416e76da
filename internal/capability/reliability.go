package capability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ReliabilityWrapper оборачивает внешний сервис в Rate Limiter, Circuit
// Breaker и ретраи. Вешается на адаптеры, ходящие наружу (голос, закрытие
// вкладок); локальные лог-адаптеры в этом не нуждаются.
type ReliabilityWrapper struct {
	next    Service
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewReliabilityWrapper собирает обертку. onStateChange опционален (nil) —
// через него метрики узнают о переключениях предохранителя.
func NewReliabilityWrapper(name string, next Service, onStateChange func(name string, from, to gobreaker.State)) *ReliabilityWrapper {
	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: onStateChange,
	})

	// Лимитер скромный: capability-вызовы это единичные действия, не трафик
	limiter := rate.NewLimiter(rate.Limit(10), 5)

	return &ReliabilityWrapper{
		next:    next,
		cb:      cb,
		limiter: limiter,
	}
}

func (w *ReliabilityWrapper) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	var finalData []byte

	// 2. Circuit Breaker
	cbResult, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
			// Умный расчет задержки
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Если адаптер вернул ThrottleError (считал Retry-After заголовок)
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}

				// В остальных случаях — стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			var callErr error
			finalData, callErr = w.next.Invoke(tCtx, payload)
			return callErr
		})

		return finalData, retryErr
	})

	if err != nil {
		return nil, err
	}

	return cbResult.([]byte), nil
}

// Ping пробрасывается к сервису напрямую: health-чек не должен жечь
// бюджет предохранителя.
func (w *ReliabilityWrapper) Ping(ctx context.Context) error {
	return w.next.Ping(ctx)
}
