package capability

import (
	"fmt"
	"time"
)

// ThrottleError возвращают адаптеры, считавшие Retry-After у внешнего API.
// Ретрай-цикл использует его вместо экспоненциального бэкоффа.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}
