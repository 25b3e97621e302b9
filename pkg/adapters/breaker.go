package adapters

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerRegistry hands out one sony/gobreaker.CircuitBreaker per target
// host, so a single unreachable host trips independently of every other
// host's lock/queue state — it never shares state with the Mutex Guard's
// asset locks.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry constructs an empty registry. Breakers are created
// lazily, one per host, on first use.
func NewBreakerRegistry() *BreakerRegistry {
	return &BreakerRegistry{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

// For returns the breaker for host, creating it on first access.
func (r *BreakerRegistry) For(host string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[host]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("adapter circuit breaker state change", "target", name, "from", from, "to", to)
		},
	})
	r.breakers[host] = cb
	return cb
}

// Run executes fn through the breaker for host, returning its result cast
// back to Result.
func Run(r *BreakerRegistry, host string, fn func() (*Result, error)) (*Result, error) {
	out, err := r.For(host).Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	res, _ := out.(*Result)
	return res, nil
}
