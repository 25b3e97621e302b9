package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// ExecutionLookup is the narrow slice of pkg/store.ExecutionStore the Guard
// needs, kept as an interface so it can be tested without a live database.
type ExecutionLookup interface {
	GetByIdempotencyKey(ctx context.Context, tenantID, key string) (*models.Execution, error)
}

// ErrNotFound is returned by ExecutionLookup when no row matches; Guard
// treats it as "not a duplicate". Callers wire the concrete store's
// sentinel error here via NotFoundErr at construction.
var ErrNotFound = errors.New("idempotency: no prior execution")

// Guard decides whether a submission is a duplicate of a prior one within
// the configured deduplication window.
type Guard struct {
	lookup       ExecutionLookup
	window       time.Duration
	isNotFoundFn func(error) bool
}

// NewGuard constructs a Guard. isNotFound lets the caller pass
// store.ErrNotFound's errors.Is check without this package importing
// pkg/store directly.
func NewGuard(lookup ExecutionLookup, window time.Duration, isNotFound func(error) bool) *Guard {
	return &Guard{lookup: lookup, window: window, isNotFoundFn: isNotFound}
}

// Check looks up a prior execution for (tenantID, key). It returns
// (execution, true, nil) when the submission is a duplicate that should be
// returned to the caller unchanged; (nil, false, nil) when it is not (no
// prior row, outside the window, or the prior execution ended in a failed
// or cancelled terminal state).
func (g *Guard) Check(ctx context.Context, tenantID, key string) (*models.Execution, bool, error) {
	prior, err := g.lookup.GetByIdempotencyKey(ctx, tenantID, key)
	if err != nil {
		if g.isNotFoundFn(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("looking up idempotency key: %w", err)
	}

	if time.Since(prior.CreatedAt) > g.window {
		return nil, false, nil
	}

	if prior.Status.Terminal() && (prior.Status == models.StatusFailed || prior.Status == models.StatusCancelled) {
		return nil, false, nil
	}

	return prior, true, nil
}
