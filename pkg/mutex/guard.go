// Package mutex implements per-asset mutual exclusion: a Redis fast-path
// cache over the Postgres-authoritative lock table in pkg/store,
// acquisition retry with backoff up to a caller-supplied deadline, and a
// heartbeat loop that keeps a held lock alive for as long as the caller's
// step is running.
package mutex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codeready-toolchain/execution-core/pkg/config"
	"github.com/codeready-toolchain/execution-core/pkg/store"
)

// ErrLockUnavailable is returned when acquisition could not complete
// before the caller's deadline.
var ErrLockUnavailable = errors.New("mutex: lock unavailable before deadline")

// LockStore is the subset of pkg/store.LockStore the Guard depends on, kept
// narrow for testability.
type LockStore interface {
	AcquireAll(ctx context.Context, tenantID, executionID, stepID, holderToken string, assetIDs []string, lease time.Duration) error
	Heartbeat(ctx context.Context, tenantID, holderToken string, assetIDs []string, lease time.Duration) error
	ReleaseAll(ctx context.Context, tenantID, holderToken string) error
	ReapExpired(ctx context.Context) (int64, error)
}

// ContentionRecorder is the narrow metrics hook a Guard reports lock
// contention through, kept separate from LockStore so a caller that
// doesn't care about metrics (most tests) never has to supply one.
type ContentionRecorder interface {
	RecordLockContention(tenantID string)
}

// Guard coordinates asset-lock acquisition, heartbeating, and release.
// Postgres (via LockStore) is the single source of truth; Redis, when
// configured, is consulted only to short-circuit an acquisition attempt
// that would obviously lose — a cache miss or a disabled Redis client never
// blocks correctness, only removes the fast-path optimization.
type Guard struct {
	store   LockStore
	redis   *redis.Client
	cfg     *config.MutexConfig
	logger  *slog.Logger
	metrics ContentionRecorder
}

// SetContentionRecorder wires an optional metrics sink for lock
// contention. Called once from cmd/execution-core after both the Guard
// and the Metrics collector exist; never required for correctness.
func (g *Guard) SetContentionRecorder(r ContentionRecorder) {
	g.metrics = r
}

// NewGuard constructs a Guard. redisClient may be nil, in which case every
// acquisition goes straight to Postgres.
func NewGuard(lockStore LockStore, redisClient *redis.Client, cfg *config.MutexConfig) *Guard {
	if cfg == nil {
		cfg = config.DefaultMutexConfig()
	}
	return &Guard{
		store:  lockStore,
		redis:  redisClient,
		cfg:    cfg,
		logger: slog.With("component", "mutex-guard"),
	}
}

// Held represents a held set of asset locks, ready to be heartbeated and
// eventually released by the caller.
type Held struct {
	guard       *Guard
	tenantID    string
	holderToken string
	assetIDs    []string
	stopHB      chan struct{}
}

// AcquireAll sorts assetIDs into a total order (so two overlapping
// multi-asset acquisitions can never deadlock against each other) and
// attempts to take every lock in one Postgres transaction, retrying with
// backoff — reaping stale locks between attempts — until deadline elapses.
func (g *Guard) AcquireAll(ctx context.Context, tenantID, executionID, stepID, holderToken string, assetIDs []string, deadline time.Time) (*Held, error) {
	if len(assetIDs) == 0 {
		return &Held{guard: g, tenantID: tenantID, holderToken: holderToken}, nil
	}

	if g.redis != nil && !g.fastPathLikelyFree(ctx, tenantID, assetIDs) {
		g.logger.Debug("redis fast path reports asset busy, skipping immediate postgres attempt")
	}

	backoff := g.cfg.AcquireBackoff
	attempt := 0
	for {
		attempt++
		err := g.store.AcquireAll(ctx, tenantID, executionID, stepID, holderToken, assetIDs, g.cfg.LeaseDuration)
		if err == nil {
			g.cacheHeld(ctx, tenantID, assetIDs)
			held := &Held{guard: g, tenantID: tenantID, holderToken: holderToken, assetIDs: assetIDs, stopHB: make(chan struct{})}
			go held.runHeartbeat(g.cfg.HeartbeatEvery, g.cfg.LeaseDuration)
			return held, nil
		}

		if !errors.Is(err, store.ErrLockHeld) {
			return nil, fmt.Errorf("acquiring asset locks: %w", err)
		}

		if g.metrics != nil {
			g.metrics.RecordLockContention(tenantID)
		}

		if time.Now().After(deadline) || attempt > g.cfg.AcquireRetries {
			return nil, fmt.Errorf("%w: %s", ErrLockUnavailable, err)
		}

		if _, reapErr := g.store.ReapExpired(ctx); reapErr != nil {
			g.logger.Warn("stale lock reap failed during acquisition retry", "error", reapErr)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// Release drops every lock this Held instance holds and stops its
// heartbeat goroutine. Idempotent: a double release is a no-op.
func (h *Held) Release(ctx context.Context) error {
	if h.stopHB != nil {
		select {
		case <-h.stopHB:
		default:
			close(h.stopHB)
		}
	}
	if len(h.assetIDs) == 0 {
		return nil
	}
	if err := h.guard.store.ReleaseAll(ctx, h.tenantID, h.holderToken); err != nil {
		return fmt.Errorf("releasing asset locks: %w", err)
	}
	h.guard.evictCache(context.Background(), h.tenantID, h.assetIDs)
	return nil
}

// runHeartbeat renews the lease at an interval strictly shorter than the
// lease duration, until released or the
// process cannot prove ownership (a missed heartbeat makes the lock
// eligible for reaping by any worker, by design — it fails open on the
// side of availability for the asset rather than deadlocking it).
func (h *Held) runHeartbeat(interval, lease time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopHB:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := h.guard.store.Heartbeat(ctx, h.tenantID, h.holderToken, h.assetIDs, lease)
			cancel()
			if err != nil {
				h.guard.logger.Warn("lock heartbeat failed; lock may be reaped", "error", err, "holder_token", h.holderToken)
			}
		}
	}
}
