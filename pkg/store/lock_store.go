package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// LockStore is the Postgres-authoritative backstop for per-asset mutual
// exclusion: a Redis fast path lives in pkg/mutex, but every lock is also
// recorded here so a Redis outage degrades to correctness-over-latency
// instead of losing mutual exclusion entirely.
type LockStore struct {
	db *Client
}

// NewLockStore constructs a LockStore.
func NewLockStore(db *Client) *LockStore {
	return &LockStore{db: db}
}

// AcquireAll attempts to take every asset lock in one transaction, sorting
// assetIDs first so two executions requesting overlapping asset sets always
// acquire them in the same global order and can never deadlock against each
// other. All-or-nothing: if any asset is already held, the whole attempt
// rolls back and the caller retries with backoff.
func (s *LockStore) AcquireAll(ctx context.Context, tenantID, executionID, stepID, holderToken string, assetIDs []string, lease time.Duration) error {
	sorted := append([]string(nil), assetIDs...)
	sort.Strings(sorted)

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning lock transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now()
	for _, assetID := range sorted {
		_, err := tx.Exec(ctx, `
			DELETE FROM asset_locks WHERE tenant_id = $1 AND asset_id = $2 AND expires_at < $3`,
			tenantID, assetID, now,
		)
		if err != nil {
			return fmt.Errorf("reaping expired lock for %s: %w", assetID, err)
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO asset_locks (asset_id, tenant_id, execution_id, step_id, holder_token, acquired_at, heartbeat_at, expires_at)
			VALUES ($1,$2,$3,$4,$5,$6,$6,$7)
			ON CONFLICT (tenant_id, asset_id) DO NOTHING`,
			assetID, tenantID, executionID, stepID, holderToken, now, now.Add(lease),
		)
		if err != nil {
			return fmt.Errorf("inserting lock for %s: %w", assetID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: asset %s held by another execution", ErrLockHeld, assetID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing lock acquisition: %w", err)
	}
	return nil
}

// Heartbeat extends the lease on every asset this holder token still holds.
func (s *LockStore) Heartbeat(ctx context.Context, tenantID, holderToken string, assetIDs []string, lease time.Duration) error {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE asset_locks SET heartbeat_at = now(), expires_at = now() + $1
		WHERE tenant_id = $2 AND holder_token = $3 AND asset_id = ANY($4)`,
		lease, tenantID, holderToken, assetIDs,
	)
	if err != nil {
		return fmt.Errorf("heartbeating locks: %w", err)
	}
	if int(tag.RowsAffected()) != len(assetIDs) {
		return ErrLeaseMismatch
	}
	return nil
}

// ReleaseAll drops every lock held by this holder token, called both on
// normal step completion and on cleanup-hook compensation after cancellation.
func (s *LockStore) ReleaseAll(ctx context.Context, tenantID, holderToken string) error {
	_, err := s.db.Pool.Exec(ctx, `DELETE FROM asset_locks WHERE tenant_id = $1 AND holder_token = $2`, tenantID, holderToken)
	if err != nil {
		return fmt.Errorf("releasing locks: %w", err)
	}
	return nil
}

// ReapExpired drops locks whose lease expired without a heartbeat, called
// periodically so a crashed worker never strands a lock indefinitely.
func (s *LockStore) ReapExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM asset_locks WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("reaping expired locks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Get returns the current lock on one asset, or ErrNotFound if unheld.
func (s *LockStore) Get(ctx context.Context, tenantID, assetID string) (*models.AssetLock, error) {
	row := s.db.Pool.QueryRow(ctx, lockSelectColumns+` WHERE tenant_id = $1 AND asset_id = $2`, tenantID, assetID)
	return scanLock(row)
}

// ErrLockHeld indicates a requested asset is already locked by another
// execution.
var ErrLockHeld = errors.New("store: asset lock already held")

const lockSelectColumns = `
	SELECT asset_id, tenant_id, execution_id, step_id, holder_token, acquired_at, heartbeat_at, expires_at
	FROM asset_locks`

func scanLock(row pgx.Row) (*models.AssetLock, error) {
	var l models.AssetLock
	err := row.Scan(&l.AssetID, &l.TenantID, &l.ExecutionID, &l.StepID, &l.HolderToken, &l.AcquiredAt, &l.HeartbeatAt, &l.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning asset lock: %w", err)
	}
	return &l, nil
}
