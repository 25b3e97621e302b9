package models

import "time"

// AssetLock is the durable record of a held mutex on one asset. Postgres
// is the source of truth; the Redis key "lock:{tenant}:{asset}" is a
// fast-path cache over the same fact and is never authoritative on its
// own.
type AssetLock struct {
	AssetID        string
	TenantID       string
	ExecutionID    string
	StepID         string
	HolderToken    string
	AcquiredAt     time.Time
	HeartbeatAt    time.Time
	ExpiresAt      time.Time
}
