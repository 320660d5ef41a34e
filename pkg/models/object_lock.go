package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ObjectLock is an advisory lease asserting that only one reconciliation may
// be in flight for a given (synchronization, origin) pair. Leases carry a
// TTL so a crashed worker can't wedge an object forever.
type ObjectLock struct {
	bun.BaseModel `bun:"table:object_locks,alias:ol"`

	ID        int       `bun:",pk,autoincrement" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	SynchronizationID int       `bun:",nullzero" json:"synchronization_id"`
	OriginID          string    `bun:",nullzero" json:"origin_id"`
	Owner             string    `bun:",nullzero" json:"owner"`
	ExpiresAt         time.Time `json:"expires_at"`
}
