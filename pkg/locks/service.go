// Package locks implements the advisory per-(synchronization, origin) lease
// used by locking rules: only one reconciliation may be in flight for a
// locked object, and leases expire so a crashed worker can't wedge an object
// forever.
package locks

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/syncbridge/syncbridge/pkg/models"
	"github.com/uptrace/bun"
)

// ErrLocked is returned when another owner holds a live lease.
var ErrLocked = errors.New("object is locked by another run")

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// Acquire takes or refreshes the lease for (synchronizationID, originID).
// Re-acquiring your own lease extends it; a live lease held by someone else
// returns ErrLocked.
func (svc *Service) Acquire(ctx context.Context, synchronizationID int, originID, owner string, ttl time.Duration) error {
	now := time.Now()
	lock := &models.ObjectLock{
		SynchronizationID: synchronizationID,
		OriginID:          originID,
		Owner:             owner,
		CreatedAt:         now,
		ExpiresAt:         now.Add(ttl),
	}

	_, err := svc.db.NewInsert().Model(lock).Exec(ctx)
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return errors.WithStack(err)
	}

	// A row already exists; take it over only if it's ours or expired.
	existing := &models.ObjectLock{}
	err = svc.db.NewSelect().
		Model(existing).
		Where("ol.synchronization_id = ?", synchronizationID).
		Where("ol.origin_id = ?", originID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Raced with a release; try once more.
			_, err = svc.db.NewInsert().Model(lock).Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
			return nil
		}
		return errors.WithStack(err)
	}

	if existing.Owner != owner && existing.ExpiresAt.After(now) {
		return ErrLocked
	}

	existing.Owner = owner
	existing.ExpiresAt = now.Add(ttl)
	_, err = svc.db.NewUpdate().
		Model(existing).
		Column("owner", "expires_at").
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}

// Release drops the lease if this owner still holds it. Releasing a lease
// you no longer own is a no-op, not an error.
func (svc *Service) Release(ctx context.Context, synchronizationID int, originID, owner string) error {
	_, err := svc.db.NewDelete().
		Model((*models.ObjectLock)(nil)).
		Where("synchronization_id = ?", synchronizationID).
		Where("origin_id = ?", originID).
		Where("owner = ?", owner).
		Exec(ctx)
	return errors.WithStack(err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed (1555)") ||
		strings.Contains(errStr, "(2067)") // SQLITE_CONSTRAINT_UNIQUE
}
