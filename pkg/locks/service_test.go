package locks

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncbridge/syncbridge/pkg/migrations"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestAcquireAndRelease(t *testing.T) {
	t.Parallel()

	svc := NewService(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, svc.Acquire(ctx, 1, "origin-1", "worker-a", time.Minute))

	// Another owner is refused while the lease is live.
	err := svc.Acquire(ctx, 1, "origin-1", "worker-b", time.Minute)
	require.ErrorIs(t, err, ErrLocked)

	// A different origin is independent.
	require.NoError(t, svc.Acquire(ctx, 1, "origin-2", "worker-b", time.Minute))

	require.NoError(t, svc.Release(ctx, 1, "origin-1", "worker-a"))
	require.NoError(t, svc.Acquire(ctx, 1, "origin-1", "worker-b", time.Minute))
}

func TestAcquireIsReentrantForSameOwner(t *testing.T) {
	t.Parallel()

	svc := NewService(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, svc.Acquire(ctx, 1, "origin-1", "worker-a", time.Minute))
	require.NoError(t, svc.Acquire(ctx, 1, "origin-1", "worker-a", time.Minute))
}

func TestAcquireTakesOverExpiredLease(t *testing.T) {
	t.Parallel()

	svc := NewService(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, svc.Acquire(ctx, 1, "origin-1", "worker-a", -time.Second))
	require.NoError(t, svc.Acquire(ctx, 1, "origin-1", "worker-b", time.Minute))
}

func TestReleaseByNonOwnerIsNoop(t *testing.T) {
	t.Parallel()

	svc := NewService(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, svc.Acquire(ctx, 1, "origin-1", "worker-a", time.Minute))
	require.NoError(t, svc.Release(ctx, 1, "origin-1", "worker-b"))

	// worker-a still holds the lease.
	err := svc.Acquire(ctx, 1, "origin-1", "worker-c", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)
}
