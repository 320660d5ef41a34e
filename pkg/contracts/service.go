// Package contracts persists the per-object bookkeeping a synchronization
// keeps between runs. Contracts are the idempotency unit: one row per
// (synchronization, origin object), carrying both content hashes and the
// target-side identifier.
package contracts

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/syncbridge/syncbridge/pkg/errcodes"
	"github.com/syncbridge/syncbridge/pkg/models"
	"github.com/uptrace/bun"
)

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// FindOrCreate returns the contract for (synchronizationID, originID),
// inserting a fresh one if none exists yet. The unique index on the pair
// keeps concurrent workers from creating duplicates; on conflict the insert
// is a no-op and the existing row is read back.
func (svc *Service) FindOrCreate(ctx context.Context, synchronizationID int, originID string) (*models.SynchronizationContract, error) {
	now := time.Now()
	contract := &models.SynchronizationContract{
		CreatedAt:         now,
		UpdatedAt:         now,
		SynchronizationID: synchronizationID,
		OriginID:          originID,
	}

	_, err := svc.db.
		NewInsert().
		Model(contract).
		On("CONFLICT (synchronization_id, origin_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	err = svc.db.
		NewSelect().
		Model(contract).
		Where("sc.synchronization_id = ?", synchronizationID).
		Where("sc.origin_id = ?", originID).
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return contract, nil
}

type RetrieveContractOptions struct {
	ID                *int
	SynchronizationID *int
	OriginID          *string
	TargetID          *string
}

func (svc *Service) RetrieveContract(ctx context.Context, opts RetrieveContractOptions) (*models.SynchronizationContract, error) {
	contract := &models.SynchronizationContract{}

	q := svc.db.
		NewSelect().
		Model(contract)

	if opts.ID != nil {
		q = q.Where("sc.id = ?", *opts.ID)
	}
	if opts.SynchronizationID != nil {
		q = q.Where("sc.synchronization_id = ?", *opts.SynchronizationID)
	}
	if opts.OriginID != nil {
		q = q.Where("sc.origin_id = ?", *opts.OriginID)
	}
	if opts.TargetID != nil {
		q = q.Where("sc.target_id = ?", *opts.TargetID)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Synchronization Contract")
		}
		return nil, errors.WithStack(err)
	}

	return contract, nil
}

type UpdateContractOptions struct {
	Columns []string
}

func (svc *Service) UpdateContract(ctx context.Context, contract *models.SynchronizationContract, opts UpdateContractOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	contract.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(contract).
		Column(columns...).
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}

type ListContractsOptions struct {
	SynchronizationID *int
	Limit             *int
	Offset            *int
	includeTotal      bool
}

func (svc *Service) ListContracts(ctx context.Context, opts ListContractsOptions) ([]*models.SynchronizationContract, error) {
	contracts, _, err := svc.listContractsWithTotal(ctx, opts)
	return contracts, errors.WithStack(err)
}

func (svc *Service) ListContractsWithTotal(ctx context.Context, opts ListContractsOptions) ([]*models.SynchronizationContract, int, error) {
	opts.includeTotal = true
	return svc.listContractsWithTotal(ctx, opts)
}

func (svc *Service) listContractsWithTotal(ctx context.Context, opts ListContractsOptions) ([]*models.SynchronizationContract, int, error) {
	var contracts []*models.SynchronizationContract
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&contracts).
		Order("sc.origin_id ASC")

	if opts.SynchronizationID != nil {
		q = q.Where("sc.synchronization_id = ?", *opts.SynchronizationID)
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return contracts, total, nil
}

// ListPruneCandidates returns the contracts a completed full scan should
// feed to deletion: rows the scan never touched (origin object gone from the
// source) plus delete-failed tombstones, which are retried on every run no
// matter when they were last seen.
func (svc *Service) ListPruneCandidates(ctx context.Context, synchronizationID int, scanStarted time.Time) ([]*models.SynchronizationContract, error) {
	var contracts []*models.SynchronizationContract

	err := svc.db.
		NewSelect().
		Model(&contracts).
		Where("sc.synchronization_id = ?", synchronizationID).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("sc.source_last_checked IS NULL").
				WhereOr("sc.source_last_checked < ?", scanStarted).
				WhereOr("sc.target_last_action = ?", models.ContractActionDeleteFailed)
		}).
		Order("sc.origin_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return contracts, nil
}

func (svc *Service) DeleteContract(ctx context.Context, contractID int) error {
	_, err := svc.db.
		NewDelete().
		Model((*models.SynchronizationContract)(nil)).
		Where("id = ?", contractID).
		Exec(ctx)
	return errors.WithStack(err)
}

// DeleteBySynchronization drops all contracts for a synchronization. Used
// when the synchronization itself is deleted.
func (svc *Service) DeleteBySynchronization(ctx context.Context, synchronizationID int) error {
	_, err := svc.db.
		NewDelete().
		Model((*models.SynchronizationContract)(nil)).
		Where("synchronization_id = ?", synchronizationID).
		Exec(ctx)
	return errors.WithStack(err)
}
