// Package synchronizations manages the configured source/target pairings and
// their rules. The reconciliation engine reads configurations from here and
// writes back only cursors and watermarks.
package synchronizations

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

type CreateSynchronizationOptions struct {
	Name                  string
	SourceRef             string
	SourceType            string
	TargetRef             string
	TargetType            string
	RegisterRef           string
	SchemaRef             string
	SourceTargetMappingID *int
	TargetSourceMappingID *int
	Condition             string
}

func (svc *Service) CreateSynchronization(ctx context.Context, opts CreateSynchronizationOptions) (*models.Synchronization, error) {
	now := time.Now()

	sync := &models.Synchronization{
		CreatedAt:             now,
		UpdatedAt:             now,
		Name:                  opts.Name,
		SourceRef:             opts.SourceRef,
		SourceType:            opts.SourceType,
		TargetRef:             opts.TargetRef,
		TargetType:            opts.TargetType,
		RegisterRef:           opts.RegisterRef,
		SchemaRef:             opts.SchemaRef,
		SourceTargetMappingID: opts.SourceTargetMappingID,
		TargetSourceMappingID: opts.TargetSourceMappingID,
		Condition:             opts.Condition,
		Version:               1,
	}

	_, err := svc.db.
		NewInsert().
		Model(sync).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return sync, nil
}

type RetrieveSynchronizationOptions struct {
	ID            *int
	WithRelations bool
}

func (svc *Service) RetrieveSynchronization(ctx context.Context, opts RetrieveSynchronizationOptions) (*models.Synchronization, error) {
	sync := &models.Synchronization{}

	q := svc.db.
		NewSelect().
		Model(sync)

	if opts.WithRelations {
		q = q.
			Relation("SourceTargetMapping").
			Relation("TargetSourceMapping").
			Relation("Rules", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Order("rule_order ASC", "id ASC")
			})
	}

	if opts.ID != nil {
		q = q.Where("s.id = ?", *opts.ID)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Synchronization")
		}
		return nil, errors.WithStack(err)
	}

	if opts.WithRelations {
		if sync.SourceTargetMapping != nil {
			if err := sync.SourceTargetMapping.UnmarshalColumns(); err != nil {
				return nil, err
			}
		}
		if sync.TargetSourceMapping != nil {
			if err := sync.TargetSourceMapping.UnmarshalColumns(); err != nil {
				return nil, err
			}
		}
		for _, rule := range sync.Rules {
			if err := rule.UnmarshalConfiguration(); err != nil {
				return nil, err
			}
		}
	}

	return sync, nil
}

type ListSynchronizationsOptions struct {
	RegisterRef  *string
	SchemaRef    *string
	Limit        *int
	Offset       *int
	includeTotal bool
}

func (svc *Service) ListSynchronizations(ctx context.Context, opts ListSynchronizationsOptions) ([]*models.Synchronization, error) {
	syncs, _, err := svc.listSynchronizationsWithTotal(ctx, opts)
	return syncs, errors.WithStack(err)
}

func (svc *Service) ListSynchronizationsWithTotal(ctx context.Context, opts ListSynchronizationsOptions) ([]*models.Synchronization, int, error) {
	opts.includeTotal = true
	return svc.listSynchronizationsWithTotal(ctx, opts)
}

func (svc *Service) listSynchronizationsWithTotal(ctx context.Context, opts ListSynchronizationsOptions) ([]*models.Synchronization, int, error) {
	var syncs []*models.Synchronization
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&syncs).
		Order("s.name ASC")

	if opts.RegisterRef != nil {
		q = q.Where("s.register_ref = ?", *opts.RegisterRef)
	}
	if opts.SchemaRef != nil {
		q = q.Where("s.schema_ref = ?", *opts.SchemaRef)
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

	return syncs, total, nil
}

// FindBySource returns the synchronizations whose source matches an incoming
// event's register and schema. Multiple synchronizations may watch the same
// source.
func (svc *Service) FindBySource(ctx context.Context, registerRef, schemaRef string) ([]*models.Synchronization, error) {
	var syncs []*models.Synchronization

	err := svc.db.
		NewSelect().
		Model(&syncs).
		Where("s.register_ref = ?", registerRef).
		Where("s.schema_ref = ?", schemaRef).
		Order("s.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return syncs, nil
}

// ListDueSynchronizations returns the synchronizations the scheduler should
// enqueue: never scanned, not scanned since the given cutoff, or holding an
// interrupted scan's cursor.
func (svc *Service) ListDueSynchronizations(ctx context.Context, cutoff time.Time) ([]*models.Synchronization, error) {
	var syncs []*models.Synchronization

	err := svc.db.
		NewSelect().
		Model(&syncs).
		WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.
				Where("s.source_last_checked IS NULL").
				WhereOr("s.source_last_checked < ?", cutoff).
				WhereOr("s.current_page > 0")
		}).
		Order("s.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return syncs, nil
}

type UpdateSynchronizationOptions struct {
	Columns []string
}

// UpdateSynchronization persists the given columns and bumps the version so
// in-flight runs can notice the configuration changed under them.
func (svc *Service) UpdateSynchronization(ctx context.Context, sync *models.Synchronization, opts UpdateSynchronizationOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	sync.UpdatedAt = time.Now()
	sync.Version++
	columns := append(opts.Columns, "updated_at", "version")

	_, err := svc.db.
		NewUpdate().
		Model(sync).
		Column(columns...).
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) DeleteSynchronization(ctx context.Context, id int) error {
	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*models.Rule)(nil)).
			Where("synchronization_id = ?", id).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.NewDelete().
			Model((*models.SynchronizationContract)(nil)).
			Where("synchronization_id = ?", id).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.NewDelete().
			Model((*models.Synchronization)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		return errors.WithStack(err)
	})
}

// AdvanceCursor records that a page finished, so a crashed run resumes from
// the next page instead of the beginning.
func (svc *Service) AdvanceCursor(ctx context.Context, syncID, nextPage int) error {
	_, err := svc.db.
		NewUpdate().
		Model((*models.Synchronization)(nil)).
		Set("current_page = ?", nextPage).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", syncID).
		Exec(ctx)
	return errors.WithStack(err)
}

// ResetCursor rewinds the pagination cursor for a fresh full scan.
func (svc *Service) ResetCursor(ctx context.Context, syncID int) error {
	return svc.AdvanceCursor(ctx, syncID, 0)
}

// TouchWatermarks persists the given watermark columns without bumping the
// version; cursor and watermark writes are engine bookkeeping, not
// configuration changes.
func (svc *Service) TouchWatermarks(ctx context.Context, sync *models.Synchronization, columns ...string) error {
	if len(columns) == 0 {
		return nil
	}

	sync.UpdatedAt = time.Now()
	columns = append(columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(sync).
		Column(columns...).
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}
