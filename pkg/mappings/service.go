package mappings

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

type CreateMappingOptions struct {
	Name        string
	Pairs       []models.MappingPair
	Unset       []string
	Cast        []models.MappingCast
	PassThrough bool
}

func (svc *Service) CreateMapping(ctx context.Context, opts CreateMappingOptions) (*models.Mapping, error) {
	now := time.Now()

	mapping := &models.Mapping{
		CreatedAt:   now,
		UpdatedAt:   now,
		Name:        opts.Name,
		PassThrough: opts.PassThrough,
		PairsParsed: opts.Pairs,
		UnsetParsed: opts.Unset,
		CastParsed:  opts.Cast,
	}
	if err := mapping.MarshalColumns(); err != nil {
		return nil, err
	}

	_, err := svc.db.
		NewInsert().
		Model(mapping).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return mapping, nil
}

// RetrieveMapping loads one mapping with its JSON columns parsed. Rule
// execution resolves mappings through this method.
func (svc *Service) RetrieveMapping(ctx context.Context, id int) (*models.Mapping, error) {
	mapping := &models.Mapping{}

	err := svc.db.
		NewSelect().
		Model(mapping).
		Where("m.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Mapping")
		}
		return nil, errors.WithStack(err)
	}

	if err := mapping.UnmarshalColumns(); err != nil {
		return nil, err
	}

	return mapping, nil
}

type ListMappingsOptions struct {
	Limit        *int
	Offset       *int
	includeTotal bool
}

func (svc *Service) ListMappings(ctx context.Context, opts ListMappingsOptions) ([]*models.Mapping, error) {
	mappings, _, err := svc.listMappingsWithTotal(ctx, opts)
	return mappings, errors.WithStack(err)
}

func (svc *Service) ListMappingsWithTotal(ctx context.Context, opts ListMappingsOptions) ([]*models.Mapping, int, error) {
	opts.includeTotal = true
	return svc.listMappingsWithTotal(ctx, opts)
}

func (svc *Service) listMappingsWithTotal(ctx context.Context, opts ListMappingsOptions) ([]*models.Mapping, int, error) {
	var mappings []*models.Mapping
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&mappings).
		Order("m.name ASC")

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

	for _, mapping := range mappings {
		if err := mapping.UnmarshalColumns(); err != nil {
			return nil, 0, err
		}
	}

	return mappings, total, nil
}

type UpdateMappingOptions struct {
	Columns []string
}

func (svc *Service) UpdateMapping(ctx context.Context, mapping *models.Mapping, opts UpdateMappingOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	if err := mapping.MarshalColumns(); err != nil {
		return err
	}

	mapping.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(mapping).
		Column(columns...).
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) DeleteMapping(ctx context.Context, id int) error {
	// Mappings referenced by a synchronization can't be removed out from
	// under it.
	count, err := svc.db.
		NewSelect().
		Model((*models.Synchronization)(nil)).
		Where("source_target_mapping_id = ? OR target_source_mapping_id = ?", id, id).
		Count(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if count > 0 {
		return errcodes.Conflict("Mapping is in use by a synchronization.")
	}

	_, err = svc.db.
		NewDelete().
		Model((*models.Mapping)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return errors.WithStack(err)
}
