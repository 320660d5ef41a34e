package synchronizations

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/syncbridge/syncbridge/pkg/errcodes"
	"github.com/syncbridge/syncbridge/pkg/models"
)

type CreateRuleOptions struct {
	SynchronizationID int
	Name              string
	Timing            string
	Type              string
	Condition         string
	Configuration     map[string]interface{}
	Order             int
}

func (svc *Service) CreateRule(ctx context.Context, opts CreateRuleOptions) (*models.Rule, error) {
	configuration, err := json.Marshal(opts.Configuration)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	now := time.Now()
	rule := &models.Rule{
		CreatedAt:           now,
		UpdatedAt:           now,
		SynchronizationID:   opts.SynchronizationID,
		Name:                opts.Name,
		Timing:              opts.Timing,
		Type:                opts.Type,
		Condition:           opts.Condition,
		Configuration:       string(configuration),
		ConfigurationParsed: opts.Configuration,
		Order:               opts.Order,
	}

	_, err = svc.db.
		NewInsert().
		Model(rule).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return rule, nil
}

func (svc *Service) RetrieveRule(ctx context.Context, id int) (*models.Rule, error) {
	rule := &models.Rule{}

	err := svc.db.
		NewSelect().
		Model(rule).
		Where("r.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Rule")
		}
		return nil, errors.WithStack(err)
	}

	if err := rule.UnmarshalConfiguration(); err != nil {
		return nil, err
	}

	return rule, nil
}

// ListRules returns a synchronization's rules in execution order.
func (svc *Service) ListRules(ctx context.Context, synchronizationID int) ([]*models.Rule, error) {
	var rules []*models.Rule

	err := svc.db.
		NewSelect().
		Model(&rules).
		Where("r.synchronization_id = ?", synchronizationID).
		Order("r.rule_order ASC", "r.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	for _, rule := range rules {
		if err := rule.UnmarshalConfiguration(); err != nil {
			return nil, err
		}
	}

	return rules, nil
}

type UpdateRuleOptions struct {
	Columns []string
}

func (svc *Service) UpdateRule(ctx context.Context, rule *models.Rule, opts UpdateRuleOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	for _, col := range opts.Columns {
		if col == "configuration" {
			configuration, err := json.Marshal(rule.ConfigurationParsed)
			if err != nil {
				return errors.WithStack(err)
			}
			rule.Configuration = string(configuration)
			break
		}
	}

	rule.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(rule).
		Column(columns...).
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) DeleteRule(ctx context.Context, id int) error {
	_, err := svc.db.
		NewDelete().
		Model((*models.Rule)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return errors.WithStack(err)
}
