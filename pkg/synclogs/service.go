// Package synclogs persists run summaries and per-object outcome logs. Every
// row carries an expiry so retention is a single delete, and object snapshots
// are size-capped before they ever reach the database.
package synclogs

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/syncbridge/syncbridge/pkg/models"
	"github.com/uptrace/bun"
)

type Service struct {
	db          *bun.DB
	retention   time.Duration
	snapshotCap int
}

func NewService(db *bun.DB, retention time.Duration, snapshotCap int) *Service {
	return &Service{
		db:          db,
		retention:   retention,
		snapshotCap: snapshotCap,
	}
}

// Snapshot serializes an object for logging, truncated to the configured
// byte cap. The middle is elided so both the head and the tail of the
// payload stay readable.
func (svc *Service) Snapshot(object map[string]interface{}) string {
	if object == nil {
		return ""
	}
	data, err := json.Marshal(object)
	if err != nil {
		return ""
	}
	return truncateMiddle(string(data), svc.snapshotCap)
}

func (svc *Service) CreateRunLog(ctx context.Context, log *models.SynchronizationLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	log.Expires = log.CreatedAt.Add(svc.retention)

	if log.ResultParsed != nil {
		result, err := json.Marshal(log.ResultParsed)
		if err != nil {
			return errors.WithStack(err)
		}
		log.Result = string(result)
	}
	log.Size = len(log.Result)

	_, err := svc.db.
		NewInsert().
		Model(log).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) CreateContractLog(ctx context.Context, log *models.SynchronizationContractLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	log.Expires = log.CreatedAt.Add(svc.retention)

	log.SourceSnapshot = truncateMiddle(log.SourceSnapshot, svc.snapshotCap)
	log.TargetSnapshot = truncateMiddle(log.TargetSnapshot, svc.snapshotCap)
	log.Size = len(log.SourceSnapshot) + len(log.TargetSnapshot) + len(log.Message)

	_, err := svc.db.
		NewInsert().
		Model(log).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// UpdateRunLog re-persists a run log's result once the run finishes. The
// engine creates the row up front so per-object logs can reference it, then
// finalizes counts and timing here.
func (svc *Service) UpdateRunLog(ctx context.Context, log *models.SynchronizationLog) error {
	if log.ResultParsed != nil {
		result, err := json.Marshal(log.ResultParsed)
		if err != nil {
			return errors.WithStack(err)
		}
		log.Result = string(result)
	}
	log.Size = len(log.Result)

	_, err := svc.db.
		NewUpdate().
		Model(log).
		Column("result", "execution_time_ms", "size").
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}

type ListRunLogsOptions struct {
	SynchronizationID int
	Limit             *int
	Offset            *int
}

func (svc *Service) ListRunLogs(ctx context.Context, opts ListRunLogsOptions) ([]*models.SynchronizationLog, error) {
	logs := []*models.SynchronizationLog{}

	q := svc.db.
		NewSelect().
		Model(&logs).
		Where("sl.synchronization_id = ?", opts.SynchronizationID).
		Order("sl.id DESC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	for _, log := range logs {
		if log.Result != "" {
			if err := log.UnmarshalResult(); err != nil {
				return nil, err
			}
		}
	}

	return logs, nil
}

type ListContractLogsOptions struct {
	SynchronizationContractID *int
	SynchronizationLogID      *int
	AfterID                   *int
	Limit                     *int
}

func (svc *Service) ListContractLogs(ctx context.Context, opts ListContractLogsOptions) ([]*models.SynchronizationContractLog, error) {
	logs := []*models.SynchronizationContractLog{}

	q := svc.db.
		NewSelect().
		Model(&logs).
		Order("scl.id ASC")

	if opts.SynchronizationContractID != nil {
		q = q.Where("scl.synchronization_contract_id = ?", *opts.SynchronizationContractID)
	}
	if opts.SynchronizationLogID != nil {
		q = q.Where("scl.synchronization_log_id = ?", *opts.SynchronizationLogID)
	}
	if opts.AfterID != nil {
		q = q.Where("scl.id > ?", *opts.AfterID)
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return logs, nil
}

// DeleteExpired purges run and contract logs past their expiry. Returns how
// many rows were removed.
func (svc *Service) DeleteExpired(ctx context.Context) (int, error) {
	now := time.Now()
	total := 0

	res, err := svc.db.
		NewDelete().
		Model((*models.SynchronizationContractLog)(nil)).
		Where("expires < ?", now).
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += int(n)
	}

	res, err = svc.db.
		NewDelete().
		Model((*models.SynchronizationLog)(nil)).
		Where("expires < ?", now).
		Exec(ctx)
	if err != nil {
		return total, errors.WithStack(err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += int(n)
	}

	return total, nil
}

func truncateMiddle(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	half := (maxLen - 5) / 2
	return s[:half] + " ... " + s[len(s)-half:]
}
