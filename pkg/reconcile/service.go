// Package reconcile is the engine core: it walks a synchronization's source,
// decides per object whether it is new, changed, unchanged, or removed, runs
// the rule/mapping pipeline, writes to the target, and commits a contract
// recording the outcome so re-runs never duplicate or lose work.
//
// Hash discipline: the skip short-circuit compares the hash of the raw
// source payload against contract.origin_hash; the write-elision
// short-circuit compares the hash of the mapped output against
// contract.target_hash. Force bypasses both.
package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/syncbridge/syncbridge/pkg/contracts"
	"github.com/syncbridge/syncbridge/pkg/cursor"
	"github.com/syncbridge/syncbridge/pkg/expression"
	"github.com/syncbridge/syncbridge/pkg/locks"
	"github.com/syncbridge/syncbridge/pkg/mappings"
	"github.com/syncbridge/syncbridge/pkg/models"
	"github.com/syncbridge/syncbridge/pkg/providers"
	"github.com/syncbridge/syncbridge/pkg/rules"
	"github.com/syncbridge/syncbridge/pkg/synchronizations"
	"github.com/syncbridge/syncbridge/pkg/synclogs"
	"github.com/uptrace/bun"
)

const (
	MutationCreate = "create"
	MutationUpdate = "update"
	MutationDelete = "delete"
)

// Options control one run. Force bypasses the hash short-circuits; Test runs
// the pipeline without touching the target or committing contracts.
type Options struct {
	Force bool
	Test  bool
}

type Config struct {
	// RunDeadline bounds one run. In-flight objects finish their current
	// step; nothing new starts after expiry. Zero means no deadline.
	RunDeadline time.Duration

	// WorkerProcesses bounds per-run parallelism across objects of one page.
	WorkerProcesses int

	Collaborators rules.Collaborators
}

type Service struct {
	syncs     *synchronizations.Service
	contracts *contracts.Service
	logs      *synclogs.Service
	locks     *locks.Service
	mapper    *mappings.Executor
	rules     *rules.Executor
	registry  *providers.Registry
	eval      expression.Evaluator
	log       logger.Logger
	deadline  time.Duration
	workers   int
}

func NewService(db *bun.DB, registry *providers.Registry, logsService *synclogs.Service, cfg Config) (*Service, error) {
	eval := expression.NewGoja()
	mapper := mappings.NewExecutor(eval)
	lockService := locks.NewService(db)

	ruleExecutor, err := rules.NewExecutor(eval, eval, lockService, mappings.NewService(db), mapper, cfg.Collaborators)
	if err != nil {
		return nil, err
	}

	workers := cfg.WorkerProcesses
	if workers <= 0 {
		workers = 1
	}

	return &Service{
		syncs:     synchronizations.NewService(db),
		contracts: contracts.NewService(db),
		logs:      logsService,
		locks:     lockService,
		mapper:    mapper,
		rules:     ruleExecutor,
		registry:  registry,
		eval:      eval,
		log:       logger.New(),
		deadline:  cfg.RunDeadline,
		workers:   workers,
	}, nil
}

// ReconcileAll runs one scan of the synchronization's source. A scan that
// starts at page zero is a full scan and prunes contracts for objects the
// source no longer lists; a scan resuming a persisted cursor only covers the
// remaining pages and never prunes.
func (svc *Service) ReconcileAll(ctx context.Context, synchronizationID int, opts Options) (*models.SynchronizationLog, error) {
	started := time.Now()
	runID := uuid.NewString()

	sync, err := svc.syncs.RetrieveSynchronization(ctx, synchronizations.RetrieveSynchronizationOptions{
		ID:            &synchronizationID,
		WithRelations: true,
	})
	if err != nil {
		return nil, err
	}

	r, err := svc.newRun(sync, runID, opts)
	if err != nil {
		return nil, err
	}

	runLog := &models.SynchronizationLog{
		SynchronizationID: sync.ID,
		RunID:             runID,
		Test:              opts.Test,
		Force:             opts.Force,
		ResultParsed:      &models.RunResult{},
	}
	if err := svc.logs.CreateRunLog(ctx, runLog); err != nil {
		return nil, err
	}
	r.runLogID = &runLog.ID

	var deadline time.Time
	if svc.deadline > 0 {
		deadline = started.Add(svc.deadline)
	}
	expired := func() bool {
		if ctx.Err() != nil {
			return true
		}
		return !deadline.IsZero() && time.Now().After(deadline)
	}

	cur := cursor.New(r.source, svc.syncs, sync.ID, sync.SourceRef, sync.CurrentPage)
	fullScan := cur.FullScan()

	var runErr error
	interrupted := false

	for {
		if r.abortErr() != nil {
			break
		}
		if expired() {
			interrupted = true
			break
		}

		page, err := cur.Next(ctx)
		if err != nil {
			runErr = err
			break
		}
		if page == nil {
			break
		}

		if !r.processPage(ctx, page.Objects, expired) {
			interrupted = true
			break
		}

		// The page fully processed; persist progress so a crash resumes
		// here.
		if err := cur.Advance(ctx); err != nil {
			runErr = err
			break
		}
	}

	if runErr == nil && !interrupted && r.abortErr() == nil {
		if fullScan {
			r.prune(ctx, started)
		}
		if err := cur.Reset(ctx); err != nil {
			runErr = err
		}
		if !opts.Test {
			svc.touchWatermarks(ctx, sync, started, r.snapshotResult())
		}
	}

	result := r.snapshotResult()
	runLog.ResultParsed = &result
	runLog.ExecutionTimeMs = time.Since(started).Milliseconds()
	if err := svc.logs.UpdateRunLog(ctx, runLog); err != nil {
		r.log.Err(err).Error("update run log error")
	}

	if runErr == nil {
		runErr = r.abortErr()
	}
	return runLog, runErr
}

// ReconcileOne reconciles a single object synchronously, typically driven by
// a source-side event. A delete mutation for an origin id the engine has no
// contract for is a no-op success: there is nothing to converge.
func (svc *Service) ReconcileOne(ctx context.Context, synchronizationID int, originID, mutation string, opts Options) (*models.SynchronizationContractLog, error) {
	sync, err := svc.syncs.RetrieveSynchronization(ctx, synchronizations.RetrieveSynchronizationOptions{
		ID:            &synchronizationID,
		WithRelations: true,
	})
	if err != nil {
		return nil, err
	}

	r, err := svc.newRun(sync, uuid.NewString(), opts)
	if err != nil {
		return nil, err
	}

	if mutation == MutationDelete {
		return r.deleteByOriginID(ctx, originID)
	}

	payload, err := r.source.Get(ctx, sync.SourceRef, originID)
	if err != nil {
		if errors.Is(err, providers.ErrNotFound) {
			// The object is already gone from the source; converge by
			// deleting whatever we previously wrote.
			return r.deleteByOriginID(ctx, originID)
		}
		return nil, err
	}

	entry := r.reconcileObject(ctx, providers.Object{OriginID: originID, Payload: payload})
	if err := r.abortErr(); err != nil {
		return entry, err
	}
	return entry, nil
}

func (svc *Service) newRun(sync *models.Synchronization, runID string, opts Options) (*run, error) {
	source, err := svc.registry.Resolve(sync.SourceType)
	if err != nil {
		return nil, err
	}
	target, err := svc.registry.Resolve(sync.TargetType)
	if err != nil {
		return nil, err
	}

	hasLockRule := false
	for _, rule := range sync.Rules {
		if rule.Type == models.RuleTypeLocking {
			hasLockRule = true
			break
		}
	}

	return &run{
		svc:         svc,
		sync:        sync,
		source:      source,
		target:      target,
		opts:        opts,
		runID:       runID,
		hasLockRule: hasLockRule,
		seen:        map[int]struct{}{},
		log: svc.log.Data(logger.Data{
			"synchronization_id": sync.ID,
			"run_id":             runID,
		}),
	}, nil
}

func (svc *Service) touchWatermarks(ctx context.Context, sync *models.Synchronization, started time.Time, result models.RunResult) {
	now := time.Now()

	sync.SourceLastChecked = &started
	sync.TargetLastChecked = &now
	columns := []string{"source_last_checked", "target_last_checked"}

	if result.Created+result.Updated+result.Deleted > 0 {
		sync.SourceLastChanged = &now
		sync.SourceLastSynced = &now
		sync.TargetLastChanged = &now
		sync.TargetLastSynced = &now
		columns = append(columns, "source_last_changed", "source_last_synced", "target_last_changed", "target_last_synced")
	}

	if err := svc.syncs.TouchWatermarks(ctx, sync, columns...); err != nil {
		svc.log.Err(err).Error("touch watermarks error", logger.Data{"synchronization_id": sync.ID})
	}
}
