package reconcile

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/syncbridge/syncbridge/pkg/contracts"
	"github.com/syncbridge/syncbridge/pkg/dotpath"
	"github.com/syncbridge/syncbridge/pkg/errcodes"
	"github.com/syncbridge/syncbridge/pkg/expression"
	"github.com/syncbridge/syncbridge/pkg/models"
	"github.com/syncbridge/syncbridge/pkg/objecthash"
	"github.com/syncbridge/syncbridge/pkg/providers"
	"github.com/syncbridge/syncbridge/pkg/rules"
)

// run carries the state shared by all workers of one reconciliation run.
// Only result, abort, and seen are written concurrently, all under mu.
type run struct {
	svc         *Service
	sync        *models.Synchronization
	source      providers.ObjectProvider
	target      providers.ObjectProvider
	opts        Options
	runID       string
	runLogID    *int
	hasLockRule bool
	log         logger.Logger

	mu     sync.Mutex
	result models.RunResult
	abort  error
	seen   map[int]struct{}
}

func (r *run) abortErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.abort
}

func (r *run) setAbort(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.abort == nil {
		r.abort = err
	}
}

func (r *run) snapshotResult() models.RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// markSeen records that this scan observed the contract, keeping it out of
// the prune pass. Tracking by id works even in test mode, where no
// source_last_checked watermark is committed.
func (r *run) markSeen(contractID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[contractID] = struct{}{}
}

func (r *run) wasSeen(contractID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[contractID]
	return ok
}

// processPage fans one page's objects out to the worker pool and waits for
// them all. Page handout is single-producer: workers never touch the cursor.
// Returns false if the deadline or an abort stopped the page before every
// object was handed out.
func (r *run) processPage(ctx context.Context, objects []providers.Object, expired func() bool) bool {
	queue := make(chan providers.Object)
	var wg sync.WaitGroup

	for i := 0; i < r.svc.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for obj := range queue {
				if r.abortErr() != nil {
					continue
				}
				r.reconcileObject(ctx, obj)
			}
		}()
	}

	completed := true
	for _, obj := range objects {
		if expired() || r.abortErr() != nil {
			completed = false
			break
		}
		queue <- obj
	}
	close(queue)
	wg.Wait()

	return completed && r.abortErr() == nil
}

// reconcileObject drives one object through the pipeline: hash, skip
// short-circuit, before rules, mapping, target write (elided when the mapped
// output hash matches), after rules, contract commit. Failures are isolated:
// the object is logged and counted, the run continues.
func (r *run) reconcileObject(ctx context.Context, obj providers.Object) *models.SynchronizationContractLog {
	svc := r.svc
	now := time.Now()

	contract, err := svc.contracts.FindOrCreate(ctx, r.sync.ID, obj.OriginID)
	if err != nil {
		r.log.Err(err).Error("find or create contract error", logger.Data{"origin_id": obj.OriginID})
		r.count(models.ContractActionFailed, 0)
		return nil
	}
	r.markSeen(contract.ID)

	// A locking rule's lease covers the in-flight pipeline only; drop it when
	// this object is done, success or failure, so the next run never contends
	// on a stale lease.
	if r.hasLockRule {
		defer func() {
			if err := svc.locks.Release(ctx, r.sync.ID, obj.OriginID, r.runID); err != nil {
				r.log.Err(err).Error("release lock error", logger.Data{"origin_id": obj.OriginID})
			}
		}()
	}

	originHash, err := objecthash.Hash(obj.Payload)
	if err != nil {
		return r.recordFailure(ctx, contract, obj.Payload, nil, err.Error())
	}

	// Eligibility gate: an ineligible object is skipped, touching nothing
	// but the liveness watermark.
	if r.sync.Condition != "" {
		eligible, err := svc.eval.Evaluate(r.sync.Condition, obj.Payload)
		if err != nil {
			return r.recordFailure(ctx, contract, obj.Payload, nil, errors.Wrap(err, "condition evaluation failed").Error())
		}
		if !expression.Truthy(eligible) {
			return r.recordSkip(ctx, contract, now, obj.Payload, "object does not satisfy the synchronization condition")
		}
	}

	// Unchanged source payload: nothing to do. A fresh contract has an empty
	// origin hash, so new objects never match. Delete-failed tombstones are
	// excluded; their pending deletion outranks the unchanged payload.
	if !r.opts.Force &&
		contract.OriginHash == originHash &&
		contract.TargetLastAction != models.ContractActionDeleteFailed {
		return r.recordSkip(ctx, contract, now, obj.Payload, "")
	}

	rctx := &rules.Context{
		SynchronizationID: r.sync.ID,
		OriginID:          obj.OriginID,
		Owner:             r.runID,
		Object:            dotpath.DeepCopy(obj.Payload),
	}

	rctx, err = svc.rules.Run(ctx, r.sync.Rules, models.RuleTimingBefore, rctx)
	if err != nil {
		return r.ruleFailure(ctx, contract, obj.Payload, nil, err)
	}

	var output map[string]interface{}
	var targetHash string
	if r.sync.SourceTargetMapping != nil {
		output, targetHash, err = svc.mapper.Apply(r.sync.SourceTargetMapping, rctx.Object)
		if err != nil {
			return r.recordFailure(ctx, contract, obj.Payload, nil, err.Error())
		}
	} else {
		output = rctx.Object
		targetHash, err = objecthash.Hash(output)
		if err != nil {
			return r.recordFailure(ctx, contract, obj.Payload, nil, err.Error())
		}
	}

	action := models.ContractActionCreate
	if contract.TargetID != nil {
		action = models.ContractActionUpdate
	}

	// The mapped output already matches what we last wrote: the target is
	// convergent and the write is elided.
	if !r.opts.Force && contract.TargetID != nil && contract.TargetHash == targetHash {
		action = models.ContractActionSkip
	}

	targetID := contract.TargetID
	wrote := false
	if action != models.ContractActionSkip && !r.opts.Test {
		id, err := r.target.Write(ctx, r.sync.TargetRef, output, contract.TargetID)
		if err != nil {
			// Transient: retried on the next run, so the origin hash is
			// deliberately not committed.
			return r.failWithoutHashCommit(ctx, contract, now, obj.Payload, output, errors.Wrap(err, "target write failed").Error())
		}
		targetID = &id
		wrote = true
	}

	// After rules run whether or not the write happened; elided and test-mode
	// objects still go through the full pipeline.
	rctx.Object = output
	rctx, err = svc.rules.Run(ctx, r.sync.Rules, models.RuleTimingAfter, rctx)
	if err != nil {
		if wrote {
			// The write already happened; commit it so the created target
			// object is never orphaned, then report the failure.
			r.commit(ctx, contract, now, originHash, targetHash, targetID, action)
		}
		return r.ruleFailure(ctx, contract, obj.Payload, output, err)
	}
	output = rctx.Object

	if !r.opts.Test {
		r.commit(ctx, contract, now, originHash, targetHash, targetID, action)
	}

	message := strings.Join(rctx.Notes, "; ")
	entry := r.recordOutcome(ctx, contract, action, obj.Payload, output, message)
	r.count(action, contract.ID)
	return entry
}

// commit persists the contract after a successful pipeline pass.
func (r *run) commit(ctx context.Context, contract *models.SynchronizationContract, now time.Time, originHash, targetHash string, targetID *string, action string) {
	columns := []string{"origin_hash", "source_last_checked", "target_last_checked", "target_last_action"}

	if contract.OriginHash != originHash {
		contract.SourceLastChanged = &now
		columns = append(columns, "source_last_changed")
	}
	contract.OriginHash = originHash
	contract.SourceLastChecked = &now
	contract.TargetLastChecked = &now
	contract.TargetLastAction = action

	if action != models.ContractActionSkip {
		contract.TargetID = targetID
		contract.TargetHash = targetHash
		contract.TargetLastChanged = &now
		contract.TargetLastSynced = &now
		contract.SourceLastSynced = &now
		columns = append(columns, "target_id", "target_hash", "target_last_changed", "target_last_synced", "source_last_synced")
	}

	err := r.svc.contracts.UpdateContract(ctx, contract, contracts.UpdateContractOptions{Columns: columns})
	if err != nil {
		r.log.Err(err).Error("commit contract error", logger.Data{"contract_id": contract.ID})
	}
}

// recordSkip updates only source_last_checked, proving the object is still
// live on the source without rewriting anything else.
func (r *run) recordSkip(ctx context.Context, contract *models.SynchronizationContract, now time.Time, source map[string]interface{}, message string) *models.SynchronizationContractLog {
	contract.SourceLastChecked = &now
	err := r.svc.contracts.UpdateContract(ctx, contract, contracts.UpdateContractOptions{Columns: []string{"source_last_checked"}})
	if err != nil {
		r.log.Err(err).Error("skip contract update error", logger.Data{"contract_id": contract.ID})
	}

	entry := r.recordOutcome(ctx, contract, models.ContractActionSkip, source, nil, message)
	r.count(models.ContractActionSkip, contract.ID)
	return entry
}

// recordFailure handles deterministic per-object failures (cast errors, rule
// aborts). The origin hash is committed so the object isn't retried forever
// on unchanged input.
func (r *run) recordFailure(ctx context.Context, contract *models.SynchronizationContract, source, target map[string]interface{}, message string) *models.SynchronizationContractLog {
	now := time.Now()
	if !r.opts.Test {
		hash, err := objecthash.Hash(source)
		if err == nil {
			contract.OriginHash = hash
		}
		contract.SourceLastChecked = &now
		err = r.svc.contracts.UpdateContract(ctx, contract, contracts.UpdateContractOptions{Columns: []string{"origin_hash", "source_last_checked"}})
		if err != nil {
			r.log.Err(err).Error("failure contract update error", logger.Data{"contract_id": contract.ID})
		}
	}

	entry := r.recordOutcome(ctx, contract, models.ContractActionFailed, source, target, message)
	r.count(models.ContractActionFailed, contract.ID)
	return entry
}

// failWithoutHashCommit handles transient failures (target unreachable): the
// origin hash is left alone so the next run retries the object.
func (r *run) failWithoutHashCommit(ctx context.Context, contract *models.SynchronizationContract, now time.Time, source, target map[string]interface{}, message string) *models.SynchronizationContractLog {
	if !r.opts.Test {
		contract.SourceLastChecked = &now
		err := r.svc.contracts.UpdateContract(ctx, contract, contracts.UpdateContractOptions{Columns: []string{"source_last_checked"}})
		if err != nil {
			r.log.Err(err).Error("failure contract update error", logger.Data{"contract_id": contract.ID})
		}
	}

	entry := r.recordOutcome(ctx, contract, models.ContractActionFailed, source, target, message)
	r.count(models.ContractActionFailed, contract.ID)
	return entry
}

func (r *run) ruleFailure(ctx context.Context, contract *models.SynchronizationContract, source, target map[string]interface{}, err error) *models.SynchronizationContractLog {
	var ruleErr *rules.RuleError
	if errors.As(err, &ruleErr) && ruleErr.AbortsRun() {
		r.setAbort(err)
	}
	return r.recordFailure(ctx, contract, source, target, err.Error())
}

// deleteByOriginID is the explicit-delete entry: no contract means nothing
// to converge.
func (r *run) deleteByOriginID(ctx context.Context, originID string) (*models.SynchronizationContractLog, error) {
	contract, err := r.svc.contracts.RetrieveContract(ctx, contracts.RetrieveContractOptions{
		SynchronizationID: &r.sync.ID,
		OriginID:          &originID,
	})
	if err != nil {
		if errors.Is(err, errcodes.NotFound("Synchronization Contract")) {
			return nil, nil
		}
		return nil, err
	}
	return r.deleteContract(ctx, contract), nil
}

// deleteContract pushes one contract through the deletion path. Target
// deletion is idempotent: "already absent" counts as success. On failure the
// contract stays behind as a delete-failed tombstone so the next run
// retries.
func (r *run) deleteContract(ctx context.Context, contract *models.SynchronizationContract) *models.SynchronizationContractLog {
	if r.opts.Test {
		entry := r.recordOutcome(ctx, contract, models.ContractActionDelete, nil, nil, "")
		r.count(models.ContractActionDelete, contract.ID)
		return entry
	}

	if contract.TargetID != nil {
		if err := r.target.Delete(ctx, r.sync.TargetRef, *contract.TargetID); err != nil {
			now := time.Now()
			contract.TargetLastAction = models.ContractActionDeleteFailed
			contract.TargetLastChecked = &now
			uerr := r.svc.contracts.UpdateContract(ctx, contract, contracts.UpdateContractOptions{Columns: []string{"target_last_action", "target_last_checked"}})
			if uerr != nil {
				r.log.Err(uerr).Error("tombstone contract error", logger.Data{"contract_id": contract.ID})
			}

			entry := r.recordOutcome(ctx, contract, models.ContractActionDeleteFailed, nil, nil, errors.Wrap(err, "target delete failed").Error())
			r.count(models.ContractActionFailed, contract.ID)
			return entry
		}
	}

	entry := r.recordOutcome(ctx, contract, models.ContractActionDelete, nil, nil, "")
	if err := r.svc.contracts.DeleteContract(ctx, contract.ID); err != nil {
		r.log.Err(err).Error("delete contract error", logger.Data{"contract_id": contract.ID})
	}
	r.count(models.ContractActionDelete, contract.ID)
	return entry
}

// prune feeds contracts the completed full scan never saw, plus delete-failed
// tombstones, through the deletion path. This is how source-side removals are
// detected when the source only lists current state.
func (r *run) prune(ctx context.Context, scanStarted time.Time) {
	candidates, err := r.svc.contracts.ListPruneCandidates(ctx, r.sync.ID, scanStarted)
	if err != nil {
		r.log.Err(err).Error("list prune candidates error")
		return
	}

	for _, contract := range candidates {
		if ctx.Err() != nil {
			return
		}
		// Test runs commit no watermarks, so the candidate query alone can't
		// tell which contracts this scan actually covered.
		if r.wasSeen(contract.ID) {
			continue
		}
		r.deleteContract(ctx, contract)
	}
}

func (r *run) recordOutcome(ctx context.Context, contract *models.SynchronizationContract, action string, source, target map[string]interface{}, message string) *models.SynchronizationContractLog {
	entry := &models.SynchronizationContractLog{
		SynchronizationContractID: contract.ID,
		SynchronizationLogID:      r.runLogID,
		SourceSnapshot:            r.svc.logs.Snapshot(source),
		TargetSnapshot:            r.svc.logs.Snapshot(target),
		TargetResult:              action,
		Message:                   message,
		Test:                      r.opts.Test,
		Force:                     r.opts.Force,
	}
	if err := r.svc.logs.CreateContractLog(ctx, entry); err != nil {
		r.log.Err(err).Error("create contract log error", logger.Data{"contract_id": contract.ID})
	}
	return entry
}

func (r *run) count(action string, contractID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch action {
	case models.ContractActionCreate:
		r.result.Created++
	case models.ContractActionUpdate:
		r.result.Updated++
	case models.ContractActionDelete:
		r.result.Deleted++
	case models.ContractActionSkip:
		r.result.Skipped++
	case models.ContractActionFailed:
		r.result.Failed++
	}

	if action == models.ContractActionCreate || action == models.ContractActionUpdate || action == models.ContractActionDelete {
		r.result.ContractIDs = append(r.result.ContractIDs, contractID)
	}
}
