package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncbridge/syncbridge/pkg/contracts"
	"github.com/syncbridge/syncbridge/pkg/mappings"
	"github.com/syncbridge/syncbridge/pkg/migrations"
	"github.com/syncbridge/syncbridge/pkg/models"
	"github.com/syncbridge/syncbridge/pkg/providers"
	"github.com/syncbridge/syncbridge/pkg/synchronizations"
	"github.com/syncbridge/syncbridge/pkg/synclogs"
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

type fixture struct {
	db        *bun.DB
	mem       *providers.Memory
	registry  *providers.Registry
	logs      *synclogs.Service
	syncs     *synchronizations.Service
	contracts *contracts.Service
	mappings  *mappings.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	mem := providers.NewMemory(2)
	registry := providers.NewRegistry()
	registry.Register(models.ProviderTypeMemory, mem)

	return &fixture{
		db:        db,
		mem:       mem,
		registry:  registry,
		logs:      synclogs.NewService(db, time.Hour, 4096),
		syncs:     synchronizations.NewService(db),
		contracts: contracts.NewService(db),
		mappings:  mappings.NewService(db),
	}
}

func (f *fixture) engine(t *testing.T, cfg Config) *Service {
	t.Helper()

	svc, err := NewService(f.db, f.registry, f.logs, cfg)
	require.NoError(t, err)
	return svc
}

// personMapping maps name and email, so changes to other source fields never
// change the mapped output.
func (f *fixture) personMapping(t *testing.T) *models.Mapping {
	t.Helper()

	mapping, err := f.mappings.CreateMapping(context.Background(), mappings.CreateMappingOptions{
		Name: "people to contacts",
		Pairs: []models.MappingPair{
			{Source: "name", Target: "full_name"},
			{Source: "email", Target: "email"},
		},
	})
	require.NoError(t, err)
	return mapping
}

func (f *fixture) createSync(t *testing.T, mappingID *int, condition string) *models.Synchronization {
	t.Helper()

	sync, err := f.syncs.CreateSynchronization(context.Background(), synchronizations.CreateSynchronizationOptions{
		Name:                  "people sync",
		SourceRef:             "people",
		SourceType:            models.ProviderTypeMemory,
		TargetRef:             "contacts",
		TargetType:            models.ProviderTypeMemory,
		RegisterRef:           "crm",
		SchemaRef:             "person",
		SourceTargetMappingID: mappingID,
		Condition:             condition,
	})
	require.NoError(t, err)
	return sync
}

func (f *fixture) seedPeople(n int) {
	for i := 0; i < n; i++ {
		f.mem.Seed("people", fmt.Sprintf("p-%02d", i), map[string]interface{}{
			"name":  fmt.Sprintf("person %02d", i),
			"email": fmt.Sprintf("p-%02d@example.com", i),
			"age":   float64(21 + i),
		})
	}
}

func (f *fixture) contract(t *testing.T, syncID int, originID string) *models.SynchronizationContract {
	t.Helper()

	contract, err := f.contracts.RetrieveContract(context.Background(), contracts.RetrieveContractOptions{
		SynchronizationID: &syncID,
		OriginID:          &originID,
	})
	require.NoError(t, err)
	return contract
}

func TestReconcileAllConverges(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	mapping := f.personMapping(t)
	sync := f.createSync(t, &mapping.ID, "")
	f.seedPeople(5)
	svc := f.engine(t, Config{})
	ctx := context.Background()

	runLog, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)

	assert.Equal(t, 5, runLog.ResultParsed.Created)
	assert.Zero(t, runLog.ResultParsed.Failed)
	assert.Len(t, runLog.ResultParsed.ContractIDs, 5)
	assert.Equal(t, 5, f.mem.Len("contacts"))

	listed, err := f.contracts.ListContracts(ctx, contracts.ListContractsOptions{SynchronizationID: &sync.ID})
	require.NoError(t, err)
	require.Len(t, listed, 5)
	for _, contract := range listed {
		require.NotNil(t, contract.TargetID)
		assert.NotEmpty(t, contract.OriginHash)
		assert.NotEmpty(t, contract.TargetHash)
		assert.Equal(t, models.ContractActionCreate, contract.TargetLastAction)

		written, err := f.mem.Get(ctx, "contacts", *contract.TargetID)
		require.NoError(t, err)
		assert.Contains(t, written, "full_name")
		assert.NotContains(t, written, "age")
	}

	// Completed full scan rewinds the cursor.
	after, err := f.syncs.RetrieveSynchronization(ctx, synchronizations.RetrieveSynchronizationOptions{ID: &sync.ID})
	require.NoError(t, err)
	assert.Zero(t, after.CurrentPage)
	assert.NotNil(t, after.SourceLastSynced)
}

func TestReconcileAllIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	mapping := f.personMapping(t)
	sync := f.createSync(t, &mapping.ID, "")
	f.seedPeople(5)
	svc := f.engine(t, Config{})
	ctx := context.Background()

	_, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)
	writesAfterFirst := f.mem.WriteCalls()

	runLog, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)

	assert.Equal(t, 5, runLog.ResultParsed.Skipped)
	assert.Zero(t, runLog.ResultParsed.Created)
	assert.Zero(t, runLog.ResultParsed.Updated)
	assert.Equal(t, writesAfterFirst, f.mem.WriteCalls())
}

func TestChangeDetectionElidesUnmappedChanges(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	mapping := f.personMapping(t)
	sync := f.createSync(t, &mapping.ID, "")
	f.seedPeople(5)
	svc := f.engine(t, Config{})
	ctx := context.Background()

	_, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)

	// p-00 changes outside the mapped fields; p-01 changes a mapped field.
	f.mem.Seed("people", "p-00", map[string]interface{}{
		"name":  "person 00",
		"email": "p-00@example.com",
		"age":   float64(99),
	})
	f.mem.Seed("people", "p-01", map[string]interface{}{
		"name":  "person 01 renamed",
		"email": "p-01@example.com",
		"age":   float64(22),
	})
	writesBefore := f.mem.WriteCalls()

	runLog, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, runLog.ResultParsed.Updated)
	assert.Equal(t, 4, runLog.ResultParsed.Skipped)
	assert.Equal(t, writesBefore+1, f.mem.WriteCalls())

	// The elided object's contract still recorded the fresh origin hash.
	elided := f.contract(t, sync.ID, "p-00")
	assert.Equal(t, models.ContractActionSkip, elided.TargetLastAction)

	renamed := f.contract(t, sync.ID, "p-01")
	require.NotNil(t, renamed.TargetID)
	written, err := f.mem.Get(ctx, "contacts", *renamed.TargetID)
	require.NoError(t, err)
	assert.Equal(t, "person 01 renamed", written["full_name"])
}

func TestFullScanPrunesRemovedObjects(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	mapping := f.personMapping(t)
	sync := f.createSync(t, &mapping.ID, "")
	f.seedPeople(5)
	svc := f.engine(t, Config{})
	ctx := context.Background()

	_, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)
	removed := f.contract(t, sync.ID, "p-02")
	f.mem.Remove("people", "p-02")

	runLog, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, runLog.ResultParsed.Deleted)
	assert.Equal(t, 4, runLog.ResultParsed.Skipped)
	assert.Equal(t, 1, f.mem.DeleteCalls())
	assert.Equal(t, 4, f.mem.Len("contacts"))

	listed, err := f.contracts.ListContracts(ctx, contracts.ListContractsOptions{SynchronizationID: &sync.ID})
	require.NoError(t, err)
	assert.Len(t, listed, 4)

	_, err = f.mem.Get(ctx, "contacts", *removed.TargetID)
	assert.ErrorIs(t, err, providers.ErrNotFound)
}

func TestForceBypassesShortCircuits(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	mapping := f.personMapping(t)
	sync := f.createSync(t, &mapping.ID, "")
	f.seedPeople(3)
	svc := f.engine(t, Config{})
	ctx := context.Background()

	_, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)
	writesBefore := f.mem.WriteCalls()

	runLog, err := svc.ReconcileAll(ctx, sync.ID, Options{Force: true})
	require.NoError(t, err)

	assert.Equal(t, 3, runLog.ResultParsed.Updated)
	assert.Zero(t, runLog.ResultParsed.Skipped)
	assert.Equal(t, writesBefore+3, f.mem.WriteCalls())
	assert.Equal(t, 3, f.mem.Len("contacts"))
}

func TestCastFailureIsIsolatedPerObject(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	mapping, err := f.mappings.CreateMapping(context.Background(), mappings.CreateMappingOptions{
		Name:  "people with age",
		Pairs: []models.MappingPair{{Source: "name", Target: "full_name"}, {Source: "age", Target: "age"}},
		Cast:  []models.MappingCast{{Path: "age", Type: models.CastTypeInteger}},
	})
	require.NoError(t, err)
	sync := f.createSync(t, &mapping.ID, "")
	f.seedPeople(10)
	f.mem.Seed("people", "p-03", map[string]interface{}{
		"name": "person 03",
		"age":  "unknown",
	})
	svc := f.engine(t, Config{})
	ctx := context.Background()

	runLog, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)

	assert.Equal(t, 9, runLog.ResultParsed.Created)
	assert.Equal(t, 1, runLog.ResultParsed.Failed)
	assert.Equal(t, 9, f.mem.Len("contacts"))

	entries, err := f.logs.ListContractLogs(ctx, synclogs.ListContractLogsOptions{SynchronizationLogID: &runLog.ID})
	require.NoError(t, err)
	var failed *models.SynchronizationContractLog
	for _, entry := range entries {
		if entry.TargetResult == models.ContractActionFailed {
			failed = entry
		}
	}
	require.NotNil(t, failed)
	assert.Contains(t, failed.Message, "age")
	assert.Contains(t, failed.Message, "integer")

	// The failing payload's hash is committed, so the unchanged object isn't
	// retried on the next run.
	second, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)
	assert.Zero(t, second.ResultParsed.Failed)
	assert.Equal(t, 10, second.ResultParsed.Skipped)
}

func TestResumedScanSkipsCompletedPages(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	mapping := f.personMapping(t)
	sync := f.createSync(t, &mapping.ID, "")
	f.seedPeople(5)
	svc := f.engine(t, Config{})
	ctx := context.Background()

	// Page 0 completed in an earlier, interrupted run.
	require.NoError(t, f.syncs.AdvanceCursor(ctx, sync.ID, 1))

	runLog, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, runLog.ResultParsed.Created)
	assert.Equal(t, 2, f.mem.ListCalls())

	// A partial scan never prunes, even though page 0's objects were not
	// seen this run.
	listed, err := f.contracts.ListContracts(ctx, contracts.ListContractsOptions{SynchronizationID: &sync.ID})
	require.NoError(t, err)
	assert.Len(t, listed, 3)

	after, err := f.syncs.RetrieveSynchronization(ctx, synchronizations.RetrieveSynchronizationOptions{ID: &sync.ID})
	require.NoError(t, err)
	assert.Zero(t, after.CurrentPage)
}

func TestRunDeadlineStartsNothingNew(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	mapping := f.personMapping(t)
	sync := f.createSync(t, &mapping.ID, "")
	f.seedPeople(4)
	svc := f.engine(t, Config{RunDeadline: time.Nanosecond})
	ctx := context.Background()

	runLog, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)

	assert.Zero(t, runLog.ResultParsed.Created)
	assert.Zero(t, f.mem.ListCalls())
	assert.Zero(t, f.mem.WriteCalls())
}

func TestTestModeHasNoTargetSideEffects(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	mapping := f.personMapping(t)
	sync := f.createSync(t, &mapping.ID, "")
	f.seedPeople(3)
	svc := f.engine(t, Config{})
	ctx := context.Background()

	runLog, err := svc.ReconcileAll(ctx, sync.ID, Options{Test: true})
	require.NoError(t, err)

	assert.Equal(t, 3, runLog.ResultParsed.Created)
	// Contracts created by this scan must not look like prune candidates just
	// because test mode commits no watermarks.
	assert.Zero(t, runLog.ResultParsed.Deleted)
	assert.True(t, runLog.Test)
	assert.Zero(t, f.mem.WriteCalls())
	assert.Zero(t, f.mem.Len("contacts"))

	// Contracts exist as shells but record no outcome.
	listed, err := f.contracts.ListContracts(ctx, contracts.ListContractsOptions{SynchronizationID: &sync.ID})
	require.NoError(t, err)
	require.Len(t, listed, 3)
	for _, contract := range listed {
		assert.Empty(t, contract.OriginHash)
		assert.Nil(t, contract.TargetID)
	}

	entries, err := f.logs.ListContractLogs(ctx, synclogs.ListContractLogsOptions{SynchronizationLogID: &runLog.ID})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, entry := range entries {
		assert.True(t, entry.Test)
	}

	// A later real run still creates everything.
	second, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, second.ResultParsed.Created)
	assert.Equal(t, 3, f.mem.Len("contacts"))
}

func TestConditionGatesEligibility(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	mapping := f.personMapping(t)
	sync := f.createSync(t, &mapping.ID, "age >= 30")
	f.seedPeople(3) // ages 21, 22, 23
	f.mem.Seed("people", "p-99", map[string]interface{}{
		"name":  "person 99",
		"email": "p-99@example.com",
		"age":   float64(64),
	})
	svc := f.engine(t, Config{})
	ctx := context.Background()

	runLog, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, runLog.ResultParsed.Created)
	assert.Equal(t, 3, runLog.ResultParsed.Skipped)
	assert.Equal(t, 1, f.mem.Len("contacts"))

	// Ineligible objects only record liveness, nothing else.
	gated := f.contract(t, sync.ID, "p-00")
	assert.Empty(t, gated.OriginHash)
	assert.Nil(t, gated.TargetID)
	assert.NotNil(t, gated.SourceLastChecked)
}

func TestAbortRunRuleEndsTheRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	mapping := f.personMapping(t)
	sync := f.createSync(t, &mapping.ID, "")
	_, err := f.syncs.CreateRule(context.Background(), synchronizations.CreateRuleOptions{
		SynchronizationID: sync.ID,
		Name:              "reject everything",
		Timing:            models.RuleTimingBefore,
		Type:              models.RuleTypeError,
		Configuration: map[string]interface{}{
			"message": "upstream unavailable",
			"onError": models.RuleOnErrorAbortRun,
		},
	})
	require.NoError(t, err)
	f.seedPeople(4)
	svc := f.engine(t, Config{})
	ctx := context.Background()

	runLog, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream unavailable")

	assert.Equal(t, 1, runLog.ResultParsed.Failed)
	assert.Zero(t, f.mem.WriteCalls())

	// The aborted scan keeps its cursor so nothing is silently marked done.
	after, err := f.syncs.RetrieveSynchronization(ctx, synchronizations.RetrieveSynchronizationOptions{ID: &sync.ID})
	require.NoError(t, err)
	assert.Zero(t, after.CurrentPage)
	assert.Nil(t, after.SourceLastSynced)
}

func TestContinueRuleFailureIsLoggedNotFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	mapping := f.personMapping(t)
	sync := f.createSync(t, &mapping.ID, "")
	_, err := f.syncs.CreateRule(context.Background(), synchronizations.CreateRuleOptions{
		SynchronizationID: sync.ID,
		Name:              "optional enrichment",
		Timing:            models.RuleTimingBefore,
		Type:              models.RuleTypeError,
		Configuration: map[string]interface{}{
			"message": "enrichment unavailable",
			"onError": models.RuleOnErrorContinue,
		},
	})
	require.NoError(t, err)
	f.seedPeople(2)
	svc := f.engine(t, Config{})
	ctx := context.Background()

	runLog, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, runLog.ResultParsed.Created)
	assert.Zero(t, runLog.ResultParsed.Failed)

	entries, err := f.logs.ListContractLogs(ctx, synclogs.ListContractLogsOptions{SynchronizationLogID: &runLog.ID})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Contains(t, entries[0].Message, "enrichment unavailable")
}

func TestAfterRuleFailureKeepsTheWrite(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	mapping := f.personMapping(t)
	sync := f.createSync(t, &mapping.ID, "")
	_, err := f.syncs.CreateRule(context.Background(), synchronizations.CreateRuleOptions{
		SynchronizationID: sync.ID,
		Name:              "notify downstream",
		Timing:            models.RuleTimingAfter,
		Type:              models.RuleTypeError,
		Configuration:     map[string]interface{}{"message": "webhook rejected"},
	})
	require.NoError(t, err)
	f.seedPeople(1)
	svc := f.engine(t, Config{})
	ctx := context.Background()

	runLog, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)

	// The target write happened and is committed, so a retry can't create a
	// duplicate, but the object still counts as failed.
	assert.Equal(t, 1, runLog.ResultParsed.Failed)
	assert.Zero(t, runLog.ResultParsed.Created)
	assert.Equal(t, 1, f.mem.Len("contacts"))

	contract := f.contract(t, sync.ID, "p-00")
	require.NotNil(t, contract.TargetID)
	assert.NotEmpty(t, contract.OriginHash)

	writesBefore := f.mem.WriteCalls()
	second, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, second.ResultParsed.Skipped)
	assert.Equal(t, writesBefore, f.mem.WriteCalls())
}

func TestSequentialRunsDoNotContendOnLockLeases(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	mapping := f.personMapping(t)
	sync := f.createSync(t, &mapping.ID, "")
	_, err := f.syncs.CreateRule(context.Background(), synchronizations.CreateRuleOptions{
		SynchronizationID: sync.ID,
		Name:              "lock object",
		Timing:            models.RuleTimingBefore,
		Type:              models.RuleTypeLocking,
		Configuration:     map[string]interface{}{},
	})
	require.NoError(t, err)
	f.seedPeople(2)
	svc := f.engine(t, Config{})
	ctx := context.Background()

	first, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, first.ResultParsed.Created)
	assert.Zero(t, first.ResultParsed.Failed)

	// The leases covered only the in-flight pipeline; a later run must not
	// fail on leftovers from the previous one.
	f.mem.Seed("people", "p-00", map[string]interface{}{
		"name":  "person 00 renamed",
		"email": "p-00@example.com",
		"age":   float64(21),
	})

	second, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, second.ResultParsed.Updated)
	assert.Zero(t, second.ResultParsed.Failed)
}

func TestAfterRulesRunWhenTheWriteIsElided(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	mapping := f.personMapping(t)
	sync := f.createSync(t, &mapping.ID, "")
	_, err := f.syncs.CreateRule(context.Background(), synchronizations.CreateRuleOptions{
		SynchronizationID: sync.ID,
		Name:              "post check",
		Timing:            models.RuleTimingAfter,
		Type:              models.RuleTypeError,
		Configuration: map[string]interface{}{
			"message": "downstream notified late",
			"onError": models.RuleOnErrorContinue,
		},
	})
	require.NoError(t, err)
	f.seedPeople(1)
	svc := f.engine(t, Config{})
	ctx := context.Background()

	_, err = svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)

	// A change outside the mapped fields elides the write but still runs the
	// after rules.
	f.mem.Seed("people", "p-00", map[string]interface{}{
		"name":  "person 00",
		"email": "p-00@example.com",
		"age":   float64(99),
	})

	runLog, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, runLog.ResultParsed.Skipped)

	entries, err := f.logs.ListContractLogs(ctx, synclogs.ListContractLogsOptions{SynchronizationLogID: &runLog.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ContractActionSkip, entries[0].TargetResult)
	assert.Contains(t, entries[0].Message, "downstream notified late")
}

type flakyProvider struct {
	*providers.Memory
	failWrites  bool
	failDeletes bool
}

func (p *flakyProvider) Write(ctx context.Context, ref string, object map[string]interface{}, existingID *string) (string, error) {
	if p.failWrites {
		return "", errors.New("target unavailable")
	}
	return p.Memory.Write(ctx, ref, object, existingID)
}

func (p *flakyProvider) Delete(ctx context.Context, ref, id string) error {
	if p.failDeletes {
		return errors.New("target unavailable")
	}
	return p.Memory.Delete(ctx, ref, id)
}

func TestTransientWriteFailureIsRetriedNextRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	flaky := &flakyProvider{Memory: f.mem, failWrites: true}
	f.registry.Register("flaky", flaky)
	mapping := f.personMapping(t)
	sync, err := f.syncs.CreateSynchronization(context.Background(), synchronizations.CreateSynchronizationOptions{
		Name:                  "people sync",
		SourceRef:             "people",
		SourceType:            models.ProviderTypeMemory,
		TargetRef:             "contacts",
		TargetType:            "flaky",
		SourceTargetMappingID: &mapping.ID,
	})
	require.NoError(t, err)
	f.seedPeople(1)
	svc := f.engine(t, Config{})
	ctx := context.Background()

	runLog, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, runLog.ResultParsed.Failed)

	// No hash was committed, so the retry isn't short-circuited.
	contract := f.contract(t, sync.ID, "p-00")
	assert.Empty(t, contract.OriginHash)

	flaky.failWrites = false
	second, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, second.ResultParsed.Created)
	assert.Equal(t, 1, f.mem.Len("contacts"))
}

func TestFailedDeleteLeavesTombstoneAndRetries(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	flaky := &flakyProvider{Memory: f.mem}
	f.registry.Register("flaky", flaky)
	mapping := f.personMapping(t)
	sync, err := f.syncs.CreateSynchronization(context.Background(), synchronizations.CreateSynchronizationOptions{
		Name:                  "people sync",
		SourceRef:             "people",
		SourceType:            models.ProviderTypeMemory,
		TargetRef:             "contacts",
		TargetType:            "flaky",
		SourceTargetMappingID: &mapping.ID,
	})
	require.NoError(t, err)
	f.seedPeople(3)
	svc := f.engine(t, Config{})
	ctx := context.Background()

	_, err = svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)

	f.mem.Remove("people", "p-01")
	flaky.failDeletes = true

	runLog, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, runLog.ResultParsed.Failed)
	assert.Zero(t, runLog.ResultParsed.Deleted)

	tombstone := f.contract(t, sync.ID, "p-01")
	assert.Equal(t, models.ContractActionDeleteFailed, tombstone.TargetLastAction)
	assert.Equal(t, 3, f.mem.Len("contacts"))

	flaky.failDeletes = false
	third, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, third.ResultParsed.Deleted)
	assert.Equal(t, 2, f.mem.Len("contacts"))

	listed, err := f.contracts.ListContracts(ctx, contracts.ListContractsOptions{SynchronizationID: &sync.ID})
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestReconcileOne(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	mapping := f.personMapping(t)
	sync := f.createSync(t, &mapping.ID, "")
	f.mem.Seed("people", "p-00", map[string]interface{}{
		"name":  "person 00",
		"email": "p-00@example.com",
	})
	svc := f.engine(t, Config{})
	ctx := context.Background()

	entry, err := svc.ReconcileOne(ctx, sync.ID, "p-00", MutationCreate, Options{})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.ContractActionCreate, entry.TargetResult)
	assert.Equal(t, 1, f.mem.Len("contacts"))

	// Unchanged object short-circuits.
	entry, err = svc.ReconcileOne(ctx, sync.ID, "p-00", MutationUpdate, Options{})
	require.NoError(t, err)
	assert.Equal(t, models.ContractActionSkip, entry.TargetResult)

	f.mem.Seed("people", "p-00", map[string]interface{}{
		"name":  "person 00 renamed",
		"email": "p-00@example.com",
	})
	entry, err = svc.ReconcileOne(ctx, sync.ID, "p-00", MutationUpdate, Options{})
	require.NoError(t, err)
	assert.Equal(t, models.ContractActionUpdate, entry.TargetResult)

	entry, err = svc.ReconcileOne(ctx, sync.ID, "p-00", MutationDelete, Options{})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.ContractActionDelete, entry.TargetResult)
	assert.Zero(t, f.mem.Len("contacts"))

	// Deleting an origin with no contract is a no-op success.
	entry, err = svc.ReconcileOne(ctx, sync.ID, "never-seen", MutationDelete, Options{})
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestReconcileOneDeletesWhenSourceObjectIsGone(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	mapping := f.personMapping(t)
	sync := f.createSync(t, &mapping.ID, "")
	f.seedPeople(1)
	svc := f.engine(t, Config{})
	ctx := context.Background()

	_, err := svc.ReconcileOne(ctx, sync.ID, "p-00", MutationCreate, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, f.mem.Len("contacts"))

	// The event said update, but the object has since vanished from the
	// source; converge by deleting.
	f.mem.Remove("people", "p-00")
	entry, err := svc.ReconcileOne(ctx, sync.ID, "p-00", MutationUpdate, Options{})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.ContractActionDelete, entry.TargetResult)
	assert.Zero(t, f.mem.Len("contacts"))
}

func TestWorkerPoolProcessesWholePage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	mapping := f.personMapping(t)
	sync := f.createSync(t, &mapping.ID, "")
	f.seedPeople(8)
	svc := f.engine(t, Config{WorkerProcesses: 4})
	ctx := context.Background()

	runLog, err := svc.ReconcileAll(ctx, sync.ID, Options{})
	require.NoError(t, err)

	assert.Equal(t, 8, runLog.ResultParsed.Created)
	assert.Equal(t, 8, f.mem.Len("contacts"))
}
