package synchronizations

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncbridge/syncbridge/pkg/migrations"
	"github.com/syncbridge/syncbridge/pkg/models"
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

func createTestSynchronization(t *testing.T, svc *Service) *models.Synchronization {
	t.Helper()

	sync, err := svc.CreateSynchronization(context.Background(), CreateSynchronizationOptions{
		Name:        "people-to-contacts",
		SourceRef:   "people",
		SourceType:  models.ProviderTypeMemory,
		TargetRef:   "contacts",
		TargetType:  models.ProviderTypeMemory,
		RegisterRef: "crm",
		SchemaRef:   "person",
	})
	require.NoError(t, err)
	return sync
}

func TestCreateSynchronizationStartsAtVersionOne(t *testing.T) {
	t.Parallel()

	svc := NewService(newTestDB(t))
	sync := createTestSynchronization(t, svc)

	assert.Equal(t, 1, sync.Version)
	assert.Equal(t, 0, sync.CurrentPage)
}

func TestUpdateSynchronizationBumpsVersion(t *testing.T) {
	t.Parallel()

	svc := NewService(newTestDB(t))
	ctx := context.Background()
	sync := createTestSynchronization(t, svc)

	sync.Name = "renamed"
	require.NoError(t, svc.UpdateSynchronization(ctx, sync, UpdateSynchronizationOptions{Columns: []string{"name"}}))

	reloaded, err := svc.RetrieveSynchronization(ctx, RetrieveSynchronizationOptions{ID: &sync.ID})
	require.NoError(t, err)
	assert.Equal(t, "renamed", reloaded.Name)
	assert.Equal(t, 2, reloaded.Version)
}

func TestRetrieveSynchronizationWithRelations(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	mapping := &models.Mapping{Name: "m", Pairs: `[{"source":"a","target":"b"}]`}
	_, err := db.NewInsert().Model(mapping).Exec(ctx)
	require.NoError(t, err)

	sync := createTestSynchronization(t, svc)
	sync.SourceTargetMappingID = &mapping.ID
	require.NoError(t, svc.UpdateSynchronization(ctx, sync, UpdateSynchronizationOptions{Columns: []string{"source_target_mapping_id"}}))

	_, err = svc.CreateRule(ctx, CreateRuleOptions{
		SynchronizationID: sync.ID,
		Timing:            models.RuleTimingBefore,
		Type:              models.RuleTypeScript,
		Configuration:     map[string]interface{}{"script": "context.x = 1;"},
		Order:             2,
	})
	require.NoError(t, err)
	_, err = svc.CreateRule(ctx, CreateRuleOptions{
		SynchronizationID: sync.ID,
		Timing:            models.RuleTimingBefore,
		Type:              models.RuleTypeScript,
		Configuration:     map[string]interface{}{"script": "context.y = 2;"},
		Order:             1,
	})
	require.NoError(t, err)

	loaded, err := svc.RetrieveSynchronization(ctx, RetrieveSynchronizationOptions{ID: &sync.ID, WithRelations: true})
	require.NoError(t, err)
	require.NotNil(t, loaded.SourceTargetMapping)
	require.Len(t, loaded.SourceTargetMapping.PairsParsed, 1)
	require.Len(t, loaded.Rules, 2)
	assert.Equal(t, 1, loaded.Rules[0].Order)
	assert.Equal(t, "context.y = 2;", loaded.Rules[0].ConfigurationParsed["script"])
}

func TestFindBySource(t *testing.T) {
	t.Parallel()

	svc := NewService(newTestDB(t))
	ctx := context.Background()

	sync := createTestSynchronization(t, svc)

	_, err := svc.CreateSynchronization(ctx, CreateSynchronizationOptions{
		Name:        "other",
		SourceRef:   "animals",
		SourceType:  models.ProviderTypeMemory,
		TargetRef:   "zoo",
		TargetType:  models.ProviderTypeMemory,
		RegisterRef: "farm",
		SchemaRef:   "animal",
	})
	require.NoError(t, err)

	matches, err := svc.FindBySource(ctx, "crm", "person")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, sync.ID, matches[0].ID)

	none, err := svc.FindBySource(ctx, "crm", "company")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCursorAdvanceAndReset(t *testing.T) {
	t.Parallel()

	svc := NewService(newTestDB(t))
	ctx := context.Background()
	sync := createTestSynchronization(t, svc)

	require.NoError(t, svc.AdvanceCursor(ctx, sync.ID, 3))

	reloaded, err := svc.RetrieveSynchronization(ctx, RetrieveSynchronizationOptions{ID: &sync.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.CurrentPage)
	// Cursor writes are bookkeeping, not configuration changes.
	assert.Equal(t, 1, reloaded.Version)

	require.NoError(t, svc.ResetCursor(ctx, sync.ID))

	reloaded, err = svc.RetrieveSynchronization(ctx, RetrieveSynchronizationOptions{ID: &sync.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.CurrentPage)
}

func TestDeleteSynchronizationCascades(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	sync := createTestSynchronization(t, svc)

	_, err := svc.CreateRule(ctx, CreateRuleOptions{
		SynchronizationID: sync.ID,
		Timing:            models.RuleTimingBefore,
		Type:              models.RuleTypeError,
		Configuration:     map[string]interface{}{},
	})
	require.NoError(t, err)

	contract := &models.SynchronizationContract{SynchronizationID: sync.ID, OriginID: "origin-1"}
	_, err = db.NewInsert().Model(contract).Exec(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSynchronization(ctx, sync.ID))

	_, err = svc.RetrieveSynchronization(ctx, RetrieveSynchronizationOptions{ID: &sync.ID})
	require.Error(t, err)

	rules, err := svc.ListRules(ctx, sync.ID)
	require.NoError(t, err)
	assert.Empty(t, rules)

	count, err := db.NewSelect().Model((*models.SynchronizationContract)(nil)).Where("synchronization_id = ?", sync.ID).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRuleCRUD(t *testing.T) {
	t.Parallel()

	svc := NewService(newTestDB(t))
	ctx := context.Background()
	sync := createTestSynchronization(t, svc)

	rule, err := svc.CreateRule(ctx, CreateRuleOptions{
		SynchronizationID: sync.ID,
		Name:              "reject-minors",
		Timing:            models.RuleTimingBefore,
		Type:              models.RuleTypeError,
		Condition:         "age < 18",
		Configuration:     map[string]interface{}{"message": "too young"},
		Order:             1,
	})
	require.NoError(t, err)
	require.NotZero(t, rule.ID)

	loaded, err := svc.RetrieveRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "too young", loaded.ConfigurationParsed["message"])

	loaded.ConfigurationParsed["message"] = "underage"
	require.NoError(t, svc.UpdateRule(ctx, loaded, UpdateRuleOptions{Columns: []string{"configuration"}}))

	reloaded, err := svc.RetrieveRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "underage", reloaded.ConfigurationParsed["message"])

	require.NoError(t, svc.DeleteRule(ctx, rule.ID))
	_, err = svc.RetrieveRule(ctx, rule.ID)
	require.Error(t, err)
}
