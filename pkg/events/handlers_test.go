package events

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncbridge/syncbridge/pkg/binder"
	"github.com/syncbridge/syncbridge/pkg/errcodes"
	"github.com/syncbridge/syncbridge/pkg/mappings"
	"github.com/syncbridge/syncbridge/pkg/migrations"
	"github.com/syncbridge/syncbridge/pkg/models"
	"github.com/syncbridge/syncbridge/pkg/providers"
	"github.com/syncbridge/syncbridge/pkg/reconcile"
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

type testEnv struct {
	db  *bun.DB
	mem *providers.Memory
	h   *handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newTestDB(t)
	mem := providers.NewMemory(10)
	registry := providers.NewRegistry()
	registry.Register(models.ProviderTypeMemory, mem)

	logs := synclogs.NewService(db, time.Hour, 4096)
	reconcileService, err := reconcile.NewService(db, registry, logs, reconcile.Config{})
	require.NoError(t, err)

	return &testEnv{
		db:  db,
		mem: mem,
		h: &handler{
			synchronizationsService: synchronizations.NewService(db),
			reconcileService:        reconcileService,
			log:                     logger.New(),
		},
	}
}

func (env *testEnv) createSync(t *testing.T, registerRef, schemaRef string) *models.Synchronization {
	t.Helper()

	mapping, err := mappings.NewService(env.db).CreateMapping(context.Background(), mappings.CreateMappingOptions{
		Name:  "contact mapping",
		Pairs: []models.MappingPair{{Source: "name", Target: "full_name"}},
	})
	require.NoError(t, err)

	sync, err := env.h.synchronizationsService.CreateSynchronization(context.Background(), synchronizations.CreateSynchronizationOptions{
		Name:                  "contact sync",
		SourceRef:             "people",
		SourceType:            models.ProviderTypeMemory,
		TargetRef:             "contacts",
		TargetType:            models.ProviderTypeMemory,
		RegisterRef:           registerRef,
		SchemaRef:             schemaRef,
		SourceTargetMappingID: &mapping.ID,
	})
	require.NoError(t, err)
	return sync
}

func newEventContext(t *testing.T, payload string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	b, err := binder.New()
	require.NoError(t, err)
	e.Binder = b
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rr := httptest.NewRecorder()
	return e.NewContext(req, rr), rr
}

func decodeResults(t *testing.T, rr *httptest.ResponseRecorder) []eventResult {
	t.Helper()

	body := struct {
		Results []eventResult `json:"results"`
	}{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.Results
}

func TestReceiveReconcilesMatchingSynchronizations(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sync := env.createSync(t, "crm", "person")
	env.createSync(t, "crm", "company")
	env.mem.Seed("people", "p-1", map[string]interface{}{"name": "Ada"})

	c, rr := newEventContext(t, `{"register_ref":"crm","schema_ref":"person","object_id":"p-1","mutation":"create"}`)
	require.NoError(t, env.h.receive(c))
	require.Equal(t, http.StatusOK, rr.Code)

	results := decodeResults(t, rr)
	require.Len(t, results, 1)
	assert.Equal(t, sync.ID, results[0].SynchronizationID)
	assert.Equal(t, models.ContractActionCreate, results[0].Result)
	assert.Empty(t, results[0].Error)
	assert.Equal(t, 1, env.mem.Len("contacts"))
}

func TestReceiveWithNoMatchesIsAnEmptySuccess(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.createSync(t, "crm", "person")

	c, rr := newEventContext(t, `{"register_ref":"billing","schema_ref":"invoice","object_id":"i-1","mutation":"update"}`)
	require.NoError(t, env.h.receive(c))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decodeResults(t, rr))
}

func TestReceiveDeleteMutation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sync := env.createSync(t, "crm", "person")
	env.mem.Seed("people", "p-1", map[string]interface{}{"name": "Ada"})

	c, rr := newEventContext(t, `{"register_ref":"crm","schema_ref":"person","object_id":"p-1","mutation":"create"}`)
	require.NoError(t, env.h.receive(c))
	require.Equal(t, 1, env.mem.Len("contacts"))

	c, rr = newEventContext(t, `{"register_ref":"crm","schema_ref":"person","object_id":"p-1","mutation":"delete"}`)
	require.NoError(t, env.h.receive(c))

	results := decodeResults(t, rr)
	require.Len(t, results, 1)
	assert.Equal(t, sync.ID, results[0].SynchronizationID)
	assert.Equal(t, models.ContractActionDelete, results[0].Result)
	assert.Zero(t, env.mem.Len("contacts"))

	// Deleting an object no synchronization ever saw is still a success.
	c, rr = newEventContext(t, `{"register_ref":"crm","schema_ref":"person","object_id":"ghost","mutation":"delete"}`)
	require.NoError(t, env.h.receive(c))
	results = decodeResults(t, rr)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Error)
}

func TestReceiveRejectsUnknownMutation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	c, _ := newEventContext(t, `{"register_ref":"crm","schema_ref":"person","object_id":"p-1","mutation":"upsert"}`)
	err := env.h.receive(c)
	require.Error(t, err)
}

func TestReceiveIsolatesPerSynchronizationFailures(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	healthy := env.createSync(t, "crm", "person")

	// Same source, but a provider type nothing registered.
	broken, err := env.h.synchronizationsService.CreateSynchronization(context.Background(), synchronizations.CreateSynchronizationOptions{
		Name:        "broken sync",
		SourceRef:   "people",
		SourceType:  "http",
		TargetRef:   "contacts",
		TargetType:  "http",
		RegisterRef: "crm",
		SchemaRef:   "person",
	})
	require.NoError(t, err)

	env.mem.Seed("people", "p-1", map[string]interface{}{"name": "Ada"})

	c, rr := newEventContext(t, `{"register_ref":"crm","schema_ref":"person","object_id":"p-1","mutation":"create"}`)
	require.NoError(t, env.h.receive(c))
	require.Equal(t, http.StatusOK, rr.Code)

	results := decodeResults(t, rr)
	require.Len(t, results, 2)

	byID := map[int]eventResult{}
	for _, result := range results {
		byID[result.SynchronizationID] = result
	}
	assert.Equal(t, models.ContractActionCreate, byID[healthy.ID].Result)
	assert.NotEmpty(t, byID[broken.ID].Error)
	assert.Equal(t, 1, env.mem.Len("contacts"))
}
