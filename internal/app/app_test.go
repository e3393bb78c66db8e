package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logforge/internal/batch"
	"logforge/internal/config"
	ingestdomain "logforge/internal/ingest/core/domain"
	"logforge/internal/logging"
	metricsHttp "logforge/internal/metrics/adapters/http/fiber"
	"logforge/internal/pipeline"
	"logforge/internal/platform/memstore"
	"logforge/internal/platform/money"
	tenantdomain "logforge/internal/tenants/core/domain"
)

// scriptedSource serves canned logs per tenant key and can be reloaded
// between runs.
type scriptedSource struct {
	mu    sync.Mutex
	logs  map[string][]ingestdomain.FetchedLog
	fails map[string]error
}

func (s *scriptedSource) Fetch(ctx context.Context, tenant tenantdomain.Tenant, window batch.Window) ([]ingestdomain.FetchedLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fails[tenant.Key()]; err != nil {
		return nil, err
	}
	return s.logs[tenant.Key()], nil
}

func (s *scriptedSource) set(key string, logs ...ingestdomain.FetchedLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logs == nil {
		s.logs = map[string][]ingestdomain.FetchedLog{}
	}
	s.logs[key] = logs
}

func testConfig() *config.Config {
	return &config.Config{
		Store: config.StoreConfig{Driver: config.StoreDriverMemory},
		Fetch: config.FetchConfig{
			GridSize:       2,
			MaxConcurrent:  2,
			Timeout:        time.Second,
			RetryAttempts:  1,
			ConnectTimeout: time.Second,
			FailurePolicy:  "isolate",
		},
		Normalize: config.NormalizeConfig{ChunkSize: 2, SkipLimit: 10},
		Aggregate: config.AggregateConfig{ChunkSize: 1},
	}
}

func logAt(ts, payload string) ingestdomain.FetchedLog {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return ingestdomain.FetchedLog{OccurredAt: t, Payload: payload}
}

var runWindow = pipeline.RunParams{From: "2025-01-01T00:00:00Z", To: "2025-01-03T00:00:00Z"}

func newApp(t *testing.T, cfg *config.Config, store *memstore.Store, source *scriptedSource) *App {
	t.Helper()
	a, err := New(cfg, store, source, nil, logging.Discard())
	require.NoError(t, err)
	return a
}

func metricRows(store *memstore.Store) map[string]string {
	out := map[string]string{}
	for _, m := range store.Metrics() {
		out[m.TenantID+"|"+m.EventDate.Format("2006-01-02")+"|"+m.EventType] =
			money.String(m.AmountSum) + "/" + strconv.FormatInt(m.EventCount, 10)
	}
	return out
}

func TestPipeline_EndToEndReaggregation(t *testing.T) {
	store := memstore.New()
	t1 := store.AddTenant(tenantdomain.Tenant{Name: "t1", Status: tenantdomain.StatusActive, ExternalAPIBaseURL: "http://t1"})
	source := &scriptedSource{}
	source.set(t1.Key(),
		logAt("2025-01-01T09:00:00Z", `{"eventType":"LOGIN","eventTime":"2025-01-01T09:00:00Z","userId":"u1"}`),
		logAt("2025-01-01T10:00:00Z", `{"eventType":"LOGIN","eventTime":"2025-01-01T10:00:00Z","userId":"u2"}`),
		logAt("2025-01-01T11:00:00Z", `{"eventType":"PURCHASE","eventTime":"2025-01-01T11:00:00Z","amount":100.00}`),
	)
	a := newApp(t, testConfig(), store, source)

	report := a.Runner.Run(context.Background(), runWindow)
	require.NoError(t, report.Err)
	assert.Equal(t, pipeline.StatusCompleted, report.Status)
	require.Len(t, report.Stages, 3)
	assert.Equal(t, int64(3), report.Stages[0].Written)
	assert.Equal(t, int64(3), report.Stages[1].Written)

	rows := store.Metrics()
	require.Len(t, rows, 2)
	assert.Equal(t, "LOGIN", rows[0].EventType)
	assert.Equal(t, int64(2), rows[0].EventCount)
	assert.Equal(t, "0.00", money.String(rows[0].AmountSum))
	assert.Equal(t, "PURCHASE", rows[1].EventType)
	assert.Equal(t, int64(1), rows[1].EventCount)
	assert.Equal(t, "100.00", money.String(rows[1].AmountSum))
	loginBefore := rows[0]

	source.set(t1.Key(),
		logAt("2025-01-01T12:00:00Z", `{"eventType":"PURCHASE","eventTime":"2025-01-01T12:00:00Z","amount":"20.00"}`),
	)
	report = a.Runner.Run(context.Background(), runWindow)
	require.NoError(t, report.Err)
	assert.Equal(t, int64(1), report.Stages[1].Written, "already normalized raw logs are not inserted twice")

	rows = store.Metrics()
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[1].EventCount)
	assert.Equal(t, "120.00", money.String(rows[1].AmountSum))
	assert.Equal(t, loginBefore.ID, rows[0].ID)
	assert.Equal(t, loginBefore.EventCount, rows[0].EventCount)
	assert.True(t, money.Equal(loginBefore.AmountSum, rows[0].AmountSum))
}

func TestPipeline_IdempotentAggregation(t *testing.T) {
	store := memstore.New()
	t1 := store.AddTenant(tenantdomain.Tenant{Name: "t1", Status: tenantdomain.StatusActive})
	source := &scriptedSource{}
	source.set(t1.Key(),
		logAt("2025-01-01T09:00:00Z", `{"eventType":"PURCHASE","amount":5.5}`),
		logAt("2025-01-02T09:00:00Z", `{"eventType":"PURCHASE","amount":1}`),
	)
	a := newApp(t, testConfig(), store, source)

	require.NoError(t, a.Runner.Run(context.Background(), runWindow).Err)
	first := metricRows(store)
	stored := store.Metrics()

	again := a.Runner.Run(context.Background(), pipeline.RunParams{
		From:   runWindow.From,
		To:     runWindow.To,
		Stages: []string{batch.StageAggregate},
	})
	require.NoError(t, again.Err)
	assert.Equal(t, first, metricRows(store))
	assert.Len(t, first, 2)
	assert.Equal(t, stored, store.Metrics(), "unchanged metrics must keep their audit timestamps")
}

func TestPipeline_NoActiveTenantsIsEmptySuccess(t *testing.T) {
	store := memstore.New()
	store.AddTenant(tenantdomain.Tenant{Name: "off", Status: tenantdomain.StatusInactive})
	a := newApp(t, testConfig(), store, &scriptedSource{})

	report := a.Runner.Run(context.Background(), runWindow)

	require.NoError(t, report.Err)
	assert.Equal(t, pipeline.StatusCompleted, report.Status)
	for _, s := range report.Stages {
		assert.Zero(t, s.Read, s.Stage)
		assert.Zero(t, s.Written, s.Stage)
	}
	assert.Empty(t, store.RawLogs())
}

func TestPipeline_MalformedPayloadsAreDeadLettered(t *testing.T) {
	store := memstore.New()
	t1 := store.AddTenant(tenantdomain.Tenant{Name: "t1", Status: tenantdomain.StatusActive})
	source := &scriptedSource{}
	source.set(t1.Key(),
		logAt("2025-01-01T09:00:00Z", `{"eventType":"LOGIN"}`),
		logAt("2025-01-01T10:00:00Z", `not json`),
		logAt("2025-01-01T11:00:00Z", `{"userId":"u1"}`),
		logAt("2025-01-01T12:00:00Z", `{"eventType":"LOGOUT"}`),
	)
	a := newApp(t, testConfig(), store, source)

	report := a.Runner.Run(context.Background(), runWindow)

	require.NoError(t, report.Err)
	assert.Equal(t, pipeline.StatusCompletedWithSkips, report.Status)
	normalize := report.Stages[1]
	assert.Equal(t, int64(4), normalize.Read)
	assert.Equal(t, int64(2), normalize.Written)
	assert.Equal(t, int64(2), normalize.Skipped)
	assert.Len(t, store.Events(), 2)
	assert.Len(t, store.FailedLogs(), 2)

	rerun := a.Runner.Run(context.Background(), pipeline.RunParams{
		From:   runWindow.From,
		To:     runWindow.To,
		Stages: []string{batch.StageNormalize},
	})
	require.NoError(t, rerun.Err)
	assert.Len(t, store.Events(), 2)
	assert.Len(t, store.FailedLogs(), 2, "re-normalizing must not duplicate dead letters")
}

func TestPipeline_IsolatedTenantFailure(t *testing.T) {
	store := memstore.New()
	good := store.AddTenant(tenantdomain.Tenant{Name: "good", Status: tenantdomain.StatusActive})
	bad := store.AddTenant(tenantdomain.Tenant{Name: "bad", Status: tenantdomain.StatusActive})
	source := &scriptedSource{fails: map[string]error{bad.Key(): errors.New("503 from upstream")}}
	source.set(good.Key(), logAt("2025-01-01T09:00:00Z", `{"eventType":"LOGIN"}`))
	a := newApp(t, testConfig(), store, source)

	report := a.Runner.Run(context.Background(), runWindow)

	assert.Equal(t, pipeline.StatusFailed, report.Status)
	require.Len(t, report.Stages, 3)
	assert.Equal(t, int64(1), report.Stages[0].Failures)
	rows := store.Metrics()
	require.Len(t, rows, 1)
	assert.Equal(t, good.Key(), rows[0].TenantID)
}

func TestHTTPServer_RunThenQuery(t *testing.T) {
	store := memstore.New()
	t1 := store.AddTenant(tenantdomain.Tenant{Name: "t1", Status: tenantdomain.StatusActive})
	source := &scriptedSource{}
	source.set(t1.Key(),
		logAt("2025-01-01T09:00:00Z", `{"eventType":"PURCHASE","amount":"12.345"}`),
	)
	server := NewHTTPServer(newApp(t, testConfig(), store, source))

	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(`{"from":"2025-01-01T00:00:00Z","to":"2025-01-03T00:00:00Z"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := server.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = server.Test(httptest.NewRequest(http.MethodGet, "/tenants/"+t1.Key()+"/metrics?from=2025-01-01&to=2025-01-01", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page metricsHttp.MetricsPageResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	require.Len(t, page.Content, 1)
	assert.Equal(t, "12.35", page.Content[0].AmountSum)
	assert.Equal(t, int64(1), page.TotalElements)

	resp, err = server.Test(httptest.NewRequest(http.MethodGet, "/tenants/999/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = server.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
