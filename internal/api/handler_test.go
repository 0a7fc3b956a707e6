package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racecal-backend/internal/apperr"
	"racecal-backend/internal/auth"
	"racecal-backend/internal/config"
	"racecal-backend/internal/engine"
	"racecal-backend/internal/instrument"
	"racecal-backend/internal/logging"
	"racecal-backend/internal/metadata"
	"racecal-backend/internal/store"
)

const secret = "api-test-secret"

type testServer struct {
	app     *fiber.App
	metrics *instrument.Metrics
	admin   string
	viewer  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "api"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	reg := metadata.MustDefault()
	require.NoError(t, store.NewMigrator(s).Migrate(ctx, reg))

	eng := engine.New(s, reg, config.DefaultEngine(), logging.Nop())
	seed := &engine.ImportBatch{EntityType: "series", Items: []map[string]any{
		{"id": "ser-1", "name": "Nordic Cup", "slug": "nordic-cup", "active": true},
		{"id": "ser-2", "name": "Ultra Tour", "slug": "ultra-tour", "active": false},
	}}
	_, err = eng.Reconcile(ctx, seed, "series", engine.ResolveSkip, false, engine.ImportOptions{})
	require.NoError(t, err)

	metrics := instrument.NewMetrics(prometheus.NewRegistry())
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Nop())})
	app.Use(Instrument(metrics))
	RegisterRoutes(app, NewHandler(eng, logging.Nop()), auth.AuthMiddleware(secret), auth.RequireAdmin())

	admin, err := auth.GenerateAccessToken("admin@racecal", []string{auth.RoleAdmin}, secret, time.Minute)
	require.NoError(t, err)
	viewer, err := auth.GenerateAccessToken("viewer@racecal", nil, secret, time.Minute)
	require.NoError(t, err)
	return &testServer{app: app, metrics: metrics, admin: admin, viewer: viewer}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

var inactive = map[string]any{
	"conditions": []any{map[string]any{"field": "active", "operator": "equals", "value": false}},
}

func TestEntities(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodGet, "/api/_meta/entities", ts.viewer, nil)
	require.Equal(t, http.StatusOK, status)
	entities := body["data"].([]any)
	require.Len(t, entities, 7)
	assert.Equal(t, "event", entities[0].(map[string]any)["entityType"])

	status, _ = ts.do(t, http.MethodGet, "/api/_meta/entities", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestQueryRoute(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodPost, "/api/series/query", ts.viewer, map[string]any{"filter": inactive})
	require.Equal(t, http.StatusOK, status)
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "ser-2", data[0].(map[string]any)["id"])

	status, body = ts.do(t, http.MethodPost, "/api/venue/query", ts.viewer, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, apperr.CodeUnknownEntityType, errorCode(body))

	status, body = ts.do(t, http.MethodPost, "/api/series/query", ts.viewer, map[string]any{
		"filter": map[string]any{"conditions": []any{map[string]any{"field": "description", "operator": "contains", "value": "x"}}},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, apperr.CodeInvalidFilterField, errorCode(body))
}

func TestBulkRoutes(t *testing.T) {
	ts := newTestServer(t)
	req := map[string]any{
		"filter":    inactive,
		"operation": map[string]any{"field": "active", "value": true},
	}

	status, body := ts.do(t, http.MethodPost, "/api/series/bulk/preview", ts.viewer, req)
	require.Equal(t, http.StatusOK, status)
	preview := body["data"].(map[string]any)
	assert.EqualValues(t, 1, preview["matchingCount"])

	status, body = ts.do(t, http.MethodPost, "/api/series/bulk/execute", ts.viewer, req)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, apperr.CodeForbidden, errorCode(body))

	status, body = ts.do(t, http.MethodPost, "/api/series/bulk/execute", ts.admin, map[string]any{
		"operation": map[string]any{"field": "active", "value": true},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, apperr.CodeEmptyFilterRejected, errorCode(body))

	status, body = ts.do(t, http.MethodPost, "/api/series/bulk/execute", ts.admin, req)
	require.Equal(t, http.StatusOK, status)
	result := body["data"].(map[string]any)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, []any{"ser-2"}, result["updatedIds"])
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.MutatedRecords.WithLabelValues("series", "scalar")))

	status, body = ts.do(t, http.MethodPost, "/api/series/bulk/disconnect", ts.admin, req)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, apperr.CodeTypeMismatch, errorCode(body))
}

func TestImportRoutes(t *testing.T) {
	ts := newTestServer(t)
	batch := map[string]any{
		"entityType":    "series",
		"schemaVersion": 1,
		"items": []any{
			map[string]any{"id": "ser-1", "name": "Nordic Cup", "slug": "nordic-cup"},
			map[string]any{"id": "ser-3", "name": "Coastal", "slug": "coastal"},
		},
	}

	status, body := ts.do(t, http.MethodPost, "/api/series/import/validate", ts.viewer, batch)
	require.Equal(t, http.StatusOK, status)
	report := body["data"].(map[string]any)
	assert.Equal(t, true, report["isValid"])
	assert.Len(t, report["conflicts"], 1)

	status, _ = ts.do(t, http.MethodPost, "/api/series/import/reconcile", ts.viewer, batch)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = ts.do(t, http.MethodPost, "/api/series/import/reconcile?policy=merge", ts.admin, batch)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, apperr.CodeInvalidBatch, errorCode(body))

	status, body = ts.do(t, http.MethodPost, "/api/series/import/reconcile?policy=update&dry_run=true", ts.admin, batch)
	require.Equal(t, http.StatusOK, status)
	dry := body["data"].(map[string]any)
	assert.Equal(t, true, dry["dryRun"])
	assert.Equal(t, map[string]any{"created": 1.0, "updated": 1.0, "skipped": 0.0, "errors": 0.0}, dry["summary"])

	status, body = ts.do(t, http.MethodPost, "/api/series/import/reconcile?policy=update", ts.admin, batch)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, dry["summary"], body["data"].(map[string]any)["summary"])

	status, body = ts.do(t, http.MethodPost, "/api/series/export", ts.viewer, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "series", body["entityType"])
	assert.EqualValues(t, 3, body["itemCount"])
}

func TestEventImportRecordsCaller(t *testing.T) {
	ts := newTestServer(t)
	batch := map[string]any{
		"entityType": "event",
		"items": []any{
			map[string]any{"id": "ev-1", "name": "Oslo Marathon", "slug": "oslo-marathon", "series": []any{"ser-1"}},
		},
	}

	status, body := ts.do(t, http.MethodPost, "/api/event/import/reconcile", ts.admin, batch)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["data"].(map[string]any)["summary"].(map[string]any)["created"])

	status, body = ts.do(t, http.MethodPost, "/api/event/query", ts.viewer, nil)
	require.Equal(t, http.StatusOK, status)
	ev := body["data"].([]any)[0].(map[string]any)
	assert.Equal(t, "admin@racecal", ev["created_by"])
	assert.Equal(t, []any{"ser-1"}, ev["series"])
}
