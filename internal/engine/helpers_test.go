package engine_test

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"racecal-backend/internal/config"
	"racecal-backend/internal/engine"
	"racecal-backend/internal/logging"
	"racecal-backend/internal/metadata"
	"racecal-backend/internal/store"
)

// testStore opens a fresh sqlite database with the full schema.
func testStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "racecal"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, store.NewMigrator(s).Migrate(ctx, metadata.MustDefault()))
	return s
}

func testEngine(t *testing.T) (*engine.Engine, *store.Store) {
	t.Helper()
	s := testStore(t)
	return engine.New(s, metadata.MustDefault(), config.DefaultEngine(), logging.Nop()), s
}

func insertRow(t *testing.T, s *store.Store, table string, values map[string]any) {
	t.Helper()
	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	pb := s.Dialect.NewParamBuilder()
	phs := make([]string, len(cols))
	for i, c := range cols {
		phs[i] = pb.Add(values[c])
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(phs, ", "))
	_, err := s.DB.ExecContext(context.Background(), stmt, pb.Params()...)
	require.NoError(t, err)
}

func exec(t *testing.T, s *store.Store, stmt string, args ...any) {
	t.Helper()
	_, err := s.DB.ExecContext(context.Background(), stmt, args...)
	require.NoError(t, err)
}

func countRows(t *testing.T, s *store.Store, table string) int {
	t.Helper()
	n, err := store.Count(context.Background(), s.DB, "SELECT COUNT(*) FROM "+table)
	require.NoError(t, err)
	return n
}

// seedCalendar loads a small calendar: two organizers, two series, three
// events (linked to series) and five competitions, two of them featured.
func seedCalendar(t *testing.T, s *store.Store) {
	t.Helper()
	insertRow(t, s, "organizers", map[string]any{"id": "org-1", "name": "Nordic Runs", "slug": "nordic-runs", "country": "NO", "verified": true})
	insertRow(t, s, "organizers", map[string]any{"id": "org-2", "name": "Alpine Events", "slug": "alpine-events", "country": "CH", "verified": false})

	insertRow(t, s, "series", map[string]any{"id": "ser-1", "name": "Nordic Cup", "slug": "nordic-cup", "active": true})
	insertRow(t, s, "series", map[string]any{"id": "ser-2", "name": "Ultra Tour", "slug": "ultra-tour", "active": false})

	insertRow(t, s, "events", map[string]any{"id": "ev-1", "name": "Oslo Marathon", "slug": "oslo-marathon", "city": "Oslo", "country": "NO",
		"status": "published", "featured": true, "start_date": "2026-09-20", "organizer_id": "org-1", "created_by": "seed"})
	insertRow(t, s, "events", map[string]any{"id": "ev-2", "name": "Bergen City Run", "slug": "bergen-city-run", "city": "Bergen", "country": "NO",
		"status": "draft", "featured": false, "start_date": "2026-05-02", "organizer_id": "org-1", "created_by": "seed"})
	insertRow(t, s, "events", map[string]any{"id": "ev-3", "name": "Zermatt Trail", "slug": "zermatt-trail", "city": "Zermatt", "country": "CH",
		"status": "published", "featured": false, "start_date": "2026-07-11", "organizer_id": "org-2", "created_by": "seed"})

	exec(t, s, "INSERT INTO event_series (event_id, series_id) VALUES ('ev-1', 'ser-1'), ('ev-2', 'ser-1')")

	insertRow(t, s, "competitions", map[string]any{"id": "c-1", "name": "Marathon", "slug": "oslo-marathon-42k", "sport": "running", "distance_km": 42.195, "featured": true, "event_id": "ev-1"})
	insertRow(t, s, "competitions", map[string]any{"id": "c-2", "name": "Half Marathon", "slug": "oslo-half", "sport": "running", "distance_km": 21.1, "featured": false, "event_id": "ev-1"})
	insertRow(t, s, "competitions", map[string]any{"id": "c-3", "name": "10K", "slug": "bergen-10k", "sport": "running", "distance_km": 10.0, "featured": false, "event_id": "ev-2"})
	insertRow(t, s, "competitions", map[string]any{"id": "c-4", "name": "Sky Race", "slug": "zermatt-sky", "sport": "trail", "distance_km": 33.0, "featured": true, "event_id": "ev-3"})
	insertRow(t, s, "competitions", map[string]any{"id": "c-5", "name": "Vertical", "slug": "zermatt-vertical", "sport": "trail", "distance_km": 5.0, "featured": false, "event_id": "ev-3"})
}

func recordIDs(records []engine.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r["id"].(string)
	}
	return out
}
