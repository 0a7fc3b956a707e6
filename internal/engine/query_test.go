package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racecal-backend/internal/apperr"
	"racecal-backend/internal/config"
	"racecal-backend/internal/engine"
	"racecal-backend/internal/filter"
	"racecal-backend/internal/logging"
	"racecal-backend/internal/metadata"
)

func TestQueryDefaultOrderAndDisplayColumns(t *testing.T) {
	eng, s := testEngine(t)
	seedCalendar(t, s)

	events, err := eng.Query(context.Background(), "event", filter.Expression{}, 0)
	require.NoError(t, err)
	// start_date descending
	assert.Equal(t, []string{"ev-1", "ev-3", "ev-2"}, recordIDs(events))

	oslo := events[0]
	assert.Equal(t, "Nordic Runs", oslo["organizer_name"])
	assert.Equal(t, "2026-09-20", oslo["start_date"])
	assert.Equal(t, true, oslo["featured"])
	assert.Equal(t, []string{"ser-1"}, oslo["series"])
	assert.Equal(t, []string{}, events[1]["series"])

	comps, err := eng.Query(context.Background(), "competition", filter.Expression{}, 0)
	require.NoError(t, err)
	// name ascending
	assert.Equal(t, []string{"c-3", "c-2", "c-1", "c-4", "c-5"}, recordIDs(comps))
	assert.Equal(t, "Oslo Marathon", comps[1]["event_name"])
}

func TestQueryFiltersCaseInsensitively(t *testing.T) {
	eng, s := testEngine(t)
	seedCalendar(t, s)

	got, err := eng.Query(context.Background(), "event", filter.All(
		filter.Where("city", filter.OpEquals, filter.String("OSLO")),
	), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ev-1"}, recordIDs(got))

	got, err = eng.Query(context.Background(), "event", filter.All(
		filter.Where("name", filter.OpContains, filter.String("marATHON")),
	), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ev-1"}, recordIDs(got))
}

func TestQueryMatchesEnumsCaseInsensitively(t *testing.T) {
	eng, s := testEngine(t)
	seedCalendar(t, s)
	ctx := context.Background()

	cases := []struct {
		name   string
		entity string
		expr   filter.Expression
		want   []string
	}{
		{"equals", "event",
			filter.All(filter.Where("status", filter.OpEquals, filter.String("Published"))),
			[]string{"ev-1", "ev-3"}},
		{"not_equals", "event",
			filter.All(filter.Where("status", filter.OpNotEquals, filter.String("DRAFT"))),
			[]string{"ev-1", "ev-3"}},
		{"in", "competition",
			filter.All(filter.Where("sport", filter.OpIn, filter.Strings("Trail"))),
			[]string{"c-4", "c-5"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := eng.Query(ctx, tc.entity, tc.expr, 0)
			require.NoError(t, err)
			assert.Equal(t, tc.want, recordIDs(got))
		})
	}
}

func TestQueryOperators(t *testing.T) {
	eng, s := testEngine(t)
	seedCalendar(t, s)
	ctx := context.Background()

	cases := []struct {
		name   string
		entity string
		expr   filter.Expression
		want   []string
	}{
		{"number greater_than", "competition",
			filter.All(filter.Where("distance_km", filter.OpGreaterThan, filter.Number(21))),
			[]string{"c-2", "c-1", "c-4"}},
		{"date less_than", "event",
			filter.All(filter.Where("start_date", filter.OpLessThan, filter.String("2026-08-01"))),
			[]string{"ev-3", "ev-2"}},
		{"enum in", "competition",
			filter.All(filter.Where("sport", filter.OpIn, filter.Strings("trail"))),
			[]string{"c-4", "c-5"}},
		{"or logic", "competition",
			filter.Any(
				filter.Where("slug", filter.OpEquals, filter.String("bergen-10k")),
				filter.Where("slug", filter.OpEquals, filter.String("zermatt-sky")),
			),
			[]string{"c-3", "c-4"}},
		{"relation one", "competition",
			filter.All(filter.Where("event_id", filter.OpEquals, filter.String("ev-3"))),
			[]string{"c-4", "c-5"}},
		{"many equals", "event",
			filter.All(filter.Where("series", filter.OpEquals, filter.String("ser-1"))),
			[]string{"ev-1", "ev-2"}},
		{"many not_equals", "event",
			filter.All(filter.Where("series", filter.OpNotEquals, filter.String("ser-1"))),
			[]string{"ev-3"}},
		{"many is_null", "event",
			filter.All(filter.Where("series", filter.OpIsNull, filter.Null())),
			[]string{"ev-3"}},
		{"many is_not_null", "event",
			filter.All(filter.Where("series", filter.OpIsNotNull, filter.Null())),
			[]string{"ev-1", "ev-2"}},
		{"many in", "event",
			filter.All(filter.Where("series", filter.OpIn, filter.Strings("ser-2", "ser-1"))),
			[]string{"ev-1", "ev-2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := eng.Query(ctx, tc.entity, tc.expr, 0)
			require.NoError(t, err)
			assert.Equal(t, tc.want, recordIDs(got))
		})
	}
}

func TestQueryLimits(t *testing.T) {
	s := testStore(t)
	seedCalendar(t, s)
	eng := engine.New(s, metadata.MustDefault(), config.EngineConfig{DefaultQueryLimit: 2, MaxQueryLimit: 3}, logging.Nop())
	ctx := context.Background()

	got, err := eng.Query(ctx, "competition", filter.Expression{}, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = eng.Query(ctx, "competition", filter.Expression{}, 50)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestQueryErrors(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	_, err := eng.Query(ctx, "venue", filter.Expression{}, 0)
	assert.True(t, errors.Is(err, apperr.ErrUnknownEntityType))

	_, err = eng.Query(ctx, "organizer", filter.All(filter.Where("website", filter.OpContains, filter.String("x"))), 0)
	assert.True(t, errors.Is(err, apperr.ErrInvalidFilterField))
}

func TestDescribeEntities(t *testing.T) {
	eng, _ := testEngine(t)
	entities := eng.DescribeEntities()
	require.Len(t, entities, 7)
	assert.Equal(t, metadata.EntityEvent, entities[0].Type)
}
