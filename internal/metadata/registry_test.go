package metadata

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racecal-backend/internal/apperr"
)

func TestCatalog_BuildsRegistry(t *testing.T) {
	reg, err := NewRegistry(Catalog())
	require.NoError(t, err)

	all := reg.DescribeAll()
	require.Len(t, all, len(AllEntityTypes))
	for i, e := range all {
		assert.Equal(t, AllEntityTypes[i], e.Type)
		assert.NotEmpty(t, e.Table)
		assert.True(t, e.HasField(e.DisplayField), "%s display field", e.Type)
	}
}

func TestDescribe_UnknownEntityType(t *testing.T) {
	reg := MustDefault()

	_, err := reg.Describe("festival")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrUnknownEntityType))

	_, err = reg.IsFilterable("festival", "name")
	assert.True(t, errors.Is(err, apperr.ErrUnknownEntityType))
}

func TestDescribe_IsCaseInsensitive(t *testing.T) {
	reg := MustDefault()
	e, err := reg.Describe(" Competition ")
	require.NoError(t, err)
	assert.Equal(t, EntityCompetition, e.Type)
}

func TestFilterableAndEditable(t *testing.T) {
	reg := MustDefault()

	cases := []struct {
		entity, field        string
		filterable, editable bool
	}{
		{"event", "name", true, true},
		{"event", "slug", true, false},
		{"event", "id", true, false},
		{"event", "series", true, true},
		{"organizer", "website", false, true},
		{"edition", "competition_id", true, false},
		{"post", "body", false, true},
		{"post", "nonexistent", false, false},
	}
	for _, tc := range cases {
		f, err := reg.IsFilterable(tc.entity, tc.field)
		require.NoError(t, err)
		assert.Equal(t, tc.filterable, f, "%s.%s filterable", tc.entity, tc.field)

		e, err := reg.IsEditable(tc.entity, tc.field)
		require.NoError(t, err)
		assert.Equal(t, tc.editable, e, "%s.%s editable", tc.entity, tc.field)
	}
}

func TestNewRegistry_RejectsDanglingRelation(t *testing.T) {
	_, err := NewRegistry([]*Entity{{
		Type:  EntityEvent,
		Table: "events",
		Fields: []Field{
			{Name: PrimaryKey, Kind: KindString},
			{Name: "series", Kind: KindRelation, RelationTarget: EntitySeries, Multiplicity: Many},
		},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown entity")
}

func TestColumns_SkipManyRelations(t *testing.T) {
	reg := MustDefault()
	e, err := reg.Describe("event")
	require.NoError(t, err)

	cols := e.Columns()
	assert.Contains(t, cols, "organizer_id")
	assert.Contains(t, cols, "created_by")
	assert.NotContains(t, cols, "series")
	require.Len(t, e.ManyRelations(), 1)
	assert.Equal(t, "event_series", e.ManyRelations()[0].Join.Table)
}

func TestOrderSQL(t *testing.T) {
	reg := MustDefault()
	e, err := reg.Describe("edition")
	require.NoError(t, err)
	assert.Equal(t, "t.year DESC, t.id ASC", e.OrderSQL("t"))
}
