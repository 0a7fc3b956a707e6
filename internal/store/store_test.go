package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeValueKeepsText(t *testing.T) {
	assert.Equal(t, "2026-01-02 10:00:00", normalizeValue([]byte("2026-01-02 10:00:00")))
	assert.Equal(t, "2026-01-02T10:00:00Z", normalizeValue("2026-01-02T10:00:00Z"))
	assert.Nil(t, normalizeValue(nil))
}

func TestNormalizeTimestamps(t *testing.T) {
	created := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	rows := []map[string]any{{
		"name":       "2026-01-02 10:00:00",
		"created_at": "2026-01-02 10:00:00",
		"updated_at": "2026-01-02T10:00:00Z",
	}, {
		"created_at": created,
		"updated_at": nil,
	}}

	NormalizeTimestamps(rows, []string{"created_at", "updated_at"})

	assert.Equal(t, "2026-01-02 10:00:00", rows[0]["name"])
	assert.True(t, created.Equal(rows[0]["created_at"].(time.Time)))
	assert.True(t, created.Equal(rows[0]["updated_at"].(time.Time)))
	assert.Equal(t, created, rows[1]["created_at"])
	assert.Nil(t, rows[1]["updated_at"])
}
