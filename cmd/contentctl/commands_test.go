package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racecal-backend/internal/engine"
)

// useSQLite points the configuration at a fresh sqlite file.
func useSQLite(t *testing.T) {
	t.Helper()
	t.Setenv("RACECAL_DATABASE_DRIVER", "sqlite")
	t.Setenv("RACECAL_DATABASE_PATH", t.TempDir())
	t.Setenv("RACECAL_DATABASE_NAME", "cli")
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", t.TempDir()}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

const organizers = `{
  "entityType": "organizer",
  "schemaVersion": 1,
  "items": [
    {"id": "org-1", "name": "Nordic Runs", "slug": "nordic-runs", "country": "NO", "verified": true},
    {"id": "org-2", "name": "Alpine Events", "slug": "alpine-events", "country": "CH"}
  ]
}`

func TestDescribe(t *testing.T) {
	out, err := run(t, "", "describe", "competition")
	require.NoError(t, err)
	assert.Contains(t, out, `"entityType": "competition"`)

	_, err = run(t, "", "describe", "venue")
	assert.Error(t, err)
}

func TestImportQueryExport(t *testing.T) {
	useSQLite(t)

	out, err := run(t, organizers, "import", "organizer", "-", "--dry-run")
	require.NoError(t, err)
	var dry engine.ExecutionResult
	require.NoError(t, json.Unmarshal([]byte(out), &dry))
	assert.True(t, dry.DryRun)
	assert.Equal(t, engine.Summary{Created: 2}, dry.Summary)

	_, err = run(t, organizers, "import", "organizer", "-")
	require.NoError(t, err)

	out, err = run(t, "", "query", "organizer", "--filter", `{"conditions":[{"field":"verified","operator":"equals","value":true}]}`)
	require.NoError(t, err)
	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "org-1", records[0]["id"])

	file := filepath.Join(t.TempDir(), "organizers.json")
	_, err = run(t, "", "export", "organizer", "-o", file)
	require.NoError(t, err)
	raw, err := os.ReadFile(file)
	require.NoError(t, err)
	var batch engine.ImportBatch
	require.NoError(t, json.Unmarshal(raw, &batch))
	assert.Equal(t, 2, batch.ItemCount)

	out, err = run(t, "", "import", "organizer", file, "--validate")
	require.NoError(t, err)
	var report engine.ValidationReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Len(t, report.Conflicts, 2)

	out, err = run(t, "", "import", "organizer", file, "--policy", "create_new")
	require.NoError(t, err)
	assert.Contains(t, out, `"created": 2`)
}

func TestImportReportsFailures(t *testing.T) {
	useSQLite(t)

	events := `{"entityType":"event","items":[{"id":"ev-1","name":"Oslo","slug":"oslo"}]}`
	_, err := run(t, events, "import", "event", "-")
	assert.ErrorContains(t, err, "acting identity")

	broken := `{"entityType":"organizer","items":[{"id":"o-1","slug":"nameless"}]}`
	out, err := run(t, broken, "import", "organizer", "-")
	assert.ErrorContains(t, err, "1 of 1 items failed")
	assert.Contains(t, out, "ITEM_VALIDATION_FAILED")

	_, err = run(t, organizers, "import", "organizer", "-", "--policy", "merge")
	assert.Error(t, err)
}

func TestQueryRejectsBadFilter(t *testing.T) {
	useSQLite(t)

	_, err := run(t, "", "query", "organizer", "--filter", "{not json")
	assert.ErrorContains(t, err, "invalid --filter")
}
