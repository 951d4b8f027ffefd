package archive

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapflow-posthog/internal/spool"
)

func setupSpool(t *testing.T) *spool.Store {
	t.Helper()
	s, err := spool.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func openArchive(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

const samplePayload = `{
	"api_key": "phc_test",
	"batch": [
		{"event": "signup", "distinct_id": "user-1", "timestamp": "2026-08-20T10:00:00Z", "uuid": "11111111-1111-1111-1111-111111111111", "properties": {"plan": "free", "$lib": "posthog-go"}},
		{"event": "$pageview", "distinct_id": "user-2", "timestamp": "2026-08-20T10:00:01Z", "uuid": "22222222-2222-2222-2222-222222222222", "properties": {"$current_url": "https://example.com"}}
	]
}`

func TestExport(t *testing.T) {
	ctx := context.Background()
	store := setupSpool(t)

	batch, err := store.Enqueue(ctx, "posthog_default", []byte(samplePayload), 2, errors.New("connection refused"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "spool.duckdb")
	result, err := NewExporter(store, nil).Export(ctx, path)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Batches)
	assert.Equal(t, 2, result.Events)
	assert.Equal(t, 0, result.Skipped)

	db := openArchive(t, path)

	var connID, status string
	var eventCount int
	err = db.QueryRow(`SELECT conn_id, status, event_count FROM spool_batches WHERE batch_id = ?`, batch.ID).
		Scan(&connID, &status, &eventCount)
	require.NoError(t, err)
	assert.Equal(t, "posthog_default", connID)
	assert.Equal(t, spool.StatusPending, status)
	assert.Equal(t, 2, eventCount)

	var event, distinctID, props string
	err = db.QueryRow(`SELECT event, distinct_id, properties FROM spool_events WHERE batch_id = ? AND seq = 0`, batch.ID).
		Scan(&event, &distinctID, &props)
	require.NoError(t, err)
	assert.Equal(t, "signup", event)
	assert.Equal(t, "user-1", distinctID)
	assert.Contains(t, props, `"plan":"free"`)
}

func TestExportIdempotent(t *testing.T) {
	ctx := context.Background()
	store := setupSpool(t)

	_, err := store.Enqueue(ctx, "ph", []byte(samplePayload), 2, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "spool.duckdb")
	exporter := NewExporter(store, nil)

	first, err := exporter.Export(ctx, path)
	require.NoError(t, err)
	require.Equal(t, 1, first.Batches)

	second, err := exporter.Export(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Batches)
	assert.Equal(t, 0, second.Events)
	assert.Equal(t, 1, second.Skipped)

	db := openArchive(t, path)
	var batches, events int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM spool_batches`).Scan(&batches))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM spool_events`).Scan(&events))
	assert.Equal(t, 1, batches)
	assert.Equal(t, 2, events)
}

func TestExportPicksUpNewBatches(t *testing.T) {
	ctx := context.Background()
	store := setupSpool(t)
	path := filepath.Join(t.TempDir(), "spool.duckdb")
	exporter := NewExporter(store, nil)

	_, err := store.Enqueue(ctx, "ph", []byte(samplePayload), 2, nil)
	require.NoError(t, err)
	_, err = exporter.Export(ctx, path)
	require.NoError(t, err)

	_, err = store.Enqueue(ctx, "ph", []byte(`{"api_key":"k","batch":[{"event":"late","distinct_id":"u"}]}`), 1, nil)
	require.NoError(t, err)

	result, err := exporter.Export(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Batches)
	assert.Equal(t, 1, result.Events)
	assert.Equal(t, 1, result.Skipped)
}

func TestExportUnparseablePayload(t *testing.T) {
	ctx := context.Background()
	store := setupSpool(t)

	batch, err := store.Enqueue(ctx, "ph", []byte("not json at all"), 0, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "spool.duckdb")
	result, err := NewExporter(store, nil).Export(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Batches)
	assert.Equal(t, 0, result.Events)

	db := openArchive(t, path)
	var got string
	require.NoError(t, db.QueryRow(`SELECT batch_id FROM spool_batches`).Scan(&got))
	assert.Equal(t, batch.ID, got)
}

func TestExportEmptySpool(t *testing.T) {
	store := setupSpool(t)
	path := filepath.Join(t.TempDir(), "spool.duckdb")

	result, err := NewExporter(store, nil).Export(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Batches)
	assert.Equal(t, 0, result.Events)
}
