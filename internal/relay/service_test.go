package relay_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapflow-posthog/internal/relay"
	"github.com/leapstack-labs/leapflow-posthog/internal/relay/features"
	"github.com/leapstack-labs/leapflow-posthog/internal/spool"
	phclient "github.com/leapstack-labs/leapflow-posthog/pkg/posthog"
	"github.com/leapstack-labs/leapflow-posthog/pkg/provider"
)

func writeTransform(t *testing.T, dir, name, script string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(script), 0o600))
}

func TestServiceIngestDelivers(t *testing.T) {
	f := features.SetupTestFixture(t, features.FixtureConfig{})
	ctx := context.Background()

	updates := f.Service.Notifier().Subscribe()
	defer f.Service.Notifier().Unsubscribe(updates)

	accepted, err := f.Service.Ingest(ctx, map[string]any{
		"event":       "signed up",
		"distinct_id": "user-1",
		"properties":  map[string]any{"plan": "free"},
	})
	require.NoError(t, err)
	assert.True(t, accepted)

	select {
	case <-updates:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a notifier broadcast after ingest")
	}

	require.NoError(t, f.Service.Flush(ctx))

	stats := f.Service.Stats()
	assert.Equal(t, int64(1), stats.Received)
	assert.Equal(t, int64(1), stats.Delivered)
	assert.Zero(t, stats.Failed)
	assert.Zero(t, stats.Spooled)
	assert.Equal(t, 1, f.Batches())
	assert.Zero(t, f.Service.InflightCount())

	spoolStats, err := f.Service.SpoolStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, spoolStats.Pending)
}

func TestServiceTransformDrops(t *testing.T) {
	dir := t.TempDir()
	writeTransform(t, dir, "drop.star",
		"def transform(event):\n"+
			"    if event[\"event\"] == \"$snapshot\":\n"+
			"        return None\n"+
			"    return event\n")

	f := features.SetupTestFixture(t, features.FixtureConfig{TransformsDir: dir})
	ctx := context.Background()

	accepted, err := f.Service.Ingest(ctx, map[string]any{"event": "$snapshot", "distinct_id": "user-1"})
	require.NoError(t, err)
	assert.False(t, accepted)

	accepted, err = f.Service.Ingest(ctx, map[string]any{"event": "$pageview", "distinct_id": "user-1"})
	require.NoError(t, err)
	assert.True(t, accepted)

	stats := f.Service.Stats()
	assert.Equal(t, int64(2), stats.Received)
	assert.Equal(t, int64(1), stats.Dropped)
}

func TestServiceFailedDeliverySpools(t *testing.T) {
	f := features.SetupTestFixture(t, features.FixtureConfig{})
	f.SetFail(true)
	ctx := context.Background()

	accepted, err := f.Service.Ingest(ctx, map[string]any{
		"event":       "checkout",
		"distinct_id": "user-2",
		"uuid":        "22222222-2222-2222-2222-222222222222",
	})
	require.NoError(t, err)
	assert.True(t, accepted)
	require.NoError(t, f.Service.Flush(ctx))

	stats := f.Service.Stats()
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Spooled)
	assert.Zero(t, stats.Delivered)
	assert.Zero(t, f.Service.InflightCount())

	batches, err := f.Spool.ListPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, features.TestConnID, batches[0].ConnID)
	assert.Equal(t, 1, batches[0].EventCount)
	assert.NotEmpty(t, batches[0].Error)
	assert.Contains(t, string(batches[0].Payload), `"event":"checkout"`)
	assert.Contains(t, string(batches[0].Payload), "22222222-2222-2222-2222-222222222222")
}

func TestServiceTransformedEventReachesSpool(t *testing.T) {
	dir := t.TempDir()
	writeTransform(t, dir, "enrich.star",
		"def transform(event):\n"+
			"    props = event.get(\"properties\", {})\n"+
			"    props[\"relayed\"] = True\n"+
			"    event[\"properties\"] = props\n"+
			"    return event\n")

	f := features.SetupTestFixture(t, features.FixtureConfig{TransformsDir: dir})
	f.SetFail(true)
	ctx := context.Background()

	_, err := f.Service.Ingest(ctx, map[string]any{"event": "signed up", "distinct_id": "user-1"})
	require.NoError(t, err)
	require.NoError(t, f.Service.Flush(ctx))

	batches, err := f.Spool.ListPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Contains(t, string(batches[0].Payload), `"relayed":true`)
	assert.Equal(t, 1, f.Service.TransformCount())
}

func TestServiceQueueFullSpools(t *testing.T) {
	f := features.SetupTestFixture(t, features.FixtureConfig{
		Block: true,
		Extra: map[string]any{"batch_size": 1, "max_queue_size": 1},
	})
	ctx := context.Background()

	// With a one slot queue and the delivery loop parked on a blocked
	// upload, one event is uploading, one sits queued and the other
	// three overflow into the spool.
	for i := 0; i < 5; i++ {
		accepted, err := f.Service.Ingest(ctx, map[string]any{"event": "burst", "distinct_id": "user-1"})
		require.NoError(t, err)
		assert.True(t, accepted)
	}

	assert.Equal(t, int64(3), f.Service.Stats().Spooled)

	batches, err := f.Spool.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, batches, 3)

	f.Unblock()
}

func TestServiceReplaySpool(t *testing.T) {
	f := features.SetupTestFixture(t, features.FixtureConfig{})
	ctx := context.Background()

	f.SetFail(true)
	_, err := f.Service.Ingest(ctx, map[string]any{
		"event":       "checkout",
		"distinct_id": "user-2",
		"uuid":        "33333333-3333-3333-3333-333333333333",
	})
	require.NoError(t, err)
	require.NoError(t, f.Service.Flush(ctx))
	require.Equal(t, int64(1), f.Service.Stats().Spooled)

	f.SetFail(false)
	result, err := f.Service.ReplaySpool(ctx, spool.ReplayOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Replayed)
	assert.Equal(t, 1, result.Events)
	assert.Zero(t, result.Failed)

	assert.Equal(t, int64(1), f.Service.Stats().Replayed)

	spoolStats, err := f.Service.SpoolStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, spoolStats.Pending)
	assert.Equal(t, 1, spoolStats.Replayed)

	// One failed attempt plus the replay delivery.
	assert.Equal(t, 2, f.Batches())
}

func TestServiceReplayFailureKeepsPending(t *testing.T) {
	f := features.SetupTestFixture(t, features.FixtureConfig{})
	ctx := context.Background()

	f.SetFail(true)
	_, err := f.Service.Ingest(ctx, map[string]any{"event": "checkout", "distinct_id": "user-2"})
	require.NoError(t, err)
	require.NoError(t, f.Service.Flush(ctx))

	result, err := f.Service.ReplaySpool(ctx, spool.ReplayOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.Replayed)
	assert.Zero(t, f.Service.Stats().Replayed)

	batches, err := f.Spool.ListPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 1, batches[0].Attempts)
	assert.Equal(t, spool.StatusPending, batches[0].Status)
}

func TestServiceIngestBatchCounts(t *testing.T) {
	dir := t.TempDir()
	writeTransform(t, dir, "drop.star",
		"def transform(event):\n"+
			"    if event[\"event\"] == \"$snapshot\":\n"+
			"        return None\n"+
			"    return event\n")

	f := features.SetupTestFixture(t, features.FixtureConfig{TransformsDir: dir})
	ctx := context.Background()

	accepted, dropped, err := f.Service.IngestBatch(ctx, []map[string]any{
		{"event": "$pageview", "distinct_id": "user-1"},
		{"event": "$snapshot", "distinct_id": "user-1"},
		{"event": "signed up", "distinct_id": "user-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, accepted)
	assert.Equal(t, 1, dropped)
}

func TestServiceIngestBatchStopsOnError(t *testing.T) {
	f := features.SetupTestFixture(t, features.FixtureConfig{})
	ctx := context.Background()

	accepted, dropped, err := f.Service.IngestBatch(ctx, []map[string]any{
		{"event": "signed up", "distinct_id": "user-1"},
		{"distinct_id": "user-1"},
		{"event": "never reached", "distinct_id": "user-1"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event 1:")
	assert.Equal(t, 1, accepted)
	assert.Zero(t, dropped)
}

func TestServiceIngestRejectsInvalidEvent(t *testing.T) {
	f := features.SetupTestFixture(t, features.FixtureConfig{})

	_, err := f.Service.Ingest(context.Background(), map[string]any{"distinct_id": "user-1"})
	require.Error(t, err)

	var fieldErr *phclient.FieldError
	assert.ErrorAs(t, err, &fieldErr)
	assert.Zero(t, f.Service.InflightCount())
}

func TestServiceIngestRejectsBadTimestamp(t *testing.T) {
	f := features.SetupTestFixture(t, features.FixtureConfig{})

	_, err := f.Service.Ingest(context.Background(), map[string]any{
		"event":       "signed up",
		"distinct_id": "user-1",
		"timestamp":   "not a time",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timestamp")
}

func TestServiceIngestConnectionError(t *testing.T) {
	svc, err := relay.NewService(relay.ServiceConfig{
		ConnID:   "missing",
		Resolver: features.StaticResolver{},
	})
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	_, err = svc.Ingest(context.Background(), map[string]any{"event": "x", "distinct_id": "user-1"})
	require.Error(t, err)

	var notFound *provider.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestServiceReloadTransforms(t *testing.T) {
	dir := t.TempDir()
	f := features.SetupTestFixture(t, features.FixtureConfig{TransformsDir: dir})
	assert.Zero(t, f.Service.TransformCount())

	writeTransform(t, dir, "drop.star",
		"def transform(event):\n"+
			"    return event\n")
	require.NoError(t, f.Service.ReloadTransforms())
	assert.Equal(t, 1, f.Service.TransformCount())

	// A broken file keeps the previous pipeline in place.
	writeTransform(t, dir, "broken.star", "def transform(event:\n")
	require.Error(t, f.Service.ReloadTransforms())
	assert.Equal(t, 1, f.Service.TransformCount())
}
