package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapflow-posthog/internal/cli/testutil"
	"github.com/leapstack-labs/leapflow-posthog/pkg/provider"
)

func TestConnectionHost(t *testing.T) {
	t.Run("extra host wins", func(t *testing.T) {
		conn := &provider.Connection{
			ID:    "posthog_eu",
			Host:  "legacy.example.com",
			Extra: `{"host": "https://eu.posthog.com"}`,
		}
		assert.Equal(t, "https://eu.posthog.com", connectionHost(conn))
	})

	t.Run("falls back to connection host", func(t *testing.T) {
		conn := &provider.Connection{ID: "posthog_default", Host: "app.posthog.com"}
		assert.Equal(t, "app.posthog.com", connectionHost(conn))
	})

	t.Run("empty when neither set", func(t *testing.T) {
		conn := &provider.Connection{ID: "posthog_default"}
		assert.Equal(t, "", connectionHost(conn))
	})
}

func TestSortedKeys(t *testing.T) {
	m := map[string]any{"zeta": 1, "alpha": 2, "mid": 3}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, sortedKeys(m))
	assert.Empty(t, sortedKeys(map[string]any{}))
}

func TestMaskSecrets(t *testing.T) {
	extra := map[string]any{
		"project_api_key":  "phc_1234567890abcd",
		"personal_api_key": "phx_9876543210zyxw",
		"host":             "https://eu.posthog.com",
		"batch_size":       50,
	}

	maskSecrets(extra)

	assert.Equal(t, "phc_...abcd", extra["project_api_key"])
	assert.Equal(t, "phx_...zyxw", extra["personal_api_key"])
	assert.Equal(t, "https://eu.posthog.com", extra["host"])
	assert.Equal(t, 50, extra["batch_size"])
}

func TestMaskSecrets_EmptyAndMissing(t *testing.T) {
	extra := map[string]any{"project_api_key": ""}

	maskSecrets(extra)

	// Empty values stay empty rather than turning into asterisks
	assert.Equal(t, "", extra["project_api_key"])
	assert.NotContains(t, extra, "personal_api_key")
}

func TestExportEntry(t *testing.T) {
	conn := &provider.Connection{
		ID:          "posthog_default",
		Type:        "posthog",
		Description: "primary project",
		Host:        "app.posthog.com",
		Port:        443,
		Login:       "ops",
		Password:    "hunter2",
		Extra:       `{"project_api_key": "phc_1234567890abcd", "batch_size": 50}`,
	}

	entry, err := exportEntry(conn)
	require.NoError(t, err)

	assert.Equal(t, "posthog", entry["conn_type"])
	assert.Equal(t, "primary project", entry["description"])
	assert.Equal(t, "app.posthog.com", entry["host"])
	assert.Equal(t, 443, entry["port"])
	assert.Equal(t, "ops", entry["login"])
	assert.Equal(t, "hunter2", entry["password"])

	extra, ok := entry["extra"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "phc_1234567890abcd", extra["project_api_key"])
}

func TestExportEntry_OmitsEmptyFields(t *testing.T) {
	conn := &provider.Connection{ID: "posthog_default", Type: "posthog"}

	entry, err := exportEntry(conn)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"conn_type": "posthog"}, entry)
}

func TestExportEntry_MalformedExtra(t *testing.T) {
	conn := &provider.Connection{ID: "posthog_default", Type: "posthog", Extra: "{broken"}

	_, err := exportEntry(conn)
	require.Error(t, err)
}

func TestRenderConnectionsMarkdown(t *testing.T) {
	rows := []ConnectionRow{
		{ID: "posthog_default", Type: "posthog", Source: "file", Host: "app.posthog.com", Description: "primary"},
		{ID: "posthog_eu", Type: "posthog", Source: "metastore", Host: "https://eu.posthog.com"},
	}

	tr := testutil.NewTestRendererMarkdown()
	err := renderConnectionsMarkdown(tr.Renderer, rows)
	require.NoError(t, err)

	md := tr.Output()
	testutil.AssertValidMarkdown(t, md)
	testutil.AssertContains(t, md, "# Connections")
	testutil.AssertContains(t, md, "| posthog_default | posthog | file | app.posthog.com | primary |")
	testutil.AssertContains(t, md, "| posthog_eu | posthog | metastore |")
	testutil.AssertNoANSI(t, md)
}

func TestRenderConnectionsTable_Empty(t *testing.T) {
	tr := testutil.NewTestRendererText()
	err := renderConnectionsTable(tr.Renderer, nil)
	require.NoError(t, err)

	testutil.AssertContains(t, tr.Output(), "No connections defined.")
}

func TestRenderConnectionsTable(t *testing.T) {
	rows := []ConnectionRow{
		{ID: "posthog_default", Type: "posthog", Source: "file", Host: "app.posthog.com"},
	}

	tr := testutil.NewTestRendererText()
	err := renderConnectionsTable(tr.Renderer, rows)
	require.NoError(t, err)

	out := tr.Output()
	testutil.AssertContains(t, out, "posthog_default")
	testutil.AssertContains(t, out, "(1 connections)")
}
