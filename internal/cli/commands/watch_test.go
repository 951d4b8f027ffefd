package commands

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapflow-posthog/internal/cli/output"
	"github.com/leapstack-labs/leapflow-posthog/internal/spool"
)

func TestFormatAge(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		t        time.Time
		expected string
	}{
		{"seconds", now.Add(-5 * time.Second), "5s"},
		{"minutes", now.Add(-3 * time.Minute), "3m"},
		{"hours", now.Add(-2 * time.Hour), "2h"},
		{"days", now.Add(-49 * time.Hour), "2d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatAge(tt.t))
		})
	}
}

func TestWatchColumns(t *testing.T) {
	cols := watchColumns(120)
	require.Len(t, cols, 6)
	assert.Equal(t, "ID", cols[0].Title)
	assert.Equal(t, "Error", cols[5].Title)
	assert.Equal(t, 120-47, cols[5].Width)

	// Narrow windows keep the error column readable
	narrow := watchColumns(40)
	assert.Equal(t, 20, narrow[5].Width)
}

func TestWatchRows(t *testing.T) {
	updated := time.Now().Add(-90 * time.Second)
	batches := []*spool.Batch{
		{
			ID:         "0199a4c2-1b7e-7f3a-9c01-2d4e6f8a0b1c",
			Status:     "pending",
			EventCount: 12,
			Attempts:   3,
			Error:      "posthog: 500 Internal Server Error",
			UpdatedAt:  updated,
		},
	}

	rows := watchRows(batches)
	require.Len(t, rows, 1)
	assert.Equal(t, "0199a4c2", rows[0][0])
	assert.Equal(t, "pending", rows[0][1])
	assert.Equal(t, "12", rows[0][2])
	assert.Equal(t, "3", rows[0][3])
	assert.Equal(t, "1m", rows[0][4])
	assert.Equal(t, "posthog: 500 Internal Server Error", rows[0][5])
}

func TestWatchModel_QuitKeys(t *testing.T) {
	model := newWatchModel(nil, "posthog_default", output.Styles{})

	for _, key := range []string{"q", "esc", "ctrl+c"} {
		t.Run(key, func(t *testing.T) {
			keyMsg := tea.KeyMsg(tea.Key{Type: tea.KeyRunes, Runes: []rune(key)})
			if key == "esc" {
				keyMsg = tea.KeyMsg(tea.Key{Type: tea.KeyEsc})
			}
			if key == "ctrl+c" {
				keyMsg = tea.KeyMsg(tea.Key{Type: tea.KeyCtrlC})
			}
			_, cmd := model.Update(keyMsg)
			require.NotNil(t, cmd)
			assert.IsType(t, tea.QuitMsg{}, cmd())
		})
	}
}

func TestWatchModel_RefreshMsg(t *testing.T) {
	model := newWatchModel(nil, "posthog_default", output.Styles{})

	stats := &spool.Stats{Pending: 2, Dead: 1, Replayed: 4, PendingEvents: 20}
	batches := []*spool.Batch{
		{ID: "batch-aaaa-1111", Status: "pending", EventCount: 10, UpdatedAt: time.Now()},
		{ID: "batch-bbbb-2222", Status: "dead", EventCount: 10, Attempts: 5, Error: "gone", UpdatedAt: time.Now()},
	}

	updated, cmd := model.Update(watchRefreshMsg{stats: stats, batches: batches})
	assert.Nil(t, cmd)

	m, ok := updated.(watchModel)
	require.True(t, ok)
	assert.Equal(t, stats, m.stats)
	assert.False(t, m.lastRefresh.IsZero())
	assert.NoError(t, m.err)

	view := m.View()
	assert.Contains(t, view, "LeapFlow PostHog Spool")
	assert.Contains(t, view, "connection: posthog_default")
	assert.Contains(t, view, "pending: 2")
	assert.Contains(t, view, "dead: 1")
	assert.Contains(t, view, "replayed: 4")
	assert.Contains(t, view, "queued events: 20")
	assert.Contains(t, view, "batch-aa")
	assert.Contains(t, view, "[r] refresh")
}

func TestWatchModel_RefreshError(t *testing.T) {
	model := newWatchModel(nil, "posthog_default", output.Styles{})

	updated, _ := model.Update(watchRefreshMsg{err: assert.AnError})

	m, ok := updated.(watchModel)
	require.True(t, ok)
	assert.Error(t, m.err)
	assert.Contains(t, m.View(), "refresh failed")
}

func TestWatchModel_WindowResize(t *testing.T) {
	model := newWatchModel(nil, "posthog_default", output.Styles{})

	updated, cmd := model.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	assert.Nil(t, cmd)

	m, ok := updated.(watchModel)
	require.True(t, ok)
	assert.Equal(t, 140, m.width)
}

func TestWatchModel_ViewBeforeFirstRefresh(t *testing.T) {
	model := newWatchModel(nil, "posthog_default", output.Styles{})

	view := model.View()
	assert.Contains(t, view, "refreshed never")
	assert.NotContains(t, view, "pending:")
}
