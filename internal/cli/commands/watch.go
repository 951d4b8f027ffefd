package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapflow-posthog/internal/cli/output"
	"github.com/leapstack-labs/leapflow-posthog/internal/spool"
)

// watchInterval is how often the dashboard polls the spool.
const watchInterval = 2 * time.Second

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard for the delivery spool",
		Long: `Watch the delivery spool in a terminal dashboard.

Batch counts and the most recent batches refresh every two seconds.
Press r to refresh immediately, q to quit.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	store, err := openSpool(cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	model := newWatchModel(store, cmdCtx.Cfg.ConnID, cmdCtx.Renderer.Styles())
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}
	return nil
}

// watchTickMsg fires on the poll interval.
type watchTickMsg struct{}

// watchRefreshMsg carries a fresh snapshot of the spool.
type watchRefreshMsg struct {
	stats   *spool.Stats
	batches []*spool.Batch
	err     error
}

type watchModel struct {
	store  *spool.Store
	connID string
	styles output.Styles

	spinner spinner.Model
	table   table.Model

	stats       *spool.Stats
	err         error
	lastRefresh time.Time
	width       int
}

func newWatchModel(store *spool.Store, connID string, styles output.Styles) watchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Info

	t := table.New(
		table.WithColumns(watchColumns(80)),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	return watchModel{
		store:   store,
		connID:  connID,
		styles:  styles,
		spinner: sp,
		table:   t,
	}
}

func watchColumns(width int) []table.Column {
	errWidth := width - 47
	if errWidth < 20 {
		errWidth = 20
	}
	return []table.Column{
		{Title: "ID", Width: 8},
		{Title: "Status", Width: 8},
		{Title: "Events", Width: 6},
		{Title: "Tries", Width: 5},
		{Title: "Updated", Width: 8},
		{Title: "Error", Width: errWidth},
	}
}

// Init starts the spinner, the first snapshot and the poll loop.
func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh(), watchTick())
}

func watchTick() tea.Cmd {
	return tea.Tick(watchInterval, func(time.Time) tea.Msg {
		return watchTickMsg{}
	})
}

// refresh snapshots the spool off the UI goroutine.
func (m watchModel) refresh() tea.Cmd {
	store := m.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), watchInterval)
		defer cancel()

		stats, err := store.Stats(ctx)
		if err != nil {
			return watchRefreshMsg{err: err}
		}
		batches, err := store.ListAll(ctx)
		if err != nil {
			return watchRefreshMsg{err: err}
		}
		if len(batches) > 100 {
			batches = batches[:100]
		}
		return watchRefreshMsg{stats: stats, batches: batches}
	}
}

// Update handles messages.
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.refresh()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.table.SetColumns(watchColumns(msg.Width))
		m.table.SetWidth(msg.Width - 2)
		if msg.Height > 12 {
			m.table.SetHeight(msg.Height - 10)
		}
		return m, nil

	case watchTickMsg:
		return m, tea.Batch(m.refresh(), watchTick())

	case watchRefreshMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.stats = msg.stats
		m.lastRefresh = time.Now()
		m.table.SetRows(watchRows(msg.batches))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func watchRows(batches []*spool.Batch) []table.Row {
	rows := make([]table.Row, 0, len(batches))
	for _, b := range batches {
		rows = append(rows, table.Row{
			shortID(b.ID),
			b.Status,
			fmt.Sprintf("%d", b.EventCount),
			fmt.Sprintf("%d", b.Attempts),
			formatAge(b.UpdatedAt),
			truncate(b.Error, 64),
		})
	}
	return rows
}

// View renders the dashboard.
func (m watchModel) View() string {
	var sb strings.Builder

	sb.WriteString(m.styles.Header1.Render("LeapFlow PostHog Spool"))
	sb.WriteString("\n")
	sb.WriteString(m.styles.Muted.Render(fmt.Sprintf("connection: %s", m.connID)))
	sb.WriteString("\n\n")

	if m.err != nil {
		sb.WriteString(m.styles.Error.Render(fmt.Sprintf("refresh failed: %v", m.err)))
		sb.WriteString("\n\n")
	}

	if m.stats != nil {
		pending := fmt.Sprintf("pending: %d", m.stats.Pending)
		if m.stats.Pending > 0 {
			pending = m.styles.Warning.Render(pending)
		}
		dead := fmt.Sprintf("dead: %d", m.stats.Dead)
		if m.stats.Dead > 0 {
			dead = m.styles.Error.Render(dead)
		}
		sb.WriteString(fmt.Sprintf("%s  %s  replayed: %d  queued events: %d",
			pending, dead, m.stats.Replayed, m.stats.PendingEvents))
		sb.WriteString("\n\n")
	}

	sb.WriteString(m.table.View())
	sb.WriteString("\n")

	refreshed := "never"
	if !m.lastRefresh.IsZero() {
		refreshed = formatAge(m.lastRefresh) + " ago"
	}
	sb.WriteString(fmt.Sprintf("%s refreshed %s", m.spinner.View(), refreshed))
	sb.WriteString(m.styles.Muted.Render("   [r] refresh  [q] quit"))
	sb.WriteString("\n")

	return sb.String()
}

// formatAge renders a timestamp as a compact age like 5s, 3m or 2h.
func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
