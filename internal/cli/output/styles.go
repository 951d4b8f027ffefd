package output

import "github.com/charmbracelet/lipgloss"

// Styles is the set of lipgloss styles commands render through. The
// zero-ish plain variant keeps piped and markdown output free of ANSI
// escapes.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style

	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style

	// StatusSuccess and StatusFailed carry their glyph; render them
	// with String().
	StatusSuccess lipgloss.Style
	StatusFailed  lipgloss.Style
}

func newStyles(colored bool) Styles {
	if !colored {
		plain := lipgloss.NewStyle()
		return Styles{
			Header1:       plain,
			Header2:       plain,
			Bold:          plain,
			Muted:         plain,
			Success:       plain,
			Warning:       plain,
			Error:         plain,
			Info:          plain,
			StatusSuccess: plain.SetString("+"),
			StatusFailed:  plain.SetString("x"),
		}
	}
	return Styles{
		Header1:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Header2:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75")),
		Bold:          lipgloss.NewStyle().Bold(true),
		Muted:         lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Success:       lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Warning:       lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Error:         lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Info:          lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		StatusSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).SetString("✓"),
		StatusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")).SetString("✗"),
	}
}
