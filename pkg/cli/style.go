package cli

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme is the status color scheme.
type Theme struct {
	Online     lipgloss.Color
	Connecting lipgloss.Color
	Error      lipgloss.Color
	Offline    lipgloss.Color
}

// DefaultTheme is the default color scheme.
var DefaultTheme = Theme{
	Online:     lipgloss.Color("#00ff9f"),
	Connecting: lipgloss.Color("#ffd866"),
	Error:      lipgloss.Color("#ff6188"),
	Offline:    lipgloss.Color("#6e7681"),
}

// Styles renders device statuses.
type Styles struct {
	status map[string]lipgloss.Style
	Header lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		status: map[string]lipgloss.Style{
			"online":     lipgloss.NewStyle().Bold(true).Foreground(t.Online),
			"connecting": lipgloss.NewStyle().Foreground(t.Connecting),
			"error":      lipgloss.NewStyle().Bold(true).Foreground(t.Error),
			"offline":    lipgloss.NewStyle().Foreground(t.Offline),
		},
		Header: lipgloss.NewStyle().Bold(true),
	}
}

// Status renders a status word in its color. Unknown words are returned
// unchanged.
func (s Styles) Status(status string) string {
	st, ok := s.status[status]
	if !ok {
		return status
	}
	return st.Render(status)
}
