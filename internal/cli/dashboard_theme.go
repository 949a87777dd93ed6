package cli

import "github.com/charmbracelet/lipgloss"

type dashTheme struct {
	Title lipgloss.Style
	Muted lipgloss.Style
	Error lipgloss.Style
	OK    lipgloss.Style
	Panel lipgloss.Style
	Sel   lipgloss.Style
	Badge map[string]lipgloss.Style
}

func newDashTheme(dark bool) dashTheme {
	title, muted, errC, okC, selFg, selBg, border := "212", "245", "203", "42", "230", "62", "62"
	warn, info := "214", "39"
	if !dark {
		title, muted, errC, okC, selFg, selBg, border = "125", "240", "160", "28", "231", "25", "244"
		warn, info = "130", "25"
	}
	badge := func(c string) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(c)).Bold(true)
	}
	return dashTheme{
		Title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(title)),
		Muted: lipgloss.NewStyle().Foreground(lipgloss.Color(muted)),
		Error: lipgloss.NewStyle().Foreground(lipgloss.Color(errC)).Bold(true),
		OK:    lipgloss.NewStyle().Foreground(lipgloss.Color(okC)).Bold(true),
		Panel: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(border)).Padding(0, 1),
		Sel:   lipgloss.NewStyle().Foreground(lipgloss.Color(selFg)).Background(lipgloss.Color(selBg)).Bold(true),
		Badge: map[string]lipgloss.Style{
			"pending":    badge(muted),
			"processing": badge(info),
			"completed":  badge(okC),
			"failed":     badge(errC),
			"aborted":    badge(warn),
		},
	}
}

// confidenceStyle colours a score: high in red, medium in amber.
func (t dashTheme) confidenceStyle(score float64) lipgloss.Style {
	switch {
	case score >= 0.8:
		return t.Error
	case score >= 0.5:
		return t.Badge["aborted"]
	default:
		return t.Muted
	}
}
