package viz

import "github.com/charmbracelet/lipgloss"

// Theme defines the viewer's colour scheme.
type Theme struct {
	Name      string
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Accent    lipgloss.Color
	Text      lipgloss.Color
	Muted     lipgloss.Color
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
}

var (
	ThemeCyberpunk = Theme{
		Name:      "cyberpunk",
		Primary:   lipgloss.Color("#ff00ff"),
		Secondary: lipgloss.Color("#00ffff"),
		Accent:    lipgloss.Color("#ffff00"),
		Text:      lipgloss.Color("#ffffff"),
		Muted:     lipgloss.Color("#666666"),
		Success:   lipgloss.Color("#00ff00"),
		Warning:   lipgloss.Color("#ff8800"),
		Error:     lipgloss.Color("#ff0000"),
	}

	ThemeRetroGreen = Theme{
		Name:      "retro",
		Primary:   lipgloss.Color("#00ff00"),
		Secondary: lipgloss.Color("#00cc00"),
		Accent:    lipgloss.Color("#88ff88"),
		Text:      lipgloss.Color("#00ff00"),
		Muted:     lipgloss.Color("#005500"),
		Success:   lipgloss.Color("#88ff88"),
		Warning:   lipgloss.Color("#ffff00"),
		Error:     lipgloss.Color("#ff0000"),
	}

	ThemeMinimal = Theme{
		Name:      "minimal",
		Primary:   lipgloss.Color("#ffffff"),
		Secondary: lipgloss.Color("#cccccc"),
		Accent:    lipgloss.Color("#0088ff"),
		Text:      lipgloss.Color("#ffffff"),
		Muted:     lipgloss.Color("#888888"),
		Success:   lipgloss.Color("#00ff00"),
		Warning:   lipgloss.Color("#ffaa00"),
		Error:     lipgloss.Color("#ff0000"),
	}

	Themes = []Theme{ThemeCyberpunk, ThemeRetroGreen, ThemeMinimal}
)

// GetTheme returns a theme by name, falling back to the first one.
func GetTheme(name string) Theme {
	for _, t := range Themes {
		if t.Name == name {
			return t
		}
	}
	return Themes[0]
}

// Next is the theme after t in Themes, wrapping around.
func (t Theme) Next() Theme {
	for i, th := range Themes {
		if th.Name == t.Name {
			return Themes[(i+1)%len(Themes)]
		}
	}
	return Themes[0]
}

func ThemeNames() []string {
	names := make([]string, len(Themes))
	for i, t := range Themes {
		names[i] = t.Name
	}
	return names
}

// styles are the lipgloss styles a theme resolves to.
type styles struct {
	header  lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	playing lipgloss.Style
	idle    lipgloss.Style
	err     lipgloss.Style
	notice  lipgloss.Style
	help    lipgloss.Style
	cursor  lipgloss.Style
	stats   lipgloss.Style
	canvas  lipgloss.Style
	graph   lipgloss.Style
}

func (t Theme) styles() styles {
	return styles{
		header:  lipgloss.NewStyle().Foreground(t.Secondary).Bold(true).MarginBottom(1),
		label:   lipgloss.NewStyle().Foreground(t.Muted).Width(10),
		value:   lipgloss.NewStyle().Foreground(t.Text),
		playing: lipgloss.NewStyle().Foreground(t.Success).Bold(true),
		idle:    lipgloss.NewStyle().Foreground(t.Warning).Bold(true),
		err:     lipgloss.NewStyle().Foreground(t.Error),
		notice:  lipgloss.NewStyle().Foreground(t.Warning).Italic(true),
		help:    lipgloss.NewStyle().Foreground(t.Muted).MarginTop(1),
		cursor:  lipgloss.NewStyle().Foreground(t.Primary).Bold(true),
		stats: lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(t.Muted).Padding(1, 2).Width(44),
		canvas: lipgloss.NewStyle().Padding(1, 2),
		graph:  lipgloss.NewStyle().Foreground(t.Accent),
	}
}
