package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme is the palette the task manager draws with
type Theme struct {
	Name    string
	Primary lipgloss.AdaptiveColor
	Accent  lipgloss.AdaptiveColor
	Text    lipgloss.AdaptiveColor
	TextDim lipgloss.AdaptiveColor
	Border  lipgloss.AdaptiveColor
	Success lipgloss.AdaptiveColor
	Warning lipgloss.AdaptiveColor
	Error   lipgloss.AdaptiveColor
}

// DefaultTheme is used unless another theme is requested
var DefaultTheme = Theme{
	Name:    "default",
	Primary: lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7B68EE"},
	Accent:  lipgloss.AdaptiveColor{Light: "#6C6CFF", Dark: "#9370DB"},
	Text:    lipgloss.AdaptiveColor{Light: "#1E1E1E", Dark: "#E0E0E0"},
	TextDim: lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"},
	Border:  lipgloss.AdaptiveColor{Light: "#E0E0E0", Dark: "#404040"},
	Success: lipgloss.AdaptiveColor{Light: "#4CAF50", Dark: "#66BB6A"},
	Warning: lipgloss.AdaptiveColor{Light: "#FF9800", Dark: "#FFA726"},
	Error:   lipgloss.AdaptiveColor{Light: "#F44336", Dark: "#EF5350"},
}

// NordTheme is a cooler alternative palette
var NordTheme = Theme{
	Name:    "nord",
	Primary: lipgloss.AdaptiveColor{Light: "#5E81AC", Dark: "#81A1C1"},
	Accent:  lipgloss.AdaptiveColor{Light: "#88C0D0", Dark: "#88C0D0"},
	Text:    lipgloss.AdaptiveColor{Light: "#2E3440", Dark: "#D8DEE9"},
	TextDim: lipgloss.AdaptiveColor{Light: "#4C566A", Dark: "#4C566A"},
	Border:  lipgloss.AdaptiveColor{Light: "#4C566A", Dark: "#4C566A"},
	Success: lipgloss.AdaptiveColor{Light: "#A3BE8C", Dark: "#A3BE8C"},
	Warning: lipgloss.AdaptiveColor{Light: "#EBCB8B", Dark: "#EBCB8B"},
	Error:   lipgloss.AdaptiveColor{Light: "#BF616A", Dark: "#BF616A"},
}

var themes = []Theme{DefaultTheme, NordTheme}

// GetTheme returns the theme called name, or DefaultTheme when none matches
func GetTheme(name string) Theme {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, t := range themes {
		if t.Name == name {
			return t
		}
	}
	return DefaultTheme
}

// Styles holds the rendered styles for the task manager
type Styles struct {
	Theme Theme

	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Label    lipgloss.Style
	Selected lipgloss.Style
	Normal   lipgloss.Style
	Detail   lipgloss.Style
	Help     lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Panel    lipgloss.Style
}

// NewStyles creates a new styles instance with the given theme
func NewStyles(theme Theme) *Styles {
	s := &Styles{
		Theme: theme,
	}

	s.Title = lipgloss.NewStyle().
		Foreground(theme.Primary).
		Bold(true).
		MarginBottom(1)

	s.Subtitle = lipgloss.NewStyle().
		Foreground(theme.Accent)

	s.Label = lipgloss.NewStyle().
		Foreground(theme.TextDim)

	s.Selected = lipgloss.NewStyle().
		Foreground(theme.Primary).
		Bold(true)

	s.Normal = lipgloss.NewStyle().
		Foreground(theme.Text)

	s.Detail = lipgloss.NewStyle().
		Foreground(theme.TextDim).
		PaddingLeft(4)

	s.Help = lipgloss.NewStyle().
		Foreground(theme.TextDim).
		Italic(true).
		MarginTop(1)

	s.Success = lipgloss.NewStyle().
		Foreground(theme.Success)

	s.Warning = lipgloss.NewStyle().
		Foreground(theme.Warning)

	s.Error = lipgloss.NewStyle().
		Foreground(theme.Error).
		Bold(true)

	s.Panel = lipgloss.NewStyle().
		Padding(0, 1).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.Border)

	return s
}

// RenderStatus styles a status line as success or error
func (s *Styles) RenderStatus(msg string, isErr bool) string {
	if msg == "" {
		return ""
	}
	if isErr {
		return s.Error.Render("✗ " + msg)
	}
	return s.Success.Render("✓ " + msg)
}
