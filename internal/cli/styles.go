// Package cli renders pipeline results in the terminal and drives the
// interactive review loop.
package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

// Palette.
var (
	LeafColor    = lipgloss.Color("#2E9E5B")
	OkColor      = lipgloss.Color("#4ECDC4")
	CautionColor = lipgloss.Color("#FFE66D")
	AlarmColor   = lipgloss.Color("#FF6B6B")
	NoteColor    = lipgloss.Color("#95E1D3")
	MutedColor   = lipgloss.Color("#666666")

	// Direct emissions are the darkest, value chain the lightest.
	scopeColors = map[model.Scope]lipgloss.Color{
		model.Scope1: lipgloss.Color("#1B5E20"),
		model.Scope2: lipgloss.Color("#43A047"),
		model.Scope3: lipgloss.Color("#A5D6A7"),
	}
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(LeafColor)
	SubtleStyle  = lipgloss.NewStyle().Foreground(MutedColor)
	BoldStyle    = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(OkColor)
	cautionStyle = lipgloss.NewStyle().Foreground(CautionColor)
	alarmStyle   = lipgloss.NewStyle().Foreground(AlarmColor)
	noteStyle    = lipgloss.NewStyle().Foreground(NoteColor)
	promptStyle  = lipgloss.NewStyle().Bold(true).Foreground(LeafColor)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333")).
			Padding(1, 2)

	// TableHeaderStyle and TableCellStyle are applied by every report table.
	TableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(LeafColor).PaddingRight(2)
	TableCellStyle   = lipgloss.NewStyle().PaddingRight(2)
)

const (
	okIcon      = "✓"
	alarmIcon   = "✗"
	cautionIcon = "⚠️"
	noteIcon    = "ℹ️"
	LeafIcon    = "🌿"
	ChartIcon   = "📊"
)

// FormatSuccess formats a success message with icon.
func FormatSuccess(message string) string {
	return okStyle.Render(okIcon + " " + message)
}

// FormatError formats an error message with icon.
func FormatError(message string) string {
	return alarmStyle.Render(alarmIcon + " " + message)
}

// FormatWarning formats a warning message with icon.
func FormatWarning(message string) string {
	return cautionStyle.Render(cautionIcon + " " + message)
}

// FormatInfo formats an info message with icon.
func FormatInfo(message string) string {
	return noteStyle.Render(noteIcon + " " + message)
}

// FormatTitle formats a title with the leaf icon.
func FormatTitle(title string) string {
	return TitleStyle.Render(LeafIcon + " " + title)
}

// FormatPrompt formats a prompt message.
func FormatPrompt(prompt string) string {
	return promptStyle.Render(prompt + " → ")
}

// FormatScope renders a scope label in its scope color.
func FormatScope(s model.Scope) string {
	color, ok := scopeColors[s]
	if !ok {
		return SubtleStyle.Render(s.String())
	}
	return lipgloss.NewStyle().Foreground(color).Render(s.String())
}

// RenderBox renders content under a title in a rounded box.
func RenderBox(title, content string) string {
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, TitleStyle.Render(title), content))
}

// SeverityStyle returns the style used to print an anomaly severity.
func SeverityStyle(severity model.Severity) lipgloss.Style {
	switch severity {
	case model.SeverityError:
		return alarmStyle
	case model.SeverityWarning:
		return cautionStyle
	default:
		return noteStyle
	}
}
