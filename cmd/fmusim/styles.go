package main

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ffff"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#888899"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888899")).Width(13)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ccff"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#666688"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff4444"))

	// rounded panel around each section
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444466")).Padding(0, 1)
)

func field(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}
