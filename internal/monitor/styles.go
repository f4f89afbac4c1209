package monitor

import "github.com/charmbracelet/lipgloss"

// Failure ratios at which the dashboard turns yellow and red.
const (
	warnRatio    = 0.01
	failingRatio = 0.05
)

// ANSI 256 palette.
const (
	colorAccent = lipgloss.Color("51")
	colorLabel  = lipgloss.Color("45")
	colorText   = lipgloss.Color("231")
	colorMuted  = lipgloss.Color("245")
	colorBorder = lipgloss.Color("238")
	colorOK     = lipgloss.Color("46")
	colorWarn   = lipgloss.Color("226")
	colorFail   = lipgloss.Color("196")
)

func fg(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

var (
	headerStyle    = fg(lipgloss.Color("0")).Background(colorAccent).Bold(true).Padding(0, 1)
	sectionStyle   = fg(colorAccent).Bold(true).MarginTop(1)
	labelStyle     = fg(colorLabel)
	valueStyle     = fg(colorText).Bold(true)
	dimStyle       = fg(colorMuted)
	columnStyle    = fg(colorMuted).Underline(true)
	sparklineStyle = fg(colorAccent)

	healthyStyle = fg(colorOK).Bold(true)
	warningStyle = fg(colorWarn).Bold(true)
	errorStyle   = fg(colorFail).Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(1, 2)
	footerStyle    = fg(colorMuted).MarginTop(1)
	footerKeyStyle = fg(colorAccent).Bold(true)
)
