package tui

import (
	"github.com/charmbracelet/lipgloss"
)

func renderConfirmLine(width int, body string) string {
	btnBase := lipgloss.NewStyle().Padding(0, 1).Foreground(colorSelectedFg).Background(colorSelectedBg)
	btnDanger := btnBase.Foreground(colorError).Bold(true)

	controls := lipgloss.JoinHorizontal(lipgloss.Top, btnDanger.Render("y delete"), " ", btnBase.Render("n keep"))
	line := lipgloss.JoinHorizontal(lipgloss.Top, styleWarn().Render(body), "  ", controls)
	return fitLine(line, width)
}
