package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/FASTSHIFT/FPBInject-sub001/internal/model"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	occupiedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	emptyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	selectedStyle = lipgloss.NewStyle().Reverse(true)
)

// SlotTable renders the table in id order. selected marks one row with a
// reverse-video cursor; pass a negative id for no selection.
func SlotTable(records []model.SlotRecord, selected int) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-4s %-9s %-20s %-12s %-12s %8s",
		"ID", "STATE", "FUNCTION", "ORIG", "TARGET", "SIZE")))
	b.WriteString("\n")
	for _, rec := range records {
		line := slotLine(rec)
		switch {
		case rec.ID == selected:
			line = selectedStyle.Render(line)
		case rec.Occupied:
			line = occupiedStyle.Render(line)
		default:
			line = emptyStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func slotLine(rec model.SlotRecord) string {
	if !rec.Occupied {
		return fmt.Sprintf("%-4d %-9s %-20s %-12s %-12s %8s", rec.ID, "empty", "-", "-", "-", "-")
	}
	return fmt.Sprintf("%-4d %-9s %-20s %-12s %-12s %8d",
		rec.ID, "occupied", rec.FunctionName, rec.OriginalAddress, rec.TargetAddress, rec.CodeSize)
}
