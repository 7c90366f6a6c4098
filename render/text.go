package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"crm-clients/models"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	nameStyle  = lipgloss.NewStyle().Bold(true)

	badgeStyles = map[models.ClientType]lipgloss.Style{
		models.TypeVIP:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220")),
		models.TypeNuevo:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		models.TypeRegular: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
)

// Text draws the list for a terminal.
type Text struct{}

func (Text) Render(w io.Writer, v View) error {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Clients (%d)", v.Count)))
	b.WriteString("\n")

	if v.Count == 0 {
		b.WriteString(mutedStyle.Render(EmptyMessage))
		b.WriteString("\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	for _, row := range Rows(v) {
		badge, ok := badgeStyles[row.Type]
		if !ok {
			badge = badgeStyles[models.TypeRegular]
		}
		fmt.Fprintf(&b, "  #%-4d %s %s\n", row.ID, nameStyle.Render(row.Name), badge.Render("["+row.Label+"]"))
		fmt.Fprintf(&b, "        %s\n", mutedStyle.Render(row.Email+" | "+row.Phone))
	}
	_, err := io.WriteString(w, b.String())
	return err
}
