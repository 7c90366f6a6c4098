package notify

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var severityStyles = map[Severity]lipgloss.Style{
	Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	Success: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	Error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
}

// Console prints notifications as single lines, for one-shot commands.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Notify(message string, severity Severity) {
	style, ok := severityStyles[severity]
	if !ok {
		style = severityStyles[Info]
	}
	tag := style.Render("[" + strings.ToUpper(string(severity)) + "]")

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "%s %s\n", tag, message)
}
