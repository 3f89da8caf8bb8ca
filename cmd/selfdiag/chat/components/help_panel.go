package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mrsinham/selfdiag/cmd/selfdiag/chat/help"
)

var (
	helpPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(60)

	helpTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("63")).
			Bold(true)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	helpDetailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))
)

// HelpPanel displays contextual help for the current phase
type HelpPanel struct {
	currentPhase string
	width        int
}

// NewHelpPanel creates a new help panel
func NewHelpPanel() *HelpPanel {
	return &HelpPanel{width: 60}
}

// SetPhase updates which phase's help to display
func (h *HelpPanel) SetPhase(phase string) {
	h.currentPhase = phase
}

// Phase returns the phase whose help is displayed
func (h *HelpPanel) Phase() string {
	return h.currentPhase
}

// SetWidth updates the panel width
func (h *HelpPanel) SetWidth(width int) {
	h.width = width
}

// View renders the help panel
func (h *HelpPanel) View() string {
	style := helpPanelStyle.Width(max(h.width-2, 20))

	text, ok := help.Texts[h.currentPhase]
	if !ok {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(helpTitleStyle.Render(text.Title))
	sb.WriteString("  ")
	sb.WriteString(helpDescStyle.Render(text.Description))
	sb.WriteString("\n")
	sb.WriteString(helpDetailStyle.Render(text.Details))

	return style.Render(sb.String())
}
