package view

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Screen is a console page reachable from the main menu.
type Screen interface {
	tea.Model
	Title() string
	ShortHelp() string
}

// BackMsg asks the console to return to the main menu.
type BackMsg struct{}

func Back() tea.Msg {
	return BackMsg{}
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).PaddingLeft(1)
	helpStyle  = lipgloss.NewStyle().Faint(true).PaddingLeft(1)
)

// Frame renders s between a breadcrumb and its key bindings.
func Frame(s Screen) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Splitpay › "+s.Title()),
		s.View(),
		helpStyle.Render(s.ShortHelp()),
	)
}
