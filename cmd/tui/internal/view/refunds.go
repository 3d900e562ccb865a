package view

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/splitpay/internal/refund"
)

var refundFilters = []*refund.Status{
	new(refund.StatusPending),
	new(refund.StatusSending),
	new(refund.StatusFailed),
	new(refund.StatusSent),
	nil,
}

type RefundsModel struct {
	relay *refund.Relay

	table    table.Model
	commands []*refund.Command
	filter   int
	flushing bool
	status   string
	err      error
}

func NewRefundsModel(relay *refund.Relay) RefundsModel {
	columns := []table.Column{
		{Title: "Created", Width: 17},
		{Title: "Transaction", Width: 16},
		{Title: "Amount", Width: 14},
		{Title: "Status", Width: 8},
		{Title: "Tries", Width: 5},
		{Title: "Last error", Width: 30},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return RefundsModel{relay: relay, table: t}
}

func (m RefundsModel) Title() string { return "Refunds" }

func (m RefundsModel) ShortHelp() string {
	return "Esc: back | s: cycle status | f: flush to provider | r: refresh"
}

func (m RefundsModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m RefundsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadRefundsMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}

		m.commands = msg.commands
		m.refreshTable()

		return m, nil

	case flushMsg:
		m.flushing = false
		m.status = fmt.Sprintf("Sent %d, retrying %d, gave up %d.", msg.report.Sent, msg.report.Retrying, msg.report.GaveUp)

		if msg.err != nil {
			m.status = errorStyle(fmt.Sprintf("Error: %v", msg.err))
		}

		return m, m.loadCmd()

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 12)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return m, Back
		case "r":
			return m, m.loadCmd()
		case "s":
			m.filter = (m.filter + 1) % len(refundFilters)
			return m, m.loadCmd()
		case "f":
			if m.flushing {
				return m, nil
			}

			m.flushing = true
			m.status = "Flushing refunds..."

			return m, m.flushCmd()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m RefundsModel) View() string {
	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(fmt.Sprintf("Error: %v", m.err))
	}

	label := "all"
	if f := refundFilters[m.filter]; f != nil {
		label = string(*f)
	}

	header := fmt.Sprintf("%s  (%d refunds)", activeStyle("status: "+label), len(m.commands))

	tableView := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Render(m.table.View())

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		tableView,
	)

	if m.status != "" {
		content = lipgloss.NewStyle().Faint(true).Render(m.status) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func (m *RefundsModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.commands))
	for _, c := range m.commands {
		rows = append(rows, table.Row{
			c.CreatedAt.Local().Format("2006-01-02 15:04"),
			c.TransactionID,
			FormatMoney(c.Amount),
			string(c.Status),
			fmt.Sprint(c.Attempts),
			c.LastError,
		})
	}

	m.table.SetRows(rows)
}

// Messages

type loadRefundsMsg struct {
	commands []*refund.Command
	err      error
}

type flushMsg struct {
	report refund.FlushReport
	err    error
}

func (m RefundsModel) loadCmd() tea.Cmd {
	status := refundFilters[m.filter]

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		cmds, err := m.relay.List(ctx, status)

		return loadRefundsMsg{commands: cmds, err: err}
	}
}

func (m RefundsModel) flushCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
		defer cancel()

		report, err := m.relay.Flush(ctx)

		return flushMsg{report: report, err: err}
	}
}
