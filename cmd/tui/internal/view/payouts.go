package view

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/splitpay/internal/payout"
	"github.com/MrJamesThe3rd/splitpay/internal/restaurant"
	"github.com/MrJamesThe3rd/splitpay/internal/statement"
)

type payoutsState int

const (
	payoutsStateLoading payoutsState = iota
	payoutsStateRestaurant
	payoutsStateBrowse
	payoutsStateFail
)

type PayoutsModel struct {
	restaurants  *restaurant.Service
	aggregator   *payout.Aggregator
	statements   *statement.Service
	statementDir string

	state      payoutsState
	rests      []*restaurant.Restaurant
	restaurant *restaurant.Restaurant
	form       *huh.Form
	table      table.Model
	payouts    []*payout.Payout
	balance    *payout.Balance
	err        error
	status     string
}

func NewPayoutsModel(rests *restaurant.Service, agg *payout.Aggregator, stmts *statement.Service, statementDir string) PayoutsModel {
	columns := []table.Column{
		{Title: "Payout", Width: 10},
		{Title: "From", Width: 12},
		{Title: "To", Width: 12},
		{Title: "Payments", Width: 9},
		{Title: "Net", Width: 14},
		{Title: "Status", Width: 11},
		{Title: "Reason", Width: 20},
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

	return PayoutsModel{
		restaurants:  rests,
		aggregator:   agg,
		statements:   stmts,
		statementDir: statementDir,
		table:        t,
	}
}

func (m PayoutsModel) Title() string { return "Payouts" }

func (m PayoutsModel) ShortHelp() string {
	if m.state == payoutsStateFail {
		return "Enter: confirm | Esc: cancel"
	}

	return "Esc: back | t: in transit | p: paid | f: failed | x: export statement | r: refresh"
}

func (m PayoutsModel) Init() tea.Cmd {
	return loadRestaurantsCmd(m.restaurants)
}

func (m PayoutsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case restaurantsMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}

		if len(msg.restaurants) == 0 {
			m.err = fmt.Errorf("no restaurants onboarded yet")
			return m, nil
		}

		m.rests = msg.restaurants
		m.form = restaurantForm(m.rests)
		m.state = payoutsStateRestaurant

		return m, m.form.Init()

	case loadPayoutsMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}

		m.payouts = msg.payouts
		m.balance = msg.balance
		m.refreshTable()

		return m, nil

	case payoutActionMsg:
		m.status = msg.status
		if msg.err != nil {
			m.status = errorStyle(fmt.Sprintf("Error: %v", msg.err))
		}

		m.state = payoutsStateBrowse
		m.form = nil
		m.table.Focus()

		return m, m.loadCmd()

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 12)
		return m, nil
	}

	switch m.state {
	case payoutsStateLoading:
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
			return m, Back
		}
	case payoutsStateRestaurant:
		return m.updateRestaurant(msg)
	case payoutsStateBrowse:
		return m.updateBrowse(msg)
	case payoutsStateFail:
		return m.updateFail(msg)
	}

	return m, nil
}

func (m PayoutsModel) updateRestaurant(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		return m, Back
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	m.restaurant = selectedRestaurant(m.form, m.rests)
	m.form = nil
	m.state = payoutsStateBrowse

	return m, m.loadCmd()
}

func (m PayoutsModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			return m, m.loadCmd()
		case "t":
			return m, m.markCmd(payout.StatusInTransit, "")
		case "p":
			return m, m.markCmd(payout.StatusPaid, "")
		case "f":
			return m.enterFailMode()
		case "x":
			return m, m.exportCmd()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m PayoutsModel) enterFailMode() (tea.Model, tea.Cmd) {
	if m.current() == nil {
		return m, nil
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("reason").
				Title("Failure reason").
				Placeholder("transfer_failed").
				Validate(func(s string) error {
					if strings.ContainsAny(s, "\n\t") {
						return fmt.Errorf("reason must be a single line")
					}
					return nil
				}),
		),
	).WithWidth(45).WithShowHelp(false)

	m.state = payoutsStateFail
	m.table.Blur()

	return m, m.form.Init()
}

func (m PayoutsModel) updateFail(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = payoutsStateBrowse
		m.form = nil
		m.table.Focus()

		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	return m, m.markCmd(payout.StatusFailed, strings.TrimSpace(m.form.GetString("reason")))
}

func (m PayoutsModel) current() *payout.Payout {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.payouts) {
		return nil
	}

	return m.payouts[idx]
}

func (m PayoutsModel) View() string {
	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(fmt.Sprintf("Error: %v", m.err))
	}

	switch m.state {
	case payoutsStateLoading:
		return lipgloss.NewStyle().Padding(2).Render("Loading restaurants...")
	case payoutsStateRestaurant:
		return lipgloss.NewStyle().Padding(1).Render(m.form.View())
	}

	header := activeStyle(m.restaurant.Name)
	if b := m.balance; b != nil {
		header += fmt.Sprintf(
			"  unsettled %s (%d payments) | pending %s | in transit %s | paid out %s",
			FormatMoney(b.Unsettled.Net), b.Unsettled.Count,
			FormatMoney(b.Pending), FormatMoney(b.InTransit), FormatMoney(b.PaidOut),
		)
	}

	tableView := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Render(m.table.View())

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		tableView,
	)

	if m.state == payoutsStateFail && m.form != nil {
		panel := lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Width(48).
			Render(fmt.Sprintf("Mark payout failed\n\n%s", m.form.View()))

		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel)
	}

	if m.status != "" {
		content = lipgloss.NewStyle().Faint(true).Render(m.status) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func (m *PayoutsModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.payouts))
	for _, p := range m.payouts {
		rows = append(rows, table.Row{
			p.ID.String()[:8],
			FormatDate(p.Period.From),
			FormatDate(p.Period.To),
			fmt.Sprint(p.PaymentCount),
			FormatMoney(p.Amount),
			string(p.Status),
			p.FailureReason,
		})
	}

	m.table.SetRows(rows)
}

// Messages

type loadPayoutsMsg struct {
	payouts []*payout.Payout
	balance *payout.Balance
	err     error
}

func (m PayoutsModel) loadCmd() tea.Cmd {
	if m.restaurant == nil {
		return nil
	}

	id := m.restaurant.ID

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		payouts, err := m.aggregator.History(ctx, id)
		if err != nil {
			return loadPayoutsMsg{err: err}
		}

		balance, err := m.aggregator.Balance(ctx, id)

		return loadPayoutsMsg{payouts: payouts, balance: balance, err: err}
	}
}

type payoutActionMsg struct {
	status string
	err    error
}

func (m PayoutsModel) markCmd(status payout.Status, reason string) tea.Cmd {
	p := m.current()
	if p == nil {
		return nil
	}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		updated, err := m.aggregator.Mark(ctx, p.ID, status, reason)
		if err != nil {
			return payoutActionMsg{err: err}
		}

		return payoutActionMsg{status: fmt.Sprintf("Payout %s is now %s.", updated.ID.String()[:8], updated.Status)}
	}
}

func (m PayoutsModel) exportCmd() tea.Cmd {
	p := m.current()
	if p == nil {
		return nil
	}

	dir := m.statementDir

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
		defer cancel()

		path, err := m.statements.Export(ctx, p.ID, dir)
		if err != nil {
			return payoutActionMsg{err: err}
		}

		return payoutActionMsg{status: "Statement written to " + path}
	}
}
