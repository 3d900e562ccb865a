package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/splitpay/internal/order"
	"github.com/MrJamesThe3rd/splitpay/internal/payment"
	"github.com/MrJamesThe3rd/splitpay/internal/restaurant"
)

type ordersState int

const (
	ordersStateLoading ordersState = iota
	ordersStateRestaurant
	ordersStateBrowse
)

// statusFilters is the cycle of the s key. nil shows every order.
var statusFilters = []*order.Status{
	nil,
	new(order.StatusOpen),
	new(order.StatusPartiallyPaid),
	new(order.StatusPaid),
	new(order.StatusClosed),
}

type OrdersModel struct {
	restaurants *restaurant.Service
	orders      *order.Service
	processor   *payment.Processor

	state      ordersState
	rests      []*restaurant.Restaurant
	restaurant *restaurant.Restaurant
	form       *huh.Form
	table      table.Model
	bar        progress.Model
	list       []*order.Order
	filter     int
	summary    *payment.Summary
	status     string
	err        error
}

func NewOrdersModel(rests *restaurant.Service, orders *order.Service, processor *payment.Processor) OrdersModel {
	columns := []table.Column{
		{Title: "Table", Width: 10},
		{Title: "Opened", Width: 17},
		{Title: "Total", Width: 14},
		{Title: "Status", Width: 15},
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

	return OrdersModel{
		restaurants: rests,
		orders:      orders,
		processor:   processor,
		table:       t,
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func (m OrdersModel) Title() string { return "Orders" }

func (m OrdersModel) ShortHelp() string {
	return "Esc: back | Enter: payments | s: cycle status | c: close order | r: refresh"
}

func (m OrdersModel) Init() tea.Cmd {
	return loadRestaurantsCmd(m.restaurants)
}

func (m OrdersModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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
		m.state = ordersStateRestaurant

		return m, m.form.Init()

	case loadOrdersMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}

		m.list = msg.orders
		m.summary = nil
		m.refreshTable()

		return m, nil

	case summaryMsg:
		if msg.err != nil {
			m.status = errorStyle(fmt.Sprintf("Error: %v", msg.err))
			return m, nil
		}

		m.summary = msg.summary

		return m, nil

	case orderClosedMsg:
		m.status = msg.status
		if msg.err != nil {
			m.status = errorStyle(fmt.Sprintf("Error: %v", msg.err))
		}

		return m, m.loadCmd()

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 12)
		return m, nil
	}

	switch m.state {
	case ordersStateLoading:
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
			return m, Back
		}
	case ordersStateRestaurant:
		return m.updateRestaurant(msg)
	case ordersStateBrowse:
		return m.updateBrowse(msg)
	}

	return m, nil
}

func (m OrdersModel) updateRestaurant(msg tea.Msg) (tea.Model, tea.Cmd) {
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
	m.state = ordersStateBrowse

	return m, m.loadCmd()
}

func (m OrdersModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			if m.summary != nil {
				m.summary = nil
				return m, nil
			}

			return m, Back
		case "r":
			return m, m.loadCmd()
		case "s":
			m.filter = (m.filter + 1) % len(statusFilters)
			return m, m.loadCmd()
		case "enter":
			return m, m.summaryCmd()
		case "c":
			return m, m.closeCmd()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m OrdersModel) current() *order.Order {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.list) {
		return nil
	}

	return m.list[idx]
}

func (m OrdersModel) filterLabel() string {
	if f := statusFilters[m.filter]; f != nil {
		return string(*f)
	}

	return "all"
}

func (m OrdersModel) View() string {
	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(fmt.Sprintf("Error: %v", m.err))
	}

	switch m.state {
	case ordersStateLoading:
		return lipgloss.NewStyle().Padding(2).Render("Loading restaurants...")
	case ordersStateRestaurant:
		return lipgloss.NewStyle().Padding(1).Render(m.form.View())
	}

	header := fmt.Sprintf("%s  status: %s  (%d orders)", activeStyle(m.restaurant.Name), m.filterLabel(), len(m.list))

	tableView := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Render(m.table.View())

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		tableView,
	)

	if m.summary != nil {
		panel := lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Width(60).
			Render(m.viewSummary())

		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel)
	}

	if m.status != "" {
		content = lipgloss.NewStyle().Faint(true).Render(m.status) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func (m OrdersModel) viewSummary() string {
	s := m.summary
	pct, _ := s.Progress.Float64()

	var b strings.Builder

	fmt.Fprintf(&b, "Table %s  %s\n\n", s.Order.TableID, s.Order.Status)
	fmt.Fprintf(&b, "%s\n\n", m.bar.ViewAs(pct/100))
	fmt.Fprintf(&b, "Total      %s\n", FormatMoney(s.Order.Total))
	fmt.Fprintf(&b, "Paid       %s\n", FormatMoney(s.Paid))
	fmt.Fprintf(&b, "Remaining  %s\n", FormatMoney(s.Remaining))
	fmt.Fprintf(&b, "Tips       %s\n", FormatMoney(s.Tips))
	fmt.Fprintf(&b, "Fees       %s\n", FormatMoney(s.Fees))

	if sess := s.Session; sess != nil && sess.Mode != nil {
		state := "active"
		if !sess.Active {
			state = "closed"
		}

		fmt.Fprintf(&b, "\nSplit: %s, %s, %d paid\n", sess.Mode.Kind(), state, len(sess.Paid))
	}

	if len(s.Payments) > 0 {
		b.WriteString("\nPayments\n")
	}

	for _, p := range s.Payments {
		guest := p.GuestRef
		if guest == "" {
			guest = "-"
		}

		fmt.Fprintf(&b, "  %-10s %12s  %s\n", guest, FormatMoney(p.Principal), p.Status)
	}

	return b.String()
}

func (m *OrdersModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.list))
	for _, o := range m.list {
		rows = append(rows, table.Row{
			o.TableID,
			o.CreatedAt.Local().Format("2006-01-02 15:04"),
			FormatMoney(o.Total),
			string(o.Status),
		})
	}

	m.table.SetRows(rows)
}

// Messages

type loadOrdersMsg struct {
	orders []*order.Order
	err    error
}

type summaryMsg struct {
	summary *payment.Summary
	err     error
}

type orderClosedMsg struct {
	status string
	err    error
}

func (m OrdersModel) loadCmd() tea.Cmd {
	if m.restaurant == nil {
		return nil
	}

	filter := order.ListFilter{
		RestaurantID: &m.restaurant.ID,
		Status:       statusFilters[m.filter],
	}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		orders, err := m.orders.List(ctx, filter)

		return loadOrdersMsg{orders: orders, err: err}
	}
}

func (m OrdersModel) summaryCmd() tea.Cmd {
	o := m.current()
	if o == nil {
		return nil
	}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		s, err := m.processor.Summary(ctx, o.ID)

		return summaryMsg{summary: s, err: err}
	}
}

func (m OrdersModel) closeCmd() tea.Cmd {
	o := m.current()
	if o == nil {
		return nil
	}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		closed, err := m.orders.Close(ctx, o.ID)
		if err != nil {
			return orderClosedMsg{err: err}
		}

		return orderClosedMsg{status: fmt.Sprintf("Table %s closed.", closed.TableID)}
	}
}
