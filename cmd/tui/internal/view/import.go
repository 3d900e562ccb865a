package view

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/splitpay/internal/order"
	"github.com/MrJamesThe3rd/splitpay/internal/pos"
	"github.com/MrJamesThe3rd/splitpay/internal/restaurant"
)

const importTimeout = 2 * time.Minute

type importState int

const (
	importStateLoading importState = iota
	importStateRestaurant
	importStateFilePick
	importStateImporting
	importStateResult
)

type ImportModel struct {
	restaurants *restaurant.Service
	importer    *pos.Service

	state      importState
	rests      []*restaurant.Restaurant
	restaurant *restaurant.Restaurant
	form       *huh.Form
	filePicker filepicker.Model
	created    list.Model

	status string
	err    error
}

func NewImportModel(rests *restaurant.Service, importer *pos.Service) ImportModel {
	fp := filepicker.New()
	fp.CurrentDirectory, _ = os.Getwd()
	fp.AllowedTypes = []string{".csv"}
	fp.ShowHidden = false
	fp.DirAllowed = false
	fp.FileAllowed = true
	fp.SetHeight(15)

	return ImportModel{
		restaurants: rests,
		importer:    importer,
		filePicker:  fp,
	}
}

func (m ImportModel) Title() string { return "Import POS Bills" }

func (m ImportModel) ShortHelp() string {
	if m.state == importStateResult {
		return "Esc: import another file"
	}

	return "Esc: back | Enter: select"
}

func (m ImportModel) Init() tea.Cmd {
	return loadRestaurantsCmd(m.restaurants)
}

func (m ImportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyEsc {
			return m.handleEsc()
		}

	case restaurantsMsg:
		if msg.err != nil {
			m.err = msg.err
			m.state = importStateResult

			return m, nil
		}

		if len(msg.restaurants) == 0 {
			m.err = errors.New("no restaurants onboarded yet")
			m.state = importStateResult

			return m, nil
		}

		m.rests = msg.restaurants
		m.form = restaurantForm(m.rests)
		m.state = importStateRestaurant

		return m, m.form.Init()

	case importResultMsg:
		m.state = importStateResult
		m.err = msg.err
		m.created = createdOrdersList(msg.orders)

		switch {
		case msg.err == nil:
			m.status = fmt.Sprintf("Imported %d bills into %s.", len(msg.orders), m.restaurant.Name)
		case len(msg.orders) > 0:
			m.status = fmt.Sprintf("Stopped after %d bills: %v", len(msg.orders), msg.err)
		default:
			m.status = fmt.Sprintf("Error: %v", msg.err)
		}

		return m, nil
	}

	switch m.state {
	case importStateRestaurant:
		return m.updateRestaurant(msg)
	case importStateFilePick:
		return m.updateFilePick(msg)
	case importStateResult:
		var cmd tea.Cmd
		m.created, cmd = m.created.Update(msg)

		return m, cmd
	}

	return m, nil
}

func (m ImportModel) handleEsc() (tea.Model, tea.Cmd) {
	switch m.state {
	case importStateFilePick:
		m.form = restaurantForm(m.rests)
		m.state = importStateRestaurant

		return m, m.form.Init()
	case importStateResult:
		if m.restaurant == nil {
			return m, Back
		}

		m.state = importStateFilePick
		m.err = nil
		m.status = ""

		return m, m.filePicker.Init()
	}

	return m, Back
}

func (m ImportModel) updateRestaurant(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	m.restaurant = selectedRestaurant(m.form, m.rests)
	m.form = nil
	m.state = importStateFilePick

	return m, m.filePicker.Init()
}

func (m ImportModel) updateFilePick(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.filePicker, cmd = m.filePicker.Update(msg)

	if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
		m.state = importStateImporting
		m.status = fmt.Sprintf("Importing bills from %s...", path)

		return m, m.importCmd(path)
	}

	return m, cmd
}

func (m ImportModel) View() string {
	switch m.state {
	case importStateLoading:
		return lipgloss.NewStyle().Padding(2).Render("Loading restaurants...")
	case importStateRestaurant:
		return lipgloss.NewStyle().Padding(1).Render(m.form.View())
	case importStateFilePick:
		return lipgloss.NewStyle().Padding(1).Render(
			fmt.Sprintf("Select POS export for %s:\n\n%s", activeStyle(m.restaurant.Name), m.filePicker.View()),
		)
	case importStateImporting:
		return lipgloss.NewStyle().Padding(2).Render(m.status)
	case importStateResult:
		return m.viewResult()
	}

	return ""
}

func (m ImportModel) viewResult() string {
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Render(m.status)
	if m.err != nil {
		status = errorStyle(m.status)
	}

	if len(m.created.Items()) == 0 {
		return lipgloss.NewStyle().Padding(2).Render(status + "\n\n(Esc to go back)")
	}

	return lipgloss.NewStyle().Padding(1).Render(status + "\n\n" + m.created.View())
}

// Messages

type importResultMsg struct {
	orders []*order.Order
	err    error
}

func (m ImportModel) importCmd(path string) tea.Cmd {
	r := m.restaurant

	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return importResultMsg{err: err}
		}
		defer f.Close()

		ctx, cancel := context.WithTimeout(context.Background(), importTimeout)
		defer cancel()

		orders, err := m.importer.Import(ctx, r.ID, r.Currency, f)

		return importResultMsg{orders: orders, err: err}
	}
}

// Created order list

type orderItem struct {
	order *order.Order
}

func (i orderItem) Title() string       { return i.order.TableID }
func (i orderItem) Description() string { return FormatMoney(i.order.Total) }
func (i orderItem) FilterValue() string { return i.order.TableID }

type orderDelegate struct{}

func (d orderDelegate) Height() int                             { return 1 }
func (d orderDelegate) Spacing() int                            { return 0 }
func (d orderDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d orderDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	item, ok := listItem.(orderItem)
	if !ok {
		return
	}

	cursor := "  "
	if index == m.Index() {
		cursor = "> "
	}

	fmt.Fprintf(w, "%s%-10s %3d items  %14s  %s",
		cursor,
		item.order.TableID,
		len(item.order.Items),
		FormatMoney(item.order.Total),
		item.order.ID.String()[:8],
	)
}

func createdOrdersList(orders []*order.Order) list.Model {
	items := make([]list.Item, len(orders))
	for i, o := range orders {
		items[i] = orderItem{order: o}
	}

	l := list.New(items, orderDelegate{}, 80, 20)
	l.Title = "Created orders"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)

	return l
}
