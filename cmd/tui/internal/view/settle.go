package view

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/splitpay/internal/payout"
)

type settleState int

const (
	settleStatePeriod settleState = iota
	settleStateConfirm
	settleStateRunning
	settleStateResult
)

type SettleModel struct {
	aggregator *payout.Aggregator

	state           settleState
	err             error
	timeframePicker TimeframePicker

	period  payout.Period
	form    *huh.Form
	spinner spinner.Model
	report  payout.SettleReport
}

func NewSettleModel(aggregator *payout.Aggregator) SettleModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return SettleModel{
		aggregator:      aggregator,
		state:           settleStatePeriod,
		timeframePicker: NewTimeframePicker(TimeframeYesterday),
		spinner:         s,
	}
}

func (m SettleModel) Title() string { return "Run Settlement" }

func (m SettleModel) ShortHelp() string {
	switch m.state {
	case settleStateResult:
		return "Esc: back to menu"
	case settleStateRunning:
		return "Settling..."
	}

	return "Esc: back | Enter: confirm"
}

func (m SettleModel) Init() tea.Cmd {
	return nil
}

func (m SettleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if sel, ok := msg.(PeriodSelectedMsg); ok {
		m.period = sel.Period
		m.form = m.buildConfirmForm()
		m.state = settleStateConfirm

		return m, m.form.Init()
	}

	switch m.state {
	case settleStatePeriod:
		return m.updatePeriod(msg)
	case settleStateConfirm:
		return m.updateConfirm(msg)
	case settleStateRunning:
		return m.updateRunning(msg)
	case settleStateResult:
		return m.updateResult(msg)
	}

	return m, nil
}

func (m SettleModel) updatePeriod(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		if keyMsg.Type == tea.KeyEsc && m.timeframePicker.IsSelecting() {
			return m, Back
		}
	}

	var cmd tea.Cmd
	m.timeframePicker, cmd = m.timeframePicker.Update(msg)

	return m, cmd
}

func (m SettleModel) updateConfirm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		if keyMsg.Type == tea.KeyEsc {
			m.state = settleStatePeriod
			m.timeframePicker.Reset()

			return m, nil
		}
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	if !m.form.GetBool("confirm") {
		m.state = settleStatePeriod
		m.timeframePicker.Reset()

		return m, nil
	}

	m.state = settleStateRunning
	m.err = nil

	return m, tea.Batch(m.spinner.Tick, m.runSettlementCmd(m.period))
}

func (m SettleModel) updateRunning(msg tea.Msg) (tea.Model, tea.Cmd) {
	if result, ok := msg.(settleResultMsg); ok {
		m.state = settleStateResult
		m.err = result.err
		m.report = result.report

		return m, nil
	}

	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)

	return m, cmd
}

func (m SettleModel) updateResult(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		if keyMsg.Type == tea.KeyEsc {
			return m, Back
		}
	}

	return m, nil
}

func (m SettleModel) buildConfirmForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Key("confirm").
				Title(fmt.Sprintf("Settle every restaurant for %s to %s?", FormatDate(m.period.From), FormatDate(m.period.To))).
				Description("Payments completed in the period and not yet paid out are grouped into one payout per restaurant.").
				Affirmative("Settle").
				Negative("Cancel"),
		),
	).WithWidth(60).WithShowHelp(false)
}

func (m SettleModel) View() string {
	switch m.state {
	case settleStatePeriod:
		return lipgloss.NewStyle().Padding(1).Render(m.timeframePicker.View())

	case settleStateConfirm:
		return lipgloss.NewStyle().Padding(1).Render(m.form.View())

	case settleStateRunning:
		return lipgloss.NewStyle().Padding(1).Render(
			fmt.Sprintf("%s Settling restaurants...", m.spinner.View()),
		)

	case settleStateResult:
		return m.viewResult()
	}

	return ""
}

func (m SettleModel) viewResult() string {
	if m.err != nil {
		return lipgloss.NewStyle().Padding(1).Render(errorStyle(fmt.Sprintf("Error: %v", m.err)))
	}

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("46")).
		Render("Settlement Complete!")

	var sb strings.Builder

	fmt.Fprintf(&sb, "Payouts created: %d\n", len(m.report.Created))
	fmt.Fprintf(&sb, "Nothing to settle: %d\n", m.report.Empty)

	if m.report.Failed > 0 {
		sb.WriteString(errorStyle(fmt.Sprintf("Failed: %d (see logs)", m.report.Failed)) + "\n")
	}

	for _, p := range m.report.Created {
		fmt.Fprintf(&sb, "\n  %s  %3d payments  %s", p.ID.String()[:8], p.PaymentCount, FormatMoney(p.Amount))
	}

	return lipgloss.NewStyle().Padding(1).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, "", sb.String()),
	)
}

type settleResultMsg struct {
	report payout.SettleReport
	err    error
}

const settleTimeout = 2 * time.Minute

func (m SettleModel) runSettlementCmd(period payout.Period) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
		defer cancel()

		report, err := m.aggregator.SettleAll(ctx, period)

		return settleResultMsg{report: report, err: err}
	}
}
