package main

import (
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrJamesThe3rd/splitpay/cmd/tui/internal/view"
	"github.com/MrJamesThe3rd/splitpay/internal/config"
	"github.com/MrJamesThe3rd/splitpay/internal/database"
	"github.com/MrJamesThe3rd/splitpay/internal/logging"
	"github.com/MrJamesThe3rd/splitpay/internal/metrics"
	"github.com/MrJamesThe3rd/splitpay/internal/order"
	orderStore "github.com/MrJamesThe3rd/splitpay/internal/order/store"
	"github.com/MrJamesThe3rd/splitpay/internal/payment"
	paymentStore "github.com/MrJamesThe3rd/splitpay/internal/payment/store"
	"github.com/MrJamesThe3rd/splitpay/internal/payout"
	payoutStore "github.com/MrJamesThe3rd/splitpay/internal/payout/store"
	"github.com/MrJamesThe3rd/splitpay/internal/pos"
	"github.com/MrJamesThe3rd/splitpay/internal/refund"
	refundStore "github.com/MrJamesThe3rd/splitpay/internal/refund/store"
	"github.com/MrJamesThe3rd/splitpay/internal/restaurant"
	restaurantStore "github.com/MrJamesThe3rd/splitpay/internal/restaurant/store"
	"github.com/MrJamesThe3rd/splitpay/internal/statement"
)

type model struct {
	restaurants  *restaurant.Service
	orders       *order.Service
	processor    *payment.Processor
	relay        *refund.Relay
	aggregator   *payout.Aggregator
	statements   *statement.Service
	importer     *pos.Service
	statementDir string

	currentView View

	payoutsView view.PayoutsModel
	settleView  view.SettleModel
	ordersView  view.OrdersModel
	importView  view.ImportModel
	refundsView view.RefundsModel
}

type View int

const (
	ViewMenu    View = 0
	ViewPayouts View = 1
	ViewSettle  View = 2
	ViewOrders  View = 3
	ViewImport  View = 4
	ViewRefunds View = 5
)

func initialModel() model {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// The terminal belongs to the UI, logs go to a file.
	logFile, err := os.OpenFile(filepath.Join(os.TempDir(), "splitpay-tui.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err == nil {
		logging.Setup(logFile, logging.FormatJSON, cfg.Log.Level)
	}

	db, err := database.New(cfg.ConnectionString(), database.PoolConfig{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	m := metrics.New(prometheus.NewRegistry())
	fees := payment.FeeSchedule{BasisPoints: cfg.Fees.BasisPoints, Fixed: cfg.Fees.Fixed}
	gateway := refund.NewHTTPGateway(cfg.Provider.RefundURL, cfg.Provider.RefundToken, cfg.Provider.RefundTimeout)

	restSvc := restaurant.NewService(restaurantStore.New(db))
	orderSvc := order.NewService(orderStore.New(db))
	processor := payment.NewProcessor(paymentStore.New(db), fees, m)
	relay := refund.NewRelay(refundStore.New(db), gateway, m, cfg.Refund.MaxAttempts, cfg.Refund.Batch)
	aggregator := payout.NewAggregator(payoutStore.New(db), m)
	stmtSvc := statement.NewService(aggregator)
	importer := pos.NewService(orderSvc)

	return model{
		restaurants:  restSvc,
		orders:       orderSvc,
		processor:    processor,
		relay:        relay,
		aggregator:   aggregator,
		statements:   stmtSvc,
		importer:     importer,
		statementDir: cfg.Statement.Dir,
		currentView:  ViewMenu,
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.currentView == ViewMenu {
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "1":
				m.currentView = ViewPayouts
				m.payoutsView = view.NewPayoutsModel(m.restaurants, m.aggregator, m.statements, m.statementDir)

				return m, m.payoutsView.Init()
			case "2":
				m.currentView = ViewSettle
				m.settleView = view.NewSettleModel(m.aggregator)

				return m, m.settleView.Init()
			case "3":
				m.currentView = ViewOrders
				m.ordersView = view.NewOrdersModel(m.restaurants, m.orders, m.processor)

				return m, m.ordersView.Init()
			case "4":
				m.currentView = ViewImport
				m.importView = view.NewImportModel(m.restaurants, m.importer)

				return m, m.importView.Init()
			case "5":
				m.currentView = ViewRefunds
				m.refundsView = view.NewRefundsModel(m.relay)

				return m, m.refundsView.Init()
			}
		}
	case view.BackMsg:
		m.currentView = ViewMenu
		return m, nil
	}

	switch m.currentView {
	case ViewPayouts:
		var newModel tea.Model
		newModel, cmd = m.payoutsView.Update(msg)
		m.payoutsView = newModel.(view.PayoutsModel)
	case ViewSettle:
		var newModel tea.Model
		newModel, cmd = m.settleView.Update(msg)
		m.settleView = newModel.(view.SettleModel)
	case ViewOrders:
		var newModel tea.Model
		newModel, cmd = m.ordersView.Update(msg)
		m.ordersView = newModel.(view.OrdersModel)
	case ViewImport:
		var newModel tea.Model
		newModel, cmd = m.importView.Update(msg)
		m.importView = newModel.(view.ImportModel)
	case ViewRefunds:
		var newModel tea.Model
		newModel, cmd = m.refundsView.Update(msg)
		m.refundsView = newModel.(view.RefundsModel)
	}

	return m, cmd
}

func (m model) View() string {
	switch m.currentView {
	case ViewMenu:
		return lipgloss.NewStyle().Padding(2).Render(
			"Splitpay Console\n\n" +
				"1. Payouts\n" +
				"2. Run Settlement\n" +
				"3. Orders\n" +
				"4. Import POS Bills\n" +
				"5. Refunds\n\n" +
				"q. Quit",
		)
	case ViewPayouts:
		return view.Frame(m.payoutsView)
	case ViewSettle:
		return view.Frame(m.settleView)
	case ViewOrders:
		return view.Frame(m.ordersView)
	case ViewImport:
		return view.Frame(m.importView)
	case ViewRefunds:
		return view.Frame(m.refundsView)
	}

	return "Unknown View"
}

func main() {
	p := tea.NewProgram(initialModel())
	if _, err := p.Run(); err != nil {
		slog.Error("failed to run TUI", "error", err)
		os.Exit(1)
	}
}
