package main

import (
	"database/sql"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/MrJamesThe3rd/splitpay/internal/config"
	"github.com/MrJamesThe3rd/splitpay/internal/database"
	splitpayHttp "github.com/MrJamesThe3rd/splitpay/internal/http"
	orderHandler "github.com/MrJamesThe3rd/splitpay/internal/http/order"
	paymentHandler "github.com/MrJamesThe3rd/splitpay/internal/http/payment"
	payoutHandler "github.com/MrJamesThe3rd/splitpay/internal/http/payout"
	restaurantHandler "github.com/MrJamesThe3rd/splitpay/internal/http/restaurant"
	"github.com/MrJamesThe3rd/splitpay/internal/http/webhook"
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
	"github.com/MrJamesThe3rd/splitpay/internal/split"
	splitStore "github.com/MrJamesThe3rd/splitpay/internal/split/store"
	"github.com/MrJamesThe3rd/splitpay/internal/statement"
)

// services is everything the commands run against, built once per process.
type services struct {
	db       *sql.DB
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	restaurants *restaurant.Service
	orders      *order.Service
	sessions    *split.Service
	processor   *payment.Processor
	relay       *refund.Relay
	aggregator  *payout.Aggregator
	statements  *statement.Service
	imports     *pos.Service
}

func connect(cfg *config.Config) (*sql.DB, error) {
	db, err := database.New(cfg.ConnectionString(), database.PoolConfig{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return db, nil
}

func newServices(cfg *config.Config, db *sql.DB) *services {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewDBStatsCollector(db, cfg.DB.Name))

	m := metrics.New(reg)

	fees := payment.FeeSchedule{BasisPoints: cfg.Fees.BasisPoints, Fixed: cfg.Fees.Fixed}
	gateway := refund.NewHTTPGateway(cfg.Provider.RefundURL, cfg.Provider.RefundToken, cfg.Provider.RefundTimeout)

	s := &services{
		db:          db,
		registry:    reg,
		metrics:     m,
		restaurants: restaurant.NewService(restaurantStore.New(db)),
		orders:      order.NewService(orderStore.New(db)),
		sessions:    split.NewService(splitStore.New(db)),
		processor:   payment.NewProcessor(paymentStore.New(db), fees, m),
		relay:       refund.NewRelay(refundStore.New(db), gateway, m, cfg.Refund.MaxAttempts, cfg.Refund.Batch),
		aggregator:  payout.NewAggregator(payoutStore.New(db), m),
	}

	s.statements = statement.NewService(s.aggregator)
	s.imports = pos.NewService(s.orders)

	return s
}

func (s *services) router(cfg *config.Config) http.Handler {
	verifier := webhook.NewVerifier(cfg.Provider.WebhookSecret, cfg.Provider.SignatureMaxAge)

	return splitpayHttp.New(splitpayHttp.Handlers{
		Restaurants: restaurantHandler.NewHandler(s.restaurants, s.imports),
		Orders:      orderHandler.NewHandler(s.orders, s.sessions, s.processor),
		Payments:    paymentHandler.NewHandler(s.processor, s.relay),
		Payouts:     payoutHandler.NewHandler(s.aggregator, s.statements),
		Webhooks:    webhook.NewHandler(verifier, s.processor, s.aggregator),
	}, splitpayHttp.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		Metrics:     s.metrics,
		Gatherer:    s.registry,
	})
}
