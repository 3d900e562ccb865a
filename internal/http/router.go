package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrJamesThe3rd/splitpay/internal/http/order"
	"github.com/MrJamesThe3rd/splitpay/internal/http/payment"
	"github.com/MrJamesThe3rd/splitpay/internal/http/payout"
	"github.com/MrJamesThe3rd/splitpay/internal/http/restaurant"
	"github.com/MrJamesThe3rd/splitpay/internal/http/webhook"
	"github.com/MrJamesThe3rd/splitpay/internal/metrics"
)

type Handlers struct {
	Restaurants *restaurant.Handler
	Orders      *order.Handler
	Payments    *payment.Handler
	Payouts     *payout.Handler
	Webhooks    *webhook.Handler
}

type Options struct {
	CORSOrigins []string
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
}

func New(h Handlers, opts Options) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(opts.Metrics.Middleware)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if opts.Gatherer != nil {
		router.Method(http.MethodGet, "/metrics", metrics.Handler(opts.Gatherer))
	}

	router.Route("/webhooks/provider", h.Webhooks.Routes)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"Content-Disposition"},
			MaxAge:         300,
		}))

		r.Route("/restaurants", func(r chi.Router) {
			h.Restaurants.Routes(r)
			h.Payouts.RestaurantRoutes(r)
		})

		r.Route("/orders", h.Orders.Routes)
		r.Route("/sessions", h.Orders.SessionRoutes)
		r.Route("/payments", h.Payments.Routes)
		r.Route("/refunds", h.Payments.RefundRoutes)
		r.Route("/payouts", h.Payouts.Routes)
	})

	return router
}
