// Package metrics holds the Prometheus collectors of the service. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "splitpay"

type Metrics struct {
	paymentsIngested *prometheus.CounterVec
	paymentsRejected *prometheus.CounterVec
	paymentsSwept    prometheus.Counter
	refundsQueued    prometheus.Counter
	refundsDelivered *prometheus.CounterVec
	settlements      *prometheus.CounterVec
	payoutNet        *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		paymentsIngested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_ingested_total",
			Help:      "Provider payment events ingested, by outcome and whether they were replays.",
		}, []string{"outcome", "replayed"}),
		paymentsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_rejected_total",
			Help:      "Charged payments that could not be applied to their order, by failure reason.",
		}, []string{"reason"}),
		paymentsSwept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_swept_total",
			Help:      "Pending payments failed by the stale sweep.",
		}),
		refundsQueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_queued_total",
			Help:      "Refund commands written to the outbox.",
		}),
		refundsDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refund_deliveries_total",
			Help:      "Refund delivery attempts, by result.",
		}, []string{"result"}),
		settlements: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Settlement runs, by result.",
		}, []string{"result"}),
		payoutNet: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payout_net_minor_units_total",
			Help:      "Net amount of created payouts in minor units, by currency.",
		}, []string{"currency"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by method, route pattern and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) PaymentIngested(outcome string, replayed bool) {
	if m == nil {
		return
	}

	m.paymentsIngested.WithLabelValues(outcome, strconv.FormatBool(replayed)).Inc()
}

func (m *Metrics) PaymentRejected(reason string) {
	if m == nil {
		return
	}

	m.paymentsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) PaymentsSwept(n int) {
	if m == nil {
		return
	}

	m.paymentsSwept.Add(float64(n))
}

func (m *Metrics) RefundQueued() {
	if m == nil {
		return
	}

	m.refundsQueued.Inc()
}

func (m *Metrics) RefundDelivered(result string) {
	if m == nil {
		return
	}

	m.refundsDelivered.WithLabelValues(result).Inc()
}

func (m *Metrics) Settlement(result string) {
	if m == nil {
		return
	}

	m.settlements.WithLabelValues(result).Inc()
}

func (m *Metrics) PayoutCreated(currency string, net int64) {
	if m == nil {
		return
	}

	m.payoutNet.WithLabelValues(currency).Add(float64(net))
}

// Middleware observes request latency labelled with the chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		m.httpDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	})
}

// Handler serves the collectors gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
