package webhook_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/splitpay/internal/http/webhook"
	"github.com/MrJamesThe3rd/splitpay/internal/money"
	"github.com/MrJamesThe3rd/splitpay/internal/order"
	"github.com/MrJamesThe3rd/splitpay/internal/payment"
	"github.com/MrJamesThe3rd/splitpay/internal/payout"
)

const secret = "whsec_test"

type fixture struct {
	router   http.Handler
	payments *webhook.MockPaymentIngester
	payouts  *webhook.MockPayoutMarker
}

func newFixture(t *testing.T) fixture {
	ctrl := gomock.NewController(t)

	f := fixture{
		payments: webhook.NewMockPaymentIngester(ctrl),
		payouts:  webhook.NewMockPayoutMarker(ctrl),
	}

	h := webhook.NewHandler(webhook.NewVerifier(secret, 5*time.Minute), f.payments, f.payouts)

	r := chi.NewRouter()
	r.Route("/webhooks/provider", h.Routes)
	f.router = r

	return f
}

func (f fixture) post(t *testing.T, path, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if signature != "" {
		req.Header.Set(webhook.SignatureHeader, signature)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	return w
}

func sign(t *testing.T, body string) string {
	sig, err := webhook.Sign(secret, []byte(body), time.Now())
	require.NoError(t, err)

	return sig
}

func TestHandler_Signature(t *testing.T) {
	body := `{"payout_id":"` + uuid.NewString() + `","status":"paid"}`

	type testCase struct {
		name      string
		signature func(t *testing.T) string
		body      string
	}

	tests := []testCase{
		{name: "Missing", signature: func(*testing.T) string { return "" }, body: body},
		{name: "Garbage", signature: func(*testing.T) string { return "not-a-token" }, body: body},
		{
			name: "WrongSecret",
			signature: func(t *testing.T) string {
				sig, err := webhook.Sign("other", []byte(body), time.Now())
				require.NoError(t, err)
				return sig
			},
			body: body,
		},
		{name: "TamperedBody", signature: func(t *testing.T) string { return sign(t, body) }, body: strings.Replace(body, "paid", "failed", 1)},
		{
			name: "TooOld",
			signature: func(t *testing.T) string {
				sig, err := webhook.Sign(secret, []byte(body), time.Now().Add(-time.Hour))
				require.NoError(t, err)
				return sig
			},
			body: body,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			w := f.post(t, "/webhooks/provider/payouts", tt.body, tt.signature(t))

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestHandler_Payment(t *testing.T) {
	orderID := uuid.New()
	paymentID := uuid.New()

	body := `{"transaction_id":"tx-1","order_id":"` + orderID.String() + `","guest_ref":"ana",` +
		`"principal":4550,"tip":0,"fee":70,"currency":"EUR","method":"card","outcome":"completed"}`

	t.Run("Completed", func(t *testing.T) {
		f := newFixture(t)

		f.payments.EXPECT().Ingest(gomock.Any(), payment.ProviderEvent{
			TransactionID: "tx-1",
			OrderID:       orderID,
			GuestRef:      "ana",
			Principal:     4550,
			Fee:           new(int64(70)),
			Currency:      "EUR",
			Method:        "card",
			Outcome:       payment.OutcomeCompleted,
		}).Return(&payment.Result{Payment: &payment.Payment{ID: paymentID, Status: payment.StatusCompleted}}, nil)

		w := f.post(t, "/webhooks/provider/payments", body, sign(t, body))

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"payment_id":"`+paymentID.String()+`","status":"completed","replayed":false}`, w.Body.String())
	})

	t.Run("RejectedChargeIsAcknowledged", func(t *testing.T) {
		f := newFixture(t)

		overpaid := &order.OverpaymentError{
			OrderID:   orderID,
			Total:     money.New(10000, "EUR"),
			Paid:      money.New(10000, "EUR"),
			Principal: money.New(4550, "EUR"),
		}

		f.payments.EXPECT().Ingest(gomock.Any(), gomock.Any()).Return(&payment.Result{
			Payment: &payment.Payment{ID: paymentID, Status: payment.StatusFailed, FailureReason: payment.ReasonOrderFullyPaid},
		}, overpaid)

		w := f.post(t, "/webhooks/provider/payments", body, sign(t, body))

		require.Equal(t, http.StatusOK, w.Code)

		var ack map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
		assert.Equal(t, "failed", ack["status"])
		assert.Equal(t, payment.ReasonOrderFullyPaid, ack["failure_reason"])
	})

	t.Run("InvalidEvent", func(t *testing.T) {
		f := newFixture(t)

		f.payments.EXPECT().Ingest(gomock.Any(), gomock.Any()).Return(nil, payment.ErrInvalidEvent)

		w := f.post(t, "/webhooks/provider/payments", body, sign(t, body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("UnknownOrder", func(t *testing.T) {
		f := newFixture(t)

		f.payments.EXPECT().Ingest(gomock.Any(), gomock.Any()).Return(nil, order.ErrNotFound)

		w := f.post(t, "/webhooks/provider/payments", body, sign(t, body))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		f := newFixture(t)

		w := f.post(t, "/webhooks/provider/payments", "{", sign(t, "{"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_Payout(t *testing.T) {
	payoutID := uuid.New()

	type testCase struct {
		name       string
		body       string
		setup      func(m *webhook.MockPayoutMarker)
		wantStatus int
	}

	tests := []testCase{
		{
			name: "Paid",
			body: `{"payout_id":"` + payoutID.String() + `","status":"paid"}`,
			setup: func(m *webhook.MockPayoutMarker) {
				m.EXPECT().Mark(gomock.Any(), payoutID, payout.StatusPaid, "").
					Return(&payout.Payout{ID: payoutID, Status: payout.StatusPaid}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "FailedWithReason",
			body: `{"payout_id":"` + payoutID.String() + `","status":"failed","reason":"account_closed"}`,
			setup: func(m *webhook.MockPayoutMarker) {
				m.EXPECT().Mark(gomock.Any(), payoutID, payout.StatusFailed, "account_closed").
					Return(&payout.Payout{ID: payoutID, Status: payout.StatusFailed}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "UnknownStatus",
			body:       `{"payout_id":"` + payoutID.String() + `","status":"bounced"}`,
			setup:      func(*webhook.MockPayoutMarker) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "OutOfOrder",
			body: `{"payout_id":"` + payoutID.String() + `","status":"in_transit"}`,
			setup: func(m *webhook.MockPayoutMarker) {
				m.EXPECT().Mark(gomock.Any(), payoutID, payout.StatusInTransit, "").
					Return(nil, &payout.IllegalTransitionError{PayoutID: payoutID, From: payout.StatusPaid, To: payout.StatusInTransit})
			},
			wantStatus: http.StatusConflict,
		},
		{
			name: "UnknownPayout",
			body: `{"payout_id":"` + payoutID.String() + `","status":"paid"}`,
			setup: func(m *webhook.MockPayoutMarker) {
				m.EXPECT().Mark(gomock.Any(), payoutID, payout.StatusPaid, "").Return(nil, payout.ErrNotFound)
			},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f.payouts)

			w := f.post(t, "/webhooks/provider/payouts", tt.body, sign(t, tt.body))

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
