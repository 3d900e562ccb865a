package refund_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/splitpay/internal/money"
	"github.com/MrJamesThe3rd/splitpay/internal/refund"
)

func TestHTTPGateway_Refund(t *testing.T) {
	cmd := refund.NewCommand(uuid.New(), "TRX-42", uuid.New(), money.New(1150, "EUR"), "order_closed")
	cmd.ID = uuid.New()

	t.Run("Success", func(t *testing.T) {
		var got map[string]any

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			assert.Equal(t, cmd.ID.String(), r.Header.Get("Idempotency-Key"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		err := refund.NewHTTPGateway(srv.URL, "secret", time.Second).Refund(context.Background(), cmd)
		require.NoError(t, err)

		assert.Equal(t, "TRX-42", got["transaction_id"])
		assert.Equal(t, float64(1150), got["amount"])
		assert.Equal(t, "EUR", got["currency"])
		assert.Equal(t, "order_closed", got["reason"])
		assert.Equal(t, cmd.ID.String(), got["refund_id"])
	})

	t.Run("NoToken", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get("Authorization"))
		}))
		defer srv.Close()

		err := refund.NewHTTPGateway(srv.URL, "", time.Second).Refund(context.Background(), cmd)
		assert.NoError(t, err)
	})

	t.Run("ProviderError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "transaction not refundable", http.StatusUnprocessableEntity)
		}))
		defer srv.Close()

		err := refund.NewHTTPGateway(srv.URL, "", time.Second).Refund(context.Background(), cmd)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "422")
		assert.Contains(t, err.Error(), "transaction not refundable")
	})
}
