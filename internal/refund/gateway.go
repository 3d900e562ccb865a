package refund

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPGateway posts refund commands to the provider's refund endpoint.
type HTTPGateway struct {
	client   *http.Client
	endpoint string
	token    string
}

func NewHTTPGateway(endpoint, token string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		client:   &http.Client{Timeout: timeout},
		endpoint: endpoint,
		token:    token,
	}
}

type refundRequest struct {
	RefundID      string `json:"refund_id"`
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Reason        string `json:"reason"`
}

func (g *HTTPGateway) Refund(ctx context.Context, cmd Command) error {
	body, err := json.Marshal(refundRequest{
		RefundID:      cmd.ID.String(),
		TransactionID: cmd.TransactionID,
		Amount:        cmd.Amount.Amount,
		Currency:      cmd.Amount.Currency,
		Reason:        cmd.Reason,
	})
	if err != nil {
		return fmt.Errorf("encoding refund: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", cmd.ID.String())

	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending refund: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	return fmt.Errorf("provider returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
}
