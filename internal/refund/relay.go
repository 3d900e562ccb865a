package refund

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/metrics"
)

//go:generate mockgen -source=relay.go -destination=repository_mock.go -package=refund
type Repository interface {
	ClaimPending(ctx context.Context, limit int, staleBefore time.Time) ([]*Command, error)
	ListCommands(ctx context.Context, status *Status) ([]*Command, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordFailure(ctx context.Context, id uuid.UUID, reason string, giveUp bool) error
}

// Gateway is the provider's refund API.
type Gateway interface {
	Refund(ctx context.Context, cmd Command) error
}

// claimLease is how long a claimed command may stay unanswered before another
// relay picks it up. It outlasts any gateway timeout.
const claimLease = 5 * time.Minute

type Relay struct {
	repo        Repository
	gateway     Gateway
	metrics     *metrics.Metrics
	maxAttempts int
	batchSize   int
	now         func() time.Time
}

func NewRelay(repo Repository, gateway Gateway, m *metrics.Metrics, maxAttempts, batchSize int) *Relay {
	return &Relay{
		repo:        repo,
		gateway:     gateway,
		metrics:     m,
		maxAttempts: maxAttempts,
		batchSize:   batchSize,
		now:         time.Now,
	}
}

type FlushReport struct {
	Sent     int
	Retrying int
	GaveUp   int
}

// Flush claims and delivers up to one batch of pending commands. Concurrent
// flushes claim disjoint batches. A command that keeps failing is marked
// failed after maxAttempts and left for an operator.
func (r *Relay) Flush(ctx context.Context) (FlushReport, error) {
	var report FlushReport

	cmds, err := r.repo.ClaimPending(ctx, r.batchSize, r.now().Add(-claimLease))
	if err != nil {
		return report, fmt.Errorf("claiming pending refunds: %w", err)
	}

	for _, cmd := range cmds {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		sendErr := r.gateway.Refund(ctx, *cmd)
		if sendErr == nil {
			if err := r.repo.MarkSent(ctx, cmd.ID, r.now()); err != nil {
				return report, fmt.Errorf("marking refund %s sent: %w", cmd.ID, err)
			}

			report.Sent++
			r.metrics.RefundDelivered("sent")

			continue
		}

		giveUp := cmd.Attempts+1 >= r.maxAttempts
		if err := r.repo.RecordFailure(ctx, cmd.ID, sendErr.Error(), giveUp); err != nil {
			return report, fmt.Errorf("recording refund %s failure: %w", cmd.ID, err)
		}

		if giveUp {
			report.GaveUp++
			r.metrics.RefundDelivered("failed")
			slog.Error("refund gave up", "refund_id", cmd.ID, "payment_id", cmd.PaymentID, "attempts", cmd.Attempts+1, "error", sendErr)

			continue
		}

		report.Retrying++
		r.metrics.RefundDelivered("retry")
		slog.Warn("refund delivery failed", "refund_id", cmd.ID, "payment_id", cmd.PaymentID, "error", sendErr)
	}

	return report, nil
}

func (r *Relay) List(ctx context.Context, status *Status) ([]*Command, error) {
	return r.repo.ListCommands(ctx, status)
}
