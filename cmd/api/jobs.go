package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrJamesThe3rd/splitpay/internal/config"
	"github.com/MrJamesThe3rd/splitpay/internal/payout"
)

// every runs fn on each tick until ctx is done. Runs never overlap.
func every(ctx context.Context, wg *sync.WaitGroup, name string, interval time.Duration, fn func(context.Context) error) {
	wg.Add(1)

	go func() {
		defer wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		slog.Info("job scheduled", "job", name, "interval", interval)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil && ctx.Err() == nil {
					slog.Error("job failed", "job", name, "error", err)
				}
			}
		}
	}()
}

func (s *services) startJobs(ctx context.Context, cfg *config.Config) *sync.WaitGroup {
	var wg sync.WaitGroup

	every(ctx, &wg, "sweep", cfg.Sweep.Interval, func(ctx context.Context) error {
		return s.sweep(ctx, cfg.Sweep.MaxAge, cfg.Sweep.Batch)
	})

	if cfg.Provider.RefundURL != "" {
		every(ctx, &wg, "refund-relay", cfg.Refund.Interval, func(ctx context.Context) error {
			report, err := s.relay.Flush(ctx)
			if report.Sent+report.Retrying+report.GaveUp > 0 {
				slog.Info("refunds flushed", "sent", report.Sent, "retrying", report.Retrying, "gave_up", report.GaveUp)
			}

			return err
		})
	} else {
		slog.Warn("PROVIDER_REFUND_URL not set, refunds stay queued")
	}

	if cfg.Settlement.Enabled {
		every(ctx, &wg, "settlement", cfg.Settlement.Interval, func(ctx context.Context) error {
			return s.settle(ctx, payout.Window(time.Now(), cfg.Settlement.Interval, cfg.Settlement.Lookback))
		})
	}

	return &wg
}

func (s *services) sweep(ctx context.Context, maxAge time.Duration, batch int) error {
	n, err := s.processor.SweepStale(ctx, time.Now().Add(-maxAge), batch)
	if n > 0 {
		slog.Info("stale payments failed", "count", n)
	}

	return err
}

func (s *services) settle(ctx context.Context, period payout.Period) error {
	report, err := s.aggregator.SettleAll(ctx, period)
	if err != nil {
		return err
	}

	slog.Info("settlement run finished",
		"from", period.From,
		"to", period.To,
		"created", len(report.Created),
		"empty", report.Empty,
		"failed", report.Failed,
	)

	for _, p := range report.Created {
		slog.Info("payout created",
			"payout_id", p.ID,
			"restaurant_id", p.RestaurantID,
			"amount", p.Amount.String(),
			"payments", p.PaymentCount,
		)
	}

	return nil
}
