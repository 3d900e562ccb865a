package refund_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/splitpay/internal/money"
	"github.com/MrJamesThe3rd/splitpay/internal/refund"
)

func pendingCommand(attempts int) *refund.Command {
	cmd := refund.NewCommand(uuid.New(), "TRX-1", uuid.New(), money.New(2000, "EUR"), "order_fully_paid")
	cmd.ID = uuid.New()
	cmd.Attempts = attempts

	return &cmd
}

func TestRelay_Flush(t *testing.T) {
	ctx := context.Background()

	t.Run("ReclaimsStaleClaims", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := refund.NewMockRepository(ctrl)
		gateway := refund.NewMockGateway(ctrl)

		repo.EXPECT().ClaimPending(ctx, 10, gomock.Any()).DoAndReturn(
			func(_ context.Context, _ int, staleBefore time.Time) ([]*refund.Command, error) {
				assert.WithinDuration(t, time.Now().Add(-5*time.Minute), staleBefore, time.Minute)
				return nil, nil
			})

		report, err := refund.NewRelay(repo, gateway, nil, 5, 10).Flush(ctx)
		require.NoError(t, err)
		assert.Equal(t, refund.FlushReport{}, report)
	})

	t.Run("DeliversAndMarksSent", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := refund.NewMockRepository(ctrl)
		gateway := refund.NewMockGateway(ctrl)

		a, b := pendingCommand(0), pendingCommand(1)

		repo.EXPECT().ClaimPending(ctx, 10, gomock.Any()).Return([]*refund.Command{a, b}, nil)
		gateway.EXPECT().Refund(ctx, *a).Return(nil)
		gateway.EXPECT().Refund(ctx, *b).Return(nil)
		repo.EXPECT().MarkSent(ctx, a.ID, gomock.Any()).Return(nil)
		repo.EXPECT().MarkSent(ctx, b.ID, gomock.Any()).Return(nil)

		report, err := refund.NewRelay(repo, gateway, nil, 5, 10).Flush(ctx)
		require.NoError(t, err)
		assert.Equal(t, refund.FlushReport{Sent: 2}, report)
	})

	t.Run("RetriesUntilMaxAttempts", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := refund.NewMockRepository(ctrl)
		gateway := refund.NewMockGateway(ctrl)

		fresh, last := pendingCommand(0), pendingCommand(4)
		boom := errors.New("provider returned 503")

		repo.EXPECT().ClaimPending(ctx, 10, gomock.Any()).Return([]*refund.Command{fresh, last}, nil)
		gateway.EXPECT().Refund(ctx, gomock.Any()).Return(boom).Times(2)
		repo.EXPECT().RecordFailure(ctx, fresh.ID, boom.Error(), false).Return(nil)
		repo.EXPECT().RecordFailure(ctx, last.ID, boom.Error(), true).Return(nil)

		report, err := refund.NewRelay(repo, gateway, nil, 5, 10).Flush(ctx)
		require.NoError(t, err)
		assert.Equal(t, refund.FlushReport{Retrying: 1, GaveUp: 1}, report)
	})

	t.Run("ClaimError", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := refund.NewMockRepository(ctrl)
		gateway := refund.NewMockGateway(ctrl)

		repo.EXPECT().ClaimPending(ctx, 10, gomock.Any()).Return(nil, errors.New("connection refused"))

		_, err := refund.NewRelay(repo, gateway, nil, 5, 10).Flush(ctx)
		assert.ErrorContains(t, err, "claiming pending refunds")
	})

	t.Run("MarkSentError", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := refund.NewMockRepository(ctrl)
		gateway := refund.NewMockGateway(ctrl)

		cmd := pendingCommand(0)

		repo.EXPECT().ClaimPending(ctx, 10, gomock.Any()).Return([]*refund.Command{cmd}, nil)
		gateway.EXPECT().Refund(ctx, *cmd).Return(nil)
		repo.EXPECT().MarkSent(ctx, cmd.ID, gomock.Any()).Return(errors.New("tx aborted"))

		report, err := refund.NewRelay(repo, gateway, nil, 5, 10).Flush(ctx)
		assert.ErrorContains(t, err, "tx aborted")
		assert.Zero(t, report.Sent)
	})
}

// claimingRepo hands every pending command to exactly one caller, the way
// the store does with SKIP LOCKED.
type claimingRepo struct {
	mu   sync.Mutex
	cmds []*refund.Command
}

func (r *claimingRepo) ClaimPending(_ context.Context, limit int, _ time.Time) ([]*refund.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var claimed []*refund.Command

	for _, c := range r.cmds {
		if len(claimed) == limit {
			break
		}

		if c.Status == refund.StatusPending {
			c.Status = refund.StatusSending
			cp := *c
			claimed = append(claimed, &cp)
		}
	}

	return claimed, nil
}

func (r *claimingRepo) ListCommands(context.Context, *refund.Status) ([]*refund.Command, error) {
	return nil, nil
}

func (r *claimingRepo) MarkSent(_ context.Context, id uuid.UUID, _ time.Time) error {
	return r.finish(id, refund.StatusSent)
}

func (r *claimingRepo) RecordFailure(_ context.Context, id uuid.UUID, _ string, giveUp bool) error {
	if giveUp {
		return r.finish(id, refund.StatusFailed)
	}

	return r.finish(id, refund.StatusPending)
}

func (r *claimingRepo) finish(id uuid.UUID, status refund.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.cmds {
		if c.ID == id && c.Status == refund.StatusSending {
			c.Status = status
			return nil
		}
	}

	return refund.ErrNotFound
}

type countingGateway struct {
	mu    sync.Mutex
	calls map[uuid.UUID]int
}

func (g *countingGateway) Refund(_ context.Context, cmd refund.Command) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls[cmd.ID]++

	return nil
}

func TestRelay_Flush_ConcurrentFlushesSendOnce(t *testing.T) {
	repo := &claimingRepo{}
	for range 20 {
		repo.cmds = append(repo.cmds, pendingCommand(0))
	}

	gateway := &countingGateway{calls: map[uuid.UUID]int{}}
	relay := refund.NewRelay(repo, gateway, nil, 5, 4)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total refund.FlushReport
	)

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for {
				report, err := relay.Flush(context.Background())
				assert.NoError(t, err)

				mu.Lock()
				total.Sent += report.Sent
				mu.Unlock()

				if report.Sent == 0 {
					return
				}
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 20, total.Sent)
	require.Len(t, gateway.calls, 20)

	for id, n := range gateway.calls {
		assert.Equal(t, 1, n, "refund %s sent more than once", id)
	}
}
