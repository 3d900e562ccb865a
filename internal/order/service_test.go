package order_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/splitpay/internal/order"
)

func TestService_Create(t *testing.T) {
	restaurantID := uuid.New()

	type testCase struct {
		name      string
		params    order.CreateParams
		setupMock func(m *order.MockRepository)
		wantTotal int64
		wantErr   error
	}

	tests := []testCase{
		{
			name: "TotalFromItems",
			params: order.CreateParams{
				RestaurantID: restaurantID,
				TableID:      "T4",
				Currency:     "eur",
				Items: []order.ItemParams{
					{Name: "Bacalhau", UnitPrice: 1850, Quantity: 2},
					{Name: "Vinho verde", UnitPrice: 950, Quantity: 1},
				},
			},
			setupMock: func(m *order.MockRepository) {
				m.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, o *order.Order) error {
						o.ID = uuid.New()
						return nil
					})
			},
			wantTotal: 4650,
		},
		{
			name: "ExplicitTotalWithoutItems",
			params: order.CreateParams{
				RestaurantID: restaurantID,
				TableID:      "T1",
				Currency:     "EUR",
				Total:        new(int64(4550)),
			},
			setupMock: func(m *order.MockRepository) {
				m.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).Return(nil)
			},
			wantTotal: 4550,
		},
		{
			name: "TotalDisagreesWithItems",
			params: order.CreateParams{
				RestaurantID: restaurantID,
				TableID:      "T1",
				Currency:     "EUR",
				Total:        new(int64(100)),
				Items:        []order.ItemParams{{Name: "Bica", UnitPrice: 90, Quantity: 1}},
			},
			wantErr: order.ErrInvalid,
		},
		{
			name:    "MissingTable",
			params:  order.CreateParams{RestaurantID: restaurantID, Currency: "EUR"},
			wantErr: order.ErrInvalid,
		},
		{
			name: "BadQuantity",
			params: order.CreateParams{
				RestaurantID: restaurantID,
				TableID:      "T1",
				Currency:     "EUR",
				Items:        []order.ItemParams{{Name: "Bica", UnitPrice: 90}},
			},
			wantErr: order.ErrInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := order.NewMockRepository(ctrl)
			if tt.setupMock != nil {
				tt.setupMock(repo)
			}

			got, err := order.NewService(repo).Create(context.Background(), tt.params)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, got.Total.Amount)
			assert.Equal(t, "EUR", got.Total.Currency)
			assert.Equal(t, order.StatusOpen, got.Status)
		})
	}
}

func TestService_Close(t *testing.T) {
	t.Run("ClosesAndCommits", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		o := newOrder(1000)

		lo := order.NewMockLockedOrder(ctrl)
		lo.EXPECT().Order().Return(&o)
		lo.EXPECT().Save(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, saved *order.Order) error {
				assert.Equal(t, order.StatusClosed, saved.Status)
				assert.NotNil(t, saved.ClosedAt)

				return nil
			})
		lo.EXPECT().Commit().Return(nil)
		lo.EXPECT().Rollback().Return(nil)

		repo := order.NewMockRepository(ctrl)
		repo.EXPECT().BeginOrder(gomock.Any(), o.ID).Return(lo, nil)

		got, err := order.NewService(repo).Close(context.Background(), o.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusClosed, got.Status)
	})

	t.Run("AlreadyClosed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		o := order.Close(newOrder(1000), at)

		lo := order.NewMockLockedOrder(ctrl)
		lo.EXPECT().Order().Return(&o)
		lo.EXPECT().Rollback().Return(nil)

		repo := order.NewMockRepository(ctrl)
		repo.EXPECT().BeginOrder(gomock.Any(), o.ID).Return(lo, nil)

		got, err := order.NewService(repo).Close(context.Background(), o.ID)
		require.NoError(t, err)
		assert.Equal(t, at, *got.ClosedAt)
	})

	t.Run("NotFound", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := order.NewMockRepository(ctrl)
		repo.EXPECT().BeginOrder(gomock.Any(), gomock.Any()).Return(nil, order.ErrNotFound)

		_, err := order.NewService(repo).Close(context.Background(), uuid.New())
		assert.ErrorIs(t, err, order.ErrNotFound)
	})

	t.Run("SaveConflict", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		o := newOrder(1000)

		lo := order.NewMockLockedOrder(ctrl)
		lo.EXPECT().Order().Return(&o)
		lo.EXPECT().Save(gomock.Any(), gomock.Any()).Return(order.ErrVersionConflict)
		lo.EXPECT().Rollback().Return(nil)

		repo := order.NewMockRepository(ctrl)
		repo.EXPECT().BeginOrder(gomock.Any(), o.ID).Return(lo, nil)

		_, err := order.NewService(repo).Close(context.Background(), o.ID)
		assert.ErrorIs(t, err, order.ErrVersionConflict)
	})
}
