package restaurant_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/splitpay/internal/restaurant"
)

func TestService_Create(t *testing.T) {
	type testCase struct {
		name      string
		params    restaurant.CreateParams
		setupMock func(m *restaurant.MockRepository)
		wantErr   error
	}

	tests := []testCase{
		{
			name:   "Success",
			params: restaurant.CreateParams{Name: " Tasca do Zé ", Currency: "eur", BankAccountRef: "PT50000201231234567890154"},
			setupMock: func(m *restaurant.MockRepository) {
				m.EXPECT().
					CreateRestaurant(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, r *restaurant.Restaurant) error {
						assert.Equal(t, "Tasca do Zé", r.Name)
						assert.Equal(t, "EUR", r.Currency)

						r.ID = uuid.New()
						r.CreatedAt = time.Now()

						return nil
					})
			},
		},
		{
			name:    "MissingName",
			params:  restaurant.CreateParams{Currency: "EUR", BankAccountRef: "PT50"},
			wantErr: restaurant.ErrInvalid,
		},
		{
			name:    "MissingBankAccount",
			params:  restaurant.CreateParams{Name: "Tasca", Currency: "EUR"},
			wantErr: restaurant.ErrInvalid,
		},
		{
			name:    "BadCurrency",
			params:  restaurant.CreateParams{Name: "Tasca", Currency: "euro", BankAccountRef: "PT50"},
			wantErr: restaurant.ErrInvalid,
		},
		{
			name:   "RepoError",
			params: restaurant.CreateParams{Name: "Tasca", Currency: "EUR", BankAccountRef: "PT50"},
			setupMock: func(m *restaurant.MockRepository) {
				m.EXPECT().
					CreateRestaurant(gomock.Any(), gomock.Any()).
					Return(errors.New("db error"))
			},
			wantErr: errors.New("db error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := restaurant.NewMockRepository(ctrl)
			if tt.setupMock != nil {
				tt.setupMock(repo)
			}

			svc := restaurant.NewService(repo)
			got, err := svc.Create(context.Background(), tt.params)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Nil(t, got)

				if errors.Is(tt.wantErr, restaurant.ErrInvalid) {
					assert.ErrorIs(t, err, restaurant.ErrInvalid)
				}

				return
			}

			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, got.ID)
		})
	}
}

func TestService_Get_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	id := uuid.New()

	repo := restaurant.NewMockRepository(ctrl)
	repo.EXPECT().GetRestaurant(gomock.Any(), id).Return(nil, restaurant.ErrNotFound)

	_, err := restaurant.NewService(repo).Get(context.Background(), id)
	assert.ErrorIs(t, err, restaurant.ErrNotFound)
}
