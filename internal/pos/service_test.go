package pos_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/splitpay/internal/order"
	"github.com/MrJamesThe3rd/splitpay/internal/pos"
)

type recordingCreator struct {
	created []order.CreateParams
	failAt  int
}

func (c *recordingCreator) Create(_ context.Context, params order.CreateParams) (*order.Order, error) {
	if c.failAt > 0 && len(c.created)+1 == c.failAt {
		return nil, errors.New("database is down")
	}

	c.created = append(c.created, params)

	return &order.Order{ID: uuid.New(), RestaurantID: params.RestaurantID, TableID: params.TableID}, nil
}

const twoTables = "Mesa;Artigo;Qtd;Preço\n1;Sopa;2;2,80\n2;Bifana;1;4,50\n"

func TestService_Import(t *testing.T) {
	restaurantID := uuid.New()
	creator := &recordingCreator{}

	orders, err := pos.NewService(creator).Import(context.Background(), restaurantID, "EUR", strings.NewReader(twoTables))
	require.NoError(t, err)
	require.Len(t, orders, 2)

	for _, p := range creator.created {
		assert.Equal(t, restaurantID, p.RestaurantID)
		assert.Nil(t, p.Total, "total comes from the items")
	}

	assert.Equal(t, "1", orders[0].TableID)
	assert.Equal(t, "2", orders[1].TableID)
}

func TestService_Import_StopsOnFailure(t *testing.T) {
	creator := &recordingCreator{failAt: 2}

	orders, err := pos.NewService(creator).Import(context.Background(), uuid.New(), "EUR", strings.NewReader(twoTables))
	assert.ErrorContains(t, err, "creating order for table 2")
	assert.Len(t, orders, 1)
}
