package pos

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/order"
)

type OrderCreator interface {
	Create(ctx context.Context, params order.CreateParams) (*order.Order, error)
}

type Service struct {
	orders OrderCreator
}

func NewService(orders OrderCreator) *Service {
	return &Service{orders: orders}
}

// Import opens an order for every bill in a POS export. Orders are created
// one by one; on failure the ones already created are returned with the
// error.
func (s *Service) Import(ctx context.Context, restaurantID uuid.UUID, currency string, r io.Reader) ([]*order.Order, error) {
	params, err := NewParser(currency).Parse(r)
	if err != nil {
		return nil, err
	}

	created := make([]*order.Order, 0, len(params))

	for _, p := range params {
		p.RestaurantID = restaurantID

		o, err := s.orders.Create(ctx, p)
		if err != nil {
			return created, fmt.Errorf("creating order for table %s: %w", p.TableID, err)
		}

		created = append(created, o)
	}

	slog.Info("POS export imported", "restaurant_id", restaurantID, "orders", len(created))

	return created, nil
}
