package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/money"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=order
type Repository interface {
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]*Order, error)

	BeginOrder(ctx context.Context, id uuid.UUID) (LockedOrder, error)
}

// LockedOrder holds the row lock of one order until Commit or Rollback.
type LockedOrder interface {
	Order() *Order
	Save(ctx context.Context, o *Order) error
	Commit() error
	Rollback() error
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

type ItemParams struct {
	Name      string
	UnitPrice int64
	Quantity  int
}

type CreateParams struct {
	RestaurantID uuid.UUID
	TableID      string
	Currency     string
	// Total in minor units. Nil means the sum of the items.
	Total *int64
	Items []ItemParams
}

type ListFilter struct {
	RestaurantID *uuid.UUID
	Status       *Status
	TableID      string
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*Order, error) {
	currency, err := money.NormalizeCurrency(params.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if params.RestaurantID == uuid.Nil {
		return nil, fmt.Errorf("%w: restaurant is required", ErrInvalid)
	}

	tableID := strings.TrimSpace(params.TableID)
	if tableID == "" {
		return nil, fmt.Errorf("%w: table is required", ErrInvalid)
	}

	items := make([]Item, 0, len(params.Items))
	itemsTotal := money.Zero(currency)

	for i, p := range params.Items {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: item %d has no name", ErrInvalid, i)
		}

		if p.Quantity < 1 || p.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: item %q needs a positive quantity and a non-negative price", ErrInvalid, name)
		}

		item := Item{Name: name, UnitPrice: money.New(p.UnitPrice, currency), Quantity: p.Quantity}
		items = append(items, item)
		itemsTotal = itemsTotal.Add(item.Total())
	}

	total := itemsTotal
	if params.Total != nil {
		total = money.New(*params.Total, currency)

		if total.IsNegative() {
			return nil, fmt.Errorf("%w: total is negative", ErrInvalid)
		}

		if len(items) > 0 && total.Cmp(itemsTotal) != 0 {
			return nil, fmt.Errorf("%w: total %s does not match items %s", ErrInvalid, total, itemsTotal)
		}
	}

	o := &Order{
		RestaurantID: params.RestaurantID,
		TableID:      tableID,
		Total:        total,
		Items:        items,
		Status:       StatusOpen,
	}
	if err := s.repo.CreateOrder(ctx, o); err != nil {
		return nil, err
	}

	return o, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.repo.GetOrder(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Order, error) {
	return s.repo.ListOrders(ctx, filter)
}

// Close closes the order by hand. Closing twice returns the closed order.
func (s *Service) Close(ctx context.Context, id uuid.UUID) (*Order, error) {
	lo, err := s.repo.BeginOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("locking order: %w", err)
	}
	defer lo.Rollback()

	current := lo.Order()
	if current.Status == StatusClosed {
		return current, nil
	}

	closed := Close(*current, s.now())
	if err := lo.Save(ctx, &closed); err != nil {
		return nil, fmt.Errorf("saving order: %w", err)
	}

	if err := lo.Commit(); err != nil {
		return nil, fmt.Errorf("committing close: %w", err)
	}

	return &closed, nil
}
