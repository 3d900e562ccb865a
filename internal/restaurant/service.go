package restaurant

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/money"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=restaurant
type Repository interface {
	CreateRestaurant(ctx context.Context, r *Restaurant) error
	GetRestaurant(ctx context.Context, id uuid.UUID) (*Restaurant, error)
	ListRestaurants(ctx context.Context) ([]*Restaurant, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type CreateParams struct {
	Name           string
	Currency       string
	BankAccountRef string
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*Restaurant, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}

	bankRef := strings.TrimSpace(params.BankAccountRef)
	if bankRef == "" {
		return nil, fmt.Errorf("%w: bank account reference is required", ErrInvalid)
	}

	currency, err := money.NormalizeCurrency(params.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	r := &Restaurant{
		Name:           name,
		Currency:       currency,
		BankAccountRef: bankRef,
	}
	if err := s.repo.CreateRestaurant(ctx, r); err != nil {
		return nil, err
	}

	return r, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Restaurant, error) {
	return s.repo.GetRestaurant(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*Restaurant, error) {
	return s.repo.ListRestaurants(ctx)
}
