package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/restaurant"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectRestaurantColumns = `id, name, currency, bank_account_ref, created_at`

func scanRestaurant(row interface{ Scan(dest ...any) error }) (*restaurant.Restaurant, error) {
	var r restaurant.Restaurant
	if err := row.Scan(&r.ID, &r.Name, &r.Currency, &r.BankAccountRef, &r.CreatedAt); err != nil {
		return nil, err
	}

	return &r, nil
}

func (s *Store) CreateRestaurant(ctx context.Context, r *restaurant.Restaurant) error {
	query := `
		INSERT INTO restaurants (name, currency, bank_account_ref, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at
	`

	if err := s.db.QueryRowContext(ctx, query, r.Name, r.Currency, r.BankAccountRef).Scan(&r.ID, &r.CreatedAt); err != nil {
		return fmt.Errorf("creating restaurant: %w", err)
	}

	return nil
}

func (s *Store) GetRestaurant(ctx context.Context, id uuid.UUID) (*restaurant.Restaurant, error) {
	query := `SELECT ` + selectRestaurantColumns + ` FROM restaurants WHERE id = $1`

	r, err := scanRestaurant(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, restaurant.ErrNotFound
		}

		return nil, fmt.Errorf("getting restaurant: %w", err)
	}

	return r, nil
}

func (s *Store) ListRestaurants(ctx context.Context) ([]*restaurant.Restaurant, error) {
	query := `SELECT ` + selectRestaurantColumns + ` FROM restaurants ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing restaurants: %w", err)
	}
	defer rows.Close()

	var out []*restaurant.Restaurant

	for rows.Next() {
		r, err := scanRestaurant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning restaurant: %w", err)
		}

		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating restaurants: %w", err)
	}

	return out, nil
}
