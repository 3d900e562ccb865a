package payout_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/payment"
	"github.com/MrJamesThe3rd/splitpay/internal/payout"
	"github.com/MrJamesThe3rd/splitpay/internal/restaurant"
)

// memStore settles in memory. BeginSettlement takes a per-restaurant mutex
// the way the postgres store takes the advisory lock.
type memStore struct {
	mu          sync.Mutex
	restaurants map[uuid.UUID]*restaurant.Restaurant
	payments    map[uuid.UUID]payment.Payment
	payouts     map[uuid.UUID]payout.Payout
	locks       map[uuid.UUID]*sync.Mutex
}

func newMemStore(r *restaurant.Restaurant, payments ...*payment.Payment) *memStore {
	m := &memStore{
		restaurants: map[uuid.UUID]*restaurant.Restaurant{r.ID: r},
		payments:    map[uuid.UUID]payment.Payment{},
		payouts:     map[uuid.UUID]payout.Payout{},
		locks:       map[uuid.UUID]*sync.Mutex{},
	}

	for _, p := range payments {
		p.RestaurantID = r.ID
		m.payments[p.ID] = *p
	}

	return m
}

func (m *memStore) GetPayout(_ context.Context, id uuid.UUID) (*payout.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payouts[id]
	if !ok {
		return nil, payout.ErrNotFound
	}

	return &p, nil
}

func (m *memStore) ListPayouts(_ context.Context, restaurantID uuid.UUID) ([]*payout.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*payout.Payout

	for _, p := range m.payouts {
		if p.RestaurantID == restaurantID {
			out = append(out, &p)
		}
	}

	return out, nil
}

func (m *memStore) PayoutPayments(_ context.Context, payoutID uuid.UUID) ([]*payment.Payment, error) {
	return m.filter(func(p payment.Payment) bool {
		return p.PayoutID != nil && *p.PayoutID == payoutID
	}), nil
}

func (m *memStore) UnsettledPayments(_ context.Context, restaurantID uuid.UUID, currency string) ([]*payment.Payment, error) {
	return m.filter(func(p payment.Payment) bool {
		return p.RestaurantID == restaurantID && p.Principal.Currency == currency &&
			p.Status == payment.StatusCompleted && p.PayoutID == nil
	}), nil
}

func (m *memStore) filter(keep func(payment.Payment) bool) []*payment.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*payment.Payment

	for _, p := range m.payments {
		if keep(p) {
			out = append(out, &p)
		}
	}

	return out
}

func (m *memStore) UpdateStatus(_ context.Context, p *payout.Payout, from payout.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.payouts[p.ID].Status != from {
		return payout.ErrVersionConflict
	}

	m.payouts[p.ID] = *p

	return nil
}

func (m *memStore) GetRestaurant(_ context.Context, id uuid.UUID) (*restaurant.Restaurant, error) {
	r, ok := m.restaurants[id]
	if !ok {
		return nil, restaurant.ErrNotFound
	}

	return r, nil
}

func (m *memStore) ListRestaurants(_ context.Context) ([]*restaurant.Restaurant, error) {
	var out []*restaurant.Restaurant
	for _, r := range m.restaurants {
		out = append(out, r)
	}

	return out, nil
}

func (m *memStore) BeginSettlement(_ context.Context, restaurantID uuid.UUID) (payout.SettlementTx, error) {
	m.mu.Lock()
	lock, ok := m.locks[restaurantID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[restaurantID] = lock
	}
	m.mu.Unlock()

	lock.Lock()

	return &memTx{store: m, lock: lock, restaurantID: restaurantID, stamps: map[uuid.UUID]uuid.UUID{}}, nil
}

type memTx struct {
	store        *memStore
	lock         *sync.Mutex
	restaurantID uuid.UUID
	done         bool
	created      *payout.Payout
	stamps       map[uuid.UUID]uuid.UUID
}

func (t *memTx) Settleable(_ context.Context, period payout.Period, currency string) ([]*payment.Payment, error) {
	return t.store.filter(func(p payment.Payment) bool {
		return p.RestaurantID == t.restaurantID && p.Principal.Currency == currency &&
			p.Status == payment.StatusCompleted && p.PayoutID == nil &&
			p.CompletedAt != nil && period.Contains(*p.CompletedAt)
	}), nil
}

func (t *memTx) CreatePayout(_ context.Context, p *payout.Payout) error {
	p.ID = uuid.New()
	created := *p
	t.created = &created

	return nil
}

func (t *memTx) AssignPayments(_ context.Context, payoutID uuid.UUID, paymentIDs []uuid.UUID) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for _, id := range paymentIDs {
		if t.store.payments[id].PayoutID != nil {
			return fmt.Errorf("%w: %s", payout.ErrWatermarkConflict, id)
		}

		t.stamps[id] = payoutID
	}

	return nil
}

func (t *memTx) Commit() error {
	t.store.mu.Lock()

	if t.created != nil {
		t.store.payouts[t.created.ID] = *t.created
	}

	for id, payoutID := range t.stamps {
		p := t.store.payments[id]
		p.PayoutID = &payoutID
		t.store.payments[id] = p
	}

	t.store.mu.Unlock()

	t.done = true
	t.lock.Unlock()

	return nil
}

func (t *memTx) Rollback() error {
	if !t.done {
		t.done = true
		t.lock.Unlock()
	}

	return nil
}
