package payment_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/order"
	"github.com/MrJamesThe3rd/splitpay/internal/payment"
	"github.com/MrJamesThe3rd/splitpay/internal/refund"
	"github.com/MrJamesThe3rd/splitpay/internal/split"
)

// memStore keeps everything in maps. BeginOrder takes a per-order mutex the
// way the postgres store takes the order row lock.
type memStore struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]order.Order
	payments map[uuid.UUID]payment.Payment
	byTx     map[string]uuid.UUID
	sessions map[uuid.UUID]split.Session
	refunds  []refund.Command
	locks    map[uuid.UUID]*sync.Mutex
}

func newMemStore() *memStore {
	return &memStore{
		orders:   map[uuid.UUID]order.Order{},
		payments: map[uuid.UUID]payment.Payment{},
		byTx:     map[string]uuid.UUID{},
		sessions: map[uuid.UUID]split.Session{},
		locks:    map[uuid.UUID]*sync.Mutex{},
	}
}

func (m *memStore) addOrder(o order.Order) order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}

	m.orders[o.ID] = o

	return o
}

func (m *memStore) addSession(s split.Session) split.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.ID = uuid.New()
	m.sessions[s.ID] = s

	return s
}

func (m *memStore) order(id uuid.UUID) order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.orders[id]
}

func (m *memStore) session(id uuid.UUID) split.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sessions[id]
}

func (m *memStore) refundCommands() []refund.Command {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]refund.Command(nil), m.refunds...)
}

func (m *memStore) GetPayment(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, payment.ErrNotFound
	}

	return &p, nil
}

func (m *memStore) GetByTransactionID(ctx context.Context, transactionID string) (*payment.Payment, error) {
	m.mu.Lock()
	id, ok := m.byTx[transactionID]
	m.mu.Unlock()

	if !ok {
		return nil, payment.ErrNotFound
	}

	return m.GetPayment(ctx, id)
}

func (m *memStore) ListPayments(_ context.Context, filter payment.Filter) ([]*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*payment.Payment

	for _, p := range m.payments {
		if filter.OrderID != nil && p.OrderID != *filter.OrderID {
			continue
		}

		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}

		out = append(out, &p)
	}

	return out, nil
}

func (m *memStore) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*payment.Payment

	for _, p := range m.payments {
		if p.Status == payment.StatusPending && p.CreatedAt.Before(cutoff) && len(out) < limit {
			out = append(out, &p)
		}
	}

	return out, nil
}

func (m *memStore) InsertPending(_ context.Context, p *payment.Payment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byTx[p.TransactionID]; ok {
		return false, nil
	}

	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt

	m.payments[p.ID] = *p
	m.byTx[p.TransactionID] = p.ID

	return true, nil
}

func (m *memStore) GetOrder(_ context.Context, id uuid.UUID) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}

	return &o, nil
}

func (m *memStore) ActiveSession(_ context.Context, orderID uuid.UUID) (*split.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.activeSessionLocked(orderID)
}

func (m *memStore) activeSessionLocked(orderID uuid.UUID) (*split.Session, error) {
	for _, s := range m.sessions {
		if s.OrderID == orderID && s.Active {
			return &s, nil
		}
	}

	return nil, split.ErrNotFound
}

func (m *memStore) BeginOrder(_ context.Context, orderID uuid.UUID) (payment.OrderTx, error) {
	m.mu.Lock()
	lock, ok := m.locks[orderID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[orderID] = lock
	}
	m.mu.Unlock()

	lock.Lock()

	m.mu.Lock()
	o, ok := m.orders[orderID]
	m.mu.Unlock()

	if !ok {
		lock.Unlock()
		return nil, order.ErrNotFound
	}

	return &memTx{
		store:    m,
		lock:     lock,
		order:    o,
		payments: map[uuid.UUID]payment.Payment{},
		sessions: map[uuid.UUID]split.Session{},
	}, nil
}

type memTx struct {
	store      *memStore
	lock       *sync.Mutex
	done       bool
	order      order.Order
	orderDirty bool
	payments   map[uuid.UUID]payment.Payment
	sessions   map[uuid.UUID]split.Session
	refunds    []refund.Command
}

func (t *memTx) Order() *order.Order { return &t.order }

func (t *memTx) Payment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return t.store.GetPayment(ctx, id)
}

func (t *memTx) Session(_ context.Context, id uuid.UUID) (*split.Session, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	s, ok := t.store.sessions[id]
	if !ok {
		return nil, split.ErrNotFound
	}

	return &s, nil
}

func (t *memTx) ActiveSession(ctx context.Context) (*split.Session, error) {
	return t.store.ActiveSession(ctx, t.order.ID)
}

func (t *memTx) SaveOrder(_ context.Context, o *order.Order) error {
	t.order = *o
	t.orderDirty = true

	return nil
}

func (t *memTx) SaveSession(_ context.Context, s *split.Session) error {
	t.sessions[s.ID] = *s
	return nil
}

func (t *memTx) SavePayment(_ context.Context, p *payment.Payment) error {
	t.payments[p.ID] = *p
	return nil
}

func (t *memTx) QueueRefund(_ context.Context, cmd *refund.Command) error {
	cmd.ID = uuid.New()
	t.refunds = append(t.refunds, *cmd)

	return nil
}

func (t *memTx) Commit() error {
	t.store.mu.Lock()

	if t.orderDirty {
		t.store.orders[t.order.ID] = t.order
	}

	for id, p := range t.payments {
		t.store.payments[id] = p
	}

	for id, s := range t.sessions {
		t.store.sessions[id] = s
	}

	t.store.refunds = append(t.store.refunds, t.refunds...)
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
