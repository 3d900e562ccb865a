package split

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/money"
	"github.com/MrJamesThe3rd/splitpay/internal/order"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=split
type Repository interface {
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)
	ActiveSession(ctx context.Context, orderID uuid.UUID) (*Session, error)

	BeginOrder(ctx context.Context, orderID uuid.UUID) (OrderTx, error)
}

// OrderTx holds the row lock of one order. ActiveSession returns ErrNotFound
// when the order has no active session.
type OrderTx interface {
	Order() *order.Order
	ActiveSession(ctx context.Context) (*Session, error)
	CreateSession(ctx context.Context, s *Session) error
	SaveSession(ctx context.Context, s *Session) error
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

type OpenParams struct {
	OrderID uuid.UUID
	Kind    Kind
	People  int
}

func (s *Service) Open(ctx context.Context, params OpenParams) (*Session, error) {
	otx, err := s.repo.BeginOrder(ctx, params.OrderID)
	if err != nil {
		return nil, fmt.Errorf("locking order: %w", err)
	}
	defer otx.Rollback()

	active, err := otx.ActiveSession(ctx)
	switch {
	case err == nil:
		return nil, &SessionAlreadyActiveError{OrderID: params.OrderID, SessionID: active.ID}
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("finding active session: %w", err)
	}

	sess, err := Open(*otx.Order(), params.Kind, params.People, s.now())
	if err != nil {
		return nil, err
	}

	if err := otx.CreateSession(ctx, &sess); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	if err := otx.Commit(); err != nil {
		return nil, fmt.Errorf("committing session: %w", err)
	}

	return &sess, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.repo.GetSession(ctx, id)
}

func (s *Service) Active(ctx context.Context, orderID uuid.UUID) (*Session, error) {
	return s.repo.ActiveSession(ctx, orderID)
}

func (s *Service) AssignItem(ctx context.Context, sessionID, itemID uuid.UUID, guest string) (*Session, error) {
	return s.mutate(ctx, sessionID, func(sess Session, o order.Order) (Session, error) {
		return AssignItem(sess, o, itemID, guest)
	})
}

// RecordGuestShare records a share in minor units of the session currency.
func (s *Service) RecordGuestShare(ctx context.Context, sessionID uuid.UUID, guest string, amount int64) (*Session, error) {
	return s.mutate(ctx, sessionID, func(sess Session, o order.Order) (Session, error) {
		return RecordGuestShare(sess, o, guest, money.New(amount, sess.Base.Currency))
	})
}

func (s *Service) Close(ctx context.Context, sessionID uuid.UUID, abandon bool) (*Session, error) {
	current, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !current.Active {
		return current, nil
	}

	return s.mutate(ctx, sessionID, func(sess Session, o order.Order) (Session, error) {
		return Close(sess, o, abandon, s.now())
	})
}

// mutate runs fn against the session while holding its order's lock. Only
// the order's active session can change.
func (s *Service) mutate(ctx context.Context, sessionID uuid.UUID, fn func(Session, order.Order) (Session, error)) (*Session, error) {
	current, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	otx, err := s.repo.BeginOrder(ctx, current.OrderID)
	if err != nil {
		return nil, fmt.Errorf("locking order: %w", err)
	}
	defer otx.Rollback()

	active, err := otx.ActiveSession(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrSessionClosed
		}

		return nil, fmt.Errorf("finding active session: %w", err)
	}

	if active.ID != sessionID {
		return nil, ErrSessionClosed
	}

	next, err := fn(*active, *otx.Order())
	if err != nil {
		return nil, err
	}

	if err := otx.SaveSession(ctx, &next); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	if err := otx.Commit(); err != nil {
		return nil, fmt.Errorf("committing session: %w", err)
	}

	return &next, nil
}
