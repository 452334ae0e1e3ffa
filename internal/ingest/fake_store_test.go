package ingest

import (
	"context"
	"errors"
	"sync"

	"github.com/ariefcatur/go-order-ingest/internal/orders"
)

// --- in-memory store with the same upsert / replace semantics as the SQL stores ---

type row struct {
	order orders.Order
	items []orders.Item
}

type memStore struct {
	mu        sync.Mutex
	committed map[string]row

	begins    int
	commits   int
	rollbacks int

	beginErr    error
	commitErr   error
	rollbackErr error
	// failStep makes the named step fail for the named order id.
	failStep  Step
	failOrder string
	// onUpsert runs before every upsert; tests use it to cancel contexts mid-batch.
	onUpsert func(orders.Order)
}

func newMemStore() *memStore {
	return &memStore{committed: map[string]row{}}
}

func (s *memStore) Begin(ctx context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begins++
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	staged := make(map[string]row, len(s.committed))
	for k, v := range s.committed {
		staged[k] = v
	}
	return &memSession{store: s, staged: staged}, nil
}

func (s *memStore) get(id string) (row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.committed[id]
	return r, ok
}

type memSession struct {
	store  *memStore
	staged map[string]row
	closed bool
}

var errSessionClosed = errors.New("session closed")

func (s *memSession) fail(step Step, id string) error {
	if s.store.failStep == step && s.store.failOrder == id {
		return errors.New("constraint violation")
	}
	return nil
}

func (s *memSession) UpsertOrder(ctx context.Context, o orders.Order) error {
	if s.closed {
		return errSessionClosed
	}
	if s.store.onUpsert != nil {
		s.store.onUpsert(o)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fail(StepUpsertOrder, o.ID); err != nil {
		return err
	}
	r, ok := s.staged[o.ID]
	header := o
	header.Items = nil
	if ok {
		header.CreatedAt = r.order.CreatedAt
	}
	r.order = header
	s.staged[o.ID] = r
	return nil
}

func (s *memSession) DeleteItems(ctx context.Context, orderID string) error {
	if s.closed {
		return errSessionClosed
	}
	if err := s.fail(StepDeleteItems, orderID); err != nil {
		return err
	}
	r := s.staged[orderID]
	r.items = nil
	s.staged[orderID] = r
	return nil
}

func (s *memSession) InsertItems(ctx context.Context, orderID string, items []orders.Item) error {
	if s.closed {
		return errSessionClosed
	}
	if err := s.fail(StepInsertItems, orderID); err != nil {
		return err
	}
	r := s.staged[orderID]
	r.items = append(r.items, items...)
	s.staged[orderID] = r
	return nil
}

func (s *memSession) Commit(ctx context.Context) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	s.closed = true
	if s.store.commitErr != nil {
		return s.store.commitErr
	}
	s.store.commits++
	s.store.committed = s.staged
	return nil
}

func (s *memSession) Rollback(ctx context.Context) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.store.rollbacks++
	return s.store.rollbackErr
}
