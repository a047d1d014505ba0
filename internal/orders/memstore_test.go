package orders

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/statuses"
)

// memStore is a test Store. Transactions are serialized by a mutex and run
// against a copy of the state that is only swapped in on commit, which gives
// the same guarantees the row locks give in postgres.
type memStore struct {
	mu    sync.Mutex
	state memState

	failOn    string          // memTx method name that should fail, for rollback tests
	goneUsers map[string]bool // owners whose account was deleted
}

type memState struct {
	products map[string]catalog.Product
	statuses map[string]statuses.Status
	orders   map[string]Order // without lines
	lines    map[string][]Line
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		products: map[string]catalog.Product{},
		statuses: map[string]statuses.Status{},
		orders:   map[string]Order{},
		lines:    map[string][]Line{},
	}}
}

func (s memState) clone() memState {
	c := memState{
		products: make(map[string]catalog.Product, len(s.products)),
		statuses: make(map[string]statuses.Status, len(s.statuses)),
		orders:   make(map[string]Order, len(s.orders)),
		lines:    make(map[string][]Line, len(s.lines)),
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.statuses {
		c.statuses[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.lines {
		c.lines[k] = append([]Line(nil), v...)
	}
	return c
}

type errInjected struct{ op string }

func (e errInjected) Error() string { return "injected failure in " + e.op }

func (m *memStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{s: &work, failOn: m.failOn, goneUsers: m.goneUsers}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memStore) Detail(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.orders[id]
	if !ok {
		return nil, nil
	}
	o.StatusName = m.state.statuses[o.StatusID].Name
	o.Lines = append([]Line(nil), m.state.lines[id]...)
	return &o, nil
}

func (m *memStore) ListByUser(_ context.Context, userID string) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Order{}
	for _, o := range m.state.orders {
		if o.UserID == userID {
			o.StatusName = m.state.statuses[o.StatusID].Name
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// helpers used by tests outside transactions

func (m *memStore) addStatus(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.statuses[id] = statuses.Status{ID: id, Name: name, CreatedAt: time.Now()}
}

func (m *memStore) addProduct(p catalog.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.products[p.ID] = p
}

func (m *memStore) stock(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.products[id].Stock
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.orders)
}

func (m *memStore) lineCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ls := range m.state.lines {
		n += len(ls)
	}
	return n
}

type memTx struct {
	s         *memState
	failOn    string
	goneUsers map[string]bool
}

func (t *memTx) fail(op string) error {
	if t.failOn == op {
		return errInjected{op: op}
	}
	return nil
}

func (t *memTx) StatusByName(_ context.Context, name string) (*statuses.Status, error) {
	for _, st := range t.s.statuses {
		if strings.EqualFold(st.Name, name) {
			st := st
			return &st, nil
		}
	}
	return nil, nil
}

func (t *memTx) ProductsForUpdate(_ context.Context, ids []string) (map[string]catalog.Product, error) {
	out := map[string]catalog.Product{}
	for _, id := range ids {
		if p, ok := t.s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *memTx) DecrementStock(_ context.Context, productID string, qty int) error {
	if err := t.fail("DecrementStock"); err != nil {
		return err
	}
	p := t.s.products[productID]
	p.Stock -= qty
	if p.Stock < 0 {
		panic("stock went negative")
	}
	t.s.products[productID] = p
	return nil
}

func (t *memTx) IncrementStock(_ context.Context, productID string, qty int) error {
	if err := t.fail("IncrementStock"); err != nil {
		return err
	}
	p := t.s.products[productID]
	p.Stock += qty
	t.s.products[productID] = p
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, o Order) error {
	if err := t.fail("InsertOrder"); err != nil {
		return err
	}
	o.Lines = nil
	t.s.orders[o.ID] = o
	return nil
}

func (t *memTx) InsertLines(_ context.Context, lines []Line) error {
	if err := t.fail("InsertLines"); err != nil {
		return err
	}
	for _, l := range lines {
		t.s.lines[l.OrderID] = append(t.s.lines[l.OrderID], l)
	}
	return nil
}

func (t *memTx) LockUser(_ context.Context, userID string) (bool, error) {
	return !t.goneUsers[userID], nil
}

func (t *memTx) OrderForUpdate(_ context.Context, id string) (*Order, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return nil, nil
	}
	o.StatusName = t.s.statuses[o.StatusID].Name
	return &o, nil
}

func (t *memTx) OrderByIdempotencyKey(_ context.Context, userID, key string) (*Order, error) {
	for _, o := range t.s.orders {
		if o.UserID == userID && o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			o.StatusName = t.s.statuses[o.StatusID].Name
			o.Lines = append([]Line(nil), t.s.lines[o.ID]...)
			return &o, nil
		}
	}
	return nil, nil
}

func (t *memTx) Lines(_ context.Context, orderID string) ([]Line, error) {
	return append([]Line(nil), t.s.lines[orderID]...), nil
}

func (t *memTx) SetStatus(_ context.Context, orderID, statusID string, at time.Time) error {
	if err := t.fail("SetStatus"); err != nil {
		return err
	}
	o := t.s.orders[orderID]
	o.StatusID = statusID
	o.UpdatedAt = &at
	o.Version++
	t.s.orders[orderID] = o
	return nil
}
