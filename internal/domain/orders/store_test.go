package orders

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/healthstore/healthstore/internal/domain/inventory"
)

// memStore keeps orders and medicines in memory with per-transaction undo
// logs and row locks. An order row is locked by Lock and a medicine row by
// AdjustStock; both are held until the transaction ends.
type memStore struct {
	mu           sync.Mutex
	orders       map[uuid.UUID]*Order
	medicines    map[uuid.UUID]*inventory.Medicine
	rowLocks     map[uuid.UUID]*sync.Mutex
	medicineLock map[uuid.UUID]*sync.Mutex

	// outOfOrder counts medicine locks taken below an id the same
	// transaction already holds.
	outOfOrder int

	// beforeAdjust runs ahead of every stock adjustment.
	beforeAdjust func(id uuid.UUID)
	commits      int
	rollbacks    int
}

func newMemStore() *memStore {
	return &memStore{
		orders:    make(map[uuid.UUID]*Order),
		medicines: make(map[uuid.UUID]*inventory.Medicine),
		rowLocks:  make(map[uuid.UUID]*sync.Mutex),

		medicineLock: make(map[uuid.UUID]*sync.Mutex),
	}
}

type memTxKey struct{}

type memTx struct {
	undo []func()
	held []*sync.Mutex

	lockedMedicines map[uuid.UUID]bool
	lastMedicine    uuid.UUID
}

func txOf(ctx context.Context) *memTx {
	t, _ := ctx.Value(memTxKey{}).(*memTx)
	return t
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txOf(ctx) != nil {
		return fn(ctx)
	}
	t := &memTx{}
	err := fn(context.WithValue(ctx, memTxKey{}, t))
	if err != nil {
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
	}
	for _, l := range t.held {
		l.Unlock()
	}
	s.mu.Lock()
	if err != nil {
		s.rollbacks++
	} else {
		s.commits++
	}
	s.mu.Unlock()
	return err
}

func (s *memStore) onRollback(ctx context.Context, f func()) {
	if t := txOf(ctx); t != nil {
		t.undo = append(t.undo, f)
	}
}

func (s *memStore) addMedicine(name string, price float64, stock, minLevel int, rx bool) *inventory.Medicine {
	m := &inventory.Medicine{
		ID:                   uuid.New(),
		Name:                 name,
		Category:             inventory.CategoryOverTheCounter,
		Price:                price,
		Stock:                stock,
		MinStockLevel:        minLevel,
		Unit:                 inventory.DefaultUnit,
		PrescriptionRequired: rx,
		IsActive:             true,
	}
	s.mu.Lock()
	s.medicines[m.ID] = m
	s.mu.Unlock()
	return m
}

func (s *memStore) stock(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.medicines[id].Stock
}

func (s *memStore) lockOrderViolations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outOfOrder
}

// lockMedicine takes the medicine's row lock for the rest of the transaction.
func (s *memStore) lockMedicine(ctx context.Context, id uuid.UUID) {
	t := txOf(ctx)
	if t == nil || t.lockedMedicines[id] {
		return
	}
	s.mu.Lock()
	if len(t.lockedMedicines) > 0 && bytes.Compare(id[:], t.lastMedicine[:]) < 0 {
		s.outOfOrder++
	}
	l, ok := s.medicineLock[id]
	if !ok {
		l = &sync.Mutex{}
		s.medicineLock[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	t.held = append(t.held, l)
	if t.lockedMedicines == nil {
		t.lockedMedicines = make(map[uuid.UUID]bool)
	}
	t.lockedMedicines[id] = true
	t.lastMedicine = id
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func cloneOrder(o *Order) *Order {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	return &cp
}

// -- Repository view --

type memOrders struct{ *memStore }

func (r memOrders) Create(ctx context.Context, o *Order) error {
	r.mu.Lock()
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	r.orders[o.ID] = cloneOrder(o)
	r.mu.Unlock()
	r.onRollback(ctx, func() {
		r.mu.Lock()
		delete(r.orders, o.ID)
		r.mu.Unlock()
	})
	return nil
}

func (r memOrders) GetByID(_ context.Context, id uuid.UUID) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r memOrders) Lock(ctx context.Context, id uuid.UUID) (*Order, error) {
	r.mu.Lock()
	if _, ok := r.orders[id]; !ok {
		r.mu.Unlock()
		return nil, ErrOrderNotFound
	}
	l, ok := r.rowLocks[id]
	if !ok {
		l = &sync.Mutex{}
		r.rowLocks[id] = l
	}
	r.mu.Unlock()

	l.Lock()
	if t := txOf(ctx); t != nil {
		t.held = append(t.held, l)
	} else {
		defer l.Unlock()
	}
	return r.GetByID(ctx, id)
}

func (r memOrders) UpdateStatus(ctx context.Context, o *Order) error {
	r.mu.Lock()
	prev, ok := r.orders[o.ID]
	if !ok {
		r.mu.Unlock()
		return ErrOrderNotFound
	}
	o.UpdatedAt = time.Now()
	next := cloneOrder(prev)
	next.Status, next.PaymentStatus, next.ProcessedBy, next.UpdatedAt = o.Status, o.PaymentStatus, o.ProcessedBy, o.UpdatedAt
	r.orders[o.ID] = next
	r.mu.Unlock()
	r.onRollback(ctx, func() {
		r.mu.Lock()
		r.orders[o.ID] = prev
		r.mu.Unlock()
	})
	return nil
}

func (r memOrders) List(_ context.Context, f ListFilter) ([]*Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Order
	for _, o := range r.orders {
		if f.PatientID != nil && o.PatientID != *f.PatientID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if f.Offset < len(out) {
		out = out[f.Offset:]
	} else {
		out = nil
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

// -- Catalog view --

type memCatalog struct{ *memStore }

func (c memCatalog) GetByID(_ context.Context, id uuid.UUID) (*inventory.Medicine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.medicines[id]
	if !ok {
		return nil, inventory.ErrMedicineNotFound
	}
	cp := *m
	return &cp, nil
}

func (c memCatalog) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	if c.beforeAdjust != nil {
		c.beforeAdjust(id)
	}
	c.lockMedicine(ctx, id)
	c.mu.Lock()
	m, ok := c.medicines[id]
	if !ok {
		c.mu.Unlock()
		return 0, inventory.ErrMedicineNotFound
	}
	if !m.IsActive && delta < 0 {
		stock := m.Stock
		c.mu.Unlock()
		return stock, inventory.ErrMedicineInactive
	}
	if m.Stock+delta < 0 {
		stock := m.Stock
		c.mu.Unlock()
		return stock, inventory.ErrInsufficientStock
	}
	m.Stock += delta
	stock := m.Stock
	c.mu.Unlock()
	c.onRollback(ctx, func() {
		c.mu.Lock()
		c.medicines[id].Stock -= delta
		c.mu.Unlock()
	})
	return stock, nil
}
