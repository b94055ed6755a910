package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"medicart/internal/domain"
)

// MemoryStore is the combined in-memory store. Wrapper types share its lock.
type MemoryStore struct {
	mu             sync.RWMutex
	medicinesByID  map[string]domain.Medicine
	prescriptByID  map[string]domain.Prescription
	cartsByUser    map[string]*domain.Cart
	ordersByID     map[string]*domain.Order
	orderIDsByUser map[string][]string

	// order ids per current status, moved on every status change
	orderIDsByStatus map[domain.OrderStatus]map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		medicinesByID:  make(map[string]domain.Medicine),
		prescriptByID:  make(map[string]domain.Prescription),
		cartsByUser:    make(map[string]*domain.Cart),
		ordersByID:     make(map[string]*domain.Order),
		orderIDsByUser: make(map[string][]string),

		orderIDsByStatus: make(map[domain.OrderStatus]map[string]struct{}),
	}
}

func (m *MemoryStore) indexStatus(id string, from, to domain.OrderStatus) {
	if from != "" {
		if set := m.orderIDsByStatus[from]; set != nil {
			delete(set, id)
			if len(set) == 0 {
				delete(m.orderIDsByStatus, from)
			}
		}
	}
	set := m.orderIDsByStatus[to]
	if set == nil {
		set = make(map[string]struct{})
		m.orderIDsByStatus[to] = set
	}
	set[id] = struct{}{}
}

// transaction-aware locking helpers
type txKey struct{}

func isTx(ctx context.Context) bool {
	v := ctx.Value(txKey{})
	if v == nil {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func (m *MemoryStore) rlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RLock()
	}
}
func (m *MemoryStore) runlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RUnlock()
	}
}
func (m *MemoryStore) wlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Lock()
	}
}
func (m *MemoryStore) wunlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Unlock()
	}
}

var _ MedicineRepository = (*MemoryStore)(nil)

// Create assigns an id when the caller did not provide one.
func (m *MemoryStore) Create(ctx context.Context, med *domain.Medicine) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	if med.ID == "" {
		med.ID = uuid.NewString()
	}
	m.medicinesByID[med.ID] = *med
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (*domain.Medicine, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	med, ok := m.medicinesByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := med
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, med *domain.Medicine) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	if _, ok := m.medicinesByID[med.ID]; !ok {
		return ErrNotFound
	}
	m.medicinesByID[med.ID] = *med
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	if _, ok := m.medicinesByID[id]; !ok {
		return ErrNotFound
	}
	delete(m.medicinesByID, id)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, f MedicineFilter) ([]domain.Medicine, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	out := make([]domain.Medicine, 0)
	for _, med := range m.medicinesByID {
		if !containsIgnoreCase(med.Name, f.NameSubstring) && !containsIgnoreCase(med.GenericName, f.NameSubstring) {
			continue
		}
		price, _ := med.Price.Float64()
		if f.MinPrice != nil && price < *f.MinPrice {
			continue
		}
		if f.MaxPrice != nil && price > *f.MaxPrice {
			continue
		}
		if f.PrescriptionRequired != nil && med.PrescriptionRequired != *f.PrescriptionRequired {
			continue
		}
		out = append(out, med)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// MemoryPrescriptions implements PrescriptionRepository on the shared store.
type MemoryPrescriptions struct{ store *MemoryStore }

func NewMemoryPrescriptions(store *MemoryStore) *MemoryPrescriptions {
	return &MemoryPrescriptions{store: store}
}

var _ PrescriptionRepository = (*MemoryPrescriptions)(nil)

func (mp *MemoryPrescriptions) Create(ctx context.Context, p *domain.Prescription) error {
	mp.store.wlock(ctx)
	defer mp.store.wunlock(ctx)
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	mp.store.prescriptByID[p.ID] = clonePrescription(*p)
	return nil
}

func (mp *MemoryPrescriptions) GetByID(ctx context.Context, id string) (*domain.Prescription, error) {
	mp.store.rlock(ctx)
	defer mp.store.runlock(ctx)
	p, ok := mp.store.prescriptByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := clonePrescription(p)
	return &cp, nil
}

func (mp *MemoryPrescriptions) Update(ctx context.Context, p *domain.Prescription) error {
	mp.store.wlock(ctx)
	defer mp.store.wunlock(ctx)
	if _, ok := mp.store.prescriptByID[p.ID]; !ok {
		return ErrNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	mp.store.prescriptByID[p.ID] = clonePrescription(*p)
	return nil
}

func (mp *MemoryPrescriptions) ListByUser(ctx context.Context, userID string) ([]domain.Prescription, error) {
	return mp.list(ctx, func(p domain.Prescription) bool { return p.UserID == userID })
}

func (mp *MemoryPrescriptions) ListByStatus(ctx context.Context, status domain.PrescriptionStatus) ([]domain.Prescription, error) {
	return mp.list(ctx, func(p domain.Prescription) bool { return p.Status == status })
}

func (mp *MemoryPrescriptions) list(ctx context.Context, keep func(domain.Prescription) bool) ([]domain.Prescription, error) {
	mp.store.rlock(ctx)
	defer mp.store.runlock(ctx)
	out := make([]domain.Prescription, 0)
	for _, p := range mp.store.prescriptByID {
		if keep(p) {
			out = append(out, clonePrescription(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func clonePrescription(p domain.Prescription) domain.Prescription {
	p.MedicineIDs = append([]string(nil), p.MedicineIDs...)
	return p
}

// MemoryCarts implements CartRepository on the shared store.
type MemoryCarts struct{ store *MemoryStore }

func NewMemoryCarts(store *MemoryStore) *MemoryCarts { return &MemoryCarts{store: store} }

var _ CartRepository = (*MemoryCarts)(nil)

func (mc *MemoryCarts) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	c, ok := mc.store.cartsByUser[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (mc *MemoryCarts) Save(ctx context.Context, c *domain.Cart) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	mc.store.cartsByUser[c.UserID] = c.Clone()
	return nil
}

// MemoryOrders implements OrderRepository on the shared store.
type MemoryOrders struct{ store *MemoryStore }

func NewMemoryOrders(store *MemoryStore) *MemoryOrders { return &MemoryOrders{store: store} }

var _ OrderRepository = (*MemoryOrders)(nil)

func (mo *MemoryOrders) Create(ctx context.Context, o *domain.Order) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.CreatedAt = time.Now().UTC()
	o.UpdatedAt = o.CreatedAt
	mo.store.ordersByID[o.ID] = o.Clone()
	mo.store.orderIDsByUser[o.UserID] = append(mo.store.orderIDsByUser[o.UserID], o.ID)
	mo.store.indexStatus(o.ID, "", o.Status)
	return nil
}

func (mo *MemoryOrders) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	o, ok := mo.store.ordersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

func (mo *MemoryOrders) Update(ctx context.Context, o *domain.Order) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	prev, ok := mo.store.ordersByID[o.ID]
	if !ok {
		return ErrNotFound
	}
	if prev.Status != o.Status {
		mo.store.indexStatus(o.ID, prev.Status, o.Status)
	}
	o.UpdatedAt = time.Now().UTC()
	mo.store.ordersByID[o.ID] = o.Clone()
	return nil
}

func (mo *MemoryOrders) ListByUser(ctx context.Context, userID string, f OrderFilter) ([]domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	ids := mo.store.orderIDsByUser[userID]
	out := make([]domain.Order, 0, len(ids))
	// ids are in creation order; walk backwards for newest first
	for i := len(ids) - 1; i >= 0; i-- {
		o := mo.store.ordersByID[ids[i]]
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, *o.Clone())
	}
	return page(out, f.Limit, f.Offset), nil
}

func (mo *MemoryOrders) ListByStatus(ctx context.Context, status domain.OrderStatus, limit, offset int) ([]domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	ids := mo.store.orderIDsByStatus[status]
	out := make([]domain.Order, 0, len(ids))
	for id := range ids {
		out = append(out, *mo.store.ordersByID[id].Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, limit, offset), nil
}

// Tx manager using write lock to emulate transaction boundary
type MemoryTx struct{ store *MemoryStore }

func NewMemoryTx(store *MemoryStore) *MemoryTx { return &MemoryTx{store: store} }

func (tx *MemoryTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	// hold the write lock and mark the context so repositories skip their own locking
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	ctx = context.WithValue(ctx, txKey{}, true)
	return fn(ctx)
}
