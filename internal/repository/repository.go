package repository

import (
	"context"
	"errors"
	"strings"

	"medicart/internal/domain"
)

// ErrNotFound is returned when an entity does not exist.
var ErrNotFound = errors.New("not found")

// MedicineFilter narrows medicine listings.
type MedicineFilter struct {
	NameSubstring        string
	MinPrice             *float64
	MaxPrice             *float64
	PrescriptionRequired *bool
}

// MedicineRepository is the catalog store.
type MedicineRepository interface {
	Create(ctx context.Context, m *domain.Medicine) error
	GetByID(ctx context.Context, id string) (*domain.Medicine, error)
	Update(ctx context.Context, m *domain.Medicine) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f MedicineFilter) ([]domain.Medicine, error)
}

// PrescriptionRepository stores prescription metadata.
type PrescriptionRepository interface {
	Create(ctx context.Context, p *domain.Prescription) error
	GetByID(ctx context.Context, id string) (*domain.Prescription, error)
	Update(ctx context.Context, p *domain.Prescription) error
	ListByUser(ctx context.Context, userID string) ([]domain.Prescription, error)
	ListByStatus(ctx context.Context, status domain.PrescriptionStatus) ([]domain.Prescription, error)
}

// CartRepository stores at most one cart per user.
type CartRepository interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Save(ctx context.Context, c *domain.Cart) error
}

// OrderFilter for per-user order listings. Zero Status means any.
type OrderFilter struct {
	Status domain.OrderStatus
	Limit  int
	Offset int
}

// OrderRepository stores orders keyed by id, indexed by user and status.
type OrderRepository interface {
	Create(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	Update(ctx context.Context, o *domain.Order) error
	// ListByUser returns newest first.
	ListByUser(ctx context.Context, userID string, f OrderFilter) ([]domain.Order, error)
	// ListByStatus returns oldest first, for work queues.
	ListByStatus(ctx context.Context, status domain.OrderStatus, limit, offset int) ([]domain.Order, error)
}

// TxManager runs fn as one atomic unit against the catalog store.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// helper: case-insensitive contains
func containsIgnoreCase(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
