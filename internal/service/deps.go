package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medicart/internal/domain"
	"medicart/internal/repository"
)

// Catalog is the read side of the medicine catalog.
// A missing medicine is reported as repository.ErrNotFound.
type Catalog interface {
	GetMedicine(ctx context.Context, id string) (*domain.Medicine, error)
}

// PrescriptionRecords looks up prescription metadata.
// A missing prescription is reported as repository.ErrNotFound.
type PrescriptionRecords interface {
	GetPrescription(ctx context.Context, id string) (*domain.Prescription, error)
}

// StockLine is a quantity of one medicine to reserve or release.
type StockLine struct {
	MedicineID string
	Quantity   int
}

// StockReserver commits stock for an order. ReserveStock is all or nothing.
type StockReserver interface {
	ReserveStock(ctx context.Context, lines []StockLine) error
	ReleaseStock(ctx context.Context, lines []StockLine) error
}

const defaultDependencyTimeout = 2 * time.Second

// callWithTimeout runs fn with a deadline. A missing entity passes through as
// repository.ErrNotFound; anything else, including the deadline, becomes
// ErrDependencyUnavailable.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, what string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if timeout <= 0 {
		timeout = defaultDependencyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		if r.err == nil {
			return r.v, nil
		}
		if errors.Is(r.err, repository.ErrNotFound) {
			return zero, repository.ErrNotFound
		}
		return zero, fmt.Errorf("%w: %s: %v", ErrDependencyUnavailable, what, r.err)
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %s: %v", ErrDependencyUnavailable, what, ctx.Err())
	}
}
