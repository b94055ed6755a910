package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"medicart/internal/domain"
	"medicart/internal/repository"
)

// CatalogService wraps medicine CRUD and stock reservation.
type CatalogService struct {
	repo repository.MedicineRepository
	tx   repository.TxManager
}

var (
	_ Catalog       = (*CatalogService)(nil)
	_ StockReserver = (*CatalogService)(nil)
)

func NewCatalogService(repo repository.MedicineRepository, tx repository.TxManager) *CatalogService {
	return &CatalogService{repo: repo, tx: tx}
}

func validMedicine(m domain.Medicine) bool {
	return strings.TrimSpace(m.Name) != "" && !m.Price.IsNegative() && m.Stock >= 0 && m.MinStockLevel >= 0
}

func (s *CatalogService) Create(ctx context.Context, m domain.Medicine) (*domain.Medicine, error) {
	if !validMedicine(m) {
		return nil, ErrInvalidInput
	}
	cp := m
	if err := s.repo.Create(ctx, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *CatalogService) GetByID(ctx context.Context, id string) (*domain.Medicine, error) {
	if id == "" {
		return nil, ErrInvalidInput
	}
	m, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrMedicineNotFound
	}
	return m, err
}

func (s *CatalogService) Update(ctx context.Context, m domain.Medicine) (*domain.Medicine, error) {
	if m.ID == "" || !validMedicine(m) {
		return nil, ErrInvalidInput
	}
	cp := m
	if err := s.repo.Update(ctx, &cp); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMedicineNotFound
		}
		return nil, err
	}
	return &cp, nil
}

func (s *CatalogService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidInput
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMedicineNotFound
		}
		return err
	}
	return nil
}

func (s *CatalogService) List(ctx context.Context, f repository.MedicineFilter) ([]domain.Medicine, error) {
	return s.repo.List(ctx, f)
}

// GetMedicine is the collaborator view used by the cart and checkout.
func (s *CatalogService) GetMedicine(ctx context.Context, id string) (*domain.Medicine, error) {
	return s.repo.GetByID(ctx, id)
}

// ReserveStock checks every line first and only then decrements, inside one
// transaction, so either all lines are reserved or none.
func (s *CatalogService) ReserveStock(ctx context.Context, lines []StockLine) error {
	want, err := sumLines(lines)
	if err != nil {
		return err
	}
	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		// load and check stock
		loaded := make(map[string]*domain.Medicine, len(want))
		for id, qty := range want {
			m, err := s.repo.GetByID(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return fmt.Errorf("%w: %s", ErrMedicineNotFound, id)
				}
				return err
			}
			if m.Stock < qty {
				return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientStock, id, m.Stock, qty)
			}
			m.Stock -= qty
			loaded[id] = m
		}
		// persist
		for _, m := range loaded {
			if err := s.repo.Update(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReleaseStock returns stock. Medicines removed from the catalog meanwhile are skipped.
func (s *CatalogService) ReleaseStock(ctx context.Context, lines []StockLine) error {
	give, err := sumLines(lines)
	if err != nil {
		return err
	}
	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		for id, qty := range give {
			m, err := s.repo.GetByID(ctx, id)
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			m.Stock += qty
			if err := s.repo.Update(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func sumLines(lines []StockLine) (map[string]int64, error) {
	if len(lines) == 0 {
		return nil, ErrInvalidInput
	}
	out := make(map[string]int64, len(lines))
	for _, l := range lines {
		if l.MedicineID == "" || l.Quantity <= 0 {
			return nil, ErrInvalidInput
		}
		out[l.MedicineID] += int64(l.Quantity)
	}
	return out, nil
}
