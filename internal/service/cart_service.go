package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medicart/internal/domain"
	"medicart/internal/pricing"
	"medicart/internal/repository"
)

// CartService owns every cart mutation. Mutations of one user's cart are
// serialized; aggregates are recomputed and the version bumped before each save.
type CartService struct {
	carts     repository.CartRepository
	catalog   Catalog
	calc      *pricing.Calculator
	validator *CheckoutValidator
	locks     *keyLocker
	timeout   time.Duration
	now       func() time.Time
}

func NewCartService(carts repository.CartRepository, catalog Catalog, rx PrescriptionRecords, calc *pricing.Calculator, timeout time.Duration) *CartService {
	now := func() time.Time { return time.Now().UTC() }
	v := NewCheckoutValidator(catalog, rx, timeout)
	v.now = now
	return &CartService{
		carts:     carts,
		catalog:   catalog,
		calc:      calc,
		validator: v,
		locks:     newKeyLocker(),
		timeout:   timeout,
		now:       now,
	}
}

// AddItemInput for AddItem. PrescriptionID and Notes are optional.
type AddItemInput struct {
	MedicineID     string
	Quantity       int
	PrescriptionID string
	Notes          string
}

// GetCart returns the user's cart, or an unsaved empty one.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.load(ctx, userID)
}

// AddItem adds quantity of a medicine, merging with an existing line. The unit
// price is snapshotted from the catalog on every add.
func (s *CartService) AddItem(ctx context.Context, userID string, in AddItemInput) (*domain.Cart, error) {
	if userID == "" || in.MedicineID == "" {
		return nil, ErrInvalidInput
	}
	if in.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	med, err := callWithTimeout(ctx, s.timeout, "catalog", func(ctx context.Context) (*domain.Medicine, error) {
		return s.catalog.GetMedicine(ctx, in.MedicineID)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMedicineNotFound, in.MedicineID)
	}
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, func(c *domain.Cart) (bool, error) {
		if i, ok := c.Item(in.MedicineID); ok {
			line := &c.Items[i]
			line.Quantity += in.Quantity
			line.Name = med.Name
			line.UnitPrice = med.Price
			line.PrescriptionRequired = med.PrescriptionRequired
			if in.PrescriptionID != "" {
				line.PrescriptionID = in.PrescriptionID
			}
			if in.Notes != "" {
				line.Notes = in.Notes
			}
		} else {
			c.Items = append(c.Items, domain.CartLineItem{
				MedicineID:           med.ID,
				Name:                 med.Name,
				Quantity:             in.Quantity,
				UnitPrice:            med.Price,
				PrescriptionRequired: med.PrescriptionRequired,
				PrescriptionID:       in.PrescriptionID,
				Notes:                in.Notes,
				AddedAt:              s.now(),
			})
		}
		return true, nil
	})
}

// UpdateItem sets a line's quantity. Zero removes the line. notes replaces the
// line notes when non-nil.
func (s *CartService) UpdateItem(ctx context.Context, userID, medicineID string, quantity int, notes *string) (*domain.Cart, error) {
	if userID == "" || medicineID == "" {
		return nil, ErrInvalidInput
	}
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, userID, medicineID)
	}
	return s.mutate(ctx, userID, func(c *domain.Cart) (bool, error) {
		i, ok := c.Item(medicineID)
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrCartItemNotFound, medicineID)
		}
		c.Items[i].Quantity = quantity
		if notes != nil {
			c.Items[i].Notes = *notes
		}
		return true, nil
	})
}

// RemoveItem deletes a line. Removing an absent line changes nothing.
func (s *CartService) RemoveItem(ctx context.Context, userID, medicineID string) (*domain.Cart, error) {
	if userID == "" || medicineID == "" {
		return nil, ErrInvalidInput
	}
	return s.mutate(ctx, userID, func(c *domain.Cart) (bool, error) {
		i, ok := c.Item(medicineID)
		if !ok {
			return false, nil
		}
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return true, nil
	})
}

// LinkPrescription attaches prescriptionID to an existing line.
func (s *CartService) LinkPrescription(ctx context.Context, userID, medicineID, prescriptionID string) (*domain.Cart, error) {
	if userID == "" || medicineID == "" || prescriptionID == "" {
		return nil, ErrInvalidInput
	}
	return s.mutate(ctx, userID, func(c *domain.Cart) (bool, error) {
		i, ok := c.Item(medicineID)
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrCartItemNotFound, medicineID)
		}
		c.Items[i].PrescriptionID = prescriptionID
		return true, nil
	})
}

// Clear empties the cart. The cart itself is kept.
func (s *CartService) Clear(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.mutate(ctx, userID, func(c *domain.Cart) (bool, error) {
		c.Items = []domain.CartLineItem{}
		return true, nil
	})
}

// ValidatePrescriptions re-checks every restricted line and saves the verdicts.
// If the prescription store cannot answer, the cart is left as it was.
func (s *CartService) ValidatePrescriptions(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return c, nil
	}
	if err := s.validator.RefreshPrescriptions(ctx, c); err != nil {
		return nil, err
	}
	if err := s.saveVerdicts(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ValidateCart previews checkout. Nothing is saved.
func (s *CartService) ValidateCart(ctx context.Context, userID string) (*ValidationResult, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.validator.Validate(ctx, c)
}

// mutate runs fn on the freshest copy of the cart under the user's lock.
// fn reports whether it changed anything; unchanged carts are not saved.
func (s *CartService) mutate(ctx context.Context, userID string, fn func(c *domain.Cart) (bool, error)) (*domain.Cart, error) {
	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	changed, err := fn(c)
	if err != nil {
		return nil, err
	}
	if !changed {
		return c, nil
	}
	markForRevalidation(c)
	if err := s.commit(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// commit recomputes aggregates, bumps the version and saves. Callers hold the lock.
func (s *CartService) commit(ctx context.Context, c *domain.Cart) error {
	if err := s.recompute(c); err != nil {
		return err
	}
	c.Version++
	c.UpdatedAt = s.now()
	if err := s.carts.Save(ctx, c); err != nil {
		return fmt.Errorf("save cart %s: %w", c.UserID, err)
	}
	return nil
}

// saveVerdicts stores refreshed prescription statuses. Lines are unchanged,
// so Version and UpdatedAt are left alone. Callers hold the lock.
func (s *CartService) saveVerdicts(ctx context.Context, c *domain.Cart) error {
	if err := s.recompute(c); err != nil {
		return err
	}
	if err := s.carts.Save(ctx, c); err != nil {
		return fmt.Errorf("save cart %s: %w", c.UserID, err)
	}
	return nil
}

func (s *CartService) recompute(c *domain.Cart) error {
	lines := make([]pricing.LineItem, len(c.Items))
	for i := range c.Items {
		c.Items[i].LineTotal = pricing.LineTotal(c.Items[i].UnitPrice, c.Items[i].Quantity)
		lines[i] = pricing.LineItem{UnitPrice: c.Items[i].UnitPrice, Quantity: c.Items[i].Quantity}
	}
	t, err := s.calc.Compute(lines)
	if err != nil {
		return err
	}
	c.TotalItems = t.ItemCount
	c.Subtotal = t.Subtotal
	c.TaxAmount = t.Tax
	c.DeliveryFee = t.DeliveryFee
	c.Total = t.Total
	c.PrescriptionStatus = aggregatePrescriptionStatus(c.Items)
	return nil
}

func (s *CartService) load(ctx context.Context, userID string) (*domain.Cart, error) {
	c, err := s.carts.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.NewCart(userID, s.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart %s: %w", userID, err)
	}
	if c.Items == nil {
		c.Items = []domain.CartLineItem{}
	}
	return c, nil
}

// markForRevalidation drops earlier verdicts after a mutation. A restricted
// line without any prescription cannot become valid and is invalid at once.
func markForRevalidation(c *domain.Cart) {
	for i := range c.Items {
		it := &c.Items[i]
		switch {
		case !it.PrescriptionRequired:
			it.PrescriptionStatus = domain.PrescriptionNotRequired
			it.PrescriptionIssue = domain.IssueNone
		case it.PrescriptionID == "":
			it.PrescriptionStatus = domain.PrescriptionInvalid
			it.PrescriptionIssue = domain.IssueMissing
		default:
			it.PrescriptionStatus = domain.PrescriptionPending
			it.PrescriptionIssue = domain.IssueNone
		}
	}
}
