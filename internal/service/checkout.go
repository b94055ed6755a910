package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medicart/internal/domain"
	"medicart/internal/repository"
)

// Rejection and warning codes. Prescription problems use the domain.PrescriptionIssue values.
const (
	ReasonEmptyCart         = "empty_cart"
	ReasonMedicineNotFound  = "medicine_not_found"
	ReasonMedicineExpired   = "medicine_expired"
	ReasonInsufficientStock = "insufficient_stock"

	WarningLowStock     = "low_stock"
	WarningExpiringSoon = "expiring_soon"
)

const expiryWarningWindow = 30 * 24 * time.Hour

// RejectionReason is one failed check, optionally tied to a cart line.
type RejectionReason struct {
	Code       string `json:"code"`
	MedicineID string `json:"medicine_id,omitempty"`
	Message    string `json:"message"`
}

// ValidationResult of a checkout readiness check. Warnings never block.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Reasons  []RejectionReason `json:"reasons"`
	Warnings []RejectionReason `json:"warnings"`
}

// CheckoutRejection is returned by Checkout when validation fails.
type CheckoutRejection struct {
	Reasons []RejectionReason
}

func (e *CheckoutRejection) Error() string {
	codes := make([]string, 0, len(e.Reasons))
	for _, r := range e.Reasons {
		codes = append(codes, r.Code)
	}
	return fmt.Sprintf("%s: %s", ErrCheckoutRejected, strings.Join(codes, ", "))
}

func (e *CheckoutRejection) Unwrap() error { return ErrCheckoutRejected }

// CheckoutValidator decides whether a cart may become an order.
type CheckoutValidator struct {
	catalog Catalog
	rx      PrescriptionRecords
	timeout time.Duration
	now     func() time.Time
}

func NewCheckoutValidator(catalog Catalog, rx PrescriptionRecords, timeout time.Duration) *CheckoutValidator {
	return &CheckoutValidator{
		catalog: catalog,
		rx:      rx,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Validate runs every check and collects all failures. It refreshes the
// prescription status of c's lines in place; nothing else on c changes.
// A collaborator failure is returned as an error and never counts as a pass.
func (v *CheckoutValidator) Validate(ctx context.Context, c *domain.Cart) (*ValidationResult, error) {
	res := &ValidationResult{Reasons: []RejectionReason{}, Warnings: []RejectionReason{}}

	if len(c.Items) == 0 {
		res.Reasons = append(res.Reasons, RejectionReason{Code: ReasonEmptyCart, Message: "cart is empty"})
	}

	if err := v.RefreshPrescriptions(ctx, c); err != nil {
		return nil, err
	}
	for _, it := range c.Items {
		if it.PrescriptionRequired && it.PrescriptionStatus != domain.PrescriptionValid {
			res.Reasons = append(res.Reasons, RejectionReason{
				Code:       string(it.PrescriptionIssue),
				MedicineID: it.MedicineID,
				Message:    issueMessage(it.PrescriptionIssue, it.Name),
			})
		}
	}

	now := v.now()
	for _, it := range c.Items {
		med, err := callWithTimeout(ctx, v.timeout, "catalog", func(ctx context.Context) (*domain.Medicine, error) {
			return v.catalog.GetMedicine(ctx, it.MedicineID)
		})
		if errors.Is(err, repository.ErrNotFound) {
			res.Reasons = append(res.Reasons, RejectionReason{
				Code:       ReasonMedicineNotFound,
				MedicineID: it.MedicineID,
				Message:    fmt.Sprintf("%s is no longer sold", it.Name),
			})
			continue
		}
		if err != nil {
			return nil, err
		}
		if med.ExpiryDate != nil && !med.ExpiryDate.After(now) {
			res.Reasons = append(res.Reasons, RejectionReason{
				Code:       ReasonMedicineExpired,
				MedicineID: it.MedicineID,
				Message:    fmt.Sprintf("%s stock has expired", med.Name),
			})
		} else if med.ExpiryDate != nil && med.ExpiryDate.Sub(now) <= expiryWarningWindow {
			res.Warnings = append(res.Warnings, RejectionReason{
				Code:       WarningExpiringSoon,
				MedicineID: it.MedicineID,
				Message:    fmt.Sprintf("%s expires on %s", med.Name, med.ExpiryDate.Format("2006-01-02")),
			})
		}
		if int64(it.Quantity) > med.Stock {
			res.Reasons = append(res.Reasons, RejectionReason{
				Code:       ReasonInsufficientStock,
				MedicineID: it.MedicineID,
				Message:    fmt.Sprintf("only %d of %s in stock", med.Stock, med.Name),
			})
		} else if med.Stock <= med.MinStockLevel {
			res.Warnings = append(res.Warnings, RejectionReason{
				Code:       WarningLowStock,
				MedicineID: it.MedicineID,
				Message:    fmt.Sprintf("%s is running low", med.Name),
			})
		}
	}

	res.Valid = len(res.Reasons) == 0
	return res, nil
}

// RefreshPrescriptions re-checks every restricted line against the
// prescription store and recomputes the cart aggregate. On error c is untouched.
func (v *CheckoutValidator) RefreshPrescriptions(ctx context.Context, c *domain.Cart) error {
	type verdict struct {
		status domain.ItemPrescriptionStatus
		issue  domain.PrescriptionIssue
	}
	now := v.now()
	verdicts := make([]verdict, len(c.Items))
	fetched := make(map[string]*domain.Prescription)

	for i, it := range c.Items {
		if !it.PrescriptionRequired {
			verdicts[i] = verdict{domain.PrescriptionNotRequired, domain.IssueNone}
			continue
		}
		if it.PrescriptionID == "" {
			verdicts[i] = verdict{domain.PrescriptionInvalid, domain.IssueMissing}
			continue
		}
		p, seen := fetched[it.PrescriptionID]
		if !seen {
			var err error
			p, err = callWithTimeout(ctx, v.timeout, "prescriptions", func(ctx context.Context) (*domain.Prescription, error) {
				return v.rx.GetPrescription(ctx, it.PrescriptionID)
			})
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			fetched[it.PrescriptionID] = p
		}
		if p == nil {
			verdicts[i] = verdict{domain.PrescriptionInvalid, domain.IssueNotFound}
			continue
		}
		if issue := p.CheckFor(c.UserID, it.MedicineID, now); issue != domain.IssueNone {
			verdicts[i] = verdict{domain.PrescriptionInvalid, issue}
			continue
		}
		verdicts[i] = verdict{domain.PrescriptionValid, domain.IssueNone}
	}

	for i := range c.Items {
		c.Items[i].PrescriptionStatus = verdicts[i].status
		c.Items[i].PrescriptionIssue = verdicts[i].issue
	}
	c.PrescriptionStatus = aggregatePrescriptionStatus(c.Items)
	return nil
}

// aggregatePrescriptionStatus: any invalid line wins, then any unvalidated
// line, and a cart with no restricted lines needs nothing.
func aggregatePrescriptionStatus(items []domain.CartLineItem) domain.ItemPrescriptionStatus {
	restricted, pending := false, false
	for _, it := range items {
		if !it.PrescriptionRequired {
			continue
		}
		restricted = true
		switch it.PrescriptionStatus {
		case domain.PrescriptionInvalid:
			return domain.PrescriptionInvalid
		case domain.PrescriptionValid:
		default:
			pending = true
		}
	}
	switch {
	case !restricted:
		return domain.PrescriptionNotRequired
	case pending:
		return domain.PrescriptionPending
	}
	return domain.PrescriptionValid
}

func issueMessage(issue domain.PrescriptionIssue, name string) string {
	switch issue {
	case domain.IssueMissing:
		return fmt.Sprintf("%s requires a prescription", name)
	case domain.IssueNotFound:
		return fmt.Sprintf("prescription for %s was not found", name)
	case domain.IssueNotVerified:
		return fmt.Sprintf("prescription for %s is not verified yet", name)
	case domain.IssueExpired:
		return fmt.Sprintf("prescription for %s has expired", name)
	case domain.IssueNotOwned:
		return fmt.Sprintf("prescription for %s belongs to another user", name)
	case domain.IssueNotCovering:
		return fmt.Sprintf("prescription does not cover %s", name)
	}
	return fmt.Sprintf("prescription for %s is not valid", name)
}
