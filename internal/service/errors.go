package service

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrInvalidQuantity       = errors.New("quantity must be a positive integer")
	ErrMedicineNotFound      = errors.New("medicine not found")
	ErrPrescriptionNotFound  = errors.New("prescription not found")
	ErrCartItemNotFound      = errors.New("cart item not found")
	ErrOrderNotFound         = errors.New("order not found")
	ErrForbidden             = errors.New("forbidden")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrCheckoutRejected      = errors.New("checkout rejected")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrPrescriptionImmutable = errors.New("prescription status cannot change")
	ErrOrderClosed           = errors.New("order is closed")
)
