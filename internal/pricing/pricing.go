// Package pricing computes cart and order totals.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInvalidLineItem = errors.New("invalid line item")

// Config holds the pricing constants.
type Config struct {
	TaxRate               decimal.Decimal
	FreeDeliveryThreshold decimal.Decimal
	FlatDeliveryFee       decimal.Decimal
}

// DefaultConfig is 18% GST, free delivery from 500, flat fee 50 below that.
func DefaultConfig() Config {
	return Config{
		TaxRate:               decimal.RequireFromString("0.18"),
		FreeDeliveryThreshold: decimal.NewFromInt(500),
		FlatDeliveryFee:       decimal.NewFromInt(50),
	}
}

// LineItem is the pricing view of a cart or order line.
type LineItem struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Totals of a set of line items.
type Totals struct {
	ItemCount   int
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	DeliveryFee decimal.Decimal
	Total       decimal.Decimal
}

// Calculator is immutable after construction and safe for concurrent use.
type Calculator struct {
	cfg Config
}

func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

func (c *Calculator) Config() Config { return c.cfg }

// Compute returns the totals of items. Tax is rounded half-up to two places once, on the final figure.
func (c *Calculator) Compute(items []LineItem) (Totals, error) {
	t := Totals{Subtotal: decimal.Zero}
	for i, it := range items {
		if it.Quantity <= 0 {
			return Totals{}, fmt.Errorf("%w: line %d quantity %d", ErrInvalidLineItem, i, it.Quantity)
		}
		if it.UnitPrice.IsNegative() {
			return Totals{}, fmt.Errorf("%w: line %d unit price %s", ErrInvalidLineItem, i, it.UnitPrice)
		}
		t.ItemCount += it.Quantity
		t.Subtotal = t.Subtotal.Add(LineTotal(it.UnitPrice, it.Quantity))
	}
	t.Tax = t.Subtotal.Mul(c.cfg.TaxRate).Round(2)
	t.DeliveryFee = c.deliveryFee(t.Subtotal)
	t.Total = t.Subtotal.Add(t.Tax).Add(t.DeliveryFee)
	return t, nil
}

// empty carts carry no fee
func (c *Calculator) deliveryFee(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.IsZero() || subtotal.GreaterThanOrEqual(c.cfg.FreeDeliveryThreshold) {
		return decimal.Zero
	}
	return c.cfg.FlatDeliveryFee
}

func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}
