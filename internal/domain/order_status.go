package domain

import (
	"errors"
	"fmt"
)

// OrderStatus is a state of the order delivery lifecycle.
type OrderStatus string

const (
	OrderPending        OrderStatus = "pending"
	OrderConfirmed      OrderStatus = "confirmed"
	OrderProcessing     OrderStatus = "processing"
	OrderPacked         OrderStatus = "packed"
	OrderShipped        OrderStatus = "shipped"
	OrderOutForDelivery OrderStatus = "out_for_delivery"
	OrderDelivered      OrderStatus = "delivered"
	OrderCancelled      OrderStatus = "cancelled"
	OrderReturned       OrderStatus = "returned"
)

var ErrInvalidTransition = errors.New("invalid order status transition")

// InvalidTransitionError names the rejected move. It matches ErrInvalidTransition.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order status transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// orderTransitions lists, per state, the only states it may move to next.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:        {OrderConfirmed, OrderCancelled},
	OrderConfirmed:      {OrderProcessing, OrderCancelled},
	OrderProcessing:     {OrderPacked, OrderCancelled},
	OrderPacked:         {OrderShipped, OrderCancelled},
	OrderShipped:        {OrderOutForDelivery, OrderCancelled},
	OrderOutForDelivery: {OrderDelivered},
	OrderDelivered:      {OrderReturned},
	OrderCancelled:      {},
	OrderReturned:       {},
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// IsTerminal reports whether no further transition exists.
func (s OrderStatus) IsTerminal() bool {
	return s.Valid() && len(orderTransitions[s]) == 0
}

// Next returns the allowed target states.
func (s OrderStatus) Next() []OrderStatus {
	return append([]OrderStatus(nil), orderTransitions[s]...)
}

func CanTransition(from, to OrderStatus) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns *InvalidTransitionError when to is not an allowed successor of from.
func ValidateTransition(from, to OrderStatus) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}
