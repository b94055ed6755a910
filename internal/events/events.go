// Package events fans order lifecycle notifications out to sinks
// (structured log, Kafka, the live tracking hub) without blocking the caller.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"medicart/internal/domain"
)

type Type string

const (
	OrderCreated          Type = "order.created"
	OrderStatusChanged    Type = "order.status_changed"
	EmergencyOrderCreated Type = "order.emergency_created"
	OrderDeliveryUpdated  Type = "order.delivery_updated"
)

type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "normal"
}

// Event is what sinks receive. It carries no pricing data.
type Event struct {
	ID             string             `json:"id"`
	Type           Type               `json:"type"`
	Priority       Priority           `json:"-"`
	OrderID        string             `json:"order_id"`
	OrderNumber    string             `json:"order_number"`
	UserID         string             `json:"user_id"`
	Status         domain.OrderStatus `json:"status"`
	PreviousStatus domain.OrderStatus `json:"previous_status,omitempty"`
	Emergency      bool               `json:"emergency_order"`
	Note           string             `json:"note,omitempty"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

// ForOrder builds an event of type t from the current state of o.
// Emergency orders are dispatched ahead of everything else.
func ForOrder(t Type, o *domain.Order, previous domain.OrderStatus, note string) Event {
	p := PriorityNormal
	if o.Emergency {
		p = PriorityHigh
	}
	return Event{
		ID:             uuid.NewString(),
		Type:           t,
		Priority:       p,
		OrderID:        o.ID,
		OrderNumber:    o.OrderNumber,
		UserID:         o.UserID,
		Status:         o.Status,
		PreviousStatus: previous,
		Emergency:      o.Emergency,
		Note:           note,
		OccurredAt:     time.Now().UTC(),
	}
}

// Sink delivers events somewhere. Publish must honour ctx.
type Sink interface {
	Name() string
	Publish(ctx context.Context, e Event) error
}

// Emitter is the producer side used by services.
type Emitter interface {
	Emit(e Event) bool
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(Event) bool { return true }
