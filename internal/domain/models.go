package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Medicine is a catalog entry as seen by the cart and checkout.
type Medicine struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	GenericName          string          `json:"generic_name,omitempty"`
	Manufacturer         string          `json:"manufacturer,omitempty"`
	Price                decimal.Decimal `json:"price"`
	PrescriptionRequired bool            `json:"prescription_required"`
	Stock                int64           `json:"stock"`
	MinStockLevel        int64           `json:"min_stock_level"`
	ExpiryDate           *time.Time      `json:"expiry_date,omitempty"`
}

// ItemPrescriptionStatus is the prescription validity of a single cart line.
// The same values are used for the cart-wide aggregate.
type ItemPrescriptionStatus string

const (
	PrescriptionNotRequired ItemPrescriptionStatus = "not_required"
	PrescriptionPending     ItemPrescriptionStatus = "pending"
	PrescriptionValid       ItemPrescriptionStatus = "valid"
	PrescriptionInvalid     ItemPrescriptionStatus = "invalid"
)

// CartLineItem is one medicine in a cart.
type CartLineItem struct {
	MedicineID           string                 `json:"medicine_id"`
	Name                 string                 `json:"name"`
	Quantity             int                    `json:"quantity"`
	UnitPrice            decimal.Decimal        `json:"unit_price"`
	LineTotal            decimal.Decimal        `json:"line_total"`
	PrescriptionRequired bool                   `json:"prescription_required"`
	PrescriptionID       string                 `json:"prescription_id,omitempty"`
	PrescriptionStatus   ItemPrescriptionStatus `json:"prescription_status"`
	PrescriptionIssue    PrescriptionIssue      `json:"prescription_issue,omitempty"`
	Notes                string                 `json:"notes,omitempty"`
	AddedAt              time.Time              `json:"added_at"`
}

// Cart is the single in-progress cart of a user.
// Aggregate fields are derived from Items and are never set independently.
type Cart struct {
	UserID             string                 `json:"user_id"`
	Items              []CartLineItem         `json:"items"`
	Version            int64                  `json:"version"`
	TotalItems         int                    `json:"total_items"`
	Subtotal           decimal.Decimal        `json:"subtotal"`
	TaxAmount          decimal.Decimal        `json:"tax_amount"`
	DeliveryFee        decimal.Decimal        `json:"delivery_fee"`
	Total              decimal.Decimal        `json:"total"`
	PrescriptionStatus ItemPrescriptionStatus `json:"prescription_validation_status"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

// NewCart returns an empty cart for the user.
func NewCart(userID string, now time.Time) *Cart {
	return &Cart{
		UserID:             userID,
		Items:              []CartLineItem{},
		PrescriptionStatus: PrescriptionNotRequired,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Item returns the index of the line holding medicineID.
func (c *Cart) Item(medicineID string) (int, bool) {
	for i := range c.Items {
		if c.Items[i].MedicineID == medicineID {
			return i, true
		}
	}
	return -1, false
}

// Clone returns a deep copy.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = make([]CartLineItem, len(c.Items))
	copy(cp.Items, c.Items)
	return &cp
}

// PaymentStatus of an order.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

// PaymentMethod chosen at checkout. Capture happens elsewhere.
type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentCreditCard     PaymentMethod = "credit_card"
	PaymentDebitCard      PaymentMethod = "debit_card"
	PaymentUPI            PaymentMethod = "upi"
	PaymentNetBanking     PaymentMethod = "net_banking"
	PaymentWallet         PaymentMethod = "wallet"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCashOnDelivery, PaymentCreditCard, PaymentDebitCard, PaymentUPI, PaymentNetBanking, PaymentWallet:
		return true
	}
	return false
}

// DeliveryAddress where the order is shipped.
type DeliveryAddress struct {
	Street       string `json:"street"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country,omitempty"`
	Landmark     string `json:"landmark,omitempty"`
	ContactName  string `json:"contact_name"`
	ContactPhone string `json:"contact_phone"`
}

// Complete reports whether all mandatory fields are filled.
func (a DeliveryAddress) Complete() bool {
	return a.Street != "" && a.City != "" && a.State != "" && a.PostalCode != "" &&
		a.ContactName != "" && a.ContactPhone != ""
}

// OrderItem is a frozen copy of a cart line.
type OrderItem struct {
	MedicineID           string          `json:"medicine_id"`
	Name                 string          `json:"name"`
	Quantity             int             `json:"quantity"`
	UnitPrice            decimal.Decimal `json:"unit_price"`
	LineTotal            decimal.Decimal `json:"line_total"`
	PrescriptionRequired bool            `json:"prescription_required"`
	PrescriptionID       string          `json:"prescription_id,omitempty"`
}

// StatusChange is one entry of an order's status history.
type StatusChange struct {
	From OrderStatus `json:"from,omitempty"`
	To   OrderStatus `json:"to"`
	At   time.Time   `json:"at"`
	Note string      `json:"note,omitempty"`
}

// Order is created only by checkout. Items and totals never change afterwards.
type Order struct {
	ID                       string          `json:"id"`
	OrderNumber              string          `json:"order_number"`
	UserID                   string          `json:"user_id"`
	Status                   OrderStatus     `json:"status"`
	PaymentStatus            PaymentStatus   `json:"payment_status"`
	PaymentMethod            PaymentMethod   `json:"payment_method"`
	Items                    []OrderItem     `json:"items"`
	DeliveryAddress          DeliveryAddress `json:"delivery_address"`
	DeliveryInstructions     string          `json:"delivery_instructions,omitempty"`
	Subtotal                 decimal.Decimal `json:"subtotal"`
	TaxAmount                decimal.Decimal `json:"tax_amount"`
	DeliveryFee              decimal.Decimal `json:"delivery_fee"`
	Total                    decimal.Decimal `json:"total"`
	Emergency                bool            `json:"emergency_order"`
	DeliveryPartnerID        string          `json:"delivery_partner_id,omitempty"`
	TrackingNumber           string          `json:"tracking_number,omitempty"`
	EstimatedDeliveryMinutes int             `json:"estimated_delivery_minutes"`
	EstimatedDeliveryAt      *time.Time      `json:"estimated_delivery_at,omitempty"`
	ActualDeliveryAt         *time.Time      `json:"actual_delivery_at,omitempty"`
	CancellationReason       string          `json:"cancellation_reason,omitempty"`
	History                  []StatusChange  `json:"history"`
	CreatedAt                time.Time       `json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

// Clone returns a deep copy so callers cannot alias stored slices.
func (o *Order) Clone() *Order {
	cp := *o
	cp.Items = append([]OrderItem(nil), o.Items...)
	cp.History = append([]StatusChange(nil), o.History...)
	if o.EstimatedDeliveryAt != nil {
		t := *o.EstimatedDeliveryAt
		cp.EstimatedDeliveryAt = &t
	}
	if o.ActualDeliveryAt != nil {
		t := *o.ActualDeliveryAt
		cp.ActualDeliveryAt = &t
	}
	return &cp
}
