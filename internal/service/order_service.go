package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"medicart/internal/domain"
	"medicart/internal/events"
	"medicart/internal/pricing"
	"medicart/internal/repository"
)

// OrderService turns validated carts into orders and drives the delivery lifecycle.
type OrderService struct {
	orders repository.OrderRepository
	carts  *CartService
	stock  StockReserver
	events events.Emitter
	calc   *pricing.Calculator
	locks  *keyLocker
	log    *slog.Logger
	now    func() time.Time
}

func NewOrderService(orders repository.OrderRepository, carts *CartService, stock StockReserver, emitter events.Emitter, log *slog.Logger) *OrderService {
	if emitter == nil {
		emitter = events.Discard{}
	}
	return &OrderService{
		orders: orders,
		carts:  carts,
		stock:  stock,
		events: emitter,
		calc:   carts.calc,
		locks:  newKeyLocker(),
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CheckoutInput is what the customer supplies at checkout.
type CheckoutInput struct {
	DeliveryAddress      domain.DeliveryAddress
	PaymentMethod        domain.PaymentMethod
	DeliveryInstructions string
	Emergency            bool
}

// TransitionInput carries the optional note of a status change.
type TransitionInput struct {
	Reason string
}

// DeliveryUpdate changes tracking fields. Empty or zero fields are left alone.
type DeliveryUpdate struct {
	PartnerID        string
	TrackingNumber   string
	EstimatedMinutes int
}

// Checkout validates the cart, reserves stock and creates a pending order,
// then clears the cart lines. The user's cart stays locked throughout, so no
// mutation can slip in between validation and order creation.
func (s *OrderService) Checkout(ctx context.Context, userID string, in CheckoutInput) (*domain.Order, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	if !in.DeliveryAddress.Complete() {
		return nil, fmt.Errorf("%w: delivery address is incomplete", ErrInvalidInput)
	}
	if !in.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, in.PaymentMethod)
	}

	unlock, err := s.carts.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cart, err := s.carts.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	res, err := s.carts.validator.Validate(ctx, cart)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) > 0 {
		// keep the refreshed verdicts visible to the customer
		if err := s.carts.saveVerdicts(ctx, cart); err != nil {
			return nil, err
		}
	}
	if !res.Valid {
		s.log.InfoContext(ctx, "checkout rejected", "user_id", userID, "reasons", len(res.Reasons))
		return nil, &CheckoutRejection{Reasons: res.Reasons}
	}

	lines := make([]StockLine, len(cart.Items))
	for i, it := range cart.Items {
		lines[i] = StockLine{MedicineID: it.MedicineID, Quantity: it.Quantity}
	}
	if err := s.stock.ReserveStock(ctx, lines); err != nil {
		return nil, err
	}

	o, err := s.newOrder(userID, cart, in)
	if err == nil {
		err = s.orders.Create(ctx, o)
	}
	if err != nil {
		if rerr := s.stock.ReleaseStock(context.WithoutCancel(ctx), lines); rerr != nil {
			s.log.ErrorContext(ctx, "release stock after failed checkout", "user_id", userID, "err", rerr)
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	cart.Items = []domain.CartLineItem{}
	if err := s.carts.commit(ctx, cart); err != nil {
		// the order exists; a retry must not place it twice
		s.log.ErrorContext(ctx, "clear cart after checkout", "user_id", userID, "order_id", o.ID, "err", err)
	}

	s.log.InfoContext(ctx, "order created",
		"order_id", o.ID,
		"order_number", o.OrderNumber,
		"user_id", userID,
		"total", o.Total.StringFixed(2),
		"emergency", o.Emergency,
	)
	s.events.Emit(events.ForOrder(events.OrderCreated, o, "", ""))
	if o.Emergency {
		s.events.Emit(events.ForOrder(events.EmergencyOrderCreated, o, "", ""))
	}
	return o, nil
}

// newOrder freezes the cart lines. Totals are recomputed from the frozen lines
// with the same calculator, so they always match the cart's.
func (s *OrderService) newOrder(userID string, cart *domain.Cart, in CheckoutInput) (*domain.Order, error) {
	items := make([]domain.OrderItem, len(cart.Items))
	lines := make([]pricing.LineItem, len(cart.Items))
	for i, it := range cart.Items {
		items[i] = domain.OrderItem{
			MedicineID:           it.MedicineID,
			Name:                 it.Name,
			Quantity:             it.Quantity,
			UnitPrice:            it.UnitPrice,
			LineTotal:            pricing.LineTotal(it.UnitPrice, it.Quantity),
			PrescriptionRequired: it.PrescriptionRequired,
			PrescriptionID:       it.PrescriptionID,
		}
		lines[i] = pricing.LineItem{UnitPrice: it.UnitPrice, Quantity: it.Quantity}
	}
	t, err := s.calc.Compute(lines)
	if err != nil {
		return nil, err
	}

	now := s.now()
	minutes := estimateDeliveryMinutes(items)
	eta := now.Add(time.Duration(minutes) * time.Minute)
	return &domain.Order{
		ID:                       uuid.NewString(),
		OrderNumber:              orderNumber(now),
		UserID:                   userID,
		Status:                   domain.OrderPending,
		PaymentStatus:            domain.PaymentPending,
		PaymentMethod:            in.PaymentMethod,
		Items:                    items,
		DeliveryAddress:          in.DeliveryAddress,
		DeliveryInstructions:     in.DeliveryInstructions,
		Subtotal:                 t.Subtotal,
		TaxAmount:                t.Tax,
		DeliveryFee:              t.DeliveryFee,
		Total:                    t.Total,
		Emergency:                in.Emergency,
		EstimatedDeliveryMinutes: minutes,
		EstimatedDeliveryAt:      &eta,
		History:                  []domain.StatusChange{{To: domain.OrderPending, At: now, Note: "order placed"}},
	}, nil
}

func orderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%04d", now.Format("20060102"), uuid.New().ID()%10000)
}

// 30 min base, 2 per line up to 20, 5 per prescription line, at most an hour.
func estimateDeliveryMinutes(items []domain.OrderItem) int {
	minutes := 30 + min(2*len(items), 20)
	for _, it := range items {
		if it.PrescriptionRequired {
			minutes += 5
		}
	}
	return min(minutes, 60)
}

// Transition moves the order to target if the lifecycle allows it. Refused
// moves leave the order untouched and return *domain.InvalidTransitionError.
func (s *OrderService) Transition(ctx context.Context, orderID string, target domain.OrderStatus, in TransitionInput) (*domain.Order, error) {
	if orderID == "" || !target.Valid() {
		return nil, ErrInvalidInput
	}
	unlock, err := s.locks.Lock(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	from := o.Status
	if err := domain.ValidateTransition(from, target); err != nil {
		s.log.WarnContext(ctx, "order transition refused", "order_id", orderID, "from", from, "to", target)
		return nil, err
	}

	now := s.now()
	refundStock := false
	switch target {
	case domain.OrderConfirmed:
		o.PaymentStatus = domain.PaymentProcessing
	case domain.OrderDelivered:
		o.ActualDeliveryAt = &now
		o.PaymentStatus = domain.PaymentCompleted
	case domain.OrderCancelled:
		o.CancellationReason = in.Reason
		if o.PaymentStatus == domain.PaymentProcessing || o.PaymentStatus == domain.PaymentCompleted {
			o.PaymentStatus = domain.PaymentRefunded
		}
		refundStock = true
	case domain.OrderReturned:
		o.PaymentStatus = domain.PaymentRefunded
	}
	o.Status = target
	o.History = append(o.History, domain.StatusChange{From: from, To: target, At: now, Note: in.Reason})

	if err := s.orders.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("update order %s: %w", orderID, err)
	}

	if refundStock {
		lines := make([]StockLine, len(o.Items))
		for i, it := range o.Items {
			lines[i] = StockLine{MedicineID: it.MedicineID, Quantity: it.Quantity}
		}
		if err := s.stock.ReleaseStock(context.WithoutCancel(ctx), lines); err != nil {
			s.log.ErrorContext(ctx, "release stock of cancelled order", "order_id", orderID, "err", err)
		}
	}

	s.log.InfoContext(ctx, "order status changed", "order_id", orderID, "from", from, "to", target)
	s.events.Emit(events.ForOrder(events.OrderStatusChanged, o, from, in.Reason))
	return o, nil
}

// Cancel is the customer's cancellation of their own order.
func (s *OrderService) Cancel(ctx context.Context, userID, orderID, reason string) (*domain.Order, error) {
	if _, err := s.OrderForUser(ctx, userID, orderID); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "cancelled by customer"
	}
	return s.Transition(ctx, orderID, domain.OrderCancelled, TransitionInput{Reason: reason})
}

// UpdateDelivery sets tracking fields. Terminal orders return ErrOrderClosed.
func (s *OrderService) UpdateDelivery(ctx context.Context, orderID string, u DeliveryUpdate) (*domain.Order, error) {
	if orderID == "" || u.EstimatedMinutes < 0 {
		return nil, ErrInvalidInput
	}
	if u.PartnerID == "" && u.TrackingNumber == "" && u.EstimatedMinutes == 0 {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	unlock, err := s.locks.Lock(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status.IsTerminal() || o.Status == domain.OrderDelivered {
		return nil, fmt.Errorf("%w: %s", ErrOrderClosed, o.Status)
	}
	if u.PartnerID != "" {
		o.DeliveryPartnerID = u.PartnerID
	}
	if u.TrackingNumber != "" {
		o.TrackingNumber = u.TrackingNumber
	}
	if u.EstimatedMinutes > 0 {
		eta := s.now().Add(time.Duration(u.EstimatedMinutes) * time.Minute)
		o.EstimatedDeliveryMinutes = u.EstimatedMinutes
		o.EstimatedDeliveryAt = &eta
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("update order %s: %w", orderID, err)
	}
	s.events.Emit(events.ForOrder(events.OrderDeliveryUpdated, o, "", ""))
	return o, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	if id == "" {
		return nil, ErrInvalidInput
	}
	o, err := s.orders.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

// OrderForUser returns the order only if userID placed it.
func (s *OrderService) OrderForUser(ctx context.Context, userID, id string) (*domain.Order, error) {
	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrForbidden
	}
	return o, nil
}

// ListUserOrders returns the user's orders, newest first.
func (s *OrderService) ListUserOrders(ctx context.Context, userID string, f repository.OrderFilter) ([]domain.Order, error) {
	if userID == "" || f.Limit < 0 || f.Offset < 0 {
		return nil, ErrInvalidInput
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, ErrInvalidInput
	}
	return s.orders.ListByUser(ctx, userID, f)
}

// ListByStatus is the operational queue for one status, oldest first.
func (s *OrderService) ListByStatus(ctx context.Context, status domain.OrderStatus, limit, offset int) ([]domain.Order, error) {
	if !status.Valid() || limit < 0 || offset < 0 {
		return nil, ErrInvalidInput
	}
	return s.orders.ListByStatus(ctx, status, limit, offset)
}
