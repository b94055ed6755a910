package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"medicart/internal/domain"
	"medicart/internal/events"
	"medicart/internal/pricing"
	"medicart/internal/repository"
)

type fixture struct {
	store   *repository.MemoryStore
	catalog *CatalogService
	rx      *PrescriptionService
	carts   *CartService
	orders  *OrderService
	events  *recordingEmitter
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	catalog := NewCatalogService(store, repository.NewMemoryTx(store))
	rx := NewPrescriptionService(repository.NewMemoryPrescriptions(store), quietLogger())
	carts := NewCartService(repository.NewMemoryCarts(store), catalog, rx, pricing.NewCalculator(pricing.DefaultConfig()), time.Second)
	rec := &recordingEmitter{}
	orders := NewOrderService(repository.NewMemoryOrders(store), carts, catalog, rec, quietLogger())
	return &fixture{store: store, catalog: catalog, rx: rx, carts: carts, orders: orders, events: rec}
}

func (f *fixture) medicine(t *testing.T, name string, price int64, stock int64, restricted bool) *domain.Medicine {
	t.Helper()
	m, err := f.catalog.Create(context.Background(), domain.Medicine{
		Name:                 name,
		Price:                decimal.NewFromInt(price),
		Stock:                stock,
		PrescriptionRequired: restricted,
	})
	require.NoError(t, err)
	return m
}

// verifiedPrescription uploads and verifies a prescription valid for a week.
func (f *fixture) verifiedPrescription(t *testing.T, userID string, medicineIDs ...string) *domain.Prescription {
	t.Helper()
	ctx := context.Background()
	until := time.Now().UTC().Add(7 * 24 * time.Hour)
	p, err := f.rx.Upload(ctx, userID, UploadInput{MedicineIDs: medicineIDs, DoctorName: "Dr. Rao", ValidUntil: &until})
	require.NoError(t, err)
	p, err = f.rx.Verify(ctx, p.ID, VerifyInput{VerifiedBy: "pharmacist-1"})
	require.NoError(t, err)
	return p
}

func address() domain.DeliveryAddress {
	return domain.DeliveryAddress{
		Street:       "12 MG Road",
		City:         "Bengaluru",
		State:        "KA",
		PostalCode:   "560001",
		ContactName:  "Asha",
		ContactPhone: "+91-9000000000",
	}
}

func checkoutInput() CheckoutInput {
	return CheckoutInput{DeliveryAddress: address(), PaymentMethod: domain.PaymentUPI}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordingEmitter struct {
	mu  sync.Mutex
	got []events.Event
}

func (r *recordingEmitter) Emit(e events.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, e)
	return true
}

func (r *recordingEmitter) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.got))
	for i, e := range r.got {
		out[i] = e.Type
	}
	return out
}

// blockingRecords never answers before ctx is done.
type blockingRecords struct{}

func (blockingRecords) GetPrescription(ctx context.Context, id string) (*domain.Prescription, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type failingCatalog struct{ err error }

func (c failingCatalog) GetMedicine(ctx context.Context, id string) (*domain.Medicine, error) {
	return nil, c.err
}

// failingOrders refuses to create orders.
type failingOrders struct {
	repository.OrderRepository
}

func (failingOrders) Create(ctx context.Context, o *domain.Order) error {
	return io.ErrUnexpectedEOF
}
