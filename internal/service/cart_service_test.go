package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medicart/internal/domain"
	"medicart/internal/pricing"
	"medicart/internal/repository"
)

func TestCart_RestrictedLineBlocksUntilVerified(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.medicine(t, "Amoxicillin", 100, 10, true)
	b := f.medicine(t, "Paracetamol", 50, 10, false)

	_, err := f.carts.AddItem(ctx, "u1", AddItemInput{MedicineID: a.ID, Quantity: 2})
	require.NoError(t, err)
	c, err := f.carts.AddItem(ctx, "u1", AddItemInput{MedicineID: b.ID, Quantity: 1})
	require.NoError(t, err)

	assert.Equal(t, 3, c.TotalItems)
	assert.True(t, c.Subtotal.Equal(dec("250")), c.Subtotal.String())
	assert.True(t, c.TaxAmount.Equal(dec("45")), c.TaxAmount.String())
	assert.True(t, c.DeliveryFee.Equal(dec("50")), c.DeliveryFee.String())
	assert.True(t, c.Total.Equal(dec("345")), c.Total.String())
	assert.Equal(t, domain.PrescriptionInvalid, c.PrescriptionStatus)
	assert.Equal(t, domain.IssueMissing, c.Items[0].PrescriptionIssue)
	assert.Equal(t, domain.PrescriptionNotRequired, c.Items[1].PrescriptionStatus)
	assert.True(t, c.Items[0].LineTotal.Equal(dec("200")))

	_, err = f.orders.Checkout(ctx, "u1", checkoutInput())
	var rej *CheckoutRejection
	require.ErrorAs(t, err, &rej)
	assert.ErrorIs(t, err, ErrCheckoutRejected)
	require.Len(t, rej.Reasons, 1)
	assert.Equal(t, string(domain.IssueMissing), rej.Reasons[0].Code)
	assert.Equal(t, a.ID, rej.Reasons[0].MedicineID)

	p := f.verifiedPrescription(t, "u1", a.ID)
	c, err = f.carts.LinkPrescription(ctx, "u1", a.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PrescriptionPending, c.PrescriptionStatus)

	o, err := f.orders.Checkout(ctx, "u1", checkoutInput())
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, o.Status)
	assert.True(t, o.Total.Equal(dec("345")))
	assert.True(t, o.TaxAmount.Equal(dec("45")))
	require.Len(t, o.Items, 2)
	assert.Equal(t, p.ID, o.Items[0].PrescriptionID)

	c, err = f.carts.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.True(t, c.Total.IsZero())
	assert.Equal(t, domain.PrescriptionNotRequired, c.PrescriptionStatus)

	left, _ := f.catalog.GetByID(ctx, a.ID)
	assert.Equal(t, int64(8), left.Stock)
}

func TestCart_AddMergesAndRefreshesPrice(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	m := f.medicine(t, "Cetirizine", 20, 100, false)

	c, err := f.carts.AddItem(ctx, "u1", AddItemInput{MedicineID: m.ID, Quantity: 2, Notes: "night"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Version)

	m.Price = decimal.NewFromInt(25)
	_, err = f.catalog.Update(ctx, *m)
	require.NoError(t, err)

	c, err = f.carts.AddItem(ctx, "u1", AddItemInput{MedicineID: m.ID, Quantity: 3})
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 5, c.Items[0].Quantity)
	assert.True(t, c.Items[0].UnitPrice.Equal(dec("25")))
	assert.True(t, c.Subtotal.Equal(dec("125")))
	assert.Equal(t, "night", c.Items[0].Notes)
	assert.Equal(t, int64(2), c.Version)
}

func TestCart_AddItemErrors(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	m := f.medicine(t, "Ibuprofen", 30, 5, false)

	_, err := f.carts.AddItem(ctx, "u1", AddItemInput{MedicineID: m.ID, Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = f.carts.AddItem(ctx, "u1", AddItemInput{MedicineID: m.ID, Quantity: -2})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = f.carts.AddItem(ctx, "u1", AddItemInput{MedicineID: "nope", Quantity: 1})
	assert.ErrorIs(t, err, ErrMedicineNotFound)
	_, err = f.carts.AddItem(ctx, "", AddItemInput{MedicineID: m.ID, Quantity: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	c, err := f.carts.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.Zero(t, c.Version)
}

func TestCart_UpdateAndRemove(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	m := f.medicine(t, "Ibuprofen", 30, 5, false)
	_, err := f.carts.AddItem(ctx, "u1", AddItemInput{MedicineID: m.ID, Quantity: 1})
	require.NoError(t, err)

	note := "after food"
	c, err := f.carts.UpdateItem(ctx, "u1", m.ID, 4, &note)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Items[0].Quantity)
	assert.Equal(t, note, c.Items[0].Notes)
	assert.True(t, c.Subtotal.Equal(dec("120")))

	_, err = f.carts.UpdateItem(ctx, "u1", m.ID, -1, nil)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = f.carts.UpdateItem(ctx, "u1", "other", 2, nil)
	assert.ErrorIs(t, err, ErrCartItemNotFound)

	c, err = f.carts.UpdateItem(ctx, "u1", m.ID, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.True(t, c.Total.IsZero())
	assert.True(t, c.DeliveryFee.IsZero())
	version := c.Version

	c, err = f.carts.RemoveItem(ctx, "u1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, version, c.Version, "removing an absent line is a no-op")
}

func TestCart_ClearKeepsCart(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	m := f.medicine(t, "ORS", 10, 50, false)
	_, err := f.carts.AddItem(ctx, "u1", AddItemInput{MedicineID: m.ID, Quantity: 3})
	require.NoError(t, err)

	c, err := f.carts.Clear(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.Equal(t, int64(2), c.Version)
	assert.Zero(t, c.TotalItems)
}

func TestCart_ConcurrentAddsSameUser(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	m := f.medicine(t, "Zinc", 7, 1000, false)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.carts.AddItem(ctx, "u1", AddItemInput{MedicineID: m.ID, Quantity: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, err := f.carts.GetCart(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, n, c.Items[0].Quantity)
	assert.Equal(t, int64(n), c.Version)

	want, err := pricing.NewCalculator(pricing.DefaultConfig()).Compute([]pricing.LineItem{{UnitPrice: m.Price, Quantity: n}})
	require.NoError(t, err)
	assert.True(t, c.Total.Equal(want.Total))
	assert.Zero(t, f.carts.locks.size(), "idle locks are released")
}

func TestCart_ConcurrentUsersIndependent(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	m := f.medicine(t, "Zinc", 7, 1000, false)

	var wg sync.WaitGroup
	users := []string{"a", "b", "c", "d"}
	for _, u := range users {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				_, err := f.carts.AddItem(ctx, u, AddItemInput{MedicineID: m.ID, Quantity: 2})
				assert.NoError(t, err)
			}(u)
		}
	}
	wg.Wait()
	for _, u := range users {
		c, err := f.carts.GetCart(ctx, u)
		require.NoError(t, err)
		assert.Equal(t, 20, c.TotalItems, u)
	}
}

func TestCart_ValidatePrescriptions(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.medicine(t, "Amoxicillin", 100, 10, true)
	b := f.medicine(t, "Azithromycin", 80, 10, true)

	cases := []struct {
		name  string
		rxFor func() string
		want  domain.PrescriptionIssue
	}{
		{"valid", func() string { return f.verifiedPrescription(t, "u1", a.ID).ID }, domain.IssueNone},
		{"empty list covers all", func() string { return f.verifiedPrescription(t, "u1").ID }, domain.IssueNone},
		{"other user", func() string { return f.verifiedPrescription(t, "u2", a.ID).ID }, domain.IssueNotOwned},
		{"not covering", func() string { return f.verifiedPrescription(t, "u1", b.ID).ID }, domain.IssueNotCovering},
		{"unknown", func() string { return "missing-rx" }, domain.IssueNotFound},
		{"not verified", func() string {
			p, err := f.rx.Upload(ctx, "u1", UploadInput{MedicineIDs: []string{a.ID}})
			require.NoError(t, err)
			return p.ID
		}, domain.IssueNotVerified},
		{"rejected", func() string {
			p, err := f.rx.Upload(ctx, "u1", UploadInput{MedicineIDs: []string{a.ID}})
			require.NoError(t, err)
			_, err = f.rx.Reject(ctx, p.ID, "illegible", "pharmacist-1")
			require.NoError(t, err)
			return p.ID
		}, domain.IssueNotVerified},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.carts.Clear(ctx, "u1")
			require.NoError(t, err)
			_, err = f.carts.AddItem(ctx, "u1", AddItemInput{MedicineID: a.ID, Quantity: 1, PrescriptionID: tc.rxFor()})
			require.NoError(t, err)

			c, err := f.carts.ValidatePrescriptions(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, c.Items[0].PrescriptionIssue)
			if tc.want == domain.IssueNone {
				assert.Equal(t, domain.PrescriptionValid, c.Items[0].PrescriptionStatus)
				assert.Equal(t, domain.PrescriptionValid, c.PrescriptionStatus)
			} else {
				assert.Equal(t, domain.PrescriptionInvalid, c.Items[0].PrescriptionStatus)
				assert.Equal(t, domain.PrescriptionInvalid, c.PrescriptionStatus)
			}
		})
	}
}

func TestCart_ValidatePrescriptionsKeepsVersion(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.medicine(t, "Amoxicillin", 100, 10, true)
	rx := f.verifiedPrescription(t, "u1", a.ID)

	before, err := f.carts.AddItem(ctx, "u1", AddItemInput{MedicineID: a.ID, Quantity: 1, PrescriptionID: rx.ID})
	require.NoError(t, err)
	require.Equal(t, domain.PrescriptionPending, before.Items[0].PrescriptionStatus)

	_, err = f.carts.ValidatePrescriptions(ctx, "u1")
	require.NoError(t, err)

	after, err := f.carts.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.PrescriptionValid, after.Items[0].PrescriptionStatus)
	assert.Equal(t, domain.PrescriptionValid, after.PrescriptionStatus)
	assert.Equal(t, before.Version, after.Version)
	assert.True(t, after.UpdatedAt.Equal(before.UpdatedAt))
}

func TestCart_MutationResetsVerdict(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.medicine(t, "Amoxicillin", 100, 10, true)
	p := f.verifiedPrescription(t, "u1", a.ID)

	_, err := f.carts.AddItem(ctx, "u1", AddItemInput{MedicineID: a.ID, Quantity: 1, PrescriptionID: p.ID})
	require.NoError(t, err)
	c, err := f.carts.ValidatePrescriptions(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, domain.PrescriptionValid, c.PrescriptionStatus)

	c, err = f.carts.UpdateItem(ctx, "u1", a.ID, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.PrescriptionPending, c.PrescriptionStatus)
	assert.Equal(t, domain.PrescriptionPending, c.Items[0].PrescriptionStatus)
}

func TestCart_PrescriptionStoreTimeoutFailsClosed(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	catalog := NewCatalogService(store, repository.NewMemoryTx(store))
	carts := NewCartService(repository.NewMemoryCarts(store), catalog, blockingRecords{}, pricing.NewCalculator(pricing.DefaultConfig()), 20*time.Millisecond)
	a, err := catalog.Create(ctx, domain.Medicine{Name: "Amoxicillin", Price: decimal.NewFromInt(100), Stock: 5, PrescriptionRequired: true})
	require.NoError(t, err)

	before, err := carts.AddItem(ctx, "u1", AddItemInput{MedicineID: a.ID, Quantity: 1, PrescriptionID: "rx-1"})
	require.NoError(t, err)

	_, err = carts.ValidatePrescriptions(ctx, "u1")
	assert.ErrorIs(t, err, ErrDependencyUnavailable)

	after, err := carts.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, domain.PrescriptionPending, after.Items[0].PrescriptionStatus)

	orders := NewOrderService(repository.NewMemoryOrders(store), carts, catalog, nil, quietLogger())
	_, err = orders.Checkout(ctx, "u1", checkoutInput())
	assert.ErrorIs(t, err, ErrDependencyUnavailable)
	assert.False(t, errors.Is(err, ErrCheckoutRejected))
}

func TestCart_CatalogDownFailsClosed(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	carts := NewCartService(repository.NewMemoryCarts(store), failingCatalog{err: errors.New("connection refused")}, blockingRecords{}, pricing.NewCalculator(pricing.DefaultConfig()), time.Second)

	_, err := carts.AddItem(ctx, "u1", AddItemInput{MedicineID: "m1", Quantity: 1})
	assert.ErrorIs(t, err, ErrDependencyUnavailable)
}

func TestCart_ValidateCartIsReadOnly(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.medicine(t, "Amoxicillin", 100, 1, true)
	_, err := f.carts.AddItem(ctx, "u1", AddItemInput{MedicineID: a.ID, Quantity: 3})
	require.NoError(t, err)

	res, err := f.carts.ValidateCart(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	codes := make([]string, 0, len(res.Reasons))
	for _, r := range res.Reasons {
		codes = append(codes, r.Code)
	}
	assert.ElementsMatch(t, []string{string(domain.IssueMissing), ReasonInsufficientStock}, codes)

	c, err := f.carts.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Version)
}
