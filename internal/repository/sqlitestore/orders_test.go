package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medicart/internal/domain"
	"medicart/internal/repository"
)

func openTemp(t *testing.T) *Orders {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newOrder(id, user string, status domain.OrderStatus) *domain.Order {
	return &domain.Order{
		ID:            id,
		OrderNumber:   "ORD-20260101-" + id,
		UserID:        user,
		Status:        status,
		PaymentStatus: domain.PaymentPending,
		PaymentMethod: domain.PaymentUPI,
		Items: []domain.OrderItem{{
			MedicineID: "m1",
			Quantity:   2,
			UnitPrice:  decimal.NewFromInt(100),
			LineTotal:  decimal.NewFromInt(200),
		}},
		Subtotal: decimal.NewFromInt(200),
		Total:    decimal.RequireFromString("286"),
	}
}

func TestOrders_CreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	repo := openTemp(t)

	o := newOrder("o1", "u1", domain.OrderPending)
	require.NoError(t, repo.Create(ctx, o))
	assert.False(t, o.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].UnitPrice.Equal(decimal.NewFromInt(100)))
	assert.True(t, got.Total.Equal(decimal.NewFromInt(286)))

	got.Status = domain.OrderConfirmed
	got.PaymentStatus = domain.PaymentProcessing
	require.NoError(t, repo.Update(ctx, got))

	again, err := repo.GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderConfirmed, again.Status)
	assert.Equal(t, domain.PaymentProcessing, again.PaymentStatus)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, newOrder("missing", "u1", domain.OrderPending)), repository.ErrNotFound)
}

func TestOrders_Listings(t *testing.T) {
	ctx := context.Background()
	repo := openTemp(t)

	require.NoError(t, repo.Create(ctx, newOrder("a", "u1", domain.OrderPending)))
	require.NoError(t, repo.Create(ctx, newOrder("b", "u1", domain.OrderConfirmed)))
	require.NoError(t, repo.Create(ctx, newOrder("c", "u1", domain.OrderPending)))
	require.NoError(t, repo.Create(ctx, newOrder("d", "u2", domain.OrderPending)))

	mine, err := repo.ListByUser(ctx, "u1", repository.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.Equal(t, "c", mine[0].ID)

	pending, err := repo.ListByUser(ctx, "u1", repository.OrderFilter{Status: domain.OrderPending, Limit: 1})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "c", pending[0].ID)

	queue, err := repo.ListByStatus(ctx, domain.OrderPending, 10, 0)
	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, "a", queue[0].ID)

	queue, err = repo.ListByStatus(ctx, domain.OrderPending, 10, 2)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "d", queue[0].ID)
}

func TestOrders_DuplicateIDRejected(t *testing.T) {
	ctx := context.Background()
	repo := openTemp(t)
	require.NoError(t, repo.Create(ctx, newOrder("x", "u1", domain.OrderPending)))
	assert.Error(t, repo.Create(ctx, newOrder("x", "u2", domain.OrderPending)))
}

func TestOrders_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "orders.db")
	repo, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, newOrder("p1", "u1", domain.OrderPending)))
	require.NoError(t, repo.Close())

	repo, err = Open(path)
	require.NoError(t, err)
	defer repo.Close()
	got, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "ORD-20260101-p1", got.OrderNumber)
}
