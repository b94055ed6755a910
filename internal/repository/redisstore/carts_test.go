package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"medicart/internal/domain"
	"medicart/internal/repository"
)

// CartsTestSuite runs against an in-process Redis, or against the server
// named by TEST_REDIS_ADDR when set.
type CartsTestSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *redis.Client
	carts  *Carts
}

func TestCartsTestSuite(t *testing.T) {
	suite.Run(t, new(CartsTestSuite))
}

func (s *CartsTestSuite) SetupSuite() {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		s.mr = miniredis.RunT(s.T())
		addr = s.mr.Addr()
	}
	s.client = redis.NewClient(&redis.Options{Addr: addr, DB: 1})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(s.T(), s.client.Ping(ctx).Err(), "redis at %s", addr)
}

func (s *CartsTestSuite) SetupTest() {
	require.NoError(s.T(), s.client.FlushDB(context.Background()).Err())
	s.carts = NewCarts(s.client, "test_cart", 0)
}

func (s *CartsTestSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
}

func (s *CartsTestSuite) needMini() {
	if s.mr == nil {
		s.T().Skip("needs the in-process server")
	}
}

func (s *CartsTestSuite) TestSaveAndGet() {
	ctx := context.Background()
	_, err := s.carts.Get(ctx, "u1")
	assert.ErrorIs(s.T(), err, repository.ErrNotFound)

	c := domain.NewCart("u1", time.Now().UTC())
	c.Items = append(c.Items, domain.CartLineItem{MedicineID: "m1", Quantity: 2, UnitPrice: decimal.NewFromInt(100)})
	c.Subtotal = decimal.NewFromInt(200)
	require.NoError(s.T(), s.carts.Save(ctx, c))

	got, err := s.carts.Get(ctx, "u1")
	require.NoError(s.T(), err)
	require.Len(s.T(), got.Items, 1)
	assert.Equal(s.T(), 2, got.Items[0].Quantity)
	assert.True(s.T(), got.Subtotal.Equal(decimal.NewFromInt(200)))
}

func (s *CartsTestSuite) TestSaveOverwrites() {
	ctx := context.Background()
	c := domain.NewCart("u1", time.Now().UTC())
	c.Items = append(c.Items, domain.CartLineItem{MedicineID: "m1", Quantity: 1, UnitPrice: decimal.NewFromInt(50)})
	require.NoError(s.T(), s.carts.Save(ctx, c))

	c.Items = nil
	c.Version = 2
	require.NoError(s.T(), s.carts.Save(ctx, c))

	got, err := s.carts.Get(ctx, "u1")
	require.NoError(s.T(), err)
	assert.Empty(s.T(), got.Items)
	assert.Equal(s.T(), int64(2), got.Version)

	_, err = s.carts.Get(ctx, "u2")
	assert.ErrorIs(s.T(), err, repository.ErrNotFound, "carts are per user")
}

func (s *CartsTestSuite) TestTTLExpiresCart() {
	s.needMini()
	ctx := context.Background()
	carts := NewCarts(s.client, "test_cart", time.Hour)
	require.NoError(s.T(), carts.Save(ctx, domain.NewCart("u1", time.Now().UTC())))

	assert.Equal(s.T(), time.Hour, s.mr.DB(1).TTL("test_cart:u1"))

	s.mr.FastForward(time.Hour + time.Second)
	_, err := carts.Get(ctx, "u1")
	assert.ErrorIs(s.T(), err, repository.ErrNotFound)
}

func (s *CartsTestSuite) TestZeroTTLKeepsCart() {
	s.needMini()
	ctx := context.Background()
	require.NoError(s.T(), s.carts.Save(ctx, domain.NewCart("u1", time.Now().UTC())))

	s.mr.FastForward(24 * time.Hour)
	_, err := s.carts.Get(ctx, "u1")
	assert.NoError(s.T(), err)
}

func (s *CartsTestSuite) TestCorruptValue() {
	ctx := context.Background()
	require.NoError(s.T(), s.client.Set(ctx, "test_cart:u1", "{not json", 0).Err())

	_, err := s.carts.Get(ctx, "u1")
	require.Error(s.T(), err)
	assert.NotErrorIs(s.T(), err, repository.ErrNotFound)
	assert.Contains(s.T(), err.Error(), "decode cart u1")
}

func (s *CartsTestSuite) TestServerError() {
	s.needMini()
	ctx := context.Background()
	s.mr.SetError("ERR injected failure")
	defer s.mr.SetError("")

	_, err := s.carts.Get(ctx, "u1")
	require.Error(s.T(), err)
	assert.NotErrorIs(s.T(), err, repository.ErrNotFound)

	err = s.carts.Save(ctx, domain.NewCart("u1", time.Now().UTC()))
	require.Error(s.T(), err)
	assert.Contains(s.T(), err.Error(), "save cart u1")
}

func (s *CartsTestSuite) TestKeyLayout() {
	assert.Equal(s.T(), "test_cart:u9", s.carts.key("u9"))
	assert.Equal(s.T(), "cart:u9", NewCarts(s.client, "", 0).key("u9"))
}
