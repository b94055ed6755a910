// Package redisstore keeps carts in Redis, one key per user.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"medicart/internal/domain"
	"medicart/internal/repository"
)

// Carts is a repository.CartRepository storing each cart as a JSON value.
type Carts struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ repository.CartRepository = (*Carts)(nil)

// NewCarts uses prefix for keys ("cart" gives "cart:<user_id>"). A zero ttl keeps carts forever.
func NewCarts(client *redis.Client, prefix string, ttl time.Duration) *Carts {
	if prefix == "" {
		prefix = "cart"
	}
	return &Carts{client: client, prefix: prefix, ttl: ttl}
}

func (r *Carts) key(userID string) string {
	return fmt.Sprintf("%s:%s", r.prefix, userID)
}

func (r *Carts) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	raw, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get cart %s: %w", userID, err)
	}
	var c domain.Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("redis: decode cart %s: %w", userID, err)
	}
	return &c, nil
}

func (r *Carts) Save(ctx context.Context, c *domain.Cart) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("redis: encode cart %s: %w", c.UserID, err)
	}
	if err := r.client.Set(ctx, r.key(c.UserID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis: save cart %s: %w", c.UserID, err)
	}
	return nil
}
