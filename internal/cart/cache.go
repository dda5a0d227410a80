package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/merchantd/platform/internal/models"
)

// Cache key pattern: cart:{account_id} - 30m TTL, refreshed on every write.

// CacheConfig contains configuration for cart caching
type CacheConfig struct {
	CartTTL time.Duration // TTL for cart cache (default 30m)
}

// DefaultCacheConfig returns sensible defaults
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		CartTTL: 30 * time.Minute,
	}
}

// CacheStore handles cart caching in Redis
type CacheStore struct {
	client *goredis.Client
	config CacheConfig
}

// NewCacheStore creates a new cart cache store
func NewCacheStore(client *goredis.Client, config CacheConfig) *CacheStore {
	return &CacheStore{
		client: client,
		config: config,
	}
}

func cartKey(accountID uuid.UUID) string {
	return fmt.Sprintf("cart:%s", accountID.String())
}

// Get retrieves a cart from cache. A nil cart with nil error is a cache miss.
func (c *CacheStore) Get(ctx context.Context, accountID uuid.UUID) (*models.Cart, error) {
	data, err := c.client.Get(ctx, cartKey(accountID)).Result()
	if err == goredis.Nil {
		return nil, nil // Cache miss
	}
	if err != nil {
		return nil, err
	}

	var cart models.Cart
	if err := json.Unmarshal([]byte(data), &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// Set stores a cart in cache
func (c *CacheStore) Set(ctx context.Context, cart *models.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cartKey(cart.AccountID), data, c.config.CartTTL).Err()
}

// Invalidate removes a cart from cache
func (c *CacheStore) Invalidate(ctx context.Context, accountID uuid.UUID) error {
	return c.client.Del(ctx, cartKey(accountID)).Err()
}
