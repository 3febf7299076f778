// Package cache provides a Redis-backed cache for public listing detail.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"aqualist/internal/core/id"
	"aqualist/internal/domain/listing"
)

const keyPrefix = "aqualist:listing:"

// DefaultTTL bounds staleness of the public detail path.
const DefaultTTL = 5 * time.Minute

// NewRedisClient connects and pings Redis.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return rdb, nil
}

var _ listing.Cache = (*ListingCache)(nil)

// ListingCache stores listings as JSON with a short TTL.
type ListingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewListingCache creates a listing cache. ttl <= 0 uses DefaultTTL.
func NewListingCache(client *redis.Client, ttl time.Duration) *ListingCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ListingCache{client: client, ttl: ttl}
}

func key(listingID id.ID) string {
	return keyPrefix + listingID.String()
}

// Get returns the cached listing or (nil, nil) on miss.
func (c *ListingCache) Get(ctx context.Context, listingID id.ID) (*listing.Listing, error) {
	val, err := c.client.Get(ctx, key(listingID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get %s: %w", listingID, err)
	}

	var l listing.Listing
	if err := json.Unmarshal(val, &l); err != nil {
		// Corrupt entry: drop it and treat as a miss.
		_ = c.client.Del(ctx, key(listingID)).Err()
		return nil, nil
	}
	return &l, nil
}

// Set stores the listing.
func (c *ListingCache) Set(ctx context.Context, l *listing.Listing) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", l.ID, err)
	}
	if err := c.client.Set(ctx, key(l.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", l.ID, err)
	}
	return nil
}

// Delete evicts the listing.
func (c *ListingCache) Delete(ctx context.Context, listingID id.ID) error {
	if err := c.client.Del(ctx, key(listingID)).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", listingID, err)
	}
	return nil
}
