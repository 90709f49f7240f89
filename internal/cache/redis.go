// Package cache keeps a short-lived copy of the past deals list in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xtrntr/supplylink/internal/models"
)

const pastDealsKey = "deals:past"

// DealsSource is the store the cache reads through to
type DealsSource interface {
	GetPastDeals(ctx context.Context) ([]models.Deal, error)
}

// Deals is a read-through cache of the past deals list
type Deals struct {
	client *redis.Client
	source DealsSource
	ttl    time.Duration
	logger *slog.Logger
}

// Connect opens a Redis client and checks it answers
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewDeals wraps source with a cache entry that lives for ttl
func NewDeals(client *redis.Client, source DealsSource, ttl time.Duration, logger *slog.Logger) *Deals {
	return &Deals{client: client, source: source, ttl: ttl, logger: logger}
}

// GetPastDeals serves the cached list, loading it from the source on a miss.
// Redis failures fall back to the source.
func (d *Deals) GetPastDeals(ctx context.Context) ([]models.Deal, error) {
	data, err := d.client.Get(ctx, pastDealsKey).Bytes()
	switch {
	case err == nil:
		var deals []models.Deal
		if err := json.Unmarshal(data, &deals); err == nil {
			return deals, nil
		}
		d.logger.Warn("discarding unreadable cached deals", "key", pastDealsKey)
	case !errors.Is(err, redis.Nil):
		d.logger.Warn("deals cache unavailable", "error", err)
	}

	deals, err := d.source.GetPastDeals(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(deals); err == nil {
		if err := d.client.Set(ctx, pastDealsKey, data, d.ttl).Err(); err != nil {
			d.logger.Warn("failed to cache deals", "error", err)
		}
	}
	return deals, nil
}

// Invalidate drops the cached list so the next read goes to the source
func (d *Deals) Invalidate(ctx context.Context) error {
	return d.client.Del(ctx, pastDealsKey).Err()
}
