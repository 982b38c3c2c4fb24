package riskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	latestRunKey = "trust:run:latest"
	// Runs are replaced by the next batch, so the latest-run pointer expires quickly
	latestRunTTL = 5 * time.Minute
)

// Cache keeps recently read scores in Redis. Profile keys include the run ID,
// so a new run never serves stale scores once the latest-run entry expires.
type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewCache creates a score cache with the given profile TTL
func NewCache(client redis.Cmdable, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func profileKey(runID uuid.UUID, profileID int64) string {
	return fmt.Sprintf("trust:profile:%s:%d", runID, profileID)
}

// SetProfile caches a profile score
func (c *Cache) SetProfile(ctx context.Context, ps *ProfileScore) error {
	return c.set(ctx, profileKey(ps.RunID, ps.ProfileID), ps, c.ttl)
}

// GetProfile returns a cached profile score or ErrNotFound
func (c *Cache) GetProfile(ctx context.Context, runID uuid.UUID, profileID int64) (*ProfileScore, error) {
	var ps ProfileScore
	if err := c.get(ctx, profileKey(runID, profileID), &ps); err != nil {
		return nil, err
	}
	return &ps, nil
}

// SetSummary caches the latest run
func (c *Cache) SetSummary(ctx context.Context, run *Run) error {
	return c.set(ctx, latestRunKey, run, latestRunTTL)
}

// GetSummary returns the cached latest run or ErrNotFound
func (c *Cache) GetSummary(ctx context.Context) (*Run, error) {
	var run Run
	if err := c.get(ctx, latestRunKey, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// InvalidateSummary drops the latest-run entry after a new run is stored
func (c *Cache) InvalidateSummary(ctx context.Context) error {
	return c.client.Del(ctx, latestRunKey).Err()
}

func (c *Cache) set(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *Cache) get(ctx context.Context, key string, v interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return nil
}
