package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avdeev-dev/slotbook/config"
	"github.com/avdeev-dev/slotbook/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisCache is the read-through cache for staff/location reference data
// and the fast-path lock in front of timeline holds. The database remains
// the source of truth; a cache miss or redis failure only costs a query.
type RedisCache struct {
	client       *redis.Client
	referenceTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, referenceTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:       redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		referenceTTL: referenceTTL,
	}
}

// NewRedisCacheWithClient is used by tests to inject a mock client.
func NewRedisCacheWithClient(client *redis.Client, referenceTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, referenceTTL: referenceTTL}
}

func (c *RedisCache) GetStaff(ctx context.Context, staffID int64) (*domain.StaffMember, error) {
	data, err := c.client.Get(ctx, staffKey(staffID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var staff domain.StaffMember
	if err := json.Unmarshal(data, &staff); err != nil {
		return nil, err
	}
	return &staff, nil
}

func (c *RedisCache) SetStaff(ctx context.Context, staff *domain.StaffMember) error {
	payload, err := json.Marshal(staff)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, staffKey(staff.ID), payload, c.referenceTTL).Err()
}

func (c *RedisCache) GetLocation(ctx context.Context, locationID int64) (*domain.Location, error) {
	data, err := c.client.Get(ctx, locationKey(locationID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var loc domain.Location
	if err := json.Unmarshal(data, &loc); err != nil {
		return nil, err
	}
	return &loc, nil
}

func (c *RedisCache) SetLocation(ctx context.Context, loc *domain.Location) error {
	payload, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, locationKey(loc.ID), payload, c.referenceTTL).Err()
}

// InvalidateStaff drops the cached staff row, used when working hours or
// assignments change.
func (c *RedisCache) InvalidateStaff(ctx context.Context, staffID int64) error {
	return c.client.Del(ctx, staffKey(staffID)).Err()
}

// AcquireHoldLock is the fast-path in front of the timeline conditional
// write: it sheds most losing sessions before they reach the database.
// The database hold remains authoritative.
func (c *RedisCache) AcquireHoldLock(ctx context.Context, staffID int64, start time.Time, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, holdLockKey(staffID, start), "held", ttl).Result()
}

func (c *RedisCache) ReleaseHoldLock(ctx context.Context, staffID int64, start time.Time) error {
	return c.client.Del(ctx, holdLockKey(staffID, start)).Err()
}

func staffKey(staffID int64) string {
	return fmt.Sprintf("cache:staff:%d", staffID)
}

func locationKey(locationID int64) string {
	return fmt.Sprintf("cache:location:%d", locationID)
}

func holdLockKey(staffID int64, start time.Time) string {
	return fmt.Sprintf("lock:staff:%d:start:%d", staffID, start.Unix())
}
