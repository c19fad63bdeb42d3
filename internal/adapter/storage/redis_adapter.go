package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/DrorGr/amesaBE-sub006/internal/core/domain"
)

const (
	inventoryKeyFmt = "house:%s:inventory"
	holdKeyFmt      = "reservation:%s:hold"
	rateKeyPrefix   = "rate:"
)

// reserveScript is the oversell guard: the availability check and the counter
// move happen in one script so concurrent callers cannot both pass the check.
// Returns 1 on success, 0 on insufficient inventory, -1 on cold cache.
var reserveScript = redis.NewScript(`
local inv = KEYS[1]
local hold = KEYS[2]
local qty = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

if redis.call('EXISTS', inv) == 0 then
	return -1
end

local available = tonumber(redis.call('HGET', inv, 'available') or '0')
if available < qty then
	return 0
end

redis.call('HINCRBY', inv, 'available', -qty)
redis.call('HINCRBY', inv, 'reserved', qty)
redis.call('SET', hold, qty, 'EX', ttl)
return 1
`)

// confirmScript moves reserved to sold, keyed on the hold's existence. A
// missing hold means the reservation was already finalized or expired; the
// script changes nothing and returns 0 so the caller can fall back to a
// ticket-existence check.
var confirmScript = redis.NewScript(`
local inv = KEYS[1]
local hold = KEYS[2]
local qty = tonumber(ARGV[1])

if redis.call('EXISTS', hold) == 0 then
	return 0
end

redis.call('DEL', hold)
redis.call('HINCRBY', inv, 'reserved', -qty)
redis.call('HINCRBY', inv, 'sold', qty)
return 1
`)

// releaseScript returns reserved quantity to available, unless the sale
// window has closed (ARGV[2] == 0), in which case the quantity is discarded.
var releaseScript = redis.NewScript(`
local inv = KEYS[1]
local hold = KEYS[2]
local qty = tonumber(ARGV[1])
local saleOpen = tonumber(ARGV[2])

if redis.call('EXISTS', hold) == 0 then
	return 0
end

redis.call('DEL', hold)
redis.call('HINCRBY', inv, 'reserved', -qty)
if saleOpen == 1 then
	redis.call('HINCRBY', inv, 'available', qty)
end
return 1
`)

// initScript seeds the counter hash only when absent, so a lazy
// initialization never clobbers counters a concurrent reserve already moved.
var initScript = redis.NewScript(`
local inv = KEYS[1]

if redis.call('EXISTS', inv) == 1 then
	return 0
end

redis.call('HSET', inv, 'available', ARGV[1], 'reserved', ARGV[2], 'sold', ARGV[3])
return 1
`)

// rateScript counts hits in a sliding window backed by a sorted set of hit
// timestamps: stale entries are pruned, the new hit is recorded, and the live
// count returned, all in one atomic unit. A burst straddling a window
// boundary is counted in full.
var rateScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
redis.call('ZADD', key, now, ARGV[3])
redis.call('PEXPIRE', key, window)
return redis.call('ZCARD', key)
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func inventoryKey(houseID string) string {
	return fmt.Sprintf(inventoryKeyFmt, houseID)
}

func holdKey(token string) string {
	return fmt.Sprintf(holdKeyFmt, token)
}

func (r *RedisAdapter) ReserveInventory(ctx context.Context, houseID, token string, quantity int, ttl time.Duration) (bool, error) {
	seconds := int(ttl.Seconds())
	if seconds < 1 {
		seconds = 1
	}

	result, err := reserveScript.Run(ctx, r.client,
		[]string{inventoryKey(houseID), holdKey(token)},
		quantity, seconds,
	).Int()
	if err != nil {
		return false, fmt.Errorf("reserve script: %w", err)
	}

	if result == -1 {
		return false, fmt.Errorf("house %s: %w", houseID, domain.ErrCacheUnavailable)
	}
	return result == 1, nil
}

func (r *RedisAdapter) ConfirmInventory(ctx context.Context, houseID, token string, quantity int) (bool, error) {
	result, err := confirmScript.Run(ctx, r.client,
		[]string{inventoryKey(houseID), holdKey(token)},
		quantity,
	).Int()
	if err != nil {
		return false, fmt.Errorf("confirm script: %w", err)
	}
	return result == 1, nil
}

func (r *RedisAdapter) ReleaseInventory(ctx context.Context, houseID, token string, quantity int, saleOpen bool) (bool, error) {
	open := 0
	if saleOpen {
		open = 1
	}

	result, err := releaseScript.Run(ctx, r.client,
		[]string{inventoryKey(houseID), holdKey(token)},
		quantity, open,
	).Int()
	if err != nil {
		return false, fmt.Errorf("release script: %w", err)
	}
	return result == 1, nil
}

func (r *RedisAdapter) InitInventory(ctx context.Context, houseID string, counts domain.InventoryCounts) error {
	err := initScript.Run(ctx, r.client,
		[]string{inventoryKey(houseID)},
		counts.Available, counts.Reserved, counts.Sold,
	).Err()
	if err != nil {
		return fmt.Errorf("init inventory: %w", err)
	}
	return nil
}

func (r *RedisAdapter) OverwriteInventory(ctx context.Context, houseID string, counts domain.InventoryCounts) error {
	err := r.client.HSet(ctx, inventoryKey(houseID),
		"available", counts.Available,
		"reserved", counts.Reserved,
		"sold", counts.Sold,
	).Err()
	if err != nil {
		return fmt.Errorf("overwrite inventory: %w", err)
	}
	return nil
}

func (r *RedisAdapter) GetInventory(ctx context.Context, houseID string) (domain.InventoryCounts, bool, error) {
	fields, err := r.client.HGetAll(ctx, inventoryKey(houseID)).Result()
	if err != nil {
		return domain.InventoryCounts{}, false, fmt.Errorf("get inventory: %w", err)
	}
	if len(fields) == 0 {
		return domain.InventoryCounts{}, false, nil
	}

	counts := domain.InventoryCounts{
		Available: atoi(fields["available"]),
		Reserved:  atoi(fields["reserved"]),
		Sold:      atoi(fields["sold"]),
	}
	return counts, true, nil
}

func (r *RedisAdapter) CountInWindow(ctx context.Context, key string, window time.Duration) (int, error) {
	millis := window.Milliseconds()
	if millis < 1 {
		millis = 1
	}

	// Member must be unique per hit; two hits can share a millisecond.
	now := time.Now().UnixMilli()
	member := strconv.FormatInt(now, 10) + "-" + uuid.New().String()

	count, err := rateScript.Run(ctx, r.client, []string{rateKeyPrefix + key}, now, millis, member).Int()
	if err != nil {
		return 0, fmt.Errorf("rate window: %w", err)
	}
	return count, nil
}

// HoldTTL reports the remaining lifetime of a hold key; negative when the
// hold is gone. Used by tests and operational tooling.
func (r *RedisAdapter) HoldTTL(ctx context.Context, token string) (time.Duration, error) {
	return r.client.TTL(ctx, holdKey(token)).Result()
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
