package port

import (
	"context"
	"time"

	"github.com/DrorGr/amesaBE-sub006/internal/core/domain"
)

// CacheRepository is the atomic inventory side of the cache store. Every
// mutation is a single server-side atomic step; callers never read-modify-write.
type CacheRepository interface {
	// ReserveInventory atomically moves quantity from available to reserved
	// and records a hold under token with the given TTL. Returns (false, nil)
	// when available < quantity. Returns domain.ErrCacheUnavailable (wrapped)
	// when the counter hash for the house does not exist yet.
	ReserveInventory(ctx context.Context, houseID, token string, quantity int, ttl time.Duration) (bool, error)

	// ConfirmInventory moves quantity from reserved to sold and deletes the
	// hold. Returns (false, nil) when the hold is already gone, so a duplicate
	// confirm degrades to a no-op the caller can detect.
	ConfirmInventory(ctx context.Context, houseID, token string, quantity int) (bool, error)

	// ReleaseInventory moves quantity out of reserved and deletes the hold.
	// When saleOpen, the quantity returns to available; otherwise it is
	// discarded. Same no-op semantics as ConfirmInventory for a missing hold.
	ReleaseInventory(ctx context.Context, houseID, token string, quantity int, saleOpen bool) (bool, error)

	// InitInventory sets the counter hash only if it does not already exist,
	// so a concurrent reserve cannot be clobbered by a lazy initialization.
	InitInventory(ctx context.Context, houseID string, counts domain.InventoryCounts) error

	// OverwriteInventory unconditionally sets the counters. Used only by the
	// sync loop, where the durable store has already won the argument.
	OverwriteInventory(ctx context.Context, houseID string, counts domain.InventoryCounts) error

	// GetInventory reads the counter hash. ok is false on a cold cache.
	GetInventory(ctx context.Context, houseID string) (counts domain.InventoryCounts, ok bool, err error)

	// CountInWindow bumps and returns the caller's hit count for the sliding
	// rate-limit window identified by key.
	CountInWindow(ctx context.Context, key string, window time.Duration) (int, error)
}
