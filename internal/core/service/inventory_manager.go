package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/DrorGr/amesaBE-sub006/internal/core/domain"
	"github.com/DrorGr/amesaBE-sub006/internal/port"
)

// InventoryManager owns the cache-resident counter triple for each house. All
// mutual exclusion is delegated to the cache store's atomic scripts; this
// layer adds house semantics, lazy initialization, and the durable fallback.
type InventoryManager struct {
	cache port.CacheRepository
	db    port.DatabaseRepository

	// initGroup collapses concurrent cold-cache initializations for the same
	// house into one durable read.
	initGroup singleflight.Group
}

func NewInventoryManager(cache port.CacheRepository, db port.DatabaseRepository) *InventoryManager {
	return &InventoryManager{cache: cache, db: db}
}

// TryReserve atomically claims quantity tickets for houseID and returns the
// hold token. On a cold cache it seeds the counters from the durable store
// and retries once. Failure modes: domain.ErrInsufficientInventory when the
// pool cannot cover quantity, domain.ErrCacheUnavailable when the cache store
// cannot be reached (fail closed, never oversell).
func (m *InventoryManager) TryReserve(ctx context.Context, houseID string, quantity int, ttl time.Duration) (string, error) {
	token := uuid.New().String()

	ok, err := m.cache.ReserveInventory(ctx, houseID, token, quantity, ttl)
	if errors.Is(err, domain.ErrCacheUnavailable) {
		if initErr := m.initFromDurable(ctx, houseID); initErr != nil {
			return "", initErr
		}
		ok, err = m.cache.ReserveInventory(ctx, houseID, token, quantity, ttl)
	}
	if err != nil {
		return "", fmt.Errorf("reserve inventory: %w", err)
	}
	if !ok {
		return "", domain.ErrInsufficientInventory
	}
	return token, nil
}

// Confirm moves a hold's quantity from reserved to sold. A missing hold is
// reported as domain.ErrHoldNotFound so the caller can fall back to checking
// ticket existence instead of assuming double-sale.
func (m *InventoryManager) Confirm(ctx context.Context, houseID, token string, quantity int) error {
	ok, err := m.cache.ConfirmInventory(ctx, houseID, token, quantity)
	if err != nil {
		return fmt.Errorf("confirm inventory: %w", err)
	}
	if !ok {
		return domain.ErrHoldNotFound
	}
	return nil
}

// Release returns a hold's quantity to available while the sale is open, or
// discards it once the window has closed. Idempotent: a second release of the
// same token reports domain.ErrHoldNotFound and changes nothing.
func (m *InventoryManager) Release(ctx context.Context, houseID, token string, quantity int, saleOpen bool) error {
	ok, err := m.cache.ReleaseInventory(ctx, houseID, token, quantity, saleOpen)
	if err != nil {
		return fmt.Errorf("release inventory: %w", err)
	}
	if !ok {
		return domain.ErrHoldNotFound
	}
	return nil
}

// GetStatus reads the live counters, falling back to the durable store with a
// staleness flag when the cache is cold or unreachable.
func (m *InventoryManager) GetStatus(ctx context.Context, houseID string) (domain.InventoryStatus, error) {
	house, err := m.db.GetHouse(ctx, houseID)
	if err != nil {
		return domain.InventoryStatus{}, err
	}
	if house == nil {
		return domain.InventoryStatus{}, domain.ErrHouseNotFound
	}

	counts, ok, err := m.cache.GetInventory(ctx, houseID)
	stale := false
	if err != nil || !ok {
		durable, derr := m.durableCounts(ctx, *house)
		if derr != nil {
			return domain.InventoryStatus{}, derr
		}
		counts = durable
		stale = true
	}

	return domain.InventoryStatus{
		HouseID:   houseID,
		Available: counts.Available,
		Reserved:  counts.Reserved,
		Sold:      counts.Sold,
		IsSoldOut: counts.Available <= 0,
		IsEnded:   house.SaleEnded(time.Now()),
		Stale:     stale,
	}, nil
}

// RecomputeCounts derives the authoritative counter triple from the durable
// store. Shared with the sync loop.
func (m *InventoryManager) RecomputeCounts(ctx context.Context, houseID string) (domain.InventoryCounts, error) {
	house, err := m.db.GetHouse(ctx, houseID)
	if err != nil {
		return domain.InventoryCounts{}, err
	}
	if house == nil {
		return domain.InventoryCounts{}, domain.ErrHouseNotFound
	}
	return m.durableCounts(ctx, *house)
}

// OverwriteCounts force-sets the cache counters. Sync loop only.
func (m *InventoryManager) OverwriteCounts(ctx context.Context, houseID string, counts domain.InventoryCounts) error {
	return m.cache.OverwriteInventory(ctx, houseID, counts)
}

func (m *InventoryManager) CachedCounts(ctx context.Context, houseID string) (domain.InventoryCounts, bool, error) {
	return m.cache.GetInventory(ctx, houseID)
}

func (m *InventoryManager) initFromDurable(ctx context.Context, houseID string) error {
	_, err, _ := m.initGroup.Do(houseID, func() (interface{}, error) {
		counts, err := m.RecomputeCounts(ctx, houseID)
		if err != nil {
			return nil, err
		}
		return nil, m.cache.InitInventory(ctx, houseID, counts)
	})
	return err
}

func (m *InventoryManager) durableCounts(ctx context.Context, house domain.House) (domain.InventoryCounts, error) {
	sold, err := m.db.CountSoldTickets(ctx, house.ID)
	if err != nil {
		return domain.InventoryCounts{}, err
	}
	reserved, err := m.db.SumPendingQuantity(ctx, house.ID, time.Now())
	if err != nil {
		return domain.InventoryCounts{}, err
	}

	available := house.TotalTickets - sold - reserved
	if available < 0 {
		available = 0
	}
	return domain.InventoryCounts{Available: available, Reserved: reserved, Sold: sold}, nil
}
