package worker

import (
	"context"
	"log"
	"time"

	"github.com/DrorGr/amesaBE-sub006/internal/core/domain"
	"github.com/DrorGr/amesaBE-sub006/internal/metrics"
)

type activeHouseLister interface {
	ListActiveHouseIDs(ctx context.Context) ([]string, error)
}

type inventoryReconciler interface {
	RecomputeCounts(ctx context.Context, houseID string) (domain.InventoryCounts, error)
	CachedCounts(ctx context.Context, houseID string) (domain.InventoryCounts, bool, error)
	OverwriteCounts(ctx context.Context, houseID string, counts domain.InventoryCounts) error
}

type eventPublisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// SyncLoop reconciles the cache counters against the durable store. The
// durable store always wins: whatever the cache says, sold comes from ticket
// rows and reserved from live Pending reservations. Corrections are announced
// as inventory-changed events so displayed counts follow the cache.
type SyncLoop struct {
	db        activeHouseLister
	inventory inventoryReconciler
	events    eventPublisher
	interval  time.Duration
	tolerance int
}

func NewSyncLoop(db activeHouseLister, inventory inventoryReconciler, events eventPublisher, interval time.Duration, tolerance int) *SyncLoop {
	return &SyncLoop{
		db:        db,
		inventory: inventory,
		events:    events,
		interval:  interval,
		tolerance: tolerance,
	}
}

func (l *SyncLoop) Run(ctx context.Context) {
	log.Printf("inventory sync loop started, interval %s", l.interval)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("inventory sync loop stopped")
			return
		case <-ticker.C:
			l.syncAll(ctx)
		}
	}
}

func (l *SyncLoop) syncAll(ctx context.Context) {
	houseIDs, err := l.db.ListActiveHouseIDs(ctx)
	if err != nil {
		log.Printf("sync: list active houses: %v", err)
		return
	}

	for _, houseID := range houseIDs {
		if ctx.Err() != nil {
			return
		}
		if err := l.SyncHouse(ctx, houseID); err != nil {
			log.Printf("sync: house %s: %v", houseID, err)
		}
	}
}

// SyncHouse recomputes one house's counters from durable truth and overwrites
// the cache when drift exceeds the tolerance.
func (l *SyncLoop) SyncHouse(ctx context.Context, houseID string) error {
	truth, err := l.inventory.RecomputeCounts(ctx, houseID)
	if err != nil {
		return err
	}

	cached, ok, err := l.inventory.CachedCounts(ctx, houseID)
	if err != nil {
		return err
	}

	if ok && withinTolerance(cached.Available, truth.Available, l.tolerance) &&
		withinTolerance(cached.Reserved, truth.Reserved, l.tolerance) &&
		withinTolerance(cached.Sold, truth.Sold, l.tolerance) {
		metrics.AvailableTickets.WithLabelValues(houseID).Set(float64(cached.Available))
		return nil
	}

	if err := l.inventory.OverwriteCounts(ctx, houseID, truth); err != nil {
		return err
	}

	metrics.SyncCorrections.Inc()
	metrics.AvailableTickets.WithLabelValues(houseID).Set(float64(truth.Available))
	if ok {
		log.Printf("sync: corrected drift for house %s: cache %+v -> durable %+v", houseID, cached, truth)
	} else {
		log.Printf("sync: seeded cold cache for house %s: %+v", houseID, truth)
	}

	l.publishCorrection(ctx, houseID, truth)
	return nil
}

func (l *SyncLoop) publishCorrection(ctx context.Context, houseID string, counts domain.InventoryCounts) {
	if l.events == nil {
		return
	}
	err := l.events.Publish(ctx, domain.Event{
		Type:       domain.EventInventoryChanged,
		HouseID:    houseID,
		OccurredAt: time.Now(),
		Available:  counts.Available,
		Reserved:   counts.Reserved,
		Sold:       counts.Sold,
	})
	if err != nil {
		log.Printf("sync: inventory event publish failed for house %s: %v", houseID, err)
	}
}

func withinTolerance(a, b, tolerance int) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}
