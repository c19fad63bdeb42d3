package worker

import (
	"context"
	"log"
	"time"

	"github.com/DrorGr/amesaBE-sub006/internal/core/domain"
	"github.com/DrorGr/amesaBE-sub006/internal/metrics"
)

type expiredLister interface {
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
}

type reservationExpirer interface {
	Expire(ctx context.Context, reservation domain.Reservation) (bool, error)
}

// CleanupLoop expires overdue Pending reservations and returns their held
// inventory. Safe to run redundantly across instances: the processor's
// guarded transition means only one pass wins per reservation.
type CleanupLoop struct {
	db        expiredLister
	processor reservationExpirer
	interval  time.Duration
	batchSize int
}

func NewCleanupLoop(db expiredLister, processor reservationExpirer, interval time.Duration, batchSize int) *CleanupLoop {
	return &CleanupLoop{
		db:        db,
		processor: processor,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (l *CleanupLoop) Run(ctx context.Context) {
	log.Printf("cleanup loop started, interval %s", l.interval)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("cleanup loop stopped")
			return
		case <-ticker.C:
			l.sweep(ctx)
		}
	}
}

func (l *CleanupLoop) sweep(ctx context.Context) {
	expired, err := l.db.ListExpiredPending(ctx, time.Now(), l.batchSize)
	if err != nil {
		log.Printf("cleanup: list expired reservations: %v", err)
		return
	}

	for _, reservation := range expired {
		if ctx.Err() != nil {
			return
		}
		l.expireOne(ctx, reservation)
	}
}

func (l *CleanupLoop) expireOne(ctx context.Context, reservation domain.Reservation) {
	ok, err := l.processor.Expire(ctx, reservation)
	if err != nil {
		log.Printf("cleanup: expire reservation %s: %v", reservation.ID, err)
		return
	}
	if !ok {
		// Confirmed (or failed) between our read and the guarded write.
		return
	}
	metrics.ExpiredReservations.Inc()
	log.Printf("cleanup: expired reservation %s, returned %d tickets for house %s",
		reservation.ID, reservation.Quantity, reservation.HouseID)
}
