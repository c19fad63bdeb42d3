package worker

import (
	"context"
	"log"
	"time"

	"github.com/DrorGr/amesaBE-sub006/internal/core/domain"
)

type drawStore interface {
	ListDrawableHouses(ctx context.Context, now time.Time) ([]domain.House, error)
	CountPendingForHouse(ctx context.Context, houseID string) (int, error)
	MarkHouseDrawn(ctx context.Context, houseID string) error
}

// DrawFunc is the external winner-selection routine. Everything past this
// boundary belongs to the draw collaborator.
type DrawFunc func(ctx context.Context, houseID string) error

// DrawTrigger polls for houses whose sale window has closed and invokes the
// draw once the ticket population is final, i.e. no Pending reservations
// remain to be confirmed or expired.
type DrawTrigger struct {
	db       drawStore
	draw     DrawFunc
	interval time.Duration
}

func NewDrawTrigger(db drawStore, draw DrawFunc, interval time.Duration) *DrawTrigger {
	return &DrawTrigger{db: db, draw: draw, interval: interval}
}

func (t *DrawTrigger) Run(ctx context.Context) {
	log.Printf("draw trigger started, interval %s", t.interval)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("draw trigger stopped")
			return
		case <-ticker.C:
			t.poll(ctx)
		}
	}
}

func (t *DrawTrigger) poll(ctx context.Context) {
	houses, err := t.db.ListDrawableHouses(ctx, time.Now())
	if err != nil {
		log.Printf("draw: list drawable houses: %v", err)
		return
	}

	for _, house := range houses {
		if ctx.Err() != nil {
			return
		}

		pending, err := t.db.CountPendingForHouse(ctx, house.ID)
		if err != nil {
			log.Printf("draw: count pending for house %s: %v", house.ID, err)
			continue
		}
		if pending > 0 {
			// Population not final yet; the cleanup loop will get there.
			continue
		}

		if err := t.draw(ctx, house.ID); err != nil {
			log.Printf("draw: house %s: %v", house.ID, err)
			continue
		}
		if err := t.db.MarkHouseDrawn(ctx, house.ID); err != nil {
			log.Printf("draw: mark house %s drawn: %v", house.ID, err)
			continue
		}
		log.Printf("draw: conducted for house %s", house.ID)
	}
}
