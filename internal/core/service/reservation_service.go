package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/DrorGr/amesaBE-sub006/internal/core/domain"
	"github.com/DrorGr/amesaBE-sub006/internal/port"
)

const (
	reservationWindow = 5 * time.Minute

	rateLimitWindow     = time.Hour
	maxPerUserPerHour   = 5
	maxPerUserHousePair = 10
)

// ReservationService is the public entry point for purchase attempts. It runs
// the validation chain, claims inventory atomically, and persists the Pending
// row that everything downstream keys on.
type ReservationService struct {
	inventory *InventoryManager
	cache     port.CacheRepository
	db        port.DatabaseRepository
	events    port.EventPublisher
}

func NewReservationService(inventory *InventoryManager, cache port.CacheRepository, db port.DatabaseRepository, events port.EventPublisher) *ReservationService {
	return &ReservationService{
		inventory: inventory,
		cache:     cache,
		db:        db,
		events:    events,
	}
}

// CreateReservation validates, reserves inventory, and persists a Pending
// reservation. If the durable insert fails after inventory was claimed, the
// hold is released again so nothing leaks.
func (s *ReservationService) CreateReservation(ctx context.Context, houseID, userID string, quantity int, paymentMethodRef string) (*domain.Reservation, error) {
	house, err := s.validate(ctx, houseID, userID, quantity, true)
	if err != nil {
		return nil, err
	}

	token, err := s.inventory.TryReserve(ctx, houseID, quantity, reservationWindow)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	reservation := domain.Reservation{
		ID:               uuid.New().String(),
		HouseID:          houseID,
		UserID:           userID,
		Quantity:         quantity,
		TotalPrice:       house.TicketPrice * int64(quantity),
		ReservationToken: token,
		PaymentMethodRef: paymentMethodRef,
		Status:           domain.ReservationStatusPending,
		ExpiresAt:        now.Add(reservationWindow),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.db.CreateReservation(ctx, reservation); err != nil {
		// Compensate: the hold exists but the row of truth does not. Without
		// this release the quantity would stay reserved until TTL expiry.
		if relErr := s.inventory.Release(ctx, houseID, token, quantity, house.SaleOpen(time.Now())); relErr != nil {
			log.Printf("CRITICAL: release after failed insert, token %s: %v", token, relErr)
		}
		return nil, fmt.Errorf("persist reservation: %w", err)
	}

	s.publishReservationStatus(ctx, reservation)
	s.publishInventory(ctx, houseID)

	return &reservation, nil
}

// Validate runs the same precondition chain as CreateReservation without
// mutating anything. Backs the pre-payment dry-run endpoint.
func (s *ReservationService) Validate(ctx context.Context, houseID, userID string, quantity int) error {
	_, err := s.validate(ctx, houseID, userID, quantity, false)
	return err
}

// validate checks preconditions in order; the first failure wins. Rate-limit
// counters are only consumed when consume is set, so dry runs do not burn
// the caller's budget.
func (s *ReservationService) validate(ctx context.Context, houseID, userID string, quantity int, consume bool) (*domain.House, error) {
	house, err := s.db.GetHouse(ctx, houseID)
	if err != nil {
		return nil, err
	}
	if house == nil {
		return nil, domain.ErrHouseNotFound
	}
	if !house.SaleOpen(time.Now()) {
		return nil, domain.ErrLotteryClosed
	}

	if quantity < domain.MinReservationQuantity || quantity > domain.MaxReservationQuantity {
		return nil, domain.ErrInvalidQuantity
	}

	if consume {
		userCount, err := s.cache.CountInWindow(ctx, "user:"+userID, rateLimitWindow)
		if err != nil {
			return nil, fmt.Errorf("rate limit check: %w", err)
		}
		if userCount > maxPerUserPerHour {
			return nil, domain.ErrRateLimited
		}

		pairCount, err := s.cache.CountInWindow(ctx, "user:"+userID+":house:"+houseID, rateLimitWindow)
		if err != nil {
			return nil, fmt.Errorf("rate limit check: %w", err)
		}
		if pairCount > maxPerUserHousePair {
			return nil, domain.ErrRateLimited
		}
	}

	if house.ParticipantCap > 0 {
		participants, err := s.db.CountDistinctParticipants(ctx, houseID)
		if err != nil {
			return nil, fmt.Errorf("participant cap check: %w", err)
		}
		if participants >= house.ParticipantCap {
			return nil, domain.ErrParticipantCap
		}
	}

	return house, nil
}

func (s *ReservationService) publishReservationStatus(ctx context.Context, r domain.Reservation) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, domain.Event{
		Type:          domain.EventReservationStatus,
		HouseID:       r.HouseID,
		OccurredAt:    time.Now(),
		ReservationID: r.ID,
		Status:        r.Status,
	})
	if err != nil {
		log.Printf("event publish failed for reservation %s: %v", r.ID, err)
	}
}

func (s *ReservationService) publishInventory(ctx context.Context, houseID string) {
	if s.events == nil {
		return
	}
	counts, ok, err := s.inventory.CachedCounts(ctx, houseID)
	if err != nil || !ok {
		return
	}
	err = s.events.Publish(ctx, domain.Event{
		Type:       domain.EventInventoryChanged,
		HouseID:    houseID,
		OccurredAt: time.Now(),
		Available:  counts.Available,
		Reserved:   counts.Reserved,
		Sold:       counts.Sold,
	})
	if err != nil {
		log.Printf("inventory event publish failed for house %s: %v", houseID, err)
	}
}
