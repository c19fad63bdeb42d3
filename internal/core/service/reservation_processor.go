package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/DrorGr/amesaBE-sub006/internal/core/domain"
	"github.com/DrorGr/amesaBE-sub006/internal/metrics"
	"github.com/DrorGr/amesaBE-sub006/internal/port"
)

// ReservationProcessor drives Pending reservations to a terminal state. Every
// transition goes through a status-guarded durable write, so a concurrent
// cleanup pass and a confirm cannot both win.
type ReservationProcessor struct {
	inventory *InventoryManager
	issuer    *TicketIssuer
	gateway   port.PaymentGateway
	db        port.DatabaseRepository
	events    port.EventPublisher
}

func NewReservationProcessor(inventory *InventoryManager, issuer *TicketIssuer, gateway port.PaymentGateway, db port.DatabaseRepository, events port.EventPublisher) *ReservationProcessor {
	return &ReservationProcessor{
		inventory: inventory,
		issuer:    issuer,
		gateway:   gateway,
		db:        db,
		events:    events,
	}
}

// Confirm finalizes a reservation after payment. When paymentTxID is empty
// the processor charges the gateway itself; a non-empty id means the payment
// collaborator already confirmed the charge out of band.
//
// Outcomes: ticket numbers on success; domain.ErrGatewayDeclined or an issuer
// error after the compensating release; domain.ErrGatewayUnavailable with the
// reservation left Pending so the client can retry until expiry.
func (p *ReservationProcessor) Confirm(ctx context.Context, token, paymentTxID string) ([]int, error) {
	reservation, err := p.db.GetReservationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if reservation == nil {
		return nil, domain.ErrReservationNotFound
	}
	if reservation.Status.Terminal() {
		// Late-arriving confirmation. At-most-once issuance: log and discard.
		log.Printf("discarding confirm for reservation %s already %s", reservation.ID, reservation.Status)
		return nil, domain.ErrReservationFinalized
	}

	house, err := p.db.GetHouse(ctx, reservation.HouseID)
	if err != nil {
		return nil, err
	}
	if house == nil {
		return nil, domain.ErrHouseNotFound
	}

	if paymentTxID == "" {
		paymentTxID, err = p.gateway.Charge(ctx, token, reservation.TotalPrice, reservation.PaymentMethodRef)
		if errors.Is(err, domain.ErrGatewayUnavailable) {
			// Transient: leave Pending, bounded by expires_at.
			return nil, err
		}
		if err != nil {
			p.fail(ctx, *reservation, err.Error())
			return nil, err
		}
	}

	numbers, err := p.issuer.IssueTickets(ctx, token, reservation.HouseID, reservation.UserID,
		reservation.Quantity, house.TicketPrice, paymentTxID)
	if errors.Is(err, domain.ErrReservationFinalized) {
		// Lost the race against the cleanup loop between our read and the
		// issuer's guarded write. The payment side is idempotent on the
		// token, so this is safe to surface as a conflict.
		log.Printf("reservation %s finalized during issuance, discarding confirm", reservation.ID)
		return nil, err
	}
	if err != nil {
		p.fail(ctx, *reservation, fmt.Sprintf("ticket issuance: %v", err))
		return nil, err
	}

	// Durable truth is settled; move the cache counters. A missing hold here
	// means its TTL lapsed before the confirm landed, which the sync loop
	// will square against the tickets just written.
	err = p.inventory.Confirm(ctx, reservation.HouseID, token, reservation.Quantity)
	if err != nil && !errors.Is(err, domain.ErrHoldNotFound) {
		log.Printf("CRITICAL: inventory confirm failed for token %s, cache drifting until next sync: %v", token, err)
	}

	metrics.ReservationsFinalized.WithLabelValues(string(domain.ReservationStatusConfirmed)).Inc()
	p.publishStatus(ctx, *reservation, domain.ReservationStatusConfirmed)
	return numbers, nil
}

// Expire applies the Pending→Expired transition for one overdue reservation.
// Callable from any instance's cleanup loop; the guard makes redundant runs
// harmless. Returns false when another writer finalized the row first.
func (p *ReservationProcessor) Expire(ctx context.Context, reservation domain.Reservation) (bool, error) {
	ok, err := p.db.TransitionReservation(ctx,
		reservation.ReservationToken,
		domain.ReservationStatusPending, domain.ReservationStatusExpired,
		"", "reservation window elapsed",
	)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	metrics.ReservationsFinalized.WithLabelValues(string(domain.ReservationStatusExpired)).Inc()
	p.release(ctx, reservation)
	p.publishStatus(ctx, reservation, domain.ReservationStatusExpired)
	return true, nil
}

// fail records the terminal Failed state and releases the hold. Guarded like
// every other transition; losing the guard means someone else finalized the
// row and the hold is already accounted for.
func (p *ReservationProcessor) fail(ctx context.Context, reservation domain.Reservation, reason string) {
	ok, err := p.db.TransitionReservation(ctx,
		reservation.ReservationToken,
		domain.ReservationStatusPending, domain.ReservationStatusFailed,
		"", reason,
	)
	if err != nil {
		log.Printf("CRITICAL: failed-state write for reservation %s: %v", reservation.ID, err)
		return
	}
	if !ok {
		log.Printf("reservation %s finalized concurrently, skipping fail transition", reservation.ID)
		return
	}

	metrics.ReservationsFinalized.WithLabelValues(string(domain.ReservationStatusFailed)).Inc()
	p.release(ctx, reservation)
	p.publishStatus(ctx, reservation, domain.ReservationStatusFailed)
}

func (p *ReservationProcessor) release(ctx context.Context, reservation domain.Reservation) {
	saleOpen := true
	if house, err := p.db.GetHouse(ctx, reservation.HouseID); err == nil && house != nil {
		saleOpen = house.SaleOpen(time.Now())
	}

	err := p.inventory.Release(ctx, reservation.HouseID, reservation.ReservationToken, reservation.Quantity, saleOpen)
	if err != nil && !errors.Is(err, domain.ErrHoldNotFound) {
		log.Printf("CRITICAL: inventory release failed for token %s, cache drifting until next sync: %v",
			reservation.ReservationToken, err)
	}
}

func (p *ReservationProcessor) publishStatus(ctx context.Context, r domain.Reservation, status domain.ReservationStatus) {
	if p.events == nil {
		return
	}
	err := p.events.Publish(ctx, domain.Event{
		Type:          domain.EventReservationStatus,
		HouseID:       r.HouseID,
		OccurredAt:    time.Now(),
		ReservationID: r.ID,
		Status:        status,
	})
	if err != nil {
		log.Printf("event publish failed for reservation %s: %v", r.ID, err)
	}
}
