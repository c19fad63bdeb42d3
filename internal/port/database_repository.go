package port

import (
	"context"
	"time"

	"github.com/DrorGr/amesaBE-sub006/internal/core/domain"
)

// DatabaseRepository is the durable record of truth. All status changes go
// through status-guarded conditional updates, never blind overwrites.
type DatabaseRepository interface {
	GetHouse(ctx context.Context, houseID string) (*domain.House, error)

	// ListDrawableHouses returns houses whose sale window has closed and whose
	// draw has not been conducted yet.
	ListDrawableHouses(ctx context.Context, now time.Time) ([]domain.House, error)

	// MarkHouseDrawn flips an ended house to drawn. Guarded: no-op when it is
	// already drawn.
	MarkHouseDrawn(ctx context.Context, houseID string) error

	CreateReservation(ctx context.Context, r domain.Reservation) error
	GetReservationByToken(ctx context.Context, token string) (*domain.Reservation, error)

	// TransitionReservation updates status (and optional payment transaction
	// id / error message) only if the row is still in from. Returns false with
	// nil error when the guard missed, i.e. another writer got there first.
	TransitionReservation(ctx context.Context, token string, from, to domain.ReservationStatus, paymentTxID, errorMessage string) (bool, error)

	// ListExpiredPending returns up to limit Pending reservations whose
	// expires_at is before now.
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)

	// CountPendingForHouse is the draw-readiness check: a house is drawable
	// only once this reaches zero.
	CountPendingForHouse(ctx context.Context, houseID string) (int, error)

	// SumPendingQuantity recomputes the authoritative reserved count for the
	// sync loop from live Pending reservations.
	SumPendingQuantity(ctx context.Context, houseID string, now time.Time) (int, error)

	// CountDistinctParticipants supports the durable side of participant capping.
	CountDistinctParticipants(ctx context.Context, houseID string) (int, error)

	// IssueTickets writes all quantity ticket rows and flips the reservation
	// to Confirmed in one transaction. When rows for the token already exist
	// it returns them with domain.ErrTicketsAlreadyIssued.
	IssueTickets(ctx context.Context, token, houseID, userID string, quantity int, unitPrice int64, paymentTxID string) ([]int, error)

	// CountSoldTickets recomputes the authoritative sold count.
	CountSoldTickets(ctx context.Context, houseID string) (int, error)

	// ListActiveHouseIDs feeds the sync loop.
	ListActiveHouseIDs(ctx context.Context) ([]string, error)
}
