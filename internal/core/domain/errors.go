package domain

import "errors"

var (
	// Validation failures: surfaced to the caller, no state mutated.
	ErrHouseNotFound   = errors.New("house not found")
	ErrLotteryClosed   = errors.New("lottery window closed")
	ErrInvalidQuantity = errors.New("quantity out of range")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrParticipantCap  = errors.New("participant cap reached")

	// Inventory failures.
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrCacheUnavailable      = errors.New("inventory cache unavailable")

	// Reservation lifecycle.
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrReservationFinalized = errors.New("reservation already in terminal state")
	ErrHoldNotFound         = errors.New("inventory hold not found")

	// Payment gateway.
	ErrGatewayDeclined    = errors.New("payment declined")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// Ticket issuance.
	ErrTicketsAlreadyIssued = errors.New("tickets already issued for reservation")
)
