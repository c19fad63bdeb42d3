package domain

import "time"

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusExpired   ReservationStatus = "expired"
	ReservationStatusFailed    ReservationStatus = "failed"
)

// Terminal reports whether no further transition is permitted.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationStatusConfirmed || s == ReservationStatusExpired || s == ReservationStatusFailed
}

// Reservation is one purchase attempt. Rows are never deleted; they are the
// audit trail for every ticket that was or was not sold.
type Reservation struct {
	ID                   string
	HouseID              string
	UserID               string
	Quantity             int
	TotalPrice           int64 // cents
	ReservationToken     string
	PaymentMethodRef     string
	Status               ReservationStatus
	ExpiresAt            time.Time
	PaymentTransactionID string // empty until confirmed
	ErrorMessage         string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (r Reservation) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

const (
	MinReservationQuantity = 1
	MaxReservationQuantity = 100
)
