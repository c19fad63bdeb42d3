package domain

import "time"

type TicketStatus string

const (
	TicketStatusSold   TicketStatus = "sold"
	TicketStatusWinner TicketStatus = "winner"
)

// Ticket is created exactly once per reservation token and is immutable
// afterwards, except for the winner flag set by the external draw.
type Ticket struct {
	ID                   string
	TicketNumber         int // unique per house, allocated sequentially
	HouseID              string
	UserID               string
	PurchasePrice        int64 // cents
	PaymentTransactionID string
	ReservationToken     string
	Status               TicketStatus
	CreatedAt            time.Time
}
