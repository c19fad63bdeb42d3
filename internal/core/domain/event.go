package domain

import "time"

type EventType string

const (
	EventInventoryChanged  EventType = "inventory.changed"
	EventReservationStatus EventType = "reservation.status"
)

// Event is the best-effort push payload for the notification collaborator.
// Delivery failure never rolls back the state change that produced it.
type Event struct {
	Type       EventType `json:"type"`
	HouseID    string    `json:"house_id"`
	OccurredAt time.Time `json:"occurred_at"`

	// inventory.changed
	Available int `json:"available,omitempty"`
	Reserved  int `json:"reserved,omitempty"`
	Sold      int `json:"sold,omitempty"`

	// reservation.status
	ReservationID string            `json:"reservation_id,omitempty"`
	Status        ReservationStatus `json:"status,omitempty"`
}
