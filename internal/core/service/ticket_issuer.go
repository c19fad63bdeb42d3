package service

import (
	"context"
	"errors"
	"log"

	"github.com/DrorGr/amesaBE-sub006/internal/core/domain"
	"github.com/DrorGr/amesaBE-sub006/internal/port"
)

// TicketIssuer converts a confirmed reservation into durable tickets exactly
// once per reservation token. The batch insert and the reservation's status
// flip commit as one unit; a duplicate call gets the original numbers back.
type TicketIssuer struct {
	db port.DatabaseRepository
}

func NewTicketIssuer(db port.DatabaseRepository) *TicketIssuer {
	return &TicketIssuer{db: db}
}

func (t *TicketIssuer) IssueTickets(ctx context.Context, token, houseID, userID string, quantity int, unitPrice int64, paymentTxID string) ([]int, error) {
	numbers, err := t.db.IssueTickets(ctx, token, houseID, userID, quantity, unitPrice, paymentTxID)
	if errors.Is(err, domain.ErrTicketsAlreadyIssued) {
		log.Printf("tickets already issued for token %s, returning existing %d numbers", token, len(numbers))
		return numbers, nil
	}
	if err != nil {
		return nil, err
	}
	return numbers, nil
}
