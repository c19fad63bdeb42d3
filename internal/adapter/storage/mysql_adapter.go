package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/DrorGr/amesaBE-sub006/internal/core/domain"
)

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) GetHouse(ctx context.Context, houseID string) (*domain.House, error) {
	var h domain.House
	var participantCap sql.NullInt64
	err := m.db.QueryRowContext(ctx, `
		SELECT id, title, total_tickets, ticket_price, start_date, end_date, status, participant_cap, created_at, updated_at
		FROM houses WHERE id = ?`, houseID,
	).Scan(&h.ID, &h.Title, &h.TotalTickets, &h.TicketPrice, &h.StartDate, &h.EndDate, &h.Status, &participantCap, &h.CreatedAt, &h.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query house: %w", err)
	}

	h.ParticipantCap = int(participantCap.Int64)
	return &h, nil
}

func (m *MySQLAdapter) ListDrawableHouses(ctx context.Context, now time.Time) ([]domain.House, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, title, total_tickets, ticket_price, start_date, end_date, status, participant_cap, created_at, updated_at
		FROM houses WHERE end_date <= ? AND status != ?`, now, domain.HouseStatusDrawn,
	)
	if err != nil {
		return nil, fmt.Errorf("query drawable houses: %w", err)
	}
	defer rows.Close()

	var houses []domain.House
	for rows.Next() {
		var h domain.House
		var participantCap sql.NullInt64
		if err := rows.Scan(&h.ID, &h.Title, &h.TotalTickets, &h.TicketPrice, &h.StartDate, &h.EndDate, &h.Status, &participantCap, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan house: %w", err)
		}
		h.ParticipantCap = int(participantCap.Int64)
		houses = append(houses, h)
	}
	return houses, rows.Err()
}

func (m *MySQLAdapter) MarkHouseDrawn(ctx context.Context, houseID string) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE houses SET status = ?, updated_at = NOW()
		WHERE id = ? AND status != ?`,
		domain.HouseStatusDrawn, houseID, domain.HouseStatusDrawn,
	)
	if err != nil {
		return fmt.Errorf("mark house drawn: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) CreateReservation(ctx context.Context, r domain.Reservation) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO reservations
			(id, house_id, user_id, quantity, total_price, reservation_token, payment_method_ref, status, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.HouseID, r.UserID, r.Quantity, r.TotalPrice, r.ReservationToken,
		r.PaymentMethodRef, r.Status, r.ExpiresAt, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetReservationByToken(ctx context.Context, token string) (*domain.Reservation, error) {
	var r domain.Reservation
	var methodRef, paymentTxID, errMsg sql.NullString
	err := m.db.QueryRowContext(ctx, `
		SELECT id, house_id, user_id, quantity, total_price, reservation_token, payment_method_ref, status,
		       expires_at, payment_transaction_id, error_message, created_at, updated_at
		FROM reservations WHERE reservation_token = ?`, token,
	).Scan(&r.ID, &r.HouseID, &r.UserID, &r.Quantity, &r.TotalPrice, &r.ReservationToken,
		&methodRef, &r.Status, &r.ExpiresAt, &paymentTxID, &errMsg, &r.CreatedAt, &r.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query reservation: %w", err)
	}

	r.PaymentMethodRef = methodRef.String
	r.PaymentTransactionID = paymentTxID.String
	r.ErrorMessage = errMsg.String
	return &r, nil
}

// TransitionReservation is the status-guarded write both the processor and
// the cleanup loop go through. The WHERE status clause is what prevents a
// late expiry from clobbering a concurrent confirm.
func (m *MySQLAdapter) TransitionReservation(ctx context.Context, token string, from, to domain.ReservationStatus, paymentTxID, errorMessage string) (bool, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE reservations
		SET status = ?,
		    payment_transaction_id = COALESCE(NULLIF(?, ''), payment_transaction_id),
		    error_message = COALESCE(NULLIF(?, ''), error_message),
		    updated_at = NOW()
		WHERE reservation_token = ? AND status = ?`,
		to, paymentTxID, errorMessage, token, from,
	)
	if err != nil {
		return false, fmt.Errorf("transition reservation: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (m *MySQLAdapter) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, house_id, user_id, quantity, total_price, reservation_token, status,
		       expires_at, created_at, updated_at
		FROM reservations
		WHERE status = ? AND expires_at < ?
		ORDER BY expires_at
		LIMIT ?`,
		domain.ReservationStatusPending, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query expired reservations: %w", err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		var r domain.Reservation
		if err := rows.Scan(&r.ID, &r.HouseID, &r.UserID, &r.Quantity, &r.TotalPrice, &r.ReservationToken,
			&r.Status, &r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) CountPendingForHouse(ctx context.Context, houseID string) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reservations WHERE house_id = ? AND status = ?`,
		houseID, domain.ReservationStatusPending,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

func (m *MySQLAdapter) SumPendingQuantity(ctx context.Context, houseID string, now time.Time) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0) FROM reservations
		WHERE house_id = ? AND status = ? AND expires_at > ?`,
		houseID, domain.ReservationStatusPending, now,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sum pending quantity: %w", err)
	}
	return n, nil
}

func (m *MySQLAdapter) CountDistinctParticipants(ctx context.Context, houseID string) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT user_id) FROM reservations
		WHERE house_id = ? AND status IN (?, ?)`,
		houseID, domain.ReservationStatusPending, domain.ReservationStatusConfirmed,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return n, nil
}

// IssueTickets writes the whole ticket batch and the reservation's Confirmed
// status as one transaction. The houses row is locked for the duration so
// ticket numbers stay dense and unique per house; a crash before commit
// leaves nothing behind and the retry starts from scratch with the same
// token.
func (m *MySQLAdapter) IssueTickets(ctx context.Context, token, houseID, userID string, quantity int, unitPrice int64, paymentTxID string) ([]int, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	existing, err := ticketNumbersForToken(ctx, tx, token)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, domain.ErrTicketsAlreadyIssued
	}

	// Lock the house row; concurrent issuers for the same house serialize
	// here so the MAX(ticket_number) read below is race-free.
	var totalTickets int
	err = tx.QueryRowContext(ctx, `
		SELECT total_tickets FROM houses WHERE id = ? FOR UPDATE`, houseID,
	).Scan(&totalTickets)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrHouseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock house: %w", err)
	}

	var lastNumber int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(ticket_number), 0) FROM tickets WHERE house_id = ?`, houseID,
	).Scan(&lastNumber)
	if err != nil {
		return nil, fmt.Errorf("max ticket number: %w", err)
	}

	// Durable backstop: ticket numbers can never run past the house's pool,
	// whatever the cache counters said upstream.
	if lastNumber+quantity > totalTickets {
		return nil, fmt.Errorf("house %s: %d tickets over pool of %d: %w",
			houseID, lastNumber+quantity, totalTickets, domain.ErrInsufficientInventory)
	}

	now := time.Now()
	numbers := make([]int, 0, quantity)
	for i := 1; i <= quantity; i++ {
		number := lastNumber + i
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tickets
				(id, ticket_number, house_id, user_id, purchase_price, payment_transaction_id, reservation_token, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), number, houseID, userID, unitPrice, paymentTxID, token,
			domain.TicketStatusSold, now,
		)
		if err != nil {
			return nil, fmt.Errorf("insert ticket: %w", err)
		}
		numbers = append(numbers, number)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE reservations
		SET status = ?, payment_transaction_id = ?, updated_at = NOW()
		WHERE reservation_token = ? AND status = ?`,
		domain.ReservationStatusConfirmed, paymentTxID, token, domain.ReservationStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("confirm reservation: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		// The reservation reached a terminal state under us (expired by the
		// cleanup loop, or failed). Do not issue.
		return nil, domain.ErrReservationFinalized
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit issue: %w", err)
	}
	return numbers, nil
}

func ticketNumbersForToken(ctx context.Context, tx *sql.Tx, token string) ([]int, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT ticket_number FROM tickets WHERE reservation_token = ? ORDER BY ticket_number`, token,
	)
	if err != nil {
		return nil, fmt.Errorf("query tickets by token: %w", err)
	}
	defer rows.Close()

	var numbers []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan ticket number: %w", err)
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}

func (m *MySQLAdapter) CountSoldTickets(ctx context.Context, houseID string) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tickets WHERE house_id = ?`, houseID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sold tickets: %w", err)
	}
	return n, nil
}

func (m *MySQLAdapter) ListActiveHouseIDs(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id FROM houses WHERE status = ?`, domain.HouseStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("query active houses: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan house id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
