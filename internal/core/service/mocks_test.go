package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DrorGr/amesaBE-sub006/internal/core/domain"
)

// mockCache implements port.CacheRepository with the same atomicity the Lua
// scripts provide, via one mutex.
type mockCache struct {
	mu          sync.Mutex
	counts      map[string]domain.InventoryCounts
	holds       map[string]int // token -> quantity
	rates       map[string]int
	unreachable bool
}

func newMockCache() *mockCache {
	return &mockCache{
		counts: make(map[string]domain.InventoryCounts),
		holds:  make(map[string]int),
		rates:  make(map[string]int),
	}
}

func (m *mockCache) ReserveInventory(ctx context.Context, houseID, token string, quantity int, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unreachable {
		return false, errors.New("cache down")
	}
	counts, ok := m.counts[houseID]
	if !ok {
		return false, fmt.Errorf("house %s: %w", houseID, domain.ErrCacheUnavailable)
	}
	if counts.Available < quantity {
		return false, nil
	}

	counts.Available -= quantity
	counts.Reserved += quantity
	m.counts[houseID] = counts
	m.holds[token] = quantity
	return true, nil
}

func (m *mockCache) ConfirmInventory(ctx context.Context, houseID, token string, quantity int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unreachable {
		return false, errors.New("cache down")
	}
	if _, ok := m.holds[token]; !ok {
		return false, nil
	}
	delete(m.holds, token)

	counts := m.counts[houseID]
	counts.Reserved -= quantity
	counts.Sold += quantity
	m.counts[houseID] = counts
	return true, nil
}

func (m *mockCache) ReleaseInventory(ctx context.Context, houseID, token string, quantity int, saleOpen bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unreachable {
		return false, errors.New("cache down")
	}
	if _, ok := m.holds[token]; !ok {
		return false, nil
	}
	delete(m.holds, token)

	counts := m.counts[houseID]
	counts.Reserved -= quantity
	if saleOpen {
		counts.Available += quantity
	}
	m.counts[houseID] = counts
	return true, nil
}

func (m *mockCache) InitInventory(ctx context.Context, houseID string, counts domain.InventoryCounts) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.counts[houseID]; ok {
		return nil
	}
	m.counts[houseID] = counts
	return nil
}

func (m *mockCache) OverwriteInventory(ctx context.Context, houseID string, counts domain.InventoryCounts) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[houseID] = counts
	return nil
}

func (m *mockCache) GetInventory(ctx context.Context, houseID string) (domain.InventoryCounts, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts, ok := m.counts[houseID]
	return counts, ok, nil
}

func (m *mockCache) CountInWindow(ctx context.Context, key string, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[key]++
	return m.rates[key], nil
}

// mockDB implements port.DatabaseRepository in memory.
type mockDB struct {
	mu           sync.Mutex
	houses       map[string]domain.House
	reservations map[string]domain.Reservation // by token
	tickets      map[string][]domain.Ticket    // by house
	failCreate   bool
}

func newMockDB() *mockDB {
	return &mockDB{
		houses:       make(map[string]domain.House),
		reservations: make(map[string]domain.Reservation),
		tickets:      make(map[string][]domain.Ticket),
	}
}

func (m *mockDB) GetHouse(ctx context.Context, houseID string) (*domain.House, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.houses[houseID]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (m *mockDB) ListDrawableHouses(ctx context.Context, now time.Time) ([]domain.House, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.House
	for _, h := range m.houses {
		if !h.EndDate.After(now) && h.Status != domain.HouseStatusDrawn {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *mockDB) MarkHouseDrawn(ctx context.Context, houseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.houses[houseID]
	if !ok {
		return domain.ErrHouseNotFound
	}
	h.Status = domain.HouseStatusDrawn
	m.houses[houseID] = h
	return nil
}

func (m *mockDB) CreateReservation(ctx context.Context, r domain.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failCreate {
		return errors.New("insert failed")
	}
	m.reservations[r.ReservationToken] = r
	return nil
}

func (m *mockDB) GetReservationByToken(ctx context.Context, token string) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[token]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *mockDB) TransitionReservation(ctx context.Context, token string, from, to domain.ReservationStatus, paymentTxID, errorMessage string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[token]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	if paymentTxID != "" {
		r.PaymentTransactionID = paymentTxID
	}
	if errorMessage != "" {
		r.ErrorMessage = errorMessage
	}
	m.reservations[token] = r
	return true, nil
}

func (m *mockDB) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Reservation
	for _, r := range m.reservations {
		if r.Status == domain.ReservationStatusPending && now.After(r.ExpiresAt) {
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *mockDB) CountPendingForHouse(ctx context.Context, houseID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, r := range m.reservations {
		if r.HouseID == houseID && r.Status == domain.ReservationStatusPending {
			n++
		}
	}
	return n, nil
}

func (m *mockDB) SumPendingQuantity(ctx context.Context, houseID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sum := 0
	for _, r := range m.reservations {
		if r.HouseID == houseID && r.Status == domain.ReservationStatusPending && r.ExpiresAt.After(now) {
			sum += r.Quantity
		}
	}
	return sum, nil
}

func (m *mockDB) CountDistinctParticipants(ctx context.Context, houseID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool)
	for _, r := range m.reservations {
		if r.HouseID == houseID && (r.Status == domain.ReservationStatusPending || r.Status == domain.ReservationStatusConfirmed) {
			seen[r.UserID] = true
		}
	}
	return len(seen), nil
}

func (m *mockDB) IssueTickets(ctx context.Context, token, houseID, userID string, quantity int, unitPrice int64, paymentTxID string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var existing []int
	for _, t := range m.tickets[houseID] {
		if t.ReservationToken == token {
			existing = append(existing, t.TicketNumber)
		}
	}
	if len(existing) > 0 {
		return existing, domain.ErrTicketsAlreadyIssued
	}

	r, ok := m.reservations[token]
	if !ok || r.Status != domain.ReservationStatusPending {
		return nil, domain.ErrReservationFinalized
	}

	last := 0
	for _, t := range m.tickets[houseID] {
		if t.TicketNumber > last {
			last = t.TicketNumber
		}
	}

	if h, ok := m.houses[houseID]; ok && last+quantity > h.TotalTickets {
		return nil, domain.ErrInsufficientInventory
	}

	var numbers []int
	for i := 1; i <= quantity; i++ {
		number := last + i
		m.tickets[houseID] = append(m.tickets[houseID], domain.Ticket{
			TicketNumber:         number,
			HouseID:              houseID,
			UserID:               userID,
			PurchasePrice:        unitPrice,
			PaymentTransactionID: paymentTxID,
			ReservationToken:     token,
			Status:               domain.TicketStatusSold,
		})
		numbers = append(numbers, number)
	}

	r.Status = domain.ReservationStatusConfirmed
	r.PaymentTransactionID = paymentTxID
	m.reservations[token] = r
	return numbers, nil
}

func (m *mockDB) CountSoldTickets(ctx context.Context, houseID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickets[houseID]), nil
}

func (m *mockDB) ListActiveHouseIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, h := range m.houses {
		if h.Status == domain.HouseStatusActive {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// mockGateway implements port.PaymentGateway.
type mockGateway struct {
	mu    sync.Mutex
	calls int
	err   error
	txID  string
}

func (g *mockGateway) Charge(ctx context.Context, token string, amount int64, ref string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	if g.txID == "" {
		return "tx-" + token, nil
	}
	return g.txID, nil
}

func activeHouse(id string, total int) domain.House {
	now := time.Now()
	return domain.House{
		ID:           id,
		Title:        "Test House",
		TotalTickets: total,
		TicketPrice:  1000,
		StartDate:    now.Add(-time.Hour),
		EndDate:      now.Add(time.Hour),
		Status:       domain.HouseStatusActive,
	}
}
