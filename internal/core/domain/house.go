package domain

import "time"

type HouseStatus string

const (
	HouseStatusActive HouseStatus = "active"
	HouseStatusEnded  HouseStatus = "ended"
	HouseStatusDrawn  HouseStatus = "drawn"
)

type House struct {
	ID             string
	Title          string
	TotalTickets   int
	TicketPrice    int64 // cents
	StartDate      time.Time
	EndDate        time.Time
	Status         HouseStatus
	ParticipantCap int // 0 means uncapped
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SaleOpen reports whether tickets can still be reserved at t.
func (h House) SaleOpen(t time.Time) bool {
	if h.Status != HouseStatusActive {
		return false
	}
	return !t.Before(h.StartDate) && !t.After(h.EndDate)
}

// SaleEnded reports whether the sale window has closed at t. Inventory
// released after this point is discarded instead of returned to sale.
func (h House) SaleEnded(t time.Time) bool {
	return h.Status != HouseStatusActive || t.After(h.EndDate)
}

// InventoryCounts is the cache-resident counter triple for one house.
// available + reserved + sold == TotalTickets once initialized.
type InventoryCounts struct {
	Available int
	Reserved  int
	Sold      int
}

type InventoryStatus struct {
	HouseID   string
	Available int
	Reserved  int
	Sold      int
	IsSoldOut bool
	IsEnded   bool
	Stale     bool // true when served from the durable store instead of cache
}
