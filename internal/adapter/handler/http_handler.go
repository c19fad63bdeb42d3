package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/DrorGr/amesaBE-sub006/internal/core/domain"
	"github.com/DrorGr/amesaBE-sub006/internal/core/service"
	"github.com/DrorGr/amesaBE-sub006/internal/metrics"
)

type HTTPHandler struct {
	reservations *service.ReservationService
	processor    *service.ReservationProcessor
	inventory    *service.InventoryManager
}

func NewHTTPHandler(reservations *service.ReservationService, processor *service.ReservationProcessor, inventory *service.InventoryManager) *HTTPHandler {
	return &HTTPHandler{
		reservations: reservations,
		processor:    processor,
		inventory:    inventory,
	}
}

// Register wires the routes. House-scoped paths follow the pattern
// /houses/{id}/tickets/<action>.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /houses/{id}/tickets/reserve", h.Reserve)
	mux.HandleFunc("POST /houses/{id}/tickets/validate", h.Validate)
	mux.HandleFunc("POST /houses/{id}/tickets/create-from-payment", h.CreateFromPayment)
	mux.HandleFunc("GET /houses/{id}/inventory", h.InventoryStatus)
	mux.HandleFunc("GET /health", h.HealthCheck)
}

type reserveRequest struct {
	UserID           string `json:"user_id"`
	Quantity         int    `json:"quantity"`
	PaymentMethodRef string `json:"payment_method_ref"`
}

type reservationResponse struct {
	ReservationID    string `json:"reservation_id"`
	ReservationToken string `json:"reservation_token"`
	HouseID          string `json:"house_id"`
	Quantity         int    `json:"quantity"`
	TotalPrice       int64  `json:"total_price"`
	Status           string `json:"status"`
	ExpiresAt        string `json:"expires_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *HTTPHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	houseID := r.PathValue("id")

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.UserID == "" || houseID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing required fields"})
		return
	}

	reservation, err := h.reservations.CreateReservation(r.Context(), houseID, req.UserID, req.Quantity, req.PaymentMethodRef)
	if err != nil {
		metrics.ReservationAttempts.WithLabelValues(outcomeLabel(err)).Inc()
		writeError(w, err)
		return
	}

	metrics.ReservationAttempts.WithLabelValues("created").Inc()
	writeJSON(w, http.StatusCreated, reservationResponse{
		ReservationID:    reservation.ID,
		ReservationToken: reservation.ReservationToken,
		HouseID:          reservation.HouseID,
		Quantity:         reservation.Quantity,
		TotalPrice:       reservation.TotalPrice,
		Status:           string(reservation.Status),
		ExpiresAt:        reservation.ExpiresAt.Format(time.RFC3339),
	})
}

type validateRequest struct {
	UserID   string `json:"user_id"`
	Quantity int    `json:"quantity"`
}

func (h *HTTPHandler) Validate(w http.ResponseWriter, r *http.Request) {
	houseID := r.PathValue("id")

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if err := h.reservations.Validate(r.Context(), houseID, req.UserID, req.Quantity); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

type createFromPaymentRequest struct {
	PaymentID        string `json:"payment_id"`
	ReservationToken string `json:"reservation_token"`
}

type ticketsResponse struct {
	TicketNumbers []int `json:"ticket_numbers"`
}

// CreateFromPayment is called by the payment collaborator after the gateway
// confirmed the charge out of band.
func (h *HTTPHandler) CreateFromPayment(w http.ResponseWriter, r *http.Request) {
	var req createFromPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.ReservationToken == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing reservation_token"})
		return
	}

	numbers, err := h.processor.Confirm(r.Context(), req.ReservationToken, req.PaymentID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ticketsResponse{TicketNumbers: numbers})
}

type inventoryResponse struct {
	HouseID   string `json:"house_id"`
	Available int    `json:"available"`
	Reserved  int    `json:"reserved"`
	Sold      int    `json:"sold"`
	IsSoldOut bool   `json:"is_sold_out"`
	IsEnded   bool   `json:"is_ended"`
	Stale     bool   `json:"stale,omitempty"`
}

func (h *HTTPHandler) InventoryStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.inventory.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inventoryResponse{
		HouseID:   status.HouseID,
		Available: status.Available,
		Reserved:  status.Reserved,
		Sold:      status.Sold,
		IsSoldOut: status.IsSoldOut,
		IsEnded:   status.IsEnded,
		Stale:     status.Stale,
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, domain.ErrHouseNotFound) || errors.Is(err, domain.ErrReservationNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrInvalidQuantity):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrRateLimited):
		status, message = http.StatusTooManyRequests, err.Error()
	case errors.Is(err, domain.ErrInsufficientInventory):
		status, message = http.StatusGone, "sold out"
	case errors.Is(err, domain.ErrLotteryClosed) || errors.Is(err, domain.ErrParticipantCap):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrReservationFinalized):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrGatewayDeclined):
		status, message = http.StatusPaymentRequired, err.Error()
	case errors.Is(err, domain.ErrGatewayUnavailable):
		status, message = http.StatusServiceUnavailable, "payment gateway unavailable, retry later"
	case errors.Is(err, domain.ErrCacheUnavailable):
		status, message = http.StatusServiceUnavailable, "inventory unavailable"
	}

	writeJSON(w, status, errorResponse{Error: message})
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientInventory):
		return "sold_out"
	case errors.Is(err, domain.ErrRateLimited),
		errors.Is(err, domain.ErrLotteryClosed),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrParticipantCap):
		return "rejected"
	default:
		return "error"
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
