package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lottery_reservation_attempts_total",
		Help: "Reservation attempts by outcome (created, sold_out, rejected, error)",
	}, []string{"outcome"})

	ReservationsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lottery_reservations_finalized_total",
		Help: "Reservations reaching a terminal state, by state",
	}, []string{"state"})

	AvailableTickets = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lottery_available_tickets",
		Help: "Available tickets per house as last seen in cache",
	}, []string{"house_id"})

	GatewayBreakerOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lottery_payment_breaker_open",
		Help: "1 while the payment gateway circuit breaker is open",
	})

	SyncCorrections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lottery_inventory_sync_corrections_total",
		Help: "Times the sync loop overwrote drifted cache counters",
	})

	ExpiredReservations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lottery_reservations_expired_total",
		Help: "Pending reservations expired by the cleanup loop",
	})
)
