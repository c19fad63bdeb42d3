package port

import "context"

// PaymentGateway charges the external payment service. The reservation token
// is the idempotency key: retried calls with the same token must not
// double-charge. Failures map to domain.ErrGatewayDeclined (terminal) or
// domain.ErrGatewayUnavailable (transient, caller may retry until expiry).
type PaymentGateway interface {
	Charge(ctx context.Context, reservationToken string, amount int64, paymentMethodRef string) (transactionID string, err error)
}
