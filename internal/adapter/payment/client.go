package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/DrorGr/amesaBE-sub006/internal/core/domain"
	"github.com/DrorGr/amesaBE-sub006/internal/metrics"
)

const (
	defaultTimeout  = 30 * time.Second
	maxAttempts     = 3
	defaultBackoff  = 250 * time.Millisecond
	defaultCooldown = 30 * time.Second

	breakerThreshold = 5
)

type chargeRequest struct {
	IdempotencyKey   string `json:"idempotency_key"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	PaymentMethodRef string `json:"payment_method_ref,omitempty"`
}

type chargeResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

// Client charges the external payment gateway. Transient failures retry with
// exponential backoff; a run of consecutive failures opens the breaker and
// subsequent calls fail fast with ErrGatewayUnavailable until the cooldown
// elapses. The reservation token rides along as the gateway idempotency key,
// so a retried charge can never bill twice.
type Client struct {
	baseURL    string
	httpClient *http.Client
	backoff    time.Duration
	cooldown   time.Duration

	mu           sync.Mutex
	failures     int
	openedAt     time.Time
	halfOpenBusy bool
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		backoff:    defaultBackoff,
		cooldown:   defaultCooldown,
	}
}

func (c *Client) Charge(ctx context.Context, reservationToken string, amount int64, paymentMethodRef string) (string, error) {
	if err := c.allow(); err != nil {
		return "", err
	}

	body, err := json.Marshal(chargeRequest{
		IdempotencyKey:   reservationToken,
		Amount:           amount,
		Currency:         "USD",
		PaymentMethodRef: paymentMethodRef,
	})
	if err != nil {
		return "", fmt.Errorf("marshal charge request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.backoff << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				c.recordFailure()
				return "", fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, ctx.Err())
			}
		}

		txID, retryable, err := c.attempt(ctx, body)
		if err == nil {
			c.recordSuccess()
			return txID, nil
		}
		if !retryable {
			// A decline is a definitive gateway answer, not a gateway fault.
			c.recordSuccess()
			return "", err
		}
		lastErr = err
	}

	c.recordFailure()
	return "", fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, lastErr)
}

// attempt performs one HTTP round trip. retryable marks transport errors and
// 5xx responses; 4xx means declined and is terminal.
func (c *Client) attempt(ctx context.Context, body []byte) (txID string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("build charge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("gateway status %d", resp.StatusCode)
	}

	var parsed chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", true, fmt.Errorf("decode gateway response: %w", err)
	}

	if resp.StatusCode >= 400 || parsed.Status == "declined" {
		return "", false, fmt.Errorf("%w: %s", domain.ErrGatewayDeclined, parsed.Message)
	}
	return parsed.TransactionID, false, nil
}

// allow implements the breaker admission check: closed passes, open fails
// fast, and after the cooldown exactly one probe goes through half-open.
func (c *Client) allow() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failures < breakerThreshold {
		return nil
	}

	if time.Since(c.openedAt) < c.cooldown {
		return fmt.Errorf("%w: circuit open", domain.ErrGatewayUnavailable)
	}
	if c.halfOpenBusy {
		return fmt.Errorf("%w: circuit half-open", domain.ErrGatewayUnavailable)
	}
	c.halfOpenBusy = true
	return nil
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	c.halfOpenBusy = false
	metrics.GatewayBreakerOpen.Set(0)
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	c.halfOpenBusy = false
	if c.failures >= breakerThreshold {
		c.openedAt = time.Now()
		metrics.GatewayBreakerOpen.Set(1)
	}
}

// Open reports whether the breaker is currently rejecting calls.
func (c *Client) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures >= breakerThreshold && time.Since(c.openedAt) < c.cooldown
}
