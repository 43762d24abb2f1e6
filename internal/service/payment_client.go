package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/eslamalbaik/earth-innovators-booking/pkg/errors"
)

// PaymentOutcome is the provider's decision on a charge or refund.
type PaymentOutcome string

const (
	PaymentSucceeded PaymentOutcome = "succeeded"
	PaymentDeclined  PaymentOutcome = "declined"
)

// PaymentResult is the provider's response to a capture or refund request.
type PaymentResult struct {
	Outcome   PaymentOutcome `json:"outcome"`
	Reference string         `json:"reference"`
}

// PaymentClient is the outbound boundary to the payment provider. Transport
// failures are returned as errors; a declined charge is a successful call
// with Outcome=declined.
type PaymentClient interface {
	Capture(ctx context.Context, bookingID string, amount float64) (*PaymentResult, error)
	Refund(ctx context.Context, bookingID string, amount float64) (*PaymentResult, error)
}

// PaymentClientConfig configures the HTTP payment client.
type PaymentClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPPaymentClient talks to the payment provider over HTTP.
type HTTPPaymentClient struct {
	client *http.Client
	cfg    PaymentClientConfig
	logger *zap.Logger
}

// NewHTTPPaymentClient constructs the client.
func NewHTTPPaymentClient(cfg PaymentClientConfig, logger *zap.Logger) *HTTPPaymentClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPPaymentClient{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger,
	}
}

type paymentRequest struct {
	BookingID string  `json:"booking_id"`
	Amount    float64 `json:"amount"`
}

// Capture charges the student for a booking.
func (c *HTTPPaymentClient) Capture(ctx context.Context, bookingID string, amount float64) (*PaymentResult, error) {
	return c.post(ctx, "/v1/charges", bookingID, amount)
}

// Refund returns a previously captured charge.
func (c *HTTPPaymentClient) Refund(ctx context.Context, bookingID string, amount float64) (*PaymentResult, error) {
	return c.post(ctx, "/v1/refunds", bookingID, amount)
}

func (c *HTTPPaymentClient) post(ctx context.Context, path, bookingID string, amount float64) (*PaymentResult, error) {
	payload, err := json.Marshal(paymentRequest{BookingID: bookingID, Amount: amount})
	if err != nil {
		return nil, fmt.Errorf("marshal payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build payment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPaymentTransport.Code, appErrors.ErrPaymentTransport.Status, "payment provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, appErrors.Clone(appErrors.ErrPaymentTransport, fmt.Sprintf("payment provider returned %d", resp.StatusCode))
	}

	var result PaymentResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPaymentTransport.Code, appErrors.ErrPaymentTransport.Status, "decode payment response")
	}

	if resp.StatusCode >= http.StatusBadRequest || result.Outcome != PaymentSucceeded {
		c.logger.Warn("payment declined",
			zap.String("booking_id", bookingID),
			zap.Int("status", resp.StatusCode),
			zap.String("outcome", string(result.Outcome)))
		result.Outcome = PaymentDeclined
	}
	return &result, nil
}
