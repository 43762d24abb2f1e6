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

// Notification is delivered to a participant when a booking changes state.
type Notification struct {
	RecipientID string `json:"recipient_id"`
	Event       string `json:"event"`
	BookingID   string `json:"booking_id"`
	Message     string `json:"message"`
}

// Notification events emitted by the booking lifecycle.
const (
	NotifyBookingRequested = "booking.requested"
	NotifyBookingApproved  = "booking.approved"
	NotifyBookingRejected  = "booking.rejected"
	NotifyBookingCancelled = "booking.cancelled"
	NotifyBookingCompleted = "booking.completed"
	NotifyBookingExpired   = "booking.expired"
)

// Notifier delivers a notification to a participant. Delivery failures never
// roll back the state transition that produced them.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// WebhookNotifierConfig configures the outbound webhook notifier.
type WebhookNotifierConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

// WebhookNotifier posts notifications to a configured webhook endpoint.
type WebhookNotifier struct {
	client *http.Client
	cfg    WebhookNotifierConfig
	logger *zap.Logger
}

// NewWebhookNotifier constructs the notifier.
func NewWebhookNotifier(cfg WebhookNotifierConfig, logger *zap.Logger) *WebhookNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookNotifier{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger,
	}
}

// Notify posts the notification payload to the webhook.
func (n *WebhookNotifier) Notify(ctx context.Context, notification Notification) error {
	if n.cfg.WebhookURL == "" {
		n.logger.Debug("notifier webhook not configured, dropping notification",
			zap.String("event", notification.Event),
			zap.String("booking_id", notification.BookingID))
		return nil
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrNotifyTransport.Code, appErrors.ErrNotifyTransport.Status, "notification endpoint unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return appErrors.Clone(appErrors.ErrNotifyTransport, fmt.Sprintf("notification endpoint returned %d", resp.StatusCode))
	}
	return nil
}
