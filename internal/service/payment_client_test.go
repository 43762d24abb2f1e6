package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/eslamalbaik/earth-innovators-booking/pkg/errors"
)

func TestHTTPPaymentClientCapture(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/charges", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req paymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "booking-1", req.BookingID)
		assert.Equal(t, 40.0, req.Amount)

		json.NewEncoder(w).Encode(PaymentResult{Outcome: PaymentSucceeded, Reference: "ch_123"})
	}))
	defer server.Close()

	client := NewHTTPPaymentClient(PaymentClientConfig{BaseURL: server.URL, APIKey: "test-key"}, zap.NewNop())
	result, err := client.Capture(context.Background(), "booking-1", 40)
	require.NoError(t, err)
	assert.Equal(t, PaymentSucceeded, result.Outcome)
	assert.Equal(t, "ch_123", result.Reference)
}

func TestHTTPPaymentClientDeclined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(PaymentResult{Outcome: PaymentDeclined, Reference: "ch_456"})
	}))
	defer server.Close()

	client := NewHTTPPaymentClient(PaymentClientConfig{BaseURL: server.URL}, zap.NewNop())
	result, err := client.Capture(context.Background(), "booking-1", 40)
	require.NoError(t, err)
	assert.Equal(t, PaymentDeclined, result.Outcome)
}

func TestHTTPPaymentClientTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewHTTPPaymentClient(PaymentClientConfig{BaseURL: server.URL, Timeout: time.Second}, zap.NewNop())
	_, err := client.Capture(context.Background(), "booking-1", 40)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPaymentTransport.Code, appErrors.FromError(err).Code)
}

func TestHTTPPaymentClientProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPPaymentClient(PaymentClientConfig{BaseURL: server.URL}, zap.NewNop())
	_, err := client.Refund(context.Background(), "booking-1", 40)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPaymentTransport.Code, appErrors.FromError(err).Code)
}

func TestWebhookNotifierDeliversPayload(t *testing.T) {
	var received Notification
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(WebhookNotifierConfig{WebhookURL: server.URL}, zap.NewNop())
	err := notifier.Notify(context.Background(), Notification{
		RecipientID: "student-1",
		Event:       NotifyBookingApproved,
		BookingID:   "booking-1",
		Message:     "your booking was approved",
	})
	require.NoError(t, err)
	assert.Equal(t, NotifyBookingApproved, received.Event)
	assert.Equal(t, "booking-1", received.BookingID)
}

func TestWebhookNotifierFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(WebhookNotifierConfig{WebhookURL: server.URL}, zap.NewNop())
	err := notifier.Notify(context.Background(), Notification{Event: NotifyBookingApproved})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotifyTransport.Code, appErrors.FromError(err).Code)
}

func TestWebhookNotifierUnconfigured(t *testing.T) {
	notifier := NewWebhookNotifier(WebhookNotifierConfig{}, zap.NewNop())
	err := notifier.Notify(context.Background(), Notification{Event: NotifyBookingRequested})
	require.NoError(t, err)
}
