package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eslamalbaik/earth-innovators-booking/internal/models"
	"github.com/eslamalbaik/earth-innovators-booking/pkg/jobs"
)

type fakePaymentClient struct {
	outcome  PaymentOutcome
	err      error
	captured []string
	refunded []string
}

func (f *fakePaymentClient) Capture(ctx context.Context, bookingID string, amount float64) (*PaymentResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.captured = append(f.captured, bookingID)
	return &PaymentResult{Outcome: f.outcome}, nil
}

func (f *fakePaymentClient) Refund(ctx context.Context, bookingID string, amount float64) (*PaymentResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.refunded = append(f.refunded, bookingID)
	return &PaymentResult{Outcome: f.outcome}, nil
}

type fakeNotifier struct {
	delivered []Notification
	err       error
}

func (f *fakeNotifier) Notify(ctx context.Context, n Notification) error {
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, n)
	return nil
}

type fakeDispatcherBookings struct {
	booking       *models.Booking
	markPaidFails bool
	paid          []string
	refundPending []string
	refunded      []string
}

func (f *fakeDispatcherBookings) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	return f.booking, nil
}

func (f *fakeDispatcherBookings) MarkPaid(ctx context.Context, id string) (bool, error) {
	if f.markPaidFails {
		return false, nil
	}
	f.paid = append(f.paid, id)
	return true, nil
}

func (f *fakeDispatcherBookings) MarkRefundPending(ctx context.Context, id string) (bool, error) {
	f.refundPending = append(f.refundPending, id)
	return true, nil
}

func (f *fakeDispatcherBookings) MarkRefunded(ctx context.Context, id string) (bool, error) {
	f.refunded = append(f.refunded, id)
	return true, nil
}

func newTestDispatcher(payments PaymentClient, notifier Notifier, bookings dispatcherBookingRepository, rewards *RewardsService) *Dispatcher {
	return NewDispatcher(notifier, payments, bookings, rewards,
		NewMetricsService(), zap.NewNop(), jobs.QueueConfig{Workers: 1})
}

func TestDispatcherCaptureMarksPaid(t *testing.T) {
	payments := &fakePaymentClient{outcome: PaymentSucceeded}
	bookings := &fakeDispatcherBookings{}
	d := newTestDispatcher(payments, &fakeNotifier{}, bookings, NewRewardsService(&mockRewardRepo{}, 10, nil))

	err := d.handlePayment(context.Background(), jobs.Job{Type: "payment.capture", Payload: CaptureJob{BookingID: "booking-1", Amount: 40}})
	require.NoError(t, err)
	assert.Equal(t, []string{"booking-1"}, payments.captured)
	assert.Equal(t, []string{"booking-1"}, bookings.paid)
}

func TestDispatcherCaptureDeclinedDoesNotMarkPaid(t *testing.T) {
	payments := &fakePaymentClient{outcome: PaymentDeclined}
	bookings := &fakeDispatcherBookings{}
	d := newTestDispatcher(payments, &fakeNotifier{}, bookings, NewRewardsService(&mockRewardRepo{}, 10, nil))

	err := d.handlePayment(context.Background(), jobs.Job{Type: "payment.capture", Payload: CaptureJob{BookingID: "booking-1", Amount: 40}})
	require.NoError(t, err)
	assert.Empty(t, bookings.paid)
}

func TestDispatcherCaptureAfterCancellationFlagsRefund(t *testing.T) {
	payments := &fakePaymentClient{outcome: PaymentSucceeded}
	// The booking was cancelled between dispatch and capture, so MarkPaid
	// matches zero rows. The captured charge must not be stranded: it is
	// flagged refund_pending, where the refund job and the sweeper own it.
	bookings := &fakeDispatcherBookings{markPaidFails: true}
	d := newTestDispatcher(payments, &fakeNotifier{}, bookings, NewRewardsService(&mockRewardRepo{}, 10, nil))

	err := d.handlePayment(context.Background(), jobs.Job{Type: "payment.capture", Payload: CaptureJob{BookingID: "booking-1", Amount: 40}})
	require.NoError(t, err)
	assert.Equal(t, []string{"booking-1"}, payments.captured)
	assert.Empty(t, bookings.paid)
	assert.Equal(t, []string{"booking-1"}, bookings.refundPending)
}

func TestDispatcherTransportFailureIsRetryable(t *testing.T) {
	payments := &fakePaymentClient{err: errors.New("connection refused")}
	bookings := &fakeDispatcherBookings{}
	d := newTestDispatcher(payments, &fakeNotifier{}, bookings, NewRewardsService(&mockRewardRepo{}, 10, nil))

	err := d.handlePayment(context.Background(), jobs.Job{Type: "payment.refund", Payload: RefundJob{BookingID: "booking-1", Amount: 40}})
	require.Error(t, err)
	assert.Empty(t, bookings.refunded)
}

func TestDispatcherRefundMarksRefunded(t *testing.T) {
	payments := &fakePaymentClient{outcome: PaymentSucceeded}
	bookings := &fakeDispatcherBookings{}
	d := newTestDispatcher(payments, &fakeNotifier{}, bookings, NewRewardsService(&mockRewardRepo{}, 10, nil))

	err := d.handlePayment(context.Background(), jobs.Job{Type: "payment.refund", Payload: RefundJob{BookingID: "booking-1", Amount: 40}})
	require.NoError(t, err)
	assert.Equal(t, []string{"booking-1"}, bookings.refunded)
}

func TestDispatcherRewardGrantIsIdempotentAcrossRedelivery(t *testing.T) {
	rewardRepo := &mockRewardRepo{}
	rewards := NewRewardsService(rewardRepo, 10, nil)
	bookings := &fakeDispatcherBookings{booking: &models.Booking{
		ID: "booking-1", StudentID: "student-1", Status: models.BookingCompleted,
	}}
	d := newTestDispatcher(&fakePaymentClient{}, &fakeNotifier{}, bookings, rewards)

	job := jobs.Job{Type: "reward.grant", Payload: RewardJob{BookingID: "booking-1"}}
	require.NoError(t, d.handleReward(context.Background(), job))
	require.NoError(t, d.handleReward(context.Background(), job))

	balance, err := rewards.Balance(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, 10, balance)
}

func TestDispatcherRewardSkipsNonCompletedBooking(t *testing.T) {
	rewardRepo := &mockRewardRepo{}
	bookings := &fakeDispatcherBookings{booking: &models.Booking{
		ID: "booking-1", StudentID: "student-1", Status: models.BookingCancelled,
	}}
	d := newTestDispatcher(&fakePaymentClient{}, &fakeNotifier{}, bookings, NewRewardsService(rewardRepo, 10, nil))

	err := d.handleReward(context.Background(), jobs.Job{Type: "reward.grant", Payload: RewardJob{BookingID: "booking-1"}})
	require.NoError(t, err)
	assert.Empty(t, rewardRepo.grants)
}

func TestDispatcherNotifyFailurePropagatesForRetry(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("endpoint down")}
	d := newTestDispatcher(&fakePaymentClient{}, notifier, &fakeDispatcherBookings{}, NewRewardsService(&mockRewardRepo{}, 10, nil))

	err := d.handleNotify(context.Background(), jobs.Job{Type: NotifyBookingApproved, Payload: Notification{Event: NotifyBookingApproved}})
	require.Error(t, err)
}
