package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eslamalbaik/earth-innovators-booking/internal/models"
	"github.com/eslamalbaik/earth-innovators-booking/pkg/jobs"
)

type dispatcherBookingRepository interface {
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	MarkPaid(ctx context.Context, id string) (bool, error)
	MarkRefundPending(ctx context.Context, id string) (bool, error)
	MarkRefunded(ctx context.Context, id string) (bool, error)
}

// CaptureJob asks the payment provider to charge a booking.
type CaptureJob struct {
	BookingID string
	Amount    float64
}

// RefundJob asks the payment provider to return a captured charge.
type RefundJob struct {
	BookingID string
	Amount    float64
}

// RewardJob awards completion points for a booking.
type RewardJob struct {
	BookingID string
}

// Dispatcher runs booking side effects on background worker queues, strictly
// after the state transition that triggered them has committed. Jobs are
// retried on failure, so every consumer below is idempotent.
type Dispatcher struct {
	notifyQueue  *jobs.Queue
	paymentQueue *jobs.Queue
	rewardQueue  *jobs.Queue

	notifier Notifier
	payments PaymentClient
	bookings dispatcherBookingRepository
	rewards  *RewardsService
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewDispatcher constructs the dispatcher and its queues.
func NewDispatcher(
	notifier Notifier,
	payments PaymentClient,
	bookings dispatcherBookingRepository,
	rewards *RewardsService,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg jobs.QueueConfig,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Logger = logger

	d := &Dispatcher{
		notifier: notifier,
		payments: payments,
		bookings: bookings,
		rewards:  rewards,
		metrics:  metrics,
		logger:   logger,
	}
	d.notifyQueue = jobs.NewQueue("notify", d.handleNotify, cfg)
	d.paymentQueue = jobs.NewQueue("payment", d.handlePayment, cfg)
	d.rewardQueue = jobs.NewQueue("reward", d.handleReward, cfg)
	return d
}

// Start launches the worker pools.
func (d *Dispatcher) Start(ctx context.Context) {
	d.notifyQueue.Start(ctx)
	d.paymentQueue.Start(ctx)
	d.rewardQueue.Start(ctx)
}

// Stop drains the worker pools.
func (d *Dispatcher) Stop() {
	d.notifyQueue.Stop()
	d.paymentQueue.Stop()
	d.rewardQueue.Stop()
}

// DispatchNotification enqueues a participant notification.
func (d *Dispatcher) DispatchNotification(n Notification) {
	d.enqueue(d.notifyQueue, n.Event, n)
}

// DispatchCapture enqueues a payment capture for an approved booking.
func (d *Dispatcher) DispatchCapture(bookingID string, amount float64) {
	d.enqueue(d.paymentQueue, "payment.capture", CaptureJob{BookingID: bookingID, Amount: amount})
}

// DispatchRefund enqueues a refund for a cancelled paid booking.
func (d *Dispatcher) DispatchRefund(bookingID string, amount float64) {
	d.enqueue(d.paymentQueue, "payment.refund", RefundJob{BookingID: bookingID, Amount: amount})
}

// DispatchReward enqueues the completion reward grant for a booking.
func (d *Dispatcher) DispatchReward(bookingID string) {
	d.enqueue(d.rewardQueue, "reward.grant", RewardJob{BookingID: bookingID})
}

func (d *Dispatcher) enqueue(q *jobs.Queue, jobType string, payload interface{}) {
	job := jobs.Job{ID: uuid.NewString(), Type: jobType, Payload: payload}
	if err := q.Enqueue(job); err != nil {
		d.metrics.RecordSideEffectFailure("enqueue")
		d.logger.Error("failed to enqueue side effect",
			zap.String("type", jobType),
			zap.Error(err))
	}
}

func (d *Dispatcher) handleNotify(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(Notification)
	if !ok {
		return fmt.Errorf("unexpected notify payload %T", job.Payload)
	}
	if err := d.notifier.Notify(ctx, n); err != nil {
		d.metrics.RecordSideEffectFailure("notify")
		return err
	}
	return nil
}

func (d *Dispatcher) handlePayment(ctx context.Context, job jobs.Job) error {
	switch payload := job.Payload.(type) {
	case CaptureJob:
		result, err := d.payments.Capture(ctx, payload.BookingID, payload.Amount)
		if err != nil {
			d.metrics.RecordSideEffectFailure("payment")
			return err
		}
		if result.Outcome != PaymentSucceeded {
			d.logger.Warn("payment capture declined",
				zap.String("booking_id", payload.BookingID),
				zap.String("reference", result.Reference))
			return nil
		}
		paid, err := d.bookings.MarkPaid(ctx, payload.BookingID)
		if err != nil {
			d.metrics.RecordSideEffectFailure("payment")
			return err
		}
		if !paid {
			// The booking left a payable state between dispatch and capture.
			// Flag the charge as refund_pending so the refund job runs now and
			// the sweeper re-drives it if that fails.
			flagged, err := d.bookings.MarkRefundPending(ctx, payload.BookingID)
			if err != nil {
				d.metrics.RecordSideEffectFailure("payment")
				return err
			}
			if flagged {
				d.logger.Warn("captured payment for non-payable booking, refunding",
					zap.String("booking_id", payload.BookingID))
				d.DispatchRefund(payload.BookingID, payload.Amount)
			}
		}
		return nil
	case RefundJob:
		result, err := d.payments.Refund(ctx, payload.BookingID, payload.Amount)
		if err != nil {
			d.metrics.RecordSideEffectFailure("payment")
			return err
		}
		if result.Outcome != PaymentSucceeded {
			d.logger.Warn("payment refund declined",
				zap.String("booking_id", payload.BookingID),
				zap.String("reference", result.Reference))
			return nil
		}
		if _, err := d.bookings.MarkRefunded(ctx, payload.BookingID); err != nil {
			d.metrics.RecordSideEffectFailure("payment")
			return err
		}
		return nil
	default:
		return fmt.Errorf("unexpected payment payload %T", job.Payload)
	}
}

func (d *Dispatcher) handleReward(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(RewardJob)
	if !ok {
		return fmt.Errorf("unexpected reward payload %T", job.Payload)
	}

	booking, err := d.bookings.FindByID(ctx, payload.BookingID)
	if err != nil {
		d.metrics.RecordSideEffectFailure("reward")
		return fmt.Errorf("load booking for reward: %w", err)
	}
	if booking.Status != models.BookingCompleted {
		d.logger.Warn("skipping reward for non-completed booking",
			zap.String("booking_id", booking.ID),
			zap.String("status", string(booking.Status)))
		return nil
	}

	_, created, err := d.rewards.GrantForCompletion(ctx, booking)
	if err != nil {
		d.metrics.RecordSideEffectFailure("reward")
		return err
	}
	if created {
		d.metrics.RecordRewardGrant()
	}
	return nil
}
