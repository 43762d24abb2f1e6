package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/eslamalbaik/earth-innovators-booking/internal/dto"
	"github.com/eslamalbaik/earth-innovators-booking/internal/models"
	"github.com/eslamalbaik/earth-innovators-booking/internal/repository"
	appErrors "github.com/eslamalbaik/earth-innovators-booking/pkg/errors"
)

type bookingSlotRepository interface {
	FindByID(ctx context.Context, id string) (*models.AvailabilitySlot, error)
}

type bookingRepository interface {
	Claim(ctx context.Context, booking *models.Booking) (bool, error)
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	FindDetailByID(ctx context.Context, id string) (*models.BookingDetail, error)
	List(ctx context.Context, filter models.BookingFilter) ([]models.BookingDetail, int, error)
	Transition(ctx context.Context, p repository.TransitionParams) (bool, error)
	ListStalePending(ctx context.Context, before time.Time) ([]models.Booking, error)
	ListRefundPending(ctx context.Context) ([]models.Booking, error)
}

type bookingUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type bookingDispatcher interface {
	DispatchNotification(n Notification)
	DispatchCapture(bookingID string, amount float64)
	DispatchRefund(bookingID string, amount float64)
	DispatchReward(bookingID string)
}

type bookingSlotCache interface {
	InvalidateTeacherSlots(ctx context.Context, teacherID string) error
}

// BookingService drives the booking lifecycle. Every transition is a single
// conditional update keyed on the current status; side effects run on the
// dispatcher only after the transition has committed.
type BookingService struct {
	slots      bookingSlotRepository
	bookings   bookingRepository
	users      bookingUserRepository
	dispatcher bookingDispatcher
	cache      bookingSlotCache
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	pendingTTL time.Duration
}

// NewBookingService constructs a BookingService.
func NewBookingService(
	slots bookingSlotRepository,
	bookings bookingRepository,
	users bookingUserRepository,
	dispatcher bookingDispatcher,
	cache bookingSlotCache,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	pendingTTL time.Duration,
) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if pendingTTL <= 0 {
		pendingTTL = 30 * time.Minute
	}
	return &BookingService{
		slots:      slots,
		bookings:   bookings,
		users:      users,
		dispatcher: dispatcher,
		cache:      cache,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		pendingTTL: pendingTTL,
	}
}

// Request claims a slot for the acting student. The slot flip and the booking
// insert commit in one transaction; losing the claim race surfaces as
// ErrSlotTaken with no booking row left behind.
func (s *BookingService) Request(ctx context.Context, actor *models.JWTClaims, req dto.RequestBookingRequest) (*models.BookingDetail, error) {
	if actor == nil || actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can request bookings")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}

	slot, err := s.slots.FindByID(ctx, req.SlotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch slot")
	}
	if slot.Ended(time.Now().UTC()) {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "slot has already ended")
	}
	if slot.TeacherID == actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot book your own slot")
	}

	teacher, err := s.users.FindByID(ctx, slot.TeacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch teacher")
	}

	booking := &models.Booking{
		StudentID:    actor.UserID,
		TeacherID:    slot.TeacherID,
		SlotID:       slot.ID,
		Price:        teacher.SessionRate,
		StudentNotes: req.StudentNotes,
	}
	claimed, err := s.bookings.Claim(ctx, booking)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim slot")
	}
	if !claimed {
		s.metrics.RecordBookingConflict()
		return nil, appErrors.Clone(appErrors.ErrSlotTaken, "")
	}

	s.metrics.RecordBookingCreated()
	s.invalidateSlotCache(ctx, slot.TeacherID)
	s.dispatcher.DispatchNotification(Notification{
		RecipientID: slot.TeacherID,
		Event:       NotifyBookingRequested,
		BookingID:   booking.ID,
		Message:     fmt.Sprintf("%s requested a session", actor.FullName),
	})

	return s.detail(ctx, booking.ID)
}

// Get returns a booking visible to the actor: a participant or an admin.
func (s *BookingService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.BookingDetail, error) {
	detail, err := s.detail(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canView(actor, &detail.Booking) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a participant of this booking")
	}
	return detail, nil
}

// ListMine returns the acting student's bookings.
func (s *BookingService) ListMine(ctx context.Context, actor *models.JWTClaims, status models.BookingStatus, page, pageSize int) (*dto.BookingListResponse, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	return s.list(ctx, models.BookingFilter{StudentID: actor.UserID, Status: status, Page: page, PageSize: pageSize})
}

// ListTeaching returns bookings against the acting teacher's slots.
func (s *BookingService) ListTeaching(ctx context.Context, actor *models.JWTClaims, status models.BookingStatus, page, pageSize int) (*dto.BookingListResponse, error) {
	if actor == nil || (actor.Role != models.RoleTeacher && !actor.IsAdmin()) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers can list their teaching bookings")
	}
	return s.list(ctx, models.BookingFilter{TeacherID: actor.UserID, Status: status, Page: page, PageSize: pageSize})
}

// Approve moves a pending booking to approved and kicks off payment capture.
func (s *BookingService) Approve(ctx context.Context, actor *models.JWTClaims, id string, notes *string) (*models.BookingDetail, error) {
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireTeacherOrAdmin(actor, booking); err != nil {
		return nil, err
	}

	moved, err := s.bookings.Transition(ctx, repository.TransitionParams{
		BookingID:  id,
		From:       []models.BookingStatus{models.BookingPending},
		To:         models.BookingApproved,
		AdminNotes: notes,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve booking")
	}
	if !moved {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "booking is not pending")
	}

	s.metrics.RecordTransition(string(models.BookingPending), string(models.BookingApproved))
	s.dispatcher.DispatchNotification(Notification{
		RecipientID: booking.StudentID,
		Event:       NotifyBookingApproved,
		BookingID:   booking.ID,
		Message:     "your booking was approved",
	})
	s.dispatcher.DispatchCapture(booking.ID, booking.Price)

	return s.detail(ctx, id)
}

// Reject declines a pending booking and puts the slot back in circulation.
func (s *BookingService) Reject(ctx context.Context, actor *models.JWTClaims, id string, notes *string) (*models.BookingDetail, error) {
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireTeacherOrAdmin(actor, booking); err != nil {
		return nil, err
	}

	moved, err := s.bookings.Transition(ctx, repository.TransitionParams{
		BookingID:     id,
		From:          []models.BookingStatus{models.BookingPending},
		To:            models.BookingRejected,
		ReleaseSlotID: booking.SlotID,
		AdminNotes:    notes,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject booking")
	}
	if !moved {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "booking is not pending")
	}

	s.metrics.RecordTransition(string(models.BookingPending), string(models.BookingRejected))
	s.invalidateSlotCache(ctx, booking.TeacherID)
	s.dispatcher.DispatchNotification(Notification{
		RecipientID: booking.StudentID,
		Event:       NotifyBookingRejected,
		BookingID:   booking.ID,
		Message:     "your booking was declined",
	})

	return s.detail(ctx, id)
}

// Cancel withdraws a pending or approved booking. Either participant or an
// admin may cancel. The slot is released in the same transaction; a refund is
// queued when the booking was already paid.
func (s *BookingService) Cancel(ctx context.Context, actor *models.JWTClaims, id string, notes *string) (*models.BookingDetail, error) {
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canView(actor, booking) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a participant of this booking")
	}

	params := repository.TransitionParams{
		BookingID:     id,
		From:          []models.BookingStatus{models.BookingPending, models.BookingApproved},
		To:            models.BookingCancelled,
		ReleaseSlotID: booking.SlotID,
		AdminNotes:    notes,
	}
	refund := booking.PaymentStatus == models.PaymentPaid
	if refund {
		refundPending := models.PaymentRefundPending
		params.SetPayment = &refundPending
	}

	moved, err := s.bookings.Transition(ctx, params)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel booking")
	}
	if !moved {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "booking can no longer be cancelled")
	}

	s.metrics.RecordTransition(string(booking.Status), string(models.BookingCancelled))
	s.invalidateSlotCache(ctx, booking.TeacherID)
	if refund {
		s.dispatcher.DispatchRefund(booking.ID, booking.Price)
	}
	recipient := booking.TeacherID
	if actor.UserID != booking.StudentID {
		recipient = booking.StudentID
	}
	s.dispatcher.DispatchNotification(Notification{
		RecipientID: recipient,
		Event:       NotifyBookingCancelled,
		BookingID:   booking.ID,
		Message:     "the booking was cancelled",
	})

	return s.detail(ctx, id)
}

// Complete marks an approved booking as delivered once the session has ended,
// releasing the reward grant for the student. Admins may complete early.
func (s *BookingService) Complete(ctx context.Context, actor *models.JWTClaims, id string, notes *string) (*models.BookingDetail, error) {
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireTeacherOrAdmin(actor, booking); err != nil {
		return nil, err
	}

	if !actor.IsAdmin() {
		slot, err := s.slots.FindByID(ctx, booking.SlotID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch slot")
		}
		if !slot.Ended(time.Now().UTC()) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "session has not ended yet")
		}
	}

	moved, err := s.bookings.Transition(ctx, repository.TransitionParams{
		BookingID:  id,
		From:       []models.BookingStatus{models.BookingApproved},
		To:         models.BookingCompleted,
		AdminNotes: notes,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete booking")
	}
	if !moved {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "booking is not approved")
	}

	s.metrics.RecordTransition(string(models.BookingApproved), string(models.BookingCompleted))
	s.dispatcher.DispatchReward(booking.ID)
	s.dispatcher.DispatchNotification(Notification{
		RecipientID: booking.StudentID,
		Event:       NotifyBookingCompleted,
		BookingID:   booking.ID,
		Message:     "your session was completed",
	})

	return s.detail(ctx, id)
}

// ExpireStale cancels pending bookings older than the pending TTL, releasing
// their slots. Run by the sweeper.
func (s *BookingService) ExpireStale(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.pendingTTL)
	stale, err := s.bookings.ListStalePending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale bookings: %w", err)
	}

	expired := 0
	note := "expired: request was not handled in time"
	for i := range stale {
		booking := &stale[i]
		moved, err := s.bookings.Transition(ctx, repository.TransitionParams{
			BookingID:     booking.ID,
			From:          []models.BookingStatus{models.BookingPending},
			To:            models.BookingCancelled,
			ReleaseSlotID: booking.SlotID,
			AdminNotes:    &note,
		})
		if err != nil {
			s.logger.Error("failed to expire booking", zap.String("booking_id", booking.ID), zap.Error(err))
			continue
		}
		if !moved {
			continue
		}
		expired++
		s.metrics.RecordTransition(string(models.BookingPending), string(models.BookingCancelled))
		s.invalidateSlotCache(ctx, booking.TeacherID)
		s.dispatcher.DispatchNotification(Notification{
			RecipientID: booking.StudentID,
			Event:       NotifyBookingExpired,
			BookingID:   booking.ID,
			Message:     "your booking request expired",
		})
	}
	return expired, nil
}

// RedriveRefunds re-enqueues refunds for bookings stuck in refund_pending.
// Run by the sweeper; the refund consumer is idempotent on the provider side
// and MarkRefunded only moves out of refund_pending once.
func (s *BookingService) RedriveRefunds(ctx context.Context) (int, error) {
	pending, err := s.bookings.ListRefundPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list refund pending bookings: %w", err)
	}
	for i := range pending {
		s.dispatcher.DispatchRefund(pending[i].ID, pending[i].Price)
	}
	return len(pending), nil
}

func (s *BookingService) list(ctx context.Context, filter models.BookingFilter) (*dto.BookingListResponse, error) {
	bookings, total, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	return &dto.BookingListResponse{
		Bookings: bookings,
		Pagination: models.Pagination{
			Page:       filter.Page,
			PageSize:   filter.PageSize,
			TotalCount: total,
		},
	}, nil
}

func (s *BookingService) load(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch booking")
	}
	return booking, nil
}

func (s *BookingService) detail(ctx context.Context, id string) (*models.BookingDetail, error) {
	detail, err := s.bookings.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch booking")
	}
	return detail, nil
}

func (s *BookingService) canView(actor *models.JWTClaims, booking *models.Booking) bool {
	if actor == nil {
		return false
	}
	return actor.IsAdmin() || actor.UserID == booking.StudentID || actor.UserID == booking.TeacherID
}

func (s *BookingService) requireTeacherOrAdmin(actor *models.JWTClaims, booking *models.Booking) error {
	if actor == nil || (actor.UserID != booking.TeacherID && !actor.IsAdmin()) {
		return appErrors.Clone(appErrors.ErrForbidden, "only the slot's teacher can act on this booking")
	}
	return nil
}

func (s *BookingService) invalidateSlotCache(ctx context.Context, teacherID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateTeacherSlots(ctx, teacherID); err != nil {
		s.logger.Warn("failed to invalidate slot cache", zap.String("teacher_id", teacherID), zap.Error(err))
	}
}
