package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eslamalbaik/earth-innovators-booking/internal/models"
)

func TestBookingRepositoryClaim(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE availability_slots SET status = $2, updated_at = now()")).
		WithArgs("slot-1", models.SlotBooked, models.SlotAvailable).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	booking := &models.Booking{StudentID: "student-1", TeacherID: "teacher-1", SlotID: "slot-1", Price: 25}
	claimed, err := repo.Claim(context.Background(), booking)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.NotEmpty(t, booking.ID)
	assert.Equal(t, models.BookingPending, booking.Status)
	assert.Equal(t, models.PaymentPending, booking.PaymentStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryClaimLosesRace(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	// The slot update matches nothing, so the transaction rolls back and no
	// booking row is ever written.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE availability_slots SET status = $2, updated_at = now()")).
		WithArgs("slot-1", models.SlotBooked, models.SlotAvailable).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	claimed, err := repo.Claim(context.Background(), &models.Booking{
		StudentID: "student-2", TeacherID: "teacher-1", SlotID: "slot-1", Price: 25,
	})
	require.NoError(t, err)
	assert.False(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryTransition(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET status = $2, updated_at = now(), approved_at = now() WHERE id = $1 AND status = ANY($3)")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	moved, err := repo.Transition(context.Background(), TransitionParams{
		BookingID: "booking-1",
		From:      []models.BookingStatus{models.BookingPending},
		To:        models.BookingApproved,
	})
	require.NoError(t, err)
	assert.True(t, moved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryTransitionGuardFails(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	// The booking is no longer in an accepted source status; zero rows match
	// and the state is left untouched.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET status = $2, updated_at = now(), rejected_at = now() WHERE id = $1 AND status = ANY($3)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	moved, err := repo.Transition(context.Background(), TransitionParams{
		BookingID: "booking-1",
		From:      []models.BookingStatus{models.BookingPending},
		To:        models.BookingRejected,
	})
	require.NoError(t, err)
	assert.False(t, moved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryTransitionReleasesSlot(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET status = $2, updated_at = now(), cancelled_at = now(), payment_status = $3 WHERE id = $1 AND status = ANY($4)")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE availability_slots SET status = $2, updated_at = now()")).
		WithArgs("slot-1", models.SlotAvailable, models.SlotBooked).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	refundPending := models.PaymentRefundPending
	moved, err := repo.Transition(context.Background(), TransitionParams{
		BookingID:     "booking-1",
		From:          []models.BookingStatus{models.BookingPending, models.BookingApproved},
		To:            models.BookingCancelled,
		ReleaseSlotID: "slot-1",
		SetPayment:    &refundPending,
	})
	require.NoError(t, err)
	assert.True(t, moved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryMarkPaidRequiresApproved(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET payment_status = $2, updated_at = now()")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	paid, err := repo.MarkPaid(context.Background(), "booking-1")
	require.NoError(t, err)
	assert.False(t, paid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryMarkRefundPendingFlagsUnpaidCharge(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET payment_status = $2, updated_at = now()")).
		WithArgs("booking-1", models.PaymentRefundPending, models.PaymentPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	flagged, err := repo.MarkRefundPending(context.Background(), "booking-1")
	require.NoError(t, err)
	assert.True(t, flagged)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryMarkRefundPendingOnlyFromPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	// Already paid or already flagged: the guard matches zero rows so the
	// refund path is not re-entered.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET payment_status = $2, updated_at = now()")).
		WithArgs("booking-1", models.PaymentRefundPending, models.PaymentPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	flagged, err := repo.MarkRefundPending(context.Background(), "booking-1")
	require.NoError(t, err)
	assert.False(t, flagged)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryListStalePending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	cutoff := time.Now().Add(-time.Hour)
	rows := sqlmock.NewRows([]string{"id", "student_id", "teacher_id", "slot_id", "status", "price", "payment_status",
		"student_notes", "admin_notes", "approved_at", "rejected_at", "cancelled_at", "completed_at", "created_at", "updated_at"}).
		AddRow("booking-1", "student-1", "teacher-1", "slot-1", models.BookingPending, 25.0, models.PaymentPending,
			nil, nil, nil, nil, nil, nil, time.Now().Add(-2*time.Hour), time.Now().Add(-2*time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE status = $1 AND created_at < $2")).
		WithArgs(models.BookingPending, cutoff).
		WillReturnRows(rows)

	stale, err := repo.ListStalePending(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "booking-1", stale[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
