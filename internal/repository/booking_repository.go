package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/eslamalbaik/earth-innovators-booking/internal/models"
)

// BookingRepository handles persistence of bookings and the transactional
// coupling between a booking and its slot.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs the repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `id, student_id, teacher_id, slot_id, status, price, payment_status,
        student_notes, admin_notes, approved_at, rejected_at, cancelled_at, completed_at, created_at, updated_at`

// Claim atomically flips the slot from available to booked and inserts the
// booking in a single transaction. When the slot was already taken the
// transaction is rolled back, no booking row survives, and claimed=false is
// returned.
func (r *BookingRepository) Claim(ctx context.Context, booking *models.Booking) (claimed bool, err error) {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	if booking.Status == "" {
		booking.Status = models.BookingPending
	}
	if booking.PaymentStatus == "" {
		booking.PaymentStatus = models.PaymentPending
	}
	now := time.Now().UTC()
	booking.CreatedAt = now
	booking.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin claim transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var slotClaimed bool
	if slotClaimed, err = markSlotBooked(ctx, tx, booking.SlotID); err != nil {
		return false, err
	}
	if !slotClaimed {
		_ = tx.Rollback()
		return false, nil
	}

	const insertQuery = `INSERT INTO bookings (id, student_id, teacher_id, slot_id, status, price, payment_status, student_notes, created_at, updated_at)
        VALUES (:id, :student_id, :teacher_id, :slot_id, :status, :price, :payment_status, :student_notes, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, booking); err != nil {
		return false, fmt.Errorf("insert booking: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit claim: %w", err)
	}
	return true, nil
}

// FindByID returns a booking by its ID.
func (r *BookingRepository) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE id = $1`, bookingColumns)
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindDetailByID returns a booking joined with participant and slot context.
func (r *BookingRepository) FindDetailByID(ctx context.Context, id string) (*models.BookingDetail, error) {
	const query = `SELECT b.id, b.student_id, b.teacher_id, b.slot_id, b.status, b.price, b.payment_status,
        b.student_notes, b.admin_notes, b.approved_at, b.rejected_at, b.cancelled_at, b.completed_at,
        b.created_at, b.updated_at,
        s.full_name AS student_name, t.full_name AS teacher_name,
        sl.start_time AS slot_start, sl.end_time AS slot_end
        FROM bookings b
        JOIN users s ON s.id = b.student_id
        JOIN users t ON t.id = b.teacher_id
        JOIN availability_slots sl ON sl.id = b.slot_id
        WHERE b.id = $1`
	var detail models.BookingDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns booking details filtered by the provided criteria.
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.BookingDetail, int, error) {
	base := `FROM bookings b
JOIN users s ON s.id = b.student_id
JOIN users t ON t.id = b.teacher_id
JOIN availability_slots sl ON sl.id = b.slot_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("b.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("b.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("b.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT b.id, b.student_id, b.teacher_id, b.slot_id, b.status, b.price, b.payment_status,
        b.student_notes, b.admin_notes, b.approved_at, b.rejected_at, b.cancelled_at, b.completed_at,
        b.created_at, b.updated_at,
        s.full_name AS student_name, t.full_name AS teacher_name,
        sl.start_time AS slot_start, sl.end_time AS slot_end
        %s ORDER BY sl.start_time DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var bookings []models.BookingDetail
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}
	return bookings, total, nil
}

// TransitionParams describes a guarded booking status transition.
type TransitionParams struct {
	BookingID string
	From      []models.BookingStatus
	To        models.BookingStatus
	// ReleaseSlotID, when set, reverts the slot to available in the same
	// transaction as the status write.
	ReleaseSlotID string
	// SetPayment, when set, writes payment_status alongside the status.
	SetPayment *models.PaymentStatus
	// AdminNotes, when set, records the actor's note on the transition.
	AdminNotes *string
}

// statusTimestampCols maps a target status to the audit timestamp it stamps.
var statusTimestampCols = map[models.BookingStatus]string{
	models.BookingApproved:  "approved_at",
	models.BookingRejected:  "rejected_at",
	models.BookingCancelled: "cancelled_at",
	models.BookingCompleted: "completed_at",
}

// Transition performs the status write as a single conditional update keyed on
// the current status. A racing transition loses by matching zero rows; the
// booking and its slot are then left untouched and moved=false is returned.
func (r *BookingRepository) Transition(ctx context.Context, p TransitionParams) (moved bool, err error) {
	sets := []string{"status = $2", "updated_at = now()"}
	if col, ok := statusTimestampCols[p.To]; ok {
		sets = append(sets, fmt.Sprintf("%s = now()", col))
	}
	args := []interface{}{p.BookingID, p.To}
	if p.SetPayment != nil {
		args = append(args, *p.SetPayment)
		sets = append(sets, fmt.Sprintf("payment_status = $%d", len(args)))
	}
	if p.AdminNotes != nil {
		args = append(args, *p.AdminNotes)
		sets = append(sets, fmt.Sprintf("admin_notes = $%d", len(args)))
	}

	from := make([]string, len(p.From))
	for i, s := range p.From {
		from[i] = string(s)
	}
	args = append(args, pq.Array(from))
	query := fmt.Sprintf(`UPDATE bookings SET %s WHERE id = $1 AND status = ANY($%d)`,
		strings.Join(sets, ", "), len(args))

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transition: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition booking: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition booking rows: %w", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return false, nil
	}

	if p.ReleaseSlotID != "" {
		if err = releaseSlot(ctx, tx, p.ReleaseSlotID); err != nil {
			return false, err
		}
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transition: %w", err)
	}
	return true, nil
}

// MarkPaid records a successful capture. Payment may only reach paid while
// the booking is approved or completed.
func (r *BookingRepository) MarkPaid(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE bookings SET payment_status = $2, updated_at = now()
        WHERE id = $1 AND payment_status = $3 AND status = ANY($4)`
	res, err := r.db.ExecContext(ctx, query, id, models.PaymentPaid, models.PaymentPending,
		pq.Array([]string{string(models.BookingApproved), string(models.BookingCompleted)}))
	if err != nil {
		return false, fmt.Errorf("mark booking paid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark booking paid rows: %w", err)
	}
	return affected == 1, nil
}

// MarkRefundPending flags a captured charge for the refund path when the
// booking left a payable state before the capture landed. The refund worker
// and the sweeper both key off refund_pending, so a flagged charge is always
// re-driven until the provider confirms the refund.
func (r *BookingRepository) MarkRefundPending(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE bookings SET payment_status = $2, updated_at = now()
        WHERE id = $1 AND payment_status = $3`
	res, err := r.db.ExecContext(ctx, query, id, models.PaymentRefundPending, models.PaymentPending)
	if err != nil {
		return false, fmt.Errorf("mark booking refund pending: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark booking refund pending rows: %w", err)
	}
	return affected == 1, nil
}

// MarkRefunded records a confirmed refund. Refunded is only reachable from
// refund_pending, which itself is only reachable from paid.
func (r *BookingRepository) MarkRefunded(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE bookings SET payment_status = $2, updated_at = now()
        WHERE id = $1 AND payment_status = $3`
	res, err := r.db.ExecContext(ctx, query, id, models.PaymentRefunded, models.PaymentRefundPending)
	if err != nil {
		return false, fmt.Errorf("mark booking refunded: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark booking refunded rows: %w", err)
	}
	return affected == 1, nil
}

// ListStalePending returns pending bookings created before the cutoff.
func (r *BookingRepository) ListStalePending(ctx context.Context, before time.Time) ([]models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE status = $1 AND created_at < $2`, bookingColumns)
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, models.BookingPending, before); err != nil {
		return nil, fmt.Errorf("list stale pending bookings: %w", err)
	}
	return bookings, nil
}

// ListRefundPending returns bookings whose refund has not been confirmed yet.
func (r *BookingRepository) ListRefundPending(ctx context.Context) ([]models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE payment_status = $1`, bookingColumns)
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, models.PaymentRefundPending); err != nil {
		return nil, fmt.Errorf("list refund pending bookings: %w", err)
	}
	return bookings, nil
}
