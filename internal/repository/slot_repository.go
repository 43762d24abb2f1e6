package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/eslamalbaik/earth-innovators-booking/internal/models"
)

// SlotRepository handles persistence of availability slots.
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository constructs the repository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// Create persists a new slot unless it overlaps an existing slot for the same
// teacher. Overlap is enforced by the slot_no_overlap exclusion constraint, so
// two concurrent creates for the same interval cannot both commit regardless
// of isolation level; the loser surfaces as overlap=true with no row written.
func (r *SlotRepository) Create(ctx context.Context, slot *models.AvailabilitySlot) (bool, error) {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	if slot.Status == "" {
		slot.Status = models.SlotAvailable
	}
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now

	const query = `INSERT INTO availability_slots (id, teacher_id, start_time, end_time, status, notes, created_at, updated_at)
        VALUES (:id, :teacher_id, :start_time, :end_time, :status, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		if isExclusionViolation(err) {
			return true, nil
		}
		return false, fmt.Errorf("create slot: %w", err)
	}
	return false, nil
}

// isExclusionViolation reports whether err is Postgres error 23P01, raised by
// the slot_no_overlap constraint.
func isExclusionViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23P01"
}

// FindByID returns a slot by its ID.
func (r *SlotRepository) FindByID(ctx context.Context, id string) (*models.AvailabilitySlot, error) {
	const query = `SELECT id, teacher_id, start_time, end_time, status, notes, created_at, updated_at
        FROM availability_slots WHERE id = $1`
	var slot models.AvailabilitySlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// List returns slots filtered by the provided criteria.
func (r *SlotRepository) List(ctx context.Context, filter models.SlotFilter) ([]models.AvailabilitySlot, int, error) {
	var conditions []string
	var args []interface{}

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("start_time >= $%d", len(args)+1))
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("end_time <= $%d", len(args)+1))
		args = append(args, filter.To)
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

	query := fmt.Sprintf(`SELECT id, teacher_id, start_time, end_time, status, notes, created_at, updated_at
        FROM availability_slots%s ORDER BY start_time ASC LIMIT %d OFFSET %d`, clause, size, offset)

	var slots []models.AvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list slots: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM availability_slots" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count slots: %w", err)
	}
	return slots, total, nil
}

// markSlotBooked is the single compare-and-swap that claims a slot, shared by
// the direct repository call and the booking claim transaction. Exactly one
// concurrent caller sees claimed=true.
func markSlotBooked(ctx context.Context, ext sqlx.ExtContext, id string) (bool, error) {
	const query = `UPDATE availability_slots SET status = $2, updated_at = now()
        WHERE id = $1 AND status = $3`
	res, err := ext.ExecContext(ctx, query, id, models.SlotBooked, models.SlotAvailable)
	if err != nil {
		return false, fmt.Errorf("mark slot booked: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark slot booked rows: %w", err)
	}
	return affected == 1, nil
}

// releaseSlot reverts a booked slot back to available. A cancelled slot is
// left untouched.
func releaseSlot(ctx context.Context, ext sqlx.ExtContext, id string) error {
	const query = `UPDATE availability_slots SET status = $2, updated_at = now()
        WHERE id = $1 AND status = $3`
	if _, err := ext.ExecContext(ctx, query, id, models.SlotAvailable, models.SlotBooked); err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

// MarkBooked atomically claims a slot.
func (r *SlotRepository) MarkBooked(ctx context.Context, id string) (bool, error) {
	return markSlotBooked(ctx, r.db, id)
}

// Release reverts a booked slot back to available.
func (r *SlotRepository) Release(ctx context.Context, id string) error {
	return releaseSlot(ctx, r.db, id)
}

// Cancel removes an available slot from circulation. Returns cancelled=false
// when the slot is not currently available.
func (r *SlotRepository) Cancel(ctx context.Context, id string) (cancelled bool, err error) {
	const query = `UPDATE availability_slots SET status = $2, updated_at = now()
        WHERE id = $1 AND status = $3`
	res, err := r.db.ExecContext(ctx, query, id, models.SlotCancelled, models.SlotAvailable)
	if err != nil {
		return false, fmt.Errorf("cancel slot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel slot rows: %w", err)
	}
	return affected == 1, nil
}
