package models

import (
	"fmt"
	"time"
)

// BookingStatus represents the current state of a booking in its lifecycle.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingApproved  BookingStatus = "approved"
	BookingRejected  BookingStatus = "rejected"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// validTransitions defines the state machine for booking status transitions.
var validTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingApproved, BookingRejected, BookingCancelled},
	BookingApproved:  {BookingCompleted, BookingCancelled},
	BookingRejected:  {},
	BookingCancelled: {},
	BookingCompleted: {},
}

// IsValid returns true if the status is a recognized booking status.
func (s BookingStatus) IsValid() bool {
	_, exists := validTransitions[s]
	return exists
}

// CanTransitionTo returns true if a transition from this status to the target is allowed.
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}
	for _, t := range allowed {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible from this status.
func (s BookingStatus) IsTerminal() bool {
	allowed, exists := validTransitions[s]
	if !exists {
		return true
	}
	return len(allowed) == 0
}

// ParseBookingStatus converts a string to a BookingStatus, returning an error if invalid.
func ParseBookingStatus(raw string) (BookingStatus, error) {
	status := BookingStatus(raw)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %s", raw)
	}
	return status, nil
}

// PaymentStatus tracks the payment side of a booking. It only ever reflects
// payment outcomes and never gates a booking status transition.
type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "pending"
	PaymentPaid          PaymentStatus = "paid"
	PaymentRefundPending PaymentStatus = "refund_pending"
	PaymentRefunded      PaymentStatus = "refunded"
)

// Booking records a student's claim on an availability slot.
type Booking struct {
	ID            string        `db:"id" json:"id"`
	StudentID     string        `db:"student_id" json:"student_id"`
	TeacherID     string        `db:"teacher_id" json:"teacher_id"`
	SlotID        string        `db:"slot_id" json:"slot_id"`
	Status        BookingStatus `db:"status" json:"status"`
	Price         float64       `db:"price" json:"price"`
	PaymentStatus PaymentStatus `db:"payment_status" json:"payment_status"`
	StudentNotes  *string       `db:"student_notes" json:"student_notes,omitempty"`
	AdminNotes    *string       `db:"admin_notes" json:"admin_notes,omitempty"`
	ApprovedAt    *time.Time    `db:"approved_at" json:"approved_at,omitempty"`
	RejectedAt    *time.Time    `db:"rejected_at" json:"rejected_at,omitempty"`
	CancelledAt   *time.Time    `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CompletedAt   *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// BookingDetail joins a booking with participant and slot context.
type BookingDetail struct {
	Booking
	StudentName string    `db:"student_name" json:"student_name"`
	TeacherName string    `db:"teacher_name" json:"teacher_name"`
	SlotStart   time.Time `db:"slot_start" json:"slot_start"`
	SlotEnd     time.Time `db:"slot_end" json:"slot_end"`
}

// BookingFilter captures filtering criteria for listing bookings.
type BookingFilter struct {
	StudentID string
	TeacherID string
	Status    BookingStatus
	Page      int
	PageSize  int
}

// Reward source types recorded on grant ledger entries.
const (
	RewardSourceBookingCompleted = "booking_completed"
)
