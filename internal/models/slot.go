package models

import "time"

// SlotStatus is the lifecycle state of an availability slot.
type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
	SlotCancelled SlotStatus = "cancelled"
)

// AvailabilitySlot is a teacher-declared block of time eligible for booking.
// A slot is referenced by at most one live booking at a time; the transition
// from available to booked is performed as an atomic conditional update.
type AvailabilitySlot struct {
	ID        string     `db:"id" json:"id"`
	TeacherID string     `db:"teacher_id" json:"teacher_id"`
	StartTime time.Time  `db:"start_time" json:"start_time"`
	EndTime   time.Time  `db:"end_time" json:"end_time"`
	Status    SlotStatus `db:"status" json:"status"`
	Notes     *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Ended reports whether the slot's scheduled end time has elapsed.
func (s *AvailabilitySlot) Ended(now time.Time) bool {
	return s.EndTime.Before(now)
}

// SlotFilter captures filtering criteria for listing slots.
type SlotFilter struct {
	TeacherID string
	From      time.Time
	To        time.Time
	Status    SlotStatus
	Page      int
	PageSize  int
}
