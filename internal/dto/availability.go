package dto

import (
	"time"

	"github.com/eslamalbaik/earth-innovators-booking/internal/models"
)

// CreateSlotRequest is the payload for declaring an availability slot.
type CreateSlotRequest struct {
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required"`
	Notes     *string   `json:"notes,omitempty"`
}

// SlotFilterRequest captures query parameters for listing slots.
type SlotFilterRequest struct {
	TeacherID string
	From      *time.Time
	To        *time.Time
	Status    string
	Page      int
	PageSize  int
}

// SlotListResponse is a page of slots with pagination metadata.
type SlotListResponse struct {
	Slots      []models.AvailabilitySlot `json:"slots"`
	Pagination models.Pagination         `json:"pagination"`
}
