package dto

import (
	"github.com/eslamalbaik/earth-innovators-booking/internal/models"
)

// RequestBookingRequest is the payload for a student claiming a slot.
type RequestBookingRequest struct {
	SlotID       string  `json:"slot_id" validate:"required,uuid4"`
	StudentNotes *string `json:"student_notes,omitempty"`
}

// BookingActionRequest carries optional notes on an approve/reject/cancel
// action.
type BookingActionRequest struct {
	Notes *string `json:"notes,omitempty"`
}

// BookingListResponse is a page of booking details with pagination metadata.
type BookingListResponse struct {
	Bookings   []models.BookingDetail `json:"bookings"`
	Pagination models.Pagination      `json:"pagination"`
}

// RewardSummaryResponse reports a recipient's ledger and balance.
type RewardSummaryResponse struct {
	Balance int                  `json:"balance"`
	Grants  []models.RewardGrant `json:"grants"`
}
