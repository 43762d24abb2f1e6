package export

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eslamalbaik/earth-innovators-booking/internal/models"
)

func TestScheduleCSV(t *testing.T) {
	notes := "room 4"
	slots := []models.AvailabilitySlot{
		{
			ID:        "slot-1",
			StartTime: time.Date(2026, 9, 7, 14, 0, 0, 0, time.UTC),
			EndTime:   time.Date(2026, 9, 7, 15, 0, 0, 0, time.UTC),
			Status:    models.SlotAvailable,
			Notes:     &notes,
		},
		{
			ID:        "slot-2",
			StartTime: time.Date(2026, 9, 8, 9, 0, 0, 0, time.UTC),
			EndTime:   time.Date(2026, 9, 8, 10, 0, 0, 0, time.UTC),
			Status:    models.SlotBooked,
		},
	}

	out, err := ScheduleCSV(slots)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "slot_id,start_time,end_time,status,notes", lines[0])
	assert.Contains(t, lines[1], "slot-1")
	assert.Contains(t, lines[1], "2026-09-07T14:00:00Z")
	assert.Contains(t, lines[1], "room 4")
	assert.Contains(t, lines[2], "booked")
}

func TestScheduleCSVEmpty(t *testing.T) {
	out, err := ScheduleCSV(nil)
	require.NoError(t, err)
	assert.Equal(t, "slot_id,start_time,end_time,status,notes", strings.TrimSpace(string(out)))
}

func TestReceiptRender(t *testing.T) {
	detail := &models.BookingDetail{
		Booking: models.Booking{
			ID:            "booking-1",
			Status:        models.BookingCompleted,
			PaymentStatus: models.PaymentPaid,
			Price:         40,
		},
		StudentName: "Student One",
		TeacherName: "Teacher One",
		SlotStart:   time.Date(2026, 9, 7, 14, 0, 0, 0, time.UTC),
		SlotEnd:     time.Date(2026, 9, 7, 15, 0, 0, 0, time.UTC),
	}

	out, err := NewReceiptRenderer().Render(detail)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "%PDF"))
}
