package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/eslamalbaik/earth-innovators-booking/internal/models"
)

// ScheduleCSV renders a teacher's slots as CSV, one row per slot.
func ScheduleCSV(slots []models.AvailabilitySlot) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	if err := writer.Write([]string{"slot_id", "start_time", "end_time", "status", "notes"}); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, slot := range slots {
		notes := ""
		if slot.Notes != nil {
			notes = *slot.Notes
		}
		record := []string{
			slot.ID,
			slot.StartTime.UTC().Format("2006-01-02T15:04:05Z"),
			slot.EndTime.UTC().Format("2006-01-02T15:04:05Z"),
			string(slot.Status),
			notes,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
