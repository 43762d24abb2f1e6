package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/eslamalbaik/earth-innovators-booking/internal/models"
)

// ReceiptRenderer produces PDF receipts for bookings.
type ReceiptRenderer struct{}

// NewReceiptRenderer constructs a receipt renderer.
func NewReceiptRenderer() *ReceiptRenderer {
	return &ReceiptRenderer{}
}

// Render lays out a single-page receipt for the booking.
func (r *ReceiptRenderer) Render(detail *models.BookingDetail) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "BOOKING RECEIPT", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("Receipt for booking %s", detail.ID), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Issued %s", time.Now().UTC().Format("2 Jan 2006 15:04 MST")), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	rows := [][2]string{
		{"Student", detail.StudentName},
		{"Teacher", detail.TeacherName},
		{"Session start", detail.SlotStart.Format("2 Jan 2006 15:04 MST")},
		{"Session end", detail.SlotEnd.Format("2 Jan 2006 15:04 MST")},
		{"Status", string(detail.Status)},
		{"Payment", string(detail.PaymentStatus)},
		{"Price", fmt.Sprintf("%.2f", detail.Price)},
	}

	pdf.SetFont("Arial", "", 11)
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(55, 9, row[0], "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(125, 9, row[1], "1", 1, "", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}
