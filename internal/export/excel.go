// Package export renders booking schedules as Excel workbooks.
package export

import (
	"fmt"
	"io"
	"time"

	"detailbook/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	BookingsSheet = "Bookings"
	SummarySheet  = "Summary"
)

var bookingHeaders = []string{
	"ID", "Date", "Start", "End", "Service", "Customer", "Phone", "Email",
	"Address", "Status", "Total", "Notes",
}

var statusColors = map[string]string{
	models.StatusConfirmed:      "#C6EFCE",
	models.StatusPendingPayment: "#FFEB9C",
	models.StatusPending:        "#FFEB9C",
	models.StatusCancelled:      "#FFC7CE",
	models.StatusPaymentFailed:  "#FFC7CE",
}

// WriteBookings writes an xlsx workbook for bookings in [from, to) to w.
// Times are shown in loc.
func WriteBookings(w io.Writer, bookings []*models.Booking, from, to time.Time, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(BookingsSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	lastCol, _ := excelize.ColumnNumberToName(len(bookingHeaders))
	_ = f.SetCellValue(BookingsSheet, "A1", fmt.Sprintf("Period: %s - %s",
		from.In(loc).Format(models.DateLayout), to.In(loc).Format(models.DateLayout)))
	_ = f.MergeCell(BookingsSheet, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(BookingsSheet, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, h := range bookingHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(BookingsSheet, cell, h)
	}
	_ = f.SetCellStyle(BookingsSheet, "A2", lastCol+"2", headerStyle)
	_ = f.SetColWidth(BookingsSheet, "A", "D", 12)
	_ = f.SetColWidth(BookingsSheet, "E", lastCol, 22)

	styles := make(map[string]int, len(statusColors))
	for status, color := range statusColors {
		id, err := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1}})
		if err != nil {
			return fmt.Errorf("create style: %w", err)
		}
		styles[status] = id
	}

	for i, b := range bookings {
		row := i + 3
		start, end := b.StartAt.In(loc), b.EndAt.In(loc)
		values := []interface{}{
			b.ID,
			start.Format(models.DateLayout),
			start.Format(models.TimeLayout),
			end.Format(models.TimeLayout),
			b.ServiceName,
			b.CustomerName(),
			b.Phone,
			b.Email,
			b.Address.String(),
			b.Status,
			float64(b.TotalPriceCents) / 100,
			b.Notes,
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(BookingsSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
		if style, ok := styles[b.Status]; ok {
			statusCell, _ := excelize.CoordinatesToCellName(10, row)
			_ = f.SetCellStyle(BookingsSheet, statusCell, statusCell, style)
		}
	}

	if err := writeSummary(f, bookings); err != nil {
		return err
	}
	_ = f.DeleteSheet("Sheet1")

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// writeSummary adds per-status counts and the revenue of confirmed bookings.
func writeSummary(f *excelize.File, bookings []*models.Booking) error {
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	counts := make(map[string]int)
	var revenue int64
	for _, b := range bookings {
		counts[b.Status]++
		if b.Status == models.StatusConfirmed {
			revenue += b.TotalPriceCents
		}
	}

	_ = f.SetSheetRow(SummarySheet, "A1", &[]interface{}{"Status", "Bookings"})
	row := 2
	for _, status := range []string{
		models.StatusPending, models.StatusPendingPayment, models.StatusConfirmed,
		models.StatusCancelled, models.StatusPaymentFailed,
	} {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetSheetRow(SummarySheet, cell, &[]interface{}{status, counts[status]})
		row++
	}
	cell, _ := excelize.CoordinatesToCellName(1, row+1)
	_ = f.SetSheetRow(SummarySheet, cell, &[]interface{}{"Confirmed revenue", float64(revenue) / 100})
	return nil
}
