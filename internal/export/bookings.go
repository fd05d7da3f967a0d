// Package export renders admin reports as XLSX workbooks.
package export

import (
	"fmt"
	"io"
	"sort"
	"time"

	"techcare/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	bookingsSheet = "Bookings"
	summarySheet  = "Summary"
)

var bookingHeaders = []string{
	"ID", "Created", "Customer", "Technician", "Device", "Brand", "Model",
	"Issue", "Status", "Payment", "Estimated", "Price",
}

var statusColors = map[string]string{
	models.StatusPending:     "#FFF2CC",
	models.StatusBidAccepted: "#DDEBF7",
	models.StatusConfirmed:   "#DDEBF7",
	models.StatusInProgress:  "#FCE4D6",
	models.StatusCompleted:   "#E2EFDA",
	models.StatusCancelled:   "#EDEDED",
}

// BookingsWorkbook writes a bookings report for [from, to) to w.
func BookingsWorkbook(w io.Writer, bookings []*models.Booking, from, to time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(bookingsSheet)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	if err := writeBookingRows(f, bookings); err != nil {
		return err
	}
	if err := writeSummary(f, bookings, from, to); err != nil {
		return err
	}

	_ = f.DeleteSheet("Sheet1")

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func writeBookingRows(f *excelize.File, bookings []*models.Booking) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#1F4E78"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}

	for i, h := range bookingHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(bookingsSheet, cell, h)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(bookingHeaders))
	_ = f.SetCellStyle(bookingsSheet, "A1", lastCol+"1", headerStyle)

	statusStyles := make(map[string]int, len(statusColors))
	for status, color := range statusColors {
		style, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err != nil {
			return fmt.Errorf("error creating style: %w", err)
		}
		statusStyles[status] = style
	}

	for i, b := range bookings {
		row := i + 2
		technician := ""
		if b.HasTechnician() {
			technician = *b.TechnicianID
		}
		values := []any{
			b.ID, b.CreatedAt.UTC().Format("2006-01-02 15:04"), b.CustomerID, technician,
			b.DeviceType, b.DeviceBrand, b.DeviceModel, b.IssueDesc,
			b.Status, b.PaymentStatus, b.EstimatedCost, b.Price,
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(bookingsSheet, cell, &values); err != nil {
			return fmt.Errorf("error writing row %d: %w", row, err)
		}
		if style, ok := statusStyles[b.Status]; ok {
			statusCell, _ := excelize.CoordinatesToCellName(9, row)
			_ = f.SetCellStyle(bookingsSheet, statusCell, statusCell, style)
		}
	}

	_ = f.SetColWidth(bookingsSheet, "A", "A", 38)
	_ = f.SetColWidth(bookingsSheet, "B", "B", 18)
	_ = f.SetColWidth(bookingsSheet, "C", "D", 38)
	_ = f.SetColWidth(bookingsSheet, "E", "G", 16)
	_ = f.SetColWidth(bookingsSheet, "H", "H", 40)
	_ = f.SetColWidth(bookingsSheet, "I", "L", 14)
	_ = f.SetPanes(bookingsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	return nil
}

func writeSummary(f *excelize.File, bookings []*models.Booking, from, to time.Time) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}

	counts := make(map[string]int)
	var revenue float64
	paid := 0
	for _, b := range bookings {
		counts[b.Status]++
		if b.PaymentStatus == models.PaymentPaid {
			paid++
			revenue += b.Price
		}
	}

	period := "all time"
	if !from.IsZero() || !to.IsZero() {
		period = fmt.Sprintf("%s - %s", formatDay(from), formatDay(to))
	}

	_ = f.SetCellValue(summarySheet, "A1", "Period")
	_ = f.SetCellValue(summarySheet, "B1", period)
	_ = f.SetCellValue(summarySheet, "A2", "Total bookings")
	_ = f.SetCellValue(summarySheet, "B2", len(bookings))
	_ = f.SetCellValue(summarySheet, "A3", "Paid bookings")
	_ = f.SetCellValue(summarySheet, "B3", paid)
	_ = f.SetCellValue(summarySheet, "A4", "Revenue")
	_ = f.SetCellValue(summarySheet, "B4", revenue)

	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)

	_ = f.SetCellValue(summarySheet, "A6", "Status")
	_ = f.SetCellValue(summarySheet, "B6", "Count")
	for i, s := range statuses {
		row := 7 + i
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), s)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), counts[s])
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetCellStyle(summarySheet, "A1", "A4", bold)
		_ = f.SetCellStyle(summarySheet, "A6", "B6", bold)
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 20)
	_ = f.SetColWidth(summarySheet, "B", "B", 28)
	return nil
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return "…"
	}
	return t.UTC().Format("2006-01-02")
}

// FileName returns the download name for a report covering [from, to).
func FileName(from, to time.Time) string {
	if from.IsZero() && to.IsZero() {
		return "bookings.xlsx"
	}
	return fmt.Sprintf("bookings_%s_to_%s.xlsx", formatDay(from), formatDay(to))
}
