package export

import (
	"fmt"
	"io"
	"sort"
	"time"

	"localservices/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	bookingsSheet = "Bookings"
	summarySheet  = "Summary"
)

var bookingColumns = []string{
	"ID", "Group", "Status", "Resource", "Provider", "Customer",
	"Start (UTC)", "End (UTC)", "Price", "Currency", "Accepted by", "Updated (UTC)",
}

var statusColors = map[string]string{
	models.StatusPending:   "#FFF2CC",
	models.StatusConfirmed: "#E2EFDA",
	models.StatusCompleted: "#DDEBF7",
	models.StatusDeclined:  "#F8CBAD",
	models.StatusCancelled: "#EDEDED",
}

// Report is the audit export of every booking starting in [From, To).
type Report struct {
	From     time.Time
	To       time.Time
	Bookings []*models.Booking
}

// FileName is the suggested download name of the report.
func (r Report) FileName() string {
	return fmt.Sprintf("bookings_%s_to_%s.xlsx", r.From.UTC().Format("2006-01-02"), r.To.UTC().Format("2006-01-02"))
}

// Build renders the report into a new workbook. The caller closes it.
func (r Report) Build() (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(bookingsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	if err := r.writeBookings(f); err != nil {
		f.Close()
		return nil, err
	}
	if err := r.writeSummary(f); err != nil {
		f.Close()
		return nil, err
	}

	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

// WriteTo renders the report as xlsx into w.
func (r Report) WriteTo(w io.Writer) (int64, error) {
	f, err := r.Build()
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.WriteTo(w)
}

func (r Report) writeBookings(f *excelize.File) error {
	header, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("error creating header style: %w", err)
	}

	for i, title := range bookingColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(bookingsSheet, cell, title); err != nil {
			return err
		}
	}
	lastCol, _ := excelize.ColumnNumberToName(len(bookingColumns))
	_ = f.SetCellStyle(bookingsSheet, "A1", lastCol+"1", header)

	styles := make(map[string]int, len(statusColors))
	for status, color := range statusColors {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err != nil {
			return fmt.Errorf("error creating status style: %w", err)
		}
		styles[status] = id
	}

	for i, b := range r.Bookings {
		row := i + 2
		accepted := ""
		if b.AcceptedProvider != nil {
			accepted = b.AcceptedProvider.DisplayName
			if accepted == "" {
				accepted = b.AcceptedProvider.ID
			}
		}
		values := []interface{}{
			b.ID,
			b.GroupID,
			b.Status,
			b.ResourceName,
			b.ProviderID,
			b.CustomerID,
			b.Window.Start.UTC().Format("2006-01-02 15:04"),
			b.Window.End.UTC().Format("2006-01-02 15:04"),
			b.PriceQuote,
			b.Currency,
			accepted,
			b.UpdatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(bookingsSheet, cell, &values); err != nil {
			return fmt.Errorf("error writing booking %d: %w", b.ID, err)
		}
		if style, ok := styles[b.Status]; ok {
			statusCell, _ := excelize.CoordinatesToCellName(3, row)
			_ = f.SetCellStyle(bookingsSheet, statusCell, statusCell, style)
		}
	}

	_ = f.SetColWidth(bookingsSheet, "A", "A", 8)
	_ = f.SetColWidth(bookingsSheet, "B", "B", 38)
	_ = f.SetColWidth(bookingsSheet, "C", lastCol, 18)
	_ = f.SetPanes(bookingsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	return nil
}

func (r Report) writeSummary(f *excelize.File) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}

	_ = f.SetCellValue(summarySheet, "A1", fmt.Sprintf("Period: %s - %s",
		r.From.UTC().Format("2006-01-02 15:04"), r.To.UTC().Format("2006-01-02 15:04")))
	_ = f.MergeCell(summarySheet, "A1", "C1")
	title, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	_ = f.SetCellStyle(summarySheet, "A1", "A1", title)

	counts := make(map[string]int)
	revenue := make(map[string]float64)
	for _, b := range r.Bookings {
		counts[b.Status]++
		if b.Status == models.StatusConfirmed || b.Status == models.StatusCompleted {
			revenue[b.Currency] += b.PriceQuote
		}
	}

	_ = f.SetSheetRow(summarySheet, "A3", &[]interface{}{"Status", "Bookings"})
	row := 4
	for _, status := range []string{
		models.StatusPending, models.StatusConfirmed, models.StatusCompleted,
		models.StatusDeclined, models.StatusCancelled,
	} {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetSheetRow(summarySheet, cell, &[]interface{}{status, counts[status]})
		row++
	}
	cell, _ := excelize.CoordinatesToCellName(1, row)
	_ = f.SetSheetRow(summarySheet, cell, &[]interface{}{"total", len(r.Bookings)})

	row += 2
	cell, _ = excelize.CoordinatesToCellName(1, row)
	_ = f.SetSheetRow(summarySheet, cell, &[]interface{}{"Currency", "Booked value"})
	currencies := make([]string, 0, len(revenue))
	for c := range revenue {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	for _, c := range currencies {
		row++
		cell, _ = excelize.CoordinatesToCellName(1, row)
		_ = f.SetSheetRow(summarySheet, cell, &[]interface{}{c, revenue[c]})
	}

	_ = f.SetColWidth(summarySheet, "A", "B", 18)
	return nil
}
