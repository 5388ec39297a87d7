// Package audit exports committed appointments to a spreadsheet.
package audit

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
)

const (
	appointmentsSheet = "Citas"
	summarySheet      = "Resumen"
)

var appointmentColumns = []string{
	"Número", "Paciente", "Cédula", "Contacto", "Teléfono", "Fecha", "Hora", "Estado", "Motivo", "Creada",
}

// AppointmentLister is the read side of the repository used for exports.
type AppointmentLister interface {
	ListAppointments(ctx context.Context) ([]models.Appointment, error)
}

// Filter narrows an export. Empty fields match everything.
type Filter struct {
	Date   string
	Status string
}

func (f Filter) Match(a *models.Appointment) bool {
	return (f.Date == "" || a.Date == f.Date) && (f.Status == "" || a.Status == f.Status)
}

// sheetWriter appends rows to the current sheet of an excelize file.
type sheetWriter struct {
	file  *excelize.File
	sheet string
	row   int
}

func newSheetWriter() *sheetWriter {
	return &sheetWriter{file: excelize.NewFile()}
}

func (w *sheetWriter) addSheet(name string) error {
	// Excel caps sheet names at 31 characters
	if len(name) > 31 {
		name = name[:31]
	}
	if w.sheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	w.sheet = name
	w.row = 1
	return nil
}

func (w *sheetWriter) writeRow(values []interface{}) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, w.row)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.sheet, cell, v); err != nil {
			return err
		}
	}
	w.row++
	return nil
}

func (w *sheetWriter) writeHeader(columns []string) error {
	values := make([]interface{}, len(columns))
	for i, c := range columns {
		values[i] = c
	}
	row := w.row
	if err := w.writeRow(values); err != nil {
		return err
	}
	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		start, _ := excelize.CoordinatesToCellName(1, row)
		end, _ := excelize.CoordinatesToCellName(len(columns), row)
		_ = w.file.SetCellStyle(w.sheet, start, end, style)
	}
	return nil
}

// WriteAppointments writes an xlsx workbook with one row per matching
// appointment and a per-status summary sheet. It returns the row count.
func WriteAppointments(ctx context.Context, src AppointmentLister, filter Filter, out io.Writer) (int, error) {
	list, err := src.ListAppointments(ctx)
	if err != nil {
		return 0, fmt.Errorf("list appointments: %w", err)
	}

	w := newSheetWriter()
	defer w.file.Close()

	if err := w.addSheet(appointmentsSheet); err != nil {
		return 0, err
	}
	if err := w.writeHeader(appointmentColumns); err != nil {
		return 0, err
	}

	counts := make(map[string]int)
	rows := 0
	for i := range list {
		a := &list[i]
		if !filter.Match(a) {
			continue
		}
		created := ""
		if !a.CreatedAt.IsZero() {
			created = a.CreatedAt.Format("02/01/2006 15:04")
		}
		err := w.writeRow([]interface{}{
			a.Number, a.PatientName, a.NationalID, a.ContactName, a.ContactPhone,
			a.Date, a.Time, models.StatusLabel(a.Status), a.Notes, created,
		})
		if err != nil {
			return 0, fmt.Errorf("write appointment %d: %w", a.Number, err)
		}
		counts[a.Status]++
		rows++
	}

	if err := w.addSheet(summarySheet); err != nil {
		return 0, err
	}
	if err := w.writeHeader([]string{"Estado", "Citas"}); err != nil {
		return 0, err
	}
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		if err := w.writeRow([]interface{}{models.StatusLabel(s), counts[s]}); err != nil {
			return 0, err
		}
	}
	if err := w.writeRow([]interface{}{"total", rows}); err != nil {
		return 0, err
	}

	if err := w.file.Write(out); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	return rows, nil
}
