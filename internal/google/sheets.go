// Package google stores appointments in a Google Sheets spreadsheet.
// Each appointment is one row; its row number is the appointment number.
package google

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
	"github.com/superst1/chatbot-whatsapp-citas/internal/repository"
)

// DefaultSheetName is the tab appointments are written to.
const DefaultSheetName = "CITAS"

// Column layout of the appointments tab, A through I.
const (
	colPatientName = iota
	colNationalID
	colContactName
	colContactPhone
	colDate
	colTime
	colStatus
	colNotes
	colCreatedAt
	columnCount
)

const (
	lastColumn      = "I"
	statusColumn    = "G"
	createdAtLayout = time.RFC3339
)

var rowNumberRe = regexp.MustCompile(`(\d+)$`)

// DecodeCredentials decodes a base64 encoded service account JSON.
func DecodeCredentials(b64 string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, fmt.Errorf("decode google credentials: %w", err)
	}
	return raw, nil
}

// NewService builds a Sheets client authenticated as the service account.
func NewService(ctx context.Context, credentialsJSON []byte) (*sheets.Service, error) {
	conf, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account: %w", err)
	}
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return srv, nil
}

// SheetsRepository implements repository.Repository on one spreadsheet tab.
// The tab has no uniqueness constraint; slot exclusivity relies on the
// reservation guard re-reading the tab before every append.
type SheetsRepository struct {
	service       *sheets.Service
	spreadsheetID string
	sheet         string
	skipHeader    bool
	now           func() time.Time
}

var _ repository.Repository = (*SheetsRepository)(nil)

// NewSheetsRepository wraps a Sheets service. The first row is treated as a
// header when skipHeader is set.
func NewSheetsRepository(service *sheets.Service, spreadsheetID, sheet string, skipHeader bool) *SheetsRepository {
	if sheet == "" {
		sheet = DefaultSheetName
	}
	return &SheetsRepository{
		service:       service,
		spreadsheetID: spreadsheetID,
		sheet:         sheet,
		skipHeader:    skipHeader,
		now:           time.Now,
	}
}

func (s *SheetsRepository) fullRange() string {
	return fmt.Sprintf("%s!A:%s", s.sheet, lastColumn)
}

func (s *SheetsRepository) rowRange(row int64) string {
	return fmt.Sprintf("%s!A%d:%s%d", s.sheet, row, lastColumn, row)
}

// AppendRecord appends a row. Values are written RAW so dates stay text
// instead of being converted to spreadsheet serials.
func (s *SheetsRepository) AppendRecord(ctx context.Context, a *models.Appointment) (int64, error) {
	rec := *a
	if rec.Status == "" {
		rec.Status = models.StatusPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	vr := &sheets.ValueRange{Values: [][]interface{}{appointmentRowValues(&rec)}}
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.fullRange(), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("append appointment row: %w", err)
	}
	if resp.Updates == nil {
		return 0, errors.New("append appointment row: response without updates")
	}
	number, err := rowFromRange(resp.Updates.UpdatedRange)
	if err != nil {
		return 0, err
	}

	a.Number, a.Status, a.CreatedAt = number, rec.Status, rec.CreatedAt
	return number, nil
}

func (s *SheetsRepository) FindByNationalID(ctx context.Context, nationalID string) (*models.Appointment, error) {
	rows, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	var matches []models.Appointment
	for _, a := range rows {
		if a.NationalID == nationalID {
			matches = append(matches, a)
		}
	}
	if a, ok := repository.PickLatest(matches); ok {
		return a, nil
	}
	return nil, repository.ErrNotFound
}

func (s *SheetsRepository) FindByNumber(ctx context.Context, number int64) (*models.Appointment, error) {
	if number <= 0 || (s.skipHeader && number == 1) {
		return nil, repository.ErrNotFound
	}
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rowRange(number)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read appointment row %d: %w", number, err)
	}
	if len(resp.Values) == 0 {
		return nil, repository.ErrNotFound
	}
	a, ok := rowToAppointment(resp.Values[0], number)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (s *SheetsRepository) UpdateStatusByNationalID(ctx context.Context, nationalID, status string) (*models.Appointment, error) {
	rows, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].NationalID == nationalID && rows[i].IsActive() {
			a := rows[i]
			if err := s.writeStatus(ctx, a.Number, status); err != nil {
				return nil, err
			}
			a.Status = status
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *SheetsRepository) UpdateStatusByNumber(ctx context.Context, number int64, status string) (*models.Appointment, error) {
	a, err := s.FindByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if models.Reactivates(a.Status, status) {
		booked, err := s.ListBookedSlotsForDate(ctx, a.Date)
		if err != nil {
			return nil, err
		}
		for _, tm := range booked {
			if tm == a.Time {
				return nil, repository.ErrSlotTaken
			}
		}
	}
	if err := s.writeStatus(ctx, number, status); err != nil {
		return nil, err
	}
	a.Status = status
	return a, nil
}

func (s *SheetsRepository) writeStatus(ctx context.Context, row int64, status string) error {
	cell := fmt.Sprintf("%s!%s%d", s.sheet, statusColumn, row)
	vr := &sheets.ValueRange{Values: [][]interface{}{{models.StatusLabel(status)}}}
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, cell, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update status cell %s: %w", cell, err)
	}
	return nil
}

func (s *SheetsRepository) ListBookedSlotsForDate(ctx context.Context, date string) ([]string, error) {
	rows, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	var times []string
	for _, a := range rows {
		if a.Date == date && a.Time != "" && a.IsActive() {
			times = append(times, a.Time)
		}
	}
	sort.Strings(times)
	return times, nil
}

func (s *SheetsRepository) ListAppointments(ctx context.Context) ([]models.Appointment, error) {
	return s.readAll(ctx)
}

func (s *SheetsRepository) readAll(ctx context.Context) ([]models.Appointment, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.fullRange()).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read appointments: %w", err)
	}
	out := make([]models.Appointment, 0, len(resp.Values))
	for i, row := range resp.Values {
		if i == 0 && s.skipHeader {
			continue
		}
		if a, ok := rowToAppointment(row, int64(i+1)); ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func appointmentRowValues(a *models.Appointment) []interface{} {
	row := make([]interface{}, columnCount)
	row[colPatientName] = a.PatientName
	row[colNationalID] = a.NationalID
	row[colContactName] = a.ContactName
	row[colContactPhone] = a.ContactPhone
	row[colDate] = a.Date
	row[colTime] = a.Time
	row[colStatus] = models.StatusLabel(a.Status)
	row[colNotes] = a.Notes
	row[colCreatedAt] = a.CreatedAt.UTC().Format(createdAtLayout)
	return row
}

// rowToAppointment maps a sheet row. Rows edited by hand may be short or
// blank; blank rows are skipped.
func rowToAppointment(row []interface{}, number int64) (models.Appointment, bool) {
	cell := func(i int) string {
		if i >= len(row) || row[i] == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(row[i]))
	}
	a := models.Appointment{
		Number:       number,
		PatientName:  cell(colPatientName),
		NationalID:   cell(colNationalID),
		ContactName:  cell(colContactName),
		ContactPhone: cell(colContactPhone),
		Date:         cell(colDate),
		Time:         cell(colTime),
		Notes:        cell(colNotes),
	}
	if a.PatientName == "" && a.NationalID == "" && a.Date == "" {
		return models.Appointment{}, false
	}
	a.Status = models.StatusPending
	if raw := cell(colStatus); raw != "" {
		if st, ok := models.ParseStatus(raw); ok {
			a.Status = st
		} else {
			a.Status = strings.ToLower(raw)
		}
	}
	if t, err := time.Parse(createdAtLayout, cell(colCreatedAt)); err == nil {
		a.CreatedAt = t
	}
	return a, true
}

// rowFromRange extracts the last row number of an A1 range like "CITAS!A5:I5".
func rowFromRange(a1 string) (int64, error) {
	m := rowNumberRe.FindStringSubmatch(a1)
	if m == nil {
		return 0, fmt.Errorf("no row number in range %q", a1)
	}
	return strconv.ParseInt(m[1], 10, 64)
}
