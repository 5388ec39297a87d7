// Package database stores appointments in SQLite or PostgreSQL.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
	"github.com/superst1/chatbot-whatsapp-citas/internal/repository"
)

const tracerName = "citas.internal.database"

// Dialect selects placeholder style and DDL.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "postgres"
)

const (
	DefaultMaxOpenConns    = 10
	DefaultConnMaxLifetime = 5 * time.Minute
)

const appointmentColumns = `id, patient_name, national_id, contact_name, contact_phone, slot_date, slot_time, status, notes, created_at`

// inactive lists statuses that free their slot.
const inactive = `('cancelled', 'rescheduled')`

// Repository implements repository.Repository on database/sql. A partial
// unique index keeps at most one active appointment per (date, time).
type Repository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ repository.Repository = (*Repository)(nil)

// New wraps an open handle. Call Migrate before first use.
func New(db *sql.DB, dialect Dialect) *Repository {
	return &Repository{db: db, dialect: dialect, now: time.Now}
}

// OpenSQLite opens the database file at path and runs migrations.
func OpenSQLite(ctx context.Context, path string) (*Repository, error) {
	db, err := sql.Open(string(SQLite), path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer avoids SQLITE_BUSY under concurrent turns
	db.SetMaxOpenConns(1)
	return open(ctx, db, SQLite)
}

// OpenPostgres connects with dsn and runs migrations.
func OpenPostgres(ctx context.Context, dsn string) (*Repository, error) {
	db, err := sql.Open(string(Postgres), dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)
	return open(ctx, db, Postgres)
}

func open(ctx context.Context, db *sql.DB, dialect Dialect) (*Repository, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	r := New(db, dialect)
	if err := r.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) DB() *sql.DB { return r.db }

func (r *Repository) Close() error { return r.db.Close() }

func (r *Repository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// Migrate creates the appointments table and its indexes.
func (r *Repository) Migrate(ctx context.Context) error {
	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if r.dialect == Postgres {
		idColumn = "id BIGSERIAL PRIMARY KEY"
	}
	queries := []string{
		`CREATE TABLE IF NOT EXISTS appointments (
			` + idColumn + `,
			patient_name TEXT NOT NULL DEFAULT '',
			national_id TEXT NOT NULL DEFAULT '',
			contact_name TEXT NOT NULL DEFAULT '',
			contact_phone TEXT NOT NULL DEFAULT '',
			slot_date TEXT NOT NULL,
			slot_time TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_national_id ON appointments(national_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_appointments_active_slot ON appointments(slot_date, slot_time) WHERE status NOT IN ` + inactive,
	}
	for _, q := range queries {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// rebind rewrites ? placeholders to $n for Postgres.
func (r *Repository) rebind(q string) string {
	if r.dialect != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, c := range q {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *Repository) span(ctx context.Context, op string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "appointments."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.system", string(r.dialect))),
	)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func (r *Repository) AppendRecord(ctx context.Context, a *models.Appointment) (int64, error) {
	ctx, span := r.span(ctx, "append")
	defer span.End()

	rec := *a
	if rec.Status == "" {
		rec.Status = models.StatusPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now().UTC()
	}

	q := r.rebind(`INSERT INTO appointments
		(patient_name, national_id, contact_name, contact_phone, slot_date, slot_time, status, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	var id int64
	err := r.db.QueryRowContext(ctx, q,
		rec.PatientName, rec.NationalID, rec.ContactName, rec.ContactPhone,
		rec.Date, rec.Time, rec.Status, rec.Notes, rec.CreatedAt,
	).Scan(&id)
	if err != nil {
		span.RecordError(err)
		if isUniqueViolation(err) {
			return 0, repository.ErrSlotTaken
		}
		return 0, fmt.Errorf("insert appointment: %w", err)
	}

	a.Number, a.Status, a.CreatedAt = id, rec.Status, rec.CreatedAt
	return id, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (models.Appointment, error) {
	var a models.Appointment
	err := row.Scan(&a.Number, &a.PatientName, &a.NationalID, &a.ContactName, &a.ContactPhone,
		&a.Date, &a.Time, &a.Status, &a.Notes, &a.CreatedAt)
	return a, err
}

func (r *Repository) query(ctx context.Context, q string, args ...any) ([]models.Appointment, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()

	var out []models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate appointments: %w", err)
	}
	return out, nil
}

func (r *Repository) FindByNationalID(ctx context.Context, nationalID string) (*models.Appointment, error) {
	ctx, span := r.span(ctx, "find_by_national_id")
	defer span.End()

	list, err := r.query(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE national_id = ? ORDER BY id`, nationalID)
	if err != nil {
		return nil, err
	}
	a, ok := repository.PickLatest(list)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a, nil
}

func (r *Repository) FindByNumber(ctx context.Context, number int64) (*models.Appointment, error) {
	ctx, span := r.span(ctx, "find_by_number")
	defer span.End()

	row := r.db.QueryRowContext(ctx, r.rebind(`SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`), number)
	a, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find appointment %d: %w", number, err)
	}
	return &a, nil
}

func (r *Repository) UpdateStatusByNationalID(ctx context.Context, nationalID, status string) (*models.Appointment, error) {
	ctx, span := r.span(ctx, "update_status_by_national_id")
	defer span.End()

	var id int64
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT id FROM appointments
		WHERE national_id = ? AND status NOT IN `+inactive+` ORDER BY id DESC LIMIT 1`), nationalID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find active appointment: %w", err)
	}
	return r.setStatus(ctx, id, status)
}

func (r *Repository) UpdateStatusByNumber(ctx context.Context, number int64, status string) (*models.Appointment, error) {
	ctx, span := r.span(ctx, "update_status_by_number")
	defer span.End()

	return r.setStatus(ctx, number, status)
}

func (r *Repository) setStatus(ctx context.Context, id int64, status string) (*models.Appointment, error) {
	res, err := r.db.ExecContext(ctx, r.rebind(`UPDATE appointments SET status = ? WHERE id = ?`), status, id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrSlotTaken
		}
		return nil, fmt.Errorf("update appointment %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, repository.ErrNotFound
	}
	return r.FindByNumber(ctx, id)
}

func (r *Repository) ListBookedSlotsForDate(ctx context.Context, date string) ([]string, error) {
	ctx, span := r.span(ctx, "list_booked_slots")
	defer span.End()

	rows, err := r.db.QueryContext(ctx, r.rebind(`SELECT slot_time FROM appointments
		WHERE slot_date = ? AND status NOT IN `+inactive+` ORDER BY slot_time`), date)
	if err != nil {
		return nil, fmt.Errorf("query booked slots: %w", err)
	}
	defer rows.Close()

	var times []string
	for rows.Next() {
		var tm string
		if err := rows.Scan(&tm); err != nil {
			return nil, fmt.Errorf("scan booked slot: %w", err)
		}
		times = append(times, tm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate booked slots: %w", err)
	}
	return times, nil
}

func (r *Repository) ListAppointments(ctx context.Context) ([]models.Appointment, error) {
	ctx, span := r.span(ctx, "list")
	defer span.End()

	return r.query(ctx, `SELECT `+appointmentColumns+` FROM appointments ORDER BY id`)
}
