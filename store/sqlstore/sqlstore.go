/*
Package sqlstore provides a SQL-backed stock.TxStore.

PURPOSE:
  Persists users, medications and the stock history. The same schema and
  queries run on SQLite (mattn/go-sqlite3) and PostgreSQL (pgx stdlib);
  queries are written with "?" and rebound per driver by sqlx.

KEY TABLES:
  users:       owners and their dose-time preferences
  medications: dosing configuration, current stock, schedule pointers, version
  history:     append-only audit of every stock mutation

PORTABLE TYPES:
  Ids, decimals and timestamps are TEXT. Decimals keep exact half units;
  timestamps use stock.StorageLayout so text order is time order.

INDEXES:
  - idx_history_occurrence: unique (medication_id, action, occurrence_day)
    for automatic entries. A second deduction of the same occurrence fails
    here even if two processes race.
  - idx_history_medication_time: history listing (hot path for the UI)
  - idx_medications_user: per-user listing

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the history table
  - Rows leave only through ON DELETE CASCADE when a medication is deleted

CONCURRENCY:
  UpdateStock and UpdateMedication are compare-and-swap on version.
  SQLite runs on a single connection so every statement sees the same
  database (including ":memory:"). Inside WithTx only the tx handle is used.

USAGE:
  store, err := sqlstore.New("./data/tabletto.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on Open().

SEE ALSO:
  - stock/store.go: Interface definitions
  - stock/store/memory.go: In-memory implementation for testing
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/oliverbenduhn/tabletto/stock"
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// ErrUnsupported is returned for operations the current driver cannot do.
var ErrUnsupported = errors.New("operation not supported by this database driver")

type Options struct {
	Driver Driver
	// DSN is a file path (or ":memory:") for SQLite and a URL for PostgreSQL.
	DSN         string
	PingTimeout time.Duration
}

// Store implements stock.TxStore.
type Store struct {
	queries
	db     *sqlx.DB
	driver Driver
}

// New opens a SQLite store. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	return Open(context.Background(), Options{Driver: DriverSQLite, DSN: dbPath})
}

// Open connects, pings and migrates.
func Open(ctx context.Context, opts Options) (*Store, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch opts.Driver {
	case DriverSQLite, "":
		opts.Driver = DriverSQLite
		db, err = sqlx.Open("sqlite3", opts.DSN+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
		if err == nil {
			db.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		db, err = sqlx.Open("pgx", opts.DSN)
		if err == nil {
			db.SetMaxOpenConns(10)
			db.SetMaxIdleConns(5)
			db.SetConnMaxIdleTime(5 * time.Minute)
			db.SetConnMaxLifetime(30 * time.Minute)
		}
	default:
		return nil, fmt.Errorf("unknown database driver %q", opts.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{queries: queries{q: db}, db: db, driver: opts.Driver}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Driver() Driver {
	return s.driver
}

// migrate creates the database schema.
func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		dose_time_morning TEXT NOT NULL DEFAULT '08:00',
		dose_time_noon TEXT NOT NULL DEFAULT '12:00',
		dose_time_evening TEXT NOT NULL DEFAULT '20:00',
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS medications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		dosage_morning TEXT NOT NULL DEFAULT '0',
		dosage_noon TEXT NOT NULL DEFAULT '0',
		dosage_evening TEXT NOT NULL DEFAULT '0',
		interval_days INTEGER NOT NULL DEFAULT 1,
		dosage_per_interval TEXT NOT NULL DEFAULT '0',
		tablets_per_package TEXT NOT NULL,
		current_stock TEXT NOT NULL DEFAULT '0',
		warning_threshold_days INTEGER NOT NULL DEFAULT 7,
		last_stock_measured_at TEXT,
		next_due_at TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_medications_user
		ON medications(user_id)`,
	`CREATE TABLE IF NOT EXISTS history (
		id TEXT PRIMARY KEY,
		medication_id TEXT NOT NULL REFERENCES medications(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		old_stock TEXT NOT NULL,
		new_stock TEXT NOT NULL,
		created_at TEXT NOT NULL,
		occurrence_day TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_medication_time
		ON history(medication_id, created_at DESC)`,
	// An automatic deduction is recorded at most once per occurrence.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_history_occurrence
		ON history(medication_id, action, occurrence_day)
		WHERE occurrence_day IS NOT NULL`,
}

// =============================================================================
// TRANSACTIONAL STORE (stock.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(stock.Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// Snapshot writes a consistent copy of a SQLite database to dest.
func (s *Store) Snapshot(ctx context.Context, dest string) error {
	if s.driver != DriverSQLite {
		return ErrUnsupported
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}

// =============================================================================
// QUERIES - shared by the store and its transactions
// =============================================================================

type queries struct {
	q sqlx.ExtContext
}

func (qs *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return qs.q.ExecContext(ctx, qs.q.Rebind(query), args...)
}

func (qs *queries) get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, qs.q, dest, qs.q.Rebind(query), args...)
}

func (qs *queries) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, qs.q, dest, qs.q.Rebind(query), args...)
}

// ---- users ----

type userRow struct {
	ID              string          `db:"id"`
	Email           string          `db:"email"`
	DoseTimeMorning string          `db:"dose_time_morning"`
	DoseTimeNoon    string          `db:"dose_time_noon"`
	DoseTimeEvening string          `db:"dose_time_evening"`
	CreatedAt       stock.Timestamp `db:"created_at"`
}

func (r userRow) toUser() stock.User {
	return stock.User{
		ID:    stock.UserID(r.ID),
		Email: r.Email,
		DoseTimes: stock.DoseTimes{
			Morning: r.DoseTimeMorning,
			Noon:    r.DoseTimeNoon,
			Evening: r.DoseTimeEvening,
		},
		CreatedAt: r.CreatedAt.Time,
	}
}

func (qs *queries) CreateUser(ctx context.Context, u *stock.User) error {
	_, err := qs.exec(ctx, `
		INSERT INTO users (id, email, dose_time_morning, dose_time_noon, dose_time_evening, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(u.ID), u.Email, u.DoseTimes.Morning, u.DoseTimes.Noon, u.DoseTimes.Evening,
		stock.FormatTime(u.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &stock.ValidationError{Field: "email", Message: "is already registered"}
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (qs *queries) GetUser(ctx context.Context, id stock.UserID) (*stock.User, error) {
	var row userRow
	err := qs.get(ctx, &row, `
		SELECT id, email, dose_time_morning, dose_time_noon, dose_time_evening, created_at
		FROM users WHERE id = ?`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, stock.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u := row.toUser()
	return &u, nil
}

func (qs *queries) UpdateDoseTimes(ctx context.Context, id stock.UserID, times stock.DoseTimes) error {
	res, err := qs.exec(ctx, `
		UPDATE users SET dose_time_morning = ?, dose_time_noon = ?, dose_time_evening = ?
		WHERE id = ?`,
		times.Morning, times.Noon, times.Evening, string(id),
	)
	if err != nil {
		return fmt.Errorf("failed to update dose times: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return stock.ErrUserNotFound
	}
	return nil
}

// ---- medications ----

const medicationColumns = `
	m.id, m.user_id, m.name, m.dosage_morning, m.dosage_noon, m.dosage_evening,
	m.interval_days, m.dosage_per_interval, m.tablets_per_package, m.current_stock,
	m.warning_threshold_days, m.last_stock_measured_at, m.next_due_at,
	m.version, m.created_at, m.updated_at`

type medicationRow struct {
	ID                   string          `db:"id"`
	UserID               string          `db:"user_id"`
	Name                 string          `db:"name"`
	DosageMorning        decimal.Decimal `db:"dosage_morning"`
	DosageNoon           decimal.Decimal `db:"dosage_noon"`
	DosageEvening        decimal.Decimal `db:"dosage_evening"`
	IntervalDays         int             `db:"interval_days"`
	DosagePerInterval    decimal.Decimal `db:"dosage_per_interval"`
	TabletsPerPackage    decimal.Decimal `db:"tablets_per_package"`
	CurrentStock         decimal.Decimal `db:"current_stock"`
	WarningThresholdDays int             `db:"warning_threshold_days"`
	LastStockMeasuredAt  stock.Timestamp `db:"last_stock_measured_at"`
	NextDueAt            stock.Timestamp `db:"next_due_at"`
	Version              int64           `db:"version"`
	CreatedAt            stock.Timestamp `db:"created_at"`
	UpdatedAt            stock.Timestamp `db:"updated_at"`
}

func (r medicationRow) toMedication() stock.Medication {
	return stock.Medication{
		ID:     stock.MedicationID(r.ID),
		UserID: stock.UserID(r.UserID),
		Name:   r.Name,
		Dosage: stock.Dosage{
			Morning: r.DosageMorning,
			Noon:    r.DosageNoon,
			Evening: r.DosageEvening,
		},
		IntervalDays:         r.IntervalDays,
		DosagePerInterval:    r.DosagePerInterval,
		TabletsPerPackage:    r.TabletsPerPackage,
		CurrentStock:         r.CurrentStock,
		WarningThresholdDays: r.WarningThresholdDays,
		LastStockMeasuredAt:  r.LastStockMeasuredAt,
		NextDueAt:            r.NextDueAt,
		Version:              r.Version,
		CreatedAt:            r.CreatedAt.Time,
		UpdatedAt:            r.UpdatedAt.Time,
	}
}

func (qs *queries) CreateMedication(ctx context.Context, m *stock.Medication) error {
	if m.Version == 0 {
		m.Version = 1
	}
	_, err := qs.exec(ctx, `
		INSERT INTO medications (
			id, user_id, name, dosage_morning, dosage_noon, dosage_evening,
			interval_days, dosage_per_interval, tablets_per_package, current_stock,
			warning_threshold_days, last_stock_measured_at, next_due_at,
			version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(m.ID), string(m.UserID), m.Name,
		m.Dosage.Morning.String(), m.Dosage.Noon.String(), m.Dosage.Evening.String(),
		m.IntervalDays, m.DosagePerInterval.String(), m.TabletsPerPackage.String(), m.CurrentStock.String(),
		m.WarningThresholdDays, m.LastStockMeasuredAt, m.NextDueAt,
		m.Version, stock.FormatTime(m.CreatedAt), stock.FormatTime(m.UpdatedAt),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return stock.ErrUserNotFound
		}
		return fmt.Errorf("failed to insert medication: %w", err)
	}
	return nil
}

func (qs *queries) GetMedication(ctx context.Context, userID stock.UserID, id stock.MedicationID) (*stock.Medication, error) {
	var row medicationRow
	err := qs.get(ctx, &row, `SELECT `+medicationColumns+`
		FROM medications m WHERE m.id = ? AND m.user_id = ?`, string(id), string(userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, stock.ErrMedicationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get medication: %w", err)
	}
	m := row.toMedication()
	return &m, nil
}

func (qs *queries) ListMedications(ctx context.Context, userID stock.UserID) ([]stock.Medication, error) {
	var rows []medicationRow
	if err := qs.selectAll(ctx, &rows, `SELECT `+medicationColumns+`
		FROM medications m WHERE m.user_id = ?
		ORDER BY m.created_at ASC, m.id ASC`, string(userID)); err != nil {
		return nil, fmt.Errorf("failed to list medications: %w", err)
	}
	out := make([]stock.Medication, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toMedication())
	}
	return out, nil
}

func (qs *queries) UpdateMedication(ctx context.Context, m *stock.Medication) error {
	res, err := qs.exec(ctx, `
		UPDATE medications SET
			name = ?, dosage_morning = ?, dosage_noon = ?, dosage_evening = ?,
			interval_days = ?, dosage_per_interval = ?, tablets_per_package = ?,
			current_stock = ?, warning_threshold_days = ?,
			last_stock_measured_at = ?, next_due_at = ?, updated_at = ?,
			version = version + 1
		WHERE id = ? AND user_id = ? AND version = ?`,
		m.Name, m.Dosage.Morning.String(), m.Dosage.Noon.String(), m.Dosage.Evening.String(),
		m.IntervalDays, m.DosagePerInterval.String(), m.TabletsPerPackage.String(),
		m.CurrentStock.String(), m.WarningThresholdDays,
		m.LastStockMeasuredAt, m.NextDueAt, stock.FormatTime(m.UpdatedAt),
		string(m.ID), string(m.UserID), m.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update medication: %w", err)
	}
	if err := qs.casResult(ctx, res, m.ID); err != nil {
		return err
	}
	m.Version++
	return nil
}

func (qs *queries) DeleteMedication(ctx context.Context, userID stock.UserID, id stock.MedicationID) error {
	res, err := qs.exec(ctx, `DELETE FROM medications WHERE id = ? AND user_id = ?`, string(id), string(userID))
	if err != nil {
		return fmt.Errorf("failed to delete medication: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return stock.ErrMedicationNotFound
	}
	return nil
}

type candidateRow struct {
	medicationRow
	UserEmail           string          `db:"user_email"`
	UserDoseTimeMorning string          `db:"user_dose_time_morning"`
	UserDoseTimeNoon    string          `db:"user_dose_time_noon"`
	UserDoseTimeEvening string          `db:"user_dose_time_evening"`
	UserCreatedAt       stock.Timestamp `db:"user_created_at"`
}

type occurrenceRow struct {
	MedicationID string `db:"medication_id"`
	Action       string `db:"action"`
	Day          string `db:"last_day"`
}

// ListCandidates loads every medication with its owner and the latest
// occurrence day per automatic action in two queries.
func (qs *queries) ListCandidates(ctx context.Context) ([]stock.Candidate, error) {
	var rows []candidateRow
	if err := qs.selectAll(ctx, &rows, `SELECT `+medicationColumns+`,
			u.email AS user_email,
			u.dose_time_morning AS user_dose_time_morning,
			u.dose_time_noon AS user_dose_time_noon,
			u.dose_time_evening AS user_dose_time_evening,
			u.created_at AS user_created_at
		FROM medications m
		JOIN users u ON u.id = m.user_id
		ORDER BY m.created_at ASC, m.id ASC`); err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}

	var occ []occurrenceRow
	if err := qs.selectAll(ctx, &occ, `
		SELECT medication_id, action, MAX(occurrence_day) AS last_day
		FROM history
		WHERE occurrence_day IS NOT NULL
		GROUP BY medication_id, action`); err != nil {
		return nil, fmt.Errorf("failed to load occurrences: %w", err)
	}
	last := make(map[stock.MedicationID]map[stock.Action]string)
	for _, o := range occ {
		id := stock.MedicationID(o.MedicationID)
		if last[id] == nil {
			last[id] = make(map[stock.Action]string)
		}
		last[id][stock.Action(o.Action)] = o.Day
	}

	out := make([]stock.Candidate, 0, len(rows))
	for _, r := range rows {
		m := r.toMedication()
		out = append(out, stock.Candidate{
			Medication: m,
			User: userRow{
				ID:              r.UserID,
				Email:           r.UserEmail,
				DoseTimeMorning: r.UserDoseTimeMorning,
				DoseTimeNoon:    r.UserDoseTimeNoon,
				DoseTimeEvening: r.UserDoseTimeEvening,
				CreatedAt:       r.UserCreatedAt,
			}.toUser(),
			LastDeductions: last[m.ID],
		})
	}
	return out, nil
}

// ListNegativeStock relies on decimals being stored as text: negatives and
// only negatives start with '-'.
func (qs *queries) ListNegativeStock(ctx context.Context) ([]stock.Medication, error) {
	var rows []medicationRow
	if err := qs.selectAll(ctx, &rows, `SELECT `+medicationColumns+`
		FROM medications m WHERE m.current_stock LIKE '-%'
		ORDER BY m.id ASC`); err != nil {
		return nil, fmt.Errorf("failed to list negative stock: %w", err)
	}
	out := make([]stock.Medication, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toMedication())
	}
	return out, nil
}

func (qs *queries) UpdateStock(ctx context.Context, u stock.StockUpdate) error {
	var next, measured any
	if u.NextDueAt != nil {
		next = stock.FormatTime(*u.NextDueAt)
	}
	if !u.KeepMeasuredAt {
		measured = stock.FormatTime(u.MeasuredAt)
	}
	res, err := qs.exec(ctx, `
		UPDATE medications SET
			current_stock = ?,
			last_stock_measured_at = COALESCE(?, last_stock_measured_at),
			next_due_at = COALESCE(?, next_due_at),
			updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		u.Stock.String(), measured, next, stock.FormatTime(u.MeasuredAt),
		string(u.MedicationID), u.ExpectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	return qs.casResult(ctx, res, u.MedicationID)
}

// casResult tells a lost version race apart from a missing row.
func (qs *queries) casResult(ctx context.Context, res sql.Result, id stock.MedicationID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}
	var count int
	if err := qs.get(ctx, &count, `SELECT COUNT(*) FROM medications WHERE id = ?`, string(id)); err != nil {
		return fmt.Errorf("failed to check medication: %w", err)
	}
	if count == 0 {
		return stock.ErrMedicationNotFound
	}
	return stock.ErrConcurrentModification
}

// ---- history ----

type historyRow struct {
	ID            string          `db:"id"`
	MedicationID  string          `db:"medication_id"`
	UserID        string          `db:"user_id"`
	Action        string          `db:"action"`
	OldStock      decimal.Decimal `db:"old_stock"`
	NewStock      decimal.Decimal `db:"new_stock"`
	CreatedAt     stock.Timestamp `db:"created_at"`
	OccurrenceDay sql.NullString  `db:"occurrence_day"`
}

func (qs *queries) AppendHistory(ctx context.Context, e stock.HistoryEntry) error {
	_, err := qs.exec(ctx, `
		INSERT INTO history (id, medication_id, user_id, action, old_stock, new_stock, created_at, occurrence_day)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.ID), string(e.MedicationID), string(e.UserID), string(e.Action),
		e.OldStock.String(), e.NewStock.String(), stock.FormatTime(e.Timestamp),
		nullString(e.OccurrenceDay),
	)
	if err != nil {
		if isUniqueConstraintError(err) && isOccurrenceError(err) {
			return stock.ErrDuplicateDeduction
		}
		if isForeignKeyError(err) {
			return stock.ErrMedicationNotFound
		}
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (qs *queries) ListHistory(ctx context.Context, medID stock.MedicationID, userID stock.UserID, limit int) ([]stock.HistoryEntry, error) {
	if limit <= 0 {
		limit = stock.MaxHistoryLimit
	}
	var rows []historyRow
	if err := qs.selectAll(ctx, &rows, `
		SELECT id, medication_id, user_id, action, old_stock, new_stock, created_at, occurrence_day
		FROM history
		WHERE medication_id = ? AND user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, string(medID), string(userID), limit); err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	out := make([]stock.HistoryEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, stock.HistoryEntry{
			ID:            stock.HistoryID(r.ID),
			MedicationID:  stock.MedicationID(r.MedicationID),
			UserID:        stock.UserID(r.UserID),
			Action:        stock.Action(r.Action),
			OldStock:      r.OldStock,
			NewStock:      r.NewStock,
			Timestamp:     r.CreatedAt.Time,
			OccurrenceDay: r.OccurrenceDay.String,
		})
	}
	return out, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

// isOccurrenceError matches SQLite ("history.occurrence_day") and
// PostgreSQL ("idx_history_occurrence") messages.
func isOccurrenceError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "occurrence")
}

func isForeignKeyError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "FOREIGN KEY constraint failed") ||
		strings.Contains(err.Error(), "violates foreign key constraint"))
}

// Compile-time interface check.
var (
	_ stock.TxStore = (*Store)(nil)
	_ stock.Store   = (*queries)(nil)
)
