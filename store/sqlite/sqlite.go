/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements gatepass.RequestStore and gatepass.Directory plus the user
  persistence the auth boundary needs. In production the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

CONDITIONAL UPDATE ENFORCEMENT:
  Every status or gate mutation runs as a single

      UPDATE requests SET ... WHERE id = ? AND <observed precondition>

  and checks rows-affected. Zero rows with an existing id means another
  actor won the race; the store reports ErrConcurrentModification and the
  caller's decision is discarded. No mutation ever runs unconditionally,
  and nothing deletes request rows.

KEY TABLES:
  requests:  gate-pass requests, one row per request, status + gate marks
  users:     identity directory (role, designation, department, credentials)

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block and a single writer at a time is exactly the
  write model the workflow needs.

USAGE:
  store, err := sqlite.New("./data/gatepass.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := gatepass.NewService(store, store, quota)

SEE ALSO:
  - gatepass/store.go: interface contracts
  - gatepass/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/campusgate/gatepass-engine/gatepass"
)

// Store implements the request store and identity directory using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time keeps the conditional updates race-free even
	// without SQLite's busy-retry dance.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		faculty_id TEXT NOT NULL,
		faculty_email TEXT NOT NULL,
		date TEXT NOT NULL,
		time_in TEXT NOT NULL,
		time_out TEXT NOT NULL,
		purpose TEXT NOT NULL,
		reason TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		status_detail TEXT NOT NULL DEFAULT '',
		hod_status TEXT NOT NULL DEFAULT 'pending',
		registrar_status TEXT NOT NULL DEFAULT 'pending',
		allowed INTEGER NOT NULL DEFAULT 0,
		allowed_by TEXT,
		allowed_at TEXT,
		returned INTEGER NOT NULL DEFAULT 0,
		returned_by TEXT,
		returned_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_faculty
		ON requests(faculty_id);
	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON requests(status);
	CREATE INDEX IF NOT EXISTS idx_requests_date
		ON requests(date);
	-- Quota check hot path: personal requests by faculty and month prefix
	CREATE INDEX IF NOT EXISTS idx_requests_faculty_purpose_date
		ON requests(faculty_id, purpose, date);
	CREATE INDEX IF NOT EXISTS idx_requests_allowed
		ON requests(allowed) WHERE allowed = 1;

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		employee_id TEXT,
		designation TEXT,
		department TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_role
		ON users(role);
	CREATE INDEX IF NOT EXISTS idx_users_department
		ON users(department);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_employee_id
		ON users(employee_id) WHERE employee_id IS NOT NULL AND employee_id != '';
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// REQUEST STORE (gatepass.RequestStore interface)
// =============================================================================

const requestColumns = `id, faculty_id, faculty_email, date, time_in, time_out,
	purpose, reason, status, status_detail, hod_status, registrar_status,
	allowed, allowed_by, allowed_at, returned, returned_by, returned_at,
	created_at, updated_at`

// Insert persists a new request, assigning the timestamps.
func (s *Store) Insert(ctx context.Context, r *gatepass.LeaveRequest) error {
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requests
		(id, faculty_id, faculty_email, date, time_in, time_out, purpose, reason,
		 status, status_detail, hod_status, registrar_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.FacultyID, r.FacultyEmail, r.Date, r.TimeIn, r.TimeOut,
		r.Purpose, r.Reason, r.Status, r.StatusDetail, r.HODStatus,
		r.RegistrarStatus, now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}

	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

// Get returns a request by id.
func (s *Store) Get(ctx context.Context, id gatepass.RequestID) (*gatepass.LeaveRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)

	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gatepass.ErrNotFound
	}
	return r, err
}

// List returns requests matching the filter, newest first.
func (s *Store) List(ctx context.Context, f gatepass.RequestFilter) ([]*gatepass.LeaveRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM requests`
	var conds []string
	var args []any

	if f.AllowedOnly {
		conds = append(conds, "allowed = 1")
	}
	if f.Date != "" {
		conds = append(conds, "date = ?")
		args = append(args, f.Date)
	}
	if len(f.FacultyIDs) > 0 {
		conds = append(conds, "faculty_id IN ("+placeholders(len(f.FacultyIDs))+")")
		for _, id := range f.FacultyIDs {
			args = append(args, id)
		}
	}
	if len(f.Statuses) > 0 {
		conds = append(conds, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, st := range f.Statuses {
			args = append(args, st)
		}
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if f.AllowedOnly {
		query += " ORDER BY allowed_at DESC"
	} else {
		query += " ORDER BY created_at DESC"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var out []*gatepass.LeaveRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountPersonal counts Personal-purpose requests in the given month.
func (s *Store) CountPersonal(ctx context.Context, facultyID gatepass.UserID, yearMonth string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM requests
		WHERE faculty_id = ? AND purpose = ? AND date LIKE ?`,
		facultyID, gatepass.PurposePersonal, yearMonth+"-%",
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count personal requests: %w", err)
	}
	return count, nil
}

// UpdateStatus applies a transition iff the row still holds the expected
// from-status.
func (s *Store) UpdateStatus(ctx context.Context, id gatepass.RequestID, from gatepass.Status, upd gatepass.StatusUpdate) (*gatepass.LeaveRequest, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE requests
		SET status = ?, status_detail = ?, hod_status = ?, registrar_status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		upd.Status, upd.StatusDetail, upd.HODStatus, upd.RegistrarStatus,
		time.Now().UTC().Format(time.RFC3339), id, from,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	return s.afterConditional(ctx, id, res)
}

// MarkAllowed sets the allowed flag iff still unset; a non-nil upd also
// moves a still-pending status to the emergency state.
func (s *Store) MarkAllowed(ctx context.Context, id gatepass.RequestID, mark gatepass.GateMark, upd *gatepass.StatusUpdate) (*gatepass.LeaveRequest, error) {
	at := mark.At.UTC().Format(time.RFC3339)
	now := time.Now().UTC().Format(time.RFC3339)

	var res sql.Result
	var err error
	if upd != nil {
		res, err = s.db.ExecContext(ctx, `
			UPDATE requests
			SET allowed = 1, allowed_by = ?, allowed_at = ?,
			    status = ?, status_detail = ?, hod_status = ?, registrar_status = ?,
			    updated_at = ?
			WHERE id = ? AND allowed = 0 AND status = ?`,
			mark.By, at, upd.Status, upd.StatusDetail, upd.HODStatus,
			upd.RegistrarStatus, now, id, gatepass.StatusPending,
		)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE requests
			SET allowed = 1, allowed_by = ?, allowed_at = ?, updated_at = ?
			WHERE id = ? AND allowed = 0`,
			mark.By, at, now, id,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark allowed: %w", err)
	}
	return s.afterConditional(ctx, id, res)
}

// MarkReturned sets the returned flag iff the request went out and has not
// returned yet.
func (s *Store) MarkReturned(ctx context.Context, id gatepass.RequestID, mark gatepass.GateMark) (*gatepass.LeaveRequest, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE requests
		SET returned = 1, returned_by = ?, returned_at = ?, updated_at = ?
		WHERE id = ? AND allowed = 1 AND returned = 0`,
		mark.By, mark.At.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark returned: %w", err)
	}
	return s.afterConditional(ctx, id, res)
}

// afterConditional turns a conditional UPDATE result into the updated record,
// ErrNotFound, or ErrConcurrentModification.
func (s *Store) afterConditional(ctx context.Context, id gatepass.RequestID, res sql.Result) (*gatepass.LeaveRequest, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if _, err := s.Get(ctx, id); errors.Is(err, gatepass.ErrNotFound) {
			return nil, gatepass.ErrNotFound
		}
		return nil, gatepass.ErrConcurrentModification
	}
	return s.Get(ctx, id)
}

// =============================================================================
// IDENTITY DIRECTORY (gatepass.Directory interface)
// =============================================================================

const userColumns = `id, name, email, password_hash, role, employee_id, designation, department, created_at`

// User returns a directory record by id.
func (s *Store) User(ctx context.Context, id gatepass.UserID) (*gatepass.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gatepass.ErrNotFound
	}
	return u, err
}

// UserByEmail returns a directory record by email.
func (s *Store) UserByEmail(ctx context.Context, email string) (*gatepass.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gatepass.ErrNotFound
	}
	return u, err
}

// UsersByDepartment returns all users of a department.
func (s *Store) UsersByDepartment(ctx context.Context, department string) ([]*gatepass.User, error) {
	return s.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users WHERE department = ?`, department)
}

// EscalatedUsers returns HOD-designated faculty and admin accounts.
func (s *Store) EscalatedUsers(ctx context.Context) ([]*gatepass.User, error) {
	return s.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users WHERE designation = ? OR role = ?`,
		gatepass.DesignationHOD, gatepass.RoleAdmin)
}

// UsersByRole returns all users holding a role. The auth layer uses this to
// enforce the single-principal and single-registrar rules.
func (s *Store) UsersByRole(ctx context.Context, role gatepass.Role) ([]*gatepass.User, error) {
	return s.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users WHERE role = ?`, role)
}

// AdminInDepartment returns the department's admin account, if any.
func (s *Store) AdminInDepartment(ctx context.Context, department string) (*gatepass.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE role = ? AND department = ?`,
		gatepass.RoleAdmin, department)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gatepass.ErrNotFound
	}
	return u, err
}

// HODInDepartment returns the department's HOD-designated faculty, if any.
func (s *Store) HODInDepartment(ctx context.Context, department string) (*gatepass.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE role = ? AND designation = ? AND department = ?`,
		gatepass.RoleFaculty, gatepass.DesignationHOD, department)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gatepass.ErrNotFound
	}
	return u, err
}

// SaveUser inserts a new user.
func (s *Store) SaveUser(ctx context.Context, u *gatepass.User) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users
		(id, name, email, password_hash, role, employee_id, designation, department, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role,
		u.EmployeeID, u.Designation, u.Department, now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: email or employee id already registered", gatepass.ErrValidation)
		}
		return fmt.Errorf("failed to save user: %w", err)
	}
	u.CreatedAt = now
	return nil
}

// UpdatePassword replaces a user's password hash.
func (s *Store) UpdatePassword(ctx context.Context, id gatepass.UserID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return gatepass.ErrNotFound
	}
	return nil
}

func (s *Store) queryUsers(ctx context.Context, query string, args ...any) ([]*gatepass.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var out []*gatepass.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// =============================================================================
// SCANNING HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*gatepass.LeaveRequest, error) {
	var r gatepass.LeaveRequest
	var allowed, returned int
	var allowedBy, allowedAt, returnedBy, returnedAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&r.ID, &r.FacultyID, &r.FacultyEmail, &r.Date, &r.TimeIn, &r.TimeOut,
		&r.Purpose, &r.Reason, &r.Status, &r.StatusDetail, &r.HODStatus,
		&r.RegistrarStatus, &allowed, &allowedBy, &allowedAt, &returned,
		&returnedBy, &returnedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Allowed = allowed != 0
	r.Returned = returned != 0
	if allowedBy.Valid {
		id := gatepass.UserID(allowedBy.String)
		r.AllowedBy = &id
	}
	if t, ok := parseTime(allowedAt); ok {
		r.AllowedAt = &t
	}
	if returnedBy.Valid {
		id := gatepass.UserID(returnedBy.String)
		r.ReturnedBy = &id
	}
	if t, ok := parseTime(returnedAt); ok {
		r.ReturnedAt = &t
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &r, nil
}

func scanUser(row scanner) (*gatepass.User, error) {
	var u gatepass.User
	var employeeID, designation, department sql.NullString
	var createdAt string

	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role,
		&employeeID, &designation, &department, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	u.EmployeeID = employeeID.String
	u.Designation = gatepass.Designation(designation.String)
	u.Department = department.String
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

func parseTime(v sql.NullString) (time.Time, bool) {
	if !v.Valid || v.String == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
