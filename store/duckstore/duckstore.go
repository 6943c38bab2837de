// Package duckstore persists templates, uploaded rows and employees in
// DuckDB. Each record is stored as a JSON document next to the columns that
// are queried, constrained or aggregated.
package duckstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/javajack/xlform"
	_ "github.com/marcboeker/go-duckdb"
)

const schema = `
CREATE TABLE IF NOT EXISTS templates (
	id            VARCHAR PRIMARY KEY,
	template_name VARCHAR NOT NULL UNIQUE,
	is_active     BOOLEAN NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	body          VARCHAR NOT NULL
);
CREATE TABLE IF NOT EXISTS uploaded_rows (
	id              VARCHAR PRIMARY KEY,
	template_id     VARCHAR NOT NULL,
	employee_id     VARCHAR NOT NULL,
	upload_batch_id VARCHAR NOT NULL,
	row_num         INTEGER NOT NULL,
	status          VARCHAR NOT NULL,
	uploaded_by     VARCHAR,
	created_at      TIMESTAMP NOT NULL,
	body            VARCHAR NOT NULL,
	UNIQUE (upload_batch_id, row_num)
);
CREATE TABLE IF NOT EXISTS employees (
	id          VARCHAR PRIMARY KEY,
	employee_id VARCHAR NOT NULL UNIQUE,
	email       VARCHAR NOT NULL UNIQUE,
	manager_id  VARCHAR,
	is_active   BOOLEAN NOT NULL,
	body        VARCHAR NOT NULL
);
`

// Store implements xlform.TemplateStore, xlform.RowStore and
// xlform.EmployeeStore on a DuckDB database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema. An
// empty path opens an in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %q: %w", path, err)
	}
	if path == "" {
		// Each connection to an in-memory database is a separate database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// conflict maps a uniqueness violation to xlform.ErrDuplicate.
func conflict(err error, what string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "Constraint Error") || strings.Contains(msg, "Duplicate key") {
		return fmt.Errorf("%w: %s", xlform.ErrDuplicate, what)
	}
	return fmt.Errorf("insert %s: %w", what, err)
}

// CreateTemplate implements xlform.TemplateStore.
func (s *Store) CreateTemplate(ctx context.Context, t *xlform.TemplateModel) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode template: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO templates (id, template_name, is_active, created_at, body) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.TemplateName, t.IsActive, t.CreatedAt.UTC(), string(body))
	return conflict(err, "template "+t.TemplateName)
}

func scanTemplate(row interface{ Scan(...any) error }) (*xlform.TemplateModel, error) {
	var (
		body   string
		active bool
	)
	if err := row.Scan(&body, &active); err != nil {
		return nil, err
	}
	var t xlform.TemplateModel
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	t.IsActive = active
	return &t, nil
}

// FindTemplate implements xlform.TemplateStore.
func (s *Store) FindTemplate(ctx context.Context, id string) (*xlform.TemplateModel, error) {
	t, err := scanTemplate(s.db.QueryRowContext(ctx,
		`SELECT body, is_active FROM templates WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", xlform.ErrTemplateNotFound, id)
	}
	return t, err
}

// FindActiveTemplate implements xlform.TemplateStore.
func (s *Store) FindActiveTemplate(ctx context.Context, name string) (*xlform.TemplateModel, error) {
	t, err := scanTemplate(s.db.QueryRowContext(ctx,
		`SELECT body, is_active FROM templates WHERE is_active AND template_name = ?`, name))
	if !errors.Is(err, sql.ErrNoRows) {
		return t, err
	}
	t, err = scanTemplate(s.db.QueryRowContext(ctx,
		`SELECT body, is_active FROM templates WHERE is_active ORDER BY created_at DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no active template", xlform.ErrTemplateNotFound)
	}
	return t, err
}

// ListActiveTemplates implements xlform.TemplateStore.
func (s *Store) ListActiveTemplates(ctx context.Context) ([]*xlform.TemplateModel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body, is_active FROM templates WHERE is_active ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()
	var out []*xlform.TemplateModel
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SoftDeleteTemplate implements xlform.TemplateStore.
func (s *Store) SoftDeleteTemplate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE templates SET is_active = false WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", xlform.ErrTemplateNotFound, id)
	}
	return nil
}

// CreateRow implements xlform.RowStore.
func (s *Store) CreateRow(ctx context.Context, r *xlform.UploadedRow) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO uploaded_rows (id, template_id, employee_id, upload_batch_id, row_num, status, uploaded_by, created_at, body)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TemplateID, r.EmployeeID, r.UploadBatchID, r.RowNumber, string(r.Status), r.UploadedBy,
		r.CreatedAt.UTC(), string(body))
	return conflict(err, fmt.Sprintf("row %d of batch %s", r.RowNumber, r.UploadBatchID))
}

func (s *Store) queryRows(ctx context.Context, query string, args ...any) ([]*xlform.UploadedRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()
	var out []*xlform.UploadedRow
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var r xlform.UploadedRow
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// FindRowsByBatch implements xlform.RowStore.
func (s *Store) FindRowsByBatch(ctx context.Context, batchID string) ([]*xlform.UploadedRow, error) {
	return s.queryRows(ctx,
		`SELECT body FROM uploaded_rows WHERE upload_batch_id = ? ORDER BY row_num`, batchID)
}

// FindRowsByEmployee implements xlform.RowStore.
func (s *Store) FindRowsByEmployee(ctx context.Context, employeeID string) ([]*xlform.UploadedRow, error) {
	return s.queryRows(ctx,
		`SELECT body FROM uploaded_rows WHERE employee_id = ? ORDER BY created_at DESC, row_num DESC`, employeeID)
}

// BatchSummaries implements xlform.RowStore.
func (s *Store) BatchSummaries(ctx context.Context, limit int) ([]xlform.BatchSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT upload_batch_id,
		       MIN(template_id),
		       COALESCE(MIN(uploaded_by), ''),
		       MIN(created_at) AS uploaded_at,
		       COUNT(*),
		       CAST(SUM(CASE WHEN status = 'validated' THEN 1 ELSE 0 END) AS BIGINT),
		       CAST(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END) AS BIGINT),
		       CAST(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END) AS BIGINT)
		FROM uploaded_rows
		GROUP BY upload_batch_id
		ORDER BY uploaded_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("summarize batches: %w", err)
	}
	defer rows.Close()
	var out []xlform.BatchSummary
	for rows.Next() {
		var (
			b  xlform.BatchSummary
			at time.Time
		)
		if err := rows.Scan(&b.UploadBatchID, &b.TemplateID, &b.UploadedBy, &at,
			&b.TotalRecords, &b.ValidatedCount, &b.PendingCount, &b.ErrorCount); err != nil {
			return nil, err
		}
		b.UploadedAt = at
		out = append(out, b)
	}
	return out, rows.Err()
}

// Summary implements xlform.RowStore.
func (s *Store) Summary(ctx context.Context) (xlform.DataSummary, error) {
	var sum xlform.DataSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(DISTINCT upload_batch_id),
		       CAST(COALESCE(SUM(CASE WHEN status = 'validated' THEN 1 ELSE 0 END), 0) AS BIGINT),
		       CAST(COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0) AS BIGINT),
		       CAST(COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0) AS BIGINT)
		FROM uploaded_rows`).
		Scan(&sum.TotalRecords, &sum.TotalBatches, &sum.ValidatedCount, &sum.PendingCount, &sum.ErrorCount)
	if err != nil {
		return sum, fmt.Errorf("summarize rows: %w", err)
	}
	return sum, nil
}

// CreateEmployee implements xlform.EmployeeStore.
func (s *Store) CreateEmployee(ctx context.Context, e *xlform.Employee) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode employee: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO employees (id, employee_id, email, manager_id, is_active, body) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.EmployeeID, strings.ToLower(e.Email), e.ManagerID, e.IsActive, string(body))
	return conflict(err, "employee "+e.EmployeeID)
}

func (s *Store) queryEmployees(ctx context.Context, query string, args ...any) ([]*xlform.Employee, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()
	var out []*xlform.Employee
	for rows.Next() {
		var (
			body   string
			active bool
		)
		if err := rows.Scan(&body, &active); err != nil {
			return nil, err
		}
		var e xlform.Employee
		if err := json.Unmarshal([]byte(body), &e); err != nil {
			return nil, fmt.Errorf("decode employee: %w", err)
		}
		e.IsActive = active
		out = append(out, &e)
	}
	return out, rows.Err()
}

// FindActiveEmployee implements xlform.EmployeeDirectory.
func (s *Store) FindActiveEmployee(ctx context.Context, employeeID string) (*xlform.Employee, error) {
	found, err := s.queryEmployees(ctx,
		`SELECT body, is_active FROM employees WHERE employee_id = ? AND is_active`, employeeID)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", xlform.ErrEmployeeNotFound, employeeID)
	}
	return found[0], nil
}

// ListActiveEmployees implements xlform.EmployeeStore.
func (s *Store) ListActiveEmployees(ctx context.Context) ([]*xlform.Employee, error) {
	return s.queryEmployees(ctx,
		`SELECT body, is_active FROM employees WHERE is_active ORDER BY employee_id`)
}

// ListByManager implements xlform.EmployeeStore.
func (s *Store) ListByManager(ctx context.Context, managerID string) ([]*xlform.Employee, error) {
	return s.queryEmployees(ctx,
		`SELECT body, is_active FROM employees WHERE is_active AND manager_id = ? ORDER BY employee_id`, managerID)
}

// DeactivateEmployee implements xlform.EmployeeStore.
func (s *Store) DeactivateEmployee(ctx context.Context, employeeID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE employees SET is_active = false WHERE employee_id = ? AND is_active`, employeeID)
	if err != nil {
		return fmt.Errorf("deactivate employee: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", xlform.ErrEmployeeNotFound, employeeID)
	}
	return nil
}
