package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warp/pay-engine/payroll"
)

// =============================================================================
// DIRECTORY (payroll.Directory interface)
// =============================================================================

// PutEmployee creates or replaces an employee.
func (s *Store) PutEmployee(ctx context.Context, emp payroll.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	roles, err := json.Marshal(nonNil(emp.Roles))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, roles_json, department, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			roles_json = excluded.roles_json,
			department = excluded.department`,
		emp.ID, emp.Name, string(roles), emp.Department, formatTime(s.now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *Store) GetEmployeeAttributes(ctx context.Context, id payroll.EmployeeID) (payroll.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		emp   payroll.Employee
		roles string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, roles_json, department FROM employees WHERE id = ?", id,
	).Scan(&emp.ID, &emp.Name, &roles, &emp.Department)
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.Employee{}, payroll.ErrEmployeeNotFound
	}
	if err != nil {
		return payroll.Employee{}, err
	}
	if err := json.Unmarshal([]byte(roles), &emp.Roles); err != nil {
		return payroll.Employee{}, fmt.Errorf("employee %s roles: %w", id, err)
	}
	return emp, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]payroll.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, roles_json, department FROM employees ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []payroll.Employee
	for rows.Next() {
		var (
			emp   payroll.Employee
			roles string
		)
		if err := rows.Scan(&emp.ID, &emp.Name, &roles, &emp.Department); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(roles), &emp.Roles); err != nil {
			return nil, fmt.Errorf("employee %s roles: %w", emp.ID, err)
		}
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

// =============================================================================
// TIME ENTRIES (payroll.TimeSource interface)
// =============================================================================

// AddTimeEntry records an entry for an existing employee.
func (s *Store) AddTimeEntry(ctx context.Context, e payroll.TimeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = payroll.EntryID(uuid.NewString())
	}
	var clockOut sql.NullString
	if e.ClockOut != nil {
		clockOut = nullString(formatTime(*e.ClockOut))
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO time_entries (id, employee_id, clock_in, clock_in_unix, clock_out, break_minutes, status, approved)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EmployeeID, formatTime(e.ClockIn), e.ClockIn.Unix(), clockOut,
		e.BreakMinutes, e.Status, boolInt(e.Approved),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return payroll.ErrEmployeeNotFound
		}
		if isUniqueConstraintError(err) {
			return payroll.NewFieldError("id", "time entry %s already exists", e.ID)
		}
		return fmt.Errorf("failed to save time entry: %w", err)
	}
	return nil
}

// ListTimeEntries returns every entry of an employee, eligible or not.
func (s *Store) ListTimeEntries(ctx context.Context, id payroll.EmployeeID) ([]payroll.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryEntries(ctx, `
		SELECT id, employee_id, clock_in, clock_out, break_minutes, status, approved
		FROM time_entries WHERE employee_id = ? ORDER BY clock_in_unix, id`, id)
}

// GetClosedEntries narrows by unix time with a day of slack on both sides for
// clock-in offsets, then applies the calendar-date check in Go.
func (s *Store) GetClosedEntries(ctx context.Context, id payroll.EmployeeID, period payroll.Period) ([]payroll.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from := period.Start.Add(-24 * time.Hour).Unix()
	to := period.End.Add(48 * time.Hour).Unix()
	candidates, err := s.queryEntries(ctx, `
		SELECT id, employee_id, clock_in, clock_out, break_minutes, status, approved
		FROM time_entries
		WHERE employee_id = ? AND status = ? AND approved = 1 AND clock_out IS NOT NULL
			AND clock_in_unix >= ? AND clock_in_unix < ?
		ORDER BY clock_in_unix, id`,
		id, payroll.EntryClosed, from, to)
	if err != nil {
		return nil, err
	}

	var out []payroll.TimeEntry
	for _, e := range candidates {
		if period.Contains(e.ClockIn) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]payroll.TimeEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []payroll.TimeEntry
	for rows.Next() {
		var (
			e        payroll.TimeEntry
			clockIn  string
			clockOut sql.NullString
			approved int
		)
		if err := rows.Scan(&e.ID, &e.EmployeeID, &clockIn, &clockOut, &e.BreakMinutes, &e.Status, &approved); err != nil {
			return nil, err
		}
		if e.ClockIn, err = parseTime(clockIn); err != nil {
			return nil, err
		}
		if clockOut.Valid {
			out, err := parseTime(clockOut.String)
			if err != nil {
				return nil, err
			}
			e.ClockOut = &out
		}
		e.Approved = approved == 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
