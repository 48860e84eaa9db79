package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/pay-engine/payroll"
)

// =============================================================================
// CALCULATION STORE (payroll.CalculationStore interface)
// =============================================================================

const calcColumns = `id, employee_id, period_start, period_end, revision, total_hours, regular_hours,
	overtime_hours, double_time_hours, total_allowances, components_json, entry_ids_json,
	rule_set_version, calculated_at, calculated_by`

// SaveCalculation appends calc. Existing revisions are never touched.
func (s *Store) SaveCalculation(ctx context.Context, calc *payroll.PayCalculation, recalculate bool) (payroll.CalculationID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	components, err := json.Marshal(calc.Components)
	if err != nil {
		return "", fmt.Errorf("encode components: %w", err)
	}
	entryIDs, err := json.Marshal(calc.EntryIDs)
	if err != nil {
		return "", fmt.Errorf("encode entry ids: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	start := calc.Period.Start.Format(payroll.DateLayout)
	end := calc.Period.End.Format(payroll.DateLayout)

	var (
		latestID  sql.NullString
		revisions int
		seq       int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT
			(SELECT id FROM pay_calculations WHERE employee_id = ? AND period_start = ? AND period_end = ?
				ORDER BY revision DESC LIMIT 1),
			(SELECT COUNT(*) FROM pay_calculations WHERE employee_id = ? AND period_start = ? AND period_end = ?),
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM pay_calculations)`,
		calc.EmployeeID, start, end, calc.EmployeeID, start, end,
	).Scan(&latestID, &revisions, &seq)
	if err != nil {
		return "", fmt.Errorf("failed to read existing calculations: %w", err)
	}
	if revisions > 0 && !recalculate {
		return "", &payroll.DuplicateCalculationError{
			EmployeeID: calc.EmployeeID,
			Period:     calc.Period,
			ExistingID: payroll.CalculationID(latestID.String),
		}
	}

	if calc.ID == "" {
		calc.ID = payroll.CalculationID(uuid.NewString())
	}
	revision := revisions + 1

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pay_calculations (`+calcColumns+`, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		calc.ID, calc.EmployeeID, start, end, revision,
		calc.TotalHours.String(), calc.RegularHours.String(), calc.OvertimeHours.String(),
		calc.DoubleTimeHours.String(), calc.TotalAllowances.String(),
		string(components), string(entryIDs), calc.RuleSetVersion,
		formatTime(calc.CalculatedAt.UTC()), calc.CalculatedBy, seq,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return "", payroll.NewFieldError("id", "calculation %s already exists", calc.ID)
		}
		return "", fmt.Errorf("failed to save calculation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	calc.Revision = revision
	return calc.ID, nil
}

func (s *Store) GetCalculation(ctx context.Context, id payroll.CalculationID) (*payroll.PayCalculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	calcs, err := s.queryCalculations(ctx, "SELECT "+calcColumns+" FROM pay_calculations WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(calcs) == 0 {
		return nil, payroll.ErrCalculationNotFound
	}
	return calcs[0], nil
}

// ListCalculations returns matching records, newest first.
func (s *Store) ListCalculations(ctx context.Context, f payroll.CalculationFilter) ([]*payroll.PayCalculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.EmployeeID != "" {
		where = append(where, "c.employee_id = ?")
		args = append(args, f.EmployeeID)
	}
	if f.Period != nil {
		where = append(where, "c.period_start = ? AND c.period_end = ?")
		args = append(args, f.Period.Start.Format(payroll.DateLayout), f.Period.End.Format(payroll.DateLayout))
	}
	if f.LatestOnly {
		where = append(where, `c.revision = (SELECT MAX(revision) FROM pay_calculations l
			WHERE l.employee_id = c.employee_id AND l.period_start = c.period_start AND l.period_end = c.period_end)`)
	}

	query := "SELECT " + prefixed("c.", calcColumns) + " FROM pay_calculations c"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY c.seq DESC"
	return s.queryCalculations(ctx, query, args...)
}

func (s *Store) queryCalculations(ctx context.Context, query string, args ...any) ([]*payroll.PayCalculation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*payroll.PayCalculation
	for rows.Next() {
		c, err := scanCalculation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCalculation(rows *sql.Rows) (*payroll.PayCalculation, error) {
	var (
		c                                       payroll.PayCalculation
		start, end, calculatedAt                string
		total, regular, overtime, double, allow string
		components, entryIDs                    string
	)
	if err := rows.Scan(&c.ID, &c.EmployeeID, &start, &end, &c.Revision,
		&total, &regular, &overtime, &double, &allow,
		&components, &entryIDs, &c.RuleSetVersion, &calculatedAt, &c.CalculatedBy); err != nil {
		return nil, err
	}

	period, err := payroll.ParsePeriod(start, end)
	if err != nil {
		return nil, err
	}
	c.Period = period

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&c.TotalHours, total}, {&c.RegularHours, regular}, {&c.OvertimeHours, overtime},
		{&c.DoubleTimeHours, double}, {&c.TotalAllowances, allow},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, fmt.Errorf("calculation %s: %w", c.ID, err)
		}
	}

	if err := json.Unmarshal([]byte(components), &c.Components); err != nil {
		return nil, fmt.Errorf("calculation %s components: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(entryIDs), &c.EntryIDs); err != nil {
		return nil, fmt.Errorf("calculation %s entry ids: %w", c.ID, err)
	}
	if c.CalculatedAt, err = parseTime(calculatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
