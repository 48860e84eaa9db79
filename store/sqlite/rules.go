package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/warp/pay-engine/factory"
	"github.com/warp/pay-engine/payroll"
)

// =============================================================================
// RULE STORE (payroll.RuleStore interface)
// =============================================================================

const ruleColumns = `id, name, description, priority, is_active, conditions_json, actions_json,
	sequence, version, created_by, created_at, updated_at`

// CreateRule inserts a rule, assigning its sequence and version 1.
func (s *Store) CreateRule(ctx context.Context, rule payroll.PayRule) (payroll.PayRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.ID == "" {
		rule.ID = payroll.RuleID(uuid.NewString())
	}
	conds, acts, err := factory.EncodeBody(rule)
	if err != nil {
		return payroll.PayRule{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return payroll.PayRule{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		"UPDATE rule_set_state SET sequence = sequence + 1, revision = revision + 1 WHERE id = 1 RETURNING sequence",
	).Scan(&seq); err != nil {
		return payroll.PayRule{}, fmt.Errorf("failed to allocate rule sequence: %w", err)
	}
	rule.Sequence = seq
	rule.Version = 1

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pay_rules (id, name, name_key, description, priority, is_active,
			conditions_json, actions_json, sequence, version, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Name, nameKey(rule.Name), rule.Description, rule.Priority, boolInt(rule.Active),
		string(conds), string(acts), rule.Sequence, rule.Version, rule.CreatedBy,
		formatTime(rule.CreatedAt.UTC()), formatTime(rule.UpdatedAt.UTC()),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return payroll.PayRule{}, uniqueRuleError(err, rule)
		}
		return payroll.PayRule{}, fmt.Errorf("failed to insert pay rule: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return payroll.PayRule{}, err
	}
	return rule, nil
}

func (s *Store) GetRule(ctx context.Context, id payroll.RuleID) (payroll.PayRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules, err := queryRules(ctx, s.db, "SELECT "+ruleColumns+" FROM pay_rules WHERE id = ?", id)
	if err != nil {
		return payroll.PayRule{}, err
	}
	if len(rules) == 0 {
		return payroll.PayRule{}, payroll.ErrRuleNotFound
	}
	return rules[0], nil
}

// ListRules returns every rule ordered by (priority, sequence).
func (s *Store) ListRules(ctx context.Context) ([]payroll.PayRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryRules(ctx, s.db, "SELECT "+ruleColumns+" FROM pay_rules ORDER BY priority, sequence")
}

// UpdateRule writes rule if its version is still current.
func (s *Store) UpdateRule(ctx context.Context, rule payroll.PayRule) (payroll.PayRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conds, acts, err := factory.EncodeBody(rule)
	if err != nil {
		return payroll.PayRule{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return payroll.PayRule{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE pay_rules SET name = ?, name_key = ?, description = ?, priority = ?, is_active = ?,
			conditions_json = ?, actions_json = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		rule.Name, nameKey(rule.Name), rule.Description, rule.Priority, boolInt(rule.Active),
		string(conds), string(acts), formatTime(rule.UpdatedAt.UTC()),
		rule.ID, rule.Version,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return payroll.PayRule{}, uniqueRuleError(err, rule)
		}
		return payroll.PayRule{}, fmt.Errorf("failed to update pay rule: %w", err)
	}
	if err := versionChecked(ctx, tx, res, rule.ID); err != nil {
		return payroll.PayRule{}, err
	}
	if err := bumpRevision(ctx, tx); err != nil {
		return payroll.PayRule{}, err
	}

	updated, err := queryRules(ctx, tx, "SELECT "+ruleColumns+" FROM pay_rules WHERE id = ?", rule.ID)
	if err != nil {
		return payroll.PayRule{}, err
	}
	if err := tx.Commit(); err != nil {
		return payroll.PayRule{}, err
	}
	return updated[0], nil
}

func (s *Store) DeleteRule(ctx context.Context, id payroll.RuleID, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM pay_rules WHERE id = ? AND version = ?", id, version)
	if err != nil {
		return fmt.Errorf("failed to delete pay rule: %w", err)
	}
	if err := versionChecked(ctx, tx, res, id); err != nil {
		return err
	}
	if err := bumpRevision(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Reorder applies all priority changes in one transaction.
func (s *Store) Reorder(ctx context.Context, changes []payroll.PriorityChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(s.now().UTC())
	for _, c := range changes {
		res, err := tx.ExecContext(ctx,
			"UPDATE pay_rules SET priority = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?",
			c.Priority, now, c.ID, c.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to reorder pay rule: %w", err)
		}
		if err := versionChecked(ctx, tx, res, c.ID); err != nil {
			return err
		}
	}
	if err := bumpRevision(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Snapshot reads every rule and the revision under the read lock, so no rule
// write can interleave.
func (s *Store) Snapshot(ctx context.Context) (*payroll.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var revision int64
	if err := s.db.QueryRowContext(ctx, "SELECT revision FROM rule_set_state WHERE id = 1").Scan(&revision); err != nil {
		return nil, fmt.Errorf("failed to read rule set revision: %w", err)
	}
	rules, err := queryRules(ctx, s.db,
		"SELECT "+ruleColumns+" FROM pay_rules WHERE is_active = 1 ORDER BY priority, sequence")
	if err != nil {
		return nil, err
	}
	return payroll.NewRuleSet(rules, revision, s.now().UTC()), nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func uniqueRuleError(err error, rule payroll.PayRule) error {
	if strings.Contains(err.Error(), "name_key") {
		return payroll.NewFieldError("name", "a pay rule named %q already exists", rule.Name)
	}
	return payroll.NewFieldError("id", "pay rule %s already exists", rule.ID)
}

// versionChecked turns a zero-row write into ErrRuleNotFound or
// ErrConcurrentModification.
func versionChecked(ctx context.Context, q queryer, res sql.Result, id payroll.RuleID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = q.QueryRowContext(ctx, "SELECT 1 FROM pay_rules WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.ErrRuleNotFound
	}
	if err != nil {
		return err
	}
	return payroll.ErrConcurrentModification
}

func bumpRevision(ctx context.Context, db execer) error {
	if _, err := db.ExecContext(ctx, "UPDATE rule_set_state SET revision = revision + 1 WHERE id = 1"); err != nil {
		return fmt.Errorf("failed to bump rule set revision: %w", err)
	}
	return nil
}

func queryRules(ctx context.Context, q queryer, query string, args ...any) ([]payroll.PayRule, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []payroll.PayRule
	for rows.Next() {
		var (
			r                    payroll.PayRule
			active               int
			conds, acts          string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.Priority, &active, &conds, &acts,
			&r.Sequence, &r.Version, &r.CreatedBy, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		r.Active = active == 1
		if r.Conditions, r.Actions, err = factory.DecodeBody([]byte(conds), []byte(acts)); err != nil {
			return nil, fmt.Errorf("pay rule %s: %w", r.ID, err)
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}
