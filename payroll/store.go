/*
store.go - Collaborator and persistence interfaces

PURPOSE:
  Defines the boundary between the engine and everything it reads from or
  writes to. The engine only performs I/O through these interfaces, and only
  in the Loading and Persisted stages of a calculation run.

KEY INTERFACES:
  RuleStore:        Pay rule CRUD, atomic reorder, consistent snapshots
  TimeSource:       Closed, approved time entries per employee and period
  Directory:        Employee attributes (roles, department)
  CalculationStore: Append-only calculation records with revisions

APPEND-ONLY CONTRACT:
  CalculationStore has no Update or Delete. A recalculation appends a new
  revision for the same (employee, period); earlier revisions stay untouched.

SINGLE WRITER:
  RuleStore mutations serialize against each other. Every mutation carries the
  version the caller read; a stale version fails with ErrConcurrentModification
  and nothing is written. Snapshot() never waits on in-flight evaluations.

IMPLEMENTATIONS:
  - payroll/store/memory.go: In-memory for tests and development
  - store/sqlite: SQLite with embedded migrations

SEE ALSO:
  - admin.go: Validation + retry-once on top of RuleStore
  - calculator.go: Consumer of all four interfaces
*/
package payroll

import "context"

// =============================================================================
// RULE STORE
// =============================================================================

// PriorityChange assigns a new priority to one rule. Version is the rule
// version the caller read.
type PriorityChange struct {
	ID       RuleID
	Priority int
	Version  int
}

type RuleStore interface {
	// CreateRule persists a new rule. The store assigns Sequence and sets
	// Version to 1. Returns *ValidationError if the name is taken.
	CreateRule(ctx context.Context, rule PayRule) (PayRule, error)

	GetRule(ctx context.Context, id RuleID) (PayRule, error)

	// ListRules returns every rule, active or not, ordered by (Priority, Sequence).
	ListRules(ctx context.Context) ([]PayRule, error)

	// UpdateRule replaces a rule if rule.Version matches the stored version.
	// Returns the stored rule with Version incremented.
	UpdateRule(ctx context.Context, rule PayRule) (PayRule, error)

	// DeleteRule removes a rule if version matches.
	DeleteRule(ctx context.Context, id RuleID, version int) error

	// Reorder applies every change or none.
	Reorder(ctx context.Context, changes []PriorityChange) error

	// Snapshot returns the active rules in priority order as of one revision.
	Snapshot(ctx context.Context) (*RuleSet, error)
}

// RuleSource is the read side of RuleStore used by calculations.
type RuleSource interface {
	Snapshot(ctx context.Context) (*RuleSet, error)
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// TimeSource returns finalized time entries: clocked out, closed, approved,
// clock-in within the period, ordered by clock-in.
type TimeSource interface {
	GetClosedEntries(ctx context.Context, employeeID EmployeeID, period Period) ([]TimeEntry, error)
}

// Directory returns employee attributes used by role and employee conditions.
type Directory interface {
	GetEmployeeAttributes(ctx context.Context, employeeID EmployeeID) (Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)
}

// =============================================================================
// CALCULATION STORE (append-only)
// =============================================================================

// CalculationFilter narrows ListCalculations. Zero fields are unconstrained.
type CalculationFilter struct {
	EmployeeID EmployeeID
	Period     *Period
	LatestOnly bool // only the newest revision per (employee, period)
}

type CalculationStore interface {
	// SaveCalculation appends calc. Without recalculate, an existing record
	// for the same (employee, period) yields *DuplicateCalculationError. With
	// recalculate, calc is stored as the next revision. The store sets
	// calc.Revision.
	SaveCalculation(ctx context.Context, calc *PayCalculation, recalculate bool) (CalculationID, error)

	GetCalculation(ctx context.Context, id CalculationID) (*PayCalculation, error)

	// ListCalculations returns matching records, newest first.
	ListCalculations(ctx context.Context, filter CalculationFilter) ([]*PayCalculation, error)
}
