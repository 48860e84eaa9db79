/*
errors.go - Centralized error types for the pay engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every failure of a calculation run is returned as one of these, never
  swallowed. Batch runs collect them per employee.

ERROR CATEGORIES:
  1. Validation errors   - Malformed rules, rejected at the admin surface
  2. Calculation errors  - NoEligibleEntries, InconsistentCalculation
  3. Store errors        - Duplicate calculation, concurrent rule mutation, not found

USAGE:
  calc, err := calculator.Calculate(ctx, req)
  var dup *payroll.DuplicateCalculationError
  if errors.As(err, &dup) {
      // existing record dup.ExistingID untouched
  }

SEE ALSO:
  - calculator.go: Wraps failures in StageError
  - admin.go: Retries ErrConcurrentModification once
*/
package payroll

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when a rule fails validation.
	ErrValidation = errors.New("validation failed")

	// ErrNoEligibleEntries is returned when an employee has no closed,
	// approved time entries in the requested period.
	ErrNoEligibleEntries = errors.New("no eligible time entries")

	// ErrInconsistentCalculation is returned when the hour-sum invariant fails.
	ErrInconsistentCalculation = errors.New("inconsistent calculation")

	// ErrConcurrentModification is returned when a rule write races another
	// administrative write (stale version).
	ErrConcurrentModification = errors.New("concurrent rule modification")

	// ErrDuplicateCalculation is returned when a calculation already exists for
	// the (employee, period) and recalculation was not requested.
	ErrDuplicateCalculation = errors.New("calculation already exists")

	// ErrComponentConflict is returned when two action kinds target the same
	// component name.
	ErrComponentConflict = errors.New("component type conflict")

	ErrRuleNotFound        = errors.New("pay rule not found")
	ErrCalculationNotFound = errors.New("calculation not found")
	ErrEmployeeNotFound    = errors.New("employee not found")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError is a single validation failure.
type FieldError struct {
	Field   string // e.g. "conditions.time_range"
	Message string
}

func (e FieldError) String() string { return e.Field + ": " + e.Message }

// ValidationError lists every problem found in a rule payload.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// NewFieldError builds a ValidationError with a single field failure.
func NewFieldError(field, format string, args ...any) *ValidationError {
	v := &ValidationError{}
	v.add(field, format, args...)
	return v
}

// errOrNil returns nil when no field errors were recorded.
func (e *ValidationError) errOrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// DuplicateCalculationError identifies the record a recalculation collided with.
type DuplicateCalculationError struct {
	EmployeeID EmployeeID
	Period     Period
	ExistingID CalculationID
}

func (e *DuplicateCalculationError) Error() string {
	return fmt.Sprintf("calculation already exists for %s %s (id: %s)", e.EmployeeID, e.Period, e.ExistingID)
}

func (e *DuplicateCalculationError) Unwrap() error { return ErrDuplicateCalculation }

// InconsistentCalculationError carries the buckets that failed the hour-sum check.
type InconsistentCalculationError struct {
	EmployeeID EmployeeID
	Total      Hours
	Tiers      Tiers
}

func (e *InconsistentCalculationError) Error() string {
	return fmt.Sprintf("hour buckets do not sum to total for %s: %s+%s+%s != %s",
		e.EmployeeID, e.Tiers.Regular, e.Tiers.Overtime, e.Tiers.DoubleTime, e.Total)
}

func (e *InconsistentCalculationError) Unwrap() error { return ErrInconsistentCalculation }

// ComponentConflictError names the component two action kinds collided on.
type ComponentConflictError struct {
	Component string
	Existing  ComponentType
	Incoming  ComponentType
	Rule      string
}

func (e *ComponentConflictError) Error() string {
	return fmt.Sprintf("rule %q writes %s component %q already typed %s",
		e.Rule, e.Incoming, e.Component, e.Existing)
}

func (e *ComponentConflictError) Unwrap() error { return ErrComponentConflict }

// StageError records which stage of a calculation run failed.
type StageError struct {
	Stage      Stage
	EmployeeID EmployeeID
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: calculation for %s failed: %v", e.Stage, e.EmployeeID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrDuplicateCalculation) ||
		errors.Is(err, ErrNoEligibleEntries)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRuleNotFound) ||
		errors.Is(err, ErrCalculationNotFound) ||
		errors.Is(err, ErrEmployeeNotFound)
}
