/*
Package payroll provides the pay-rule evaluation and hour-tiering engine.

PURPOSE:
  Turns a block of worked time (closed clock-in/clock-out intervals over a pay
  period) into a structured pay calculation: regular/overtime/double-time hour
  buckets, named allowances, shift differentials, and an audit trail of which
  configured rules produced which component.

KEY CONCEPTS IN THIS FILE (types.go):
  - Hours / Money: decimal quantities (never float64 for pay math)
  - TimeEntry: a finalized clock-in/clock-out interval (input)
  - Employee: directory attributes used by role/employee conditions
  - PayComponent: one named line item in a calculation breakdown
  - PayCalculation: the immutable, persisted output record

DESIGN PRINCIPLES:
  1. Exactness: decimal.Decimal keeps regular+overtime+double_time == total
  2. Immutability: calculations are never updated, recalculation appends a revision
  3. Auditability: every component lists the rules that produced it
  4. Purity: tiering, condition matching and action application have no I/O

SEE ALSO:
  - tiering.go: Hour Tiering Calculator
  - rule.go: PayRule and its closed condition/action variants
  - calculator.go: Calculation Orchestrator
*/
package payroll

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type RuleID string
type CalculationID string
type EntryID string

// =============================================================================
// QUANTITIES
// =============================================================================

// Hours is a worked-time quantity in hours.
type Hours = decimal.Decimal

// Money is a currency amount. The engine is currency-agnostic.
type Money = decimal.Decimal

// NewHours converts a float literal into Hours. Intended for tests and presets;
// stored values are parsed from strings.
func NewHours(h float64) Hours { return decimal.NewFromFloat(h) }

// NewMoney converts a float literal into Money.
func NewMoney(m float64) Money { return decimal.NewFromFloat(m) }

// hoursScale is the precision worked hours are rounded to.
const hoursScale = 2

// =============================================================================
// TIME ENTRY - Input owned by the time-tracking collaborator
// =============================================================================

type EntryStatus string

const (
	EntryOpen      EntryStatus = "open"
	EntryClosed    EntryStatus = "closed"
	EntryException EntryStatus = "exception"
)

type TimeEntry struct {
	ID           EntryID
	EmployeeID   EmployeeID
	ClockIn      time.Time
	ClockOut     *time.Time // nil while the entry is open
	BreakMinutes int
	Status       EntryStatus
	Approved     bool
}

// WorkedHours returns clock-out minus clock-in minus breaks, rounded to
// hundredths of an hour. Open entries yield zero.
func (e TimeEntry) WorkedHours() Hours {
	if e.ClockOut == nil {
		return decimal.Zero
	}
	secs := int64(e.ClockOut.Sub(e.ClockIn)/time.Second) - int64(e.BreakMinutes)*60
	if secs <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(secs).Div(decimal.NewFromInt(3600)).Round(hoursScale)
}

// Eligible reports whether the entry may take part in a calculation.
func (e TimeEntry) Eligible() bool {
	return e.ClockOut != nil && e.Status == EntryClosed && e.Approved
}

// WorkDate is the calendar date of clock-in.
func (e TimeEntry) WorkDate() time.Time {
	y, m, d := e.ClockIn.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, e.ClockIn.Location())
}

// =============================================================================
// EMPLOYEE - Directory attributes
// =============================================================================

type Employee struct {
	ID         EmployeeID
	Name       string
	Roles      []string
	Department string
}

// HasAnyRole reports whether the employee holds at least one of roles.
func (e Employee) HasAnyRole(roles []string) bool {
	for _, want := range roles {
		for _, have := range e.Roles {
			if want == have {
				return true
			}
		}
	}
	return false
}

// =============================================================================
// PAY COMPONENT - One named line item
// =============================================================================

type ComponentType string

const (
	ComponentHours        ComponentType = "hours"        // pay_multiplier
	ComponentAllowance    ComponentType = "allowance"    // flat_allowance
	ComponentDifferential ComponentType = "differential" // shift_differential
)

// PayComponent accumulates the effects of every rule that targeted Name.
//
// Field meaning depends on Type:
//   - hours:        Hours (accumulated), Multiplier (last applied wins)
//   - allowance:    Amount (accumulated)
//   - differential: Hours (accumulated), Differential (last applied wins),
//                   Amount (sum of hours*differential per application)
type PayComponent struct {
	Name         string
	Type         ComponentType
	Hours        Hours
	Amount       Money
	Multiplier   decimal.Decimal
	Differential Money
	RulesApplied []string
}

// Clone returns a deep copy so accumulators never alias caller state.
func (c *PayComponent) Clone() *PayComponent {
	cp := *c
	cp.RulesApplied = append([]string(nil), c.RulesApplied...)
	return &cp
}

// AllowanceContribution is the component's share of total_allowances.
func (c *PayComponent) AllowanceContribution() Money {
	switch c.Type {
	case ComponentAllowance, ComponentDifferential:
		return c.Amount
	default:
		return decimal.Zero
	}
}

type componentJSON struct {
	Type         ComponentType    `json:"type"`
	Hours        *decimal.Decimal `json:"hours,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	Multiplier   *decimal.Decimal `json:"multiplier,omitempty"`
	Differential *decimal.Decimal `json:"differential,omitempty"`
	RulesApplied []string         `json:"rules_applied"`
}

// MarshalJSON emits only the fields meaningful for the component type, so the
// persisted breakdown reads the same as it is displayed.
func (c PayComponent) MarshalJSON() ([]byte, error) {
	out := componentJSON{Type: c.Type, RulesApplied: c.RulesApplied}
	if out.RulesApplied == nil {
		out.RulesApplied = []string{}
	}
	switch c.Type {
	case ComponentHours:
		out.Hours, out.Multiplier = ptr(c.Hours), ptr(c.Multiplier)
	case ComponentAllowance:
		out.Amount = ptr(c.Amount)
	case ComponentDifferential:
		out.Hours, out.Differential, out.Amount = ptr(c.Hours), ptr(c.Differential), ptr(c.Amount)
	}
	return json.Marshal(out)
}

func (c *PayComponent) UnmarshalJSON(data []byte) error {
	var in componentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*c = PayComponent{Type: in.Type, RulesApplied: in.RulesApplied}
	c.Hours = deref(in.Hours)
	c.Amount = deref(in.Amount)
	c.Multiplier = deref(in.Multiplier)
	c.Differential = deref(in.Differential)
	return nil
}

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

func deref(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// Components maps component name to its accumulated line item.
type Components map[string]*PayComponent

// Clone deep-copies the map.
func (cs Components) Clone() Components {
	out := make(Components, len(cs))
	for k, v := range cs {
		out[k] = v.Clone()
	}
	return out
}

// TotalAllowances sums amount- and rate-derived contributions.
func (cs Components) TotalAllowances() Money {
	total := decimal.Zero
	for _, c := range cs {
		total = total.Add(c.AllowanceContribution())
	}
	return total
}

// MarshalJSON writes components keyed by name. encoding/json sorts map keys,
// which keeps the encoding byte-stable across runs.
func (cs Components) MarshalJSON() ([]byte, error) {
	m := make(map[string]PayComponent, len(cs))
	for k, v := range cs {
		m[k] = *v
	}
	return json.Marshal(m)
}

func (cs *Components) UnmarshalJSON(data []byte) error {
	var m map[string]PayComponent
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out := make(Components, len(m))
	for k, v := range m {
		v := v
		v.Name = k
		out[k] = &v
	}
	*cs = out
	return nil
}

// =============================================================================
// PAY CALCULATION - Immutable output record
// =============================================================================

type PayCalculation struct {
	ID              CalculationID
	EmployeeID      EmployeeID
	Period          Period
	Revision        int // 1 for the first run, incremented by each recalculation
	TotalHours      Hours
	RegularHours    Hours
	OvertimeHours   Hours
	DoubleTimeHours Hours
	TotalAllowances Money
	Components      Components
	EntryIDs        []EntryID
	RuleSetVersion  int64
	CalculatedAt    time.Time
	CalculatedBy    string
}

// Buckets returns the tiered hour breakdown.
func (c *PayCalculation) Buckets() Tiers {
	return Tiers{Regular: c.RegularHours, Overtime: c.OvertimeHours, DoubleTime: c.DoubleTimeHours}
}

// Clone deep-copies the record so stores never hand out shared state.
func (c *PayCalculation) Clone() *PayCalculation {
	cp := *c
	cp.Components = c.Components.Clone()
	cp.EntryIDs = append([]EntryID(nil), c.EntryIDs...)
	return &cp
}
