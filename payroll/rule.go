/*
rule.go - Pay rules and their closed condition/action variants

PURPOSE:
  A PayRule is an administrator-defined condition/action pair with a priority.
  Conditions and actions are closed sets of variants: each recognized predicate
  or effect is its own type, and the factory rejects unknown keys at the
  administration boundary instead of ignoring them.

CONDITIONS (all present conditions must hold):
  DayOfWeek          entry date's weekday is listed (0=Sunday..6=Saturday)
  TimeRange          clock-in hour in [start, end); start > end wraps midnight
  OvertimeThreshold  unit overtime-tier hours > threshold; matched hours = overtime tier
  EmployeeIDs        employee is on the allow-list
  Roles              employee holds any listed role
  TierFilter         matched hours restricted to the listed tiers

ACTIONS (all present actions are applied):
  PayMultiplier      hours-typed component, hours accumulate, multiplier overrides
  FlatAllowance      amount-typed component, amount accumulates
  ShiftDifferential  rate-typed component, hours*rate accumulates into amount

ORDERING:
  Rules sort by Priority ascending; ties break on Sequence, a store-assigned
  insertion counter. Array order is never relied on.

SEE ALSO:
  - condition.go: Matches / MatchedHours
  - action.go: Apply
  - ruleset.go: Snapshot of active rules in priority order
  - factory/rule.go: JSON <-> PayRule
*/
package payroll

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxPriority bounds the priority field accepted at the admin surface.
const MaxPriority = 1_000_000

// DefaultPriority is used when a payload omits priority.
const DefaultPriority = 100

type PayRule struct {
	ID          RuleID
	Name        string
	Description string
	Priority    int
	Active      bool
	Conditions  []Condition
	Actions     []Action

	// Sequence is the store-assigned creation order used to break priority ties.
	Sequence int64
	// Version increments on every write; stale writes fail with ErrConcurrentModification.
	Version int

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks a single rule in isolation.
func (r PayRule) Validate() error {
	v := &ValidationError{}
	if strings.TrimSpace(r.Name) == "" {
		v.add("name", "is required")
	}
	if r.Priority < 0 || r.Priority > MaxPriority {
		v.add("priority", "must be between 0 and %d, got %d", MaxPriority, r.Priority)
	}
	if len(r.Conditions) == 0 {
		v.add("conditions", "at least one condition must be specified")
	}
	if len(r.Actions) == 0 {
		v.add("actions", "at least one action must be specified")
	}

	seenCond := make(map[ConditionKind]bool)
	for _, c := range r.Conditions {
		if seenCond[c.Kind()] {
			v.add("conditions."+string(c.Kind()), "specified more than once")
		}
		seenCond[c.Kind()] = true
		c.validate(v)
	}
	seenAct := make(map[ActionKind]bool)
	kinds := make(map[string]ComponentType, len(r.Actions))
	for _, a := range r.Actions {
		if seenAct[a.Kind()] {
			v.add("actions."+string(a.Kind()), "specified more than once")
		}
		seenAct[a.Kind()] = true
		a.validate(v)

		name, kind := a.Component(), a.ComponentType()
		if prev, ok := kinds[name]; ok && prev != kind {
			v.add("actions", "component %q written as both %s and %s", name, prev, kind)
			continue
		}
		kinds[name] = kind
	}
	return v.errOrNil()
}

// Clone deep-copies slices so snapshots never share backing arrays with callers.
func (r PayRule) Clone() PayRule {
	r.Conditions = append([]Condition(nil), r.Conditions...)
	r.Actions = append([]Action(nil), r.Actions...)
	return r
}

// ComponentKinds maps every component name this rule writes to its type.
// Validate rejects rules that give one name two types.
func (r PayRule) ComponentKinds() map[string]ComponentType {
	out := make(map[string]ComponentType, len(r.Actions))
	for _, a := range r.Actions {
		out[a.Component()] = a.ComponentType()
	}
	return out
}

// ValidateAgainst checks cross-rule invariants: unique names and one component
// type per component name. others must not include r itself.
func (r PayRule) ValidateAgainst(others []PayRule) error {
	v := &ValidationError{}
	mine := r.ComponentKinds()
	for _, o := range others {
		if o.ID == r.ID {
			continue
		}
		if strings.EqualFold(o.Name, r.Name) {
			v.add("name", "a pay rule named %q already exists", o.Name)
		}
		for name, kind := range o.ComponentKinds() {
			if mk, ok := mine[name]; ok && mk != kind {
				v.add("actions", "component %q is already a %s component (rule %q)", name, kind, o.Name)
			}
		}
	}
	return v.errOrNil()
}

// SortRules orders rules by (Priority, Sequence). The sort is stable so equal
// keys keep input order.
func SortRules(rules []PayRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].Sequence < rules[j].Sequence
	})
}

// =============================================================================
// CONDITIONS
// =============================================================================

type ConditionKind string

const (
	CondDayOfWeek         ConditionKind = "day_of_week"
	CondTimeRange         ConditionKind = "time_range"
	CondOvertimeThreshold ConditionKind = "overtime_threshold"
	CondEmployeeIDs       ConditionKind = "employee_ids"
	CondRoles             ConditionKind = "roles"
	CondTier              ConditionKind = "tier"
)

// Condition is one recognized predicate. The set is closed: only types in this
// package implement it.
type Condition interface {
	Kind() ConditionKind
	matches(ctx EvalContext) bool
	validate(v *ValidationError)
}

type DayOfWeek struct {
	Days []time.Weekday
}

func (DayOfWeek) Kind() ConditionKind { return CondDayOfWeek }

func (c DayOfWeek) validate(v *ValidationError) {
	if len(c.Days) == 0 {
		v.add("conditions.day_of_week", "must list at least one day")
	}
	for _, d := range c.Days {
		if d < time.Sunday || d > time.Saturday {
			v.add("conditions.day_of_week", "day %d out of range 0-6", d)
		}
	}
}

// TimeRange is a half-open clock-in hour window [Start, End).
type TimeRange struct {
	Start int
	End   int
}

func (TimeRange) Kind() ConditionKind { return CondTimeRange }

func (c TimeRange) validate(v *ValidationError) {
	if c.Start < 0 || c.Start > 23 {
		v.add("conditions.time_range.start", "hour %d out of range 0-23", c.Start)
	}
	if c.End < 0 || c.End > 23 {
		v.add("conditions.time_range.end", "hour %d out of range 0-23", c.End)
	}
	if c.Start == c.End {
		v.add("conditions.time_range", "start and end must differ")
	}
}

// Contains reports whether hour falls in the window.
func (c TimeRange) Contains(hour int) bool {
	if c.Start < c.End {
		return hour >= c.Start && hour < c.End
	}
	return hour >= c.Start || hour < c.End
}

type OvertimeThreshold struct {
	Hours Hours
}

func (OvertimeThreshold) Kind() ConditionKind { return CondOvertimeThreshold }

func (c OvertimeThreshold) validate(v *ValidationError) {
	if c.Hours.IsNegative() {
		v.add("conditions.overtime_threshold", "must be non-negative")
	}
}

type EmployeeIDs struct {
	IDs []EmployeeID
}

func (EmployeeIDs) Kind() ConditionKind { return CondEmployeeIDs }

func (c EmployeeIDs) validate(v *ValidationError) {
	if len(c.IDs) == 0 {
		v.add("conditions.employee_ids", "must list at least one employee")
	}
}

type Roles struct {
	Roles []string
}

func (Roles) Kind() ConditionKind { return CondRoles }

func (c Roles) validate(v *ValidationError) {
	if len(c.Roles) == 0 {
		v.add("conditions.roles", "must list at least one role")
	}
}

// TierFilter restricts a rule to hours in the listed tiers.
type TierFilter struct {
	Tiers []Tier
}

func (TierFilter) Kind() ConditionKind { return CondTier }

func (c TierFilter) validate(v *ValidationError) {
	if len(c.Tiers) == 0 {
		v.add("conditions.tier", "must list at least one tier")
	}
	for _, t := range c.Tiers {
		if !t.Valid() {
			v.add("conditions.tier", "unknown tier %q", t)
		}
	}
}

// =============================================================================
// ACTIONS
// =============================================================================

type ActionKind string

const (
	ActPayMultiplier     ActionKind = "pay_multiplier"
	ActFlatAllowance     ActionKind = "flat_allowance"
	ActShiftDifferential ActionKind = "shift_differential"
)

// Action is one recognized effect. The set is closed.
type Action interface {
	Kind() ActionKind
	// Component is the pay component name the action writes.
	Component() string
	ComponentType() ComponentType
	apply(c *PayComponent, matched Hours)
	validate(v *ValidationError)
}

type PayMultiplier struct {
	Multiplier decimal.Decimal
	Name       string // component_name; defaults to "pay_multiplier"
}

func (PayMultiplier) Kind() ActionKind             { return ActPayMultiplier }
func (PayMultiplier) ComponentType() ComponentType { return ComponentHours }
func (a PayMultiplier) Component() string          { return nameOr(a.Name, string(ActPayMultiplier)) }

func (a PayMultiplier) apply(c *PayComponent, matched Hours) {
	c.Hours = c.Hours.Add(matched)
	c.Multiplier = a.Multiplier
}

func (a PayMultiplier) validate(v *ValidationError) {
	if !a.Multiplier.IsPositive() {
		v.add("actions.pay_multiplier", "must be positive")
	}
}

type FlatAllowance struct {
	Amount Money
	Name   string // allowance_name; defaults to "flat_allowance"
}

func (FlatAllowance) Kind() ActionKind             { return ActFlatAllowance }
func (FlatAllowance) ComponentType() ComponentType { return ComponentAllowance }
func (a FlatAllowance) Component() string          { return nameOr(a.Name, string(ActFlatAllowance)) }

func (a FlatAllowance) apply(c *PayComponent, _ Hours) {
	c.Amount = c.Amount.Add(a.Amount)
}

func (a FlatAllowance) validate(v *ValidationError) {
	if !a.Amount.IsPositive() {
		v.add("actions.flat_allowance", "must be positive")
	}
}

type ShiftDifferential struct {
	Rate Money
	Name string // differential_name; defaults to "shift_differential"
}

func (ShiftDifferential) Kind() ActionKind             { return ActShiftDifferential }
func (ShiftDifferential) ComponentType() ComponentType { return ComponentDifferential }
func (a ShiftDifferential) Component() string          { return nameOr(a.Name, string(ActShiftDifferential)) }

func (a ShiftDifferential) apply(c *PayComponent, matched Hours) {
	c.Hours = c.Hours.Add(matched)
	c.Differential = a.Rate
	c.Amount = c.Amount.Add(matched.Mul(a.Rate))
}

func (a ShiftDifferential) validate(v *ValidationError) {
	if !a.Rate.IsPositive() {
		v.add("actions.shift_differential", "must be positive")
	}
}

func nameOr(name, fallback string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return fallback
}
