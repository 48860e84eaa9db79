package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EVALUATION CONTEXT
// =============================================================================

// EvalContext is everything a condition may look at for one time entry.
type EvalContext struct {
	Employee    Employee
	EntryID     EntryID
	Date        time.Time
	ClockInHour int

	// EntryHours is the entry's full worked hours.
	EntryHours Hours
	// EntryTiers is the share of the unit's buckets owned by this entry.
	EntryTiers Tiers
	// UnitTiers are the buckets of the whole tiering unit (day or period).
	UnitTiers Tiers
}

// Weekday of the entry's work date.
func (ctx EvalContext) Weekday() time.Weekday { return ctx.Date.Weekday() }

// =============================================================================
// CONDITION EVALUATOR
// =============================================================================

// Matches reports whether every condition holds for ctx. An empty condition
// set matches everything. Conditions that constrain tiers additionally require
// the entry to own hours in those tiers.
func Matches(conds []Condition, ctx EvalContext) bool {
	for _, c := range conds {
		if !c.matches(ctx) {
			return false
		}
	}
	if tiers, constrained := constrainedTiers(conds); constrained {
		return sumTiers(ctx.EntryTiers, tiers).IsPositive()
	}
	return true
}

// MatchedHours is the hours a matching rule acts on: the entry's hours in the
// tiers its conditions constrain, or the full entry hours when unconstrained.
// A rule conditioned only on day_of_week, time_range, employee_ids or roles
// therefore acts on whole entries; add tier or overtime_threshold to restrict
// it to overtime or double-time hours.
func MatchedHours(conds []Condition, ctx EvalContext) Hours {
	tiers, constrained := constrainedTiers(conds)
	if !constrained {
		return ctx.EntryHours
	}
	return sumTiers(ctx.EntryTiers, tiers)
}

// constrainedTiers intersects the tier sets implied by the conditions.
func constrainedTiers(conds []Condition) ([]Tier, bool) {
	allowed := map[Tier]bool{TierRegular: true, TierOvertime: true, TierDoubleTime: true}
	constrained := false
	for _, c := range conds {
		var only []Tier
		switch c := c.(type) {
		case OvertimeThreshold:
			only = []Tier{TierOvertime}
		case TierFilter:
			only = c.Tiers
		default:
			continue
		}
		constrained = true
		keep := make(map[Tier]bool, len(only))
		for _, t := range only {
			keep[t] = allowed[t]
		}
		allowed = keep
	}
	if !constrained {
		return nil, false
	}
	var out []Tier
	for _, t := range []Tier{TierRegular, TierOvertime, TierDoubleTime} {
		if allowed[t] {
			out = append(out, t)
		}
	}
	return out, true
}

func sumTiers(t Tiers, tiers []Tier) Hours {
	total := decimal.Zero
	for _, tier := range tiers {
		total = total.Add(t.Get(tier))
	}
	return total
}

func (c DayOfWeek) matches(ctx EvalContext) bool {
	wd := ctx.Weekday()
	for _, d := range c.Days {
		if d == wd {
			return true
		}
	}
	return false
}

func (c TimeRange) matches(ctx EvalContext) bool {
	return c.Contains(ctx.ClockInHour)
}

// matches compares against the unit's overtime bucket, not raw worked hours.
func (c OvertimeThreshold) matches(ctx EvalContext) bool {
	return ctx.UnitTiers.Overtime.GreaterThan(c.Hours)
}

func (c EmployeeIDs) matches(ctx EvalContext) bool {
	for _, id := range c.IDs {
		if id == ctx.Employee.ID {
			return true
		}
	}
	return false
}

func (c Roles) matches(ctx EvalContext) bool {
	return ctx.Employee.HasAnyRole(c.Roles)
}

func (c TierFilter) matches(ctx EvalContext) bool {
	return sumTiers(ctx.EntryTiers, c.Tiers).IsPositive()
}
