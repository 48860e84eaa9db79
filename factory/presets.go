/*
presets.go - Pre-built example pay rules

PURPOSE:
  Ready-to-use rule definitions for common payroll patterns. Administrators
  start from one of these and adjust amounts, names and priorities.

AVAILABLE EXAMPLES:
  overtime_1_5:          1.5x on overtime-tier hours
  double_time:           2x on double-time-tier hours
  weekend_differential:  per-hour differential on Saturday and Sunday
  night_shift:           per-hour differential for shifts starting 22:00-06:00
  sunday_allowance:      flat allowance per Sunday shift

EXAMPLE:
  rj, ok := factory.Example("night_shift")
  rule, _ := factory.NewRuleFactory().FromJSON(rj)
  created, err := admin.Create(ctx, rule, actorID)

SEE ALSO:
  - rule.go: JSON schema
*/
package factory

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EXAMPLE RULES
// =============================================================================

var examples = map[string]RuleJSON{
	"overtime_1_5": {
		Name:        "Overtime 1.5x",
		Description: "Time and a half for hours in the overtime tier",
		Priority:    intPtr(10),
		Conditions:  ConditionsJSON{Tier: []string{"overtime"}},
		Actions:     ActionsJSON{PayMultiplier: dec("1.5"), ComponentName: "overtime"},
	},
	"double_time": {
		Name:        "Double Time",
		Description: "Double pay for hours in the double-time tier",
		Priority:    intPtr(20),
		Conditions:  ConditionsJSON{Tier: []string{"double_time"}},
		Actions:     ActionsJSON{PayMultiplier: dec("2"), ComponentName: "double_time"},
	},
	"weekend_differential": {
		Name:        "Weekend Differential",
		Description: "Per-hour premium for Saturday and Sunday shifts",
		Priority:    intPtr(30),
		Conditions:  ConditionsJSON{DayOfWeek: []int{0, 6}},
		Actions:     ActionsJSON{ShiftDifferential: dec("2.00"), DifferentialName: "weekend"},
	},
	"night_shift": {
		Name:        "Night Shift Premium",
		Description: "Per-hour premium for shifts starting between 22:00 and 06:00",
		Priority:    intPtr(40),
		Conditions:  ConditionsJSON{TimeRange: &TimeRangeJSON{Start: 22, End: 6}},
		Actions:     ActionsJSON{ShiftDifferential: dec("3.00"), DifferentialName: "night_shift"},
	},
	"sunday_allowance": {
		Name:        "Sunday Allowance",
		Description: "Flat allowance for each Sunday shift",
		Priority:    intPtr(50),
		Conditions:  ConditionsJSON{DayOfWeek: []int{0}},
		Actions:     ActionsJSON{FlatAllowance: dec("25.00"), AllowanceName: "sunday_allowance"},
	},
}

// ExampleNames lists the preset keys in sorted order.
func ExampleNames() []string {
	names := make([]string, 0, len(examples))
	for k := range examples {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Example returns a copy of the named preset.
func Example(name string) (RuleJSON, bool) {
	rj, ok := examples[name]
	if !ok {
		return RuleJSON{}, false
	}
	return cloneJSON(rj), true
}

func cloneJSON(rj RuleJSON) RuleJSON {
	p := *rj.Priority
	rj.Priority = &p
	rj.Conditions.DayOfWeek = append([]int(nil), rj.Conditions.DayOfWeek...)
	rj.Conditions.Tier = append([]string(nil), rj.Conditions.Tier...)
	if rj.Conditions.TimeRange != nil {
		tr := *rj.Conditions.TimeRange
		rj.Conditions.TimeRange = &tr
	}
	return rj
}

func intPtr(i int) *int { return &i }

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
