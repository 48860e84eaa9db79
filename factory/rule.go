/*
Package factory provides JSON to Go pay rule conversion.

PURPOSE:
  Converts JSON pay rule definitions into payroll.PayRule values and back.
  Administrators author rules as JSON (admin UI, seed files, presets); the
  factory turns each recognized condition or action key into its typed
  variant and rejects unknown keys instead of ignoring them.

JSON SCHEMA:
  {
    "name": "Night Shift Premium",
    "description": "Differential for shifts starting 22:00-06:00",
    "priority": 40,
    "is_active": true,
    "conditions": {
      "day_of_week": [0, 6],
      "time_range": {"start": 22, "end": 6},
      "overtime_threshold": 0,
      "employee_ids": ["emp-1"],
      "roles": ["nurse"],
      "tier": ["overtime", "double_time"]
    },
    "actions": {
      "pay_multiplier": 1.5,       "component_name": "overtime",
      "flat_allowance": 25,        "allowance_name": "meal",
      "shift_differential": 2.5,   "differential_name": "night"
    }
  }

DEFAULTS:
  - priority:  100 when omitted
  - is_active: true when omitted

SEE ALSO:
  - payroll/rule.go: PayRule and the closed condition/action variants
  - factory/presets.go: Built-in example rules
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/pay-engine/payroll"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RuleJSON is the JSON representation of a pay rule.
type RuleJSON struct {
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Priority    *int           `json:"priority,omitempty"`
	IsActive    *bool          `json:"is_active,omitempty"`
	Conditions  ConditionsJSON `json:"conditions"`
	Actions     ActionsJSON    `json:"actions"`
	Version     int            `json:"version,omitempty"`
	CreatedBy   string         `json:"created_by,omitempty"`
	CreatedAt   *time.Time     `json:"created_at,omitempty"`
	UpdatedAt   *time.Time     `json:"updated_at,omitempty"`
}

// ConditionsJSON holds the recognized predicates. Absent keys are unconstrained.
type ConditionsJSON struct {
	DayOfWeek         []int            `json:"day_of_week,omitempty"`
	TimeRange         *TimeRangeJSON   `json:"time_range,omitempty"`
	OvertimeThreshold *decimal.Decimal `json:"overtime_threshold,omitempty"`
	EmployeeIDs       []string         `json:"employee_ids,omitempty"`
	Roles             []string         `json:"roles,omitempty"`
	Tier              []string         `json:"tier,omitempty"`
}

// TimeRangeJSON is a clock-in hour window [start, end).
type TimeRangeJSON struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ActionsJSON holds the recognized effects and their optional component names.
type ActionsJSON struct {
	PayMultiplier     *decimal.Decimal `json:"pay_multiplier,omitempty"`
	ComponentName     string           `json:"component_name,omitempty"`
	FlatAllowance     *decimal.Decimal `json:"flat_allowance,omitempty"`
	AllowanceName     string           `json:"allowance_name,omitempty"`
	ShiftDifferential *decimal.Decimal `json:"shift_differential,omitempty"`
	DifferentialName  string           `json:"differential_name,omitempty"`
}

// =============================================================================
// RULE FACTORY
// =============================================================================

// RuleFactory converts JSON pay rules to Go structs.
type RuleFactory struct{}

func NewRuleFactory() *RuleFactory {
	return &RuleFactory{}
}

// ParseRule decodes a JSON rule. Unknown keys anywhere in the payload are a
// validation error.
func (f *RuleFactory) ParseRule(data []byte) (payroll.PayRule, error) {
	var rj RuleJSON
	if err := decodeStrict(data, &rj); err != nil {
		return payroll.PayRule{}, err
	}
	return f.FromJSON(rj)
}

// FromJSON converts a RuleJSON into a PayRule. Field-level validation is left
// to PayRule.Validate; only structural problems are reported here.
func (f *RuleFactory) FromJSON(rj RuleJSON) (payroll.PayRule, error) {
	if err := CheckActionNames(rj.Actions); err != nil {
		return payroll.PayRule{}, err
	}
	rule := payroll.PayRule{
		ID:          payroll.RuleID(rj.ID),
		Name:        rj.Name,
		Description: rj.Description,
		Priority:    payroll.DefaultPriority,
		Active:      true,
		Conditions:  ParseConditions(rj.Conditions),
		Actions:     ParseActions(rj.Actions),
		Version:     rj.Version,
		CreatedBy:   rj.CreatedBy,
	}
	if rj.Priority != nil {
		rule.Priority = *rj.Priority
	}
	if rj.IsActive != nil {
		rule.Active = *rj.IsActive
	}
	if rj.CreatedAt != nil {
		rule.CreatedAt = *rj.CreatedAt
	}
	if rj.UpdatedAt != nil {
		rule.UpdatedAt = *rj.UpdatedAt
	}
	return rule, nil
}

// ToJSON converts a PayRule to its JSON representation.
func (f *RuleFactory) ToJSON(rule payroll.PayRule) RuleJSON {
	priority, active := rule.Priority, rule.Active
	rj := RuleJSON{
		ID:          string(rule.ID),
		Name:        rule.Name,
		Description: rule.Description,
		Priority:    &priority,
		IsActive:    &active,
		Conditions:  FormatConditions(rule.Conditions),
		Actions:     FormatActions(rule.Actions),
		Version:     rule.Version,
		CreatedBy:   rule.CreatedBy,
	}
	if !rule.CreatedAt.IsZero() {
		t := rule.CreatedAt
		rj.CreatedAt = &t
	}
	if !rule.UpdatedAt.IsZero() {
		t := rule.UpdatedAt
		rj.UpdatedAt = &t
	}
	return rj
}

// =============================================================================
// CONDITIONS / ACTIONS
// =============================================================================

// ParseConditions builds condition variants in a fixed kind order. A key that
// is present but empty still yields a variant so validation can report it.
func ParseConditions(cj ConditionsJSON) []payroll.Condition {
	var out []payroll.Condition
	if cj.DayOfWeek != nil {
		days := make([]time.Weekday, len(cj.DayOfWeek))
		for i, d := range cj.DayOfWeek {
			days[i] = time.Weekday(d)
		}
		out = append(out, payroll.DayOfWeek{Days: days})
	}
	if cj.TimeRange != nil {
		out = append(out, payroll.TimeRange{Start: cj.TimeRange.Start, End: cj.TimeRange.End})
	}
	if cj.OvertimeThreshold != nil {
		out = append(out, payroll.OvertimeThreshold{Hours: *cj.OvertimeThreshold})
	}
	if cj.EmployeeIDs != nil {
		ids := make([]payroll.EmployeeID, len(cj.EmployeeIDs))
		for i, id := range cj.EmployeeIDs {
			ids[i] = payroll.EmployeeID(id)
		}
		out = append(out, payroll.EmployeeIDs{IDs: ids})
	}
	if cj.Roles != nil {
		out = append(out, payroll.Roles{Roles: append([]string(nil), cj.Roles...)})
	}
	if cj.Tier != nil {
		tiers := make([]payroll.Tier, len(cj.Tier))
		for i, t := range cj.Tier {
			tiers[i] = payroll.Tier(t)
		}
		out = append(out, payroll.TierFilter{Tiers: tiers})
	}
	return out
}

func FormatConditions(conds []payroll.Condition) ConditionsJSON {
	var cj ConditionsJSON
	for _, c := range conds {
		switch c := c.(type) {
		case payroll.DayOfWeek:
			cj.DayOfWeek = make([]int, len(c.Days))
			for i, d := range c.Days {
				cj.DayOfWeek[i] = int(d)
			}
		case payroll.TimeRange:
			cj.TimeRange = &TimeRangeJSON{Start: c.Start, End: c.End}
		case payroll.OvertimeThreshold:
			h := c.Hours
			cj.OvertimeThreshold = &h
		case payroll.EmployeeIDs:
			cj.EmployeeIDs = make([]string, len(c.IDs))
			for i, id := range c.IDs {
				cj.EmployeeIDs[i] = string(id)
			}
		case payroll.Roles:
			cj.Roles = append([]string(nil), c.Roles...)
		case payroll.TierFilter:
			cj.Tier = make([]string, len(c.Tiers))
			for i, t := range c.Tiers {
				cj.Tier[i] = string(t)
			}
		}
	}
	return cj
}

// CheckActionNames rejects component names given without the action they name.
func CheckActionNames(aj ActionsJSON) error {
	v := &payroll.ValidationError{}
	orphan := func(field, action string) {
		v.Fields = append(v.Fields, payroll.FieldError{
			Field:   "actions." + field,
			Message: "requires " + action,
		})
	}
	if aj.ComponentName != "" && aj.PayMultiplier == nil {
		orphan("component_name", "pay_multiplier")
	}
	if aj.AllowanceName != "" && aj.FlatAllowance == nil {
		orphan("allowance_name", "flat_allowance")
	}
	if aj.DifferentialName != "" && aj.ShiftDifferential == nil {
		orphan("differential_name", "shift_differential")
	}
	if len(v.Fields) > 0 {
		return v
	}
	return nil
}

// ParseActions builds action variants in a fixed kind order. Callers check
// names with CheckActionNames first.
func ParseActions(aj ActionsJSON) []payroll.Action {
	var out []payroll.Action
	if aj.PayMultiplier != nil {
		out = append(out, payroll.PayMultiplier{Multiplier: *aj.PayMultiplier, Name: aj.ComponentName})
	}
	if aj.FlatAllowance != nil {
		out = append(out, payroll.FlatAllowance{Amount: *aj.FlatAllowance, Name: aj.AllowanceName})
	}
	if aj.ShiftDifferential != nil {
		out = append(out, payroll.ShiftDifferential{Rate: *aj.ShiftDifferential, Name: aj.DifferentialName})
	}
	return out
}

func FormatActions(actions []payroll.Action) ActionsJSON {
	var aj ActionsJSON
	for _, a := range actions {
		switch a := a.(type) {
		case payroll.PayMultiplier:
			m := a.Multiplier
			aj.PayMultiplier, aj.ComponentName = &m, a.Name
		case payroll.FlatAllowance:
			amt := a.Amount
			aj.FlatAllowance, aj.AllowanceName = &amt, a.Name
		case payroll.ShiftDifferential:
			r := a.Rate
			aj.ShiftDifferential, aj.DifferentialName = &r, a.Name
		}
	}
	return aj
}

// =============================================================================
// STORAGE ENCODING
// =============================================================================

// EncodeBody serializes a rule's conditions and actions for storage.
func EncodeBody(rule payroll.PayRule) (conditions, actions []byte, err error) {
	if conditions, err = json.Marshal(FormatConditions(rule.Conditions)); err != nil {
		return nil, nil, fmt.Errorf("encode conditions: %w", err)
	}
	if actions, err = json.Marshal(FormatActions(rule.Actions)); err != nil {
		return nil, nil, fmt.Errorf("encode actions: %w", err)
	}
	return conditions, actions, nil
}

// DecodeBody is the inverse of EncodeBody.
func DecodeBody(conditions, actions []byte) ([]payroll.Condition, []payroll.Action, error) {
	var cj ConditionsJSON
	if err := decodeStrict(conditions, &cj); err != nil {
		return nil, nil, fmt.Errorf("decode conditions: %w", err)
	}
	var aj ActionsJSON
	if err := decodeStrict(actions, &aj); err != nil {
		return nil, nil, fmt.Errorf("decode actions: %w", err)
	}
	if err := CheckActionNames(aj); err != nil {
		return nil, nil, fmt.Errorf("decode actions: %w", err)
	}
	return ParseConditions(cj), ParseActions(aj), nil
}

// decodeStrict unmarshals a single JSON value, rejecting unknown fields.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return payroll.NewFieldError("body", "%v", err)
	}
	if dec.More() {
		return payroll.NewFieldError("body", "unexpected data after JSON value")
	}
	return nil
}
