/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Rules:
    factory.RuleJSON (request and response), ReorderRequest,
    ValidateRuleResponse, ExampleDTO

  Calculations:
    CalculateRequest, BatchCalculateRequest, BatchResponse,
    PreviewRequest, PreviewResponse, CalculationDTO

  Directory:
    EmployeeDTO, TimeEntryDTO, CreateTimeEntryRequest

VALIDATION:
  Validation is done in handlers and the engine, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rule.go: RuleJSON type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/pay-engine/factory"
	"github.com/warp/pay-engine/payroll"
)

// =============================================================================
// RULES
// =============================================================================

// ReorderRequest assigns new priorities to a batch of rules atomically.
type ReorderRequest struct {
	Priorities []RulePriority `json:"priorities"`
}

type RulePriority struct {
	ID       string `json:"id"`
	Priority int    `json:"priority"`
}

type FieldErrorDTO struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidateRuleResponse struct {
	Valid  bool            `json:"valid"`
	Errors []FieldErrorDTO `json:"errors"`
}

type ExampleDTO struct {
	Key  string           `json:"key"`
	Rule factory.RuleJSON `json:"rule"`
}

// =============================================================================
// CALCULATIONS
// =============================================================================

type CalculateRequest struct {
	EmployeeID  string `json:"employee_id"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	Recalculate bool   `json:"recalculate"`
}

// BatchCalculateRequest calculates one period for many employees. An empty
// employee list means every employee in the directory.
type BatchCalculateRequest struct {
	EmployeeIDs []string `json:"employee_ids"`
	PeriodStart string   `json:"period_start"`
	PeriodEnd   string   `json:"period_end"`
	Recalculate bool     `json:"recalculate"`
	Concurrency int      `json:"concurrency,omitempty"`
}

type BatchResultDTO struct {
	EmployeeID  string          `json:"employee_id"`
	Status      payroll.Stage   `json:"status"`
	Calculation *CalculationDTO `json:"calculation,omitempty"`
	Error       string          `json:"error,omitempty"`
}

type BatchResponse struct {
	PeriodStart    string           `json:"period_start"`
	PeriodEnd      string           `json:"period_end"`
	RuleSetVersion int64            `json:"rule_set_version"`
	Succeeded      int              `json:"succeeded"`
	Failed         int              `json:"failed"`
	Results        []BatchResultDTO `json:"results"`
}

type PreviewRequest struct {
	EmployeeID  string   `json:"employee_id"`
	PeriodStart string   `json:"period_start"`
	PeriodEnd   string   `json:"period_end"`
	RuleIDs     []string `json:"rule_ids,omitempty"`
}

type TraceEventDTO struct {
	RuleID       string          `json:"rule_id"`
	RuleName     string          `json:"rule_name"`
	EntryID      string          `json:"entry_id"`
	Matched      bool            `json:"matched"`
	MatchedHours decimal.Decimal `json:"matched_hours"`
	Components   []string        `json:"components,omitempty"`
}

type PreviewResponse struct {
	Calculation CalculationDTO  `json:"calculation"`
	Trace       []TraceEventDTO `json:"trace"`
	Issues      []string        `json:"issues"`
}

// CalculationDTO is the persisted calculation as displayed.
type CalculationDTO struct {
	ID              string             `json:"id,omitempty"`
	EmployeeID      string             `json:"employee_id"`
	PeriodStart     string             `json:"period_start"`
	PeriodEnd       string             `json:"period_end"`
	Revision        int                `json:"revision,omitempty"`
	TotalHours      decimal.Decimal    `json:"total_hours"`
	RegularHours    decimal.Decimal    `json:"regular_hours"`
	OvertimeHours   decimal.Decimal    `json:"overtime_hours"`
	DoubleTimeHours decimal.Decimal    `json:"double_time_hours"`
	TotalAllowances decimal.Decimal    `json:"total_allowances"`
	PayComponents   payroll.Components `json:"pay_components"`
	EntryIDs        []payroll.EntryID  `json:"entry_ids"`
	RuleSetVersion  int64              `json:"rule_set_version"`
	CalculatedAt    time.Time          `json:"calculated_at"`
	CalculatedBy    string             `json:"calculated_by"`
}

func toCalculationDTO(c *payroll.PayCalculation) CalculationDTO {
	comps := c.Components
	if comps == nil {
		comps = payroll.Components{}
	}
	return CalculationDTO{
		ID:              string(c.ID),
		EmployeeID:      string(c.EmployeeID),
		PeriodStart:     c.Period.Start.Format(payroll.DateLayout),
		PeriodEnd:       c.Period.End.Format(payroll.DateLayout),
		Revision:        c.Revision,
		TotalHours:      c.TotalHours,
		RegularHours:    c.RegularHours,
		OvertimeHours:   c.OvertimeHours,
		DoubleTimeHours: c.DoubleTimeHours,
		TotalAllowances: c.TotalAllowances,
		PayComponents:   comps,
		EntryIDs:        c.EntryIDs,
		RuleSetVersion:  c.RuleSetVersion,
		CalculatedAt:    c.CalculatedAt,
		CalculatedBy:    c.CalculatedBy,
	}
}

func toTraceDTOs(trace []payroll.TraceEvent) []TraceEventDTO {
	out := make([]TraceEventDTO, len(trace))
	for i, ev := range trace {
		out[i] = TraceEventDTO{
			RuleID:       string(ev.RuleID),
			RuleName:     ev.RuleName,
			EntryID:      string(ev.EntryID),
			Matched:      ev.Matched,
			MatchedHours: ev.MatchedHours,
			Components:   ev.Components,
		}
	}
	return out
}

// =============================================================================
// DIRECTORY
// =============================================================================

// EmployeeDTO represents an employee in requests and responses.
type EmployeeDTO struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Roles      []string `json:"roles"`
	Department string   `json:"department,omitempty"`
}

func toEmployeeDTO(e payroll.Employee) EmployeeDTO {
	roles := e.Roles
	if roles == nil {
		roles = []string{}
	}
	return EmployeeDTO{ID: string(e.ID), Name: e.Name, Roles: roles, Department: e.Department}
}

type TimeEntryDTO struct {
	ID           string          `json:"id"`
	EmployeeID   string          `json:"employee_id"`
	ClockIn      time.Time       `json:"clock_in"`
	ClockOut     *time.Time      `json:"clock_out,omitempty"`
	BreakMinutes int             `json:"break_minutes"`
	Status       string          `json:"status"`
	Approved     bool            `json:"approved"`
	Hours        decimal.Decimal `json:"hours"`
}

func toTimeEntryDTO(e payroll.TimeEntry) TimeEntryDTO {
	return TimeEntryDTO{
		ID:           string(e.ID),
		EmployeeID:   string(e.EmployeeID),
		ClockIn:      e.ClockIn,
		ClockOut:     e.ClockOut,
		BreakMinutes: e.BreakMinutes,
		Status:       string(e.Status),
		Approved:     e.Approved,
		Hours:        e.WorkedHours(),
	}
}

// CreateTimeEntryRequest records an entry. Status defaults to closed and
// approved to true.
type CreateTimeEntryRequest struct {
	ID           string     `json:"id,omitempty"`
	ClockIn      time.Time  `json:"clock_in"`
	ClockOut     *time.Time `json:"clock_out,omitempty"`
	BreakMinutes int        `json:"break_minutes"`
	Status       string     `json:"status,omitempty"`
	Approved     *bool      `json:"approved,omitempty"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string          `json:"error"`
	Details string          `json:"details,omitempty"`
	Fields  []FieldErrorDTO `json:"fields,omitempty"`
}
