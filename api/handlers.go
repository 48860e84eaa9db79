/*
handlers.go - HTTP API handlers for the pay engine

PURPOSE:
  Exposes rule administration, calculations and the directory/time-entry
  collaborators via REST API. Handles HTTP request/response and JSON
  serialization, and delegates to the payroll package.

ENDPOINTS:
  Rules:
    GET    /api/rules                    List rules in evaluation order
    POST   /api/rules                    Create rule
    POST   /api/rules/validate           Validate a rule payload without saving
    POST   /api/rules/reorder            Assign priorities atomically
    GET    /api/rules/examples           List example rules
    GET    /api/rules/examples/{key}     Get one example rule
    GET    /api/rules/{id}               Get rule
    PUT    /api/rules/{id}               Replace rule
    DELETE /api/rules/{id}               Delete rule
    POST   /api/rules/{id}/toggle        Flip active flag

  Calculations:
    POST   /api/calculations             Calculate one employee/period
    POST   /api/calculations/batch       Calculate many employees for one period
    POST   /api/calculations/preview     Evaluate without saving, with trace
    GET    /api/calculations             List (employee_id, period_start, period_end, latest)
    GET    /api/calculations/{id}        Get calculation

  Scenarios:
    GET    /api/scenarios                List demo scenarios
    POST   /api/scenarios/load           Reset stores and load a scenario

  Directory:
    GET    /api/employees                     List employees
    POST   /api/employees                     Create or replace employee
    GET    /api/employees/{id}                Get employee
    GET    /api/employees/{id}/time-entries   List time entries
    POST   /api/employees/{id}/time-entries   Record time entry

ACTOR:
  The X-Actor-ID header names the administrator or service making the call.
  It is recorded as created_by on rules and calculated_by on calculations.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Duplicate calculation, concurrent rule modification, component conflict
  - 422: No eligible time entries
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/warp/pay-engine/factory"
	"github.com/warp/pay-engine/payroll"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// DirectoryStore is the directory plus its write side.
type DirectoryStore interface {
	payroll.Directory
	PutEmployee(ctx context.Context, emp payroll.Employee) error
	AddTimeEntry(ctx context.Context, entry payroll.TimeEntry) error
	ListTimeEntries(ctx context.Context, id payroll.EmployeeID) ([]payroll.TimeEntry, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Rules        payroll.RuleStore
	Admin        *payroll.RuleAdmin
	Calculator   *payroll.Calculator
	Calculations payroll.CalculationStore
	Directory    DirectoryStore
	RuleFactory  *factory.RuleFactory
	Logger       *slog.Logger

	// Reset clears the stores before a demo scenario loads. Nil disables scenarios.
	Reset Resetter

	// BatchConcurrency is used when a batch request does not set one.
	BatchConcurrency int
}

const defaultActor = "api"

func actorID(r *http.Request) string {
	if a := strings.TrimSpace(r.Header.Get("X-Actor-ID")); a != "" {
		return a
	}
	return defaultActor
}

// =============================================================================
// RULE ENDPOINTS
// =============================================================================

func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Rules.ListRules(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	out := make([]factory.RuleJSON, len(rules))
	for i, rule := range rules {
		out[i] = h.RuleFactory.ToJSON(rule)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.Rules.GetRule(r.Context(), payroll.RuleID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.RuleFactory.ToJSON(rule))
}

func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.decodeRule(w, r)
	if !ok {
		return
	}
	created, err := h.Admin.Create(r.Context(), rule, actorID(r))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.RuleFactory.ToJSON(created))
}

func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	edit, ok := h.decodeRule(w, r)
	if !ok {
		return
	}
	updated, err := h.Admin.Update(r.Context(), payroll.RuleID(chi.URLParam(r, "id")), edit, actorID(r))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.RuleFactory.ToJSON(updated))
}

func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.Admin.Delete(r.Context(), payroll.RuleID(chi.URLParam(r, "id")), actorID(r)); err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ToggleRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.Admin.Toggle(r.Context(), payroll.RuleID(chi.URLParam(r, "id")), actorID(r))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.RuleFactory.ToJSON(rule))
}

func (h *Handler) ReorderRules(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Priorities) == 0 {
		writeError(w, http.StatusBadRequest, "priorities is required", nil)
		return
	}
	priorities := make(map[payroll.RuleID]int, len(req.Priorities))
	for _, p := range req.Priorities {
		priorities[payroll.RuleID(p.ID)] = p.Priority
	}
	if err := h.Admin.Reorder(r.Context(), priorities, actorID(r)); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.ListRules(w, r)
}

// ValidateRule reports every field error of a payload without saving it.
func (h *Handler) ValidateRule(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	resp := ValidateRuleResponse{Valid: true, Errors: []FieldErrorDTO{}}
	rule, err := h.RuleFactory.ParseRule(body)
	if err == nil {
		err = h.Admin.Validate(r.Context(), rule)
	}
	if err != nil {
		var verr *payroll.ValidationError
		if !errors.As(err, &verr) {
			h.writeEngineError(w, err)
			return
		}
		resp.Valid = false
		resp.Errors = fieldErrors(verr)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ListExamples(w http.ResponseWriter, r *http.Request) {
	names := factory.ExampleNames()
	out := make([]ExampleDTO, 0, len(names))
	for _, name := range names {
		rj, _ := factory.Example(name)
		out = append(out, ExampleDTO{Key: name, Rule: rj})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetExample(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	rj, ok := factory.Example(key)
	if !ok {
		writeError(w, http.StatusNotFound, "Example rule not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, ExampleDTO{Key: key, Rule: rj})
}

func (h *Handler) decodeRule(w http.ResponseWriter, r *http.Request) (payroll.PayRule, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return payroll.PayRule{}, false
	}
	rule, err := h.RuleFactory.ParseRule(body)
	if err != nil {
		h.writeEngineError(w, err)
		return payroll.PayRule{}, false
	}
	return rule, true
}

// =============================================================================
// CALCULATION ENDPOINTS
// =============================================================================

func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "employee_id is required", nil)
		return
	}
	period, err := payroll.ParsePeriod(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	calc, err := h.Calculator.Calculate(r.Context(), payroll.CalculationRequest{
		EmployeeID:  payroll.EmployeeID(req.EmployeeID),
		Period:      period,
		ActorID:     actorID(r),
		Recalculate: req.Recalculate,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCalculationDTO(calc))
}

func (h *Handler) CalculateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchCalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	period, err := payroll.ParsePeriod(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	ids := make([]payroll.EmployeeID, 0, len(req.EmployeeIDs))
	for _, id := range req.EmployeeIDs {
		ids = append(ids, payroll.EmployeeID(id))
	}
	if len(ids) == 0 {
		employees, err := h.Directory.ListEmployees(r.Context())
		if err != nil {
			h.writeEngineError(w, err)
			return
		}
		for _, e := range employees {
			ids = append(ids, e.ID)
		}
	}

	concurrency := req.Concurrency
	if concurrency < 1 {
		concurrency = h.BatchConcurrency
	}
	report, err := h.Calculator.CalculateBatch(r.Context(), payroll.BatchRequest{
		EmployeeIDs: ids,
		Period:      period,
		ActorID:     actorID(r),
		Recalculate: req.Recalculate,
		Concurrency: concurrency,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResponse(report))
}

func toBatchResponse(report *payroll.BatchReport) BatchResponse {
	resp := BatchResponse{
		PeriodStart:    report.Period.Start.Format(payroll.DateLayout),
		PeriodEnd:      report.Period.End.Format(payroll.DateLayout),
		RuleSetVersion: report.RuleSetVersion,
		Results:        make([]BatchResultDTO, len(report.Results)),
	}
	for i, res := range report.Results {
		dto := BatchResultDTO{EmployeeID: string(res.EmployeeID), Status: res.Stage()}
		if res.Err != nil {
			dto.Error = res.Err.Error()
			resp.Failed++
		} else {
			c := toCalculationDTO(res.Calculation)
			dto.Calculation = &c
			resp.Succeeded++
		}
		resp.Results[i] = dto
	}
	return resp
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "employee_id is required", nil)
		return
	}
	period, err := payroll.ParsePeriod(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}
	ruleIDs := make([]payroll.RuleID, len(req.RuleIDs))
	for i, id := range req.RuleIDs {
		ruleIDs[i] = payroll.RuleID(id)
	}

	res, err := h.Calculator.Preview(r.Context(), payroll.PreviewRequest{
		EmployeeID: payroll.EmployeeID(req.EmployeeID),
		Period:     period,
		ActorID:    actorID(r),
		RuleIDs:    ruleIDs,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	issues := res.Issues
	if issues == nil {
		issues = []string{}
	}
	writeJSON(w, http.StatusOK, PreviewResponse{
		Calculation: toCalculationDTO(res.Calculation),
		Trace:       toTraceDTOs(res.Trace),
		Issues:      issues,
	})
}

func (h *Handler) ListCalculations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := payroll.CalculationFilter{
		EmployeeID: payroll.EmployeeID(q.Get("employee_id")),
		LatestOnly: q.Get("latest") == "true",
	}
	if q.Get("period_start") != "" || q.Get("period_end") != "" {
		period, err := payroll.ParsePeriod(q.Get("period_start"), q.Get("period_end"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid period", err)
			return
		}
		filter.Period = &period
	}

	calcs, err := h.Calculations.ListCalculations(r.Context(), filter)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	out := make([]CalculationDTO, len(calcs))
	for i, c := range calcs {
		out[i] = toCalculationDTO(c)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetCalculation(w http.ResponseWriter, r *http.Request) {
	calc, err := h.Calculations.GetCalculation(r.Context(), payroll.CalculationID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCalculationDTO(calc))
}

// =============================================================================
// DIRECTORY ENDPOINTS
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Directory.ListEmployees(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	out := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		out[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req EmployeeDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}
	emp := payroll.Employee{
		ID:         payroll.EmployeeID(req.ID),
		Name:       req.Name,
		Roles:      req.Roles,
		Department: req.Department,
	}
	if err := h.Directory.PutEmployee(r.Context(), emp); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Directory.GetEmployeeAttributes(r.Context(), payroll.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

func (h *Handler) ListTimeEntries(w http.ResponseWriter, r *http.Request) {
	id := payroll.EmployeeID(chi.URLParam(r, "id"))
	if _, err := h.Directory.GetEmployeeAttributes(r.Context(), id); err != nil {
		h.writeEngineError(w, err)
		return
	}
	entries, err := h.Directory.ListTimeEntries(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	out := make([]TimeEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = toTimeEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateTimeEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateTimeEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ClockIn.IsZero() {
		writeError(w, http.StatusBadRequest, "clock_in is required", nil)
		return
	}
	if req.ClockOut != nil && !req.ClockOut.After(req.ClockIn) {
		writeError(w, http.StatusBadRequest, "clock_out must be after clock_in", nil)
		return
	}
	if req.BreakMinutes < 0 {
		writeError(w, http.StatusBadRequest, "break_minutes must be non-negative", nil)
		return
	}

	entry := payroll.TimeEntry{
		ID:           payroll.EntryID(req.ID),
		EmployeeID:   payroll.EmployeeID(chi.URLParam(r, "id")),
		ClockIn:      req.ClockIn,
		ClockOut:     req.ClockOut,
		BreakMinutes: req.BreakMinutes,
		Status:       payroll.EntryClosed,
		Approved:     true,
	}
	if req.ClockOut == nil {
		entry.Status = payroll.EntryOpen
	}
	if req.Status != "" {
		entry.Status = payroll.EntryStatus(req.Status)
	}
	if req.Approved != nil {
		entry.Approved = *req.Approved
	}
	switch entry.Status {
	case payroll.EntryOpen, payroll.EntryClosed, payroll.EntryException:
	default:
		writeError(w, http.StatusBadRequest, "status must be open, closed or exception", nil)
		return
	}

	if err := h.Directory.AddTimeEntry(r.Context(), entry); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTimeEntryDTO(entry))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps payroll errors onto HTTP statuses.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	var verr *payroll.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Details: err.Error(),
			Fields:  fieldErrors(verr),
		})
	case errors.Is(err, payroll.ErrInvalidPeriod):
		writeError(w, http.StatusBadRequest, "Invalid period", err)
	case payroll.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, payroll.ErrDuplicateCalculation):
		writeError(w, http.StatusConflict, "Calculation already exists", err)
	case errors.Is(err, payroll.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "Concurrent rule modification, retry", err)
	case errors.Is(err, payroll.ErrComponentConflict):
		writeError(w, http.StatusConflict, "Component type conflict", err)
	case errors.Is(err, payroll.ErrNoEligibleEntries):
		writeError(w, http.StatusUnprocessableEntity, "No eligible time entries", err)
	default:
		h.logger().Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func fieldErrors(verr *payroll.ValidationError) []FieldErrorDTO {
	out := make([]FieldErrorDTO, len(verr.Fields))
	for i, f := range verr.Fields {
		out[i] = FieldErrorDTO{Field: f.Field, Message: f.Message}
	}
	return out
}
