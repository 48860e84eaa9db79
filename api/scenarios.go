/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the stores with realistic
  employees, time entries and pay rules. Each scenario demonstrates one
  behavior of the engine and names the pay period to calculate.

AVAILABLE SCENARIOS:
  saturday-overtime:   10h Saturday shift, overtime-tier 1.5x
  night-shift:         Shifts starting 22:00-06:00 with a night differential
  allowance-stacking:  Two allowance rules on one component, priority order
  team-batch:          Several employees for a batch run, one with no entries

HOW SCENARIOS WORK:
 1. Reset the stores (clear all data)
 2. Decode the scenario's YAML seed
 3. Apply it: employees, time entries, then rules through RuleAdmin

USAGE VIA API:
  GET  /api/scenarios
  POST /api/scenarios/load
  {"scenario_id": "saturday-overtime"}

NOTE:
  Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - factory/seed.go: Seed format and Apply
  - handlers.go: Handler dependencies
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/warp/pay-engine/factory"
)

// Resetter clears every store before a scenario is loaded.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Scenario is a named demo data set.
type Scenario struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	seed        string
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type LoadScenarioResponse struct {
	Scenario    Scenario `json:"scenario"`
	Employees   int      `json:"employees"`
	TimeEntries int      `json:"time_entries"`
	Rules       int      `json:"rules"`
}

var scenarios = []Scenario{
	{
		ID:          "saturday-overtime",
		Name:        "Saturday Overtime",
		Description: "One 10 hour Saturday shift; overtime-tier hours on Saturdays pay 1.5x",
		PeriodStart: "2025-03-10",
		PeriodEnd:   "2025-03-23",
		seed: `
employees:
  - {id: emp-ada, name: Ada Lovelace, roles: [nurse], department: icu}
time_entries:
  - {id: te-sat, employee_id: emp-ada, clock_in: 2025-03-15T08:00:00Z, clock_out: 2025-03-15T18:00:00Z}
rules:
  - name: Saturday Overtime
    priority: 10
    conditions: {day_of_week: [6], tier: [overtime]}
    actions: {pay_multiplier: 1.5, component_name: overtime}
`,
	},
	{
		ID:          "night-shift",
		Name:        "Night Shift",
		Description: "Three shifts, two starting inside the 22:00-06:00 window",
		PeriodStart: "2025-03-10",
		PeriodEnd:   "2025-03-23",
		seed: `
employees:
  - {id: emp-grace, name: Grace Hopper, roles: [nurse], department: er}
time_entries:
  - {id: te-n1, employee_id: emp-grace, clock_in: 2025-03-11T22:00:00Z, clock_out: 2025-03-12T06:30:00Z, break_minutes: 30}
  - {id: te-n2, employee_id: emp-grace, clock_in: 2025-03-12T23:00:00Z, clock_out: 2025-03-13T07:00:00Z}
  - {id: te-d1, employee_id: emp-grace, clock_in: 2025-03-14T09:00:00Z, clock_out: 2025-03-14T17:00:00Z}
rules:
  - name: Night Shift Premium
    priority: 40
    conditions: {time_range: {start: 22, end: 6}}
    actions: {shift_differential: 3.00, differential_name: night_shift}
`,
	},
	{
		ID:          "allowance-stacking",
		Name:        "Allowance Stacking",
		Description: "Two allowances on the same component sum, listed in priority order",
		PeriodStart: "2025-03-10",
		PeriodEnd:   "2025-03-23",
		seed: `
employees:
  - {id: emp-alan, name: Alan Turing, roles: [paramedic], department: transport}
time_entries:
  - {id: te-a1, employee_id: emp-alan, clock_in: 2025-03-16T07:00:00Z, clock_out: 2025-03-16T15:00:00Z}
rules:
  - name: Field Meal Top-up
    priority: 20
    conditions: {roles: [paramedic]}
    actions: {flat_allowance: 30, allowance_name: meal}
  - name: Field Meal
    priority: 10
    conditions: {roles: [paramedic]}
    actions: {flat_allowance: 50, allowance_name: meal}
`,
	},
	{
		ID:          "team-batch",
		Name:        "Team Batch",
		Description: "Three employees for one biweekly period; one has no approved entries",
		PeriodStart: "2025-03-10",
		PeriodEnd:   "2025-03-23",
		seed: `
employees:
  - {id: emp-1, name: Katherine Johnson, roles: [nurse]}
  - {id: emp-2, name: Dorothy Vaughan, roles: [nurse, lead]}
  - {id: emp-3, name: Mary Jackson, roles: [porter]}
time_entries:
  - {id: te-1a, employee_id: emp-1, clock_in: 2025-03-10T07:00:00Z, clock_out: 2025-03-10T20:00:00Z}
  - {id: te-1b, employee_id: emp-1, clock_in: 2025-03-16T08:00:00Z, clock_out: 2025-03-16T16:00:00Z}
  - {id: te-2a, employee_id: emp-2, clock_in: 2025-03-11T06:00:00Z, clock_out: 2025-03-11T15:00:00Z}
  - {id: te-3a, employee_id: emp-3, clock_in: 2025-03-12T08:00:00Z, clock_out: 2025-03-12T16:00:00Z, approved: false}
rules:
  - name: Overtime 1.5x
    priority: 10
    conditions: {tier: [overtime]}
    actions: {pay_multiplier: 1.5, component_name: overtime}
  - name: Double Time
    priority: 20
    conditions: {tier: [double_time]}
    actions: {pay_multiplier: 2, component_name: double_time}
  - name: Sunday Allowance
    priority: 50
    conditions: {day_of_week: [0]}
    actions: {flat_allowance: 25, allowance_name: sunday_allowance}
  - name: Charge Nurse Differential
    priority: 60
    conditions: {roles: [lead]}
    actions: {shift_differential: 1.25, differential_name: charge}
`,
	},
}

func findScenario(id string) (Scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return Scenario{}, false
}

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario resets the stores and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	sc, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}
	if h.Reset == nil {
		writeError(w, http.StatusNotImplemented, "Scenarios require a resettable store", nil)
		return
	}

	resp, err := h.loadScenario(r.Context(), sc)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.logger().Info("scenario loaded", "scenario_id", sc.ID, "actor_id", actorID(r))
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) loadScenario(ctx context.Context, sc Scenario) (LoadScenarioResponse, error) {
	seed, err := factory.ParseSeed([]byte(sc.seed))
	if err != nil {
		return LoadScenarioResponse{}, fmt.Errorf("scenario %s: %w", sc.ID, err)
	}
	if err := h.Reset.Reset(ctx); err != nil {
		return LoadScenarioResponse{}, fmt.Errorf("reset: %w", err)
	}
	if _, err := seed.Apply(ctx, h.Directory, h.Admin, h.logger()); err != nil {
		return LoadScenarioResponse{}, err
	}
	return LoadScenarioResponse{
		Scenario:    sc,
		Employees:   len(seed.Employees),
		TimeEntries: len(seed.TimeEntries),
		Rules:       len(seed.Rules),
	}, nil
}
