/*
calculator.go - Calculation Orchestrator

PURPOSE:
  Drives one calculation run for one employee and one period:

    Loading -> Tiering -> Evaluating -> Assembling -> Persisted | Failed

  Loading:     employee attributes + closed entries (I/O). None -> ErrNoEligibleEntries
  Tiering:     per day or per period, entries attributed in clock-in order
  Evaluating:  for each active rule in priority order, for each entry
  Assembling:  total_allowances, hour-sum invariant check
  Persisted:   append-only save (I/O), DuplicateCalculationError without recalculate

  A failure before persistence writes nothing.

PURITY:
  Compute() covers Tiering through Assembling and performs no I/O, so runs for
  different employees share nothing mutable and may execute in parallel.

SEE ALSO:
  - batch.go: Many employees, one period, bounded concurrency
  - preview.go: Same pipeline without persistence, with a trace
*/
package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Stage is a step of the calculation state machine.
type Stage string

const (
	StageLoading    Stage = "loading"
	StageTiering    Stage = "tiering"
	StageEvaluating Stage = "evaluating"
	StageAssembling Stage = "assembling"
	StagePersisted  Stage = "persisted"
	StageFailed     Stage = "failed"
)

// =============================================================================
// PURE PIPELINE
// =============================================================================

// ComputeInput is the complete input of the pure part of a run.
type ComputeInput struct {
	Employee Employee
	Entries  []TimeEntry
	Rules    *RuleSet
	Tiering  TieringConfig
}

// TraceEvent records one rule-versus-entry evaluation.
type TraceEvent struct {
	RuleID       RuleID
	RuleName     string
	EntryID      EntryID
	Matched      bool
	MatchedHours Hours
	Components   []string
}

// ComputeResult is the output of Compute.
type ComputeResult struct {
	TotalHours      Hours
	Tiers           Tiers
	Components      Components
	TotalAllowances Money
	Trace           []TraceEvent
}

type unitEntry struct {
	entry TimeEntry
	ctx   EvalContext
}

// Compute runs Tiering, Evaluating and Assembling. It is deterministic: the
// same input always yields the same result.
func Compute(in ComputeInput) (*ComputeResult, error) {
	if err := in.Tiering.Validate(); err != nil {
		return nil, &StageError{Stage: StageTiering, EmployeeID: in.Employee.ID, Err: err}
	}

	units, total, tiers := tierEntries(in.Employee, in.Entries, in.Tiering)

	comps := make(Components)
	var trace []TraceEvent
	if in.Rules != nil {
		for _, rule := range in.Rules.rules {
			for _, u := range units {
				ev := TraceEvent{RuleID: rule.ID, RuleName: rule.Name, EntryID: u.entry.ID}
				if Matches(rule.Conditions, u.ctx) {
					ev.Matched = true
					ev.MatchedHours = MatchedHours(rule.Conditions, u.ctx)
					if err := applyInPlace(rule, ev.MatchedHours, comps); err != nil {
						return nil, &StageError{Stage: StageEvaluating, EmployeeID: in.Employee.ID, Err: err}
					}
					for _, a := range rule.Actions {
						ev.Components = append(ev.Components, a.Component())
					}
				}
				trace = append(trace, ev)
			}
		}
	}

	if !tiers.Total().Equal(total) {
		return nil, &StageError{
			Stage:      StageAssembling,
			EmployeeID: in.Employee.ID,
			Err:        &InconsistentCalculationError{EmployeeID: in.Employee.ID, Total: total, Tiers: tiers},
		}
	}

	return &ComputeResult{
		TotalHours:      total,
		Tiers:           tiers,
		Components:      comps,
		TotalAllowances: comps.TotalAllowances(),
		Trace:           trace,
	}, nil
}

// tierEntries groups entries into tiering units, attributes each entry's share
// of the unit buckets, and returns the evaluation contexts in clock-in order.
func tierEntries(emp Employee, entries []TimeEntry, cfg TieringConfig) ([]unitEntry, Hours, Tiers) {
	sorted := append([]TimeEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].ClockIn.Equal(sorted[j].ClockIn) {
			return sorted[i].ClockIn.Before(sorted[j].ClockIn)
		}
		return sorted[i].ID < sorted[j].ID
	})

	unitKey := func(e TimeEntry) string {
		if cfg.Granularity == GranularityPeriod {
			return "period"
		}
		return e.WorkDate().Format(DateLayout)
	}

	var (
		out    []unitEntry
		total  = decimal.Zero
		tiers  = Tiers{Regular: decimal.Zero, Overtime: decimal.Zero, DoubleTime: decimal.Zero}
		prior  = decimal.Zero
		start  = 0
		curKey string
	)
	closeUnit := func() {
		unitTiers := cfg.Tier(prior)
		for i := start; i < len(out); i++ {
			out[i].ctx.UnitTiers = unitTiers
		}
		tiers = tiers.Add(unitTiers)
	}

	for i, e := range sorted {
		key := unitKey(e)
		if i == 0 {
			curKey = key
		} else if key != curKey {
			closeUnit()
			curKey, prior, start = key, decimal.Zero, len(out)
		}
		h := e.WorkedHours()
		out = append(out, unitEntry{
			entry: e,
			ctx: EvalContext{
				Employee:    emp,
				EntryID:     e.ID,
				Date:        e.WorkDate(),
				ClockInHour: e.ClockIn.Hour(),
				EntryHours:  h,
				EntryTiers:  cfg.Attribute(prior, h),
			},
		})
		prior = prior.Add(h)
		total = total.Add(h)
	}
	if len(sorted) > 0 {
		closeUnit()
	}
	return out, total, tiers
}

// =============================================================================
// CALCULATOR - I/O around Compute
// =============================================================================

type Calculator struct {
	Rules     RuleSource
	Entries   TimeSource
	Directory Directory
	Store     CalculationStore
	Tiering   TieringConfig
	Logger    *slog.Logger

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() CalculationID
}

// CalculationRequest asks for one employee's calculation over one period.
type CalculationRequest struct {
	EmployeeID  EmployeeID
	Period      Period
	ActorID     string
	Recalculate bool

	// Rules pins the snapshot to evaluate. Nil takes a fresh snapshot.
	Rules *RuleSet
}

// Evaluation is an assembled, not yet persisted calculation.
type Evaluation struct {
	Calculation *PayCalculation
	Trace       []TraceEvent
	Entries     []TimeEntry
}

// Calculate runs the full pipeline and persists the result.
func (c *Calculator) Calculate(ctx context.Context, req CalculationRequest) (*PayCalculation, error) {
	ev, err := c.Evaluate(ctx, req)
	if err != nil {
		return nil, err
	}

	calc := ev.Calculation
	id, err := c.Store.SaveCalculation(ctx, calc, req.Recalculate)
	if err != nil {
		c.logger().Warn("calculation not persisted",
			"employee_id", req.EmployeeID, "period", req.Period.String(), "error", err)
		return nil, &StageError{Stage: StagePersisted, EmployeeID: req.EmployeeID, Err: err}
	}
	calc.ID = id
	c.logger().Info("calculation persisted",
		"stage", StagePersisted,
		"calculation_id", id,
		"employee_id", calc.EmployeeID,
		"period", calc.Period.String(),
		"revision", calc.Revision,
		"total_hours", calc.TotalHours.String(),
		"total_allowances", calc.TotalAllowances.String(),
	)
	return calc, nil
}

// Evaluate runs Loading through Assembling without persisting.
func (c *Calculator) Evaluate(ctx context.Context, req CalculationRequest) (*Evaluation, error) {
	log := c.logger().With("employee_id", req.EmployeeID, "period", req.Period.String())
	if req.Period.End.Before(req.Period.Start) {
		return nil, &StageError{Stage: StageLoading, EmployeeID: req.EmployeeID, Err: ErrInvalidPeriod}
	}

	log.Debug("stage", "stage", StageLoading)
	emp, entries, err := c.load(ctx, req)
	if err != nil {
		return nil, &StageError{Stage: StageLoading, EmployeeID: req.EmployeeID, Err: err}
	}

	rules := req.Rules
	if rules == nil {
		if rules, err = c.Rules.Snapshot(ctx); err != nil {
			return nil, &StageError{Stage: StageLoading, EmployeeID: req.EmployeeID, Err: fmt.Errorf("rule snapshot: %w", err)}
		}
	}

	log.Debug("stage", "stage", StageEvaluating, "rules", rules.Len(), "entries", len(entries))
	res, err := Compute(ComputeInput{Employee: emp, Entries: entries, Rules: rules, Tiering: c.Tiering})
	if err != nil {
		if errors.Is(err, ErrInconsistentCalculation) {
			log.Error("inconsistent calculation",
				"error", err,
				"tiering", c.Tiering,
				"rule_ids", rules.IDs(),
				"entries", entrySnapshot(entries),
			)
		}
		return nil, err
	}

	calc := &PayCalculation{
		EmployeeID:      emp.ID,
		Period:          req.Period,
		TotalHours:      res.TotalHours,
		RegularHours:    res.Tiers.Regular,
		OvertimeHours:   res.Tiers.Overtime,
		DoubleTimeHours: res.Tiers.DoubleTime,
		TotalAllowances: res.TotalAllowances,
		Components:      res.Components,
		RuleSetVersion:  rules.Version(),
		CalculatedAt:    c.now().UTC(),
		CalculatedBy:    req.ActorID,
	}
	for _, e := range entries {
		calc.EntryIDs = append(calc.EntryIDs, e.ID)
	}
	calc.ID = c.newID()

	log.Debug("stage", "stage", StageAssembling,
		"total_hours", calc.TotalHours.String(), "components", len(calc.Components))
	return &Evaluation{Calculation: calc, Trace: res.Trace, Entries: entries}, nil
}

func (c *Calculator) load(ctx context.Context, req CalculationRequest) (Employee, []TimeEntry, error) {
	emp, err := c.Directory.GetEmployeeAttributes(ctx, req.EmployeeID)
	if err != nil {
		return Employee{}, nil, err
	}
	raw, err := c.Entries.GetClosedEntries(ctx, req.EmployeeID, req.Period)
	if err != nil {
		return Employee{}, nil, fmt.Errorf("load time entries: %w", err)
	}
	var entries []TimeEntry
	for _, e := range raw {
		if e.Eligible() && e.EmployeeID == req.EmployeeID && req.Period.Contains(e.ClockIn) {
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		return Employee{}, nil, ErrNoEligibleEntries
	}
	return emp, entries, nil
}

func (c *Calculator) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *Calculator) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c *Calculator) newID() CalculationID {
	if c.NewID == nil {
		return CalculationID(uuid.NewString())
	}
	return c.NewID()
}

type entryLog struct {
	ID       EntryID `json:"id"`
	ClockIn  string  `json:"clock_in"`
	ClockOut string  `json:"clock_out"`
	Hours    string  `json:"hours"`
}

func entrySnapshot(entries []TimeEntry) []entryLog {
	out := make([]entryLog, len(entries))
	for i, e := range entries {
		out[i] = entryLog{ID: e.ID, ClockIn: e.ClockIn.Format(time.RFC3339), Hours: e.WorkedHours().String()}
		if e.ClockOut != nil {
			out[i].ClockOut = e.ClockOut.Format(time.RFC3339)
		}
	}
	return out
}
