package payroll

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// PreviewRequest evaluates rules against real entries without saving anything.
type PreviewRequest struct {
	EmployeeID EmployeeID
	Period     Period
	ActorID    string
	// RuleIDs narrows evaluation to these active rules. Empty means all active rules.
	RuleIDs []RuleID
}

// PreviewResult is an unsaved calculation with its evaluation trace and
// advisory issues for the rule author.
type PreviewResult struct {
	Calculation *PayCalculation
	Trace       []TraceEvent
	Issues      []string
}

// overlapTolerance allows hours components to exceed worked hours by 10%
// before a preview flags likely overlapping rules.
var overlapTolerance = decimal.RequireFromString("1.1")

// Preview runs Loading through Assembling and never persists.
func (c *Calculator) Preview(ctx context.Context, req PreviewRequest) (*PreviewResult, error) {
	rules, err := c.Rules.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("rule snapshot: %w", err)
	}
	if len(req.RuleIDs) > 0 {
		if rules, err = rules.Select(req.RuleIDs); err != nil {
			return nil, err
		}
	}

	ev, err := c.Evaluate(ctx, CalculationRequest{
		EmployeeID: req.EmployeeID,
		Period:     req.Period,
		ActorID:    req.ActorID,
		Rules:      rules,
	})
	if err != nil {
		return nil, err
	}
	ev.Calculation.ID = ""
	return &PreviewResult{
		Calculation: ev.Calculation,
		Trace:       ev.Trace,
		Issues:      reviewCalculation(ev.Calculation, ev.Trace),
	}, nil
}

func reviewCalculation(calc *PayCalculation, trace []TraceEvent) []string {
	var issues []string

	componentHours := decimal.Zero
	for _, comp := range calc.Components {
		if comp.Type == ComponentHours {
			componentHours = componentHours.Add(comp.Hours)
		}
	}
	if componentHours.GreaterThan(calc.TotalHours.Mul(overlapTolerance)) {
		issues = append(issues, fmt.Sprintf(
			"possible rule overlap: hours components total %s but only %s hours were worked",
			componentHours, calc.TotalHours))
	}

	if calc.TotalHours.IsPositive() && !calc.RegularHours.IsPositive() {
		issues = append(issues, "no regular hours: the regular ceiling may be set to zero")
	}

	matched := false
	for _, ev := range trace {
		if ev.Matched {
			matched = true
			break
		}
	}
	if !matched {
		issues = append(issues, "no rule matched any time entry")
	}
	return issues
}
