package payroll

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// =============================================================================
// BATCH - Many employees, one period
// =============================================================================

// BatchRequest calculates one period for many employees.
type BatchRequest struct {
	EmployeeIDs []EmployeeID
	Period      Period
	ActorID     string
	Recalculate bool

	// Concurrency caps parallel runs. Values below 1 run sequentially.
	Concurrency int
}

// BatchResult is one employee's outcome. Exactly one of Calculation and Err is set.
type BatchResult struct {
	EmployeeID  EmployeeID
	Calculation *PayCalculation
	Err         error
}

// Stage reports where the employee's run ended.
func (r BatchResult) Stage() Stage {
	if r.Err == nil {
		return StagePersisted
	}
	return StageFailed
}

// BatchReport aggregates per-employee results in request order.
type BatchReport struct {
	Period         Period
	RuleSetVersion int64
	Results        []BatchResult
}

func (r *BatchReport) Succeeded() []BatchResult { return r.filter(true) }
func (r *BatchReport) Failed() []BatchResult    { return r.filter(false) }

func (r *BatchReport) filter(ok bool) []BatchResult {
	var out []BatchResult
	for _, res := range r.Results {
		if (res.Err == nil) == ok {
			out = append(out, res)
		}
	}
	return out
}

// CalculateBatch runs independent calculations in parallel against a single
// rule snapshot. One employee's failure never aborts the others; failures are
// reported per employee. The returned error is non-nil only when the batch
// could not start or ctx was cancelled.
func (c *Calculator) CalculateBatch(ctx context.Context, req BatchRequest) (*BatchReport, error) {
	if req.Period.End.Before(req.Period.Start) {
		return nil, ErrInvalidPeriod
	}
	rules, err := c.Rules.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("rule snapshot: %w", err)
	}

	limit := req.Concurrency
	if limit < 1 {
		limit = 1
	}

	report := &BatchReport{
		Period:         req.Period,
		RuleSetVersion: rules.Version(),
		Results:        make([]BatchResult, len(req.EmployeeIDs)),
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, id := range req.EmployeeIDs {
		i, id := i, id
		g.Go(func() error {
			res := BatchResult{EmployeeID: id}
			if err := ctx.Err(); err != nil {
				res.Err = err
			} else {
				res.Calculation, res.Err = c.Calculate(ctx, CalculationRequest{
					EmployeeID:  id,
					Period:      req.Period,
					ActorID:     req.ActorID,
					Recalculate: req.Recalculate,
					Rules:       rules,
				})
			}
			report.Results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	failed := len(report.Failed())
	c.logger().Info("batch calculation finished",
		"period", req.Period.String(),
		"employees", len(req.EmployeeIDs),
		"succeeded", len(req.EmployeeIDs)-failed,
		"failed", failed,
		"rule_set_version", rules.Version(),
	)
	return report, ctx.Err()
}
