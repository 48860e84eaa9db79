/*
scheduler.go - Automated period-close scheduler

PURPOSE:
  Periodically calculates the last completed pay period for every employee
  in the directory.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Period comes from the pay period schedule: the one before today's
  - One batch run per check, bounded by the configured concurrency
  - Employees already calculated for the period (DuplicateCalculationError)
    count as done; employees with no eligible entries are skipped

USAGE:
  s := NewPeriodCloseScheduler(calculator, directory, periods, logger)
  s.Start()
  // ... later
  s.Stop()

SEE ALSO:
  - handlers.go: CalculateBatch endpoint (manual runs)
  - payroll/period.go: PeriodConfig
*/
package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/pay-engine/payroll"
)

// PeriodCloseScheduler handles automated period-close calculations.
type PeriodCloseScheduler struct {
	Calculator    *payroll.Calculator
	Directory     payroll.Directory
	Periods       payroll.PeriodConfig
	CheckInterval time.Duration
	Concurrency   int
	ActorID       string
	Enabled       bool
	Logger        *slog.Logger
	Now           func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// CloseSummary counts the outcomes of one period-close run.
type CloseSummary struct {
	Period     payroll.Period
	Calculated int
	AlreadyRun int
	NoEntries  int
	Failed     int
}

func NewPeriodCloseScheduler(calc *payroll.Calculator, dir payroll.Directory, periods payroll.PeriodConfig, logger *slog.Logger) *PeriodCloseScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeriodCloseScheduler{
		Calculator:    calc,
		Directory:     dir,
		Periods:       periods,
		CheckInterval: time.Hour,
		Concurrency:   4,
		ActorID:       "scheduler",
		Enabled:       true,
		Logger:        logger.With("component", "scheduler"),
		Now:           time.Now,
	}
}

// Start begins the scheduler.
func (s *PeriodCloseScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run()

	s.Logger.Info("started", "interval", s.CheckInterval.String(), "pay_period", s.Periods.Type)
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (s *PeriodCloseScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Logger.Info("stopped")
	}
}

func (s *PeriodCloseScheduler) run() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stop
		cancel()
	}()

	// Run immediately on start
	s.checkAndProcess(ctx)

	for {
		select {
		case <-s.ticker.C:
			s.checkAndProcess(ctx)
		case <-s.stop:
			return
		}
	}
}

func (s *PeriodCloseScheduler) checkAndProcess(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.Logger.Error("period close failed", "error", err)
	}
}

// RunOnce calculates the last completed period for every employee.
func (s *PeriodCloseScheduler) RunOnce(ctx context.Context) (CloseSummary, error) {
	period := s.Periods.PreviousPeriod(s.Now())
	summary := CloseSummary{Period: period}

	employees, err := s.Directory.ListEmployees(ctx)
	if err != nil {
		return summary, err
	}
	ids := make([]payroll.EmployeeID, len(employees))
	for i, e := range employees {
		ids[i] = e.ID
	}

	report, err := s.Calculator.CalculateBatch(ctx, payroll.BatchRequest{
		EmployeeIDs: ids,
		Period:      period,
		ActorID:     s.ActorID,
		Concurrency: s.Concurrency,
	})
	if err != nil {
		return summary, err
	}

	for _, res := range report.Results {
		switch {
		case res.Err == nil:
			summary.Calculated++
		case errors.Is(res.Err, payroll.ErrDuplicateCalculation):
			summary.AlreadyRun++
		case errors.Is(res.Err, payroll.ErrNoEligibleEntries):
			summary.NoEntries++
		default:
			summary.Failed++
			s.Logger.Warn("employee calculation failed",
				"employee_id", res.EmployeeID, "period", period.String(), "error", res.Err)
		}
	}

	s.Logger.Info("period close complete",
		"period", period.String(),
		"calculated", summary.Calculated,
		"already_run", summary.AlreadyRun,
		"no_entries", summary.NoEntries,
		"failed", summary.Failed,
	)
	return summary, nil
}
