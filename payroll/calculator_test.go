package payroll_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pay-engine/payroll"
	"github.com/warp/pay-engine/payroll/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var (
	// 2025-03-15 is a Saturday.
	saturday = time.Date(2025, time.March, 15, 8, 0, 0, 0, time.UTC)
	fixedNow = time.Date(2025, time.March, 24, 9, 0, 0, 0, time.UTC)
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func shift(id string, emp payroll.EmployeeID, start time.Time, hours float64) payroll.TimeEntry {
	out := start.Add(time.Duration(hours * float64(time.Hour)))
	return payroll.TimeEntry{
		ID:         payroll.EntryID(id),
		EmployeeID: emp,
		ClockIn:    start,
		ClockOut:   &out,
		Status:     payroll.EntryClosed,
		Approved:   true,
	}
}

type fixture struct {
	store *store.Memory
	admin *payroll.RuleAdmin
	calc  *payroll.Calculator
}

func newFixture(t *testing.T, tiering payroll.TieringConfig) *fixture {
	t.Helper()
	mem := store.NewMemory()
	logger := quietLogger()

	admin := payroll.NewRuleAdmin(mem, logger)
	admin.Now = func() time.Time { return fixedNow }

	calc := &payroll.Calculator{
		Rules:     mem,
		Entries:   mem,
		Directory: mem,
		Store:     mem,
		Tiering:   tiering,
		Logger:    logger,
		Now:       func() time.Time { return fixedNow },
	}

	f := &fixture{store: mem, admin: admin, calc: calc}
	f.employee(t, "emp-1", "nurse")
	return f
}

func (f *fixture) employee(t *testing.T, id payroll.EmployeeID, roles ...string) {
	t.Helper()
	require.NoError(t, f.store.PutEmployee(context.Background(), payroll.Employee{ID: id, Name: string(id), Roles: roles}))
}

func (f *fixture) entry(t *testing.T, e payroll.TimeEntry) {
	t.Helper()
	require.NoError(t, f.store.AddTimeEntry(context.Background(), e))
}

func (f *fixture) rule(t *testing.T, r payroll.PayRule) payroll.PayRule {
	t.Helper()
	created, err := f.admin.Create(context.Background(), r, "test")
	require.NoError(t, err)
	return created
}

func (f *fixture) calculate(t *testing.T, emp payroll.EmployeeID, recalc bool) (*payroll.PayCalculation, error) {
	t.Helper()
	return f.calc.Calculate(context.Background(), payroll.CalculationRequest{
		EmployeeID:  emp,
		Period:      mustPeriod(t, "2025-03-10", "2025-03-23"),
		ActorID:     "payroll-admin",
		Recalculate: recalc,
	})
}

func tiering(regular, overtime int64) payroll.TieringConfig {
	return payroll.TieringConfig{
		RegularCeiling:  decimal.NewFromInt(regular),
		OvertimeCeiling: decimal.NewFromInt(overtime),
		Granularity:     payroll.GranularityDay,
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestCalculate_SaturdayOvertimeMultiplier(t *testing.T) {
	// GIVEN: Ceilings 8/10 and a 10 hour Saturday shift
	//        Rule: Saturdays, overtime tier, pay_multiplier 1.5 into "overtime"
	// WHEN: Calculating the period
	// THEN: Buckets are 8/2/0 and the overtime component carries 2 hours at 1.5

	f := newFixture(t, tiering(8, 10))
	f.entry(t, shift("e-1", "emp-1", saturday, 10))
	f.rule(t, payroll.PayRule{
		Name:     "Saturday overtime",
		Priority: 10,
		Active:   true,
		Conditions: []payroll.Condition{
			payroll.DayOfWeek{Days: []time.Weekday{time.Saturday}},
			payroll.TierFilter{Tiers: []payroll.Tier{payroll.TierOvertime}},
		},
		Actions: []payroll.Action{payroll.PayMultiplier{Multiplier: h("1.5"), Name: "overtime"}},
	})

	calc, err := f.calculate(t, "emp-1", false)
	require.NoError(t, err)

	assertDecimal(t, "10", calc.TotalHours, "total")
	assertTiers(t, "8", "2", "0", calc.Buckets())

	ot := calc.Components["overtime"]
	require.NotNil(t, ot)
	assert.Equal(t, payroll.ComponentHours, ot.Type)
	assertDecimal(t, "2", ot.Hours, "overtime hours")
	assertDecimal(t, "1.5", ot.Multiplier, "multiplier")
	assert.Equal(t, []string{"Saturday overtime"}, ot.RulesApplied)

	assert.Equal(t, 1, calc.Revision)
	assert.Equal(t, "payroll-admin", calc.CalculatedBy)
	assert.Equal(t, fixedNow, calc.CalculatedAt)
	assert.Equal(t, []payroll.EntryID{"e-1"}, calc.EntryIDs)
}

func TestCalculate_DayOfWeekWithoutTierMatchesWholeEntry(t *testing.T) {
	f := newFixture(t, tiering(8, 10))
	f.entry(t, shift("e-1", "emp-1", saturday, 10))
	f.rule(t, payroll.PayRule{
		Name:       "Saturday premium",
		Active:     true,
		Conditions: []payroll.Condition{payroll.DayOfWeek{Days: []time.Weekday{time.Saturday}}},
		Actions:    []payroll.Action{payroll.PayMultiplier{Multiplier: h("1.5"), Name: "saturday"}},
	})

	calc, err := f.calculate(t, "emp-1", false)
	require.NoError(t, err)
	assertDecimal(t, "10", calc.Components["saturday"].Hours, "whole entry")
}

func TestCalculate_AllowancesStackInPriorityOrder(t *testing.T) {
	// GIVEN: Two allowance rules on the same component, created out of priority order
	// WHEN: Both match a single entry
	// THEN: Amounts sum to 80 and rules_applied follows priority order

	f := newFixture(t, payroll.DefaultTieringConfig())
	f.entry(t, shift("e-1", "emp-1", saturday, 6))

	nurses := []payroll.Condition{payroll.Roles{Roles: []string{"nurse"}}}
	f.rule(t, payroll.PayRule{
		Name: "Meal top-up", Priority: 20, Active: true, Conditions: nurses,
		Actions: []payroll.Action{payroll.FlatAllowance{Amount: h("30"), Name: "meal"}},
	})
	f.rule(t, payroll.PayRule{
		Name: "Meal allowance", Priority: 10, Active: true, Conditions: nurses,
		Actions: []payroll.Action{payroll.FlatAllowance{Amount: h("50"), Name: "meal"}},
	})

	calc, err := f.calculate(t, "emp-1", false)
	require.NoError(t, err)

	meal := calc.Components["meal"]
	require.NotNil(t, meal)
	assertDecimal(t, "80", meal.Amount, "meal amount")
	assertDecimal(t, "80", calc.TotalAllowances, "total allowances")
	assert.Equal(t, []string{"Meal allowance", "Meal top-up"}, meal.RulesApplied)
}

func TestCalculate_NightShiftDifferential(t *testing.T) {
	f := newFixture(t, payroll.DefaultTieringConfig())
	f.entry(t, shift("e-1", "emp-1", time.Date(2025, time.March, 14, 23, 0, 0, 0, time.UTC), 7))
	f.entry(t, shift("e-2", "emp-1", time.Date(2025, time.March, 17, 9, 0, 0, 0, time.UTC), 8))
	f.rule(t, payroll.PayRule{
		Name:       "Night shift",
		Active:     true,
		Conditions: []payroll.Condition{payroll.TimeRange{Start: 22, End: 6}},
		Actions:    []payroll.Action{payroll.ShiftDifferential{Rate: h("3.00"), Name: "night_shift"}},
	})

	calc, err := f.calculate(t, "emp-1", false)
	require.NoError(t, err)

	night := calc.Components["night_shift"]
	require.NotNil(t, night)
	assertDecimal(t, "7", night.Hours, "night hours")
	assertDecimal(t, "21", night.Amount, "night amount")
	assertDecimal(t, "21", calc.TotalAllowances, "total allowances")
}

func TestCalculate_EntriesAttributedInClockInOrder(t *testing.T) {
	// GIVEN: 8/12 ceilings, a 6h morning entry and a 4h afternoon entry on one day
	// WHEN: An overtime rule is evaluated
	// THEN: Only the afternoon entry owns overtime, so the rule matches it alone

	f := newFixture(t, payroll.DefaultTieringConfig())
	day := time.Date(2025, time.March, 11, 0, 0, 0, 0, time.UTC)
	f.entry(t, shift("pm", "emp-1", day.Add(15*time.Hour), 4))
	f.entry(t, shift("am", "emp-1", day.Add(7*time.Hour), 6))
	f.rule(t, payroll.PayRule{
		Name:       "Overtime",
		Active:     true,
		Conditions: []payroll.Condition{payroll.OvertimeThreshold{Hours: decimal.Zero}},
		Actions:    []payroll.Action{payroll.PayMultiplier{Multiplier: h("1.5"), Name: "overtime"}},
	})

	ev, err := f.calc.Evaluate(context.Background(), payroll.CalculationRequest{
		EmployeeID: "emp-1",
		Period:     mustPeriod(t, "2025-03-10", "2025-03-23"),
	})
	require.NoError(t, err)

	assertTiers(t, "8", "2", "0", ev.Calculation.Buckets())
	assertDecimal(t, "2", ev.Calculation.Components["overtime"].Hours, "overtime hours")
	assert.Equal(t, []payroll.EntryID{"am", "pm"}, ev.Calculation.EntryIDs)

	require.Len(t, ev.Trace, 2)
	assert.False(t, ev.Trace[0].Matched)
	assert.True(t, ev.Trace[1].Matched)
	assert.Equal(t, payroll.EntryID("pm"), ev.Trace[1].EntryID)
}

func TestCalculate_DailyVersusPeriodGranularity(t *testing.T) {
	// GIVEN: Two 10 hour days with 8/12 ceilings
	// WHEN: Tiering per day
	// THEN: 16 regular, 4 overtime
	// WHEN: Tiering the whole period
	// THEN: 8 regular, 4 overtime, 8 double time

	entries := []payroll.TimeEntry{
		shift("d1", "emp-1", time.Date(2025, time.March, 11, 8, 0, 0, 0, time.UTC), 10),
		shift("d2", "emp-1", time.Date(2025, time.March, 12, 8, 0, 0, 0, time.UTC), 10),
	}
	emp := payroll.Employee{ID: "emp-1"}

	daily, err := payroll.Compute(payroll.ComputeInput{Employee: emp, Entries: entries, Tiering: payroll.DefaultTieringConfig()})
	require.NoError(t, err)
	assertTiers(t, "16", "4", "0", daily.Tiers)

	perPeriod := payroll.DefaultTieringConfig()
	perPeriod.Granularity = payroll.GranularityPeriod
	whole, err := payroll.Compute(payroll.ComputeInput{Employee: emp, Entries: entries, Tiering: perPeriod})
	require.NoError(t, err)
	assertTiers(t, "8", "4", "8", whole.Tiers)
	assertDecimal(t, "20", whole.TotalHours, "total")
}

func TestCompute_InvalidTieringFails(t *testing.T) {
	bad := tiering(12, 8)
	_, err := payroll.Compute(payroll.ComputeInput{
		Employee: payroll.Employee{ID: "emp-1"},
		Entries:  []payroll.TimeEntry{shift("e", "emp-1", saturday, 4)},
		Tiering:  bad,
	})

	var stage *payroll.StageError
	require.ErrorAs(t, err, &stage)
	assert.Equal(t, payroll.StageTiering, stage.Stage)
}

func TestCalculate_NoEligibleEntriesPersistsNothing(t *testing.T) {
	// GIVEN: Only an open entry and an unapproved entry in the period
	// WHEN: Calculating
	// THEN: ErrNoEligibleEntries at the loading stage, nothing persisted

	f := newFixture(t, payroll.DefaultTieringConfig())
	open := shift("open", "emp-1", saturday, 8)
	open.ClockOut = nil
	open.Status = payroll.EntryOpen
	f.entry(t, open)
	pending := shift("pending", "emp-1", saturday.Add(24*time.Hour), 8)
	pending.Approved = false
	f.entry(t, pending)

	_, err := f.calculate(t, "emp-1", false)
	assert.ErrorIs(t, err, payroll.ErrNoEligibleEntries)

	var stage *payroll.StageError
	require.ErrorAs(t, err, &stage)
	assert.Equal(t, payroll.StageLoading, stage.Stage)

	saved, err := f.store.ListCalculations(context.Background(), payroll.CalculationFilter{})
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestCalculate_UnknownEmployee(t *testing.T) {
	f := newFixture(t, payroll.DefaultTieringConfig())
	_, err := f.calculate(t, "ghost", false)
	assert.ErrorIs(t, err, payroll.ErrEmployeeNotFound)
}

func TestCalculate_DuplicateLeavesOriginalUntouched(t *testing.T) {
	// GIVEN: A persisted calculation
	// WHEN: Calculating again without recalculate
	// THEN: DuplicateCalculationError naming the original, which is unchanged
	// WHEN: Recalculating
	// THEN: A second revision is appended

	f := newFixture(t, payroll.DefaultTieringConfig())
	f.entry(t, shift("e-1", "emp-1", saturday, 9))

	first, err := f.calculate(t, "emp-1", false)
	require.NoError(t, err)

	f.entry(t, shift("e-2", "emp-1", saturday.Add(48*time.Hour), 4))
	_, err = f.calculate(t, "emp-1", false)

	var dup *payroll.DuplicateCalculationError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ID, dup.ExistingID)

	stored, err := f.store.GetCalculation(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Revision)
	assertDecimal(t, "9", stored.TotalHours, "original total")

	second, err := f.calculate(t, "emp-1", true)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Revision)
	assertDecimal(t, "13", second.TotalHours, "recalculated total")
	assert.NotEqual(t, first.ID, second.ID)

	latest, err := f.store.ListCalculations(context.Background(), payroll.CalculationFilter{EmployeeID: "emp-1", LatestOnly: true})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, second.ID, latest[0].ID)

	all, err := f.store.ListCalculations(context.Background(), payroll.CalculationFilter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCalculate_InactiveRulesNeverContribute(t *testing.T) {
	f := newFixture(t, payroll.DefaultTieringConfig())
	f.entry(t, shift("e-1", "emp-1", saturday, 6))
	r := f.rule(t, payroll.PayRule{
		Name:       "Weekend allowance",
		Active:     true,
		Conditions: []payroll.Condition{payroll.DayOfWeek{Days: []time.Weekday{time.Saturday, time.Sunday}}},
		Actions:    []payroll.Action{payroll.FlatAllowance{Amount: h("25"), Name: "weekend"}},
	})
	_, err := f.admin.SetActive(context.Background(), r.ID, false, "test")
	require.NoError(t, err)

	calc, err := f.calculate(t, "emp-1", false)
	require.NoError(t, err)
	assert.Empty(t, calc.Components)
	assertDecimal(t, "0", calc.TotalAllowances, "total allowances")
}

func TestCalculate_RuleSetVersionRecorded(t *testing.T) {
	f := newFixture(t, payroll.DefaultTieringConfig())
	f.entry(t, shift("e-1", "emp-1", saturday, 6))
	f.rule(t, overtimeRule("Overtime", 10, "1.5"))

	snap, err := f.store.Snapshot(context.Background())
	require.NoError(t, err)

	calc, err := f.calculate(t, "emp-1", false)
	require.NoError(t, err)
	assert.Equal(t, snap.Version(), calc.RuleSetVersion)
}

func TestCompute_DeterministicEncoding(t *testing.T) {
	// GIVEN: The same entries and rule snapshot
	// WHEN: Computing twice, with entries supplied in different orders
	// THEN: The encoded results are byte-identical

	rules := []payroll.PayRule{
		{ID: "a", Name: "Overtime", Priority: 10, Active: true, Sequence: 1,
			Conditions: []payroll.Condition{payroll.OvertimeThreshold{Hours: decimal.Zero}},
			Actions:    []payroll.Action{payroll.PayMultiplier{Multiplier: h("1.5"), Name: "overtime"}}},
		{ID: "b", Name: "Night", Priority: 20, Active: true, Sequence: 2,
			Conditions: []payroll.Condition{payroll.TimeRange{Start: 22, End: 6}},
			Actions:    []payroll.Action{payroll.ShiftDifferential{Rate: h("2.25"), Name: "night"}}},
		{ID: "c", Name: "Meal", Priority: 30, Active: true, Sequence: 3,
			Conditions: []payroll.Condition{payroll.Roles{Roles: []string{"nurse"}}},
			Actions:    []payroll.Action{payroll.FlatAllowance{Amount: h("12.50"), Name: "meal"}}},
	}
	rs := payroll.NewRuleSet(rules, 3, fixedNow)
	emp := payroll.Employee{ID: "emp-1", Roles: []string{"nurse"}}
	entries := []payroll.TimeEntry{
		shift("e-1", "emp-1", time.Date(2025, time.March, 11, 22, 0, 0, 0, time.UTC), 11.5),
		shift("e-2", "emp-1", time.Date(2025, time.March, 13, 7, 0, 0, 0, time.UTC), 9.25),
		shift("e-3", "emp-1", time.Date(2025, time.March, 13, 17, 0, 0, 0, time.UTC), 4),
	}
	reversed := []payroll.TimeEntry{entries[2], entries[1], entries[0]}

	encode := func(in []payroll.TimeEntry) []byte {
		res, err := payroll.Compute(payroll.ComputeInput{Employee: emp, Entries: in, Rules: rs, Tiering: payroll.DefaultTieringConfig()})
		require.NoError(t, err)
		data, err := json.Marshal(struct {
			Total      payroll.Hours
			Tiers      payroll.Tiers
			Components payroll.Components
			Allowances payroll.Money
		}{res.TotalHours, res.Tiers, res.Components, res.TotalAllowances})
		require.NoError(t, err)
		return data
	}

	assert.Equal(t, string(encode(entries)), string(encode(entries)))
	assert.Equal(t, string(encode(entries)), string(encode(reversed)))
}

// =============================================================================
// BATCH
// =============================================================================

func TestCalculateBatch_PartialFailure(t *testing.T) {
	// GIVEN: Two employees with entries, one without, one unknown to the directory
	// WHEN: Running a batch with bounded concurrency
	// THEN: Successes persist, failures are reported per employee in request order,
	//       and every success carries the same rule set version

	f := newFixture(t, payroll.DefaultTieringConfig())
	f.employee(t, "emp-2", "porter")
	f.employee(t, "emp-3", "nurse")
	f.entry(t, shift("e-1", "emp-1", saturday, 9))
	f.entry(t, shift("e-3", "emp-3", saturday, 11))
	f.rule(t, overtimeRule("Overtime", 10, "1.5"))

	report, err := f.calc.CalculateBatch(context.Background(), payroll.BatchRequest{
		EmployeeIDs: []payroll.EmployeeID{"emp-1", "emp-2", "ghost", "emp-3"},
		Period:      mustPeriod(t, "2025-03-10", "2025-03-23"),
		ActorID:     "scheduler",
		Concurrency: 2,
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 4)

	assert.NoError(t, report.Results[0].Err)
	assert.ErrorIs(t, report.Results[1].Err, payroll.ErrNoEligibleEntries)
	assert.ErrorIs(t, report.Results[2].Err, payroll.ErrEmployeeNotFound)
	assert.NoError(t, report.Results[3].Err)
	assert.Equal(t, payroll.StageFailed, report.Results[1].Stage())
	assert.Equal(t, payroll.StagePersisted, report.Results[0].Stage())

	assert.Len(t, report.Succeeded(), 2)
	assert.Len(t, report.Failed(), 2)
	for _, res := range report.Succeeded() {
		assert.Equal(t, report.RuleSetVersion, res.Calculation.RuleSetVersion)
	}

	saved, err := f.store.ListCalculations(context.Background(), payroll.CalculationFilter{})
	require.NoError(t, err)
	assert.Len(t, saved, 2)
}

func TestCalculateBatch_InvalidPeriod(t *testing.T) {
	f := newFixture(t, payroll.DefaultTieringConfig())
	_, err := f.calc.CalculateBatch(context.Background(), payroll.BatchRequest{
		EmployeeIDs: []payroll.EmployeeID{"emp-1"},
		Period:      payroll.Period{Start: date(2025, time.March, 20), End: date(2025, time.March, 1)},
	})
	assert.ErrorIs(t, err, payroll.ErrInvalidPeriod)
}

// =============================================================================
// PREVIEW
// =============================================================================

func TestPreview_NeverPersists(t *testing.T) {
	f := newFixture(t, payroll.DefaultTieringConfig())
	f.entry(t, shift("e-1", "emp-1", saturday, 10))
	ot := f.rule(t, overtimeRule("Overtime", 10, "1.5"))
	f.rule(t, payroll.PayRule{
		Name: "Meal", Priority: 20, Active: true,
		Conditions: []payroll.Condition{payroll.Roles{Roles: []string{"nurse"}}},
		Actions:    []payroll.Action{payroll.FlatAllowance{Amount: h("15"), Name: "meal"}},
	})

	res, err := f.calc.Preview(context.Background(), payroll.PreviewRequest{
		EmployeeID: "emp-1",
		Period:     mustPeriod(t, "2025-03-10", "2025-03-23"),
		RuleIDs:    []payroll.RuleID{ot.ID},
	})
	require.NoError(t, err)

	assert.Empty(t, res.Calculation.ID)
	assert.Contains(t, res.Calculation.Components, "overtime")
	assert.NotContains(t, res.Calculation.Components, "meal", "preview narrowed to one rule")
	require.Len(t, res.Trace, 1)
	assert.True(t, res.Trace[0].Matched)
	assert.Empty(t, res.Issues)

	saved, err := f.store.ListCalculations(context.Background(), payroll.CalculationFilter{})
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestPreview_FlagsUnmatchedRules(t *testing.T) {
	f := newFixture(t, payroll.DefaultTieringConfig())
	f.entry(t, shift("e-1", "emp-1", saturday, 6))
	f.rule(t, overtimeRule("Overtime", 10, "1.5"))

	res, err := f.calc.Preview(context.Background(), payroll.PreviewRequest{
		EmployeeID: "emp-1",
		Period:     mustPeriod(t, "2025-03-10", "2025-03-23"),
	})
	require.NoError(t, err)
	assert.Contains(t, res.Issues, "no rule matched any time entry")
}

func TestPreview_UnknownRuleID(t *testing.T) {
	f := newFixture(t, payroll.DefaultTieringConfig())
	f.entry(t, shift("e-1", "emp-1", saturday, 6))

	_, err := f.calc.Preview(context.Background(), payroll.PreviewRequest{
		EmployeeID: "emp-1",
		Period:     mustPeriod(t, "2025-03-10", "2025-03-23"),
		RuleIDs:    []payroll.RuleID{"missing"},
	})
	assert.ErrorIs(t, err, payroll.ErrValidation)
}
