package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pay-engine/payroll"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRule(name string, priority int) payroll.PayRule {
	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	return payroll.PayRule{
		Name:     name,
		Priority: priority,
		Active:   true,
		Conditions: []payroll.Condition{
			payroll.DayOfWeek{Days: []time.Weekday{time.Saturday}},
			payroll.TierFilter{Tiers: []payroll.Tier{payroll.TierOvertime}},
		},
		Actions: []payroll.Action{
			payroll.PayMultiplier{Multiplier: decimal.RequireFromString("1.5"), Name: "overtime"},
		},
		CreatedBy: "alice",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func entryAt(id string, emp payroll.EmployeeID, in time.Time, hours int) payroll.TimeEntry {
	out := in.Add(time.Duration(hours) * time.Hour)
	return payroll.TimeEntry{ID: payroll.EntryID(id), EmployeeID: emp, ClockIn: in, ClockOut: &out,
		Status: payroll.EntryClosed, Approved: true}
}

// =============================================================================
// RULES
// =============================================================================

func TestRules_CreateGetList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	b, err := s.CreateRule(ctx, testRule("B", 20))
	require.NoError(t, err)
	a, err := s.CreateRule(ctx, testRule("A", 10))
	require.NoError(t, err)

	assert.Equal(t, int64(1), b.Sequence)
	assert.Equal(t, int64(2), a.Sequence)
	assert.Equal(t, 1, a.Version)

	got, err := s.GetRule(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Name)
	assert.Equal(t, a.Conditions, got.Conditions)
	assert.Equal(t, "1.5", got.Actions[0].(payroll.PayMultiplier).Multiplier.String())
	assert.True(t, got.CreatedAt.Equal(a.CreatedAt))

	list, err := s.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)

	_, err = s.GetRule(ctx, "missing")
	assert.ErrorIs(t, err, payroll.ErrRuleNotFound)
}

func TestRules_NameUniqueCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateRule(ctx, testRule("Overtime", 10))
	require.NoError(t, err)

	_, err = s.CreateRule(ctx, testRule("  OVERTIME ", 20))
	assert.ErrorIs(t, err, payroll.ErrValidation)
}

func TestRules_VersionCheckedWrites(t *testing.T) {
	// GIVEN: A stored rule at version 1
	// WHEN: It is updated, then updated again with the stale version
	// THEN: The stale write fails with ErrConcurrentModification and nothing changes

	ctx := context.Background()
	s := newTestStore(t)
	r, err := s.CreateRule(ctx, testRule("Overtime", 10))
	require.NoError(t, err)

	r.Priority = 15
	updated, err := s.UpdateRule(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, 15, updated.Priority)
	assert.Equal(t, "alice", updated.CreatedBy)

	r.Priority = 99 // still version 1
	_, err = s.UpdateRule(ctx, r)
	assert.ErrorIs(t, err, payroll.ErrConcurrentModification)

	stored, err := s.GetRule(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, stored.Priority)

	assert.ErrorIs(t, s.DeleteRule(ctx, r.ID, 1), payroll.ErrConcurrentModification)
	assert.ErrorIs(t, s.DeleteRule(ctx, "missing", 1), payroll.ErrRuleNotFound)
	require.NoError(t, s.DeleteRule(ctx, r.ID, 2))
}

func TestRules_ReorderAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a, _ := s.CreateRule(ctx, testRule("A", 10))
	b, _ := s.CreateRule(ctx, testRule("B", 20))

	err := s.Reorder(ctx, []payroll.PriorityChange{
		{ID: a.ID, Priority: 30, Version: 1},
		{ID: b.ID, Priority: 5, Version: 7},
	})
	assert.ErrorIs(t, err, payroll.ErrConcurrentModification)

	got, _ := s.GetRule(ctx, a.ID)
	assert.Equal(t, 10, got.Priority, "first change rolled back")

	require.NoError(t, s.Reorder(ctx, []payroll.PriorityChange{
		{ID: a.ID, Priority: 30, Version: 1},
		{ID: b.ID, Priority: 5, Version: 1},
	}))
	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []payroll.RuleID{b.ID, a.ID}, snap.IDs())
}

func TestRules_SnapshotRevisionAndActiveOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	before, err := s.Snapshot(ctx)
	require.NoError(t, err)

	r, _ := s.CreateRule(ctx, testRule("Overtime", 10))
	inactive := testRule("Dormant", 5)
	inactive.Active = false
	_, err = s.CreateRule(ctx, inactive)
	require.NoError(t, err)

	after, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Greater(t, after.Version(), before.Version())
	assert.Equal(t, []payroll.RuleID{r.ID}, after.IDs())

	again, _ := s.Snapshot(ctx)
	assert.Equal(t, after.Version(), again.Version(), "reads do not move the revision")
}

// =============================================================================
// DIRECTORY + ENTRIES
// =============================================================================

func TestDirectory_Employees(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.PutEmployee(ctx, payroll.Employee{ID: "emp-2", Name: "Grace"}))
	require.NoError(t, s.PutEmployee(ctx, payroll.Employee{ID: "emp-1", Name: "Ada", Roles: []string{"nurse"}, Department: "icu"}))
	require.NoError(t, s.PutEmployee(ctx, payroll.Employee{ID: "emp-1", Name: "Ada L.", Roles: []string{"nurse", "lead"}}))

	emp, err := s.GetEmployeeAttributes(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", emp.Name)
	assert.Equal(t, []string{"nurse", "lead"}, emp.Roles)

	list, err := s.ListEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, payroll.EmployeeID("emp-1"), list[0].ID)

	_, err = s.GetEmployeeAttributes(ctx, "ghost")
	assert.ErrorIs(t, err, payroll.ErrEmployeeNotFound)
}

func TestEntries_ClosedEntriesByClockInDate(t *testing.T) {
	// GIVEN: Entries inside and around a period, one with a non-UTC clock-in
	// WHEN: Reading closed entries for the period
	// THEN: Only eligible entries whose clock-in date falls in the period,
	//       in clock-in order, with their original offset preserved

	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.PutEmployee(ctx, payroll.Employee{ID: "emp-1"}))

	est := time.FixedZone("EST", -5*3600)
	late := entryAt("late-local", "emp-1", time.Date(2025, time.March, 23, 22, 0, 0, 0, est), 6)
	pending := entryAt("pending", "emp-1", time.Date(2025, time.March, 12, 9, 0, 0, 0, time.UTC), 8)
	pending.Approved = false
	open := entryAt("open", "emp-1", time.Date(2025, time.March, 13, 9, 0, 0, 0, time.UTC), 8)
	open.ClockOut = nil
	open.Status = payroll.EntryOpen

	for _, e := range []payroll.TimeEntry{
		entryAt("second", "emp-1", time.Date(2025, time.March, 11, 9, 0, 0, 0, time.UTC), 8),
		entryAt("first", "emp-1", time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC), 8),
		entryAt("before", "emp-1", time.Date(2025, time.March, 9, 23, 0, 0, 0, time.UTC), 8),
		late, pending, open,
	} {
		require.NoError(t, s.AddTimeEntry(ctx, e))
	}

	period, err := payroll.ParsePeriod("2025-03-10", "2025-03-23")
	require.NoError(t, err)
	got, err := s.GetClosedEntries(ctx, "emp-1", period)
	require.NoError(t, err)

	ids := make([]payroll.EntryID, len(got))
	for i, e := range got {
		ids[i] = e.ID
	}
	assert.Equal(t, []payroll.EntryID{"first", "second", "late-local"}, ids)

	_, offset := got[2].ClockIn.Zone()
	assert.Equal(t, -5*3600, offset)
	assert.Equal(t, "6", got[2].WorkedHours().String())

	all, err := s.ListTimeEntries(ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestEntries_UnknownEmployeeAndDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.PutEmployee(ctx, payroll.Employee{ID: "emp-1"}))

	in := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	err := s.AddTimeEntry(ctx, entryAt("e-1", "ghost", in, 8))
	assert.ErrorIs(t, err, payroll.ErrEmployeeNotFound)

	require.NoError(t, s.AddTimeEntry(ctx, entryAt("e-1", "emp-1", in, 8)))
	err = s.AddTimeEntry(ctx, entryAt("e-1", "emp-1", in, 8))
	assert.ErrorIs(t, err, payroll.ErrValidation)
}

// =============================================================================
// CALCULATIONS
// =============================================================================

func testCalculation(emp payroll.EmployeeID, p payroll.Period, total string) *payroll.PayCalculation {
	hours := decimal.RequireFromString(total)
	return &payroll.PayCalculation{
		EmployeeID:      emp,
		Period:          p,
		TotalHours:      hours,
		RegularHours:    hours,
		OvertimeHours:   decimal.Zero,
		DoubleTimeHours: decimal.Zero,
		TotalAllowances: decimal.RequireFromString("25"),
		Components: payroll.Components{
			"meal": {Name: "meal", Type: payroll.ComponentAllowance, Amount: decimal.RequireFromString("25"),
				RulesApplied: []string{"Meal"}},
		},
		EntryIDs:       []payroll.EntryID{"e-1", "e-2"},
		RuleSetVersion: 4,
		CalculatedAt:   time.Date(2025, time.March, 24, 9, 0, 0, 0, time.UTC),
		CalculatedBy:   "scheduler",
	}
}

func TestCalculations_AppendOnlyRevisions(t *testing.T) {
	// GIVEN: A saved calculation
	// WHEN: Saving again without recalculate
	// THEN: DuplicateCalculationError names the original
	// WHEN: Saving with recalculate
	// THEN: Revision 2 is appended and listed first

	ctx := context.Background()
	s := newTestStore(t)
	p, err := payroll.ParsePeriod("2025-03-10", "2025-03-23")
	require.NoError(t, err)

	first := testCalculation("emp-1", p, "8")
	id1, err := s.SaveCalculation(ctx, first, false)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Revision)

	_, err = s.SaveCalculation(ctx, testCalculation("emp-1", p, "9"), false)
	var dup *payroll.DuplicateCalculationError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, id1, dup.ExistingID)

	second := testCalculation("emp-1", p, "9")
	id2, err := s.SaveCalculation(ctx, second, true)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Revision)

	got, err := s.GetCalculation(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "8", got.TotalHours.String())
	assert.Equal(t, 1, got.Revision)
	assert.Equal(t, []payroll.EntryID{"e-1", "e-2"}, got.EntryIDs)
	assert.Equal(t, int64(4), got.RuleSetVersion)
	assert.Equal(t, "25", got.Components["meal"].Amount.String())
	assert.Equal(t, []string{"Meal"}, got.Components["meal"].RulesApplied)
	assert.True(t, got.CalculatedAt.Equal(first.CalculatedAt))
	assert.True(t, got.Period.Start.Equal(p.Start))

	all, err := s.ListCalculations(ctx, payroll.CalculationFilter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, id2, all[0].ID)

	latest, err := s.ListCalculations(ctx, payroll.CalculationFilter{Period: &p, LatestOnly: true})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, id2, latest[0].ID)

	_, err = s.GetCalculation(ctx, "missing")
	assert.ErrorIs(t, err, payroll.ErrCalculationNotFound)
}

func TestReset_ClearsData(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.CreateRule(ctx, testRule("Overtime", 10))
	require.NoError(t, err)
	require.NoError(t, s.PutEmployee(ctx, payroll.Employee{ID: "emp-1"}))

	require.NoError(t, s.Reset(ctx))

	rules, _ := s.ListRules(ctx)
	assert.Empty(t, rules)
	emps, _ := s.ListEmployees(ctx)
	assert.Empty(t, emps)
}
