// Package store provides in-memory implementations of the payroll stores.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/pay-engine/payroll"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements payroll.RuleStore, payroll.TimeSource, payroll.Directory
// and payroll.CalculationStore. Rule writes take the write lock, which makes
// the store the single writer; snapshots take the read lock only.
type Memory struct {
	mu sync.RWMutex

	rules    map[payroll.RuleID]payroll.PayRule
	sequence int64
	revision int64

	employees map[payroll.EmployeeID]payroll.Employee
	entries   map[payroll.EmployeeID][]payroll.TimeEntry

	calculations []*payroll.PayCalculation // append-only, insertion order
	byID         map[payroll.CalculationID]int
	byKey        map[calcKey][]payroll.CalculationID

	now func() time.Time
}

type calcKey struct {
	EmployeeID payroll.EmployeeID
	Period     string
}

func keyOf(id payroll.EmployeeID, p payroll.Period) calcKey {
	return calcKey{EmployeeID: id, Period: p.Key()}
}

func NewMemory() *Memory {
	return &Memory{
		rules:     make(map[payroll.RuleID]payroll.PayRule),
		employees: make(map[payroll.EmployeeID]payroll.Employee),
		entries:   make(map[payroll.EmployeeID][]payroll.TimeEntry),
		byID:      make(map[payroll.CalculationID]int),
		byKey:     make(map[calcKey][]payroll.CalculationID),
		now:       time.Now,
	}
}

// Reset drops every rule, employee, entry and calculation. The rule
// revision keeps counting so snapshot versions never repeat.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rules = make(map[payroll.RuleID]payroll.PayRule)
	m.revision++
	m.employees = make(map[payroll.EmployeeID]payroll.Employee)
	m.entries = make(map[payroll.EmployeeID][]payroll.TimeEntry)
	m.calculations = nil
	m.byID = make(map[payroll.CalculationID]int)
	m.byKey = make(map[calcKey][]payroll.CalculationID)
	return nil
}

// =============================================================================
// RULES
// =============================================================================

func (m *Memory) CreateRule(_ context.Context, rule payroll.PayRule) (payroll.PayRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rule.ID == "" {
		rule.ID = payroll.RuleID(uuid.NewString())
	}
	if _, exists := m.rules[rule.ID]; exists {
		return payroll.PayRule{}, payroll.NewFieldError("id", "pay rule %s already exists", rule.ID)
	}
	if err := m.checkNameLocked(rule); err != nil {
		return payroll.PayRule{}, err
	}

	m.sequence++
	m.revision++
	rule.Sequence = m.sequence
	rule.Version = 1
	m.rules[rule.ID] = rule.Clone()
	return rule.Clone(), nil
}

func (m *Memory) GetRule(_ context.Context, id payroll.RuleID) (payroll.PayRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[id]
	if !ok {
		return payroll.PayRule{}, payroll.ErrRuleNotFound
	}
	return r.Clone(), nil
}

func (m *Memory) ListRules(_ context.Context) ([]payroll.PayRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(), nil
}

func (m *Memory) listLocked() []payroll.PayRule {
	out := make([]payroll.PayRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r.Clone())
	}
	payroll.SortRules(out)
	return out
}

func (m *Memory) UpdateRule(_ context.Context, rule payroll.PayRule) (payroll.PayRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.rules[rule.ID]
	if !ok {
		return payroll.PayRule{}, payroll.ErrRuleNotFound
	}
	if current.Version != rule.Version {
		return payroll.PayRule{}, payroll.ErrConcurrentModification
	}
	if err := m.checkNameLocked(rule); err != nil {
		return payroll.PayRule{}, err
	}

	rule.Sequence = current.Sequence
	rule.CreatedAt = current.CreatedAt
	rule.CreatedBy = current.CreatedBy
	rule.Version = current.Version + 1
	m.revision++
	m.rules[rule.ID] = rule.Clone()
	return rule.Clone(), nil
}

func (m *Memory) DeleteRule(_ context.Context, id payroll.RuleID, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.rules[id]
	if !ok {
		return payroll.ErrRuleNotFound
	}
	if current.Version != version {
		return payroll.ErrConcurrentModification
	}
	delete(m.rules, id)
	m.revision++
	return nil
}

// Reorder checks every change first, then applies them all.
func (m *Memory) Reorder(_ context.Context, changes []payroll.PriorityChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range changes {
		current, ok := m.rules[c.ID]
		if !ok {
			return payroll.ErrRuleNotFound
		}
		if current.Version != c.Version {
			return payroll.ErrConcurrentModification
		}
	}
	now := m.now().UTC()
	for _, c := range changes {
		r := m.rules[c.ID]
		r.Priority = c.Priority
		r.Version++
		r.UpdatedAt = now
		m.rules[c.ID] = r
	}
	m.revision++
	return nil
}

func (m *Memory) Snapshot(_ context.Context) (*payroll.RuleSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return payroll.NewRuleSet(m.listLocked(), m.revision, m.now().UTC()), nil
}

func (m *Memory) checkNameLocked(rule payroll.PayRule) error {
	for id, r := range m.rules {
		if id != rule.ID && strings.EqualFold(r.Name, rule.Name) {
			return payroll.NewFieldError("name", "a pay rule named %q already exists", r.Name)
		}
	}
	return nil
}

// =============================================================================
// DIRECTORY + TIME ENTRIES
// =============================================================================

// PutEmployee creates or replaces an employee record.
func (m *Memory) PutEmployee(_ context.Context, emp payroll.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	emp.Roles = append([]string(nil), emp.Roles...)
	m.employees[emp.ID] = emp
	return nil
}

func (m *Memory) GetEmployeeAttributes(_ context.Context, id payroll.EmployeeID) (payroll.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	emp, ok := m.employees[id]
	if !ok {
		return payroll.Employee{}, payroll.ErrEmployeeNotFound
	}
	emp.Roles = append([]string(nil), emp.Roles...)
	return emp, nil
}

func (m *Memory) ListEmployees(_ context.Context) ([]payroll.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]payroll.Employee, 0, len(m.employees))
	for _, e := range m.employees {
		e.Roles = append([]string(nil), e.Roles...)
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AddTimeEntry records an entry. Entries are kept ordered by clock-in.
func (m *Memory) AddTimeEntry(_ context.Context, e payroll.TimeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.employees[e.EmployeeID]; !ok {
		return payroll.ErrEmployeeNotFound
	}
	if e.ID == "" {
		e.ID = payroll.EntryID(uuid.NewString())
	}
	for _, list := range m.entries {
		for _, existing := range list {
			if existing.ID == e.ID {
				return payroll.NewFieldError("id", "time entry %s already exists", e.ID)
			}
		}
	}
	list := m.entries[e.EmployeeID]
	i := sort.Search(len(list), func(i int) bool { return list[i].ClockIn.After(e.ClockIn) })
	list = append(list, payroll.TimeEntry{})
	copy(list[i+1:], list[i:])
	list[i] = e
	m.entries[e.EmployeeID] = list
	return nil
}

// ListTimeEntries returns every entry of an employee, eligible or not.
func (m *Memory) ListTimeEntries(_ context.Context, id payroll.EmployeeID) ([]payroll.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]payroll.TimeEntry(nil), m.entries[id]...), nil
}

func (m *Memory) GetClosedEntries(_ context.Context, id payroll.EmployeeID, period payroll.Period) ([]payroll.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []payroll.TimeEntry
	for _, e := range m.entries[id] {
		if e.Eligible() && period.Contains(e.ClockIn) {
			out = append(out, e)
		}
	}
	return out, nil
}

// =============================================================================
// CALCULATIONS (append-only)
// =============================================================================

func (m *Memory) SaveCalculation(_ context.Context, calc *payroll.PayCalculation, recalculate bool) (payroll.CalculationID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := keyOf(calc.EmployeeID, calc.Period)
	existing := m.byKey[k]
	if len(existing) > 0 && !recalculate {
		return "", &payroll.DuplicateCalculationError{
			EmployeeID: calc.EmployeeID,
			Period:     calc.Period,
			ExistingID: existing[len(existing)-1],
		}
	}
	if calc.ID == "" {
		calc.ID = payroll.CalculationID(uuid.NewString())
	}
	if _, taken := m.byID[calc.ID]; taken {
		return "", payroll.NewFieldError("id", "calculation %s already exists", calc.ID)
	}

	calc.Revision = len(existing) + 1
	m.byID[calc.ID] = len(m.calculations)
	m.calculations = append(m.calculations, calc.Clone())
	m.byKey[k] = append(existing, calc.ID)
	return calc.ID, nil
}

func (m *Memory) GetCalculation(_ context.Context, id payroll.CalculationID) (*payroll.PayCalculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byID[id]
	if !ok {
		return nil, payroll.ErrCalculationNotFound
	}
	return m.calculations[i].Clone(), nil
}

func (m *Memory) ListCalculations(_ context.Context, f payroll.CalculationFilter) ([]*payroll.PayCalculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[calcKey]bool)
	var out []*payroll.PayCalculation
	for i := len(m.calculations) - 1; i >= 0; i-- {
		c := m.calculations[i]
		if f.EmployeeID != "" && c.EmployeeID != f.EmployeeID {
			continue
		}
		if f.Period != nil && c.Period.Key() != f.Period.Key() {
			continue
		}
		k := keyOf(c.EmployeeID, c.Period)
		if f.LatestOnly && seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c.Clone())
	}
	return out, nil
}
