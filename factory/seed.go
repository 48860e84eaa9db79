/*
seed.go - YAML fixture loader

PURPOSE:
  Populates an empty store with employees, time entries and pay rules from a
  YAML file, for demos and local development. Rules go through RuleAdmin so
  they are validated exactly like rules created over the API.

FILE FORMAT:
  employees:
    - id: emp-1
      name: Ada
      roles: [nurse]
      department: icu
  time_entries:
    - id: te-1
      employee_id: emp-1
      clock_in: 2025-03-01T08:00:00Z
      clock_out: 2025-03-01T18:00:00Z
      break_minutes: 0
  rules:
    - name: Weekend Overtime
      priority: 10
      conditions: {day_of_week: [6], tier: [overtime]}
      actions: {pay_multiplier: 1.5}

  Time entries default to status "closed" and approved: true.

NOTE:
  A seed is applied only when the directory has no employees, so restarting
  with the same seed file is a no-op.
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warp/pay-engine/payroll"
)

// Seed is the decoded fixture file.
type Seed struct {
	Employees   []EmployeeSeed   `yaml:"employees"`
	TimeEntries []TimeEntrySeed  `yaml:"time_entries"`
	Rules       []map[string]any `yaml:"rules"`
}

type EmployeeSeed struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Roles      []string `yaml:"roles"`
	Department string   `yaml:"department"`
}

type TimeEntrySeed struct {
	ID           string     `yaml:"id"`
	EmployeeID   string     `yaml:"employee_id"`
	ClockIn      time.Time  `yaml:"clock_in"`
	ClockOut     *time.Time `yaml:"clock_out"`
	BreakMinutes int        `yaml:"break_minutes"`
	Status       string     `yaml:"status"`
	Approved     *bool      `yaml:"approved"`
}

// SeedTarget is the write side of the directory and time-entry stores.
type SeedTarget interface {
	payroll.Directory
	PutEmployee(ctx context.Context, emp payroll.Employee) error
	AddTimeEntry(ctx context.Context, entry payroll.TimeEntry) error
}

// LoadSeedFile reads and decodes a YAML fixture.
func LoadSeedFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes a YAML fixture.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return &s, nil
}

// Apply writes the fixture into target and admin. It returns false without
// writing when the directory already has employees.
func (s *Seed) Apply(ctx context.Context, target SeedTarget, admin *payroll.RuleAdmin, logger *slog.Logger) (bool, error) {
	existing, err := target.ListEmployees(ctx)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		logger.Info("seed skipped, directory not empty", "employees", len(existing))
		return false, nil
	}

	for _, e := range s.Employees {
		emp := payroll.Employee{
			ID:         payroll.EmployeeID(e.ID),
			Name:       e.Name,
			Roles:      e.Roles,
			Department: e.Department,
		}
		if err := target.PutEmployee(ctx, emp); err != nil {
			return false, fmt.Errorf("seed employee %s: %w", e.ID, err)
		}
	}

	for _, te := range s.TimeEntries {
		if err := target.AddTimeEntry(ctx, te.toEntry()); err != nil {
			return false, fmt.Errorf("seed time entry %s: %w", te.ID, err)
		}
	}

	f := NewRuleFactory()
	for i, raw := range s.Rules {
		// Round-trip through JSON so seed rules get the same strict decoding
		// as API payloads.
		data, err := json.Marshal(raw)
		if err != nil {
			return false, fmt.Errorf("seed rule %d: %w", i, err)
		}
		rule, err := f.ParseRule(data)
		if err != nil {
			return false, fmt.Errorf("seed rule %d: %w", i, err)
		}
		if _, err := admin.Create(ctx, rule, "seed"); err != nil {
			return false, fmt.Errorf("seed rule %q: %w", rule.Name, err)
		}
	}

	logger.Info("seed applied",
		"employees", len(s.Employees),
		"time_entries", len(s.TimeEntries),
		"rules", len(s.Rules),
	)
	return true, nil
}

func (te TimeEntrySeed) toEntry() payroll.TimeEntry {
	entry := payroll.TimeEntry{
		ID:           payroll.EntryID(te.ID),
		EmployeeID:   payroll.EmployeeID(te.EmployeeID),
		ClockIn:      te.ClockIn,
		ClockOut:     te.ClockOut,
		BreakMinutes: te.BreakMinutes,
		Status:       payroll.EntryClosed,
		Approved:     true,
	}
	if te.Status != "" {
		entry.Status = payroll.EntryStatus(te.Status)
	}
	if te.Approved != nil {
		entry.Approved = *te.Approved
	}
	return entry
}
