/*
admin.go - Rule administration surface

PURPOSE:
  Validates and applies create/update/toggle/delete/reorder operations on pay
  rules. Nothing reaches the RuleStore without passing PayRule.Validate and
  the cross-rule checks (unique name, one component type per component name).

CONFLICTS:
  Every mutation reads fresh state, applies the change, and writes with the
  version it read. If another administrative write got there first the store
  returns ErrConcurrentModification; the whole read-modify-write is retried
  once with fresh state, then the conflict is surfaced to the caller.

SEE ALSO:
  - rule.go: Validation rules
  - store.go: RuleStore contract
*/
package payroll

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// conflictAttempts is the initial try plus one retry.
const conflictAttempts = 2

type RuleAdmin struct {
	Store  RuleStore
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() RuleID
}

// NewRuleAdmin wires an admin surface with default clock and id generator.
func NewRuleAdmin(store RuleStore, logger *slog.Logger) *RuleAdmin {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleAdmin{
		Store:  store,
		Logger: logger,
		Now:    time.Now,
		NewID:  func() RuleID { return RuleID(uuid.NewString()) },
	}
}

// Validate checks a rule payload against its own invariants and against the
// stored rules, without saving.
func (a *RuleAdmin) Validate(ctx context.Context, rule PayRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	existing, err := a.Store.ListRules(ctx)
	if err != nil {
		return err
	}
	return rule.ValidateAgainst(existing)
}

// Create validates and stores a new rule. New rules are active unless the
// caller says otherwise via Active=false after creation.
func (a *RuleAdmin) Create(ctx context.Context, rule PayRule, actorID string) (PayRule, error) {
	if err := a.Validate(ctx, rule); err != nil {
		return PayRule{}, err
	}
	now := a.Now().UTC()
	if rule.ID == "" {
		rule.ID = a.NewID()
	}
	rule.CreatedBy = actorID
	rule.CreatedAt, rule.UpdatedAt = now, now

	created, err := a.Store.CreateRule(ctx, rule)
	if err != nil {
		return PayRule{}, err
	}
	a.Logger.Info("pay rule created", "rule_id", created.ID, "name", created.Name,
		"priority", created.Priority, "actor_id", actorID)
	return created, nil
}

// Update replaces the editable fields of a rule (name, description, priority,
// active flag, conditions, actions).
func (a *RuleAdmin) Update(ctx context.Context, id RuleID, edit PayRule, actorID string) (PayRule, error) {
	return a.mutate(ctx, id, actorID, "updated", func(r *PayRule) {
		r.Name = edit.Name
		r.Description = edit.Description
		r.Priority = edit.Priority
		r.Active = edit.Active
		r.Conditions = edit.Conditions
		r.Actions = edit.Actions
	})
}

// Toggle flips the active flag.
func (a *RuleAdmin) Toggle(ctx context.Context, id RuleID, actorID string) (PayRule, error) {
	return a.mutate(ctx, id, actorID, "toggled", func(r *PayRule) { r.Active = !r.Active })
}

// SetActive activates or deactivates a rule without deleting it.
func (a *RuleAdmin) SetActive(ctx context.Context, id RuleID, active bool, actorID string) (PayRule, error) {
	return a.mutate(ctx, id, actorID, "activation changed", func(r *PayRule) { r.Active = active })
}

// Delete removes a rule. Persisted calculations keep the rule name in their
// rules_applied lists.
func (a *RuleAdmin) Delete(ctx context.Context, id RuleID, actorID string) error {
	return a.retry(ctx, func() error {
		current, err := a.Store.GetRule(ctx, id)
		if err != nil {
			return err
		}
		if err := a.Store.DeleteRule(ctx, id, current.Version); err != nil {
			return err
		}
		a.Logger.Info("pay rule deleted", "rule_id", id, "name", current.Name, "actor_id", actorID)
		return nil
	})
}

// Reorder assigns new priorities to a batch of rules atomically.
func (a *RuleAdmin) Reorder(ctx context.Context, priorities map[RuleID]int, actorID string) error {
	v := &ValidationError{}
	for id, p := range priorities {
		if p < 0 || p > MaxPriority {
			v.add("priority", "rule %s: must be between 0 and %d, got %d", id, MaxPriority, p)
		}
	}
	if err := v.errOrNil(); err != nil {
		return err
	}

	return a.retry(ctx, func() error {
		rules, err := a.Store.ListRules(ctx)
		if err != nil {
			return err
		}
		byID := make(map[RuleID]PayRule, len(rules))
		for _, r := range rules {
			byID[r.ID] = r
		}
		changes := make([]PriorityChange, 0, len(priorities))
		for _, r := range rules {
			if p, ok := priorities[r.ID]; ok {
				changes = append(changes, PriorityChange{ID: r.ID, Priority: p, Version: r.Version})
			}
		}
		for id := range priorities {
			if _, ok := byID[id]; !ok {
				return ErrRuleNotFound
			}
		}
		if err := a.Store.Reorder(ctx, changes); err != nil {
			return err
		}
		a.Logger.Info("pay rules reordered", "count", len(changes), "actor_id", actorID)
		return nil
	})
}

func (a *RuleAdmin) mutate(ctx context.Context, id RuleID, actorID, verb string, fn func(*PayRule)) (PayRule, error) {
	var out PayRule
	err := a.retry(ctx, func() error {
		current, err := a.Store.GetRule(ctx, id)
		if err != nil {
			return err
		}
		next := current.Clone()
		fn(&next)
		if err := a.Validate(ctx, next); err != nil {
			return err
		}
		next.UpdatedAt = a.Now().UTC()
		saved, err := a.Store.UpdateRule(ctx, next)
		if err != nil {
			return err
		}
		out = saved
		return nil
	})
	if err != nil {
		return PayRule{}, err
	}
	a.Logger.Info("pay rule "+verb, "rule_id", out.ID, "name", out.Name,
		"active", out.Active, "priority", out.Priority, "version", out.Version, "actor_id", actorID)
	return out, nil
}

// retry runs fn, and once more if it failed on a concurrent modification.
func (a *RuleAdmin) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= conflictAttempts; attempt++ {
		if err = fn(); err == nil || !errors.Is(err, ErrConcurrentModification) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.Logger.Warn("pay rule write conflict", "attempt", attempt, "error", err)
	}
	return err
}
