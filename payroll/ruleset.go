package payroll

import (
	"fmt"
	"time"
)

// =============================================================================
// RULE SET - Immutable snapshot of active rules in priority order
// =============================================================================

// RuleSet is the explicit snapshot handed to every calculation run. Rule edits
// after the snapshot is taken never affect it.
type RuleSet struct {
	rules   []PayRule
	version int64
	takenAt time.Time
}

// NewRuleSet keeps the active rules from all and orders them by
// (Priority, Sequence). version identifies the store revision the rules were
// read at.
func NewRuleSet(all []PayRule, version int64, takenAt time.Time) *RuleSet {
	active := make([]PayRule, 0, len(all))
	for _, r := range all {
		if r.Active {
			active = append(active, r.Clone())
		}
	}
	SortRules(active)
	return &RuleSet{rules: active, version: version, takenAt: takenAt}
}

// ActiveRulesInPriorityOrder returns a copy of the ordered active rules.
func (rs *RuleSet) ActiveRulesInPriorityOrder() []PayRule {
	out := make([]PayRule, len(rs.rules))
	for i, r := range rs.rules {
		out[i] = r.Clone()
	}
	return out
}

// Len is the number of active rules.
func (rs *RuleSet) Len() int { return len(rs.rules) }

// Version is the store revision the snapshot reflects.
func (rs *RuleSet) Version() int64 { return rs.version }

func (rs *RuleSet) TakenAt() time.Time { return rs.takenAt }

// IDs lists rule ids in evaluation order.
func (rs *RuleSet) IDs() []RuleID {
	ids := make([]RuleID, len(rs.rules))
	for i, r := range rs.rules {
		ids[i] = r.ID
	}
	return ids
}

// Select narrows the snapshot to the given rule ids, keeping priority order.
// Every id must name an active rule in the snapshot.
func (rs *RuleSet) Select(ids []RuleID) (*RuleSet, error) {
	want := make(map[RuleID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var picked []PayRule
	for _, r := range rs.rules {
		if want[r.ID] {
			picked = append(picked, r)
			delete(want, r.ID)
		}
	}
	if len(want) > 0 {
		v := &ValidationError{}
		for _, id := range ids {
			if want[id] {
				v.add("rule_ids", "%s is not an active pay rule", id)
			}
		}
		return nil, v
	}
	return &RuleSet{rules: picked, version: rs.version, takenAt: rs.takenAt}, nil
}

func (rs *RuleSet) String() string {
	return fmt.Sprintf("ruleset(v%d, %d active)", rs.version, len(rs.rules))
}
