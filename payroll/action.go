package payroll

// =============================================================================
// ACTION APPLICATOR
// =============================================================================

// Apply runs a matched rule's actions against a copy of components and returns
// the updated map. The input map is never modified.
//
// Stacking: hours and amounts accumulate across rules; scalar fields
// (multiplier, differential) take the value of the last rule applied in
// priority order. The rule name is appended to rules_applied unless the rule
// is already the most recent contributor to that component, so a rule that
// matches several entries is listed once.
func Apply(rule PayRule, matched Hours, components Components) (Components, error) {
	out := components.Clone()
	if err := applyInPlace(rule, matched, out); err != nil {
		return nil, err
	}
	return out, nil
}

func applyInPlace(rule PayRule, matched Hours, components Components) error {
	for _, a := range rule.Actions {
		name := a.Component()
		c, ok := components[name]
		if !ok {
			c = &PayComponent{Name: name, Type: a.ComponentType()}
			components[name] = c
		} else if c.Type != a.ComponentType() {
			return &ComponentConflictError{
				Component: name,
				Existing:  c.Type,
				Incoming:  a.ComponentType(),
				Rule:      rule.Name,
			}
		}
		a.apply(c, matched)
		if n := len(c.RulesApplied); n == 0 || c.RulesApplied[n-1] != rule.Name {
			c.RulesApplied = append(c.RulesApplied, rule.Name)
		}
	}
	return nil
}
