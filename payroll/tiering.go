/*
tiering.go - Hour Tiering Calculator

PURPOSE:
  Splits worked hours into regular / overtime / double-time buckets using two
  ceilings. Pure and deterministic; the rest of the engine builds on it.

FORMULA (for total >= 0, 0 <= regular_ceiling <= overtime_ceiling):
  regular     = min(total, regular_ceiling)
  overtime    = min(max(total - regular_ceiling, 0), overtime_ceiling - regular_ceiling)
  double_time = max(total - overtime_ceiling, 0)

ENTRY ATTRIBUTION:
  Entries inside one tiering unit (a day, or the whole period) are tiered in
  clock-in order. An entry worked after `prior` hours owns
  SplitHours(prior+h) - SplitHours(prior), so the per-entry portions sum exactly to the
  unit's buckets.

SEE ALSO:
  - calculator.go: Runs tiering per unit and sums into period buckets
  - condition.go: overtime_threshold reads the unit's overtime bucket
*/
package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tier names one hour bucket.
type Tier string

const (
	TierRegular    Tier = "regular"
	TierOvertime   Tier = "overtime"
	TierDoubleTime Tier = "double_time"
)

// Valid reports whether t is a recognized tier.
func (t Tier) Valid() bool {
	switch t {
	case TierRegular, TierOvertime, TierDoubleTime:
		return true
	}
	return false
}

// Tiers is a regular/overtime/double-time breakdown.
type Tiers struct {
	Regular    Hours
	Overtime   Hours
	DoubleTime Hours
}

// Total sums the three buckets.
func (t Tiers) Total() Hours {
	return t.Regular.Add(t.Overtime).Add(t.DoubleTime)
}

func (t Tiers) Add(o Tiers) Tiers {
	return Tiers{
		Regular:    t.Regular.Add(o.Regular),
		Overtime:   t.Overtime.Add(o.Overtime),
		DoubleTime: t.DoubleTime.Add(o.DoubleTime),
	}
}

func (t Tiers) Sub(o Tiers) Tiers {
	return Tiers{
		Regular:    t.Regular.Sub(o.Regular),
		Overtime:   t.Overtime.Sub(o.Overtime),
		DoubleTime: t.DoubleTime.Sub(o.DoubleTime),
	}
}

// Get returns the hours in one bucket.
func (t Tiers) Get(tier Tier) Hours {
	switch tier {
	case TierRegular:
		return t.Regular
	case TierOvertime:
		return t.Overtime
	case TierDoubleTime:
		return t.DoubleTime
	}
	return decimal.Zero
}

// Granularity selects the unit tiering is applied to.
type Granularity string

const (
	GranularityDay    Granularity = "day"
	GranularityPeriod Granularity = "period"
)

// TieringConfig holds the ceilings and granularity for a calculation.
type TieringConfig struct {
	RegularCeiling  Hours
	OvertimeCeiling Hours
	Granularity     Granularity
}

// DefaultTieringConfig is 8h regular, 12h overtime ceiling, tiered per day.
func DefaultTieringConfig() TieringConfig {
	return TieringConfig{
		RegularCeiling:  decimal.NewFromInt(8),
		OvertimeCeiling: decimal.NewFromInt(12),
		Granularity:     GranularityDay,
	}
}

// Validate enforces 0 <= regular_ceiling <= overtime_ceiling.
func (c TieringConfig) Validate() error {
	if c.RegularCeiling.IsNegative() {
		return fmt.Errorf("regular ceiling must be non-negative, got %s", c.RegularCeiling)
	}
	if c.OvertimeCeiling.LessThan(c.RegularCeiling) {
		return fmt.Errorf("overtime ceiling %s is below regular ceiling %s", c.OvertimeCeiling, c.RegularCeiling)
	}
	switch c.Granularity {
	case GranularityDay, GranularityPeriod:
	default:
		return fmt.Errorf("unknown tiering granularity %q", c.Granularity)
	}
	return nil
}

// SplitHours splits total into buckets. Zero or negative totals yield all zeros.
func SplitHours(total, regularCeiling, overtimeCeiling Hours) Tiers {
	if !total.IsPositive() {
		return Tiers{Regular: decimal.Zero, Overtime: decimal.Zero, DoubleTime: decimal.Zero}
	}
	regular := decimal.Min(total, regularCeiling)
	overtime := decimal.Min(
		decimal.Max(total.Sub(regularCeiling), decimal.Zero),
		overtimeCeiling.Sub(regularCeiling),
	)
	double := decimal.Max(total.Sub(overtimeCeiling), decimal.Zero)
	return Tiers{Regular: regular, Overtime: overtime, DoubleTime: double}
}

// Tier applies the configured ceilings.
func (c TieringConfig) Tier(total Hours) Tiers {
	return SplitHours(total, c.RegularCeiling, c.OvertimeCeiling)
}

// Attribute returns the buckets owned by hours worked after prior hours in the
// same tiering unit.
func (c TieringConfig) Attribute(prior, hours Hours) Tiers {
	return c.Tier(prior.Add(hours)).Sub(c.Tier(prior))
}
