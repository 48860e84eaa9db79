package payroll_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/warp/pay-engine/payroll"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func h(s string) payroll.Hours { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, label string) {
	t.Helper()
	assert.Truef(t, h(want).Equal(got), "%s: want %s, got %s", label, want, got)
}

func assertTiers(t *testing.T, regular, overtime, double string, got payroll.Tiers) {
	t.Helper()
	assertDecimal(t, regular, got.Regular, "regular")
	assertDecimal(t, overtime, got.Overtime, "overtime")
	assertDecimal(t, double, got.DoubleTime, "double_time")
}

// =============================================================================
// SPLIT HOURS
// =============================================================================

func TestSplitHours_Table(t *testing.T) {
	tests := []struct {
		name                      string
		total, regCeil, otCeil    string
		regular, overtime, double string
	}{
		{"under regular ceiling", "5", "8", "12", "5", "0", "0"},
		{"exactly regular ceiling", "8", "8", "12", "8", "0", "0"},
		{"into overtime", "10", "8", "12", "8", "2", "0"},
		{"into double time", "13", "8", "12", "8", "4", "1"},
		{"narrow overtime band", "10", "8", "10", "8", "2", "0"},
		{"equal ceilings skip overtime", "10", "8", "8", "8", "0", "2"},
		{"zero regular ceiling", "3", "0", "2", "0", "2", "1"},
		{"fractional hours", "9.75", "8", "12", "8", "1.75", "0"},
		{"zero total", "0", "8", "12", "0", "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := payroll.SplitHours(h(tt.total), h(tt.regCeil), h(tt.otCeil))
			assertTiers(t, tt.regular, tt.overtime, tt.double, got)
		})
	}
}

func TestSplitHours_NegativeTotalYieldsZeros(t *testing.T) {
	got := payroll.SplitHours(h("-4"), h("8"), h("12"))
	assertTiers(t, "0", "0", "0", got)
}

func TestSplitHours_BucketsAlwaysSumToTotal(t *testing.T) {
	// GIVEN: Every quarter hour from 0 to 30 against several ceiling pairs
	// WHEN: Splitting into buckets
	// THEN: Buckets are non-negative, sum exactly to total, and respect ceilings

	ceilings := [][2]string{{"8", "12"}, {"8", "10"}, {"0", "0"}, {"40", "60"}, {"7.5", "7.5"}}
	step := h("0.25")

	for _, c := range ceilings {
		reg, ot := h(c[0]), h(c[1])
		for total := decimal.Zero; total.LessThanOrEqual(h("30")); total = total.Add(step) {
			got := payroll.SplitHours(total, reg, ot)

			assert.Truef(t, got.Total().Equal(total), "sum %s != total %s (ceilings %v)", got.Total(), total, c)
			assert.False(t, got.Regular.IsNegative())
			assert.False(t, got.Overtime.IsNegative())
			assert.False(t, got.DoubleTime.IsNegative())
			assert.True(t, got.Regular.LessThanOrEqual(reg))
			assert.True(t, got.Overtime.LessThanOrEqual(ot.Sub(reg)))
		}
	}
}

// =============================================================================
// TIERING CONFIG
// =============================================================================

func TestTieringConfig_Validate(t *testing.T) {
	ok := payroll.DefaultTieringConfig()
	assert.NoError(t, ok.Validate())

	inverted := ok
	inverted.RegularCeiling, inverted.OvertimeCeiling = h("12"), h("8")
	assert.Error(t, inverted.Validate(), "overtime ceiling below regular ceiling")

	negative := ok
	negative.RegularCeiling = h("-1")
	assert.Error(t, negative.Validate())

	unknown := ok
	unknown.Granularity = "shift"
	assert.Error(t, unknown.Validate())
}

func TestTieringConfig_AttributeSplitsUnitAcrossEntries(t *testing.T) {
	// GIVEN: A day of 6h then 4h then 3h with 8/12 ceilings
	// WHEN: Each entry is attributed after the hours before it
	// THEN: Portions sum to the whole day's buckets

	cfg := payroll.DefaultTieringConfig()

	first := cfg.Attribute(h("0"), h("6"))
	second := cfg.Attribute(h("6"), h("4"))
	third := cfg.Attribute(h("10"), h("3"))

	assertTiers(t, "6", "0", "0", first)
	assertTiers(t, "2", "2", "0", second)
	assertTiers(t, "0", "2", "1", third)

	day := cfg.Tier(h("13"))
	sum := first.Add(second).Add(third)
	assertTiers(t, day.Regular.String(), day.Overtime.String(), day.DoubleTime.String(), sum)
}
