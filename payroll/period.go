package payroll

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - The payroll date range a calculation covers
// =============================================================================

// Period is an inclusive calendar-date range [Start, End]. Times are
// normalized to midnight UTC.
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod builds a period from two dates, dropping any time-of-day.
func NewPeriod(start, end time.Time) (Period, error) {
	p := Period{Start: dateOf(start), End: dateOf(end)}
	if p.End.Before(p.Start) {
		return Period{}, ErrInvalidPeriod
	}
	return p, nil
}

// ParsePeriod parses two YYYY-MM-DD dates.
func ParsePeriod(start, end string) (Period, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period start %q: %w", start, err)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period end %q: %w", end, err)
	}
	return NewPeriod(s, e)
}

// DateLayout is the wire and storage format for period boundaries.
const DateLayout = "2006-01-02"

// Contains returns true if t's calendar date is within [Start, End].
func (p Period) Contains(t time.Time) bool {
	d := dateOf(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

// Days returns every date in the period.
func (p Period) Days() []time.Time {
	var days []time.Time
	for d := p.Start; !d.After(p.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.Format(DateLayout) + ", " + p.End.Format(DateLayout) + "]"
}

// Key identifies the period in stores.
func (p Period) Key() string {
	return p.Start.Format(DateLayout) + "/" + p.End.Format(DateLayout)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// PAY PERIOD SCHEDULE - Determines which period a date falls into
// =============================================================================

type PeriodType string

const (
	PeriodWeekly      PeriodType = "weekly"       // 7 days from anchor
	PeriodBiweekly    PeriodType = "biweekly"     // 14 days from anchor
	PeriodSemiMonthly PeriodType = "semi_monthly" // 1st-15th, 16th-end of month
	PeriodMonthly     PeriodType = "monthly"      // calendar month
)

// PeriodConfig defines how pay periods are laid out.
type PeriodConfig struct {
	Type PeriodType

	// Anchor is the first day of any one weekly/biweekly period.
	Anchor time.Time
}

// Validate checks the schedule is usable.
func (pc PeriodConfig) Validate() error {
	switch pc.Type {
	case PeriodWeekly, PeriodBiweekly:
		if pc.Anchor.IsZero() {
			return fmt.Errorf("%s pay period requires an anchor date", pc.Type)
		}
	case PeriodSemiMonthly, PeriodMonthly:
	default:
		return fmt.Errorf("unknown pay period type %q", pc.Type)
	}
	return nil
}

// PeriodFor returns the pay period that contains the given date.
func (pc PeriodConfig) PeriodFor(date time.Time) Period {
	d := dateOf(date)
	switch pc.Type {
	case PeriodWeekly:
		return pc.fixedLength(d, 7)
	case PeriodBiweekly:
		return pc.fixedLength(d, 14)
	case PeriodSemiMonthly:
		if d.Day() <= 15 {
			return Period{Start: time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC),
				End: time.Date(d.Year(), d.Month(), 15, 0, 0, 0, 0, time.UTC)}
		}
		return Period{Start: time.Date(d.Year(), d.Month(), 16, 0, 0, 0, 0, time.UTC), End: endOfMonth(d)}
	default:
		return Period{Start: time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC), End: endOfMonth(d)}
	}
}

func (pc PeriodConfig) fixedLength(d time.Time, length int) Period {
	anchor := dateOf(pc.Anchor)
	offset := int(d.Sub(anchor).Hours() / 24)
	n := offset / length
	if offset < 0 && offset%length != 0 {
		n--
	}
	start := anchor.AddDate(0, 0, n*length)
	return Period{Start: start, End: start.AddDate(0, 0, length-1)}
}

// PreviousPeriod returns the period immediately before the one containing date.
func (pc PeriodConfig) PreviousPeriod(date time.Time) Period {
	current := pc.PeriodFor(date)
	return pc.PeriodFor(current.Start.AddDate(0, 0, -1))
}

func endOfMonth(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month()+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}
