package recurring

import (
	"time"

	"conti/internal/core"
)

// Stepper is the strategy for one recurrence frequency.
// Occurrence k is always derived from the anchor date, never from occurrence
// k-1, so a clamped month end does not drift (Jan 31, Feb 29, Mar 31).
type Stepper interface {
	Occurrence(start core.Date, k int) core.Date
}

// DailyStepper steps one day at a time.
type DailyStepper struct{}

func (DailyStepper) Occurrence(start core.Date, k int) core.Date {
	return core.Date{Time: start.AddDate(0, 0, k)}
}

// WeeklyStepper steps seven days at a time.
type WeeklyStepper struct{}

func (WeeklyStepper) Occurrence(start core.Date, k int) core.Date {
	return core.Date{Time: start.AddDate(0, 0, 7*k)}
}

// MonthlyStepper keeps the anchor's day of month, clamped to the last day of shorter months.
type MonthlyStepper struct{}

func (MonthlyStepper) Occurrence(start core.Date, k int) core.Date {
	months := start.Month() - 1 + k
	year := start.Year() + months/12
	month := months%12 + 1
	return clampedDate(year, month, start.Day())
}

// YearlyStepper keeps the anchor's month and day; Feb 29 falls back to Feb 28.
type YearlyStepper struct{}

func (YearlyStepper) Occurrence(start core.Date, k int) core.Date {
	return clampedDate(start.Year()+k, start.Month(), start.Day())
}

func clampedDate(year, month, day int) core.Date {
	if last := daysIn(year, month); day > last {
		day = last
	}
	return core.NewDate(year, month, day)
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// steppers maps frequencies to their steppers.
var steppers = map[core.Frequency]Stepper{
	core.Daily:   DailyStepper{},
	core.Weekly:  WeeklyStepper{},
	core.Monthly: MonthlyStepper{},
	core.Yearly:  YearlyStepper{},
}

// GetStepper returns the stepper for a frequency.
func GetStepper(frequency core.Frequency) (Stepper, error) {
	s, ok := steppers[frequency]
	if !ok {
		return nil, &core.InvalidFrequencyError{Frequency: frequency}
	}
	return s, nil
}

// RegisterStepper adds a stepper for a new frequency. Call it during initialization only.
func RegisterStepper(frequency core.Frequency, s Stepper) {
	steppers[frequency] = s
}
