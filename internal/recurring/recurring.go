// Package recurring expands recurring expense templates into dated expenses.
package recurring

import (
	"conti/internal/core"
	"conti/internal/split"

	"github.com/google/uuid"
)

// occurrenceNamespace seeds deterministic occurrence IDs.
var occurrenceNamespace = uuid.MustParse("8f0d4a3e-5c1b-4e8e-9a55-3f1f6c2b7d10")

// OccurrenceIndex answers whether a (template, date) occurrence already exists.
type OccurrenceIndex interface {
	Has(templateID string, date core.Date) bool
}

// OccurrenceSet is an in-memory OccurrenceIndex.
type OccurrenceSet map[string]struct{}

func NewOccurrenceSet() OccurrenceSet {
	return make(OccurrenceSet)
}

func (s OccurrenceSet) Add(templateID string, date core.Date) {
	s[OccurrenceKey(templateID, date)] = struct{}{}
}

func (s OccurrenceSet) Has(templateID string, date core.Date) bool {
	_, ok := s[OccurrenceKey(templateID, date)]
	return ok
}

// OccurrenceKey is the idempotency key of an occurrence.
func OccurrenceKey(templateID string, date core.Date) string {
	return templateID + "|" + date.String()
}

// OccurrenceID derives a stable expense ID from the idempotency key, so
// materializing the same occurrence twice yields the same record.
func OccurrenceID(templateID string, date core.Date) string {
	return uuid.NewSHA1(occurrenceNamespace, []byte(OccurrenceKey(templateID, date))).String()
}

// Dates lists the occurrence dates of tmpl from its start date up to the
// earlier of its end date and asOf, both inclusive.
func Dates(tmpl core.RecurringTemplate, asOf core.Date) ([]core.Date, error) {
	stepper, err := GetStepper(tmpl.Frequency)
	if err != nil {
		return nil, err
	}
	limit := asOf
	if !tmpl.EndDate.IsZero() && tmpl.EndDate.Before(limit) {
		limit = tmpl.EndDate
	}

	var dates []core.Date
	for k := 0; ; k++ {
		d := stepper.Occurrence(tmpl.StartDate, k)
		if d.After(limit) {
			break
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// NextDue returns the first occurrence strictly after the given date, and
// false when the template has ended or is inactive.
func NextDue(tmpl core.RecurringTemplate, after core.Date) (core.Date, bool, error) {
	stepper, err := GetStepper(tmpl.Frequency)
	if err != nil {
		return core.Date{}, false, err
	}
	if !tmpl.Active {
		return core.Date{}, false, nil
	}
	for k := 0; ; k++ {
		d := stepper.Occurrence(tmpl.StartDate, k)
		if !tmpl.EndDate.IsZero() && d.After(tmpl.EndDate) {
			return core.Date{}, false, nil
		}
		if d.After(after) {
			return d, true, nil
		}
	}
}

// Materialize returns the expenses tmpl should have produced by asOf that are
// not in existing yet. It is a pure function; persisting the result is up to
// the caller. An inactive template produces nothing.
func Materialize(tmpl core.RecurringTemplate, asOf core.Date, existing OccurrenceIndex) ([]core.Expense, error) {
	if !tmpl.Active {
		return nil, nil
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	dates, err := Dates(tmpl, asOf)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, nil
	}

	splits, err := split.Compute(tmpl.Amount, tmpl.ParticipantIDs, tmpl.SplitMethod, tmpl.Splits)
	if err != nil {
		return nil, err
	}

	var out []core.Expense
	for _, d := range dates {
		if existing != nil && existing.Has(tmpl.ID, d) {
			continue
		}
		out = append(out, core.Expense{
			ID:                  OccurrenceID(tmpl.ID, d),
			GroupID:             tmpl.GroupID,
			PayerID:             tmpl.PayerID,
			Description:         tmpl.Description + core.RecurringSuffix,
			Amount:              tmpl.Amount,
			Date:                d,
			SplitMethod:         tmpl.SplitMethod,
			Splits:              append([]core.Split(nil), splits...),
			RecurringTemplateID: tmpl.ID,
			CreatedBy:           tmpl.CreatedBy,
		})
	}
	return out, nil
}
