package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

const (
	SplitEqual SplitMethod = "equal"
	SplitExact SplitMethod = "exact"
)

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

const DateLayout = "2006-01-02"

// RecurringSuffix is appended to the description of materialized occurrences.
const RecurringSuffix = " (Recurring)"

type (
	Frequency   string
	SplitMethod string
	Role        string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Group struct {
		ID        string
		Name      string
		Version   int64
		CreatedAt time.Time
	}

	Member struct {
		ID          string
		GroupID     string
		DisplayName string
		Role        Role
	}

	Split struct {
		MemberID string
		Share    Money
	}

	Expense struct {
		ID                  string
		GroupID             string
		PayerID             string
		Description         string
		Amount              Money
		Date                Date
		SplitMethod         SplitMethod
		Splits              []Split
		RecurringTemplateID string // empty for one-off expenses
		CreatedBy           string
		CreatedAt           time.Time
	}

	Payment struct {
		ID              string
		GroupID         string
		FromMemberID    string
		ToMemberID      string
		Amount          Money
		Date            Date
		LinkedExpenseID string
		Note            string
		CreatedBy       string
		CreatedAt       time.Time
	}

	RecurringTemplate struct {
		ID             string
		GroupID        string
		Description    string
		Amount         Money
		PayerID        string
		ParticipantIDs []string
		SplitMethod    SplitMethod
		Splits         []Split // exact shares; unused for equal splits
		Frequency      Frequency
		StartDate      Date
		EndDate        Date // zero means open-ended
		Active         bool
		CreatedBy      string
		CreatedAt      time.Time
	}

	// Balances maps member ID to signed minor units. Positive is owed to the member.
	Balances map[string]int64

	Transfer struct {
		FromMemberID string
		ToMemberID   string
		Amount       Money
	}
)

// Valid reports whether f is one of the supported recurrence frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

func (m SplitMethod) Valid() bool {
	return m == SplitEqual || m == SplitExact
}

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Before and After compare calendar days.
func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }

func (d Date) After(o Date) bool { return d.Time.After(o.Time) }

func (d Date) Equal(o Date) bool { return d.Time.Equal(o.Time) }

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location, expressed in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

// IsEmpty returns true if the date is zero (optional end dates)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return &InvalidAmountError{Amount: m.Cents}
	}
	return nil
}

// SumShares adds up the shares of a split list.
func SumShares(splits []Split) int64 {
	var total int64
	for _, s := range splits {
		total += s.Share.Cents
	}
	return total
}

// ParticipantIDs returns the member IDs of splits in order.
func (e Expense) ParticipantIDs() []string {
	ids := make([]string, len(e.Splits))
	for i, s := range e.Splits {
		ids[i] = s.MemberID
	}
	return ids
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.GroupID) == "" {
		return &ValidationError{Field: "group_id", Err: ErrEmptyGroupID}
	}
	if strings.TrimSpace(e.PayerID) == "" {
		return &ValidationError{Field: "payer_id", Err: ErrEmptyMemberID}
	}
	if err := e.Date.Validate(); err != nil {
		return &ValidationError{Field: "date", Err: err}
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return &ValidationError{Field: "description", Err: ErrEmptyDescription}
	}
	if len(e.Description) > 200 {
		return &ValidationError{Field: "description", Err: errors.New("description too long (max 200 characters)")}
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if !e.SplitMethod.Valid() {
		return &InvalidSplitMethodError{Method: e.SplitMethod}
	}
	if len(e.Splits) == 0 {
		return &EmptyParticipantSetError{}
	}
	seen := make(map[string]struct{}, len(e.Splits))
	for _, s := range e.Splits {
		if s.MemberID == "" {
			return &ValidationError{Field: "splits", Err: ErrEmptyMemberID}
		}
		if s.Share.Cents < 0 {
			return &InvalidAmountError{Amount: s.Share.Cents}
		}
		if _, dup := seen[s.MemberID]; dup {
			return &DuplicateParticipantError{MemberID: s.MemberID}
		}
		seen[s.MemberID] = struct{}{}
	}
	if sum := SumShares(e.Splits); sum != e.Amount.Cents {
		return &SplitMismatchError{Expected: e.Amount.Cents, Actual: sum}
	}
	return nil
}

func (p Payment) Validate() error {
	if strings.TrimSpace(p.GroupID) == "" {
		return &ValidationError{Field: "group_id", Err: ErrEmptyGroupID}
	}
	if p.FromMemberID == "" || p.ToMemberID == "" {
		return &ValidationError{Field: "member_id", Err: ErrEmptyMemberID}
	}
	if p.FromMemberID == p.ToMemberID {
		return &ValidationError{Field: "to_member_id", Err: ErrSelfPayment}
	}
	if err := p.Date.Validate(); err != nil {
		return &ValidationError{Field: "date", Err: err}
	}
	return p.Amount.Validate()
}

func (rt RecurringTemplate) Validate() error {
	if strings.TrimSpace(rt.GroupID) == "" {
		return &ValidationError{Field: "group_id", Err: ErrEmptyGroupID}
	}
	if strings.TrimSpace(rt.PayerID) == "" {
		return &ValidationError{Field: "payer_id", Err: ErrEmptyMemberID}
	}
	if err := rt.StartDate.Validate(); err != nil {
		return &ValidationError{Field: "start_date", Err: err}
	}
	if !rt.EndDate.IsZero() {
		if err := rt.EndDate.Validate(); err != nil {
			return &ValidationError{Field: "end_date", Err: err}
		}
		if rt.EndDate.Before(rt.StartDate) {
			return &ValidationError{Field: "end_date", Err: errors.New("end date must not be before start date")}
		}
	}
	if !rt.Frequency.Valid() {
		return &InvalidFrequencyError{Frequency: rt.Frequency}
	}
	if len(strings.TrimSpace(rt.Description)) == 0 {
		return &ValidationError{Field: "description", Err: ErrEmptyDescription}
	}
	if len(rt.Description)+len(RecurringSuffix) > 200 {
		return &ValidationError{Field: "description", Err: errors.New("description too long (max 200 characters)")}
	}
	if err := rt.Amount.Validate(); err != nil {
		return err
	}
	if !rt.SplitMethod.Valid() {
		return &InvalidSplitMethodError{Method: rt.SplitMethod}
	}
	if rt.SplitMethod == SplitEqual && len(rt.ParticipantIDs) == 0 {
		return &EmptyParticipantSetError{}
	}
	if rt.SplitMethod == SplitExact {
		if len(rt.Splits) == 0 {
			return &EmptyParticipantSetError{}
		}
		if sum := SumShares(rt.Splits); sum != rt.Amount.Cents {
			return &SplitMismatchError{Expected: rt.Amount.Cents, Actual: sum}
		}
	}
	return nil
}

// Sum returns the total of all balances; a consistent ledger sums to zero.
func (b Balances) Sum() int64 {
	var total int64
	for _, v := range b {
		total += v
	}
	return total
}

// Clone returns an independent copy.
func (b Balances) Clone() Balances {
	out := make(Balances, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Settled reports whether every balance is zero.
func (b Balances) Settled() bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
