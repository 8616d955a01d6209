package core

import (
	"errors"
	"fmt"
)

// ErrorKind tags a domain error so callers can branch without type switches.
type ErrorKind string

const (
	KindUnknown              ErrorKind = "unknown"
	KindValidation           ErrorKind = "validation"
	KindSplitMismatch        ErrorKind = "split_mismatch"
	KindEmptyParticipants    ErrorKind = "empty_participants"
	KindInvalidAmount        ErrorKind = "invalid_amount"
	KindInvalidFrequency     ErrorKind = "invalid_frequency"
	KindInvalidSplitMethod   ErrorKind = "invalid_split_method"
	KindDuplicateParticipant ErrorKind = "duplicate_participant"
	KindLedgerInconsistency  ErrorKind = "ledger_inconsistency"
	KindConcurrencyConflict  ErrorKind = "concurrency_conflict"
	KindUnknownMember        ErrorKind = "unknown_member"
	KindGroupMismatch        ErrorKind = "group_mismatch"
	KindForbidden            ErrorKind = "forbidden"
	KindNotFound             ErrorKind = "not_found"
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyMemberID    = errors.New("empty member id")
	ErrEmptyGroupID     = errors.New("empty group id")
	ErrSelfPayment      = errors.New("payment sender and recipient are the same member")
)

type kinded interface {
	Kind() ErrorKind
}

// KindOf returns the kind of the first domain error in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	if errors.Is(err, ErrInvalidAmount) {
		return KindInvalidAmount
	}
	return KindUnknown
}

// Retryable reports whether re-reading state and trying again can succeed.
func Retryable(err error) bool {
	return KindOf(err) == KindConcurrencyConflict
}

// SplitMismatchError is returned when shares do not add up to the expense amount.
type SplitMismatchError struct {
	Expected int64
	Actual   int64
}

func (e *SplitMismatchError) Error() string {
	return fmt.Sprintf("split mismatch: shares total %d, expected %d", e.Actual, e.Expected)
}

func (e *SplitMismatchError) Kind() ErrorKind { return KindSplitMismatch }

// EmptyParticipantSetError is returned when a split has nobody to split among.
type EmptyParticipantSetError struct{}

func (e *EmptyParticipantSetError) Error() string { return "participant set is empty" }

func (e *EmptyParticipantSetError) Kind() ErrorKind { return KindEmptyParticipants }

// InvalidAmountError is returned for non-positive amounts and negative shares.
type InvalidAmountError struct {
	Amount int64
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount %d: must be positive", e.Amount)
}

func (e *InvalidAmountError) Kind() ErrorKind { return KindInvalidAmount }

func (e *InvalidAmountError) Is(target error) bool { return target == ErrInvalidAmount }

// InvalidFrequencyError is returned for recurrence frequencies nobody knows how to step.
type InvalidFrequencyError struct {
	Frequency Frequency
}

func (e *InvalidFrequencyError) Error() string {
	return fmt.Sprintf("invalid frequency %q", string(e.Frequency))
}

func (e *InvalidFrequencyError) Kind() ErrorKind { return KindInvalidFrequency }

type InvalidSplitMethodError struct {
	Method SplitMethod
}

func (e *InvalidSplitMethodError) Error() string {
	return fmt.Sprintf("invalid split method %q", string(e.Method))
}

func (e *InvalidSplitMethodError) Kind() ErrorKind { return KindInvalidSplitMethod }

type DuplicateParticipantError struct {
	MemberID string
}

func (e *DuplicateParticipantError) Error() string {
	return fmt.Sprintf("participant %q listed more than once", e.MemberID)
}

func (e *DuplicateParticipantError) Kind() ErrorKind { return KindDuplicateParticipant }

// LedgerInconsistencyError means balances stopped summing to zero. It is never recovered from.
type LedgerInconsistencyError struct {
	GroupID string
	Sum     int64
}

func (e *LedgerInconsistencyError) Error() string {
	if e.GroupID == "" {
		return fmt.Sprintf("ledger inconsistency: balances sum to %d", e.Sum)
	}
	return fmt.Sprintf("ledger inconsistency in group %s: balances sum to %d", e.GroupID, e.Sum)
}

func (e *LedgerInconsistencyError) Kind() ErrorKind { return KindLedgerInconsistency }

// ConcurrencyConflictError is returned when a plan was computed from a stale group version.
type ConcurrencyConflictError struct {
	GroupID  string
	Expected int64
	Actual   int64
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict in group %s: planned at version %d, current version %d",
		e.GroupID, e.Expected, e.Actual)
}

func (e *ConcurrencyConflictError) Kind() ErrorKind { return KindConcurrencyConflict }

type UnknownMemberError struct {
	GroupID  string
	MemberID string
}

func (e *UnknownMemberError) Error() string {
	if e.GroupID == "" {
		return fmt.Sprintf("unknown member %q", e.MemberID)
	}
	return fmt.Sprintf("member %q does not belong to group %s", e.MemberID, e.GroupID)
}

func (e *UnknownMemberError) Kind() ErrorKind { return KindUnknownMember }

type GroupMismatchError struct {
	Expected string
	Actual   string
	RecordID string
}

func (e *GroupMismatchError) Error() string {
	return fmt.Sprintf("record %s belongs to group %s, not %s", e.RecordID, e.Actual, e.Expected)
}

func (e *GroupMismatchError) Kind() ErrorKind { return KindGroupMismatch }

type ForbiddenError struct {
	ActorID string
	GroupID string
	Action  string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("member %q may not %s in group %s", e.ActorID, e.Action, e.GroupID)
}

func (e *ForbiddenError) Kind() ErrorKind { return KindForbidden }

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Kind() ErrorKind { return KindNotFound }

// ValidationError wraps structural input problems (missing fields, bad dates).
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %v", e.Err)
	}
	return fmt.Sprintf("validation failed on %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Kind() ErrorKind { return KindValidation }
