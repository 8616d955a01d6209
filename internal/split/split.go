// Package split turns an expense total into exact per-member shares.
//
// Each split method has its own Strategy. Strategies are looked up in a
// registry so new methods can be added without touching Compute.
package split

import (
	"conti/internal/core"
)

// Strategy computes shares for one split method.
type Strategy interface {
	// Split returns one share per participant. The shares must add up to amount exactly.
	Split(amount int64, participantIDs []string, shares []core.Split) ([]core.Split, error)
}

// EqualStrategy divides the amount evenly. The last participant absorbs the remainder.
type EqualStrategy struct{}

func (EqualStrategy) Split(amount int64, participantIDs []string, _ []core.Split) ([]core.Split, error) {
	n := int64(len(participantIDs))
	if n == 0 {
		return nil, &core.EmptyParticipantSetError{}
	}
	if err := checkUnique(participantIDs); err != nil {
		return nil, err
	}

	base := amount / n
	out := make([]core.Split, len(participantIDs))
	for i, id := range participantIDs {
		out[i] = core.Split{MemberID: id, Share: core.Money{Cents: base}}
	}
	out[n-1].Share.Cents = amount - base*(n-1)
	return out, nil
}

// ExactStrategy takes caller-supplied shares and checks they reconcile.
//
// When participant IDs are also given, every share must belong to one of them;
// participants without a share are appended with a zero share.
type ExactStrategy struct{}

func (ExactStrategy) Split(amount int64, participantIDs []string, shares []core.Split) ([]core.Split, error) {
	if len(shares) == 0 {
		return nil, &core.EmptyParticipantSetError{}
	}

	ids := make([]string, len(shares))
	var sum int64
	for i, s := range shares {
		if s.Share.Cents < 0 {
			return nil, &core.InvalidAmountError{Amount: s.Share.Cents}
		}
		ids[i] = s.MemberID
		sum += s.Share.Cents
	}
	if err := checkUnique(ids); err != nil {
		return nil, err
	}
	if sum != amount {
		return nil, &core.SplitMismatchError{Expected: amount, Actual: sum}
	}

	out := append([]core.Split(nil), shares...)
	if len(participantIDs) == 0 {
		return out, nil
	}
	if err := checkUnique(participantIDs); err != nil {
		return nil, err
	}
	allowed := make(map[string]struct{}, len(participantIDs))
	for _, id := range participantIDs {
		allowed[id] = struct{}{}
	}
	covered := make(map[string]struct{}, len(shares))
	for _, s := range shares {
		if _, ok := allowed[s.MemberID]; !ok {
			return nil, &core.UnknownMemberError{MemberID: s.MemberID}
		}
		covered[s.MemberID] = struct{}{}
	}
	for _, id := range participantIDs {
		if _, ok := covered[id]; !ok {
			out = append(out, core.Split{MemberID: id})
		}
	}
	return out, nil
}

func checkUnique(ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return &core.ValidationError{Field: "participants", Err: core.ErrEmptyMemberID}
		}
		if _, dup := seen[id]; dup {
			return &core.DuplicateParticipantError{MemberID: id}
		}
		seen[id] = struct{}{}
	}
	return nil
}

var strategies = map[core.SplitMethod]Strategy{
	core.SplitEqual: EqualStrategy{},
	core.SplitExact: ExactStrategy{},
}

// Get returns the strategy registered for a split method.
func Get(method core.SplitMethod) (Strategy, error) {
	s, ok := strategies[method]
	if !ok {
		return nil, &core.InvalidSplitMethodError{Method: method}
	}
	return s, nil
}

// Register adds or replaces the strategy for a split method.
// Call it during initialization only.
func Register(method core.SplitMethod, s Strategy) {
	strategies[method] = s
}

// Compute validates the amount and dispatches to the method's strategy.
// Nothing is returned on failure, so callers persist only reconciled splits.
func Compute(amount core.Money, participantIDs []string, method core.SplitMethod, shares []core.Split) ([]core.Split, error) {
	if err := amount.Validate(); err != nil {
		return nil, err
	}
	s, err := Get(method)
	if err != nil {
		return nil, err
	}
	out, err := s.Split(amount.Cents, participantIDs, shares)
	if err != nil {
		return nil, err
	}
	if sum := core.SumShares(out); sum != amount.Cents {
		return nil, &core.SplitMismatchError{Expected: amount.Cents, Actual: sum}
	}
	return out, nil
}
