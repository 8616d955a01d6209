// Package ledger folds a group's expenses and payments into per-member balances.
//
// Sign convention: a positive balance is owed to the member, a negative
// balance is owed by the member. The balances of a group always sum to zero.
package ledger

import (
	"sort"

	"conti/internal/core"
)

// ComputeBalances applies every expense and payment of a group.
//
// The payer of an expense is credited the full amount and each participant is
// debited their share. A payment credits the sender and debits the recipient.
func ComputeBalances(groupID string, expenses []core.Expense, payments []core.Payment) (core.Balances, error) {
	balances := make(core.Balances)
	if err := apply(groupID, balances, nil, expenses, payments); err != nil {
		return nil, err
	}
	if err := Verify(groupID, balances); err != nil {
		return nil, err
	}
	return balances, nil
}

// ComputeStatements is ComputeBalances with the per-member breakdown kept.
// Statements are ordered by member ID.
func ComputeStatements(groupID string, expenses []core.Expense, payments []core.Payment) ([]core.MemberStatement, error) {
	balances := make(core.Balances)
	stmts := make(map[string]*core.MemberStatement)
	if err := apply(groupID, balances, stmts, expenses, payments); err != nil {
		return nil, err
	}
	if err := Verify(groupID, balances); err != nil {
		return nil, err
	}

	out := make([]core.MemberStatement, 0, len(stmts))
	for id, s := range stmts {
		s.Net = balances[id]
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}

// NetBalances reads the balances carried by statements from ComputeStatements.
func NetBalances(stmts []core.MemberStatement) core.Balances {
	out := make(core.Balances, len(stmts))
	for _, s := range stmts {
		out[s.MemberID] = s.Net
	}
	return out
}

func apply(groupID string, balances core.Balances, stmts map[string]*core.MemberStatement, expenses []core.Expense, payments []core.Payment) error {
	stmt := func(id string) *core.MemberStatement {
		if stmts == nil {
			return &core.MemberStatement{}
		}
		s, ok := stmts[id]
		if !ok {
			s = &core.MemberStatement{MemberID: id}
			stmts[id] = s
		}
		return s
	}

	for _, e := range expenses {
		if e.GroupID != groupID {
			return &core.GroupMismatchError{Expected: groupID, Actual: e.GroupID, RecordID: e.ID}
		}
		if err := e.Amount.Validate(); err != nil {
			return err
		}
		if sum := core.SumShares(e.Splits); sum != e.Amount.Cents {
			return &core.SplitMismatchError{Expected: e.Amount.Cents, Actual: sum}
		}

		balances[e.PayerID] += e.Amount.Cents
		payer := stmt(e.PayerID)
		payer.Paid = payer.Paid.Add(e.Amount)

		for _, s := range e.Splits {
			balances[s.MemberID] -= s.Share.Cents
			member := stmt(s.MemberID)
			member.Share = member.Share.Add(s.Share)
		}
	}

	for _, p := range payments {
		if p.GroupID != groupID {
			return &core.GroupMismatchError{Expected: groupID, Actual: p.GroupID, RecordID: p.ID}
		}
		if err := p.Amount.Validate(); err != nil {
			return err
		}

		balances[p.FromMemberID] += p.Amount.Cents
		balances[p.ToMemberID] -= p.Amount.Cents
		from := stmt(p.FromMemberID)
		from.Sent = from.Sent.Add(p.Amount)
		to := stmt(p.ToMemberID)
		to.Received = to.Received.Add(p.Amount)
	}
	return nil
}

// Verify checks that balances sum to zero.
func Verify(groupID string, balances core.Balances) error {
	if sum := balances.Sum(); sum != 0 {
		return &core.LedgerInconsistencyError{GroupID: groupID, Sum: sum}
	}
	return nil
}

// Seed returns a copy of balances with an explicit zero for every listed
// member that has no activity yet.
func Seed(balances core.Balances, memberIDs []string) core.Balances {
	out := balances.Clone()
	for _, id := range memberIDs {
		if _, ok := out[id]; !ok {
			out[id] = 0
		}
	}
	return out
}

// SeedStatements does the same for statements, keeping member ID order.
func SeedStatements(stmts []core.MemberStatement, memberIDs []string) []core.MemberStatement {
	have := make(map[string]struct{}, len(stmts))
	for _, s := range stmts {
		have[s.MemberID] = struct{}{}
	}
	out := append([]core.MemberStatement(nil), stmts...)
	for _, id := range memberIDs {
		if _, ok := have[id]; !ok {
			out = append(out, core.MemberStatement{MemberID: id})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out
}
