// Package settlement reduces a balance map to a short list of transfers.
package settlement

import (
	"container/heap"

	"conti/internal/core"
)

type position struct {
	memberID string
	amount   int64 // always positive
}

// positions is a max-heap on amount, ties broken by member ID ascending.
type positions []position

func (p positions) Len() int { return len(p) }

func (p positions) Less(i, j int) bool {
	if p[i].amount != p[j].amount {
		return p[i].amount > p[j].amount
	}
	return p[i].memberID < p[j].memberID
}

func (p positions) Swap(i, j int) { p[i], p[j] = p[j], p[i] }

func (p *positions) Push(x any) { *p = append(*p, x.(position)) }

func (p *positions) Pop() any {
	old := *p
	n := len(old)
	x := old[n-1]
	*p = old[:n-1]
	return x
}

// Plan matches the largest debtor with the largest creditor until everyone
// is settled. It emits at most (non-zero members - 1) transfers, and the
// emission order is stable for a given input.
func Plan(balances core.Balances) ([]core.Transfer, error) {
	if sum := balances.Sum(); sum != 0 {
		return nil, &core.LedgerInconsistencyError{Sum: sum}
	}

	creditors := &positions{}
	debtors := &positions{}
	for id, amount := range balances {
		switch {
		case amount > 0:
			*creditors = append(*creditors, position{memberID: id, amount: amount})
		case amount < 0:
			*debtors = append(*debtors, position{memberID: id, amount: -amount})
		}
	}
	heap.Init(creditors)
	heap.Init(debtors)

	transfers := make([]core.Transfer, 0, max(creditors.Len(), debtors.Len()))
	for creditors.Len() > 0 && debtors.Len() > 0 {
		c := heap.Pop(creditors).(position)
		d := heap.Pop(debtors).(position)

		amount := min(c.amount, d.amount)
		transfers = append(transfers, core.Transfer{
			FromMemberID: d.memberID,
			ToMemberID:   c.memberID,
			Amount:       core.Money{Cents: amount},
		})

		if c.amount > amount {
			heap.Push(creditors, position{memberID: c.memberID, amount: c.amount - amount})
		}
		if d.amount > amount {
			heap.Push(debtors, position{memberID: d.memberID, amount: d.amount - amount})
		}
	}
	return transfers, nil
}

// Apply returns the balances after the transfers are paid. Each transfer is
// treated as a payment: the sender is credited, the recipient debited.
func Apply(balances core.Balances, transfers []core.Transfer) core.Balances {
	out := balances.Clone()
	for _, t := range transfers {
		out[t.FromMemberID] += t.Amount.Cents
		out[t.ToMemberID] -= t.Amount.Cents
	}
	return out
}

// Payments turns a plan's transfers into payment records dated on day.
func Payments(groupID string, transfers []core.Transfer, day core.Date, idFn func() string) []core.Payment {
	out := make([]core.Payment, len(transfers))
	for i, t := range transfers {
		out[i] = core.Payment{
			ID:           idFn(),
			GroupID:      groupID,
			FromMemberID: t.FromMemberID,
			ToMemberID:   t.ToMemberID,
			Amount:       t.Amount,
			Date:         day,
			Note:         "settlement",
		}
	}
	return out
}
