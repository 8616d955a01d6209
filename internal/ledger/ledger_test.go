package ledger

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
	"conti/internal/split"
)

func expense(t *testing.T, id, payer string, amount int64, participants ...string) core.Expense {
	t.Helper()
	splits, err := split.Compute(core.Money{Cents: amount}, participants, core.SplitEqual, nil)
	require.NoError(t, err)
	return core.Expense{
		ID:          id,
		GroupID:     "g1",
		PayerID:     payer,
		Description: id,
		Amount:      core.Money{Cents: amount},
		Date:        core.NewDate(2024, 5, 1),
		SplitMethod: core.SplitEqual,
		Splits:      splits,
	}
}

func payment(id, from, to string, amount int64) core.Payment {
	return core.Payment{
		ID:           id,
		GroupID:      "g1",
		FromMemberID: from,
		ToMemberID:   to,
		Amount:       core.Money{Cents: amount},
		Date:         core.NewDate(2024, 5, 2),
	}
}

func TestComputeBalances_EqualExpense(t *testing.T) {
	e := expense(t, "e1", "A", 9000, "A", "B", "C")

	got, err := ComputeBalances("g1", []core.Expense{e}, nil)
	require.NoError(t, err)
	assert.Equal(t, core.Balances{"A": 6000, "B": -3000, "C": -3000}, got)
}

func TestComputeBalances_PaymentReducesDebt(t *testing.T) {
	e := expense(t, "e1", "A", 9000, "A", "B", "C")
	p := payment("p1", "B", "A", 3000)

	got, err := ComputeBalances("g1", []core.Expense{e}, []core.Payment{p})
	require.NoError(t, err)
	assert.Equal(t, core.Balances{"A": 3000, "B": 0, "C": -3000}, got)
}

func TestComputeBalances_PayerNotParticipant(t *testing.T) {
	e := expense(t, "e1", "A", 1000, "B", "C")

	got, err := ComputeBalances("g1", []core.Expense{e}, nil)
	require.NoError(t, err)
	assert.Equal(t, core.Balances{"A": 1000, "B": -500, "C": -500}, got)
}

func TestComputeBalances_Empty(t *testing.T) {
	got, err := ComputeBalances("g1", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestComputeBalances_RejectsForeignRecords(t *testing.T) {
	e := expense(t, "e1", "A", 900, "A", "B")
	e.GroupID = "other"
	_, err := ComputeBalances("g1", []core.Expense{e}, nil)
	assert.Equal(t, core.KindGroupMismatch, core.KindOf(err))

	p := payment("p1", "A", "B", 100)
	p.GroupID = "other"
	_, err = ComputeBalances("g1", nil, []core.Payment{p})
	assert.Equal(t, core.KindGroupMismatch, core.KindOf(err))
}

func TestComputeBalances_RejectsUnreconciledExpense(t *testing.T) {
	e := expense(t, "e1", "A", 900, "A", "B")
	e.Splits[0].Share.Cents--

	_, err := ComputeBalances("g1", []core.Expense{e}, nil)
	var mismatch *core.SplitMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, int64(900), mismatch.Expected)
	assert.Equal(t, int64(899), mismatch.Actual)
}

func TestVerify(t *testing.T) {
	require.NoError(t, Verify("g1", core.Balances{"A": 1, "B": -1}))

	err := Verify("g1", core.Balances{"A": 1})
	var inconsistent *core.LedgerInconsistencyError
	require.ErrorAs(t, err, &inconsistent)
	assert.Equal(t, int64(1), inconsistent.Sum)
}

func TestComputeBalances_ConservationProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	members := []string{"A", "B", "C", "D", "E"}

	for round := 0; round < 200; round++ {
		var expenses []core.Expense
		var payments []core.Payment
		for i := 0; i < rng.Intn(8); i++ {
			n := 1 + rng.Intn(len(members))
			perm := rng.Perm(len(members))[:n]
			participants := make([]string, n)
			for j, idx := range perm {
				participants[j] = members[idx]
			}
			payer := members[rng.Intn(len(members))]
			expenses = append(expenses, expense(t, "e", payer, 1+rng.Int63n(100000), participants...))
		}
		for i := 0; i < rng.Intn(5); i++ {
			from := rng.Intn(len(members))
			to := (from + 1 + rng.Intn(len(members)-1)) % len(members)
			payments = append(payments, payment("p", members[from], members[to], 1+rng.Int63n(50000)))
		}

		got, err := ComputeBalances("g1", expenses, payments)
		require.NoError(t, err)
		assert.Equal(t, int64(0), got.Sum())

		stmts, err := ComputeStatements("g1", expenses, payments)
		require.NoError(t, err)
		assert.Equal(t, got, NetBalances(stmts))
	}
}

func TestComputeStatements(t *testing.T) {
	expenses := []core.Expense{
		expense(t, "e1", "A", 9000, "A", "B", "C"),
		expense(t, "e2", "B", 600, "B", "C"),
	}
	payments := []core.Payment{payment("p1", "C", "A", 1000)}

	stmts, err := ComputeStatements("g1", expenses, payments)
	require.NoError(t, err)
	require.Len(t, stmts, 3)

	balances, err := ComputeBalances("g1", expenses, payments)
	require.NoError(t, err)

	for _, s := range stmts {
		assert.Equal(t, balances[s.MemberID], s.Net, s.MemberID)
		assert.Equal(t, s.Net, s.Paid.Cents-s.Share.Cents+s.Sent.Cents-s.Received.Cents, s.MemberID)
	}
	assert.Equal(t, balances, NetBalances(stmts))
	assert.Equal(t, "A", stmts[0].MemberID)
	assert.Equal(t, int64(9000), stmts[0].Paid.Cents)
	assert.Equal(t, int64(1000), stmts[0].Received.Cents)
	assert.Equal(t, int64(1000), stmts[2].Sent.Cents)
}

func TestSeed(t *testing.T) {
	b := core.Balances{"A": 100, "B": -100}
	got := Seed(b, []string{"A", "B", "C"})
	assert.Equal(t, core.Balances{"A": 100, "B": -100, "C": 0}, got)
	assert.NotContains(t, b, "C")

	stmts := SeedStatements([]core.MemberStatement{{MemberID: "B", Net: 5}}, []string{"C", "A", "B"})
	require.Len(t, stmts, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{stmts[0].MemberID, stmts[1].MemberID, stmts[2].MemberID})
	assert.Equal(t, int64(5), stmts[1].Net)
}
