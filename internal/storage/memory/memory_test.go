package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
	"conti/internal/storage"
)

func newSeeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateGroup(ctx, core.Group{ID: "g1", Name: "Trip"}))
	require.NoError(t, s.AddMember(ctx, core.Member{ID: "A", GroupID: "g1", DisplayName: "Alice", Role: core.RoleAdmin}))
	require.NoError(t, s.AddMember(ctx, core.Member{ID: "B", GroupID: "g1", DisplayName: "Bob", Role: core.RoleMember}))
	return s
}

func expense(id string, day int) core.Expense {
	return core.Expense{
		ID: id, GroupID: "g1", PayerID: "A", Description: "dinner",
		Amount: core.Money{Cents: 1000}, Date: core.NewDate(2024, 3, day),
		SplitMethod: core.SplitEqual,
		Splits: []core.Split{
			{MemberID: "A", Share: core.Money{Cents: 500}},
			{MemberID: "B", Share: core.Money{Cents: 500}},
		},
	}
}

func TestStore_GroupsAndMembers(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	assert.Error(t, s.CreateGroup(ctx, core.Group{ID: "g1"}), "duplicate group")

	members, err := s.ListMembers(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "A", members[0].ID)

	ok, err := s.IsAdmin(ctx, "g1", "A")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.IsAdmin(ctx, "g1", "B")
	require.NoError(t, err)
	assert.False(t, ok)

	err = s.AddMember(ctx, core.Member{ID: "C", GroupID: "g1", Role: "owner"})
	assert.Equal(t, core.KindValidation, core.KindOf(err))

	_, err = s.GetGroup(ctx, "nope")
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
}

func TestStore_VersionAndOrdering(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	v, err := s.SaveExpense(ctx, expense("e1", 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	v, err = s.SaveExpense(ctx, expense("e2", 5))
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	got, err := s.ListExpenses(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e2", got[0].ID)

	// Mutating the returned copy must not leak into the store.
	got[0].Splits[0].Share = core.Money{Cents: 1}
	again, err := s.ListExpenses(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), again[0].Splits[0].Share.Cents)
}

func TestStore_DuplicateOccurrence(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	e := expense("occ1", 1)
	e.RecurringTemplateID = "t1"
	_, err := s.SaveExpense(ctx, e)
	require.NoError(t, err)

	e.ID = "occ2"
	_, err = s.SaveExpense(ctx, e)
	assert.True(t, errors.Is(err, storage.ErrDuplicateOccurrence))

	v, err := s.GroupVersion(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestStore_SavePaymentsIfVersion(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()
	_, err := s.SaveExpense(ctx, expense("e1", 1))
	require.NoError(t, err)

	pay := []core.Payment{{ID: "p1", GroupID: "g1", FromMemberID: "B", ToMemberID: "A", Amount: core.Money{Cents: 500}, Date: core.NewDate(2024, 3, 2)}}

	_, err = s.SavePaymentsIfVersion(ctx, "g1", 7, pay)
	assert.True(t, core.Retryable(err))

	v, err := s.SavePaymentsIfVersion(ctx, "g1", 1, pay)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	v, err = s.SavePaymentsIfVersion(ctx, "g1", 2, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v, "empty batch leaves version unchanged")

	payments, err := s.ListPayments(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestStore_Templates(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	tmpl := core.RecurringTemplate{
		ID: "t1", GroupID: "g1", Description: "Netflix", Amount: core.Money{Cents: 1599},
		PayerID: "A", ParticipantIDs: []string{"A", "B"}, SplitMethod: core.SplitEqual,
		Frequency: core.Monthly, StartDate: core.NewDate(2024, 1, 15), Active: true,
	}
	require.NoError(t, s.SaveRecurringTemplate(ctx, tmpl))
	require.NoError(t, s.SetTemplateActive(ctx, "t1", false))

	active, err := s.ListRecurringTemplates(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	got, err := s.GetRecurringTemplate(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, []string{"A", "B"}, got.ParticipantIDs)

	e := expense("occ", 15)
	e.RecurringTemplateID = "t1"
	_, err = s.SaveExpense(ctx, e)
	require.NoError(t, err)
	dates, err := s.OccurrenceDates(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, dates, 1)
	assert.Equal(t, "2024-03-15", dates[0].String())

	require.NoError(t, s.CreateGroup(ctx, core.Group{ID: "g2", Name: "Office"}))
	moved := tmpl
	moved.GroupID = "g2"
	moved.PayerID = "X"
	moved.ParticipantIDs = []string{"X", "Y"}
	assert.Equal(t, core.KindGroupMismatch, core.KindOf(s.SaveRecurringTemplate(ctx, moved)))
	got, err = s.GetRecurringTemplate(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "g1", got.GroupID)
	assert.Equal(t, []string{"A", "B"}, got.ParticipantIDs)

	tmpl.GroupID = "missing"
	tmpl.ID = "t2"
	assert.Equal(t, core.KindNotFound, core.KindOf(s.SaveRecurringTemplate(ctx, tmpl)))
}

func TestStore_Audit(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()
	for _, action := range []string{core.AuditExpenseCreated, core.AuditPaymentRecorded, core.AuditSettlementExecuted} {
		require.NoError(t, s.AppendAudit(ctx, core.AuditEntry{GroupID: "g1", ActorID: "A", Action: action}))
	}
	got, err := s.ListAudit(ctx, "g1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, core.AuditSettlementExecuted, got[0].Action)
	assert.Equal(t, "{}", got[0].Details)
}
