package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "conti.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func seedGroup(t *testing.T, repo *SQLiteRepository) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.CreateGroup(ctx, core.Group{ID: "g1", Name: "Flat"}))
	for _, m := range []core.Member{
		{ID: "A", GroupID: "g1", DisplayName: "Alice", Role: core.RoleAdmin},
		{ID: "B", GroupID: "g1", DisplayName: "Bob", Role: core.RoleMember},
		{ID: "C", GroupID: "g1", DisplayName: "Carol", Role: core.RoleMember},
	} {
		require.NoError(t, repo.AddMember(ctx, m))
	}
}

func sampleExpense(id string) core.Expense {
	return core.Expense{
		ID:          id,
		GroupID:     "g1",
		PayerID:     "A",
		Description: "groceries",
		Amount:      core.Money{Cents: 100},
		Date:        core.NewDate(2024, 5, 1),
		SplitMethod: core.SplitEqual,
		Splits: []core.Split{
			{MemberID: "A", Share: core.Money{Cents: 33}},
			{MemberID: "B", Share: core.Money{Cents: 33}},
			{MemberID: "C", Share: core.Money{Cents: 34}},
		},
		CreatedBy: "A",
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conti.db")
	require.NoError(t, RunMigrations(path))
	require.NoError(t, RunMigrations(path))
}

func TestGroupsAndMembers(t *testing.T) {
	repo := newTestRepo(t)
	seedGroup(t, repo)
	ctx := context.Background()

	g, err := repo.GetGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "Flat", g.Name)
	assert.Equal(t, int64(0), g.Version)

	members, err := repo.ListMembers(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, "Alice", members[0].DisplayName)

	admin, err := repo.IsAdmin(ctx, "g1", "A")
	require.NoError(t, err)
	assert.True(t, admin)
	admin, err = repo.IsAdmin(ctx, "g1", "B")
	require.NoError(t, err)
	assert.False(t, admin)
	admin, err = repo.IsAdmin(ctx, "g1", "nobody")
	require.NoError(t, err)
	assert.False(t, admin)

	// Re-adding updates the role.
	require.NoError(t, repo.AddMember(ctx, core.Member{ID: "B", GroupID: "g1", DisplayName: "Bobby", Role: core.RoleAdmin}))
	admin, err = repo.IsAdmin(ctx, "g1", "B")
	require.NoError(t, err)
	assert.True(t, admin)

	err = repo.AddMember(ctx, core.Member{ID: "Z", GroupID: "missing", DisplayName: "Z", Role: core.RoleMember})
	assert.Equal(t, core.KindNotFound, core.KindOf(err))

	_, err = repo.GetGroup(ctx, "missing")
	assert.Equal(t, core.KindNotFound, core.KindOf(err))

	groups, err := repo.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
}

func TestSaveAndListExpenses(t *testing.T) {
	repo := newTestRepo(t)
	seedGroup(t, repo)
	ctx := context.Background()

	v, err := repo.SaveExpense(ctx, sampleExpense("e1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	second := sampleExpense("e2")
	second.Date = core.NewDate(2024, 4, 1)
	v, err = repo.SaveExpense(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	got, err := repo.ListExpenses(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e2", got[0].ID, "ordered by date")
	assert.Equal(t, sampleExpense("e1").Splits, got[1].Splits, "split order preserved")
	assert.Equal(t, core.SplitEqual, got[1].SplitMethod)
	assert.Equal(t, "2024-05-01", got[1].Date.String())
	assert.False(t, got[1].CreatedAt.IsZero())
}

func TestSaveExpense_RejectsInvalidWithoutWriting(t *testing.T) {
	repo := newTestRepo(t)
	seedGroup(t, repo)
	ctx := context.Background()

	bad := sampleExpense("e1")
	bad.Splits[2].Share = core.Money{Cents: 30}
	_, err := repo.SaveExpense(ctx, bad)
	var mismatch *core.SplitMismatchError
	require.ErrorAs(t, err, &mismatch)

	v, err := repo.GroupVersion(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
	got, err := repo.ListExpenses(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSaveExpense_UnknownGroup(t *testing.T) {
	repo := newTestRepo(t)
	e := sampleExpense("e1")
	e.GroupID = "nope"
	_, err := repo.SaveExpense(context.Background(), e)
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
}

func TestSaveExpense_DuplicateOccurrence(t *testing.T) {
	repo := newTestRepo(t)
	seedGroup(t, repo)
	ctx := context.Background()

	occ := sampleExpense("occ-1")
	occ.RecurringTemplateID = "t1"
	_, err := repo.SaveExpense(ctx, occ)
	require.NoError(t, err)

	dup := sampleExpense("occ-2")
	dup.RecurringTemplateID = "t1"
	_, err = repo.SaveExpense(ctx, dup)
	assert.True(t, errors.Is(err, ErrDuplicateOccurrence), "got %v", err)

	dates, err := repo.OccurrenceDates(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, dates, 1)
	assert.Equal(t, "2024-05-01", dates[0].String())

	v, err := repo.GroupVersion(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v, "rolled back insert must not bump the version")
}

func TestPayments(t *testing.T) {
	repo := newTestRepo(t)
	seedGroup(t, repo)
	ctx := context.Background()

	p := core.Payment{
		ID: "p1", GroupID: "g1", FromMemberID: "B", ToMemberID: "A",
		Amount: core.Money{Cents: 33}, Date: core.NewDate(2024, 5, 2),
		LinkedExpenseID: "e1", Note: "cash", CreatedBy: "B",
	}
	v, err := repo.SavePayment(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	got, err := repo.ListPayments(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].LinkedExpenseID)
	assert.Equal(t, "cash", got[0].Note)
	assert.Equal(t, int64(33), got[0].Amount.Cents)
}

func TestSavePaymentsIfVersion(t *testing.T) {
	repo := newTestRepo(t)
	seedGroup(t, repo)
	ctx := context.Background()

	_, err := repo.SaveExpense(ctx, sampleExpense("e1"))
	require.NoError(t, err)

	payments := []core.Payment{
		{ID: "s1", GroupID: "g1", FromMemberID: "C", ToMemberID: "A", Amount: core.Money{Cents: 34}, Date: core.NewDate(2024, 5, 3)},
		{ID: "s2", GroupID: "g1", FromMemberID: "B", ToMemberID: "A", Amount: core.Money{Cents: 33}, Date: core.NewDate(2024, 5, 3)},
	}

	_, err = repo.SavePaymentsIfVersion(ctx, "g1", 0, payments)
	var conflict *core.ConcurrencyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(0), conflict.Expected)
	assert.Equal(t, int64(1), conflict.Actual)

	got, err := repo.ListPayments(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, got, "stale plan must not write")

	v, err := repo.SavePaymentsIfVersion(ctx, "g1", 1, payments)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	got, err = repo.ListPayments(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	foreign := []core.Payment{{ID: "x", GroupID: "g2", FromMemberID: "B", ToMemberID: "A", Amount: core.Money{Cents: 1}, Date: core.NewDate(2024, 5, 3)}}
	_, err = repo.SavePaymentsIfVersion(ctx, "g1", 2, foreign)
	assert.Equal(t, core.KindGroupMismatch, core.KindOf(err))
}

func TestRecurringTemplates(t *testing.T) {
	repo := newTestRepo(t)
	seedGroup(t, repo)
	ctx := context.Background()

	tmpl := core.RecurringTemplate{
		ID: "t1", GroupID: "g1", Description: "Rent", Amount: core.Money{Cents: 90000},
		PayerID: "A", ParticipantIDs: []string{"A", "B", "C"}, SplitMethod: core.SplitEqual,
		Frequency: core.Monthly, StartDate: core.NewDate(2024, 1, 31), Active: true, CreatedBy: "A",
	}
	require.NoError(t, repo.SaveRecurringTemplate(ctx, tmpl))

	exact := tmpl
	exact.ID = "t2"
	exact.SplitMethod = core.SplitExact
	exact.ParticipantIDs = nil
	exact.Splits = []core.Split{{MemberID: "A", Share: core.Money{Cents: 45000}}, {MemberID: "B", Share: core.Money{Cents: 45000}}}
	exact.EndDate = core.NewDate(2024, 12, 31)
	require.NoError(t, repo.SaveRecurringTemplate(ctx, exact))

	got, err := repo.GetRecurringTemplate(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, exact.Splits, got.Splits)
	assert.Equal(t, "2024-12-31", got.EndDate.String())
	assert.True(t, got.Active)

	got, err = repo.GetRecurringTemplate(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, got.ParticipantIDs)
	assert.True(t, got.EndDate.IsZero())

	require.NoError(t, repo.SetTemplateActive(ctx, "t1", false))
	active, err := repo.ListRecurringTemplates(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "t2", active[0].ID)

	all, err := repo.ListRecurringTemplates(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.Equal(t, core.KindNotFound, core.KindOf(repo.SetTemplateActive(ctx, "nope", true)))
	_, err = repo.GetRecurringTemplate(ctx, "nope")
	assert.Equal(t, core.KindNotFound, core.KindOf(err))

	bad := tmpl
	bad.Frequency = "hourly"
	assert.Equal(t, core.KindInvalidFrequency, core.KindOf(repo.SaveRecurringTemplate(ctx, bad)))

	require.NoError(t, repo.CreateGroup(ctx, core.Group{ID: "g2", Name: "Office"}))
	moved := tmpl
	moved.GroupID = "g2"
	moved.PayerID = "X"
	moved.ParticipantIDs = []string{"X", "Y"}
	assert.Equal(t, core.KindGroupMismatch, core.KindOf(repo.SaveRecurringTemplate(ctx, moved)))

	got, err = repo.GetRecurringTemplate(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "g1", got.GroupID)
	assert.Equal(t, "A", got.PayerID)
	assert.Equal(t, []string{"A", "B", "C"}, got.ParticipantIDs)
}

func TestAuditLog(t *testing.T) {
	repo := newTestRepo(t)
	seedGroup(t, repo)
	ctx := context.Background()

	require.NoError(t, repo.AppendAudit(ctx, core.AuditEntry{GroupID: "g1", ActorID: "A", Action: core.AuditExpenseCreated, Details: `{"id":"e1"}`}))
	require.NoError(t, repo.AppendAudit(ctx, core.AuditEntry{GroupID: "g1", ActorID: "B", Action: core.AuditPaymentRecorded}))

	got, err := repo.ListAudit(ctx, "g1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, core.AuditPaymentRecorded, got[0].Action, "newest first")
	assert.Equal(t, "{}", got[0].Details)
	assert.NotEmpty(t, got[1].ID)

	got, err = repo.ListAudit(ctx, "g1", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
