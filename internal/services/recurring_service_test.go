package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/amqp"
	"conti/internal/core"
)

func rentTemplate() TemplateInput {
	return TemplateInput{
		ID: "rent", GroupID: "g1", ActorID: "A", PayerID: "A", Description: "Rent",
		Amount: core.Money{Cents: 90000}, SplitMethod: core.SplitEqual,
		ParticipantIDs: []string{"A", "B", "C"}, Frequency: core.Monthly,
		StartDate: core.NewDate(2024, 1, 31), Active: true,
	}
}

func TestSaveTemplate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := rentTemplate()
	in.ActorID = "B"
	_, err := f.recurring.SaveTemplate(ctx, in)
	assert.Equal(t, core.KindForbidden, core.KindOf(err), "only admins manage templates")

	in = rentTemplate()
	in.Frequency = "fortnightly"
	_, err = f.recurring.SaveTemplate(ctx, in)
	assert.Equal(t, core.KindInvalidFrequency, core.KindOf(err))

	in = rentTemplate()
	in.ParticipantIDs = []string{"A", "Z"}
	_, err = f.recurring.SaveTemplate(ctx, in)
	assert.Equal(t, core.KindUnknownMember, core.KindOf(err))

	tmpl, err := f.recurring.SaveTemplate(ctx, rentTemplate())
	require.NoError(t, err)
	assert.Equal(t, "rent", tmpl.ID)

	stored, err := f.store.GetRecurringTemplate(ctx, "rent")
	require.NoError(t, err)
	assert.Equal(t, core.Monthly, stored.Frequency)
}

func TestSaveTemplate_OtherGroupCannotOverwrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.recurring.SaveTemplate(ctx, rentTemplate())
	require.NoError(t, err)

	_, err = f.groups.CreateGroup(ctx, core.Group{ID: "g2", Name: "Office"}, core.Member{ID: "X", DisplayName: "Xavier"})
	require.NoError(t, err)
	require.NoError(t, f.groups.AddMember(ctx, "X", core.Member{ID: "Y", GroupID: "g2", DisplayName: "Yara"}))

	hijack := rentTemplate()
	hijack.GroupID = "g2"
	hijack.ActorID = "X"
	hijack.PayerID = "X"
	hijack.ParticipantIDs = []string{"X", "Y"}
	_, err = f.recurring.SaveTemplate(ctx, hijack)
	assert.Equal(t, core.KindNotFound, core.KindOf(err))

	stored, err := f.store.GetRecurringTemplate(ctx, "rent")
	require.NoError(t, err)
	assert.Equal(t, "g1", stored.GroupID)
	assert.Equal(t, "A", stored.PayerID)
	assert.Equal(t, []string{"A", "B", "C"}, stored.ParticipantIDs)

	_, err = f.recurring.MaterializeRecurringOccurrences(ctx, "rent", core.NewDate(2024, 1, 31))
	require.NoError(t, err)
	b, err := f.ledger.ComputeBalances(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, core.Balances{"A": 60000, "B": -30000, "C": -30000}, b)
}

func TestMaterializeRecurringOccurrences_CatchUpAndIdempotence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.recurring.SaveTemplate(ctx, rentTemplate())
	require.NoError(t, err)

	asOf := core.NewDate(2024, 4, 30)
	created, err := f.recurring.MaterializeRecurringOccurrences(ctx, "rent", asOf)
	require.NoError(t, err)

	var dates []string
	for _, e := range created {
		dates = append(dates, e.Date.String())
		assert.Equal(t, "Rent (Recurring)", e.Description)
		assert.Equal(t, "rent", e.RecurringTemplateID)
	}
	assert.Equal(t, []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"}, dates)

	again, err := f.recurring.MaterializeRecurringOccurrences(ctx, "rent", asOf)
	require.NoError(t, err)
	assert.Empty(t, again)

	expenses, err := f.store.ListExpenses(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, expenses, 4)

	b, err := f.ledger.ComputeBalances(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, core.Balances{"A": 4 * 60000, "B": -4 * 30000, "C": -4 * 30000}, b)
	assert.Contains(t, f.events.types(), amqp.EventOccurrenceMaterialized)
}

func TestMaterializeRecurringOccurrences_InactiveAndEnded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := rentTemplate()
	in.EndDate = core.NewDate(2024, 2, 15)
	_, err := f.recurring.SaveTemplate(ctx, in)
	require.NoError(t, err)

	created, err := f.recurring.MaterializeRecurringOccurrences(ctx, "rent", core.NewDate(2024, 12, 31))
	require.NoError(t, err)
	assert.Len(t, created, 1, "only January falls before the end date")

	require.NoError(t, f.recurring.SetTemplateActive(ctx, "A", "rent", false))
	created, err = f.recurring.MaterializeRecurringOccurrences(ctx, "rent", core.NewDate(2025, 1, 31))
	require.NoError(t, err)
	assert.Empty(t, created)

	err = f.recurring.SetTemplateActive(ctx, "B", "rent", true)
	assert.Equal(t, core.KindForbidden, core.KindOf(err))
}

func TestProcessDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.recurring.SaveTemplate(ctx, rentTemplate())
	require.NoError(t, err)

	weekly := rentTemplate()
	weekly.ID = "cleaning"
	weekly.Description = "Cleaning"
	weekly.Amount = core.Money{Cents: 3000}
	weekly.Frequency = core.Weekly
	weekly.StartDate = core.NewDate(2024, 4, 15)
	_, err = f.recurring.SaveTemplate(ctx, weekly)
	require.NoError(t, err)

	n, err := f.recurring.ProcessDue(ctx, time.Date(2024, 4, 30, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 4+3, n)

	n, err = f.recurring.ProcessDue(ctx, time.Date(2024, 4, 30, 20, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n, "second run on the same day creates nothing")

	upcoming, err := f.recurring.Upcoming(ctx, core.NewDate(2024, 4, 30))
	require.NoError(t, err)
	assert.Equal(t, "2024-05-31", upcoming["rent"].String())
	assert.Equal(t, "2024-05-06", upcoming["cleaning"].String())
}
