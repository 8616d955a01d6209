package storage

import (
	"context"
	"errors"

	"conti/internal/core"
)

// ErrDuplicateOccurrence is returned when a recurring occurrence for the same
// template and date was already recorded.
var ErrDuplicateOccurrence = errors.New("recurring occurrence already recorded")

// Ports implemented by the SQLite repository and the in-memory store.
type (
	GroupStore interface {
		CreateGroup(ctx context.Context, g core.Group) error
		GetGroup(ctx context.Context, groupID string) (core.Group, error)
		ListGroups(ctx context.Context) ([]core.Group, error)
		AddMember(ctx context.Context, m core.Member) error
		ListMembers(ctx context.Context, groupID string) ([]core.Member, error)
		IsAdmin(ctx context.Context, groupID, memberID string) (bool, error)
		// GroupVersion is bumped by every write that changes balances.
		GroupVersion(ctx context.Context, groupID string) (int64, error)
	}

	LedgerStore interface {
		ListExpenses(ctx context.Context, groupID string) ([]core.Expense, error)
		ListPayments(ctx context.Context, groupID string) ([]core.Payment, error)
		// SaveExpense stores the expense with its splits and returns the new group version.
		SaveExpense(ctx context.Context, e core.Expense) (int64, error)
		SavePayment(ctx context.Context, p core.Payment) (int64, error)
		// SavePaymentsIfVersion stores all payments atomically, only if the group
		// is still at the expected version. Otherwise it returns a
		// *core.ConcurrencyConflictError and writes nothing.
		SavePaymentsIfVersion(ctx context.Context, groupID string, expected int64, payments []core.Payment) (int64, error)
	}

	TemplateStore interface {
		SaveRecurringTemplate(ctx context.Context, t core.RecurringTemplate) error
		GetRecurringTemplate(ctx context.Context, templateID string) (core.RecurringTemplate, error)
		ListRecurringTemplates(ctx context.Context, activeOnly bool) ([]core.RecurringTemplate, error)
		SetTemplateActive(ctx context.Context, templateID string, active bool) error
		// OccurrenceDates lists the dates already materialized for a template.
		OccurrenceDates(ctx context.Context, templateID string) ([]core.Date, error)
	}

	AuditLog interface {
		AppendAudit(ctx context.Context, e core.AuditEntry) error
		ListAudit(ctx context.Context, groupID string, limit int) ([]core.AuditEntry, error)
	}

	Store interface {
		GroupStore
		LedgerStore
		TemplateStore
		AuditLog
		Close() error
	}
)
