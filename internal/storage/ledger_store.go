package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"conti/internal/core"
)

func (r *SQLiteRepository) ListExpenses(ctx context.Context, groupID string) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, group_id, payer_id, description, amount_cents, date, split_method,
		       COALESCE(recurring_template_id, ''), created_by, created_at
		FROM expenses WHERE group_id = ?
		ORDER BY date, created_at, id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}

	var expenses []core.Expense
	index := make(map[string]int)
	for rows.Next() {
		var (
			e               core.Expense
			date, createdAt string
			method          string
		)
		if err := rows.Scan(&e.ID, &e.GroupID, &e.PayerID, &e.Description, &e.Amount.Cents,
			&date, &method, &e.RecurringTemplateID, &e.CreatedBy, &createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		if e.Date, err = core.ParseDate(date); err != nil {
			rows.Close()
			return nil, err
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			rows.Close()
			return nil, err
		}
		e.SplitMethod = core.SplitMethod(method)
		index[e.ID] = len(expenses)
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	rows.Close()

	// Splits are read in a second pass; the pool has a single connection.
	splitRows, err := r.db.QueryContext(ctx, `
		SELECT s.expense_id, s.member_id, s.share_cents
		FROM expense_splits s JOIN expenses e ON e.id = s.expense_id
		WHERE e.group_id = ?
		ORDER BY s.expense_id, s.position`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list expense splits: %w", err)
	}
	defer splitRows.Close()

	for splitRows.Next() {
		var (
			expenseID string
			s         core.Split
		)
		if err := splitRows.Scan(&expenseID, &s.MemberID, &s.Share.Cents); err != nil {
			return nil, fmt.Errorf("scan expense split: %w", err)
		}
		i, ok := index[expenseID]
		if !ok {
			continue
		}
		expenses[i].Splits = append(expenses[i].Splits, s)
	}
	return expenses, splitRows.Err()
}

func (r *SQLiteRepository) ListPayments(ctx context.Context, groupID string) ([]core.Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, group_id, from_member_id, to_member_id, amount_cents, date,
		       COALESCE(linked_expense_id, ''), note, created_by, created_at
		FROM payments WHERE group_id = ?
		ORDER BY date, created_at, id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []core.Payment
	for rows.Next() {
		var (
			p               core.Payment
			date, createdAt string
		)
		if err := rows.Scan(&p.ID, &p.GroupID, &p.FromMemberID, &p.ToMemberID, &p.Amount.Cents,
			&date, &p.LinkedExpenseID, &p.Note, &p.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		if p.Date, err = core.ParseDate(date); err != nil {
			return nil, err
		}
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SaveExpense(ctx context.Context, e core.Expense) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}

	var version int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if version, err = bumpVersion(ctx, tx, e.GroupID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO expenses (id, group_id, payer_id, description, amount_cents, date,
			                      split_method, recurring_template_id, created_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.GroupID, e.PayerID, e.Description, e.Amount.Cents, e.Date.String(),
			string(e.SplitMethod), nullString(e.RecurringTemplateID), e.CreatedBy, formatTime(e.CreatedAt))
		if err != nil {
			if e.RecurringTemplateID != "" && isUniqueViolation(err) {
				return ErrDuplicateOccurrence
			}
			return fmt.Errorf("insert expense: %w", err)
		}

		for i, s := range e.Splits {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO expense_splits (expense_id, member_id, share_cents, position) VALUES (?, ?, ?, ?)`,
				e.ID, s.MemberID, s.Share.Cents, i); err != nil {
				return fmt.Errorf("insert split for %s: %w", s.MemberID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"group_id", e.GroupID,
		"amount_cents", e.Amount.Cents,
		"participants", len(e.Splits),
		"version", version)
	return version, nil
}

func (r *SQLiteRepository) SavePayment(ctx context.Context, p core.Payment) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	var version int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if version, err = bumpVersion(ctx, tx, p.GroupID); err != nil {
			return err
		}
		return insertPayment(ctx, tx, p)
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (r *SQLiteRepository) SavePaymentsIfVersion(ctx context.Context, groupID string, expected int64, payments []core.Payment) (int64, error) {
	for _, p := range payments {
		if p.GroupID != groupID {
			return 0, &core.GroupMismatchError{Expected: groupID, Actual: p.GroupID, RecordID: p.ID}
		}
		if err := p.Validate(); err != nil {
			return 0, err
		}
	}

	var version int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var current int64
		err := tx.QueryRowContext(ctx, `SELECT version FROM ledger_groups WHERE id = ?`, groupID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return &core.NotFoundError{Entity: "group", ID: groupID}
		}
		if err != nil {
			return fmt.Errorf("read group version: %w", err)
		}
		if current != expected {
			return &core.ConcurrencyConflictError{GroupID: groupID, Expected: expected, Actual: current}
		}
		if len(payments) == 0 {
			version = current
			return nil
		}

		for _, p := range payments {
			if err := insertPayment(ctx, tx, p); err != nil {
				return err
			}
		}
		version, err = bumpVersion(ctx, tx, groupID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

func insertPayment(ctx context.Context, tx *sql.Tx, p core.Payment) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO payments (id, group_id, from_member_id, to_member_id, amount_cents, date,
		                      linked_expense_id, note, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.GroupID, p.FromMemberID, p.ToMemberID, p.Amount.Cents, p.Date.String(),
		nullString(p.LinkedExpenseID), p.Note, p.CreatedBy, formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert payment %s: %w", p.ID, err)
	}
	return nil
}
