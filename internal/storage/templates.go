package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"conti/internal/core"
)

type splitJSON struct {
	MemberID   string `json:"member_id"`
	ShareCents int64  `json:"share_cents"`
}

func encodeSplits(splits []core.Split) (string, error) {
	rows := make([]splitJSON, len(splits))
	for i, s := range splits {
		rows[i] = splitJSON{MemberID: s.MemberID, ShareCents: s.Share.Cents}
	}
	b, err := json.Marshal(rows)
	return string(b), err
}

func decodeSplits(s string) ([]core.Split, error) {
	var rows []splitJSON
	if err := json.Unmarshal([]byte(s), &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	out := make([]core.Split, len(rows))
	for i, r := range rows {
		out[i] = core.Split{MemberID: r.MemberID, Share: core.Money{Cents: r.ShareCents}}
	}
	return out, nil
}

// SaveRecurringTemplate inserts or replaces a template definition. A template
// never moves between groups.
func (r *SQLiteRepository) SaveRecurringTemplate(ctx context.Context, t core.RecurringTemplate) error {
	if err := t.Validate(); err != nil {
		return err
	}
	participants, err := json.Marshal(t.ParticipantIDs)
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}
	splits, err := encodeSplits(t.Splits)
	if err != nil {
		return fmt.Errorf("encode splits: %w", err)
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, `SELECT group_id FROM recurring_templates WHERE id = ?`, t.ID).Scan(&owner)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("load recurring template %s: %w", t.ID, err)
		case owner != t.GroupID:
			return &core.GroupMismatchError{Expected: t.GroupID, Actual: owner, RecordID: t.ID}
		}

		res, err := tx.ExecContext(ctx, `
		INSERT INTO recurring_templates (id, group_id, description, amount_cents, payer_id, participant_ids,
		                                 split_method, splits, frequency, start_date, end_date, active,
		                                 created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			description = excluded.description,
			amount_cents = excluded.amount_cents,
			payer_id = excluded.payer_id,
			participant_ids = excluded.participant_ids,
			split_method = excluded.split_method,
			splits = excluded.splits,
			frequency = excluded.frequency,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			active = excluded.active
		WHERE recurring_templates.group_id = excluded.group_id`,
			t.ID, t.GroupID, t.Description, t.Amount.Cents, t.PayerID, string(participants),
			string(t.SplitMethod), splits, string(t.Frequency), t.StartDate.String(),
			nullString(t.EndDate.String()), t.Active, t.CreatedBy, formatTime(t.CreatedAt))
		if err != nil {
			return fmt.Errorf("save recurring template %s: %w", t.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return &core.GroupMismatchError{Expected: t.GroupID, Actual: owner, RecordID: t.ID}
		}
		return nil
	})
}

const templateColumns = `id, group_id, description, amount_cents, payer_id, participant_ids, split_method,
	splits, frequency, start_date, COALESCE(end_date, ''), active, created_by, created_at`

func scanTemplate(row rowScanner) (core.RecurringTemplate, error) {
	var (
		t                                  core.RecurringTemplate
		participants, splits, method, freq string
		start, end, createdAt              string
	)
	if err := row.Scan(&t.ID, &t.GroupID, &t.Description, &t.Amount.Cents, &t.PayerID, &participants,
		&method, &splits, &freq, &start, &end, &t.Active, &t.CreatedBy, &createdAt); err != nil {
		return core.RecurringTemplate{}, err
	}
	if err := json.Unmarshal([]byte(participants), &t.ParticipantIDs); err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("decode participants: %w", err)
	}
	var err error
	if t.Splits, err = decodeSplits(splits); err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("decode splits: %w", err)
	}
	if t.StartDate, err = core.ParseDate(start); err != nil {
		return core.RecurringTemplate{}, err
	}
	if end != "" {
		if t.EndDate, err = core.ParseDate(end); err != nil {
			return core.RecurringTemplate{}, err
		}
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.RecurringTemplate{}, err
	}
	t.SplitMethod = core.SplitMethod(method)
	t.Frequency = core.Frequency(freq)
	return t, nil
}

func (r *SQLiteRepository) GetRecurringTemplate(ctx context.Context, templateID string) (core.RecurringTemplate, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM recurring_templates WHERE id = ?`, templateID)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringTemplate{}, &core.NotFoundError{Entity: "recurring template", ID: templateID}
	}
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("get recurring template %s: %w", templateID, err)
	}
	return t, nil
}

func (r *SQLiteRepository) ListRecurringTemplates(ctx context.Context, activeOnly bool) ([]core.RecurringTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM recurring_templates`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY group_id, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list recurring templates: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SetTemplateActive(ctx context.Context, templateID string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_templates SET active = ? WHERE id = ?`, active, templateID)
	if err != nil {
		return fmt.Errorf("update template state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update template state: %w", err)
	}
	if n == 0 {
		return &core.NotFoundError{Entity: "recurring template", ID: templateID}
	}
	return nil
}

func (r *SQLiteRepository) OccurrenceDates(ctx context.Context, templateID string) ([]core.Date, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT date FROM expenses WHERE recurring_template_id = ? ORDER BY date`, templateID)
	if err != nil {
		return nil, fmt.Errorf("list occurrence dates: %w", err)
	}
	defer rows.Close()

	var out []core.Date
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan occurrence date: %w", err)
		}
		d, err := core.ParseDate(s)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
