package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"conti/internal/core"

	"github.com/google/uuid"
)

func (r *SQLiteRepository) CreateGroup(ctx context.Context, g core.Group) error {
	if g.ID == "" {
		return &core.ValidationError{Field: "group_id", Err: core.ErrEmptyGroupID}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ledger_groups (id, name, version, created_at) VALUES (?, ?, 0, ?)`,
		g.ID, g.Name, formatTime(g.CreatedAt))
	if err != nil {
		return fmt.Errorf("create group %s: %w", g.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetGroup(ctx context.Context, groupID string) (core.Group, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, version, created_at FROM ledger_groups WHERE id = ?`, groupID)
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Group{}, &core.NotFoundError{Entity: "group", ID: groupID}
	}
	if err != nil {
		return core.Group{}, fmt.Errorf("get group %s: %w", groupID, err)
	}
	return g, nil
}

func (r *SQLiteRepository) ListGroups(ctx context.Context) ([]core.Group, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, version, created_at FROM ledger_groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var out []core.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (core.Group, error) {
	var (
		g         core.Group
		createdAt string
	)
	if err := row.Scan(&g.ID, &g.Name, &g.Version, &createdAt); err != nil {
		return core.Group{}, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return core.Group{}, err
	}
	g.CreatedAt = t
	return g, nil
}

// AddMember inserts a member or updates the name and role of an existing one.
func (r *SQLiteRepository) AddMember(ctx context.Context, m core.Member) error {
	if m.ID == "" {
		return &core.ValidationError{Field: "member_id", Err: core.ErrEmptyMemberID}
	}
	if !m.Role.Valid() {
		return &core.ValidationError{Field: "role", Err: fmt.Errorf("unknown role %q", m.Role)}
	}
	if _, err := r.GroupVersion(ctx, m.GroupID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO members (group_id, id, display_name, role) VALUES (?, ?, ?, ?)
		ON CONFLICT (group_id, id) DO UPDATE SET display_name = excluded.display_name, role = excluded.role`,
		m.GroupID, m.ID, m.DisplayName, string(m.Role))
	if err != nil {
		return fmt.Errorf("add member %s to %s: %w", m.ID, m.GroupID, err)
	}
	return nil
}

func (r *SQLiteRepository) ListMembers(ctx context.Context, groupID string) ([]core.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, group_id, display_name, role FROM members WHERE group_id = ? ORDER BY id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []core.Member
	for rows.Next() {
		var (
			m    core.Member
			role string
		)
		if err := rows.Scan(&m.ID, &m.GroupID, &m.DisplayName, &role); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Role = core.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) IsAdmin(ctx context.Context, groupID, memberID string) (bool, error) {
	var role string
	err := r.db.QueryRowContext(ctx,
		`SELECT role FROM members WHERE group_id = ? AND id = ?`, groupID, memberID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read member role: %w", err)
	}
	return core.Role(role) == core.RoleAdmin, nil
}

func (r *SQLiteRepository) GroupVersion(ctx context.Context, groupID string) (int64, error) {
	var version int64
	err := r.db.QueryRowContext(ctx,
		`SELECT version FROM ledger_groups WHERE id = ?`, groupID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &core.NotFoundError{Entity: "group", ID: groupID}
	}
	if err != nil {
		return 0, fmt.Errorf("read group version: %w", err)
	}
	return version, nil
}

func (r *SQLiteRepository) AppendAudit(ctx context.Context, e core.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if e.Details == "" {
		e.Details = "{}"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, group_id, actor_id, action, details, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.GroupID, e.ActorID, e.Action, e.Details, formatTime(e.At))
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListAudit returns the newest entries first. A non-positive limit means 100.
func (r *SQLiteRepository) ListAudit(ctx context.Context, groupID string, limit int) ([]core.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, group_id, actor_id, action, details, created_at
		FROM audit_log WHERE group_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []core.AuditEntry
	for rows.Next() {
		var (
			e  core.AuditEntry
			at string
		)
		if err := rows.Scan(&e.ID, &e.GroupID, &e.ActorID, &e.Action, &e.Details, &at); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if e.At, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
