package services

import (
	"context"
	"fmt"
	"log/slog"

	"conti/internal/core"
	"conti/internal/membership"
)

// GroupService creates groups and manages their rosters.
type GroupService struct {
	deps Deps
}

func NewGroupService(deps Deps) *GroupService {
	return &GroupService{deps: deps.withDefaults()}
}

// CreateGroup creates a group with its founding member as admin.
func (s *GroupService) CreateGroup(ctx context.Context, g core.Group, founder core.Member) (core.Group, error) {
	if g.ID == "" {
		g.ID = s.deps.NewID()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = s.deps.Now()
	}
	if err := s.deps.Store.CreateGroup(ctx, g); err != nil {
		return core.Group{}, err
	}
	founder.GroupID = g.ID
	founder.Role = core.RoleAdmin
	if err := s.deps.Store.AddMember(ctx, founder); err != nil {
		return core.Group{}, fmt.Errorf("add founding member: %w", err)
	}
	slog.InfoContext(ctx, "Group created", "group_id", g.ID, "admin", founder.ID)
	s.deps.audit(ctx, g.ID, founder.ID, core.AuditMemberAdded, map[string]any{
		"member_id": founder.ID,
		"role":      string(founder.Role),
	})
	return g, nil
}

// AddMember adds or updates a member. Only admins manage the roster.
func (s *GroupService) AddMember(ctx context.Context, actorID string, m core.Member) error {
	if err := membership.Authorize(ctx, s.deps.Store, m.GroupID, actorID, membership.ActionManageMembers); err != nil {
		return err
	}
	if m.Role == "" {
		m.Role = core.RoleMember
	}
	if err := s.deps.Store.AddMember(ctx, m); err != nil {
		return err
	}
	s.deps.Cache.Invalidate(m.GroupID)
	s.deps.audit(ctx, m.GroupID, actorID, core.AuditMemberAdded, map[string]any{
		"member_id": m.ID,
		"role":      string(m.Role),
	})
	return nil
}

func (s *GroupService) Members(ctx context.Context, groupID string) ([]core.Member, error) {
	return s.deps.Store.ListMembers(ctx, groupID)
}

// Audit lists the group's most recent audit entries for a member of the group.
func (s *GroupService) Audit(ctx context.Context, groupID, actorID string, limit int) ([]core.AuditEntry, error) {
	if err := membership.Authorize(ctx, s.deps.Store, groupID, actorID, membership.ActionViewBalances); err != nil {
		return nil, err
	}
	return s.deps.Store.ListAudit(ctx, groupID, limit)
}
