// Package membership is the engine's view of group rosters.
//
// The engine never decides who may do what; callers run Authorize before
// invoking a write, and ValidateParticipants before splitting.
package membership

import (
	"context"
	"fmt"

	"conti/internal/core"
)

// Directory is the roster collaborator, implemented by the storage backends.
type Directory interface {
	ListMembers(ctx context.Context, groupID string) ([]core.Member, error)
	IsAdmin(ctx context.Context, groupID, memberID string) (bool, error)
}

// Action names a capability checked by Authorize.
type Action string

const (
	ActionViewBalances    Action = "view balances"
	ActionRecordExpense   Action = "record expenses"
	ActionRecordPayment   Action = "record payments"
	ActionSettle          Action = "settle up"
	ActionManageTemplates Action = "manage recurring templates"
	ActionManageMembers   Action = "manage members"
)

// adminOnly lists the actions that require the admin role.
var adminOnly = map[Action]bool{
	ActionManageTemplates: true,
	ActionManageMembers:   true,
}

// Roster indexes a group's members by ID.
func Roster(ctx context.Context, dir Directory, groupID string) (map[string]core.Member, error) {
	members, err := dir.ListMembers(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members of %s: %w", groupID, err)
	}
	out := make(map[string]core.Member, len(members))
	for _, m := range members {
		out[m.ID] = m
	}
	return out, nil
}

// ValidateParticipants checks that every ID belongs to the group.
func ValidateParticipants(ctx context.Context, dir Directory, groupID string, memberIDs ...string) error {
	roster, err := Roster(ctx, dir, groupID)
	if err != nil {
		return err
	}
	for _, id := range memberIDs {
		if _, ok := roster[id]; !ok {
			return &core.UnknownMemberError{GroupID: groupID, MemberID: id}
		}
	}
	return nil
}

// Authorize returns a ForbiddenError unless actorID may perform action in the group.
func Authorize(ctx context.Context, dir Directory, groupID, actorID string, action Action) error {
	if adminOnly[action] {
		ok, err := dir.IsAdmin(ctx, groupID, actorID)
		if err != nil {
			return fmt.Errorf("check admin role: %w", err)
		}
		if !ok {
			return &core.ForbiddenError{ActorID: actorID, GroupID: groupID, Action: string(action)}
		}
		return nil
	}

	roster, err := Roster(ctx, dir, groupID)
	if err != nil {
		return err
	}
	if _, ok := roster[actorID]; !ok {
		return &core.ForbiddenError{ActorID: actorID, GroupID: groupID, Action: string(action)}
	}
	return nil
}
