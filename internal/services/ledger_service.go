package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"conti/internal/amqp"
	"conti/internal/cache"
	"conti/internal/core"
	"conti/internal/ledger"
	"conti/internal/membership"
	"conti/internal/settlement"
)

const (
	defaultSettleRetries = 3
	snapshotAttempts     = 3
)

// LedgerService derives balances and executes settlements for one group at a time.
type LedgerService struct {
	deps       Deps
	maxRetries int
}

func NewLedgerService(deps Deps, maxRetries int) *LedgerService {
	if maxRetries <= 0 {
		maxRetries = defaultSettleRetries
	}
	return &LedgerService{deps: deps.withDefaults(), maxRetries: maxRetries}
}

// groupSnapshot is everything read from storage at a single group version.
type groupSnapshot struct {
	version  int64
	members  []core.Member
	expenses []core.Expense
	payments []core.Payment
}

// snapshot loads the group's records concurrently and retries until the
// version did not move while reading.
func (s *LedgerService) snapshot(ctx context.Context, groupID string) (groupSnapshot, error) {
	store := s.deps.Store
	var lastErr error
	for attempt := 0; attempt < snapshotAttempts; attempt++ {
		before, err := store.GroupVersion(ctx, groupID)
		if err != nil {
			return groupSnapshot{}, err
		}

		var snap groupSnapshot
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			snap.expenses, err = store.ListExpenses(gctx, groupID)
			return err
		})
		g.Go(func() error {
			var err error
			snap.payments, err = store.ListPayments(gctx, groupID)
			return err
		})
		g.Go(func() error {
			var err error
			snap.members, err = store.ListMembers(gctx, groupID)
			return err
		})
		if err := g.Wait(); err != nil {
			return groupSnapshot{}, fmt.Errorf("load group %s: %w", groupID, err)
		}

		after, err := store.GroupVersion(ctx, groupID)
		if err != nil {
			return groupSnapshot{}, err
		}
		if before == after {
			snap.version = after
			return snap, nil
		}
		lastErr = &core.ConcurrencyConflictError{GroupID: groupID, Expected: before, Actual: after}
		slog.DebugContext(ctx, "Group changed while reading, retrying snapshot",
			"group_id", groupID, "from", before, "to", after)
	}
	return groupSnapshot{}, lastErr
}

// state returns balances and statements for the current group version,
// served from the cache when the version has not moved.
func (s *LedgerService) state(ctx context.Context, groupID string) (cache.Snapshot, error) {
	version, err := s.deps.Store.GroupVersion(ctx, groupID)
	if err != nil {
		return cache.Snapshot{}, err
	}
	if cached, ok := s.deps.Cache.Get(groupID, version); ok {
		s.deps.Metrics.CacheLookup(true)
		return cached, nil
	}
	s.deps.Metrics.CacheLookup(false)

	snap, err := s.snapshot(ctx, groupID)
	if err != nil {
		return cache.Snapshot{}, err
	}
	stmts, err := ledger.ComputeStatements(groupID, snap.expenses, snap.payments)
	if err != nil {
		if core.KindOf(err) == core.KindLedgerInconsistency {
			slog.ErrorContext(ctx, "Ledger does not balance", "group_id", groupID, "error", err)
		}
		return cache.Snapshot{}, err
	}
	balances := ledger.NetBalances(stmts)

	memberIDs := make([]string, len(snap.members))
	for i, m := range snap.members {
		memberIDs[i] = m.ID
	}
	out := cache.Snapshot{
		GroupID:    groupID,
		Version:    snap.version,
		Balances:   ledger.Seed(balances, memberIDs),
		Statements: ledger.SeedStatements(stmts, memberIDs),
	}
	s.deps.Cache.Put(out)
	return out, nil
}

// ComputeBalances returns every member's net position; positive means the
// group owes the member. Members without activity are reported at zero.
func (s *LedgerService) ComputeBalances(ctx context.Context, groupID string) (b core.Balances, err error) {
	start := time.Now()
	defer func() { s.deps.Metrics.Observe("compute_balances", start, err) }()
	st, err := s.state(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return st.Balances, nil
}

// Statements breaks each member's balance down into paid, share, sent and received.
func (s *LedgerService) Statements(ctx context.Context, groupID string) ([]core.MemberStatement, error) {
	st, err := s.state(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return st.Statements, nil
}

// PlanSettlement proposes the transfers that zero the group. The plan
// carries the version it was computed at so execution can detect staleness.
func (s *LedgerService) PlanSettlement(ctx context.Context, groupID string) (plan core.SettlementPlan, err error) {
	start := time.Now()
	defer func() { s.deps.Metrics.Observe("plan_settlement", start, err) }()

	st, err := s.state(ctx, groupID)
	if err != nil {
		return core.SettlementPlan{}, err
	}
	transfers, err := settlement.Plan(st.Balances)
	if err != nil {
		return core.SettlementPlan{}, err
	}
	s.deps.Metrics.AddTransfers(len(transfers))
	return core.SettlementPlan{
		GroupID:   groupID,
		Version:   st.Version,
		Balances:  st.Balances,
		Transfers: transfers,
	}, nil
}

// ExecuteSettlement records the plan's transfers as payments. It fails with
// a ConcurrencyConflictError and writes nothing when the group changed since
// the plan was made.
func (s *LedgerService) ExecuteSettlement(ctx context.Context, plan core.SettlementPlan, actorID string) (payments []core.Payment, err error) {
	start := time.Now()
	defer func() { s.deps.Metrics.Observe("execute_settlement", start, err) }()

	if err := membership.Authorize(ctx, s.deps.Store, plan.GroupID, actorID, membership.ActionSettle); err != nil {
		return nil, err
	}
	unlock, err := s.deps.Locker.Lock(ctx, plan.GroupID)
	if err != nil {
		return nil, fmt.Errorf("lock group %s: %w", plan.GroupID, err)
	}
	defer unlock()
	return s.executeLocked(ctx, plan, actorID)
}

func (s *LedgerService) executeLocked(ctx context.Context, plan core.SettlementPlan, actorID string) ([]core.Payment, error) {
	payments := settlement.Payments(plan.GroupID, plan.Transfers, s.deps.today(), s.deps.NewID)
	for i := range payments {
		payments[i].CreatedBy = actorID
	}

	version, err := s.deps.Store.SavePaymentsIfVersion(ctx, plan.GroupID, plan.Version, payments)
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, nil
	}
	s.deps.Cache.Invalidate(plan.GroupID)

	slog.InfoContext(ctx, "Settlement executed",
		"group_id", plan.GroupID,
		"transfers", len(payments),
		"total_cents", plan.Total().Cents,
		"version", version)
	s.deps.audit(ctx, plan.GroupID, actorID, core.AuditSettlementExecuted, map[string]any{
		"transfers":    len(payments),
		"total_cents":  plan.Total().Cents,
		"from_version": plan.Version,
		"to_version":   version,
	})
	s.deps.publish(ctx, amqp.EventSettlementExecuted, plan.GroupID, "", version)
	return payments, nil
}

// SettleUp plans and executes under the group lock, re-planning on conflict.
// The returned plan is the one that was executed.
func (s *LedgerService) SettleUp(ctx context.Context, groupID, actorID string) (plan core.SettlementPlan, payments []core.Payment, err error) {
	start := time.Now()
	defer func() { s.deps.Metrics.Observe("settle_up", start, err) }()

	if err := membership.Authorize(ctx, s.deps.Store, groupID, actorID, membership.ActionSettle); err != nil {
		return core.SettlementPlan{}, nil, err
	}

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		plan, payments, err = s.settleOnce(ctx, groupID, actorID)
		if err == nil || !core.Retryable(err) {
			return plan, payments, err
		}
		slog.WarnContext(ctx, "Settlement plan went stale, re-planning",
			"group_id", groupID,
			"attempt", attempt+1,
			"error", err)
	}
	return core.SettlementPlan{}, nil, err
}

func (s *LedgerService) settleOnce(ctx context.Context, groupID, actorID string) (core.SettlementPlan, []core.Payment, error) {
	unlock, err := s.deps.Locker.Lock(ctx, groupID)
	if err != nil {
		return core.SettlementPlan{}, nil, fmt.Errorf("lock group %s: %w", groupID, err)
	}
	defer unlock()

	plan, err := s.PlanSettlement(ctx, groupID)
	if err != nil {
		return core.SettlementPlan{}, nil, err
	}
	payments, err := s.executeLocked(ctx, plan, actorID)
	if err != nil {
		return core.SettlementPlan{}, nil, err
	}
	return plan, payments, nil
}

// Report assembles the group's balances, statements and proposed transfers
// for export.
func (s *LedgerService) Report(ctx context.Context, groupID string) (core.GroupReport, error) {
	group, err := s.deps.Store.GetGroup(ctx, groupID)
	if err != nil {
		return core.GroupReport{}, err
	}
	members, err := s.deps.Store.ListMembers(ctx, groupID)
	if err != nil {
		return core.GroupReport{}, fmt.Errorf("list members: %w", err)
	}
	st, err := s.state(ctx, groupID)
	if err != nil {
		return core.GroupReport{}, err
	}
	transfers, err := settlement.Plan(st.Balances)
	if err != nil {
		return core.GroupReport{}, err
	}
	return core.GroupReport{
		GroupID:     group.ID,
		GroupName:   group.Name,
		Version:     st.Version,
		GeneratedAt: s.deps.Now(),
		Members:     members,
		Statements:  st.Statements,
		Transfers:   transfers,
	}, nil
}
