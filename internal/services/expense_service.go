package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/membership"
	"conti/internal/split"
)

// ExpenseInput describes a one-off expense. ParticipantIDs is required for
// equal splits; Shares for exact splits. A zero Date means today.
type ExpenseInput struct {
	ID             string           `json:"id"`
	GroupID        string           `json:"group_id" validate:"required"`
	ActorID        string           `json:"actor_id" validate:"required"`
	PayerID        string           `json:"payer_id" validate:"required"`
	Description    string           `json:"description" validate:"required,max=200"`
	Amount         core.Money       `json:"amount"`
	Date           core.Date        `json:"date"`
	SplitMethod    core.SplitMethod `json:"split_method"`
	ParticipantIDs []string         `json:"participant_ids" validate:"dive,required"`
	Shares         []core.Split     `json:"shares"`
}

type PaymentInput struct {
	ID              string     `json:"id"`
	GroupID         string     `json:"group_id" validate:"required"`
	ActorID         string     `json:"actor_id" validate:"required"`
	FromMemberID    string     `json:"from_member_id" validate:"required"`
	ToMemberID      string     `json:"to_member_id" validate:"required,nefield=FromMemberID"`
	Amount          core.Money `json:"amount"`
	Date            core.Date  `json:"date"`
	LinkedExpenseID string     `json:"linked_expense_id"`
	Note            string     `json:"note" validate:"max=200"`
}

// ExpenseService records expenses and payments: it validates and splits,
// persists under the group lock, then audits and publishes the change.
type ExpenseService struct {
	deps Deps
}

func NewExpenseService(deps Deps) *ExpenseService {
	return &ExpenseService{deps: deps.withDefaults()}
}

// RecordExpense persists a new expense and returns it with its computed
// splits and the new group version.
func (s *ExpenseService) RecordExpense(ctx context.Context, in ExpenseInput) (e core.Expense, version int64, err error) {
	start := time.Now()
	defer func() { s.deps.Metrics.Observe("record_expense", start, err) }()

	if err := validateInput(in); err != nil {
		return core.Expense{}, 0, err
	}
	dir := s.deps.Store
	if err := membership.Authorize(ctx, dir, in.GroupID, in.ActorID, membership.ActionRecordExpense); err != nil {
		return core.Expense{}, 0, err
	}

	splits, err := split.Compute(in.Amount, in.ParticipantIDs, in.SplitMethod, in.Shares)
	if err != nil {
		return core.Expense{}, 0, err
	}
	ids := []string{in.PayerID}
	for _, sp := range splits {
		ids = append(ids, sp.MemberID)
	}
	if err := membership.ValidateParticipants(ctx, dir, in.GroupID, ids...); err != nil {
		return core.Expense{}, 0, err
	}

	e = core.Expense{
		ID:          in.ID,
		GroupID:     in.GroupID,
		PayerID:     in.PayerID,
		Description: in.Description,
		Amount:      in.Amount,
		Date:        in.Date,
		SplitMethod: in.SplitMethod,
		Splits:      splits,
		CreatedBy:   in.ActorID,
		CreatedAt:   s.deps.Now(),
	}
	if e.ID == "" {
		e.ID = s.deps.NewID()
	}
	if e.Date.IsZero() {
		e.Date = s.deps.today()
	}

	unlock, err := s.deps.Locker.Lock(ctx, in.GroupID)
	if err != nil {
		return core.Expense{}, 0, fmt.Errorf("lock group %s: %w", in.GroupID, err)
	}
	version, err = s.deps.Store.SaveExpense(ctx, e)
	unlock()
	if err != nil {
		return core.Expense{}, 0, fmt.Errorf("save expense: %w", err)
	}
	s.deps.Cache.Invalidate(in.GroupID)

	s.deps.audit(ctx, e.GroupID, in.ActorID, core.AuditExpenseCreated, map[string]any{
		"expense_id":   e.ID,
		"amount_cents": e.Amount.Cents,
		"payer_id":     e.PayerID,
		"split_method": string(e.SplitMethod),
	})
	s.deps.publish(ctx, amqp.EventExpenseRecorded, e.GroupID, e.ID, version)
	return e, version, nil
}

// RecordPayment persists a direct payment between two members.
func (s *ExpenseService) RecordPayment(ctx context.Context, in PaymentInput) (p core.Payment, version int64, err error) {
	start := time.Now()
	defer func() { s.deps.Metrics.Observe("record_payment", start, err) }()

	if err := validateInput(in); err != nil {
		return core.Payment{}, 0, err
	}
	if err := in.Amount.Validate(); err != nil {
		return core.Payment{}, 0, err
	}
	dir := s.deps.Store
	if err := membership.Authorize(ctx, dir, in.GroupID, in.ActorID, membership.ActionRecordPayment); err != nil {
		return core.Payment{}, 0, err
	}
	if err := membership.ValidateParticipants(ctx, dir, in.GroupID, in.FromMemberID, in.ToMemberID); err != nil {
		return core.Payment{}, 0, err
	}

	p = core.Payment{
		ID:              in.ID,
		GroupID:         in.GroupID,
		FromMemberID:    in.FromMemberID,
		ToMemberID:      in.ToMemberID,
		Amount:          in.Amount,
		Date:            in.Date,
		LinkedExpenseID: in.LinkedExpenseID,
		Note:            in.Note,
		CreatedBy:       in.ActorID,
		CreatedAt:       s.deps.Now(),
	}
	if p.ID == "" {
		p.ID = s.deps.NewID()
	}
	if p.Date.IsZero() {
		p.Date = s.deps.today()
	}

	unlock, err := s.deps.Locker.Lock(ctx, in.GroupID)
	if err != nil {
		return core.Payment{}, 0, fmt.Errorf("lock group %s: %w", in.GroupID, err)
	}
	version, err = s.deps.Store.SavePayment(ctx, p)
	unlock()
	if err != nil {
		return core.Payment{}, 0, fmt.Errorf("save payment: %w", err)
	}
	s.deps.Cache.Invalidate(in.GroupID)

	slog.InfoContext(ctx, "Payment recorded",
		"group_id", p.GroupID,
		"from", p.FromMemberID,
		"to", p.ToMemberID,
		"amount_cents", p.Amount.Cents,
		"version", version)
	s.deps.audit(ctx, p.GroupID, in.ActorID, core.AuditPaymentRecorded, map[string]any{
		"payment_id":   p.ID,
		"from":         p.FromMemberID,
		"to":           p.ToMemberID,
		"amount_cents": p.Amount.Cents,
	})
	s.deps.publish(ctx, amqp.EventPaymentRecorded, p.GroupID, p.ID, version)
	return p, version, nil
}

// Close releases the store and the event publisher when it can be closed.
func (s *ExpenseService) Close() error {
	var errs []error

	if s.deps.Store != nil {
		if err := s.deps.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.deps.Events.(interface{ Close() error }); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close expense service: %v", errs)
	}
	return nil
}
