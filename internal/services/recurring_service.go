package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/membership"
	"conti/internal/recurring"
	"conti/internal/split"
	"conti/internal/storage"
)

// TemplateInput defines or replaces a recurring template. A zero StartDate
// means today; an empty ID creates a new template.
type TemplateInput struct {
	ID             string           `json:"id"`
	GroupID        string           `json:"group_id" validate:"required"`
	ActorID        string           `json:"actor_id" validate:"required"`
	PayerID        string           `json:"payer_id" validate:"required"`
	Description    string           `json:"description" validate:"required,max=200"`
	Amount         core.Money       `json:"amount"`
	SplitMethod    core.SplitMethod `json:"split_method"`
	ParticipantIDs []string         `json:"participant_ids" validate:"dive,required"`
	Shares         []core.Split     `json:"shares"`
	Frequency      core.Frequency   `json:"frequency"`
	StartDate      core.Date        `json:"start_date"`
	EndDate        core.Date        `json:"end_date"`
	Active         bool             `json:"active"`
}

// RecurringService manages templates and materializes their occurrences.
type RecurringService struct {
	deps Deps
}

func NewRecurringService(deps Deps) *RecurringService {
	return &RecurringService{deps: deps.withDefaults()}
}

// SaveTemplate validates and stores a template. Only group admins may manage
// templates.
func (s *RecurringService) SaveTemplate(ctx context.Context, in TemplateInput) (core.RecurringTemplate, error) {
	if err := validateInput(in); err != nil {
		return core.RecurringTemplate{}, err
	}
	dir := s.deps.Store
	if err := membership.Authorize(ctx, dir, in.GroupID, in.ActorID, membership.ActionManageTemplates); err != nil {
		return core.RecurringTemplate{}, err
	}
	if !in.Frequency.Valid() {
		return core.RecurringTemplate{}, &core.InvalidFrequencyError{Frequency: in.Frequency}
	}
	if in.ID != "" {
		prev, err := s.deps.Store.GetRecurringTemplate(ctx, in.ID)
		switch {
		case core.KindOf(err) == core.KindNotFound:
		case err != nil:
			return core.RecurringTemplate{}, err
		case prev.GroupID != in.GroupID:
			// Templates of other groups are invisible to this admin.
			return core.RecurringTemplate{}, &core.NotFoundError{Entity: "recurring template", ID: in.ID}
		}
	}

	// Splitting once up front rejects templates that could never materialize.
	splits, err := split.Compute(in.Amount, in.ParticipantIDs, in.SplitMethod, in.Shares)
	if err != nil {
		return core.RecurringTemplate{}, err
	}
	ids := []string{in.PayerID}
	for _, sp := range splits {
		ids = append(ids, sp.MemberID)
	}
	if err := membership.ValidateParticipants(ctx, dir, in.GroupID, ids...); err != nil {
		return core.RecurringTemplate{}, err
	}

	t := core.RecurringTemplate{
		ID:             in.ID,
		GroupID:        in.GroupID,
		Description:    in.Description,
		Amount:         in.Amount,
		PayerID:        in.PayerID,
		ParticipantIDs: in.ParticipantIDs,
		SplitMethod:    in.SplitMethod,
		Splits:         in.Shares,
		Frequency:      in.Frequency,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		Active:         in.Active,
		CreatedBy:      in.ActorID,
		CreatedAt:      s.deps.Now(),
	}
	if t.ID == "" {
		t.ID = s.deps.NewID()
	}
	if t.StartDate.IsZero() {
		t.StartDate = s.deps.today()
	}
	if err := s.deps.Store.SaveRecurringTemplate(ctx, t); err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("save recurring template: %w", err)
	}

	slog.InfoContext(ctx, "Recurring template saved",
		"template_id", t.ID,
		"group_id", t.GroupID,
		"frequency", t.Frequency,
		"amount_cents", t.Amount.Cents)
	s.deps.audit(ctx, t.GroupID, in.ActorID, core.AuditTemplateSaved, map[string]any{
		"template_id": t.ID,
		"frequency":   string(t.Frequency),
		"start_date":  t.StartDate.String(),
	})
	return t, nil
}

// SetTemplateActive pauses or resumes a template.
func (s *RecurringService) SetTemplateActive(ctx context.Context, actorID, templateID string, active bool) error {
	t, err := s.deps.Store.GetRecurringTemplate(ctx, templateID)
	if err != nil {
		return err
	}
	if err := membership.Authorize(ctx, s.deps.Store, t.GroupID, actorID, membership.ActionManageTemplates); err != nil {
		return err
	}
	if err := s.deps.Store.SetTemplateActive(ctx, templateID, active); err != nil {
		return err
	}
	s.deps.audit(ctx, t.GroupID, actorID, core.AuditTemplateToggled, map[string]any{
		"template_id": templateID,
		"active":      active,
	})
	return nil
}

// MaterializeRecurringOccurrences records every occurrence of the template
// due by asOf that is not recorded yet. Running it twice for the same asOf
// records nothing the second time.
func (s *RecurringService) MaterializeRecurringOccurrences(ctx context.Context, templateID string, asOf core.Date) (created []core.Expense, err error) {
	start := time.Now()
	defer func() {
		s.deps.Metrics.Observe("materialize", start, err)
		s.deps.Metrics.AddOccurrences(len(created))
	}()

	t, err := s.deps.Store.GetRecurringTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !t.Active {
		return nil, nil
	}

	unlock, err := s.deps.Locker.Lock(ctx, t.GroupID)
	if err != nil {
		return nil, fmt.Errorf("lock group %s: %w", t.GroupID, err)
	}
	defer unlock()

	dates, err := s.deps.Store.OccurrenceDates(ctx, templateID)
	if err != nil {
		return nil, err
	}
	existing := recurring.NewOccurrenceSet()
	for _, d := range dates {
		existing.Add(templateID, d)
	}

	due, err := recurring.Materialize(t, asOf, existing)
	if err != nil {
		return nil, err
	}

	var version int64
	for _, e := range due {
		e.CreatedAt = s.deps.Now()
		v, err := s.deps.Store.SaveExpense(ctx, e)
		if errors.Is(err, storage.ErrDuplicateOccurrence) {
			// Recorded by a concurrent run since OccurrenceDates was read.
			continue
		}
		if err != nil {
			return created, fmt.Errorf("save occurrence %s of %s: %w", e.Date, templateID, err)
		}
		version = v
		created = append(created, e)
		s.deps.audit(ctx, e.GroupID, e.CreatedBy, core.AuditOccurrenceMaterialized, map[string]any{
			"template_id": templateID,
			"expense_id":  e.ID,
			"date":        e.Date.String(),
		})
	}
	if len(created) == 0 {
		return nil, nil
	}
	s.deps.Cache.Invalidate(t.GroupID)

	slog.InfoContext(ctx, "Recurring occurrences materialized",
		"template_id", templateID,
		"group_id", t.GroupID,
		"count", len(created),
		"as_of", asOf.String(),
		"version", version)
	s.deps.publish(ctx, amqp.EventOccurrenceMaterialized, t.GroupID, templateID, version)
	return created, nil
}

// ProcessDue materializes every active template up to now. A failing
// template is logged and skipped so one bad template cannot block the rest.
func (s *RecurringService) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	templates, err := s.deps.Store.ListRecurringTemplates(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("failed to get active recurring templates: %w", err)
	}
	asOf := core.DateOf(now)

	slog.InfoContext(ctx, "Processing recurring templates",
		"total_active", len(templates),
		"processing_date", asOf.String())

	processed := 0
	for _, t := range templates {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		created, err := s.MaterializeRecurringOccurrences(ctx, t.ID, asOf)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to materialize recurring template",
				"template_id", t.ID,
				"group_id", t.GroupID,
				"description", t.Description,
				"error", err)
			continue
		}
		processed += len(created)
	}

	slog.InfoContext(ctx, "Recurring processing complete",
		"created", processed,
		"total_checked", len(templates))
	return processed, nil
}

// Upcoming reports the next due date of every active template after asOf.
func (s *RecurringService) Upcoming(ctx context.Context, asOf core.Date) (map[string]core.Date, error) {
	templates, err := s.deps.Store.ListRecurringTemplates(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make(map[string]core.Date, len(templates))
	for _, t := range templates {
		next, ok, err := recurring.NextDue(t, asOf)
		if err != nil {
			return nil, err
		}
		if ok {
			out[t.ID] = next
		}
	}
	return out, nil
}
