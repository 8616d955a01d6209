package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"conti/internal/amqp"
	"conti/internal/cache"
	"conti/internal/core"
	"conti/internal/locking"
	"conti/internal/metrics"
	"conti/internal/storage"
)

// EventPublisher announces ledger changes. amqp.Client implements it.
type EventPublisher interface {
	Publish(ctx context.Context, ev *amqp.LedgerEvent) error
}

// Deps are the collaborators shared by every service. Only Store is
// required; the rest fall back to in-process defaults or no-ops.
type Deps struct {
	Store   storage.Store
	Locker  locking.Locker
	Cache   *cache.BalanceCache
	Metrics *metrics.LedgerMetrics
	Events  EventPublisher
	Now     func() time.Time
	NewID   func() string
}

func (d Deps) withDefaults() Deps {
	if d.Locker == nil {
		d.Locker = locking.NewLocal()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return d
}

func (d Deps) today() core.Date {
	return core.DateOf(d.Now())
}

// publish logs instead of failing: the write it announces is already durable.
func (d Deps) publish(ctx context.Context, eventType, groupID, entityID string, version int64) {
	if d.Events == nil {
		slog.DebugContext(ctx, "No event publisher configured, skipping ledger event", "type", eventType)
		return
	}
	ev := amqp.NewLedgerEvent(eventType, groupID, entityID, version)
	if err := d.Events.Publish(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"type", eventType,
			"group_id", groupID,
			"version", version,
			"error", err)
	}
}

// audit appends an entry; a failed append is logged and does not undo the write.
func (d Deps) audit(ctx context.Context, groupID, actorID, action string, details map[string]any) {
	body := "{}"
	if len(details) > 0 {
		b, err := json.Marshal(details)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to encode audit details", "action", action, "error", err)
		} else {
			body = string(b)
		}
	}
	err := d.Store.AppendAudit(ctx, core.AuditEntry{
		ID:      d.NewID(),
		GroupID: groupID,
		ActorID: actorID,
		Action:  action,
		Details: body,
		At:      d.Now(),
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to append audit entry",
			"group_id", groupID,
			"action", action,
			"error", err)
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// validateInput maps the first failing field to a core.ValidationError.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		fe := errs[0]
		return &core.ValidationError{Field: fe.Field(), Err: errors.New(validationMessage(fe))}
	}
	return &core.ValidationError{Field: "input", Err: err}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "nefield":
		return fmt.Sprintf("must differ from %s", fe.Param())
	}
	return "is invalid"
}
