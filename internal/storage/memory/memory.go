package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"conti/internal/core"
	"conti/internal/storage"

	"github.com/google/uuid"
)

type group struct {
	core.Group
	members  map[string]core.Member
	expenses []core.Expense
	payments []core.Payment
}

// Store keeps the whole ledger in process memory. It honours the same
// versioning and occurrence uniqueness rules as the SQLite repository.
type Store struct {
	mu          sync.Mutex
	groups      map[string]*group
	templates   map[string]core.RecurringTemplate
	occurrences map[string]struct{}
	audit       map[string][]core.AuditEntry
	now         func() time.Time
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		groups:      make(map[string]*group),
		templates:   make(map[string]core.RecurringTemplate),
		occurrences: make(map[string]struct{}),
		audit:       make(map[string][]core.AuditEntry),
		now:         time.Now,
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) lookup(groupID string) (*group, error) {
	g, ok := s.groups[groupID]
	if !ok {
		return nil, &core.NotFoundError{Entity: "group", ID: groupID}
	}
	return g, nil
}

func (s *Store) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return s.now().UTC()
	}
	return t
}

func (s *Store) CreateGroup(_ context.Context, g core.Group) error {
	if g.ID == "" {
		return &core.ValidationError{Field: "group_id", Err: core.ErrEmptyGroupID}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.groups[g.ID]; exists {
		return fmt.Errorf("create group %s: already exists", g.ID)
	}
	g.Version = 0
	g.CreatedAt = s.stamp(g.CreatedAt)
	s.groups[g.ID] = &group{Group: g, members: make(map[string]core.Member)}
	return nil
}

func (s *Store) GetGroup(_ context.Context, groupID string) (core.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.lookup(groupID)
	if err != nil {
		return core.Group{}, err
	}
	return g.Group, nil
}

func (s *Store) ListGroups(_ context.Context) ([]core.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g.Group)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AddMember(_ context.Context, m core.Member) error {
	if m.ID == "" {
		return &core.ValidationError{Field: "member_id", Err: core.ErrEmptyMemberID}
	}
	if !m.Role.Valid() {
		return &core.ValidationError{Field: "role", Err: fmt.Errorf("unknown role %q", m.Role)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.lookup(m.GroupID)
	if err != nil {
		return err
	}
	g.members[m.ID] = m
	return nil
}

func (s *Store) ListMembers(_ context.Context, groupID string) ([]core.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, nil
	}
	out := make([]core.Member, 0, len(g.members))
	for _, m := range g.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) IsAdmin(_ context.Context, groupID, memberID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return false, nil
	}
	m, ok := g.members[memberID]
	return ok && m.Role == core.RoleAdmin, nil
}

func (s *Store) GroupVersion(_ context.Context, groupID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.lookup(groupID)
	if err != nil {
		return 0, err
	}
	return g.Version, nil
}

func (s *Store) ListExpenses(_ context.Context, groupID string) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, nil
	}
	out := make([]core.Expense, len(g.expenses))
	for i, e := range g.expenses {
		e.Splits = slices.Clone(e.Splits)
		out[i] = e
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) ListPayments(_ context.Context, groupID string) ([]core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, nil
	}
	out := slices.Clone(g.payments)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) SaveExpense(_ context.Context, e core.Expense) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.lookup(e.GroupID)
	if err != nil {
		return 0, err
	}
	if e.RecurringTemplateID != "" {
		key := occurrenceKey(e.RecurringTemplateID, e.Date)
		if _, dup := s.occurrences[key]; dup {
			return 0, storage.ErrDuplicateOccurrence
		}
		s.occurrences[key] = struct{}{}
	}
	e.Splits = slices.Clone(e.Splits)
	e.CreatedAt = s.stamp(e.CreatedAt)
	g.expenses = append(g.expenses, e)
	g.Version++
	return g.Version, nil
}

func (s *Store) SavePayment(_ context.Context, p core.Payment) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.lookup(p.GroupID)
	if err != nil {
		return 0, err
	}
	p.CreatedAt = s.stamp(p.CreatedAt)
	g.payments = append(g.payments, p)
	g.Version++
	return g.Version, nil
}

func (s *Store) SavePaymentsIfVersion(_ context.Context, groupID string, expected int64, payments []core.Payment) (int64, error) {
	for _, p := range payments {
		if p.GroupID != groupID {
			return 0, &core.GroupMismatchError{Expected: groupID, Actual: p.GroupID, RecordID: p.ID}
		}
		if err := p.Validate(); err != nil {
			return 0, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.lookup(groupID)
	if err != nil {
		return 0, err
	}
	if g.Version != expected {
		return 0, &core.ConcurrencyConflictError{GroupID: groupID, Expected: expected, Actual: g.Version}
	}
	if len(payments) == 0 {
		return g.Version, nil
	}
	for _, p := range payments {
		p.CreatedAt = s.stamp(p.CreatedAt)
		g.payments = append(g.payments, p)
	}
	g.Version++
	return g.Version, nil
}

func (s *Store) SaveRecurringTemplate(_ context.Context, t core.RecurringTemplate) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(t.GroupID); err != nil {
		return err
	}
	if prev, ok := s.templates[t.ID]; ok {
		if prev.GroupID != t.GroupID {
			return &core.GroupMismatchError{Expected: t.GroupID, Actual: prev.GroupID, RecordID: t.ID}
		}
		t.CreatedAt = prev.CreatedAt
		t.CreatedBy = prev.CreatedBy
	}
	t.CreatedAt = s.stamp(t.CreatedAt)
	t.ParticipantIDs = slices.Clone(t.ParticipantIDs)
	t.Splits = slices.Clone(t.Splits)
	s.templates[t.ID] = t
	return nil
}

func (s *Store) GetRecurringTemplate(_ context.Context, templateID string) (core.RecurringTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[templateID]
	if !ok {
		return core.RecurringTemplate{}, &core.NotFoundError{Entity: "recurring template", ID: templateID}
	}
	return cloneTemplate(t), nil
}

func (s *Store) ListRecurringTemplates(_ context.Context, activeOnly bool) ([]core.RecurringTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.RecurringTemplate
	for _, t := range s.templates {
		if activeOnly && !t.Active {
			continue
		}
		out = append(out, cloneTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GroupID != out[j].GroupID {
			return out[i].GroupID < out[j].GroupID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) SetTemplateActive(_ context.Context, templateID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[templateID]
	if !ok {
		return &core.NotFoundError{Entity: "recurring template", ID: templateID}
	}
	t.Active = active
	s.templates[templateID] = t
	return nil
}

func (s *Store) OccurrenceDates(_ context.Context, templateID string) ([]core.Date, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[templateID]
	var candidates []core.Expense
	if ok {
		if g, found := s.groups[t.GroupID]; found {
			candidates = g.expenses
		}
	} else {
		for _, g := range s.groups {
			candidates = append(candidates, g.expenses...)
		}
	}
	var out []core.Date
	for _, e := range candidates {
		if e.RecurringTemplateID == templateID {
			out = append(out, e.Date)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (s *Store) AppendAudit(_ context.Context, e core.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Details == "" {
		e.Details = "{}"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.At = s.stamp(e.At)
	s.audit[e.GroupID] = append(s.audit[e.GroupID], e)
	return nil
}

// ListAudit returns the newest entries first. A non-positive limit means 100.
func (s *Store) ListAudit(_ context.Context, groupID string, limit int) ([]core.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.audit[groupID]
	out := make([]core.AuditEntry, 0, min(limit, len(entries)))
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

func cloneTemplate(t core.RecurringTemplate) core.RecurringTemplate {
	t.ParticipantIDs = slices.Clone(t.ParticipantIDs)
	t.Splits = slices.Clone(t.Splits)
	return t
}

func occurrenceKey(templateID string, d core.Date) string {
	return templateID + "|" + d.String()
}
