package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"conti/internal/core"
	ports "conti/internal/sheets"
)

// Store keeps the latest report of each group in memory.
type Store struct {
	mu      sync.Mutex
	reports map[string]core.GroupReport
	writes  int
}

var _ ports.ReportStore = (*Store)(nil)

func New() *Store {
	return &Store{reports: map[string]core.GroupReport{}}
}

// WriteGroupReport stores the report and returns a synthetic reference.
func (s *Store) WriteGroupReport(_ context.Context, r core.GroupReport) (string, error) {
	if r.GroupID == "" {
		return "", errors.New("report without group id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.GroupID] = cloneReport(r)
	s.writes++
	return fmt.Sprintf("mem:%s@%d", r.GroupID, r.Version), nil
}

func (s *Store) ReportVersion(_ context.Context, groupID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reports[groupID].Version, nil
}

func (s *Store) ReadBalances(_ context.Context, groupID string) (core.Balances, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := core.Balances{}
	for _, st := range s.reports[groupID].Statements {
		out[st.MemberID] = st.Net
	}
	return out, nil
}

// Report returns the stored report for a group.
func (s *Store) Report(groupID string) (core.GroupReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[groupID]
	return cloneReport(r), ok
}

// Writes counts successful WriteGroupReport calls.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func cloneReport(r core.GroupReport) core.GroupReport {
	r.Members = append([]core.Member(nil), r.Members...)
	r.Statements = append([]core.MemberStatement(nil), r.Statements...)
	r.Transfers = append([]core.Transfer(nil), r.Transfers...)
	return r
}
