package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"conti/internal/core"
)

const (
	labelGroup     = "Group"
	labelVersion   = "Version"
	labelGenerated = "Generated"
	labelMember    = "Member"
	labelFrom      = "From"
)

var statementHeader = []any{labelMember, "Name", "Paid", "Share", "Sent", "Received", "Net"}

// buildReportRows lays a report out as a values matrix: a metadata row, the
// per-member statements and the suggested transfers.
func buildReportRows(r core.GroupReport) [][]any {
	names := make(map[string]string, len(r.Members))
	for _, m := range r.Members {
		names[m.ID] = m.DisplayName
	}

	rows := [][]any{
		{labelGroup, r.GroupName, labelVersion, r.Version, labelGenerated, r.GeneratedAt.UTC().Format(time.RFC3339)},
		{},
		statementHeader,
	}
	for _, s := range r.Statements {
		rows = append(rows, []any{
			s.MemberID,
			names[s.MemberID],
			core.FormatCents(s.Paid.Cents),
			core.FormatCents(s.Share.Cents),
			core.FormatCents(s.Sent.Cents),
			core.FormatCents(s.Received.Cents),
			core.FormatCents(s.Net),
		})
	}

	rows = append(rows, []any{}, []any{labelFrom, "To", "Amount"})
	for _, t := range r.Transfers {
		rows = append(rows, []any{t.FromMemberID, t.ToMemberID, core.FormatCents(t.Amount.Cents)})
	}
	return rows
}

// parseReportVersion reads the version from the metadata row. An empty sheet
// has version 0.
func parseReportVersion(values [][]any) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	meta := toStrings(values[0])
	col := indexOf(meta, labelVersion)
	if col == -1 {
		return 0, fmt.Errorf("unexpected report header: missing %s; got %v", labelVersion, meta)
	}
	raw := safeGet(meta, col+1)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse report version %q: %w", raw, err)
	}
	return v, nil
}

// parseReportBalances reads the Net column of the statements table.
func parseReportBalances(values [][]any) (core.Balances, error) {
	start := -1
	var colMember, colNet int
	for i, row := range values {
		cols := toStrings(row)
		colMember = indexOf(cols, labelMember)
		colNet = indexOf(cols, "Net")
		if colMember != -1 && colNet != -1 {
			start = i + 1
			break
		}
	}
	if start == -1 {
		return nil, fmt.Errorf("unexpected report layout: missing %s/Net header", labelMember)
	}

	out := core.Balances{}
	for _, row := range values[start:] {
		cols := toStrings(row)
		member := safeGet(cols, colMember)
		if member == "" {
			break
		}
		cents, err := parseSignedCents(safeGet(cols, colNet))
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", member, err)
		}
		out[member] = cents
	}
	return out, nil
}

// parseSignedCents accepts both decimal separators and keeps the sign.
func parseSignedCents(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, core.ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", core.ErrInvalidAmount, s)
	}
	return d.Shift(2).Round(0).IntPart(), nil
}
