package sheets

import (
	"context"

	"conti/internal/core"
)

// Ports for outbound report adapters.
type (
	// ReportWriter publishes a group's ledger report to an external sheet.
	ReportWriter interface {
		// WriteGroupReport replaces the group's report and returns a reference
		// to the written range.
		WriteGroupReport(ctx context.Context, r core.GroupReport) (ref string, err error)
	}

	// ReportReader reads back what a previous WriteGroupReport produced.
	ReportReader interface {
		// ReportVersion returns the group version the current report was
		// written from, or 0 when no report exists yet.
		ReportVersion(ctx context.Context, groupID string) (int64, error)
		// ReadBalances returns the net balances listed in the current report.
		ReadBalances(ctx context.Context, groupID string) (core.Balances, error)
	}

	ReportStore interface {
		ReportWriter
		ReportReader
	}
)
