package worker

import (
	"context"
	"fmt"
	"log/slog"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/sheets"
)

// Reporter builds a group's report at its current version.
type Reporter interface {
	Report(ctx context.Context, groupID string) (core.GroupReport, error)
}

// GroupLister lists every known group.
type GroupLister interface {
	ListGroups(ctx context.Context) ([]core.Group, error)
}

// ReportWorker keeps one external report per group in step with the ledger.
// It reacts to ledger events and can resync every group on startup.
type ReportWorker struct {
	reporter Reporter
	groups   GroupLister
	sheets   sheets.ReportStore
}

func NewReportWorker(reporter Reporter, groups GroupLister, sheets sheets.ReportStore) *ReportWorker {
	return &ReportWorker{reporter: reporter, groups: groups, sheets: sheets}
}

// HandleEvent processes a single ledger event from AMQP. Events older than
// the report already written are acknowledged without work.
func (w *ReportWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"type", ev.Type,
		"group_id", ev.GroupID,
		"version", ev.Version)

	_, err := w.SyncGroup(ctx, ev.GroupID, ev.Version)
	return err
}

// SyncGroup rewrites the group's report unless it already reflects minVersion.
// It reports whether a write happened.
func (w *ReportWorker) SyncGroup(ctx context.Context, groupID string, minVersion int64) (bool, error) {
	current, err := w.sheets.ReportVersion(ctx, groupID)
	if err != nil {
		return false, fmt.Errorf("read report version: %w", err)
	}
	if minVersion > 0 && current >= minVersion {
		slog.DebugContext(ctx, "Report already up to date",
			"group_id", groupID,
			"report_version", current,
			"event_version", minVersion)
		return false, nil
	}

	report, err := w.reporter.Report(ctx, groupID)
	if err != nil {
		return false, fmt.Errorf("build report: %w", err)
	}
	if report.Version == current && current > 0 {
		return false, nil
	}

	ref, err := w.sheets.WriteGroupReport(ctx, report)
	if err != nil {
		return false, fmt.Errorf("write report: %w", err)
	}
	slog.InfoContext(ctx, "Successfully synced group report",
		"group_id", groupID,
		"version", report.Version,
		"sheets_ref", ref)
	return true, nil
}

// StartupSync brings every group's report up to date. This recovers from
// events missed while the worker was down. Failures are logged per group.
func (w *ReportWorker) StartupSync(ctx context.Context) error {
	groups, err := w.groups.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("list groups for startup sync: %w", err)
	}

	synced, failed := 0, 0
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		wrote, err := w.SyncGroup(ctx, g.ID, 0)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to sync group during startup",
				"group_id", g.ID, "error", err)
			failed++
			continue
		}
		if wrote {
			synced++
		}
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(groups),
		"synced", synced,
		"errors", failed)
	return nil
}
