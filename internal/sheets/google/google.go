package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"conti/internal/core"
	ports "conti/internal/sheets"
)

// DefaultSheetBase prefixes the per-group report tabs.
const DefaultSheetBase = "Conti"

// Client writes one report tab per group into a single spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
}

// Ensure interface conformance
var _ ports.ReportStore = (*Client)(nil)

// New creates a Sheets client for the given spreadsheet using service
// account credentials from the environment.
func New(ctx context.Context, spreadsheetID, sheetBase string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetBase = strings.TrimSpace(sheetBase)
	if sheetBase == "" {
		sheetBase = DefaultSheetBase
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetBase: sheetBase}, nil
}

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_REPORT_SHEET_NAME (default "Conti").
func NewFromEnv(ctx context.Context) (*Client, error) {
	return New(ctx, os.Getenv("GOOGLE_SPREADSHEET_ID"), os.Getenv("GOOGLE_REPORT_SHEET_NAME"))
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.DebugContext(ctx, "Reading service account credentials", "path", serviceAccountFile)
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// WriteGroupReport replaces the group's tab with the report, creating the tab
// on first use.
func (c *Client) WriteGroupReport(ctx context.Context, r core.GroupReport) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if r.GroupID == "" {
		return "", errors.New("report without group id")
	}
	tab := tabName(c.sheetBase, r.GroupID)
	if err := c.ensureSheet(ctx, tab); err != nil {
		return "", err
	}

	whole := quoteSheet(tab)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, whole, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear %s: %w", tab, err)
	}

	rows := buildReportRows(r)
	rng := fmt.Sprintf("%s!A1:G%d", whole, len(rows))
	vr := &gsheet.ValueRange{Values: rows}
	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("write %s: %w", rng, err)
	}

	slog.InfoContext(ctx, "Group report written",
		"group_id", r.GroupID,
		"version", r.Version,
		"range", resp.UpdatedRange,
		"rows", resp.UpdatedRows)
	if resp.UpdatedRange != "" {
		return resp.UpdatedRange, nil
	}
	return rng, nil
}

// ReportVersion implements ports.ReportReader. A missing tab has version 0.
func (c *Client) ReportVersion(ctx context.Context, groupID string) (int64, error) {
	values, err := c.read(ctx, groupID, "A1:F1")
	if err != nil || values == nil {
		return 0, err
	}
	return parseReportVersion(values)
}

// ReadBalances implements ports.ReportReader.
func (c *Client) ReadBalances(ctx context.Context, groupID string) (core.Balances, error) {
	values, err := c.read(ctx, groupID, "A:G")
	if err != nil {
		return nil, err
	}
	if values == nil {
		return core.Balances{}, nil
	}
	return parseReportBalances(values)
}

// read returns nil values without error when the group's tab does not exist.
func (c *Client) read(ctx context.Context, groupID, cells string) ([][]any, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	tab := tabName(c.sheetBase, groupID)
	exists, err := c.hasSheet(ctx, tab)
	if err != nil || !exists {
		return nil, err
	}
	rng := quoteSheet(tab) + "!" + cells
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	if resp.Values == nil {
		return [][]any{}, nil
	}
	return resp.Values, nil
}

func (c *Client) hasSheet(ctx context.Context, tab string) (bool, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == tab {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) ensureSheet(ctx context.Context, tab string) error {
	exists, err := c.hasSheet(ctx, tab)
	if err != nil || exists {
		return err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: tab}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", tab, err)
	}
	slog.InfoContext(ctx, "Report sheet created", "sheet", tab)
	return nil
}

// tabName returns "<base> <groupID>".
func tabName(base, groupID string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = DefaultSheetBase
	}
	return base + " " + strings.TrimSpace(groupID)
}

// quoteSheet quotes a tab title for A1 notation.
func quoteSheet(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
