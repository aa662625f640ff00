package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"

	"github.com/retailops/sheetsync/table"
)

// New worksheets are created with the same default capacity gspread uses.
const (
	defaultRowCount    = 1000
	defaultColumnCount = 20
)

// Target identifies where a table is written: a spreadsheet (by name), a
// worksheet within it, and the fixed top-left anchor cell.
type Target struct {
	Spreadsheet string
	Worksheet   string
	StartRow    int
	StartCol    int
}

// Publisher writes tables to Google Sheets worksheets. Each publish clears
// the whole worksheet and rewrites it from the anchor, so re-running with the
// same table is idempotent.
type Publisher struct {
	sheets *sheets.Service
	drive  *drive.Service
	log    *slog.Logger
}

// NewPublisher authenticates with a service account key file. The file must
// exist at the given path or, failing that, under its basename in the current
// working directory.
func NewPublisher(ctx context.Context, credentials string, log *slog.Logger) (*Publisher, error) {
	if log == nil {
		log = slog.Default()
	}

	path, err := resolveCredentials(credentials, log)
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials %q: %w", path, err)
	}

	conf, err := google.JWTConfigFromJSON(b, sheets.SpreadsheetsScope, drive.DriveMetadataReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("invalid service account key %q: %w", path, err)
	}

	return newPublisher(ctx, log, option.WithHTTPClient(conf.Client(ctx)))
}

func newPublisher(ctx context.Context, log *slog.Logger, opts ...option.ClientOption) (*Publisher, error) {
	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets client: %w", err)
	}

	gdrive, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive client: %w", err)
	}

	return &Publisher{sheets: service, drive: gdrive, log: log}, nil
}

// resolveCredentials returns the usable key file path, falling back to the
// file's basename in the working directory. The fallback keeps cron
// deployments working when the job is launched from the directory holding
// the key, but it is logged loudly since it can mask misconfiguration.
func resolveCredentials(credentials string, log *slog.Logger) (string, error) {
	path, err := filepath.Abs(credentials)
	if err != nil {
		path = credentials
	}

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	fallback := filepath.Base(credentials)
	if wd, err := os.Getwd(); err == nil {
		fallback = filepath.Join(wd, fallback)
	}

	if _, err := os.Stat(fallback); err == nil {
		log.Warn("credentials file missing at configured path, using working directory fallback",
			slog.String("configured", path),
			slog.String("fallback", fallback),
		)
		return fallback, nil
	}

	return "", CredentialsNotFoundError{Path: path, Fallback: fallback}
}

// Publish locates (or creates) the target worksheet, clears it completely and
// writes the table starting at the anchor cell, header row first.
func (p *Publisher) Publish(ctx context.Context, t *table.Table, target Target) error {
	spreadsheet, err := p.open(ctx, target.Spreadsheet)
	if err != nil {
		return err
	}

	sheet := findWorksheet(spreadsheet, target.Worksheet)
	if sheet == nil {
		p.log.Info("worksheet not found, creating",
			slog.String("worksheet", target.Worksheet),
		)
		if err := p.addWorksheet(ctx, spreadsheet.SpreadsheetId, target.Worksheet); err != nil {
			return err
		}
	}

	p.log.Info("clearing existing worksheet data", slog.String("worksheet", target.Worksheet))
	wholeSheet := fmt.Sprintf("'%s'", target.Worksheet)
	if _, err := p.sheets.Spreadsheets.Values.Clear(spreadsheet.SpreadsheetId, wholeSheet, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return APIError{Op: "clear worksheet", Err: err}
	}

	values := &sheets.ValueRange{Values: t.Values()}
	area := anchor(target.Worksheet, target.StartRow, target.StartCol)

	p.log.Info("uploading table to worksheet",
		slog.String("range", area),
		slog.Int("rows", len(t.Rows)),
		slog.Int("columns", len(t.Columns)),
	)

	if _, err := p.sheets.Spreadsheets.Values.Update(spreadsheet.SpreadsheetId, area, values).
		ValueInputOption("RAW").
		Context(ctx).
		Do(); err != nil {
		return APIError{Op: "write values", Err: err}
	}

	return nil
}

// open resolves a spreadsheet by name via the Drive file listing, the same
// lookup gspread's open() performs. The name match is exact.
func (p *Publisher) open(ctx context.Context, name string) (*sheets.Spreadsheet, error) {
	query := fmt.Sprintf("name = '%s' and mimeType = 'application/vnd.google-apps.spreadsheet' and trashed = false",
		strings.ReplaceAll(name, `'`, `\'`))

	listing, err := p.drive.Files.List().Q(query).Fields("files(id, name)").PageSize(2).Context(ctx).Do()
	if err != nil {
		return nil, APIError{Op: "find spreadsheet", Err: err}
	}

	if len(listing.Files) == 0 {
		return nil, SpreadsheetNotFoundError{Name: name}
	}

	spreadsheet, err := p.sheets.Spreadsheets.Get(listing.Files[0].Id).Context(ctx).Do()
	if err != nil {
		return nil, APIError{Op: "open spreadsheet", Err: err}
	}

	return spreadsheet, nil
}

func (p *Publisher) addWorksheet(ctx context.Context, spreadsheetId, title string) error {
	rq := sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{
						Title: title,
						GridProperties: &sheets.GridProperties{
							RowCount:    defaultRowCount,
							ColumnCount: defaultColumnCount,
						},
					},
				},
			},
		},
	}

	if _, err := p.sheets.Spreadsheets.BatchUpdate(spreadsheetId, &rq).Context(ctx).Do(); err != nil {
		return APIError{Op: "create worksheet", Err: err}
	}

	return nil
}

func findWorksheet(spreadsheet *sheets.Spreadsheet, name string) *sheets.Sheet {
	for _, sheet := range spreadsheet.Sheets {
		if strings.EqualFold(strings.TrimSpace(sheet.Properties.Title), strings.TrimSpace(name)) {
			return sheet
		}
	}

	return nil
}
