package sheet

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// valueInput stores cells as sent. USER_ENTERED would turn "07:15" and long
// ids into typed cells whose display text no longer matches the guard keys.
const valueInput = "RAW"

// SheetsBook is a Google spreadsheet addressed by id.
type SheetsBook struct {
	srv           *sheets.Service
	spreadsheetID string
}

// ServiceAccount turns a service-account JSON blob into a client option.
func ServiceAccount(ctx context.Context, credsJSON string) (option.ClientOption, error) {
	creds, err := google.CredentialsFromJSON(ctx, []byte(credsJSON), sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account: %w", err)
	}
	return option.WithCredentials(creds), nil
}

// NewSheetsBook connects to one spreadsheet.
func NewSheetsBook(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*SheetsBook, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &SheetsBook{srv: srv, spreadsheetID: spreadsheetID}, nil
}

func (b *SheetsBook) Table(name string) Table {
	return &sheetsTable{book: b, name: name}
}

func (b *SheetsBook) Close() error { return nil }

type sheetsTable struct {
	book *SheetsBook
	name string
}

func (t *sheetsTable) Name() string { return t.name }

// a1 quotes the sheet name and appends an optional cell range.
func (t *sheetsTable) a1(cells string) string {
	quoted := "'" + strings.ReplaceAll(t.name, "'", "''") + "'"
	if cells == "" {
		return quoted
	}
	return quoted + "!" + cells
}

func (t *sheetsTable) Rows(ctx context.Context) ([][]string, error) {
	resp, err := t.book.srv.Spreadsheets.Values.Get(t.book.spreadsheetID, t.a1("")).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	rows := make([][]string, len(resp.Values))
	for i, r := range resp.Values {
		rows[i] = make([]string, len(r))
		for j, v := range r {
			rows[i][j] = Cell(v)
		}
	}
	return rows, nil
}

func (t *sheetsTable) Append(ctx context.Context, row []any) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{row}}
	_, err := t.book.srv.Spreadsheets.Values.Append(t.book.spreadsheetID, t.a1("A1"), vr).
		ValueInputOption(valueInput).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

func (t *sheetsTable) Update(ctx context.Context, row int, cells map[int]any) error {
	if len(cells) == 0 {
		return nil
	}
	req := &sheets.BatchUpdateValuesRequest{ValueInputOption: valueInput}
	for col, v := range cells {
		req.Data = append(req.Data, &sheets.ValueRange{
			Range:  t.a1(fmt.Sprintf("%s%d", column(col), row+1)),
			Values: [][]interface{}{{v}},
		})
	}
	_, err := t.book.srv.Spreadsheets.Values.BatchUpdate(t.book.spreadsheetID, req).Context(ctx).Do()
	return err
}
