package sheet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/sheets/v4"
)

var (
	ErrPermissionDenied    = errors.New("spreadsheet permission denied")
	ErrSpreadsheetNotFound = errors.New("spreadsheet not found")
)

// RangeUpdate is one A1 range and the rows written into it.
type RangeUpdate struct {
	Range  string
	Values [][]string
}

// Client is the spreadsheet provider the sync pass reads from and writes to.
type Client interface {
	TabTitles(ctx context.Context, spreadsheetID string) ([]string, error)
	ReadTab(ctx context.Context, spreadsheetID, tab string) ([][]string, error)
	UpdateRanges(ctx context.Context, spreadsheetID string, updates []RangeUpdate) error
	AppendRows(ctx context.Context, spreadsheetID, tab string, rows [][]string) error
}

const valueInputOption = "USER_ENTERED"

type GoogleClient struct {
	svc *sheets.Service
}

func NewGoogleClient(svc *sheets.Service) *GoogleClient {
	return &GoogleClient{svc: svc}
}

func (c *GoogleClient) TabTitles(ctx context.Context, spreadsheetID string) ([]string, error) {
	ss, err := c.svc.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, wrapGoogleErr(err)
	}
	titles := make([]string, 0, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			titles = append(titles, sh.Properties.Title)
		}
	}
	return titles, nil
}

func (c *GoogleClient) ReadTab(ctx context.Context, spreadsheetID, tab string) ([][]string, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(spreadsheetID, QuoteTab(tab)).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapGoogleErr(err)
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		out[i] = make([]string, len(row))
		for j, v := range row {
			out[i][j] = fmt.Sprint(v)
		}
	}
	return out, nil
}

func (c *GoogleClient) UpdateRanges(ctx context.Context, spreadsheetID string, updates []RangeUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	req := &sheets.BatchUpdateValuesRequest{ValueInputOption: valueInputOption}
	for _, u := range updates {
		req.Data = append(req.Data, &sheets.ValueRange{Range: u.Range, Values: toInterfaces(u.Values)})
	}
	if _, err := c.svc.Spreadsheets.Values.BatchUpdate(spreadsheetID, req).Context(ctx).Do(); err != nil {
		return wrapGoogleErr(err)
	}
	return nil
}

func (c *GoogleClient) AppendRows(ctx context.Context, spreadsheetID, tab string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	vr := &sheets.ValueRange{Values: toInterfaces(rows)}
	_, err := c.svc.Spreadsheets.Values.Append(spreadsheetID, QuoteTab(tab)+"!A1", vr).
		ValueInputOption(valueInputOption).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return wrapGoogleErr(err)
	}
	return nil
}

func toInterfaces(rows [][]string) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, row := range rows {
		out[i] = make([]interface{}, len(row))
		for j, v := range row {
			out[i][j] = v
		}
	}
	return out
}

func wrapGoogleErr(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	switch gerr.Code {
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrPermissionDenied, gerr.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrSpreadsheetNotFound, gerr.Message)
	}
	return err
}

// QuoteTab quotes a tab title for use in A1 notation.
func QuoteTab(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

// ColumnLetter converts a 0-based column index to its A1 letters.
func ColumnLetter(col int) string {
	var b []byte
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// RowRange is the A1 range covering columns [0, width) of one row.
func RowRange(tab string, row, width int) string {
	if width < 1 {
		width = 1
	}
	r := strconv.Itoa(row)
	return QuoteTab(tab) + "!A" + r + ":" + ColumnLetter(width-1) + r
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
