// Package sheettest provides an in-memory spreadsheet for tests.
package sheettest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/mmdatafocus/fieldops_backend/sheet"
)

// Fake implements sheet.Client over in-memory tabs. Tab order is insertion order.
type Fake struct {
	mu    sync.Mutex
	tabs  map[string][][]string
	order []string

	ReadErr   map[string]error
	TitlesErr error
	WriteErr  error

	UpdateCalls int
	AppendCalls int
}

func New() *Fake {
	return &Fake{tabs: map[string][][]string{}, ReadErr: map[string]error{}}
}

// SetTab replaces a tab's contents, creating it if needed.
func (f *Fake) SetTab(tab string, rows [][]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tabs[tab]; !ok {
		f.order = append(f.order, tab)
	}
	f.tabs[tab] = cloneRows(rows)
}

// Tab returns a copy of a tab's rows.
func (f *Fake) Tab(tab string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneRows(f.tabs[tab])
}

func (f *Fake) TabTitles(_ context.Context, _ string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TitlesErr != nil {
		return nil, f.TitlesErr
	}
	return append([]string(nil), f.order...), nil
}

func (f *Fake) ReadTab(_ context.Context, _ string, tab string) ([][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ReadErr[tab]; err != nil {
		return nil, err
	}
	rows, ok := f.tabs[tab]
	if !ok {
		return nil, fmt.Errorf("%w: tab %q", sheet.ErrSpreadsheetNotFound, tab)
	}
	return cloneRows(rows), nil
}

func (f *Fake) UpdateRanges(_ context.Context, _ string, updates []sheet.RangeUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteErr != nil {
		return f.WriteErr
	}
	f.UpdateCalls++
	for _, u := range updates {
		tab, col, row, err := parseRange(u.Range)
		if err != nil {
			return err
		}
		rows := f.tabs[tab]
		for i, vals := range u.Values {
			r := row - 1 + i
			for len(rows) <= r {
				rows = append(rows, nil)
			}
			for j, v := range vals {
				for len(rows[r]) <= col+j {
					rows[r] = append(rows[r], "")
				}
				rows[r][col+j] = userEntered(v)
			}
		}
		f.tabs[tab] = rows
	}
	return nil
}

func (f *Fake) AppendRows(_ context.Context, _ string, tab string, rows [][]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteErr != nil {
		return f.WriteErr
	}
	if len(rows) == 0 {
		return nil
	}
	f.AppendCalls++
	for _, row := range rows {
		out := make([]string, len(row))
		for i, v := range row {
			out[i] = userEntered(v)
		}
		f.tabs[tab] = append(f.tabs[tab], out)
	}
	return nil
}

// userEntered mimics the provider dropping the apostrophe that forces text.
func userEntered(v string) string {
	return strings.TrimPrefix(v, "'")
}

// parseRange reads "'Tab'!B5:Z5" into the tab, 0-based column and 1-based row.
func parseRange(a1 string) (string, int, int, error) {
	bang := strings.LastIndex(a1, "!")
	if bang < 0 {
		return "", 0, 0, fmt.Errorf("range %q has no tab", a1)
	}
	tab := a1[:bang]
	if strings.HasPrefix(tab, "'") && strings.HasSuffix(tab, "'") {
		tab = strings.ReplaceAll(tab[1:len(tab)-1], "''", "'")
	}
	start := a1[bang+1:]
	if i := strings.Index(start, ":"); i >= 0 {
		start = start[:i]
	}
	col := 0
	i := 0
	for ; i < len(start) && start[i] >= 'A' && start[i] <= 'Z'; i++ {
		col = col*26 + int(start[i]-'A'+1)
	}
	row, err := strconv.Atoi(start[i:])
	if err != nil || col == 0 {
		return "", 0, 0, fmt.Errorf("bad range %q", a1)
	}
	return tab, col - 1, row, nil
}

func cloneRows(rows [][]string) [][]string {
	if rows == nil {
		return nil
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
