package sheet

import (
	"context"
	"fmt"
)

// RowWrite replaces one existing sheet row.
type RowWrite struct {
	SheetRow int
	Values   []string
}

// Plan is the store to sheet diff for one tab.
type Plan struct {
	Tab      string
	Width    int
	Updates  []RowWrite
	GapFills []RowWrite
	Appends  [][]string
}

func (p Plan) Empty() bool {
	return len(p.Updates) == 0 && len(p.GapFills) == 0 && len(p.Appends) == 0
}

// Writer applies write-back plans.
type Writer struct {
	client Client
}

func NewWriter(client Client) *Writer {
	return &Writer{client: client}
}

// Apply sends in-place row writes as one batch, then appends the new rows.
func (w *Writer) Apply(ctx context.Context, spreadsheetID string, plan Plan) error {
	if plan.Empty() {
		return nil
	}
	writes := make([]RangeUpdate, 0, len(plan.Updates)+len(plan.GapFills))
	for _, rw := range append(append([]RowWrite{}, plan.Updates...), plan.GapFills...) {
		width := plan.Width
		if len(rw.Values) > width {
			width = len(rw.Values)
		}
		writes = append(writes, RangeUpdate{
			Range:  RowRange(plan.Tab, rw.SheetRow, width),
			Values: [][]string{rw.Values},
		})
	}
	if len(writes) > 0 {
		if err := w.client.UpdateRanges(ctx, spreadsheetID, writes); err != nil {
			return fmt.Errorf("update %d rows of %q: %w", len(writes), plan.Tab, err)
		}
	}
	if len(plan.Appends) > 0 {
		if err := w.client.AppendRows(ctx, spreadsheetID, plan.Tab, plan.Appends); err != nil {
			return fmt.Errorf("append %d rows to %q: %w", len(plan.Appends), plan.Tab, err)
		}
	}
	return nil
}
