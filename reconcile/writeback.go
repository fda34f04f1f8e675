package reconcile

import (
	"github.com/mmdatafocus/fieldops_backend/models"
	"github.com/mmdatafocus/fieldops_backend/sheet"
)

// PlanWriteBack places every store record of the period in the primary tab
// exactly once. A record updates the sheet row with the same core phone
// digits (same date preferred), else fills the earliest gap row, else is
// appended with the next sequence number. Rows already showing the record's
// values are left alone, and rows without a usable date are never claimed.
func (e *Engine) PlanWriteBack(tbl *sheet.Table, lines []models.LineRecord) sheet.Plan {
	schema := e.schema
	plan := sheet.Plan{Tab: tbl.Tab, Width: tbl.Layout.Width}

	byCore := map[string][]int{}
	var gaps []int
	for i, r := range tbl.Rows {
		switch {
		case r.Gap:
			gaps = append(gaps, i)
		case schema.Keyed(r):
			core := sheet.CorePhoneDigits(schema.Phone(r), e.prefix)
			byCore[core] = append(byCore[core], i)
		}
	}

	// Exact (phone, date) matches claim their rows before any phone-only match.
	claimed := make(map[int]bool, len(tbl.Rows))
	matched := make([]int, len(lines))
	for i, line := range lines {
		matched[i] = e.matchRow(tbl, byCore, claimed, line, true)
	}
	for i, line := range lines {
		if matched[i] < 0 {
			matched[i] = e.matchRow(tbl, byCore, claimed, line, false)
		}
	}

	nextSeq := tbl.MaxSequence
	for i, line := range lines {
		if idx := matched[i]; idx >= 0 {
			row := tbl.Rows[idx]
			if !schema.Equivalent(row.Values, schema.Values(line)) {
				plan.Updates = append(plan.Updates, sheet.RowWrite{
					SheetRow: row.SheetRow,
					Values:   tbl.Layout.Render(line, row.Cells, 0),
				})
			}
			continue
		}

		if len(gaps) > 0 {
			row := tbl.Rows[gaps[0]]
			gaps = gaps[1:]
			seq := 0
			if !row.HasSequence {
				nextSeq++
				seq = nextSeq
			}
			plan.GapFills = append(plan.GapFills, sheet.RowWrite{
				SheetRow: row.SheetRow,
				Values:   tbl.Layout.Render(line, row.Cells, seq),
			})
			continue
		}

		nextSeq++
		plan.Appends = append(plan.Appends, tbl.Layout.Render(line, nil, nextSeq))
	}
	return plan
}

// matchRow claims the first unclaimed row with the line's core digits,
// restricted to rows with the same date when exact is set. It returns -1 if none.
func (e *Engine) matchRow(tbl *sheet.Table, byCore map[string][]int, claimed map[int]bool, line models.LineRecord, exact bool) int {
	for _, idx := range byCore[sheet.CorePhoneDigits(line.Telephone, e.prefix)] {
		if claimed[idx] {
			continue
		}
		if exact && !e.schema.Date(tbl.Rows[idx]).Equal(line.InstallDate) {
			continue
		}
		claimed[idx] = true
		return idx
	}
	return -1
}
