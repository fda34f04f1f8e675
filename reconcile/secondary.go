package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mmdatafocus/fieldops_backend/models"
	"github.com/mmdatafocus/fieldops_backend/sheet"
)

type SecondaryReport struct {
	Updated  int
	Appended int
	// DrumNumbers are the distinct drum numbers the tab mentions.
	DrumNumbers []string
}

// SyncSecondary reconciles the drum-assignment tab with the period's lines.
// Tab values overwrite the matching lines field by field when non-blank, and
// lines whose phone is missing from the tab are planned as appended rows.
// lines is updated in place.
func (e *Engine) SyncSecondary(ctx context.Context, tbl *sheet.SecondaryTable, lines []models.LineRecord) (SecondaryReport, sheet.Plan, error) {
	var report SecondaryReport
	plan := sheet.Plan{Tab: tbl.Tab, Width: tbl.Layout.Width}

	byCore := map[string][]int{}
	for i := range lines {
		core := sheet.CorePhoneDigits(lines[i].Telephone, e.prefix)
		byCore[core] = append(byCore[core], i)
	}

	var errs []error
	present := map[string]bool{}
	drums := map[string]bool{}
	for _, row := range tbl.Rows {
		core := sheet.CorePhoneDigits(row.Phone, e.prefix)
		present[core] = true
		if row.DrumNumber != "" {
			drums[row.DrumNumber] = true
		}
		for _, i := range byCore[core] {
			if !applySecondary(&lines[i], row) {
				continue
			}
			if err := e.lines.UpdateLine(ctx, &lines[i]); err != nil {
				errs = append(errs, fmt.Errorf("line %d: %w", lines[i].ID, err))
				continue
			}
			report.Updated++
		}
	}

	seq := tbl.MaxSequence
	for _, l := range lines {
		core := sheet.CorePhoneDigits(l.Telephone, e.prefix)
		if present[core] {
			continue
		}
		present[core] = true
		seq++
		plan.Appends = append(plan.Appends, tbl.Layout.Render(l, seq))
	}
	report.Appended = len(plan.Appends)

	for n := range drums {
		report.DrumNumbers = append(report.DrumNumbers, n)
	}
	sort.Strings(report.DrumNumbers)
	return report, plan, errors.Join(errs...)
}

func applySecondary(l *models.LineRecord, row sheet.SecondaryRow) bool {
	changed := false
	if row.DwDp != "" && row.DwDp != l.DwDp {
		l.DwDp, changed = row.DwDp, true
	}
	if row.DwCHook.Valid && !row.DwCHook.Decimal.Equal(l.DwCHook) {
		l.DwCHook, changed = row.DwCHook.Decimal, true
	}
	if row.DwCustomer != "" && row.DwCustomer != l.DwCustomer {
		l.DwCustomer, changed = row.DwCustomer, true
	}
	if row.DrumNumber != "" && row.DrumNumber != l.DrumNumber {
		l.DrumNumber, changed = row.DrumNumber, true
	}
	return changed
}
