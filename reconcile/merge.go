package reconcile

import (
	"time"

	"github.com/mmdatafocus/fieldops_backend/sheet"
)

// MergedRow is every sheet row sharing one (telephone, date) key, folded together.
type MergedRow struct {
	Key    string
	Phone  string
	Date   time.Time
	Values []sheet.Value
	// SheetRows lists the source rows in sheet order.
	SheetRows []int
}

// Merge folds keyed rows top to bottom. Output keeps first-appearance order.
func Merge(schema *sheet.Schema, rows []sheet.Row) []*MergedRow {
	byKey := make(map[string]*MergedRow, len(rows))
	var out []*MergedRow
	for _, r := range rows {
		if !schema.Keyed(r) {
			continue
		}
		key := schema.Key(r)
		acc, ok := byKey[key]
		if !ok {
			acc = &MergedRow{
				Key:    key,
				Phone:  schema.Phone(r),
				Date:   schema.Date(r),
				Values: append([]sheet.Value(nil), r.Values...),
			}
			byKey[key] = acc
			out = append(out, acc)
		} else {
			mergeValues(schema, acc.Values, r.Values)
		}
		acc.SheetRows = append(acc.SheetRows, r.SheetRow)
	}
	return out
}

// mergeValues applies incoming onto acc in place:
// blank never overwrites, numbers overwrite when non-zero or when acc is
// blank, text always overwrites, dates keep the first value.
func mergeValues(schema *sheet.Schema, acc, incoming []sheet.Value) {
	for i, col := range schema.Columns {
		in := incoming[i]
		switch col.Kind {
		case sheet.KindNumber:
			if !in.Num.Valid {
				continue
			}
			if !in.Num.Decimal.IsZero() || !acc[i].Num.Valid {
				acc[i].Num = in.Num
			}
		case sheet.KindDate:
			if acc[i].Date.IsZero() && !in.Date.IsZero() {
				acc[i].Date = in.Date
			}
		default:
			if in.Text != "" {
				acc[i].Text = in.Text
			}
		}
	}
}
