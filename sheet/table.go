package sheet

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/fieldops_backend/models"
	"github.com/shopspring/decimal"
)

var ErrEmptyTab = errors.New("tab has no header row")

// Value is one typed cell. Only the field matching the column kind is set.
type Value struct {
	Text string
	Num  decimal.NullDecimal
	Date time.Time
}

func (v Value) blank(kind Kind) bool {
	switch kind {
	case KindNumber:
		return !v.Num.Valid
	case KindDate:
		return v.Date.IsZero()
	}
	return v.Text == ""
}

// Row is one data row of the primary tab.
type Row struct {
	// SheetRow is the 1-based row number in the tab (the header is row 1).
	SheetRow    int
	Sequence    int
	HasSequence bool
	Values      []Value
	// Empty is set when every schema cell is blank.
	Empty bool
	// Gap marks an empty row that can be reused by write-back.
	Gap bool
	// DateRaw keeps the original Date cell for skip reports.
	DateRaw string
	// Cells are the raw cells, kept so write-back preserves columns outside the schema.
	Cells []string
}

// Skipped is a row that had a phone number but no usable date.
type Skipped struct {
	SheetRow int
	Phone    string
	Reason   string
}

// Table is the parsed primary tab.
type Table struct {
	Tab         string
	Layout      *Layout
	Rows        []Row
	Skipped     []Skipped
	MaxSequence int
}

func (s *Schema) Phone(r Row) string {
	return r.Values[s.phone].Text
}

func (s *Schema) Date(r Row) time.Time {
	return r.Values[s.date].Date
}

// Keyed reports whether the row can take part in reconciliation.
func (s *Schema) Keyed(r Row) bool {
	return !r.Empty && s.Phone(r) != "" && !s.Date(r).IsZero()
}

func (s *Schema) Key(r Row) string {
	return models.LineKey(s.Phone(r), s.Date(r))
}

// ParsePrimary validates the header and types every data row.
func ParsePrimary(tab string, values [][]string, period models.Period, prefix string) (*Table, error) {
	if len(values) == 0 {
		return nil, ErrEmptyTab
	}
	schema := PrimarySchema()
	layout, err := schema.Bind(tab, values[0])
	if err != nil {
		return nil, err
	}
	t := &Table{Tab: tab, Layout: layout}

	lastFilled := -1
	for i, raw := range values[1:] {
		row := layout.parseRow(raw, i+2, period, prefix)
		if row.HasSequence && row.Sequence > t.MaxSequence {
			t.MaxSequence = row.Sequence
		}
		if !row.Empty {
			lastFilled = len(t.Rows)
			if schema.Phone(row) != "" && schema.Date(row).IsZero() {
				t.Skipped = append(t.Skipped, Skipped{
					SheetRow: row.SheetRow,
					Phone:    schema.Phone(row),
					Reason:   "unparseable date " + strconv.Quote(row.DateRaw),
				})
			}
		}
		t.Rows = append(t.Rows, row)
	}
	for i := range t.Rows {
		r := &t.Rows[i]
		r.Gap = r.Empty && (r.HasSequence || i < lastFilled)
	}
	return t, nil
}

func cell(raw []string, col int) string {
	if col < 0 || col >= len(raw) {
		return ""
	}
	return strings.TrimSpace(raw[col])
}

func (l *Layout) parseRow(raw []string, sheetRow int, period models.Period, prefix string) Row {
	s := l.Schema
	row := Row{
		SheetRow: sheetRow,
		Values:   make([]Value, len(s.Columns)),
		Empty:    true,
		Cells:    append([]string(nil), raw...),
	}

	if l.SeqCol >= 0 {
		if f, err := strconv.ParseFloat(cell(raw, l.SeqCol), 64); err == nil && f >= 1 {
			row.Sequence = int(f)
			row.HasSequence = true
		}
	}
	for i, col := range s.Columns {
		text := cell(raw, l.Index[i])
		if text != "" {
			row.Empty = false
		}
		switch col.Kind {
		case KindPhone:
			row.Values[i].Text = NormalizePhone(text, prefix)
		case KindDate:
			row.DateRaw = text
			if d, ok := NormalizeDate(text, period); ok {
				row.Values[i].Date = d
			}
		case KindNumber:
			row.Values[i].Num = ParseNumber(text)
		default:
			row.Values[i].Text = text
		}
	}
	s.derive(row.Values)
	return row
}

// derive fills F1, G1 and Total from the cable readings when they were left blank.
func (s *Schema) derive(vals []Value) {
	start, middle, end := vals[s.start].Num, vals[s.middle].Num, vals[s.end].Num
	if !vals[s.f1].Num.Valid && start.Valid && middle.Valid {
		vals[s.f1].Num = decimal.NewNullDecimal(start.Decimal.Sub(middle.Decimal).Abs())
	}
	if !vals[s.g1].Num.Valid && middle.Valid && end.Valid {
		vals[s.g1].Num = decimal.NewNullDecimal(middle.Decimal.Sub(end.Decimal).Abs())
	}
	f1, g1 := vals[s.f1].Num, vals[s.g1].Num
	if !vals[s.total].Num.Valid && (f1.Valid || g1.Valid) {
		vals[s.total].Num = decimal.NewNullDecimal(f1.Decimal.Add(g1.Decimal))
	}
}
