package sheet

import (
	"reflect"
	"strings"
	"time"

	"github.com/mmdatafocus/fieldops_backend/models"
	"github.com/shopspring/decimal"
)

var (
	decimalType = reflect.TypeOf(decimal.Decimal{})
	timeType    = reflect.TypeOf(time.Time{})
)

// Apply copies every non-blank value of vals onto rec. Blank cells leave the
// record field as it is.
func (s *Schema) Apply(vals []Value, rec *models.LineRecord) {
	rv := reflect.ValueOf(rec).Elem()
	for i, col := range s.Columns {
		v := vals[i]
		if v.blank(col.Kind) {
			continue
		}
		f := rv.Field(col.field)
		switch col.Kind {
		case KindNumber:
			f.Set(reflect.ValueOf(v.Num.Decimal))
		case KindDate:
			f.Set(reflect.ValueOf(v.Date))
		default:
			f.SetString(v.Text)
		}
	}
}

// Values reads the schema fields of rec. Zero quantities come back blank so
// that sheet and store compare equal however an empty cell was written.
func (s *Schema) Values(rec models.LineRecord) []Value {
	rv := reflect.ValueOf(rec)
	vals := make([]Value, len(s.Columns))
	for i, col := range s.Columns {
		f := rv.Field(col.field)
		switch {
		case col.Kind == KindNumber && f.Type() == decimalType:
			d := f.Interface().(decimal.Decimal)
			if !d.IsZero() {
				vals[i].Num = decimal.NewNullDecimal(d)
			}
		case col.Kind == KindDate && f.Type() == timeType:
			vals[i].Date = f.Interface().(time.Time)
		default:
			vals[i].Text = f.String()
		}
	}
	return vals
}

// Equivalent compares two value sets the way they would look in the sheet.
func (s *Schema) Equivalent(a, b []Value) bool {
	for i, col := range s.Columns {
		switch col.Kind {
		case KindNumber:
			if !numOrZero(a[i].Num).Equal(numOrZero(b[i].Num)) {
				return false
			}
		case KindDate:
			if !sameDay(a[i].Date, b[i].Date) {
				return false
			}
		default:
			if strings.TrimSpace(a[i].Text) != strings.TrimSpace(b[i].Text) {
				return false
			}
		}
	}
	return true
}

func numOrZero(n decimal.NullDecimal) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	return n.Decimal
}

func sameDay(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return a.IsZero() == b.IsZero()
	}
	return a.Format(DateLayout) == b.Format(DateLayout)
}

// DateLayout is how dates are written back to the sheet.
const DateLayout = "2006-01-02"

// FormatCell renders a value for a USER_ENTERED write.
func FormatCell(kind Kind, v Value) string {
	switch kind {
	case KindNumber:
		if !v.Num.Valid || v.Num.Decimal.IsZero() {
			return ""
		}
		return v.Num.Decimal.String()
	case KindDate:
		if v.Date.IsZero() {
			return ""
		}
		return v.Date.Format(DateLayout)
	case KindPhone:
		return phoneCell(v.Text)
	}
	return v.Text
}

// phoneCell keeps a leading zero from being eaten by number parsing.
func phoneCell(phone string) string {
	if strings.HasPrefix(phone, "0") || strings.HasPrefix(phone, "+") {
		return "'" + phone
	}
	return phone
}

// Render lays rec out as a full sheet row. base supplies the cells of columns
// outside the schema and may be nil.
func (l *Layout) Render(rec models.LineRecord, base []string, seq int) []string {
	out := make([]string, l.Width)
	copy(out, base)
	if l.SeqCol >= 0 && seq > 0 {
		out[l.SeqCol] = itoa(seq)
	}
	vals := l.Schema.Values(rec)
	for i, col := range l.Schema.Columns {
		out[l.Index[i]] = FormatCell(col.Kind, vals[i])
	}
	return out
}
