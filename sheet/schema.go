package sheet

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/mmdatafocus/fieldops_backend/models"
)

type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindPhone
	KindDate
)

// Column is one primary-tab column bound to a LineRecord field.
type Column struct {
	Header   string
	Synonyms []string
	Kind     Kind
	field    int
}

func (c Column) matches(name string) bool {
	if headerKey(c.Header) == name {
		return true
	}
	for _, syn := range c.Synonyms {
		if headerKey(syn) == name {
			return true
		}
	}
	return false
}

// Schema is the typed column list of the primary tab, built once from the
// `sheet` struct tags of models.LineRecord.
type Schema struct {
	Columns []Column

	phone, date        int
	start, middle, end int
	f1, g1, total      int
}

var (
	primaryOnce   sync.Once
	primarySchema *Schema
)

func PrimarySchema() *Schema {
	primaryOnce.Do(func() {
		primarySchema = buildSchema(reflect.TypeOf(models.LineRecord{}))
	})
	return primarySchema
}

func buildSchema(t reflect.Type) *Schema {
	s := &Schema{}
	for i := 0; i < t.NumField(); i++ {
		tag, ok := t.Field(i).Tag.Lookup("sheet")
		if !ok || tag == "" {
			continue
		}
		parts := strings.Split(tag, ",")
		col := Column{Header: strings.TrimSpace(parts[0]), field: i}
		for _, opt := range parts[1:] {
			opt = strings.TrimSpace(opt)
			switch {
			case opt == "text":
				col.Kind = KindText
			case opt == "number":
				col.Kind = KindNumber
			case opt == "phone":
				col.Kind = KindPhone
			case opt == "date":
				col.Kind = KindDate
			case strings.HasPrefix(opt, "alt="):
				col.Synonyms = append(col.Synonyms, strings.TrimPrefix(opt, "alt="))
			}
		}
		s.Columns = append(s.Columns, col)
	}
	s.phone = s.indexOf("Number")
	s.date = s.indexOf("Date")
	s.start = s.indexOf("Cable Start")
	s.middle = s.indexOf("Cable Middle")
	s.end = s.indexOf("Cable End")
	s.f1 = s.indexOf("F1")
	s.g1 = s.indexOf("G1")
	s.total = s.indexOf("Total")
	return s
}

func (s *Schema) indexOf(header string) int {
	for i, c := range s.Columns {
		if c.Header == header {
			return i
		}
	}
	return -1
}

// RequiredHeaders lists the canonical header of every required column.
func (s *Schema) RequiredHeaders() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Header
	}
	return out
}

// HeaderError is returned when the header row lacks required columns.
type HeaderError struct {
	Tab     string
	Missing []string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("tab %q is missing required columns: %s", e.Tab, strings.Join(e.Missing, ", "))
}

// Layout maps schema columns onto the physical columns of one tab.
type Layout struct {
	Schema *Schema
	Header []string
	Width  int
	// Index[i] is the sheet column of Schema.Columns[i].
	Index []int
	// SeqCol is the leading sequence column, -1 when the tab has none.
	SeqCol int
}

func headerKey(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}

// Bind validates a header row and resolves column positions.
func (s *Schema) Bind(tab string, header []string) (*Layout, error) {
	l := &Layout{
		Schema: s,
		Header: header,
		Width:  len(header),
		Index:  make([]int, len(s.Columns)),
		SeqCol: -1,
	}
	bound := make(map[int]bool, len(header))
	var missing []string
	for i, col := range s.Columns {
		l.Index[i] = -1
		for j, h := range header {
			if !bound[j] && col.matches(headerKey(h)) {
				l.Index[i] = j
				bound[j] = true
				break
			}
		}
		if l.Index[i] < 0 {
			missing = append(missing, col.Header)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &HeaderError{Tab: tab, Missing: missing}
	}
	if len(header) > 0 && !bound[0] {
		l.SeqCol = 0
	}
	return l, nil
}
