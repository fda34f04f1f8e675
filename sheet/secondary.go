package sheet

import (
	"sort"
	"strconv"

	"github.com/mmdatafocus/fieldops_backend/models"
	"github.com/shopspring/decimal"
)

// Secondary tab headers.
const (
	HeaderTP         = "TP"
	HeaderDwDp       = "DW DP"
	HeaderDwCHook    = "DW C HOOK"
	HeaderDwCustomer = "DW CUS"
	HeaderDrumNumber = "DRUM NUMBER"
)

var secondaryHeaders = []string{HeaderTP, HeaderDwDp, HeaderDwCHook, HeaderDwCustomer, HeaderDrumNumber}

type SecondaryLayout struct {
	Width  int
	SeqCol int

	TP, DwDp, DwCHook, DwCustomer, Drum int
}

// SecondaryRow is one drum-assignment row keyed by phone number.
type SecondaryRow struct {
	SheetRow   int
	Phone      string
	DwDp       string
	DwCHook    decimal.NullDecimal
	DwCustomer string
	DrumNumber string
}

type SecondaryTable struct {
	Tab         string
	Layout      SecondaryLayout
	Rows        []SecondaryRow
	MaxSequence int
}

func bindSecondary(tab string, header []string) (SecondaryLayout, error) {
	idx := make(map[string]int, len(secondaryHeaders))
	for j, h := range header {
		k := headerKey(h)
		if _, seen := idx[k]; !seen {
			idx[k] = j
		}
	}
	l := SecondaryLayout{Width: len(header), SeqCol: -1}
	cols := []*int{&l.TP, &l.DwDp, &l.DwCHook, &l.DwCustomer, &l.Drum}
	var missing []string
	for i, name := range secondaryHeaders {
		j, ok := idx[headerKey(name)]
		if !ok {
			missing = append(missing, name)
			continue
		}
		*cols[i] = j
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return l, &HeaderError{Tab: tab, Missing: missing}
	}
	if len(header) > 0 {
		used := false
		for _, c := range cols {
			if *c == 0 {
				used = true
			}
		}
		if !used {
			l.SeqCol = 0
		}
	}
	return l, nil
}

// ParseSecondary reads the drum-assignment tab. Rows with a blank TP are dropped.
func ParseSecondary(tab string, values [][]string, prefix string) (*SecondaryTable, error) {
	if len(values) == 0 {
		return nil, ErrEmptyTab
	}
	layout, err := bindSecondary(tab, values[0])
	if err != nil {
		return nil, err
	}
	t := &SecondaryTable{Tab: tab, Layout: layout}
	for i, raw := range values[1:] {
		if layout.SeqCol >= 0 {
			if f, err := strconv.ParseFloat(cell(raw, layout.SeqCol), 64); err == nil && int(f) > t.MaxSequence {
				t.MaxSequence = int(f)
			}
		}
		phone := NormalizePhone(cell(raw, layout.TP), prefix)
		if phone == "" {
			continue
		}
		t.Rows = append(t.Rows, SecondaryRow{
			SheetRow:   i + 2,
			Phone:      phone,
			DwDp:       cell(raw, layout.DwDp),
			DwCHook:    ParseNumber(cell(raw, layout.DwCHook)),
			DwCustomer: cell(raw, layout.DwCustomer),
			DrumNumber: cell(raw, layout.Drum),
		})
	}
	return t, nil
}

// Render lays a line out as a new drum-assignment row.
func (l SecondaryLayout) Render(line models.LineRecord, seq int) []string {
	out := make([]string, l.Width)
	if l.SeqCol >= 0 && seq > 0 {
		out[l.SeqCol] = itoa(seq)
	}
	out[l.TP] = phoneCell(line.Telephone)
	out[l.DwDp] = line.DwDp
	if !line.DwCHook.IsZero() {
		out[l.DwCHook] = line.DwCHook.String()
	}
	out[l.DwCustomer] = line.DwCustomer
	out[l.Drum] = line.DrumNumber
	return out
}
