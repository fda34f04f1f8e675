package sheet

import (
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/fieldops_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeader() []string {
	return append([]string{"No"}, PrimarySchema().RequiredHeaders()...)
}

func rowWith(header []string, cells map[string]string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = cells[h]
	}
	return out
}

func TestBindHeader(t *testing.T) {
	header := testHeader()
	for i, h := range header {
		if h == "Fiber-rosatte" {
			header[i] = "fiber-ROSETTE"
		}
		if h == "Cable Start" {
			header[i] = "  cable   start "
		}
	}
	layout, err := PrimarySchema().Bind("Aug", header)
	require.NoError(t, err)
	assert.Equal(t, 0, layout.SeqCol)
	assert.Equal(t, len(header), layout.Width)
}

func TestBindMissingTotal(t *testing.T) {
	var header []string
	for _, h := range testHeader() {
		if h != "Total" {
			header = append(header, h)
		}
	}
	_, err := PrimarySchema().Bind("Aug", header)

	var herr *HeaderError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, []string{"Total"}, herr.Missing)
	assert.Contains(t, err.Error(), "Total")
}

func TestParsePrimary(t *testing.T) {
	period := models.Period{Month: 8, Year: 2024}
	h := testHeader()
	values := [][]string{
		h,
		rowWith(h, map[string]string{"No": "1", "Number": "0711234567", "Date": "5", "Name": "Alice",
			"Cable Start": "100", "Cable Middle": "40", "Cable End": "10"}),
		rowWith(h, map[string]string{"No": "2"}),
		rowWith(h, map[string]string{"No": "3", "Number": "1234567", "Date": "someday"}),
		rowWith(h, map[string]string{"Number": "0719999999", "Date": "8/2", "Total": "5", "Cable Start": "3", "Cable Middle": "1"}),
		rowWith(h, map[string]string{}),
	}

	tbl, err := ParsePrimary("Aug", values, period, testPrefix)
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 5)
	s := PrimarySchema()

	first := tbl.Rows[0]
	assert.Equal(t, 2, first.SheetRow)
	assert.Equal(t, 1, first.Sequence)
	assert.True(t, s.Keyed(first))
	assert.Equal(t, "0711234567", s.Phone(first))
	assert.True(t, time.Date(2024, 8, 5, 0, 0, 0, 0, time.UTC).Equal(s.Date(first)))
	assert.Equal(t, "60", first.Values[s.f1].Num.Decimal.String())
	assert.Equal(t, "30", first.Values[s.g1].Num.Decimal.String())
	assert.Equal(t, "90", first.Values[s.total].Num.Decimal.String())

	assert.True(t, tbl.Rows[1].Empty)
	assert.True(t, tbl.Rows[1].Gap)

	require.Len(t, tbl.Skipped, 1)
	assert.Equal(t, 4, tbl.Skipped[0].SheetRow)
	assert.Equal(t, "0341234567", tbl.Skipped[0].Phone)
	assert.False(t, s.Keyed(tbl.Rows[2]))

	explicit := tbl.Rows[3]
	assert.False(t, explicit.HasSequence)
	assert.Equal(t, "2", explicit.Values[s.f1].Num.Decimal.String())
	assert.False(t, explicit.Values[s.g1].Num.Valid)
	assert.Equal(t, "5", explicit.Values[s.total].Num.Decimal.String())

	trailing := tbl.Rows[4]
	assert.True(t, trailing.Empty)
	assert.False(t, trailing.Gap)
	assert.Equal(t, 3, tbl.MaxSequence)
}

func TestParsePrimaryEmptyTab(t *testing.T) {
	_, err := ParsePrimary("Aug", nil, models.Period{Month: 8, Year: 2024}, testPrefix)
	assert.ErrorIs(t, err, ErrEmptyTab)
}

func TestApplyAndRender(t *testing.T) {
	s := PrimarySchema()
	period := models.Period{Month: 8, Year: 2024}
	h := testHeader()
	tbl, err := ParsePrimary("Aug", [][]string{
		h,
		rowWith(h, map[string]string{"No": "7", "Number": "0711234567", "Date": "3", "DP": "HR-PKJ-0536-021-05", "C-Hook": "2"}),
	}, period, testPrefix)
	require.NoError(t, err)

	rec := models.LineRecord{CustomerName: "kept", Retainers: decimal.NewFromInt(4)}
	s.Apply(tbl.Rows[0].Values, &rec)
	assert.Equal(t, "0711234567", rec.Telephone)
	assert.Equal(t, "HR-PKJ-0536-021-05", rec.Dp)
	assert.Equal(t, "kept", rec.CustomerName)
	assert.Equal(t, "4", rec.Retainers.String())
	assert.Equal(t, "2", rec.CHook.String())

	rec.CustomerName = ""
	rec.Retainers = decimal.Zero
	assert.True(t, s.Equivalent(tbl.Rows[0].Values, s.Values(rec)))

	out := tbl.Layout.Render(rec, nil, 7)
	assert.Equal(t, "7", out[0])
	assert.Equal(t, "'0711234567", out[tbl.Layout.Index[s.phone]])
	assert.Equal(t, "2024-08-03", out[tbl.Layout.Index[s.date]])
	assert.Equal(t, "", out[tbl.Layout.Index[s.indexOf("Retainers")]])
}

func TestParseSecondary(t *testing.T) {
	values := [][]string{
		{"#", "TP", "DW DP", "DW C HOOK", "DW CUS", "DRUM NUMBER"},
		{"1", "0711234567", "P-01", "3", "Alice", "D-100"},
		{"2", "", "P-02", "", "", ""},
		{"5", "1234567", "", "", "", "D-200"},
	}
	tbl, err := ParseSecondary("DW", values, testPrefix)
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Layout.SeqCol)
	assert.Equal(t, 5, tbl.MaxSequence)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "D-100", tbl.Rows[0].DrumNumber)
	assert.Equal(t, "3", tbl.Rows[0].DwCHook.Decimal.String())
	assert.Equal(t, "0341234567", tbl.Rows[1].Phone)
	assert.False(t, tbl.Rows[1].DwCHook.Valid)

	_, err = ParseSecondary("DW", [][]string{{"TP", "DW DP"}}, testPrefix)
	var herr *HeaderError
	require.True(t, errors.As(err, &herr))
	assert.Len(t, herr.Missing, 3)
}
