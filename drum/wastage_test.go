package drum

import (
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/fieldops_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func span(start, end string) Usage {
	return Usage{Quantity: d(end).Sub(d(start)).Abs(), Start: dp(start), End: dp(end)}
}

func assertBalanced(t *testing.T, r Result) {
	t.Helper()
	total := r.RemainingCable.Add(r.TotalUsed).Add(r.TotalWastage)
	assert.True(t, total.Equal(r.Capacity), "remaining+used+wastage=%s capacity=%s", total, r.Capacity)
	assert.True(t, r.TotalUsed.LessThanOrEqual(r.Capacity))
}

// Scenario A
func TestSmartSegmentsMergesAdjacentSpans(t *testing.T) {
	r, err := Calculate(Input{
		Capacity: d("2000"),
		Status:   models.DrumStatusActive,
		Usages:   []Usage{span("0", "500"), span("500", "1200")},
	})
	require.NoError(t, err)
	require.Len(t, r.Segments, 1)
	assert.Equal(t, "1200", r.Segments[0].Length().String())
	assert.Equal(t, "1200", r.TotalUsed.String())
	assert.Equal(t, "800", r.RemainingCable.String())
	assert.True(t, r.TotalWastage.IsZero())
	assert.Equal(t, "800", r.CalculatedCurrentQuantity.String())
	assert.Equal(t, MethodSmartSegments, r.Method)
	assertBalanced(t, r)
}

// Scenario B
func TestSmartSegmentsRetiredDrumWastesTheGap(t *testing.T) {
	r, err := Calculate(Input{
		Capacity: d("2000"),
		Status:   models.DrumStatusInactive,
		Usages:   []Usage{span("0", "300"), span("1000", "800")},
	})
	require.NoError(t, err)
	assert.Len(t, r.Segments, 2)
	assert.Equal(t, "500", r.TotalUsed.String())
	assert.Equal(t, "1500", r.TotalWastage.String())
	assert.True(t, r.RemainingCable.IsZero())
	assert.True(t, r.CalculatedCurrentQuantity.IsZero())
	assertBalanced(t, r)
}

func TestSmartSegmentsSynthesizesSpansFromQuantities(t *testing.T) {
	day := func(n int) time.Time { return time.Date(2024, 8, n, 0, 0, 0, 0, time.UTC) }
	r, err := Calculate(Input{
		Capacity: d("1000"),
		Status:   models.DrumStatusActive,
		Usages: []Usage{
			{Quantity: d("200"), Date: day(9)},
			{Quantity: d("150"), Date: day(2)},
			{Quantity: d("0"), Date: day(3)},
			{Quantity: d("50"), Start: dp("10"), End: dp("10"), Date: day(4)},
		},
	})
	require.NoError(t, err)
	require.Len(t, r.Segments, 1)
	assert.Equal(t, "0", r.Segments[0].Start.String())
	assert.Equal(t, "400", r.Segments[0].End.String())
	assert.Equal(t, "400", r.TotalUsed.String())
	assert.Equal(t, "600", r.RemainingCable.String())
	assertBalanced(t, r)
}

func TestSmartSegmentsNeverExceedsCapacity(t *testing.T) {
	cases := []struct {
		name   string
		status models.DrumStatus
		usages []Usage
	}{
		{"overlapping", models.DrumStatusActive, []Usage{span("0", "900"), span("100", "400"), span("850", "1800")}},
		{"past the end", models.DrumStatusActive, []Usage{span("1500", "2600")}},
		{"negative offsets", models.DrumStatusEmpty, []Usage{span("-50", "100")}},
		{"quantities overflow", models.DrumStatusActive, []Usage{{Quantity: d("1500")}, {Quantity: d("900")}}},
		{"nothing", models.DrumStatusActive, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := Calculate(Input{Capacity: d("2000"), Status: tc.status, Usages: tc.usages})
			require.NoError(t, err)
			assertBalanced(t, r)
			assert.False(t, r.RemainingCable.IsNegative())
		})
	}
}

func TestManualOverride(t *testing.T) {
	r, err := Calculate(Input{
		Capacity:      d("1000"),
		Status:        models.DrumStatusActive,
		ManualWastage: dp("100"),
		Method:        MethodSmartSegments,
		Usages:        []Usage{{Quantity: d("300")}, {Quantity: d("250")}},
	})
	require.NoError(t, err)
	assert.Equal(t, MethodManualOverride, r.Method)
	assert.Equal(t, "550", r.TotalUsed.String())
	assert.Equal(t, "100", r.TotalWastage.String())
	assert.Equal(t, "350", r.CalculatedCurrentQuantity.String())

	over, err := Calculate(Input{Capacity: d("100"), ManualWastage: dp("80"), Usages: []Usage{{Quantity: d("50")}}})
	require.NoError(t, err)
	assert.True(t, over.CalculatedCurrentQuantity.IsZero())
}

func TestLegacyGapsIsAnExtensionPoint(t *testing.T) {
	_, err := Calculate(Input{Capacity: d("100"), Method: MethodLegacyGaps})
	assert.True(t, errors.Is(err, ErrMethodUnavailable))

	_, err = Calculate(Input{Capacity: d("100"), Method: "made_up"})
	assert.True(t, errors.Is(err, ErrUnknownMethod))

	RegisterCalculator(MethodLegacyGaps, func(in Input) (Result, error) {
		return Result{Capacity: in.Capacity, RemainingCable: in.Capacity, CalculatedCurrentQuantity: in.Capacity, Method: MethodLegacyGaps}, nil
	})
	t.Cleanup(func() { RegisterCalculator(MethodLegacyGaps, nil) })

	r, err := Calculate(Input{Capacity: d("100"), Method: MethodLegacyGaps})
	require.NoError(t, err)
	assert.Equal(t, MethodLegacyGaps, r.Method)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, MethodSmartSegments, m)

	m, err = ParseMethod("legacy_gaps")
	require.NoError(t, err)
	assert.Equal(t, MethodLegacyGaps, m)

	_, err = ParseMethod("fifo")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestDeriveStatus(t *testing.T) {
	res := func(capacity, current string) Result {
		return Result{Capacity: d(capacity), CalculatedCurrentQuantity: d(current)}
	}
	cases := []struct {
		name     string
		current  models.DrumStatus
		result   Result
		lowStock string
		want     models.DrumStatus
	}{
		{"plenty left", models.DrumStatusActive, res("2000", "800"), "100", models.DrumStatusActive},
		{"nothing left", models.DrumStatusActive, res("2000", "0"), "0", models.DrumStatusEmpty},
		{"overdrawn", models.DrumStatusMaintenance, res("2000", "-5"), "0", models.DrumStatusEmpty},
		{"low stock", models.DrumStatusActive, res("2000", "100"), "100", models.DrumStatusInactive},
		{"low stock rule disabled", models.DrumStatusActive, res("2000", "10"), "0", models.DrumStatusActive},
		{"already inactive", models.DrumStatusInactive, res("2000", "50"), "100", models.DrumStatusInactive},
		{"unknown capacity", models.DrumStatusUnknown, res("0", "0"), "0", models.DrumStatusUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveStatus(tc.current, tc.result, d(tc.lowStock)))
		})
	}
}
