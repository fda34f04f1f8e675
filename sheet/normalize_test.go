package sheet

import (
	"testing"
	"time"

	"github.com/mmdatafocus/fieldops_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrefix = "034"

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"full local number", "0711234567", "0711234567"},
		{"separators stripped", "071 123-4567", "0711234567"},
		{"short number gets prefix", "1234567", "0341234567"},
		{"already prefixed", "034123", "034123"},
		{"letters pass through", "ABC-123", "ABC-123"},
		{"blank", "   ", ""},
		{"international", "+94 71 123 4567", "94711234567"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizePhone(tc.in, testPrefix))
		})
	}
}

func TestNormalizePhoneIsIdempotent(t *testing.T) {
	inputs := []string{"0711234567", "71-123", "1234567", "034 999", "Office A1", "(034) 55-12", "", "12345678901"}
	for _, in := range inputs {
		once := NormalizePhone(in, testPrefix)
		assert.Equal(t, once, NormalizePhone(once, testPrefix), "input %q", in)
	}
}

func TestCorePhoneDigits(t *testing.T) {
	assert.Equal(t, "1234567", CorePhoneDigits("0341234567", testPrefix))
	assert.Equal(t, "1234567", CorePhoneDigits("1234567", testPrefix))
	assert.Equal(t, "0711234567", CorePhoneDigits("071 123 4567", testPrefix))
	assert.Equal(t, "office a1", CorePhoneDigits("Office A1", testPrefix))
}

func TestNormalizeDate(t *testing.T) {
	aug := models.Period{Month: 8, Year: 2024}
	feb := models.Period{Month: 2, Year: 2023}
	day := func(p models.Period, d int) time.Time {
		return time.Date(p.Year, time.Month(p.Month), d, 0, 0, 0, 0, time.UTC)
	}

	cases := []struct {
		name   string
		period models.Period
		in     string
		want   time.Time
		ok     bool
	}{
		{"bare day", aug, "15", day(aug, 15), true},
		{"serial", aug, "45505", day(aug, 1), true},
		{"month first pair", aug, "8/1", day(aug, 1), true},
		{"month second pair", aug, "1/8", day(aug, 1), true},
		{"pair without month", aug, "3/15", day(aug, 15), true},
		{"iso from other month", aug, "2024-07-31", day(aug, 31), true},
		{"us layout", aug, "12/25/2023", day(aug, 25), true},
		{"day first layout", aug, "25/12/2023", day(aug, 25), true},
		{"written month", aug, "2 Aug 2024", day(aug, 2), true},
		{"clamped to month end", feb, "31", day(feb, 28), true},
		{"zero day", aug, "0", time.Time{}, false},
		{"garbage", aug, "not a date", time.Time{}, false},
		{"blank", aug, " ", time.Time{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NormalizeDate(tc.in, tc.period)
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.True(t, tc.want.Equal(got), "got %s want %s", got, tc.want)
			}
		})
	}
}

func TestParseNumber(t *testing.T) {
	blank := ParseNumber("")
	assert.False(t, blank.Valid)

	n := ParseNumber("1,250.5")
	require.True(t, n.Valid)
	assert.Equal(t, "1250.5", n.Decimal.String())

	junk := ParseNumber("n/a")
	require.True(t, junk.Valid)
	assert.True(t, junk.Decimal.IsZero())
}
