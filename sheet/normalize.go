package sheet

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/mmdatafocus/fieldops_backend/models"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

// serialEpoch is day zero of spreadsheet date serials.
var serialEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// largest serial that is still a four digit year (9999-12-31)
const maxSerial = 2958465

// NormalizePhone keeps identifiers containing letters as typed. Otherwise it
// keeps only digits and prepends the area prefix to short local numbers.
func NormalizePhone(raw, prefix string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	for _, r := range s {
		if unicode.IsLetter(r) {
			return s
		}
	}
	digits := libphonenumber.NormalizeDigitsOnly(s)
	if digits == "" {
		return ""
	}
	if len(digits) < 10 && prefix != "" && !strings.HasPrefix(digits, prefix) {
		digits = prefix + digits
	}
	return digits
}

// CorePhoneDigits strips the area prefix so sheet rows and store records can
// be cross-referenced however the number was typed.
func CorePhoneDigits(phone, prefix string) string {
	p := NormalizePhone(phone, prefix)
	for _, r := range p {
		if unicode.IsLetter(r) {
			return strings.ToLower(p)
		}
	}
	if prefix != "" && len(p) > len(prefix) && strings.HasPrefix(p, prefix) {
		return p[len(prefix):]
	}
	return p
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"1/2/2006",
	"1-2-2006",
	"1.2.2006",
	"1/2/06",
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2 Jan 2006",
	"2 January 2006",
	"2-Jan-2006",
	"2-Jan-06",
	"Jan 2, 2006",
	"Jan 2 2006",
	"January 2, 2006",
	"January 2 2006",
	"Monday, January 2, 2006",
}

// NormalizeDate parses a Date cell and forces it into the period: the month
// and year always come from the period and the day is clamped to the month.
func NormalizeDate(raw string, period models.Period) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}

	if isDigits(s) && len(s) <= 2 {
		day, _ := strconv.Atoi(s)
		if day < 1 {
			return time.Time{}, false
		}
		return period.Date(day), true
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f < 1 || f > maxSerial {
			return time.Time{}, false
		}
		t := serialEpoch.AddDate(0, 0, int(f))
		return period.Date(t.Day()), true
	}

	if day, ok := twoPartDay(s, period.Month); ok {
		return period.Date(day), true
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return period.Date(t.Day()), true
		}
	}
	return time.Time{}, false
}

// twoPartDay reads strings like "8/1": whichever part equals the period's
// month is the month, otherwise the second part is the day.
func twoPartDay(s string, month int) (int, bool) {
	sep := strings.IndexAny(s, "/-.")
	if sep <= 0 || strings.ContainsAny(s[sep+1:], "/-.") {
		return 0, false
	}
	left, right := s[:sep], s[sep+1:]
	if !isDigits(left) || !isDigits(right) || len(left) > 2 || len(right) > 2 {
		return 0, false
	}
	a, _ := strconv.Atoi(left)
	b, _ := strconv.Atoi(right)
	day := b
	switch {
	case a == month:
		day = b
	case b == month:
		day = a
	}
	if day < 1 {
		return 0, false
	}
	return day, true
}

// ParseNumber returns an invalid NullDecimal for a blank cell and zero for
// anything that is not a number.
func ParseNumber(raw string) decimal.NullDecimal {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.NullDecimal{}
	}
	s = strings.NewReplacer(",", "", " ", "").Replace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{Decimal: decimal.Zero, Valid: true}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
