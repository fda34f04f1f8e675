package models

import "time"

// Period is the (month, year) window a Connection owns.
type Period struct {
	Month int
	Year  int
}

// Start is midnight UTC on the first day of the month.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End is exclusive: the first day of the following month.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

func (p Period) LastDay() int {
	return p.End().AddDate(0, 0, -1).Day()
}

func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start()) && t.Before(p.End())
}

// Date returns the day of this period, clamped to the month's last day.
func (p Period) Date(day int) time.Time {
	if day < 1 {
		day = 1
	}
	if last := p.LastDay(); day > last {
		day = last
	}
	return time.Date(p.Year, time.Month(p.Month), day, 0, 0, 0, 0, time.UTC)
}
