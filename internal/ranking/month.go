package ranking

import (
	"fmt"
	"time"
)

// Month is a calendar month (year + month), the granularity the ranking
// window is bucketed at.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf truncates an instant to its calendar month.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// Add shifts the month by n whole calendar months, crossing year boundaries
// as needed. n may be negative.
func (m Month) Add(n int) Month {
	t := time.Date(m.Year, m.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	return Month{Year: t.Year(), Month: t.Month()}
}

// String renders the month as YYYY-MM.
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}
