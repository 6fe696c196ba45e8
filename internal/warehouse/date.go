package warehouse

import "time"

// DateAttributes are the derived columns of a dim_date row.
type DateAttributes struct {
	// Date is the calendar date at midnight UTC.
	Date       time.Time
	Year       int
	Month      int
	Day        int
	DayOfWeek  int // 0 = Monday
	DayName    string
	WeekOfYear int // ISO 8601
	Quarter    int
	IsWeekend  bool
}

// DeriveDate computes the date dimension attributes for the calendar date of t
// in t's own location.
func DeriveDate(t time.Time) DateAttributes {
	y, m, d := t.Date()
	date := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	dow := (int(date.Weekday()) + 6) % 7
	_, week := date.ISOWeek()
	return DateAttributes{
		Date:       date,
		Year:       y,
		Month:      int(m),
		Day:        d,
		DayOfWeek:  dow,
		DayName:    date.Weekday().String(),
		WeekOfYear: week,
		Quarter:    (int(m)-1)/3 + 1,
		IsWeekend:  dow >= 5,
	}
}
