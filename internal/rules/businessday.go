package rules

import "time"

// Calendar answers business-day questions against a configurable holiday set.
// Dates are compared in the case's own timezone, day-granular.
type Calendar struct {
	holidays map[string]struct{}
}

// NewCalendar builds a calendar from YYYY-MM-DD holiday strings. Invalid
// entries were already rejected by Config.Validate.
func NewCalendar(holidays []string) *Calendar {
	set := make(map[string]struct{}, len(holidays))
	for _, day := range holidays {
		set[day] = struct{}{}
	}
	return &Calendar{holidays: set}
}

// IsBusinessDay reports whether t falls on a working day.
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[t.Format("2006-01-02")]
	return !holiday
}

// AddBusinessDays advances start by n business days, preserving the
// time-of-day. A Friday start plus one business day lands on Monday.
func (c *Calendar) AddBusinessDays(start time.Time, n int) time.Time {
	t := start
	for added := 0; added < n; {
		t = t.AddDate(0, 0, 1)
		if c.IsBusinessDay(t) {
			added++
		}
	}
	return t
}
