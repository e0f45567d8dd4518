package budget

import (
	"fmt"
	"time"
)

// PeriodType is the budgeting window a plan targets.
type PeriodType string

const (
	PeriodDay   PeriodType = "day"
	PeriodWeek  PeriodType = "week"
	PeriodMonth PeriodType = "month"
)

// Period is a resolved budgeting window. Since..Until covers the elapsed part
// of the period including today; DaysLeft counts today through the period end
// and is always at least 1.
type Period struct {
	Since    time.Time `json:"since"`
	Until    time.Time `json:"until"`
	DaysLeft int       `json:"days_left"`
}

// PeriodInfo resolves the window for a period type as of today. Weeks run
// Monday through Sunday; months run first through last day.
func PeriodInfo(pt PeriodType, today time.Time) (Period, error) {
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())

	switch pt {
	case PeriodDay:
		return Period{Since: day, Until: day, DaysLeft: 1}, nil

	case PeriodWeek:
		// Monday-indexed weekday: Monday 0 .. Sunday 6.
		idx := (int(day.Weekday()) + 6) % 7
		return Period{
			Since:    day.AddDate(0, 0, -idx),
			Until:    day,
			DaysLeft: 7 - idx,
		}, nil

	case PeriodMonth:
		first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		lastDay := first.AddDate(0, 1, -1).Day()
		return Period{
			Since:    first,
			Until:    day,
			DaysLeft: lastDay - day.Day() + 1,
		}, nil

	default:
		return Period{}, fmt.Errorf("unknown period type %q", pt)
	}
}
