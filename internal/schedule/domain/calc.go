package domain

import "time"

// NextBillingDate advances from one cycle past `from`, landing on the
// configured billing day. The day is clamped to the last valid day of the
// target month (day 31 in February yields Feb 28/29). Pure and deterministic;
// billing_day range validation happens at the caller boundary.
func NextBillingDate(cycle BillingCycle, day int, from time.Time) time.Time {
	// AddDate normalizes month overflow (Jan 31 + 1 month = Mar 3), which
	// would defeat the clamp. Carry the month arithmetic by hand instead.
	year, month := from.Year(), int(from.Month())+cycle.Months()
	for month > 12 {
		month -= 12
		year++
	}
	return clampToDay(year, time.Month(month), day, from.Location())
}

// PeriodFor derives the billing period covered by an invoice due on the given
// date: the calendar months the cycle spans, anchored on the due date's month.
func PeriodFor(cycle BillingCycle, due time.Time) (start, end time.Time) {
	start = time.Date(due.Year(), due.Month(), 1, 0, 0, 0, 0, due.Location())
	end = start.AddDate(0, cycle.Months(), 0).AddDate(0, 0, -1)
	return start, end
}

func clampToDay(year int, month time.Month, day int, loc *time.Location) time.Time {
	last := daysIn(year, month)
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
