package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextBillingDateMonthlyClampsToShortMonth(t *testing.T) {
	got := NextBillingDate(CycleMonthly, 31, date(2025, time.January, 31))
	assert.Equal(t, date(2025, time.February, 28), got)

	got = NextBillingDate(CycleMonthly, 31, date(2024, time.January, 31))
	assert.Equal(t, date(2024, time.February, 29), got)
}

func TestNextBillingDateClampsAcrossYearBoundary(t *testing.T) {
	got := NextBillingDate(CycleQuarterly, 31, date(2025, time.November, 30))
	assert.Equal(t, date(2026, time.February, 28), got)

	got = NextBillingDate(CycleAnnual, 29, date(2024, time.February, 29))
	assert.Equal(t, date(2025, time.February, 28), got)
}

func TestNextBillingDateCycleLengths(t *testing.T) {
	from := date(2025, time.October, 10)

	assert.Equal(t, date(2025, time.November, 10), NextBillingDate(CycleMonthly, 10, from))
	assert.Equal(t, date(2026, time.January, 10), NextBillingDate(CycleQuarterly, 10, from))
	assert.Equal(t, date(2026, time.April, 10), NextBillingDate(CycleSemiAnnual, 10, from))
	assert.Equal(t, date(2026, time.October, 10), NextBillingDate(CycleAnnual, 10, from))
}

func TestNextBillingDateNeverBeforeFrom(t *testing.T) {
	cycles := []BillingCycle{CycleMonthly, CycleQuarterly, CycleSemiAnnual, CycleAnnual}
	froms := []time.Time{
		date(2025, time.January, 1),
		date(2025, time.January, 31),
		date(2025, time.February, 28),
		date(2024, time.February, 29),
		date(2025, time.December, 31),
	}
	for _, cycle := range cycles {
		for day := 1; day <= 31; day++ {
			for _, from := range froms {
				got := NextBillingDate(cycle, day, from)
				assert.False(t, got.Before(from),
					"cycle=%s day=%d from=%s got=%s", cycle, day, from, got)
			}
		}
	}
}

func TestPeriodForMonthly(t *testing.T) {
	start, end := PeriodFor(CycleMonthly, date(2025, time.October, 10))
	assert.Equal(t, date(2025, time.October, 1), start)
	assert.Equal(t, date(2025, time.October, 31), end)
}

func TestPeriodForQuarterly(t *testing.T) {
	start, end := PeriodFor(CycleQuarterly, date(2025, time.February, 15))
	assert.Equal(t, date(2025, time.February, 1), start)
	assert.Equal(t, date(2025, time.April, 30), end)
}

func TestBillingCycleValid(t *testing.T) {
	assert.True(t, CycleMonthly.Valid())
	assert.True(t, CycleAnnual.Valid())
	assert.False(t, BillingCycle("WEEKLY").Valid())
	assert.False(t, BillingCycle("").Valid())
}
