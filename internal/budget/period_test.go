package budget

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 15, 4, 5, 0, time.UTC)
}

func TestPeriodInfoDay(t *testing.T) {
	p, err := PeriodInfo(PeriodDay, date(2026, time.August, 31))
	if err != nil {
		t.Fatal(err)
	}
	if !p.Since.Equal(p.Until) || p.Since.Day() != 31 {
		t.Fatalf("day period should cover exactly today: %+v", p)
	}
	if p.DaysLeft != 1 {
		t.Fatalf("day period always has 1 day left, got %d", p.DaysLeft)
	}
}

func TestPeriodInfoWeek(t *testing.T) {
	tests := []struct {
		name      string
		today     time.Time
		wantSince int // day of month
		wantLeft  int
	}{
		{"monday", date(2026, time.August, 31), 31, 7},     // Mon
		{"wednesday", date(2026, time.September, 2), 31, 5}, // Wed
		{"sunday", date(2026, time.September, 6), 31, 1},    // Sun
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := PeriodInfo(PeriodWeek, tt.today)
			if err != nil {
				t.Fatal(err)
			}
			if p.Since.Day() != tt.wantSince {
				t.Fatalf("week should start on Monday the %dth, got %s", tt.wantSince, p.Since)
			}
			if p.DaysLeft != tt.wantLeft {
				t.Fatalf("expected %d days left, got %d", tt.wantLeft, p.DaysLeft)
			}
		})
	}
}

func TestPeriodInfoMonth(t *testing.T) {
	// September has 30 days; on the 10th, 21 days remain including today.
	p, err := PeriodInfo(PeriodMonth, date(2026, time.September, 10))
	if err != nil {
		t.Fatal(err)
	}
	if p.Since.Day() != 1 || p.Since.Month() != time.September {
		t.Fatalf("month should start on the 1st, got %s", p.Since)
	}
	if p.Until.Day() != 10 {
		t.Fatalf("month window should end today, got %s", p.Until)
	}
	if p.DaysLeft != 21 {
		t.Fatalf("expected 21 days left, got %d", p.DaysLeft)
	}

	// Last day of the month.
	p, err = PeriodInfo(PeriodMonth, date(2026, time.September, 30))
	if err != nil {
		t.Fatal(err)
	}
	if p.DaysLeft != 1 {
		t.Fatalf("expected 1 day left on the last day, got %d", p.DaysLeft)
	}
}

func TestPeriodInfoUnknownType(t *testing.T) {
	if _, err := PeriodInfo(PeriodType("quarter"), date(2026, time.September, 1)); err == nil {
		t.Fatal("expected an error for an unknown period type")
	}
}
