package service

import (
	"testing"
	"time"
)

func TestEveryInterval(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	got := EveryInterval(5 * time.Minute).Next(from)
	want := from.Add(5 * time.Minute)
	if !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestHourlyAt(t *testing.T) {
	t.Parallel()

	schedule := HourlyAt(30)

	tests := []struct {
		from time.Time
		want time.Time
	}{
		{
			from: time.Date(2026, time.March, 10, 12, 15, 0, 0, time.UTC),
			want: time.Date(2026, time.March, 10, 12, 30, 0, 0, time.UTC),
		},
		{
			// On the mark rolls to the next hour.
			from: time.Date(2026, time.March, 10, 12, 30, 0, 0, time.UTC),
			want: time.Date(2026, time.March, 10, 13, 30, 0, 0, time.UTC),
		},
		{
			from: time.Date(2026, time.March, 10, 23, 45, 0, 0, time.UTC),
			want: time.Date(2026, time.March, 11, 0, 30, 0, 0, time.UTC),
		},
	}

	for _, tc := range tests {
		if got := schedule.Next(tc.from); !got.Equal(tc.want) {
			t.Errorf("Next(%v) = %v, want %v", tc.from, got, tc.want)
		}
	}
}

func TestDailyAt(t *testing.T) {
	t.Parallel()

	schedule := DailyAt(2, 0)

	tests := []struct {
		from time.Time
		want time.Time
	}{
		{
			from: time.Date(2026, time.March, 10, 1, 0, 0, 0, time.UTC),
			want: time.Date(2026, time.March, 10, 2, 0, 0, 0, time.UTC),
		},
		{
			from: time.Date(2026, time.March, 10, 2, 0, 0, 0, time.UTC),
			want: time.Date(2026, time.March, 11, 2, 0, 0, 0, time.UTC),
		},
		{
			// Year boundary.
			from: time.Date(2026, time.December, 31, 23, 0, 0, 0, time.UTC),
			want: time.Date(2027, time.January, 1, 2, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range tests {
		if got := schedule.Next(tc.from); !got.Equal(tc.want) {
			t.Errorf("Next(%v) = %v, want %v", tc.from, got, tc.want)
		}
	}
}

func TestWeeklyOn(t *testing.T) {
	t.Parallel()

	schedule := WeeklyOn(time.Monday, 9, 0)

	tests := []struct {
		from time.Time
		want time.Time
	}{
		{
			// Wednesday rolls to next Monday.
			from: time.Date(2026, time.March, 11, 12, 0, 0, 0, time.UTC),
			want: time.Date(2026, time.March, 16, 9, 0, 0, 0, time.UTC),
		},
		{
			// Monday before 09:00 fires the same day.
			from: time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC),
			want: time.Date(2026, time.March, 9, 9, 0, 0, 0, time.UTC),
		},
		{
			// Monday at 09:00 exactly rolls a full week.
			from: time.Date(2026, time.March, 9, 9, 0, 0, 0, time.UTC),
			want: time.Date(2026, time.March, 16, 9, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range tests {
		if got := schedule.Next(tc.from); !got.Equal(tc.want) {
			t.Errorf("Next(%v) = %v, want %v", tc.from, got, tc.want)
		}
	}
}

func TestMonthlyOn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		schedule Schedule
		from     time.Time
		want     time.Time
	}{
		{
			name:     "same month upcoming",
			schedule: MonthlyOn(15, 6, 0),
			from:     time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC),
			want:     time.Date(2026, time.March, 15, 6, 0, 0, 0, time.UTC),
		},
		{
			name:     "already passed rolls to next month",
			schedule: MonthlyOn(15, 6, 0),
			from:     time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC),
			want:     time.Date(2026, time.April, 15, 6, 0, 0, 0, time.UTC),
		},
		{
			name:     "day 31 clamps in february",
			schedule: MonthlyOn(31, 0, 0),
			from:     time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
			want:     time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "day 31 clamps in leap february",
			schedule: MonthlyOn(31, 0, 0),
			from:     time.Date(2028, time.February, 1, 0, 0, 0, 0, time.UTC),
			want:     time.Date(2028, time.February, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "december rolls to january",
			schedule: MonthlyOn(1, 0, 0),
			from:     time.Date(2026, time.December, 15, 0, 0, 0, 0, time.UTC),
			want:     time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.schedule.Next(tc.from); !got.Equal(tc.want) {
				t.Fatalf("Next(%v) = %v, want %v", tc.from, got, tc.want)
			}
		})
	}
}
