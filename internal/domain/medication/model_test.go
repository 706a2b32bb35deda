package medication

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		scheduled time.Time
		taken     bool
		skipped   bool
		want      string
	}{
		{"taken wins", now.Add(-2 * time.Hour), true, false, DoseTaken},
		{"skipped", now.Add(-2 * time.Hour), false, true, DoseSkipped},
		{"well past is overdue", now.Add(-31 * time.Minute), false, false, DoseOverdue},
		{"far past is overdue", now.Add(-6 * time.Hour), false, false, DoseOverdue},
		{"just inside past window", now.Add(-30 * time.Minute), false, false, DoseDueNow},
		{"exactly now", now, false, false, DoseDueNow},
		{"just inside future window", now.Add(30 * time.Minute), false, false, DoseDueNow},
		{"beyond future window", now.Add(31 * time.Minute), false, false, DoseUpcoming},
		{"tomorrow", now.Add(20 * time.Hour), false, false, DoseUpcoming},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := DoseEntry{ScheduledTime: tc.scheduled, Taken: tc.taken, Skipped: tc.skipped}
			if got := d.Classify(now); got != tc.want {
				t.Errorf("Classify() = %s, want %s", got, tc.want)
			}
		})
	}
}
