package progression

import "time"

// Streak counts consecutive calendar days in loc that contain at least one of
// times. Counting starts today, or yesterday when today has nothing yet, and
// stops at the first empty day. maxDays caps the look-back; <= 0 means no cap.
func Streak(times []time.Time, now time.Time, loc *time.Location, maxDays int) int {
	if loc == nil {
		loc = time.UTC
	}
	days := make(map[string]struct{}, len(times))
	for _, t := range times {
		days[dayKey(t, loc)] = struct{}{}
	}

	day := startOfDay(now, loc)
	if _, ok := days[dayKey(day, loc)]; !ok {
		day = day.AddDate(0, 0, -1)
	}

	streak := 0
	for maxDays <= 0 || streak < maxDays {
		if _, ok := days[dayKey(day, loc)]; !ok {
			break
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
