package engine

import (
	"fmt"
	"strings"
	"time"
)

// ScanDates selects the calendar sessions in [start, end] that match schedule.
// schedule is "daily" or "weekly:<weekday>". Zero bounds are open.
func ScanDates(calendar []time.Time, start, end time.Time, schedule string) ([]time.Time, error) {
	match, err := parseSchedule(schedule)
	if err != nil {
		return nil, err
	}
	var out []time.Time
	for _, d := range calendar {
		if !start.IsZero() && d.Before(start) {
			continue
		}
		if !end.IsZero() && d.After(end) {
			continue
		}
		if match(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func parseSchedule(schedule string) (func(time.Time) bool, error) {
	s := strings.ToLower(strings.TrimSpace(schedule))
	if s == "" || s == "daily" {
		return func(time.Time) bool { return true }, nil
	}
	day, ok := strings.CutPrefix(s, "weekly:")
	if !ok {
		return nil, fmt.Errorf("unknown schedule %q", schedule)
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		name := strings.ToLower(wd.String())
		if day == name || day == name[:3] {
			return func(d time.Time) bool { return d.Weekday() == wd }, nil
		}
	}
	return nil, fmt.Errorf("unknown weekday in schedule %q", schedule)
}
