package core

import (
	"fmt"
	"strings"
	"time"

	"dispatch_service/internal/domain/model"
)

const day = 24 * time.Hour

// timeLayouts are tried in order; the first that parses wins.
var timeLayouts = []string{
	"15:04:05",
	"15:04",
	"3:04:05 PM",
	"3:04:05PM",
	"3:04 PM",
	"3:04PM",
	"3 PM",
	"3PM",
	"15",
}

// ParseTimeOfDay returns the offset from midnight of a wall-clock time.
func ParseTimeOfDay(value string) (time.Duration, error) {
	value = strings.ToUpper(strings.TrimSpace(value))
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		return time.Duration(t.Hour())*time.Hour +
			time.Duration(t.Minute())*time.Minute +
			time.Duration(t.Second())*time.Second, nil
	}
	return 0, fmt.Errorf("unrecognized time of day %q", value)
}

// HourWindow returns the received-hour ranges covered by center±half.
//
// Without wrap the window is clamped to hours 0..23, so 23:00±2h covers
// 21..23. With wrap it continues across midnight and may split into two
// ranges, 21..23 and 0..1.
func HourWindow(center, half time.Duration, wrap bool) []model.HourRange {
	if half < 0 {
		half = -half
	}
	lo, hi := center-half, center+half
	if lo > hi {
		lo, hi = hi, lo
	}

	if !wrap {
		if lo < 0 {
			lo = 0
		}
		if hi >= day {
			hi = day - time.Nanosecond
		}
		return []model.HourRange{{From: int(lo / time.Hour), To: int(hi / time.Hour)}}
	}

	if hi-lo >= day-time.Hour {
		return []model.HourRange{{From: 0, To: 23}}
	}

	from, to := hourOf(lo), hourOf(hi)
	if from <= to && lo >= 0 && hi < day {
		return []model.HourRange{{From: from, To: to}}
	}
	return []model.HourRange{{From: from, To: 23}, {From: 0, To: to}}
}

// hourOf wraps an offset that may fall outside the day onto 0..23.
func hourOf(d time.Duration) int {
	h := int(d.Truncate(time.Hour) / time.Hour)
	if d < 0 && d%time.Hour != 0 {
		h--
	}
	return ((h % 24) + 24) % 24
}
