package xmltv

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Layouts carrying an explicit offset.
var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04Z07:00",
	"20060102150405 -0700",
	"20060102150405 -07:00",
	"20060102150405-0700",
}

// Layouts without an offset; parsed as UTC.
var utcLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"20060102150405",
	"200601021504",
}

var clockRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?\s*([AaPp])?\.?\s*[Mm]?\.?$`)

// ParseTime parses ISO-8601 and XMLTV timestamps. Strings without an offset
// are taken as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty timestamp", ErrInvalidTime)
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range utcLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized timestamp %q", ErrInvalidTime, s)
}

// ParseClock parses a wall-clock time ("19:30", "7:30 PM", "24:00") on the
// calendar day of day in loc. A nil loc means time.Local; a zero day means today.
//
// Hours 24 through 29 are broadcast-day notation and land on the following
// day (24:00 is midnight at the end of day, 25:30 is 01:30 the next morning).
// With an AM/PM suffix the hour must be 1-12.
func ParseClock(s string, day time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if day.IsZero() {
		day = time.Now()
	}
	m := clockRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: unrecognized clock time %q", ErrInvalidTime, s)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	second := 0
	if m[3] != "" {
		second, _ = strconv.Atoi(m[3])
	}
	if minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("%w: clock time out of range %q", ErrInvalidTime, s)
	}

	switch strings.ToUpper(m[4]) {
	case "A", "P":
		if hour < 1 || hour > 12 {
			return time.Time{}, fmt.Errorf("%w: 12-hour clock out of range %q", ErrInvalidTime, s)
		}
		hour %= 12
		if strings.EqualFold(m[4], "P") {
			hour += 12
		}
	default:
		if hour > 29 {
			return time.Time{}, fmt.Errorf("%w: clock time out of range %q", ErrInvalidTime, s)
		}
	}

	y, mo, d := day.In(loc).Date()
	extraDays := 0
	if hour >= 24 {
		extraDays = 1
		hour -= 24
	}
	return time.Date(y, mo, d+extraDays, hour, minute, second, 0, loc), nil
}

// StopAfter returns stop, moved forward by whole days until it falls after
// start. Sources that only publish wall-clock times use it for listings past
// midnight.
func StopAfter(start, stop time.Time) time.Time {
	for i := 0; !stop.After(start) && i < 2; i++ {
		stop = stop.AddDate(0, 0, 1)
	}
	return stop
}
