package types

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Date layouts used on the wire. Single-digit days and months are accepted
// on input; output is always zero padded.
const (
	DayLayout       = "02/01/2006"
	TimestampLayout = "02/01/2006 15:04"

	dayInputLayout = "2/1/2006"

	// DefaultTime is appended when a timestamp carries no time of day.
	DefaultTime = "00:00"
)

var timestampPattern = regexp.MustCompile(
	`(0[1-9]|[12][0-9]|3[01])/(0[1-9]|1[012])/(\d{4})(?:\s+([01]?\d|2[0-3]):([0-5]\d))?`,
)

// ParseDay parses a "dd/mm/yyyy" date at day precision. Anything after the
// first whitespace (such as a time of day) is ignored.
func ParseDay(s string) (time.Time, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return time.Time{}, fmt.Errorf("empty date")
	}
	t, err := time.Parse(dayInputLayout, fields[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q is not dd/mm/yyyy", s)
	}
	return t, nil
}

// FormatDay renders t as "dd/mm/yyyy".
func FormatDay(t time.Time) string { return t.Format(DayLayout) }

// ExtractTimestamp finds the first "dd/mm/yyyy[ hh:mm]" in free text and
// returns it normalized as "dd/mm/yyyy hh:mm". The time defaults to 00:00.
func ExtractTimestamp(text string) (string, bool) {
	m := timestampPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	date := m[1] + "/" + m[2] + "/" + m[3]
	if _, err := time.Parse(DayLayout, date); err != nil {
		// 31/02/2024 matches the pattern but is not a calendar date.
		return "", false
	}
	clock := DefaultTime
	if m[4] != "" {
		hour := m[4]
		if len(hour) == 1 {
			hour = "0" + hour
		}
		clock = hour + ":" + m[5]
	}
	return date + " " + clock, true
}

// ExtractDay finds the first "dd/mm/yyyy" in free text.
func ExtractDay(text string) (string, bool) {
	ts, ok := ExtractTimestamp(text)
	if !ok {
		return "", false
	}
	return ts[:len(DayLayout)], true
}

// InRange reports whether day lies within [start, end], all at day precision.
func InRange(day, start, end time.Time) bool {
	return !day.Before(start) && !day.After(end)
}
