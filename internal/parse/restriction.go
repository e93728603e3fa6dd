package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	clockRe = regexp.MustCompile(`(?i)^(\d{1,2})(?:[:.](\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)?$`)
	spaceRe = regexp.MustCompile(`\s+`)
)

var dayNames = map[string]string{
	"mon": "Monday", "monday": "Monday",
	"tue": "Tuesday", "tues": "Tuesday", "tuesday": "Tuesday",
	"wed": "Wednesday", "weds": "Wednesday", "wednesday": "Wednesday",
	"thu": "Thursday", "thur": "Thursday", "thurs": "Thursday", "thursday": "Thursday",
	"fri": "Friday", "friday": "Friday",
	"sat": "Saturday", "saturday": "Saturday",
	"sun": "Sunday", "sunday": "Sunday",
}

// Day normalizes a day-of-week label ("mon", "TUES.", " friday ") to its
// full English name. Unknown labels are returned trimmed with an error.
func Day(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	key := strings.ToLower(strings.TrimSuffix(s, "."))
	if name, ok := dayNames[key]; ok {
		return name, nil
	}
	return s, fmt.Errorf("unknown day label: %q", raw)
}

// ClockTime normalizes a clock time ("8am", "8:30 PM", "08.15", "17:00") to
// 24-hour "HH:MM". Times are not checked against a calendar and "24:00" is
// accepted as an end-of-day marker.
func ClockTime(raw string) (string, error) {
	s := strings.TrimSpace(spaceRe.ReplaceAllString(raw, " "))
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return "", fmt.Errorf("unable to parse clock time: %q", raw)
	}

	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if minute > 59 {
		return "", fmt.Errorf("minute out of range in %q", raw)
	}

	switch suffix := strings.ReplaceAll(strings.ToLower(m[3]), ".", ""); suffix {
	case "am", "pm":
		if hour < 1 || hour > 12 {
			return "", fmt.Errorf("hour out of range in %q", raw)
		}
		hour %= 12
		if suffix == "pm" {
			hour += 12
		}
	default:
		if hour > 24 || (hour == 24 && minute != 0) {
			return "", fmt.Errorf("hour out of range in %q", raw)
		}
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}
