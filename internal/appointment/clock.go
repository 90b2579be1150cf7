package appointment

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	minutesPerDay = 24 * 60
	dateLayout    = "2006-01-02"
)

// ClockTime is a time of day in whole minutes since midnight. Arithmetic
// stays in integer minutes so slot stepping never touches wall-clock
// calendars or DST transitions.
type ClockTime int

// ParseClock accepts "HH:MM" and "HH:MM:SS" (seconds must be zero).
// "24:00" is accepted as the end-of-day boundary.
func ParseClock(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}

	h, err := parseClockPart(parts[0], 0, 24)
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := parseClockPart(parts[1], 0, 59)
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if len(parts) == 3 {
		sec, err := parseClockPart(parts[2], 0, 59)
		if err != nil || sec != 0 {
			return 0, fmt.Errorf("invalid second in %q", s)
		}
	}

	c := ClockTime(h*60 + m)
	if c > minutesPerDay {
		return 0, fmt.Errorf("time of day %q is past midnight", s)
	}
	return c, nil
}

func parseClockPart(s string, lo, hi int) (int, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("expected two digits")
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("out of range")
	}
	return n, nil
}

// MustClock is ParseClock for constants.
func MustClock(s string) ClockTime {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

// Add returns c shifted by minutes without wrapping.
func (c ClockTime) Add(minutes int) ClockTime { return c + ClockTime(minutes) }

// IsTimeOfDay reports whether c is a bookable start time (00:00..23:59).
func (c ClockTime) IsTimeOfDay() bool { return c >= 0 && c < minutesPerDay }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseDate parses a YYYY-MM-DD calendar date at midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return d, nil
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(d time.Time) string {
	return d.Format(dateLayout)
}

// DateOf truncates t to its calendar date in t's own location, returned
// as midnight UTC.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
