package utils

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for date-only parameters.
const DateLayout = "2006-01-02"

// DateFromString parses a YYYY-MM-DD date string as midnight UTC.
// An empty string returns the zero time with no error.
func DateFromString(dateStr string) (time.Time, error) {
	if dateStr == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format: %s, use YYYY-MM-DD", dateStr)
	}
	return t, nil
}

// MillisFromString converts a YYYY-MM-DD date string to Unix milliseconds.
// An empty string returns 0 with no error.
func MillisFromString(dateStr string) (int64, error) {
	if dateStr == "" {
		return 0, nil
	}
	t, err := DateFromString(dateStr)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

// TimeFromMillis converts Unix milliseconds to a UTC time.
// Zero milliseconds returns the zero time.
func TimeFromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// DatesBetween returns every date between start and end inclusive, formatted
// as YYYY-MM-DD. An end date in the future is clamped to today.
func DatesBetween(startDate, endDate string) ([]string, error) {
	start, err := DateFromString(startDate)
	if err != nil {
		return nil, err
	}
	end, err := DateFromString(endDate)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if end.After(now) {
		end = now
	}
	if start.After(end) {
		return nil, fmt.Errorf("start_date %s must be before or equal to end_date %s", startDate, endDate)
	}
	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(DateLayout))
	}
	return dates, nil
}
