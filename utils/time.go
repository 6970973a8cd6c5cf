package utils

import (
	"fmt"
	"time"
)

const (
	dbDateTimeLayout = "2006-01-02 15:04:05"
	dateOnlyLayout   = "2006-01-02"
)

// NowUTC returns the current time in UTC; all persisted timestamps use UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// FormatDateTimeForDB formats a time for DATETIME columns.
func FormatDateTimeForDB(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dbDateTimeLayout)
}

// ParseDBDate parses timestamp strings retrieved from the database.
func ParseDBDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	if ts, err := time.ParseInLocation(dbDateTimeLayout, value, time.UTC); err == nil {
		return ts, nil
	}

	if ts, err := time.ParseInLocation(dateOnlyLayout, value, time.UTC); err == nil {
		return ts, nil
	}

	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("unsupported db time format: %s", value)
}
