package utils

import (
	"errors"
	"strings"
	"time"
)

func NowUTC() time.Time {
	return time.Now().UTC()
}

var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDate accepts ISO dates, dd.mm.yyyy and RFC3339 timestamps and returns
// the calendar date as written, at UTC midnight.
func ParseDate(val string) (time.Time, error) {
	clean := strings.TrimSpace(val)
	if clean == "" {
		return time.Time{}, errors.New("empty date")
	}
	var lastErr error
	for _, layout := range dateLayouts {
		ts, err := time.Parse(layout, clean)
		if err == nil {
			y, m, d := ts.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func FormatDate(t time.Time) string {
	return t.Format("02.01.2006")
}
