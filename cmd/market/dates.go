package main

import (
	"fmt"
	"strings"
	"time"
)

// dateLayouts are accepted for --start, --end and the prompt. Times without a zone are UTC.
var dateLayouts = []string{time.DateOnly, "2006-01-02 15:04:05", "2006-01-02 15:04", time.RFC3339}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD, YYYY-MM-DD HH:MM:SS or RFC3339", value)
}

// parseEndDate parses the end of a range. A bare YYYY-MM-DD includes that whole day, so it
// becomes the next midnight. Values with a time of day are exclusive ends as given.
func parseEndDate(value string) (time.Time, error) {
	t, err := parseDate(value)
	if err != nil {
		return time.Time{}, err
	}

	if _, err := time.Parse(time.DateOnly, strings.TrimSpace(value)); err == nil {
		return t.AddDate(0, 0, 1), nil
	}

	return t, nil
}
