package utils

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// ParseFlexibleTime decodes the date fields found in event documents, which
// over time have been written as ISO strings, unix seconds and unix millis.
// Returns the zero time when the field is absent or unreadable.
func ParseFlexibleTime(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		asString = strings.TrimSpace(asString)
		if asString == "" {
			return time.Time{}
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, asString); err == nil {
				return t
			}
		}
		// Numeric timestamps occasionally arrive quoted.
		if n, err := strconv.ParseInt(asString, 10, 64); err == nil {
			return fromEpoch(n)
		}
		return time.Time{}
	}

	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return fromEpoch(int64(asNumber))
	}

	return time.Time{}
}

// fromEpoch treats values below 1e12 as seconds, everything else as millis.
func fromEpoch(n int64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	if n < 1e12 {
		return time.Unix(n, 0)
	}
	return time.UnixMilli(n)
}
