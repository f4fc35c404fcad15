package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// epochMillisCutoff separates epoch-seconds from epoch-milliseconds.
// Values strictly greater than 10^12 are milliseconds; 10^12 itself is
// still read as seconds.
const epochMillisCutoff = int64(1_000_000_000_000)

// isoLayouts are tried in order for string timestamps. Naive layouts
// (no offset) are interpreted as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp normalizes a raw timestamp of any supported shape
// (epoch seconds, epoch milliseconds, float epoch, ISO string) into a
// UTC instant. It never substitutes the current time: an unparseable
// or absent value is an error.
func ParseTimestamp(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("timestamp missing")
	case time.Time:
		return t.UTC(), nil
	case int:
		return fromEpoch(int64(t)), nil
	case int64:
		return fromEpoch(t), nil
	case float64:
		// JSON numbers decode as float64. Preserve sub-second precision
		// for second-resolution epochs.
		i := int64(t)
		if i > epochMillisCutoff {
			return time.UnixMilli(i).UTC(), nil
		}
		sec := int64(t)
		nsec := int64((t - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC(), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, fmt.Errorf("timestamp empty")
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromEpoch(i), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return ParseTimestamp(f)
		}
		for _, layout := range isoLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func fromEpoch(i int64) time.Time {
	if i > epochMillisCutoff {
		return time.UnixMilli(i).UTC()
	}
	return time.Unix(i, 0).UTC()
}
