package aggregation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// ParseDuration parses a bucket or group interval.
//
// Accepted forms:
//   - clock form "[d.]hh:mm[:ss[.fffffff]]", e.g. "01:00:00", "1.12:00:00", "00:15"
//   - a bare integer, read as days ("7")
//   - "Xd" for days ("3d")
//   - Go duration syntax ("90m", "1h30m", "10s")
//
// The result must be positive.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("duration must not be empty")
	}

	var (
		d   time.Duration
		err error
	)
	switch {
	case strings.Contains(s, ":"):
		d, err = parseClock(s)
	case isDigits(s):
		var days int64
		days, err = strconv.ParseInt(s, 10, 64)
		d = time.Duration(days) * day
	case len(s) > 1 && s[len(s)-1] == 'd' && isDigits(s[:len(s)-1]):
		var days int64
		days, err = strconv.ParseInt(s[:len(s)-1], 10, 64)
		d = time.Duration(days) * day
	default:
		d, err = time.ParseDuration(s)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %q", s)
	}
	return d, nil
}

// parseClock parses "[d.]hh:mm[:ss[.fraction]]".
func parseClock(s string) (time.Duration, error) {
	var days int64
	colon := strings.IndexByte(s, ':')
	if dot := strings.IndexByte(s[:colon], '.'); dot >= 0 {
		n, err := strconv.ParseInt(s[:dot], 10, 64)
		if err != nil || !isDigits(s[:dot]) {
			return 0, fmt.Errorf("bad day component %q", s[:dot])
		}
		days = n
		s = s[dot+1:]
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("expected hh:mm or hh:mm:ss")
	}

	var fraction time.Duration
	if len(parts) == 3 {
		if dot := strings.IndexByte(parts[2], '.'); dot >= 0 {
			frac := parts[2][dot+1:]
			if frac == "" || len(frac) > 7 || !isDigits(frac) {
				return 0, fmt.Errorf("bad fraction %q", frac)
			}
			// Fractions are 100ns ticks at most seven digits deep.
			n, _ := strconv.ParseInt(frac+strings.Repeat("0", 7-len(frac)), 10, 64)
			fraction = time.Duration(n) * 100
			parts[2] = parts[2][:dot]
		}
	}

	limits := []int64{23, 59, 59}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	total := time.Duration(days) * day
	for i, p := range parts {
		if !isDigits(p) {
			return 0, fmt.Errorf("bad component %q", p)
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0, err
		}
		if n > limits[i] {
			return 0, fmt.Errorf("component %q out of range", p)
		}
		total += time.Duration(n) * units[i]
	}
	return total + fraction, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// BucketFor truncates a timestamp down to the nearest bucket boundary.
// Boundaries are multiples of d since the zero time, independent of location.
// Example: BucketFor(10:35:42, 1*time.Minute) → 10:35:00
func BucketFor(t time.Time, d time.Duration) time.Time {
	return t.Truncate(d)
}

// CeilBucket rounds a timestamp up to the next bucket boundary. Timestamps already
// on a boundary are returned unchanged.
// Example: CeilBucket(10:35:42, 1*time.Minute) → 10:36:00
func CeilBucket(t time.Time, d time.Duration) time.Time {
	floor := t.Truncate(d)
	if floor.Before(t) {
		return floor.Add(d)
	}
	return floor
}

// TruncateToDay truncates a timestamp to midnight in its own location.
func TruncateToDay(t time.Time) time.Time {
	year, month, dd := t.Date()
	return time.Date(year, month, dd, 0, 0, 0, 0, t.Location())
}

// DurationLabel renders d in the shortest whole unit, e.g. "1h", "15m", "2d".
func DurationLabel(d time.Duration) string {
	if d%day == 0 {
		return fmt.Sprintf("%dd", d/day)
	}
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", d/time.Hour)
	}
	if d%time.Minute == 0 {
		return fmt.Sprintf("%dm", d/time.Minute)
	}
	if d%time.Second == 0 {
		return fmt.Sprintf("%ds", d/time.Second)
	}
	return d.String()
}
