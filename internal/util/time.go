package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ParseTimeFlexible accepts the time forms used by the --since/--until flags
// and query parameters: RFC3339, epoch seconds (optionally fractional, or
// prefixed with "@"), the keywords now/today/yesterday/tomorrow, relative
// offsets such as "-1h", "+30m" or "15m ago", and any layout understood by
// dateparse. Times without a zone are interpreted in loc.
func ParseTimeFlexible(timeStr string, loc *time.Location, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(timeStr)
	if s == "" {
		return time.Time{}, fmt.Errorf("invalid time format: empty")
	}
	if loc == nil {
		loc = time.Local
	}

	// Try parsing as RFC3339 (ISO 8601)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}

	if t, ok := parseEpoch(s); ok {
		return t, nil
	}

	if t, ok := parseKeyword(strings.ToLower(s), loc, now); ok {
		return t.UTC(), nil
	}

	if t, ok := parseRelative(strings.ToLower(s), now); ok {
		return t.UTC(), nil
	}

	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time format: %s", timeStr)
	}
	return t.UTC(), nil
}

// parseEpoch accepts "@<seconds>[.<fraction>]", fractional seconds, and bare
// integers of at least 9 digits. Shorter bare integers read as dates (2024,
// 20240102) and are left to dateparse.
func parseEpoch(s string) (time.Time, bool) {
	s, explicit := strings.CutPrefix(s, "@")
	secs, frac, hasFrac := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	if !explicit && !hasFrac && len(secs) < 9 {
		return time.Time{}, false
	}
	var nsec int64
	if hasFrac {
		if frac == "" || len(frac) > 9 {
			return time.Time{}, false
		}
		n, err := strconv.ParseInt(frac+strings.Repeat("0", 9-len(frac)), 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		nsec = n
	}
	return time.Unix(sec, nsec).UTC(), true
}

func parseKeyword(s string, loc *time.Location, now time.Time) (time.Time, bool) {
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	switch s {
	case "now":
		return now, true
	case "today":
		return midnight, true
	case "yesterday":
		return midnight.AddDate(0, 0, -1), true
	case "tomorrow":
		return midnight.AddDate(0, 0, 1), true
	}
	return time.Time{}, false
}

func parseRelative(s string, now time.Time) (time.Time, bool) {
	sign := time.Duration(1)
	switch {
	case strings.HasSuffix(s, " ago"):
		s = strings.TrimSpace(strings.TrimSuffix(s, " ago"))
		sign = -1
	case strings.HasPrefix(s, "-"):
		s = s[1:]
		sign = -1
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	default:
		return time.Time{}, false
	}

	d, err := parseDuration(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		return time.Time{}, false
	}
	return now.Add(sign * d), true
}

// parseDuration extends time.ParseDuration with days and weeks.
func parseDuration(s string) (time.Duration, error) {
	for _, unit := range []struct {
		suffix string
		d      time.Duration
	}{
		{"d", 24 * time.Hour},
		{"w", 7 * 24 * time.Hour},
	} {
		if n, ok := strings.CutSuffix(s, unit.suffix); ok {
			v, err := strconv.Atoi(n)
			if err != nil {
				return 0, err
			}
			return time.Duration(v) * unit.d, nil
		}
	}
	return time.ParseDuration(s)
}
