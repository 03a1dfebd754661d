package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	layoutUTC   = "20060102T150405Z"
	layoutLocal = "20060102T150405"
	layoutDate  = "20060102"
)

var (
	// ErrEmptyValue is returned for an empty date, time or duration value.
	ErrEmptyValue = errors.New("empty value")
	// ErrBadDuration is returned for values that are not RFC 5545 durations.
	ErrBadDuration = errors.New("malformed duration")
)

// parseTime parses a DATE or DATE-TIME value.
// UTC values keep UTC, values with a TZID use that zone, floating values and
// dates use fallback. The second result reports a date-only value.
func parseTime(value string, params map[string][]string, fallback *time.Location) (time.Time, bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false, ErrEmptyValue
	}

	location := fallback
	if tzid := param(params, "TZID"); tzid != "" {
		loaded, err := time.LoadLocation(strings.Trim(tzid, `"`))
		if err != nil {
			return time.Time{}, false, fmt.Errorf("load zone %q: %w", tzid, err)
		}

		location = loaded
	}

	switch {
	case strings.EqualFold(param(params, "VALUE"), "DATE") || !strings.Contains(value, "T"):
		t, err := time.ParseInLocation(layoutDate, value, location)

		return t, true, err
	case strings.HasSuffix(value, "Z"):
		t, err := time.Parse(layoutUTC, value)

		return t, false, err
	default:
		t, err := time.ParseInLocation(layoutLocal, value, location)

		return t, false, err
	}
}

// parseTimeList parses a comma separated EXDATE style list.
func parseTimeList(value string, params map[string][]string, fallback *time.Location) ([]time.Time, error) {
	parts := strings.Split(value, ",")
	result := make([]time.Time, 0, len(parts))

	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}

		t, _, err := parseTime(part, params, fallback)
		if err != nil {
			return nil, err
		}

		result = append(result, t)
	}

	return result, nil
}

// parseDuration parses a signed RFC 5545 duration such as "-PT15M",
// "P1DT2H" or "P2W".
func parseDuration(value string) (time.Duration, error) {
	s := strings.ToUpper(strings.TrimSpace(value))
	if s == "" {
		return 0, ErrEmptyValue
	}

	sign := time.Duration(1)

	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}

	if !strings.HasPrefix(s, "P") || len(s) < 3 {
		return 0, fmt.Errorf("%w: %q", ErrBadDuration, value)
	}

	s = s[1:]

	var (
		total   time.Duration
		inTime  bool
		number  strings.Builder
		hasPart bool
	)

	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			number.WriteRune(r)
		case r == 'T':
			if inTime || number.Len() > 0 {
				return 0, fmt.Errorf("%w: %q", ErrBadDuration, value)
			}

			inTime = true
		default:
			unit, ok := durationUnit(r, inTime)
			if !ok || number.Len() == 0 {
				return 0, fmt.Errorf("%w: %q", ErrBadDuration, value)
			}

			n, err := strconv.ParseInt(number.String(), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("%w: %q", ErrBadDuration, value)
			}

			total += time.Duration(n) * unit
			hasPart = true

			number.Reset()
		}
	}

	if number.Len() > 0 || !hasPart {
		return 0, fmt.Errorf("%w: %q", ErrBadDuration, value)
	}

	return sign * total, nil
}

// durationUnit maps a duration designator to its length.
func durationUnit(r rune, inTime bool) (time.Duration, bool) {
	if inTime {
		switch r {
		case 'H':
			return time.Hour, true
		case 'M':
			return time.Minute, true
		case 'S':
			return time.Second, true
		}

		return 0, false
	}

	switch r {
	case 'W':
		return 7 * 24 * time.Hour, true
	case 'D':
		return 24 * time.Hour, true
	}

	return 0, false
}

// param returns the first value of a property parameter.
func param(params map[string][]string, name string) string {
	for key, values := range params {
		if strings.EqualFold(key, name) && len(values) > 0 {
			return values[0]
		}
	}

	return ""
}

// unescapeText resolves RFC 5545 TEXT escapes.
func unescapeText(value string) string {
	if !strings.Contains(value, `\`) {
		return value
	}

	var b strings.Builder

	b.Grow(len(value))

	escaped := false

	for _, r := range value {
		if !escaped {
			if r == '\\' {
				escaped = true

				continue
			}

			b.WriteRune(r)

			continue
		}

		escaped = false

		switch r {
		case 'n', 'N':
			b.WriteRune('\n')
		default:
			b.WriteRune(r)
		}
	}

	if escaped {
		b.WriteRune('\\')
	}

	return b.String()
}
