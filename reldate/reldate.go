// Package reldate turns the free-form dates used in feature tables, such as
// "+3 days" or "tomorrow", into calendar dates.
package reldate

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the format share expiry dates are sent in.
const DateLayout = "2006-01-02"

var ErrUnrecognised = errors.New("unrecognised date expression")

var layouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	DateLayout,
	"01/02/2006",
	"02.01.2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

const units = `(seconds?|secs?|minutes?|mins?|hours?|days?|weeks?|fortnights?|months?|years?)`

var (
	offsetPattern = regexp.MustCompile(`^([+-]?)\s*(\d+)\s*` + units + `(\s+ago)?(?:\s+|$)`)
	namedPattern  = regexp.MustCompile(`^(next|last|previous|this)\s+` + units + `(?:\s+|$)`)
)

// Parse resolves s relative to now. It accepts absolute dates in the layouts
// above, the words now, today, midnight, tomorrow and yesterday, and any
// sequence of offsets like "+1 week 2 days", "3 months ago" or "next year".
func Parse(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}

	rest := strings.ToLower(s)
	if rest == "" {
		return time.Time{}, ErrUnrecognised
	}

	t := now
	word, tail, _ := strings.Cut(rest, " ")
	switch word {
	case "now":
		rest = tail
	case "today", "midnight":
		t, rest = midnight(now), tail
	case "tomorrow":
		t, rest = midnight(now).AddDate(0, 0, 1), tail
	case "yesterday":
		t, rest = midnight(now).AddDate(0, 0, -1), tail
	}
	rest = strings.TrimSpace(rest)

	for rest != "" {
		if m := offsetPattern.FindStringSubmatch(rest); m != nil {
			n, err := strconv.Atoi(m[2])
			if err != nil {
				return time.Time{}, fmt.Errorf("%w: %q", ErrUnrecognised, s)
			}
			if m[1] == "-" {
				n = -n
			}
			if m[4] != "" {
				n = -n
			}
			t = shift(t, n, m[3])
			rest = rest[len(m[0]):]
			continue
		}
		if m := namedPattern.FindStringSubmatch(rest); m != nil {
			switch m[1] {
			case "next":
				t = shift(t, 1, m[2])
			case "last", "previous":
				t = shift(t, -1, m[2])
			}
			rest = rest[len(m[0]):]
			continue
		}
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnrecognised, s)
	}

	return t, nil
}

// Normalize parses s relative to now and formats the result as YYYY-MM-DD.
func Normalize(s string, now time.Time) (string, error) {
	t, err := Parse(s, now)
	if err != nil {
		return "", err
	}
	return t.Format(DateLayout), nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func shift(t time.Time, n int, unit string) time.Time {
	switch strings.TrimSuffix(unit, "s") {
	case "sec", "second":
		return t.Add(time.Duration(n) * time.Second)
	case "min", "minute":
		return t.Add(time.Duration(n) * time.Minute)
	case "hour":
		return t.Add(time.Duration(n) * time.Hour)
	case "day":
		return t.AddDate(0, 0, n)
	case "week":
		return t.AddDate(0, 0, 7*n)
	case "fortnight":
		return t.AddDate(0, 0, 14*n)
	case "month":
		return t.AddDate(0, n, 0)
	case "year":
		return t.AddDate(n, 0, 0)
	}
	return t
}
