package listing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ExpandYear turns a two-digit year into a four-digit one: 00-69 map to
// 2000-2069, 70-99 to 1970-1999. Longer years are returned unchanged.
func ExpandYear(year int) int {
	switch {
	case year >= 100:
		return year
	case year < 70:
		return 2000 + year
	default:
		return 1900 + year
	}
}

// ParseShortDate parses the "MM-DD-YY" (or "MM-DD-YYYY") dates of DOS style
// listings.
func ParseShortDate(s string) (time.Time, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("bad date %q", s)
	}

	month, err1 := strconv.Atoi(parts[0])
	day, err2 := strconv.Atoi(parts[1])
	year, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, fmt.Errorf("bad date %q", s)
	}
	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("bad month in date %q", s)
	}

	t, err := checkedDate(ExpandYear(year), time.Month(month), day, 0, 0)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: %w", s, err)
	}
	return t, nil
}
