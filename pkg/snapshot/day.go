package snapshot

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// DayLayout is the fixed-width layout of snapshot days and `changed` values.
// Because it is fixed width, string comparison of two valid days matches
// chronological order.
const DayLayout = "20060102"

// ParseDay validates s as a YYYYMMDD calendar day.
func ParseDay(s string) (time.Time, error) {
	if len(s) != len(DayLayout) {
		return time.Time{}, fmt.Errorf("day %q: want %d digits", s, len(DayLayout))
	}
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("day %q: %w", s, err)
	}
	return t, nil
}

// ValidDay reports whether s is a YYYYMMDD calendar day.
func ValidDay(s string) bool {
	_, err := ParseDay(s)
	return err == nil
}

// DayFromName extracts the day from a snapshot file name such as
// "20200101.as-org2info.txt.gz". Directory components are ignored.
func DayFromName(name string) (string, bool) {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	day, _, _ := strings.Cut(base, ".")
	if !ValidDay(day) {
		return "", false
	}
	return day, true
}
