// Package humanfmt formats byte counts, item counts and durations for logs.
package humanfmt

import (
	"fmt"
	"strconv"
	"time"
)

var byteUnits = []string{"KiB", "MiB", "GiB", "TiB"}

// Bytes formats b with IEC binary units, e.g. "1.23 GiB".
func Bytes(b int64) string {
	if b < 1024 {
		return fmt.Sprintf("%d B", b)
	}
	v := float64(b) / 1024
	unit := 0
	for v >= 1024 && unit < len(byteUnits)-1 {
		v /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", v, byteUnits[unit])
}

var countUnits = []struct {
	size   int64
	suffix string
}{
	{1_000_000_000, "B"},
	{1_000_000, "M"},
	{1_000, "K"},
}

// Count formats n compactly, e.g. "1.23M", "456.00K", "789".
func Count(n int64) string {
	for _, u := range countUnits {
		if n >= u.size {
			return fmt.Sprintf("%.2f%s", float64(n)/float64(u.size), u.suffix)
		}
	}
	return strconv.FormatInt(n, 10)
}

// Duration formats d for humans: "2h15m", "1m30s", "1.23s", "45.6ms".
func Duration(d time.Duration) string {
	switch {
	case d < 0:
		return d.String()
	case d >= time.Hour:
		return trimZero(fmt.Sprintf("%dh%dm", d/time.Hour, (d%time.Hour)/time.Minute), "0m")
	case d >= time.Minute:
		return trimZero(fmt.Sprintf("%dm%ds", d/time.Minute, (d%time.Minute)/time.Second), "0s")
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	case d >= time.Microsecond:
		return fmt.Sprintf("%.1fµs", float64(d)/float64(time.Microsecond))
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}

// trimZero drops a trailing zero component such as "0m" from "2h0m".
func trimZero(s, zero string) string {
	if len(s) > len(zero) && s[len(s)-len(zero):] == zero && !isDigit(s[len(s)-len(zero)-1]) {
		return s[:len(s)-len(zero)]
	}
	return s
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
