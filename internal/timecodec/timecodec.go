package timecodec

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Supported token layouts.
const (
	FormatOrdinalSpan = "ordinal-span"
	FormatCalendar    = "calendar"
)

const (
	ordinalLen  = 14
	calendarLen = 12
	startMarker = "_s"
	endMarker   = "_e"
)

// PublishLayout is the time layout embedded in published file names.
const PublishLayout = "2006-01-02_15-04"

// Contract describes which file names belong to a stream and where their
// timestamp lives.
type Contract struct {
	Prefix string
	Suffix string
	Format string
	// CalendarOffset is the byte offset of the calendar token. Only used by
	// FormatCalendar.
	CalendarOffset int
}

// ParseOrdinal decodes a YYYYDDDHHMMSSs token: year, day of year, hour,
// minute, and tenths of a second expressed over three digits. The result is
// UTC with millisecond resolution.
func ParseOrdinal(text string) (time.Time, bool) {
	if len(text) != ordinalLen || !allDigits(text) {
		return time.Time{}, false
	}
	year := atoi(text[0:4])
	day := atoi(text[4:7])
	hour := atoi(text[7:9])
	minute := atoi(text[9:11])
	decis := atoi(text[11:14])
	if day < 1 || day > daysIn(year) || hour > 23 || minute > 59 || decis > 609 {
		return time.Time{}, false
	}
	t := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, day-1).
		Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute).
		Add(time.Duration(decis) * 100 * time.Millisecond)
	return t, true
}

// FormatOrdinal is the inverse of ParseOrdinal. Sub-decisecond precision is
// truncated.
func FormatOrdinal(t time.Time) string {
	t = t.UTC()
	decis := t.Second()*10 + t.Nanosecond()/int(100*time.Millisecond)
	return fmt.Sprintf("%04d%03d%02d%02d%03d", t.Year(), t.YearDay(), t.Hour(), t.Minute(), decis)
}

// ParseCalendar decodes a YYYYMMDDHHmm token as UTC.
func ParseCalendar(text string) (time.Time, bool) {
	if len(text) != calendarLen || !allDigits(text) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("200601021504", text, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// CenterTime returns the representative instant of a file name under the
// contract. Names outside the contract, or with missing or malformed tokens,
// report false.
func CenterTime(name string, c Contract) (time.Time, bool) {
	if !strings.HasPrefix(name, c.Prefix) || !strings.HasSuffix(name, c.Suffix) {
		return time.Time{}, false
	}
	if len(name) < len(c.Prefix)+len(c.Suffix) {
		return time.Time{}, false
	}
	switch c.Format {
	case FormatCalendar:
		start := c.CalendarOffset
		if start < 0 || start+calendarLen > len(name) {
			return time.Time{}, false
		}
		return ParseCalendar(name[start : start+calendarLen])
	case FormatOrdinalSpan, "":
		start, ok := markerToken(name, startMarker)
		if !ok {
			return time.Time{}, false
		}
		end, ok := markerToken(name, endMarker)
		if !ok {
			return time.Time{}, false
		}
		t0, ok := ParseOrdinal(start)
		if !ok {
			return time.Time{}, false
		}
		t1, ok := ParseOrdinal(end)
		if !ok {
			return time.Time{}, false
		}
		return Midpoint(t0, t1), true
	default:
		return time.Time{}, false
	}
}

// Midpoint returns the mean of two instants floored to the millisecond.
func Midpoint(a, b time.Time) time.Time {
	sum := a.UnixMilli() + b.UnixMilli()
	mid := sum / 2
	if sum < 0 && sum%2 != 0 {
		mid--
	}
	return time.UnixMilli(mid).UTC()
}

// Bucket truncates t to the preceding multiple of minutes within its hour,
// dropping seconds. Values outside 1..60 leave the minute untouched.
func Bucket(t time.Time, minutes int) time.Time {
	t = t.UTC()
	m := t.Minute()
	if minutes > 0 && minutes <= 60 {
		m = minutes * (m / minutes)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), m, 0, 0, time.UTC)
}

// PublishStamp formats the bucketed instant for published file names.
func PublishStamp(t time.Time, minutes int) string {
	return Bucket(t, minutes).Format(PublishLayout)
}

func markerToken(name, marker string) (string, bool) {
	idx := strings.Index(name, marker)
	if idx < 0 {
		return "", false
	}
	start := idx + len(marker)
	if start+ordinalLen > len(name) {
		return "", false
	}
	return name[start : start+ordinalLen], true
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// atoi is only called on tokens already checked by allDigits.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func daysIn(year int) int {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay()
}
