// Package timeutil provides timezone-aware day arithmetic for the report cycle.
// All schools run in Tashkent (UTC+5, no DST), so that zone is the default,
// but every helper takes an explicit *time.Location.
package timeutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// TashkentTZ is the fallback zone used when tzdata cannot resolve Asia/Tashkent.
// Uzbekistan abolished DST in 1992, so the offset is constant year-round.
var TashkentTZ = time.FixedZone("Asia/Tashkent", 5*60*60)

// Common layouts.
const (
	// LayoutDate is the ISO date layout (YYYY-MM-DD).
	LayoutDate = "2006-01-02"
	// LayoutClock is the HH:MM layout.
	LayoutClock = "15:04"
	// LayoutReportDate is the DD.MM.YYYY layout shown to guardians.
	LayoutReportDate = "02.01.2006"
	// LayoutSlot identifies a day and a minute: "2006-01-02 15:04".
	LayoutSlot = "2006-01-02 15:04"
)

// LoadLocation resolves a zone name. Asia/Tashkent falls back to TashkentTZ.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return TashkentTZ, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		if name == TashkentTZ.String() {
			return TashkentTZ, nil
		}
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return loc, nil
}

// StartOfDay returns 00:00:00 of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns 23:59:59.999 of t's day in loc.
// Millisecond precision matches how grade dates are stored.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 23, 59, 59, int(999*time.Millisecond), loc)
}

// DayBounds returns [StartOfDay, EndOfDay] for t.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	return StartOfDay(t, loc), EndOfDay(t, loc)
}

// FormatReportDate formats t as DD.MM.YYYY in loc.
func FormatReportDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(LayoutReportDate)
}

// SlotKey identifies the day and minute of t in loc.
func SlotKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(LayoutSlot)
}

// ══════════════════════════════════════════════════════════════════════════════
// CLOCK TIME (HH:MM)
// ══════════════════════════════════════════════════════════════════════════════

var clockPattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):([0-5][0-9])$`)

// ClockTime is a wall-clock hour and minute.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClock parses "H:MM" or "HH:MM".
func ParseClock(s string) (ClockTime, error) {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return ClockTime{}, fmt.Errorf("invalid time %q: must be HH:MM (e.g. 18:00)", s)
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	return ClockTime{Hour: h, Minute: mm}, nil
}

// Matches reports whether t (in loc) is within this hour:minute.
func (c ClockTime) Matches(t time.Time, loc *time.Location) bool {
	l := t.In(loc)
	return l.Hour() == c.Hour && l.Minute() == c.Minute
}

// String returns HH:MM.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ══════════════════════════════════════════════════════════════════════════════
// WEEKDAYS
// ══════════════════════════════════════════════════════════════════════════════

// Uzbek weekday names indexed by time.Weekday.
var uzWeekdays = [...]string{
	"yakshanba",
	"dushanba",
	"seshanba",
	"chorshanba",
	"payshanba",
	"juma",
	"shanba",
}

// WeekdayNameUz returns the Uzbek (Latin) name of a weekday.
func WeekdayNameUz(d time.Weekday) string {
	if d < time.Sunday || d > time.Saturday {
		return ""
	}
	return uzWeekdays[d]
}

// ParseWeekday accepts English ("sunday", "sun") or Uzbek ("yakshanba") names.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		en := strings.ToLower(d.String())
		if s == en || s == en[:3] || s == uzWeekdays[d] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}
