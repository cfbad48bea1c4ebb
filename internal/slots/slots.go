// Package slots models the recurring weekly availability pattern and the
// calendar slots it generates. It is pure date/time logic with no I/O: the
// queue scheduler layers conflict detection and placement on top of it.
package slots

import (
	"fmt"
	"time"
)

// dateLayout and timeLayout are the canonical wire formats for slots.
// Slot identity is exact string equality on both fields, so everything that
// produces a Slot must go through these layouts.
const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Pattern is a recurring weekly availability pattern: the weekdays and the
// times of day at which automatic placement may schedule a post.
//
// Days uses 0 = Sunday … 6 = Saturday. Times are "HH:MM" strings and are
// visited in the order listed — the pattern owner controls intra-day order,
// the model never sorts them. An empty Days or Times means "no valid slots,
// ever".
type Pattern struct {
	Days  []int    `json:"days"`
	Times []string `json:"times"`
}

// Empty reports whether the pattern can never produce a slot.
func (p Pattern) Empty() bool {
	return len(p.Days) == 0 || len(p.Times) == 0
}

// allowsWeekday reports whether wd is one of the pattern's allowed days.
func (p Pattern) allowsWeekday(wd time.Weekday) bool {
	for _, d := range p.Days {
		if d == int(wd) {
			return true
		}
	}
	return false
}

// allowsTime reports whether hhmm matches one of the pattern's times
// exactly. Value equality, never nearest-match.
func (p Pattern) allowsTime(hhmm string) bool {
	for _, t := range p.Times {
		if t == hhmm {
			return true
		}
	}
	return false
}

// Validate checks that every configured time parses as HH:MM and that no
// time appears twice. Days outside 0–6 are rejected.
func (p Pattern) Validate() error {
	seen := make(map[string]struct{}, len(p.Times))
	for _, t := range p.Times {
		if !ValidTime(t) {
			return fmt.Errorf("slots: invalid time %q (want HH:MM)", t)
		}
		if _, dup := seen[t]; dup {
			return fmt.Errorf("slots: duplicate time %q", t)
		}
		seen[t] = struct{}{}
	}
	for _, d := range p.Days {
		if d < 0 || d > 6 {
			return fmt.Errorf("slots: invalid weekday %d (want 0–6)", d)
		}
	}
	return nil
}

// ValidTime reports whether s is a well-formed "HH:MM" string.
func ValidTime(s string) bool {
	_, err := time.Parse(timeLayout, s)
	return err == nil && len(s) == 5
}

// ValidDate reports whether s is a well-formed "2006-01-02" string.
func ValidDate(s string) bool {
	_, err := time.Parse(dateLayout, s)
	return err == nil
}

// Slot is a concrete calendar instant at minute granularity.
type Slot struct {
	Date string `json:"date"` // "2006-01-02"
	Time string `json:"time"` // "15:04"
}

// At resolves the slot to a wall-clock instant in loc.
func (s Slot) At(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout+" "+timeLayout, s.Date+" "+s.Time, loc)
}

// Of returns the slot containing t, truncated to minute granularity.
func Of(t time.Time) Slot {
	return Slot{Date: t.Format(dateLayout), Time: t.Format(timeLayout)}
}

// Allowed reports whether the slot falls on an allowed weekday at an allowed
// time of day. The weekday is evaluated in loc.
func Allowed(p Pattern, s Slot, loc *time.Location) bool {
	instant, err := s.At(loc)
	if err != nil {
		return false
	}
	return p.allowsWeekday(instant.Weekday()) && p.allowsTime(s.Time)
}

// Cursor enumerates candidate slots forward from a starting instant: days in
// strictly increasing calendar order, times within each day in the order the
// pattern lists them. The walk is bounded to horizonDays calendar days and
// never yields a slot before the starting instant.
//
// A Cursor is single-use per walk; Reset rewinds it to its initial state.
type Cursor struct {
	pattern Pattern
	loc     *time.Location
	start   time.Time
	horizon int

	day       time.Time // midnight of the day currently being visited
	timeIdx   int
	remaining int
}

// NewCursor returns a cursor that starts searching at start (the start day
// itself is included) and gives up after horizonDays calendar days. An empty
// pattern yields an immediately exhausted cursor.
func NewCursor(p Pattern, start time.Time, horizonDays int, loc *time.Location) *Cursor {
	c := &Cursor{pattern: p, loc: loc, start: start}
	if !p.Empty() && horizonDays > 0 {
		c.horizon = horizonDays
	}
	c.Reset()
	return c
}

// Reset rewinds the cursor to the first candidate.
func (c *Cursor) Reset() {
	s := c.start.In(c.loc)
	c.day = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, c.loc)
	c.timeIdx = 0
	c.remaining = c.horizon
}

// Next returns the next candidate slot, or ok=false when the horizon is
// exhausted. Every returned slot satisfies Allowed and resolves to an
// instant at or after the cursor's starting instant.
func (c *Cursor) Next() (Slot, bool) {
	for c.remaining > 0 {
		if c.pattern.allowsWeekday(c.day.Weekday()) {
			for c.timeIdx < len(c.pattern.Times) {
				hhmm := c.pattern.Times[c.timeIdx]
				c.timeIdx++

				s := Slot{Date: c.day.Format(dateLayout), Time: hhmm}
				instant, err := s.At(c.loc)
				if err != nil {
					// Malformed configured time; skip it rather than abort the walk.
					continue
				}
				if instant.Before(c.start) {
					continue
				}
				return s, true
			}
		}
		c.day = c.day.AddDate(0, 0, 1)
		c.timeIdx = 0
		c.remaining--
	}
	return Slot{}, false
}
