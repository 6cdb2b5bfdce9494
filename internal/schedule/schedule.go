package schedule

import (
	"fmt"
	"iter"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Slot is one bookable (date, time) pair. Both fields use the canonical
// key layouts so slots compare and hash as plain strings.
type Slot struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// WeekdayMask is a bitmask of working days, bit 0 = Sunday.
type WeekdayMask uint8

func MaskOf(days ...time.Weekday) WeekdayMask {
	var m WeekdayMask
	for _, d := range days {
		m |= 1 << uint(d)
	}
	return m
}

func (m WeekdayMask) Has(d time.Weekday) bool {
	return m&(1<<uint(d)) != 0
}

// Schedule is a provider's declarative availability: which weekdays they
// work, the working window in minutes from midnight, and the slot length.
type Schedule struct {
	Days        WeekdayMask
	DayStartMin int
	DayEndMin   int
	SlotMinutes int
}

func (s Schedule) Valid() bool {
	return s.Days != 0 &&
		s.SlotMinutes > 0 &&
		s.DayStartMin >= 0 &&
		s.DayEndMin > s.DayStartMin &&
		s.DayEndMin <= 24*60
}

// Slots yields every candidate slot between from and to (inclusive dates),
// in chronological order. The sequence is lazy and can be ranged over any
// number of times; an invalid schedule yields nothing.
func (s Schedule) Slots(from, to time.Time) iter.Seq[Slot] {
	return func(yield func(Slot) bool) {
		if !s.Valid() {
			return
		}
		last := dateOnly(to)
		for d := dateOnly(from); !d.After(last); d = d.AddDate(0, 0, 1) {
			if !s.Days.Has(d.Weekday()) {
				continue
			}
			date := d.Format(DateLayout)
			for m := s.DayStartMin; m+s.SlotMinutes <= s.DayEndMin; m += s.SlotMinutes {
				if !yield(Slot{Date: date, Time: MinuteLabel(m)}) {
					return
				}
			}
		}
	}
}

// Contains reports whether (date, tm) belongs to the candidate slot set.
// A request for a pair outside this set is malformed input, not a slot
// that happens to be taken.
func (s Schedule) Contains(date, tm string) bool {
	if !s.Valid() {
		return false
	}
	d, err := ParseDate(date)
	if err != nil || !s.Days.Has(d.Weekday()) {
		return false
	}
	m, err := parseMinute(tm)
	if err != nil {
		return false
	}
	if m < s.DayStartMin || m+s.SlotMinutes > s.DayEndMin {
		return false
	}
	return (m-s.DayStartMin)%s.SlotMinutes == 0
}

// ParseDate parses a canonical date key into a UTC midnight instant.
func ParseDate(date string) (time.Time, error) {
	return time.Parse(DateLayout, date)
}

// StartsAt returns the UTC instant at which the (date, tm) slot begins.
func StartsAt(date, tm string) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	m, err := parseMinute(tm)
	if err != nil {
		return time.Time{}, err
	}
	return d.Add(time.Duration(m) * time.Minute), nil
}

func MinuteLabel(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func parseMinute(tm string) (int, error) {
	t, err := time.Parse(TimeLayout, tm)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
