package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mondaySchedule() Schedule {
	return Schedule{
		Days:        MaskOf(time.Monday),
		DayStartMin: 9 * 60,
		DayEndMin:   10 * 60,
		SlotMinutes: 30,
	}
}

func collect(s Schedule, from, to time.Time) []Slot {
	var out []Slot
	for slot := range s.Slots(from, to) {
		out = append(out, slot)
	}
	return out
}

func TestSlotsSingleMonday(t *testing.T) {
	s := mondaySchedule()

	// 2026-09-07 is a Monday.
	from := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	to := from

	got := collect(s, from, to)
	require.Equal(t, []Slot{
		{Date: "2026-09-07", Time: "09:00"},
		{Date: "2026-09-07", Time: "09:30"},
	}, got)
}

func TestSlotsSkipsNonWorkingDays(t *testing.T) {
	s := mondaySchedule()

	// Full week starting Monday: only the two Monday slots come out.
	from := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 6)

	got := collect(s, from, to)
	require.Len(t, got, 2)
	for _, slot := range got {
		assert.Equal(t, "2026-09-07", slot.Date)
	}
}

func TestSlotsRestartable(t *testing.T) {
	s := mondaySchedule()
	from := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 13)

	first := collect(s, from, to)
	second := collect(s, from, to)
	require.Equal(t, first, second)
	require.Len(t, first, 4)
}

func TestSlotsEarlyStop(t *testing.T) {
	s := mondaySchedule()
	from := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	var got []Slot
	for slot := range s.Slots(from, from.AddDate(0, 0, 30)) {
		got = append(got, slot)
		break
	}
	require.Equal(t, []Slot{{Date: "2026-09-07", Time: "09:00"}}, got)
}

func TestSlotsInvalidSchedule(t *testing.T) {
	broken := []Schedule{
		{},
		{Days: MaskOf(time.Monday), DayStartMin: 540, DayEndMin: 600},                    // zero slot length
		{Days: MaskOf(time.Monday), DayStartMin: 600, DayEndMin: 540, SlotMinutes: 30},   // inverted window
		{Days: MaskOf(time.Monday), DayStartMin: 540, DayEndMin: 25 * 60, SlotMinutes: 30}, // past midnight
	}

	from := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	for _, s := range broken {
		assert.False(t, s.Valid())
		assert.Empty(t, collect(s, from, from.AddDate(0, 0, 7)))
	}
}

func TestContains(t *testing.T) {
	s := mondaySchedule()

	tests := []struct {
		name string
		date string
		tm   string
		want bool
	}{
		{"first slot", "2026-09-07", "09:00", true},
		{"last slot", "2026-09-07", "09:30", true},
		{"slot would overrun window", "2026-09-07", "10:00", false},
		{"off the slot grid", "2026-09-07", "09:15", false},
		{"before the window", "2026-09-07", "08:30", false},
		{"not a working day", "2026-09-08", "09:00", false},
		{"garbage date", "soon", "09:00", false},
		{"garbage time", "2026-09-07", "morning", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Contains(tt.date, tt.tm))
		})
	}
}

func TestStartsAt(t *testing.T) {
	at, err := StartsAt("2026-09-07", "09:30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 7, 9, 30, 0, 0, time.UTC), at)

	_, err = StartsAt("2026-99-07", "09:30")
	require.Error(t, err)
}

func TestWeekdayMask(t *testing.T) {
	m := MaskOf(time.Monday, time.Friday)
	assert.True(t, m.Has(time.Monday))
	assert.True(t, m.Has(time.Friday))
	assert.False(t, m.Has(time.Sunday))
}
