package scheduler

import (
	"fmt"
	"time"

	"github.com/arnavshah/coordination-api/pkg/models"
)

const (
	// SlotMinutes is the granularity of the weekly grid
	SlotMinutes = 30
	// DateLayout is the layout of slot-key dates
	DateLayout = "2006-01-02"

	minutesPerDay = 24 * 60
)

// SlotKey builds the timetable key for a date and a "HH:MM" clock value
func SlotKey(date, clock string) string {
	return date + "-" + clock
}

// ParseClock converts a zero-padded "HH:MM" string to minutes from midnight.
// "24:00" is accepted so that a block may end at midnight.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: clock %q", ErrMalformedTime, s)
	}
	digits := [4]byte{s[0], s[1], s[3], s[4]}
	for _, d := range digits {
		if d < '0' || d > '9' {
			return 0, fmt.Errorf("%w: clock %q", ErrMalformedTime, s)
		}
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%w: clock %q out of range", ErrMalformedTime, s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes from midnight as "HH:MM"
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseDate parses a "YYYY-MM-DD" slot-key date in UTC
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrMalformedTime, s)
	}
	return t, nil
}

// BlockBounds returns the block's start and end in minutes, checking that
// both ends sit on the slot grid and that the block is not empty.
func BlockBounds(block models.TimeBlock) (int, int, error) {
	start, err := ParseClock(block.StartTime)
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseClock(block.EndTime)
	if err != nil {
		return 0, 0, err
	}
	if start%SlotMinutes != 0 || end%SlotMinutes != 0 {
		return 0, 0, fmt.Errorf("%w: block %s-%s is not %d-minute aligned", ErrMalformedTime, block.StartTime, block.EndTime, SlotMinutes)
	}
	if end <= start {
		return 0, 0, fmt.Errorf("%w: block ends at %s before it starts at %s", ErrInvalidArgument, block.EndTime, block.StartTime)
	}
	return start, end, nil
}

// BlockSlots is the slot capacity of a block
func BlockSlots(block models.TimeBlock) (int, error) {
	start, end, err := BlockBounds(block)
	if err != nil {
		return 0, err
	}
	return (end - start) / SlotMinutes, nil
}

// WeekStart returns the ISO week start (Monday) of the week containing date,
// formatted as a slot-key date.
func WeekStart(date string) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset).Format(DateLayout), nil
}

var dayNames = map[string][7]string{
	"en": {"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"},
	"ko": {"일요일", "월요일", "화요일", "수요일", "목요일", "금요일", "토요일"},
}

// DayNames returns weekday names indexed from Sunday for a supported locale
func DayNames(locale string) ([7]string, bool) {
	names, ok := dayNames[locale]
	return names, ok
}
