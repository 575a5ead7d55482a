package scheduler

import (
	"fmt"

	"github.com/arnavshah/coordination-api/pkg/models"
)

// ValidateRoom checks a room payload before an allocation pass. It returns
// nil when the room is usable.
func ValidateRoom(room models.Room) *models.ValidationError {
	v := &models.ValidationError{}

	if room.OwnerID == "" {
		v.Add("ownerId", "required")
	}
	if _, err := ParseDate(room.StartDate); err != nil {
		v.Add("startDate", "must be YYYY-MM-DD")
	}

	start, errStart := ParseClock(room.Settings.StartTime)
	end, errEnd := ParseClock(room.Settings.EndTime)
	switch {
	case errStart != nil:
		v.Add("settings.startTime", "must be HH:MM")
	case errEnd != nil:
		v.Add("settings.endTime", "must be HH:MM")
	case start%SlotMinutes != 0 || end%SlotMinutes != 0:
		v.Add("settings", fmt.Sprintf("times must be %d-minute aligned", SlotMinutes))
	case end <= start:
		v.Add("settings.endTime", "must be after startTime")
	}
	for i, d := range room.Settings.Days {
		if d < 0 || d > 6 {
			v.Add(fmt.Sprintf("settings.days[%d]", i), "must be between 0 and 6")
		}
	}

	if len(room.Members) == 0 {
		v.Add("members", "at least one member is required")
	}
	seen := make(map[string]bool, len(room.Members))
	owners := 0
	for i, m := range room.Members {
		field := fmt.Sprintf("members[%d]", i)
		if m.ID == "" {
			v.Add(field+".id", "required")
			continue
		}
		if seen[m.ID] {
			v.Add(field+".id", "duplicate member id: "+m.ID)
		}
		seen[m.ID] = true

		if m.IsOwner && m.ID != room.OwnerID {
			v.Add(field+".isOwner", "only the room owner may be flagged as owner")
		}
		if m.ID == room.OwnerID {
			owners++
			continue
		}
		if m.RequiredSlots == nil {
			v.Add(field+".requiredSlots", "required")
		} else if *m.RequiredSlots < 0 {
			v.Add(field+".requiredSlots", "must not be negative")
		}
		for j, a := range m.Availability {
			if !validSlotRef(a) {
				v.Add(fmt.Sprintf("%s.availability[%d]", field, j), "must be a YYYY-MM-DD date and an aligned HH:MM time")
			}
		}
	}
	switch {
	case room.OwnerID == "":
	case owners == 0:
		v.Add("members", "owner must be listed as a member")
	case owners > 1:
		v.Add("members", "owner listed more than once")
	}

	for i, a := range room.Assignments {
		field := fmt.Sprintf("assignments[%d]", i)
		if _, err := ParseDate(a.Date); err != nil {
			v.Add(field+".date", "must be YYYY-MM-DD")
		}
		if _, _, err := BlockBounds(models.TimeBlock{StartTime: a.StartTime, EndTime: a.EndTime}); err != nil {
			v.Add(field, err.Error())
		}
	}

	if !v.HasErrors() {
		return nil
	}
	return v
}

func validSlotRef(ref models.SlotRef) bool {
	if _, err := ParseDate(ref.Date); err != nil {
		return false
	}
	m, err := ParseClock(ref.Time)
	return err == nil && m%SlotMinutes == 0 && m < minutesPerDay
}
