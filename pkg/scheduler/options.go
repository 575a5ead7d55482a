package scheduler

import (
	"fmt"
	"sort"

	"github.com/arnavshah/coordination-api/pkg/models"
)

// GenerateOptionsFromAvailableSlots derives every hour-aligned window of
// requiredDuration minutes that fits inside one contiguous run of the given
// 30-minute slot offsets. Windows are returned run by run, earliest first,
// without duplicates.
func GenerateOptionsFromAvailableSlots(availableSlots []int, requiredDuration int) []models.TimeSlotOption {
	options := []models.TimeSlotOption{}
	if len(availableSlots) == 0 || requiredDuration <= 0 {
		return options
	}

	sorted := append([]int(nil), availableSlots...)
	sort.Ints(sorted)

	// Partition into runs of slots exactly SlotMinutes apart
	var runs [][]int
	current := []int{sorted[0]}
	for _, slot := range sorted[1:] {
		last := current[len(current)-1]
		switch slot - last {
		case 0:
			continue
		case SlotMinutes:
			current = append(current, slot)
		default:
			runs = append(runs, current)
			current = []int{slot}
		}
	}
	runs = append(runs, current)

	seen := make(map[models.TimeSlotOption]bool)
	for _, run := range runs {
		present := make(map[int]bool, len(run))
		for _, slot := range run {
			present[slot] = true
		}
		rangeStart := run[0]
		rangeEnd := run[len(run)-1] + SlotMinutes

		windowStart := (rangeStart + 59) / 60 * 60
		for ; windowStart+requiredDuration <= rangeEnd; windowStart += 60 {
			complete := true
			for sub := windowStart; sub < windowStart+requiredDuration; sub += SlotMinutes {
				if !present[sub] {
					complete = false
					break
				}
			}
			if !complete {
				continue
			}

			opt := models.TimeSlotOption{
				StartTime: FormatClock(windowStart),
				EndTime:   FormatClock(windowStart + requiredDuration),
			}
			if seen[opt] {
				continue
			}
			seen[opt] = true
			options = append(options, opt)
		}
	}
	return options
}

// GenerateMemberTimeSlotOptions collects, for each unsatisfied member, the
// slot offsets inside the block where the timetable lists them as available
// and turns them into candidate windows. A member with no usable slots gets
// an empty list.
func GenerateMemberTimeSlotOptions(unsatisfied []models.UnsatisfiedMember, block models.TimeBlock, timetable models.Timetable, requiredDuration int) (map[string][]models.TimeSlotOption, error) {
	if requiredDuration <= 0 || requiredDuration%SlotMinutes != 0 {
		return nil, fmt.Errorf("%w: required duration %d is not a positive multiple of %d", ErrInvalidArgument, requiredDuration, SlotMinutes)
	}
	start, end, err := BlockBounds(block)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]models.TimeSlotOption, len(unsatisfied))
	for _, member := range unsatisfied {
		var offsets []int
		for m := start; m < end; m += SlotMinutes {
			slot, ok := timetable[SlotKey(block.StartDate, FormatClock(m))]
			if ok && slot.Has(member.MemberID) {
				offsets = append(offsets, m)
			}
		}
		result[member.MemberID] = GenerateOptionsFromAvailableSlots(offsets, requiredDuration)
	}
	return result, nil
}

// MergeAllTimeSlotOptions returns the union of every member's options sorted
// by start time, then end time.
func MergeAllTimeSlotOptions(memberOptions map[string][]models.TimeSlotOption) []models.TimeSlotOption {
	seen := make(map[models.TimeSlotOption]bool)
	merged := []models.TimeSlotOption{}
	for _, options := range memberOptions {
		for _, opt := range options {
			if seen[opt] {
				continue
			}
			seen[opt] = true
			merged = append(merged, opt)
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].StartTime != merged[j].StartTime {
			return merged[i].StartTime < merged[j].StartTime
		}
		return merged[i].EndTime < merged[j].EndTime
	})
	return merged
}
