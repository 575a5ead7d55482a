package scheduler

import (
	"fmt"
	"math"
	"time"

	"github.com/arnavshah/coordination-api/pkg/models"
)

// Scheduler runs one weekly allocation pass for a coordination room
type Scheduler struct {
	Room        models.Room
	Timetable   models.Timetable
	Needs       *NeedTracker
	Assignments []models.Assignment

	dates     []gridDate
	slotStart int
	slotEnd   int
	occupied  map[string]string
	roster    []models.Member
}

type gridDate struct {
	key string
	day time.Time
}

// ContestedBlock is a run of free slots that several unsatisfied members want
type ContestedBlock struct {
	Block   models.TimeBlock
	Members []models.UnsatisfiedMember
}

// NewScheduler validates the room and builds its weekly grid and timetable
func NewScheduler(room models.Room) (*Scheduler, error) {
	if verr := ValidateRoom(room); verr != nil {
		return nil, verr
	}

	s := &Scheduler{
		Room:      room,
		Timetable: make(models.Timetable),
		occupied:  make(map[string]string),
	}
	s.slotStart, _ = ParseClock(room.Settings.StartTime)
	s.slotEnd, _ = ParseClock(room.Settings.EndTime)

	first, _ := ParseDate(room.StartDate)
	allowed := make(map[int]bool, len(room.Settings.Days))
	for _, d := range room.Settings.Days {
		allowed[d] = true
	}
	for i := 0; i < 7; i++ {
		day := first.AddDate(0, 0, i)
		if len(allowed) > 0 && !allowed[int(day.Weekday())] {
			continue
		}
		gd := gridDate{key: day.Format(DateLayout), day: day}
		s.dates = append(s.dates, gd)
		for m := s.slotStart; m < s.slotEnd; m += SlotMinutes {
			s.Timetable[SlotKey(gd.key, FormatClock(m))] = models.SlotAvailability{Available: []models.AvailableMember{}}
		}
	}

	for _, m := range room.Members {
		if m.ID == room.OwnerID {
			continue
		}
		s.roster = append(s.roster, m)
		for _, a := range m.Availability {
			key := SlotKey(a.Date, a.Time)
			slot, inGrid := s.Timetable[key]
			if !inGrid || slot.Has(m.ID) {
				continue
			}
			slot.Available = append(slot.Available, models.AvailableMember{MemberID: m.ID, Priority: m.Priority})
			s.Timetable[key] = slot
		}
	}

	needs, err := NewNeedTracker(s.roster)
	if err != nil {
		return nil, err
	}
	s.Needs = needs
	return s, nil
}

// Prefill records existing assignments. Their slots become occupied and
// count towards the holder's requirement.
func (s *Scheduler) Prefill(assignments []models.Assignment) error {
	for _, asgn := range assignments {
		start, end, err := BlockBounds(models.TimeBlock{StartTime: asgn.StartTime, EndTime: asgn.EndTime})
		if err != nil {
			return fmt.Errorf("assignment for %s: %w", asgn.MemberID, err)
		}
		for m := start; m < end; m += SlotMinutes {
			s.occupied[SlotKey(asgn.Date, FormatClock(m))] = asgn.MemberID
		}
		if _, err := s.Needs.Need(asgn.MemberID); err == nil {
			_ = s.Needs.Assign(asgn.MemberID, (end-start)/SlotMinutes)
		}
	}
	return nil
}

func (s *Scheduler) free(key string) bool {
	if _, inGrid := s.Timetable[key]; !inGrid {
		return false
	}
	_, taken := s.occupied[key]
	return !taken
}

func (s *Scheduler) needs(memberID string) int {
	need, err := s.Needs.Need(memberID)
	if err != nil {
		return 0
	}
	return need.NeededSlots
}

// AssignExclusive gives members windows nobody else still wants. Members are
// visited in priority order and passes repeat until nothing changes.
func (s *Scheduler) AssignExclusive() {
	for progress := true; progress; {
		progress = false
		for _, id := range s.Needs.Members() {
			need := s.needs(id)
			if need == 0 {
				continue
			}
			if s.assignExclusiveWindow(id, need) {
				progress = true
			}
		}
	}
}

func (s *Scheduler) assignExclusiveWindow(memberID string, need int) bool {
	for _, d := range s.dates {
		var offsets []int
		for m := s.slotStart; m < s.slotEnd; m += SlotMinutes {
			key := SlotKey(d.key, FormatClock(m))
			if !s.free(key) || !s.Timetable[key].Has(memberID) {
				continue
			}
			if s.contested(key, memberID) {
				continue
			}
			offsets = append(offsets, m)
		}

		options := GenerateOptionsFromAvailableSlots(offsets, need*SlotMinutes)
		if len(options) == 0 {
			continue
		}
		opt := options[0]
		start, _ := ParseClock(opt.StartTime)
		end, _ := ParseClock(opt.EndTime)
		for m := start; m < end; m += SlotMinutes {
			s.occupied[SlotKey(d.key, FormatClock(m))] = memberID
		}
		_ = s.Needs.Assign(memberID, need)
		s.Assignments = append(s.Assignments, models.Assignment{
			MemberID:  memberID,
			Date:      d.key,
			StartTime: opt.StartTime,
			EndTime:   opt.EndTime,
		})
		return true
	}
	return false
}

// contested reports whether any other unsatisfied member wants the slot
func (s *Scheduler) contested(key, memberID string) bool {
	for _, a := range s.Timetable[key].Available {
		if a.MemberID != memberID && s.needs(a.MemberID) > 0 {
			return true
		}
	}
	return false
}

// ContestedBlocks finds runs of free slots wanted by at least two unsatisfied
// members. A member belongs to at most one block per pass.
func (s *Scheduler) ContestedBlocks() []ContestedBlock {
	claimed := make(map[string]bool)
	var blocks []ContestedBlock

	for _, d := range s.dates {
		runStart := -1
		runMembers := make(map[string]bool)

		closeRun := func(runEnd int) {
			if runStart < 0 {
				return
			}
			block := ContestedBlock{
				Block: models.TimeBlock{
					DayOfWeek: int(d.day.Weekday()),
					StartDate: d.key,
					StartTime: FormatClock(runStart),
					EndTime:   FormatClock(runEnd),
					DateObj:   d.day,
				},
			}
			for _, id := range s.Needs.Members() {
				if runMembers[id] {
					need, _ := s.Needs.Need(id)
					block.Members = append(block.Members, need)
					claimed[id] = true
				}
			}
			blocks = append(blocks, block)
			runStart = -1
			runMembers = make(map[string]bool)
		}

		for m := s.slotStart; m < s.slotEnd; m += SlotMinutes {
			key := SlotKey(d.key, FormatClock(m))
			var contenders []string
			if s.free(key) {
				for _, a := range s.Timetable[key].Available {
					if !claimed[a.MemberID] && s.needs(a.MemberID) > 0 {
						contenders = append(contenders, a.MemberID)
					}
				}
			}
			if len(contenders) < 2 {
				closeRun(m)
				continue
			}
			if runStart >= 0 && !overlaps(runMembers, contenders) {
				closeRun(m)
			}
			if runStart < 0 {
				runStart = m
			}
			for _, id := range contenders {
				runMembers[id] = true
			}
		}
		closeRun(s.slotEnd)
	}
	return blocks
}

func overlaps(set map[string]bool, ids []string) bool {
	for _, id := range ids {
		if set[id] {
			return true
		}
	}
	return false
}

// Run performs the full pass: exclusive assignment, conflict detection and
// one negotiation per contested block.
func (s *Scheduler) Run(builder *Builder) (*models.PassResult, error) {
	s.AssignExclusive()

	result := &models.PassResult{
		Assignments:  append([]models.Assignment{}, s.Assignments...),
		Negotiations: []*models.Negotiation{},
	}
	for _, cb := range s.ContestedBlocks() {
		n, err := builder.Propose(s.Room.ID, cb.Block, cb.Members, s.Timetable, s.roster, s.Room.OwnerID, s.Room.StartDate, 0)
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", cb.Block.Key(), err)
		}
		result.Negotiations = append(result.Negotiations, n)
	}
	result.Unsatisfied = s.Needs.Unsatisfied()
	if result.Unsatisfied == nil {
		result.Unsatisfied = []models.UnsatisfiedMember{}
	}
	result.FairnessScore = s.CalculateFairnessScore()
	return result, nil
}

// CalculateFairnessScore returns a percentage (0-100) representing how evenly
// requirements are fulfilled. 100% means every member holds the same share
// of what they asked for.
func (s *Scheduler) CalculateFairnessScore() float64 {
	var ratios []float64
	for _, id := range s.Needs.Members() {
		need, _ := s.Needs.Need(id)
		if need.OriginallyNeededSlots == 0 {
			continue
		}
		ratio := float64(s.Needs.Assigned(id)) / float64(need.OriginallyNeededSlots)
		if ratio > 1 {
			ratio = 1
		}
		ratios = append(ratios, ratio)
	}
	if len(ratios) == 0 {
		return 100.0
	}

	var sum float64
	for _, r := range ratios {
		sum += r
	}
	if sum == 0 {
		return 100.0 // Nobody served is still even
	}
	mean := sum / float64(len(ratios))

	var varianceSum float64
	for _, r := range ratios {
		diff := r - mean
		varianceSum += diff * diff
	}
	stdDev := math.Sqrt(varianceSum / float64(len(ratios)))

	score := (1.0 - (stdDev / mean)) * 100.0
	if score < 0 {
		return 0.0
	}
	return score
}

// Allocate builds a scheduler for the room, prefills its existing
// assignments and runs the pass.
func Allocate(room models.Room, builder *Builder) (*models.PassResult, error) {
	s, err := NewScheduler(room)
	if err != nil {
		return nil, err
	}
	if err := s.Prefill(room.Assignments); err != nil {
		return nil, err
	}
	return s.Run(builder)
}
