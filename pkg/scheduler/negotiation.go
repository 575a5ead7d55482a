package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/arnavshah/coordination-api/pkg/models"
	"github.com/google/uuid"
)

// Builder assembles negotiation records. Clock and id source are injectable
// for tests.
type Builder struct {
	DayNames [7]string
	Now      func() time.Time
	NewID    func() string
	Logger   *slog.Logger
}

// NewBuilder creates a builder for the given weekday locale ("en" or "ko")
func NewBuilder(locale string, logger *slog.Logger) (*Builder, error) {
	names, ok := DayNames(locale)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported weekday locale %q", ErrInvalidArgument, locale)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		DayNames: names,
		Now:      time.Now,
		NewID:    uuid.NewString,
		Logger:   logger,
	}, nil
}

// CreateNegotiation packages a classified conflict into an active negotiation.
// Priorities come from the roster; a member missing from it gets
// models.DefaultPriority and a warning is logged.
func (b *Builder) CreateNegotiation(in models.NegotiationInput) (*models.Negotiation, error) {
	if len(in.UnsatisfiedMembers) == 0 {
		return nil, fmt.Errorf("%w: negotiation needs at least one conflicting member", ErrInvalidArgument)
	}
	if in.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrInvalidArgument)
	}
	if in.Block.DayOfWeek < 0 || in.Block.DayOfWeek > 6 {
		return nil, fmt.Errorf("%w: day of week %d", ErrInvalidArgument, in.Block.DayOfWeek)
	}
	if _, _, err := BlockBounds(in.Block); err != nil {
		return nil, err
	}
	blockDate, err := ParseDate(in.Block.StartDate)
	if err != nil {
		return nil, err
	}
	if int(blockDate.Weekday()) != in.Block.DayOfWeek {
		return nil, fmt.Errorf("%w: day of week %d does not match %s", ErrInvalidArgument, in.Block.DayOfWeek, in.Block.StartDate)
	}
	if in.Block.DateObj.IsZero() {
		in.Block.DateObj = blockDate
	}
	weekStart, err := WeekStart(in.StartDate)
	if err != nil {
		return nil, err
	}

	roster := make(map[string]models.Member, len(in.NonOwnerMembers))
	for _, m := range in.NonOwnerMembers {
		roster[m.ID] = m
	}

	seen := make(map[string]bool, len(in.UnsatisfiedMembers))
	conflicting := make([]models.ConflictingMember, 0, len(in.UnsatisfiedMembers))
	participants := make([]string, 0, len(in.UnsatisfiedMembers)+1)
	for _, um := range in.UnsatisfiedMembers {
		if um.MemberID == "" {
			return nil, fmt.Errorf("%w: unsatisfied member without id", ErrInvalidArgument)
		}
		if um.MemberID == in.OwnerID {
			return nil, fmt.Errorf("%w: owner %s cannot be a conflicting member", ErrInvalidArgument, um.MemberID)
		}
		if seen[um.MemberID] {
			return nil, fmt.Errorf("%w: member %s listed twice", ErrInvalidArgument, um.MemberID)
		}
		if um.NeededSlots > um.OriginallyNeededSlots {
			return nil, fmt.Errorf("%w: member %s needs %d of %d slots", ErrInvalidArgument, um.MemberID, um.NeededSlots, um.OriginallyNeededSlots)
		}
		seen[um.MemberID] = true

		priority := models.DefaultPriority
		if m, ok := roster[um.MemberID]; ok {
			priority = m.Priority
		} else {
			b.logger().Warn("member missing from roster, using default priority",
				"room", in.RoomID, "member", um.MemberID, "priority", priority)
		}

		conflicting = append(conflicting, models.ConflictingMember{
			User:          um.MemberID,
			Priority:      priority,
			RequiredSlots: um.NeededSlots,
			Response:      models.ResponsePending,
		})
		participants = append(participants, um.MemberID)
	}
	participants = append(participants, in.OwnerID)

	memberOptions := in.MemberTimeSlotOptions
	if memberOptions == nil {
		memberOptions = map[string][]models.TimeSlotOption{}
	}
	available := in.AvailableTimeSlots
	if available == nil {
		available = []models.TimeSlotOption{}
	}

	now := b.now()
	return &models.Negotiation{
		ID:                      b.newID(),
		RoomID:                  in.RoomID,
		BlockKey:                in.Block.Key(),
		Type:                    in.Type,
		AvailableTimeSlots:      available,
		MemberSpecificTimeSlots: memberOptions,
		SlotInfo: models.SlotInfo{
			Day:       b.DayNames[in.Block.DayOfWeek],
			StartTime: in.Block.StartTime,
			EndTime:   in.Block.EndTime,
			Date:      in.Block.DateObj,
		},
		ConflictingMembers: conflicting,
		Participants:       participants,
		Messages:           []models.NegotiationMessage{},
		Status:             models.StatusActive,
		WeekStartDate:      weekStart,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// Propose runs classifier, option generator and merger for one contested
// block and builds the negotiation. A requiredDuration of zero means each
// member is offered windows matching their own remaining need.
func (b *Builder) Propose(roomID string, block models.TimeBlock, unsatisfied []models.UnsatisfiedMember, timetable models.Timetable, roster []models.Member, ownerID, startDate string, requiredDuration int) (*models.Negotiation, error) {
	totalSlots, err := BlockSlots(block)
	if err != nil {
		return nil, err
	}
	totalNeeded := 0
	for _, m := range unsatisfied {
		totalNeeded += m.NeededSlots
	}

	kind, err := DetermineNegotiationType(unsatisfied, totalNeeded, totalSlots)
	if err != nil {
		return nil, err
	}

	memberOptions := make(map[string][]models.TimeSlotOption, len(unsatisfied))
	if requiredDuration > 0 {
		memberOptions, err = GenerateMemberTimeSlotOptions(unsatisfied, block, timetable, requiredDuration)
		if err != nil {
			return nil, err
		}
	} else {
		for _, m := range unsatisfied {
			opts, err := GenerateMemberTimeSlotOptions([]models.UnsatisfiedMember{m}, block, timetable, m.NeededSlots*SlotMinutes)
			if err != nil {
				return nil, fmt.Errorf("options for %s: %w", m.MemberID, err)
			}
			memberOptions[m.MemberID] = opts[m.MemberID]
		}
	}

	return b.CreateNegotiation(models.NegotiationInput{
		RoomID:                roomID,
		Type:                  kind,
		Block:                 block,
		UnsatisfiedMembers:    unsatisfied,
		MemberTimeSlotOptions: memberOptions,
		AvailableTimeSlots:    MergeAllTimeSlotOptions(memberOptions),
		NonOwnerMembers:       roster,
		OwnerID:               ownerID,
		StartDate:             startDate,
	})
}

func (b *Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b *Builder) newID() string {
	if b.NewID != nil {
		return b.NewID()
	}
	return uuid.NewString()
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}
