package models

import (
	"sort"
	"strings"
	"time"
)

// NegotiationType classifies the shape of a scheduling conflict
type NegotiationType string

const (
	NegotiationTimeSlotChoice  NegotiationType = "time_slot_choice"
	NegotiationPartialConflict NegotiationType = "partial_conflict"
	NegotiationFullConflict    NegotiationType = "full_conflict"
)

// NegotiationStatus is the lifecycle state of a negotiation
type NegotiationStatus string

const (
	StatusActive    NegotiationStatus = "active"
	StatusResolved  NegotiationStatus = "resolved"
	StatusAbandoned NegotiationStatus = "abandoned"
)

// ResponseStatus is a conflicting member's answer to a negotiation
type ResponseStatus string

const (
	ResponsePending  ResponseStatus = "pending"
	ResponseAccepted ResponseStatus = "accepted"
	ResponseRejected ResponseStatus = "rejected"
)

// DefaultPriority is used when a member's roster entry cannot be found
const DefaultPriority = 3

// TimeBlock is a contested interval on one calendar date
type TimeBlock struct {
	DayOfWeek int       `json:"dayOfWeek" bson:"dayOfWeek"`
	StartDate string    `json:"startDate" bson:"startDate"`
	StartTime string    `json:"startTime" bson:"startTime"`
	EndTime   string    `json:"endTime" bson:"endTime"`
	DateObj   time.Time `json:"dateObj" bson:"dateObj"`
}

// Key identifies the block within a room
func (b TimeBlock) Key() string {
	return b.StartDate + "-" + b.StartTime + "-" + b.EndTime
}

// SlotRef points at one 30-minute slot of the weekly grid
type SlotRef struct {
	Date string `json:"date" binding:"required"`
	Time string `json:"time" binding:"required"`
}

// Member is a room participant. RequiredSlots is a pointer so that an unset
// requirement can be told apart from an explicit zero.
type Member struct {
	ID            string    `json:"id" binding:"required"`
	Name          string    `json:"name,omitempty"`
	RequiredSlots *int      `json:"requiredSlots"`
	Priority      int       `json:"priority"`
	IsOwner       bool      `json:"isOwner"`
	Availability  []SlotRef `json:"availability"`
}

// UnsatisfiedMember is a member whose requirement is not fully covered yet
type UnsatisfiedMember struct {
	MemberID              string `json:"memberId" bson:"memberId" binding:"required"`
	NeededSlots           int    `json:"neededSlots" bson:"neededSlots"`
	OriginallyNeededSlots int    `json:"originallyNeededSlots" bson:"originallyNeededSlots"`
}

// AvailableMember is one entry of a timetable slot's availability list
type AvailableMember struct {
	MemberID string `json:"memberId" bson:"memberId"`
	Priority int    `json:"priority,omitempty" bson:"priority,omitempty"`
}

// SlotAvailability lists who declared themselves free for a slot
type SlotAvailability struct {
	Available []AvailableMember `json:"available" bson:"available"`
}

// Has reports whether memberID is in the slot's availability list
func (s SlotAvailability) Has(memberID string) bool {
	for _, a := range s.Available {
		if a.MemberID == memberID {
			return true
		}
	}
	return false
}

// Timetable maps "{date}-{HH:MM}" slot keys to availability
type Timetable map[string]SlotAvailability

// TimeSlotOption is one full-duration candidate window
type TimeSlotOption struct {
	StartTime string `json:"startTime" bson:"startTime"`
	EndTime   string `json:"endTime" bson:"endTime"`
}

// SlotInfo describes the contested block for display
type SlotInfo struct {
	Day       string    `json:"day" bson:"day"`
	StartTime string    `json:"startTime" bson:"startTime"`
	EndTime   string    `json:"endTime" bson:"endTime"`
	Date      time.Time `json:"date" bson:"date"`
}

// ConflictingMember is one member's seat in a negotiation
type ConflictingMember struct {
	User          string         `json:"user" bson:"user"`
	Priority      int            `json:"priority" bson:"priority"`
	RequiredSlots int            `json:"requiredSlots" bson:"requiredSlots"`
	Response      ResponseStatus `json:"response" bson:"response"`
}

// NegotiationMessage is one chat turn appended by the chat layer
type NegotiationMessage struct {
	Sender    string    `json:"sender" bson:"sender" binding:"required"`
	Text      string    `json:"text" bson:"text" binding:"required"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Negotiation is the proposal offered to a group of conflicting members
type Negotiation struct {
	ID                      string                      `json:"id" bson:"_id"`
	RoomID                  string                      `json:"roomId,omitempty" bson:"roomId"`
	BlockKey                string                      `json:"blockKey,omitempty" bson:"blockKey"`
	Type                    NegotiationType             `json:"type" bson:"type"`
	AvailableTimeSlots      []TimeSlotOption            `json:"availableTimeSlots" bson:"availableTimeSlots"`
	MemberSpecificTimeSlots map[string][]TimeSlotOption `json:"memberSpecificTimeSlots" bson:"memberSpecificTimeSlots"`
	SlotInfo                SlotInfo                    `json:"slotInfo" bson:"slotInfo"`
	ConflictingMembers      []ConflictingMember         `json:"conflictingMembers" bson:"conflictingMembers"`
	Participants            []string                    `json:"participants" bson:"participants"`
	Messages                []NegotiationMessage        `json:"messages" bson:"messages"`
	Status                  NegotiationStatus           `json:"status" bson:"status"`
	WeekStartDate           string                      `json:"weekStartDate" bson:"weekStartDate"`
	CreatedAt               time.Time                   `json:"createdAt" bson:"createdAt"`
	UpdatedAt               time.Time                   `json:"updatedAt,omitempty" bson:"updatedAt"`
	Version                 int                         `json:"version" bson:"version"`
}

// IsParticipant reports whether memberID is one of the conflicting members
func (n *Negotiation) IsParticipant(memberID string) bool {
	for _, cm := range n.ConflictingMembers {
		if cm.User == memberID {
			return true
		}
	}
	return false
}

// Settle derives the terminal status once every conflicting member has
// answered. It returns false while any response is still pending.
func (n *Negotiation) Settle() (NegotiationStatus, bool) {
	allAccepted := true
	for _, cm := range n.ConflictingMembers {
		switch cm.Response {
		case ResponsePending, "":
			return StatusActive, false
		case ResponseRejected:
			allAccepted = false
		}
	}
	if allAccepted {
		return StatusResolved, true
	}
	return StatusAbandoned, true
}

// NegotiationInput carries everything createNegotiation assembles
type NegotiationInput struct {
	RoomID                string
	Type                  NegotiationType
	Block                 TimeBlock
	UnsatisfiedMembers    []UnsatisfiedMember
	MemberTimeSlotOptions map[string][]TimeSlotOption
	AvailableTimeSlots    []TimeSlotOption
	NonOwnerMembers       []Member
	OwnerID               string
	StartDate             string
}

// RoomSettings bounds the weekly grid of a room
type RoomSettings struct {
	StartTime string `json:"startTime" binding:"required"`
	EndTime   string `json:"endTime" binding:"required"`
	Days      []int  `json:"days"`
}

// Assignment is a member holding a contiguous run of slots on one date
type Assignment struct {
	MemberID  string `json:"memberId" binding:"required"`
	Date      string `json:"date" binding:"required"`
	StartTime string `json:"startTime" binding:"required"`
	EndTime   string `json:"endTime" binding:"required"`
}

// Room is the input of a weekly allocation pass
type Room struct {
	ID          string       `json:"id"`
	OwnerID     string       `json:"ownerId" binding:"required"`
	StartDate   string       `json:"startDate" binding:"required"`
	Settings    RoomSettings `json:"settings" binding:"required"`
	Members     []Member     `json:"members" binding:"required,dive"`
	Assignments []Assignment `json:"assignments,omitempty" binding:"omitempty,dive"`
}

// PassResult is the outcome of one allocation pass
type PassResult struct {
	Assignments   []Assignment        `json:"assignments"`
	Negotiations  []*Negotiation      `json:"negotiations"`
	Unsatisfied   []UnsatisfiedMember `json:"unsatisfied"`
	FairnessScore float64             `json:"fairnessScore"`
}

// NegotiationPreviewInput is the payload for a stateless engine call
type NegotiationPreviewInput struct {
	Block              TimeBlock           `json:"block" binding:"required"`
	UnsatisfiedMembers []UnsatisfiedMember `json:"unsatisfiedMembers" binding:"required,min=1,dive"`
	Timetable          Timetable           `json:"timetable"`
	NonOwnerMembers    []Member            `json:"nonOwnerMembers"`
	OwnerID            string              `json:"ownerId" binding:"required"`
	StartDate          string              `json:"startDate" binding:"required"`
	RequiredDuration   int                 `json:"requiredDuration"`
}

// RespondInput records one member's answer
type RespondInput struct {
	MemberID string         `json:"memberId" binding:"required"`
	Response ResponseStatus `json:"response" binding:"required,oneof=accepted rejected"`
}

// ValidationError captures field level validation issues that callers can surface to users
type ValidationError struct {
	FieldErrors map[string]string
}

func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for f := range v.FieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v.FieldErrors[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a field level validation error
func (v *ValidationError) Add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// HasErrors reports whether any field level issues were recorded
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}
