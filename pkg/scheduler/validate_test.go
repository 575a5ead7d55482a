package scheduler

import (
	"testing"

	"github.com/arnavshah/coordination-api/pkg/models"
)

func validRoom() models.Room {
	return models.Room{
		ID:        "room-1",
		OwnerID:   "owner",
		StartDate: "2025-03-03",
		Settings:  models.RoomSettings{StartTime: "09:00", EndTime: "12:00", Days: []int{1, 2}},
		Members: []models.Member{
			{ID: "owner", IsOwner: true},
			{ID: "b", RequiredSlots: intPtr(2), Priority: 2,
				Availability: []models.SlotRef{{Date: "2025-03-03", Time: "10:00"}}},
		},
	}
}

func TestValidateRoom_Valid(t *testing.T) {
	if verr := ValidateRoom(validRoom()); verr != nil {
		t.Errorf("Expected valid room, got %v", verr)
	}
}

func TestValidateRoom_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *models.Room)
		field  string
	}{
		{"missing owner", func(r *models.Room) { r.OwnerID = "" }, "ownerId"},
		{"bad start date", func(r *models.Room) { r.StartDate = "03/03/2025" }, "startDate"},
		{"bad clock", func(r *models.Room) { r.Settings.StartTime = "9am" }, "settings.startTime"},
		{"unaligned", func(r *models.Room) { r.Settings.StartTime = "09:15" }, "settings"},
		{"end before start", func(r *models.Room) { r.Settings.EndTime = "08:00" }, "settings.endTime"},
		{"bad day", func(r *models.Room) { r.Settings.Days = []int{7} }, "settings.days[0]"},
		{"duplicate member", func(r *models.Room) { r.Members = append(r.Members, r.Members[1]) }, "members[2].id"},
		{"missing requirement", func(r *models.Room) { r.Members[1].RequiredSlots = nil }, "members[1].requiredSlots"},
		{"negative requirement", func(r *models.Room) { r.Members[1].RequiredSlots = intPtr(-1) }, "members[1].requiredSlots"},
		{"second owner flag", func(r *models.Room) { r.Members[1].IsOwner = true }, "members[1].isOwner"},
		{"bad availability", func(r *models.Room) {
			r.Members[1].Availability = []models.SlotRef{{Date: "2025-03-03", Time: "10:10"}}
		}, "members[1].availability[0]"},
		{"owner not a member", func(r *models.Room) { r.OwnerID = "ghost" }, "members"},
		{"owner listed twice", func(r *models.Room) { r.Members = append(r.Members, models.Member{ID: "owner"}) }, "members"},
		{"bad assignment", func(r *models.Room) {
			r.Assignments = []models.Assignment{{MemberID: "b", Date: "2025-03-03", StartTime: "11:00", EndTime: "10:00"}}
		}, "assignments[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room := validRoom()
			tt.mutate(&room)
			verr := ValidateRoom(room)
			if verr == nil {
				t.Fatalf("Expected validation error on %s", tt.field)
			}
			if _, ok := verr.FieldErrors[tt.field]; !ok {
				t.Errorf("Expected field %s, got %v", tt.field, verr.FieldErrors)
			}
		})
	}
}
