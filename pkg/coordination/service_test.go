package coordination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/arnavshah/coordination-api/pkg/database"
	"github.com/arnavshah/coordination-api/pkg/lock"
	"github.com/arnavshah/coordination-api/pkg/models"
	"github.com/arnavshah/coordination-api/pkg/notify"
	"github.com/arnavshah/coordination-api/pkg/scheduler"
	"github.com/arnavshah/coordination-api/pkg/store"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func intPtr(v int) *int { return &v }

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *recordingPublisher) {
	t.Helper()
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	builder, err := scheduler.NewBuilder("en", nil)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	builder.Now = func() time.Time { return testNow }
	seq := 0
	builder.NewID = func() string {
		seq++
		return fmt.Sprintf("neg-%d", seq)
	}

	pub := &recordingPublisher{}
	svc := New(store.NewSQLStore(db), lock.NewMemoryLocker(), pub, builder, nil, 48*time.Hour)
	svc.Now = func() time.Time { return testNow.Add(time.Hour) }
	return svc, pub
}

// b and c both want Monday 10:00-12:00 and each needs the whole hour pair
func contestedRoom() models.Room {
	monday := "2025-03-03"
	slots := []models.SlotRef{
		{Date: monday, Time: "10:00"}, {Date: monday, Time: "10:30"},
		{Date: monday, Time: "11:00"}, {Date: monday, Time: "11:30"},
	}
	return models.Room{
		ID:        "room-1",
		OwnerID:   "owner",
		StartDate: monday,
		Settings:  models.RoomSettings{StartTime: "09:00", EndTime: "12:00", Days: []int{1}},
		Members: []models.Member{
			{ID: "owner", IsOwner: true},
			{ID: "b", RequiredSlots: intPtr(2), Priority: 3, Availability: slots},
			{ID: "c", RequiredSlots: intPtr(2), Priority: 2, Availability: slots},
		},
	}
}

func TestRunPass_CreatesAndDeduplicates(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	result, err := svc.RunPass(ctx, contestedRoom())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if len(result.Negotiations) != 1 {
		t.Fatalf("Expected 1 negotiation, got %d", len(result.Negotiations))
	}
	first := result.Negotiations[0]
	if first.ID != "neg-1" || first.Status != models.StatusActive {
		t.Errorf("Unexpected negotiation %s with status %s", first.ID, first.Status)
	}

	stored, err := svc.Get(ctx, "neg-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.BlockKey != first.BlockKey {
		t.Errorf("Expected block %s, got %s", first.BlockKey, stored.BlockKey)
	}

	again, err := svc.RunPass(ctx, contestedRoom())
	if err != nil {
		t.Fatalf("Second RunPass failed: %v", err)
	}
	if len(again.Negotiations) != 1 || again.Negotiations[0].ID != "neg-1" {
		t.Errorf("Expected the existing negotiation to be reused, got %+v", again.Negotiations)
	}

	list, _ := svc.ListByRoom(ctx, "room-1", "")
	if len(list) != 1 {
		t.Errorf("Expected 1 stored negotiation, got %d", len(list))
	}
	if got := pub.types(); len(got) != 1 || got[0] != notify.EventNegotiationCreated {
		t.Errorf("Expected a single created event, got %v", got)
	}
}

func TestRunPass_RequiresRoomID(t *testing.T) {
	svc, _ := newTestService(t)
	room := contestedRoom()
	room.ID = ""
	if _, err := svc.RunPass(context.Background(), room); !errors.Is(err, scheduler.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestRespond_SettlesNegotiation(t *testing.T) {
	tests := []struct {
		name      string
		responses []models.ResponseStatus
		want      models.NegotiationStatus
	}{
		{"all accepted", []models.ResponseStatus{models.ResponseAccepted, models.ResponseAccepted}, models.StatusResolved},
		{"one rejected", []models.ResponseStatus{models.ResponseAccepted, models.ResponseRejected}, models.StatusAbandoned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, pub := newTestService(t)
			ctx := context.Background()
			if _, err := svc.RunPass(ctx, contestedRoom()); err != nil {
				t.Fatalf("RunPass failed: %v", err)
			}

			n, err := svc.Respond(ctx, "neg-1", models.RespondInput{MemberID: "b", Response: tt.responses[0]})
			if err != nil {
				t.Fatalf("Respond b failed: %v", err)
			}
			if n.Status != models.StatusActive {
				t.Errorf("Expected active after first response, got %s", n.Status)
			}

			n, err = svc.Respond(ctx, "neg-1", models.RespondInput{MemberID: "c", Response: tt.responses[1]})
			if err != nil {
				t.Fatalf("Respond c failed: %v", err)
			}
			if n.Status != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, n.Status)
			}

			if _, err := svc.Respond(ctx, "neg-1", models.RespondInput{MemberID: "b", Response: models.ResponseRejected}); !errors.Is(err, store.ErrNotActive) {
				t.Errorf("Expected ErrNotActive after settling, got %v", err)
			}
			if got := pub.types(); len(got) != 3 {
				t.Errorf("Expected created plus two updates, got %v", got)
			}
		})
	}
}

func TestRespond_InvalidInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.RunPass(ctx, contestedRoom()); err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}

	if _, err := svc.Respond(ctx, "neg-1", models.RespondInput{MemberID: "b", Response: models.ResponsePending}); !errors.Is(err, scheduler.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for pending, got %v", err)
	}
	if _, err := svc.Respond(ctx, "neg-1", models.RespondInput{MemberID: "owner", Response: models.ResponseAccepted}); !errors.Is(err, store.ErrNotParticipant) {
		t.Errorf("Expected ErrNotParticipant for owner, got %v", err)
	}
	if _, err := svc.Respond(ctx, "nope", models.RespondInput{MemberID: "b", Response: models.ResponseAccepted}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestAppendMessage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.RunPass(ctx, contestedRoom()); err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}

	n, err := svc.AppendMessage(ctx, "neg-1", models.NegotiationMessage{Sender: "owner", Text: "  Could c move to Tuesday?  "})
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if len(n.Messages) != 1 || n.Messages[0].Text != "Could c move to Tuesday?" {
		t.Errorf("Unexpected messages %+v", n.Messages)
	}
	if n.Messages[0].Timestamp.IsZero() {
		t.Error("Expected message timestamp to be set")
	}

	if _, err := svc.AppendMessage(ctx, "neg-1", models.NegotiationMessage{Sender: "owner", Text: "  "}); !errors.Is(err, scheduler.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for blank text, got %v", err)
	}
	if _, err := svc.AppendMessage(ctx, "neg-1", models.NegotiationMessage{Sender: "zed", Text: "hello"}); !errors.Is(err, store.ErrNotParticipant) {
		t.Errorf("Expected ErrNotParticipant, got %v", err)
	}
}

func TestExpireStale(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()
	if _, err := svc.RunPass(ctx, contestedRoom()); err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}

	expired, err := svc.ExpireStale(ctx)
	if err != nil || expired != 0 {
		t.Fatalf("Expected nothing to expire yet, got %d, %v", expired, err)
	}

	svc.Now = func() time.Time { return testNow.Add(49 * time.Hour) }
	expired, err = svc.ExpireStale(ctx)
	if err != nil {
		t.Fatalf("ExpireStale failed: %v", err)
	}
	if expired != 1 {
		t.Errorf("Expected 1 expired negotiation, got %d", expired)
	}
	n, _ := svc.Get(ctx, "neg-1")
	if n.Status != models.StatusAbandoned {
		t.Errorf("Expected abandoned, got %s", n.Status)
	}
	if got := pub.types(); got[len(got)-1] != notify.EventNegotiationUpdated {
		t.Errorf("Expected an update event for the expiry, got %v", got)
	}
}

func TestListByRoom_UnknownStatus(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.ListByRoom(context.Background(), "room-1", "pending"); !errors.Is(err, scheduler.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestPreview(t *testing.T) {
	svc, _ := newTestService(t)
	in := models.NegotiationPreviewInput{
		Block: models.TimeBlock{
			DayOfWeek: 1,
			StartDate: "2025-03-03",
			StartTime: "10:00",
			EndTime:   "12:00",
			DateObj:   time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		},
		UnsatisfiedMembers: []models.UnsatisfiedMember{
			{MemberID: "b", NeededSlots: 2, OriginallyNeededSlots: 2},
			{MemberID: "c", NeededSlots: 2, OriginallyNeededSlots: 2},
		},
		Timetable: models.Timetable{
			"2025-03-03-10:00": {Available: []models.AvailableMember{{MemberID: "b", Priority: 3}, {MemberID: "c", Priority: 2}}},
			"2025-03-03-10:30": {Available: []models.AvailableMember{{MemberID: "b", Priority: 3}, {MemberID: "c", Priority: 2}}},
		},
		OwnerID:          "owner",
		StartDate:        "2025-03-03",
		RequiredDuration: 60,
	}

	n, err := svc.Preview(in)
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if n.Type != models.NegotiationTimeSlotChoice {
		t.Errorf("Expected time_slot_choice, got %s", n.Type)
	}
	if len(n.AvailableTimeSlots) != 1 || n.AvailableTimeSlots[0].StartTime != "10:00" {
		t.Errorf("Expected only 10:00-11:00, got %v", n.AvailableTimeSlots)
	}
	if list, _ := svc.ListByRoom(context.Background(), "", ""); len(list) != 0 {
		t.Errorf("Preview must not persist, found %d", len(list))
	}
}
