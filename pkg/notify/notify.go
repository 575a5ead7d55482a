package notify

import (
	"context"
	"time"

	"github.com/arnavshah/coordination-api/pkg/models"
)

// Event types pushed to room subscribers
const (
	EventNegotiationCreated = "negotiation.created"
	EventNegotiationUpdated = "negotiation.updated"
)

// Event is one change to a room's negotiations
type Event struct {
	Type        string              `json:"type"`
	RoomID      string              `json:"roomId"`
	Negotiation *models.Negotiation `json:"negotiation"`
	At          time.Time           `json:"at"`
}

// Publisher delivers events to whoever watches the room
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Discard drops every event
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
