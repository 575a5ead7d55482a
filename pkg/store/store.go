package store

import (
	"context"
	"errors"
	"time"

	"github.com/arnavshah/coordination-api/pkg/models"
)

var (
	// ErrNotFound is returned when no negotiation has the requested id
	ErrNotFound = errors.New("store: negotiation not found")
	// ErrConflict is returned when concurrent writers keep racing on one record
	ErrConflict = errors.New("store: concurrent update conflict")
	// ErrNotActive is returned when a closed negotiation is modified
	ErrNotActive = errors.New("store: negotiation is not active")
	// ErrNotParticipant is returned when a non-member responds or posts
	ErrNotParticipant = errors.New("store: member is not a participant")
)

// NegotiationStore persists negotiations keyed by room and contested block
type NegotiationStore interface {
	Create(ctx context.Context, n *models.Negotiation) error
	Get(ctx context.Context, id string) (*models.Negotiation, error)
	// ListByRoom returns a room's negotiations, oldest first. An empty
	// status lists all of them.
	ListByRoom(ctx context.Context, roomID string, status models.NegotiationStatus) ([]*models.Negotiation, error)
	FindActive(ctx context.Context, roomID, blockKey string) (*models.Negotiation, error)
	ListActiveBefore(ctx context.Context, cutoff time.Time) ([]*models.Negotiation, error)
	// Respond atomically records one conflicting member's answer
	Respond(ctx context.Context, id, memberID string, response models.ResponseStatus, now time.Time) (*models.Negotiation, error)
	AppendMessage(ctx context.Context, id string, msg models.NegotiationMessage) (*models.Negotiation, error)
	// SetStatus moves a negotiation from one status to another, failing with
	// ErrNotActive if it is no longer in the expected status.
	SetStatus(ctx context.Context, id string, from, to models.NegotiationStatus, now time.Time) (*models.Negotiation, error)
}

// canPost reports whether sender may write to the negotiation's message log
func canPost(n *models.Negotiation, sender string) bool {
	for _, p := range n.Participants {
		if p == sender {
			return true
		}
	}
	return false
}
