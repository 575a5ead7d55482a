package coordination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/arnavshah/coordination-api/internal/logging"
	"github.com/arnavshah/coordination-api/pkg/lock"
	"github.com/arnavshah/coordination-api/pkg/models"
	"github.com/arnavshah/coordination-api/pkg/notify"
	"github.com/arnavshah/coordination-api/pkg/scheduler"
	"github.com/arnavshah/coordination-api/pkg/store"
)

// Service drives negotiations from allocation through member responses
type Service struct {
	Store     store.NegotiationStore
	Locker    lock.Locker
	Publisher notify.Publisher
	Builder   *scheduler.Builder
	Logger    *slog.Logger
	// TTL is how long a negotiation may stay active before it is abandoned
	TTL time.Duration
	Now func() time.Time
}

// New wires a service. A nil locker or publisher falls back to an
// in-process lock and no notifications.
func New(st store.NegotiationStore, locker lock.Locker, pub notify.Publisher, builder *scheduler.Builder, logger *slog.Logger, ttl time.Duration) *Service {
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}
	if pub == nil {
		pub = notify.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Store:     st,
		Locker:    locker,
		Publisher: pub,
		Builder:   builder,
		Logger:    logger,
		TTL:       ttl,
		Now:       time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.Logger)
}

func (s *Service) publish(ctx context.Context, kind string, n *models.Negotiation) {
	ev := notify.Event{Type: kind, RoomID: n.RoomID, Negotiation: n, At: s.now()}
	if err := s.Publisher.Publish(ctx, ev); err != nil {
		s.log(ctx).Error("publish negotiation event", "negotiation", n.ID, "type", kind, "error", err)
	}
}

// Preview runs the engine for one block without persisting anything
func (s *Service) Preview(in models.NegotiationPreviewInput) (*models.Negotiation, error) {
	return s.Builder.Propose("", in.Block, in.UnsatisfiedMembers, in.Timetable, in.NonOwnerMembers, in.OwnerID, in.StartDate, in.RequiredDuration)
}

// RunPass allocates the room's week and opens a negotiation for every
// contested block. A block that already has an active negotiation keeps it
// and the existing record is returned in its place.
func (s *Service) RunPass(ctx context.Context, room models.Room) (*models.PassResult, error) {
	if room.ID == "" {
		return nil, fmt.Errorf("%w: room id is required", scheduler.ErrInvalidArgument)
	}
	release, err := s.Locker.Acquire(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	result, err := scheduler.Allocate(room, s.Builder)
	if err != nil {
		return nil, err
	}

	logger := s.log(ctx)
	negotiations := make([]*models.Negotiation, 0, len(result.Negotiations))
	for _, n := range result.Negotiations {
		existing, err := s.Store.FindActive(ctx, room.ID, n.BlockKey)
		if err == nil {
			logger.Info("block already under negotiation", "room", room.ID, "block", n.BlockKey, "negotiation", existing.ID)
			negotiations = append(negotiations, existing)
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}

		if err := s.Store.Create(ctx, n); err != nil {
			return nil, fmt.Errorf("save negotiation for %s: %w", n.BlockKey, err)
		}
		logger.Info("negotiation opened", "room", room.ID, "block", n.BlockKey, "negotiation", n.ID, "type", n.Type)
		s.publish(ctx, notify.EventNegotiationCreated, n)
		negotiations = append(negotiations, n)
	}
	result.Negotiations = negotiations
	return result, nil
}

// Respond records a member's answer and settles the negotiation once every
// conflicting member has answered
func (s *Service) Respond(ctx context.Context, id string, in models.RespondInput) (*models.Negotiation, error) {
	if in.Response != models.ResponseAccepted && in.Response != models.ResponseRejected {
		return nil, fmt.Errorf("%w: response must be accepted or rejected", scheduler.ErrInvalidArgument)
	}
	now := s.now()
	n, err := s.Store.Respond(ctx, id, in.MemberID, in.Response, now)
	if err != nil {
		return nil, err
	}

	if status, done := n.Settle(); done {
		settled, err := s.Store.SetStatus(ctx, id, models.StatusActive, status, now)
		if errors.Is(err, store.ErrNotActive) {
			// expired or settled by a concurrent response
			settled, err = s.Store.Get(ctx, id)
		}
		if err != nil {
			return nil, err
		}
		n = settled
		s.log(ctx).Info("negotiation settled", "negotiation", id, "status", n.Status)
	}
	s.publish(ctx, notify.EventNegotiationUpdated, n)
	return n, nil
}

// AppendMessage adds a chat line from a participant
func (s *Service) AppendMessage(ctx context.Context, id string, msg models.NegotiationMessage) (*models.Negotiation, error) {
	msg.Text = strings.TrimSpace(msg.Text)
	if msg.Sender == "" || msg.Text == "" {
		return nil, fmt.Errorf("%w: sender and text are required", scheduler.ErrInvalidArgument)
	}
	msg.Timestamp = s.now()
	n, err := s.Store.AppendMessage(ctx, id, msg)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, notify.EventNegotiationUpdated, n)
	return n, nil
}

// ExpireStale abandons active negotiations older than TTL and returns how
// many it closed
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	if s.TTL <= 0 {
		return 0, nil
	}
	now := s.now()
	stale, err := s.Store.ListActiveBefore(ctx, now.Add(-s.TTL))
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, n := range stale {
		closed, err := s.Store.SetStatus(ctx, n.ID, models.StatusActive, models.StatusAbandoned, now)
		if errors.Is(err, store.ErrNotActive) {
			continue
		}
		if err != nil {
			return expired, err
		}
		expired++
		s.publish(ctx, notify.EventNegotiationUpdated, closed)
	}
	if expired > 0 {
		s.log(ctx).Info("expired stale negotiations", "count", expired)
	}
	return expired, nil
}

// RunExpiry calls ExpireStale every interval until ctx is done
func (s *Service) RunExpiry(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireStale(ctx); err != nil {
				s.log(ctx).Error("expire negotiations", "error", err)
			}
		}
	}
}

func (s *Service) Get(ctx context.Context, id string) (*models.Negotiation, error) {
	return s.Store.Get(ctx, id)
}

func (s *Service) ListByRoom(ctx context.Context, roomID string, status models.NegotiationStatus) ([]*models.Negotiation, error) {
	switch status {
	case "", models.StatusActive, models.StatusResolved, models.StatusAbandoned:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", scheduler.ErrInvalidArgument, status)
	}
	return s.Store.ListByRoom(ctx, roomID, status)
}
