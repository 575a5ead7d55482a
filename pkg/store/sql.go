package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arnavshah/coordination-api/pkg/database"
	"github.com/arnavshah/coordination-api/pkg/models"
	"gorm.io/gorm"
)

const maxUpdateAttempts = 5

// SQLStore keeps negotiations in the gorm negotiations table
type SQLStore struct {
	DB *gorm.DB
}

// NewSQLStore creates a store on top of a migrated gorm connection
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{DB: db}
}

func (s *SQLStore) Create(ctx context.Context, n *models.Negotiation) error {
	if n.ID == "" {
		return fmt.Errorf("store: negotiation id is required")
	}
	return s.DB.WithContext(ctx).Create(database.NegotiationFromModel(n)).Error
}

func (s *SQLStore) load(ctx context.Context, id string) (*database.NegotiationRecord, error) {
	var rec database.NegotiationRecord
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*models.Negotiation, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.ToModel(), nil
}

func (s *SQLStore) list(q *gorm.DB) ([]*models.Negotiation, error) {
	var recs []database.NegotiationRecord
	if err := q.Order("created_at asc").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*models.Negotiation, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].ToModel())
	}
	return out, nil
}

func (s *SQLStore) ListByRoom(ctx context.Context, roomID string, status models.NegotiationStatus) ([]*models.Negotiation, error) {
	q := s.DB.WithContext(ctx).Where("room_id = ?", roomID)
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	return s.list(q)
}

func (s *SQLStore) FindActive(ctx context.Context, roomID, blockKey string) (*models.Negotiation, error) {
	var rec database.NegotiationRecord
	err := s.DB.WithContext(ctx).
		Where("room_id = ? AND block_key = ? AND status = ?", roomID, blockKey, string(models.StatusActive)).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.ToModel(), nil
}

func (s *SQLStore) ListActiveBefore(ctx context.Context, cutoff time.Time) ([]*models.Negotiation, error) {
	q := s.DB.WithContext(ctx).Where("status = ? AND created_at < ?", string(models.StatusActive), cutoff)
	return s.list(q)
}

// mutate applies change to the latest row and writes it back only if no
// other writer bumped the version in between.
func (s *SQLStore) mutate(ctx context.Context, id string, columns []string, change func(*database.NegotiationRecord) error) (*models.Negotiation, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		rec, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec.Status != string(models.StatusActive) {
			return nil, ErrNotActive
		}
		if err := change(rec); err != nil {
			return nil, err
		}

		expected := rec.Version
		rec.Version++
		res := s.DB.WithContext(ctx).
			Model(&database.NegotiationRecord{ID: id}).
			Where("version = ?", expected).
			Select(append(columns, "version", "updated_at")).
			Updates(rec)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			return rec.ToModel(), nil
		}
	}
	return nil, ErrConflict
}

func (s *SQLStore) Respond(ctx context.Context, id, memberID string, response models.ResponseStatus, now time.Time) (*models.Negotiation, error) {
	return s.mutate(ctx, id, []string{"conflicting_members"}, func(rec *database.NegotiationRecord) error {
		members := append([]models.ConflictingMember(nil), rec.ConflictingMembers...)
		for i := range members {
			if members[i].User == memberID {
				members[i].Response = response
				rec.ConflictingMembers = members
				rec.UpdatedAt = now
				return nil
			}
		}
		return ErrNotParticipant
	})
}

func (s *SQLStore) AppendMessage(ctx context.Context, id string, msg models.NegotiationMessage) (*models.Negotiation, error) {
	return s.mutate(ctx, id, []string{"messages"}, func(rec *database.NegotiationRecord) error {
		if !canPost(rec.ToModel(), msg.Sender) {
			return ErrNotParticipant
		}
		rec.Messages = append(append([]models.NegotiationMessage(nil), rec.Messages...), msg)
		rec.UpdatedAt = msg.Timestamp
		return nil
	})
}

func (s *SQLStore) SetStatus(ctx context.Context, id string, from, to models.NegotiationStatus, now time.Time) (*models.Negotiation, error) {
	res := s.DB.WithContext(ctx).
		Model(&database.NegotiationRecord{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]interface{}{
			"status":     string(to),
			"version":    gorm.Expr("version + ?", 1),
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.load(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrNotActive
	}
	return s.Get(ctx, id)
}
