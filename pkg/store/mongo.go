package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arnavshah/coordination-api/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const negotiationsCollection = "negotiations"

// MongoStore keeps negotiations as documents. Responses use positional
// updates so each answer is a single atomic write.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore binds the store to the negotiations collection of db
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(negotiationsCollection)}
}

// Connect dials uri, checks the server and returns the named database
func Connect(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, client.Database(database), nil
}

// EnsureIndexes creates the lookup indexes used by the queries below
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "blockKey", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
	})
	return err
}

func (s *MongoStore) Create(ctx context.Context, n *models.Negotiation) error {
	if n.ID == "" {
		return fmt.Errorf("store: negotiation id is required")
	}
	_, err := s.coll.InsertOne(ctx, n)
	return err
}

func (s *MongoStore) Get(ctx context.Context, id string) (*models.Negotiation, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*models.Negotiation, error) {
	var n models.Negotiation
	err := s.coll.FindOne(ctx, filter).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *MongoStore) find(ctx context.Context, filter bson.M) ([]*models.Negotiation, error) {
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	out := []*models.Negotiation{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) ListByRoom(ctx context.Context, roomID string, status models.NegotiationStatus) ([]*models.Negotiation, error) {
	filter := bson.M{"roomId": roomID}
	if status != "" {
		filter["status"] = status
	}
	return s.find(ctx, filter)
}

func (s *MongoStore) FindActive(ctx context.Context, roomID, blockKey string) (*models.Negotiation, error) {
	return s.findOne(ctx, bson.M{"roomId": roomID, "blockKey": blockKey, "status": models.StatusActive})
}

func (s *MongoStore) ListActiveBefore(ctx context.Context, cutoff time.Time) ([]*models.Negotiation, error) {
	return s.find(ctx, bson.M{"status": models.StatusActive, "createdAt": bson.M{"$lt": cutoff}})
}

// update applies a guarded findAndModify and, when nothing matched, works
// out which guard failed.
func (s *MongoStore) update(ctx context.Context, id string, filter, change bson.M, memberGuard func(*models.Negotiation) bool) (*models.Negotiation, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var n models.Negotiation
	err := s.coll.FindOneAndUpdate(ctx, filter, change, opts).Decode(&n)
	if err == nil {
		return &n, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	current, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status != models.StatusActive {
		return nil, ErrNotActive
	}
	if memberGuard != nil && !memberGuard(current) {
		return nil, ErrNotParticipant
	}
	return nil, ErrConflict
}

func (s *MongoStore) Respond(ctx context.Context, id, memberID string, response models.ResponseStatus, now time.Time) (*models.Negotiation, error) {
	filter := bson.M{
		"_id":                     id,
		"status":                  models.StatusActive,
		"conflictingMembers.user": memberID,
	}
	change := bson.M{
		"$set": bson.M{"conflictingMembers.$.response": response, "updatedAt": now},
		"$inc": bson.M{"version": 1},
	}
	return s.update(ctx, id, filter, change, func(n *models.Negotiation) bool {
		return n.IsParticipant(memberID)
	})
}

func (s *MongoStore) AppendMessage(ctx context.Context, id string, msg models.NegotiationMessage) (*models.Negotiation, error) {
	filter := bson.M{
		"_id":          id,
		"status":       models.StatusActive,
		"participants": msg.Sender,
	}
	change := bson.M{
		"$push": bson.M{"messages": msg},
		"$set":  bson.M{"updatedAt": msg.Timestamp},
		"$inc":  bson.M{"version": 1},
	}
	return s.update(ctx, id, filter, change, func(n *models.Negotiation) bool {
		return canPost(n, msg.Sender)
	})
}

func (s *MongoStore) SetStatus(ctx context.Context, id string, from, to models.NegotiationStatus, now time.Time) (*models.Negotiation, error) {
	filter := bson.M{"_id": id, "status": from}
	change := bson.M{
		"$set": bson.M{"status": to, "updatedAt": now},
		"$inc": bson.M{"version": 1},
	}
	n, err := s.update(ctx, id, filter, change, nil)
	if errors.Is(err, ErrConflict) {
		// status matched active but not from
		return nil, ErrNotActive
	}
	return n, err
}
