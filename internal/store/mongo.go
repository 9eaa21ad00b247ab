package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps messages in a single collection, ordered per session by
// created_at with the index below.
type MongoStore struct {
	messages *mongo.Collection
	now      func() time.Time
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		messages: db.Collection("messages"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes creates the session lookup index. Safe to call on every
// startup.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("store: ensure message index: %w", err)
	}
	return nil
}

func (s *MongoStore) Append(ctx context.Context, msg Message) (*Message, error) {
	if err := validate(msg); err != nil {
		return nil, err
	}

	msg.ID = uuid.NewString()
	msg.CreatedAt = s.now()

	if _, err := s.messages.InsertOne(ctx, msg); err != nil {
		return nil, fmt.Errorf("store: append message: %w", err)
	}

	return &msg, nil
}

func (s *MongoStore) ListBySession(ctx context.Context, sessionID string) ([]Message, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}

	filter := bson.M{"session_id": sessionID}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer cursor.Close(ctx)

	messages := make([]Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("store: decode messages: %w", err)
	}

	return messages, nil
}

var _ Store = (*MongoStore)(nil)
