package user

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore implements Store on the users collection.
type MongoStore struct {
	db *mongo.Database
}

// NewMongo constructs a MongoDB-backed user registry.
func NewMongo(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

type userDoc struct {
	ID          string        `bson:"_id"`
	DisplayName string        `bson:"display_name"`
	FirstSeenAt bson.DateTime `bson:"first_seen_at"`
	LastSeenAt  bson.DateTime `bson:"last_seen_at"`
}

func (s *MongoStore) users() *mongo.Collection { return s.db.Collection("users") }

func (s *MongoStore) Upsert(ctx context.Context, u *User) error {
	set := bson.M{
		"last_seen_at": bson.NewDateTimeFromTime(u.LastSeenAt),
	}
	if u.DisplayName != "" {
		set["display_name"] = u.DisplayName
	}
	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"first_seen_at": bson.NewDateTimeFromTime(u.FirstSeenAt),
		},
	}
	_, err := s.users().UpdateByID(ctx, u.ID, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*User, error) {
	var doc userDoc
	err := s.users().FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return toUser(doc), nil
}

func (s *MongoStore) List(ctx context.Context) ([]*User, error) {
	cursor, err := s.users().Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	out := make([]*User, len(docs))
	for i, doc := range docs {
		out[i] = toUser(doc)
	}
	return out, nil
}

func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	n, err := s.users().CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func toUser(doc userDoc) *User {
	return &User{
		ID:          doc.ID,
		DisplayName: doc.DisplayName,
		FirstSeenAt: doc.FirstSeenAt.Time(),
		LastSeenAt:  doc.LastSeenAt.Time(),
	}
}
