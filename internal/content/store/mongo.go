package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"filegate/internal/content/models"
)

// MongoStore implements Store on two document collections: items keyed by
// content id and batches keyed by batch id with a unique index on group_key.
type MongoStore struct {
	db *mongo.Database
}

// NewMongo constructs a MongoDB-backed content store. The caller is expected
// to have run the platform migration that creates the unique group_key index.
func NewMongo(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

type itemDoc struct {
	ID         string        `bson:"_id"`
	ArchiveRef string        `bson:"archive_ref"`
	OwnerID    string        `bson:"owner_id"`
	CreatedAt  bson.DateTime `bson:"created_at"`
}

type batchDoc struct {
	ID          string        `bson:"_id"`
	GroupKey    string        `bson:"group_key"`
	ArchiveRefs []string      `bson:"archive_refs"`
	OwnerID     string        `bson:"owner_id"`
	CreatedAt   bson.DateTime `bson:"created_at"`
}

func (s *MongoStore) items() *mongo.Collection   { return s.db.Collection("items") }
func (s *MongoStore) batches() *mongo.Collection { return s.db.Collection("batches") }

func (s *MongoStore) PutItem(ctx context.Context, item *models.ContentItem) error {
	doc := itemDoc{
		ID:         item.ID,
		ArchiveRef: item.ArchiveRef,
		OwnerID:    item.OwnerID,
		CreatedAt:  bson.NewDateTimeFromTime(item.CreatedAt),
	}
	if _, err := s.items().InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (s *MongoStore) PutBatch(ctx context.Context, batch *models.Batch) error {
	if _, err := s.batches().InsertOne(ctx, toBatchDoc(batch)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func (s *MongoStore) GetItem(ctx context.Context, id string) (*models.ContentItem, error) {
	var doc itemDoc
	err := s.items().FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find item: %w", err)
	}
	return &models.ContentItem{
		ID:         doc.ID,
		ArchiveRef: doc.ArchiveRef,
		OwnerID:    doc.OwnerID,
		CreatedAt:  doc.CreatedAt.Time(),
	}, nil
}

func (s *MongoStore) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	var doc batchDoc
	err := s.batches().FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find batch: %w", err)
	}
	return toBatch(doc), nil
}

// CommitBatchIfAbsent relies on the unique group_key index: the insert either
// lands or is rejected atomically, so duplicate delivery of a close signal
// can never produce two records.
func (s *MongoStore) CommitBatchIfAbsent(ctx context.Context, groupKey string, batch *models.Batch) (bool, error) {
	doc := toBatchDoc(batch)
	doc.GroupKey = groupKey
	if _, err := s.batches().InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("commit batch: %w", err)
	}
	return true, nil
}

func (s *MongoStore) CountItems(ctx context.Context) (int64, error) {
	n, err := s.items().CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

func (s *MongoStore) CountBatches(ctx context.Context) (int64, error) {
	n, err := s.batches().CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count batches: %w", err)
	}
	return n, nil
}

func toBatchDoc(batch *models.Batch) batchDoc {
	return batchDoc{
		ID:          batch.ID,
		GroupKey:    batch.GroupKey,
		ArchiveRefs: batch.ArchiveRefs,
		OwnerID:     batch.OwnerID,
		CreatedAt:   bson.NewDateTimeFromTime(batch.CreatedAt),
	}
}

func toBatch(doc batchDoc) *models.Batch {
	return &models.Batch{
		ID:          doc.ID,
		GroupKey:    doc.GroupKey,
		ArchiveRefs: doc.ArchiveRefs,
		OwnerID:     doc.OwnerID,
		CreatedAt:   doc.CreatedAt.Time(),
	}
}
