//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/v2/bson"

	"filegate/internal/platform/mongo"
)

type MongoStoreSuite struct {
	suite.Suite
	container *tcmongo.MongoDBContainer
	client    *mongo.Client
	store     *MongoStore
	ctx       context.Context
}

func TestMongoStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(MongoStoreSuite))
}

func (s *MongoStoreSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := tcmongo.Run(s.ctx, "mongo:7")
	testcontainers.CleanupContainer(s.T(), container)
	s.Require().NoError(err)
	s.container = container

	uri, err := container.ConnectionString(s.ctx)
	s.Require().NoError(err)

	client, err := mongo.New(s.ctx, uri)
	s.Require().NoError(err)
	s.client = client
	s.Require().NoError(client.Migrate(s.ctx))

	s.store = NewMongo(client.Database())
}

func (s *MongoStoreSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close(s.ctx)
	}
}

func (s *MongoStoreSuite) SetupTest() {
	for _, name := range []string{"items", "batches"} {
		_, err := s.client.Database().Collection(name).DeleteMany(s.ctx, bson.M{})
		s.Require().NoError(err)
	}
}

func (s *MongoStoreSuite) TestItemRoundTrip() {
	item := newItem("op-1")
	s.Require().NoError(s.store.PutItem(s.ctx, item))

	got, err := s.store.GetItem(s.ctx, item.ID)
	s.Require().NoError(err)
	s.Equal(item.ID, got.ID)
	s.Equal(item.ArchiveRef, got.ArchiveRef)
	s.Equal(item.OwnerID, got.OwnerID)

	s.ErrorIs(s.store.PutItem(s.ctx, item), ErrDuplicate)
}

func (s *MongoStoreSuite) TestGetMissing() {
	_, err := s.store.GetItem(s.ctx, "0000000000000000000000000000dead")
	s.ErrorIs(err, ErrNotFound)
	_, err = s.store.GetBatch(s.ctx, "0000000000000000000000000000dead")
	s.ErrorIs(err, ErrNotFound)
}

func (s *MongoStoreSuite) TestCommitBatchIfAbsentIsAtomic() {
	first := newBatch("op-1", "g1", "archive:1", "archive:2")
	committed, err := s.store.CommitBatchIfAbsent(s.ctx, "g1", first)
	s.Require().NoError(err)
	s.True(committed)

	committed, err = s.store.CommitBatchIfAbsent(s.ctx, "g1", newBatch("op-1", "g1", "archive:3"))
	s.Require().NoError(err)
	s.False(committed)

	got, err := s.store.GetBatch(s.ctx, first.ID)
	s.Require().NoError(err)
	s.Equal([]string{"archive:1", "archive:2"}, got.ArchiveRefs)

	n, err := s.store.CountBatches(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}
