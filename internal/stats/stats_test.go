package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"filegate/internal/content/models"
	"filegate/internal/content/store"
	"filegate/internal/token"
	"filegate/internal/user"
)

type StatsSuite struct {
	suite.Suite
	users   *user.InMemory
	content *store.InMemory
	svc     *Service
	ctx     context.Context
}

func TestStatsSuite(t *testing.T) {
	suite.Run(t, new(StatsSuite))
}

func (s *StatsSuite) SetupTest() {
	s.users = user.NewInMemory()
	s.content = store.NewInMemory()
	s.svc = New(s.users, s.content)
	s.ctx = context.Background()
}

func (s *StatsSuite) TestEmpty() {
	snap, err := s.svc.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Equal(Snapshot{}, snap)
}

func (s *StatsSuite) TestCountsEachRegistry() {
	s.Require().NoError(s.users.Upsert(s.ctx, &user.User{ID: "u1", LastSeenAt: time.Now()}))
	s.Require().NoError(s.users.Upsert(s.ctx, &user.User{ID: "u2", LastSeenAt: time.Now()}))
	s.Require().NoError(s.content.PutItem(s.ctx, &models.ContentItem{
		ID: token.Mint(), ArchiveRef: "archive:1", OwnerID: "op-1", CreatedAt: time.Now(),
	}))
	s.Require().NoError(s.content.PutBatch(s.ctx, &models.Batch{
		ID: token.Mint(), GroupKey: "g1", ArchiveRefs: []string{"archive:2"}, OwnerID: "op-1", CreatedAt: time.Now(),
	}))

	snap, err := s.svc.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Equal(Snapshot{Users: 2, Items: 1, Batches: 1}, snap)
}

func (s *StatsSuite) TestUpsertDoesNotDoubleCount() {
	s.Require().NoError(s.users.Upsert(s.ctx, &user.User{ID: "u1", LastSeenAt: time.Now()}))
	s.Require().NoError(s.users.Upsert(s.ctx, &user.User{ID: "u1", LastSeenAt: time.Now()}))

	snap, err := s.svc.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), snap.Users)
}
