package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"filegate/internal/user"
)

// fakeSender records deliveries and fails for configured recipients.
type fakeSender struct {
	mu       sync.Mutex
	sent     map[string][]string
	failures map[string]error
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[string][]string), failures: make(map[string]error)}
}

func (f *fakeSender) SendText(ctx context.Context, recipientID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures[recipientID]; err != nil {
		return err
	}
	f.sent[recipientID] = append(f.sent[recipientID], text)
	return nil
}

type BroadcastSuite struct {
	suite.Suite
	users  *user.InMemory
	sender *fakeSender
	svc    *Service
	ctx    context.Context
}

func TestBroadcastSuite(t *testing.T) {
	suite.Run(t, new(BroadcastSuite))
}

func (s *BroadcastSuite) SetupTest() {
	s.users = user.NewInMemory()
	s.sender = newFakeSender()
	s.svc = New(s.users, s.sender)
	s.ctx = context.Background()
}

func (s *BroadcastSuite) register(ids ...string) {
	for _, id := range ids {
		err := s.users.Upsert(s.ctx, &user.User{ID: id, LastSeenAt: time.Now()})
		s.Require().NoError(err)
	}
}

func (s *BroadcastSuite) TestReachesEveryRegisteredUser() {
	s.register("u1", "u2", "u3")

	sent, failed, err := s.svc.Broadcast(s.ctx, "hello")
	s.Require().NoError(err)
	s.Equal(3, sent)
	s.Zero(failed)
	for _, id := range []string{"u1", "u2", "u3"} {
		s.Equal([]string{"hello"}, s.sender.sent[id])
	}
}

func (s *BroadcastSuite) TestUnreachableRecipientDoesNotAbort() {
	s.register("u1", "u2", "u3")
	s.sender.failures["u2"] = errors.New("blocked the sender")

	sent, failed, err := s.svc.Broadcast(s.ctx, "hello")
	s.Require().NoError(err)
	s.Equal(2, sent)
	s.Equal(1, failed)
	s.Empty(s.sender.sent["u2"])
	s.NotEmpty(s.sender.sent["u1"])
	s.NotEmpty(s.sender.sent["u3"])
}

func (s *BroadcastSuite) TestEmptyRegistry() {
	sent, failed, err := s.svc.Broadcast(s.ctx, "hello")
	s.Require().NoError(err)
	s.Zero(sent)
	s.Zero(failed)
}

func (s *BroadcastSuite) TestLargeAudience() {
	for i := range 100 {
		s.register(fmt.Sprintf("u%03d", i))
	}
	sent, _, err := s.svc.Broadcast(s.ctx, "hello")
	s.Require().NoError(err)
	s.Equal(100, sent)
}
