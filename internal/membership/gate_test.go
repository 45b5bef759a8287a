package membership

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
)

// fakeStandingClient returns canned standings per group and records which
// groups were queried.
type fakeStandingClient struct {
	mu        sync.Mutex
	standings map[string]Standing
	errs      map[string]error
	queried   []string
}

func (f *fakeStandingClient) Standing(ctx context.Context, groupID, userID string) (Standing, error) {
	f.mu.Lock()
	f.queried = append(f.queried, groupID)
	f.mu.Unlock()
	if err := f.errs[groupID]; err != nil {
		return StandingUnknown, err
	}
	if st, ok := f.standings[groupID]; ok {
		return st, nil
	}
	return StandingUnknown, nil
}

func (f *fakeStandingClient) queriedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queried)
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]Standing
	hits    int
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]Standing)}
}

func (f *fakeCache) Get(ctx context.Context, groupID, userID string) (Standing, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.entries[groupID+":"+userID]
	if ok {
		f.hits++
	}
	return st, ok
}

func (f *fakeCache) Set(ctx context.Context, groupID, userID string, standing Standing) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[groupID+":"+userID] = standing
	f.sets++
}

type GateSuite struct {
	suite.Suite
	ctx context.Context
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func (s *GateSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *GateSuite) TestAllMemberAllows() {
	client := &fakeStandingClient{standings: map[string]Standing{
		"g1": StandingMember,
		"g2": StandingAdministrator,
	}}
	gate := New(client)

	verdict := gate.Check(s.ctx, "u1", []string{"g1", "g2"})
	s.True(verdict.Allowed)
	s.Empty(verdict.Failing)
}

func (s *GateSuite) TestFailingGroupsEnumeratedInOrder() {
	client := &fakeStandingClient{standings: map[string]Standing{
		"g1": StandingLeft,
		"g2": StandingMember,
		"g3": StandingRemoved,
	}}
	gate := New(client)

	verdict := gate.Check(s.ctx, "u1", []string{"g1", "g2", "g3"})
	s.False(verdict.Allowed)
	s.Require().Len(verdict.Failing, 2)
	s.Equal("g1", verdict.Failing[0].GroupID)
	s.Equal(StandingLeft, verdict.Failing[0].Standing)
	s.Equal("g3", verdict.Failing[1].GroupID)
	s.Equal(StandingRemoved, verdict.Failing[1].Standing)
}

func (s *GateSuite) TestCollaboratorErrorFailsClosed() {
	boom := errors.New("upstream down")
	client := &fakeStandingClient{
		standings: map[string]Standing{"g2": StandingMember},
		errs:      map[string]error{"g1": boom},
	}
	gate := New(client)

	verdict := gate.Check(s.ctx, "u1", []string{"g1", "g2"})
	s.False(verdict.Allowed)
	s.Require().Len(verdict.Failing, 1)
	s.Equal("g1", verdict.Failing[0].GroupID)
	s.ErrorIs(verdict.Failing[0].Err, boom)
}

func (s *GateSuite) TestNoShortCircuit() {
	client := &fakeStandingClient{
		standings: map[string]Standing{"g2": StandingMember, "g3": StandingMember},
		errs:      map[string]error{"g1": errors.New("upstream down")},
	}
	gate := New(client)

	gate.Check(s.ctx, "u1", []string{"g1", "g2", "g3"})
	s.Equal(3, client.queriedCount(), "every group must be evaluated")
}

func (s *GateSuite) TestUnknownStandingDenies() {
	client := &fakeStandingClient{standings: map[string]Standing{"g1": StandingUnknown}}
	gate := New(client)

	verdict := gate.Check(s.ctx, "u1", []string{"g1"})
	s.False(verdict.Allowed)
}

func (s *GateSuite) TestEmptyGroupSetAllows() {
	gate := New(&fakeStandingClient{})
	verdict := gate.Check(s.ctx, "u1", nil)
	s.True(verdict.Allowed)
}

func (s *GateSuite) TestFailingStandingIsNotCached() {
	client := &fakeStandingClient{standings: map[string]Standing{"g1": StandingLeft}}
	cache := newFakeCache()
	gate := New(client, WithCache(cache))

	verdict := gate.Check(s.ctx, "u1", []string{"g1"})
	s.False(verdict.Allowed)
	s.Zero(cache.sets, "a failing standing must not be cached")

	// The requester joins; the retry must see the fresh standing, not a
	// cached denial.
	client.standings["g1"] = StandingMember
	verdict = gate.Check(s.ctx, "u1", []string{"g1"})
	s.True(verdict.Allowed)
	s.Equal(2, client.queriedCount())
}

func (s *GateSuite) TestCacheHitSkipsCollaborator() {
	client := &fakeStandingClient{standings: map[string]Standing{"g1": StandingMember}}
	cache := newFakeCache()
	gate := New(client, WithCache(cache))

	verdict := gate.Check(s.ctx, "u1", []string{"g1"})
	s.True(verdict.Allowed)
	s.Equal(1, client.queriedCount())
	s.Equal(1, cache.sets)

	verdict = gate.Check(s.ctx, "u1", []string{"g1"})
	s.True(verdict.Allowed)
	s.Equal(1, client.queriedCount(), "second check must be served from cache")
	s.Equal(1, cache.hits)
}
