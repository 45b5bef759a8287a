package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"filegate/internal/ingest"
)

type fakeSink struct {
	mu     sync.Mutex
	events []ingest.Event
}

func (f *fakeSink) Submit(ev ingest.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeSink) received() []ingest.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ingest.Event(nil), f.events...)
}

// scriptedSource hands out batches in order, then blocks until canceled.
type scriptedSource struct {
	mu      sync.Mutex
	batches [][]ingest.Event
	errs    []error
}

func (s *scriptedSource) Fetch(ctx context.Context) ([]ingest.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	if len(s.batches) > 0 {
		b := s.batches[0]
		s.batches = s.batches[1:]
		return b, nil
	}
	return nil, nil
}

type PollerSuite struct {
	suite.Suite
	sink *fakeSink
}

func TestPollerSuite(t *testing.T) {
	suite.Run(t, new(PollerSuite))
}

func (s *PollerSuite) SetupTest() {
	s.sink = &fakeSink{}
}

func (s *PollerSuite) runUntilDrained(p *Poller, want int) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		if len(s.sink.received()) >= want {
			break
		}
		select {
		case <-deadline:
			s.FailNow("poller did not drain the source in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	s.ErrorIs(<-done, context.Canceled)
}

func (s *PollerSuite) TestDrainsBatchesInOrder() {
	source := &scriptedSource{batches: [][]ingest.Event{
		{{SenderID: "a"}, {SenderID: "b"}},
		{{SenderID: "c"}},
	}}
	p := New(source, s.sink, WithInterval(time.Millisecond))

	s.runUntilDrained(p, 3)

	got := s.sink.received()
	s.Require().Len(got, 3)
	s.Equal("a", got[0].SenderID)
	s.Equal("b", got[1].SenderID)
	s.Equal("c", got[2].SenderID)
}

func (s *PollerSuite) TestFetchErrorDoesNotStopTheLoop() {
	source := &scriptedSource{
		errs:    []error{errors.New("upstream hiccup")},
		batches: [][]ingest.Event{{{SenderID: "a"}}},
	}
	p := New(source, s.sink, WithInterval(time.Millisecond))

	s.runUntilDrained(p, 1)
	s.Equal("a", s.sink.received()[0].SenderID)
}

func (s *PollerSuite) TestStopsOnCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(&scriptedSource{}, s.sink, WithInterval(time.Millisecond))
	s.ErrorIs(p.Run(ctx), context.Canceled)
}
