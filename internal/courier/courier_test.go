package courier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"filegate/internal/delivery"
	"filegate/internal/ingest"
	"filegate/internal/membership"
	"filegate/pkg/fault"
)

// apiCall captures one request the fake platform saw.
type apiCall struct {
	path string
	auth string
	body map[string]any
}

type CourierSuite struct {
	suite.Suite
	mu      sync.Mutex
	calls   []apiCall
	status  int
	respond map[string]any
	server  *httptest.Server
	client  *Client
	ctx     context.Context
}

func TestCourierSuite(t *testing.T) {
	suite.Run(t, new(CourierSuite))
}

func (s *CourierSuite) SetupTest() {
	s.calls = nil
	s.status = http.StatusOK
	s.respond = map[string]any{}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.calls = append(s.calls, apiCall{path: r.URL.Path, auth: r.Header.Get("Authorization"), body: body})
		status, respond := s.status, s.respond
		s.mu.Unlock()
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(respond)
	}))
	s.client = New(s.server.URL, "tok-123", "chan-archive")
	s.ctx = context.Background()
}

func (s *CourierSuite) TearDownTest() {
	s.server.Close()
}

func (s *CourierSuite) lastCall() apiCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Require().NotEmpty(s.calls)
	return s.calls[len(s.calls)-1]
}

func (s *CourierSuite) TestArchive() {
	s.respond = map[string]any{"archive_ref": "arch-42"}

	ref, err := s.client.Archive(s.ctx, "src-1")
	s.Require().NoError(err)
	s.Equal("arch-42", ref)

	call := s.lastCall()
	s.Equal("/copy", call.path)
	s.Equal("Bearer tok-123", call.auth)
	s.Equal("src-1", call.body["source_ref"])
	s.Equal("chan-archive", call.body["channel"])
}

func (s *CourierSuite) TestReplay() {
	s.Require().NoError(s.client.Replay(s.ctx, "r1", "arch-42"))

	call := s.lastCall()
	s.Equal("/forward", call.path)
	s.Equal("r1", call.body["recipient"])
	s.Equal("arch-42", call.body["archive_ref"])
}

func (s *CourierSuite) TestRateLimitIsRetryable() {
	s.status = http.StatusTooManyRequests

	err := s.client.Replay(s.ctx, "r1", "arch-42")
	s.Require().Error(err)
	s.Equal(fault.CodeUnavailable, fault.CodeOf(err))
}

func (s *CourierSuite) TestClientErrorIsTerminal() {
	s.status = http.StatusBadRequest

	err := s.client.SendText(s.ctx, "r1", "hi")
	s.Require().Error(err)
	s.Equal(fault.CodeInternal, fault.CodeOf(err))
}

func (s *CourierSuite) TestSendPromptCarriesRetryButton() {
	entries := []delivery.PromptEntry{{GroupID: "g1", Reason: "you left this group"}}
	s.Require().NoError(s.client.SendPrompt(s.ctx, "r1", "join first", entries, "file_abc"))

	call := s.lastCall()
	s.Equal("/send", call.path)
	buttons, ok := call.body["buttons"].([]any)
	s.Require().True(ok)
	s.Require().Len(buttons, 2)
	last := buttons[1].(map[string]any)
	s.Equal("file_abc", last["callback"])
}

func (s *CourierSuite) TestStandingMapping() {
	cases := map[string]membership.Standing{
		"member":        membership.StandingMember,
		"administrator": membership.StandingAdministrator,
		"left":          membership.StandingLeft,
		"kicked":        membership.StandingRemoved,
		"restricted":    membership.StandingUnknown,
	}
	for status, want := range cases {
		s.Run(status, func() {
			s.mu.Lock()
			s.respond = map[string]any{"status": status}
			s.mu.Unlock()
			got, err := s.client.Standing(s.ctx, "g1", "u1")
			s.Require().NoError(err)
			s.Equal(want, got)
		})
	}
}

func (s *CourierSuite) TestFetchAdvancesOffset() {
	s.respond = map[string]any{
		"offset": 7,
		"events": []ingest.Event{{SenderID: "u1", Command: "start"}},
	}

	events, err := s.client.Fetch(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("u1", events[0].SenderID)
	s.Equal("0", s.lastCall().body["offset"])

	_, err = s.client.Fetch(s.ctx)
	s.Require().NoError(err)
	s.Equal("7", s.lastCall().body["offset"], "the consumed offset must advance")
}
