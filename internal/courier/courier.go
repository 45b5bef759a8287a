// Package courier is the HTTP adapter to the external messaging platform.
// It carries every outbound interaction: archiving uploads into the durable
// channel, replaying archived items to requesters, plain text replies, deny
// prompts, group-standing lookups, and the pull transport's update feed.
package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"filegate/internal/delivery"
	"filegate/internal/ingest"
	"filegate/internal/membership"
	"filegate/pkg/fault"
)

// Client talks to the platform's HTTP API.
type Client struct {
	baseURL        string
	token          string
	archiveChannel string
	http           *http.Client
	logger         *slog.Logger

	// offset is the high-water mark of consumed updates for the pull feed.
	offset atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient swaps the underlying transport, mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New constructs a Client for the given API base URL and archive channel.
func New(baseURL, token, archiveChannel string, opts ...Option) *Client {
	c := &Client{
		baseURL:        baseURL,
		token:          token,
		archiveChannel: archiveChannel,
		http:           &http.Client{Timeout: 10 * time.Second},
		logger:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Archive copies an uploaded item into the archive channel and returns the
// durable reference later replays resolve.
func (c *Client) Archive(ctx context.Context, sourceRef string) (string, error) {
	var out struct {
		ArchiveRef string `json:"archive_ref"`
	}
	err := c.post(ctx, "/copy", map[string]string{
		"source_ref": sourceRef,
		"channel":    c.archiveChannel,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("archive %q: %w", sourceRef, err)
	}
	return out.ArchiveRef, nil
}

// Replay sends one archived item to the requester.
func (c *Client) Replay(ctx context.Context, requesterID, archiveRef string) error {
	err := c.post(ctx, "/forward", map[string]string{
		"recipient":   requesterID,
		"archive_ref": archiveRef,
	}, nil)
	if err != nil {
		return fmt.Errorf("replay %q to %s: %w", archiveRef, requesterID, err)
	}
	return nil
}

// SendText delivers a plain text message.
func (c *Client) SendText(ctx context.Context, recipientID, text string) error {
	err := c.post(ctx, "/send", map[string]any{
		"recipient": recipientID,
		"text":      text,
	}, nil)
	if err != nil {
		return fmt.Errorf("send text to %s: %w", recipientID, err)
	}
	return nil
}

// SendPrompt renders the deny prompt: one join button per failing group and
// a retry button carrying the original payload as callback data.
func (c *Client) SendPrompt(ctx context.Context, recipientID, text string, entries []delivery.PromptEntry, retryPayload string) error {
	type button struct {
		Label    string `json:"label"`
		GroupID  string `json:"group_id,omitempty"`
		Callback string `json:"callback,omitempty"`
	}
	buttons := make([]button, 0, len(entries)+1)
	for _, e := range entries {
		buttons = append(buttons, button{Label: e.Reason, GroupID: e.GroupID})
	}
	buttons = append(buttons, button{Label: "Retry", Callback: retryPayload})

	err := c.post(ctx, "/send", map[string]any{
		"recipient": recipientID,
		"text":      text,
		"buttons":   buttons,
	}, nil)
	if err != nil {
		return fmt.Errorf("send prompt to %s: %w", recipientID, err)
	}
	return nil
}

// Standing resolves one user's standing in one group. Unrecognized statuses
// come back as unknown, which the gate treats as a failure.
func (c *Client) Standing(ctx context.Context, groupID, userID string) (membership.Standing, error) {
	var out struct {
		Status string `json:"status"`
	}
	err := c.post(ctx, "/member", map[string]string{
		"group": groupID,
		"user":  userID,
	}, &out)
	if err != nil {
		return membership.StandingUnknown, fmt.Errorf("standing of %s in %s: %w", userID, groupID, err)
	}
	switch out.Status {
	case "member":
		return membership.StandingMember, nil
	case "administrator", "creator":
		return membership.StandingAdministrator, nil
	case "left":
		return membership.StandingLeft, nil
	case "kicked", "banned":
		return membership.StandingRemoved, nil
	default:
		return membership.StandingUnknown, nil
	}
}

// Fetch drains the next page of updates for the pull transport, advancing
// the consumed-offset high-water mark.
func (c *Client) Fetch(ctx context.Context) ([]ingest.Event, error) {
	var out struct {
		Offset int64          `json:"offset"`
		Events []ingest.Event `json:"events"`
	}
	err := c.post(ctx, "/updates", map[string]string{
		"offset": strconv.FormatInt(c.offset.Load(), 10),
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("fetch updates: %w", err)
	}
	if out.Offset > c.offset.Load() {
		c.offset.Store(out.Offset)
	}
	return out.Events, nil
}

// post performs one API call. Rate limits and server-side failures map to
// unavailable faults so callers can retry them; everything else is terminal.
func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fault.Wrap(fault.CodeUnavailable, "courier unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return fault.New(fault.CodeUnavailable, fmt.Sprintf("courier responded %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fault.New(fault.CodeInternal, fmt.Sprintf("courier rejected %s: %d %s", path, resp.StatusCode, msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
