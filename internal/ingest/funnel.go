package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"filegate/internal/batch"
	"filegate/internal/content/models"
	"filegate/internal/delivery"
	"filegate/internal/platform/config"
	"filegate/internal/platform/metrics"
	"filegate/internal/stats"
	"filegate/internal/token"
	"filegate/internal/user"
	"filegate/pkg/fault"
)

// laneBuffer bounds how many classified requests may queue per sender before
// the transport blocks.
const laneBuffer = 64

// Deliverer redeems a decoded content reference.
type Deliverer interface {
	Deliver(ctx context.Context, requesterID string, kind token.Kind, id string) (*delivery.Result, error)
}

// Sessions is the batch-session surface the funnel drives.
type Sessions interface {
	Append(ownerID, sourceRef, groupKey string) (opened bool, pending int)
	Close(ctx context.Context, ownerID string) (*batch.Result, error)
	Abandon(ownerID string) bool
	Pending(ownerID string) int
}

// ItemWriter is the write slice of the content store for single uploads.
type ItemWriter interface {
	PutItem(ctx context.Context, item *models.ContentItem) error
}

// Broadcaster fans an announcement out to every registered user.
type Broadcaster interface {
	Broadcast(ctx context.Context, text string) (sent, failed int, err error)
}

// StatsReader backs the stats command.
type StatsReader interface {
	Snapshot(ctx context.Context) (stats.Snapshot, error)
}

// Responder renders funnel outcomes back to the sender.
type Responder interface {
	SendText(ctx context.Context, recipientID, text string) error
	SendPrompt(ctx context.Context, recipientID, text string, entries []delivery.PromptEntry, retryPayload string) error
}

// Deps bundles the funnel's collaborators.
type Deps struct {
	Config    config.Config
	Users     user.Store
	Items     ItemWriter
	Archiver  batch.Archiver
	Sessions  Sessions
	Engine    Deliverer
	Broadcast Broadcaster
	Stats     StatsReader
	Responder Responder
}

// Funnel classifies inbound events and dispatches them to the domain
// services. Events from different senders run in parallel; events from one
// sender are processed strictly in arrival order through that sender's lane.
type Funnel struct {
	deps    Deps
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	mu     sync.RWMutex
	lanes  map[string]chan Request
	wg     sync.WaitGroup
	closed bool
}

// Option configures a Funnel.
type Option func(*Funnel)

func WithLogger(logger *slog.Logger) Option {
	return func(f *Funnel) { f.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Funnel) { f.metrics = m }
}

// WithTimeout bounds the collaborator calls made while handling one event.
func WithTimeout(d time.Duration) Option {
	return func(f *Funnel) { f.timeout = d }
}

// New constructs a Funnel.
func New(deps Deps, opts ...Option) *Funnel {
	f := &Funnel{
		deps:    deps,
		logger:  slog.New(slog.DiscardHandler),
		timeout: 5 * time.Second,
		lanes:   make(map[string]chan Request),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Submit classifies one wire event and queues it on the sender's lane.
// Unclassifiable events are counted and dropped with a diagnostic; events
// arriving after Shutdown are dropped, never a panic.
func (f *Funnel) Submit(ev Event) {
	req, ok := Classify(ev)
	if !ok {
		f.metrics.ObserveDropped()
		f.logger.Debug("unclassifiable event dropped", "sender", ev.SenderID)
		return
	}
	f.metrics.ObserveClassified(req.requestType())

	if !f.enqueue(ev.SenderID, req) {
		f.logger.Warn("event after shutdown dropped", "sender", ev.SenderID)
	}
}

// enqueue queues the request on the sender's lane, starting its worker on
// first use. The send happens under the registry lock so Shutdown, which
// closes lanes under the write lock, can never race it onto a closed
// channel. Lane workers drain without taking the lock, so a full lane only
// blocks the submitting transport, not the whole funnel.
func (f *Funnel) enqueue(senderID string, req Request) bool {
	f.mu.RLock()
	if f.closed {
		f.mu.RUnlock()
		return false
	}
	if lane, ok := f.lanes[senderID]; ok {
		lane <- req
		f.mu.RUnlock()
		return true
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	lane, ok := f.lanes[senderID]
	if !ok {
		lane = make(chan Request, laneBuffer)
		f.lanes[senderID] = lane
		f.wg.Add(1)
		go f.drain(lane)
	}
	lane <- req
	return true
}

func (f *Funnel) drain(lane chan Request) {
	defer f.wg.Done()
	for req := range lane {
		f.dispatch(req)
	}
}

// Shutdown stops accepting events and waits for queued ones to finish.
func (f *Funnel) Shutdown() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	for _, lane := range f.lanes {
		close(lane)
	}
	f.mu.Unlock()
	f.wg.Wait()
}

// dispatch handles one classified request. A panic in any handler is
// recovered and logged so one poisoned event cannot take the lane down.
func (f *Funnel) dispatch(req Request) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("event handler panicked",
				"request", req.requestType(),
				"panic", r,
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	switch r := req.(type) {
	case EntryPoint:
		f.handleEntryPoint(ctx, r)
	case RetryCallback:
		f.register(ctx, r.RequesterID, "")
		f.redeem(ctx, r.RequesterID, r.Payload)
	case OperatorUpload:
		f.handleUpload(ctx, r)
	case Command:
		f.handleCommand(ctx, r)
	}
}

// register upserts the sender into the user registry. Best effort: a failed
// upsert never blocks the event it rode in on. FirstSeenAt sticks only on
// first registration; the store keeps the original on every later event.
func (f *Funnel) register(ctx context.Context, id, name string) {
	now := time.Now()
	u := &user.User{ID: id, DisplayName: name, FirstSeenAt: now, LastSeenAt: now}
	if err := f.deps.Users.Upsert(ctx, u); err != nil {
		f.logger.WarnContext(ctx, "user registration failed", "user", id, "error", err)
	}
}

func (f *Funnel) handleEntryPoint(ctx context.Context, r EntryPoint) {
	f.register(ctx, r.RequesterID, r.RequesterName)
	if r.Payload == "" {
		f.reply(ctx, r.RequesterID, "Hello! Open a shared link to receive its content.")
		return
	}
	f.redeem(ctx, r.RequesterID, r.Payload)
}

// redeem decodes the payload and runs the delivery pipeline, rendering each
// outcome back to the requester.
func (f *Funnel) redeem(ctx context.Context, requesterID, payload string) {
	kind, id, err := token.Decode(payload)
	if err != nil {
		f.logger.InfoContext(ctx, "malformed redemption payload",
			"requester", requesterID,
			"error", err,
		)
		f.reply(ctx, requesterID, "That link is not valid.")
		return
	}

	res, err := f.deps.Engine.Deliver(ctx, requesterID, kind, id)
	if err != nil {
		f.logger.ErrorContext(ctx, "delivery failed",
			"requester", requesterID,
			"payload", payload,
			"error", err,
		)
		f.reply(ctx, requesterID, "Something went wrong, please try again later.")
		return
	}

	switch res.Outcome {
	case delivery.OutcomeNotFound:
		f.reply(ctx, requesterID, "This content is no longer available.")
	case delivery.OutcomeDenied:
		const text = "Join the groups below, then press retry."
		if err := f.deps.Responder.SendPrompt(ctx, requesterID, text, res.Prompt, res.RetryPayload); err != nil {
			f.logger.ErrorContext(ctx, "deny prompt send failed", "requester", requesterID, "error", err)
		}
	}
}

func (f *Funnel) handleUpload(ctx context.Context, r OperatorUpload) {
	if !f.authorize(ctx, r.OwnerID, "upload") {
		return
	}

	// Grouped uploads, and any upload while a session is open, accumulate in
	// the operator's batch session. A lone ungrouped upload is stored and
	// linked immediately.
	if r.GroupKey != "" || f.deps.Sessions.Pending(r.OwnerID) > 0 {
		opened, pending := f.deps.Sessions.Append(r.OwnerID, r.SourceRef, r.GroupKey)
		if opened {
			f.reply(ctx, r.OwnerID, "Batch opened. Send /done when finished or /cancel to discard.")
		}
		f.logger.InfoContext(ctx, "upload queued",
			"owner", r.OwnerID,
			"pending", pending,
			"opened", opened,
		)
		return
	}

	archiveRef, err := f.deps.Archiver.Archive(ctx, r.SourceRef)
	if err != nil {
		f.logger.ErrorContext(ctx, "archive failed", "owner", r.OwnerID, "error", err)
		f.reply(ctx, r.OwnerID, "Archiving failed, please resend the file.")
		return
	}
	item := &models.ContentItem{
		ID:         token.Mint(),
		ArchiveRef: archiveRef,
		OwnerID:    r.OwnerID,
		CreatedAt:  time.Now(),
	}
	if err := f.deps.Items.PutItem(ctx, item); err != nil {
		f.logger.ErrorContext(ctx, "item store failed", "owner", r.OwnerID, "error", err)
		f.reply(ctx, r.OwnerID, "Storing failed, please resend the file.")
		return
	}
	f.reply(ctx, r.OwnerID, "Stored. Share this link payload: "+token.Encode(token.KindFile, item.ID))
}

func (f *Funnel) handleCommand(ctx context.Context, r Command) {
	f.register(ctx, r.SenderID, r.SenderName)

	switch r.Name {
	case "done":
		if !f.authorize(ctx, r.SenderID, "close") {
			return
		}
		f.closeBatch(ctx, r.SenderID)
	case "cancel":
		if !f.authorize(ctx, r.SenderID, "cancel") {
			return
		}
		if f.deps.Sessions.Abandon(r.SenderID) {
			f.reply(ctx, r.SenderID, "Batch discarded.")
			return
		}
		f.reply(ctx, r.SenderID, "No open batch.")
	case "broadcast":
		if !f.authorize(ctx, r.SenderID, "broadcast") {
			return
		}
		text := strings.TrimSpace(strings.Join(r.Args, " "))
		if text == "" {
			f.reply(ctx, r.SenderID, "Usage: /broadcast <message>")
			return
		}
		sent, failed, err := f.deps.Broadcast.Broadcast(ctx, text)
		if err != nil {
			f.logger.ErrorContext(ctx, "broadcast failed", "operator", r.SenderID, "error", err)
			f.reply(ctx, r.SenderID, "Broadcast failed.")
			return
		}
		f.reply(ctx, r.SenderID, fmt.Sprintf("Broadcast done: %d sent, %d failed.", sent, failed))
	case "stats":
		if !f.authorize(ctx, r.SenderID, "stats") {
			return
		}
		snap, err := f.deps.Stats.Snapshot(ctx)
		if err != nil {
			f.logger.ErrorContext(ctx, "stats read failed", "operator", r.SenderID, "error", err)
			f.reply(ctx, r.SenderID, "Stats unavailable.")
			return
		}
		f.reply(ctx, r.SenderID, fmt.Sprintf("Users: %d, files: %d, batches: %d.",
			snap.Users, snap.Items, snap.Batches))
	default:
		f.metrics.ObserveDropped()
		f.logger.Debug("unknown command ignored", "sender", r.SenderID, "command", r.Name)
	}
}

func (f *Funnel) closeBatch(ctx context.Context, operatorID string) {
	res, err := f.deps.Sessions.Close(ctx, operatorID)
	if errors.Is(err, batch.ErrNothingToCommit) {
		f.reply(ctx, operatorID, "Nothing to commit.")
		return
	}
	if err != nil {
		f.logger.ErrorContext(ctx, "batch close failed", "operator", operatorID, "error", err)
		f.reply(ctx, operatorID, "Closing the batch failed; the pending items were dropped.")
		return
	}
	f.reply(ctx, operatorID, "Stored. Share this link payload: "+token.Encode(token.KindBatch, res.Batch.ID))
}

// authorize enforces the operator allow-list before any side effect. The
// rejection is informative, not silent.
func (f *Funnel) authorize(ctx context.Context, senderID, action string) bool {
	if f.deps.Config.IsAdmin(senderID) {
		return true
	}
	err := fault.New(fault.CodeUnauthorized, "sender is not an operator")
	f.logger.WarnContext(ctx, "operator action rejected",
		"sender", senderID,
		"action", action,
		"error", err,
	)
	f.reply(ctx, senderID, "You are not allowed to do that.")
	return false
}

func (f *Funnel) reply(ctx context.Context, recipientID, text string) {
	if err := f.deps.Responder.SendText(ctx, recipientID, text); err != nil {
		f.logger.WarnContext(ctx, "reply send failed", "recipient", recipientID, "error", err)
	}
}
