package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"filegate/internal/content/models"
	"filegate/internal/platform/metrics"
	"filegate/internal/token"
	"filegate/pkg/fault"
)

// Store is the slice of the content store the aggregator commits through.
type Store interface {
	CommitBatchIfAbsent(ctx context.Context, groupKey string, batch *models.Batch) (bool, error)
}

// Archiver copies an uploaded item into durable storage and returns the
// archive reference later replays resolve.
type Archiver interface {
	Archive(ctx context.Context, sourceRef string) (string, error)
}

// ErrNothingToCommit is the close-with-no-pending-items outcome. It is a
// reportable result, not a crash: the operator simply had nothing queued.
var ErrNothingToCommit = fault.New(fault.CodeNotFound, "no pending items to commit")

// session accumulates one operator's uploads between open and close.
type session struct {
	groupKey string
	pending  []string
}

// slot serializes all session mutation for one operator. Each operator owns
// a slot so concurrent uploads from different operators never contend.
type slot struct {
	mu      sync.Mutex
	current *session
}

// Aggregator tracks one ephemeral session per operator. Sessions live only
// in process memory: a restart abandons in-flight batches rather than
// risking a corrupt half-commit.
type Aggregator struct {
	store    Store
	archiver Archiver
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu    sync.Mutex
	slots map[string]*slot
}

// Option configures an Aggregator.
type Option func(*Aggregator)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// New constructs an Aggregator.
func New(store Store, archiver Archiver, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:    store,
		archiver: archiver,
		logger:   slog.New(slog.DiscardHandler),
		slots:    make(map[string]*slot),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// slotFor returns the operator's slot, creating it on first use. Only the
// registry map itself is guarded globally; the lookup is quick so unrelated
// operators are never serialized against each other's collaborator calls.
func (a *Aggregator) slotFor(ownerID string) *slot {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.slots[ownerID]
	if !ok {
		s = &slot{}
		a.slots[ownerID] = s
	}
	return s
}

// Append records one uploaded source reference for the operator. The first
// upload from an operator with no open session opens one; every upload while
// a session is open appends, including redelivered open signals. Reports
// whether this call opened the session and how many items are pending after
// the append.
func (a *Aggregator) Append(ownerID, sourceRef, groupKey string) (opened bool, pending int) {
	s := a.slotFor(ownerID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		s.current = &session{}
		opened = true
	}
	if s.current.groupKey == "" {
		s.current.groupKey = groupKey
	}
	s.current.pending = append(s.current.pending, sourceRef)
	return opened, len(s.current.pending)
}

// Result describes a successful close.
type Result struct {
	Batch *models.Batch
	// Committed is false when the idempotency guard found an earlier commit
	// for the same correlation key; the batch named here was still archived
	// and the close is reported as success either way.
	Committed bool
}

// Close consumes the operator's session and commits a batch record. The
// session is consumed before any collaborator call so duplicate or racing
// close signals observe the Closed state immediately (exactly-once session,
// at-most-once persisted batch per correlation key).
//
// Errors: ErrNothingToCommit when no session is open or nothing is pending;
// CodeUnavailable when archiving or the commit itself failed, in which case
// the pending items are lost with the session, not half-committed.
func (a *Aggregator) Close(ctx context.Context, ownerID string) (*Result, error) {
	s := a.slotFor(ownerID)

	s.mu.Lock()
	sess := s.current
	s.current = nil
	s.mu.Unlock()

	if sess == nil || len(sess.pending) == 0 {
		return nil, ErrNothingToCommit
	}

	refs := make([]string, 0, len(sess.pending))
	for _, sourceRef := range sess.pending {
		ref, err := a.archiver.Archive(ctx, sourceRef)
		if err != nil {
			return nil, fault.Wrap(fault.CodeUnavailable, "archive pending item", err)
		}
		refs = append(refs, ref)
	}

	groupKey := sess.groupKey
	b := &models.Batch{
		ID:          token.Mint(),
		GroupKey:    groupKey,
		ArchiveRefs: refs,
		OwnerID:     ownerID,
		CreatedAt:   time.Now(),
	}
	if groupKey == "" {
		// No correlation key from the transport; the minted id is the only
		// handle, and a duplicate close cannot exist for it.
		b.GroupKey = b.ID
	}

	committed, err := a.store.CommitBatchIfAbsent(ctx, b.GroupKey, b)
	if err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}
	a.metrics.ObserveBatchCommit(committed)
	if !committed {
		a.logger.InfoContext(ctx, "duplicate batch commit swallowed",
			"owner", ownerID,
			"group_key", b.GroupKey,
		)
	}
	return &Result{Batch: b, Committed: committed}, nil
}

// Abandon drops the operator's open session without committing. Reports
// whether a session with pending items was discarded.
func (a *Aggregator) Abandon(ownerID string) bool {
	s := a.slotFor(ownerID)
	s.mu.Lock()
	defer s.mu.Unlock()
	had := s.current != nil && len(s.current.pending) > 0
	s.current = nil
	return had
}

// Pending reports the number of items queued for the operator.
func (a *Aggregator) Pending(ownerID string) int {
	s := a.slotFor(ownerID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0
	}
	return len(s.current.pending)
}
