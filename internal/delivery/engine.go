package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"filegate/internal/content/models"
	"filegate/internal/content/store"
	"filegate/internal/membership"
	"filegate/internal/platform/metrics"
	"filegate/internal/token"
	"filegate/pkg/fault"
)

// Replayer sends an archived item back out to a requester.
type Replayer interface {
	Replay(ctx context.Context, requesterID, archiveRef string) error
}

// Gate is the membership predicate the engine consults before replaying.
type Gate interface {
	Check(ctx context.Context, requesterID string, groups []string) membership.Verdict
}

// Resolver is the read side of the content store.
type Resolver interface {
	GetItem(ctx context.Context, id string) (*models.ContentItem, error)
	GetBatch(ctx context.Context, id string) (*models.Batch, error)
}

// Outcome classifies a redemption attempt.
type Outcome string

const (
	// OutcomeDelivered means every archived item was replayed.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeDenied means the gate said no; the result carries the prompt.
	OutcomeDenied Outcome = "denied"
	// OutcomeNotFound means the identifier resolves to no record.
	OutcomeNotFound Outcome = "not_found"
	// OutcomeFailed means a collaborator fault interrupted the replay.
	OutcomeFailed Outcome = "failed"
)

// PromptEntry is one actionable row in the deny prompt.
type PromptEntry struct {
	GroupID string
	Reason  string
}

// Result is what the transport renders back to the requester.
type Result struct {
	Outcome Outcome
	// Replayed counts items actually sent on OutcomeDelivered.
	Replayed int
	// Prompt holds one entry per failing group on OutcomeDenied.
	Prompt []PromptEntry
	// RetryPayload carries the original "<kind>_<id>" reference so the
	// retry affordance re-enters verification without a fresh entry point.
	RetryPayload string
}

// Engine replays archived content to requesters who pass the gate.
type Engine struct {
	resolver Resolver
	gate     Gate
	replayer Replayer
	groups   []string
	logger   *slog.Logger
	metrics  *metrics.Metrics
	// replayBudget caps the total time spent retrying one archived ref.
	replayBudget time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithReplayBudget bounds retries of a rate-limited replay.
func WithReplayBudget(d time.Duration) Option {
	return func(e *Engine) { e.replayBudget = d }
}

// New constructs an Engine gating on the given ordered group set.
func New(resolver Resolver, gate Gate, replayer Replayer, groups []string, opts ...Option) *Engine {
	e := &Engine{
		resolver:     resolver,
		gate:         gate,
		replayer:     replayer,
		groups:       groups,
		logger:       slog.New(slog.DiscardHandler),
		replayBudget: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Deliver redeems a decoded content reference for the requester. Neither the
// deny path nor the allow path writes any state; the only side effect of an
// Allow is the replay itself.
func (e *Engine) Deliver(ctx context.Context, requesterID string, kind token.Kind, id string) (*Result, error) {
	refs, err := e.resolve(ctx, kind, id)
	if errors.Is(err, store.ErrNotFound) {
		e.metrics.ObserveDelivery(string(OutcomeNotFound))
		return &Result{Outcome: OutcomeNotFound}, nil
	}
	if err != nil {
		e.metrics.ObserveDelivery(string(OutcomeFailed))
		return &Result{Outcome: OutcomeFailed}, err
	}

	verdict := e.gate.Check(ctx, requesterID, e.groups)
	if !verdict.Allowed {
		e.metrics.ObserveDelivery(string(OutcomeDenied))
		return &Result{
			Outcome:      OutcomeDenied,
			Prompt:       buildPrompt(verdict),
			RetryPayload: token.Encode(kind, id),
		}, nil
	}

	for i, ref := range refs {
		if err := e.replay(ctx, requesterID, ref); err != nil {
			e.logger.ErrorContext(ctx, "replay failed",
				"requester", requesterID,
				"archive_ref", ref,
				"position", i,
				"error", err,
			)
			e.metrics.ObserveDelivery(string(OutcomeFailed))
			return &Result{Outcome: OutcomeFailed, Replayed: i}, err
		}
	}

	e.metrics.ObserveDelivery(string(OutcomeDelivered))
	return &Result{Outcome: OutcomeDelivered, Replayed: len(refs)}, nil
}

// resolve maps an identifier to its archive refs, in stored order for a batch.
func (e *Engine) resolve(ctx context.Context, kind token.Kind, id string) ([]string, error) {
	switch kind {
	case token.KindFile:
		item, err := e.resolver.GetItem(ctx, id)
		if err != nil {
			return nil, err
		}
		return []string{item.ArchiveRef}, nil
	case token.KindBatch:
		b, err := e.resolver.GetBatch(ctx, id)
		if err != nil {
			return nil, err
		}
		return b.ArchiveRefs, nil
	default:
		return nil, fault.New(fault.CodeMalformedPayload, "unknown token kind")
	}
}

// replay sends one archived ref, retrying transient faults with exponential
// backoff. Anything but CodeUnavailable is permanent.
func (e *Engine) replay(ctx context.Context, requesterID, archiveRef string) error {
	operation := func() error {
		err := e.replayer.Replay(ctx, requesterID, archiveRef)
		if err == nil {
			return nil
		}
		if fault.CodeOf(err) == fault.CodeUnavailable {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(200*time.Millisecond),
		backoff.WithMaxElapsedTime(e.replayBudget),
	), ctx)

	notify := func(err error, wait time.Duration) {
		e.metrics.ObserveReplayRetry()
		e.logger.WarnContext(ctx, "replay retry scheduled",
			"requester", requesterID,
			"archive_ref", archiveRef,
			"wait", wait,
			"error", err,
		)
	}

	return backoff.RetryNotify(operation, policy, notify)
}

// buildPrompt renders one actionable entry per failing group.
func buildPrompt(verdict membership.Verdict) []PromptEntry {
	prompt := make([]PromptEntry, 0, len(verdict.Failing))
	for _, res := range verdict.Failing {
		prompt = append(prompt, PromptEntry{
			GroupID: res.GroupID,
			Reason:  reasonFor(res),
		})
	}
	return prompt
}

func reasonFor(res membership.GroupResult) string {
	if res.Err != nil {
		return "membership could not be verified"
	}
	switch res.Standing {
	case membership.StandingLeft:
		return "you left this group"
	case membership.StandingRemoved:
		return "you were removed from this group"
	default:
		return "you are not a member of this group"
	}
}
