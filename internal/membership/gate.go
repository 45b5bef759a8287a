package membership

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"filegate/internal/platform/metrics"
)

// Standing is a requester's current relationship to one configured group, as
// reported by the group-standing collaborator.
type Standing string

const (
	StandingMember        Standing = "member"
	StandingAdministrator Standing = "administrator"
	StandingLeft          Standing = "left"
	StandingRemoved       Standing = "removed"
	StandingUnknown       Standing = "unknown"
)

// passes reports whether the standing satisfies the gate.
func (st Standing) passes() bool {
	return st == StandingMember || st == StandingAdministrator
}

// StandingClient is the group-standing collaborator.
type StandingClient interface {
	Standing(ctx context.Context, groupID, userID string) (Standing, error)
}

// GroupResult is the per-group detail attached to a verdict. Err is set when
// the collaborator could not be queried for that group.
type GroupResult struct {
	GroupID  string
	Standing Standing
	Err      error
}

// Verdict is the aggregate outcome of a gate evaluation. It is never
// partially computed: every configured group appears either implicitly in an
// Allow or explicitly in Failing.
type Verdict struct {
	Allowed bool
	// Failing lists every unmet group in configured order so the deny
	// prompt can render one actionable entry per group.
	Failing []GroupResult
}

// Gate evaluates requesters against the configured group set.
type Gate struct {
	client  StandingClient
	cache   StandingCache
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

// Option configures a Gate.
type Option func(*Gate)

func WithCache(cache StandingCache) Option {
	return func(g *Gate) { g.cache = cache }
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithTimeout bounds each collaborator query. Zero means no per-query bound
// beyond the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) { g.timeout = d }
}

// New constructs a Gate over the standing collaborator.
func New(client StandingClient, opts ...Option) *Gate {
	g := &Gate{client: client, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check evaluates the requester against every group independently: a failure
// or error on one group never short-circuits the rest, so the verdict can
// enumerate everything the requester still has to fix. A collaborator error
// marks that group failing with StandingUnknown (fail-closed).
func (g *Gate) Check(ctx context.Context, requesterID string, groups []string) Verdict {
	start := time.Now()
	results := make([]GroupResult, len(groups))

	var eg errgroup.Group
	for i, groupID := range groups {
		eg.Go(func() error {
			standing, err := g.lookup(ctx, groupID, requesterID)
			if err != nil {
				g.logger.ErrorContext(ctx, "standing query failed",
					"group", groupID,
					"user", requesterID,
					"error", err,
				)
				results[i] = GroupResult{GroupID: groupID, Standing: StandingUnknown, Err: err}
				return nil
			}
			results[i] = GroupResult{GroupID: groupID, Standing: standing}
			return nil
		})
	}
	_ = eg.Wait()

	verdict := Verdict{Allowed: true}
	for _, res := range results {
		if res.Err != nil || !res.Standing.passes() {
			verdict.Allowed = false
			verdict.Failing = append(verdict.Failing, res)
		}
	}

	g.metrics.ObserveVerdict(verdict.Allowed)
	g.metrics.ObserveGateDuration(time.Since(start).Seconds())
	return verdict
}

// lookup consults the cache first; errors on the cache path degrade to a
// collaborator query, never to a verdict error.
func (g *Gate) lookup(ctx context.Context, groupID, userID string) (Standing, error) {
	if g.cache != nil {
		if standing, ok := g.cache.Get(ctx, groupID, userID); ok {
			return standing, nil
		}
	}

	queryCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	standing, err := g.client.Standing(queryCtx, groupID, userID)
	if err != nil {
		return StandingUnknown, err
	}

	// Only passing standings are cached. A failing one must be re-queried on
	// the next attempt so a requester who joins the group and presses retry
	// is not denied from a stale cache entry.
	if g.cache != nil && standing.passes() {
		g.cache.Set(ctx, groupID, userID, standing)
	}
	return standing, nil
}
