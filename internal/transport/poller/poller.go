package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"filegate/internal/ingest"
)

// UpdateSource hands out the next slice of inbound events. Implementations
// are expected to long-poll or block up to the context deadline.
type UpdateSource interface {
	Fetch(ctx context.Context) ([]ingest.Event, error)
}

// EventSink accepts normalized inbound events.
type EventSink interface {
	Submit(ev ingest.Event)
}

// Poller is the pull transport. It drains the update source in a loop and
// feeds the same funnel the webhook does; the core cannot tell them apart.
type Poller struct {
	source   UpdateSource
	sink     EventSink
	logger   *slog.Logger
	timeout  time.Duration
	interval time.Duration
}

// Option configures a Poller.
type Option func(*Poller)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) { p.logger = logger }
}

// WithTimeout bounds one Fetch call.
func WithTimeout(d time.Duration) Option {
	return func(p *Poller) { p.timeout = d }
}

// WithInterval sets the pause after an empty or failed fetch.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

// New constructs a Poller.
func New(source UpdateSource, sink EventSink, opts ...Option) *Poller {
	p := &Poller{
		source:   source,
		sink:     sink,
		logger:   slog.New(slog.DiscardHandler),
		timeout:  5 * time.Second,
		interval: time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until ctx is canceled. Fetch errors are logged and retried after
// the configured interval; they never stop the loop.
func (p *Poller) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		events, err := p.fetch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			p.logger.WarnContext(ctx, "update fetch failed", "error", err)
			if !p.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}

		for _, ev := range events {
			p.sink.Submit(ev)
		}
		if len(events) == 0 {
			if !p.sleep(ctx) {
				return ctx.Err()
			}
		}
	}
}

func (p *Poller) fetch(ctx context.Context) ([]ingest.Event, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.source.Fetch(fetchCtx)
}

// sleep waits one interval, reporting false when ctx ended first.
func (p *Poller) sleep(ctx context.Context) bool {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
