package broadcast

import (
	"context"
	"fmt"
	"log/slog"

	"filegate/internal/platform/metrics"
	"filegate/internal/user"
)

// Sender delivers one text message to one recipient.
type Sender interface {
	SendText(ctx context.Context, recipientID, text string) error
}

// Service fans an operator announcement out to every registered user.
// Per-recipient failures are logged and counted, never fatal: an unreachable
// user must not block the rest of the audience.
type Service struct {
	users   user.Store
	sender  Sender
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New constructs a broadcast Service.
func New(users user.Store, sender Sender, opts ...Option) *Service {
	s := &Service{users: users, sender: sender, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Broadcast sends text to every registered user in registry order. Returns
// how many sends succeeded and how many failed.
func (s *Service) Broadcast(ctx context.Context, text string) (sent, failed int, err error) {
	recipients, err := s.users.List(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list broadcast recipients: %w", err)
	}

	for _, recipient := range recipients {
		if err := s.sender.SendText(ctx, recipient.ID, text); err != nil {
			failed++
			s.metrics.ObserveBroadcastFailure()
			s.logger.WarnContext(ctx, "broadcast recipient unreachable",
				"recipient", recipient.ID,
				"error", err,
			)
			continue
		}
		sent++
	}
	return sent, failed, nil
}
