package stats

import (
	"context"
	"fmt"

	"filegate/internal/content/store"
	"filegate/internal/user"
)

// Snapshot is the operator-facing usage summary.
type Snapshot struct {
	Users   int64
	Items   int64
	Batches int64
}

// Service aggregates totals from the registries.
type Service struct {
	users   user.Store
	content store.Store
}

// New constructs a stats Service.
func New(users user.Store, content store.Store) *Service {
	return &Service{users: users, content: content}
}

// Snapshot reads current totals. Counts are point-in-time, not transactional.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	users, err := s.users.Count(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("count users: %w", err)
	}
	items, err := s.content.CountItems(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("count items: %w", err)
	}
	batches, err := s.content.CountBatches(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("count batches: %w", err)
	}
	return Snapshot{Users: users, Items: items, Batches: batches}, nil
}
