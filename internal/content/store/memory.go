package store

import (
	"context"
	"sync"

	"filegate/internal/content/models"
)

// InMemory implements Store with process-local maps. Used by tests and
// development setups without a configured document store.
type InMemory struct {
	mu         sync.RWMutex
	items      map[string]models.ContentItem
	batches    map[string]models.Batch
	byGroupKey map[string]string
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		items:      make(map[string]models.ContentItem),
		batches:    make(map[string]models.Batch),
		byGroupKey: make(map[string]string),
	}
}

func (s *InMemory) PutItem(ctx context.Context, item *models.ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; ok {
		return ErrDuplicate
	}
	s.items[item.ID] = *item
	return nil
}

func (s *InMemory) PutBatch(ctx context.Context, batch *models.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[batch.ID]; ok {
		return ErrDuplicate
	}
	if batch.GroupKey != "" {
		if _, ok := s.byGroupKey[batch.GroupKey]; ok {
			return ErrDuplicate
		}
	}
	s.storeBatchLocked(batch)
	return nil
}

func (s *InMemory) GetItem(ctx context.Context, id string) (*models.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &item, nil
}

func (s *InMemory) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch, ok := s.batches[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := batch
	copied.ArchiveRefs = append([]string(nil), batch.ArchiveRefs...)
	return &copied, nil
}

func (s *InMemory) CommitBatchIfAbsent(ctx context.Context, groupKey string, batch *models.Batch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byGroupKey[groupKey]; ok {
		return false, nil
	}
	if _, ok := s.batches[batch.ID]; ok {
		return false, ErrDuplicate
	}
	s.storeBatchLocked(batch)
	return true, nil
}

func (s *InMemory) CountItems(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.items)), nil
}

func (s *InMemory) CountBatches(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.batches)), nil
}

// storeBatchLocked copies the refs so callers cannot mutate a stored record.
// Must be called while holding s.mu.
func (s *InMemory) storeBatchLocked(batch *models.Batch) {
	copied := *batch
	copied.ArchiveRefs = append([]string(nil), batch.ArchiveRefs...)
	s.batches[copied.ID] = copied
	if copied.GroupKey != "" {
		s.byGroupKey[copied.GroupKey] = copied.ID
	}
}
