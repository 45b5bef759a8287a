package store

import (
	"context"

	"filegate/internal/content/models"
	"filegate/pkg/fault"
)

// Sentinel faults shared by all implementations so callers can branch with
// errors.Is regardless of the backing store.
var (
	ErrNotFound  = fault.New(fault.CodeNotFound, "record not found")
	ErrDuplicate = fault.New(fault.CodeDuplicate, "identifier already exists")
)

// Store persists content records. Implementations must make every write
// atomic: concurrent readers never observe a partial record, and
// CommitBatchIfAbsent must be a single conditional insert at the storage
// layer, never a check-then-insert.
type Store interface {
	// PutItem inserts a single-item record. ErrDuplicate if the id exists.
	PutItem(ctx context.Context, item *models.ContentItem) error
	// PutBatch inserts a batch record. ErrDuplicate if the id exists.
	PutBatch(ctx context.Context, batch *models.Batch) error
	// GetItem resolves an item id. ErrNotFound if absent.
	GetItem(ctx context.Context, id string) (*models.ContentItem, error)
	// GetBatch resolves a batch id. ErrNotFound if absent.
	GetBatch(ctx context.Context, id string) (*models.Batch, error)
	// CommitBatchIfAbsent inserts the batch only if no record with the same
	// group key exists. Reports whether the insert happened; a false return
	// with nil error means an earlier attempt already committed.
	CommitBatchIfAbsent(ctx context.Context, groupKey string, batch *models.Batch) (bool, error)
	// CountItems and CountBatches back the stats surface.
	CountItems(ctx context.Context) (int64, error)
	CountBatches(ctx context.Context) (int64, error)
}
