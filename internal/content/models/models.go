package models

import "time"

// ContentItem is a single archived item. Immutable after creation.
type ContentItem struct {
	// ID is the minted opaque identifier the entry-point payload carries.
	ID string
	// ArchiveRef locates the item inside the archive collaborator.
	ArchiveRef string
	// OwnerID is the operator who deposited the item. Provenance only; it
	// plays no part in redemption.
	OwnerID   string
	CreatedAt time.Time
}

// Batch is an ordered group of archived items committed as one record.
type Batch struct {
	ID string
	// GroupKey is the transport-supplied correlation key for the physical
	// multi-item submission. At most one Batch exists per GroupKey.
	GroupKey string
	// ArchiveRefs holds the archive locators in submission order.
	ArchiveRefs []string
	OwnerID     string
	CreatedAt   time.Time
}
