package user

import (
	"context"
	"time"

	"filegate/pkg/fault"
)

// User is anyone the transport has ever delivered an event from. Registered
// so broadcasts and stats have a population to work with.
type User struct {
	ID          string
	DisplayName string
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// ErrNotFound is returned when a user id resolves to no record.
var ErrNotFound = fault.New(fault.CodeNotFound, "user not found")

// Store persists the user registry.
type Store interface {
	// Upsert registers a user or refreshes their display name and last-seen
	// timestamp. Safe to call on every inbound event. FirstSeenAt takes
	// effect only on first registration; an empty DisplayName leaves any
	// stored name unchanged, since not every event carries one.
	Upsert(ctx context.Context, u *User) error
	// Get resolves a user id. ErrNotFound if absent.
	Get(ctx context.Context, id string) (*User, error)
	// List returns all registered users; order unspecified.
	List(ctx context.Context) ([]*User, error)
	// Count backs the stats surface.
	Count(ctx context.Context) (int64, error)
}
