package hotspot

import (
	"context"
	"errors"
	"time"
)

// ErrNotArchived is returned by Store.Load when no snapshot exists for the
// requested hour slot.
var ErrNotArchived = errors.New("snapshot not archived")

// Store persists canonical snapshots keyed by (date, hour).
type Store interface {
	// Persist writes snap as the canonical snapshot for its slot,
	// overwriting any previous one. The write must publish atomically.
	Persist(ctx context.Context, snap *Snapshot) error
	// Load returns the archived snapshot for the slot, or ErrNotArchived.
	Load(ctx context.Context, date string, hour int) (*Snapshot, error)
}

// Clock returns the current time (swappable for tests).
type Clock interface {
	Now() time.Time
}
