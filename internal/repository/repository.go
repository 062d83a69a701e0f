package repository

import (
	"context"
	"errors"
)

// ErrNoSnapshot is returned when a source has never been recorded
var ErrNoSnapshot = errors.New("no snapshot recorded")

// Repository defines the interface for inventory data access
type Repository interface {
	// Record stores a snapshot as a new run
	Record(ctx context.Context, s *Snapshot) error

	// Latest returns the most recent snapshot recorded for source
	Latest(ctx context.Context, source string) (*Snapshot, error)

	// Allocations returns the allocation rows of one run
	Allocations(ctx context.Context, runID string) ([]AllocationRecord, error)

	// Close releases resources
	Close() error
}
