// Package history versions project directories so earlier states of a
// project's data can be listed and restored.
package history

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidSnapshot is returned for snapshot ids that are not hex commit ids.
	ErrInvalidSnapshot = errors.New("invalid snapshot id")
	ErrNotInitialized  = errors.New("history not initialized")
)

type Snapshot struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Snapshotter records and restores versions of a directory.
type Snapshotter interface {
	// Init prepares dir for snapshots. Calling it again is a no-op.
	Init(ctx context.Context, dir string) error
	// Snapshot records the current state of dir. created is false when
	// nothing changed since the previous snapshot.
	Snapshot(ctx context.Context, dir, message string) (snap Snapshot, created bool, err error)
	// List returns the snapshots of dir, newest first.
	List(ctx context.Context, dir string) ([]Snapshot, error)
	// Restore puts dir back to the snapshot with the given id and records
	// the result as a new snapshot.
	Restore(ctx context.Context, dir, id string) (Snapshot, error)
}
