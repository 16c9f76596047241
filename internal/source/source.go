package source

import (
	"context"

	"meshmap/internal/domain"
)

// Type defines how a source produces its batches
type Type string

const (
	// TypePolling - the registry drives the source on a schedule
	TypePolling Type = "polling"
	// TypeWatcher - the source reacts to filesystem events
	TypeWatcher Type = "watcher"
	// TypeStream - the source produces batches continuously on its own
	TypeStream Type = "stream"
)

// SinkFunc receives each flow-record batch a source produces. Sources call
// it from their own goroutines; implementations must be safe for
// concurrent use.
type SinkFunc func(batch domain.LogBatch)

// DirectoryFunc receives a refreshed lookup directory from a source that
// also knows the device inventory
type DirectoryFunc func(ctx context.Context, dir *domain.Directory)

// Source is one producer of flow-record batches
type Source interface {
	// Name returns the unique identifier for this source
	Name() string

	// Type returns how this source produces batches
	Type() Type

	// Start initializes the source and begins any background production
	Start(ctx context.Context) error

	// Stop gracefully shuts down the source
	Stop() error

	// Sync performs one immediate collection pass. The registry drives
	// polling sources through this on a schedule; for watcher and stream
	// sources it acts as a manual refresh.
	Sync(ctx context.Context) error
}
