package repository

import (
	"context"

	"meshmap/internal/domain"
)

// Store defines the persistence interface for the lookup-table cache and
// the rebuild history log
type Store interface {
	// Directory cache: full replacement, mirroring how the control plane
	// delivers lookup tables
	SaveDirectory(ctx context.Context, dir *domain.Directory) error
	LoadDirectory(ctx context.Context) (*domain.Directory, error)

	// Rebuild history
	RecordBuild(ctx context.Context, rec domain.BuildRecord) error
	RecentBuilds(ctx context.Context, limit int) ([]domain.BuildRecord, error)
	PruneBuilds(ctx context.Context, keep int) error

	// Close releases resources
	Close() error
}
