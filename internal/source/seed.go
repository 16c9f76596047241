package source

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"meshmap/internal/loader"
	"meshmap/internal/watcher"
)

// SeedSource serves the identity directory from a YAML file instead of
// the control plane, for deployments that only ingest spool files or
// captures. The file is watched and re-applied when edited.
type SeedSource struct {
	path   string
	setDir DirectoryFunc
	log    *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSeed creates the seed-file source
func NewSeed(path string, setDir DirectoryFunc, log *zap.Logger) *SeedSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &SeedSource{
		path:   path,
		setDir: setDir,
		log:    log.Named("seed"),
		done:   make(chan struct{}),
	}
}

// Name implements Source
func (s *SeedSource) Name() string { return "seed" }

// Type implements Source
func (s *SeedSource) Type() Type { return TypeWatcher }

// Start applies the seed file and begins watching it for edits. A seed
// file that is missing or invalid at startup is an error; one broken by
// a later edit only logs, and the previous directory stands.
func (s *SeedSource) Start(ctx context.Context) error {
	if _, err := os.Stat(s.path); err != nil {
		return fmt.Errorf("seed source: %w", err)
	}

	ctx, s.cancel = context.WithCancel(ctx)

	w := watcher.New(s.path, func() {
		if err := s.Sync(ctx); err != nil {
			s.log.Warn("seed file rejected", zap.Error(err))
		}
	}, s.log)
	go func() {
		defer close(s.done)
		if err := w.Watch(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("seed watcher stopped", zap.Error(err))
		}
	}()

	return s.Sync(ctx)
}

// Stop shuts down the watcher
func (s *SeedSource) Stop() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

// Sync reloads the seed file and replaces the directory
func (s *SeedSource) Sync(ctx context.Context) error {
	dir, err := loader.LoadDirectory(s.path)
	if err != nil {
		return err
	}
	if s.setDir != nil {
		s.setDir(ctx, dir)
	}
	s.log.Info("seed directory applied",
		zap.Int("devices", len(dir.Devices)),
		zap.Int("services", len(dir.Services)),
		zap.Int("records", len(dir.Records)))
	return nil
}
