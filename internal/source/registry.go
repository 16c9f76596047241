package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds runtime settings for a registered source
type Config struct {
	// Enabled determines whether the source runs at all
	Enabled bool
	// PollInterval drives the sync schedule of polling sources
	PollInterval time.Duration
}

// Registry manages the registered sources and their lifecycle. Polling
// sources get a sync loop; watcher and stream sources run themselves and
// the registry only starts and stops them.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
	configs map[string]Config
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRegistry creates an empty source registry
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		sources: make(map[string]Source),
		configs: make(map[string]Config),
		log:     log.Named("source"),
	}
}

// Register adds a source to the registry
func (r *Registry) Register(src Source, cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := src.Name()
	if _, exists := r.sources[name]; exists {
		return fmt.Errorf("source %s already registered", name)
	}

	r.sources[name] = src
	r.configs[name] = cfg
	r.log.Info("registered source",
		zap.String("name", name),
		zap.String("type", string(src.Type())),
		zap.Bool("enabled", cfg.Enabled),
	)
	return nil
}

// Start initializes all enabled sources and begins their sync loops
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ctx, r.cancel = context.WithCancel(ctx)

	for name, src := range r.sources {
		cfg := r.configs[name]
		if !cfg.Enabled {
			r.log.Info("source disabled, skipping", zap.String("name", name))
			continue
		}

		if err := src.Start(r.ctx); err != nil {
			r.log.Error("failed to start source", zap.String("name", name), zap.Error(err))
			continue
		}

		if src.Type() == TypePolling {
			r.startPollingLoop(name, src, cfg)
		}
	}

	return nil
}

// Stop shuts down the sync loops and then every source
func (r *Registry) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()

	for name, src := range r.sources {
		if err := src.Stop(); err != nil {
			r.log.Warn("error stopping source", zap.String("name", name), zap.Error(err))
		}
	}
	return nil
}

// Sync triggers one immediate pass of a specific source
func (r *Registry) Sync(ctx context.Context, name string) error {
	r.mu.RLock()
	src, exists := r.sources[name]
	cfg := r.configs[name]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("source %s not found", name)
	}
	if !cfg.Enabled {
		return fmt.Errorf("source %s is disabled", name)
	}
	return r.runSync(ctx, name, src)
}

// SyncAll triggers one immediate pass of every enabled source
func (r *Registry) SyncAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for name, src := range r.sources {
		if !r.configs[name].Enabled {
			continue
		}
		if err := r.runSync(ctx, name, src); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("sync errors: %v", errs)
	}
	return nil
}

// Info provides read-only information about a registered source
type Info struct {
	Name         string `json:"name"`
	Type         Type   `json:"type"`
	Enabled      bool   `json:"enabled"`
	PollInterval string `json:"poll_interval,omitempty"`
}

// List returns information about every registered source
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.sources))
	for name, src := range r.sources {
		cfg := r.configs[name]
		info := Info{
			Name:    name,
			Type:    src.Type(),
			Enabled: cfg.Enabled,
		}
		if cfg.PollInterval > 0 {
			info.PollInterval = cfg.PollInterval.String()
		}
		infos = append(infos, info)
	}
	return infos
}

// startPollingLoop runs an initial sync and then syncs on the interval
func (r *Registry) startPollingLoop(name string, src Source, cfg Config) {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		if err := r.runSync(r.ctx, name, src); err != nil {
			r.log.Warn("initial sync failed", zap.String("name", name), zap.Error(err))
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.ctx.Done():
				r.log.Info("stopping sync loop", zap.String("name", name))
				return
			case <-ticker.C:
				if err := r.runSync(r.ctx, name, src); err != nil {
					r.log.Warn("sync failed", zap.String("name", name), zap.Error(err))
				}
			}
		}
	}()

	r.log.Info("started sync loop", zap.String("name", name), zap.Duration("interval", interval))
}

func (r *Registry) runSync(ctx context.Context, name string, src Source) error {
	started := time.Now()
	if err := src.Sync(ctx); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	r.log.Debug("source sync complete",
		zap.String("name", name),
		zap.Duration("elapsed", time.Since(started)),
	)
	return nil
}
