package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"meshmap/internal/domain"
	"meshmap/internal/pipeline"
	"meshmap/internal/repository"
)

// historyKeep caps the rebuild history log
const historyKeep = 1000

// TopologyService owns the rebuild pipeline and exposes it to the HTTP
// layer. It is the only writer of the directory and the only consumer of
// pipeline updates, which it fans out as events.
type TopologyService struct {
	coord    *pipeline.Coordinator
	store    repository.Store
	eventBus *EventBus
	log      *zap.Logger

	mu  sync.RWMutex
	dir *domain.Directory
}

// updateSummary is the compact payload broadcast with topology events.
// Clients fetch the full snapshot over the API when they need it.
type updateSummary struct {
	Revision uint64                `json:"revision"`
	BuildID  string                `json:"build_id"`
	Nodes    int                   `json:"nodes"`
	Edges    int                   `json:"edges"`
	Strategy domain.LayoutStrategy `json:"strategy"`
	NodeID   string                `json:"node_id,omitempty"`
}

// NewTopologyService creates the service and the coordinator it drives.
// store may be nil when persistence is disabled.
func NewTopologyService(engine pipeline.Layouter, cfg pipeline.Config, store repository.Store, eventBus *EventBus, log *zap.Logger) *TopologyService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &TopologyService{
		store:    store,
		eventBus: eventBus,
		log:      log.Named("service"),
	}
	s.coord = pipeline.NewCoordinator(engine, cfg, log, s.handleUpdate)
	return s
}

// Start binds the pipeline to a lifecycle context and restores the cached
// directory so identity resolution works before the first control-plane
// sync.
func (s *TopologyService) Start(ctx context.Context) {
	s.coord.Start(ctx)

	if s.store == nil {
		return
	}
	dir, err := s.store.LoadDirectory(ctx)
	if err != nil {
		s.log.Warn("failed to restore directory cache", zap.Error(err))
		return
	}
	if dir != nil {
		s.mu.Lock()
		s.dir = dir
		s.mu.Unlock()
		s.coord.SetDirectory(dir)
		s.log.Info("restored directory cache",
			zap.Int("devices", len(dir.Devices)),
			zap.Int("services", len(dir.Services)),
			zap.Int("records", len(dir.Records)))
	}
}

// Stop drains the pipeline
func (s *TopologyService) Stop() {
	s.coord.Stop()
}

// Snapshot returns the current graph, layout and revision
func (s *TopologyService) Snapshot() pipeline.Snapshot {
	return s.coord.Snapshot()
}

// Ingest hands one source's batch to the pipeline and announces the sync
func (s *TopologyService) Ingest(batch domain.LogBatch) {
	s.coord.Ingest(batch)
	s.eventBus.Publish(Event{
		Type: EventSourceSynced,
		Payload: map[string]interface{}{
			"source":  batch.Source,
			"records": len(batch.Records),
		},
	})
}

// SetDirectory replaces the lookup tables, persists them to the cache and
// triggers a rebuild under the new resolution rules
func (s *TopologyService) SetDirectory(ctx context.Context, dir *domain.Directory) {
	if dir == nil {
		return
	}

	s.mu.Lock()
	s.dir = dir
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SaveDirectory(ctx, dir); err != nil {
			s.log.Warn("failed to persist directory cache", zap.Error(err))
		}
	}

	// Announce the directory before the rebuild it triggers, so clients
	// see the two events in causal order.
	s.eventBus.Publish(Event{
		Type: EventDirectoryUpdated,
		Payload: map[string]int{
			"devices":  len(dir.Devices),
			"services": len(dir.Services),
			"records":  len(dir.Records),
		},
	})

	s.coord.SetDirectory(dir)
}

// Devices returns the current device list, newest directory wins
func (s *TopologyService) Devices() []domain.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dir == nil {
		return nil
	}
	return s.dir.Devices
}

// Services returns the current service lookup table
func (s *TopologyService) Services() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dir == nil {
		return nil
	}
	return s.dir.Services
}

// Records returns the current DNS record lookup table
func (s *TopologyService) Records() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dir == nil {
		return nil
	}
	return s.dir.Records
}

// Rebuild forces an immediate rebuild, bypassing the debounce window
func (s *TopologyService) Rebuild() {
	s.coord.Rebuild()
}

// Relayout forces a fresh layout even without a structural change
func (s *TopologyService) Relayout() {
	s.coord.Relayout()
}

// SetPosition overrides one node's position. Returns
// pipeline.ErrUnknownNode when the node is not in the current graph.
func (s *TopologyService) SetPosition(id string, pos domain.Position) error {
	return s.coord.SetPosition(id, pos)
}

// History returns recent rebuild records, newest first
func (s *TopologyService) History(ctx context.Context, limit int) ([]domain.BuildRecord, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.RecentBuilds(ctx, limit)
}

// handleUpdate fans a pipeline commit out as an event and, for full
// rebuilds, appends a history record
func (s *TopologyService) handleUpdate(u pipeline.Update) {
	summary := updateSummary{
		Revision: u.Snapshot.Revision,
		BuildID:  u.Snapshot.BuildID,
		Nodes:    u.Snapshot.Graph.NodeCount(),
		Edges:    u.Snapshot.Graph.EdgeCount(),
		Strategy: u.Snapshot.Layout.Strategy,
		NodeID:   u.NodeID,
	}

	switch u.Kind {
	case pipeline.UpdateTopology:
		// History first, so a client reacting to the event sees its row.
		s.recordBuild(u.Snapshot)
		s.eventBus.Publish(Event{Type: EventTopologyUpdated, Payload: summary})
	case pipeline.UpdateTraffic:
		s.eventBus.Publish(Event{Type: EventTrafficUpdated, Payload: summary})
	case pipeline.UpdatePosition:
		s.eventBus.Publish(Event{Type: EventPositionsUpdated, Payload: summary})
	}
}

func (s *TopologyService) recordBuild(snap pipeline.Snapshot) {
	if s.store == nil {
		return
	}

	// Updates arrive from the pipeline's goroutine with no request
	// context attached.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var total int64
	for _, e := range snap.Graph.Edges {
		total += e.TxBytes + e.RxBytes
	}

	rec := domain.BuildRecord{
		BuildID:    snap.BuildID,
		Revision:   snap.Revision,
		Nodes:      snap.Graph.NodeCount(),
		Edges:      snap.Graph.EdgeCount(),
		Skipped:    snap.Graph.Skipped,
		TotalBytes: total,
		Strategy:   snap.Layout.Strategy,
		Elapsed:    snap.Layout.Elapsed,
		Start:      snap.Start,
		End:        snap.End,
		BuiltAt:    snap.BuiltAt,
	}

	if err := s.store.RecordBuild(ctx, rec); err != nil {
		s.log.Warn("failed to record build history", zap.Error(err))
		return
	}
	if err := s.store.PruneBuilds(ctx, historyKeep); err != nil {
		s.log.Warn("failed to prune build history", zap.Error(err))
	}
}
