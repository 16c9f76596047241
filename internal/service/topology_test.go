package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"meshmap/internal/domain"
	"meshmap/internal/pipeline"
	"meshmap/internal/repository/sqlite"
)

// stubEngine places every node at the same spot and counts calls
type stubEngine struct {
	mu    sync.Mutex
	calls int
}

func (s *stubEngine) Layout(ctx context.Context, g *domain.Graph, sizes map[string]domain.Size) *domain.LayoutResult {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()

	res := &domain.LayoutResult{
		Positions: make(map[string]domain.Position, len(g.Nodes)),
		Strategy:  domain.StrategyLayered,
		Elapsed:   time.Millisecond,
	}
	for id := range g.Nodes {
		res.Positions[id] = domain.Position{X: float64(n)}
	}
	return res
}

func (s *stubEngine) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func flowBatch(source string, bytes int64, flows ...[2]string) domain.LogBatch {
	b := domain.LogBatch{
		Source: source,
		Start:  time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		End:    time.Date(2024, 6, 1, 12, 5, 0, 0, time.UTC),
	}
	for _, f := range flows {
		b.Records = append(b.Records, domain.FlowRecord{
			Src:     f[0],
			Dst:     f[1],
			Proto:   6,
			TxBytes: bytes,
			Class:   domain.TrafficVirtual,
		})
	}
	return b
}

func newTestService(t *testing.T) (*TopologyService, *stubEngine, chan Event) {
	t.Helper()

	repo, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	engine := &stubEngine{}
	bus := NewEventBus()
	events := make(chan Event, 32)
	bus.Subscribe(events)

	svc := NewTopologyService(engine, pipeline.Config{Debounce: 20 * time.Millisecond}, repo, bus, nil)
	svc.Start(context.Background())
	t.Cleanup(svc.Stop)

	return svc, engine, events
}

// awaitEvent drains events until one of the wanted type arrives
func awaitEvent(t *testing.T, events <-chan Event, want EventType) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestIngestPublishesAndRecords(t *testing.T) {
	svc, _, events := newTestService(t)

	svc.Ingest(flowBatch("tailnet", 100, [2]string{"10.0.0.1", "10.0.0.2"}))

	synced := awaitEvent(t, events, EventSourceSynced)
	payload, ok := synced.Payload.(map[string]interface{})
	if !ok || payload["source"] != "tailnet" {
		t.Errorf("source_synced payload = %#v", synced.Payload)
	}

	updated := awaitEvent(t, events, EventTopologyUpdated)
	summary, ok := updated.Payload.(updateSummary)
	if !ok {
		t.Fatalf("topology_updated payload = %#v", updated.Payload)
	}
	if summary.Nodes != 2 || summary.Edges != 1 {
		t.Errorf("summary = %+v, want 2 nodes 1 edge", summary)
	}
	if summary.Revision == 0 || summary.BuildID == "" {
		t.Errorf("summary missing revision or build id: %+v", summary)
	}

	snap := svc.Snapshot()
	if snap.Graph.NodeCount() != 2 {
		t.Errorf("snapshot nodes = %d, want 2", snap.Graph.NodeCount())
	}

	// The rebuild is in the history log before the event fires
	history, err := svc.History(context.Background(), 10)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history rows = %d, want 1", len(history))
	}
	if history[0].Nodes != 2 || history[0].Edges != 1 {
		t.Errorf("history row = %+v", history[0])
	}
	if history[0].TotalBytes != 100 {
		t.Errorf("TotalBytes = %d, want 100", history[0].TotalBytes)
	}
	if history[0].Strategy != domain.StrategyLayered {
		t.Errorf("Strategy = %s", history[0].Strategy)
	}
}

func TestTrafficUpdateSkipsHistory(t *testing.T) {
	svc, engine, events := newTestService(t)

	svc.Ingest(flowBatch("tailnet", 100, [2]string{"10.0.0.1", "10.0.0.2"}))
	awaitEvent(t, events, EventTopologyUpdated)

	// Same structure, new counters
	svc.Ingest(flowBatch("tailnet", 5000, [2]string{"10.0.0.1", "10.0.0.2"}))
	awaitEvent(t, events, EventTrafficUpdated)

	if got := engine.callCount(); got != 1 {
		t.Errorf("layout calls = %d, want 1", got)
	}
	history, err := svc.History(context.Background(), 10)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("history rows = %d, want 1 (traffic updates are not builds)", len(history))
	}
}

func TestRelayoutForcesBuild(t *testing.T) {
	svc, engine, events := newTestService(t)

	svc.Ingest(flowBatch("tailnet", 100, [2]string{"10.0.0.1", "10.0.0.2"}))
	awaitEvent(t, events, EventTopologyUpdated)

	svc.Relayout()
	awaitEvent(t, events, EventTopologyUpdated)

	if got := engine.callCount(); got != 2 {
		t.Errorf("layout calls = %d, want 2", got)
	}
}

func TestSetDirectory(t *testing.T) {
	svc, _, events := newTestService(t)
	ctx := context.Background()

	svc.Ingest(flowBatch("tailnet", 100, [2]string{"100.64.0.1", "100.64.0.2"}))
	awaitEvent(t, events, EventTopologyUpdated)

	dir := domain.NewDirectory()
	dir.Devices = []domain.Device{{ID: "d1", Name: "alpha", Addresses: []string{"100.64.0.1"}}}
	svc.SetDirectory(ctx, dir)

	awaitEvent(t, events, EventDirectoryUpdated)
	updated := awaitEvent(t, events, EventTopologyUpdated)
	summary := updated.Payload.(updateSummary)
	if summary.Nodes != 2 {
		t.Errorf("nodes = %d, want 2", summary.Nodes)
	}

	snap := svc.Snapshot()
	if snap.Graph.Node("alpha") == nil {
		t.Error("device name should have replaced the raw IP")
	}
	if snap.Graph.Node("100.64.0.1") != nil {
		t.Error("raw IP identity should be gone after resolution")
	}

	if got := svc.Devices(); len(got) != 1 || got[0].Name != "alpha" {
		t.Errorf("Devices() = %+v", got)
	}
}

func TestDirectorySurvivesRestart(t *testing.T) {
	repo, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	defer repo.Close()

	bus := NewEventBus()
	svc := NewTopologyService(&stubEngine{}, pipeline.Config{Debounce: 20 * time.Millisecond}, repo, bus, nil)
	svc.Start(context.Background())

	dir := domain.NewDirectory()
	dir.Devices = []domain.Device{{ID: "d1", Name: "alpha", Addresses: []string{"100.64.0.1"}}}
	dir.Records["printer.lan"] = []string{"192.168.1.9"}
	svc.SetDirectory(context.Background(), dir)
	svc.Stop()

	// A fresh service over the same store restores the directory
	second := NewTopologyService(&stubEngine{}, pipeline.Config{Debounce: 20 * time.Millisecond}, repo, NewEventBus(), nil)
	second.Start(context.Background())
	defer second.Stop()

	if got := second.Devices(); len(got) != 1 || got[0].Name != "alpha" {
		t.Errorf("restored Devices() = %+v", got)
	}
	if got := second.Records(); got["printer.lan"] == nil {
		t.Errorf("restored Records() = %+v", got)
	}
}

func TestSetPosition(t *testing.T) {
	svc, _, events := newTestService(t)

	if err := svc.SetPosition("ghost", domain.Position{X: 1, Y: 2}); !errors.Is(err, pipeline.ErrUnknownNode) {
		t.Errorf("SetPosition on empty graph = %v, want ErrUnknownNode", err)
	}

	svc.Ingest(flowBatch("tailnet", 100, [2]string{"10.0.0.1", "10.0.0.2"}))
	awaitEvent(t, events, EventTopologyUpdated)

	if err := svc.SetPosition("10.0.0.1", domain.Position{X: 50, Y: 60}); err != nil {
		t.Fatalf("SetPosition() error: %v", err)
	}

	moved := awaitEvent(t, events, EventPositionsUpdated)
	summary := moved.Payload.(updateSummary)
	if summary.NodeID != "10.0.0.1" {
		t.Errorf("NodeID = %s, want 10.0.0.1", summary.NodeID)
	}

	pos, ok := svc.Snapshot().Layout.Position("10.0.0.1")
	if !ok || pos.X != 50 || pos.Y != 60 {
		t.Errorf("position = %+v ok=%v, want (50,60)", pos, ok)
	}
}

func TestEmptyServiceAccessors(t *testing.T) {
	svc, _, _ := newTestService(t)

	if got := svc.Devices(); len(got) != 0 {
		t.Errorf("Devices() = %+v, want empty", got)
	}
	if got := svc.Services(); len(got) != 0 {
		t.Errorf("Services() = %+v, want empty", got)
	}
	snap := svc.Snapshot()
	if snap.Graph.NodeCount() != 0 || snap.Layout.Strategy != domain.StrategyNone {
		t.Errorf("empty snapshot = %+v", snap)
	}
}
