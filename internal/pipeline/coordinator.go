// Package pipeline coordinates the topology rebuild cycle: batches of flow
// records arrive from sources, are folded into a fresh graph, and the graph
// is laid out when its structure changed. The coordinator is the single
// owner of the current Graph and LayoutResult; everything else sees
// read-only snapshots.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"meshmap/internal/domain"
	"meshmap/internal/graph"
	"meshmap/internal/identity"
	"meshmap/internal/layout"
)

// DefaultDebounce is the quiet window that coalesces rapidly arriving
// batches into a single rebuild.
const DefaultDebounce = 100 * time.Millisecond

// ErrUnknownNode is returned for a position override naming a node the
// current graph does not contain.
var ErrUnknownNode = errors.New("unknown node")

// Layouter computes positions for a built graph. Satisfied by
// layout.Engine; tests substitute their own.
type Layouter interface {
	Layout(ctx context.Context, g *domain.Graph, sizes map[string]domain.Size) *domain.LayoutResult
}

// Snapshot is the read-only view of the coordinator's state. The Graph and
// LayoutResult it carries are never mutated after commit; consumers must
// not write to them.
type Snapshot struct {
	Graph    *domain.Graph        `json:"graph"`
	Layout   *domain.LayoutResult `json:"layout"`
	Revision uint64               `json:"revision"`
	BuildID  string               `json:"build_id"`
	Start    time.Time            `json:"start"`
	End      time.Time            `json:"end"`
	BuiltAt  time.Time            `json:"built_at"`
}

// UpdateKind classifies a committed change for subscribers
type UpdateKind string

const (
	UpdateTopology UpdateKind = "topology" // structure changed, fresh layout
	UpdateTraffic  UpdateKind = "traffic"  // counters changed, positions reused
	UpdatePosition UpdateKind = "position" // one node moved by hand
)

// Update is delivered to the coordinator's callback after every commit
type Update struct {
	Kind     UpdateKind `json:"kind"`
	NodeID   string     `json:"node_id,omitempty"`
	Snapshot Snapshot   `json:"snapshot"`
}

// Config carries the coordinator's tunables
type Config struct {
	Debounce time.Duration
}

// Coordinator owns the pipeline state. Sources push batches in via Ingest;
// each source's newest batch replaces its previous one, and a rebuild folds
// the union of every source's current batch into a whole new graph. Layout
// runs only when the rebuild changed the graph's structure, and a rebuild
// requested while a layout is still in flight discards the in-flight
// result rather than racing it.
type Coordinator struct {
	engine   Layouter
	log      *zap.Logger
	debounce time.Duration
	onUpdate func(Update)

	mu         sync.Mutex
	lifecycle  context.Context
	resolver   *identity.Resolver
	latest     map[string]domain.LogBatch
	timer      *time.Timer
	generation uint64
	cancel     context.CancelFunc
	closed     bool
	wg         sync.WaitGroup

	graph    *domain.Graph
	layout   *domain.LayoutResult
	revision uint64
	buildID  string
	start    time.Time
	end      time.Time
	builtAt  time.Time
}

// NewCoordinator creates a coordinator around a layout engine. onUpdate may
// be nil; when set it is invoked after every commit, outside the
// coordinator's lock.
func NewCoordinator(engine Layouter, cfg Config, log *zap.Logger, onUpdate func(Update)) *Coordinator {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		engine:    engine,
		log:       log.Named("pipeline"),
		debounce:  cfg.Debounce,
		onUpdate:  onUpdate,
		lifecycle: context.Background(),
		resolver:  identity.NewResolver(nil),
		latest:    make(map[string]domain.LogBatch),
	}
}

// Start binds the coordinator's background work to a lifecycle context.
// Work launched after the context is cancelled is built but never committed.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	c.lifecycle = ctx
	c.mu.Unlock()
}

// Stop cancels any in-flight build and waits for it to drain. Rebuilds
// requested after Stop are ignored.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.generation++ // orphans any run that slips past the cancel
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// Ingest accepts one source's batch and schedules a rebuild after the
// debounce window. The newest batch per source wins; rebuilds fold every
// source's current batch, so a poller delivering a full window simply
// replaces its previous contribution.
func (c *Coordinator) Ingest(batch domain.LogBatch) {
	c.mu.Lock()
	source := batch.Source
	if source == "" {
		source = "anonymous"
		batch.Source = source
	}
	c.latest[source] = batch
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, func() { c.launch(false) })
	c.mu.Unlock()

	c.log.Debug("batch ingested",
		zap.String("source", source),
		zap.Int("records", len(batch.Records)))
}

// SetDirectory replaces the lookup tables used to resolve identities and
// rebuilds immediately, since resolution changes can rename nodes.
func (c *Coordinator) SetDirectory(dir *domain.Directory) {
	c.mu.Lock()
	c.resolver = identity.NewResolver(dir)
	c.mu.Unlock()
	c.launch(false)
}

// Rebuild forces an immediate rebuild, bypassing the debounce window
func (c *Coordinator) Rebuild() {
	c.launch(false)
}

// Relayout forces a fresh layout pass even without a structural change
func (c *Coordinator) Relayout() {
	c.launch(true)
}

// SetPosition overrides a single node's position as a copy-on-write patch
// on the current layout. The graph is untouched and no relayout runs.
func (c *Coordinator) SetPosition(id string, pos domain.Position) error {
	c.mu.Lock()
	if c.graph == nil || c.graph.Node(id) == nil {
		c.mu.Unlock()
		return ErrUnknownNode
	}
	c.layout = c.layout.WithPosition(id, pos)
	c.revision++
	snap := c.snapshotLocked()
	cb := c.onUpdate
	c.mu.Unlock()

	if cb != nil {
		cb(Update{Kind: UpdatePosition, NodeID: id, Snapshot: snap})
	}
	return nil
}

// Snapshot returns the current state. Before the first commit it returns an
// empty graph and layout rather than nils.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() Snapshot {
	snap := Snapshot{
		Graph:    c.graph,
		Layout:   c.layout,
		Revision: c.revision,
		BuildID:  c.buildID,
		Start:    c.start,
		End:      c.end,
		BuiltAt:  c.builtAt,
	}
	if snap.Graph == nil {
		snap.Graph = domain.NewGraph()
	}
	if snap.Layout == nil {
		snap.Layout = domain.EmptyLayout()
	}
	return snap
}

// launch starts one rebuild run. Bumping the generation and cancelling the
// previous run's context gives last-request-wins: a stale run can finish
// its work but its commit is rejected.
func (c *Coordinator) launch(forceLayout bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.generation++
	gen := c.generation
	if c.cancel != nil {
		c.cancel()
	}
	runCtx, cancel := context.WithCancel(c.lifecycle)
	c.cancel = cancel
	records, start, end := c.collectLocked()
	resolver := c.resolver
	prevGraph := c.graph
	prevLayout := c.layout
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer cancel()
		c.run(runCtx, gen, records, resolver, prevGraph, prevLayout, start, end, forceLayout)
	}()
}

// collectLocked concatenates every source's current batch in sorted source
// order, so the fold input is deterministic, and returns the union window.
func (c *Coordinator) collectLocked() ([]domain.FlowRecord, time.Time, time.Time) {
	names := make([]string, 0, len(c.latest))
	for name := range c.latest {
		names = append(names, name)
	}
	sort.Strings(names)

	var records []domain.FlowRecord
	var start, end time.Time
	for _, name := range names {
		b := c.latest[name]
		records = append(records, b.Records...)
		if start.IsZero() || (!b.Start.IsZero() && b.Start.Before(start)) {
			start = b.Start
		}
		if b.End.After(end) {
			end = b.End
		}
	}
	return records, start, end
}

func (c *Coordinator) run(ctx context.Context, gen uint64, records []domain.FlowRecord, resolver *identity.Resolver, prevGraph *domain.Graph, prevLayout *domain.LayoutResult, start, end time.Time, forceLayout bool) {
	g := graph.BuildWithResolver(records, resolver)

	structural := forceLayout || structuralChange(prevGraph, prevLayout, g)
	var result *domain.LayoutResult
	if structural {
		result = c.engine.Layout(ctx, g, layout.EstimateSizes(g))
	}

	c.mu.Lock()
	if gen != c.generation || ctx.Err() != nil {
		c.mu.Unlock()
		c.log.Debug("discarding superseded build", zap.Uint64("generation", gen))
		return
	}
	kind := UpdateTraffic
	if structural {
		c.layout = result
		kind = UpdateTopology
	}
	c.graph = g
	c.revision++
	c.buildID = uuid.NewString()
	c.start = start
	c.end = end
	c.builtAt = time.Now()
	snap := c.snapshotLocked()
	cb := c.onUpdate
	c.mu.Unlock()

	c.log.Info("topology committed",
		zap.String("build_id", snap.BuildID),
		zap.Uint64("revision", snap.Revision),
		zap.Int("nodes", g.NodeCount()),
		zap.Int("edges", g.EdgeCount()),
		zap.Int("skipped", g.Skipped),
		zap.String("strategy", string(snap.Layout.Strategy)),
		zap.Duration("layout", snap.Layout.Elapsed),
		zap.Bool("relayout", structural))

	if cb != nil {
		cb(Update{Kind: kind, Snapshot: snap})
	}
}

// structuralChange reports whether the new graph needs a layout pass: a
// node or edge count delta, or a previous layout that does not cover every
// current node (same counts, different identities). Pure counter movement
// reuses the old positions untouched.
func structuralChange(prevGraph *domain.Graph, prevLayout *domain.LayoutResult, next *domain.Graph) bool {
	if prevGraph == nil || prevLayout == nil {
		return true
	}
	if next.NodeCount() != prevGraph.NodeCount() || next.EdgeCount() != prevGraph.EdgeCount() {
		return true
	}
	for id := range next.Nodes {
		if _, ok := prevLayout.Position(id); !ok {
			return true
		}
	}
	return false
}
