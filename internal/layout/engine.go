package layout

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"meshmap/internal/domain"
)

const (
	// DefaultTimeout bounds the primary solver; exceeding it is treated
	// identically to an algorithmic failure.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxForceNodes gates the force-directed fallback. Above this
	// the O(n²) simulation is skipped and the grid tier places the graph.
	DefaultMaxForceNodes = 1500
)

// Input is the read-only view of a graph handed to solvers. Nodes and
// edges arrive sorted so solver output is deterministic.
type Input struct {
	Nodes []*domain.Node
	Edges []*domain.Edge
	Sizes map[string]domain.Size
}

// Size returns a node's estimated box, falling back to the minimums
func (in *Input) Size(id string) domain.Size {
	if s, ok := in.Sizes[id]; ok {
		return s
	}
	return domain.Size{Width: minWidth, Height: minHeight}
}

// Solver computes positions for a whole graph. A solver returns an error
// instead of panicking on input it cannot place; the engine converts any
// failure into a fallthrough to the next tier.
type Solver interface {
	Name() domain.LayoutStrategy
	Solve(ctx context.Context, in *Input) (map[string]domain.Position, error)
}

// Config carries the engine's tunables
type Config struct {
	Timeout       time.Duration
	MaxForceNodes int
	Layered       LayeredParams
	Force         ForceParams
	Grid          GridParams
}

// Engine walks the fallback chain layered -> force-directed -> grid until
// one tier yields a position for every node. Grid placement cannot fail,
// so the walk always terminates with a complete result.
type Engine struct {
	primary  Solver
	force    Solver
	grid     Solver
	timeout  time.Duration
	maxForce int
	log      *zap.Logger
}

// NewEngine creates an engine with the standard three tiers
func NewEngine(cfg Config, log *zap.Logger) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxForceNodes <= 0 {
		cfg.MaxForceNodes = DefaultMaxForceNodes
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		primary:  NewLayered(cfg.Layered),
		force:    NewForce(cfg.Force),
		grid:     NewGrid(cfg.Grid),
		timeout:  cfg.Timeout,
		maxForce: cfg.MaxForceNodes,
		log:      log.Named("layout"),
	}
}

// SetPrimary replaces the primary solver
func (e *Engine) SetPrimary(s Solver) { e.primary = s }

// SetForce replaces the force-directed solver
func (e *Engine) SetForce(s Solver) { e.force = s }

// SetGrid replaces the grid solver
func (e *Engine) SetGrid(s Solver) { e.grid = s }

// Layout positions every node of the graph. An empty graph short-circuits
// to an empty result; otherwise exactly one tier's output is returned,
// tagged with the strategy that produced it.
func (e *Engine) Layout(ctx context.Context, g *domain.Graph, sizes map[string]domain.Size) *domain.LayoutResult {
	start := time.Now()
	if g == nil || g.NodeCount() == 0 {
		return domain.EmptyLayout()
	}

	in := &Input{Nodes: g.SortedNodes(), Edges: g.SortedEdges(), Sizes: sizes}

	primaryCtx, cancel := context.WithTimeout(ctx, e.timeout)
	positions, err := e.solve(primaryCtx, e.primary, in)
	cancel()
	if err == nil {
		return finish(e.primary.Name(), positions, start)
	}
	e.log.Warn("primary layout failed",
		zap.Int("nodes", len(in.Nodes)),
		zap.Int("edges", len(in.Edges)),
		zap.Error(err))

	if len(in.Nodes) <= e.maxForce {
		positions, err = e.solve(ctx, e.force, in)
		if err == nil {
			return finish(e.force.Name(), positions, start)
		}
		e.log.Warn("force layout failed", zap.Error(err))
	} else {
		e.log.Debug("skipping force layout", zap.Int("nodes", len(in.Nodes)))
	}

	positions, err = e.solve(ctx, e.grid, in)
	if err != nil {
		// Grid placement does not fail on its own; a replacement solver
		// might. Every node still gets a coordinate.
		e.log.Warn("grid layout failed, placing nodes in a row", zap.Error(err))
		positions = rowPositions(in)
	}
	return finish(e.grid.Name(), positions, start)
}

// solve runs one solver with panic recovery and validates that the result
// covers every node with finite coordinates
func (e *Engine) solve(ctx context.Context, s Solver, in *Input) (positions map[string]domain.Position, err error) {
	defer func() {
		if r := recover(); r != nil {
			positions = nil
			err = fmt.Errorf("%s solver panicked: %v", s.Name(), r)
		}
	}()

	positions, err = s.Solve(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%s solver: %w", s.Name(), err)
	}
	for _, n := range in.Nodes {
		pos, ok := positions[n.ID]
		if !ok {
			return nil, fmt.Errorf("%s solver dropped node %s", s.Name(), n.ID)
		}
		if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) {
			return nil, fmt.Errorf("%s solver produced degenerate position for %s", s.Name(), n.ID)
		}
	}
	return positions, nil
}

func finish(strategy domain.LayoutStrategy, positions map[string]domain.Position, start time.Time) *domain.LayoutResult {
	return &domain.LayoutResult{
		Positions: positions,
		Strategy:  strategy,
		Elapsed:   time.Since(start),
	}
}

func rowPositions(in *Input) map[string]domain.Position {
	positions := make(map[string]domain.Position, len(in.Nodes))
	x := 0.0
	for _, n := range in.Nodes {
		size := in.Size(n.ID)
		positions[n.ID] = domain.Position{X: x + size.Width/2, Y: 0}
		x += size.Width + minWidth/2
	}
	return positions
}
