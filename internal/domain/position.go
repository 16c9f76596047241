package domain

import "time"

// Size is a node's estimated bounding box. It is a layout-time input only
// and is not part of the persistent graph.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Position is a node's placed center point in layout coordinates
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LayoutStrategy identifies which fallback tier produced a layout
type LayoutStrategy string

const (
	StrategyLayered LayoutStrategy = "layered" // primary hierarchical solver
	StrategyForce   LayoutStrategy = "force"   // force-directed fallback
	StrategyGrid    LayoutStrategy = "grid"    // deterministic grid fallback
	StrategyNone    LayoutStrategy = "none"    // empty graph, nothing to place
)

// LayoutResult maps every node identity to a position, tagged with the
// strategy that produced it. Results are treated as immutable; position
// overrides go through WithPosition.
type LayoutResult struct {
	Positions map[string]Position `json:"positions"`
	Strategy  LayoutStrategy      `json:"strategy"`
	Elapsed   time.Duration       `json:"elapsed"`
}

// EmptyLayout returns the valid result for a graph with no nodes
func EmptyLayout() *LayoutResult {
	return &LayoutResult{
		Positions: make(map[string]Position),
		Strategy:  StrategyNone,
	}
}

// Position returns the placed position for an identity key
func (r *LayoutResult) Position(id string) (Position, bool) {
	pos, ok := r.Positions[id]
	return pos, ok
}

// WithPosition returns a copy of the result with one node's position
// replaced. The receiver is never modified.
func (r *LayoutResult) WithPosition(id string, pos Position) *LayoutResult {
	next := &LayoutResult{
		Positions: make(map[string]Position, len(r.Positions)+1),
		Strategy:  r.Strategy,
		Elapsed:   r.Elapsed,
	}
	for k, v := range r.Positions {
		next.Positions[k] = v
	}
	next.Positions[id] = pos
	return next
}
