package layout

import (
	"context"
	"math"
	"math/rand"
	"time"

	"meshmap/internal/domain"
)

// GridParams tunes the last-resort grid placement
type GridParams struct {
	Spacing float64 // gap between cells beyond the content's max box
	Jitter  float64 // max absolute per-axis offset breaking exact ties
	Seed    int64   // jitter seed; zero seeds from the clock
}

func (p *GridParams) applyDefaults() {
	if p.Spacing <= 0 {
		p.Spacing = 48
	}
	if p.Jitter <= 0 {
		p.Jitter = 15
	}
}

// Grid places nodes deterministically by index: a single row for tiny
// graphs, a fixed grid for small ones, and ceil(sqrt(n)) columns beyond
// that. Jitter is the only randomness and never changes cell assignment,
// so boxes cannot overlap as long as spacing exceeds twice the jitter.
// Grid placement cannot fail.
type Grid struct {
	params GridParams
}

// NewGrid creates the solver with defaults filled in
func NewGrid(params GridParams) *Grid {
	params.applyDefaults()
	return &Grid{params: params}
}

// Name implements Solver
func (g *Grid) Name() domain.LayoutStrategy { return domain.StrategyGrid }

// Solve implements Solver
func (g *Grid) Solve(ctx context.Context, in *Input) (map[string]domain.Position, error) {
	n := len(in.Nodes)
	positions := make(map[string]domain.Position, n)
	if n == 0 {
		return positions, nil
	}

	seed := g.params.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	maxW, maxH := 0.0, 0.0
	for _, node := range in.Nodes {
		size := in.Size(node.ID)
		maxW = math.Max(maxW, size.Width)
		maxH = math.Max(maxH, size.Height)
	}
	cellW := maxW + g.params.Spacing
	cellH := maxH + g.params.Spacing

	cols := gridColumns(n)
	for i, node := range in.Nodes {
		col := i % cols
		row := i / cols
		positions[node.ID] = domain.Position{
			X: float64(col)*cellW + g.jitter(rng),
			Y: float64(row)*cellH + g.jitter(rng),
		}
	}
	return positions, nil
}

// gridColumns picks the tier for a node count: a linear row up to three
// nodes, a fixed three-wide grid up to nine, then ceil(sqrt(n))
func gridColumns(n int) int {
	switch {
	case n <= 3:
		return n
	case n <= 9:
		return 3
	default:
		return int(math.Ceil(math.Sqrt(float64(n))))
	}
}

func (g *Grid) jitter(rng *rand.Rand) float64 {
	return (rng.Float64()*2 - 1) * g.params.Jitter
}
