package layout

import (
	"context"
	"fmt"
	"math"

	"meshmap/internal/domain"
)

// goldenAngle spaces initial positions on a sunflower spiral, giving every
// node a distinct deterministic starting point.
const goldenAngle = 2.399963229728653

// ForceParams tunes the force-directed fallback
type ForceParams struct {
	Iterations int     // fixed simulation steps; the result is not animated
	Charge     float64 // scale of all-pairs repulsion
	Spring     float64 // stiffness of edge attraction
	Center     float64 // pull toward the origin
	MaxNodes   int     // the O(n²) simulation refuses larger graphs
}

func (p *ForceParams) applyDefaults() {
	if p.Iterations <= 0 {
		p.Iterations = 120
	}
	if p.Charge <= 0 {
		p.Charge = 1.0
	}
	if p.Spring <= 0 {
		p.Spring = 0.08
	}
	if p.Center <= 0 {
		p.Center = 0.02
	}
	if p.MaxNodes <= 0 {
		p.MaxNodes = DefaultMaxForceNodes
	}
}

// Force is the physics fallback: pairwise repulsion, spring attraction
// along edges, a weak centering pull, and collision pushback sized to each
// node's box, run for a fixed number of steps.
type Force struct {
	params ForceParams
}

// NewForce creates the solver with defaults filled in
func NewForce(params ForceParams) *Force {
	params.applyDefaults()
	return &Force{params: params}
}

// Name implements Solver
func (f *Force) Name() domain.LayoutStrategy { return domain.StrategyForce }

// Solve implements Solver
func (f *Force) Solve(ctx context.Context, in *Input) (map[string]domain.Position, error) {
	n := len(in.Nodes)
	positions := make(map[string]domain.Position, n)
	if n == 0 {
		return positions, nil
	}
	if n > f.params.MaxNodes {
		return nil, fmt.Errorf("graph of %d nodes exceeds simulation limit %d", n, f.params.MaxNodes)
	}

	index := make(map[string]int, n)
	radius := make([]float64, n)
	meanExtent := 0.0
	for i, node := range in.Nodes {
		index[node.ID] = i
		size := in.Size(node.ID)
		radius[i] = math.Max(size.Width, size.Height) / 2
		meanExtent += radius[i]
	}
	meanExtent /= float64(n)
	// ideal separation between node centers
	k := meanExtent*2 + 60

	px := make([]float64, n)
	py := make([]float64, n)
	for i := 0; i < n; i++ {
		r := k * math.Sqrt(float64(i)+0.5)
		a := float64(i) * goldenAngle
		px[i] = r * math.Cos(a)
		py[i] = r * math.Sin(a)
	}

	type link struct{ a, b int }
	seen := make(map[link]bool, len(in.Edges))
	links := make([]link, 0, len(in.Edges))
	for _, e := range in.Edges {
		a, okA := index[e.From]
		b, okB := index[e.To]
		if !okA || !okB || a == b {
			continue
		}
		if a > b {
			a, b = b, a
		}
		l := link{a, b}
		if !seen[l] {
			seen[l] = true
			links = append(links, l)
		}
	}

	fx := make([]float64, n)
	fy := make([]float64, n)
	steps := f.params.Iterations
	for step := 0; step < steps; step++ {
		if step%16 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for i := range fx {
			fx[i] = 0
			fy[i] = 0
		}

		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				dx := px[i] - px[j]
				dy := py[i] - py[j]
				d := math.Sqrt(dx*dx + dy*dy)
				if d < 0.01 {
					// coincident centers get a deterministic nudge apart
					dx, dy, d = 0.01*float64(i-j), 0.01, 0.0141
				}
				rep := f.params.Charge * k * k / d
				if d < radius[i]+radius[j] {
					rep *= 3
				}
				ux, uy := dx/d, dy/d
				fx[i] += ux * rep
				fy[i] += uy * rep
				fx[j] -= ux * rep
				fy[j] -= uy * rep
			}
		}

		for _, l := range links {
			dx := px[l.b] - px[l.a]
			dy := py[l.b] - py[l.a]
			d := math.Sqrt(dx*dx + dy*dy)
			if d < 0.01 {
				continue
			}
			pull := f.params.Spring * (d - k)
			ux, uy := dx/d, dy/d
			fx[l.a] += ux * pull
			fy[l.a] += uy * pull
			fx[l.b] -= ux * pull
			fy[l.b] -= uy * pull
		}

		for i := 0; i < n; i++ {
			fx[i] -= px[i] * f.params.Center
			fy[i] -= py[i] * f.params.Center
		}

		// temperature cooling caps displacement per step
		temp := (k / 2) * (1 - float64(step)/float64(steps))
		if temp < 1 {
			temp = 1
		}
		for i := 0; i < n; i++ {
			d := math.Sqrt(fx[i]*fx[i] + fy[i]*fy[i])
			if d > temp {
				fx[i] *= temp / d
				fy[i] *= temp / d
			}
			px[i] += fx[i]
			py[i] += fy[i]
		}
	}

	for i, node := range in.Nodes {
		if math.IsNaN(px[i]) || math.IsNaN(py[i]) {
			return nil, fmt.Errorf("simulation diverged at node %s", node.ID)
		}
		positions[node.ID] = domain.Position{X: px[i], Y: py[i]}
	}
	return positions, nil
}
