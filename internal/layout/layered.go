package layout

import (
	"context"
	"fmt"
	"math"
	"sort"

	"meshmap/internal/domain"
)

// Cycle-breaking strategies for the layered solver.
const (
	CycleGreedy = "greedy" // order nodes by degree imbalance, reverse violating edges
	CycleDFS    = "dfs"    // depth-first walk, reverse back edges
)

// Crossing-minimization strategies.
const (
	CrossingBarycenter = "barycenter"
	CrossingMedian     = "median"
)

// Node-placement strategies for x coordinates within a layer.
const (
	PlacementPack    = "pack"    // sequential packing, smallest footprint
	PlacementBalance = "balance" // packing plus neighbor-balancing passes
)

// LayeredParams tunes the hierarchical solver
type LayeredParams struct {
	NodeSpacing      float64 // horizontal gap between boxes within a layer
	LayerSpacing     float64 // vertical gap between layers
	ComponentSpacing float64 // gap between disconnected components
	CycleBreaking    string
	Crossing         string
	Placement        string
	Thoroughness     int // scales crossing-minimization sweeps
}

func (p *LayeredParams) applyDefaults() {
	if p.NodeSpacing <= 0 {
		p.NodeSpacing = 48
	}
	if p.LayerSpacing <= 0 {
		p.LayerSpacing = 90
	}
	if p.ComponentSpacing <= 0 {
		p.ComponentSpacing = 120
	}
	if p.CycleBreaking == "" {
		p.CycleBreaking = CycleGreedy
	}
	if p.Crossing == "" {
		p.Crossing = CrossingBarycenter
	}
	if p.Placement == "" {
		p.Placement = PlacementBalance
	}
	if p.Thoroughness <= 0 {
		p.Thoroughness = 4
	}
}

// Layered is the primary solver: break cycles, assign nodes to layers,
// minimize crossings between adjacent layers, then place boxes. Each phase
// checks the context so a deadline interrupts long runs cleanly.
type Layered struct {
	params LayeredParams
}

// NewLayered creates the solver with defaults filled in
func NewLayered(params LayeredParams) *Layered {
	params.applyDefaults()
	return &Layered{params: params}
}

// Name implements Solver
func (l *Layered) Name() domain.LayoutStrategy { return domain.StrategyLayered }

// Solve implements Solver
func (l *Layered) Solve(ctx context.Context, in *Input) (map[string]domain.Position, error) {
	positions := make(map[string]domain.Position, len(in.Nodes))
	offsetX := 0.0
	for _, comp := range splitComponents(in) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		placed, width, err := l.placeComponent(ctx, comp, in)
		if err != nil {
			return nil, err
		}
		for id, pos := range placed {
			positions[id] = domain.Position{X: pos.X + offsetX, Y: pos.Y}
		}
		offsetX += width + l.params.ComponentSpacing
	}
	return positions, nil
}

// component is one connected piece of the graph: sorted member ids,
// undirected adjacency, and the deduplicated directed pairs between members
type component struct {
	ids   []string
	adj   map[string][]string
	edges [][2]string
}

// splitComponents partitions the input into connected components,
// discovered in sorted node order so output is deterministic. Self-loops
// and edges naming unknown nodes do not contribute to connectivity.
func splitComponents(in *Input) []*component {
	known := make(map[string]bool, len(in.Nodes))
	for _, n := range in.Nodes {
		known[n.ID] = true
	}

	adj := make(map[string][]string, len(in.Nodes))
	seen := make(map[[2]string]bool, len(in.Edges))
	pairs := make([][2]string, 0, len(in.Edges))
	for _, e := range in.Edges {
		if !known[e.From] || !known[e.To] || e.From == e.To {
			continue
		}
		pair := [2]string{e.From, e.To}
		if seen[pair] {
			continue
		}
		seen[pair] = true
		pairs = append(pairs, pair)
		adj[e.From] = append(adj[e.From], e.To)
		adj[e.To] = append(adj[e.To], e.From)
	}
	for id := range adj {
		adj[id] = dedupeSorted(adj[id])
	}

	visited := make(map[string]bool, len(in.Nodes))
	var comps []*component
	owner := make(map[string]int, len(in.Nodes))
	for _, n := range in.Nodes {
		if visited[n.ID] {
			continue
		}
		comp := &component{adj: make(map[string][]string)}
		queue := []string{n.ID}
		visited[n.ID] = true
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			comp.ids = append(comp.ids, id)
			comp.adj[id] = adj[id]
			for _, next := range adj[id] {
				if !visited[next] {
					visited[next] = true
					queue = append(queue, next)
				}
			}
		}
		sort.Strings(comp.ids)
		for _, id := range comp.ids {
			owner[id] = len(comps)
		}
		comps = append(comps, comp)
	}
	for _, pair := range pairs {
		comp := comps[owner[pair[0]]]
		comp.edges = append(comp.edges, pair)
	}
	return comps
}

func dedupeSorted(ids []string) []string {
	sort.Strings(ids)
	out := ids[:0]
	for i, id := range ids {
		if i == 0 || ids[i-1] != id {
			out = append(out, id)
		}
	}
	return out
}

func (l *Layered) placeComponent(ctx context.Context, comp *component, in *Input) (map[string]domain.Position, float64, error) {
	dag := l.orient(comp)
	layerOf, err := layerNodes(comp.ids, dag)
	if err != nil {
		return nil, 0, err
	}
	layers := buildLayers(comp.ids, layerOf)
	if err := l.orderLayers(ctx, layers, comp.adj); err != nil {
		return nil, 0, err
	}
	positions := l.assignCoords(layers, comp.adj, in)

	minX, maxX := math.Inf(1), math.Inf(-1)
	for id, pos := range positions {
		size := in.Size(id)
		minX = math.Min(minX, pos.X-size.Width/2)
		maxX = math.Max(maxX, pos.X+size.Width/2)
	}
	for id, pos := range positions {
		positions[id] = domain.Position{X: pos.X - minX, Y: pos.Y}
	}
	return positions, maxX - minX, nil
}

// orient returns the component's directed pairs with enough of them
// reversed to leave the component acyclic
func (l *Layered) orient(comp *component) [][2]string {
	if l.params.CycleBreaking == CycleDFS {
		return orientDFS(comp)
	}
	return orientGreedy(comp)
}

// orientGreedy sequences nodes by out-degree minus in-degree and reverses
// every edge that points against the sequence
func orientGreedy(comp *component) [][2]string {
	outDeg := make(map[string]int, len(comp.ids))
	inDeg := make(map[string]int, len(comp.ids))
	for _, e := range comp.edges {
		outDeg[e[0]]++
		inDeg[e[1]]++
	}
	seq := make([]string, len(comp.ids))
	copy(seq, comp.ids)
	sort.SliceStable(seq, func(i, j int) bool {
		si := outDeg[seq[i]] - inDeg[seq[i]]
		sj := outDeg[seq[j]] - inDeg[seq[j]]
		if si != sj {
			return si > sj
		}
		return seq[i] < seq[j]
	})
	index := make(map[string]int, len(seq))
	for i, id := range seq {
		index[id] = i
	}
	oriented := make([][2]string, 0, len(comp.edges))
	for _, e := range comp.edges {
		if index[e[0]] <= index[e[1]] {
			oriented = append(oriented, e)
		} else {
			oriented = append(oriented, [2]string{e[1], e[0]})
		}
	}
	return dedupePairs(oriented)
}

// orientDFS walks the component depth-first in sorted order and reverses
// edges that point back into the active stack
func orientDFS(comp *component) [][2]string {
	out := make(map[string][]string, len(comp.ids))
	for _, e := range comp.edges {
		out[e[0]] = append(out[e[0]], e[1])
	}
	for id := range out {
		sort.Strings(out[id])
	}

	const (white, gray, black = 0, 1, 2)
	state := make(map[string]int, len(comp.ids))
	oriented := make([][2]string, 0, len(comp.edges))

	var visit func(id string)
	visit = func(id string) {
		state[id] = gray
		for _, next := range out[id] {
			switch state[next] {
			case gray:
				oriented = append(oriented, [2]string{next, id})
			default:
				oriented = append(oriented, [2]string{id, next})
				if state[next] == white {
					visit(next)
				}
			}
		}
		state[id] = black
	}
	for _, id := range comp.ids {
		if state[id] == white {
			visit(id)
		}
	}
	return dedupePairs(oriented)
}

func dedupePairs(pairs [][2]string) [][2]string {
	seen := make(map[[2]string]bool, len(pairs))
	out := pairs[:0]
	for _, p := range pairs {
		if p[0] == p[1] || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// layerNodes assigns longest-path layers over the acyclic orientation.
// A node's layer is one past its deepest predecessor; sources sit at zero.
func layerNodes(ids []string, dag [][2]string) (map[string]int, error) {
	inDeg := make(map[string]int, len(ids))
	out := make(map[string][]string, len(ids))
	for _, id := range ids {
		inDeg[id] = 0
	}
	for _, e := range dag {
		out[e[0]] = append(out[e[0]], e[1])
		inDeg[e[1]]++
	}

	layer := make(map[string]int, len(ids))
	queue := make([]string, 0, len(ids))
	for _, id := range ids {
		if inDeg[id] == 0 {
			queue = append(queue, id)
			layer[id] = 0
		}
	}
	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		for _, next := range out[id] {
			if layer[id]+1 > layer[next] {
				layer[next] = layer[id] + 1
			}
			inDeg[next]--
			if inDeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if processed != len(ids) {
		return nil, fmt.Errorf("layering left %d nodes on a residual cycle", len(ids)-processed)
	}
	return layer, nil
}

func buildLayers(ids []string, layerOf map[string]int) [][]string {
	depth := 0
	for _, l := range layerOf {
		if l > depth {
			depth = l
		}
	}
	layers := make([][]string, depth+1)
	for _, id := range ids {
		l := layerOf[id]
		layers[l] = append(layers[l], id)
	}
	return layers
}

// orderLayers runs alternating down/up crossing-minimization sweeps,
// scaled by the thoroughness knob
func (l *Layered) orderLayers(ctx context.Context, layers [][]string, adj map[string][]string) error {
	if len(layers) < 2 {
		return nil
	}
	sweeps := l.params.Thoroughness * 2
	for sweep := 0; sweep < sweeps; sweep++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("crossing sweep %d: %w", sweep, err)
		}
		for i := 1; i < len(layers); i++ {
			l.orderLayer(layers[i], layers[i-1], adj)
		}
		for i := len(layers) - 2; i >= 0; i-- {
			l.orderLayer(layers[i], layers[i+1], adj)
		}
	}
	return nil
}

// orderLayer reorders one layer by the barycenter or median index of each
// node's neighbors in the reference layer. Nodes without neighbors there
// hold their relative position.
func (l *Layered) orderLayer(layer, ref []string, adj map[string][]string) {
	refIndex := make(map[string]int, len(ref))
	for i, id := range ref {
		refIndex[id] = i
	}
	scores := make(map[string]float64, len(layer))
	for i, id := range layer {
		var indices []int
		for _, nb := range adj[id] {
			if idx, ok := refIndex[nb]; ok {
				indices = append(indices, idx)
			}
		}
		if len(indices) == 0 {
			scores[id] = float64(i)
			continue
		}
		if l.params.Crossing == CrossingMedian {
			sort.Ints(indices)
			scores[id] = float64(indices[len(indices)/2])
		} else {
			sum := 0
			for _, idx := range indices {
				sum += idx
			}
			scores[id] = float64(sum) / float64(len(indices))
		}
	}
	sort.SliceStable(layer, func(a, b int) bool { return scores[layer[a]] < scores[layer[b]] })
}

// assignCoords packs each layer horizontally around the component axis and
// stacks layers vertically by their tallest box
func (l *Layered) assignCoords(layers [][]string, adj map[string][]string, in *Input) map[string]domain.Position {
	positions := make(map[string]domain.Position)

	y := 0.0
	layerY := make([]float64, len(layers))
	for i, layer := range layers {
		maxH := 0.0
		for _, id := range layer {
			maxH = math.Max(maxH, in.Size(id).Height)
		}
		layerY[i] = y + maxH/2
		y += maxH + l.params.LayerSpacing
	}

	for i, layer := range layers {
		width := float64(len(layer)-1) * l.params.NodeSpacing
		for _, id := range layer {
			width += in.Size(id).Width
		}
		x := -width / 2
		for _, id := range layer {
			w := in.Size(id).Width
			positions[id] = domain.Position{X: x + w/2, Y: layerY[i]}
			x += w + l.params.NodeSpacing
		}
	}

	if l.params.Placement == PlacementBalance {
		l.balance(layers, positions, adj, in)
	}
	return positions
}

// balance nudges nodes toward the mean x of their neighbors, then sweeps
// each layer left to right to restore the minimum gaps
func (l *Layered) balance(layers [][]string, positions map[string]domain.Position, adj map[string][]string, in *Input) {
	for pass := 0; pass < 2; pass++ {
		for _, layer := range layers {
			for _, id := range layer {
				nbs := adj[id]
				if len(nbs) == 0 {
					continue
				}
				sum, count := 0.0, 0
				for _, nb := range nbs {
					if pos, ok := positions[nb]; ok {
						sum += pos.X
						count++
					}
				}
				if count > 0 {
					pos := positions[id]
					pos.X = (pos.X + sum/float64(count)) / 2
					positions[id] = pos
				}
			}
			for j := 1; j < len(layer); j++ {
				prev, cur := layer[j-1], layer[j]
				floor := positions[prev].X + in.Size(prev).Width/2 + l.params.NodeSpacing + in.Size(cur).Width/2
				if positions[cur].X < floor {
					pos := positions[cur]
					pos.X = floor
					positions[cur] = pos
				}
			}
		}
	}
}
