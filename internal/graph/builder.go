// Package graph folds batches of traffic-flow records into a deduplicated
// topology graph: one node per logical identity, one aggregated edge per
// ordered identity pair.
package graph

import (
	"meshmap/internal/domain"
	"meshmap/internal/identity"
	"meshmap/internal/netflow"
)

// Build folds a record batch into a fresh graph using one directory
// snapshot. It is a pure function: the same input always yields the same
// graph, and no state is retained between calls.
func Build(records []domain.FlowRecord, dir *domain.Directory) *domain.Graph {
	return BuildWithResolver(records, identity.NewResolver(dir))
}

// BuildWithResolver is Build with a prebuilt resolver, for callers that
// fold several batches against one directory snapshot
func BuildWithResolver(records []domain.FlowRecord, resolver *identity.Resolver) *domain.Graph {
	g := domain.NewGraph()
	for _, rec := range records {
		if !rec.Valid() {
			g.Skipped++
			continue
		}
		fold(g, resolver, rec)
	}
	countConnections(g)
	return g
}

func fold(g *domain.Graph, resolver *identity.Resolver, rec domain.FlowRecord) {
	srcIP := netflow.ExtractIP(rec.Src)
	dstIP := netflow.ExtractIP(rec.Dst)
	srcID := resolver.Resolve(srcIP)
	dstID := resolver.Resolve(dstIP)

	src := upsertNode(g, srcID, srcIP)
	dst := upsertNode(g, dstID, dstIP)

	// Counters are source-perspective; the destination mirrors them so that
	// either endpoint's total is tx+rx regardless of who originated the flow.
	src.TxBytes += rec.TxBytes
	src.RxBytes += rec.RxBytes
	src.TxPackets += rec.TxPackets
	src.RxPackets += rec.RxPackets
	dst.TxBytes += rec.RxBytes
	dst.RxBytes += rec.TxBytes
	dst.TxPackets += rec.RxPackets
	dst.RxPackets += rec.TxPackets

	proto := netflow.ProtocolName(rec.Proto)
	src.AddProtocol(proto)
	dst.AddProtocol(proto)

	if netflow.PortTracked(rec.Proto) {
		if port, ok := netflow.ExtractPort(rec.Src); ok {
			src.AddOutPort(port)
		}
		if port, ok := netflow.ExtractPort(rec.Dst); ok {
			dst.AddInPort(port)
		}
	}

	key := domain.EdgeKey{From: srcID.Key, To: dstID.Key}
	edge, ok := g.Edges[key]
	if !ok {
		edge = domain.NewEdge(srcID.Key, dstID.Key, proto, rec.Class)
		g.Edges[key] = edge
	}
	edge.TxBytes += rec.TxBytes
	edge.RxBytes += rec.RxBytes
	edge.TxPackets += rec.TxPackets
	edge.RxPackets += rec.RxPackets
	edge.Flows++
}

func upsertNode(g *domain.Graph, id domain.Identity, addr string) *domain.Node {
	node, ok := g.Nodes[id.Key]
	if !ok {
		node = domain.NewNode(id, addr)
		g.Nodes[id.Key] = node
	} else {
		node.AddAddress(addr)
	}
	node.AddTag(string(netflow.Categorize(addr)))
	return node
}

// countConnections finalizes each node's connection count in a second pass
// over the deduplicated edges: one increment per distinct edge touching the
// node, with self-edges counting once
func countConnections(g *domain.Graph) {
	for _, n := range g.Nodes {
		n.Connections = 0
	}
	for key := range g.Edges {
		if n := g.Nodes[key.From]; n != nil {
			n.Connections++
		}
		if key.From == key.To {
			continue
		}
		if n := g.Nodes[key.To]; n != nil {
			n.Connections++
		}
	}
}
