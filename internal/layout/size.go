// Package layout computes 2-D positions for a topology graph. Node boxes
// are sized from their content, then placed by a layered solver with
// force-directed and grid fallbacks behind it.
package layout

import (
	"math"
	"strings"

	"meshmap/internal/domain"
)

// Box sizing constants. These track the renderer's card styling closely
// enough for layout purposes; exact pixel fidelity is not required.
const (
	charWidth     = 7.2 // average glyph width at the card font size
	horizontalPad = 24.0
	tagPillPad    = 18.0

	headerHeight   = 30.0
	addrLineHeight = 16.0
	tagRowHeight   = 22.0
	tagsPerRow     = 3
	portRowHeight  = 18.0
	portSectionPad = 8.0

	maxPortColumns = 8
	portColumnFill = 1.4 // widens the port grid so it stays shallower than square

	minWidth  = 140.0
	minHeight = 72.0

	// Busy nodes get breathing room so dense hubs do not crowd their
	// neighborhood.
	busyBytes      = 1 << 20
	busyEdges      = 10
	busySizeFactor = 1.12

	v6DisplayLen = 24 // IPv6 addresses longer than this render truncated
)

// EstimateSize computes a node's bounding box from its content alone.
// The result is deterministic: no randomness and no feedback from any
// previous layout.
func EstimateSize(node *domain.Node) domain.Size {
	width := float64(len(node.ID))*charWidth + horizontalPad

	for _, addr := range node.Addresses {
		if w := float64(len(displayAddr(addr)))*charWidth + horizontalPad; w > width {
			width = w
		}
	}
	if n := len(node.Protocols); n > 0 {
		joined := len(strings.Join(node.Protocols, ", "))
		if w := float64(joined)*charWidth + horizontalPad; w > width {
			width = w
		}
	}
	for _, tag := range node.Tags {
		if w := float64(len(tag))*charWidth + tagPillPad; w > width {
			width = w
		}
	}

	height := headerHeight
	height += float64(len(node.Addresses)) * addrLineHeight
	if n := len(node.Tags); n > 0 {
		rows := (n + tagsPerRow - 1) / tagsPerRow
		height += float64(rows) * tagRowHeight
	}
	if n := len(node.InPorts) + len(node.OutPorts); n > 0 {
		height += float64(portRows(n))*portRowHeight + portSectionPad
	}

	if node.TotalBytes() > busyBytes {
		width *= busySizeFactor
		height *= busySizeFactor
	}
	if node.Connections > busyEdges {
		width *= busySizeFactor
		height *= busySizeFactor
	}

	return domain.Size{
		Width:  math.Max(width, minWidth),
		Height: math.Max(height, minHeight),
	}
}

// EstimateSizes sizes every node in a graph, keyed by identity
func EstimateSizes(g *domain.Graph) map[string]domain.Size {
	sizes := make(map[string]domain.Size, g.NodeCount())
	for id, node := range g.Nodes {
		sizes[id] = EstimateSize(node)
	}
	return sizes
}

// portRows returns how many rows the port grid needs for n ports, using
// ceil(sqrt(n)*1.4) columns capped at maxPortColumns
func portRows(n int) int {
	cols := int(math.Ceil(math.Sqrt(float64(n)) * portColumnFill))
	if cols > maxPortColumns {
		cols = maxPortColumns
	}
	if cols < 1 {
		cols = 1
	}
	return (n + cols - 1) / cols
}

// displayAddr returns the string the renderer would show for an address:
// long IPv6 literals are truncated with an ellipsis
func displayAddr(addr string) string {
	if strings.Contains(addr, ":") && len(addr) > v6DisplayLen {
		return addr[:v6DisplayLen] + "..."
	}
	return addr
}
