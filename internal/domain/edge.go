package domain

// EdgeKey is the ordered (source, target) identity pair that uniquely
// identifies an aggregated edge. Comparison is case-sensitive; the pair is
// never normalized, so A->B and B->A are distinct edges.
type EdgeKey struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Edge is the aggregate of every flow observed between one ordered pair
// of identities
type Edge struct {
	From      string       `json:"from"`
	To        string       `json:"to"`
	TxBytes   int64        `json:"tx_bytes"`
	RxBytes   int64        `json:"rx_bytes"`
	TxPackets int64        `json:"tx_packets"`
	RxPackets int64        `json:"rx_packets"`
	Protocol  string       `json:"protocol"` // first protocol observed for the pair
	Class     TrafficClass `json:"class"`    // first traffic class observed for the pair
	Flows     int          `json:"flows"`    // raw records merged into this edge
}

// NewEdge creates an edge for an identity pair with the first flow's
// protocol and traffic class fixed as its labels
func NewEdge(from, to, protocol string, class TrafficClass) *Edge {
	return &Edge{
		From:     from,
		To:       to,
		Protocol: protocol,
		Class:    class,
	}
}

// Key returns the edge's map key
func (e *Edge) Key() EdgeKey {
	return EdgeKey{From: e.From, To: e.To}
}

// SelfLoop reports whether the edge connects an identity to itself
func (e *Edge) SelfLoop() bool {
	return e.From == e.To
}
