package domain

import "time"

// TrafficClass represents how a flow reached its destination
type TrafficClass string

const (
	TrafficVirtual  TrafficClass = "virtual"  // Over the mesh overlay
	TrafficSubnet   TrafficClass = "subnet"   // Routed through a subnet router
	TrafficPhysical TrafficClass = "physical" // Direct physical-network traffic
)

// FlowRecord is one observed traffic flow within a collection window,
// normalized from the wire schema. Src and Dst are composite address
// strings that may carry an embedded port.
type FlowRecord struct {
	Src       string       `json:"src"`
	Dst       string       `json:"dst"`
	Proto     int          `json:"proto"`
	TxBytes   int64        `json:"tx_bytes"`
	RxBytes   int64        `json:"rx_bytes"`
	TxPackets int64        `json:"tx_packets"`
	RxPackets int64        `json:"rx_packets"`
	Class     TrafficClass `json:"class"`
}

// Valid reports whether the record carries the fields the graph fold
// requires. Records failing this check are skipped and counted, never fatal.
func (r FlowRecord) Valid() bool {
	return r.Src != "" && r.Dst != ""
}

// LogBatch is a flattened set of flow records covering one collection
// window, as delivered by a source
type LogBatch struct {
	Source  string       `json:"source"`
	Start   time.Time    `json:"start"`
	End     time.Time    `json:"end"`
	Records []FlowRecord `json:"records"`
}

// Merge appends another batch's records, widening the window to cover both
func (b *LogBatch) Merge(other LogBatch) {
	if b.Start.IsZero() || (!other.Start.IsZero() && other.Start.Before(b.Start)) {
		b.Start = other.Start
	}
	if other.End.After(b.End) {
		b.End = other.End
	}
	b.Records = append(b.Records, other.Records...)
}
