package domain

// IdentityKind represents how a raw IP was resolved to a display identity
type IdentityKind string

const (
	IdentityDevice  IdentityKind = "device"  // Matched a device's registered address
	IdentityService IdentityKind = "service" // Matched a service's registered address
	IdentityRecord  IdentityKind = "record"  // Matched a static DNS record
	IdentityIP      IdentityKind = "ip"      // Nothing matched; the IP itself is the identity
)

// Identity is the resolved logical name for a raw IP
type Identity struct {
	Key    string       `json:"key"`
	Kind   IdentityKind `json:"kind"`
	Device *Device      `json:"-"` // populated only when Kind is IdentityDevice
}

// maxTrackedPorts bounds per-node port sets so a scan burst cannot grow
// node content without limit. First-seen ports win.
const maxTrackedPorts = 64

// Node aggregates all traffic attributed to one logical identity
type Node struct {
	ID          string       `json:"id"`
	Kind        IdentityKind `json:"kind"`
	Addresses   []string     `json:"addresses"`
	Tags        []string     `json:"tags,omitempty"`
	User        string       `json:"user,omitempty"`
	TxBytes     int64        `json:"tx_bytes"`
	RxBytes     int64        `json:"rx_bytes"`
	TxPackets   int64        `json:"tx_packets"`
	RxPackets   int64        `json:"rx_packets"`
	Connections int          `json:"connections"`
	Protocols   []string     `json:"protocols,omitempty"`
	InPorts     []int        `json:"in_ports,omitempty"`
	OutPorts    []int        `json:"out_ports,omitempty"`
}

// NewNode creates a node for an identity with all counters zeroed
func NewNode(id Identity, addr string) *Node {
	n := &Node{
		ID:   id.Key,
		Kind: id.Kind,
	}
	if addr != "" {
		n.Addresses = append(n.Addresses, addr)
	}
	if id.Device != nil {
		n.User = id.Device.User
		for _, tag := range id.Device.Tags {
			n.AddTag(tag)
		}
	}
	return n
}

// TotalBytes returns the node's combined traffic volume
func (n *Node) TotalBytes() int64 {
	return n.TxBytes + n.RxBytes
}

// AddAddress unions a raw address into the node's address set
func (n *Node) AddAddress(addr string) {
	if addr == "" {
		return
	}
	for _, a := range n.Addresses {
		if a == addr {
			return
		}
	}
	n.Addresses = append(n.Addresses, addr)
}

// AddTag unions a display tag into the node's tag set; tags are never removed
func (n *Node) AddTag(tag string) {
	if tag == "" {
		return
	}
	for _, t := range n.Tags {
		if t == tag {
			return
		}
	}
	n.Tags = append(n.Tags, tag)
}

// AddProtocol records an observed protocol label
func (n *Node) AddProtocol(proto string) {
	if proto == "" {
		return
	}
	for _, p := range n.Protocols {
		if p == proto {
			return
		}
	}
	n.Protocols = append(n.Protocols, proto)
}

// AddInPort records a port the node accepted traffic on
func (n *Node) AddInPort(port int) {
	n.InPorts = addPort(n.InPorts, port)
}

// AddOutPort records a port the node originated traffic from
func (n *Node) AddOutPort(port int) {
	n.OutPorts = addPort(n.OutPorts, port)
}

func addPort(ports []int, port int) []int {
	if port <= 0 || len(ports) >= maxTrackedPorts {
		return ports
	}
	for _, p := range ports {
		if p == port {
			return ports
		}
	}
	return append(ports, port)
}
