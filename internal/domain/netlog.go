package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// NetworkLog is one entry from the control plane's network-flow log stream:
// a collection window for one reporting node with up to three traffic
// arrays. Exporters disagree on field casing (camelCase vs PascalCase), so
// decoding is case-insensitive; see UnmarshalJSON.
type NetworkLog struct {
	NodeID          string        `json:"nodeId"`
	Logged          time.Time     `json:"logged"`
	Start           time.Time     `json:"start"`
	End             time.Time     `json:"end"`
	VirtualTraffic  []TrafficFlow `json:"virtualTraffic,omitempty"`
	SubnetTraffic   []TrafficFlow `json:"subnetTraffic,omitempty"`
	PhysicalTraffic []TrafficFlow `json:"physicalTraffic,omitempty"`
}

// TrafficFlow is one raw flow entry inside a network log's traffic array
type TrafficFlow struct {
	Proto   int    `json:"proto"`
	Src     string `json:"src"`
	Dst     string `json:"dst"`
	TxPkts  int64  `json:"txPkts"`
	TxBytes int64  `json:"txBytes"`
	RxPkts  int64  `json:"rxPkts"`
	RxBytes int64  `json:"rxBytes"`
}

// Flatten returns the log's traffic arrays as classified flow records
func (l *NetworkLog) Flatten() []FlowRecord {
	out := make([]FlowRecord, 0, len(l.VirtualTraffic)+len(l.SubnetTraffic)+len(l.PhysicalTraffic))
	out = appendFlows(out, l.VirtualTraffic, TrafficVirtual)
	out = appendFlows(out, l.SubnetTraffic, TrafficSubnet)
	out = appendFlows(out, l.PhysicalTraffic, TrafficPhysical)
	return out
}

func appendFlows(records []FlowRecord, flows []TrafficFlow, class TrafficClass) []FlowRecord {
	for _, f := range flows {
		records = append(records, FlowRecord{
			Src:       f.Src,
			Dst:       f.Dst,
			Proto:     f.Proto,
			TxBytes:   f.TxBytes,
			RxBytes:   f.RxBytes,
			TxPackets: f.TxPkts,
			RxPackets: f.RxPkts,
			Class:     class,
		})
	}
	return records
}

// UnmarshalJSON decodes a network log accepting any field casing
func (l *NetworkLog) UnmarshalJSON(data []byte) error {
	fields, err := lowerKeys(data)
	if err != nil {
		return fmt.Errorf("network log: %w", err)
	}
	if err := pick(fields, "nodeid", &l.NodeID); err != nil {
		return err
	}
	if err := pick(fields, "logged", &l.Logged); err != nil {
		return err
	}
	if err := pick(fields, "start", &l.Start); err != nil {
		return err
	}
	if err := pick(fields, "end", &l.End); err != nil {
		return err
	}
	if err := pick(fields, "virtualtraffic", &l.VirtualTraffic); err != nil {
		return err
	}
	if err := pick(fields, "subnettraffic", &l.SubnetTraffic); err != nil {
		return err
	}
	return pick(fields, "physicaltraffic", &l.PhysicalTraffic)
}

// UnmarshalJSON decodes a traffic flow accepting any field casing
func (f *TrafficFlow) UnmarshalJSON(data []byte) error {
	fields, err := lowerKeys(data)
	if err != nil {
		return fmt.Errorf("traffic flow: %w", err)
	}
	if err := pick(fields, "proto", &f.Proto); err != nil {
		return err
	}
	if err := pick(fields, "src", &f.Src); err != nil {
		return err
	}
	if err := pick(fields, "dst", &f.Dst); err != nil {
		return err
	}
	if err := pick(fields, "txpkts", &f.TxPkts); err != nil {
		return err
	}
	if err := pick(fields, "txbytes", &f.TxBytes); err != nil {
		return err
	}
	if err := pick(fields, "rxpkts", &f.RxPkts); err != nil {
		return err
	}
	return pick(fields, "rxbytes", &f.RxBytes)
}

// lowerKeys splits an object into raw fields keyed by lower-cased name,
// collapsing camelCase and PascalCase variants onto one key
func lowerKeys(data []byte) (map[string]json.RawMessage, error) {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		fields[strings.ToLower(k)] = v
	}
	return fields, nil
}

func pick(fields map[string]json.RawMessage, key string, dst any) error {
	raw, ok := fields[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %s: %w", key, err)
	}
	return nil
}
