// Package domain defines the core domain types for the meshmap topology pipeline.
//
// This package contains the fundamental entities and value objects that represent
// mesh network traffic concepts, including flow records, nodes, edges, graphs,
// and layout results.
//
// # Core Types
//
// FlowRecord is a single directional traffic observation between two endpoint
// addresses, carrying byte and packet counters and a traffic class.
//
// NetworkLog is the wire form of a device's flow report. Field casing on the
// wire is not trusted; decoding accepts any casing of the documented names.
//
// Node represents a resolved network entity (device, service, DNS record, or
// bare IP) with accumulated traffic counters, observed protocols, and port sets.
//
// Edge represents directed traffic between an ordered pair of nodes. The pair
// is never normalized, so A->B and B->A are distinct edges.
//
// Graph is the aggregate of nodes and edges built from one batch of flow
// records.
//
// # Layout
//
// LayoutResult pairs a strategy tag with the coordinates it produced. Results
// are treated as immutable; WithPosition returns a derived copy rather than
// mutating in place.
//
// # Design Principles
//
// - Immutable value objects where possible
// - No database or external dependencies
// - Pure domain logic without infrastructure concerns
package domain
