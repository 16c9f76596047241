// Package service implements the business layer between the HTTP
// handlers and the topology pipeline.
//
// # Services
//
// TopologyService is the single facade over the rebuild pipeline: it
// forwards batches and rebuild requests to the coordinator, owns the
// directory of lookup tables (restoring it from the SQLite cache at
// startup and persisting replacements), and appends a history record for
// every completed rebuild.
//
// # Event System
//
// The service publishes events via EventBus for real-time updates to
// connected clients over Server-Sent Events (SSE). Topology events carry
// a compact summary (revision, counts, strategy); clients re-fetch the
// full snapshot over the API.
package service
