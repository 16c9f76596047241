// Package source implements the flow-record producers that feed the
// topology pipeline.
//
// Sources are pluggable components that collect network-flow logs and
// deliver them as batches through a SinkFunc. Each source registers with
// the central registry, which owns lifecycle and scheduling.
//
// # Source Types
//
// TypePolling sources are driven by the registry on an interval.
// TypeWatcher sources react to filesystem events.
// TypeStream sources produce batches continuously on their own clock.
//
// # Core Sources
//
// TailnetSource polls the mesh control-plane API for the device
// directory, the service and DNS-record lookup maps, and the
// network-flow logs of a trailing window. Fetches run concurrently and
// share a rate limiter.
//
// FileSource watches a spool directory for .json and .json.zst log
// drops, so archived or out-of-band log batches can be ingested without
// API access.
//
// CaptureSource folds live packets from one interface into windowed flow
// batches, covering machines the control plane cannot see.
//
// SeedSource loads the identity directory from a YAML file and re-applies
// it when the file is edited, standing in for the control plane in
// offline deployments.
//
// # Registry
//
// Registry manages registered sources, runs polling loops, and exposes a
// manual sync trigger used by the API's POST /api/sync endpoint.
package source
