// Package repository defines the data access interface for meshmap.
//
// The server keeps two kinds of durable state, both secondary to the
// in-memory pipeline: a cache of the control-plane lookup tables
// (devices, services, DNS records) so identity resolution survives a
// control-plane outage, and a history log of completed topology
// rebuilds. The actual implementation is in the sqlite subpackage.
//
// Layout positions are not persisted. The graph is rebuilt whole from
// flow logs, and a fresh layout is computed whenever its structure
// changes, so a stored position would be stale before it was read.
//
// # SQLite Implementation
//
// The sqlite implementation uses WAL mode for concurrency and migrates
// its schema on startup. Directory saves are transactional full
// replacements, matching how the control plane delivers its tables.
//
// # Testing
//
// The sqlite repository is tested against in-memory databases.
package repository
