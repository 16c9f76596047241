// Package handler implements the HTTP layer of the meshmap API.
//
// TopologyHandler serves the assembled graph, the cached directory
// (devices, services, DNS records), rebuild history, and the control
// endpoints that schedule rebuilds, relayouts, and source syncs. It also
// accepts pushed network-log batches on /api/logs for exporters that
// cannot be polled.
//
// # API Design
//
// Read endpoints are GET and return JSON. Control endpoints are POST and
// return 202 Accepted; the work they trigger runs in the pipeline, and its
// outcome is announced on the /events SSE stream rather than in the
// response. Position overrides are PUT and synchronous.
//
// Errors are returned as JSON with an {error, details} structure and an
// appropriate status code.
//
// # Middleware
//
// Chain composes Recover, CORS, and Logger around the mux. Recover is
// mounted outermost so a panic anywhere below it still produces a 500.
package handler
