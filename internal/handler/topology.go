package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"meshmap/internal/domain"
	"meshmap/internal/pipeline"
	"meshmap/internal/service"
	"meshmap/internal/source"
)

// SourceSyncer triggers an immediate sync of every registered source and
// describes what is registered
type SourceSyncer interface {
	SyncAll(ctx context.Context) error
	List() []source.Info
}

// TopologyHandler serves the topology API
type TopologyHandler struct {
	svc    *service.TopologyService
	syncer SourceSyncer
	log    *zap.Logger
}

// NewTopologyHandler creates a handler over the topology service
func NewTopologyHandler(svc *service.TopologyService, log *zap.Logger) *TopologyHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &TopologyHandler{svc: svc, log: log.Named("api")}
}

// SetSourceSyncer attaches the source registry for manual sync triggers
func (h *TopologyHandler) SetSourceSyncer(s SourceSyncer) {
	h.syncer = s
}

// Register mounts the API routes on the mux
func (h *TopologyHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/topology", h.GetTopology)
	mux.HandleFunc("GET /api/devices", h.ListDevices)
	mux.HandleFunc("GET /api/services", h.ListServices)
	mux.HandleFunc("GET /api/records", h.ListRecords)
	mux.HandleFunc("GET /api/history", h.GetHistory)
	mux.HandleFunc("GET /api/sources", h.ListSources)
	mux.HandleFunc("GET /healthz", h.Health)

	mux.HandleFunc("POST /api/logs", h.IngestLogs)
	mux.HandleFunc("POST /api/rebuild", h.Rebuild)
	mux.HandleFunc("POST /api/relayout", h.Relayout)
	mux.HandleFunc("POST /api/sync", h.TriggerSync)

	mux.HandleFunc("PUT /api/positions/{id}", h.UpdatePosition)
}

// ErrorResponse is the wire shape of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// topologyResponse flattens a pipeline snapshot for the dashboard. The
// graph's node and edge maps are keyed internally; the wire shape carries
// them as sorted arrays.
type topologyResponse struct {
	Nodes     []*domain.Node             `json:"nodes"`
	Edges     []*domain.Edge             `json:"edges"`
	Skipped   int                        `json:"skipped"`
	Positions map[string]domain.Position `json:"positions"`
	Strategy  domain.LayoutStrategy      `json:"strategy"`
	Revision  uint64                     `json:"revision"`
	BuildID   string                     `json:"build_id"`
	Start     time.Time                  `json:"start"`
	End       time.Time                  `json:"end"`
	BuiltAt   time.Time                  `json:"built_at"`
}

// GetTopology returns the current graph, positions, and build metadata
func (h *TopologyHandler) GetTopology(w http.ResponseWriter, r *http.Request) {
	snap := h.svc.Snapshot()

	h.writeJSON(w, topologyResponse{
		Nodes:     snap.Graph.SortedNodes(),
		Edges:     snap.Graph.SortedEdges(),
		Skipped:   snap.Graph.Skipped,
		Positions: snap.Layout.Positions,
		Strategy:  snap.Layout.Strategy,
		Revision:  snap.Revision,
		BuildID:   snap.BuildID,
		Start:     snap.Start,
		End:       snap.End,
		BuiltAt:   snap.BuiltAt,
	}, http.StatusOK)
}

// ListDevices returns the cached device directory
func (h *TopologyHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices := h.svc.Devices()
	if devices == nil {
		devices = []domain.Device{}
	}
	h.writeJSON(w, devices, http.StatusOK)
}

// ListServices returns the service name to address mapping
func (h *TopologyHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	services := h.svc.Services()
	if services == nil {
		services = map[string][]string{}
	}
	h.writeJSON(w, services, http.StatusOK)
}

// ListRecords returns the static DNS record mapping
func (h *TopologyHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	records := h.svc.Records()
	if records == nil {
		records = map[string][]string{}
	}
	h.writeJSON(w, records, http.StatusOK)
}

// GetHistory returns recent rebuild rows, newest first
func (h *TopologyHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, "Invalid limit", "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	builds, err := h.svc.History(r.Context(), limit)
	if err != nil {
		h.log.Error("list build history", zap.Error(err))
		h.writeError(w, "Failed to list history", err.Error(), http.StatusInternalServerError)
		return
	}
	if builds == nil {
		builds = []domain.BuildRecord{}
	}
	h.writeJSON(w, builds, http.StatusOK)
}

// Health reports liveness plus the current build revision
func (h *TopologyHandler) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.svc.Snapshot()
	h.writeJSON(w, map[string]interface{}{
		"status":   "ok",
		"revision": snap.Revision,
		"nodes":    snap.Graph.NodeCount(),
		"edges":    snap.Graph.EdgeCount(),
	}, http.StatusOK)
}

// Rebuild schedules a full rebuild from the retained source batches
func (h *TopologyHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	h.svc.Rebuild()
	h.writeJSON(w, map[string]string{"status": "rebuild_scheduled"}, http.StatusAccepted)
}

// Relayout schedules a rebuild that recomputes positions even when the
// structure is unchanged
func (h *TopologyHandler) Relayout(w http.ResponseWriter, r *http.Request) {
	h.svc.Relayout()
	h.writeJSON(w, map[string]string{"status": "relayout_scheduled"}, http.StatusAccepted)
}

// TriggerSync asks every registered source for an immediate sync
func (h *TopologyHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		h.writeError(w, "No sources configured", "no source registry is attached", http.StatusServiceUnavailable)
		return
	}

	// Run the sync in the background and return immediately
	go func() {
		if err := h.syncer.SyncAll(context.Background()); err != nil {
			h.log.Warn("manual sync failed", zap.Error(err))
		}
	}()

	h.writeJSON(w, map[string]string{"status": "sync_started"}, http.StatusAccepted)
}

// ListSources returns the registered ingest sources
func (h *TopologyHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		h.writeJSON(w, []source.Info{}, http.StatusOK)
		return
	}
	h.writeJSON(w, h.syncer.List(), http.StatusOK)
}

// UpdatePosition overrides one node's position in the current layout
func (h *TopologyHandler) UpdatePosition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, "Invalid node ID", "node ID is required", http.StatusBadRequest)
		return
	}

	var pos domain.Position
	if err := json.NewDecoder(r.Body).Decode(&pos); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.svc.SetPosition(id, pos); err != nil {
		if errors.Is(err, pipeline.ErrUnknownNode) {
			h.writeError(w, "Not found", "no node with ID "+id, http.StatusNotFound)
			return
		}
		h.log.Error("set position", zap.String("node", id), zap.Error(err))
		h.writeError(w, "Failed to set position", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, pos, http.StatusOK)
}

// Helper methods

func (h *TopologyHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("encode response", zap.Error(err))
	}
}

func (h *TopologyHandler) writeError(w http.ResponseWriter, msg, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg,
		Details: details,
	}); err != nil {
		h.log.Error("encode error response", zap.Error(err))
	}
}
