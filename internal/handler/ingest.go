package handler

import (
	"net/http"

	json "github.com/json-iterator/go"

	"meshmap/internal/domain"
)

// logEnvelope matches the control plane's network-log response shape, so a
// captured API response can be replayed into the webhook unchanged
type logEnvelope struct {
	Logs []domain.NetworkLog `json:"logs"`
}

// IngestLogs accepts a pushed batch of network logs. Each push replaces
// the previous batch delivered under the same source name.
func (h *TopologyHandler) IngestLogs(w http.ResponseWriter, r *http.Request) {
	var env logEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	source := r.URL.Query().Get("source")
	if source == "" {
		source = "push"
	}

	batch := domain.LogBatch{Source: source}
	for i := range env.Logs {
		l := &env.Logs[i]
		batch.Merge(domain.LogBatch{Start: l.Start, End: l.End, Records: l.Flatten()})
	}

	h.svc.Ingest(batch)

	h.writeJSON(w, map[string]interface{}{
		"status":  "accepted",
		"source":  source,
		"logs":    len(env.Logs),
		"records": len(batch.Records),
	}, http.StatusAccepted)
}
