package api

import (
	"encoding/json"
	"net/http"
)

// handleStats reports model invocation stats plus queue and run counts.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"model":       s.model,
		"llm":         s.stats.Snapshot(),
		"queue_depth": s.orchestrator.QueueDepth(),
		"runs":        s.orchestrator.RunCounts(),
	})
}
