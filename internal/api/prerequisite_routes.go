package api

import "net/http"

type addEdgeRequest struct {
	PrereqCoreLoopID    string `json:"prereq_core_loop_id"`
	DependentCoreLoopID string `json:"dependent_core_loop_id"`
}

// POST /prerequisites
func (h *Handler) addEdge(w http.ResponseWriter, r *http.Request) {
	var req addEdgeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.graph.AddEdge(req.PrereqCoreLoopID, req.DependentCoreLoopID); h.handleEngineError(w, err) {
		return
	}

	if err := h.store.SaveEdge(r.Context(), req.PrereqCoreLoopID, req.DependentCoreLoopID); h.handleEngineError(w, err) {
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"prereq_core_loop_id":    req.PrereqCoreLoopID,
		"dependent_core_loop_id": req.DependentCoreLoopID,
	})
}

// GET /core-loops/{id}/prerequisites
func (h *Handler) prereqsOf(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	respondJSON(w, http.StatusOK, h.graph.PrereqsOf(id))
}

// GET /core-loops/{id}/dependents
func (h *Handler) dependentsOf(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	respondJSON(w, http.StatusOK, h.graph.DependentsOf(id))
}
