package api

import "net/http"

// RegisterRoutes wires every handler onto mux, mirroring the teacher's
// mux.HandleFunc("METHOD /path", ...) registration style.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	// Session lifecycle.
	mux.HandleFunc("POST /sessions", h.createSession)
	mux.HandleFunc("GET /sessions/{sessionID}", h.getSession)
	mux.HandleFunc("GET /sessions/{sessionID}/status", h.getSessionStatus)
	mux.HandleFunc("POST /sessions/{sessionID}/answers", h.submitAnswer)
	mux.HandleFunc("POST /sessions/{sessionID}/complete", h.completeSession)
	mux.HandleFunc("POST /sessions/{sessionID}/abandon", h.abandonSession)

	// Scheduling reads.
	mux.HandleFunc("GET /students/{studentID}/courses/{courseID}/due", h.dueItems)
	mux.HandleFunc("GET /students/{studentID}/mastery", h.mastery)

	// Adaptive Advisor.
	mux.HandleFunc("GET /students/{studentID}/advisor/depth", h.recommendedDepth)
	mux.HandleFunc("GET /students/{studentID}/advisor/prerequisites", h.checkPrerequisites)
	mux.HandleFunc("GET /students/{studentID}/advisor/learning-path", h.learningPath)
	mux.HandleFunc("GET /students/{studentID}/advisor/gaps", h.knowledgeGaps)

	// Prerequisite graph.
	mux.HandleFunc("POST /prerequisites", h.addEdge)
	mux.HandleFunc("GET /core-loops/{id}/prerequisites", h.prereqsOf)
	mux.HandleFunc("GET /core-loops/{id}/dependents", h.dependentsOf)
}
