package api

import (
	"net/http"
)

// getCircuitBreakerStatusHandler returns the state of the breaker guarding the store
func (s *Server) getCircuitBreakerStatusHandler(w http.ResponseWriter, r *http.Request) {
	if s.breaker == nil {
		s.respondWithError(w, http.StatusNotFound, "The in-memory store has no circuit breaker")
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]string{
			"state": s.breaker.State().String(),
		},
	})
}
