package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	apperrors "github.com/vaidashi/bakery-production/pkg/errors"
)

type ApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Detail  string      `json:"detail,omitempty"`
}

// Health represents the health check response
type Health struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Timestamp    string `json:"timestamp"`
	Store        string `json:"store"`
	StoreBreaker string `json:"store_breaker,omitempty"`
	Displays     int    `json:"displays"`
}

// healthCheckHandler handles the health check endpoint
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	health := Health{
		Status:    "ok",
		Version:   "0.2.0",
		Timestamp: time.Now().Format(time.RFC3339),
		Store:     s.config.StoreDriver,
		Displays:  s.hub.ClientCount(),
	}

	if s.breaker != nil {
		health.StoreBreaker = s.breaker.State().String()
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.db.Ping(ctx); err != nil {
			s.logger.Warn("Health check could not reach the database", "error", err)
			health.Status = "degraded"
		}
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    health,
	})
}

// getBoardHandler returns everything a display needs in one payload
func (s *Server) getBoardHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: s.engine.Board()})
}

// resyncHandler reloads the board from the store
func (s *Server) resyncHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Resync(r.Context()); err != nil {
		s.respondWithAppError(w, apperrors.NewRemoteWriteError("Resync failed", err))
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]string{
			"message": "Board reloaded from the store",
		},
	})
}

// decodeJSON reads the request body into v, reporting a 400 on failure
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}

	return true
}

// pathNumber parses a numeric route variable such as a mixer or oven number
func (s *Server) pathNumber(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(mux.Vars(r)[name])

	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}

	return n, true
}

// respondWithAppError maps err onto its HTTP status
func (s *Server) respondWithAppError(w http.ResponseWriter, err error) {
	resp := ApiResponse{Success: false, Error: err.Error()}

	var appErr *apperrors.AppError

	if errors.As(err, &appErr) {
		if cause, ok := appErr.Context["cause"].(string); ok {
			resp.Detail = cause
		}
	}

	s.respondWithJSON(w, apperrors.StatusCode(err), resp)
}

// respondWithError sends a JSON response with an error message
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, ApiResponse{
		Success: false,
		Error:   message,
	})
}

// respondWithJSON sends a JSON response
func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)

	if err != nil {
		s.logger.Error("Failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
