package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

type startMixingRequest struct {
	Mixer int `json:"mixer"`
}

type startBakingRequest struct {
	BatchID string `json:"batch_id"`
}

func (s *Server) startMixingHandler(w http.ResponseWriter, r *http.Request) {
	var req startMixingRequest

	if !s.decodeJSON(w, r, &req) {
		return
	}

	id := mux.Vars(r)["id"]

	if err := s.engine.StartMixing(r.Context(), id, req.Mixer); err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithOrder(w, id)
}

func (s *Server) cancelMixingHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.engine.CancelMixing(r.Context(), id); err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithOrder(w, id)
}

// completeMixingHandler returns the batch that joined the oven queue, if any
func (s *Server) completeMixingHandler(w http.ResponseWriter, r *http.Request) {
	batch, err := s.engine.CompleteMixing(r.Context(), mux.Vars(r)["id"])

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: batch})
}

func (s *Server) getMixersHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: s.engine.Mixers()})
}

func (s *Server) startMixerCountdownHandler(w http.ResponseWriter, r *http.Request) {
	mixer, ok := s.pathNumber(w, r, "number")

	if !ok {
		return
	}

	if err := s.engine.StartMixerCountdown(r.Context(), mixer); err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: s.engine.Mixers()})
}

func (s *Server) cancelMixerCountdownHandler(w http.ResponseWriter, r *http.Request) {
	mixer, ok := s.pathNumber(w, r, "number")

	if !ok {
		return
	}

	if err := s.engine.CancelMixerCountdown(r.Context(), mixer); err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: s.engine.Mixers()})
}

func (s *Server) getOvensHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: s.engine.Ovens()})
}

func (s *Server) getOvenQueueHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: s.engine.OvenQueue()})
}

// startBakingHandler loads a batch, single or composite, into the oven
func (s *Server) startBakingHandler(w http.ResponseWriter, r *http.Request) {
	oven, ok := s.pathNumber(w, r, "number")

	if !ok {
		return
	}

	var req startBakingRequest

	if !s.decodeJSON(w, r, &req) {
		return
	}

	if req.BatchID == "" {
		s.respondWithError(w, http.StatusBadRequest, "batch_id is required")
		return
	}

	if err := s.engine.StartBaking(r.Context(), req.BatchID, oven); err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: s.engine.Ovens()})
}

func (s *Server) completeBakingHandler(w http.ResponseWriter, r *http.Request) {
	oven, ok := s.pathNumber(w, r, "number")

	if !ok {
		return
	}

	completed, err := s.engine.CompleteBaking(r.Context(), oven)

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	done, target := s.engine.DailyCompleted()

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]int{
			"completed":       completed,
			"daily_completed": done,
			"daily_target":    target,
		},
	})
}
