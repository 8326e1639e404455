package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/vaidashi/bakery-production/internal/models"
)

type updateStatusRequest struct {
	Status models.OrderStatus `json:"status"`
}

// updateQuantityRequest sets the produced quantity when Quantity is present,
// otherwise adjusts it by Delta
type updateQuantityRequest struct {
	Quantity *int `json:"quantity,omitempty"`
	Delta    int  `json:"delta,omitempty"`
}

type updateNotesRequest struct {
	Notes string `json:"notes"`
}

// getOrdersHandler returns the orders on the board, optionally filtered by ?status=
func (s *Server) getOrdersHandler(w http.ResponseWriter, r *http.Request) {
	var filter *models.OrderStatus

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.OrderStatus(raw)

		if !status.Valid() {
			s.respondWithError(w, http.StatusBadRequest, "Unknown status "+raw)
			return
		}

		filter = &status
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: s.engine.Orders(filter)})
}

// createOrderHandler queues a new order
func (s *Server) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	var in models.NewOrderInput

	if !s.decodeJSON(w, r, &in) {
		return
	}

	order, err := s.engine.CreateOrder(r.Context(), in)

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: order})
}

// getOrderByIDHandler returns an order by ID
func (s *Server) getOrderByIDHandler(w http.ResponseWriter, r *http.Request) {
	order, err := s.engine.Order(mux.Vars(r)["id"])

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}

func (s *Server) deleteOrderHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteOrder(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.respondWithAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateOrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest

	if !s.decodeJSON(w, r, &req) {
		return
	}

	if !req.Status.Valid() {
		s.respondWithError(w, http.StatusBadRequest, "Unknown status "+string(req.Status))
		return
	}

	id := mux.Vars(r)["id"]

	if err := s.engine.UpdateOrderStatus(r.Context(), id, req.Status); err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithOrder(w, id)
}

func (s *Server) updateQuantityHandler(w http.ResponseWriter, r *http.Request) {
	var req updateQuantityRequest

	if !s.decodeJSON(w, r, &req) {
		return
	}

	id := mux.Vars(r)["id"]

	var (
		order *models.Order
		err   error
	)

	if req.Quantity != nil {
		order, err = s.engine.SetProducedQuantity(r.Context(), id, *req.Quantity)
	} else {
		order, err = s.engine.AdjustProducedQuantity(r.Context(), id, req.Delta)
	}

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}

func (s *Server) updateNotesHandler(w http.ResponseWriter, r *http.Request) {
	var req updateNotesRequest

	if !s.decodeJSON(w, r, &req) {
		return
	}

	id := mux.Vars(r)["id"]

	if err := s.engine.UpdateNotes(r.Context(), id, req.Notes); err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithOrder(w, id)
}

func (s *Server) recordPrintHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.engine.RecordPrint(r.Context(), id); err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithOrder(w, id)
}

// respondWithOrder writes the current state of the order after a command
func (s *Server) respondWithOrder(w http.ResponseWriter, id string) {
	order, err := s.engine.Order(id)

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}
