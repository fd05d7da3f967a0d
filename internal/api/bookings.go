package api

import (
	"net/http"

	"techcare/internal/models"
	"techcare/internal/service"
)

// POST /api/bookings
func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	var body service.NewBooking
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := s.svc.Bookings.Create(r.Context(), actor, body)
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Booking created", b)
}

// GET /api/bookings
func (s *Server) handleListBookings(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	bookings, err := s.svc.Bookings.ListMine(r.Context(), actor, limit, offset)
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", bookings)
}

// GET /api/bookings/open
func (s *Server) handleOpenBookings(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	bookings, err := s.svc.Bookings.ListOpen(r.Context(), actor, r.URL.Query().Get("device_type"), limit, offset)
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", bookings)
}

// GET /api/bookings/{id}
func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	b, err := s.svc.Bookings.Get(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", b)
}

// PATCH /api/bookings/{id}/status
func (s *Server) handleUpdateBookingStatus(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	var body struct {
		Status  string `json:"status"`
		Version int64  `json:"version"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}
	b, err := s.svc.Bookings.UpdateStatus(r.Context(), actor, r.PathValue("id"), body.Status, body.Version)
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Booking status updated", b)
}

// POST /api/bookings/{id}/cancel
func (s *Server) handleCancelBooking(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	b, err := s.svc.Bookings.Cancel(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Booking cancelled", b)
}

// POST /api/bookings/{id}/bids
func (s *Server) handlePlaceBid(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	var body service.NewBid
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bid, err := s.svc.Bids.Place(r.Context(), actor, r.PathValue("id"), body)
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Bid placed", bid)
}

// GET /api/bookings/{id}/bids
func (s *Server) handleBookingBids(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	bids, err := s.svc.Bids.ListForBooking(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", bids)
}

// GET /api/bids/mine
func (s *Server) handleMyBids(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	bids, err := s.svc.Bids.ListMine(r.Context(), actor, limit, offset)
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", bids)
}

// POST /api/bids/{id}/accept
func (s *Server) handleAcceptBid(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	bid, booking, err := s.svc.Bids.Accept(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Bid accepted", map[string]any{"bid": bid, "booking": booking})
}

// DELETE /api/bids/{id}
func (s *Server) handleWithdrawBid(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	if err := s.svc.Bids.Withdraw(r.Context(), actor, r.PathValue("id")); err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Bid withdrawn", nil)
}
