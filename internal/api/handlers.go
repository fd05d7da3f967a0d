package api

import (
	"net/http"
	"strconv"
	"strings"

	"techcare/internal/models"
	"techcare/internal/service"
)

// GET /api/technicians
func (s *Server) handleListTechnicians(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := models.TechnicianFilter{
		Specialization: q.Get("specialization"),
		City:           q.Get("city"),
		Search:         strings.TrimSpace(q.Get("search")),
		SortBy:         q.Get("sort"),
		AvailableOnly:  q.Get("available") == "true",
		VerifiedOnly:   q.Get("verified") == "true",
		Limit:          limit,
		Offset:         offset,
	}
	if raw := q.Get("min_rating"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid value of \"min_rating\" query parameter: "+raw)
			return
		}
		f.MinRating = v
	}

	technicians, err := s.svc.Technicians.List(r.Context(), f)
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", technicians)
}

// GET /api/technicians/{id}
func (s *Server) handleGetTechnician(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Technicians.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", t)
}

// GET /api/technicians/{id}/reviews
func (s *Server) handleTechnicianReviews(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	reviews, err := s.svc.Reviews.ListForTechnician(r.Context(), r.PathValue("id"), limit, offset)
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", reviews)
}

// PUT /api/technicians/me
func (s *Server) handleSaveTechnician(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	var body service.TechnicianProfile
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := s.svc.Technicians.SaveProfile(r.Context(), actor, body)
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Technician profile saved", t)
}

// PATCH /api/technicians/me/availability
func (s *Server) handleSetAvailability(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	var body struct {
		IsAvailable *bool `json:"is_available"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.IsAvailable == nil {
		writeError(w, http.StatusBadRequest, "is_available is required")
		return
	}
	if err := s.svc.Technicians.SetAvailability(r.Context(), actor, *body.IsAvailable); err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Availability updated", map[string]bool{"is_available": *body.IsAvailable})
}

// GET /api/profile
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	writeSuccess(w, http.StatusOK, "", actor)
}

// PUT /api/profile
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	var body service.ProfileUpdate
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.svc.Accounts.UpdateProfile(r.Context(), actor, body)
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Profile updated", p)
}

// DELETE /api/profile
func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	if err := s.svc.Accounts.DeleteAccount(r.Context(), actor, actor.ID); err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Account deleted", nil)
}

// POST /api/reviews
func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	var body service.NewReview
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	review, err := s.svc.Reviews.Create(r.Context(), actor, body)
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Review submitted", review)
}
