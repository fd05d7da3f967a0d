package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"techcare/internal/export"
	"techcare/internal/models"
)

const dayLayout = "2006-01-02"

// queryDay parses an optional YYYY-MM-DD query parameter. When endOfDay is
// set the returned time is the start of the following day.
func queryDay(r *http.Request, key string, endOfDay bool) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dayLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid value of %q query parameter: %s", key, raw)
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

// GET /api/admin/stats
func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	stats, err := s.svc.Accounts.Stats(r.Context(), actor)
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", stats)
}

// GET /api/admin/emails/failed
func (s *Server) handleFailedEmails(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	tasks, err := s.svc.Accounts.FailedEmails(r.Context(), actor)
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", tasks)
}

// GET /api/admin/users
func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	users, err := s.svc.Accounts.ListUsers(r.Context(), actor, r.URL.Query().Get("role"), limit, offset)
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", users)
}

// DELETE /api/admin/users/{id}
func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	if err := s.svc.Accounts.DeleteAccount(r.Context(), actor, r.PathValue("id")); err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "User deleted", nil)
}

// PATCH /api/admin/technicians/{id}/verify
func (s *Server) handleVerifyTechnician(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	body := struct {
		Verified *bool `json:"verified"`
	}{}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	verified := body.Verified == nil || *body.Verified
	if err := s.svc.Technicians.Verify(r.Context(), actor, r.PathValue("id"), verified); err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Technician verification updated", map[string]bool{"is_verified": verified})
}

// POST /api/admin/bookings/{id}/assign
func (s *Server) handleAssignTechnician(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	var body struct {
		TechnicianID string `json:"technician_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.TechnicianID == "" {
		writeError(w, http.StatusBadRequest, "technician_id is required")
		return
	}
	b, err := s.svc.Bookings.Assign(r.Context(), actor, r.PathValue("id"), body.TechnicianID)
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Technician assigned", b)
}

// GET /api/admin/bookings
func (s *Server) handleAdminBookings(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	from, err := queryDay(r, "from", false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := queryDay(r, "to", true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bookings, err := s.svc.Bookings.ListAll(r.Context(), actor, models.BookingFilter{
		Status: r.URL.Query().Get("status"),
		From:   from,
		To:     to,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", bookings)
}

// GET /api/admin/bookings/export
func (s *Server) handleExportBookings(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	from, err := queryDay(r, "from", false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := queryDay(r, "to", true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Buffer so a failed export can still produce a JSON error.
	var buf bytes.Buffer
	if err := s.svc.Accounts.ExportBookings(r.Context(), actor, &buf, from, to); err != nil {
		serviceError(w, r, s.logger, err)
		return
	}

	lastDay := to
	if !to.IsZero() {
		lastDay = to.AddDate(0, 0, -1)
	}
	name := export.FileName(from, lastDay)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Warn().Err(err).Msg("write export")
	}
}
