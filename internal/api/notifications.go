package api

import (
	"net/http"

	"techcare/internal/models"
)

// GET /api/notifications
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	unread := r.URL.Query().Get("unread") == "true"
	list, err := s.svc.Notifications.List(r.Context(), actor, unread, limit, offset)
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", list)
}

// GET /api/notifications/unread-count
func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	n, err := s.svc.Notifications.UnreadCount(r.Context(), actor)
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]int64{"count": n})
}

// PATCH /api/notifications/read-all
func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	n, err := s.svc.Notifications.MarkAllRead(r.Context(), actor)
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Notifications marked as read", map[string]int64{"updated": n})
}

// PATCH /api/notifications/{id}/read
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	if err := s.svc.Notifications.MarkRead(r.Context(), actor, r.PathValue("id")); err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Notification marked as read", nil)
}

// DELETE /api/notifications/{id}
func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	if err := s.svc.Notifications.Delete(r.Context(), actor, r.PathValue("id")); err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Notification deleted", nil)
}
