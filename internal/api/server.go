package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"techcare/internal/config"
	"techcare/internal/service"

	"github.com/rs/zerolog"
)

// Services bundles the business services behind the REST API.
type Services struct {
	Accounts      *service.AccountService
	Technicians   *service.TechnicianService
	Bookings      *service.BookingService
	Bids          *service.BidService
	Reviews       *service.ReviewService
	Loyalty       *service.LoyaltyService
	Notifications *service.NotificationService
	Payments      *service.PaymentService
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	cfg      config.HTTPConfig
	app      config.AppConfig
	svc      Services
	verifier *TokenVerifier
	health   Pinger
	limiter  *rateLimiter
	handler  http.Handler
	server   *http.Server
	logger   *zerolog.Logger
}

func NewServer(cfg *config.Config, svc Services, health Pinger, logger *zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg.HTTP,
		app:      cfg.App,
		svc:      svc,
		verifier: NewTokenVerifier(cfg.Auth),
		health:   health,
		limiter:  newRateLimiter(cfg.RateLimit),
		logger:   logger,
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.limiter.middleware(handler)
	handler = accessLogMiddleware(logger)(handler)
	handler = corsMiddleware(cfg.HTTP.CORSOrigins)(handler)
	handler = requestIDMiddleware(handler)
	handler = recoveryMiddleware(logger)(handler)
	s.handler = handler

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/technicians", s.handleListTechnicians)
	mux.HandleFunc("GET /api/technicians/{id}", s.handleGetTechnician)
	mux.HandleFunc("GET /api/technicians/{id}/reviews", s.handleTechnicianReviews)
	mux.HandleFunc("PUT /api/technicians/me", s.authed(s.handleSaveTechnician))
	mux.HandleFunc("PATCH /api/technicians/me/availability", s.authed(s.handleSetAvailability))

	mux.HandleFunc("GET /api/profile", s.authed(s.handleGetProfile))
	mux.HandleFunc("PUT /api/profile", s.authed(s.handleUpdateProfile))
	mux.HandleFunc("DELETE /api/profile", s.authed(s.handleDeleteProfile))

	mux.HandleFunc("POST /api/bookings", s.authed(s.handleCreateBooking))
	mux.HandleFunc("GET /api/bookings", s.authed(s.handleListBookings))
	mux.HandleFunc("GET /api/bookings/open", s.authed(s.handleOpenBookings))
	mux.HandleFunc("GET /api/bookings/{id}", s.authed(s.handleGetBooking))
	mux.HandleFunc("PATCH /api/bookings/{id}/status", s.authed(s.handleUpdateBookingStatus))
	mux.HandleFunc("POST /api/bookings/{id}/cancel", s.authed(s.handleCancelBooking))
	mux.HandleFunc("POST /api/bookings/{id}/bids", s.authed(s.handlePlaceBid))
	mux.HandleFunc("GET /api/bookings/{id}/bids", s.authed(s.handleBookingBids))

	mux.HandleFunc("GET /api/bids/mine", s.authed(s.handleMyBids))
	mux.HandleFunc("POST /api/bids/{id}/accept", s.authed(s.handleAcceptBid))
	mux.HandleFunc("DELETE /api/bids/{id}", s.authed(s.handleWithdrawBid))

	mux.HandleFunc("POST /api/reviews", s.authed(s.handleCreateReview))

	mux.HandleFunc("GET /api/loyalty", s.authed(s.handleLoyaltySummary))
	mux.HandleFunc("GET /api/loyalty/transactions", s.authed(s.handleLoyaltyTransactions))
	mux.HandleFunc("GET /api/loyalty/rewards", s.authed(s.handleRewards))
	mux.HandleFunc("POST /api/loyalty/rewards/{id}/redeem", s.authed(s.handleRedeemReward))
	mux.HandleFunc("GET /api/loyalty/redeemed", s.authed(s.handleRedeemedRewards))
	mux.HandleFunc("POST /api/loyalty/redeemed/{code}/use", s.authed(s.handleUseReward))

	mux.HandleFunc("POST /api/payments/intents", s.authed(s.handleCreateIntent))
	mux.HandleFunc("POST /api/payments/confirm", s.authed(s.handleConfirmPayment))
	mux.HandleFunc("POST /api/payments/webhook", s.handleWebhook)

	mux.HandleFunc("GET /api/notifications", s.authed(s.handleListNotifications))
	mux.HandleFunc("GET /api/notifications/unread-count", s.authed(s.handleUnreadCount))
	mux.HandleFunc("PATCH /api/notifications/read-all", s.authed(s.handleMarkAllRead))
	mux.HandleFunc("PATCH /api/notifications/{id}/read", s.authed(s.handleMarkRead))
	mux.HandleFunc("DELETE /api/notifications/{id}", s.authed(s.handleDeleteNotification))

	mux.HandleFunc("GET /api/admin/stats", s.adminOnly(s.handleAdminStats))
	mux.HandleFunc("GET /api/admin/users", s.adminOnly(s.handleAdminUsers))
	mux.HandleFunc("DELETE /api/admin/users/{id}", s.adminOnly(s.handleAdminDeleteUser))
	mux.HandleFunc("PATCH /api/admin/technicians/{id}/verify", s.adminOnly(s.handleVerifyTechnician))
	mux.HandleFunc("POST /api/admin/bookings/{id}/assign", s.adminOnly(s.handleAssignTechnician))
	mux.HandleFunc("GET /api/admin/bookings", s.adminOnly(s.handleAdminBookings))
	mux.HandleFunc("GET /api/admin/bookings/export", s.adminOnly(s.handleExportBookings))
	mux.HandleFunc("GET /api/admin/emails/failed", s.adminOnly(s.handleFailedEmails))
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// RunMaintenance drops idle rate limiter buckets until ctx is done.
func (s *Server) RunMaintenance(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.cleanup(15 * time.Minute); n > 0 {
				s.logger.Debug().Int("removed", n).Msg("rate limiter cleanup")
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok", "version": s.app.Version}
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.logger.Error().Err(err).Msg("health check failed")
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeSuccess(w, http.StatusOK, "", status)
}
