package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"techcare/internal/config"
	"techcare/internal/database"
	"techcare/internal/domain"
	"techcare/internal/events"
	"techcare/internal/models"

	"github.com/rs/zerolog"
)

type ReviewService struct {
	repo     domain.Repository
	guard    domain.Guard
	events   domain.EventPublisher
	throttle config.ThrottleConfig
	logger   *zerolog.Logger
}

func NewReviewService(repo domain.Repository, guard domain.Guard, bus domain.EventPublisher, throttle config.ThrottleConfig, logger *zerolog.Logger) *ReviewService {
	return &ReviewService{
		repo:     repo,
		guard:    guard,
		events:   bus,
		throttle: throttle,
		logger:   logger,
	}
}

type NewReview struct {
	BookingID string `json:"booking_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

// Create records the customer's review of a completed booking and folds the rating
// into the technician's average.
func (s *ReviewService) Create(ctx context.Context, actor *models.Profile, in NewReview) (*models.Review, error) {
	if !actor.IsCustomer() {
		return nil, ErrForbidden
	}
	if in.BookingID == "" {
		return nil, invalid("booking_id is required")
	}
	if in.Rating < models.MinRating || in.Rating > models.MaxRating {
		return nil, invalid("rating must be between %d and %d", models.MinRating, models.MaxRating)
	}

	booking, err := s.repo.GetBooking(ctx, in.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.CustomerID != actor.ID {
		return nil, ErrForbidden
	}
	if booking.Status != models.StatusCompleted || !booking.HasTechnician() {
		return nil, ErrBookingNotCompleted
	}
	_, err = s.repo.GetReviewByBooking(ctx, booking.ID)
	switch {
	case err == nil:
		return nil, database.ErrDuplicateReview
	case !errors.Is(err, database.ErrNotFound):
		return nil, err
	}

	if err := throttle(ctx, s.guard, s.logger, "reviews:"+actor.ID, s.throttle.ReviewsPerDay, 24*time.Hour); err != nil {
		return nil, err
	}

	r := &models.Review{
		BookingID:    booking.ID,
		CustomerID:   actor.ID,
		TechnicianID: *booking.TechnicianID,
		Rating:       in.Rating,
		Comment:      strings.TrimSpace(in.Comment),
	}
	if err := s.repo.CreateReview(ctx, r); err != nil {
		return nil, err
	}

	s.logger.Info().Str("review_id", r.ID).Str("technician_id", r.TechnicianID).Int("rating", r.Rating).Msg("review created")
	publish(ctx, s.events, s.logger, events.EventReviewCreated, events.ReviewEventPayload{
		ReviewID:     r.ID,
		BookingID:    r.BookingID,
		CustomerID:   r.CustomerID,
		TechnicianID: r.TechnicianID,
		Rating:       r.Rating,
		Comment:      r.Comment,
	})
	return r, nil
}

func (s *ReviewService) ListForTechnician(ctx context.Context, technicianID string, limit, offset int) ([]*models.Review, error) {
	if _, err := s.repo.GetTechnician(ctx, technicianID); err != nil {
		return nil, err
	}
	return s.repo.ListReviewsByTechnician(ctx, technicianID, limit, offset)
}
