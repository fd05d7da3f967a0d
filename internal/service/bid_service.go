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
	"techcare/internal/metrics"
	"techcare/internal/models"

	"github.com/rs/zerolog"
)

type BidService struct {
	repo     domain.Repository
	guard    domain.Guard
	events   domain.EventPublisher
	throttle config.ThrottleConfig
	logger   *zerolog.Logger
}

func NewBidService(repo domain.Repository, guard domain.Guard, bus domain.EventPublisher, throttle config.ThrottleConfig, logger *zerolog.Logger) *BidService {
	return &BidService{
		repo:     repo,
		guard:    guard,
		events:   bus,
		throttle: throttle,
		logger:   logger,
	}
}

// NewBid is a technician's offer on an open booking.
type NewBid struct {
	Amount        float64 `json:"amount"`
	Message       string  `json:"message"`
	EstimatedDays int     `json:"estimated_days"`
}

func (s *BidService) Place(ctx context.Context, actor *models.Profile, bookingID string, in NewBid) (*models.Bid, error) {
	if !actor.IsTechnician() {
		return nil, ErrForbidden
	}
	if in.Amount <= 0 {
		return nil, invalid("bid amount must be positive")
	}
	if in.EstimatedDays < 0 {
		return nil, invalid("estimated days cannot be negative")
	}
	if _, err := s.repo.GetTechnician(ctx, actor.ID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, invalid("complete your technician profile before bidding")
		}
		return nil, err
	}

	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.StatusPending || booking.HasTechnician() {
		return nil, database.ErrBookingNotOpen
	}
	if booking.CustomerID == actor.ID {
		return nil, ErrForbidden
	}

	if err := throttle(ctx, s.guard, s.logger, "bids:"+actor.ID, s.throttle.BidsPerHour, time.Hour); err != nil {
		return nil, err
	}

	bid := &models.Bid{
		BookingID:     bookingID,
		TechnicianID:  actor.ID,
		Amount:        in.Amount,
		Message:       strings.TrimSpace(in.Message),
		EstimatedDays: in.EstimatedDays,
	}
	if err := s.repo.CreateBid(ctx, bid); err != nil {
		return nil, err
	}

	s.logger.Info().Str("bid_id", bid.ID).Str("booking_id", bookingID).Float64("amount", bid.Amount).Msg("bid placed")
	s.publishBid(ctx, events.EventBidPlaced, bid, booking)
	return bid, nil
}

// ListForBooking returns the bids on a booking, cheapest first.
func (s *BidService) ListForBooking(ctx context.Context, actor *models.Profile, bookingID string) ([]*models.Bid, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.CustomerID != actor.ID && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.repo.ListBidsByBooking(ctx, bookingID)
}

func (s *BidService) ListMine(ctx context.Context, actor *models.Profile, limit, offset int) ([]*models.Bid, error) {
	if !actor.IsTechnician() {
		return nil, ErrForbidden
	}
	return s.repo.ListBidsByTechnician(ctx, actor.ID, limit, offset)
}

// Accept picks a bid for the booking. Sibling bids are rejected and the booking moves
// to bid_accepted with the bid's technician and price.
func (s *BidService) Accept(ctx context.Context, actor *models.Profile, bidID string) (*models.Bid, *models.Booking, error) {
	bid, err := s.repo.GetBid(ctx, bidID)
	if err != nil {
		return nil, nil, err
	}
	booking, err := s.repo.GetBooking(ctx, bid.BookingID)
	if err != nil {
		return nil, nil, err
	}
	if booking.CustomerID != actor.ID {
		return nil, nil, ErrForbidden
	}

	bid, updated, err := s.repo.AcceptBid(ctx, bidID)
	if err != nil {
		return nil, nil, err
	}

	metrics.IncBookingTransition(models.StatusBidAccepted)
	s.logger.Info().Str("bid_id", bid.ID).Str("booking_id", updated.ID).Str("technician_id", bid.TechnicianID).
		Msg("bid accepted")
	s.publishBid(ctx, events.EventBidAccepted, bid, updated)
	publish(ctx, s.events, s.logger, events.EventBookingStatusChanged, events.BookingEventPayload{
		BookingID:      updated.ID,
		CustomerID:     updated.CustomerID,
		TechnicianID:   bid.TechnicianID,
		DeviceType:     updated.DeviceType,
		Status:         updated.Status,
		PreviousStatus: booking.Status,
		Price:          updated.Price,
		ChangedBy:      actor.Role,
	})
	return bid, updated, nil
}

// Withdraw deletes a pending bid. Only its technician or an admin may do so.
func (s *BidService) Withdraw(ctx context.Context, actor *models.Profile, bidID string) error {
	bid, err := s.repo.GetBid(ctx, bidID)
	if err != nil {
		return err
	}
	if bid.TechnicianID != actor.ID && !actor.IsAdmin() {
		return ErrForbidden
	}
	return s.repo.WithdrawBid(ctx, bidID)
}

func (s *BidService) publishBid(ctx context.Context, eventType string, bid *models.Bid, booking *models.Booking) {
	publish(ctx, s.events, s.logger, eventType, events.BidEventPayload{
		BidID:        bid.ID,
		BookingID:    booking.ID,
		CustomerID:   booking.CustomerID,
		TechnicianID: bid.TechnicianID,
		DeviceType:   booking.DeviceType,
		Amount:       bid.Amount,
	})
}
