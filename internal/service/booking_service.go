package service

import (
	"context"
	"fmt"
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

type BookingService struct {
	repo     domain.Repository
	guard    domain.Guard
	events   domain.EventPublisher
	loyalty  *LoyaltyService
	throttle config.ThrottleConfig
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewBookingService(repo domain.Repository, guard domain.Guard, bus domain.EventPublisher, loyalty *LoyaltyService, throttle config.ThrottleConfig, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		repo:     repo,
		guard:    guard,
		events:   bus,
		loyalty:  loyalty,
		throttle: throttle,
		logger:   logger,
		now:      time.Now,
	}
}

// NewBooking is a customer's repair request.
type NewBooking struct {
	DeviceType       string     `json:"device_type"`
	DeviceBrand      string     `json:"device_brand"`
	DeviceModel      string     `json:"device_model"`
	IssueDescription string     `json:"issue_description"`
	ServiceAddress   string     `json:"service_address"`
	PreferredDate    *time.Time `json:"preferred_date"`
	EstimatedCost    float64    `json:"estimated_cost"`
}

func (s *BookingService) Create(ctx context.Context, actor *models.Profile, in NewBooking) (*models.Booking, error) {
	if !actor.IsCustomer() {
		return nil, ErrForbidden
	}

	in.DeviceType = strings.ToLower(strings.TrimSpace(in.DeviceType))
	in.IssueDescription = strings.TrimSpace(in.IssueDescription)
	if in.DeviceType == "" {
		return nil, invalid("device type is required")
	}
	if in.IssueDescription == "" {
		return nil, invalid("issue description is required")
	}
	if in.EstimatedCost < 0 {
		return nil, invalid("estimated cost cannot be negative")
	}
	if in.PreferredDate != nil && in.PreferredDate.Before(s.now().AddDate(0, 0, -1)) {
		return nil, invalid("preferred date is in the past")
	}

	if err := throttle(ctx, s.guard, s.logger, "bookings:"+actor.ID, s.throttle.BookingsPerDay, 24*time.Hour); err != nil {
		return nil, err
	}

	b := &models.Booking{
		CustomerID:     actor.ID,
		DeviceType:     in.DeviceType,
		DeviceBrand:    strings.TrimSpace(in.DeviceBrand),
		DeviceModel:    strings.TrimSpace(in.DeviceModel),
		IssueDesc:      in.IssueDescription,
		ServiceAddress: strings.TrimSpace(in.ServiceAddress),
		PreferredDate:  in.PreferredDate,
		EstimatedCost:  in.EstimatedCost,
	}
	if err := s.repo.CreateBooking(ctx, b); err != nil {
		return nil, err
	}

	s.logger.Info().Str("booking_id", b.ID).Str("customer_id", actor.ID).Str("device", b.DeviceType).Msg("booking created")
	s.publishStatus(ctx, events.EventBookingCreated, b, "", actor.Role)
	return b, nil
}

// canView reports whether actor may read the booking. Technicians may see open
// bookings they could bid on.
func canView(actor *models.Profile, b *models.Booking) bool {
	switch {
	case actor.IsAdmin():
		return true
	case b.CustomerID == actor.ID:
		return true
	case b.IsAssignedTo(actor.ID):
		return true
	case actor.IsTechnician() && b.Status == models.StatusPending && !b.HasTechnician():
		return true
	}
	return false
}

func (s *BookingService) Get(ctx context.Context, actor *models.Profile, id string) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, b) {
		return nil, ErrForbidden
	}
	return b, nil
}

// ListMine returns the caller's bookings: placed ones for customers, assigned jobs
// for technicians, everything for admins.
func (s *BookingService) ListMine(ctx context.Context, actor *models.Profile, limit, offset int) ([]*models.Booking, error) {
	switch actor.Role {
	case models.RoleCustomer:
		return s.repo.ListBookingsByCustomer(ctx, actor.ID, limit, offset)
	case models.RoleTechnician:
		return s.repo.ListBookingsByTechnician(ctx, actor.ID, limit, offset)
	case models.RoleAdmin:
		return s.repo.ListBookings(ctx, models.BookingFilter{Limit: limit, Offset: offset})
	}
	return nil, ErrForbidden
}

func (s *BookingService) ListOpen(ctx context.Context, actor *models.Profile, deviceType string, limit, offset int) ([]*models.Booking, error) {
	if !actor.IsTechnician() && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.repo.ListOpenBookings(ctx, strings.ToLower(strings.TrimSpace(deviceType)), limit, offset)
}

func (s *BookingService) ListAll(ctx context.Context, actor *models.Profile, f models.BookingFilter) ([]*models.Booking, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if f.Status != "" && !models.ValidBookingStatus(f.Status) {
		return nil, invalid("unknown status %q", f.Status)
	}
	if f.Limit < 0 {
		f.Limit = 0
	}
	return s.repo.ListBookings(ctx, f)
}

// allowedBy reports whether actor's role may drive the booking into status.
func allowedBy(actor *models.Profile, b *models.Booking, status string) bool {
	if actor.IsAdmin() {
		return true
	}
	switch status {
	case models.StatusInProgress, models.StatusCompleted:
		return b.IsAssignedTo(actor.ID)
	case models.StatusConfirmed, models.StatusCancelled:
		return b.CustomerID == actor.ID
	}
	return false
}

// UpdateStatus applies a lifecycle transition. expectedVersion of zero skips the
// client-side version check; the update itself is always version guarded.
func (s *BookingService) UpdateStatus(ctx context.Context, actor *models.Profile, id, status string, expectedVersion int64) (*models.Booking, error) {
	if !models.ValidBookingStatus(status) {
		return nil, invalid("unknown status %q", status)
	}
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, b) || !allowedBy(actor, b, status) {
		return nil, ErrForbidden
	}
	if expectedVersion != 0 && expectedVersion != b.Version {
		return nil, database.ErrConcurrentModification
	}
	if models.IsTerminal(b.Status) {
		return nil, fmt.Errorf("%w: booking is already %s", ErrInvalidTransition, b.Status)
	}
	if !models.CanTransition(b.Status, status) {
		return nil, ErrInvalidTransition
	}
	switch status {
	case models.StatusBidAccepted:
		if !b.HasTechnician() || b.Price <= 0 {
			return nil, invalid("a bid must be accepted before the booking can be bid_accepted")
		}
	case models.StatusConfirmed, models.StatusInProgress:
		if !b.HasTechnician() {
			return nil, invalid("booking has no technician assigned")
		}
	}

	previous := b.Status
	updated, err := s.repo.UpdateBookingStatusWithVersion(ctx, id, b.Version, status)
	if err != nil {
		return nil, err
	}

	metrics.IncBookingTransition(status)
	s.logger.Info().Str("booking_id", id).Str("from", previous).Str("to", status).Str("by", actor.ID).
		Msg("booking status changed")
	s.publishStatus(ctx, events.EventBookingStatusChanged, updated, previous, actor.Role)

	if status == models.StatusCompleted && s.loyalty != nil {
		if _, err := s.loyalty.AwardBookingPoints(ctx, updated); err != nil {
			s.logger.Error().Err(err).Str("booking_id", id).Msg("award loyalty points failed")
		}
	}
	return updated, nil
}

func (s *BookingService) Cancel(ctx context.Context, actor *models.Profile, id string) (*models.Booking, error) {
	return s.UpdateStatus(ctx, actor, id, models.StatusCancelled, 0)
}

// Assign hands a booking to a technician directly and confirms it.
func (s *BookingService) Assign(ctx context.Context, actor *models.Profile, id, technicianID string) (*models.Booking, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if _, err := s.repo.GetTechnician(ctx, technicianID); err != nil {
		return nil, err
	}
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(b.Status, models.StatusConfirmed) {
		return nil, ErrInvalidTransition
	}

	previous := b.Status
	updated, err := s.repo.AssignTechnician(ctx, id, b.Version, technicianID)
	if err != nil {
		return nil, err
	}

	metrics.IncBookingTransition(models.StatusConfirmed)
	s.logger.Info().Str("booking_id", id).Str("technician_id", technicianID).Msg("technician assigned")
	s.publishStatus(ctx, events.EventBookingStatusChanged, updated, previous, actor.Role)
	return updated, nil
}

func (s *BookingService) publishStatus(ctx context.Context, eventType string, b *models.Booking, previous, changedBy string) {
	publish(ctx, s.events, s.logger, eventType, events.BookingEventPayload{
		BookingID:      b.ID,
		CustomerID:     b.CustomerID,
		TechnicianID:   derefString(b.TechnicianID),
		DeviceType:     b.DeviceType,
		Status:         b.Status,
		PreviousStatus: previous,
		Price:          b.Price,
		ChangedBy:      changedBy,
	})
}
