package service

import (
	"context"
	"fmt"
	"strings"

	"techcare/internal/domain"
	"techcare/internal/email"
	"techcare/internal/events"
	"techcare/internal/models"
	"techcare/internal/money"

	"github.com/rs/zerolog"
)

type NotificationService struct {
	repo      domain.Repository
	emails    domain.EmailQueue
	currency  string
	publicURL string
	logger    *zerolog.Logger
}

func NewNotificationService(repo domain.Repository, emails domain.EmailQueue, currency, publicURL string, logger *zerolog.Logger) *NotificationService {
	return &NotificationService{
		repo:      repo,
		emails:    emails,
		currency:  currency,
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    logger,
	}
}

func (s *NotificationService) List(ctx context.Context, actor *models.Profile, unreadOnly bool, limit, offset int) ([]*models.Notification, error) {
	return s.repo.ListNotifications(ctx, actor.ID, unreadOnly, limit, offset)
}

func (s *NotificationService) UnreadCount(ctx context.Context, actor *models.Profile) (int64, error) {
	return s.repo.UnreadNotificationCount(ctx, actor.ID)
}

func (s *NotificationService) MarkRead(ctx context.Context, actor *models.Profile, id string) error {
	return s.repo.MarkNotificationRead(ctx, actor.ID, id)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, actor *models.Profile) (int64, error) {
	return s.repo.MarkAllNotificationsRead(ctx, actor.ID)
}

func (s *NotificationService) Delete(ctx context.Context, actor *models.Profile, id string) error {
	return s.repo.DeleteNotification(ctx, actor.ID, id)
}

// Notify stores an in-app notification for userID.
func (s *NotificationService) Notify(ctx context.Context, userID, kind, title, message, link string) error {
	if userID == "" {
		return nil
	}
	return s.repo.CreateNotification(ctx, &models.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Type:    kind,
		Link:    link,
	})
}

// Subscribe wires the notification and email fan-out to bus.
func (s *NotificationService) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventBookingCreated, s.onBookingCreated)
	bus.Subscribe(events.EventBookingStatusChanged, s.onBookingStatusChanged)
	bus.Subscribe(events.EventBidPlaced, s.onBidPlaced)
	bus.Subscribe(events.EventBidAccepted, s.onBidAccepted)
	bus.Subscribe(events.EventReviewCreated, s.onReviewCreated)
	bus.Subscribe(events.EventPaymentSucceeded, s.onPaymentSucceeded)
	bus.Subscribe(events.EventPointsEarned, s.onPointsEarned)
	bus.Subscribe(events.EventRewardRedeemed, s.onRewardRedeemed)
}

func (s *NotificationService) bookingLink(id string) string {
	return s.publicURL + "/bookings/" + id
}

// sendEmail queues a templated email to userID. Missing profiles or addresses are
// skipped, since the in-app notification has already been stored.
func (s *NotificationService) sendEmail(ctx context.Context, userID, template string, data map[string]any) {
	if s.emails == nil || userID == "" {
		return
	}
	p, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Str("template", template).Msg("email recipient lookup failed")
		return
	}
	if p.Email == "" {
		return
	}
	data["name"] = p.FullName
	if _, ok := data["currency"]; !ok {
		data["currency"] = s.currency
	}
	if err := s.emails.Enqueue(ctx, template, p.Email, data); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("template", template).Msg("email enqueue failed")
	}
}

func (s *NotificationService) onBookingCreated(ctx context.Context, e *events.Event) error {
	var p events.BookingEventPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	link := s.bookingLink(p.BookingID)
	if err := s.Notify(ctx, p.CustomerID, models.NotificationBooking, "Booking created",
		fmt.Sprintf("Your %s repair request is open for bids.", p.DeviceType), link); err != nil {
		return err
	}
	s.sendEmail(ctx, p.CustomerID, email.TemplateBookingCreated, map[string]any{
		"device_type": p.DeviceType,
		"link":        link,
	})
	return nil
}

func (s *NotificationService) onBookingStatusChanged(ctx context.Context, e *events.Event) error {
	var p events.BookingEventPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	link := s.bookingLink(p.BookingID)
	title := "Booking " + strings.ReplaceAll(p.Status, "_", " ")
	message := fmt.Sprintf("Your %s booking moved from %s to %s.", p.DeviceType,
		strings.ReplaceAll(p.PreviousStatus, "_", " "), strings.ReplaceAll(p.Status, "_", " "))

	if p.ChangedBy != models.RoleCustomer {
		if err := s.Notify(ctx, p.CustomerID, models.NotificationBooking, title, message, link); err != nil {
			return err
		}
		s.sendEmail(ctx, p.CustomerID, email.TemplateBookingStatusChanged, map[string]any{
			"device_type": p.DeviceType,
			"status":      strings.ReplaceAll(p.Status, "_", " "),
			"link":        link,
		})
	}
	if p.TechnicianID != "" && p.ChangedBy != models.RoleTechnician {
		if err := s.Notify(ctx, p.TechnicianID, models.NotificationBooking, title, message, link); err != nil {
			return err
		}
	}
	return nil
}

func (s *NotificationService) onBidPlaced(ctx context.Context, e *events.Event) error {
	var p events.BidEventPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	link := s.bookingLink(p.BookingID)
	if err := s.Notify(ctx, p.CustomerID, models.NotificationBid, "New bid received",
		fmt.Sprintf("A technician bid %s on your %s repair.", money.Format(p.Amount, s.currency), p.DeviceType), link); err != nil {
		return err
	}
	s.sendEmail(ctx, p.CustomerID, email.TemplateBidReceived, map[string]any{
		"device_type": p.DeviceType,
		"amount":      p.Amount,
		"link":        link,
	})
	return nil
}

func (s *NotificationService) onBidAccepted(ctx context.Context, e *events.Event) error {
	var p events.BidEventPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	link := s.bookingLink(p.BookingID)
	if err := s.Notify(ctx, p.TechnicianID, models.NotificationBid, "Bid accepted",
		fmt.Sprintf("Your bid of %s for a %s repair was accepted.", money.Format(p.Amount, s.currency), p.DeviceType), link); err != nil {
		return err
	}
	s.sendEmail(ctx, p.TechnicianID, email.TemplateBidAccepted, map[string]any{
		"device_type": p.DeviceType,
		"amount":      p.Amount,
		"link":        link,
	})
	return nil
}

func (s *NotificationService) onReviewCreated(ctx context.Context, e *events.Event) error {
	var p events.ReviewEventPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	if err := s.Notify(ctx, p.TechnicianID, models.NotificationReview, "New review",
		fmt.Sprintf("A customer rated your work %d out of 5.", p.Rating), ""); err != nil {
		return err
	}
	s.sendEmail(ctx, p.TechnicianID, email.TemplateReviewReceived, map[string]any{
		"rating":  p.Rating,
		"comment": p.Comment,
	})
	return nil
}

func (s *NotificationService) onPaymentSucceeded(ctx context.Context, e *events.Event) error {
	var p events.PaymentEventPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	amount := money.Format(p.Amount, p.Currency)
	link := s.bookingLink(p.BookingID)
	if err := s.Notify(ctx, p.CustomerID, models.NotificationPayment, "Payment received",
		fmt.Sprintf("We received your payment of %s.", amount), link); err != nil {
		return err
	}
	if err := s.Notify(ctx, p.TechnicianID, models.NotificationPayment, "Job paid",
		fmt.Sprintf("The customer paid %s for this job.", amount), link); err != nil {
		return err
	}
	s.sendEmail(ctx, p.CustomerID, email.TemplatePaymentReceived, map[string]any{
		"amount":   p.Amount,
		"currency": p.Currency,
	})
	return nil
}

func (s *NotificationService) onPointsEarned(ctx context.Context, e *events.Event) error {
	var p events.LoyaltyEventPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	return s.Notify(ctx, p.CustomerID, models.NotificationLoyalty, "Points earned",
		fmt.Sprintf("You earned %d loyalty points. Current tier: %s.", p.Points, p.Tier), "")
}

func (s *NotificationService) onRewardRedeemed(ctx context.Context, e *events.Event) error {
	var p events.LoyaltyEventPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	if err := s.Notify(ctx, p.CustomerID, models.NotificationLoyalty, "Reward redeemed",
		fmt.Sprintf("You redeemed %s. Your code is %s.", p.RewardName, p.Code), ""); err != nil {
		return err
	}
	s.sendEmail(ctx, p.CustomerID, email.TemplateRewardRedeemed, map[string]any{
		"reward_name": p.RewardName,
		"code":        p.Code,
		"expires_at":  p.ExpiresAt.Format("January 2, 2006"),
	})
	return nil
}
