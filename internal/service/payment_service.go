package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"techcare/internal/database"
	"techcare/internal/domain"
	"techcare/internal/events"
	"techcare/internal/metrics"
	"techcare/internal/models"
	"techcare/internal/money"

	"github.com/rs/zerolog"
)

const webhookDedupeTTL = 72 * time.Hour

type PaymentService struct {
	repo     domain.Repository
	gateway  domain.PaymentGateway
	guard    domain.Guard
	events   domain.EventPublisher
	currency string
	logger   *zerolog.Logger
}

func NewPaymentService(repo domain.Repository, gateway domain.PaymentGateway, guard domain.Guard, bus domain.EventPublisher, currency string, logger *zerolog.Logger) *PaymentService {
	if currency == "" {
		currency = "usd"
	}
	if gateway.Simulated() {
		logger.Warn().Msg("payment gateway is simulated, intents succeed without charging")
	}
	return &PaymentService{
		repo:     repo,
		gateway:  gateway,
		guard:    guard,
		events:   bus,
		currency: strings.ToLower(currency),
		logger:   logger,
	}
}

func (s *PaymentService) payableBooking(ctx context.Context, actor *models.Profile, bookingID string) (*models.Booking, error) {
	if bookingID == "" {
		return nil, invalid("booking_id is required")
	}
	b, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != actor.ID {
		return nil, ErrForbidden
	}
	if b.PaymentStatus == models.PaymentPaid {
		return nil, ErrAlreadyPaid
	}
	if b.Status == models.StatusCancelled || !b.HasTechnician() {
		return nil, invalid("booking is not ready for payment")
	}
	if b.Price <= 0 {
		return nil, invalid("booking has no agreed price")
	}
	return b, nil
}

// CreateIntent opens a payment intent for the booking's agreed price.
func (s *PaymentService) CreateIntent(ctx context.Context, actor *models.Profile, bookingID string) (*models.PaymentIntent, error) {
	b, err := s.payableBooking(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}

	intent, err := s.gateway.CreateIntent(ctx, money.ToMinorUnits(b.Price, s.currency), s.currency, map[string]string{
		"booking_id":  b.ID,
		"customer_id": b.CustomerID,
	})
	if err != nil {
		metrics.IncPayment("error")
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	if err := s.repo.SetPaymentIntent(ctx, b.ID, intent.ID); err != nil {
		return nil, err
	}

	s.logger.Info().Str("booking_id", b.ID).Str("intent_id", intent.ID).Int64("amount", intent.Amount).
		Bool("simulated", intent.Simulated).Msg("payment intent created")
	return intent, nil
}

// Confirm checks the intent with the processor and marks the booking paid when it
// has succeeded.
func (s *PaymentService) Confirm(ctx context.Context, actor *models.Profile, bookingID, intentID string) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != actor.ID {
		return nil, ErrForbidden
	}
	if b.PaymentStatus == models.PaymentPaid {
		return b, nil
	}
	if intentID == "" || intentID != b.PaymentIntentID {
		return nil, invalid("payment intent does not belong to this booking")
	}

	intent, err := s.gateway.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if !intent.Succeeded() {
		metrics.IncPayment(intent.Status)
		return nil, fmt.Errorf("%w: status %s", ErrPaymentIncomplete, intent.Status)
	}

	if err := s.markPaid(ctx, b, intent); err != nil {
		return nil, err
	}
	return s.repo.GetBooking(ctx, bookingID)
}

// HandleWebhook applies a signed processor event. Replayed events are ignored.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}

	key := "webhook:" + event.ID
	if s.guard != nil && event.ID != "" {
		first, err := s.guard.FirstSeen(ctx, key, webhookDedupeTTL)
		if err != nil {
			s.logger.Warn().Err(err).Str("event_id", event.ID).Msg("webhook dedupe check failed")
		} else if !first {
			s.logger.Info().Str("event_id", event.ID).Msg("duplicate webhook ignored")
			return nil
		}
	}

	if err := s.applyEvent(ctx, event); err != nil {
		// Release the key so a redelivery is applied.
		if s.guard != nil && event.ID != "" {
			if ferr := s.guard.Forget(ctx, key); ferr != nil {
				s.logger.Warn().Err(ferr).Str("event_id", event.ID).Msg("failed to release webhook key")
			}
		}
		return err
	}
	return nil
}

func (s *PaymentService) applyEvent(ctx context.Context, event *models.PaymentEvent) error {
	switch event.Type {
	case models.WebhookIntentSucceeded:
		if event.Intent == nil {
			return invalid("webhook event has no payment intent")
		}
		b, err := s.bookingForIntent(ctx, event.Intent)
		if err != nil {
			return err
		}
		return s.markPaid(ctx, b, event.Intent)
	case models.WebhookIntentFailed:
		metrics.IncPayment("failed")
		if event.Intent != nil {
			s.logger.Warn().Str("intent_id", event.Intent.ID).Str("booking_id", event.Intent.BookingID).Msg("payment failed")
		}
	default:
		s.logger.Debug().Str("type", event.Type).Msg("unhandled webhook event")
	}
	return nil
}

func (s *PaymentService) bookingForIntent(ctx context.Context, intent *models.PaymentIntent) (*models.Booking, error) {
	if intent.BookingID != "" {
		b, err := s.repo.GetBooking(ctx, intent.BookingID)
		if err == nil || !errors.Is(err, database.ErrNotFound) {
			return b, err
		}
	}
	return s.repo.GetBookingByPaymentIntent(ctx, intent.ID)
}

func (s *PaymentService) markPaid(ctx context.Context, b *models.Booking, intent *models.PaymentIntent) error {
	changed, err := s.repo.MarkBookingPaid(ctx, b.ID)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	currency := intent.Currency
	if currency == "" {
		currency = s.currency
	}

	metrics.IncPayment("succeeded")
	logEvent := s.logger.Info().Str("booking_id", b.ID).Str("intent_id", intent.ID)
	if intent.Amount > 0 {
		logEvent = logEvent.Str("charged", money.Format(money.FromMinorUnits(intent.Amount, currency), currency))
	}
	logEvent.Msg("booking paid")
	publish(ctx, s.events, s.logger, events.EventPaymentSucceeded, events.PaymentEventPayload{
		BookingID:    b.ID,
		CustomerID:   b.CustomerID,
		TechnicianID: derefString(b.TechnicianID),
		IntentID:     intent.ID,
		Amount:       b.Price,
		Currency:     currency,
	})
	return nil
}
