package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"techcare/internal/config"
	"techcare/internal/domain"
	"techcare/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrIntentNotFound   = errors.New("payment intent not found")
)

// New returns a Stripe-backed gateway when a secret key is configured and a
// simulated one otherwise.
func New(cfg config.PaymentsConfig, logger *zerolog.Logger) domain.PaymentGateway {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		logger.Warn().Msg("payments secret key not set, using simulated gateway")
		return NewSimulatedGateway()
	}
	return NewStripeGateway(cfg.SecretKey, cfg.WebhookSecret, logger)
}

// StripeGateway talks to the Stripe PaymentIntents API.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	logger        *zerolog.Logger
}

func NewStripeGateway(secretKey, webhookSecret string, logger *zerolog.Logger) *StripeGateway {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeGateway{api: sc, webhookSecret: webhookSecret, logger: logger}
}

func (g *StripeGateway) Simulated() bool { return false }

func (g *StripeGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*models.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	g.logger.Info().Str("intent_id", pi.ID).Int64("amount", amount).Msg("payment intent created")
	return fromStripe(pi), nil
}

func (g *StripeGateway) GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return nil, ErrIntentNotFound
		}
		return nil, fmt.Errorf("failed to retrieve payment intent: %w", err)
	}
	return fromStripe(pi), nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes payment intent events.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*models.PaymentEvent, error) {
	if g.webhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &models.PaymentEvent{ID: event.ID, Type: string(event.Type)}
	if strings.HasPrefix(out.Type, "payment_intent.") && event.Data != nil {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("failed to decode payment intent: %w", err)
		}
		out.Intent = fromStripe(&pi)
	}
	return out, nil
}

func fromStripe(pi *stripe.PaymentIntent) *models.PaymentIntent {
	return &models.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
		BookingID:    pi.Metadata["booking_id"],
	}
}

// SimulatedGateway succeeds every payment without contacting a processor.
type SimulatedGateway struct{}

func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{}
}

func (g *SimulatedGateway) Simulated() bool { return true }

func (g *SimulatedGateway) CreateIntent(_ context.Context, amount int64, currency string, metadata map[string]string) (*models.PaymentIntent, error) {
	id := "sim_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	return &models.PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret",
		Amount:       amount,
		Currency:     strings.ToLower(currency),
		Status:       models.IntentSucceeded,
		BookingID:    metadata["booking_id"],
		Simulated:    true,
	}, nil
}

func (g *SimulatedGateway) GetIntent(_ context.Context, id string) (*models.PaymentIntent, error) {
	if !strings.HasPrefix(id, "sim_") {
		return nil, ErrIntentNotFound
	}
	return &models.PaymentIntent{ID: id, Status: models.IntentSucceeded, Simulated: true}, nil
}

func (g *SimulatedGateway) ParseWebhook(_ []byte, _ string) (*models.PaymentEvent, error) {
	return nil, fmt.Errorf("%w: webhooks are not available in simulated mode", ErrInvalidSignature)
}
