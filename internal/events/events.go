package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EventBookingCreated       = "booking_created"
	EventBookingStatusChanged = "booking_status_changed"
	EventBidPlaced            = "bid_placed"
	EventBidAccepted          = "bid_accepted"
	EventReviewCreated        = "review_created"
	EventPaymentSucceeded     = "payment_succeeded"
	EventPointsEarned         = "points_earned"
	EventRewardRedeemed       = "reward_redeemed"
)

// BookingEventPayload describes the booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID      string  `json:"booking_id"`
	CustomerID     string  `json:"customer_id"`
	TechnicianID   string  `json:"technician_id,omitempty"`
	DeviceType     string  `json:"device_type"`
	Status         string  `json:"status"`
	PreviousStatus string  `json:"previous_status,omitempty"`
	Price          float64 `json:"price,omitempty"`
	ChangedBy      string  `json:"changed_by,omitempty"`
}

type BidEventPayload struct {
	BidID        string  `json:"bid_id"`
	BookingID    string  `json:"booking_id"`
	CustomerID   string  `json:"customer_id"`
	TechnicianID string  `json:"technician_id"`
	DeviceType   string  `json:"device_type"`
	Amount       float64 `json:"amount"`
}

type ReviewEventPayload struct {
	ReviewID     string `json:"review_id"`
	BookingID    string `json:"booking_id"`
	CustomerID   string `json:"customer_id"`
	TechnicianID string `json:"technician_id"`
	Rating       int    `json:"rating"`
	Comment      string `json:"comment,omitempty"`
}

type PaymentEventPayload struct {
	BookingID    string  `json:"booking_id"`
	CustomerID   string  `json:"customer_id"`
	TechnicianID string  `json:"technician_id,omitempty"`
	IntentID     string  `json:"intent_id"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
}

// LoyaltyEventPayload covers both earned points and redeemed rewards.
type LoyaltyEventPayload struct {
	CustomerID string    `json:"customer_id"`
	Points     int64     `json:"points"`
	Tier       string    `json:"tier,omitempty"`
	BookingID  string    `json:"booking_id,omitempty"`
	RewardName string    `json:"reward_name,omitempty"`
	Code       string    `json:"code,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(ctx context.Context, event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus. Handler failures are logged to logger when set.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type and returns how many failed.
func (b *EventBus) Publish(ctx context.Context, event *Event) int {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	failed := 0
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(ctx, event); err != nil {
			failed++
			b.logger.Warn().Err(err).Str("event", event.Type).Msg("event handler failed")
		}
	}
	return failed
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(ctx context.Context, eventType string, payload any) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	b.Publish(ctx, &event)
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
