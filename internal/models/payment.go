package models

// PaymentIntent is the processor-side record of a pending charge.
type PaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret,omitempty"`
	Amount       int64  `json:"amount"` // minor units
	Currency     string `json:"currency"`
	Status       string `json:"status"`
	BookingID    string `json:"booking_id,omitempty"`
	Simulated    bool   `json:"simulated,omitempty"`
}

// Succeeded reports whether the processor captured the charge.
func (p *PaymentIntent) Succeeded() bool {
	return p.Status == IntentSucceeded
}

// PaymentEvent is a verified webhook notification from the processor.
type PaymentEvent struct {
	ID     string
	Type   string
	Intent *PaymentIntent
}

const (
	IntentSucceeded       = "succeeded"
	IntentProcessing      = "processing"
	IntentRequiresPayment = "requires_payment_method"
	IntentCanceled        = "canceled"

	WebhookIntentSucceeded = "payment_intent.succeeded"
	WebhookIntentFailed    = "payment_intent.payment_failed"
)
