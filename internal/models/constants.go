package models

const (
	StatusPending     = "pending"
	StatusBidAccepted = "bid_accepted"
	StatusConfirmed   = "confirmed"
	StatusInProgress  = "in_progress"
	StatusCompleted   = "completed"
	StatusCancelled   = "cancelled"
)

const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
)

const (
	BidPending  = "pending"
	BidAccepted = "accepted"
	BidRejected = "rejected"
)

const (
	RoleCustomer   = "customer"
	RoleTechnician = "technician"
	RoleAdmin      = "admin"
)

const (
	LoyaltyEarned     = "earned"
	LoyaltyRedeemed   = "redeemed"
	LoyaltyBonus      = "bonus"
	LoyaltyAdjustment = "adjustment"
)

const (
	TierBronze   = "bronze"
	TierSilver   = "silver"
	TierGold     = "gold"
	TierPlatinum = "platinum"
)

const (
	NotificationBooking = "booking"
	NotificationBid     = "bid"
	NotificationPayment = "payment"
	NotificationReview  = "review"
	NotificationLoyalty = "loyalty"
	NotificationSystem  = "system"
)

const (
	TaskPending    = "pending"
	TaskRetry      = "retry"
	TaskProcessing = "processing"
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
)

const (
	MinRating = 1
	MaxRating = 5

	DefaultPageSize = 20
	MaxPageSize     = 100

	// WorkerQueueSize is the in-memory email queue capacity.
	WorkerQueueSize = 128
)

// bookingTransitions lists the statuses reachable from each booking status.
var bookingTransitions = map[string][]string{
	StatusPending:     {StatusBidAccepted, StatusConfirmed, StatusCancelled},
	StatusBidAccepted: {StatusConfirmed, StatusInProgress, StatusCancelled},
	StatusConfirmed:   {StatusInProgress, StatusCancelled},
	StatusInProgress:  {StatusCompleted},
}

// CanTransition reports whether a booking may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range bookingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidBookingStatus reports whether s is a known booking status.
func ValidBookingStatus(s string) bool {
	switch s {
	case StatusPending, StatusBidAccepted, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions exist from s.
func IsTerminal(s string) bool {
	return len(bookingTransitions[s]) == 0
}

// ClampPage normalizes limit/offset pagination values.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
