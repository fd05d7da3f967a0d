package domain

import (
	"context"
	"time"

	"techcare/internal/models"
)

type Repository interface {
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	CreateProfile(ctx context.Context, p *models.Profile) error
	UpsertProfile(ctx context.Context, p *models.Profile) error
	UpdateProfile(ctx context.Context, p *models.Profile) error
	SetProfileRole(ctx context.Context, id, role string) error
	ListProfiles(ctx context.Context, role string, limit, offset int) ([]*models.Profile, error)

	GetTechnician(ctx context.Context, id string) (*models.Technician, error)
	UpsertTechnician(ctx context.Context, t *models.Technician) error
	ListTechnicians(ctx context.Context, f models.TechnicianFilter) ([]*models.Technician, error)
	SetTechnicianVerified(ctx context.Context, id string, verified bool) error
	SetTechnicianAvailability(ctx context.Context, id string, available bool) error

	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetBookingByPaymentIntent(ctx context.Context, intentID string) (*models.Booking, error)
	ListBookingsByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*models.Booking, error)
	ListBookingsByTechnician(ctx context.Context, technicianID string, limit, offset int) ([]*models.Booking, error)
	ListOpenBookings(ctx context.Context, deviceType string, limit, offset int) ([]*models.Booking, error)
	ListBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error)
	UpdateBookingStatusWithVersion(ctx context.Context, id string, version int64, status string) (*models.Booking, error)
	AssignTechnician(ctx context.Context, id string, version int64, technicianID string) (*models.Booking, error)
	SetPaymentIntent(ctx context.Context, id, intentID string) error
	MarkBookingPaid(ctx context.Context, id string) (bool, error)

	CreateBid(ctx context.Context, b *models.Bid) error
	GetBid(ctx context.Context, id string) (*models.Bid, error)
	ListBidsByBooking(ctx context.Context, bookingID string) ([]*models.Bid, error)
	ListBidsByTechnician(ctx context.Context, technicianID string, limit, offset int) ([]*models.Bid, error)
	AcceptBid(ctx context.Context, bidID string) (*models.Bid, *models.Booking, error)
	WithdrawBid(ctx context.Context, bidID string) error

	CreateReview(ctx context.Context, r *models.Review) error
	GetReviewByBooking(ctx context.Context, bookingID string) (*models.Review, error)
	ListReviewsByTechnician(ctx context.Context, technicianID string, limit, offset int) ([]*models.Review, error)

	GetOrCreateLoyaltyAccount(ctx context.Context, customerID string) (*models.LoyaltyAccount, error)
	AddPoints(ctx context.Context, entry *models.LoyaltyTransaction, tiers []models.TierThreshold) (*models.LoyaltyAccount, error)
	HasBookingPoints(ctx context.Context, bookingID string) (bool, error)
	RedeemReward(ctx context.Context, customerID string, reward models.Reward, code string, expiresAt time.Time) (*models.RedeemedReward, error)
	ListLoyaltyTransactions(ctx context.Context, customerID string, limit, offset int) ([]*models.LoyaltyTransaction, error)
	ListRedeemedRewards(ctx context.Context, customerID string) ([]*models.RedeemedReward, error)
	UseRedeemedReward(ctx context.Context, customerID, code string) (*models.RedeemedReward, error)

	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
	UnreadNotificationCount(ctx context.Context, userID string) (int64, error)
	DeleteNotification(ctx context.Context, userID, id string) error

	GetFailedEmailTasks(ctx context.Context) ([]models.EmailTask, error)

	DeleteAccount(ctx context.Context, userID string) error
	AdminStats(ctx context.Context) (*models.AdminStats, error)
}

// Guard backs per-user action throttles and idempotency keys.
type Guard interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Forget releases a key recorded by FirstSeen.
	Forget(ctx context.Context, key string) error
}

type EventPublisher interface {
	PublishJSON(ctx context.Context, eventType string, payload any) error
}

// EmailQueue accepts template-keyed emails for asynchronous delivery.
type EmailQueue interface {
	Enqueue(ctx context.Context, template, recipient string, data map[string]any) error
}

type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*models.PaymentIntent, error)
	GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error)
	ParseWebhook(payload []byte, signature string) (*models.PaymentEvent, error)
	Simulated() bool
}
