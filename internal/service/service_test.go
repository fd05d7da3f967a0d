package service

import (
	"context"
	"sync"
	"testing"

	"techcare/internal/config"
	"techcare/internal/database"
	"techcare/internal/events"
	"techcare/internal/models"
	"techcare/internal/payment"
	"techcare/internal/repository"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type queuedEmail struct {
	template  string
	recipient string
	data      map[string]any
}

type recordingQueue struct {
	mu   sync.Mutex
	sent []queuedEmail
}

func (q *recordingQueue) Enqueue(_ context.Context, template, recipient string, data map[string]any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, queuedEmail{template: template, recipient: recipient, data: data})
	return nil
}

func (q *recordingQueue) templates() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.sent))
	for _, e := range q.sent {
		out = append(out, e.template)
	}
	return out
}

var testRewards = []models.Reward{
	{ID: "discount-10", Name: "10% off", PointsCost: 200, RewardType: "discount_percent", Value: 10, ValidDays: 30, IsActive: true},
	{ID: "gold-service", Name: "Free diagnostics", PointsCost: 50, RewardType: "free_service", MinimumTier: models.TierGold, IsActive: true},
	{ID: "retired", Name: "Old reward", PointsCost: 10, IsActive: false},
}

type harness struct {
	db     *database.DB
	bus    *events.EventBus
	guard  *repository.MemoryGuard
	emails *recordingQueue

	accounts      *AccountService
	technicians   *TechnicianService
	bookings      *BookingService
	bids          *BidService
	reviews       *ReviewService
	loyalty       *LoyaltyService
	notifications *NotificationService
	payments      *PaymentService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewSQLite(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := &harness{
		db:     db,
		bus:    events.NewEventBus(&logger),
		guard:  repository.NewMemoryGuard(),
		emails: &recordingQueue{},
	}
	throttle := config.ThrottleConfig{BidsPerHour: 100, BookingsPerDay: 100, ReviewsPerDay: 100}
	loyaltyCfg := config.LoyaltyConfig{PointsPerUnit: 1, SignupBonus: 100, Tiers: config.DefaultTiers()}

	h.loyalty = NewLoyaltyService(db, h.bus, loyaltyCfg, testRewards, &logger)
	h.accounts = NewAccountService(db, h.loyalty, &logger)
	h.technicians = NewTechnicianService(db, &logger)
	h.bookings = NewBookingService(db, h.guard, h.bus, h.loyalty, throttle, &logger)
	h.bids = NewBidService(db, h.guard, h.bus, throttle, &logger)
	h.reviews = NewReviewService(db, h.guard, h.bus, throttle, &logger)
	h.notifications = NewNotificationService(db, h.emails, "usd", "https://techcare.test", &logger)
	h.payments = NewPaymentService(db, payment.NewSimulatedGateway(), h.guard, h.bus, "usd", &logger)
	h.notifications.Subscribe(h.bus)
	return h
}

func (h *harness) user(t *testing.T, role string) *models.Profile {
	t.Helper()
	id := Identity{
		UserID:   uuid.NewString(),
		Email:    gofakeit.Email(),
		FullName: gofakeit.Name(),
		Role:     role,
	}
	if role == models.RoleAdmin {
		id.GrantedRole = role
	}
	p, err := h.accounts.EnsureProfile(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (h *harness) technician(t *testing.T) *models.Profile {
	t.Helper()
	p := h.user(t, models.RoleTechnician)
	_, err := h.technicians.SaveProfile(context.Background(), p, TechnicianProfile{
		Specializations: []string{"phone", "laptop"},
		Bio:             gofakeit.Blurb(),
		City:            gofakeit.City(),
		HourlyRate:      40,
		YearsExperience: 5,
	})
	require.NoError(t, err)
	return p
}

func (h *harness) booking(t *testing.T, customer *models.Profile) *models.Booking {
	t.Helper()
	b, err := h.bookings.Create(context.Background(), customer, NewBooking{
		DeviceType:       "Phone",
		DeviceBrand:      gofakeit.Company(),
		DeviceModel:      gofakeit.BuzzWord(),
		IssueDescription: "cracked screen",
		ServiceAddress:   gofakeit.City(),
		EstimatedCost:    100,
	})
	require.NoError(t, err)
	return b
}

// acceptedBooking returns a booking whose bid of price from tech was accepted.
func (h *harness) acceptedBooking(t *testing.T, customer, tech *models.Profile, price float64) *models.Booking {
	t.Helper()
	ctx := context.Background()
	b := h.booking(t, customer)
	bid, err := h.bids.Place(ctx, tech, b.ID, NewBid{Amount: price, Message: "can fix today"})
	require.NoError(t, err)
	_, updated, err := h.bids.Accept(ctx, customer, bid.ID)
	require.NoError(t, err)
	return updated
}

// completedBooking drives a booking through the whole lifecycle.
func (h *harness) completedBooking(t *testing.T, customer, tech *models.Profile, price float64) *models.Booking {
	t.Helper()
	ctx := context.Background()
	b := h.acceptedBooking(t, customer, tech, price)
	_, err := h.bookings.UpdateStatus(ctx, customer, b.ID, models.StatusConfirmed, 0)
	require.NoError(t, err)
	_, err = h.bookings.UpdateStatus(ctx, tech, b.ID, models.StatusInProgress, 0)
	require.NoError(t, err)
	done, err := h.bookings.UpdateStatus(ctx, tech, b.ID, models.StatusCompleted, 0)
	require.NoError(t, err)
	return done
}
