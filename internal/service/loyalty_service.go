package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"techcare/internal/config"
	"techcare/internal/database"
	"techcare/internal/domain"
	"techcare/internal/events"
	"techcare/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultRewardValidity = 30 * 24 * time.Hour

type LoyaltyService struct {
	repo    domain.Repository
	events  domain.EventPublisher
	cfg     config.LoyaltyConfig
	rewards []models.Reward
	logger  *zerolog.Logger
	now     func() time.Time
}

func NewLoyaltyService(repo domain.Repository, bus domain.EventPublisher, cfg config.LoyaltyConfig, rewards []models.Reward, logger *zerolog.Logger) *LoyaltyService {
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = config.DefaultTiers()
	}
	return &LoyaltyService{
		repo:    repo,
		events:  bus,
		cfg:     cfg,
		rewards: rewards,
		logger:  logger,
		now:     time.Now,
	}
}

// LoyaltySummary is the customer-facing view of a loyalty account.
type LoyaltySummary struct {
	Account          *models.LoyaltyAccount `json:"account"`
	NextTier         *models.TierThreshold  `json:"next_tier,omitempty"`
	PointsToNextTier int64                  `json:"points_to_next_tier"`
	Progress         float64                `json:"progress"` // percent of the way from the current tier to the next
	Tiers            []models.TierThreshold `json:"tiers"`
}

func (s *LoyaltyService) Summary(ctx context.Context, actor *models.Profile) (*LoyaltySummary, error) {
	if !actor.IsCustomer() {
		return nil, ErrForbidden
	}
	account, err := s.repo.GetOrCreateLoyaltyAccount(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	summary := &LoyaltySummary{Account: account, Tiers: s.cfg.Tiers, Progress: 100}
	next := models.NextTier(account.LifetimePoints, s.cfg.Tiers)
	if next == nil {
		return summary, nil
	}

	var floor int64
	if rank := models.TierRank(account.CurrentTier, s.cfg.Tiers); rank >= 0 {
		floor = s.cfg.Tiers[rank].MinPoints
	}
	summary.NextTier = next
	summary.PointsToNextTier = next.MinPoints - account.LifetimePoints
	if span := next.MinPoints - floor; span > 0 {
		summary.Progress = math.Round(float64(account.LifetimePoints-floor)/float64(span)*1000) / 10
	}
	return summary, nil
}

func (s *LoyaltyService) Transactions(ctx context.Context, actor *models.Profile, limit, offset int) ([]*models.LoyaltyTransaction, error) {
	if !actor.IsCustomer() {
		return nil, ErrForbidden
	}
	return s.repo.ListLoyaltyTransactions(ctx, actor.ID, limit, offset)
}

// Rewards returns the active reward catalog.
func (s *LoyaltyService) Rewards() []models.Reward {
	active := make([]models.Reward, 0, len(s.rewards))
	for _, r := range s.rewards {
		if r.IsActive {
			active = append(active, r)
		}
	}
	return active
}

func (s *LoyaltyService) findReward(id string) (models.Reward, bool) {
	for _, r := range s.rewards {
		if r.ID == id && r.IsActive {
			return r, true
		}
	}
	return models.Reward{}, false
}

// Redeem exchanges points for a catalog reward and returns its single-use code.
func (s *LoyaltyService) Redeem(ctx context.Context, actor *models.Profile, rewardID string) (*models.RedeemedReward, error) {
	if !actor.IsCustomer() {
		return nil, ErrForbidden
	}
	reward, ok := s.findReward(rewardID)
	if !ok {
		return nil, fmt.Errorf("%w: reward %s", database.ErrNotFound, rewardID)
	}

	if reward.MinimumTier != "" {
		account, err := s.repo.GetOrCreateLoyaltyAccount(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		if models.TierRank(account.CurrentTier, s.cfg.Tiers) < models.TierRank(reward.MinimumTier, s.cfg.Tiers) {
			return nil, ErrTierTooLow
		}
	}

	validity := defaultRewardValidity
	if reward.ValidDays > 0 {
		validity = time.Duration(reward.ValidDays) * 24 * time.Hour
	}
	redeemed, err := s.repo.RedeemReward(ctx, actor.ID, reward, rewardCode(), s.now().Add(validity))
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("customer_id", actor.ID).Str("reward_id", reward.ID).Int64("points", reward.PointsCost).
		Msg("reward redeemed")
	publish(ctx, s.events, s.logger, events.EventRewardRedeemed, events.LoyaltyEventPayload{
		CustomerID: actor.ID,
		Points:     -reward.PointsCost,
		RewardName: reward.Name,
		Code:       redeemed.Code,
		ExpiresAt:  redeemed.ExpiresAt,
	})
	return redeemed, nil
}

func (s *LoyaltyService) Redeemed(ctx context.Context, actor *models.Profile) ([]*models.RedeemedReward, error) {
	if !actor.IsCustomer() {
		return nil, ErrForbidden
	}
	return s.repo.ListRedeemedRewards(ctx, actor.ID)
}

// UseCode marks a redeemed reward as applied.
func (s *LoyaltyService) UseCode(ctx context.Context, actor *models.Profile, code string) (*models.RedeemedReward, error) {
	if !actor.IsCustomer() {
		return nil, ErrForbidden
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, invalid("reward code is required")
	}
	return s.repo.UseRedeemedReward(ctx, actor.ID, code)
}

// AwardBookingPoints credits the customer for a completed booking once.
func (s *LoyaltyService) AwardBookingPoints(ctx context.Context, booking *models.Booking) (*models.LoyaltyAccount, error) {
	points := int64(math.Floor(booking.Price * s.cfg.PointsPerUnit))
	if points <= 0 {
		return nil, nil
	}
	done, err := s.repo.HasBookingPoints(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, nil
	}

	bookingID := booking.ID
	account, err := s.repo.AddPoints(ctx, &models.LoyaltyTransaction{
		CustomerID:  booking.CustomerID,
		Type:        models.LoyaltyEarned,
		Points:      points,
		BookingID:   &bookingID,
		Description: fmt.Sprintf("Completed %s repair", booking.DeviceType),
	}, s.cfg.Tiers)
	if err != nil {
		return nil, err
	}

	publish(ctx, s.events, s.logger, events.EventPointsEarned, events.LoyaltyEventPayload{
		CustomerID: booking.CustomerID,
		Points:     points,
		Tier:       account.CurrentTier,
		BookingID:  booking.ID,
	})
	return account, nil
}

// AwardSignupBonus credits the configured welcome bonus. Failures are logged only.
func (s *LoyaltyService) AwardSignupBonus(ctx context.Context, customerID string) {
	if s.cfg.SignupBonus <= 0 {
		return
	}
	_, err := s.repo.AddPoints(ctx, &models.LoyaltyTransaction{
		CustomerID:  customerID,
		Type:        models.LoyaltyBonus,
		Points:      s.cfg.SignupBonus,
		Description: "Welcome bonus",
	}, s.cfg.Tiers)
	if err != nil {
		s.logger.Error().Err(err).Str("customer_id", customerID).Msg("signup bonus failed")
	}
}

func rewardCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TC-" + strings.ToUpper(raw[:10])
}
