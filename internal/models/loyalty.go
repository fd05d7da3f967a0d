package models

import "time"

type LoyaltyAccount struct {
	CustomerID     string    `json:"customer_id"`
	CurrentPoints  int64     `json:"current_points"`
	LifetimePoints int64     `json:"lifetime_points"`
	CurrentTier    string    `json:"current_tier"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// LoyaltyTransaction is one row of the append-only points ledger.
type LoyaltyTransaction struct {
	ID          string    `json:"id"`
	CustomerID  string    `json:"customer_id"`
	Type        string    `json:"type"` // earned, redeemed, bonus, adjustment
	Points      int64     `json:"points"`
	BookingID   *string   `json:"booking_id,omitempty"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Reward is an entry of the reward catalog.
type Reward struct {
	ID          string  `yaml:"id" json:"id"`
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description" json:"description"`
	PointsCost  int64   `yaml:"points_cost" json:"points_cost"`
	RewardType  string  `yaml:"reward_type" json:"reward_type"` // discount_percent, discount_fixed, free_service
	Value       float64 `yaml:"value" json:"value"`
	ValidDays   int     `yaml:"valid_days" json:"valid_days"`
	MinimumTier string  `yaml:"minimum_tier" json:"minimum_tier,omitempty"`
	IsActive    bool    `yaml:"is_active" json:"is_active"`
}

type RedeemedReward struct {
	ID          string     `json:"id"`
	CustomerID  string     `json:"customer_id"`
	RewardID    string     `json:"reward_id"`
	RewardName  string     `json:"reward_name"`
	PointsSpent int64      `json:"points_spent"`
	Code        string     `json:"code"`
	ExpiresAt   time.Time  `json:"expires_at"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsUsable reports whether the reward code can still be applied at now.
func (r *RedeemedReward) IsUsable(now time.Time) bool {
	return r.UsedAt == nil && now.Before(r.ExpiresAt)
}

// TierThreshold maps a tier name to the lifetime points needed to reach it.
type TierThreshold struct {
	Name      string `yaml:"name" json:"name"`
	MinPoints int64  `yaml:"min_points" json:"min_points"`
}

// TierFor returns the highest tier whose threshold lifetime reaches.
// tiers must be sorted by ascending MinPoints.
func TierFor(lifetime int64, tiers []TierThreshold) string {
	tier := TierBronze
	for _, t := range tiers {
		if lifetime >= t.MinPoints {
			tier = t.Name
		}
	}
	return tier
}

// NextTier returns the first tier above lifetime, or nil at the top of the ladder.
func NextTier(lifetime int64, tiers []TierThreshold) *TierThreshold {
	for i := range tiers {
		if tiers[i].MinPoints > lifetime {
			return &tiers[i]
		}
	}
	return nil
}

// TierRank returns the position of name in tiers, or -1 when unknown.
func TierRank(name string, tiers []TierThreshold) int {
	for i, t := range tiers {
		if t.Name == name {
			return i
		}
	}
	return -1
}
