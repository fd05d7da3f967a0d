package database

import (
	"context"
	"fmt"
	"time"

	"techcare/internal/models"

	"github.com/google/uuid"
)

const (
	loyaltyAccountColumns = `customer_id, current_points, lifetime_points, current_tier, created_at, updated_at`
	loyaltyTxColumns      = `id, customer_id, type, points, booking_id, description, created_at`
	redeemedColumns       = `id, customer_id, reward_id, reward_name, points_spent, code, expires_at, used_at, created_at`
)

func scanLoyaltyAccount(row scanner) (*models.LoyaltyAccount, error) {
	var a models.LoyaltyAccount
	if err := row.Scan(&a.CustomerID, &a.CurrentPoints, &a.LifetimePoints, &a.CurrentTier, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanRedeemed(row scanner) (*models.RedeemedReward, error) {
	var r models.RedeemedReward
	err := row.Scan(&r.ID, &r.CustomerID, &r.RewardID, &r.RewardName, &r.PointsSpent, &r.Code,
		&r.ExpiresAt, &r.UsedAt, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func ensureLoyaltyAccount(ctx context.Context, r runner, customerID string) error {
	ts := now()
	_, err := r.exec(ctx, `
		INSERT INTO loyalty_accounts (customer_id, current_points, lifetime_points, current_tier, created_at, updated_at)
		VALUES (?, 0, 0, ?, ?, ?)
		ON CONFLICT (customer_id) DO NOTHING`,
		customerID, models.TierBronze, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to create loyalty account: %w", err)
	}
	return nil
}

func getLoyaltyAccount(ctx context.Context, r runner, lock, customerID string) (*models.LoyaltyAccount, error) {
	a, err := scanLoyaltyAccount(r.queryRow(ctx,
		`SELECT `+loyaltyAccountColumns+` FROM loyalty_accounts WHERE customer_id = ?`+lock, customerID))
	if err != nil {
		return nil, notFound(err, "loyalty account")
	}
	return a, nil
}

// GetOrCreateLoyaltyAccount returns the customer's account, opening an empty bronze one if needed.
func (db *DB) GetOrCreateLoyaltyAccount(ctx context.Context, customerID string) (*models.LoyaltyAccount, error) {
	if err := ensureLoyaltyAccount(ctx, db, customerID); err != nil {
		return nil, err
	}
	return getLoyaltyAccount(ctx, db, "", customerID)
}

func insertLoyaltyTx(ctx context.Context, r runner, entry *models.LoyaltyTransaction) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = now()
	_, err := r.exec(ctx, `
		INSERT INTO loyalty_transactions (id, customer_id, type, points, booking_id, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.CustomerID, entry.Type, entry.Points, entry.BookingID, entry.Description, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record loyalty transaction: %w", err)
	}
	return nil
}

// AddPoints appends a ledger entry and applies it to the balance. Positive entries also
// grow lifetime points, which drive the tier.
func (db *DB) AddPoints(ctx context.Context, entry *models.LoyaltyTransaction, tiers []models.TierThreshold) (*models.LoyaltyAccount, error) {
	var account *models.LoyaltyAccount
	err := db.withTx(ctx, func(tx *Tx) error {
		if err := ensureLoyaltyAccount(ctx, tx, entry.CustomerID); err != nil {
			return err
		}
		current, err := getLoyaltyAccount(ctx, tx, db.forUpdate(), entry.CustomerID)
		if err != nil {
			return err
		}
		if current.CurrentPoints+entry.Points < 0 {
			return ErrInsufficientPoints
		}
		if err := insertLoyaltyTx(ctx, tx, entry); err != nil {
			return err
		}

		current.CurrentPoints += entry.Points
		if entry.Points > 0 {
			current.LifetimePoints += entry.Points
		}
		current.CurrentTier = models.TierFor(current.LifetimePoints, tiers)
		current.UpdatedAt = now()

		_, err = tx.exec(ctx, `
			UPDATE loyalty_accounts SET current_points = ?, lifetime_points = ?, current_tier = ?, updated_at = ?
			WHERE customer_id = ?`,
			current.CurrentPoints, current.LifetimePoints, current.CurrentTier, current.UpdatedAt, current.CustomerID)
		if err != nil {
			if isCheckViolation(err) {
				return ErrInsufficientPoints
			}
			return fmt.Errorf("failed to update loyalty account: %w", err)
		}
		account = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// RedeemReward spends points on a catalog reward and issues a single-use code.
func (db *DB) RedeemReward(ctx context.Context, customerID string, reward models.Reward, code string, expiresAt time.Time) (*models.RedeemedReward, error) {
	redeemed := &models.RedeemedReward{
		ID:          uuid.NewString(),
		CustomerID:  customerID,
		RewardID:    reward.ID,
		RewardName:  reward.Name,
		PointsSpent: reward.PointsCost,
		Code:        code,
		ExpiresAt:   expiresAt.UTC(),
		CreatedAt:   now(),
	}

	err := db.withTx(ctx, func(tx *Tx) error {
		if err := ensureLoyaltyAccount(ctx, tx, customerID); err != nil {
			return err
		}
		account, err := getLoyaltyAccount(ctx, tx, db.forUpdate(), customerID)
		if err != nil {
			return err
		}
		if account.CurrentPoints < reward.PointsCost {
			return ErrInsufficientPoints
		}

		res, err := tx.exec(ctx, `
			UPDATE loyalty_accounts SET current_points = current_points - ?, updated_at = ?
			WHERE customer_id = ? AND current_points >= ?`,
			reward.PointsCost, now(), customerID, reward.PointsCost)
		if err != nil {
			if isCheckViolation(err) {
				return ErrInsufficientPoints
			}
			return fmt.Errorf("failed to debit loyalty account: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return ErrInsufficientPoints
		}

		entry := &models.LoyaltyTransaction{
			CustomerID:  customerID,
			Type:        models.LoyaltyRedeemed,
			Points:      -reward.PointsCost,
			Description: "Redeemed " + reward.Name,
		}
		if err := insertLoyaltyTx(ctx, tx, entry); err != nil {
			return err
		}

		_, err = tx.exec(ctx, `
			INSERT INTO redeemed_rewards (id, customer_id, reward_id, reward_name, points_spent, code, expires_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			redeemed.ID, redeemed.CustomerID, redeemed.RewardID, redeemed.RewardName, redeemed.PointsSpent,
			redeemed.Code, redeemed.ExpiresAt, redeemed.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to record redeemed reward: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return redeemed, nil
}

func (db *DB) ListLoyaltyTransactions(ctx context.Context, customerID string, limit, offset int) ([]*models.LoyaltyTransaction, error) {
	limit, offset = models.ClampPage(limit, offset)
	rows, err := db.query(ctx, `SELECT `+loyaltyTxColumns+` FROM loyalty_transactions WHERE customer_id = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, customerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list loyalty transactions: %w", err)
	}
	defer rows.Close()

	entries := []*models.LoyaltyTransaction{}
	for rows.Next() {
		var e models.LoyaltyTransaction
		if err := rows.Scan(&e.ID, &e.CustomerID, &e.Type, &e.Points, &e.BookingID, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan loyalty transaction: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (db *DB) ListRedeemedRewards(ctx context.Context, customerID string) ([]*models.RedeemedReward, error) {
	rows, err := db.query(ctx, `SELECT `+redeemedColumns+` FROM redeemed_rewards WHERE customer_id = ?
		ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list redeemed rewards: %w", err)
	}
	defer rows.Close()

	rewards := []*models.RedeemedReward{}
	for rows.Next() {
		r, err := scanRedeemed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan redeemed reward: %w", err)
		}
		rewards = append(rewards, r)
	}
	return rewards, rows.Err()
}

// UseRedeemedReward marks a customer's reward code used. Codes already used or past
// their expiry yield ErrRewardUnavailable.
func (db *DB) UseRedeemedReward(ctx context.Context, customerID, code string) (*models.RedeemedReward, error) {
	ts := now()
	res, err := db.exec(ctx, `
		UPDATE redeemed_rewards SET used_at = ?
		WHERE customer_id = ? AND code = ? AND used_at IS NULL AND expires_at > ?`,
		ts, customerID, code, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to use reward: %w", err)
	}

	r, getErr := scanRedeemed(db.queryRow(ctx,
		`SELECT `+redeemedColumns+` FROM redeemed_rewards WHERE customer_id = ? AND code = ?`, customerID, code))
	if getErr != nil {
		return nil, notFound(getErr, "redeemed reward")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return nil, ErrRewardUnavailable
	}
	return r, nil
}

// HasBookingPoints reports whether points were already earned for a booking.
func (db *DB) HasBookingPoints(ctx context.Context, bookingID string) (bool, error) {
	var n int
	err := db.queryRow(ctx, `SELECT COUNT(*) FROM loyalty_transactions WHERE booking_id = ? AND type = ?`,
		bookingID, models.LoyaltyEarned).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check booking points: %w", err)
	}
	return n > 0, nil
}
