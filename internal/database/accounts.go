package database

import (
	"context"
	"fmt"

	"techcare/internal/models"
)

// DeleteAccount removes a user and every row that depends on them in a fixed order,
// inside one transaction. Ratings of technicians who lose reviews are recomputed, and
// open bookings assigned to a deleted technician return to the pending pool.
func (db *DB) DeleteAccount(ctx context.Context, userID string) error {
	return db.withTx(ctx, func(tx *Tx) error {
		var exists int
		if err := tx.queryRow(ctx, `SELECT 1 FROM profiles WHERE id = ?`, userID).Scan(&exists); err != nil {
			return notFound(err, "profile")
		}

		steps := []struct {
			name  string
			query string
			args  []any
		}{
			{"notifications", `DELETE FROM notifications WHERE user_id = ?`, []any{userID}},
			{"redeemed rewards", `DELETE FROM redeemed_rewards WHERE customer_id = ?`, []any{userID}},
			{"loyalty transactions", `DELETE FROM loyalty_transactions WHERE customer_id = ?`, []any{userID}},
			{"loyalty account", `DELETE FROM loyalty_accounts WHERE customer_id = ?`, []any{userID}},
			{"reviews", `DELETE FROM reviews WHERE customer_id = ? OR technician_id = ?`, []any{userID, userID}},
			{"technician ratings", `UPDATE technicians SET
				rating = COALESCE((SELECT AVG(r.rating) FROM reviews r WHERE r.technician_id = technicians.id), 0),
				review_count = (SELECT COUNT(*) FROM reviews r WHERE r.technician_id = technicians.id),
				updated_at = ?
				WHERE review_count <> (SELECT COUNT(*) FROM reviews r WHERE r.technician_id = technicians.id)`,
				[]any{now()}},
			{"bids", `DELETE FROM bids WHERE technician_id = ? OR booking_id IN (SELECT id FROM bookings WHERE customer_id = ?)`,
				[]any{userID, userID}},
			{"bookings", `DELETE FROM bookings WHERE customer_id = ?`, []any{userID}},
			{"assigned bookings", `UPDATE bookings SET technician_id = NULL, status = ?, price = 0, updated_at = ?, version = version + 1
				WHERE technician_id = ? AND status NOT IN (?, ?)`,
				[]any{models.StatusPending, now(), userID, models.StatusCompleted, models.StatusCancelled}},
			{"technician", `DELETE FROM technicians WHERE id = ?`, []any{userID}},
			{"profile", `DELETE FROM profiles WHERE id = ?`, []any{userID}},
		}

		for _, step := range steps {
			if _, err := tx.exec(ctx, step.query, step.args...); err != nil {
				return fmt.Errorf("failed to delete %s: %w", step.name, err)
			}
		}

		db.logger.Info().Str("user_id", userID).Msg("account deleted")
		return nil
	})
}

// AdminStats aggregates platform-wide counters for the admin dashboard.
func (db *DB) AdminStats(ctx context.Context) (*models.AdminStats, error) {
	stats := &models.AdminStats{UsersByRole: make(map[string]int64)}

	rows, err := db.query(ctx, `SELECT role, COUNT(*) FROM profiles GROUP BY role`)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	for rows.Next() {
		var (
			role string
			n    int64
		)
		if err := rows.Scan(&role, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan user count: %w", err)
		}
		stats.UsersByRole[role] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats.BookingsByStatus, err = db.CountBookingsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range stats.BookingsByStatus {
		stats.TotalBookings += n
	}

	err = db.queryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(price), 0) FROM bookings WHERE payment_status = ?`,
		models.PaymentPaid).Scan(&stats.PaidBookings, &stats.Revenue)
	if err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}

	stats.PendingBids, err = db.CountPendingBids(ctx)
	if err != nil {
		return nil, err
	}

	err = db.queryRow(ctx, `SELECT COUNT(*), COALESCE(AVG(rating), 0) FROM reviews`).
		Scan(&stats.Reviews, &stats.AverageRating)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate reviews: %w", err)
	}
	return stats, nil
}
