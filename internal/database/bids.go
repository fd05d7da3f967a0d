package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"techcare/internal/models"

	"github.com/google/uuid"
)

const bidColumns = `id, booking_id, technician_id, amount, message, estimated_days, status, created_at, updated_at`

func scanBid(row scanner) (*models.Bid, error) {
	var b models.Bid
	err := row.Scan(&b.ID, &b.BookingID, &b.TechnicianID, &b.Amount, &b.Message, &b.EstimatedDays,
		&b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanBids(rows *sql.Rows) ([]*models.Bid, error) {
	defer rows.Close()

	bids := []*models.Bid{}
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// CreateBid inserts a pending bid; a second bid by the same technician yields ErrDuplicateBid.
func (db *DB) CreateBid(ctx context.Context, b *models.Bid) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.Status = models.BidPending
	ts := now()
	b.CreatedAt, b.UpdatedAt = ts, ts

	_, err := db.exec(ctx, `
		INSERT INTO bids (id, booking_id, technician_id, amount, message, estimated_days, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.BookingID, b.TechnicianID, b.Amount, b.Message, b.EstimatedDays, b.Status, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateBid
		}
		return fmt.Errorf("failed to create bid: %w", err)
	}
	return nil
}

func (db *DB) GetBid(ctx context.Context, id string) (*models.Bid, error) {
	b, err := scanBid(db.queryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "bid")
	}
	return b, nil
}

// ListBidsByBooking returns the bids for a booking, cheapest first.
func (db *DB) ListBidsByBooking(ctx context.Context, bookingID string) ([]*models.Bid, error) {
	rows, err := db.query(ctx, `SELECT `+bidColumns+` FROM bids WHERE booking_id = ? ORDER BY amount ASC, created_at ASC`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list booking bids: %w", err)
	}
	return scanBids(rows)
}

func (db *DB) ListBidsByTechnician(ctx context.Context, technicianID string, limit, offset int) ([]*models.Bid, error) {
	limit, offset = models.ClampPage(limit, offset)
	rows, err := db.query(ctx, `SELECT `+bidColumns+` FROM bids WHERE technician_id = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, technicianID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list technician bids: %w", err)
	}
	return scanBids(rows)
}

// AcceptBid accepts one bid, rejects its siblings and moves the booking to bid_accepted
// with the bid's technician and amount, all in one transaction.
func (db *DB) AcceptBid(ctx context.Context, bidID string) (*models.Bid, *models.Booking, error) {
	var (
		bid     *models.Bid
		booking *models.Booking
	)
	err := db.withTx(ctx, func(tx *Tx) error {
		var err error
		bid, err = scanBid(tx.queryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = ?`+db.forUpdate(), bidID))
		if err != nil {
			return notFound(err, "bid")
		}
		if bid.Status != models.BidPending {
			return ErrBidNotPending
		}

		booking, err = scanBooking(tx.queryRow(ctx,
			`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`+db.forUpdate(), bid.BookingID))
		if err != nil {
			return notFound(err, "booking")
		}
		if booking.Status != models.StatusPending || booking.HasTechnician() {
			return ErrBookingNotOpen
		}

		ts := now()
		if _, err := tx.exec(ctx, `UPDATE bids SET status = ?, updated_at = ? WHERE id = ?`,
			models.BidAccepted, ts, bid.ID); err != nil {
			return fmt.Errorf("failed to accept bid: %w", err)
		}
		if _, err := tx.exec(ctx, `UPDATE bids SET status = ?, updated_at = ? WHERE booking_id = ? AND id <> ? AND status = ?`,
			models.BidRejected, ts, bid.BookingID, bid.ID, models.BidPending); err != nil {
			return fmt.Errorf("failed to reject sibling bids: %w", err)
		}

		res, err := tx.exec(ctx, `
			UPDATE bookings SET status = ?, technician_id = ?, price = ?, updated_at = ?, version = version + 1
			WHERE id = ? AND version = ?`,
			models.StatusBidAccepted, bid.TechnicianID, bid.Amount, ts, booking.ID, booking.Version)
		if err != nil {
			return fmt.Errorf("failed to update booking: %w", err)
		}
		if err := versionConflict(ctx, tx, res, booking.ID); err != nil {
			return err
		}

		bid.Status = models.BidAccepted
		bid.UpdatedAt = ts
		technicianID := bid.TechnicianID
		booking.Status = models.StatusBidAccepted
		booking.TechnicianID = &technicianID
		booking.Price = bid.Amount
		booking.UpdatedAt = ts
		booking.Version++
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return bid, booking, nil
}

// WithdrawBid deletes a bid that is still pending.
func (db *DB) WithdrawBid(ctx context.Context, bidID string) error {
	res, err := db.exec(ctx, `DELETE FROM bids WHERE id = ? AND status = ?`, bidID, models.BidPending)
	if err != nil {
		return fmt.Errorf("failed to withdraw bid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	if _, err := db.GetBid(ctx, bidID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to check bid: %w", err)
	}
	return ErrBidNotPending
}

func (db *DB) CountPendingBids(ctx context.Context) (int64, error) {
	var n int64
	if err := db.queryRow(ctx, `SELECT COUNT(*) FROM bids WHERE status = ?`, models.BidPending).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count bids: %w", err)
	}
	return n, nil
}
