package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"techcare/internal/models"

	"github.com/google/uuid"
)

const bookingColumns = `id, customer_id, technician_id, device_type, device_brand, device_model,
	issue_description, service_address, preferred_date, status, payment_status, payment_intent_id,
	estimated_cost, price, created_at, updated_at, version`

func scanBooking(row scanner) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(&b.ID, &b.CustomerID, &b.TechnicianID, &b.DeviceType, &b.DeviceBrand, &b.DeviceModel,
		&b.IssueDesc, &b.ServiceAddress, &b.PreferredDate, &b.Status, &b.PaymentStatus, &b.PaymentIntentID,
		&b.EstimatedCost, &b.Price, &b.CreatedAt, &b.UpdatedAt, &b.Version)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanBookings(rows *sql.Rows) ([]*models.Booking, error) {
	defer rows.Close()

	bookings := []*models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (db *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = models.StatusPending
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = models.PaymentPending
	}
	ts := now()
	b.CreatedAt, b.UpdatedAt = ts, ts
	b.Version = 1
	if b.PreferredDate != nil {
		d := b.PreferredDate.UTC()
		b.PreferredDate = &d
	}

	_, err := db.exec(ctx, `
		INSERT INTO bookings (id, customer_id, technician_id, device_type, device_brand, device_model,
			issue_description, service_address, preferred_date, status, payment_status, payment_intent_id,
			estimated_cost, price, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.CustomerID, b.TechnicianID, b.DeviceType, b.DeviceBrand, b.DeviceModel,
		b.IssueDesc, b.ServiceAddress, b.PreferredDate, b.Status, b.PaymentStatus, b.PaymentIntentID,
		b.EstimatedCost, b.Price, b.CreatedAt, b.UpdatedAt, b.Version)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, err := scanBooking(db.queryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "booking")
	}
	return b, nil
}

// GetBookingByPaymentIntent finds the booking a processor payment intent was created for.
func (db *DB) GetBookingByPaymentIntent(ctx context.Context, intentID string) (*models.Booking, error) {
	b, err := scanBooking(db.queryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE payment_intent_id = ? AND payment_intent_id <> ''`, intentID))
	if err != nil {
		return nil, notFound(err, "booking")
	}
	return b, nil
}

func (db *DB) ListBookingsByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*models.Booking, error) {
	limit, offset = models.ClampPage(limit, offset)
	rows, err := db.query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE customer_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`, customerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list customer bookings: %w", err)
	}
	return scanBookings(rows)
}

func (db *DB) ListBookingsByTechnician(ctx context.Context, technicianID string, limit, offset int) ([]*models.Booking, error) {
	limit, offset = models.ClampPage(limit, offset)
	rows, err := db.query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE technician_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`, technicianID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list technician bookings: %w", err)
	}
	return scanBookings(rows)
}

// ListOpenBookings returns pending bookings without a technician, oldest first.
func (db *DB) ListOpenBookings(ctx context.Context, deviceType string, limit, offset int) ([]*models.Booking, error) {
	limit, offset = models.ClampPage(limit, offset)

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE status = ? AND technician_id IS NULL`
	args := []any{models.StatusPending}
	if deviceType != "" {
		query += ` AND LOWER(device_type) = ?`
		args = append(args, strings.ToLower(deviceType))
	}
	query += ` ORDER BY created_at ASC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list open bookings: %w", err)
	}
	return scanBookings(rows)
}

// ListBookings is the admin listing with optional status and creation date range.
func (db *DB) ListBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, `status = ?`)
		args = append(args, f.Status)
	}
	if !f.From.IsZero() {
		where = append(where, `created_at >= ?`)
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		where = append(where, `created_at < ?`)
		args = append(args, f.To.UTC())
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit >= 0 {
		limit, offset := models.ClampPage(f.Limit, f.Offset)
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return scanBookings(rows)
}

// UpdateBookingStatusWithVersion moves a booking to status if its version still matches.
// Completing a booking also bumps the assigned technician's completed job counter.
func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id string, version int64, status string) (*models.Booking, error) {
	var updated *models.Booking
	err := db.withTx(ctx, func(tx *Tx) error {
		res, err := tx.exec(ctx, `
			UPDATE bookings SET status = ?, updated_at = ?, version = version + 1
			WHERE id = ? AND version = ?`,
			status, now(), id, version)
		if err != nil {
			return fmt.Errorf("failed to update booking status: %w", err)
		}
		if err := versionConflict(ctx, tx, res, id); err != nil {
			return err
		}

		b, err := scanBooking(tx.queryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
		if err != nil {
			return notFound(err, "booking")
		}
		if status == models.StatusCompleted && b.HasTechnician() {
			if err := incrementCompletedJobs(ctx, tx, *b.TechnicianID); err != nil {
				return err
			}
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AssignTechnician sets the technician and confirms the booking, guarded by version.
func (db *DB) AssignTechnician(ctx context.Context, id string, version int64, technicianID string) (*models.Booking, error) {
	var updated *models.Booking
	err := db.withTx(ctx, func(tx *Tx) error {
		res, err := tx.exec(ctx, `
			UPDATE bookings SET technician_id = ?, status = ?, updated_at = ?, version = version + 1
			WHERE id = ? AND version = ?`,
			technicianID, models.StatusConfirmed, now(), id, version)
		if err != nil {
			return fmt.Errorf("failed to assign technician: %w", err)
		}
		if err := versionConflict(ctx, tx, res, id); err != nil {
			return err
		}

		b, err := scanBooking(tx.queryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
		if err != nil {
			return notFound(err, "booking")
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// versionConflict tells a missing booking apart from a stale version when an update hit no rows.
func versionConflict(ctx context.Context, r runner, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = r.queryRow(ctx, `SELECT 1 FROM bookings WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("booking: %w", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check booking: %w", err)
	}
	return ErrConcurrentModification
}

// MarkBookingPaid sets payment_status to paid and reports whether it changed.
func (db *DB) MarkBookingPaid(ctx context.Context, id string) (bool, error) {
	res, err := db.exec(ctx, `UPDATE bookings SET payment_status = ?, updated_at = ? WHERE id = ? AND payment_status <> ?`,
		models.PaymentPaid, now(), id, models.PaymentPaid)
	if err != nil {
		return false, fmt.Errorf("failed to mark booking paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func (db *DB) SetPaymentIntent(ctx context.Context, id, intentID string) error {
	res, err := db.exec(ctx, `UPDATE bookings SET payment_intent_id = ?, updated_at = ? WHERE id = ?`, intentID, now(), id)
	if err != nil {
		return fmt.Errorf("failed to set payment intent: %w", err)
	}
	return expectOne(res, "booking")
}

func (db *DB) CountBookingsByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := db.query(ctx, `SELECT status, COUNT(*) FROM bookings GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count bookings: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan booking count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
