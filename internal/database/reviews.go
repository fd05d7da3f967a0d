package database

import (
	"context"
	"fmt"

	"techcare/internal/models"

	"github.com/google/uuid"
)

const reviewColumns = `id, booking_id, customer_id, technician_id, rating, comment, created_at`

func scanReview(row scanner) (*models.Review, error) {
	var r models.Review
	if err := row.Scan(&r.ID, &r.BookingID, &r.CustomerID, &r.TechnicianID, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateReview stores a review and folds its rating into the technician aggregate atomically.
func (db *DB) CreateReview(ctx context.Context, r *models.Review) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = now()

	return db.withTx(ctx, func(tx *Tx) error {
		_, err := tx.exec(ctx, `
			INSERT INTO reviews (id, booking_id, customer_id, technician_id, rating, comment, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.BookingID, r.CustomerID, r.TechnicianID, r.Rating, r.Comment, r.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateReview
			}
			return fmt.Errorf("failed to create review: %w", err)
		}
		return applyReviewRating(ctx, tx, db.forUpdate(), r.TechnicianID, r.Rating)
	})
}

func (db *DB) GetReviewByBooking(ctx context.Context, bookingID string) (*models.Review, error) {
	r, err := scanReview(db.queryRow(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE booking_id = ?`, bookingID))
	if err != nil {
		return nil, notFound(err, "review")
	}
	return r, nil
}

func (db *DB) ListReviewsByTechnician(ctx context.Context, technicianID string, limit, offset int) ([]*models.Review, error) {
	limit, offset = models.ClampPage(limit, offset)
	rows, err := db.query(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE technician_id = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, technicianID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []*models.Review{}
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}
