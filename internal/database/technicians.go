package database

import (
	"context"
	"fmt"
	"strings"

	"techcare/internal/models"
)

const technicianSelect = `
	SELECT t.id, p.full_name, p.email, p.phone, t.specializations, t.bio, t.city,
		t.hourly_rate, t.years_experience, t.rating, t.review_count, t.completed_jobs,
		t.is_verified, t.is_available, t.created_at, t.updated_at
	FROM technicians t
	JOIN profiles p ON p.id = t.id`

func scanTechnician(row scanner) (*models.Technician, error) {
	var (
		t     models.Technician
		specs string
	)
	err := row.Scan(&t.ID, &t.FullName, &t.Email, &t.Phone, &specs, &t.Bio, &t.City,
		&t.HourlyRate, &t.YearsExperience, &t.Rating, &t.ReviewCount, &t.CompletedJobs,
		&t.IsVerified, &t.IsAvailable, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Specializations = splitSpecializations(specs)
	return &t, nil
}

func joinSpecializations(specs []string) string {
	clean := make([]string, 0, len(specs))
	for _, s := range specs {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" && !strings.Contains(s, ",") {
			clean = append(clean, s)
		}
	}
	return strings.Join(clean, ",")
}

func splitSpecializations(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

// UpsertTechnician creates or updates the technician profile for an existing user profile.
// Rating, review count and verification are not touched on update.
func (db *DB) UpsertTechnician(ctx context.Context, t *models.Technician) error {
	ts := now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = ts
	}
	t.UpdatedAt = ts

	_, err := db.exec(ctx, `
		INSERT INTO technicians (id, specializations, bio, city, hourly_rate, years_experience,
			is_available, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			specializations = excluded.specializations,
			bio = excluded.bio,
			city = excluded.city,
			hourly_rate = excluded.hourly_rate,
			years_experience = excluded.years_experience,
			is_available = excluded.is_available,
			updated_at = excluded.updated_at`,
		t.ID, joinSpecializations(t.Specializations), t.Bio, t.City, t.HourlyRate,
		t.YearsExperience, t.IsAvailable, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert technician: %w", err)
	}
	return nil
}

func (db *DB) GetTechnician(ctx context.Context, id string) (*models.Technician, error) {
	t, err := scanTechnician(db.queryRow(ctx, technicianSelect+` WHERE t.id = ?`, id))
	if err != nil {
		return nil, notFound(err, "technician")
	}
	return t, nil
}

// ListTechnicians returns technicians matching the filter, best rated first by default.
func (db *DB) ListTechnicians(ctx context.Context, f models.TechnicianFilter) ([]*models.Technician, error) {
	limit, offset := models.ClampPage(f.Limit, f.Offset)

	var (
		where []string
		args  []any
	)
	if f.Specialization != "" {
		where = append(where, `(',' || t.specializations || ',') LIKE ?`)
		args = append(args, "%,"+strings.ToLower(strings.TrimSpace(f.Specialization))+",%")
	}
	if f.City != "" {
		where = append(where, `LOWER(t.city) = ?`)
		args = append(args, strings.ToLower(strings.TrimSpace(f.City)))
	}
	if f.Search != "" {
		where = append(where, `(LOWER(p.full_name) LIKE ? OR LOWER(t.bio) LIKE ?)`)
		pattern := "%" + strings.ToLower(f.Search) + "%"
		args = append(args, pattern, pattern)
	}
	if f.MinRating > 0 {
		where = append(where, `t.rating >= ?`)
		args = append(args, f.MinRating)
	}
	if f.AvailableOnly {
		where = append(where, `t.is_available = ?`)
		args = append(args, true)
	}
	if f.VerifiedOnly {
		where = append(where, `t.is_verified = ?`)
		args = append(args, true)
	}

	query := technicianSelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}

	switch f.SortBy {
	case "experience":
		query += ` ORDER BY t.years_experience DESC, t.rating DESC`
	case "rate":
		query += ` ORDER BY t.hourly_rate ASC, t.rating DESC`
	default:
		query += ` ORDER BY t.rating DESC, t.review_count DESC`
	}
	query += `, t.id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list technicians: %w", err)
	}
	defer rows.Close()

	technicians := []*models.Technician{}
	for rows.Next() {
		t, err := scanTechnician(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan technician: %w", err)
		}
		technicians = append(technicians, t)
	}
	return technicians, rows.Err()
}

func (db *DB) SetTechnicianVerified(ctx context.Context, id string, verified bool) error {
	res, err := db.exec(ctx, `UPDATE technicians SET is_verified = ?, updated_at = ? WHERE id = ?`, verified, now(), id)
	if err != nil {
		return fmt.Errorf("failed to set technician verification: %w", err)
	}
	return expectOne(res, "technician")
}

func (db *DB) SetTechnicianAvailability(ctx context.Context, id string, available bool) error {
	res, err := db.exec(ctx, `UPDATE technicians SET is_available = ?, updated_at = ? WHERE id = ?`, available, now(), id)
	if err != nil {
		return fmt.Errorf("failed to set technician availability: %w", err)
	}
	return expectOne(res, "technician")
}

// applyReviewRating folds one rating into the technician's running weighted average.
func applyReviewRating(ctx context.Context, r runner, lock, technicianID string, rating int) error {
	var (
		current float64
		count   int
	)
	err := r.queryRow(ctx, `SELECT rating, review_count FROM technicians WHERE id = ?`+lock, technicianID).
		Scan(&current, &count)
	if err != nil {
		return notFound(err, "technician")
	}

	updated := (current*float64(count) + float64(rating)) / float64(count+1)
	_, err = r.exec(ctx, `UPDATE technicians SET rating = ?, review_count = ?, updated_at = ? WHERE id = ?`,
		updated, count+1, now(), technicianID)
	if err != nil {
		return fmt.Errorf("failed to update technician rating: %w", err)
	}
	return nil
}

func incrementCompletedJobs(ctx context.Context, r runner, technicianID string) error {
	_, err := r.exec(ctx, `UPDATE technicians SET completed_jobs = completed_jobs + 1, updated_at = ? WHERE id = ?`,
		now(), technicianID)
	if err != nil {
		return fmt.Errorf("failed to increment completed jobs: %w", err)
	}
	return nil
}
