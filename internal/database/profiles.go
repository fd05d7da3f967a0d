package database

import (
	"context"
	"fmt"

	"techcare/internal/models"

	"github.com/google/uuid"
)

const profileColumns = `id, email, full_name, phone, role, created_at, updated_at`

func scanProfile(row scanner) (*models.Profile, error) {
	var p models.Profile
	if err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.Phone, &p.Role, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertProfile inserts a profile or refreshes its contact fields and role.
func (db *DB) UpsertProfile(ctx context.Context, p *models.Profile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Role == "" {
		p.Role = models.RoleCustomer
	}
	ts := now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = ts
	}
	p.UpdatedAt = ts

	_, err := db.exec(ctx, `
		INSERT INTO profiles (id, email, full_name, phone, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			full_name = excluded.full_name,
			phone = excluded.phone,
			role = excluded.role,
			updated_at = excluded.updated_at`,
		p.ID, p.Email, p.FullName, p.Phone, p.Role, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// CreateProfile inserts a new profile and fails if the id already exists.
func (db *DB) CreateProfile(ctx context.Context, p *models.Profile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Role == "" {
		p.Role = models.RoleCustomer
	}
	ts := now()
	p.CreatedAt, p.UpdatedAt = ts, ts

	_, err := db.exec(ctx, `
		INSERT INTO profiles (id, email, full_name, phone, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Email, p.FullName, p.Phone, p.Role, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (db *DB) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	p, err := scanProfile(db.queryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "profile")
	}
	return p, nil
}

// ListProfiles returns profiles newest first, optionally restricted to one role.
func (db *DB) ListProfiles(ctx context.Context, role string, limit, offset int) ([]*models.Profile, error) {
	limit, offset = models.ClampPage(limit, offset)

	query := `SELECT ` + profileColumns + ` FROM profiles`
	args := []any{}
	if role != "" {
		query += ` WHERE role = ?`
		args = append(args, role)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// UpdateProfile changes the editable contact fields of a profile.
func (db *DB) UpdateProfile(ctx context.Context, p *models.Profile) error {
	p.UpdatedAt = now()
	res, err := db.exec(ctx, `
		UPDATE profiles SET full_name = ?, phone = ?, email = ?, updated_at = ?
		WHERE id = ?`,
		p.FullName, p.Phone, p.Email, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return expectOne(res, "profile")
}

// SetProfileRole changes a profile's role.
func (db *DB) SetProfileRole(ctx context.Context, id, role string) error {
	res, err := db.exec(ctx, `UPDATE profiles SET role = ?, updated_at = ? WHERE id = ?`, role, now(), id)
	if err != nil {
		return fmt.Errorf("failed to set profile role: %w", err)
	}
	return expectOne(res, "profile")
}
