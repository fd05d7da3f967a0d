package service

import (
	"context"
	"errors"
	"strings"

	"techcare/internal/database"
	"techcare/internal/domain"
	"techcare/internal/models"

	"github.com/rs/zerolog"
)

type TechnicianService struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

func NewTechnicianService(repo domain.Repository, logger *zerolog.Logger) *TechnicianService {
	return &TechnicianService{repo: repo, logger: logger}
}

func (s *TechnicianService) List(ctx context.Context, f models.TechnicianFilter) ([]*models.Technician, error) {
	switch f.SortBy {
	case "", "rating", "experience", "rate":
	default:
		return nil, invalid("unknown sort %q", f.SortBy)
	}
	if f.MinRating < 0 || f.MinRating > models.MaxRating {
		return nil, invalid("min_rating must be between 0 and %d", models.MaxRating)
	}
	return s.repo.ListTechnicians(ctx, f)
}

func (s *TechnicianService) Get(ctx context.Context, id string) (*models.Technician, error) {
	return s.repo.GetTechnician(ctx, id)
}

// TechnicianProfile is the self-service part of a technician listing.
type TechnicianProfile struct {
	Specializations []string `json:"specializations"`
	Bio             string   `json:"bio"`
	City            string   `json:"city"`
	HourlyRate      float64  `json:"hourly_rate"`
	YearsExperience int      `json:"years_experience"`
	IsAvailable     *bool    `json:"is_available"`
}

// SaveProfile registers or updates the caller's technician listing.
func (s *TechnicianService) SaveProfile(ctx context.Context, actor *models.Profile, in TechnicianProfile) (*models.Technician, error) {
	if !actor.IsTechnician() {
		return nil, ErrForbidden
	}

	specs := make([]string, 0, len(in.Specializations))
	for _, sp := range in.Specializations {
		if sp = strings.TrimSpace(sp); sp != "" {
			specs = append(specs, sp)
		}
	}
	if len(specs) == 0 {
		return nil, invalid("at least one specialization is required")
	}
	if in.HourlyRate < 0 {
		return nil, invalid("hourly rate cannot be negative")
	}
	if in.YearsExperience < 0 {
		return nil, invalid("years of experience cannot be negative")
	}

	available := true
	existing, err := s.repo.GetTechnician(ctx, actor.ID)
	switch {
	case err == nil:
		available = existing.IsAvailable
	case !errors.Is(err, database.ErrNotFound):
		return nil, err
	}
	if in.IsAvailable != nil {
		available = *in.IsAvailable
	}

	t := &models.Technician{
		ID:              actor.ID,
		Specializations: specs,
		Bio:             strings.TrimSpace(in.Bio),
		City:            strings.TrimSpace(in.City),
		HourlyRate:      in.HourlyRate,
		YearsExperience: in.YearsExperience,
		IsAvailable:     available,
	}
	if existing != nil {
		t.CreatedAt = existing.CreatedAt
	}
	if err := s.repo.UpsertTechnician(ctx, t); err != nil {
		return nil, err
	}
	return s.repo.GetTechnician(ctx, actor.ID)
}

func (s *TechnicianService) SetAvailability(ctx context.Context, actor *models.Profile, available bool) error {
	if !actor.IsTechnician() {
		return ErrForbidden
	}
	return s.repo.SetTechnicianAvailability(ctx, actor.ID, available)
}

func (s *TechnicianService) Verify(ctx context.Context, actor *models.Profile, technicianID string, verified bool) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	if err := s.repo.SetTechnicianVerified(ctx, technicianID, verified); err != nil {
		return err
	}
	s.logger.Info().Str("technician_id", technicianID).Bool("verified", verified).Str("by", actor.ID).
		Msg("technician verification changed")
	return nil
}
