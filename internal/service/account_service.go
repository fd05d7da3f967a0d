package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"techcare/internal/database"
	"techcare/internal/domain"
	"techcare/internal/export"
	"techcare/internal/models"

	"github.com/rs/zerolog"
)

// Identity is the caller as described by a verified access token. Role is the
// user-editable signup choice; GrantedRole is set by the identity provider only.
type Identity struct {
	UserID      string
	Email       string
	FullName    string
	Role        string
	GrantedRole string
}

type AccountService struct {
	repo    domain.Repository
	loyalty *LoyaltyService
	logger  *zerolog.Logger
}

func NewAccountService(repo domain.Repository, loyalty *LoyaltyService, logger *zerolog.Logger) *AccountService {
	return &AccountService{repo: repo, loyalty: loyalty, logger: logger}
}

// EnsureProfile returns the caller's profile, creating it on first sight. New
// customers receive the signup bonus.
func (s *AccountService) EnsureProfile(ctx context.Context, id Identity) (*models.Profile, error) {
	p, err := s.repo.GetProfile(ctx, id.UserID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	role := models.RoleCustomer
	switch {
	case models.ValidRole(id.GrantedRole):
		role = id.GrantedRole
	case models.SelfServiceRole(id.Role):
		role = id.Role
	case id.Role != "":
		s.logger.Warn().Str("user_id", id.UserID).Str("requested_role", id.Role).Msg("requested role not allowed at signup")
	}
	p = &models.Profile{
		ID:       id.UserID,
		Email:    strings.TrimSpace(id.Email),
		FullName: strings.TrimSpace(id.FullName),
		Role:     role,
	}
	if err := s.repo.CreateProfile(ctx, p); err != nil {
		// A concurrent request may have created it first.
		if existing, getErr := s.repo.GetProfile(ctx, id.UserID); getErr == nil {
			return existing, nil
		}
		return nil, err
	}

	s.logger.Info().Str("user_id", p.ID).Str("role", p.Role).Msg("profile created")
	if p.IsCustomer() && s.loyalty != nil {
		s.loyalty.AwardSignupBonus(ctx, p.ID)
	}
	return p, nil
}

func (s *AccountService) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	return s.repo.GetProfile(ctx, id)
}

// ProfileUpdate carries the editable profile fields; nil leaves a field unchanged.
type ProfileUpdate struct {
	FullName *string `json:"full_name"`
	Phone    *string `json:"phone"`
	Email    *string `json:"email"`
}

func (s *AccountService) UpdateProfile(ctx context.Context, actor *models.Profile, in ProfileUpdate) (*models.Profile, error) {
	p, err := s.repo.GetProfile(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		if name == "" {
			return nil, invalid("full name cannot be empty")
		}
		p.FullName = name
	}
	if in.Phone != nil {
		p.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Email != nil {
		addr := strings.TrimSpace(*in.Email)
		if !strings.Contains(addr, "@") {
			return nil, invalid("email %q is not valid", addr)
		}
		p.Email = addr
	}
	if err := s.repo.UpdateProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteAccount removes targetID and everything that depends on it. Users may delete
// themselves; admins may delete anyone.
func (s *AccountService) DeleteAccount(ctx context.Context, actor *models.Profile, targetID string) error {
	if actor.ID != targetID && !actor.IsAdmin() {
		return ErrForbidden
	}
	if _, err := s.repo.GetProfile(ctx, targetID); err != nil {
		return err
	}
	if err := s.repo.DeleteAccount(ctx, targetID); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", targetID).Str("by", actor.ID).Msg("account deleted")
	return nil
}

func (s *AccountService) ListUsers(ctx context.Context, actor *models.Profile, role string, limit, offset int) ([]*models.Profile, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if role != "" && !models.ValidRole(role) {
		return nil, invalid("unknown role %q", role)
	}
	return s.repo.ListProfiles(ctx, role, limit, offset)
}

func (s *AccountService) Stats(ctx context.Context, actor *models.Profile) (*models.AdminStats, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.repo.AdminStats(ctx)
}

// FailedEmails lists email tasks that exhausted their retries, newest first.
func (s *AccountService) FailedEmails(ctx context.Context, actor *models.Profile) ([]models.EmailTask, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	tasks, err := s.repo.GetFailedEmailTasks(ctx)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []models.EmailTask{}
	}
	return tasks, nil
}

// ExportBookings writes an XLSX report of bookings created at or after from and
// before to. Callers asking for an inclusive last day pass the start of the next one.
func (s *AccountService) ExportBookings(ctx context.Context, actor *models.Profile, w io.Writer, from, to time.Time) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return invalid("export range start must be before its end")
	}
	bookings, err := s.repo.ListBookings(ctx, models.BookingFilter{From: from, To: to, Limit: -1})
	if err != nil {
		return err
	}
	return export.BookingsWorkbook(w, bookings, from, to)
}
