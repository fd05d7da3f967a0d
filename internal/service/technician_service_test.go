package service

import (
	"context"
	"testing"

	"techcare/internal/database"
	"techcare/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTechnicianService_SaveProfile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.user(t, models.RoleTechnician)
	customer := h.user(t, models.RoleCustomer)

	_, err := h.technicians.SaveProfile(ctx, customer, TechnicianProfile{Specializations: []string{"phone"}})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = h.technicians.SaveProfile(ctx, p, TechnicianProfile{Specializations: []string{" "}})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = h.technicians.SaveProfile(ctx, p, TechnicianProfile{Specializations: []string{"phone"}, HourlyRate: -5})
	assert.ErrorIs(t, err, ErrValidation)

	tech, err := h.technicians.SaveProfile(ctx, p, TechnicianProfile{
		Specializations: []string{"Phone", "Console"},
		City:            " Denver ",
		HourlyRate:      55,
		YearsExperience: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"phone", "console"}, tech.Specializations)
	assert.Equal(t, "Denver", tech.City)
	assert.True(t, tech.IsAvailable)
	assert.Equal(t, p.FullName, tech.FullName)

	require.NoError(t, h.technicians.SetAvailability(ctx, p, false))

	updated, err := h.technicians.SaveProfile(ctx, p, TechnicianProfile{Specializations: []string{"phone"}, HourlyRate: 60})
	require.NoError(t, err)
	assert.False(t, updated.IsAvailable, "saving keeps availability unless given")

	assert.ErrorIs(t, h.technicians.SetAvailability(ctx, customer, true), ErrForbidden)
}

func TestTechnicianService_ListAndVerify(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.user(t, models.RoleAdmin)
	first := h.technician(t)
	h.technician(t)

	assert.ErrorIs(t, h.technicians.Verify(ctx, first, first.ID, true), ErrForbidden)
	require.NoError(t, h.technicians.Verify(ctx, admin, first.ID, true))
	assert.ErrorIs(t, h.technicians.Verify(ctx, admin, "missing", true), database.ErrNotFound)

	verified, err := h.technicians.List(ctx, models.TechnicianFilter{VerifiedOnly: true})
	require.NoError(t, err)
	require.Len(t, verified, 1)
	assert.Equal(t, first.ID, verified[0].ID)

	all, err := h.technicians.List(ctx, models.TechnicianFilter{Specialization: "laptop", SortBy: "experience"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = h.technicians.List(ctx, models.TechnicianFilter{SortBy: "name"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = h.technicians.List(ctx, models.TechnicianFilter{MinRating: 9})
	assert.ErrorIs(t, err, ErrValidation)
}
