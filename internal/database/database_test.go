package database

import (
	"context"
	"testing"

	"techcare/internal/models"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewSQLite(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedProfile(t *testing.T, db *DB, role string) *models.Profile {
	t.Helper()
	p := &models.Profile{
		Email:    gofakeit.Email(),
		FullName: gofakeit.Name(),
		Phone:    gofakeit.Phone(),
		Role:     role,
	}
	require.NoError(t, db.CreateProfile(context.Background(), p))
	return p
}

func seedTechnician(t *testing.T, db *DB, specs ...string) *models.Technician {
	t.Helper()
	p := seedProfile(t, db, models.RoleTechnician)
	tech := &models.Technician{
		ID:              p.ID,
		Specializations: specs,
		Bio:             gofakeit.Blurb(),
		City:            "Austin",
		HourlyRate:      45,
		YearsExperience: 3,
		IsAvailable:     true,
	}
	require.NoError(t, db.UpsertTechnician(context.Background(), tech))
	return tech
}

func seedBooking(t *testing.T, db *DB, customerID string) *models.Booking {
	t.Helper()
	b := &models.Booking{
		CustomerID:     customerID,
		DeviceType:     "phone",
		DeviceBrand:    gofakeit.Company(),
		DeviceModel:    gofakeit.BuzzWord(),
		IssueDesc:      "cracked screen",
		ServiceAddress: gofakeit.City(),
		EstimatedCost:  120,
	}
	require.NoError(t, db.CreateBooking(context.Background(), b))
	return b
}

func TestOpen(t *testing.T) {
	db := setupTestDB(t)
	assert.Equal(t, DriverSQLite, db.Driver())
	assert.NoError(t, db.Ping(context.Background()))

	// Running migrations twice is a no-op.
	assert.NoError(t, db.Migrate())
}

func TestRebind(t *testing.T) {
	pg := &DB{driver: DriverPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)",
		pg.rebind("SELECT * FROM t WHERE a = ? AND b IN (?, ?)"))

	lite := &DB{driver: DriverSQLite}
	assert.Equal(t, "SELECT ? FROM t", lite.rebind("SELECT ? FROM t"))
	assert.Equal(t, " FOR UPDATE", pg.forUpdate())
	assert.Empty(t, lite.forUpdate())
}

func TestProfiles(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	customer := seedProfile(t, db, models.RoleCustomer)
	seedProfile(t, db, models.RoleTechnician)

	got, err := db.GetProfile(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, customer.Email, got.Email)
	assert.Equal(t, models.RoleCustomer, got.Role)

	got.FullName = "Renamed Customer"
	require.NoError(t, db.UpdateProfile(ctx, got))
	got, err = db.GetProfile(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed Customer", got.FullName)

	customers, err := db.ListProfiles(ctx, models.RoleCustomer, 0, 0)
	require.NoError(t, err)
	assert.Len(t, customers, 1)

	all, err := db.ListProfiles(ctx, "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	upsert := &models.Profile{ID: customer.ID, Email: "new@example.com", FullName: "Upserted", Role: models.RoleAdmin}
	require.NoError(t, db.UpsertProfile(ctx, upsert))
	got, err = db.GetProfile(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, got.Role)
	assert.Equal(t, "new@example.com", got.Email)

	_, err = db.GetProfile(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.UpdateProfile(ctx, &models.Profile{ID: "missing"}), ErrNotFound)
}

func TestTechnicians(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	phone := seedTechnician(t, db, "Phone", "tablet")
	laptop := seedTechnician(t, db, "laptop")

	got, err := db.GetTechnician(ctx, phone.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"phone", "tablet"}, got.Specializations)
	assert.NotEmpty(t, got.FullName)
	assert.False(t, got.IsVerified)

	t.Run("FilterBySpecialization", func(t *testing.T) {
		list, err := db.ListTechnicians(ctx, models.TechnicianFilter{Specialization: "tablet"})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, phone.ID, list[0].ID)

		list, err = db.ListTechnicians(ctx, models.TechnicianFilter{Specialization: "tab"})
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("VerifiedAndAvailable", func(t *testing.T) {
		require.NoError(t, db.SetTechnicianVerified(ctx, laptop.ID, true))
		require.NoError(t, db.SetTechnicianAvailability(ctx, phone.ID, false))

		list, err := db.ListTechnicians(ctx, models.TechnicianFilter{VerifiedOnly: true})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, laptop.ID, list[0].ID)

		list, err = db.ListTechnicians(ctx, models.TechnicianFilter{AvailableOnly: true, City: "austin"})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, laptop.ID, list[0].ID)
	})

	t.Run("MissingTechnician", func(t *testing.T) {
		_, err := db.GetTechnician(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, db.SetTechnicianVerified(ctx, "missing", true), ErrNotFound)
	})
}

func TestIsUniqueViolation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	p := seedProfile(t, db, models.RoleCustomer)
	err := db.CreateProfile(ctx, &models.Profile{ID: p.ID, Email: "dup@example.com"})
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))
	assert.False(t, isUniqueViolation(ErrNotFound))
}
