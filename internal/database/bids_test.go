package database

import (
	"context"
	"testing"

	"techcare/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBid(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	customer := seedProfile(t, db, models.RoleCustomer)
	tech := seedTechnician(t, db, "phone")
	b := seedBooking(t, db, customer.ID)

	bid := &models.Bid{BookingID: b.ID, TechnicianID: tech.ID, Amount: 80, Message: "Can fix today"}
	require.NoError(t, db.CreateBid(ctx, bid))
	assert.Equal(t, models.BidPending, bid.Status)

	dup := &models.Bid{BookingID: b.ID, TechnicianID: tech.ID, Amount: 70}
	assert.ErrorIs(t, db.CreateBid(ctx, dup), ErrDuplicateBid)

	bids, err := db.ListBidsByBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, bids, 1)

	mine, err := db.ListBidsByTechnician(ctx, tech.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	n, err := db.CountPendingBids(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAcceptBid(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	customer := seedProfile(t, db, models.RoleCustomer)
	winner := seedTechnician(t, db, "phone")
	loser := seedTechnician(t, db, "phone")
	b := seedBooking(t, db, customer.ID)

	win := &models.Bid{BookingID: b.ID, TechnicianID: winner.ID, Amount: 95.5}
	lose := &models.Bid{BookingID: b.ID, TechnicianID: loser.ID, Amount: 110}
	require.NoError(t, db.CreateBid(ctx, win))
	require.NoError(t, db.CreateBid(ctx, lose))

	accepted, booking, err := db.AcceptBid(ctx, win.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BidAccepted, accepted.Status)
	assert.Equal(t, models.StatusBidAccepted, booking.Status)
	assert.True(t, booking.IsAssignedTo(winner.ID))
	assert.Equal(t, 95.5, booking.Price)

	stored, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.Version, stored.Version)
	assert.Equal(t, 95.5, stored.Price)

	other, err := db.GetBid(ctx, lose.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BidRejected, other.Status)

	t.Run("AlreadyAccepted", func(t *testing.T) {
		_, _, err := db.AcceptBid(ctx, win.ID)
		assert.ErrorIs(t, err, ErrBidNotPending)
	})

	t.Run("BookingNoLongerOpen", func(t *testing.T) {
		late := seedTechnician(t, db, "phone")
		bid := &models.Bid{BookingID: b.ID, TechnicianID: late.ID, Amount: 50}
		require.NoError(t, db.CreateBid(ctx, bid))
		_, _, err := db.AcceptBid(ctx, bid.ID)
		assert.ErrorIs(t, err, ErrBookingNotOpen)
	})

	t.Run("MissingBid", func(t *testing.T) {
		_, _, err := db.AcceptBid(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestWithdrawBid(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	customer := seedProfile(t, db, models.RoleCustomer)
	tech := seedTechnician(t, db, "phone")
	b := seedBooking(t, db, customer.ID)

	bid := &models.Bid{BookingID: b.ID, TechnicianID: tech.ID, Amount: 60}
	require.NoError(t, db.CreateBid(ctx, bid))
	require.NoError(t, db.WithdrawBid(ctx, bid.ID))

	_, err := db.GetBid(ctx, bid.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.WithdrawBid(ctx, bid.ID), ErrNotFound)

	again := &models.Bid{BookingID: b.ID, TechnicianID: tech.ID, Amount: 65}
	require.NoError(t, db.CreateBid(ctx, again))
	_, _, err = db.AcceptBid(ctx, again.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, db.WithdrawBid(ctx, again.ID), ErrBidNotPending)
}
