package database

import "errors"

var (
	ErrNotFound               = errors.New("record not found")
	ErrConcurrentModification = errors.New("record was modified concurrently")
	ErrDuplicateBid           = errors.New("technician already placed a bid on this booking")
	ErrDuplicateReview        = errors.New("booking already has a review")
	ErrBidNotPending          = errors.New("bid is no longer pending")
	ErrBookingNotOpen         = errors.New("booking is not open for bids")
	ErrInsufficientPoints     = errors.New("insufficient loyalty points")
	ErrRewardUnavailable      = errors.New("reward code is used or expired")
)
