package models

// AdminStats is the admin dashboard summary.
type AdminStats struct {
	UsersByRole      map[string]int64 `json:"users_by_role"`
	BookingsByStatus map[string]int64 `json:"bookings_by_status"`
	TotalBookings    int64            `json:"total_bookings"`
	PaidBookings     int64            `json:"paid_bookings"`
	Revenue          float64          `json:"revenue"`
	PendingBids      int64            `json:"pending_bids"`
	Reviews          int64            `json:"reviews"`
	AverageRating    float64          `json:"average_rating"`
}
