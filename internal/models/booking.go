package models

import "time"

type Booking struct {
	ID              string     `json:"id"`
	CustomerID      string     `json:"customer_id"`
	TechnicianID    *string    `json:"technician_id"`
	DeviceType      string     `json:"device_type"`
	DeviceBrand     string     `json:"device_brand"`
	DeviceModel     string     `json:"device_model"`
	IssueDesc       string     `json:"issue_description"`
	ServiceAddress  string     `json:"service_address"`
	PreferredDate   *time.Time `json:"preferred_date,omitempty"`
	Status          string     `json:"status"` // pending, bid_accepted, confirmed, in_progress, completed, cancelled
	PaymentStatus   string     `json:"payment_status"`
	PaymentIntentID string     `json:"payment_intent_id,omitempty"`
	EstimatedCost   float64    `json:"estimated_cost"`
	Price           float64    `json:"price"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Version         int64      `json:"version"`
}

// HasTechnician reports whether a technician is assigned to the booking.
func (b *Booking) HasTechnician() bool {
	return b.TechnicianID != nil && *b.TechnicianID != ""
}

// IsAssignedTo reports whether technicianID is the assigned technician.
func (b *Booking) IsAssignedTo(technicianID string) bool {
	return b.HasTechnician() && *b.TechnicianID == technicianID
}

// BookingFilter narrows admin booking listings.
type BookingFilter struct {
	Status string
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}
