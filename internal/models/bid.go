package models

import "time"

type Bid struct {
	ID            string    `json:"id"`
	BookingID     string    `json:"booking_id"`
	TechnicianID  string    `json:"technician_id"`
	Amount        float64   `json:"amount"`
	Message       string    `json:"message,omitempty"`
	EstimatedDays int       `json:"estimated_days,omitempty"`
	Status        string    `json:"status"` // pending, accepted, rejected
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
