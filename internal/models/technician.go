package models

import "time"

type Technician struct {
	ID              string    `json:"id"`
	FullName        string    `json:"full_name"`
	Email           string    `json:"email,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	Specializations []string  `json:"specializations"`
	Bio             string    `json:"bio"`
	City            string    `json:"city"`
	HourlyRate      float64   `json:"hourly_rate"`
	YearsExperience int       `json:"years_experience"`
	Rating          float64   `json:"rating"`
	ReviewCount     int       `json:"review_count"`
	CompletedJobs   int       `json:"completed_jobs"`
	IsVerified      bool      `json:"is_verified"`
	IsAvailable     bool      `json:"is_available"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TechnicianFilter narrows the public technician listing.
type TechnicianFilter struct {
	Specialization string
	City           string
	Search         string
	MinRating      float64
	AvailableOnly  bool
	VerifiedOnly   bool
	SortBy         string // rating, experience, rate
	Limit          int
	Offset         int
}
