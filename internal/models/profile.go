package models

import "time"

type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"` // customer, technician, admin
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Profile) IsAdmin() bool      { return p.Role == RoleAdmin }
func (p *Profile) IsTechnician() bool { return p.Role == RoleTechnician }
func (p *Profile) IsCustomer() bool   { return p.Role == RoleCustomer }

// SelfServiceRole reports whether a user may pick role for themselves at signup.
func SelfServiceRole(role string) bool {
	return role == RoleCustomer || role == RoleTechnician
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleCustomer, RoleTechnician, RoleAdmin:
		return true
	default:
		return false
	}
}
