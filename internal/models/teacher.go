package models

// Teacher represents a supervisor or co-supervisor candidate.
type Teacher struct {
	ID          string  `db:"id" json:"id"`
	FirstName   string  `db:"first_name" json:"first_name"`
	LastName    string  `db:"last_name" json:"last_name"`
	Role        *string `db:"role" json:"role,omitempty"`
	Email       *string `db:"email" json:"email,omitempty"`
	FacilityURL *string `db:"facility_url" json:"facility_url,omitempty"`
}
