package models

// Student is the read-only view of an enrolled student the thesis workflow needs.
type Student struct {
	ID        string  `db:"id" json:"id"`
	FirstName string  `db:"first_name" json:"first_name"`
	LastName  string  `db:"last_name" json:"last_name"`
	Email     *string `db:"email" json:"email,omitempty"`
	DegreeID  *string `db:"degree_id" json:"degree_id,omitempty"`
}
