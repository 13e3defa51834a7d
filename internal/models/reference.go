package models

// Company is an external organisation hosting a thesis.
type Company struct {
	ID            string  `db:"id" json:"id"`
	CorporateName string  `db:"corporate_name" json:"corporate_name"`
	Website       *string `db:"website" json:"website,omitempty"`
}

// ThesisProposal is a catalogued topic a student can apply for.
type ThesisProposal struct {
	ID       string  `db:"id" json:"id"`
	Topic    string  `db:"topic" json:"topic"`
	TopicEng *string `db:"topic_eng" json:"topic_eng,omitempty"`
}

// Keyword is an entry of the keyword catalogue.
type Keyword struct {
	ID      int64  `db:"id" json:"id"`
	Keyword string `db:"keyword" json:"keyword"`
}

// SustainableDevelopmentGoal is an SDG catalogue entry.
type SustainableDevelopmentGoal struct {
	ID   int64  `db:"id" json:"id"`
	Goal string `db:"goal" json:"goal"`
}

// EmbargoMotivation is a catalogued reason to restrict publication.
type EmbargoMotivation struct {
	ID         int64  `db:"id" json:"id"`
	Motivation string `db:"motivation" json:"motivation"`
}

// License is a publication license the student may pick.
type License struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}
