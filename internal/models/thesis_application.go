package models

import "time"

// ApplicationStatus enumerates the thesis application lifecycle.
type ApplicationStatus string

const (
	ApplicationStatusPending   ApplicationStatus = "pending"
	ApplicationStatusApproved  ApplicationStatus = "approved"
	ApplicationStatusRejected  ApplicationStatus = "rejected"
	ApplicationStatusCancelled ApplicationStatus = "cancelled"
)

// ThesisApplication is a student's request to pursue a topic with a supervisor.
type ThesisApplication struct {
	ID               string            `db:"id" json:"id"`
	StudentID        string            `db:"student_id" json:"student_id"`
	Topic            string            `db:"topic" json:"topic"`
	ThesisProposalID *string           `db:"thesis_proposal_id" json:"thesis_proposal_id,omitempty"`
	CompanyID        *string           `db:"company_id" json:"company_id,omitempty"`
	Status           ApplicationStatus `db:"status" json:"status"`
	SubmissionDate   time.Time         `db:"submission_date" json:"submission_date"`
}

// ApplicationSupervisorLink ties a teacher to an application as supervisor or co-supervisor.
type ApplicationSupervisorLink struct {
	ThesisApplicationID string `db:"thesis_application_id" json:"thesis_application_id"`
	TeacherID           string `db:"teacher_id" json:"teacher_id"`
	IsSupervisor        bool   `db:"is_supervisor" json:"is_supervisor"`
}
