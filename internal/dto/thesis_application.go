package dto

import (
	"time"

	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
)

// EntityRef references an existing row by id.
type EntityRef struct {
	ID string `json:"id" validate:"required"`
}

// CreateApplicationRequest is the payload a student submits to apply for a thesis.
type CreateApplicationRequest struct {
	Topic          string      `json:"topic" validate:"required,max=500"`
	Supervisor     EntityRef   `json:"supervisor" validate:"required"`
	CoSupervisors  []EntityRef `json:"coSupervisors" validate:"omitempty,dive"`
	ThesisProposal *EntityRef  `json:"thesisProposal" validate:"omitempty"`
	Company        *EntityRef  `json:"company" validate:"omitempty"`
}

// ApplicationResponse is the projection returned for one application.
type ApplicationResponse struct {
	ID             string                   `json:"id"`
	Topic          string                   `json:"topic"`
	Student        *models.Student          `json:"student,omitempty"`
	Supervisor     *models.Teacher          `json:"supervisor"`
	CoSupervisors  []models.Teacher         `json:"coSupervisors"`
	Company        *models.Company          `json:"company"`
	ThesisProposal *models.ThesisProposal   `json:"thesisProposal"`
	SubmissionDate time.Time                `json:"submissionDate"`
	Status         models.ApplicationStatus `json:"status"`
}

// EligibilityResponse reports whether a student may submit a new application.
type EligibilityResponse struct {
	StudentID string `json:"studentId"`
	Eligible  bool   `json:"eligible"`
}

// StatusHistoryItem is one ledger row as rendered to clients.
type StatusHistoryItem struct {
	ID                  string    `json:"id"`
	ThesisApplicationID string    `json:"thesisApplicationId"`
	OldStatus           *string   `json:"oldStatus"`
	NewStatus           string    `json:"newStatus"`
	ChangeDate          time.Time `json:"changeDate"`
}

// RequiredResumeResponse exposes the resume policy for the current student.
type RequiredResumeResponse struct {
	StudentID      string `json:"studentId"`
	RequiredResume bool   `json:"requiredResume"`
}
