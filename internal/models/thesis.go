package models

import "time"

// ThesisStatus enumerates the thesis lifecycle.
type ThesisStatus string

const (
	ThesisStatusOngoing             ThesisStatus = "ongoing"
	ThesisStatusCancelRequested     ThesisStatus = "cancel_requested"
	ThesisStatusCancelApproved      ThesisStatus = "cancel_approved"
	ThesisStatusConclusionRequested ThesisStatus = "conclusion_requested"
	ThesisStatusConclusionApproved  ThesisStatus = "conclusion_approved"
	ThesisStatusConclusionRejected  ThesisStatus = "conclusion_rejected"
	ThesisStatusDone                ThesisStatus = "done"
)

// CanRequestConclusion reports whether a conclusion request may start from s.
func (s ThesisStatus) CanRequestConclusion() bool {
	return s == ThesisStatusOngoing || s == ThesisStatusConclusionRejected
}

// Thesis is the post-approval work record.
type Thesis struct {
	ID                               string       `db:"id" json:"id"`
	StudentID                        string       `db:"student_id" json:"student_id"`
	ThesisApplicationID              string       `db:"thesis_application_id" json:"thesis_application_id"`
	Topic                            string       `db:"topic" json:"topic"`
	Title                            *string      `db:"title" json:"title,omitempty"`
	TitleEng                         *string      `db:"title_eng" json:"title_eng,omitempty"`
	Abstract                         *string      `db:"abstract" json:"abstract,omitempty"`
	AbstractEng                      *string      `db:"abstract_eng" json:"abstract_eng,omitempty"`
	Language                         string       `db:"language" json:"language"`
	LicenseID                        *int64       `db:"license_id" json:"license_id,omitempty"`
	CompanyID                        *string      `db:"company_id" json:"company_id,omitempty"`
	ThesisFilePath                   *string      `db:"thesis_file_path" json:"thesis_file_path,omitempty"`
	ThesisResumePath                 *string      `db:"thesis_resume_path" json:"thesis_resume_path,omitempty"`
	AdditionalZipPath                *string      `db:"additional_zip_path" json:"additional_zip_path,omitempty"`
	Status                           ThesisStatus `db:"status" json:"status"`
	ThesisStartDate                  time.Time    `db:"thesis_start_date" json:"thesis_start_date"`
	ThesisDraftDate                  *time.Time   `db:"thesis_draft_date" json:"thesis_draft_date,omitempty"`
	ThesisConclusionRequestDate      *time.Time   `db:"thesis_conclusion_request_date" json:"thesis_conclusion_request_date,omitempty"`
	ThesisConclusionConfirmationDate *time.Time   `db:"thesis_conclusion_confirmation_date" json:"thesis_conclusion_confirmation_date,omitempty"`
}

// SupervisorScope separates the committed supervisor set from an unsaved draft.
type SupervisorScope string

const (
	SupervisorScopeLive  SupervisorScope = "live"
	SupervisorScopeDraft SupervisorScope = "draft"
)

// ThesisSupervisorLink ties a teacher to a thesis within a scope.
type ThesisSupervisorLink struct {
	ThesisID     string          `db:"thesis_id" json:"thesis_id"`
	TeacherID    string          `db:"teacher_id" json:"teacher_id"`
	IsSupervisor bool            `db:"is_supervisor" json:"is_supervisor"`
	Scope        SupervisorScope `db:"scope" json:"scope"`
}

// SDGLevel ranks an SDG tag on a thesis.
type SDGLevel string

const (
	SDGLevelPrimary   SDGLevel = "primary"
	SDGLevelSecondary SDGLevel = "secondary"
)

// ThesisSDG tags a thesis with a sustainable development goal.
type ThesisSDG struct {
	ThesisID string    `db:"thesis_id" json:"thesis_id"`
	GoalID   int64     `db:"goal_id" json:"goal_id"`
	Level    *SDGLevel `db:"sdg_level" json:"sdg_level"`
}

// ThesisKeyword links a catalogue keyword or a free-text keyword to a thesis.
type ThesisKeyword struct {
	ThesisID     string  `db:"thesis_id" json:"thesis_id"`
	KeywordID    *int64  `db:"keyword_id" json:"keyword_id"`
	KeywordOther *string `db:"keyword_other" json:"keyword_other"`
}

// ThesisEmbargo restricts publication of a thesis for a duration.
type ThesisEmbargo struct {
	ID       string `db:"id" json:"id"`
	ThesisID string `db:"thesis_id" json:"thesis_id"`
	Duration string `db:"duration" json:"duration"`
}

// ThesisEmbargoMotivation justifies an embargo.
type ThesisEmbargoMotivation struct {
	ThesisEmbargoID string  `db:"thesis_embargo_id" json:"thesis_embargo_id"`
	MotivationID    int64   `db:"motivation_id" json:"motivation_id"`
	OtherMotivation *string `db:"other_motivation" json:"other_motivation"`
	Position        int     `db:"position" json:"-"`
}
