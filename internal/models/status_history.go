package models

import "time"

// StatusHistoryEntry is an immutable record of one status transition. Both
// application and thesis transitions are keyed by the application id.
type StatusHistoryEntry struct {
	ID                  string    `db:"id" json:"id"`
	ThesisApplicationID string    `db:"thesis_application_id" json:"thesis_application_id"`
	OldStatus           *string   `db:"old_status" json:"old_status"`
	NewStatus           string    `db:"new_status" json:"new_status"`
	ChangeDate          time.Time `db:"change_date" json:"change_date"`
}
