package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
)

// StatusHistoryRepository is the append-only ledger of status transitions.
type StatusHistoryRepository struct {
	db *sqlx.DB
}

// NewStatusHistoryRepository constructs repository.
func NewStatusHistoryRepository(db *sqlx.DB) *StatusHistoryRepository {
	return &StatusHistoryRepository{db: db}
}

func (r *StatusHistoryRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Append inserts one transition. Status values are stored verbatim.
func (r *StatusHistoryRepository) Append(ctx context.Context, exec sqlx.ExtContext, entry *models.StatusHistoryEntry) error {
	if entry == nil {
		return fmt.Errorf("status history entry is nil")
	}
	if entry.ThesisApplicationID == "" || entry.NewStatus == "" {
		return fmt.Errorf("thesis_application_id and new_status are required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ChangeDate.IsZero() {
		entry.ChangeDate = time.Now().UTC()
	}
	const query = `
INSERT INTO thesis_application_status_history (id, thesis_application_id, old_status, new_status, change_date)
VALUES (:id, :thesis_application_id, :old_status, :new_status, :change_date)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entry); err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

// ListByApplication returns the ledger for an application in chronological order.
func (r *StatusHistoryRepository) ListByApplication(ctx context.Context, applicationID string) ([]models.StatusHistoryEntry, error) {
	const query = `SELECT id, thesis_application_id, old_status, new_status, change_date
FROM thesis_application_status_history WHERE thesis_application_id = $1 ORDER BY change_date ASC, id ASC`
	entries := make([]models.StatusHistoryEntry, 0)
	if err := r.db.SelectContext(ctx, &entries, query, applicationID); err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	return entries, nil
}
