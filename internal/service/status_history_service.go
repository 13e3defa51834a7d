package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/thesis-lifecycle-api/internal/dto"
	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/thesis-lifecycle-api/pkg/errors"
	"github.com/noah-isme/thesis-lifecycle-api/pkg/export"
)

type statusHistoryStore interface {
	Append(ctx context.Context, exec sqlx.ExtContext, entry *models.StatusHistoryEntry) error
	ListByApplication(ctx context.Context, applicationID string) ([]models.StatusHistoryEntry, error)
}

type historyApplicationReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.ThesisApplication, error)
}

// statusLedger is what transition owners need from the ledger.
type statusLedger interface {
	Append(ctx context.Context, exec sqlx.ExtContext, subjectID string, oldStatus *string, newStatus string, at time.Time) error
}

// StatusHistoryService is the append-only ledger of status transitions. It
// never validates status values; callers own transition legality.
type StatusHistoryService struct {
	repo   statusHistoryStore
	apps   historyApplicationReader
	logger *zap.Logger
}

// NewStatusHistoryService constructs the ledger service.
func NewStatusHistoryService(repo statusHistoryStore, apps historyApplicationReader, logger *zap.Logger) *StatusHistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusHistoryService{repo: repo, apps: apps, logger: logger}
}

// Append records one transition for subjectID. A zero at means now.
func (s *StatusHistoryService) Append(ctx context.Context, exec sqlx.ExtContext, subjectID string, oldStatus *string, newStatus string, at time.Time) error {
	entry := &models.StatusHistoryEntry{
		ThesisApplicationID: subjectID,
		OldStatus:           oldStatus,
		NewStatus:           newStatus,
		ChangeDate:          at,
	}
	if err := s.repo.Append(ctx, exec, entry); err != nil {
		return fmt.Errorf("append status history: %w", err)
	}
	return nil
}

// ListFor returns the ledger of subjectID in ascending chronological order.
func (s *StatusHistoryService) ListFor(ctx context.Context, subjectID string) ([]models.StatusHistoryEntry, error) {
	entries, err := s.repo.ListByApplication(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load status history")
	}
	return entries, nil
}

// GetForApplication returns the history of an application the caller may see.
// Students only see their own applications; others look missing.
func (s *StatusHistoryService) GetForApplication(ctx context.Context, claims *models.JWTClaims, applicationID string) ([]dto.StatusHistoryItem, error) {
	if err := s.authorize(ctx, claims, applicationID); err != nil {
		return nil, err
	}
	entries, err := s.ListFor(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	items := make([]dto.StatusHistoryItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.StatusHistoryItem{
			ID:                  entry.ID,
			ThesisApplicationID: entry.ThesisApplicationID,
			OldStatus:           entry.OldStatus,
			NewStatus:           entry.NewStatus,
			ChangeDate:          entry.ChangeDate,
		})
	}
	return items, nil
}

// Export renders the history of an application as CSV or PDF.
func (s *StatusHistoryService) Export(ctx context.Context, claims *models.JWTClaims, applicationID, format string) ([]byte, string, string, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, "", "", appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	items, err := s.GetForApplication(ctx, claims, applicationID)
	if err != nil {
		return nil, "", "", err
	}
	dataset := export.Dataset{
		Title:   fmt.Sprintf("Status history of application %s", applicationID),
		Headers: []string{"change_date", "old_status", "new_status"},
		Rows:    make([]map[string]string, 0, len(items)),
	}
	for _, item := range items {
		old := ""
		if item.OldStatus != nil {
			old = *item.OldStatus
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"change_date": item.ChangeDate.UTC().Format(time.RFC3339),
			"old_status":  old,
			"new_status":  item.NewStatus,
		})
	}
	body, err := export.Render(f, dataset)
	if err != nil {
		return nil, "", "", appErrors.Internal(err, "failed to render status history")
	}
	filename := fmt.Sprintf("status_history_%s.%s", applicationID, f)
	return body, filename, f.ContentType(), nil
}

func (s *StatusHistoryService) authorize(ctx context.Context, claims *models.JWTClaims, applicationID string) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	if applicationID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "application id is required")
	}
	app, err := s.apps.FindByID(ctx, nil, applicationID, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "thesis application not found")
		}
		return appErrors.Internal(err, "failed to load thesis application")
	}
	if !claims.Role.IsStaff() && app.StudentID != claims.UserID {
		return appErrors.Clone(appErrors.ErrNotFound, "thesis application not found")
	}
	return nil
}
