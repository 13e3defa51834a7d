package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/thesis-lifecycle-api/internal/dto"
	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/thesis-lifecycle-api/pkg/errors"
)

type eligibilityApplicationReader interface {
	ListByStudentAndStatuses(ctx context.Context, exec sqlx.ExtContext, studentID string, statuses []models.ApplicationStatus) ([]models.ThesisApplication, error)
}

type eligibilityThesisReader interface {
	FindByApplicationID(ctx context.Context, exec sqlx.ExtContext, applicationID string) (*models.Thesis, error)
}

// evaluateEligibility is the single definition of the eligibility rule: no
// pending application, and every approved application's thesis was
// cancel_approved. exec may be a transaction so submitters re-check under lock.
func evaluateEligibility(ctx context.Context, exec sqlx.ExtContext, apps eligibilityApplicationReader, theses eligibilityThesisReader, studentID string) (bool, error) {
	active, err := apps.ListByStudentAndStatuses(ctx, exec, studentID,
		[]models.ApplicationStatus{models.ApplicationStatusPending, models.ApplicationStatusApproved})
	if err != nil {
		return false, err
	}
	for _, app := range active {
		if app.Status == models.ApplicationStatusPending {
			return false, nil
		}
	}
	for _, app := range active {
		thesis, err := theses.FindByApplicationID(ctx, exec, app.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return false, nil
			}
			return false, fmt.Errorf("load thesis for application %s: %w", app.ID, err)
		}
		if thesis.Status != models.ThesisStatusCancelApproved {
			return false, nil
		}
	}
	return true, nil
}

// EligibilityService answers whether a student may submit a new application.
type EligibilityService struct {
	apps     eligibilityApplicationReader
	theses   eligibilityThesisReader
	students studentFinder
	logger   *zap.Logger
}

// NewEligibilityService constructs the service.
func NewEligibilityService(apps eligibilityApplicationReader, theses eligibilityThesisReader, students studentFinder, logger *zap.Logger) *EligibilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EligibilityService{apps: apps, theses: theses, students: students, logger: logger}
}

// IsEligible is a lock-free read of the eligibility rule.
func (s *EligibilityService) IsEligible(ctx context.Context, studentID string) (bool, error) {
	eligible, err := evaluateEligibility(ctx, nil, s.apps, s.theses, studentID)
	if err != nil {
		return false, appErrors.Internal(err, "failed to evaluate eligibility")
	}
	return eligible, nil
}

// Check resolves the caller and reports their eligibility.
func (s *EligibilityService) Check(ctx context.Context, claims *models.JWTClaims) (*dto.EligibilityResponse, error) {
	student, err := requireStudent(ctx, s.students, claims)
	if err != nil {
		return nil, err
	}
	eligible, err := s.IsEligible(ctx, student.ID)
	if err != nil {
		return nil, err
	}
	return &dto.EligibilityResponse{StudentID: student.ID, Eligible: eligible}, nil
}
