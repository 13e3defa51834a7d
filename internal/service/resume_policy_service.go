package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/thesis-lifecycle-api/internal/dto"
	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
)

// DefaultResumeRequiredCollegi lists the units that mandate a thesis resume
// when none are configured.
var DefaultResumeRequiredCollegi = []string{"CL003"}

type degreeResolver interface {
	studentFinder
	DegreeCollegio(ctx context.Context, degreeID string) (string, error)
}

// ResumePolicyService resolves whether a student's conclusion request must
// carry a resume document.
type ResumePolicyService struct {
	degrees  degreeResolver
	required map[string]struct{}
	logger   *zap.Logger
}

// NewResumePolicyService builds the policy over the given collegio allow-list.
func NewResumePolicyService(degrees degreeResolver, collegi []string, logger *zap.Logger) *ResumePolicyService {
	if len(collegi) == 0 {
		collegi = DefaultResumeRequiredCollegi
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	required := make(map[string]struct{}, len(collegi))
	for _, c := range collegi {
		required[c] = struct{}{}
	}
	return &ResumePolicyService{degrees: degrees, required: required, logger: logger}
}

// IsResumeRequired never fails: an unresolvable degree programme means not required.
func (s *ResumePolicyService) IsResumeRequired(ctx context.Context, student *models.Student) bool {
	if student == nil || student.DegreeID == nil || *student.DegreeID == "" {
		return false
	}
	collegio, err := s.degrees.DegreeCollegio(ctx, *student.DegreeID)
	if err != nil {
		s.logger.Warn("degree collegio unresolved, resume not required",
			zap.String("student_id", student.ID), zap.String("degree_id", *student.DegreeID), zap.Error(err))
		return false
	}
	_, ok := s.required[collegio]
	return ok
}

// RequiredResume answers the policy for the authenticated student.
func (s *ResumePolicyService) RequiredResume(ctx context.Context, claims *models.JWTClaims) (*dto.RequiredResumeResponse, error) {
	student, err := requireStudent(ctx, s.degrees, claims)
	if err != nil {
		return nil, err
	}
	return &dto.RequiredResumeResponse{StudentID: student.ID, RequiredResume: s.IsResumeRequired(ctx, student)}, nil
}
