package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/thesis-lifecycle-api/internal/dto"
	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
	"github.com/noah-isme/thesis-lifecycle-api/internal/repository"
	appErrors "github.com/noah-isme/thesis-lifecycle-api/pkg/errors"
)

const subjectApplication = "application"

type applicationStore interface {
	eligibilityApplicationReader
	Create(ctx context.Context, exec sqlx.ExtContext, app *models.ThesisApplication) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.ThesisApplication, error)
	List(ctx context.Context) ([]models.ThesisApplication, error)
	FindLastByStudent(ctx context.Context, studentID string) (*models.ThesisApplication, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ApplicationStatus) error
	CreateSupervisorLinks(ctx context.Context, exec sqlx.ExtContext, links []models.ApplicationSupervisorLink) error
	ListSupervisorLinks(ctx context.Context, applicationIDs []string) ([]models.ApplicationSupervisorLink, error)
}

type applicationReferenceReader interface {
	studentFinder
	LockStudent(ctx context.Context, exec sqlx.ExtContext, id string) error
	StudentsByIDs(ctx context.Context, ids []string) ([]models.Student, error)
	TeachersByIDs(ctx context.Context, ids []string) ([]models.Teacher, error)
	CompaniesByIDs(ctx context.Context, ids []string) ([]models.Company, error)
	ProposalsByIDs(ctx context.Context, ids []string) ([]models.ThesisProposal, error)
}

// ApplicationService drives the thesis application lifecycle.
type ApplicationService struct {
	tx        transactor
	apps      applicationStore
	theses    eligibilityThesisReader
	refs      applicationReferenceReader
	ledger    statusLedger
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewApplicationService wires the application lifecycle controller.
func NewApplicationService(
	tx transactor,
	apps applicationStore,
	theses eligibilityThesisReader,
	refs applicationReferenceReader,
	ledger statusLedger,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *ApplicationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{
		tx:        tx,
		apps:      apps,
		theses:    theses,
		refs:      refs,
		ledger:    ledger,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

type resolvedApplicationRefs struct {
	supervisor    models.Teacher
	coSupervisors []models.Teacher
	proposal      *models.ThesisProposal
	company       *models.Company
}

// Submit creates a pending application for the caller. Eligibility is
// re-evaluated under the student's row lock in the same transaction as the insert.
func (s *ApplicationService) Submit(ctx context.Context, claims *models.JWTClaims, req dto.CreateApplicationRequest) (*dto.ApplicationResponse, error) {
	student, err := requireStudent(ctx, s.refs, claims)
	if err != nil {
		return nil, err
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid thesis application payload")
	}
	refs, err := s.resolveReferences(ctx, req)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	app := &models.ThesisApplication{
		ID:             uuid.NewString(),
		StudentID:      student.ID,
		Topic:          req.Topic,
		Status:         models.ApplicationStatusPending,
		SubmissionDate: now,
	}
	if refs.proposal != nil {
		app.ThesisProposalID = strPtr(refs.proposal.ID)
	}
	if refs.company != nil {
		app.CompanyID = strPtr(refs.company.ID)
	}
	links := []models.ApplicationSupervisorLink{{ThesisApplicationID: app.ID, TeacherID: refs.supervisor.ID, IsSupervisor: true}}
	for _, co := range refs.coSupervisors {
		links = append(links, models.ApplicationSupervisorLink{ThesisApplicationID: app.ID, TeacherID: co.ID})
	}

	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		if err := s.refs.LockStudent(ctx, exec, student.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return fmt.Errorf("lock student: %w", err)
		}
		eligible, err := evaluateEligibility(ctx, exec, s.apps, s.theses, student.ID)
		if err != nil {
			return err
		}
		if !eligible {
			return appErrors.Clone(appErrors.ErrConflict, "student already has an active thesis application")
		}
		if err := s.apps.Create(ctx, exec, app); err != nil {
			if errors.Is(err, repository.ErrUniqueViolation) {
				return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "student already has an active thesis application")
			}
			return err
		}
		if err := s.apps.CreateSupervisorLinks(ctx, exec, links); err != nil {
			return err
		}
		return s.ledger.Append(ctx, exec, app.ID, nil, string(models.ApplicationStatusPending), now)
	})
	if err != nil {
		return nil, asAppError(err, "failed to submit thesis application")
	}

	s.metrics.RecordTransition(subjectApplication, "", string(models.ApplicationStatusPending))
	s.cache.Invalidate(ctx, applicationsCachePattern)
	s.logger.Info("thesis application submitted", zap.String("application_id", app.ID), zap.String("student_id", student.ID))

	return &dto.ApplicationResponse{
		ID:             app.ID,
		Topic:          app.Topic,
		Supervisor:     &refs.supervisor,
		CoSupervisors:  refs.coSupervisors,
		Company:        refs.company,
		ThesisProposal: refs.proposal,
		SubmissionDate: app.SubmissionDate,
		Status:         app.Status,
	}, nil
}

// Cancel withdraws one of the caller's pending applications.
func (s *ApplicationService) Cancel(ctx context.Context, claims *models.JWTClaims, applicationID string) (*models.ThesisApplication, error) {
	if claims == nil || claims.UserID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if applicationID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "application id is required")
	}

	var cancelled *models.ThesisApplication
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		app, err := s.apps.FindByID(ctx, exec, applicationID, true)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "thesis application not found")
			}
			return err
		}
		if app.StudentID != claims.UserID {
			return appErrors.Clone(appErrors.ErrNotFound, "thesis application not found")
		}
		if app.Status != models.ApplicationStatusPending {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "only pending applications can be cancelled")
		}
		old := string(app.Status)
		if err := s.ledger.Append(ctx, exec, app.ID, &old, string(models.ApplicationStatusCancelled), s.now().UTC()); err != nil {
			return err
		}
		if err := s.apps.UpdateStatus(ctx, exec, app.ID, models.ApplicationStatusCancelled); err != nil {
			return err
		}
		app.Status = models.ApplicationStatusCancelled
		cancelled = app
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "failed to cancel thesis application")
	}

	s.metrics.RecordTransition(subjectApplication, string(models.ApplicationStatusPending), string(models.ApplicationStatusCancelled))
	s.cache.Invalidate(ctx, applicationsCachePattern)
	s.logger.Info("thesis application cancelled", zap.String("application_id", cancelled.ID))
	return cancelled, nil
}

// List returns every application with its people and references, newest first.
func (s *ApplicationService) List(ctx context.Context, claims *models.JWTClaims) ([]dto.ApplicationResponse, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !claims.Role.IsStaff() {
		return nil, appErrors.ErrForbidden
	}

	var cached []dto.ApplicationResponse
	if s.cache.Get(ctx, applicationsCacheKey, &cached) {
		return cached, nil
	}

	apps, err := s.apps.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list thesis applications")
	}
	responses, err := s.project(ctx, apps, nil)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, applicationsCacheKey, responses, 0)
	return responses, nil
}

// GetLast returns the caller's most recently submitted application.
func (s *ApplicationService) GetLast(ctx context.Context, claims *models.JWTClaims) (*dto.ApplicationResponse, error) {
	student, err := requireStudent(ctx, s.refs, claims)
	if err != nil {
		return nil, err
	}
	app, err := s.apps.FindLastByStudent(ctx, student.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no application found for the student")
		}
		return nil, appErrors.Internal(err, "failed to load thesis application")
	}
	responses, err := s.project(ctx, []models.ThesisApplication{*app}, student)
	if err != nil {
		return nil, err
	}
	return &responses[0], nil
}

func (s *ApplicationService) resolveReferences(ctx context.Context, req dto.CreateApplicationRequest) (*resolvedApplicationRefs, error) {
	coIDs := make([]string, 0, len(req.CoSupervisors))
	seen := map[string]struct{}{}
	for _, co := range req.CoSupervisors {
		if co.ID == req.Supervisor.ID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "supervisor cannot also be a co-supervisor")
		}
		if _, dup := seen[co.ID]; dup {
			continue
		}
		seen[co.ID] = struct{}{}
		coIDs = append(coIDs, co.ID)
	}

	teachers, err := s.refs.TeachersByIDs(ctx, append([]string{req.Supervisor.ID}, coIDs...))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load teachers")
	}
	byID := make(map[string]models.Teacher, len(teachers))
	for _, teacher := range teachers {
		byID[teacher.ID] = teacher
	}

	resolved := &resolvedApplicationRefs{coSupervisors: make([]models.Teacher, 0, len(coIDs))}
	supervisor, ok := byID[req.Supervisor.ID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "supervisor not found")
	}
	resolved.supervisor = supervisor
	for _, id := range coIDs {
		teacher, ok := byID[id]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("co-supervisor with id %s not found", id))
		}
		resolved.coSupervisors = append(resolved.coSupervisors, teacher)
	}

	if req.ThesisProposal != nil {
		proposals, err := s.refs.ProposalsByIDs(ctx, []string{req.ThesisProposal.ID})
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load thesis proposal")
		}
		if len(proposals) == 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "thesis proposal not found")
		}
		resolved.proposal = &proposals[0]
	}
	if req.Company != nil {
		companies, err := s.refs.CompaniesByIDs(ctx, []string{req.Company.ID})
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load company")
		}
		if len(companies) == 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "company not found")
		}
		resolved.company = &companies[0]
	}
	return resolved, nil
}

// project joins applications with their references. Every reference is
// expected to exist once an application is visible, so a miss is a data
// integrity failure rather than a client error. A known student skips the
// student lookup.
func (s *ApplicationService) project(ctx context.Context, apps []models.ThesisApplication, knownStudent *models.Student) ([]dto.ApplicationResponse, error) {
	responses := make([]dto.ApplicationResponse, 0, len(apps))
	if len(apps) == 0 {
		return responses, nil
	}

	appIDs := make([]string, 0, len(apps))
	proposalIDs := uniqueStrings()
	companyIDs := uniqueStrings()
	studentIDs := uniqueStrings()
	for _, app := range apps {
		appIDs = append(appIDs, app.ID)
		if app.ThesisProposalID != nil {
			proposalIDs.add(*app.ThesisProposalID)
		}
		if app.CompanyID != nil {
			companyIDs.add(*app.CompanyID)
		}
		if knownStudent == nil {
			studentIDs.add(app.StudentID)
		}
	}

	var (
		proposals []models.ThesisProposal
		companies []models.Company
		students  []models.Student
		links     []models.ApplicationSupervisorLink
		teachers  []models.Teacher
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		proposals, err = s.refs.ProposalsByIDs(gctx, proposalIDs.values)
		return err
	})
	g.Go(func() error {
		var err error
		companies, err = s.refs.CompaniesByIDs(gctx, companyIDs.values)
		return err
	})
	g.Go(func() error {
		var err error
		students, err = s.refs.StudentsByIDs(gctx, studentIDs.values)
		return err
	})
	g.Go(func() error {
		var err error
		links, err = s.apps.ListSupervisorLinks(gctx, appIDs)
		if err != nil {
			return err
		}
		teacherIDs := uniqueStrings()
		for _, link := range links {
			teacherIDs.add(link.TeacherID)
		}
		teachers, err = s.refs.TeachersByIDs(gctx, teacherIDs.values)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.Internal(err, "failed to load thesis application references")
	}

	proposalByID := make(map[string]models.ThesisProposal, len(proposals))
	for _, p := range proposals {
		proposalByID[p.ID] = p
	}
	companyByID := make(map[string]models.Company, len(companies))
	for _, c := range companies {
		companyByID[c.ID] = c
	}
	studentByID := make(map[string]models.Student, len(students))
	for _, st := range students {
		studentByID[st.ID] = st
	}
	if knownStudent != nil {
		studentByID[knownStudent.ID] = *knownStudent
	}
	teacherByID := make(map[string]models.Teacher, len(teachers))
	for _, t := range teachers {
		teacherByID[t.ID] = t
	}
	linksByApp := make(map[string][]models.ApplicationSupervisorLink, len(apps))
	for _, link := range links {
		linksByApp[link.ThesisApplicationID] = append(linksByApp[link.ThesisApplicationID], link)
	}

	for _, app := range apps {
		resp := dto.ApplicationResponse{
			ID:             app.ID,
			Topic:          app.Topic,
			CoSupervisors:  make([]models.Teacher, 0),
			SubmissionDate: app.SubmissionDate,
			Status:         app.Status,
		}
		student, ok := studentByID[app.StudentID]
		if !ok {
			return nil, integrityError("student", app.StudentID, app.ID)
		}
		resp.Student = &student
		if app.ThesisProposalID != nil {
			proposal, ok := proposalByID[*app.ThesisProposalID]
			if !ok {
				return nil, integrityError("thesis proposal", *app.ThesisProposalID, app.ID)
			}
			resp.ThesisProposal = &proposal
		}
		if app.CompanyID != nil {
			company, ok := companyByID[*app.CompanyID]
			if !ok {
				return nil, integrityError("company", *app.CompanyID, app.ID)
			}
			resp.Company = &company
		}
		for _, link := range linksByApp[app.ID] {
			teacher, ok := teacherByID[link.TeacherID]
			if !ok {
				return nil, integrityError("teacher", link.TeacherID, app.ID)
			}
			if link.IsSupervisor {
				supervisor := teacher
				resp.Supervisor = &supervisor
			} else {
				resp.CoSupervisors = append(resp.CoSupervisors, teacher)
			}
		}
		if resp.Supervisor == nil {
			return nil, appErrors.Clone(appErrors.ErrDataIntegrity, fmt.Sprintf("application %s has no supervisor", app.ID))
		}
		responses = append(responses, resp)
	}
	return responses, nil
}

func integrityError(kind, id, applicationID string) error {
	return appErrors.Clone(appErrors.ErrDataIntegrity, fmt.Sprintf("%s %s referenced by application %s not found", kind, id, applicationID))
}

type stringSet struct {
	seen   map[string]struct{}
	values []string
}

func uniqueStrings() *stringSet {
	return &stringSet{seen: map[string]struct{}{}}
}

func (s *stringSet) add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.values = append(s.values, v)
}
