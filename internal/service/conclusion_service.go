package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/thesis-lifecycle-api/internal/dto"
	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/thesis-lifecycle-api/pkg/errors"
	"github.com/noah-isme/thesis-lifecycle-api/pkg/jobs"
	"github.com/noah-isme/thesis-lifecycle-api/pkg/storage"
)

const (
	subjectThesis = "thesis"

	// ConclusionUploadRoot is where committed conclusion documents live, one
	// directory per student.
	ConclusionUploadRoot = "uploads/thesis_conclusion_request"

	// StagingCleanupJob is the job type that removes an abandoned staging area.
	StagingCleanupJob = "staging_cleanup"

	mimePDF          = "application/pdf"
	mimeZip          = "application/zip"
	mimeZipMicrosoft = "application/x-zip-compressed"
)

// DocumentKind names one of the documents attached to a conclusion request.
type DocumentKind string

const (
	DocumentThesis     DocumentKind = "thesis"
	DocumentResume     DocumentKind = "resume"
	DocumentAdditional DocumentKind = "additional"
)

// ParseDocumentKind validates a kind coming from a request path.
func ParseDocumentKind(raw string) (DocumentKind, error) {
	switch kind := DocumentKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case DocumentThesis, DocumentResume, DocumentAdditional:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown document kind %q", raw)
	}
}

// ConclusionDocumentPath is the committed location of a student's document.
func ConclusionDocumentPath(studentID string, kind DocumentKind) string {
	return path.Join(ConclusionUploadRoot, studentID, conclusionFileName(studentID, kind))
}

func conclusionFileName(studentID string, kind DocumentKind) string {
	ext := "pdf"
	if kind == DocumentAdditional {
		ext = "zip"
	}
	return fmt.Sprintf("%s_%s.%s", kind, studentID, ext)
}

type conclusionThesisStore interface {
	FindActiveByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string, forUpdate bool) (*models.Thesis, error)
	FindByID(ctx context.Context, id string) (*models.Thesis, error)
	UpdateConclusion(ctx context.Context, exec sqlx.ExtContext, thesis *models.Thesis) error
}

type conclusionRelationStore interface {
	DeleteCoSupervisors(ctx context.Context, exec sqlx.ExtContext, thesisID string, scope models.SupervisorScope) error
	ReplaceCoSupervisors(ctx context.Context, exec sqlx.ExtContext, thesisID string, teacherIDs []string) error
	ReplaceSDGs(ctx context.Context, exec sqlx.ExtContext, thesisID string, sdgs []models.ThesisSDG) error
	ReplaceKeywords(ctx context.Context, exec sqlx.ExtContext, thesisID string, keywords []models.ThesisKeyword) error
	ReplaceEmbargo(ctx context.Context, exec sqlx.ExtContext, thesisID string, embargo *models.ThesisEmbargo, motivations []models.ThesisEmbargoMotivation) error
	ListSupervisors(ctx context.Context, thesisID string, scope models.SupervisorScope) ([]models.ThesisSupervisorLink, error)
	ListSDGs(ctx context.Context, thesisID string) ([]models.ThesisSDG, error)
	ListKeywords(ctx context.Context, thesisID string) ([]models.ThesisKeyword, error)
	FindEmbargo(ctx context.Context, thesisID string) (*models.ThesisEmbargo, []models.ThesisEmbargoMotivation, error)
}

type conclusionReferenceReader interface {
	studentFinder
	TeachersByIDs(ctx context.Context, ids []string) ([]models.Teacher, error)
	ExistingKeywordIDs(ctx context.Context, ids []int64) ([]int64, error)
	ExistingSDGIDs(ctx context.Context, ids []int64) ([]int64, error)
	ExistingMotivationIDs(ctx context.Context, ids []int64) ([]int64, error)
	LicenseExists(ctx context.Context, id int64) (bool, error)
}

type resumePolicy interface {
	IsResumeRequired(ctx context.Context, student *models.Student) bool
}

type documentAcceptor interface {
	AcceptAndStore(file *models.UploadedFile, destRel string) error
}

type stagingStorage interface {
	NewStagingArea() (string, error)
	MoveIn(src, rel string) error
	Promote(fromRel, toRel string) error
	RemoveAll(rel string) error
}

type cleanupScheduler interface {
	TryEnqueue(job jobs.Job) error
}

// ConclusionServiceConfig holds upload limits.
type ConclusionServiceConfig struct {
	MaxFileSize int64
}

// ConclusionService orchestrates a student's conclusion request: documents,
// metadata, child collections and the status transition.
type ConclusionService struct {
	tx        transactor
	theses    conclusionThesisStore
	relations conclusionRelationStore
	refs      conclusionReferenceReader
	ledger    statusLedger
	policy    resumePolicy
	documents documentAcceptor
	files     stagingStorage
	cleanup   cleanupScheduler
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ConclusionServiceConfig
	now       func() time.Time
}

// NewConclusionService wires the orchestrator. cleanup may be nil, in which
// case abandoned staging areas are removed inline.
func NewConclusionService(
	tx transactor,
	theses conclusionThesisStore,
	relations conclusionRelationStore,
	refs conclusionReferenceReader,
	ledger statusLedger,
	policy resumePolicy,
	documents documentAcceptor,
	files stagingStorage,
	cleanup cleanupScheduler,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ConclusionServiceConfig,
) *ConclusionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 50 * 1024 * 1024
	}
	return &ConclusionService{
		tx:        tx,
		theses:    theses,
		relations: relations,
		refs:      refs,
		ledger:    ledger,
		policy:    policy,
		documents: documents,
		files:     files,
		cleanup:   cleanup,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// conclusionPlan is the validated and resolved form of a request. Nil slices
// mean the stored collection is left untouched.
type conclusionPlan struct {
	title       string
	titleEng    *string
	abstract    string
	abstractEng *string
	language    string
	licenseID   *int64

	coSupervisors *[]string
	sdgs          *[]models.ThesisSDG
	keywords      *[]models.ThesisKeyword
	embargoSet    bool
	embargo       *models.ThesisEmbargo
	motivations   []models.ThesisEmbargoMotivation
}

type stagedDocument struct {
	kind   DocumentKind
	staged string
	final  string
}

// Submit moves the caller's thesis to conclusion_requested. Documents are
// written to a staging area first and promoted only after the transaction
// commits; a rolled-back request leaves no file at the final paths.
func (s *ConclusionService) Submit(ctx context.Context, claims *models.JWTClaims, req dto.ConclusionRequest) (*dto.ConclusionResponse, error) {
	defer s.discardInputs(req)

	student, err := requireStudent(ctx, s.refs, claims)
	if err != nil {
		return nil, err
	}
	thesis, err := s.theses.FindActiveByStudent(ctx, nil, student.ID, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "thesis not found")
		}
		return nil, appErrors.Internal(err, "failed to load thesis")
	}
	if !thesis.Status.CanRequestConclusion() {
		return nil, invalidConclusionSource(thesis.Status)
	}

	plan, err := s.buildPlan(ctx, thesis, req)
	if err != nil {
		return nil, err
	}
	if err := s.checkDocuments(ctx, student, req); err != nil {
		return nil, err
	}

	stagingArea, staged, err := s.stageDocuments(student.ID, req)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var previous models.ThesisStatus
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		locked, err := s.theses.FindActiveByStudent(ctx, exec, student.ID, true)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "thesis not found")
			}
			return err
		}
		if locked.ID != thesis.ID || !locked.Status.CanRequestConclusion() {
			return invalidConclusionSource(locked.Status)
		}
		previous = locked.Status

		if err := s.replaceCollections(ctx, exec, locked.ID, plan); err != nil {
			return err
		}
		if err := s.relations.DeleteCoSupervisors(ctx, exec, locked.ID, models.SupervisorScopeDraft); err != nil {
			return err
		}
		old := string(previous)
		if err := s.ledger.Append(ctx, exec, locked.ThesisApplicationID, &old, string(models.ThesisStatusConclusionRequested), now); err != nil {
			return err
		}

		locked.Title = strPtr(plan.title)
		locked.TitleEng = plan.titleEng
		locked.Abstract = strPtr(plan.abstract)
		locked.AbstractEng = plan.abstractEng
		locked.Language = plan.language
		locked.LicenseID = plan.licenseID
		locked.ThesisFilePath = nil
		locked.ThesisResumePath = nil
		locked.AdditionalZipPath = nil
		for _, doc := range staged {
			final := doc.final
			switch doc.kind {
			case DocumentThesis:
				locked.ThesisFilePath = &final
			case DocumentResume:
				locked.ThesisResumePath = &final
			case DocumentAdditional:
				locked.AdditionalZipPath = &final
			}
		}
		locked.Status = models.ThesisStatusConclusionRequested
		locked.ThesisDraftDate = nil
		locked.ThesisConclusionRequestDate = &now
		return s.theses.UpdateConclusion(ctx, exec, locked)
	})
	if err != nil {
		s.scheduleCleanup(stagingArea)
		return nil, asAppError(err, "failed to submit thesis conclusion")
	}

	promoted := s.promote(stagingArea, staged)
	s.metrics.RecordTransition(subjectThesis, string(previous), string(models.ThesisStatusConclusionRequested))
	s.logger.Info("thesis conclusion requested",
		zap.String("thesis_id", thesis.ID),
		zap.String("student_id", student.ID),
		zap.String("from", string(previous)),
		zap.Bool("documents_promoted", promoted))

	return s.readBack(ctx, thesis.ID)
}

func invalidConclusionSource(status models.ThesisStatus) error {
	return appErrors.Clone(appErrors.ErrInvalidTransition,
		fmt.Sprintf("cannot request conclusion for a thesis in status %s", status))
}

func (s *ConclusionService) buildPlan(ctx context.Context, thesis *models.Thesis, req dto.ConclusionRequest) (*conclusionPlan, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Abstract = strings.TrimSpace(req.Abstract)
	req.Language = strings.ToLower(strings.TrimSpace(req.Language))
	if req.Language == "" {
		req.Language = "it"
	}
	req.TitleEng = trimmedOrNil(req.TitleEng)
	req.AbstractEng = trimmedOrNil(req.AbstractEng)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid thesis conclusion payload")
	}

	plan := &conclusionPlan{
		title:       req.Title,
		abstract:    req.Abstract,
		language:    req.Language,
		titleEng:    req.TitleEng,
		abstractEng: req.AbstractEng,
	}
	if plan.language == "en" {
		plan.titleEng = strPtr(plan.title)
		plan.abstractEng = strPtr(plan.abstract)
	} else {
		if plan.titleEng == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "english title is required for non-english theses")
		}
		if plan.abstractEng == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "english abstract is required for non-english theses")
		}
	}

	if req.LicenseID != nil && *req.LicenseID > 0 {
		ok, err := s.refs.LicenseExists(ctx, *req.LicenseID)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load license")
		}
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("license with id %d not found", *req.LicenseID))
		}
		id := *req.LicenseID
		plan.licenseID = &id
	}

	var err error
	if req.CoSupervisors != nil {
		if plan.coSupervisors, err = s.resolveCoSupervisors(ctx, thesis.ID, *req.CoSupervisors); err != nil {
			return nil, err
		}
	}
	if req.SDGs != nil {
		if plan.sdgs, err = s.resolveSDGs(ctx, thesis.ID, *req.SDGs); err != nil {
			return nil, err
		}
	}
	if req.Keywords != nil {
		if plan.keywords, err = s.resolveKeywords(ctx, thesis.ID, *req.Keywords); err != nil {
			return nil, err
		}
	}
	if req.Embargo != nil {
		plan.embargoSet = true
		if plan.embargo, plan.motivations, err = s.resolveEmbargo(ctx, thesis.ID, req.Embargo); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

func (s *ConclusionService) resolveCoSupervisors(ctx context.Context, thesisID string, refs []dto.TeacherRef) (*[]string, error) {
	ids := make([]string, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		id := strings.TrimSpace(ref.ID)
		if id == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "co-supervisor id is required")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return &ids, nil
	}

	links, err := s.relations.ListSupervisors(ctx, thesisID, models.SupervisorScopeLive)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load thesis supervisors")
	}
	for _, link := range links {
		if _, ok := seen[link.TeacherID]; ok && link.IsSupervisor {
			return nil, appErrors.Clone(appErrors.ErrValidation, "supervisor cannot also be a co-supervisor")
		}
	}

	teachers, err := s.refs.TeachersByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load teachers")
	}
	found := make(map[string]struct{}, len(teachers))
	for _, t := range teachers {
		found[t.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("co-supervisor with id %s not found", id))
		}
	}
	return &ids, nil
}

// resolveSDGs collapses repeated goals. The first tag for a goal is kept and
// only a later primary tag overrides its level.
func (s *ConclusionService) resolveSDGs(ctx context.Context, thesisID string, inputs []dto.SDGInput) (*[]models.ThesisSDG, error) {
	tags := make([]models.ThesisSDG, 0, len(inputs))
	index := make(map[int64]int, len(inputs))
	for _, in := range inputs {
		if err := s.validator.Struct(in); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sdg tag")
		}
		if pos, ok := index[in.GoalID]; ok {
			if in.Level != nil && *in.Level == models.SDGLevelPrimary {
				tags[pos].Level = in.Level
			}
			continue
		}
		index[in.GoalID] = len(tags)
		tags = append(tags, models.ThesisSDG{ThesisID: thesisID, GoalID: in.GoalID, Level: in.Level})
	}
	if len(tags) == 0 {
		return &tags, nil
	}

	goalIDs := make([]int64, 0, len(tags))
	for _, tag := range tags {
		goalIDs = append(goalIDs, tag.GoalID)
	}
	existing, err := s.refs.ExistingSDGIDs(ctx, goalIDs)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load sustainable development goals")
	}
	if missing := firstMissing(goalIDs, existing); missing != 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("sustainable development goal with id %d not found", missing))
	}
	return &tags, nil
}

func (s *ConclusionService) resolveKeywords(ctx context.Context, thesisID string, inputs []dto.KeywordInput) (*[]models.ThesisKeyword, error) {
	keywords := make([]models.ThesisKeyword, 0, len(inputs))
	ids := make([]int64, 0, len(inputs))
	seenIDs := map[int64]struct{}{}
	seenText := map[string]struct{}{}
	for _, in := range inputs {
		if in.ID != nil {
			id := *in.ID
			if _, dup := seenIDs[id]; dup {
				continue
			}
			seenIDs[id] = struct{}{}
			ids = append(ids, id)
			keywords = append(keywords, models.ThesisKeyword{ThesisID: thesisID, KeywordID: &id})
			continue
		}
		text := strings.TrimSpace(in.Text)
		if text == "" {
			continue
		}
		if _, dup := seenText[text]; dup {
			continue
		}
		seenText[text] = struct{}{}
		keywords = append(keywords, models.ThesisKeyword{ThesisID: thesisID, KeywordOther: strPtr(text)})
	}
	if len(ids) > 0 {
		existing, err := s.refs.ExistingKeywordIDs(ctx, ids)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load keywords")
		}
		if missing := firstMissing(ids, existing); missing != 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("keyword with id %d not found", missing))
		}
	}
	return &keywords, nil
}

func (s *ConclusionService) resolveEmbargo(ctx context.Context, thesisID string, in *dto.EmbargoInput) (*models.ThesisEmbargo, []models.ThesisEmbargoMotivation, error) {
	in.Duration = strings.TrimSpace(in.Duration)
	if err := s.validator.Struct(in); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "embargo requires a duration and at least one motivation")
	}

	motivations := make([]models.ThesisEmbargoMotivation, 0, len(in.Motivations))
	ids := make([]int64, 0, len(in.Motivations))
	seen := map[int64]struct{}{}
	for _, m := range in.Motivations {
		if _, dup := seen[m.MotivationID]; dup {
			continue
		}
		seen[m.MotivationID] = struct{}{}
		ids = append(ids, m.MotivationID)
		motivations = append(motivations, models.ThesisEmbargoMotivation{
			MotivationID:    m.MotivationID,
			OtherMotivation: trimmedOrNil(m.OtherMotivation),
			Position:        len(motivations),
		})
	}
	existing, err := s.refs.ExistingMotivationIDs(ctx, ids)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to load embargo motivations")
	}
	if missing := firstMissing(ids, existing); missing != 0 {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("embargo motivation with id %d not found", missing))
	}
	return &models.ThesisEmbargo{ThesisID: thesisID, Duration: in.Duration}, motivations, nil
}

func (s *ConclusionService) checkDocuments(ctx context.Context, student *models.Student, req dto.ConclusionRequest) error {
	if req.ThesisFile == nil {
		return appErrors.Clone(appErrors.ErrValidation, "thesis file is required")
	}
	if err := s.checkUpload(req.ThesisFile, "thesis file", mimePDF); err != nil {
		return err
	}
	if req.ThesisResume == nil {
		if s.policy != nil && s.policy.IsResumeRequired(ctx, student) {
			return appErrors.Clone(appErrors.ErrValidation, "thesis resume is required")
		}
	} else if err := s.checkUpload(req.ThesisResume, "thesis resume", mimePDF); err != nil {
		return err
	}
	if req.AdditionalZip != nil {
		if err := s.checkUpload(req.AdditionalZip, "additional archive", mimeZip, mimeZipMicrosoft); err != nil {
			return err
		}
	}
	return nil
}

func (s *ConclusionService) checkUpload(file *models.UploadedFile, label string, allowed ...string) error {
	if file.Path == "" {
		return appErrors.Clone(appErrors.ErrValidation, label+" is required")
	}
	if file.Size > s.cfg.MaxFileSize {
		s.metrics.RecordDocumentRejection("too_large")
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s exceeds the maximum size of %d bytes", label, s.cfg.MaxFileSize))
	}
	mimeType := strings.ToLower(strings.TrimSpace(strings.SplitN(file.MimeType, ";", 2)[0]))
	for _, a := range allowed {
		if mimeType == a {
			return nil
		}
	}
	s.metrics.RecordDocumentRejection("mime_type")
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must be of type %s", label, strings.Join(allowed, " or ")))
}

// stageDocuments writes every upload into a fresh staging area. The thesis
// file goes through the PDF/A check; the others are moved as they are.
func (s *ConclusionService) stageDocuments(studentID string, req dto.ConclusionRequest) (string, []stagedDocument, error) {
	area, err := s.files.NewStagingArea()
	if err != nil {
		return "", nil, appErrors.Internal(err, "failed to prepare upload staging")
	}
	staged := make([]stagedDocument, 0, 3)
	add := func(kind DocumentKind) stagedDocument {
		doc := stagedDocument{
			kind:   kind,
			staged: path.Join(area, conclusionFileName(studentID, kind)),
			final:  ConclusionDocumentPath(studentID, kind),
		}
		staged = append(staged, doc)
		return doc
	}

	thesisDoc := add(DocumentThesis)
	if err := s.documents.AcceptAndStore(req.ThesisFile, thesisDoc.staged); err != nil {
		s.removeStaging(area)
		return "", nil, asAppError(err, "failed to store thesis file")
	}
	if req.ThesisResume != nil {
		doc := add(DocumentResume)
		if err := s.files.MoveIn(req.ThesisResume.Path, doc.staged); err != nil {
			s.removeStaging(area)
			return "", nil, appErrors.Internal(err, "failed to store thesis resume")
		}
	}
	if req.AdditionalZip != nil {
		doc := add(DocumentAdditional)
		if err := s.files.MoveIn(req.AdditionalZip.Path, doc.staged); err != nil {
			s.removeStaging(area)
			return "", nil, appErrors.Internal(err, "failed to store additional archive")
		}
	}
	return area, staged, nil
}

func (s *ConclusionService) replaceCollections(ctx context.Context, exec sqlx.ExtContext, thesisID string, plan *conclusionPlan) error {
	if plan.coSupervisors != nil {
		if err := s.relations.ReplaceCoSupervisors(ctx, exec, thesisID, *plan.coSupervisors); err != nil {
			return err
		}
	}
	if plan.sdgs != nil {
		if err := s.relations.ReplaceSDGs(ctx, exec, thesisID, *plan.sdgs); err != nil {
			return err
		}
	}
	if plan.keywords != nil {
		if err := s.relations.ReplaceKeywords(ctx, exec, thesisID, *plan.keywords); err != nil {
			return err
		}
	}
	if plan.embargoSet {
		if err := s.relations.ReplaceEmbargo(ctx, exec, thesisID, plan.embargo, plan.motivations); err != nil {
			return err
		}
	}
	return nil
}

// promote moves committed documents to their final paths. The row already
// points there, so when any move fails the staging area is kept as the only
// copy and its path is logged for an operator to finish the move.
func (s *ConclusionService) promote(area string, staged []stagedDocument) bool {
	failed := 0
	for _, doc := range staged {
		if err := s.files.Promote(doc.staged, doc.final); err != nil {
			failed++
			s.logger.Error("failed to promote conclusion document",
				zap.String("kind", string(doc.kind)), zap.String("staged", doc.staged), zap.String("final", doc.final), zap.Error(err))
		}
	}
	if failed > 0 {
		s.metrics.RecordStagingCleanup("retained")
		s.logger.Error("staging area retained after failed promotion", zap.String("staging", area), zap.Int("failed", failed))
		return false
	}
	s.removeStaging(area)
	return true
}

// scheduleCleanup hands a rolled-back staging area to the cleanup queue, or
// removes it inline when the queue is unavailable.
func (s *ConclusionService) scheduleCleanup(area string) {
	if area == "" {
		return
	}
	if s.cleanup != nil {
		err := s.cleanup.TryEnqueue(jobs.Job{ID: uuid.NewString(), Type: StagingCleanupJob, Payload: area})
		if err == nil {
			s.metrics.RecordStagingCleanup("queued")
			return
		}
		s.logger.Warn("cleanup queue unavailable, removing staging inline", zap.String("staging", area), zap.Error(err))
	}
	s.metrics.RecordStagingCleanup("inline")
	s.removeStaging(area)
}

func (s *ConclusionService) removeStaging(area string) {
	if err := s.files.RemoveAll(area); err != nil {
		s.logger.Warn("failed to remove staging area", zap.String("staging", area), zap.Error(err))
	}
}

// discardInputs drops any upload temp file still on disk.
func (s *ConclusionService) discardInputs(req dto.ConclusionRequest) {
	for _, file := range []*models.UploadedFile{req.ThesisFile, req.ThesisResume, req.AdditionalZip} {
		if file == nil {
			continue
		}
		if err := storage.RemoveFile(file.Path); err != nil {
			s.logger.Warn("failed to remove upload temp file", zap.String("path", file.Path), zap.Error(err))
		}
	}
}

func (s *ConclusionService) readBack(ctx context.Context, thesisID string) (*dto.ConclusionResponse, error) {
	var (
		thesis      *models.Thesis
		supervisors []models.ThesisSupervisorLink
		sdgs        []models.ThesisSDG
		keywords    []models.ThesisKeyword
		embargo     *models.ThesisEmbargo
		motivations []models.ThesisEmbargoMotivation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		thesis, err = s.theses.FindByID(gctx, thesisID)
		return err
	})
	g.Go(func() error {
		var err error
		supervisors, err = s.relations.ListSupervisors(gctx, thesisID, models.SupervisorScopeLive)
		return err
	})
	g.Go(func() error {
		var err error
		sdgs, err = s.relations.ListSDGs(gctx, thesisID)
		return err
	})
	g.Go(func() error {
		var err error
		keywords, err = s.relations.ListKeywords(gctx, thesisID)
		return err
	})
	g.Go(func() error {
		var err error
		embargo, motivations, err = s.relations.FindEmbargo(gctx, thesisID)
		if errors.Is(err, sql.ErrNoRows) {
			embargo, motivations = nil, nil
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.Internal(err, "failed to load submitted thesis")
	}

	resp := &dto.ConclusionResponse{
		ID:                               thesis.ID,
		Topic:                            thesis.Topic,
		Title:                            thesis.Title,
		TitleEng:                         thesis.TitleEng,
		Language:                         thesis.Language,
		Abstract:                         thesis.Abstract,
		AbstractEng:                      thesis.AbstractEng,
		ThesisFilePath:                   thesis.ThesisFilePath,
		ThesisResumePath:                 thesis.ThesisResumePath,
		AdditionalZipPath:                thesis.AdditionalZipPath,
		LicenseID:                        thesis.LicenseID,
		CompanyID:                        thesis.CompanyID,
		StudentID:                        thesis.StudentID,
		ThesisApplicationID:              thesis.ThesisApplicationID,
		Status:                           thesis.Status,
		ThesisStartDate:                  thesis.ThesisStartDate,
		ThesisConclusionRequestDate:      thesis.ThesisConclusionRequestDate,
		ThesisConclusionConfirmationDate: thesis.ThesisConclusionConfirmationDate,
		Supervisors:                      make([]dto.ConclusionSupervisor, 0, len(supervisors)),
		SDGs:                             make([]dto.ConclusionSDG, 0, len(sdgs)),
		Keywords:                         make([]dto.ConclusionKeyword, 0, len(keywords)),
	}
	for _, link := range supervisors {
		resp.Supervisors = append(resp.Supervisors, dto.ConclusionSupervisor{TeacherID: link.TeacherID, IsSupervisor: link.IsSupervisor})
	}
	for _, tag := range sdgs {
		resp.SDGs = append(resp.SDGs, dto.ConclusionSDG{GoalID: tag.GoalID, Level: tag.Level})
	}
	for _, kw := range keywords {
		resp.Keywords = append(resp.Keywords, dto.ConclusionKeyword{KeywordID: kw.KeywordID, KeywordOther: kw.KeywordOther})
	}
	if embargo != nil {
		resp.Embargo = &dto.ConclusionEmbargo{ID: embargo.ID, Duration: embargo.Duration, Motivations: make([]dto.ConclusionMotivation, 0, len(motivations))}
		for _, m := range motivations {
			resp.Embargo.Motivations = append(resp.Embargo.Motivations, dto.ConclusionMotivation{MotivationID: m.MotivationID, OtherMotivation: m.OtherMotivation})
		}
	}
	return resp, nil
}

// NewStagingCleanupHandler removes the staging area named by a cleanup job.
func NewStagingCleanupHandler(files interface{ RemoveAll(rel string) error }, logger *zap.Logger) jobs.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, job jobs.Job) error {
		area, ok := job.Payload.(string)
		if !ok || area == "" {
			logger.Error("invalid staging cleanup payload", zap.String("job_id", job.ID))
			return nil
		}
		if err := files.RemoveAll(area); err != nil {
			return fmt.Errorf("remove staging %s: %w", area, err)
		}
		logger.Debug("staging area removed", zap.String("staging", area))
		return nil
	}
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// firstMissing returns the first id of want absent from have, or 0.
func firstMissing(want, have []int64) int64 {
	found := make(map[int64]struct{}, len(have))
	for _, id := range have {
		found[id] = struct{}{}
	}
	for _, id := range want {
		if _, ok := found[id]; !ok {
			return id
		}
	}
	return 0
}
