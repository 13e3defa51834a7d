package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/thesis-lifecycle-api/internal/dto"
	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/thesis-lifecycle-api/pkg/errors"
	"github.com/noah-isme/thesis-lifecycle-api/pkg/jobs"
	"github.com/noah-isme/thesis-lifecycle-api/pkg/storage"
)

var archivalPDF = []byte("%PDF-1.7\n<x:xmpmeta><pdfaid:part>2</pdfaid:part><pdfaid:conformance>B</pdfaid:conformance></x:xmpmeta>\n%%EOF")

type recordingScheduler struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (r *recordingScheduler) TryEnqueue(job jobs.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, job)
	return nil
}

type conclusionFixture struct {
	db        *memoryDB
	files     *storage.LocalStorage
	uploads   string
	scheduler *recordingScheduler
	svc       *ConclusionService
}

func newConclusionFixture(t *testing.T) *conclusionFixture {
	t.Helper()
	db := newMemoryDB()
	db.students["s1"] = models.Student{ID: "s1", DegreeID: strPtr("deg-inf")}
	db.students["s2"] = models.Student{ID: "s2", DegreeID: strPtr("deg-med")}
	db.collegi["deg-inf"] = "CL001"
	db.collegi["deg-med"] = "CL003"
	for _, id := range []string{"t1", "t2", "t3"} {
		db.teachers[id] = models.Teacher{ID: id}
	}
	for id := int64(1); id <= 17; id++ {
		db.goals[id] = true
	}
	db.keywords[10] = true
	db.keywords[11] = true
	db.motivations[6] = true
	db.motivations[7] = true
	db.licenses[1] = true
	db.theses = []models.Thesis{
		{ID: "th1", StudentID: "s1", ThesisApplicationID: "a1", Topic: "Compilers", Language: "it", Status: models.ThesisStatusOngoing, ThesisStartDate: time.Now().Add(-90 * 24 * time.Hour)},
		{ID: "th2", StudentID: "s2", ThesisApplicationID: "a2", Topic: "Imaging", Language: "it", Status: models.ThesisStatusOngoing, ThesisStartDate: time.Now().Add(-90 * 24 * time.Hour)},
	}
	db.thesisLinks = []models.ThesisSupervisorLink{
		{ThesisID: "th1", TeacherID: "t1", IsSupervisor: true, Scope: models.SupervisorScopeLive},
		{ThesisID: "th1", TeacherID: "t3", Scope: models.SupervisorScopeDraft},
	}

	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	f := &conclusionFixture{db: db, files: files, uploads: t.TempDir(), scheduler: &recordingScheduler{}}
	f.rebuild(files, memoryRelations{db})
	return f
}

// rebuild rewires the service over the fixture's store with the given file
// storage and relation store.
func (f *conclusionFixture) rebuild(files stagingStorage, relations conclusionRelationStore) {
	history := NewStatusHistoryService(memoryHistory{f.db}, memoryApps{f.db}, nil)
	policy := NewResumePolicyService(memoryRefs{f.db}, nil, nil)
	documents := NewDocumentService(nil, f.files, nil, nil)
	f.svc = NewConclusionService(&memoryTx{db: f.db}, memoryTheses{f.db}, relations, memoryRefs{f.db}, history, policy, documents, files, f.scheduler, NewMetricsService(), nil, nil, ConclusionServiceConfig{MaxFileSize: 1 << 20})
}

type failingPromotion struct {
	*storage.LocalStorage
}

func (failingPromotion) Promote(fromRel, toRel string) error {
	return errors.New("disk full")
}

type noRowEmbargo struct {
	memoryRelations
}

func (noRowEmbargo) FindEmbargo(ctx context.Context, thesisID string) (*models.ThesisEmbargo, []models.ThesisEmbargoMotivation, error) {
	return nil, nil, sql.ErrNoRows
}

func (f *conclusionFixture) upload(t *testing.T, name, mimeType string, data []byte) *models.UploadedFile {
	t.Helper()
	path := filepath.Join(f.uploads, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return &models.UploadedFile{Path: path, MimeType: mimeType, OriginalName: name, Size: int64(len(data))}
}

func (f *conclusionFixture) request(t *testing.T) dto.ConclusionRequest {
	return dto.ConclusionRequest{
		Title:       "Verified compilation",
		TitleEng:    strPtr("Verified compilation"),
		Abstract:    "Un compilatore verificato.",
		AbstractEng: strPtr("A verified compiler."),
		Language:    "it",
		ThesisFile:  f.upload(t, "thesis.pdf", "application/pdf", archivalPDF),
	}
}

func (f *conclusionFixture) thesis(id string) models.Thesis {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, th := range f.db.theses {
		if th.ID == id {
			return th
		}
	}
	return models.Thesis{}
}

func (f *conclusionFixture) setStatus(id string, status models.ThesisStatus) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for i := range f.db.theses {
		if f.db.theses[i].ID == id {
			f.db.theses[i].Status = status
		}
	}
}

func (f *conclusionFixture) stagingEntries(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(f.files.BaseDir(), storage.StagingRoot))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return entries
}

func TestSubmitConclusionHappyPath(t *testing.T) {
	f := newConclusionFixture(t)
	req := f.request(t)
	req.ThesisResume = f.upload(t, "resume.pdf", "application/pdf", []byte("%PDF-1.4 resume"))
	req.AdditionalZip = f.upload(t, "extra.zip", "application/x-zip-compressed", []byte("PK\x03\x04"))
	req.LicenseID = int64Ptr(1)
	req.CoSupervisors = &[]dto.TeacherRef{{ID: "t2"}, {ID: "t2"}}
	req.Keywords = &[]dto.KeywordInput{{ID: int64Ptr(10)}, {Text: "  type theory "}, {Text: "type theory"}, {Text: "   "}}

	resp, err := f.svc.Submit(context.Background(), studentClaims("s1"), req)
	require.NoError(t, err)

	assert.Equal(t, models.ThesisStatusConclusionRequested, resp.Status)
	require.NotNil(t, resp.ThesisConclusionRequestDate)
	assert.Equal(t, "uploads/thesis_conclusion_request/s1/thesis_s1.pdf", *resp.ThesisFilePath)
	assert.Equal(t, "uploads/thesis_conclusion_request/s1/resume_s1.pdf", *resp.ThesisResumePath)
	assert.Equal(t, "uploads/thesis_conclusion_request/s1/additional_s1.zip", *resp.AdditionalZipPath)
	assert.Equal(t, int64(1), *resp.LicenseID)
	assert.Len(t, resp.Supervisors, 2)
	require.Len(t, resp.Keywords, 2)
	assert.Equal(t, "type theory", *resp.Keywords[1].KeywordOther)

	stored, err := os.ReadFile(filepath.Join(f.files.BaseDir(), *resp.ThesisFilePath))
	require.NoError(t, err)
	assert.Equal(t, archivalPDF, stored)
	for _, p := range []string{req.ThesisFile.Path, req.ThesisResume.Path, req.AdditionalZip.Path} {
		assert.NoFileExists(t, p)
	}
	assert.Empty(t, f.stagingEntries(t))

	history := f.db.historyFor("a1")
	require.Len(t, history, 1)
	require.NotNil(t, history[0].OldStatus)
	assert.Equal(t, "ongoing", *history[0].OldStatus)
	assert.Equal(t, "conclusion_requested", history[0].NewStatus)

	drafts, err := memoryRelations{f.db}.ListSupervisors(context.Background(), "th1", models.SupervisorScopeDraft)
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestSubmitConclusionSourceStatuses(t *testing.T) {
	cases := []struct {
		status  models.ThesisStatus
		allowed bool
	}{
		{models.ThesisStatusOngoing, true},
		{models.ThesisStatusConclusionRejected, true},
		{models.ThesisStatusConclusionRequested, false},
		{models.ThesisStatusConclusionApproved, false},
		{models.ThesisStatusCancelRequested, false},
		{models.ThesisStatusDone, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(string(tc.status), func(t *testing.T) {
			f := newConclusionFixture(t)
			f.setStatus("th1", tc.status)
			req := f.request(t)

			_, err := f.svc.Submit(context.Background(), studentClaims("s1"), req)
			if tc.allowed {
				require.NoError(t, err)
				history := f.db.historyFor("a1")
				require.Len(t, history, 1)
				assert.Equal(t, string(tc.status), *history[0].OldStatus)
				return
			}
			assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)
			assert.Empty(t, f.db.history)
			assert.NoFileExists(t, req.ThesisFile.Path)
		})
	}
}

func TestSubmitConclusionWithoutThesis(t *testing.T) {
	f := newConclusionFixture(t)
	f.db.students["s3"] = models.Student{ID: "s3"}

	_, err := f.svc.Submit(context.Background(), studentClaims("s3"), f.request(t))
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestSubmitConclusionDeduplicatesSDGsPreferringPrimary(t *testing.T) {
	f := newConclusionFixture(t)
	primary := models.SDGLevelPrimary
	secondary := models.SDGLevelSecondary
	req := f.request(t)
	req.SDGs = &[]dto.SDGInput{{GoalID: 1, Level: &secondary}, {GoalID: 1, Level: &primary}, {GoalID: 4, Level: &secondary}}

	resp, err := f.svc.Submit(context.Background(), studentClaims("s1"), req)
	require.NoError(t, err)

	require.Len(t, resp.SDGs, 2)
	assert.Equal(t, int64(1), resp.SDGs[0].GoalID)
	assert.Equal(t, models.SDGLevelPrimary, *resp.SDGs[0].Level)
	assert.Equal(t, int64(4), resp.SDGs[1].GoalID)
}

func TestSubmitConclusionReplacesEmbargo(t *testing.T) {
	f := newConclusionFixture(t)
	first := f.request(t)
	first.Embargo = &dto.EmbargoInput{Duration: "12", Motivations: []dto.MotivationInput{{MotivationID: 6}}}
	_, err := f.svc.Submit(context.Background(), studentClaims("s1"), first)
	require.NoError(t, err)

	f.setStatus("th1", models.ThesisStatusConclusionRejected)
	second := f.request(t)
	second.Embargo = &dto.EmbargoInput{Duration: "18", Motivations: []dto.MotivationInput{{MotivationID: 7, OtherMotivation: strPtr("  patent pending ")}}}
	resp, err := f.svc.Submit(context.Background(), studentClaims("s1"), second)
	require.NoError(t, err)

	require.NotNil(t, resp.Embargo)
	assert.Equal(t, "18", resp.Embargo.Duration)
	require.Len(t, resp.Embargo.Motivations, 1)
	assert.Equal(t, int64(7), resp.Embargo.Motivations[0].MotivationID)
	assert.Equal(t, "patent pending", *resp.Embargo.Motivations[0].OtherMotivation)
	assert.Len(t, f.db.embargoes, 1)
	assert.Len(t, f.db.embargoMotivations, 1)
	assert.Len(t, f.db.historyFor("a1"), 2)
}

func TestSubmitConclusionNullCollectionsAreKept(t *testing.T) {
	f := newConclusionFixture(t)
	first := f.request(t)
	first.Keywords = &[]dto.KeywordInput{{ID: int64Ptr(10)}}
	first.SDGs = &[]dto.SDGInput{{GoalID: 3}}
	_, err := f.svc.Submit(context.Background(), studentClaims("s1"), first)
	require.NoError(t, err)

	f.setStatus("th1", models.ThesisStatusConclusionRejected)
	second := f.request(t)
	second.Keywords = &[]dto.KeywordInput{}
	resp, err := f.svc.Submit(context.Background(), studentClaims("s1"), second)
	require.NoError(t, err)

	assert.Empty(t, resp.Keywords)
	assert.Len(t, resp.SDGs, 1)
}

func TestSubmitConclusionValidation(t *testing.T) {
	cases := []struct {
		name    string
		student string
		mutate  func(*testing.T, *conclusionFixture, *dto.ConclusionRequest)
		want    error
	}{
		{
			name: "missing english translation",
			mutate: func(t *testing.T, f *conclusionFixture, r *dto.ConclusionRequest) {
				r.TitleEng = strPtr("   ")
			},
			want: appErrors.ErrValidation,
		},
		{
			name: "missing thesis file",
			mutate: func(t *testing.T, f *conclusionFixture, r *dto.ConclusionRequest) {
				r.ThesisFile = nil
			},
			want: appErrors.ErrValidation,
		},
		{
			name:    "required resume missing",
			student: "s2",
			mutate:  func(t *testing.T, f *conclusionFixture, r *dto.ConclusionRequest) {},
			want:    appErrors.ErrValidation,
		},
		{
			name: "thesis file not a pdf",
			mutate: func(t *testing.T, f *conclusionFixture, r *dto.ConclusionRequest) {
				r.ThesisFile = f.upload(t, "thesis.docx", "application/msword", []byte("doc"))
			},
			want: appErrors.ErrValidation,
		},
		{
			name: "thesis file not archival",
			mutate: func(t *testing.T, f *conclusionFixture, r *dto.ConclusionRequest) {
				r.ThesisFile = f.upload(t, "plain.pdf", "application/pdf", []byte("%PDF-1.4 plain"))
			},
			want: appErrors.ErrInvalidDocument,
		},
		{
			name: "file too large",
			mutate: func(t *testing.T, f *conclusionFixture, r *dto.ConclusionRequest) {
				r.ThesisFile.Size = 2 << 20
			},
			want: appErrors.ErrValidation,
		},
		{
			name: "unknown license",
			mutate: func(t *testing.T, f *conclusionFixture, r *dto.ConclusionRequest) {
				r.LicenseID = int64Ptr(99)
			},
			want: appErrors.ErrValidation,
		},
		{
			name: "supervisor as co-supervisor",
			mutate: func(t *testing.T, f *conclusionFixture, r *dto.ConclusionRequest) {
				r.CoSupervisors = &[]dto.TeacherRef{{ID: "t1"}}
			},
			want: appErrors.ErrValidation,
		},
		{
			name: "unknown keyword",
			mutate: func(t *testing.T, f *conclusionFixture, r *dto.ConclusionRequest) {
				r.Keywords = &[]dto.KeywordInput{{ID: int64Ptr(404)}}
			},
			want: appErrors.ErrValidation,
		},
		{
			name: "invalid sdg level",
			mutate: func(t *testing.T, f *conclusionFixture, r *dto.ConclusionRequest) {
				level := models.SDGLevel("tertiary")
				r.SDGs = &[]dto.SDGInput{{GoalID: 2, Level: &level}}
			},
			want: appErrors.ErrValidation,
		},
		{
			name: "embargo without motivations",
			mutate: func(t *testing.T, f *conclusionFixture, r *dto.ConclusionRequest) {
				r.Embargo = &dto.EmbargoInput{Duration: "12"}
			},
			want: appErrors.ErrValidation,
		},
		{
			name: "unknown embargo motivation",
			mutate: func(t *testing.T, f *conclusionFixture, r *dto.ConclusionRequest) {
				r.Embargo = &dto.EmbargoInput{Duration: "12", Motivations: []dto.MotivationInput{{MotivationID: 99}}}
			},
			want: appErrors.ErrValidation,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			f := newConclusionFixture(t)
			student := tc.student
			if student == "" {
				student = "s1"
			}
			req := f.request(t)
			tc.mutate(t, f, &req)

			_, err := f.svc.Submit(context.Background(), studentClaims(student), req)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, f.db.history)
			assert.Equal(t, models.ThesisStatusOngoing, f.thesis("th1").Status)
			if req.ThesisFile != nil {
				assert.NoFileExists(t, req.ThesisFile.Path)
			}
			assert.Empty(t, f.stagingEntries(t))
		})
	}
}

func TestSubmitConclusionEnglishMirrorsNativeText(t *testing.T) {
	f := newConclusionFixture(t)
	req := f.request(t)
	req.Language = "en"
	req.TitleEng = nil
	req.AbstractEng = nil

	resp, err := f.svc.Submit(context.Background(), studentClaims("s1"), req)
	require.NoError(t, err)
	assert.Equal(t, req.Title, *resp.TitleEng)
	assert.Equal(t, req.Abstract, *resp.AbstractEng)
}

func TestSubmitConclusionRollsBackAndSchedulesCleanup(t *testing.T) {
	f := newConclusionFixture(t)
	f.db.failOn("ReplaceKeywords", errors.New("connection reset"))
	req := f.request(t)
	req.Keywords = &[]dto.KeywordInput{{Text: "compilers"}}
	req.Embargo = &dto.EmbargoInput{Duration: "12", Motivations: []dto.MotivationInput{{MotivationID: 6}}}

	_, err := f.svc.Submit(context.Background(), studentClaims("s1"), req)
	require.ErrorIs(t, err, appErrors.ErrInternal)

	th := f.thesis("th1")
	assert.Equal(t, models.ThesisStatusOngoing, th.Status)
	assert.Nil(t, th.ThesisFilePath)
	assert.Empty(t, f.db.history)
	assert.Empty(t, f.db.embargoes)
	assert.NoFileExists(t, filepath.Join(f.files.BaseDir(), ConclusionDocumentPath("s1", DocumentThesis)))
	assert.NoFileExists(t, req.ThesisFile.Path)

	require.Len(t, f.scheduler.jobs, 1)
	job := f.scheduler.jobs[0]
	assert.Equal(t, StagingCleanupJob, job.Type)
	require.NoError(t, NewStagingCleanupHandler(f.files, nil)(context.Background(), job))
	assert.Empty(t, f.stagingEntries(t))
}

func TestSubmitConclusionRemovesStagingInlineWhenQueueUnavailable(t *testing.T) {
	f := newConclusionFixture(t)
	f.scheduler.err = jobs.ErrQueueFull
	f.db.failOn("UpdateConclusion", errors.New("serialization failure"))

	_, err := f.svc.Submit(context.Background(), studentClaims("s1"), f.request(t))
	require.Error(t, err)
	assert.Empty(t, f.stagingEntries(t))
}

func TestSubmitConclusionKeepsFirstSDGUnlessPrimaryFollows(t *testing.T) {
	f := newConclusionFixture(t)
	secondary := models.SDGLevelSecondary
	req := f.request(t)
	req.SDGs = &[]dto.SDGInput{{GoalID: 2}, {GoalID: 2, Level: &secondary}, {GoalID: 5, Level: &secondary}, {GoalID: 5}}

	resp, err := f.svc.Submit(context.Background(), studentClaims("s1"), req)
	require.NoError(t, err)

	require.Len(t, resp.SDGs, 2)
	assert.Equal(t, int64(2), resp.SDGs[0].GoalID)
	assert.Nil(t, resp.SDGs[0].Level)
	require.NotNil(t, resp.SDGs[1].Level)
	assert.Equal(t, models.SDGLevelSecondary, *resp.SDGs[1].Level)
}

func TestSubmitConclusionWithoutEmbargoRowSucceeds(t *testing.T) {
	f := newConclusionFixture(t)
	f.rebuild(f.files, noRowEmbargo{memoryRelations{f.db}})

	resp, err := f.svc.Submit(context.Background(), studentClaims("s1"), f.request(t))
	require.NoError(t, err)
	assert.Equal(t, models.ThesisStatusConclusionRequested, resp.Status)
	assert.Nil(t, resp.Embargo)
}

func TestSubmitConclusionRetainsStagingWhenPromotionFails(t *testing.T) {
	f := newConclusionFixture(t)
	f.rebuild(failingPromotion{f.files}, memoryRelations{f.db})

	resp, err := f.svc.Submit(context.Background(), studentClaims("s1"), f.request(t))
	require.NoError(t, err)
	assert.Equal(t, models.ThesisStatusConclusionRequested, f.thesis("th1").Status)
	assert.NoFileExists(t, filepath.Join(f.files.BaseDir(), *resp.ThesisFilePath))

	entries := f.stagingEntries(t)
	require.Len(t, entries, 1)
	staged, err := os.ReadFile(filepath.Join(f.files.BaseDir(), storage.StagingRoot, entries[0].Name(), "thesis_s1.pdf"))
	require.NoError(t, err)
	assert.Equal(t, archivalPDF, staged)
	assert.Empty(t, f.scheduler.jobs)
}

func int64Ptr(v int64) *int64 {
	return &v
}
