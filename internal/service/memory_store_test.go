package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
	"github.com/noah-isme/thesis-lifecycle-api/internal/repository"
)

// memoryDB backs the service tests. Reference tables are fixed at setup;
// mutable tables are snapshotted by memoryTx so a failed transaction leaves
// no trace.
type memoryDB struct {
	mu sync.Mutex

	students    map[string]models.Student
	teachers    map[string]models.Teacher
	companies   map[string]models.Company
	proposals   map[string]models.ThesisProposal
	keywords    map[int64]bool
	goals       map[int64]bool
	motivations map[int64]bool
	licenses    map[int64]bool
	collegi     map[string]string

	apps               []models.ThesisApplication
	appLinks           []models.ApplicationSupervisorLink
	theses             []models.Thesis
	thesisLinks        []models.ThesisSupervisorLink
	thesisSDGs         []models.ThesisSDG
	thesisKeywords     []models.ThesisKeyword
	embargoes          []models.ThesisEmbargo
	embargoMotivations []models.ThesisEmbargoMotivation
	history            []models.StatusHistoryEntry

	failures map[string]error
}

type memorySnapshot struct {
	apps               []models.ThesisApplication
	appLinks           []models.ApplicationSupervisorLink
	theses             []models.Thesis
	thesisLinks        []models.ThesisSupervisorLink
	thesisSDGs         []models.ThesisSDG
	thesisKeywords     []models.ThesisKeyword
	embargoes          []models.ThesisEmbargo
	embargoMotivations []models.ThesisEmbargoMotivation
	history            []models.StatusHistoryEntry
}

func newMemoryDB() *memoryDB {
	return &memoryDB{
		students:    map[string]models.Student{},
		teachers:    map[string]models.Teacher{},
		companies:   map[string]models.Company{},
		proposals:   map[string]models.ThesisProposal{},
		keywords:    map[int64]bool{},
		goals:       map[int64]bool{},
		motivations: map[int64]bool{},
		licenses:    map[int64]bool{},
		collegi:     map[string]string{},
		failures:    map[string]error{},
	}
}

func (db *memoryDB) failOn(method string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failures[method] = err
}

func (db *memoryDB) failure(method string) error {
	return db.failures[method]
}

func (db *memoryDB) snapshot() memorySnapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	return memorySnapshot{
		apps:               append([]models.ThesisApplication(nil), db.apps...),
		appLinks:           append([]models.ApplicationSupervisorLink(nil), db.appLinks...),
		theses:             append([]models.Thesis(nil), db.theses...),
		thesisLinks:        append([]models.ThesisSupervisorLink(nil), db.thesisLinks...),
		thesisSDGs:         append([]models.ThesisSDG(nil), db.thesisSDGs...),
		thesisKeywords:     append([]models.ThesisKeyword(nil), db.thesisKeywords...),
		embargoes:          append([]models.ThesisEmbargo(nil), db.embargoes...),
		embargoMotivations: append([]models.ThesisEmbargoMotivation(nil), db.embargoMotivations...),
		history:            append([]models.StatusHistoryEntry(nil), db.history...),
	}
}

func (db *memoryDB) restore(s memorySnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.apps = s.apps
	db.appLinks = s.appLinks
	db.theses = s.theses
	db.thesisLinks = s.thesisLinks
	db.thesisSDGs = s.thesisSDGs
	db.thesisKeywords = s.thesisKeywords
	db.embargoes = s.embargoes
	db.embargoMotivations = s.embargoMotivations
	db.history = s.history
}

func (db *memoryDB) historyFor(subjectID string) []models.StatusHistoryEntry {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []models.StatusHistoryEntry
	for _, e := range db.history {
		if e.ThesisApplicationID == subjectID {
			out = append(out, e)
		}
	}
	return out
}

// memoryTx serialises transactions the way row locks serialise them in
// Postgres and restores the snapshot on error.
type memoryTx struct {
	mu sync.Mutex
	db *memoryDB
}

func (t *memoryTx) WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.db.snapshot()
	if err := fn(nil); err != nil {
		t.db.restore(snap)
		return err
	}
	return nil
}

type memoryApps struct{ db *memoryDB }

func (m memoryApps) ListByStudentAndStatuses(ctx context.Context, exec sqlx.ExtContext, studentID string, statuses []models.ApplicationStatus) ([]models.ThesisApplication, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if err := m.db.failure("ListByStudentAndStatuses"); err != nil {
		return nil, err
	}
	var out []models.ThesisApplication
	for _, app := range m.db.apps {
		if app.StudentID != studentID {
			continue
		}
		for _, st := range statuses {
			if app.Status == st {
				out = append(out, app)
			}
		}
	}
	return out, nil
}

func (m memoryApps) Create(ctx context.Context, exec sqlx.ExtContext, app *models.ThesisApplication) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if err := m.db.failure("Create"); err != nil {
		return err
	}
	for _, existing := range m.db.apps {
		if existing.StudentID == app.StudentID && existing.Status == models.ApplicationStatusPending && app.Status == models.ApplicationStatusPending {
			return fmt.Errorf("insert thesis application: %w", repository.ErrUniqueViolation)
		}
	}
	m.db.apps = append(m.db.apps, *app)
	return nil
}

func (m memoryApps) FindByID(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.ThesisApplication, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, app := range m.db.apps {
		if app.ID == id {
			found := app
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m memoryApps) List(ctx context.Context) ([]models.ThesisApplication, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := append([]models.ThesisApplication(nil), m.db.apps...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmissionDate.After(out[j].SubmissionDate) })
	return out, nil
}

func (m memoryApps) FindLastByStudent(ctx context.Context, studentID string) (*models.ThesisApplication, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var last *models.ThesisApplication
	for i := range m.db.apps {
		app := m.db.apps[i]
		if app.StudentID != studentID {
			continue
		}
		if last == nil || !app.SubmissionDate.Before(last.SubmissionDate) {
			last = &app
		}
	}
	if last == nil {
		return nil, sql.ErrNoRows
	}
	return last, nil
}

func (m memoryApps) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ApplicationStatus) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if err := m.db.failure("UpdateStatus"); err != nil {
		return err
	}
	for i := range m.db.apps {
		if m.db.apps[i].ID == id {
			m.db.apps[i].Status = status
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m memoryApps) CreateSupervisorLinks(ctx context.Context, exec sqlx.ExtContext, links []models.ApplicationSupervisorLink) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if err := m.db.failure("CreateSupervisorLinks"); err != nil {
		return err
	}
	m.db.appLinks = append(m.db.appLinks, links...)
	return nil
}

func (m memoryApps) ListSupervisorLinks(ctx context.Context, applicationIDs []string) ([]models.ApplicationSupervisorLink, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	wanted := map[string]bool{}
	for _, id := range applicationIDs {
		wanted[id] = true
	}
	var out []models.ApplicationSupervisorLink
	for _, link := range m.db.appLinks {
		if wanted[link.ThesisApplicationID] {
			out = append(out, link)
		}
	}
	return out, nil
}

type memoryTheses struct{ db *memoryDB }

func (m memoryTheses) FindByApplicationID(ctx context.Context, exec sqlx.ExtContext, applicationID string) (*models.Thesis, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, thesis := range m.db.theses {
		if thesis.ThesisApplicationID == applicationID {
			found := thesis
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m memoryTheses) FindActiveByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string, forUpdate bool) (*models.Thesis, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, thesis := range m.db.theses {
		if thesis.StudentID == studentID && thesis.Status != models.ThesisStatusCancelApproved {
			found := thesis
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m memoryTheses) FindByID(ctx context.Context, id string) (*models.Thesis, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, thesis := range m.db.theses {
		if thesis.ID == id {
			found := thesis
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m memoryTheses) UpdateConclusion(ctx context.Context, exec sqlx.ExtContext, thesis *models.Thesis) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if err := m.db.failure("UpdateConclusion"); err != nil {
		return err
	}
	for i := range m.db.theses {
		if m.db.theses[i].ID == thesis.ID {
			m.db.theses[i] = *thesis
			return nil
		}
	}
	return sql.ErrNoRows
}

type memoryRelations struct{ db *memoryDB }

func (m memoryRelations) DeleteCoSupervisors(ctx context.Context, exec sqlx.ExtContext, thesisID string, scope models.SupervisorScope) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	kept := m.db.thesisLinks[:0:0]
	for _, link := range m.db.thesisLinks {
		if link.ThesisID == thesisID && !link.IsSupervisor && link.Scope == scope {
			continue
		}
		kept = append(kept, link)
	}
	m.db.thesisLinks = kept
	return nil
}

func (m memoryRelations) ReplaceCoSupervisors(ctx context.Context, exec sqlx.ExtContext, thesisID string, teacherIDs []string) error {
	if err := m.DeleteCoSupervisors(ctx, exec, thesisID, models.SupervisorScopeLive); err != nil {
		return err
	}
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, id := range teacherIDs {
		m.db.thesisLinks = append(m.db.thesisLinks, models.ThesisSupervisorLink{ThesisID: thesisID, TeacherID: id, Scope: models.SupervisorScopeLive})
	}
	return nil
}

func (m memoryRelations) ReplaceSDGs(ctx context.Context, exec sqlx.ExtContext, thesisID string, sdgs []models.ThesisSDG) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	kept := m.db.thesisSDGs[:0:0]
	for _, tag := range m.db.thesisSDGs {
		if tag.ThesisID != thesisID {
			kept = append(kept, tag)
		}
	}
	m.db.thesisSDGs = append(kept, sdgs...)
	return nil
}

func (m memoryRelations) ReplaceKeywords(ctx context.Context, exec sqlx.ExtContext, thesisID string, keywords []models.ThesisKeyword) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if err := m.db.failure("ReplaceKeywords"); err != nil {
		return err
	}
	kept := m.db.thesisKeywords[:0:0]
	for _, kw := range m.db.thesisKeywords {
		if kw.ThesisID != thesisID {
			kept = append(kept, kw)
		}
	}
	m.db.thesisKeywords = append(kept, keywords...)
	return nil
}

func (m memoryRelations) ReplaceEmbargo(ctx context.Context, exec sqlx.ExtContext, thesisID string, embargo *models.ThesisEmbargo, motivations []models.ThesisEmbargoMotivation) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	removed := map[string]bool{}
	keptEmbargoes := m.db.embargoes[:0:0]
	for _, e := range m.db.embargoes {
		if e.ThesisID == thesisID {
			removed[e.ID] = true
			continue
		}
		keptEmbargoes = append(keptEmbargoes, e)
	}
	keptMotivations := m.db.embargoMotivations[:0:0]
	for _, mo := range m.db.embargoMotivations {
		if !removed[mo.ThesisEmbargoID] {
			keptMotivations = append(keptMotivations, mo)
		}
	}
	m.db.embargoes = keptEmbargoes
	m.db.embargoMotivations = keptMotivations
	if embargo == nil {
		return nil
	}
	stored := *embargo
	stored.ID = uuid.NewString()
	stored.ThesisID = thesisID
	m.db.embargoes = append(m.db.embargoes, stored)
	for _, mo := range motivations {
		mo.ThesisEmbargoID = stored.ID
		m.db.embargoMotivations = append(m.db.embargoMotivations, mo)
	}
	return nil
}

func (m memoryRelations) ListSupervisors(ctx context.Context, thesisID string, scope models.SupervisorScope) ([]models.ThesisSupervisorLink, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.ThesisSupervisorLink
	for _, link := range m.db.thesisLinks {
		if link.ThesisID == thesisID && link.Scope == scope {
			out = append(out, link)
		}
	}
	return out, nil
}

func (m memoryRelations) ListSDGs(ctx context.Context, thesisID string) ([]models.ThesisSDG, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.ThesisSDG
	for _, tag := range m.db.thesisSDGs {
		if tag.ThesisID == thesisID {
			out = append(out, tag)
		}
	}
	return out, nil
}

func (m memoryRelations) ListKeywords(ctx context.Context, thesisID string) ([]models.ThesisKeyword, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.ThesisKeyword
	for _, kw := range m.db.thesisKeywords {
		if kw.ThesisID == thesisID {
			out = append(out, kw)
		}
	}
	return out, nil
}

func (m memoryRelations) FindEmbargo(ctx context.Context, thesisID string) (*models.ThesisEmbargo, []models.ThesisEmbargoMotivation, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, e := range m.db.embargoes {
		if e.ThesisID != thesisID {
			continue
		}
		found := e
		var motivations []models.ThesisEmbargoMotivation
		for _, mo := range m.db.embargoMotivations {
			if mo.ThesisEmbargoID == e.ID {
				motivations = append(motivations, mo)
			}
		}
		return &found, motivations, nil
	}
	return nil, nil, nil
}

type memoryRefs struct{ db *memoryDB }

func (m memoryRefs) FindStudent(ctx context.Context, id string) (*models.Student, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	student, ok := m.db.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &student, nil
}

func (m memoryRefs) LockStudent(ctx context.Context, exec sqlx.ExtContext, id string) error {
	_, err := m.FindStudent(ctx, id)
	return err
}

func (m memoryRefs) StudentsByIDs(ctx context.Context, ids []string) ([]models.Student, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.Student
	for _, id := range ids {
		if st, ok := m.db.students[id]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func (m memoryRefs) TeachersByIDs(ctx context.Context, ids []string) ([]models.Teacher, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.Teacher
	for _, id := range ids {
		if t, ok := m.db.teachers[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m memoryRefs) CompaniesByIDs(ctx context.Context, ids []string) ([]models.Company, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.Company
	for _, id := range ids {
		if c, ok := m.db.companies[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m memoryRefs) ProposalsByIDs(ctx context.Context, ids []string) ([]models.ThesisProposal, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.ThesisProposal
	for _, id := range ids {
		if p, ok := m.db.proposals[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func existing(catalogue map[int64]bool, ids []int64) []int64 {
	var out []int64
	for _, id := range ids {
		if catalogue[id] {
			out = append(out, id)
		}
	}
	return out
}

func (m memoryRefs) ExistingKeywordIDs(ctx context.Context, ids []int64) ([]int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return existing(m.db.keywords, ids), nil
}

func (m memoryRefs) ExistingSDGIDs(ctx context.Context, ids []int64) ([]int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return existing(m.db.goals, ids), nil
}

func (m memoryRefs) ExistingMotivationIDs(ctx context.Context, ids []int64) ([]int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return existing(m.db.motivations, ids), nil
}

func (m memoryRefs) LicenseExists(ctx context.Context, id int64) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return m.db.licenses[id], nil
}

func (m memoryRefs) DegreeCollegio(ctx context.Context, degreeID string) (string, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	collegio, ok := m.db.collegi[degreeID]
	if !ok {
		return "", sql.ErrNoRows
	}
	return collegio, nil
}

type memoryHistory struct{ db *memoryDB }

func (m memoryHistory) Append(ctx context.Context, exec sqlx.ExtContext, entry *models.StatusHistoryEntry) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if err := m.db.failure("AppendHistory"); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ChangeDate.IsZero() {
		entry.ChangeDate = time.Now().UTC()
	}
	m.db.history = append(m.db.history, *entry)
	return nil
}

func (m memoryHistory) ListByApplication(ctx context.Context, applicationID string) ([]models.StatusHistoryEntry, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := make([]models.StatusHistoryEntry, 0)
	for _, e := range m.db.history {
		if e.ThesisApplicationID == applicationID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChangeDate.Before(out[j].ChangeDate) })
	return out, nil
}

func studentClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStudent}
}

func staffClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "t-admin", Role: models.RoleAdmin}
}
