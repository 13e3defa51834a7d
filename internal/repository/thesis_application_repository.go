package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
)

const applicationColumns = `id, student_id, topic, thesis_proposal_id, company_id, status, submission_date`

// ThesisApplicationRepository persists thesis applications.
type ThesisApplicationRepository struct {
	db *sqlx.DB
}

// NewThesisApplicationRepository constructs repository.
func NewThesisApplicationRepository(db *sqlx.DB) *ThesisApplicationRepository {
	return &ThesisApplicationRepository{db: db}
}

func (r *ThesisApplicationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new application. A second pending application for the same
// student trips the partial unique index and yields ErrUniqueViolation.
func (r *ThesisApplicationRepository) Create(ctx context.Context, exec sqlx.ExtContext, app *models.ThesisApplication) error {
	if app == nil {
		return fmt.Errorf("application payload is nil")
	}
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.Status == "" {
		app.Status = models.ApplicationStatusPending
	}
	if app.SubmissionDate.IsZero() {
		app.SubmissionDate = time.Now().UTC()
	}
	const query = `
INSERT INTO thesis_applications (id, student_id, topic, thesis_proposal_id, company_id, status, submission_date)
VALUES (:id, :student_id, :topic, :thesis_proposal_id, :company_id, :status, :submission_date)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, app); err != nil {
		return fmt.Errorf("insert thesis application: %w", mapUniqueViolation(err))
	}
	return nil
}

// FindByID loads an application, locking the row when forUpdate is set.
func (r *ThesisApplicationRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.ThesisApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM thesis_applications WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var app models.ThesisApplication
	if err := sqlx.GetContext(ctx, r.exec(exec), &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// ListByStudentAndStatuses returns a student's applications in any of the given statuses.
func (r *ThesisApplicationRepository) ListByStudentAndStatuses(ctx context.Context, exec sqlx.ExtContext, studentID string, statuses []models.ApplicationStatus) ([]models.ThesisApplication, error) {
	values := make([]string, len(statuses))
	for i, status := range statuses {
		values[i] = string(status)
	}
	query := `SELECT ` + applicationColumns + ` FROM thesis_applications WHERE student_id = $1 AND status = ANY($2) ORDER BY submission_date ASC`
	var apps []models.ThesisApplication
	if err := sqlx.SelectContext(ctx, r.exec(exec), &apps, query, studentID, pq.Array(values)); err != nil {
		return nil, fmt.Errorf("list applications for student: %w", err)
	}
	return apps, nil
}

// List returns every application, newest first.
func (r *ThesisApplicationRepository) List(ctx context.Context) ([]models.ThesisApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM thesis_applications ORDER BY submission_date DESC`
	var apps []models.ThesisApplication
	if err := r.db.SelectContext(ctx, &apps, query); err != nil {
		return nil, fmt.Errorf("list thesis applications: %w", err)
	}
	return apps, nil
}

// FindLastByStudent returns the most recently submitted application of a student.
func (r *ThesisApplicationRepository) FindLastByStudent(ctx context.Context, studentID string) (*models.ThesisApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM thesis_applications WHERE student_id = $1 ORDER BY submission_date DESC LIMIT 1`
	var app models.ThesisApplication
	if err := r.db.GetContext(ctx, &app, query, studentID); err != nil {
		return nil, err
	}
	return &app, nil
}

// UpdateStatus sets the status of an application.
func (r *ThesisApplicationRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ApplicationStatus) error {
	const query = `UPDATE thesis_applications SET status = $1 WHERE id = $2`
	result, err := r.exec(exec).ExecContext(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("update thesis application status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("thesis application rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CreateSupervisorLinks bulk inserts supervisor and co-supervisor links.
func (r *ThesisApplicationRepository) CreateSupervisorLinks(ctx context.Context, exec sqlx.ExtContext, links []models.ApplicationSupervisorLink) error {
	if len(links) == 0 {
		return nil
	}
	const query = `
INSERT INTO thesis_application_supervisor_cosupervisor (thesis_application_id, teacher_id, is_supervisor)
VALUES (:thesis_application_id, :teacher_id, :is_supervisor)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, links); err != nil {
		return fmt.Errorf("insert application supervisors: %w", mapUniqueViolation(err))
	}
	return nil
}

// ListSupervisorLinks returns links for the given applications.
func (r *ThesisApplicationRepository) ListSupervisorLinks(ctx context.Context, applicationIDs []string) ([]models.ApplicationSupervisorLink, error) {
	if len(applicationIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT thesis_application_id, teacher_id, is_supervisor FROM thesis_application_supervisor_cosupervisor
WHERE thesis_application_id = ANY($1) ORDER BY is_supervisor DESC, teacher_id`
	var links []models.ApplicationSupervisorLink
	if err := r.db.SelectContext(ctx, &links, query, pq.Array(applicationIDs)); err != nil {
		return nil, fmt.Errorf("list application supervisors: %w", err)
	}
	return links, nil
}
