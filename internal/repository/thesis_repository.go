package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
)

const thesisColumns = `id, student_id, thesis_application_id, topic, title, title_eng, abstract, abstract_eng, language,
license_id, company_id, thesis_file_path, thesis_resume_path, additional_zip_path, status, thesis_start_date,
thesis_draft_date, thesis_conclusion_request_date, thesis_conclusion_confirmation_date`

// ThesisRepository persists theses.
type ThesisRepository struct {
	db *sqlx.DB
}

// NewThesisRepository constructs repository.
func NewThesisRepository(db *sqlx.DB) *ThesisRepository {
	return &ThesisRepository{db: db}
}

func (r *ThesisRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID loads a thesis by id.
func (r *ThesisRepository) FindByID(ctx context.Context, id string) (*models.Thesis, error) {
	var thesis models.Thesis
	if err := r.db.GetContext(ctx, &thesis, `SELECT `+thesisColumns+` FROM thesis WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &thesis, nil
}

// FindByApplicationID loads the thesis born from an application, if any.
func (r *ThesisRepository) FindByApplicationID(ctx context.Context, exec sqlx.ExtContext, applicationID string) (*models.Thesis, error) {
	query := `SELECT ` + thesisColumns + ` FROM thesis WHERE thesis_application_id = $1 LIMIT 1`
	var thesis models.Thesis
	if err := sqlx.GetContext(ctx, r.exec(exec), &thesis, query, applicationID); err != nil {
		return nil, err
	}
	return &thesis, nil
}

// FindActiveByStudent returns the student's current thesis, skipping cancelled
// ones, and locks it when forUpdate is set.
func (r *ThesisRepository) FindActiveByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string, forUpdate bool) (*models.Thesis, error) {
	query := `SELECT ` + thesisColumns + ` FROM thesis WHERE student_id = $1 AND status <> $2 ORDER BY thesis_start_date DESC LIMIT 1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var thesis models.Thesis
	if err := sqlx.GetContext(ctx, r.exec(exec), &thesis, query, studentID, string(models.ThesisStatusCancelApproved)); err != nil {
		return nil, err
	}
	return &thesis, nil
}

// UpdateConclusion writes the metadata, document paths and status of a conclusion request.
func (r *ThesisRepository) UpdateConclusion(ctx context.Context, exec sqlx.ExtContext, thesis *models.Thesis) error {
	if thesis == nil {
		return fmt.Errorf("thesis payload is nil")
	}
	const query = `
UPDATE thesis SET title = :title, title_eng = :title_eng, abstract = :abstract, abstract_eng = :abstract_eng,
	language = :language, license_id = :license_id, thesis_file_path = :thesis_file_path,
	thesis_resume_path = :thesis_resume_path, additional_zip_path = :additional_zip_path, status = :status,
	thesis_draft_date = :thesis_draft_date, thesis_conclusion_request_date = :thesis_conclusion_request_date
WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, thesis)
	if err != nil {
		return fmt.Errorf("update thesis conclusion: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("thesis rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
