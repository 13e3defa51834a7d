package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
)

// ReferenceRepository reads the catalogue and people tables the thesis
// workflow only consumes.
type ReferenceRepository struct {
	db *sqlx.DB
}

// NewReferenceRepository constructs repository.
func NewReferenceRepository(db *sqlx.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

func (r *ReferenceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindStudent loads a student by id.
func (r *ReferenceRepository) FindStudent(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	const query = `SELECT id, first_name, last_name, email, degree_id FROM student WHERE id = $1`
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// LockStudent takes a row lock on the student so concurrent submissions for the
// same student serialise.
func (r *ReferenceRepository) LockStudent(ctx context.Context, exec sqlx.ExtContext, id string) error {
	var locked string
	if err := sqlx.GetContext(ctx, r.exec(exec), &locked, `SELECT id FROM student WHERE id = $1 FOR UPDATE`, id); err != nil {
		return err
	}
	return nil
}

// StudentsByIDs loads students by id.
func (r *ReferenceRepository) StudentsByIDs(ctx context.Context, ids []string) ([]models.Student, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var students []models.Student
	const query = `SELECT id, first_name, last_name, email, degree_id FROM student WHERE id = ANY($1)`
	if err := r.db.SelectContext(ctx, &students, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// TeachersByIDs loads teachers by id.
func (r *ReferenceRepository) TeachersByIDs(ctx context.Context, ids []string) ([]models.Teacher, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var teachers []models.Teacher
	const query = `SELECT id, first_name, last_name, role, email, facility_url FROM teacher WHERE id = ANY($1)`
	if err := r.db.SelectContext(ctx, &teachers, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	return teachers, nil
}

// CompaniesByIDs loads companies by id.
func (r *ReferenceRepository) CompaniesByIDs(ctx context.Context, ids []string) ([]models.Company, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var companies []models.Company
	const query = `SELECT id, corporate_name, website FROM company WHERE id = ANY($1)`
	if err := r.db.SelectContext(ctx, &companies, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	return companies, nil
}

// ProposalsByIDs loads thesis proposals by id.
func (r *ReferenceRepository) ProposalsByIDs(ctx context.Context, ids []string) ([]models.ThesisProposal, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var proposals []models.ThesisProposal
	const query = `SELECT id, topic, topic_eng FROM thesis_proposal WHERE id = ANY($1)`
	if err := r.db.SelectContext(ctx, &proposals, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list thesis proposals: %w", err)
	}
	return proposals, nil
}

// ExistingKeywordIDs returns which of ids exist in the keyword catalogue.
func (r *ReferenceRepository) ExistingKeywordIDs(ctx context.Context, ids []int64) ([]int64, error) {
	return r.existingIDs(ctx, "keyword", ids)
}

// ExistingSDGIDs returns which of ids exist in the SDG catalogue.
func (r *ReferenceRepository) ExistingSDGIDs(ctx context.Context, ids []int64) ([]int64, error) {
	return r.existingIDs(ctx, "sustainable_development_goal", ids)
}

// ExistingMotivationIDs returns which of ids exist in the embargo motivation catalogue.
func (r *ReferenceRepository) ExistingMotivationIDs(ctx context.Context, ids []int64) ([]int64, error) {
	return r.existingIDs(ctx, "embargo_motivation", ids)
}

// LicenseExists reports whether a license id is known.
func (r *ReferenceRepository) LicenseExists(ctx context.Context, id int64) (bool, error) {
	found, err := r.existingIDs(ctx, "license", []int64{id})
	if err != nil {
		return false, err
	}
	return len(found) == 1, nil
}

// DegreeCollegio returns the organisational unit (collegio) of a degree
// programme. A NULL unit is reported as sql.ErrNoRows.
func (r *ReferenceRepository) DegreeCollegio(ctx context.Context, degreeID string) (string, error) {
	var collegio sql.NullString
	if err := r.db.GetContext(ctx, &collegio, `SELECT d.id_collegio FROM degree_programme d WHERE d.id = $1`, degreeID); err != nil {
		return "", err
	}
	if !collegio.Valid {
		return "", sql.ErrNoRows
	}
	return collegio.String, nil
}

// existingIDs is only ever called with the fixed catalogue table names above.
func (r *ReferenceRepository) existingIDs(ctx context.Context, table string, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT id FROM %s WHERE id = ANY($1) ORDER BY id`, table)
	var found []int64
	if err := r.db.SelectContext(ctx, &found, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("resolve %s ids: %w", table, err)
	}
	return found, nil
}
