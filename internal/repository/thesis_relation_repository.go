package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
)

// ThesisRelationRepository manages the child collections of a thesis. Writes
// follow replace-set semantics: delete every row for the parent key, then
// bulk insert the new set.
type ThesisRelationRepository struct {
	db *sqlx.DB
}

// NewThesisRelationRepository constructs repository.
func NewThesisRelationRepository(db *sqlx.DB) *ThesisRelationRepository {
	return &ThesisRelationRepository{db: db}
}

func (r *ThesisRelationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// DeleteCoSupervisors removes the non-supervisor links of a scope.
func (r *ThesisRelationRepository) DeleteCoSupervisors(ctx context.Context, exec sqlx.ExtContext, thesisID string, scope models.SupervisorScope) error {
	const query = `DELETE FROM thesis_supervisor_cosupervisor WHERE thesis_id = $1 AND is_supervisor = FALSE AND scope = $2`
	if _, err := r.exec(exec).ExecContext(ctx, query, thesisID, string(scope)); err != nil {
		return fmt.Errorf("delete %s co-supervisors: %w", scope, err)
	}
	return nil
}

// ReplaceCoSupervisors swaps the live co-supervisor set of a thesis.
func (r *ThesisRelationRepository) ReplaceCoSupervisors(ctx context.Context, exec sqlx.ExtContext, thesisID string, teacherIDs []string) error {
	if err := r.DeleteCoSupervisors(ctx, exec, thesisID, models.SupervisorScopeLive); err != nil {
		return err
	}
	if len(teacherIDs) == 0 {
		return nil
	}
	links := make([]models.ThesisSupervisorLink, 0, len(teacherIDs))
	for _, id := range teacherIDs {
		links = append(links, models.ThesisSupervisorLink{ThesisID: thesisID, TeacherID: id, Scope: models.SupervisorScopeLive})
	}
	const query = `
INSERT INTO thesis_supervisor_cosupervisor (thesis_id, teacher_id, is_supervisor, scope)
VALUES (:thesis_id, :teacher_id, :is_supervisor, :scope)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, links); err != nil {
		return fmt.Errorf("insert co-supervisors: %w", mapUniqueViolation(err))
	}
	return nil
}

// ReplaceSDGs swaps the SDG tags of a thesis.
func (r *ThesisRelationRepository) ReplaceSDGs(ctx context.Context, exec sqlx.ExtContext, thesisID string, sdgs []models.ThesisSDG) error {
	target := r.exec(exec)
	if _, err := target.ExecContext(ctx, `DELETE FROM thesis_sustainable_development_goal WHERE thesis_id = $1`, thesisID); err != nil {
		return fmt.Errorf("delete thesis sdgs: %w", err)
	}
	if len(sdgs) == 0 {
		return nil
	}
	const query = `
INSERT INTO thesis_sustainable_development_goal (thesis_id, goal_id, sdg_level)
VALUES (:thesis_id, :goal_id, :sdg_level)`
	if _, err := sqlx.NamedExecContext(ctx, target, query, sdgs); err != nil {
		return fmt.Errorf("insert thesis sdgs: %w", mapUniqueViolation(err))
	}
	return nil
}

// ReplaceKeywords swaps the keyword links of a thesis.
func (r *ThesisRelationRepository) ReplaceKeywords(ctx context.Context, exec sqlx.ExtContext, thesisID string, keywords []models.ThesisKeyword) error {
	target := r.exec(exec)
	if _, err := target.ExecContext(ctx, `DELETE FROM thesis_keyword WHERE thesis_id = $1`, thesisID); err != nil {
		return fmt.Errorf("delete thesis keywords: %w", err)
	}
	if len(keywords) == 0 {
		return nil
	}
	const query = `
INSERT INTO thesis_keyword (thesis_id, keyword_id, keyword_other)
VALUES (:thesis_id, :keyword_id, :keyword_other)`
	if _, err := sqlx.NamedExecContext(ctx, target, query, keywords); err != nil {
		return fmt.Errorf("insert thesis keywords: %w", err)
	}
	return nil
}

// ReplaceEmbargo destroys the current embargo with its motivations and, when
// embargo is non-nil, recreates it. A nil embargo only clears.
func (r *ThesisRelationRepository) ReplaceEmbargo(ctx context.Context, exec sqlx.ExtContext, thesisID string, embargo *models.ThesisEmbargo, motivations []models.ThesisEmbargoMotivation) error {
	target := r.exec(exec)

	var existingID string
	err := sqlx.GetContext(ctx, target, &existingID, `SELECT id FROM thesis_embargo WHERE thesis_id = $1 FOR UPDATE`, thesisID)
	switch {
	case err == nil:
		if _, err := target.ExecContext(ctx, `DELETE FROM thesis_embargo_motivation WHERE thesis_embargo_id = $1`, existingID); err != nil {
			return fmt.Errorf("delete embargo motivations: %w", err)
		}
		if _, err := target.ExecContext(ctx, `DELETE FROM thesis_embargo WHERE id = $1`, existingID); err != nil {
			return fmt.Errorf("delete embargo: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return fmt.Errorf("load embargo: %w", err)
	}

	if embargo == nil {
		return nil
	}
	if embargo.ID == "" {
		embargo.ID = uuid.NewString()
	}
	embargo.ThesisID = thesisID
	const insertEmbargo = `INSERT INTO thesis_embargo (id, thesis_id, duration) VALUES (:id, :thesis_id, :duration)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertEmbargo, embargo); err != nil {
		return fmt.Errorf("insert embargo: %w", err)
	}
	if len(motivations) == 0 {
		return nil
	}
	for i := range motivations {
		motivations[i].ThesisEmbargoID = embargo.ID
		motivations[i].Position = i
	}
	const insertMotivations = `
INSERT INTO thesis_embargo_motivation (thesis_embargo_id, motivation_id, other_motivation, position)
VALUES (:thesis_embargo_id, :motivation_id, :other_motivation, :position)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertMotivations, motivations); err != nil {
		return fmt.Errorf("insert embargo motivations: %w", err)
	}
	return nil
}

// ListSupervisors returns the supervisor links of a scope.
func (r *ThesisRelationRepository) ListSupervisors(ctx context.Context, thesisID string, scope models.SupervisorScope) ([]models.ThesisSupervisorLink, error) {
	const query = `SELECT thesis_id, teacher_id, is_supervisor, scope FROM thesis_supervisor_cosupervisor
WHERE thesis_id = $1 AND scope = $2 ORDER BY is_supervisor DESC, teacher_id`
	var links []models.ThesisSupervisorLink
	if err := r.db.SelectContext(ctx, &links, query, thesisID, string(scope)); err != nil {
		return nil, fmt.Errorf("list thesis supervisors: %w", err)
	}
	return links, nil
}

// ListSDGs returns the SDG tags of a thesis.
func (r *ThesisRelationRepository) ListSDGs(ctx context.Context, thesisID string) ([]models.ThesisSDG, error) {
	const query = `SELECT thesis_id, goal_id, sdg_level FROM thesis_sustainable_development_goal WHERE thesis_id = $1 ORDER BY goal_id`
	var sdgs []models.ThesisSDG
	if err := r.db.SelectContext(ctx, &sdgs, query, thesisID); err != nil {
		return nil, fmt.Errorf("list thesis sdgs: %w", err)
	}
	return sdgs, nil
}

// ListKeywords returns the keyword links of a thesis.
func (r *ThesisRelationRepository) ListKeywords(ctx context.Context, thesisID string) ([]models.ThesisKeyword, error) {
	const query = `SELECT thesis_id, keyword_id, keyword_other FROM thesis_keyword WHERE thesis_id = $1`
	var keywords []models.ThesisKeyword
	if err := r.db.SelectContext(ctx, &keywords, query, thesisID); err != nil {
		return nil, fmt.Errorf("list thesis keywords: %w", err)
	}
	return keywords, nil
}

// FindEmbargo returns the embargo of a thesis with its motivations in order.
// A thesis without an embargo yields nil and no error.
func (r *ThesisRelationRepository) FindEmbargo(ctx context.Context, thesisID string) (*models.ThesisEmbargo, []models.ThesisEmbargoMotivation, error) {
	var embargo models.ThesisEmbargo
	if err := r.db.GetContext(ctx, &embargo, `SELECT id, thesis_id, duration FROM thesis_embargo WHERE thesis_id = $1`, thesisID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("find embargo: %w", err)
	}
	const query = `SELECT thesis_embargo_id, motivation_id, other_motivation, position FROM thesis_embargo_motivation
WHERE thesis_embargo_id = $1 ORDER BY position`
	var motivations []models.ThesisEmbargoMotivation
	if err := r.db.SelectContext(ctx, &motivations, query, embargo.ID); err != nil {
		return nil, nil, fmt.Errorf("list embargo motivations: %w", err)
	}
	return &embargo, motivations, nil
}
