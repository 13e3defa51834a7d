package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/thesis-lifecycle-api/pkg/errors"
)

// transactor runs fn inside one all-or-nothing database transaction.
type transactor interface {
	WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error
}

type studentFinder interface {
	FindStudent(ctx context.Context, id string) (*models.Student, error)
}

// requireStudent resolves the authenticated caller to a student row.
func requireStudent(ctx context.Context, students studentFinder, claims *models.JWTClaims) (*models.Student, error) {
	if claims == nil || claims.UserID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	student, err := students.FindStudent(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}
	return student, nil
}

// asAppError keeps typed errors and wraps anything else as internal.
func asAppError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Internal(err, message)
}

func strPtr(s string) *string {
	return &s
}
