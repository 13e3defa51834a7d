package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/thesis-lifecycle-api/internal/dto"
	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/thesis-lifecycle-api/pkg/errors"
)

type documentThesisReader interface {
	FindActiveByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string, forUpdate bool) (*models.Thesis, error)
}

type documentSigner interface {
	Generate(ownerID, relPath string) (string, time.Time, error)
	Parse(token string) (string, string, time.Time, error)
}

type documentOpener interface {
	Open(rel string) (*os.File, error)
}

// DocumentDownload is an opened committed document.
type DocumentDownload struct {
	File      *os.File
	Filename  string
	MimeType  string
	SizeBytes int64
	ExpiresAt time.Time
}

// DocumentLinkService issues and redeems signed links to committed
// conclusion documents.
type DocumentLinkService struct {
	theses    documentThesisReader
	signer    documentSigner
	files     documentOpener
	apiPrefix string
	logger    *zap.Logger
}

// NewDocumentLinkService constructs the link service.
func NewDocumentLinkService(theses documentThesisReader, signer documentSigner, files documentOpener, apiPrefix string, logger *zap.Logger) *DocumentLinkService {
	if apiPrefix == "" {
		apiPrefix = "/api/v1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentLinkService{theses: theses, signer: signer, files: files, apiPrefix: strings.TrimRight(apiPrefix, "/"), logger: logger}
}

// Link returns a time-limited download URL for one of the caller's documents.
func (s *DocumentLinkService) Link(ctx context.Context, claims *models.JWTClaims, rawKind string) (*dto.DocumentLinkResponse, error) {
	if claims == nil || claims.UserID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	kind, err := ParseDocumentKind(rawKind)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	thesis, err := s.theses.FindActiveByStudent(ctx, nil, claims.UserID, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "thesis not found")
		}
		return nil, appErrors.Internal(err, "failed to load thesis")
	}

	var rel *string
	switch kind {
	case DocumentThesis:
		rel = thesis.ThesisFilePath
	case DocumentResume:
		rel = thesis.ThesisResumePath
	case DocumentAdditional:
		rel = thesis.AdditionalZipPath
	}
	if rel == nil || *rel == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no %s document uploaded", kind))
	}

	token, expiresAt, err := s.signer.Generate(claims.UserID, *rel)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign document link")
	}
	return &dto.DocumentLinkResponse{
		Kind:      string(kind),
		URL:       fmt.Sprintf("%s/thesis/documents/download?token=%s", s.apiPrefix, url.QueryEscape(token)),
		ExpiresAt: expiresAt,
	}, nil
}

// Open redeems a token. Only the owner or staff may use it.
func (s *DocumentLinkService) Open(ctx context.Context, claims *models.JWTClaims, token string) (*DocumentDownload, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if strings.TrimSpace(token) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "token is required")
	}
	ownerID, rel, expiresAt, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	if ownerID != claims.UserID && !claims.Role.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if !strings.HasPrefix(rel, ConclusionUploadRoot+"/"+ownerID+"/") {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}

	file, err := s.files.Open(rel)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Internal(err, "failed to open document")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, appErrors.Internal(err, "failed to read document metadata")
	}
	mimeType := mimePDF
	if path.Ext(rel) == ".zip" {
		mimeType = mimeZip
	}
	s.logger.Debug("document link redeemed", zap.String("owner_id", ownerID), zap.String("path", rel))
	return &DocumentDownload{
		File:      file,
		Filename:  path.Base(rel),
		MimeType:  mimeType,
		SizeBytes: info.Size(),
		ExpiresAt: expiresAt,
	}, nil
}
