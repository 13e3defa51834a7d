package service

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/thesis-lifecycle-api/pkg/errors"
	"github.com/noah-isme/thesis-lifecycle-api/pkg/pdfa"
	"github.com/noah-isme/thesis-lifecycle-api/pkg/storage"
)

// DocumentValidator decides whether a document body is an archival PDF.
type DocumentValidator interface {
	ValidatePDFA(data []byte) bool
}

// PDFAHeuristicValidator matches the PDF signature and the XMP pdfaid markers.
// It does not check structural conformance.
type PDFAHeuristicValidator struct{}

// ValidatePDFA implements DocumentValidator.
func (PDFAHeuristicValidator) ValidatePDFA(data []byte) bool {
	return pdfa.Check(data)
}

type documentWriter interface {
	Write(rel string, data []byte) error
}

// DocumentService validates uploaded documents and stores the accepted ones.
type DocumentService struct {
	validator DocumentValidator
	store     documentWriter
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewDocumentService constructs the document service. A nil validator uses
// the heuristic PDF/A check.
func NewDocumentService(validator DocumentValidator, store documentWriter, metrics *MetricsService, logger *zap.Logger) *DocumentService {
	if validator == nil {
		validator = PDFAHeuristicValidator{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{validator: validator, store: store, metrics: metrics, logger: logger}
}

// ValidatePDFA exposes the configured check.
func (s *DocumentService) ValidatePDFA(data []byte) bool {
	return s.validator.ValidatePDFA(data)
}

// AcceptAndStore reads the staged upload, rejects it with ErrInvalidDocument
// unless it passes the PDF/A check, and writes it to destRel. The staged temp
// file is removed on every path.
func (s *DocumentService) AcceptAndStore(file *models.UploadedFile, destRel string) (err error) {
	if file == nil || file.Path == "" {
		return appErrors.Clone(appErrors.ErrValidation, "document is required")
	}
	defer func() {
		if rmErr := storage.RemoveFile(file.Path); rmErr != nil {
			s.logger.Warn("failed to remove staged upload", zap.String("path", file.Path), zap.Error(rmErr))
		}
	}()

	data, err := os.ReadFile(file.Path)
	if err != nil {
		return appErrors.Internal(err, "failed to read uploaded document")
	}
	if !s.validator.ValidatePDFA(data) {
		s.metrics.RecordDocumentRejection("not_pdfa")
		return appErrors.Clone(appErrors.ErrInvalidDocument, fmt.Sprintf("%s is not a valid PDF/A document", displayName(file)))
	}
	if err := s.store.Write(destRel, data); err != nil {
		return appErrors.Internal(err, "failed to store document")
	}
	return nil
}

func displayName(file *models.UploadedFile) string {
	if file.OriginalName != "" {
		return file.OriginalName
	}
	return "document"
}
