package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/thesis-lifecycle-api/internal/dto"
	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
	"github.com/noah-isme/thesis-lifecycle-api/internal/service"
	"github.com/noah-isme/thesis-lifecycle-api/pkg/response"
)

type documentLinkService interface {
	Link(ctx context.Context, claims *models.JWTClaims, kind string) (*dto.DocumentLinkResponse, error)
	Open(ctx context.Context, claims *models.JWTClaims, token string) (*service.DocumentDownload, error)
}

// DocumentHandler hands out and redeems signed links to conclusion documents.
type DocumentHandler struct {
	service documentLinkService
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(service documentLinkService) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// Link godoc
// @Summary Signed download link for one of the caller's documents
// @Tags ThesisDocuments
// @Produce json
// @Param kind path string true "thesis, resume or additional"
// @Success 200 {object} response.Envelope
// @Router /thesis/documents/{kind}/link [get]
func (h *DocumentHandler) Link(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	link, err := h.service.Link(c.Request.Context(), claims, c.Param("kind"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link)
}

// Download godoc
// @Summary Download a document through a signed token
// @Tags ThesisDocuments
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /thesis/documents/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	result, err := h.service.Open(c.Request.Context(), claims, c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, result.SizeBytes, result.MimeType, result.File, nil)
}
