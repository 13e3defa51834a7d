package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/thesis-lifecycle-api/internal/dto"
	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/thesis-lifecycle-api/pkg/errors"
	"github.com/noah-isme/thesis-lifecycle-api/pkg/response"
)

type applicationService interface {
	Submit(ctx context.Context, claims *models.JWTClaims, req dto.CreateApplicationRequest) (*dto.ApplicationResponse, error)
	Cancel(ctx context.Context, claims *models.JWTClaims, applicationID string) (*models.ThesisApplication, error)
	List(ctx context.Context, claims *models.JWTClaims) ([]dto.ApplicationResponse, error)
	GetLast(ctx context.Context, claims *models.JWTClaims) (*dto.ApplicationResponse, error)
}

type eligibilityChecker interface {
	Check(ctx context.Context, claims *models.JWTClaims) (*dto.EligibilityResponse, error)
}

type statusHistoryReader interface {
	GetForApplication(ctx context.Context, claims *models.JWTClaims, applicationID string) ([]dto.StatusHistoryItem, error)
	Export(ctx context.Context, claims *models.JWTClaims, applicationID, format string) ([]byte, string, string, error)
}

// ApplicationHandler exposes the thesis application endpoints.
type ApplicationHandler struct {
	applications applicationService
	eligibility  eligibilityChecker
	history      statusHistoryReader
}

// NewApplicationHandler constructs the handler.
func NewApplicationHandler(applications applicationService, eligibility eligibilityChecker, history statusHistoryReader) *ApplicationHandler {
	return &ApplicationHandler{applications: applications, eligibility: eligibility, history: history}
}

// Submit godoc
// @Summary Submit a thesis application
// @Tags ThesisApplications
// @Accept json
// @Produce json
// @Param payload body dto.CreateApplicationRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /thesis-applications [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid thesis application payload"))
		return
	}
	app, err := h.applications.Submit(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// List godoc
// @Summary List thesis applications
// @Tags ThesisApplications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /thesis-applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	apps, err := h.applications.List(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, map[string]interface{}{"total": len(apps)})
}

// Last godoc
// @Summary Get the caller's latest thesis application
// @Tags ThesisApplications
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /thesis-applications/last [get]
func (h *ApplicationHandler) Last(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	app, err := h.applications.GetLast(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app)
}

// Eligibility godoc
// @Summary Check whether the caller may submit an application
// @Tags ThesisApplications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /thesis-applications/eligibility [get]
func (h *ApplicationHandler) Eligibility(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	result, err := h.eligibility.Check(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Cancel godoc
// @Summary Cancel a pending thesis application
// @Tags ThesisApplications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /thesis-applications/{id}/cancel [post]
func (h *ApplicationHandler) Cancel(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	app, err := h.applications.Cancel(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app)
}

// History godoc
// @Summary Status history of a thesis application
// @Tags ThesisApplications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /thesis-applications/{id}/status-history [get]
func (h *ApplicationHandler) History(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	items, err := h.history.GetForApplication(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items)
}

// ExportHistory godoc
// @Summary Export the status history of a thesis application
// @Tags ThesisApplications
// @Produce text/csv,application/pdf
// @Param id path string true "Application ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /thesis-applications/{id}/status-history/export [get]
func (h *ApplicationHandler) ExportHistory(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	body, filename, contentType, err := h.history.Export(c.Request.Context(), claims, c.Param("id"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, contentType, body)
}
