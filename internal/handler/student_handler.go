package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/thesis-lifecycle-api/internal/dto"
	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
	"github.com/noah-isme/thesis-lifecycle-api/pkg/response"
)

type resumePolicyService interface {
	RequiredResume(ctx context.Context, claims *models.JWTClaims) (*dto.RequiredResumeResponse, error)
}

// StudentHandler serves student-scoped policy lookups.
type StudentHandler struct {
	policy resumePolicyService
}

// NewStudentHandler constructs the handler.
func NewStudentHandler(policy resumePolicyService) *StudentHandler {
	return &StudentHandler{policy: policy}
}

// RequiredResume godoc
// @Summary Whether the caller's conclusion request needs a resume document
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students/me/required-resume [get]
func (h *StudentHandler) RequiredResume(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	result, err := h.policy.RequiredResume(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
