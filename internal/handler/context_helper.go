package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/thesis-lifecycle-api/internal/middleware"
	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/thesis-lifecycle-api/pkg/errors"
	"github.com/noah-isme/thesis-lifecycle-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentUser(c)
}

// requireClaims writes 401 and returns nil when the request is anonymous.
func requireClaims(c *gin.Context) *models.JWTClaims {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil
	}
	return claims
}
