package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/essay-correction-api/internal/models"
	appErrors "github.com/noah-isme/essay-correction-api/pkg/errors"
	"github.com/noah-isme/essay-correction-api/pkg/response"
)

// CurrentUser is the caller identity decoded from the access token.
type CurrentUser struct {
	ID       string          `json:"id"`
	Email    string          `json:"email"`
	FullName string          `json:"full_name"`
	Role     models.UserRole `json:"role"`
}

// AuthHandler exposes identity endpoints. Tokens are issued by the platform's identity service.
type AuthHandler struct{}

// NewAuthHandler creates a new handler.
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// Me godoc
// @Summary Get current user
// @Description Returns the authenticated user's info
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	response.JSON(c, http.StatusOK, CurrentUser{
		ID:       claims.UserID,
		Email:    claims.Email,
		FullName: claims.FullName,
		Role:     claims.Role,
	})
}
