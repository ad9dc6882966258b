package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/essay-correction-api/internal/dto"
	"github.com/noah-isme/essay-correction-api/internal/models"
	"github.com/noah-isme/essay-correction-api/internal/service"
	appErrors "github.com/noah-isme/essay-correction-api/pkg/errors"
	"github.com/noah-isme/essay-correction-api/pkg/response"
)

type aiSuggestionService interface {
	Suggest(ctx context.Context, claims *models.JWTClaims, req dto.AISuggestionRequest) (*models.AISuggestion, error)
	Apply(ctx context.Context, claims *models.JWTClaims, id string, req dto.ApplySuggestionRequest) (*service.ApplyResult, error)
}

// AIHandler exposes the AI-assisted correction adjunct.
type AIHandler struct {
	service aiSuggestionService
}

// NewAIHandler constructs the handler.
func NewAIHandler(service aiSuggestionService) *AIHandler {
	return &AIHandler{service: service}
}

// Suggest godoc
// @Summary Generate a correction suggestion
// @Tags AI
// @Accept json
// @Produce json
// @Param payload body dto.AISuggestionRequest true "Suggestion request"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /ai/correction-suggestion [post]
func (h *AIHandler) Suggest(c *gin.Context) {
	var req dto.AISuggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid suggestion payload"))
		return
	}
	suggestion, err := h.service.Suggest(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, suggestion)
}

// Apply godoc
// @Summary Mark suggestion parts as applied
// @Tags AI
// @Accept json
// @Produce json
// @Param id path string true "Suggestion ID"
// @Param payload body dto.ApplySuggestionRequest true "Flags"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /ai/suggestions/{id}/apply [post]
func (h *AIHandler) Apply(c *gin.Context) {
	var req dto.ApplySuggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid apply payload"))
		return
	}
	result, err := h.service.Apply(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
