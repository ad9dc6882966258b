package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/essay-correction-api/internal/dto"
	"github.com/noah-isme/essay-correction-api/internal/middleware"
	"github.com/noah-isme/essay-correction-api/internal/models"
	appErrors "github.com/noah-isme/essay-correction-api/pkg/errors"
	"github.com/noah-isme/essay-correction-api/pkg/response"
)

type annotationService interface {
	AddHighlight(ctx context.Context, claims *models.JWTClaims, essayID string, req dto.AddHighlightRequest) (*models.Highlight, error)
	ListHighlights(ctx context.Context, claims *models.JWTClaims, essayID string) ([]models.Highlight, bool, error)
}

// HighlightHandler exposes the annotation endpoints of an essay.
type HighlightHandler struct {
	service annotationService
}

// NewHighlightHandler constructs the handler.
func NewHighlightHandler(service annotationService) *HighlightHandler {
	return &HighlightHandler{service: service}
}

// Add godoc
// @Summary Add a highlight
// @Tags Highlights
// @Accept json
// @Produce json
// @Param id path string true "Essay ID"
// @Param payload body dto.AddHighlightRequest true "Highlight"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /essays/{id}/highlights [post]
func (h *HighlightHandler) Add(c *gin.Context) {
	var req dto.AddHighlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid highlight payload"))
		return
	}
	highlight, err := h.service.AddHighlight(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, highlight)
}

// List godoc
// @Summary List highlights in order
// @Tags Highlights
// @Produce json
// @Param id path string true "Essay ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /essays/{id}/highlights [get]
func (h *HighlightHandler) List(c *gin.Context) {
	highlights, cacheHit, err := h.service.ListHighlights(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["count"] = len(highlights)
	response.JSON(c, http.StatusOK, highlights, meta)
}
