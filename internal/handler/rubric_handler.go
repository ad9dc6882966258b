package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/essay-correction-api/internal/middleware"
	"github.com/noah-isme/essay-correction-api/pkg/response"
)

type rubricService interface {
	Catalog(ctx context.Context) (json.RawMessage, bool, error)
}

// RubricHandler serves the rubric catalog.
type RubricHandler struct {
	service rubricService
}

// NewRubricHandler constructs the handler.
func NewRubricHandler(service rubricService) *RubricHandler {
	return &RubricHandler{service: service}
}

// ENEM godoc
// @Summary ENEM 2024 rubric catalog
// @Tags Rubrics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /rubrics/enem [get]
func (h *RubricHandler) ENEM(c *gin.Context) {
	catalog, cacheHit, err := h.service.Catalog(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, catalog, middleware.ExtractMeta(c))
}
