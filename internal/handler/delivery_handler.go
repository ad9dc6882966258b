package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/essay-correction-api/internal/dto"
	"github.com/noah-isme/essay-correction-api/internal/models"
	"github.com/noah-isme/essay-correction-api/internal/service"
	appErrors "github.com/noah-isme/essay-correction-api/pkg/errors"
	"github.com/noah-isme/essay-correction-api/pkg/response"
)

type deliveryService interface {
	Deliver(ctx context.Context, claims *models.JWTClaims, essayID string, req dto.DeliverRequest) (*models.Essay, error)
	OpenCorrectedPDF(ctx context.Context, essayID, token string) (*service.CorrectedPDF, error)
}

// DeliveryHandler exposes corrected PDF delivery.
type DeliveryHandler struct {
	service deliveryService
}

// NewDeliveryHandler constructs the handler.
func NewDeliveryHandler(service deliveryService) *DeliveryHandler {
	return &DeliveryHandler{service: service}
}

// Deliver godoc
// @Summary Generate (once) and email the corrected PDF
// @Tags Delivery
// @Accept json
// @Produce json
// @Param id path string true "Essay ID"
// @Param payload body dto.DeliverRequest false "Final comments"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /essays/{id}/send-email [post]
func (h *DeliveryHandler) Deliver(c *gin.Context) {
	var req dto.DeliverRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid delivery payload"))
		return
	}
	essay, err := h.service.Deliver(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, essay)
}

// CorrectedPDF godoc
// @Summary Download the corrected PDF via signed link
// @Tags Delivery
// @Produce application/pdf
// @Param id path string true "Essay ID"
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /essays/{id}/corrected-pdf [get]
func (h *DeliveryHandler) CorrectedPDF(c *gin.Context) {
	pdf, err := h.service.OpenCorrectedPDF(c.Request.Context(), c.Param("id"), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=\"%s\"", pdf.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/pdf", pdf.Content)
}
