package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/essay-correction-api/internal/dto"
	"github.com/noah-isme/essay-correction-api/internal/models"
	"github.com/noah-isme/essay-correction-api/internal/service"
	appErrors "github.com/noah-isme/essay-correction-api/pkg/errors"
	"github.com/noah-isme/essay-correction-api/pkg/response"
)

type essayService interface {
	Submit(ctx context.Context, claims *models.JWTClaims, req dto.SubmitEssayRequest, upload dto.EssayUpload) (*models.Essay, error)
	Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.Essay, error)
	OpenCorrection(ctx context.Context, claims *models.JWTClaims, id string, req dto.OpenCorrectionRequest) (*models.Essay, error)
	SubmitGrade(ctx context.Context, claims *models.JWTClaims, id string, req dto.SubmitGradeRequest) (*models.Essay, error)
	IssueFileToken(ctx context.Context, claims *models.JWTClaims, id string) (*models.FileToken, error)
	OpenFile(ctx context.Context, id, token string) (*service.EssayFileStream, error)
}

// EssayHandler exposes the essay lifecycle endpoints.
type EssayHandler struct {
	service essayService
}

// NewEssayHandler constructs the handler.
func NewEssayHandler(service essayService) *EssayHandler {
	return &EssayHandler{service: service}
}

// Submit godoc
// @Summary Submit an essay
// @Tags Essays
// @Accept multipart/form-data
// @Produce json
// @Param type formData string true "ENEM or PAS"
// @Param studentId formData string false "Student (teachers submitting on behalf)"
// @Param classId formData string false "Class"
// @Param themeId formData string false "Theme reference"
// @Param themeText formData string false "Theme text"
// @Param bimester formData int false "Bimester (1-4)"
// @Param countInBimester formData bool false "Counts towards the bimester grade"
// @Param pages formData int false "Page count"
// @Param file formData file true "Essay file (pdf, jpeg or png)"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /essays [post]
func (h *EssayHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SubmitEssayRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid essay payload"))
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	upload := dto.EssayUpload{Filename: fileHeader.Filename, Size: fileHeader.Size, Reader: src}
	essay, err := h.service.Submit(c.Request.Context(), claims, req, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, essay)
}

// Get godoc
// @Summary Get an essay
// @Tags Essays
// @Produce json
// @Param id path string true "Essay ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /essays/{id} [get]
func (h *EssayHandler) Get(c *gin.Context) {
	essay, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, essay)
}

// OpenCorrection godoc
// @Summary Open or continue a correction draft
// @Tags Essays
// @Accept json
// @Produce json
// @Param id path string true "Essay ID"
// @Param payload body dto.OpenCorrectionRequest true "Draft"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /essays/{id}/correction [put]
func (h *EssayHandler) OpenCorrection(c *gin.Context) {
	var req dto.OpenCorrectionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid correction payload"))
		return
	}
	essay, err := h.service.OpenCorrection(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, essay)
}

// SubmitGrade godoc
// @Summary Submit the final grade
// @Tags Essays
// @Accept json
// @Produce json
// @Param id path string true "Essay ID"
// @Param payload body dto.SubmitGradeRequest true "Grade"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /essays/{id}/grade [post]
func (h *EssayHandler) SubmitGrade(c *gin.Context) {
	var req dto.SubmitGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid grade payload"))
		return
	}
	essay, err := h.service.SubmitGrade(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, essay)
}

// IssueFileToken godoc
// @Summary Issue a short-lived token for the original file
// @Tags Essays
// @Produce json
// @Param id path string true "Essay ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /essays/{id}/file-token [post]
func (h *EssayHandler) IssueFileToken(c *gin.Context) {
	token, err := h.service.IssueFileToken(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, token)
}

// File godoc
// @Summary Stream the original essay file
// @Tags Essays
// @Produce octet-stream
// @Param id path string true "Essay ID"
// @Param token query string true "File token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /essays/{id}/file [get]
func (h *EssayHandler) File(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "token is required"))
		return
	}
	file, err := h.service.OpenFile(c.Request.Context(), c.Param("id"), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Reader.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=\"%s\"", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, file.Size, file.MIME, file.Reader, nil)
}

// bindOptionalJSON binds a JSON body when one is present.
func bindOptionalJSON(c *gin.Context, dest interface{}) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(dest)
}
