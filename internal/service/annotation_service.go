package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/essay-correction-api/internal/dto"
	"github.com/noah-isme/essay-correction-api/internal/models"
	"github.com/noah-isme/essay-correction-api/internal/repository"
	appErrors "github.com/noah-isme/essay-correction-api/pkg/errors"
)

type highlightStore interface {
	Append(ctx context.Context, highlight *models.Highlight, requested *int) error
	ListByEssay(ctx context.Context, essayID string) ([]models.Highlight, error)
}

type payloadCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// AnnotationService owns the per-essay highlight set.
type AnnotationService struct {
	highlights highlightStore
	essays     essayReader
	cache      payloadCache
	audit      auditLogger
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewAnnotationService constructs an AnnotationService.
func NewAnnotationService(highlights highlightStore, essays essayReader, cache payloadCache, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *AnnotationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnotationService{highlights: highlights, essays: essays, cache: cache, audit: audit, validator: validate, logger: logger}
}

// AddHighlight appends a highlight and assigns the next order number when none is supplied.
func (s *AnnotationService) AddHighlight(ctx context.Context, claims *models.JWTClaims, essayID string, req dto.AddHighlightRequest) (*models.Highlight, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid highlight payload")
	}
	essay, err := loadEssay(ctx, s.essays, essayID)
	if err != nil {
		return nil, err
	}
	if err := ensureGrader(claims, essay); err != nil {
		return nil, err
	}
	if !canAnnotate(essay.Status) {
		return nil, invalidState("annotate", essay.Status)
	}

	highlight := &models.Highlight{
		EssayID:   essayID,
		Page:      req.Page,
		Rects:     models.Rects(req.Rects),
		Color:     req.Color,
		Category:  models.HighlightCategory(req.Category),
		Comment:   req.Comment,
		CreatedBy: claims.UserID,
	}
	if err := s.highlights.Append(ctx, highlight, req.GlobalOrderNumber); err != nil {
		if errors.Is(err, repository.ErrOrderNumberMismatch) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, err.Error())
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add highlight")
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, HighlightsCacheKey(essayID))
	}
	recordAudit(ctx, s.audit, s.logger, claims, models.AuditActionHighlightAdd, models.AuditResourceHighlight, highlight.ID, map[string]interface{}{
		"essay_id":            essayID,
		"global_order_number": highlight.GlobalOrderNumber,
		"category":            highlight.Category,
	})
	return highlight, nil
}

// ListHighlights returns the essay's highlights in order. The boolean reports a cache hit.
func (s *AnnotationService) ListHighlights(ctx context.Context, claims *models.JWTClaims, essayID string) ([]models.Highlight, bool, error) {
	essay, err := loadEssay(ctx, s.essays, essayID)
	if err != nil {
		return nil, false, err
	}
	if err := ensureCanView(claims, essay); err != nil {
		return nil, false, err
	}

	key := HighlightsCacheKey(essayID)
	if s.cache != nil {
		var cached []models.Highlight
		hit, err := s.cache.Get(ctx, key, &cached)
		if err == nil && hit {
			return cached, true, nil
		}
	}

	highlights, err := s.highlights.ListByEssay(ctx, essayID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list highlights")
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, highlights, 0)
	}
	return highlights, false, nil
}
