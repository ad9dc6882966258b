package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/essay-correction-api/internal/rubric"
	appErrors "github.com/noah-isme/essay-correction-api/pkg/errors"
)

// RubricService serves the rubric catalog to clients.
type RubricService struct {
	catalog *rubric.Catalog
	cache   payloadCache
	logger  *zap.Logger
}

// NewRubricService constructs a RubricService. A nil catalog selects ENEM 2024.
func NewRubricService(catalog *rubric.Catalog, cache payloadCache, logger *zap.Logger) *RubricService {
	if catalog == nil {
		catalog = rubric.ENEM2024()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RubricService{catalog: catalog, cache: cache, logger: logger}
}

// Catalog returns the serialised catalog. The boolean reports a cache hit.
func (s *RubricService) Catalog(ctx context.Context) (json.RawMessage, bool, error) {
	if s.cache != nil {
		var cached json.RawMessage
		hit, err := s.cache.Get(ctx, RubricCatalogCacheKey, &cached)
		if err == nil && hit && len(cached) > 0 {
			return cached, true, nil
		}
	}

	payload, err := json.Marshal(s.catalog)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode rubric catalog")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, RubricCatalogCacheKey, json.RawMessage(payload), 0); err != nil {
			s.logger.Warn("rubric_catalog_cache_set_failed", zap.Error(err))
		}
	}
	return payload, false, nil
}
