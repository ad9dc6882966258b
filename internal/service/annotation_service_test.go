package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/essay-correction-api/internal/dto"
	"github.com/noah-isme/essay-correction-api/internal/models"
	appErrors "github.com/noah-isme/essay-correction-api/pkg/errors"
)

func highlightRequest(order *int) dto.AddHighlightRequest {
	return dto.AddHighlightRequest{
		Page:              1,
		Rects:             []models.Rect{{X: 0.1, Y: 0.2, W: 0.3, H: 0.05}},
		Color:             "#ffcc00",
		Category:          "grammar",
		Comment:           "concordância",
		GlobalOrderNumber: order,
	}
}

func newAnnotationFixture(essays ...*models.Essay) (*AnnotationService, *highlightStoreFake, *memoryCache) {
	highlights := newHighlightStoreFake()
	cache := newMemoryCache()
	svc := NewAnnotationService(highlights, newEssayStoreFake(essays...), cache, &auditRecorder{}, nil, nil)
	return svc, highlights, cache
}

func TestAnnotationServiceAssignsSequentialNumbers(t *testing.T) {
	svc, _, _ := newAnnotationFixture(gradingEssay("essay-1", models.EssayTypeENEM))
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		highlight, err := svc.AddHighlight(ctx, teacherClaims("teacher-1"), "essay-1", highlightRequest(nil))
		require.NoError(t, err)
		assert.Equal(t, want, highlight.GlobalOrderNumber)
	}

	highlight, err := svc.AddHighlight(ctx, teacherClaims("teacher-1"), "essay-1", highlightRequest(intPtr(4)))
	require.NoError(t, err)
	assert.Equal(t, 4, highlight.GlobalOrderNumber)
}

func TestAnnotationServiceRejectsMismatchedNumber(t *testing.T) {
	svc, highlights, _ := newAnnotationFixture(gradingEssay("essay-1", models.EssayTypeENEM))

	_, err := svc.AddHighlight(context.Background(), teacherClaims("teacher-1"), "essay-1", highlightRequest(intPtr(7)))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, errorCode(err))

	stored, err := highlights.ListByEssay(context.Background(), "essay-1")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestAnnotationServiceValidatesPayloadAndState(t *testing.T) {
	pending := gradingEssay("essay-1", models.EssayTypeENEM)
	pending.Status = models.EssayStatusPending
	svc, _, _ := newAnnotationFixture(pending)

	bad := highlightRequest(nil)
	bad.Rects = []models.Rect{{X: 1.5, Y: 0, W: 0.1, H: 0.1}}
	_, err := svc.AddHighlight(context.Background(), teacherClaims("teacher-1"), "essay-1", bad)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))

	_, err = svc.AddHighlight(context.Background(), teacherClaims("teacher-1"), "essay-1", highlightRequest(nil))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, errorCode(err))

	_, err = svc.AddHighlight(context.Background(), studentClaims("student-1"), "essay-1", highlightRequest(nil))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))
}

func TestAnnotationServiceListUsesCache(t *testing.T) {
	svc, highlights, cache := newAnnotationFixture(gradingEssay("essay-1", models.EssayTypeENEM))
	ctx := context.Background()
	_, err := svc.AddHighlight(ctx, teacherClaims("teacher-1"), "essay-1", highlightRequest(nil))
	require.NoError(t, err)

	list, hit, err := svc.ListHighlights(ctx, studentClaims("student-1"), "essay-1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, list, 1)

	list, hit, err = svc.ListHighlights(ctx, teacherClaims("teacher-1"), "essay-1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, highlights.lists)

	_, err = svc.AddHighlight(ctx, teacherClaims("teacher-1"), "essay-1", highlightRequest(nil))
	require.NoError(t, err)
	list, hit, err = svc.ListHighlights(ctx, teacherClaims("teacher-1"), "essay-1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, list, 2)
	assert.Equal(t, 1, cache.hits)
}

func TestAnnotationServiceListForbiddenForOtherStudent(t *testing.T) {
	svc, _, _ := newAnnotationFixture(gradingEssay("essay-1", models.EssayTypeENEM))

	_, _, err := svc.ListHighlights(context.Background(), studentClaims("student-2"), "essay-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))
}
