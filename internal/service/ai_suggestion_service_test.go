package service

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/essay-correction-api/internal/dto"
	"github.com/noah-isme/essay-correction-api/internal/models"
	"github.com/noah-isme/essay-correction-api/internal/rubric"
	appErrors "github.com/noah-isme/essay-correction-api/pkg/errors"
)

type suggestionStoreFake struct {
	mu      sync.Mutex
	items   map[string]*models.AISuggestion
	updates []models.SuggestionApplyUpdate
}

func newSuggestionStoreFake() *suggestionStoreFake {
	return &suggestionStoreFake{items: map[string]*models.AISuggestion{}}
}

func (f *suggestionStoreFake) Create(ctx context.Context, suggestion *models.AISuggestion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if suggestion.ID == "" {
		suggestion.ID = "sug-" + suggestion.Hash
	}
	copied := *suggestion
	f.items[suggestion.ID] = &copied
	return nil
}

func (f *suggestionStoreFake) FindByID(ctx context.Context, id string) (*models.AISuggestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *item
	return &copied, nil
}

func (f *suggestionStoreFake) MarkApplied(ctx context.Context, id string, update models.SuggestionApplyUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	f.updates = append(f.updates, update)
	if update.AppliedFeedback {
		item.AppliedFeedback = true
		item.AppliedFeedbackAt = update.AppliedFeedbackAt
	}
	if update.AppliedScores {
		item.AppliedScores = true
		item.AppliedScoresAt = update.AppliedScoresAt
	}
	return nil
}

func newAIFixture(enabled bool) (*AISuggestionService, *suggestionStoreFake) {
	store := newSuggestionStoreFake()
	svc := NewAISuggestionService(store, newEssayStoreFake(gradingEssay("essay-1", models.EssayTypeENEM)), nil, &auditRecorder{}, nil, nil, nil, AIConfig{Enabled: enabled})
	return svc, store
}

func TestAISuggestionDisabled(t *testing.T) {
	svc, _ := newAIFixture(false)

	_, err := svc.Suggest(context.Background(), teacherClaims("teacher-1"), dto.AISuggestionRequest{EssayID: "essay-1", Type: "ENEM"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFeatureDisabled.Code, errorCode(err))
	assert.Equal(t, 403, appErrors.FromError(err).Status)
}

func TestAISuggestionSizeCeiling(t *testing.T) {
	svc, _ := newAIFixture(true)
	ctx := context.Background()

	_, err := svc.Suggest(ctx, teacherClaims("teacher-1"), dto.AISuggestionRequest{EssayID: "essay-1", Type: "ENEM", RawText: strings.Repeat("a", 12001)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPayloadTooLarge.Code, errorCode(err))

	// control characters count toward the ceiling before they are stripped
	_, err = svc.Suggest(ctx, teacherClaims("teacher-1"), dto.AISuggestionRequest{EssayID: "essay-1", Type: "ENEM", RawText: strings.Repeat("a", 11999) + "\x00\x07"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPayloadTooLarge.Code, errorCode(err))

	suggestion, err := svc.Suggest(ctx, teacherClaims("teacher-1"), dto.AISuggestionRequest{EssayID: "essay-1", Type: "ENEM", RawText: strings.Repeat("a", 12000)})
	require.NoError(t, err)
	assert.Equal(t, mockTruncateAt, suggestion.RawTextChars)
}

func TestAISuggestionDeterministic(t *testing.T) {
	svc, store := newAIFixture(true)
	ctx := context.Background()
	req := dto.AISuggestionRequest{EssayID: "essay-1", Type: "ENEM", RawText: "texto\x00 da\x07 redação", ThemeText: "Mobilidade"}

	first, err := svc.Suggest(ctx, teacherClaims("teacher-1"), req)
	require.NoError(t, err)
	second, err := svc.Suggest(ctx, teacherClaims("teacher-1"), req)
	require.NoError(t, err)

	assert.Len(t, first.Hash, 8)
	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, AIProviderMock, first.Provider)
	assert.Equal(t, mockDisclaimer, first.Disclaimer)
	assert.Equal(t, len([]rune("texto da redação")), first.RawTextChars)
	assert.Contains(t, first.Sections.GeneralFeedback, "ref: "+first.Hash)
	require.Len(t, first.Sections.Competencies, 5)
	for _, c := range first.Sections.Competencies {
		assert.LessOrEqual(t, c.SuggestedScore, 200.0)
	}
	assert.Len(t, first.Sections.Improvements, 4)
	assert.NotEmpty(t, store.items)
}

func TestAISuggestionUsesCurrentScoresAndPASCompetencies(t *testing.T) {
	essay := gradingEssay("essay-1", models.EssayTypeENEM)
	essay.RubricResult = models.RubricResult{rubric.C1: {Competency: rubric.C1, Level: 2, Points: 80}}
	svc := NewAISuggestionService(newSuggestionStoreFake(), newEssayStoreFake(essay), nil, nil, nil, nil, nil, AIConfig{Enabled: true})

	enem, err := svc.Suggest(context.Background(), teacherClaims("teacher-1"), dto.AISuggestionRequest{EssayID: "essay-1", Type: "ENEM"})
	require.NoError(t, err)
	assert.Equal(t, 80.0, enem.Sections.Competencies[0].SuggestedScore)
	assert.Contains(t, enem.Sections.GeneralFeedback, "Nenhum texto bruto fornecido.")

	pas, err := svc.Suggest(context.Background(), teacherClaims("teacher-1"), dto.AISuggestionRequest{EssayID: "essay-1", Type: "PAS", CurrentScores: map[string]float64{"lang": 9}})
	require.NoError(t, err)
	require.Len(t, pas.Sections.Competencies, 3)
	assert.Equal(t, "arg", pas.Sections.Competencies[0].ID)
	assert.Equal(t, 2.0, pas.Sections.Competencies[0].SuggestedScore)
	assert.Equal(t, 9.0, pas.Sections.Competencies[2].SuggestedScore)
}

func TestAISuggestionRequiresTeacher(t *testing.T) {
	svc, _ := newAIFixture(true)

	_, err := svc.Suggest(context.Background(), studentClaims("student-1"), dto.AISuggestionRequest{EssayID: "essay-1", Type: "ENEM"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))
}

func TestAISuggestionApply(t *testing.T) {
	svc, store := newAIFixture(true)
	ctx := context.Background()
	suggestion, err := svc.Suggest(ctx, teacherClaims("teacher-1"), dto.AISuggestionRequest{EssayID: "essay-1", Type: "ENEM"})
	require.NoError(t, err)

	result, err := svc.Apply(ctx, teacherClaims("teacher-1"), suggestion.ID, dto.ApplySuggestionRequest{ApplyFeedback: true})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.True(t, result.Updated.AppliedFeedback)
	assert.NotNil(t, result.Updated.AppliedFeedbackAt)

	result, err = svc.Apply(ctx, teacherClaims("teacher-1"), suggestion.ID, dto.ApplySuggestionRequest{ApplyFeedback: true, ApplyScores: true})
	require.NoError(t, err)
	assert.False(t, result.Updated.AppliedFeedback)
	assert.True(t, result.Updated.AppliedScores)
	assert.Len(t, store.updates, 2)

	_, err = svc.Apply(ctx, teacherClaims("teacher-2"), suggestion.ID, dto.ApplySuggestionRequest{ApplyScores: true})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))

	_, err = svc.Apply(ctx, teacherClaims("teacher-1"), "missing", dto.ApplySuggestionRequest{ApplyScores: true})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(err))
}

func TestStripControl(t *testing.T) {
	assert.Equal(t, "a\tb\nc\rd", stripControl("a\tb\nc\rd\x00\x1f"))
}
