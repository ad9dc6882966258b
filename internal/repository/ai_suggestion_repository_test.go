package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/essay-correction-api/internal/models"
)

func TestAISuggestionRepositoryCreateAndFind(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAISuggestionRepository(db)

	mock.ExpectExec("INSERT INTO ai_suggestions").WillReturnResult(sqlmock.NewResult(1, 1))
	suggestion := &models.AISuggestion{EssayID: "essay-1", TeacherID: "teacher-1", Provider: "mock", Mode: "mock", Type: models.EssayTypeENEM}
	require.NoError(t, repo.Create(context.Background(), suggestion))
	assert.NotEmpty(t, suggestion.ID)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "essay_id", "teacher_id", "provider", "mode", "type", "hash", "generation_ms", "raw_text_chars", "sections", "disclaimer",
		"applied_feedback", "applied_feedback_at", "applied_scores", "applied_scores_at", "created_at"}).
		AddRow(suggestion.ID, "essay-1", "teacher-1", "mock", "mock", "ENEM", "abcd1234", 3, 0,
			[]byte(`{"general_feedback":"ok","competencies":[{"id":"C1","label":"Competência 1","strength":"s","improvement":"i","suggested_score":160}],"improvements":["x"]}`),
			"disclaimer", false, nil, true, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM ai_suggestions WHERE id = $1")).
		WithArgs(suggestion.ID).
		WillReturnRows(rows)

	found, err := repo.FindByID(context.Background(), suggestion.ID)
	require.NoError(t, err)
	require.Len(t, found.Sections.Competencies, 1)
	assert.Equal(t, float64(160), found.Sections.Competencies[0].SuggestedScore)
	assert.True(t, found.AppliedScores)
	assert.NotNil(t, found.AppliedScoresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAISuggestionRepositoryMarkApplied(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAISuggestionRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.MarkApplied(ctx, "s1", models.SuggestionApplyUpdate{}))

	now := time.Now()
	mock.ExpectExec("UPDATE ai_suggestions SET").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkApplied(ctx, "s1", models.SuggestionApplyUpdate{AppliedFeedback: true, AppliedFeedbackAt: &now}))

	mock.ExpectExec("UPDATE ai_suggestions SET").WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.MarkApplied(ctx, "ghost", models.SuggestionApplyUpdate{AppliedScores: true, AppliedScoresAt: &now})
	require.ErrorIs(t, err, sql.ErrNoRows)

	assert.NoError(t, mock.ExpectationsWereMet())
}
