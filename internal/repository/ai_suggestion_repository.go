package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/essay-correction-api/internal/models"
)

// AISuggestionRepository persists AI correction suggestions.
type AISuggestionRepository struct {
	db *sqlx.DB
}

// NewAISuggestionRepository constructs the repository.
func NewAISuggestionRepository(db *sqlx.DB) *AISuggestionRepository {
	return &AISuggestionRepository{db: db}
}

// Create inserts a suggestion.
func (r *AISuggestionRepository) Create(ctx context.Context, suggestion *models.AISuggestion) error {
	if suggestion.ID == "" {
		suggestion.ID = uuid.NewString()
	}
	if suggestion.CreatedAt.IsZero() {
		suggestion.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO ai_suggestions
	(id, essay_id, teacher_id, provider, mode, type, hash, generation_ms, raw_text_chars, sections, disclaimer,
	 applied_feedback, applied_scores, created_at)
	VALUES (:id, :essay_id, :teacher_id, :provider, :mode, :type, :hash, :generation_ms, :raw_text_chars, :sections, :disclaimer,
	 :applied_feedback, :applied_scores, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, suggestion); err != nil {
		return fmt.Errorf("create ai suggestion: %w", err)
	}
	return nil
}

// FindByID fetches a suggestion by identifier.
func (r *AISuggestionRepository) FindByID(ctx context.Context, id string) (*models.AISuggestion, error) {
	const query = `SELECT id, essay_id, teacher_id, provider, mode, type, hash, generation_ms, raw_text_chars, sections, disclaimer,
       applied_feedback, applied_feedback_at, applied_scores, applied_scores_at, created_at
	FROM ai_suggestions WHERE id = $1`
	var suggestion models.AISuggestion
	if err := r.db.GetContext(ctx, &suggestion, query, id); err != nil {
		return nil, err
	}
	return &suggestion, nil
}

// MarkApplied sets the applied flags that are still unset. Flags already applied keep their timestamps.
func (r *AISuggestionRepository) MarkApplied(ctx context.Context, id string, update models.SuggestionApplyUpdate) error {
	if update.Empty() {
		return nil
	}
	const query = `UPDATE ai_suggestions SET
	applied_feedback_at = CASE WHEN :applied_feedback AND NOT applied_feedback THEN :applied_feedback_at ELSE applied_feedback_at END,
	applied_feedback = applied_feedback OR :applied_feedback,
	applied_scores_at = CASE WHEN :applied_scores AND NOT applied_scores THEN :applied_scores_at ELSE applied_scores_at END,
	applied_scores = applied_scores OR :applied_scores
	WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":                  id,
		"applied_feedback":    update.AppliedFeedback,
		"applied_feedback_at": update.AppliedFeedbackAt,
		"applied_scores":      update.AppliedScores,
		"applied_scores_at":   update.AppliedScoresAt,
	})
	if err != nil {
		return fmt.Errorf("mark ai suggestion applied: %w", err)
	}
	return expectAffected(result, "mark ai suggestion applied")
}
