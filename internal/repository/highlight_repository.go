package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/essay-correction-api/internal/models"
)

// ErrOrderNumberMismatch is returned when a supplied order number is not the next in the essay sequence.
var ErrOrderNumberMismatch = errors.New("highlight order number out of sequence")

// HighlightRepository stores essay highlights and the per-essay order sequence.
type HighlightRepository struct {
	db *sqlx.DB
}

// NewHighlightRepository constructs the repository.
func NewHighlightRepository(db *sqlx.DB) *HighlightRepository {
	return &HighlightRepository{db: db}
}

// Append reserves the next order number for the essay and inserts the highlight in one transaction.
// The sequence upsert locks the essay's counter row, serialising concurrent appends.
func (r *HighlightRepository) Append(ctx context.Context, highlight *models.Highlight, requested *int) error {
	if highlight.ID == "" {
		highlight.ID = uuid.NewString()
	}
	if highlight.CreatedAt.IsZero() {
		highlight.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin highlight tx: %w", err)
	}

	const nextQuery = `INSERT INTO highlight_sequences (essay_id, last_value) VALUES ($1, 1)
ON CONFLICT (essay_id) DO UPDATE SET last_value = highlight_sequences.last_value + 1
RETURNING last_value`
	var next int
	if err := tx.GetContext(ctx, &next, nextQuery, highlight.EssayID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("next highlight order: %w", err)
	}
	if requested != nil && *requested != next {
		_ = tx.Rollback()
		return fmt.Errorf("%w: expected %d, got %d", ErrOrderNumberMismatch, next, *requested)
	}
	highlight.GlobalOrderNumber = next

	const insertQuery = `INSERT INTO highlights
	(id, essay_id, global_order_number, page, rects, color, category, comment, created_by, created_at)
	VALUES (:id, :essay_id, :global_order_number, :page, :rects, :color, :category, :comment, :created_by, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, highlight); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert highlight: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit highlight tx: %w", err)
	}
	return nil
}

// ListByEssay returns highlights ordered by their global order number.
func (r *HighlightRepository) ListByEssay(ctx context.Context, essayID string) ([]models.Highlight, error) {
	const query = `SELECT id, essay_id, global_order_number, page, rects, color, category, comment, created_by, created_at
	FROM highlights WHERE essay_id = $1 ORDER BY global_order_number ASC`
	highlights := make([]models.Highlight, 0)
	if err := r.db.SelectContext(ctx, &highlights, query, essayID); err != nil {
		return nil, fmt.Errorf("list highlights: %w", err)
	}
	return highlights, nil
}
