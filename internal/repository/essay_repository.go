package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/essay-correction-api/internal/models"
)

const essayColumns = `id, student_id, class_id, teacher_id, type, theme_id, theme_text, bimester, count_in_bimester, status,
       file_url, file_key, file_mime, file_size, file_pages, general_comments, final_comments,
       rubric_draft, rubric_result, pas_result, raw_score, scaled_score, bimester_score,
       annulment_active, annulment_reasons, corrected_pdf_url, corrected_pdf_key,
       email_last_sent_at, email_send_count, created_at, updated_at`

// EssayRepository persists essays and guards their lifecycle with conditional writes.
// Every transition returns sql.ErrNoRows when the essay is absent or not in an allowed status.
type EssayRepository struct {
	db *sqlx.DB
}

// NewEssayRepository constructs the repository.
func NewEssayRepository(db *sqlx.DB) *EssayRepository {
	return &EssayRepository{db: db}
}

// Create inserts a new essay in PENDING.
func (r *EssayRepository) Create(ctx context.Context, essay *models.Essay) error {
	if essay.ID == "" {
		essay.ID = uuid.NewString()
	}
	essay.Status = models.EssayStatusPending
	now := time.Now().UTC()
	if essay.CreatedAt.IsZero() {
		essay.CreatedAt = now
	}
	essay.UpdatedAt = now
	if essay.AnnulmentReasons == nil {
		essay.AnnulmentReasons = pq.StringArray{}
	}
	const query = `INSERT INTO essays
	(id, student_id, class_id, teacher_id, type, theme_id, theme_text, bimester, count_in_bimester, status,
	 file_url, file_key, file_mime, file_size, file_pages, rubric_draft, rubric_result,
	 annulment_active, annulment_reasons, email_send_count, created_at, updated_at)
	VALUES (:id, :student_id, :class_id, :teacher_id, :type, :theme_id, :theme_text, :bimester, :count_in_bimester, :status,
	 :file_url, :file_key, :file_mime, :file_size, :file_pages, :rubric_draft, :rubric_result,
	 :annulment_active, :annulment_reasons, 0, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, essay); err != nil {
		return fmt.Errorf("create essay: %w", err)
	}
	return nil
}

// FindByID fetches an essay by identifier.
func (r *EssayRepository) FindByID(ctx context.Context, id string) (*models.Essay, error) {
	query := `SELECT ` + essayColumns + ` FROM essays WHERE id = $1`
	var essay models.Essay
	if err := r.db.GetContext(ctx, &essay, query, id); err != nil {
		return nil, err
	}
	return &essay, nil
}

// OpenCorrection moves PENDING or GRADING essays to GRADING and stores the draft.
// The grading teacher is assigned only when unclaimed.
func (r *EssayRepository) OpenCorrection(ctx context.Context, id string, draft models.CorrectionDraft) error {
	const query = `UPDATE essays SET
	status = :status,
	teacher_id = COALESCE(teacher_id, :teacher_id),
	general_comments = COALESCE(:general_comments, general_comments),
	rubric_draft = :rubric_draft,
	updated_at = :updated_at
	WHERE id = :id AND status IN ('PENDING', 'GRADING')`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":               id,
		"status":           models.EssayStatusGrading,
		"teacher_id":       draft.TeacherID,
		"general_comments": draft.GeneralComments,
		"rubric_draft":     draft.RubricDraft,
		"updated_at":       time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("open essay correction: %w", err)
	}
	return expectAffected(result, "open essay correction")
}

// SaveGrade persists the grading outcome and moves a GRADING essay to GRADED.
func (r *EssayRepository) SaveGrade(ctx context.Context, id string, update models.GradeUpdate) error {
	reasons := pq.StringArray(update.AnnulmentReasons)
	if reasons == nil {
		reasons = pq.StringArray{}
	}
	const query = `UPDATE essays SET
	status = :status,
	rubric_result = :rubric_result,
	pas_result = :pas_result,
	raw_score = :raw_score,
	scaled_score = :scaled_score,
	bimester_score = :bimester_score,
	annulment_active = :annulment_active,
	annulment_reasons = :annulment_reasons,
	updated_at = :updated_at
	WHERE id = :id AND status = 'GRADING'`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":                id,
		"status":            models.EssayStatusGraded,
		"rubric_result":     update.RubricResult,
		"pas_result":        update.PAS,
		"raw_score":         update.RawScore,
		"scaled_score":      update.ScaledScore,
		"bimester_score":    update.BimesterScore,
		"annulment_active":  update.AnnulmentActive,
		"annulment_reasons": reasons,
		"updated_at":        time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("save essay grade: %w", err)
	}
	return expectAffected(result, "save essay grade")
}

// SetCorrectedPDF stores the artifact location once. A second write loses the race and returns sql.ErrNoRows.
func (r *EssayRepository) SetCorrectedPDF(ctx context.Context, id, url, key string, finalComments *string) error {
	const query = `UPDATE essays SET
	corrected_pdf_url = :url,
	corrected_pdf_key = :key,
	final_comments = COALESCE(:final_comments, final_comments),
	updated_at = :updated_at
	WHERE id = :id AND corrected_pdf_url IS NULL AND status IN ('GRADED', 'SENT')`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":             id,
		"url":            url,
		"key":            key,
		"final_comments": finalComments,
		"updated_at":     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("set corrected pdf: %w", err)
	}
	return expectAffected(result, "set corrected pdf")
}

// MarkSent records a successful dispatch and moves the essay to SENT.
func (r *EssayRepository) MarkSent(ctx context.Context, id string, sentAt time.Time, finalComments *string) error {
	const query = `UPDATE essays SET
	status = :status,
	email_last_sent_at = :sent_at,
	email_send_count = email_send_count + 1,
	final_comments = COALESCE(:final_comments, final_comments),
	updated_at = :updated_at
	WHERE id = :id AND status IN ('GRADED', 'SENT') AND corrected_pdf_url IS NOT NULL`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":             id,
		"status":         models.EssayStatusSent,
		"sent_at":        sentAt,
		"final_comments": finalComments,
		"updated_at":     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("mark essay sent: %w", err)
	}
	return expectAffected(result, "mark essay sent")
}

func expectAffected(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
