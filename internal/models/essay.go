package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/noah-isme/essay-correction-api/internal/rubric"
)

// EssayType identifies the correction model applied to an essay.
type EssayType string

const (
	EssayTypeENEM EssayType = "ENEM"
	EssayTypePAS  EssayType = "PAS"
)

// Valid reports whether the type is supported.
func (t EssayType) Valid() bool {
	return t == EssayTypeENEM || t == EssayTypePAS
}

// EssayStatus captures the correction lifecycle.
type EssayStatus string

const (
	EssayStatusPending EssayStatus = "PENDING"
	EssayStatusGrading EssayStatus = "GRADING"
	EssayStatusGraded  EssayStatus = "GRADED"
	EssayStatusSent    EssayStatus = "SENT"
)

// Rank orders statuses along PENDING < GRADING < GRADED < SENT. Unknown statuses rank -1.
func (s EssayStatus) Rank() int {
	switch s {
	case EssayStatusPending:
		return 0
	case EssayStatusGrading:
		return 1
	case EssayStatusGraded:
		return 2
	case EssayStatusSent:
		return 3
	default:
		return -1
	}
}

// Essay is a student submission under correction.
type Essay struct {
	ID              string      `db:"id" json:"id"`
	StudentID       string      `db:"student_id" json:"student_id"`
	ClassID         *string     `db:"class_id" json:"class_id,omitempty"`
	TeacherID       *string     `db:"teacher_id" json:"teacher_id,omitempty"`
	Type            EssayType   `db:"type" json:"type"`
	ThemeID         *string     `db:"theme_id" json:"theme_id,omitempty"`
	ThemeText       *string     `db:"theme_text" json:"theme_text,omitempty"`
	Bimester        *int        `db:"bimester" json:"bimester,omitempty"`
	CountInBimester bool        `db:"count_in_bimester" json:"count_in_bimester"`
	Status          EssayStatus `db:"status" json:"status"`

	FileURL   string `db:"file_url" json:"-"`
	FileKey   string `db:"file_key" json:"-"`
	FileMIME  string `db:"file_mime" json:"file_mime"`
	FileSize  int64  `db:"file_size" json:"file_size"`
	FilePages *int   `db:"file_pages" json:"file_pages,omitempty"`

	GeneralComments *string          `db:"general_comments" json:"general_comments,omitempty"`
	FinalComments   *string          `db:"final_comments" json:"final_comments,omitempty"`
	RubricDraft     RubricSelections `db:"rubric_draft" json:"rubric_draft,omitempty"`
	RubricResult    RubricResult     `db:"rubric_result" json:"rubric_result,omitempty"`
	PAS             *PASResult       `db:"pas_result" json:"pas,omitempty"`

	RawScore      *float64 `db:"raw_score" json:"raw_score,omitempty"`
	ScaledScore   *float64 `db:"scaled_score" json:"scaled_score,omitempty"`
	BimesterScore *float64 `db:"bimester_score" json:"computed_bimester_score,omitempty"`

	AnnulmentActive  bool           `db:"annulment_active" json:"-"`
	AnnulmentReasons pq.StringArray `db:"annulment_reasons" json:"-"`

	CorrectedPDFURL *string    `db:"corrected_pdf_url" json:"corrected_pdf_url,omitempty"`
	CorrectedPDFKey *string    `db:"corrected_pdf_key" json:"-"`
	EmailLastSentAt *time.Time `db:"email_last_sent_at" json:"-"`
	EmailSendCount  int        `db:"email_send_count" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Annulment is the annulment view of an essay.
type Annulment struct {
	Active  bool     `json:"active"`
	Reasons []string `json:"reasons"`
}

// EmailStatus is the delivery view of an essay.
type EmailStatus struct {
	LastSentAt *time.Time `json:"last_sent_at,omitempty"`
	SendCount  int        `json:"send_count"`
}

// Annulment returns the annulment state.
func (e *Essay) Annulment() Annulment {
	reasons := []string(e.AnnulmentReasons)
	if reasons == nil {
		reasons = []string{}
	}
	return Annulment{Active: e.AnnulmentActive, Reasons: reasons}
}

// Email returns the delivery state.
func (e *Essay) Email() EmailStatus {
	return EmailStatus{LastSentAt: e.EmailLastSentAt, SendCount: e.EmailSendCount}
}

// Theme returns the free-text theme, falling back to the theme id.
func (e *Essay) Theme() string {
	if e.ThemeText != nil && *e.ThemeText != "" {
		return *e.ThemeText
	}
	if e.ThemeID != nil {
		return *e.ThemeID
	}
	return ""
}

// MarshalJSON embeds the nested annulment and email views.
func (e Essay) MarshalJSON() ([]byte, error) {
	type plain Essay
	return json.Marshal(struct {
		plain
		Annulment Annulment   `json:"annulment"`
		Email     EmailStatus `json:"email"`
	}{plain: plain(e), Annulment: e.Annulment(), Email: e.Email()})
}

// RubricSelections stores per-competency picks as JSONB.
type RubricSelections map[string]rubric.Selection

// Value marshals selections to JSON for persistence.
func (s RubricSelections) Value() (driver.Value, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(map[string]rubric.Selection(s))
	if err != nil {
		return nil, fmt.Errorf("marshal rubric selections: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSONB selections.
func (s *RubricSelections) Scan(value interface{}) error {
	data, err := jsonBytes(value, "RubricSelections")
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*s = RubricSelections{}
		return nil
	}
	out := RubricSelections{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("unmarshal rubric selections: %w", err)
	}
	*s = out
	return nil
}

// RubricResult stores the validated per-competency resolutions as JSONB.
type RubricResult map[string]rubric.Resolution

// Value marshals the result to JSON for persistence.
func (r RubricResult) Value() (driver.Value, error) {
	if r == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(map[string]rubric.Resolution(r))
	if err != nil {
		return nil, fmt.Errorf("marshal rubric result: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB rubric result.
func (r *RubricResult) Scan(value interface{}) error {
	data, err := jsonBytes(value, "RubricResult")
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*r = RubricResult{}
		return nil
	}
	out := RubricResult{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("unmarshal rubric result: %w", err)
	}
	*r = out
	return nil
}

// PASResult holds the PAS counters and the computed NR.
type PASResult struct {
	NC       float64 `json:"NC"`
	NE       float64 `json:"NE"`
	NL       float64 `json:"NL"`
	RawScore float64 `json:"raw_score"`
}

// Value marshals the PAS result to JSON.
func (p PASResult) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal pas result: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB PAS result.
func (p *PASResult) Scan(value interface{}) error {
	data, err := jsonBytes(value, "PASResult")
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*p = PASResult{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal pas result: %w", err)
	}
	return nil
}

func jsonBytes(value interface{}, target string) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported type %T for %s", value, target)
	}
}

// EssayFile describes the stored original submission.
type EssayFile struct {
	URL   string
	Key   string
	MIME  string
	Size  int64
	Pages *int
}

// GradeUpdate carries the fields persisted by a successful grading.
type GradeUpdate struct {
	RubricResult     RubricResult
	PAS              *PASResult
	RawScore         float64
	ScaledScore      float64
	BimesterScore    *float64
	AnnulmentActive  bool
	AnnulmentReasons []string
}

// CorrectionDraft carries the fields persisted when a correction is opened.
type CorrectionDraft struct {
	TeacherID       string
	GeneralComments *string
	RubricDraft     RubricSelections
}
