package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SuggestionCompetency is the per-competency part of an AI suggestion.
type SuggestionCompetency struct {
	ID             string  `json:"id"`
	Label          string  `json:"label"`
	Strength       string  `json:"strength"`
	Improvement    string  `json:"improvement"`
	SuggestedScore float64 `json:"suggested_score"`
}

// SuggestionSections is the structured body of an AI suggestion, persisted as JSONB.
type SuggestionSections struct {
	GeneralFeedback string                 `json:"general_feedback"`
	Competencies    []SuggestionCompetency `json:"competencies"`
	Improvements    []string               `json:"improvements"`
}

// Value marshals sections to JSON.
func (s SuggestionSections) Value() (driver.Value, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal suggestion sections: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSONB sections.
func (s *SuggestionSections) Scan(value interface{}) error {
	data, err := jsonBytes(value, "SuggestionSections")
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*s = SuggestionSections{}
		return nil
	}
	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("unmarshal suggestion sections: %w", err)
	}
	return nil
}

// SuggestionMetadata describes how a suggestion was produced.
type SuggestionMetadata struct {
	GenerationMs int64  `json:"generation_ms"`
	Hash         string `json:"hash"`
	RawTextChars int    `json:"raw_text_chars"`
}

// AISuggestion is a persisted AI-assisted correction suggestion.
type AISuggestion struct {
	ID                string             `db:"id" json:"id"`
	EssayID           string             `db:"essay_id" json:"essay_id"`
	TeacherID         string             `db:"teacher_id" json:"teacher_id"`
	Provider          string             `db:"provider" json:"provider"`
	Mode              string             `db:"mode" json:"mode"`
	Type              EssayType          `db:"type" json:"type"`
	Hash              string             `db:"hash" json:"hash"`
	GenerationMs      int64              `db:"generation_ms" json:"generation_ms"`
	RawTextChars      int                `db:"raw_text_chars" json:"raw_text_chars"`
	Sections          SuggestionSections `db:"sections" json:"sections"`
	Disclaimer        string             `db:"disclaimer" json:"disclaimer"`
	AppliedFeedback   bool               `db:"applied_feedback" json:"applied_feedback"`
	AppliedFeedbackAt *time.Time         `db:"applied_feedback_at" json:"applied_feedback_at,omitempty"`
	AppliedScores     bool               `db:"applied_scores" json:"applied_scores"`
	AppliedScoresAt   *time.Time         `db:"applied_scores_at" json:"applied_scores_at,omitempty"`
	CreatedAt         time.Time          `db:"created_at" json:"created_at"`
}

// SuggestionApplyUpdate flags which parts of a suggestion were applied in one call.
type SuggestionApplyUpdate struct {
	AppliedFeedback   bool       `json:"applied_feedback,omitempty"`
	AppliedFeedbackAt *time.Time `json:"applied_feedback_at,omitempty"`
	AppliedScores     bool       `json:"applied_scores,omitempty"`
	AppliedScoresAt   *time.Time `json:"applied_scores_at,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u SuggestionApplyUpdate) Empty() bool {
	return !u.AppliedFeedback && !u.AppliedScores
}
