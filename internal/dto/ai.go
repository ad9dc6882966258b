package dto

// AISuggestionRequest asks for an AI-assisted correction suggestion.
type AISuggestionRequest struct {
	EssayID       string             `json:"essayId" validate:"required"`
	Type          string             `json:"type" validate:"required,oneof=ENEM PAS"`
	ThemeText     string             `json:"themeText"`
	RawText       string             `json:"rawText"`
	CurrentScores map[string]float64 `json:"currentScores"`
}

// ApplySuggestionRequest marks parts of a suggestion as applied.
type ApplySuggestionRequest struct {
	ApplyFeedback bool `json:"applyFeedback"`
	ApplyScores   bool `json:"applyScores"`
}
