package dto

import "io"

// SubmitEssayRequest carries the multipart form fields of an essay submission.
type SubmitEssayRequest struct {
	StudentID       string `form:"studentId" json:"studentId"`
	ClassID         string `form:"classId" json:"classId"`
	Type            string `form:"type" json:"type" validate:"required,oneof=ENEM PAS"`
	ThemeID         string `form:"themeId" json:"themeId"`
	ThemeText       string `form:"themeText" json:"themeText" validate:"max=500"`
	Bimester        *int   `form:"bimester" json:"bimester" validate:"omitempty,min=1,max=4"`
	CountInBimester bool   `form:"countInBimester" json:"countInBimester"`
	Pages           *int   `form:"pages" json:"pages" validate:"omitempty,min=1,max=50"`
}

// EssayUpload is the uploaded essay file stream.
type EssayUpload struct {
	Filename string
	Size     int64
	Reader   io.Reader
}

// RubricSelectionInput is a teacher's pick for one competency.
type RubricSelectionInput struct {
	Level     int      `json:"level" validate:"min=0,max=5"`
	ReasonIDs []string `json:"reasonIds"`
}

// OpenCorrectionRequest opens or continues a correction draft.
type OpenCorrectionRequest struct {
	GeneralComments  *string                         `json:"generalComments" validate:"omitempty,max=10000"`
	RubricSelections map[string]RubricSelectionInput `json:"rubricSelections" validate:"omitempty,dive"`
}

// AnnulmentInput requests the annulment of an essay.
type AnnulmentInput struct {
	Active  bool     `json:"active"`
	Reasons []string `json:"reasons"`
}

// PASInput carries the PAS counters. NE is counted from grammar highlights when omitted.
type PASInput struct {
	NC *float64 `json:"NC" validate:"required,gte=0"`
	NE *float64 `json:"NE" validate:"omitempty,gte=0"`
	NL *float64 `json:"NL" validate:"omitempty,gte=1"`
}

// SubmitGradeRequest finalises a correction. ENEM essays use rubricSelections or competencyScores.
type SubmitGradeRequest struct {
	RubricSelections map[string]RubricSelectionInput `json:"rubricSelections" validate:"omitempty,dive"`
	CompetencyScores map[string]int                  `json:"competencyScores"`
	PAS              *PASInput                       `json:"pas"`
	Annulment        *AnnulmentInput                 `json:"annulment"`
}

// DeliverRequest triggers delivery of the corrected essay.
type DeliverRequest struct {
	FinalComments *string `json:"finalComments" validate:"omitempty,max=10000"`
}
