package dto

import "github.com/noah-isme/essay-correction-api/internal/models"

// AddHighlightRequest appends a highlight to an essay's annotation set.
type AddHighlightRequest struct {
	Page              int           `json:"page" validate:"required,min=1"`
	Rects             []models.Rect `json:"rects" validate:"required,min=1,dive"`
	Color             string        `json:"color" validate:"required,max=32"`
	Category          string        `json:"category" validate:"required,oneof=formal grammar argumentation cohesion presentation comment"`
	Comment           string        `json:"comment" validate:"max=2000"`
	GlobalOrderNumber *int          `json:"globalOrderNumber" validate:"omitempty,min=1"`
}
