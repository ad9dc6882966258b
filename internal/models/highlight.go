package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// HighlightCategory groups highlights in the rendered correction.
type HighlightCategory string

const (
	HighlightCategoryFormal        HighlightCategory = "formal"
	HighlightCategoryGrammar       HighlightCategory = "grammar"
	HighlightCategoryArgumentation HighlightCategory = "argumentation"
	HighlightCategoryCohesion      HighlightCategory = "cohesion"
	HighlightCategoryPresentation  HighlightCategory = "presentation"
	HighlightCategoryComment       HighlightCategory = "comment"
)

// Rect is a rectangle in page coordinates normalised to the 0..1 range.
type Rect struct {
	X float64 `json:"x" validate:"gte=0,lte=1"`
	Y float64 `json:"y" validate:"gte=0,lte=1"`
	W float64 `json:"w" validate:"gt=0,lte=1"`
	H float64 `json:"h" validate:"gt=0,lte=1"`
}

// Rects is persisted as JSONB.
type Rects []Rect

// Value marshals rects to JSON.
func (r Rects) Value() (driver.Value, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	data, err := json.Marshal([]Rect(r))
	if err != nil {
		return nil, fmt.Errorf("marshal rects: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSONB rects.
func (r *Rects) Scan(value interface{}) error {
	data, err := jsonBytes(value, "Rects")
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*r = Rects{}
		return nil
	}
	out := Rects{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("unmarshal rects: %w", err)
	}
	*r = out
	return nil
}

// Highlight is an annotation anchored to a page of the essay.
type Highlight struct {
	ID                string            `db:"id" json:"id"`
	EssayID           string            `db:"essay_id" json:"essay_id"`
	GlobalOrderNumber int               `db:"global_order_number" json:"global_order_number"`
	Page              int               `db:"page" json:"page"`
	Rects             Rects             `db:"rects" json:"rects"`
	Color             string            `db:"color" json:"color"`
	Category          HighlightCategory `db:"category" json:"category"`
	Comment           string            `db:"comment" json:"comment"`
	CreatedBy         string            `db:"created_by" json:"created_by"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
}

// CountByCategory counts highlights of a category.
func CountByCategory(highlights []Highlight, category HighlightCategory) int {
	count := 0
	for _, h := range highlights {
		if h.Category == category {
			count++
		}
	}
	return count
}
